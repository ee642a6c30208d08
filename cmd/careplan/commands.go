package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/entity"
	"github.com/joseph-ayodele/care-records/internal/export"
	"github.com/joseph-ayodele/care-records/internal/pipeline"
	"github.com/joseph-ayodele/care-records/internal/repository"
)

func processCmd(cfg *common.Config, rf *rootFlags) *cobra.Command {
	var (
		owner    ownerFlags
		fileType string
	)
	cmd := &cobra.Command{
		Use:   "process <path-or-url>",
		Short: "Register one document and run the pipeline on it in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := common.WithRequestID(cmd.Context(), uuid.NewString())
			a, err := openApp(ctx, cfg, rf.migrate)
			if err != nil {
				return err
			}
			defer a.Close()

			o, err := owner.resolve(cfg.Inbox)
			if err != nil {
				return err
			}
			proc, err := a.processor()
			if err != nil {
				return err
			}
			doc, err := register(cmd, a, o.FamilyID, o.PatientID, o.UserID, args[0], fileType)
			if err != nil {
				return err
			}
			summary, err := proc.Process(ctx, jobFor(doc))
			if err != nil {
				return common.WrapError(err, "document "+doc.ID.String()+" failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", doc.ID, summary)
			return nil
		},
	}
	addOwnerFlags(cmd, &owner)
	cmd.Flags().StringVar(&fileType, "type", "", "MIME type (default: from the file extension)")
	return cmd
}

func enqueueCmd(cfg *common.Config, rf *rootFlags) *cobra.Command {
	var (
		owner    ownerFlags
		fileType string
	)
	cmd := &cobra.Command{
		Use:   "enqueue <path-or-url>...",
		Short: "Register documents and queue them for the worker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if cfg.Redis.Addr == "" {
				return common.NewAppError(common.KindConfig, "REDIS_ADDR is required so a separate worker can see the jobs", common.ErrInvalidInput)
			}
			a, err := openApp(ctx, cfg, rf.migrate)
			if err != nil {
				return err
			}
			defer a.Close()

			in, err := a.inbox(ctx, owner)
			if err != nil {
				return err
			}
			o, _ := owner.resolve(cfg.Inbox)
			q, err := a.queue(ctx)
			if err != nil {
				return err
			}
			for _, src := range args {
				if !isRemote(src) {
					res, err := in.IngestPath(ctx, src)
					if err != nil {
						return fmt.Errorf("%s: %w", src, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tdeduplicated=%t enqueued=%t\n", res.DocumentID, res.SourcePath, res.Deduplicated, res.Enqueued)
					continue
				}
				doc, err := register(cmd, a, o.FamilyID, o.PatientID, o.UserID, src, fileType)
				if err != nil {
					return err
				}
				job, err := pipeline.NewDocumentJob(jobFor(doc))
				if err != nil {
					return err
				}
				if err := q.Enqueue(ctx, job); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tjob=%s\n", doc.ID, src, job.ID)
			}
			return nil
		},
	}
	addOwnerFlags(cmd, &owner)
	cmd.Flags().StringVar(&fileType, "type", "", "MIME type for URLs (default: from the URL path)")
	return cmd
}

func watchCmd(cfg *common.Config, rf *rootFlags) *cobra.Command {
	var owner ownerFlags
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Watch an inbox directory and queue every new document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := cfg.Inbox.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return common.NewAppError(common.KindConfig, "an inbox directory (argument or INBOX_DIR) is required", common.ErrInvalidInput)
			}
			if cfg.Redis.Addr == "" {
				return common.NewAppError(common.KindConfig, "REDIS_ADDR is required; use `worker --inbox` for a single process", common.ErrInvalidInput)
			}
			a, err := openApp(ctx, cfg, rf.migrate)
			if err != nil {
				return err
			}
			defer a.Close()

			in, err := a.inbox(ctx, owner)
			if err != nil {
				return err
			}
			return ignoreCanceled(in.Watch(ctx, dir, cfg.Inbox.Debounce))
		},
	}
	addOwnerFlags(cmd, &owner)
	return cmd
}

func exportCmd(cfg *common.Config, rf *rootFlags) *cobra.Command {
	var (
		documentID, patientID, familyID, status, out string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write recommendations for a document or patient to an XLSX workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var scope export.Scope
			for _, f := range []struct {
				name string
				raw  string
				dst  *uuid.UUID
			}{
				{"document", documentID, &scope.DocumentID},
				{"patient", patientID, &scope.PatientID},
				{"family", familyID, &scope.FamilyID},
			} {
				if f.raw == "" {
					continue
				}
				id, err := uuid.Parse(f.raw)
				if err != nil {
					return fmt.Errorf("--%s must be a UUID", f.name)
				}
				*f.dst = id
			}
			scope.Status = status

			a, err := openApp(ctx, cfg, rf.migrate)
			if err != nil {
				return err
			}
			defer a.Close()

			xlsx, err := a.exporter().ExportRecommendationsXLSX(ctx, scope)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, xlsx, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, len(xlsx))
			return nil
		},
	}
	cmd.Flags().StringVar(&documentID, "document", "", "document id")
	cmd.Flags().StringVar(&patientID, "patient", "", "patient id")
	cmd.Flags().StringVar(&familyID, "family", "", "restrict to a family")
	cmd.Flags().StringVar(&status, "status", "", "only recommendations with this status (e.g. pending)")
	cmd.Flags().StringVarP(&out, "out", "o", "recommendations.xlsx", "output file")
	return cmd
}

func sweepCmd(cfg *common.Config, rf *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark documents stuck in PROCESSING as FAILED",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cfg, rf.migrate)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := pipeline.NewSweeper(a.docs, cfg.Maintenance.StaleAfter, a.logger).Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "failed %d stale document(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&cfg.Maintenance.StaleAfter, "stale-after", cfg.Maintenance.StaleAfter, "how long a document may stay PROCESSING")
	return cmd
}

func migrateCmd(cfg *common.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date:", strings.Join(tableNames(), ", "))
			return nil
		},
	}
}

func addOwnerFlags(cmd *cobra.Command, o *ownerFlags) {
	cmd.Flags().StringVar(&o.family, "family", "", "family id (default INBOX_FAMILY_ID)")
	cmd.Flags().StringVar(&o.patient, "patient", "", "patient id (default INBOX_PATIENT_ID)")
	cmd.Flags().StringVar(&o.user, "user", "", "uploading user (default INBOX_USER_ID)")
}

// register creates a PENDING document for a local path or URL.
func register(cmd *cobra.Command, a *app, familyID uuid.UUID, patientID *uuid.UUID, userID, src, fileType string) (*entity.Document, error) {
	fileURL := src
	if !isRemote(src) {
		abs, err := filepath.Abs(src)
		if err != nil {
			return nil, err
		}
		fileURL = abs
	}
	if fileType == "" {
		p := fileURL
		if u, err := url.Parse(fileURL); err == nil && isRemote(fileURL) {
			p = u.Path
		}
		fileType = constants.MIMEFromExt(filepath.Ext(p))
	}
	doc := &entity.Document{
		ID:            uuid.New(),
		FamilyID:      familyID,
		PatientID:     patientID,
		UserID:        userID,
		FileURL:       fileURL,
		FileType:      fileType,
		ParsingStatus: constants.ParsingStatusPending,
	}
	if err := pipeline.ValidateJob(jobFor(doc)); err != nil {
		return nil, err
	}
	if err := a.docs.Create(cmd.Context(), doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func jobFor(doc *entity.Document) entity.PipelineJob {
	return entity.PipelineJob{
		DocumentID: doc.ID,
		FamilyID:   doc.FamilyID,
		PatientID:  doc.PatientID,
		UserID:     doc.UserID,
		FileURL:    doc.FileURL,
		FileType:   doc.FileType,
	}
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") || strings.HasPrefix(src, "azblob://")
}

func tableNames() []string {
	names := make([]string, 0, len(repository.Tables))
	for _, t := range repository.Tables {
		names = append(names, t.Name)
	}
	return names
}
