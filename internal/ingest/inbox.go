package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/entity"
	"github.com/joseph-ayodele/care-records/internal/pipeline"
)

// Inbox turns files on the local filesystem into queued documents.
type Inbox struct {
	docs   DocumentRegistry
	queue  Enqueuer
	owner  Owner
	logger *slog.Logger
}

func NewInbox(docs DocumentRegistry, queue Enqueuer, owner Owner, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{docs: docs, queue: queue, owner: owner, logger: logger}
}

// IngestPath hashes the file, registers it as a PENDING document and enqueues it.
// A file already registered for the family is not registered again; it is
// re-enqueued only when its earlier run FAILED.
func (i *Inbox) IngestPath(ctx context.Context, path string) (Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{}, fmt.Errorf("abs path: %w", err)
	}
	out := Result{SourcePath: abs}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		return out, common.UnsupportedMimeType(constants.MIMEFromExt(ext))
	}
	out.FileType = constants.MIMEFromExt(ext)

	out.HashHex, err = hashFile(abs)
	if err != nil {
		i.logger.Error("ingest.hash.failed", "path", abs, "error", err)
		return out, fmt.Errorf("hash %s: %w", abs, err)
	}

	existing, err := i.docs.GetByFamilyAndHash(ctx, i.owner.FamilyID, out.HashHex)
	switch {
	case err == nil:
		out.DocumentID = existing.ID
		out.Deduplicated = true
		if existing.ParsingStatus != constants.ParsingStatusFailed {
			i.logger.Info("ingest.deduplicated", "path", abs, "document_id", existing.ID, "status", existing.ParsingStatus)
			return out, nil
		}
		return i.enqueue(ctx, out, existing)
	case !errors.Is(err, common.ErrNotFound):
		return out, err
	}

	doc := &entity.Document{
		FamilyID:      i.owner.FamilyID,
		PatientID:     i.owner.PatientID,
		UserID:        i.owner.UserID,
		FileURL:       abs,
		FileType:      out.FileType,
		ContentHash:   out.HashHex,
		ParsingStatus: constants.ParsingStatusPending,
	}
	if err := i.docs.Create(ctx, doc); err != nil {
		return out, err
	}
	out.DocumentID = doc.ID
	i.logger.Info("ingest.registered", "path", abs, "document_id", doc.ID, "file_type", doc.FileType)
	return i.enqueue(ctx, out, doc)
}

func (i *Inbox) enqueue(ctx context.Context, out Result, doc *entity.Document) (Result, error) {
	job, err := pipeline.NewDocumentJob(entity.PipelineJob{
		DocumentID: doc.ID,
		FamilyID:   doc.FamilyID,
		PatientID:  doc.PatientID,
		UserID:     doc.UserID,
		FileURL:    doc.FileURL,
		FileType:   doc.FileType,
	})
	if err != nil {
		return out, err
	}
	if err := i.queue.Enqueue(ctx, job); err != nil {
		i.logger.Error("ingest.enqueue.failed", "document_id", doc.ID, "error", err)
		return out, fmt.Errorf("enqueue %s: %w", doc.ID, err)
	}
	out.Enqueued = true
	i.logger.Info("ingest.enqueued", "document_id", doc.ID, "job_id", job.ID)
	return out, nil
}
