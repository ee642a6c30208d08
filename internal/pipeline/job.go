package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/internal/async"
	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/entity"
)

const (
	QueueDocuments      = "documents"
	QueueMaintenance    = "maintenance"
	KindProcessDocument = "document.process"
	KindSweep           = "maintenance.sweep"
	SweepKey            = "maintenance:stale-documents"
)

// ValidateJob checks an inbound job payload before any state is touched.
func ValidateJob(j entity.PipelineJob) error {
	v := common.NewValidator()
	v.Field("documentId", j.DocumentID, common.Required)
	v.Field("familyId", j.FamilyID, common.Required)
	v.Field("userId", j.UserID, common.Required, common.MaxLength(128))
	v.Field("fileUrl", j.FileURL, common.Required, common.SourceURL, common.MaxLength(2048))
	v.Field("fileType", j.FileType, common.Required, common.MaxLength(255))
	return v.Err()
}

// NewDocumentJob wraps a pipeline job for the documents queue.
func NewDocumentJob(j entity.PipelineJob) (async.Job, error) {
	if err := ValidateJob(j); err != nil {
		return async.Job{}, err
	}
	return async.NewJob(QueueDocuments, KindProcessDocument, j)
}

// Handle is the documents-queue handler. Malformed payloads and unsupported MIME
// types are not retried; every other parse failure is.
func (p *Processor) Handle(ctx context.Context, job async.Job) error {
	ctx = common.WithJobID(ctx, job.ID)
	var pj entity.PipelineJob
	if err := job.Decode(&pj); err != nil {
		return async.Permanent(fmt.Errorf("decode job %s: %w", job.ID, err))
	}
	if err := ValidateJob(pj); err != nil {
		return async.Permanent(err)
	}

	summary, err := p.Process(ctx, pj)
	if err != nil {
		if common.IsKind(err, common.KindUnsupportedMimeType) {
			return async.Permanent(err)
		}
		return err
	}
	p.logger.Info("pipeline.summary", "document_id", pj.DocumentID, "job_id", job.ID, "summary", summary.String())
	return nil
}

// OnExhausted runs when a document job has used all its attempts. The document is
// already FAILED unless the last failure happened before PROCESSING was recorded.
func (p *Processor) OnExhausted(ctx context.Context, job async.Job, cause error) {
	var pj entity.PipelineJob
	if err := job.Decode(&pj); err != nil || pj.DocumentID == uuid.Nil {
		p.logger.Error("pipeline.job.exhausted", "job_id", job.ID, "attempts", job.Attempt, "error", cause)
		return
	}
	p.logger.Error("pipeline.job.exhausted", "job_id", job.ID, "document_id", pj.DocumentID, "attempts", job.Attempt, "error", cause)
	if err := p.docs.MarkFailed(ctx, pj.DocumentID, cause.Error()); err != nil {
		p.logger.Warn("pipeline.job.exhausted.mark_failed", "document_id", pj.DocumentID, "error", err)
	}
}

// SweepHandler returns the maintenance-queue handler for stale-document sweeps.
func SweepHandler(s *Sweeper, logger *slog.Logger) async.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, job async.Job) error {
		if job.Kind != KindSweep {
			return async.Permanent(fmt.Errorf("unknown maintenance job kind %q", job.Kind))
		}
		start := time.Now()
		n, err := s.Sweep(ctx)
		if err != nil {
			return err
		}
		logger.Info("maintenance.sweep.done", "job_id", job.ID, "failed", n, "elapsed_ms", time.Since(start).Milliseconds())
		return nil
	}
}
