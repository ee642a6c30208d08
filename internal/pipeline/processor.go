// Package pipeline drives one document from PENDING through parsing to
// COMPLETED or FAILED, then enriches the parsed record.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/internal/autopop"
	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/entity"
	"github.com/joseph-ayodele/care-records/internal/events"
	"github.com/joseph-ayodele/care-records/internal/extraction"
)

// DefaultDomainHint steers the model toward care-record vocabulary.
const DefaultDomainHint = "medical"

type Parser interface {
	Parse(ctx context.Context, src extraction.Source, domainHint string, obs extraction.Observer) (extraction.Result, error)
}

type DocumentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, parsed json.RawMessage) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type Reconciler interface {
	Reconcile(ctx context.Context, patientID uuid.UUID, mentions []entity.DocumentMedicationMention) (entity.ReconciliationResult, error)
}

type Populator interface {
	Populate(ctx context.Context, doc entity.Document, rec entity.ExtractionRecord) (autopop.Outcome, error)
}

type RecommendationStore interface {
	CreateRecommendations(ctx context.Context, recs []entity.Recommendation) error
}

// ParsedData is what a COMPLETED document stores as parsed_data. Raw carries the
// model's object as returned when it failed schema validation.
type ParsedData struct {
	entity.ExtractionRecord
	Validated bool            `json:"validated"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

type Processor struct {
	parser     Parser
	docs       DocumentStore
	populator  Populator
	reconciler Reconciler
	recs       RecommendationStore
	publisher  events.Publisher
	domainHint string
	logger     *slog.Logger
}

type Option func(*Processor)

func WithPublisher(p events.Publisher) Option {
	return func(pr *Processor) {
		if p != nil {
			pr.publisher = p
		}
	}
}

func WithDomainHint(h string) Option {
	return func(pr *Processor) {
		if h != "" {
			pr.domainHint = h
		}
	}
}

func NewProcessor(
	parser Parser,
	docs DocumentStore,
	populator Populator,
	reconciler Reconciler,
	recs RecommendationStore,
	logger *slog.Logger,
	opts ...Option,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		parser:     parser,
		docs:       docs,
		populator:  populator,
		reconciler: reconciler,
		recs:       recs,
		publisher:  events.NewLogPublisher(logger),
		domainHint: DefaultDomainHint,
		logger:     logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process parses the job's document and persists the outcome. A parse failure marks
// the document FAILED and is returned so the queue can retry. Enrichment failures
// never fail the call; they degrade the returned summary instead.
func (p *Processor) Process(ctx context.Context, job entity.PipelineJob) (Summary, error) {
	start := time.Now()
	log := p.logger.With("document_id", job.DocumentID, "family_id", job.FamilyID)
	if jobID := common.JobIDFromContext(ctx); jobID != "" {
		log = log.With("job_id", jobID)
	}
	if reqID := common.RequestIDFromContext(ctx); reqID != "" {
		log = log.With("req_id", reqID)
	}

	if err := p.docs.MarkProcessing(ctx, job.DocumentID); err != nil {
		log.Error("pipeline.processing.persist_failed", "error", err)
		return Summary{}, err
	}
	p.publish(ctx, events.NewEvent(events.TypeDocumentProcessing, job.DocumentID, job.FamilyID, map[string]any{"fileType": job.FileType}))

	res, err := p.parse(ctx, job, log)
	if err != nil {
		p.fail(ctx, job, err, log)
		return Summary{}, err
	}

	parsed, err := json.Marshal(parsedData(res))
	if err != nil {
		err = common.PersistenceFailure("encode parsed data", err)
		p.fail(ctx, job, err, log)
		return Summary{}, err
	}
	if err := p.docs.MarkCompleted(ctx, job.DocumentID, parsed); err != nil {
		p.fail(ctx, job, err, log)
		return Summary{}, err
	}
	log.Info("pipeline.parse.completed",
		"document_type", res.Record.DocumentType,
		"validated", res.Validated,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	p.publish(ctx, events.NewEvent(events.TypeDocumentCompleted, job.DocumentID, job.FamilyID, map[string]any{
		"documentType": res.Record.DocumentType,
		"validated":    res.Validated,
		"medications":  len(res.Record.Medications),
	}))

	job = p.resolvePatient(ctx, job, log)
	summary := p.enrich(ctx, job, res.Record, log)
	summary.ValidationWarnings = len(res.Warnings)

	log.Info("pipeline.done",
		"degraded", summary.Degraded(),
		"recommendations", summary.Recommendations,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	p.publish(ctx, events.NewEvent(events.TypeDocumentEnriched, job.DocumentID, job.FamilyID, summary.Data()))
	return summary, nil
}

// resolvePatient fills a missing patient from the document row. A failed lookup
// leaves the job as it is; enrichment then runs without reconciliation.
func (p *Processor) resolvePatient(ctx context.Context, job entity.PipelineJob, log *slog.Logger) entity.PipelineJob {
	if job.PatientID != nil {
		return job
	}
	doc, err := p.docs.GetByID(ctx, job.DocumentID)
	if err != nil {
		log.Warn("pipeline.patient.lookup_failed", "error", err)
		return job
	}
	if doc.PatientID != nil {
		job.PatientID = doc.PatientID
		log.Debug("pipeline.patient.resolved", "patient_id", *doc.PatientID)
	}
	if job.UserID == "" {
		job.UserID = doc.UserID
	}
	return job
}

func (p *Processor) parse(ctx context.Context, job entity.PipelineJob, log *slog.Logger) (extraction.Result, error) {
	deltas := 0
	obs := func(e extraction.Event) {
		switch e.Type {
		case extraction.EventStatus:
			if e.Stage == extraction.StageValidationWarning {
				log.Warn("pipeline.parse.validation_warning", "warnings", e.Warnings)
				return
			}
			log.Debug("pipeline.parse.stage", "stage", e.Stage)
		case extraction.EventDelta:
			deltas++
		case extraction.EventError:
			log.Warn("pipeline.parse.error_event", "error", e.Err)
		}
	}
	res, err := p.parser.Parse(ctx, extraction.Source{URL: job.FileURL, MIMEType: job.FileType}, p.domainHint, obs)
	log.Debug("pipeline.parse.stream", "deltas", deltas)
	return res, err
}

// fail records FAILED. The original error stays the one returned to the queue.
func (p *Processor) fail(ctx context.Context, job entity.PipelineJob, cause error, log *slog.Logger) {
	log.Error("pipeline.parse.failed", "kind", common.KindOf(cause), "error", cause)
	if err := p.docs.MarkFailed(context.WithoutCancel(ctx), job.DocumentID, cause.Error()); err != nil {
		log.Error("pipeline.failed.persist_failed", "error", err)
	}
	p.publish(ctx, events.NewEvent(events.TypeDocumentFailed, job.DocumentID, job.FamilyID, map[string]any{
		"kind":  common.KindOf(cause),
		"error": cause.Error(),
	}))
}

func (p *Processor) publish(ctx context.Context, e events.Event) {
	if err := p.publisher.Publish(ctx, e); err != nil {
		p.logger.Warn("pipeline.event.publish_failed", "event_type", e.Type, "document_id", e.DocumentID, "error", err)
	}
}

func parsedData(res extraction.Result) ParsedData {
	pd := ParsedData{ExtractionRecord: res.Record, Validated: res.Validated}
	if !res.Validated {
		pd.Raw = res.Raw
	}
	if len(res.Warnings) > 0 {
		pd.Warnings = append(append([]string{}, pd.Warnings...), res.Warnings...)
	}
	return pd
}

func documentOf(job entity.PipelineJob) entity.Document {
	return entity.Document{
		ID:        job.DocumentID,
		FamilyID:  job.FamilyID,
		PatientID: job.PatientID,
		UserID:    job.UserID,
		FileURL:   job.FileURL,
		FileType:  job.FileType,
	}
}

func stepError(step string, err error) string {
	return fmt.Sprintf("%s: %v", step, err)
}
