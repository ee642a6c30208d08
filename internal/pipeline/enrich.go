package pipeline

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/entity"
	"github.com/joseph-ayodele/care-records/internal/recommend"
)

// enrich runs auto-population, reconciliation and recommendation generation.
// Each step fails on its own; reconciliation always completes before anything is stored.
func (p *Processor) enrich(ctx context.Context, job entity.PipelineJob, rec entity.ExtractionRecord, log *slog.Logger) Summary {
	var s Summary
	doc := documentOf(job)

	if p.populator != nil {
		out, err := p.populator.Populate(ctx, doc, rec)
		if err != nil {
			log.Error("pipeline.enrich.autopop_failed", "error", err)
			s.Errors = append(s.Errors, stepError("auto-population", err))
		}
		if out.Provider.Provider != nil {
			s.ProviderName = out.Provider.Provider.Name
			s.ProviderCreated = out.Provider.Created
			s.ProviderUpdated = out.Provider.Updated
		}
		s.JournalCreated = out.Journal != nil
	}

	var recs []entity.Recommendation
	switch {
	case len(rec.Medications) == 0:
	case job.PatientID == nil:
		log.Info("pipeline.enrich.reconcile_skipped", "reason", "no patient", "medications", len(rec.Medications))
	case p.reconciler != nil:
		result, err := p.reconciler.Reconcile(ctx, *job.PatientID, rec.Medications)
		if err != nil {
			log.Error("pipeline.enrich.reconcile_failed", "kind", common.KindOf(err), "error", err)
			s.Errors = append(s.Errors, stepError("reconciliation", err))
			break
		}
		s.Reconciled = true
		s.Stats = result.Stats
		recs = append(recs, result.Recommendations...)
	}

	for _, r := range rec.Recommendations {
		if out, ok := recommend.FromExtracted(r); ok {
			recs = append(recs, out)
		}
	}

	if len(recs) > 0 && p.recs != nil {
		for i := range recs {
			recs[i].DocumentID = job.DocumentID
			recs[i].FamilyID = job.FamilyID
			if recs[i].PatientID == nil {
				recs[i].PatientID = job.PatientID
			}
		}
		if err := p.recs.CreateRecommendations(ctx, recs); err != nil {
			log.Error("pipeline.enrich.recommendations_failed", "count", len(recs), "error", err)
			s.Errors = append(s.Errors, stepError("recommendations", err))
		} else {
			s.Recommendations = len(recs)
		}
	}
	return s
}
