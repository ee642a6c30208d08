// Package reconcile compares the medications mentioned in a document with a
// patient's active medication list and turns the differences into recommendations.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/entity"
	"github.com/joseph-ayodele/care-records/internal/matching"
	"github.com/joseph-ayodele/care-records/internal/recommend"
)

// discontinuedMarkers in a mention's own status mean the document itself says it was stopped.
var discontinuedMarkers = []string{"not", "discontinued", "stopped"}

type Engine struct {
	meds    matching.MedicationSource
	matcher *matching.Engine
	logger  *slog.Logger
}

func NewEngine(meds matching.MedicationSource, matcher *matching.Engine, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if matcher == nil {
		matcher = matching.NewEngine(meds, logger)
	}
	return &Engine{meds: meds, matcher: matcher, logger: logger}
}

// Reconcile classifies every mention and flags active medications the document never mentions.
// It is all-or-nothing: on any error the result is empty with zeroed stats.
func (e *Engine) Reconcile(ctx context.Context, patientID uuid.UUID, mentions []entity.DocumentMedicationMention) (res entity.ReconciliationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = common.ReconciliationFailure("reconcile", fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			res = emptyResult()
			e.logger.Error("reconcile.failed", "patient_id", patientID, "error", err)
		}
	}()

	meds, err := e.meds.ActiveMedications(ctx, patientID)
	if err != nil {
		return emptyResult(), common.ReconciliationFailure("load active medications", err)
	}
	active := make([]entity.ExistingMedication, 0, len(meds))
	for _, m := range meds {
		if m.Active {
			active = append(active, m)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID.String() < active[j].ID.String() })

	res = emptyResult()
	res.Stats.TotalDocumentMeds = len(mentions)
	matched := make(map[uuid.UUID]struct{})

	for i := range mentions {
		if err := ctx.Err(); err != nil {
			return emptyResult(), common.ReconciliationFailure("reconcile", err)
		}
		mention := mentions[i]
		if statedDiscontinued(mention.Status) {
			res.Stats.SkippedDiscontinued++
			continue
		}

		m := e.matcher.Match(mention.Name, mention.Dosage, active)
		if m.Medication != nil {
			matched[m.Medication.ID] = struct{}{}
		}

		switch m.Type {
		case constants.MatchExact:
			res.Stats.ExactMatches++
		case constants.MatchDosageChange:
			res.Stats.DosageChanges++
			res.Recommendations = append(res.Recommendations, dosageChange(patientID, mention, m))
		case constants.MatchFuzzy:
			res.Stats.FuzzyMatches++
			res.Recommendations = append(res.Recommendations, verifyFuzzy(patientID, mention, m))
		default:
			res.Stats.NewMedications++
			res.Recommendations = append(res.Recommendations, newMedication(patientID, mention, m))
		}
	}

	for _, med := range active {
		if _, ok := matched[med.ID]; ok {
			continue
		}
		res.Stats.DiscontinuedMedications++
		res.Recommendations = append(res.Recommendations, notListed(patientID, med))
	}

	e.logger.Info("reconcile.ok",
		"patient_id", patientID,
		"total", res.Stats.TotalDocumentMeds,
		"exact", res.Stats.ExactMatches,
		"dosage_changes", res.Stats.DosageChanges,
		"fuzzy", res.Stats.FuzzyMatches,
		"new", res.Stats.NewMedications,
		"skipped", res.Stats.SkippedDiscontinued,
		"discontinued", res.Stats.DiscontinuedMedications,
	)
	return res, nil
}

func statedDiscontinued(status string) bool {
	s := strings.ToLower(status)
	for _, marker := range discontinuedMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func emptyResult() entity.ReconciliationResult {
	return entity.ReconciliationResult{Recommendations: []entity.Recommendation{}}
}

func dosageChange(patientID uuid.UUID, mention entity.DocumentMedicationMention, m entity.MedicationMatch) entity.Recommendation {
	med := m.Medication
	desc := fmt.Sprintf("This document lists %s at %s, but the medication list has %s. Confirm the current dose with the prescriber and update the list if it changed.",
		mention.Name, orUnknown(mention.Dosage), orUnknown(med.Dosage))
	return medicationRec(patientID, &med.ID, constants.RecMedication, constants.PriorityHigh,
		"Dosage change: "+med.Name, desc, constants.CaseDosageChange, m, mention)
}

func verifyFuzzy(patientID uuid.UUID, mention entity.DocumentMedicationMention, m entity.MedicationMatch) entity.Recommendation {
	med := m.Medication
	desc := fmt.Sprintf("%q in this document may be %s from the medication list (similarity %.0f%%). Verify whether they are the same medication.",
		mention.Name, med.Name, m.Confidence*100)
	return medicationRec(patientID, &med.ID, constants.RecMedication, constants.PriorityMedium,
		"Verify medication: "+mention.Name, desc, constants.CaseFuzzyMatch, m, mention)
}

func newMedication(patientID uuid.UUID, mention entity.DocumentMedicationMention, m entity.MedicationMatch) entity.Recommendation {
	priority := constants.PriorityMedium
	desc := fmt.Sprintf("%s is not on the current medication list.", strings.TrimSpace(mention.Name+" "+mention.Dosage))
	if class, ok := CriticalClass(mention.Name); ok {
		priority = constants.PriorityHigh
		desc += fmt.Sprintf(" It is a high-risk medication (%s).", class)
	}
	desc += " Review it and add it to the list if the patient is taking it."
	return medicationRec(patientID, nil, constants.RecMedication, priority,
		"New medication: "+mention.Name, desc, constants.CaseNew, m, mention)
}

func notListed(patientID uuid.UUID, med entity.ExistingMedication) entity.Recommendation {
	desc := fmt.Sprintf("%s is on the active medication list but was not listed in this visit. Confirm the patient is still taking it.",
		strings.TrimSpace(med.Name+" "+med.Dosage))
	return entity.Recommendation{
		PatientID:    &patientID,
		MedicationID: &med.ID,
		Type:         constants.RecMonitoring,
		Title:        recommend.Title("Not listed in this visit: " + med.Name),
		Description:  desc,
		Priority:     constants.PriorityMedium,
		Status:       constants.RecommendationPending,
		Metadata:     &entity.RecommendationMetadata{Case: constants.CaseDiscontinued, Source: "reconciliation"},
	}
}

func medicationRec(patientID uuid.UUID, medID *uuid.UUID, typ constants.RecommendationType, priority constants.Priority,
	title, desc string, c constants.ReconciliationCase, m entity.MedicationMatch, mention entity.DocumentMedicationMention,
) entity.Recommendation {
	return entity.Recommendation{
		PatientID:    &patientID,
		MedicationID: medID,
		Type:         typ,
		Title:        recommend.Title(title),
		Description:  desc,
		Priority:     priority,
		Status:       constants.RecommendationPending,
		Metadata: &entity.RecommendationMetadata{
			Case:       c,
			Confidence: m.Confidence,
			Mention:    &mention,
			NearMiss:   m.NearMiss,
			Source:     "reconciliation",
		},
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "an unstated dose"
	}
	return s
}
