package entity

import (
	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/constants"
)

// Recommendation is a generated caregiver action item.
type Recommendation struct {
	ID           uuid.UUID                    `json:"id"`
	DocumentID   uuid.UUID                    `json:"document_id"`
	FamilyID     uuid.UUID                    `json:"family_id"`
	PatientID    *uuid.UUID                   `json:"patient_id,omitempty"`
	MedicationID *uuid.UUID                   `json:"medication_id,omitempty"`
	Type         constants.RecommendationType `json:"type"`
	Title        string                       `json:"title"`
	Description  string                       `json:"description"`
	Priority     constants.Priority           `json:"priority"`
	Status       string                       `json:"status"`
	Metadata     *RecommendationMetadata      `json:"metadata,omitempty"`
}

// RecommendationMetadata records which reconciliation branch produced a recommendation.
type RecommendationMetadata struct {
	Case       constants.ReconciliationCase `json:"case,omitempty"`
	Confidence float64                      `json:"confidence,omitempty"`
	Mention    *DocumentMedicationMention   `json:"mention,omitempty"`
	NearMiss   *NearMiss                    `json:"nearMiss,omitempty"`
	Source     string                       `json:"source,omitempty"`
}

// ReconciliationStats are the aggregate counters of one reconcile call.
type ReconciliationStats struct {
	TotalDocumentMeds       int `json:"totalDocumentMeds"`
	ExactMatches            int `json:"exactMatches"`
	NewMedications          int `json:"newMedications"`
	DosageChanges           int `json:"dosageChanges"`
	FuzzyMatches            int `json:"fuzzyMatches"`
	DiscontinuedMedications int `json:"discontinuedMedications"`
	SkippedDiscontinued     int `json:"skippedDiscontinued"`
}

// ReconciliationResult is the output of reconciling one document.
type ReconciliationResult struct {
	Recommendations []Recommendation    `json:"recommendations"`
	Stats           ReconciliationStats `json:"stats"`
}

// Matched is the number of mentions linked to an existing medication.
func (s ReconciliationStats) Matched() int {
	return s.ExactMatches + s.DosageChanges + s.FuzzyMatches
}
