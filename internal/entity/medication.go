package entity

import (
	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/constants"
)

// ExistingMedication is a patient's persisted medication. Read-only to the pipeline.
type ExistingMedication struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	Name      string    `json:"name"`
	Dosage    string    `json:"dosage"`
	Frequency string    `json:"frequency"`
	Active    bool      `json:"active"`
}

// MedicationMatch is the Matching Engine's verdict for one mention.
type MedicationMatch struct {
	Type        constants.MatchType `json:"matchType"`
	Medication  *ExistingMedication `json:"medication,omitempty"`
	Confidence  float64             `json:"confidence"`
	Explanation string              `json:"explanation"`
	NearMiss    *NearMiss           `json:"nearMiss,omitempty"`
}

// NearMiss is the best fuzzy candidate that fell below the match floor.
type NearMiss struct {
	MedicationID uuid.UUID `json:"medicationId"`
	Name         string    `json:"name"`
	Score        float64   `json:"score"`
}
