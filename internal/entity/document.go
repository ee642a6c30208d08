package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/constants"
)

// Document is an uploaded care-record file and its parsing lifecycle.
type Document struct {
	ID            uuid.UUID               `json:"id"`
	FamilyID      uuid.UUID               `json:"family_id"`
	PatientID     *uuid.UUID              `json:"patient_id,omitempty"`
	UserID        string                  `json:"user_id"`
	FileURL       string                  `json:"file_url"`
	FileType      string                  `json:"file_type"`
	ContentHash   string                  `json:"content_hash,omitempty"`
	ParsingStatus constants.ParsingStatus `json:"parsing_status"`
	ParsedData    json.RawMessage         `json:"parsed_data,omitempty"`
	ParseError    string                  `json:"parse_error,omitempty"`
	Attempts      int                     `json:"attempts"`
	StatusAt      time.Time               `json:"status_at"`
}
