package entity

import "github.com/google/uuid"

// JournalEntry is a care-journal note created from a visit summary.
type JournalEntry struct {
	ID         uuid.UUID  `json:"id"`
	FamilyID   uuid.UUID  `json:"family_id"`
	PatientID  *uuid.UUID `json:"patient_id,omitempty"`
	DocumentID uuid.UUID  `json:"document_id"`
	ProviderID *uuid.UUID `json:"provider_id,omitempty"`
	UserID     string     `json:"user_id"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	EntryDate  string     `json:"entry_date,omitempty"`
}
