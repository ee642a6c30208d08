package entity

import "github.com/google/uuid"

// PipelineJob is the inbound payload for one document-processing run.
type PipelineJob struct {
	DocumentID uuid.UUID  `json:"documentId"`
	FamilyID   uuid.UUID  `json:"familyId"`
	PatientID  *uuid.UUID `json:"patientId,omitempty"`
	UserID     string     `json:"userId"`
	FileURL    string     `json:"fileUrl"`
	FileType   string     `json:"fileType"`
}
