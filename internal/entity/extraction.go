package entity

import "github.com/joseph-ayodele/care-records/constants"

// ExtractionRecord is the validated, normalized output of document parsing.
// Lists are never nil after Normalize; an empty string means the scalar is absent.
type ExtractionRecord struct {
	DocumentType    constants.DocumentType      `json:"documentType"`
	Patient         *PatientInfo                `json:"patient,omitempty"`
	Visit           *VisitInfo                  `json:"visit,omitempty"`
	Diagnoses       []Diagnosis                 `json:"diagnoses"`
	Medications     []DocumentMedicationMention `json:"medications"`
	Allergies       []Allergy                   `json:"allergies"`
	Procedures      []Procedure                 `json:"procedures"`
	Recommendations []ExtractedRecommendation   `json:"recommendations"`
	Warnings        []string                    `json:"warnings"`
}

type PatientInfo struct {
	Name        string `json:"name,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	MRN         string `json:"mrn,omitempty"`
}

type VisitInfo struct {
	Date     string        `json:"date,omitempty"`
	Facility string        `json:"facility,omitempty"`
	Summary  string        `json:"summary,omitempty"`
	Provider *ProviderInfo `json:"provider,omitempty"`
}

// ProviderInfo is the provider as written on the document, before upsert.
type ProviderInfo struct {
	Name      string `json:"name,omitempty"`
	Specialty string `json:"specialty,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
}

type Diagnosis struct {
	Condition string `json:"condition"`
	ICDCode   string `json:"icdCode,omitempty"`
	Status    string `json:"status,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// DocumentMedicationMention is one medication as mentioned in a document.
type DocumentMedicationMention struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Route     string `json:"route,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	Status    string `json:"status,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type Allergy struct {
	Allergen string `json:"allergen"`
	Reaction string `json:"reaction,omitempty"`
	Severity string `json:"severity,omitempty"`
}

type Procedure struct {
	Name  string `json:"name"`
	Date  string `json:"date,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// ExtractedRecommendation is a free-text recommendation from the document.
type ExtractedRecommendation struct {
	Text     string `json:"text"`
	Priority string `json:"priority,omitempty"`
	Category string `json:"category,omitempty"`
}

// Normalize fills defaults so downstream code never sees nil lists or an unknown document type.
func (r *ExtractionRecord) Normalize() {
	if !validDocumentType(r.DocumentType) {
		r.DocumentType = constants.DocumentOther
	}
	if r.Diagnoses == nil {
		r.Diagnoses = []Diagnosis{}
	}
	if r.Medications == nil {
		r.Medications = []DocumentMedicationMention{}
	}
	if r.Allergies == nil {
		r.Allergies = []Allergy{}
	}
	if r.Procedures == nil {
		r.Procedures = []Procedure{}
	}
	if r.Recommendations == nil {
		r.Recommendations = []ExtractedRecommendation{}
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
}

func validDocumentType(t constants.DocumentType) bool {
	for _, v := range constants.DocumentTypes {
		if v == t {
			return true
		}
	}
	return false
}
