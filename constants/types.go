package constants

// DocumentType is the closed set of document classifications returned by extraction.
type DocumentType string

const (
	DocumentMedicalRecord DocumentType = "MEDICAL_RECORD"
	DocumentFinancial     DocumentType = "FINANCIAL"
	DocumentLegal         DocumentType = "LEGAL"
	DocumentInsurance     DocumentType = "INSURANCE"
	DocumentOther         DocumentType = "OTHER"
)

var DocumentTypes = []DocumentType{
	DocumentMedicalRecord, DocumentFinancial, DocumentLegal, DocumentInsurance, DocumentOther,
}

// RecommendationType is the closed taxonomy for caregiver action items.
type RecommendationType string

const (
	RecMedication RecommendationType = "MEDICATION"
	RecExercise   RecommendationType = "EXERCISE"
	RecDiet       RecommendationType = "DIET"
	RecTherapy    RecommendationType = "THERAPY"
	RecMonitoring RecommendationType = "MONITORING"
	RecFollowUp   RecommendationType = "FOLLOWUP"
	RecTests      RecommendationType = "TESTS"
	RecLifestyle  RecommendationType = "LIFESTYLE"
)

// Priority of a recommendation.
type Priority string

const (
	PriorityUrgent Priority = "URGENT"
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// ProviderType classifies a care provider.
type ProviderType string

const (
	ProviderPhysician  ProviderType = "PHYSICIAN"
	ProviderSpecialist ProviderType = "SPECIALIST"
	ProviderTherapist  ProviderType = "THERAPIST"
	ProviderPharmacist ProviderType = "PHARMACIST"
	ProviderFacility   ProviderType = "FACILITY"
)

// MatchType is the Matching Engine's classification of a mention.
type MatchType string

const (
	MatchExact        MatchType = "exact"
	MatchDosageChange MatchType = "dosage_change"
	MatchFuzzy        MatchType = "fuzzy"
	MatchNone         MatchType = "none"
)

// ReconciliationCase tags which branch of reconciliation produced a recommendation.
type ReconciliationCase string

const (
	CaseNew          ReconciliationCase = "new"
	CaseDosageChange ReconciliationCase = "dosage_change"
	CaseDiscontinued ReconciliationCase = "discontinued"
	CaseFuzzyMatch   ReconciliationCase = "fuzzy_match"
)
