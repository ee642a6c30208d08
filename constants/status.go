package constants

// ParsingStatus is the canonical status stored on documents.parsing_status.
type ParsingStatus string

// Stable values (store these exact strings in DB).
const (
	ParsingStatusPending    ParsingStatus = "PENDING"    // registered, not yet picked up
	ParsingStatusProcessing ParsingStatus = "PROCESSING" // a worker owns the document
	ParsingStatusCompleted  ParsingStatus = "COMPLETED"  // extraction persisted
	ParsingStatusFailed     ParsingStatus = "FAILED"     // terminal for this attempt
)

// IsTerminal reports whether s is COMPLETED or FAILED.
func (s ParsingStatus) IsTerminal() bool {
	return s == ParsingStatusCompleted || s == ParsingStatusFailed
}

// RecommendationStatus values. The pipeline only ever writes pending.
const (
	RecommendationPending      = "pending"
	RecommendationAcknowledged = "acknowledged"
	RecommendationDismissed    = "dismissed"
)
