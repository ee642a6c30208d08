package pipeline

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/care-records/internal/entity"
)

// Summary is what enrichment produced for one document.
type Summary struct {
	ProviderName       string
	ProviderCreated    bool
	ProviderUpdated    bool
	JournalCreated     bool
	Reconciled         bool
	Stats              entity.ReconciliationStats
	Recommendations    int
	ValidationWarnings int
	Errors             []string
}

// Degraded reports whether any enrichment step failed.
func (s Summary) Degraded() bool { return len(s.Errors) > 0 }

// String is a one-line digest for the user who uploaded the document.
func (s Summary) String() string {
	var parts []string
	switch {
	case s.ProviderCreated:
		parts = append(parts, fmt.Sprintf("added provider %s", s.ProviderName))
	case s.ProviderUpdated:
		parts = append(parts, fmt.Sprintf("updated provider %s", s.ProviderName))
	}
	if s.JournalCreated {
		parts = append(parts, "created a journal entry")
	}
	if s.Reconciled {
		parts = append(parts,
			plural(s.Stats.DosageChanges, "dosage change", "dosage changes"),
			plural(s.Stats.NewMedications, "new medication", "new medications"),
			plural(s.Stats.DiscontinuedMedications, "potentially discontinued medication", "potentially discontinued medications"),
		)
	}
	parts = append(parts, plural(s.Recommendations, "recommendation", "recommendations"))
	if s.Reconciled {
		parts = append(parts, fmt.Sprintf("%d matched to existing items", s.Stats.Matched()))
	}

	head := "Document processed"
	if s.Degraded() {
		head = "Document parsed successfully but enrichment encountered errors"
	}
	return head + ": " + strings.Join(parts, ", ") + "."
}

// Data is the summary as an event payload.
func (s Summary) Data() map[string]any {
	return map[string]any{
		"summary":            s.String(),
		"degraded":           s.Degraded(),
		"providerCreated":    s.ProviderCreated,
		"providerUpdated":    s.ProviderUpdated,
		"journalCreated":     s.JournalCreated,
		"stats":              s.Stats,
		"recommendations":    s.Recommendations,
		"validationWarnings": s.ValidationWarnings,
		"errors":             s.Errors,
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return fmt.Sprintf("%d %s", n, many)
}
