package autopop

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/entity"
	"github.com/joseph-ayodele/care-records/internal/recommend"
)

// CreateJournalEntry records the visit summary with the record's diagnoses and
// follow-ups appended. Nothing is written when all three are empty.
func (p *Populator) CreateJournalEntry(ctx context.Context, doc entity.Document, rec entity.ExtractionRecord, providerID *uuid.UUID) (*entity.JournalEntry, error) {
	var visit entity.VisitInfo
	if rec.Visit != nil {
		visit = *rec.Visit
	}
	content := journalContent(visit.Summary, rec.Diagnoses, followUps(rec.Recommendations))
	if content == "" {
		return nil, nil
	}
	entry := &entity.JournalEntry{
		FamilyID:   doc.FamilyID,
		PatientID:  doc.PatientID,
		DocumentID: doc.ID,
		ProviderID: providerID,
		UserID:     doc.UserID,
		Title:      journalTitle(visit),
		Content:    content,
		EntryDate:  strings.TrimSpace(visit.Date),
	}
	if err := p.journal.CreateJournalEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("create journal entry: %w", err)
	}
	p.logger.Info("autopop.journal.created", "journal_id", entry.ID, "document_id", doc.ID,
		"diagnoses", len(rec.Diagnoses))
	return entry, nil
}

// followUps returns the texts of recommendations that classify as FOLLOWUP.
func followUps(recs []entity.ExtractedRecommendation) []string {
	var out []string
	for _, r := range recs {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		if recommend.ClassifyType(text, r.Category) == constants.RecFollowUp {
			out = append(out, text)
		}
	}
	return out
}

func journalContent(summary string, diagnoses []entity.Diagnosis, follow []string) string {
	var sections []string
	if s := strings.TrimSpace(summary); s != "" {
		sections = append(sections, s)
	}

	var dx []string
	for _, d := range diagnoses {
		c := strings.TrimSpace(d.Condition)
		if c == "" {
			continue
		}
		if code := strings.TrimSpace(d.ICDCode); code != "" {
			c += " (" + code + ")"
		}
		dx = append(dx, "- "+c)
	}
	if len(dx) > 0 {
		sections = append(sections, "Diagnoses:\n"+strings.Join(dx, "\n"))
	}

	if len(follow) > 0 {
		sections = append(sections, "Follow-ups:\n- "+strings.Join(follow, "\n- "))
	}
	return strings.Join(sections, "\n\n")
}

func journalTitle(v entity.VisitInfo) string {
	where := strings.TrimSpace(v.Facility)
	if where == "" && v.Provider != nil {
		where = strings.TrimSpace(v.Provider.Name)
	}
	title := "Visit summary"
	if where != "" {
		title = "Visit with " + where
	}
	if d := strings.TrimSpace(v.Date); d != "" {
		title += " (" + d + ")"
	}
	return title
}
