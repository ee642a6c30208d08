package repository

import (
	"context"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/entity"
)

type JournalRepository interface {
	CreateJournalEntry(ctx context.Context, e *entity.JournalEntry) error
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]entity.JournalEntry, error)
}

type journalRepo struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewJournalRepository(drv *entsql.Driver, logger *slog.Logger) JournalRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &journalRepo{drv: drv, logger: logger}
}

var journalColumns = []string{
	"id", "family_id", "patient_id", "document_id", "provider_id", "user_id", "title", "content", "entry_date",
}

func (r *journalRepo) CreateJournalEntry(ctx context.Context, e *entity.JournalEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	q, args := entsql.Dialect(r.drv.Dialect()).
		Insert(tableJournalEntries).
		Columns(journalColumns...).
		Values(e.ID, e.FamilyID, nullUUID(e.PatientID), e.DocumentID, nullUUID(e.ProviderID),
			e.UserID, e.Title, e.Content, e.EntryDate).
		Query()
	if _, err := exec(ctx, r.drv, q, args); err != nil {
		r.logger.Error("failed to create journal entry", "document_id", e.DocumentID, "error", err)
		return common.PersistenceFailure("create journal entry", err)
	}
	return nil
}

func (r *journalRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]entity.JournalEntry, error) {
	q, args := entsql.Dialect(r.drv.Dialect()).
		Select(journalColumns...).
		From(entsql.Table(tableJournalEntries)).
		Where(entsql.EQ("document_id", documentID)).
		OrderBy("id").
		Query()

	var out []entity.JournalEntry
	err := query(ctx, r.drv, q, args, func(rows *entsql.Rows) error {
		var (
			e                 entity.JournalEntry
			patient, provider uuid.NullUUID
		)
		if err := rows.Scan(&e.ID, &e.FamilyID, &patient, &e.DocumentID, &provider,
			&e.UserID, &e.Title, &e.Content, &e.EntryDate); err != nil {
			return err
		}
		e.PatientID, e.ProviderID = uuidPtr(patient), uuidPtr(provider)
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, common.PersistenceFailure("list journal entries", err)
	}
	return out, nil
}
