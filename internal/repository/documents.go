package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/entity"
)

// ErrNoRows is returned when a conditional update matched nothing.
var ErrNoRows = errors.New("no rows affected")

type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	GetByFamilyAndHash(ctx context.Context, familyID uuid.UUID, hash string) (*entity.Document, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkCompleted(ctx context.Context, id uuid.UUID, parsed json.RawMessage) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	ListStale(ctx context.Context, status constants.ParsingStatus, before time.Time, limit int) ([]entity.Document, error)
}

type documentRepo struct {
	drv    *entsql.Driver
	logger *slog.Logger
	now    func() time.Time
}

func NewDocumentRepository(drv *entsql.Driver, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepo{drv: drv, logger: logger, now: time.Now}
}

var documentSelect = []string{
	"id", "family_id", "patient_id", "user_id", "file_url", "file_type", "content_hash",
	"parsing_status", "parsed_data", "parse_error", "attempts", "status_changed_at",
}

func (r *documentRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

func (r *documentRepo) Create(ctx context.Context, doc *entity.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.ParsingStatus == "" {
		doc.ParsingStatus = constants.ParsingStatusPending
	}
	doc.StatusAt = r.now().UTC().Truncate(time.Second)

	b := r.builder()
	q, args := b.Insert(tableDocuments).
		Columns("id", "family_id", "patient_id", "user_id", "file_url", "file_type", "content_hash",
			"parsing_status", "parsed_data", "parse_error", "attempts", "status_changed_at").
		Values(doc.ID, doc.FamilyID, nullUUID(doc.PatientID), doc.UserID, doc.FileURL, doc.FileType, doc.ContentHash,
			string(doc.ParsingStatus), jsonArg(doc.ParsedData), doc.ParseError, doc.Attempts, doc.StatusAt.Unix()).
		Query()
	if _, err := exec(ctx, r.drv, q, args); err != nil {
		r.logger.Error("failed to create document", "document_id", doc.ID, "family_id", doc.FamilyID, "error", err)
		return common.PersistenceFailure("create document", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	return r.getOne(ctx, entsql.EQ("id", id))
}

func (r *documentRepo) GetByFamilyAndHash(ctx context.Context, familyID uuid.UUID, hash string) (*entity.Document, error) {
	return r.getOne(ctx, entsql.And(entsql.EQ("family_id", familyID), entsql.EQ("content_hash", hash)))
}

func (r *documentRepo) getOne(ctx context.Context, where *entsql.Predicate) (*entity.Document, error) {
	b := r.builder()
	q, args := b.Select(documentSelect...).
		From(entsql.Table(tableDocuments)).
		Where(where).
		OrderBy("id").
		Limit(1).
		Query()
	docs, err := r.scan(ctx, q, args)
	if err != nil {
		return nil, common.PersistenceFailure("get document", err)
	}
	if len(docs) == 0 {
		return nil, common.ErrNotFound
	}
	return &docs[0], nil
}

// MarkProcessing moves a document to PROCESSING and counts the attempt. Completed
// documents are left alone.
func (r *documentRepo) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	b := r.builder()
	q, args := b.Update(tableDocuments).
		Set("parsing_status", string(constants.ParsingStatusProcessing)).
		Set("parse_error", "").
		Set("status_changed_at", r.now().Unix()).
		Add("attempts", 1).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.NEQ("parsing_status", string(constants.ParsingStatusCompleted)),
		)).
		Query()
	return r.update(ctx, id, constants.ParsingStatusProcessing, q, args)
}

func (r *documentRepo) MarkCompleted(ctx context.Context, id uuid.UUID, parsed json.RawMessage) error {
	b := r.builder()
	q, args := b.Update(tableDocuments).
		Set("parsing_status", string(constants.ParsingStatusCompleted)).
		Set("parsed_data", jsonArg(parsed)).
		Set("parse_error", "").
		Set("status_changed_at", r.now().Unix()).
		Where(entsql.EQ("id", id)).
		Query()
	return r.update(ctx, id, constants.ParsingStatusCompleted, q, args)
}

func (r *documentRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	b := r.builder()
	q, args := b.Update(tableDocuments).
		Set("parsing_status", string(constants.ParsingStatusFailed)).
		Set("parse_error", truncate(reason, 2000)).
		Set("status_changed_at", r.now().Unix()).
		Where(entsql.EQ("id", id)).
		Query()
	return r.update(ctx, id, constants.ParsingStatusFailed, q, args)
}

func (r *documentRepo) update(ctx context.Context, id uuid.UUID, status constants.ParsingStatus, q string, args []any) error {
	n, err := exec(ctx, r.drv, q, args)
	if err != nil {
		r.logger.Error("failed to update document status", "document_id", id, "status", status, "error", err)
		return common.PersistenceFailure(fmt.Sprintf("set document %s", status), err)
	}
	if n == 0 {
		return common.PersistenceFailure(fmt.Sprintf("set document %s", status), fmt.Errorf("document %s: %w", id, ErrNoRows))
	}
	r.logger.Debug("document status updated", "document_id", id, "status", status)
	return nil
}

// ListStale returns documents that have been in status since before the cutoff, oldest first.
func (r *documentRepo) ListStale(ctx context.Context, status constants.ParsingStatus, before time.Time, limit int) ([]entity.Document, error) {
	b := r.builder()
	sel := b.Select(documentSelect...).
		From(entsql.Table(tableDocuments)).
		Where(entsql.And(
			entsql.EQ("parsing_status", string(status)),
			entsql.LT("status_changed_at", before.Unix()),
		)).
		OrderBy("status_changed_at", "id")
	if limit > 0 {
		sel.Limit(limit)
	}
	q, args := sel.Query()
	docs, err := r.scan(ctx, q, args)
	if err != nil {
		return nil, common.PersistenceFailure("list stale documents", err)
	}
	return docs, nil
}

func (r *documentRepo) scan(ctx context.Context, q string, args []any) ([]entity.Document, error) {
	var out []entity.Document
	err := query(ctx, r.drv, q, args, func(rows *entsql.Rows) error {
		var (
			d       entity.Document
			patient uuid.NullUUID
			status  string
			parsed  []byte
			changed int64
		)
		if err := rows.Scan(&d.ID, &d.FamilyID, &patient, &d.UserID, &d.FileURL, &d.FileType, &d.ContentHash,
			&status, &parsed, &d.ParseError, &d.Attempts, &changed); err != nil {
			return err
		}
		d.PatientID = uuidPtr(patient)
		d.ParsingStatus = constants.ParsingStatus(status)
		if len(parsed) > 0 {
			d.ParsedData = json.RawMessage(parsed)
		}
		d.StatusAt = time.Unix(changed, 0).UTC()
		out = append(out, d)
		return nil
	})
	return out, err
}

// jsonArg binds raw JSON as text so both jsonb and SQLite json columns accept it.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
