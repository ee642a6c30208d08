package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/entity"
)

// RecommendationFilter narrows ListRecommendations. Zero values match everything.
type RecommendationFilter struct {
	FamilyID   uuid.UUID
	DocumentID uuid.UUID
	PatientID  uuid.UUID
	Status     string
}

type RecommendationRepository interface {
	// CreateRecommendations inserts all recs in one transaction.
	CreateRecommendations(ctx context.Context, recs []entity.Recommendation) error
	ListRecommendations(ctx context.Context, f RecommendationFilter) ([]entity.Recommendation, error)
}

type recommendationRepo struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewRecommendationRepository(drv *entsql.Driver, logger *slog.Logger) RecommendationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &recommendationRepo{drv: drv, logger: logger}
}

var recommendationColumns = []string{
	"id", "document_id", "family_id", "patient_id", "medication_id", "type", "title",
	"description", "priority", "status", "metadata", "created_at",
}

func (r *recommendationRepo) CreateRecommendations(ctx context.Context, recs []entity.Recommendation) (err error) {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.drv.Tx(ctx)
	if err != nil {
		return common.PersistenceFailure("begin recommendations tx", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Warn("rollback failed", "error", rbErr)
			}
		}
	}()

	now := time.Now().Unix()
	b := entsql.Dialect(r.drv.Dialect())
	for i := range recs {
		rec := &recs[i]
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		if rec.Status == "" {
			rec.Status = constants.RecommendationPending
		}
		meta, mErr := marshalMetadata(rec.Metadata)
		if mErr != nil {
			return common.PersistenceFailure("encode recommendation metadata", mErr)
		}
		q, args := b.Insert(tableRecommendations).
			Columns(recommendationColumns...).
			Values(rec.ID, rec.DocumentID, rec.FamilyID, nullUUID(rec.PatientID), nullUUID(rec.MedicationID),
				string(rec.Type), rec.Title, rec.Description, string(rec.Priority), rec.Status, meta, now).
			Query()
		if _, err = exec(ctx, tx, q, args); err != nil {
			r.logger.Error("failed to insert recommendation", "document_id", rec.DocumentID, "title", rec.Title, "error", err)
			return common.PersistenceFailure("create recommendation", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return common.PersistenceFailure("commit recommendations", err)
	}
	r.logger.Debug("recommendations stored", "count", len(recs))
	return nil
}

func (r *recommendationRepo) ListRecommendations(ctx context.Context, f RecommendationFilter) ([]entity.Recommendation, error) {
	var preds []*entsql.Predicate
	if f.FamilyID != uuid.Nil {
		preds = append(preds, entsql.EQ("family_id", f.FamilyID))
	}
	if f.DocumentID != uuid.Nil {
		preds = append(preds, entsql.EQ("document_id", f.DocumentID))
	}
	if f.PatientID != uuid.Nil {
		preds = append(preds, entsql.EQ("patient_id", f.PatientID))
	}
	if f.Status != "" {
		preds = append(preds, entsql.EQ("status", f.Status))
	}
	sel := entsql.Dialect(r.drv.Dialect()).
		Select(recommendationColumns...).
		From(entsql.Table(tableRecommendations))
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	q, args := sel.OrderBy("created_at", "document_id", "id").Query()

	var out []entity.Recommendation
	err := query(ctx, r.drv, q, args, func(rows *entsql.Rows) error {
		var (
			rec                 entity.Recommendation
			patient, medication uuid.NullUUID
			typ, priority       string
			meta                []byte
			created             int64
		)
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.FamilyID, &patient, &medication, &typ, &rec.Title,
			&rec.Description, &priority, &rec.Status, &meta, &created); err != nil {
			return err
		}
		rec.PatientID, rec.MedicationID = uuidPtr(patient), uuidPtr(medication)
		rec.Type = constants.RecommendationType(typ)
		rec.Priority = constants.Priority(priority)
		if len(meta) > 0 {
			rec.Metadata = &entity.RecommendationMetadata{}
			if err := json.Unmarshal(meta, rec.Metadata); err != nil {
				return fmt.Errorf("decode metadata of %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to list recommendations", "family_id", f.FamilyID, "error", err)
		return nil, common.PersistenceFailure("list recommendations", err)
	}
	return out, nil
}

func marshalMetadata(m *entity.RecommendationMetadata) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
