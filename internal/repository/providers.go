package repository

import (
	"context"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/entity"
)

type ProviderRepository interface {
	ActiveProviders(ctx context.Context, familyID uuid.UUID) ([]entity.Provider, error)
	CreateProvider(ctx context.Context, p *entity.Provider) error
	UpdateProvider(ctx context.Context, p *entity.Provider) error
}

type providerRepo struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewProviderRepository(drv *entsql.Driver, logger *slog.Logger) ProviderRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &providerRepo{drv: drv, logger: logger}
}

var providerColumns = []string{
	"id", "family_id", "name", "type", "specialty", "phone", "email",
	"address_line1", "city", "state", "zip", "active",
}

func (r *providerRepo) ActiveProviders(ctx context.Context, familyID uuid.UUID) ([]entity.Provider, error) {
	q, args := entsql.Dialect(r.drv.Dialect()).
		Select(providerColumns...).
		From(entsql.Table(tableProviders)).
		Where(entsql.And(entsql.EQ("family_id", familyID), entsql.EQ("active", true))).
		OrderBy("name", "id").
		Query()

	var out []entity.Provider
	err := query(ctx, r.drv, q, args, func(rows *entsql.Rows) error {
		var (
			p   entity.Provider
			typ string
		)
		if err := rows.Scan(&p.ID, &p.FamilyID, &p.Name, &typ, &p.Specialty, &p.Phone, &p.Email,
			&p.AddressLine1, &p.City, &p.State, &p.Zip, &p.Active); err != nil {
			return err
		}
		p.Type = constants.ProviderType(typ)
		out = append(out, p)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to list providers", "family_id", familyID, "error", err)
		return nil, common.PersistenceFailure("list providers", err)
	}
	return out, nil
}

func (r *providerRepo) CreateProvider(ctx context.Context, p *entity.Provider) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	q, args := entsql.Dialect(r.drv.Dialect()).
		Insert(tableProviders).
		Columns(providerColumns...).
		Values(p.ID, p.FamilyID, p.Name, string(p.Type), p.Specialty, p.Phone, p.Email,
			p.AddressLine1, p.City, p.State, p.Zip, p.Active).
		Query()
	if _, err := exec(ctx, r.drv, q, args); err != nil {
		r.logger.Error("failed to create provider", "family_id", p.FamilyID, "name", p.Name, "error", err)
		return common.PersistenceFailure("create provider", err)
	}
	return nil
}

func (r *providerRepo) UpdateProvider(ctx context.Context, p *entity.Provider) error {
	q, args := entsql.Dialect(r.drv.Dialect()).
		Update(tableProviders).
		Set("type", string(p.Type)).
		Set("specialty", p.Specialty).
		Set("phone", p.Phone).
		Set("email", p.Email).
		Set("address_line1", p.AddressLine1).
		Set("city", p.City).
		Set("state", p.State).
		Set("zip", p.Zip).
		Where(entsql.And(entsql.EQ("id", p.ID), entsql.EQ("family_id", p.FamilyID))).
		Query()
	n, err := exec(ctx, r.drv, q, args)
	if err != nil {
		r.logger.Error("failed to update provider", "provider_id", p.ID, "error", err)
		return common.PersistenceFailure("update provider", err)
	}
	if n == 0 {
		return common.PersistenceFailure("update provider", fmt.Errorf("provider %s: %w", p.ID, ErrNoRows))
	}
	return nil
}
