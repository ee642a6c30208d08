package repository

import (
	"context"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/entity"
)

// MedicationRepository reads a patient's medication list. The pipeline never
// writes medications; Create exists for seeding and imports.
type MedicationRepository interface {
	ActiveMedications(ctx context.Context, patientID uuid.UUID) ([]entity.ExistingMedication, error)
	Create(ctx context.Context, med *entity.ExistingMedication) error
}

type medicationRepo struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewMedicationRepository(drv *entsql.Driver, logger *slog.Logger) MedicationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &medicationRepo{drv: drv, logger: logger}
}

func (r *medicationRepo) ActiveMedications(ctx context.Context, patientID uuid.UUID) ([]entity.ExistingMedication, error) {
	q, args := entsql.Dialect(r.drv.Dialect()).
		Select("id", "patient_id", "name", "dosage", "frequency", "active").
		From(entsql.Table(tableMedications)).
		Where(entsql.And(entsql.EQ("patient_id", patientID), entsql.EQ("active", true))).
		OrderBy("id").
		Query()

	var out []entity.ExistingMedication
	err := query(ctx, r.drv, q, args, func(rows *entsql.Rows) error {
		var m entity.ExistingMedication
		if err := rows.Scan(&m.ID, &m.PatientID, &m.Name, &m.Dosage, &m.Frequency, &m.Active); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to list active medications", "patient_id", patientID, "error", err)
		return nil, common.PersistenceFailure("list active medications", err)
	}
	return out, nil
}

func (r *medicationRepo) Create(ctx context.Context, med *entity.ExistingMedication) error {
	if med.ID == uuid.Nil {
		med.ID = uuid.New()
	}
	q, args := entsql.Dialect(r.drv.Dialect()).
		Insert(tableMedications).
		Columns("id", "patient_id", "name", "dosage", "frequency", "active").
		Values(med.ID, med.PatientID, med.Name, med.Dosage, med.Frequency, med.Active).
		Query()
	if _, err := exec(ctx, r.drv, q, args); err != nil {
		r.logger.Error("failed to create medication", "patient_id", med.PatientID, "name", med.Name, "error", err)
		return common.PersistenceFailure("create medication", err)
	}
	return nil
}
