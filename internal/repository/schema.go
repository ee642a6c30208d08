package repository

import (
	"context"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	tableDocuments       = "documents"
	tableMedications     = "medications"
	tableProviders       = "providers"
	tableJournalEntries  = "journal_entries"
	tableRecommendations = "recommendations"
)

var (
	documentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "family_id", Type: field.TypeUUID},
		{Name: "patient_id", Type: field.TypeUUID, Nullable: true},
		{Name: "user_id", Type: field.TypeString},
		{Name: "file_url", Type: field.TypeString, Size: 2048},
		{Name: "file_type", Type: field.TypeString},
		{Name: "content_hash", Type: field.TypeString, Default: ""},
		{Name: "parsing_status", Type: field.TypeString, Default: "PENDING"},
		{Name: "parsed_data", Type: field.TypeJSON, Nullable: true},
		{Name: "parse_error", Type: field.TypeString, Size: 2048, Default: ""},
		{Name: "attempts", Type: field.TypeInt, Default: 0},
		{Name: "status_changed_at", Type: field.TypeInt64},
	}
	documentsTable = &schema.Table{
		Name:       tableDocuments,
		Columns:    documentsColumns,
		PrimaryKey: []*schema.Column{documentsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "document_family_id_content_hash", Columns: []*schema.Column{documentsColumns[1], documentsColumns[6]}},
			{Name: "document_parsing_status_status_changed_at", Columns: []*schema.Column{documentsColumns[7], documentsColumns[11]}},
		},
	}

	medicationsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "patient_id", Type: field.TypeUUID},
		{Name: "name", Type: field.TypeString},
		{Name: "dosage", Type: field.TypeString, Default: ""},
		{Name: "frequency", Type: field.TypeString, Default: ""},
		{Name: "active", Type: field.TypeBool, Default: true},
	}
	medicationsTable = &schema.Table{
		Name:       tableMedications,
		Columns:    medicationsColumns,
		PrimaryKey: []*schema.Column{medicationsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "medication_patient_id_active", Columns: []*schema.Column{medicationsColumns[1], medicationsColumns[5]}},
		},
	}

	providersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "family_id", Type: field.TypeUUID},
		{Name: "name", Type: field.TypeString},
		{Name: "type", Type: field.TypeString},
		{Name: "specialty", Type: field.TypeString, Default: ""},
		{Name: "phone", Type: field.TypeString, Default: ""},
		{Name: "email", Type: field.TypeString, Default: ""},
		{Name: "address_line1", Type: field.TypeString, Default: ""},
		{Name: "city", Type: field.TypeString, Default: ""},
		{Name: "state", Type: field.TypeString, Default: ""},
		{Name: "zip", Type: field.TypeString, Default: ""},
		{Name: "active", Type: field.TypeBool, Default: true},
	}
	providersTable = &schema.Table{
		Name:       tableProviders,
		Columns:    providersColumns,
		PrimaryKey: []*schema.Column{providersColumns[0]},
		Indexes: []*schema.Index{
			{Name: "provider_family_id_active", Columns: []*schema.Column{providersColumns[1], providersColumns[11]}},
		},
	}

	journalEntriesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "family_id", Type: field.TypeUUID},
		{Name: "patient_id", Type: field.TypeUUID, Nullable: true},
		{Name: "document_id", Type: field.TypeUUID},
		{Name: "provider_id", Type: field.TypeUUID, Nullable: true},
		{Name: "user_id", Type: field.TypeString},
		{Name: "title", Type: field.TypeString},
		{Name: "content", Type: field.TypeString, Size: 1 << 20},
		{Name: "entry_date", Type: field.TypeString, Default: ""},
	}
	journalEntriesTable = &schema.Table{
		Name:       tableJournalEntries,
		Columns:    journalEntriesColumns,
		PrimaryKey: []*schema.Column{journalEntriesColumns[0]},
		Indexes: []*schema.Index{
			{Name: "journalentry_document_id", Columns: []*schema.Column{journalEntriesColumns[3]}},
		},
	}

	recommendationsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeUUID},
		{Name: "document_id", Type: field.TypeUUID},
		{Name: "family_id", Type: field.TypeUUID},
		{Name: "patient_id", Type: field.TypeUUID, Nullable: true},
		{Name: "medication_id", Type: field.TypeUUID, Nullable: true},
		{Name: "type", Type: field.TypeString},
		{Name: "title", Type: field.TypeString},
		{Name: "description", Type: field.TypeString, Size: 1 << 16},
		{Name: "priority", Type: field.TypeString},
		{Name: "status", Type: field.TypeString, Default: "pending"},
		{Name: "metadata", Type: field.TypeJSON, Nullable: true},
		{Name: "created_at", Type: field.TypeInt64},
	}
	recommendationsTable = &schema.Table{
		Name:       tableRecommendations,
		Columns:    recommendationsColumns,
		PrimaryKey: []*schema.Column{recommendationsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "recommendation_document_id", Columns: []*schema.Column{recommendationsColumns[1]}},
			{Name: "recommendation_family_id_status", Columns: []*schema.Column{recommendationsColumns[2], recommendationsColumns[9]}},
		},
	}

	// Tables lists every table the pipeline reads or writes.
	Tables = []*schema.Table{
		documentsTable,
		medicationsTable,
		providersTable,
		journalEntriesTable,
		recommendationsTable,
	}
)

// Migrate creates missing tables, columns and indexes. It never drops anything.
func Migrate(ctx context.Context, drv *entsql.Driver, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		logger.Error("schema migration failed", "error", err)
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("schema migration complete", "tables", len(Tables))
	return nil
}
