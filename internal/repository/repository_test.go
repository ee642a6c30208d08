package repository

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/entity"
)

func openTestDB(t *testing.T) *entsql.Driver {
	t.Helper()
	ctx := context.Background()
	drv, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "care.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = drv.Close() })
	if err := Migrate(ctx, drv, nil); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return drv
}

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(openTestDB(t), nil)

	patient := uuid.New()
	doc := &entity.Document{
		FamilyID:    uuid.New(),
		PatientID:   &patient,
		UserID:      "user-1",
		FileURL:     "file:///tmp/visit.pdf",
		FileType:    "application/pdf",
		ContentHash: "abc123",
	}
	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ParsingStatus != constants.ParsingStatusPending || got.PatientID == nil || *got.PatientID != patient {
		t.Fatalf("got %+v", got)
	}

	if err := repo.MarkProcessing(ctx, doc.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	parsed := json.RawMessage(`{"documentType":"MEDICAL_RECORD","medications":[]}`)
	if err := repo.MarkCompleted(ctx, doc.ID, parsed); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	got, err = repo.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ParsingStatus != constants.ParsingStatusCompleted || got.Attempts != 1 {
		t.Fatalf("status = %s attempts = %d", got.ParsingStatus, got.Attempts)
	}
	var rec map[string]any
	if err := json.Unmarshal(got.ParsedData, &rec); err != nil || rec["documentType"] != "MEDICAL_RECORD" {
		t.Fatalf("parsed data = %s (%v)", got.ParsedData, err)
	}

	// a completed document is not picked up again
	if err := repo.MarkProcessing(ctx, doc.ID); !errors.Is(err, ErrNoRows) {
		t.Fatalf("MarkProcessing on completed doc: err = %v", err)
	}
}

func TestDocumentFailedAndLookupByHash(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(openTestDB(t), nil)
	family := uuid.New()
	doc := &entity.Document{FamilyID: family, UserID: "u", FileURL: "a.txt", FileType: "text/plain", ContentHash: "h1"}
	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.MarkFailed(ctx, doc.ID, "download failed"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, err := repo.GetByFamilyAndHash(ctx, family, "h1")
	if err != nil {
		t.Fatalf("GetByFamilyAndHash: %v", err)
	}
	if got.ParsingStatus != constants.ParsingStatusFailed || got.ParseError != "download failed" {
		t.Fatalf("got %+v", got)
	}
	if _, err := repo.GetByFamilyAndHash(ctx, uuid.New(), "h1"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("other family: err = %v", err)
	}
}

func TestListStale(t *testing.T) {
	ctx := context.Background()
	drv := openTestDB(t)
	repo := NewDocumentRepository(drv, nil).(*documentRepo)
	clock := time.Unix(1_700_000_000, 0)
	repo.now = func() time.Time { return clock }

	old := &entity.Document{FamilyID: uuid.New(), UserID: "u", FileURL: "a", FileType: "text/plain"}
	if err := repo.Create(ctx, old); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.MarkProcessing(ctx, old.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	clock = clock.Add(time.Hour)
	fresh := &entity.Document{FamilyID: uuid.New(), UserID: "u", FileURL: "b", FileType: "text/plain"}
	if err := repo.Create(ctx, fresh); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.MarkProcessing(ctx, fresh.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}

	stale, err := repo.ListStale(ctx, constants.ParsingStatusProcessing, clock.Add(-30*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListStale: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != old.ID {
		t.Fatalf("stale = %+v", stale)
	}
}

func TestActiveMedications(t *testing.T) {
	ctx := context.Background()
	repo := NewMedicationRepository(openTestDB(t), nil)
	patient := uuid.New()
	for _, m := range []entity.ExistingMedication{
		{PatientID: patient, Name: "Metformin", Dosage: "500mg", Active: true},
		{PatientID: patient, Name: "Aspirin", Dosage: "81mg", Active: false},
		{PatientID: uuid.New(), Name: "Lisinopril", Dosage: "10mg", Active: true},
	} {
		if err := repo.Create(ctx, &m); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	meds, err := repo.ActiveMedications(ctx, patient)
	if err != nil {
		t.Fatalf("ActiveMedications: %v", err)
	}
	if len(meds) != 1 || meds[0].Name != "Metformin" || !meds[0].Active {
		t.Fatalf("meds = %+v", meds)
	}
}

func TestProvidersAndJournal(t *testing.T) {
	ctx := context.Background()
	drv := openTestDB(t)
	providers := NewProviderRepository(drv, nil)
	journal := NewJournalRepository(drv, nil)
	family := uuid.New()

	p := &entity.Provider{FamilyID: family, Name: "Dr. Lee", Type: constants.ProviderPhysician, Active: true}
	if err := providers.CreateProvider(ctx, p); err != nil {
		t.Fatalf("CreateProvider: %v", err)
	}
	p.Phone = "555-0100"
	if err := providers.UpdateProvider(ctx, p); err != nil {
		t.Fatalf("UpdateProvider: %v", err)
	}
	list, err := providers.ActiveProviders(ctx, family)
	if err != nil {
		t.Fatalf("ActiveProviders: %v", err)
	}
	if len(list) != 1 || list[0].Phone != "555-0100" || list[0].Type != constants.ProviderPhysician {
		t.Fatalf("providers = %+v", list)
	}

	doc := uuid.New()
	e := &entity.JournalEntry{FamilyID: family, DocumentID: doc, ProviderID: &p.ID, UserID: "u", Title: "Visit", Content: "ok"}
	if err := journal.CreateJournalEntry(ctx, e); err != nil {
		t.Fatalf("CreateJournalEntry: %v", err)
	}
	entries, err := journal.ListByDocument(ctx, doc)
	if err != nil {
		t.Fatalf("ListByDocument: %v", err)
	}
	if len(entries) != 1 || entries[0].ProviderID == nil || *entries[0].ProviderID != p.ID || entries[0].PatientID != nil {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestRecommendationsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewRecommendationRepository(openTestDB(t), nil)
	family, doc, med := uuid.New(), uuid.New(), uuid.New()

	recs := []entity.Recommendation{
		{
			DocumentID: doc, FamilyID: family, MedicationID: &med,
			Type: constants.RecMedication, Title: "Dosage change: Metformin", Description: "d",
			Priority: constants.PriorityHigh,
			Metadata: &entity.RecommendationMetadata{Case: constants.CaseDosageChange, Confidence: 1},
		},
		{
			DocumentID: doc, FamilyID: family,
			Type: constants.RecFollowUp, Title: "Follow up", Description: "Follow up in 3 months",
			Priority: constants.PriorityMedium,
		},
	}
	if err := repo.CreateRecommendations(ctx, recs); err != nil {
		t.Fatalf("CreateRecommendations: %v", err)
	}

	got, err := repo.ListRecommendations(ctx, RecommendationFilter{DocumentID: doc})
	if err != nil {
		t.Fatalf("ListRecommendations: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d recommendations, want 2", len(got))
	}
	var withMeta int
	for _, r := range got {
		if r.Status != constants.RecommendationPending {
			t.Errorf("status = %q", r.Status)
		}
		if r.Metadata != nil {
			withMeta++
			if r.Metadata.Case != constants.CaseDosageChange || r.MedicationID == nil || *r.MedicationID != med {
				t.Errorf("rec = %+v", r)
			}
		}
	}
	if withMeta != 1 {
		t.Errorf("recommendations with metadata = %d, want 1", withMeta)
	}
}
