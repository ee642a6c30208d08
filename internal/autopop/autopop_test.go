package autopop

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/entity"
)

type memProviders struct {
	byID    map[uuid.UUID]entity.Provider
	created int
	updated int
	failOn  string
}

func newMemProviders(ps ...entity.Provider) *memProviders {
	m := &memProviders{byID: make(map[uuid.UUID]entity.Provider)}
	for _, p := range ps {
		m.byID[p.ID] = p
	}
	return m
}

func (m *memProviders) ActiveProviders(_ context.Context, familyID uuid.UUID) ([]entity.Provider, error) {
	if m.failOn == "list" {
		return nil, errors.New("list failed")
	}
	var out []entity.Provider
	for _, p := range m.byID {
		if p.FamilyID == familyID && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProviders) CreateProvider(_ context.Context, p *entity.Provider) error {
	p.ID = uuid.New()
	m.byID[p.ID] = *p
	m.created++
	return nil
}

func (m *memProviders) UpdateProvider(_ context.Context, p *entity.Provider) error {
	m.byID[p.ID] = *p
	m.updated++
	return nil
}

type memJournal struct {
	entries []entity.JournalEntry
	err     error
}

func (m *memJournal) CreateJournalEntry(_ context.Context, e *entity.JournalEntry) error {
	if m.err != nil {
		return m.err
	}
	e.ID = uuid.New()
	m.entries = append(m.entries, *e)
	return nil
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in   string
		want entity.Address
	}{
		{"", entity.Address{}},
		{"123 Main St", entity.Address{Line1: "123 Main St"}},
		{"123 Main St, Springfield", entity.Address{Line1: "123 Main St", City: "Springfield"}},
		{"123 Main St, Springfield, IL 62704", entity.Address{Line1: "123 Main St", City: "Springfield", State: "IL", Zip: "62704"}},
		{"Suite 4, 9 Elm Rd, Austin, tx 78701-1234", entity.Address{Line1: "Suite 4", City: "Austin", State: "TX", Zip: "78701-1234"}},
		{"9 Elm Rd, Austin, Texas", entity.Address{Line1: "9 Elm Rd", City: "Austin"}},
	}
	for _, tt := range tests {
		if got := ParseAddress(tt.in); got != tt.want {
			t.Errorf("ParseAddress(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestClassifyProviderType(t *testing.T) {
	tests := []struct {
		specialty string
		want      constants.ProviderType
	}{
		{"Physical Therapy", constants.ProviderTherapist},
		{"Clinical Pharmacist", constants.ProviderPharmacist},
		{"St. Mary's Hospital", constants.ProviderFacility},
		{"Family Medicine", constants.ProviderPhysician},
		{"Cardiology", constants.ProviderSpecialist},
		{"", constants.ProviderPhysician},
	}
	for _, tt := range tests {
		if got := ClassifyProviderType(tt.specialty); got != tt.want {
			t.Errorf("ClassifyProviderType(%q) = %s, want %s", tt.specialty, got, tt.want)
		}
	}
}

func TestUpsertProviderCreates(t *testing.T) {
	family := uuid.New()
	store := newMemProviders()
	p := NewPopulator(store, &memJournal{}, nil)
	out, err := p.UpsertProvider(context.Background(), family, entity.ProviderInfo{
		Name: "Dr. Jane Smith", Specialty: "Cardiology", Address: "1 Heart Way, Boston, MA 02115",
	})
	if err != nil {
		t.Fatalf("UpsertProvider: %v", err)
	}
	if !out.Created || store.created != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	got := out.Provider
	if got.Type != constants.ProviderSpecialist || got.City != "Boston" || got.State != "MA" || got.Zip != "02115" {
		t.Errorf("provider = %+v", got)
	}
}

func TestUpsertProviderFillsBlanksOnly(t *testing.T) {
	family := uuid.New()
	existing := entity.Provider{
		ID: uuid.New(), FamilyID: family, Name: "Dr. Jane Smith, MD", Type: constants.ProviderSpecialist,
		Phone: "555-0100", Active: true,
	}
	store := newMemProviders(existing)
	p := NewPopulator(store, &memJournal{}, nil)
	out, err := p.UpsertProvider(context.Background(), family, entity.ProviderInfo{
		Name: "jane smith", Phone: "555-9999", Email: "jsmith@example.org",
	})
	if err != nil {
		t.Fatalf("UpsertProvider: %v", err)
	}
	if !out.Updated || out.Created {
		t.Fatalf("outcome = %+v", out)
	}
	saved := store.byID[existing.ID]
	if saved.Phone != "555-0100" {
		t.Errorf("phone overwritten: %q", saved.Phone)
	}
	if saved.Email != "jsmith@example.org" {
		t.Errorf("email not filled: %q", saved.Email)
	}
}

func TestUpsertProviderIgnoresOtherFamilies(t *testing.T) {
	other := entity.Provider{ID: uuid.New(), FamilyID: uuid.New(), Name: "Dr. Jane Smith", Active: true}
	store := newMemProviders(other)
	p := NewPopulator(store, &memJournal{}, nil)
	out, err := p.UpsertProvider(context.Background(), uuid.New(), entity.ProviderInfo{Name: "Dr. Jane Smith"})
	if err != nil {
		t.Fatalf("UpsertProvider: %v", err)
	}
	if !out.Created {
		t.Fatalf("outcome = %+v, want created", out)
	}
}

func TestPopulateWritesJournalWithProvider(t *testing.T) {
	doc := entity.Document{ID: uuid.New(), FamilyID: uuid.New(), UserID: "user-1"}
	journal := &memJournal{}
	p := NewPopulator(newMemProviders(), journal, nil)
	rec := entity.ExtractionRecord{Visit: &entity.VisitInfo{
		Date:     "2024-03-02",
		Facility: "Riverside Clinic",
		Summary:  "Routine check, blood pressure stable.",
		Provider: &entity.ProviderInfo{Name: "Dr. Lee"},
	}}
	out, err := p.Populate(context.Background(), doc, rec)
	if err != nil {
		t.Fatalf("Populate: %v", err)
	}
	if out.Journal == nil || len(journal.entries) != 1 {
		t.Fatal("journal entry not written")
	}
	e := journal.entries[0]
	if e.ProviderID == nil || *e.ProviderID != out.Provider.Provider.ID {
		t.Errorf("journal not linked to provider")
	}
	if e.Title != "Visit with Riverside Clinic (2024-03-02)" {
		t.Errorf("title = %q", e.Title)
	}
}

func TestPopulateStepsAreIndependent(t *testing.T) {
	doc := entity.Document{ID: uuid.New(), FamilyID: uuid.New()}
	store := newMemProviders()
	store.failOn = "list"
	journal := &memJournal{}
	p := NewPopulator(store, journal, nil)
	rec := entity.ExtractionRecord{Visit: &entity.VisitInfo{
		Summary:  "Follow up in two weeks.",
		Provider: &entity.ProviderInfo{Name: "Dr. Lee"},
	}}
	out, err := p.Populate(context.Background(), doc, rec)
	if err == nil {
		t.Fatal("expected provider error")
	}
	if out.Journal == nil || out.Journal.ProviderID != nil {
		t.Fatalf("journal should be written without a provider: %+v", out.Journal)
	}
}

func TestPopulateWithoutVisit(t *testing.T) {
	p := NewPopulator(newMemProviders(), &memJournal{}, nil)
	out, err := p.Populate(context.Background(), entity.Document{}, entity.ExtractionRecord{})
	if err != nil || out.Journal != nil || out.Provider.Provider != nil {
		t.Fatalf("out = %+v, err = %v", out, err)
	}
}

func TestJournalAppendsDiagnosesAndFollowUps(t *testing.T) {
	doc := entity.Document{ID: uuid.New(), FamilyID: uuid.New()}
	journal := &memJournal{}
	p := NewPopulator(newMemProviders(), journal, nil)
	rec := entity.ExtractionRecord{
		Visit:     &entity.VisitInfo{Summary: "Routine check."},
		Diagnoses: []entity.Diagnosis{{Condition: "Type 2 diabetes", ICDCode: "E11.9"}, {Condition: " "}},
		Recommendations: []entity.ExtractedRecommendation{
			{Text: "Follow up in 3 months"},
			{Text: "Reduce sodium in meals"},
		},
	}
	if _, err := p.Populate(context.Background(), doc, rec); err != nil {
		t.Fatalf("Populate: %v", err)
	}
	if len(journal.entries) != 1 {
		t.Fatalf("entries = %d", len(journal.entries))
	}
	want := "Routine check.\n\nDiagnoses:\n- Type 2 diabetes (E11.9)\n\nFollow-ups:\n- Follow up in 3 months"
	if got := journal.entries[0].Content; got != want {
		t.Errorf("content:\n got %q\nwant %q", got, want)
	}
}

func TestJournalWithoutSummary(t *testing.T) {
	tests := []struct {
		name string
		rec  entity.ExtractionRecord
		want string
	}{
		{
			"diagnoses only",
			entity.ExtractionRecord{
				Visit:     &entity.VisitInfo{Date: "2024-05-01"},
				Diagnoses: []entity.Diagnosis{{Condition: "Hypertension"}},
			},
			"Diagnoses:\n- Hypertension",
		},
		{
			"follow-ups without a visit block",
			entity.ExtractionRecord{
				Recommendations: []entity.ExtractedRecommendation{{Text: "Schedule a return visit", Category: "follow-up"}},
			},
			"Follow-ups:\n- Schedule a return visit",
		},
		{
			"nothing to record",
			entity.ExtractionRecord{
				Visit:           &entity.VisitInfo{Date: "2024-05-01"},
				Recommendations: []entity.ExtractedRecommendation{{Text: "Walk 30 minutes daily"}},
			},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			journal := &memJournal{}
			p := NewPopulator(newMemProviders(), journal, nil)
			out, err := p.Populate(context.Background(), entity.Document{ID: uuid.New(), FamilyID: uuid.New()}, tt.rec)
			if err != nil {
				t.Fatalf("Populate: %v", err)
			}
			if tt.want == "" {
				if out.Journal != nil || len(journal.entries) != 0 {
					t.Fatalf("unexpected entry: %+v", journal.entries)
				}
				return
			}
			if len(journal.entries) != 1 || journal.entries[0].Content != tt.want {
				t.Fatalf("entries = %+v, want content %q", journal.entries, tt.want)
			}
		})
	}
}
