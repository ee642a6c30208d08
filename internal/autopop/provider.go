// Package autopop creates provider and journal records from an extracted visit.
package autopop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/entity"
)

type ProviderStore interface {
	ActiveProviders(ctx context.Context, familyID uuid.UUID) ([]entity.Provider, error)
	CreateProvider(ctx context.Context, p *entity.Provider) error
	UpdateProvider(ctx context.Context, p *entity.Provider) error
}

type JournalStore interface {
	CreateJournalEntry(ctx context.Context, e *entity.JournalEntry) error
}

type providerRule struct {
	Type     constants.ProviderType
	Keywords []string
}

// providerRules are checked in order against the lowercased specialty.
var providerRules = []providerRule{
	{constants.ProviderTherapist, []string{"therap", "rehab", "counsel", "psycholog", "speech", "occupational"}},
	{constants.ProviderPharmacist, []string{"pharma", "drugstore"}},
	{constants.ProviderFacility, []string{"hospital", "clinic", "center", "centre", "facility", "laboratory", "urgent care", "nursing home", "imaging"}},
	{constants.ProviderPhysician, []string{"primary care", "family medicine", "family practice", "general practice", "internal medicine", "internist", "pcp", "general practitioner"}},
}

// ClassifyProviderType maps a specialty to a provider type. No specialty means a
// physician; an unrecognized one means a specialist.
func ClassifyProviderType(specialty string) constants.ProviderType {
	s := strings.ToLower(strings.TrimSpace(specialty))
	if s == "" {
		return constants.ProviderPhysician
	}
	for _, r := range providerRules {
		for _, k := range r.Keywords {
			if strings.Contains(s, k) {
				return r.Type
			}
		}
	}
	return constants.ProviderSpecialist
}

// ProviderOutcome describes what UpsertProvider did.
type ProviderOutcome struct {
	Provider *entity.Provider
	Created  bool
	Updated  bool
}

type Populator struct {
	providers ProviderStore
	journal   JournalStore
	logger    *slog.Logger
}

func NewPopulator(providers ProviderStore, journal JournalStore, logger *slog.Logger) *Populator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Populator{providers: providers, journal: journal, logger: logger}
}

// UpsertProvider links info to an existing active provider of the family whose name
// contains, or is contained in, info.Name (case-insensitive), filling only blank fields.
// Without a match a new provider is created.
func (p *Populator) UpsertProvider(ctx context.Context, familyID uuid.UUID, info entity.ProviderInfo) (ProviderOutcome, error) {
	name := strings.TrimSpace(info.Name)
	if name == "" {
		return ProviderOutcome{}, nil
	}
	existing, err := p.providers.ActiveProviders(ctx, familyID)
	if err != nil {
		return ProviderOutcome{}, fmt.Errorf("list providers: %w", err)
	}

	incoming := fromInfo(familyID, info)
	if match := findProvider(existing, name); match != nil {
		if !fillBlanks(match, incoming) {
			p.logger.Debug("autopop.provider.unchanged", "provider_id", match.ID, "name", match.Name)
			return ProviderOutcome{Provider: match}, nil
		}
		if err := p.providers.UpdateProvider(ctx, match); err != nil {
			return ProviderOutcome{}, fmt.Errorf("update provider %s: %w", match.ID, err)
		}
		p.logger.Info("autopop.provider.updated", "provider_id", match.ID, "name", match.Name)
		return ProviderOutcome{Provider: match, Updated: true}, nil
	}

	if err := p.providers.CreateProvider(ctx, &incoming); err != nil {
		return ProviderOutcome{}, fmt.Errorf("create provider: %w", err)
	}
	p.logger.Info("autopop.provider.created", "provider_id", incoming.ID, "name", incoming.Name, "type", incoming.Type)
	return ProviderOutcome{Provider: &incoming, Created: true}, nil
}

func fromInfo(familyID uuid.UUID, info entity.ProviderInfo) entity.Provider {
	addr := ParseAddress(info.Address)
	return entity.Provider{
		FamilyID:     familyID,
		Name:         strings.TrimSpace(info.Name),
		Type:         ClassifyProviderType(info.Specialty),
		Specialty:    strings.TrimSpace(info.Specialty),
		Phone:        strings.TrimSpace(info.Phone),
		Email:        strings.TrimSpace(info.Email),
		AddressLine1: addr.Line1,
		City:         addr.City,
		State:        addr.State,
		Zip:          addr.Zip,
		Active:       true,
	}
}

// findProvider returns the shortest matching name, then the lowest id.
func findProvider(providers []entity.Provider, name string) *entity.Provider {
	want := strings.ToLower(name)
	var hits []entity.Provider
	for _, pr := range providers {
		have := strings.ToLower(strings.TrimSpace(pr.Name))
		if !pr.Active || have == "" {
			continue
		}
		if strings.Contains(have, want) || strings.Contains(want, have) {
			hits = append(hits, pr)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.Slice(hits, func(i, j int) bool {
		if len(hits[i].Name) != len(hits[j].Name) {
			return len(hits[i].Name) < len(hits[j].Name)
		}
		return hits[i].ID.String() < hits[j].ID.String()
	})
	return &hits[0]
}

// fillBlanks copies non-empty fields of src into blank fields of dst and reports a change.
func fillBlanks(dst *entity.Provider, src entity.Provider) bool {
	changed := false
	set := func(d *string, s string) {
		if strings.TrimSpace(*d) == "" && s != "" {
			*d = s
			changed = true
		}
	}
	set(&dst.Specialty, src.Specialty)
	set(&dst.Phone, src.Phone)
	set(&dst.Email, src.Email)
	set(&dst.AddressLine1, src.AddressLine1)
	set(&dst.City, src.City)
	set(&dst.State, src.State)
	set(&dst.Zip, src.Zip)
	if dst.Type == "" && src.Type != "" {
		dst.Type = src.Type
		changed = true
	}
	return changed
}

// Outcome is the result of populating one document's visit.
type Outcome struct {
	Provider ProviderOutcome
	Journal  *entity.JournalEntry
}

// Populate upserts the visit provider and writes a journal entry from the visit
// summary, diagnoses and follow-ups. The two steps are independent; errors from
// both are joined.
func (p *Populator) Populate(ctx context.Context, doc entity.Document, rec entity.ExtractionRecord) (Outcome, error) {
	var out Outcome
	var errs []error
	if rec.Visit != nil && rec.Visit.Provider != nil {
		po, err := p.UpsertProvider(ctx, doc.FamilyID, *rec.Visit.Provider)
		if err != nil {
			p.logger.Warn("autopop.provider.failed", "document_id", doc.ID, "error", err)
			errs = append(errs, err)
		}
		out.Provider = po
	}

	var providerID *uuid.UUID
	if out.Provider.Provider != nil {
		providerID = &out.Provider.Provider.ID
	}
	entry, err := p.CreateJournalEntry(ctx, doc, rec, providerID)
	if err != nil {
		p.logger.Warn("autopop.journal.failed", "document_id", doc.ID, "error", err)
		errs = append(errs, err)
	}
	out.Journal = entry
	return out, errors.Join(errs...)
}
