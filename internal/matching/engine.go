// Package matching matches a medication mention from a document against a
// patient's active medication list.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/entity"
)

const (
	// FuzzyFloor is the minimum similarity for a fuzzy match.
	FuzzyFloor = 0.7
	// NearMissFloor is the minimum similarity reported as a near miss below FuzzyFloor.
	NearMissFloor = 0.5
)

// MedicationSource loads a patient's medications.
type MedicationSource interface {
	ActiveMedications(ctx context.Context, patientID uuid.UUID) ([]entity.ExistingMedication, error)
}

type Engine struct {
	meds          MedicationSource
	scorer        Scorer
	fuzzyFloor    float64
	nearMissFloor float64
	logger        *slog.Logger
}

type Option func(*Engine)

// WithScorer replaces the fuzzy similarity function.
func WithScorer(s Scorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

func WithNearMissFloor(f float64) Option {
	return func(e *Engine) {
		if f > 0 && f < e.fuzzyFloor {
			e.nearMissFloor = f
		}
	}
}

func NewEngine(meds MedicationSource, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		meds:          meds,
		scorer:        DefaultScorer,
		fuzzyFloor:    FuzzyFloor,
		nearMissFloor: NearMissFloor,
		logger:        logger,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// MatchMedication loads the patient's active medications and matches one mention against them.
func (e *Engine) MatchMedication(ctx context.Context, name, dosage string, patientID uuid.UUID) (entity.MedicationMatch, error) {
	meds, err := e.meds.ActiveMedications(ctx, patientID)
	if err != nil {
		return entity.MedicationMatch{}, fmt.Errorf("load active medications: %w", err)
	}
	return e.Match(name, dosage, meds), nil
}

// Match classifies a mention against meds, in priority order:
// exact name and dosage, exact name with a different dosage, best fuzzy name at or above
// the floor, else none. Inactive medications are ignored. The result depends only on
// the inputs, never on their order.
func (e *Engine) Match(name, dosage string, meds []entity.ExistingMedication) entity.MedicationMatch {
	target := NormalizeName(name)
	if target == "" {
		return entity.MedicationMatch{Type: constants.MatchNone, Explanation: "mention has no usable name"}
	}
	wantDose := NormalizeDosage(dosage)
	active := activeByID(meds)

	var sameName []entity.ExistingMedication
	for _, m := range active {
		if NormalizeName(m.Name) == target {
			sameName = append(sameName, m)
		}
	}
	for _, m := range sameName {
		if NormalizeDosage(m.Dosage) == wantDose {
			return entity.MedicationMatch{
				Type:        constants.MatchExact,
				Medication:  ptr(m),
				Confidence:  1.0,
				Explanation: fmt.Sprintf("%s %s matches the current medication list", m.Name, m.Dosage),
			}
		}
	}
	if len(sameName) > 0 {
		m := sameName[0]
		return entity.MedicationMatch{
			Type:        constants.MatchDosageChange,
			Medication:  ptr(m),
			Confidence:  1.0,
			Explanation: fmt.Sprintf("%s dosage differs: document says %q, list says %q", m.Name, dosage, m.Dosage),
		}
	}

	best, ok := e.bestFuzzy(target, active)
	if !ok {
		return entity.MedicationMatch{Type: constants.MatchNone, Explanation: "no active medications to compare"}
	}
	if best.score >= e.fuzzyFloor {
		return entity.MedicationMatch{
			Type:        constants.MatchFuzzy,
			Medication:  ptr(best.med),
			Confidence:  best.score,
			Explanation: fmt.Sprintf("%q resembles %q (similarity %.2f)", name, best.med.Name, best.score),
		}
	}

	out := entity.MedicationMatch{Type: constants.MatchNone, Explanation: "no medication on the list resembles this name"}
	if best.score >= e.nearMissFloor {
		out.NearMiss = &entity.NearMiss{MedicationID: best.med.ID, Name: best.med.Name, Score: best.score}
		e.logger.Debug("matching.fuzzy.near_miss",
			"mention", name,
			"candidate", best.med.Name,
			"candidate_id", best.med.ID,
			"score", best.score,
			"floor", e.fuzzyFloor,
		)
	}
	return out
}

type candidate struct {
	med   entity.ExistingMedication
	score float64
	dist  int
}

// bestFuzzy picks the highest score; ties go to the shortest edit distance, then the lowest id.
func (e *Engine) bestFuzzy(target string, meds []entity.ExistingMedication) (candidate, bool) {
	var (
		best  candidate
		found bool
	)
	for _, m := range meds {
		n := NormalizeName(m.Name)
		if n == "" {
			continue
		}
		c := candidate{med: m, score: clamp01(e.scorer(target, n)), dist: EditDistance(target, n)}
		if !found || better(c, best) {
			best, found = c, true
		}
	}
	return best, found
}

func better(a, b candidate) bool {
	if math.Abs(a.score-b.score) > 1e-9 {
		return a.score > b.score
	}
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.med.ID.String() < b.med.ID.String()
}

func activeByID(meds []entity.ExistingMedication) []entity.ExistingMedication {
	out := make([]entity.ExistingMedication, 0, len(meds))
	for _, m := range meds {
		if m.Active {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

func ptr(m entity.ExistingMedication) *entity.ExistingMedication { return &m }
