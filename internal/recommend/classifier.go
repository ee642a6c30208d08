// Package recommend maps free-text recommendations onto the closed type and
// priority taxonomy.
package recommend

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/entity"
)

// TitleLimit is the number of runes kept from the recommendation text in its title.
const TitleLimit = 60

type typeRule struct {
	Type     constants.RecommendationType
	Keywords []string
}

// typeRules are checked in order; the first rule with a matching keyword wins.
var typeRules = []typeRule{
	{constants.RecMedication, []string{"medication", "medicine", "drug", "prescription", "prescribe", "dose", "dosage", "pill", "tablet"}},
	{constants.RecExercise, []string{"exercise", "walk", "walking", "stretch", "physical activity", "strength"}},
	{constants.RecDiet, []string{"diet", "nutrition", "meal", "eat", "sodium", "sugar intake", "fluid intake", "hydrate"}},
	{constants.RecTherapy, []string{"therapy", "therapist", "physiotherapy", "counseling", "pt", "ot"}},
	{constants.RecMonitoring, []string{"monitor", "track", "log", "record", "check blood", "measure"}},
	{constants.RecFollowUp, []string{"follow-up", "follow up", "followup", "appointment", "revisit", "return visit", "schedule"}},
	{constants.RecTests, []string{"test", "lab", "imaging", "x-ray", "xray", "mri", "ct scan", "ultrasound", "blood work", "bloodwork"}},
}

type priorityRule struct {
	Priority constants.Priority
	Keywords []string
}

var priorityRules = []priorityRule{
	{constants.PriorityUrgent, []string{"urgent", "critical", "emergency", "immediately", "asap"}},
	{constants.PriorityHigh, []string{"high", "important"}},
	{constants.PriorityLow, []string{"low", "optional", "routine"}},
}

var patternCache = map[string]*regexp.Regexp{}

func init() {
	for _, r := range typeRules {
		for _, k := range r.Keywords {
			patternCache[k] = wordPattern(k)
		}
	}
	for _, r := range priorityRules {
		for _, k := range r.Keywords {
			patternCache[k] = wordPattern(k)
		}
	}
}

// wordPattern matches k at a word start. Keywords of two letters or fewer must also
// end at a word boundary so "pt" never matches inside "prompt".
func wordPattern(k string) *regexp.Regexp {
	expr := `\b` + regexp.QuoteMeta(k)
	if len(k) <= 2 {
		expr += `\b`
	}
	return regexp.MustCompile(expr)
}

func contains(text, keyword string) bool {
	if re, ok := patternCache[keyword]; ok {
		return re.MatchString(text)
	}
	return strings.Contains(text, keyword)
}

// ClassifyType returns the first matching type for typeHint, then for text, defaulting to LIFESTYLE.
func ClassifyType(text, typeHint string) constants.RecommendationType {
	for _, s := range []string{typeHint, text} {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		for _, r := range typeRules {
			for _, k := range r.Keywords {
				if contains(s, k) {
					return r.Type
				}
			}
		}
	}
	return constants.RecLifestyle
}

// ClassifyPriority maps a priority hint to a Priority, defaulting to MEDIUM.
func ClassifyPriority(hint string) constants.Priority {
	s := strings.ToLower(strings.TrimSpace(hint))
	if s == "" {
		return constants.PriorityMedium
	}
	for _, r := range priorityRules {
		for _, k := range r.Keywords {
			if contains(s, k) {
				return r.Priority
			}
		}
	}
	return constants.PriorityMedium
}

// Classify returns the type and priority for one recommendation.
func Classify(text, priorityHint, typeHint string) (constants.RecommendationType, constants.Priority) {
	return ClassifyType(text, typeHint), ClassifyPriority(priorityHint)
}

// Title is the first TitleLimit runes of text, ellipsized when cut.
func Title(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= TitleLimit {
		return text
	}
	r := []rune(text)
	return strings.TrimRight(string(r[:TitleLimit]), " ") + "..."
}

// FromExtracted builds a pending recommendation from one extracted item. Document
// and family linkage are filled in by the caller.
func FromExtracted(rec entity.ExtractedRecommendation) (entity.Recommendation, bool) {
	text := strings.TrimSpace(rec.Text)
	if text == "" {
		return entity.Recommendation{}, false
	}
	typ, priority := Classify(text, rec.Priority, rec.Category)
	return entity.Recommendation{
		Type:        typ,
		Title:       Title(text),
		Description: text,
		Priority:    priority,
		Status:      constants.RecommendationPending,
		Metadata:    &entity.RecommendationMetadata{Source: "extraction"},
	}, true
}
