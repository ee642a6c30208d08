package llm

import (
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/care-records/constants"
)

var topLevelSynonyms = map[string]string{
	"document_type":         "documentType",
	"type":                  "documentType",
	"medications_mentioned": "medications",
	"medicationsMentioned":  "medications",
	"medication":            "medications",
	"meds":                  "medications",
	"diagnosis":             "diagnoses",
	"conditions":            "diagnoses",
	"allergy":               "allergies",
	"procedure":             "procedures",
	"recommendation":        "recommendations",
	"follow_up":             "recommendations",
	"warning":               "warnings",
}

var fieldSynonyms = map[string]string{
	"date_of_birth":  "dateOfBirth",
	"dob":            "dateOfBirth",
	"start_date":     "startDate",
	"end_date":       "endDate",
	"icd_code":       "icdCode",
	"icd10":          "icdCode",
	"dose":           "dosage",
	"medication":     "name",
	"drug":           "name",
	"diagnosis":      "condition",
	"recommendation": "text",
	"description":    "text",
}

// listKeys maps each list field to the object key a bare string item becomes.
var listKeys = map[string]string{
	"diagnoses":       "condition",
	"medications":     "name",
	"allergies":       "allergen",
	"procedures":      "name",
	"recommendations": "text",
	"warnings":        "",
}

// NormalizeExtraction rewrites a decoded model response toward the ExtractionRecord shape:
// - renames known synonyms (meds -> medications, start_date -> startDate)
// - drops null / empty values
// - coerces numbers to strings and bare strings / single objects to lists
// - drops list items missing their identifying field
// - removes unknown top-level keys
// It returns the list of changes made, for logging.
func NormalizeExtraction(m map[string]any, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}
	changes := make([]string, 0, 8)

	for from, to := range topLevelSynonyms {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			changes = append(changes, from+"->"+to)
		}
	}

	if v, ok := m["documentType"]; ok {
		dt := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(fmt.Sprint(v)), " ", "_"))
		if !knownDocumentType(dt) {
			changes = append(changes, "documentType("+dt+"->OTHER)")
			dt = string(constants.DocumentOther)
		}
		m["documentType"] = dt
	}

	for _, k := range []string{"patient", "visit"} {
		v, ok := m[k]
		if !ok {
			continue
		}
		obj, isObj := v.(map[string]any)
		if !isObj {
			delete(m, k)
			changes = append(changes, k+"(type)")
			continue
		}
		cleanObject(obj, k, &changes)
		if k == "visit" {
			switch p := obj["provider"].(type) {
			case string:
				obj["provider"] = map[string]any{"name": p}
				changes = append(changes, "visit.provider(string)")
			case map[string]any:
				cleanObject(p, "visit.provider", &changes)
			}
		}
		if len(obj) == 0 {
			delete(m, k)
		}
	}

	for k, idKey := range listKeys {
		v, ok := m[k]
		if !ok {
			continue
		}
		m[k] = normalizeList(v, k, idKey, &changes)
	}

	allowed := BuildExtractionJSONSchema()["properties"].(map[string]any)
	for k := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			changes = append(changes, k+"(unknown)")
		}
	}

	if len(changes) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "changes", changes)
	}
	return changes
}

func normalizeList(v any, key, idKey string, changes *[]string) []any {
	var items []any
	switch t := v.(type) {
	case nil:
		*changes = append(*changes, key+"(null)")
		return []any{}
	case []any:
		items = t
	case string, map[string]any:
		items = []any{t}
		*changes = append(*changes, key+"(wrapped)")
	default:
		*changes = append(*changes, key+"(type)")
		return []any{}
	}

	out := make([]any, 0, len(items))
	for i, item := range items {
		switch it := item.(type) {
		case string:
			s := strings.TrimSpace(it)
			if s == "" {
				continue
			}
			if idKey == "" {
				out = append(out, s)
			} else {
				out = append(out, map[string]any{idKey: s})
			}
		case map[string]any:
			if idKey == "" {
				*changes = append(*changes, fmt.Sprintf("%s[%d](type)", key, i))
				continue
			}
			cleanObject(it, key, changes)
			if s, _ := it[idKey].(string); s == "" {
				*changes = append(*changes, fmt.Sprintf("%s[%d](missing %s)", key, i, idKey))
				continue
			}
			out = append(out, it)
		default:
			*changes = append(*changes, fmt.Sprintf("%s[%d](type)", key, i))
		}
	}
	return out
}

// cleanObject renames field synonyms, trims strings, stringifies scalars, and drops null/empty values.
// Nested objects are left for the caller.
func cleanObject(obj map[string]any, path string, changes *[]string) {
	for from, to := range fieldSynonyms {
		if v, ok := obj[from]; ok {
			if _, exists := obj[to]; !exists {
				obj[to] = v
			}
			delete(obj, from)
		}
	}
	for k, v := range maps.Clone(obj) {
		switch t := v.(type) {
		case nil:
			delete(obj, k)
			*changes = append(*changes, path+"."+k+"(null)")
		case string:
			s := strings.TrimSpace(t)
			if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
				delete(obj, k)
				continue
			}
			obj[k] = s
		case float64:
			obj[k] = strconv.FormatFloat(t, 'f', -1, 64)
			*changes = append(*changes, path+"."+k+"(number)")
		case bool:
			obj[k] = strconv.FormatBool(t)
			*changes = append(*changes, path+"."+k+"(bool)")
		}
	}
}

func knownDocumentType(s string) bool {
	for _, t := range constants.DocumentTypes {
		if string(t) == s {
			return true
		}
	}
	return false
}
