package llm

import "github.com/joseph-ayodele/care-records/constants"

// BuildExtractionJSONSchema returns the ExtractionRecord JSON-Schema as a generic map.
// Nothing at the top level is required: a record missing data is still a record.
// We send it to the model as guidance and use it locally to validate.
func BuildExtractionJSONSchema() map[string]any {
	docTypes := make([]string, 0, len(constants.DocumentTypes))
	for _, t := range constants.DocumentTypes {
		docTypes = append(docTypes, string(t))
	}

	props := map[string]any{
		"documentType": map[string]any{"type": "string", "enum": docTypes},
		"patient": object(map[string]any{
			"name":        str(),
			"dateOfBirth": str(),
			"mrn":         str(),
		}),
		"visit": object(map[string]any{
			"date":     str(),
			"facility": str(),
			"summary":  str(),
			"provider": object(map[string]any{
				"name":      str(),
				"specialty": str(),
				"phone":     str(),
				"email":     str(),
				"address":   str(),
			}),
		}),
		"diagnoses": list(object(map[string]any{
			"condition": str(),
			"icdCode":   str(),
			"status":    str(),
			"notes":     str(),
		}, "condition")),
		"medications": list(object(map[string]any{
			"name":      map[string]any{"type": "string", "minLength": 1},
			"dosage":    str(),
			"frequency": str(),
			"route":     str(),
			"startDate": str(),
			"endDate":   str(),
			"status":    str(),
			"notes":     str(),
		}, "name")),
		"allergies": list(object(map[string]any{
			"allergen": str(),
			"reaction": str(),
			"severity": str(),
		}, "allergen")),
		"procedures": list(object(map[string]any{
			"name":  str(),
			"date":  str(),
			"notes": str(),
		}, "name")),
		"recommendations": list(object(map[string]any{
			"text":     map[string]any{"type": "string", "minLength": 1},
			"priority": str(),
			"category": str(),
		}, "text")),
		"warnings": list(str()),
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
}

func str() map[string]any { return map[string]any{"type": "string"} }

func list(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}

func object(props map[string]any, required ...string) map[string]any {
	o := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		o["required"] = required
	}
	return o
}
