package llm

import (
	"strings"

	"github.com/joseph-ayodele/care-records/constants"
)

// BuildSystemPrompt composes the system message for clinical document extraction.
func BuildSystemPrompt(domainHint string) string {
	types := make([]string, 0, len(constants.DocumentTypes))
	for _, t := range constants.DocumentTypes {
		types = append(types, string(t))
	}

	parts := []string{
		"You extract structured data from care-record documents for family caregivers.",
		"Return ONLY one JSON object that matches the provided JSON Schema. No prose, no code fences.",
		"documentType must be one of: " + strings.Join(types, ", ") + ".",
		"Use ISO-8601 dates (YYYY-MM-DD) when the document gives a full date.",
		"List every medication mentioned, including ones stopped or changed; put words like 'discontinued' or 'stopped' in its status.",
		"Keep dosage exactly as written (e.g. '500mg', '10 units').",
		"For recommendations, copy each instruction as its own item; set priority only when the document signals urgency.",
		"Put anything clinically alarming (e.g. drug interactions, abnormal results) in warnings.",
		"Never output null. If a field is not present, omit it. Lists may be empty.",
	}
	if h := strings.TrimSpace(domainHint); h != "" {
		parts = append(parts, "Context: "+h+".")
	}
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the document text or a note about attached content.
func BuildUserPrompt(req Request) string {
	var b strings.Builder
	switch req.Kind {
	case constants.InputPDFText, constants.InputText:
		b.WriteString("Document text:\n")
		b.WriteString(req.Text)
	case constants.InputPDFImages:
		b.WriteString("The attached images are the pages of one document, in order.")
	case constants.InputPDFBytes:
		b.WriteString("The attached PDF is the document.")
	default:
		b.WriteString("The attached image is the document.")
	}
	b.WriteString("\n\nReturn ONLY JSON that matches the provided schema.")
	return b.String()
}
