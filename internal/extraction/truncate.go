package extraction

// TruncationMarker separates the kept head and tail of an oversized document.
const TruncationMarker = "\n\n[... content truncated ...]\n\n"

// Truncate keeps text within budget runes. Text at or under budget is returned as is.
// Oversized text keeps its first 70% and last 10% of the budget around TruncationMarker,
// since headers (patient, visit) open a document and follow-up instructions close it.
func Truncate(text string, budget int) string {
	if budget <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	head := budget * 7 / 10
	tail := budget / 10
	return string(runes[:head]) + TruncationMarker + string(runes[len(runes)-tail:])
}
