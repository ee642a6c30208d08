package llm

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return m
}

func TestNormalizeExtraction(t *testing.T) {
	m := decode(t, `{
		"document_type": "medical record",
		"meds": [
			"Lisinopril 10mg",
			{"medication": "Metformin", "dose": 500, "start_date": "2024-01-02", "notes": null},
			{"dosage": "5mg"}
		],
		"allergy": "Penicillin",
		"visit": {"provider": "Dr. Patel", "date": " 2024-03-01 ", "facility": "n/a"},
		"patient": "Jane",
		"confidence": 0.9
	}`)

	changes := NormalizeExtraction(m, nil)
	if len(changes) == 0 {
		t.Fatal("expected changes to be reported")
	}
	if m["documentType"] != "MEDICAL_RECORD" {
		t.Errorf("documentType = %v", m["documentType"])
	}
	meds := m["medications"].([]any)
	if len(meds) != 2 {
		t.Fatalf("medications = %v", meds)
	}
	if first := meds[0].(map[string]any); first["name"] != "Lisinopril 10mg" {
		t.Errorf("bare string item = %v", first)
	}
	second := meds[1].(map[string]any)
	if second["name"] != "Metformin" || second["dosage"] != "500" || second["startDate"] != "2024-01-02" {
		t.Errorf("renamed item = %v", second)
	}
	if _, ok := second["notes"]; ok {
		t.Errorf("null field kept: %v", second)
	}
	if allergies := m["allergies"].([]any); len(allergies) != 1 {
		t.Errorf("allergies = %v", allergies)
	}
	visit := m["visit"].(map[string]any)
	if visit["date"] != "2024-03-01" || visit["facility"] != nil {
		t.Errorf("visit = %v", visit)
	}
	if p := visit["provider"].(map[string]any); p["name"] != "Dr. Patel" {
		t.Errorf("provider = %v", p)
	}
	for _, k := range []string{"patient", "confidence", "meds", "document_type"} {
		if _, ok := m[k]; ok {
			t.Errorf("key %q survived normalization", k)
		}
	}
	if err := ValidateExtraction(m); err != nil {
		t.Errorf("normalized record does not validate: %v", err)
	}
}

func TestNormalizeUnknownDocumentType(t *testing.T) {
	m := decode(t, `{"documentType": "lab report"}`)
	NormalizeExtraction(m, nil)
	if m["documentType"] != "OTHER" {
		t.Fatalf("documentType = %v", m["documentType"])
	}
}

func TestValidateExtraction(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"empty record", `{}`, false},
		{"full record", `{"documentType":"MEDICAL_RECORD","medications":[{"name":"Aspirin","dosage":"81mg"}],"recommendations":[{"text":"Walk daily","priority":"low"}],"warnings":[]}`, false},
		{"unknown document type", `{"documentType":"RECEIPT"}`, true},
		{"medication without name", `{"medications":[{"dosage":"5mg"}]}`, true},
		{"empty recommendation text", `{"recommendations":[{"text":""}]}`, true},
		{"extra top-level key", `{"confidence":1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExtraction(decode(t, tt.doc))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateJSONAgainstSchema(t *testing.T) {
	schema := map[string]any{"type": "object", "required": []string{"a"}}
	if err := ValidateJSONAgainstSchema(schema, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("valid: %v", err)
	}
	if err := ValidateJSONAgainstSchema(schema, []byte(`{}`)); err == nil {
		t.Fatal("missing required key accepted")
	}
	if err := ValidateJSONAgainstSchema(schema, []byte(`{`)); err == nil {
		t.Fatal("malformed json accepted")
	}
}

func TestReadSSE(t *testing.T) {
	body := strings.Join([]string{
		": keep-alive",
		"data: {\"n\":1}",
		"",
		"event: message",
		"data:{\"n\":2}",
		"data: [DONE]",
		"data: {\"n\":3}",
	}, "\n")
	var got []string
	err := ReadSSE(strings.NewReader(body), func(p []byte) error {
		got = append(got, string(p))
		return nil
	})
	if err != nil {
		t.Fatalf("ReadSSE: %v", err)
	}
	if strings.Join(got, ",") != `{"n":1},{"n":2}` {
		t.Fatalf("payloads = %v", got)
	}

	stop := errors.New("stop")
	if err := ReadSSE(strings.NewReader("data: x\n"), func([]byte) error { return stop }); !errors.Is(err, stop) {
		t.Fatalf("callback error not returned: %v", err)
	}
}

func TestBuildUserPrompt(t *testing.T) {
	p := BuildUserPrompt(Request{Kind: "text", Text: "Take aspirin 81mg daily."})
	if !strings.Contains(p, "Take aspirin 81mg daily.") {
		t.Fatalf("prompt does not carry the document text: %q", p)
	}
	if s := BuildSystemPrompt("medical"); !strings.Contains(strings.ToLower(s), "medical") {
		t.Fatalf("system prompt ignores the domain hint: %q", s)
	}
}
