package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/llm"
	"github.com/joseph-ayodele/care-records/internal/pdf"
	"github.com/joseph-ayodele/care-records/internal/storage"
)

const visitJSON = `{
	"documentType": "MEDICAL_RECORD",
	"visit": {"date": "2024-03-01", "provider": {"name": "Dr. Lee", "specialty": "Cardiology"}},
	"medications": [{"name": "Metformin", "dosage": "500mg"}],
	"recommendations": [{"text": "Follow up in 2 weeks", "priority": "low"}]
}`

type fakeModel struct {
	calls  int
	last   llm.Request
	chunks []string
	err    error
}

func (m *fakeModel) Complete(_ context.Context, req llm.Request, onDelta func(string)) (string, error) {
	m.calls++
	m.last = req
	if m.err != nil {
		return "", m.err
	}
	var b strings.Builder
	for _, c := range m.chunks {
		if onDelta != nil {
			onDelta(c)
		}
		b.WriteString(c)
	}
	return b.String(), nil
}

type fakeFetcher struct {
	calls int
	blob  storage.Blob
	err   error
}

func (f *fakeFetcher) Fetch(context.Context, string) (storage.Blob, error) {
	f.calls++
	return f.blob, f.err
}

type fakePDF struct {
	text     string
	textErr  error
	pages    [][]byte
	pageErr  error
	rendered bool
}

func (p *fakePDF) ExtractText(context.Context, []byte) (pdf.TextResult, error) {
	return pdf.TextResult{Text: p.text, Pages: 1}, p.textErr
}

func (p *fakePDF) RenderPages(context.Context, []byte) ([][]byte, error) {
	p.rendered = true
	return p.pages, p.pageErr
}

func stages(events []Event) []string {
	var out []string
	for _, e := range events {
		switch e.Type {
		case EventStatus:
			out = append(out, e.Stage)
		case EventDelta:
			if len(out) == 0 || out[len(out)-1] != "delta" {
				out = append(out, "delta")
			}
		default:
			out = append(out, string(e.Type))
		}
	}
	return out
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short note", 100); got != "short note" {
		t.Fatalf("under budget changed: %q", got)
	}
	if got := Truncate("anything", 0); got != "anything" {
		t.Fatalf("zero budget changed: %q", got)
	}

	text := strings.Repeat("a", 50) + strings.Repeat("m", 100) + strings.Repeat("z", 50)
	got := Truncate(text, 100)
	want := strings.Repeat("a", 50) + strings.Repeat("m", 20) + TruncationMarker + strings.Repeat("z", 10)
	if got != want {
		t.Fatalf("Truncate:\n got %q\nwant %q", got, want)
	}
}

func TestLocateJSON(t *testing.T) {
	span, err := LocateJSON("Here is the record:\n```json\n{\"documentType\": \"OTHER\"}\n```\nDone.")
	if err != nil {
		t.Fatalf("LocateJSON: %v", err)
	}
	if string(span) != `{"documentType": "OTHER"}` {
		t.Fatalf("span = %s", span)
	}

	_, err = LocateJSON("I could not read this document.")
	if !common.IsKind(err, common.KindNoStructuredOutput) {
		t.Fatalf("err = %v, want NoStructuredOutput", err)
	}
}

func TestParseUnsupportedMimeSkipsFetchAndModel(t *testing.T) {
	model := &fakeModel{chunks: []string{visitJSON}}
	fetcher := &fakeFetcher{}
	a := NewAdapter(model, fetcher, nil, Config{}, nil)

	var c Collector
	_, err := a.Parse(context.Background(), Source{URL: "https://files.example.org/a.docx", MIMEType: "application/msword"}, "", c.Observe)
	if !common.IsKind(err, common.KindUnsupportedMimeType) {
		t.Fatalf("err = %v", err)
	}
	if model.calls != 0 || fetcher.calls != 0 {
		t.Fatalf("model calls = %d, fetches = %d", model.calls, fetcher.calls)
	}
	if len(c.Events) != 1 || c.Events[0].Type != EventError {
		t.Fatalf("events = %+v", c.Events)
	}
}

func TestParseTextDocument(t *testing.T) {
	model := &fakeModel{chunks: []string{"```json\n", visitJSON[:40], visitJSON[40:], "\n```"}}
	fetcher := &fakeFetcher{blob: storage.Blob{Name: "visit.txt", Data: []byte("Visit with Dr. Lee. Metformin 500mg.")}}
	a := NewAdapter(model, fetcher, nil, Config{DomainHint: "default"}, nil)

	var c Collector
	res, err := a.Parse(context.Background(), Source{URL: "/inbox/visit.txt", MIMEType: "text/plain; charset=utf-8"}, "cardiology", c.Observe)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []string{StageDownloading, StagePreparing, StageExtracting, "delta", StageValidating, "result"}
	if got := stages(c.Events); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if !strings.Contains(c.Deltas(), `"Metformin"`) {
		t.Errorf("deltas = %q", c.Deltas())
	}
	if model.last.Kind != constants.InputText || model.last.DomainHint != "cardiology" {
		t.Errorf("request = %+v", model.last)
	}
	if !res.Validated || res.Kind != constants.InputText {
		t.Errorf("result validated=%v kind=%s warnings=%v", res.Validated, res.Kind, res.Warnings)
	}
	if len(res.Record.Medications) != 1 || res.Record.Medications[0].Name != "Metformin" {
		t.Errorf("medications = %+v", res.Record.Medications)
	}
	if res.Record.Visit == nil || res.Record.Visit.Provider == nil || res.Record.Visit.Provider.Name != "Dr. Lee" {
		t.Errorf("visit = %+v", res.Record.Visit)
	}
	if res.Record.Diagnoses == nil || res.Record.Allergies == nil {
		t.Error("lists not normalized to empty")
	}
}

func TestExtractSchemaInvalidIsWarning(t *testing.T) {
	model := &fakeModel{chunks: []string{`{"patient": {"name": {"first": "Jane"}}, "medications": ["Lisinopril"]}`}}
	a := NewAdapter(model, nil, nil, Config{}, nil)

	var c Collector
	res, err := a.Extract(context.Background(), Input{Kind: constants.InputText, Text: "note"}, c.Observe)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Validated {
		t.Fatal("invalid record reported as validated")
	}
	if len(res.Record.Medications) != 1 || res.Record.Medications[0].Name != "Lisinopril" {
		t.Errorf("best-effort record lost medications: %+v", res.Record.Medications)
	}
	var warned bool
	for _, e := range c.Events {
		if e.Type == EventStatus && e.Stage == StageValidationWarning && len(e.Warnings) > 0 {
			warned = true
		}
	}
	if !warned {
		t.Errorf("no validation_warning event: %v", stages(c.Events))
	}
	if last := c.Events[len(c.Events)-1]; last.Type != EventResult {
		t.Errorf("last event = %s", last.Type)
	}
}

func TestExtractFailures(t *testing.T) {
	a := NewAdapter(&fakeModel{err: errors.New("connection reset")}, nil, nil, Config{}, nil)
	var c Collector
	_, err := a.Extract(context.Background(), Input{Kind: constants.InputText, Text: "note"}, c.Observe)
	if !common.IsKind(err, common.KindModelFailure) {
		t.Fatalf("err = %v, want ModelFailure", err)
	}
	if last := c.Events[len(c.Events)-1]; last.Type != EventError {
		t.Errorf("last event = %s", last.Type)
	}

	a = NewAdapter(&fakeModel{chunks: []string{"Sorry, nothing here."}}, nil, nil, Config{}, nil)
	_, err = a.Extract(context.Background(), Input{Kind: constants.InputText, Text: "note"}, nil)
	if !common.IsKind(err, common.KindNoStructuredOutput) {
		t.Fatalf("err = %v, want NoStructuredOutput", err)
	}
}

func TestExtractTruncatesText(t *testing.T) {
	model := &fakeModel{chunks: []string{`{}`}}
	a := NewAdapter(model, nil, nil, Config{MaxTextChars: 50}, nil)
	if _, err := a.Extract(context.Background(), Input{Kind: constants.InputPDFText, Text: strings.Repeat("x", 200)}, nil); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(model.last.Text, TruncationMarker) {
		t.Fatalf("text not truncated: %d chars", len(model.last.Text))
	}
}

func TestParsePDFInputSelection(t *testing.T) {
	longText := strings.Repeat("Metformin 500mg twice daily. ", 10)
	tests := []struct {
		name     string
		tools    *fakePDF
		want     constants.InputKind
		rendered bool
	}{
		{"text layer", &fakePDF{text: longText}, constants.InputPDFText, false},
		{"scanned", &fakePDF{text: "  ", pages: [][]byte{[]byte("p1"), []byte("p2")}}, constants.InputPDFImages, true},
		{"text failure renders", &fakePDF{textErr: errors.New("bad xref"), pages: [][]byte{[]byte("p1")}}, constants.InputPDFImages, true},
		{"render failure sends bytes", &fakePDF{pageErr: errors.New("pdftoppm missing")}, constants.InputPDFBytes, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{chunks: []string{`{"documentType": "OTHER"}`}}
			fetcher := &fakeFetcher{blob: storage.Blob{Name: "scan.pdf", Data: []byte("%PDF-1.4")}}
			a := NewAdapter(model, fetcher, tt.tools, Config{}, nil)

			res, err := a.Parse(context.Background(), Source{URL: "/inbox/scan.pdf", MIMEType: constants.MimePDF}, "", nil)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if res.Kind != tt.want || model.last.Kind != tt.want {
				t.Fatalf("kind = %s (request %s), want %s", res.Kind, model.last.Kind, tt.want)
			}
			if tt.tools.rendered != tt.rendered {
				t.Errorf("rendered = %v", tt.tools.rendered)
			}
			switch tt.want {
			case constants.InputPDFImages:
				if len(model.last.Images) == 0 || model.last.Images[0].MIMEType != "image/png" || model.last.Images[0].Filename != "page-1.png" {
					t.Errorf("images = %+v", model.last.Images)
				}
			case constants.InputPDFBytes:
				if model.last.File == nil || model.last.File.MIMEType != constants.MimePDF {
					t.Errorf("file = %+v", model.last.File)
				}
			}
		})
	}
}

func TestParseDownloadFailure(t *testing.T) {
	model := &fakeModel{}
	a := NewAdapter(model, &fakeFetcher{err: storage.ErrNotFound}, nil, Config{}, nil)
	_, err := a.Parse(context.Background(), Source{URL: "/missing.png", MIMEType: "image/png"}, "", nil)
	if !common.IsKind(err, common.KindDownloadFailure) || !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
	if model.calls != 0 {
		t.Fatalf("model called after failed download")
	}
}
