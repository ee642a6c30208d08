// Package extraction turns a stored document into a validated ExtractionRecord
// by way of an external AI model.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/common"
	"github.com/joseph-ayodele/care-records/internal/entity"
	"github.com/joseph-ayodele/care-records/internal/llm"
	"github.com/joseph-ayodele/care-records/internal/pdf"
	"github.com/joseph-ayodele/care-records/internal/storage"
)

// PDFTools is the local PDF capability the adapter needs.
type PDFTools interface {
	ExtractText(ctx context.Context, data []byte) (pdf.TextResult, error)
	RenderPages(ctx context.Context, data []byte) ([][]byte, error)
}

type Config struct {
	MaxTextChars int    // text budget sent to the model, default 100000
	MinTextChars int    // PDF text below this many signal chars falls back to pages, default 100
	DomainHint   string // default domain hint when a call does not pass one
}

// Source names a stored document.
type Source struct {
	URL      string
	MIMEType string
}

// Input is the content handed to the model for one call.
type Input struct {
	Kind       constants.InputKind
	Text       string
	Images     []llm.Attachment
	File       *llm.Attachment
	DomainHint string
}

// Result is a parsed document. Validated is false when the record is best-effort
// data that failed schema validation; Warnings says why.
type Result struct {
	Kind      constants.InputKind
	Record    entity.ExtractionRecord
	Raw       json.RawMessage
	Validated bool
	Warnings  []string
}

type Adapter struct {
	model   llm.Capability
	fetcher storage.Fetcher
	pdf     PDFTools
	cfg     Config
	logger  *slog.Logger
}

func NewAdapter(model llm.Capability, fetcher storage.Fetcher, pdfTools PDFTools, cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = 100_000
	}
	if cfg.MinTextChars <= 0 {
		cfg.MinTextChars = 100
	}
	return &Adapter{model: model, fetcher: fetcher, pdf: pdfTools, cfg: cfg, logger: logger}
}

// Parse downloads the document, selects the input form by MIME type, and extracts it.
// Unsupported MIME types fail before any download or model call.
func (a *Adapter) Parse(ctx context.Context, src Source, domainHint string, obs Observer) (Result, error) {
	class := constants.ClassifyMIME(src.MIMEType)
	if class == constants.SourceUnsupported {
		err := common.UnsupportedMimeType(src.MIMEType)
		a.logger.Warn("extraction.unsupported_mime", "mime", src.MIMEType)
		obs.emit(Event{Type: EventError, Err: err})
		return Result{}, err
	}

	obs.emit(Event{Type: EventStatus, Stage: StageDownloading})
	blob, err := a.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		if common.KindOf(err) != common.KindDownloadFailure {
			err = common.DownloadFailure("fetch document", err)
		}
		obs.emit(Event{Type: EventError, Err: err})
		return Result{}, err
	}

	obs.emit(Event{Type: EventStatus, Stage: StagePreparing})
	in, err := a.buildInput(ctx, class, src, blob)
	if err != nil {
		obs.emit(Event{Type: EventError, Err: err})
		return Result{}, err
	}
	in.DomainHint = domainHint
	return a.Extract(ctx, in, obs)
}

func (a *Adapter) buildInput(ctx context.Context, class constants.SourceClass, src Source, blob storage.Blob) (Input, error) {
	mt := constants.NormalizeMIME(src.MIMEType)
	switch class {
	case constants.SourceImage:
		return Input{
			Kind:   constants.InputImage,
			Images: []llm.Attachment{{MIMEType: mt, Filename: blob.Name, Data: blob.Data}},
		}, nil

	case constants.SourceText:
		return Input{Kind: constants.InputText, Text: string(blob.Data)}, nil

	case constants.SourcePDF:
		if a.pdf != nil {
			res, err := a.pdf.ExtractText(ctx, blob.Data)
			switch {
			case err != nil:
				a.logger.Warn("extraction.pdf.text_failed", "error", err)
			case pdf.SignalChars(res.Text) > a.cfg.MinTextChars:
				a.logger.Info("extraction.pdf.text_path", "pages", res.Pages, "chars", len(res.Text))
				return Input{Kind: constants.InputPDFText, Text: res.Text}, nil
			default:
				a.logger.Info("extraction.pdf.low_text", "pages", res.Pages, "chars", len(res.Text))
			}

			pages, err := a.pdf.RenderPages(ctx, blob.Data)
			if err == nil && len(pages) > 0 {
				images := make([]llm.Attachment, len(pages))
				for i, p := range pages {
					images[i] = llm.Attachment{MIMEType: "image/png", Filename: fmt.Sprintf("page-%d.png", i+1), Data: p}
				}
				return Input{Kind: constants.InputPDFImages, Images: images}, nil
			}
			if err != nil {
				a.logger.Warn("extraction.pdf.render_failed", "error", err)
			}
		}
		return Input{
			Kind: constants.InputPDFBytes,
			File: &llm.Attachment{MIMEType: constants.MimePDF, Filename: blob.Name, Data: blob.Data},
		}, nil
	}
	return Input{}, common.UnsupportedMimeType(src.MIMEType)
}

// Extract sends in to the model, streams its output to obs, and validates the result.
// A record that fails schema validation is still returned, with a validation warning.
func (a *Adapter) Extract(ctx context.Context, in Input, obs Observer) (Result, error) {
	start := time.Now()
	if in.DomainHint == "" {
		in.DomainHint = a.cfg.DomainHint
	}
	if in.Kind == constants.InputPDFText || in.Kind == constants.InputText {
		truncated := Truncate(in.Text, a.cfg.MaxTextChars)
		if len(truncated) != len(in.Text) {
			a.logger.Info("extraction.text.truncated", "chars", len(in.Text), "budget", a.cfg.MaxTextChars)
		}
		in.Text = truncated
	}

	obs.emit(Event{Type: EventStatus, Stage: StageExtracting})
	content, err := a.model.Complete(ctx, llm.Request{
		Kind:       in.Kind,
		Text:       in.Text,
		Images:     in.Images,
		File:       in.File,
		DomainHint: in.DomainHint,
	}, func(d string) { obs.emit(Event{Type: EventDelta, Delta: d}) })
	if err != nil {
		err = common.NewAppError(common.KindModelFailure, "model call", err)
		obs.emit(Event{Type: EventError, Err: err})
		return Result{}, err
	}

	obs.emit(Event{Type: EventStatus, Stage: StageValidating})
	res, err := a.parseOutput(content)
	if err != nil {
		a.logger.Error("extraction.output.unparsable", "error", err, "content_len", len(content))
		obs.emit(Event{Type: EventError, Err: err})
		return Result{}, err
	}
	res.Kind = in.Kind
	if !res.Validated {
		obs.emit(Event{Type: EventStatus, Stage: StageValidationWarning, Warnings: res.Warnings})
	}

	a.logger.Info("extraction.ok",
		"kind", in.Kind,
		"document_type", res.Record.DocumentType,
		"medications", len(res.Record.Medications),
		"recommendations", len(res.Record.Recommendations),
		"validated", res.Validated,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	obs.emit(Event{Type: EventResult, Result: &res})
	return res, nil
}

// parseOutput locates, normalizes, validates and decodes the model's JSON.
func (a *Adapter) parseOutput(content string) (Result, error) {
	span, err := LocateJSON(content)
	if err != nil {
		return Result{}, err
	}
	doc, err := decodeObject(span)
	if err != nil {
		return Result{}, err
	}

	changes := llm.NormalizeExtraction(doc, a.logger)
	res := Result{Validated: true}
	if len(changes) > 0 {
		res.Warnings = append(res.Warnings, changes...)
	}
	if err := llm.ValidateExtraction(doc); err != nil {
		res.Validated = false
		res.Warnings = append(res.Warnings, common.KindSchemaValidationWarning+": "+err.Error())
		a.logger.Warn("extraction.schema_validation_warning", "error", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return Result{}, common.NoStructuredOutput("re-encode json", err)
	}
	res.Raw = raw

	// Best-effort decode: type mismatches leave the field empty instead of failing the record.
	var rec entity.ExtractionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return Result{}, common.NoStructuredOutput("decode record", err)
		}
		res.Validated = false
		res.Warnings = append(res.Warnings, "decode: "+err.Error())
	}
	rec.Normalize()
	res.Record = rec
	return res, nil
}
