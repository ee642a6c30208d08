package pdf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	DPI       int    // rasterization DPI for page images, default 150
	MaxPages  int    // 0 = no limit
}

// TextResult is the outcome of local text extraction.
type TextResult struct {
	Text     string
	Pages    int
	Duration time.Duration
}

// Extractor runs local PDF tooling: pdfcpu for structure, poppler for text and rendering.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 150
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner (tests).
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

// PageCount validates data as a PDF and returns its page count.
func (e *Extractor) PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return n, nil
}

// ExtractText runs pdftotext over the document and normalizes the result.
func (e *Extractor) ExtractText(ctx context.Context, data []byte) (TextResult, error) {
	start := time.Now()
	pages, err := e.PageCount(data)
	if err != nil {
		return TextResult{}, err
	}

	dir, path, err := writeTemp(data)
	if err != nil {
		return TextResult{}, err
	}
	defer e.removeAll(dir)

	args := []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	args = append(args, path, "-")
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, args...)
	if err != nil {
		return TextResult{Pages: pages}, fmt.Errorf("pdftotext: %w: %s", err, truncate(string(errb), 512))
	}

	res := TextResult{Text: Normalize(string(out)), Pages: pages, Duration: time.Since(start)}
	e.logger.Debug("pdf.text.ok", "pages", pages, "chars", len(res.Text), "elapsed_ms", res.Duration.Milliseconds())
	return res, nil
}

// RenderPages rasterizes the document to PNG page images, in page order.
func (e *Extractor) RenderPages(ctx context.Context, data []byte) ([][]byte, error) {
	dir, path, err := writeTemp(data)
	if err != nil {
		return nil, err
	}
	defer e.removeAll(dir)

	prefix := filepath.Join(dir, "page")
	args := []string{"-r", strconv.Itoa(e.cfg.DPI), "-png"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	args = append(args, path, prefix)
	if _, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, args...); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 512))
	}

	// pdftoppm names pages prefix-1.png, prefix-2.png (zero-padded for larger documents)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images")
	}

	images := make([][]byte, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(min(runtime.NumCPU(), len(matches)), 1))
	for i, m := range matches {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			b, err := os.ReadFile(m)
			if err != nil {
				return fmt.Errorf("read page %d: %w", i+1, err)
			}
			images[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug("pdf.render.ok", "pages", len(images), "dpi", e.cfg.DPI)
	return images, nil
}

func (e *Extractor) removeAll(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		e.logger.Warn("pdf.tmp.cleanup_failed", "dir", dir, "error", err)
	}
}

func writeTemp(data []byte) (dir, path string, err error) {
	dir, err = os.MkdirTemp("", "careplan-pdf-*")
	if err != nil {
		return "", "", err
	}
	path = filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return "", "", err
	}
	return dir, path, nil
}
