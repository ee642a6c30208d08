package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/entity"
)

type StaleLister interface {
	ListStale(ctx context.Context, status constants.ParsingStatus, before time.Time, limit int) ([]entity.Document, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Sweeper fails documents stuck in PROCESSING, e.g. after a worker crash, so no
// document stays in a non-terminal state forever.
type Sweeper struct {
	docs       StaleLister
	staleAfter time.Duration
	batch      int
	logger     *slog.Logger
	now        func() time.Time
}

func NewSweeper(docs StaleLister, staleAfter time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &Sweeper{docs: docs, staleAfter: staleAfter, batch: 100, logger: logger, now: time.Now}
}

// Sweep marks every document PROCESSING for longer than staleAfter as FAILED and
// returns how many it changed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)
	stale, err := s.docs.ListStale(ctx, constants.ParsingStatusProcessing, cutoff, s.batch)
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, d := range stale {
		reason := fmt.Sprintf("processing timed out: no progress since %s", d.StatusAt.Format(time.RFC3339))
		if err := s.docs.MarkFailed(ctx, d.ID, reason); err != nil {
			s.logger.Warn("maintenance.sweep.mark_failed", "document_id", d.ID, "error", err)
			continue
		}
		s.logger.Info("maintenance.sweep.failed_document", "document_id", d.ID, "attempts", d.Attempts)
		failed++
	}
	return failed, nil
}
