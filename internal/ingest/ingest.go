// Package ingest registers local files as PENDING documents and queues them
// for processing.
package ingest

import (
	"context"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/internal/async"
	"github.com/joseph-ayodele/care-records/internal/entity"
)

// Result is the per-file ingest outcome.
type Result struct {
	SourcePath   string
	DocumentID   uuid.UUID
	HashHex      string
	FileType     string
	Deduplicated bool
	Enqueued     bool
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Owner is who documents found in the inbox belong to.
type Owner struct {
	FamilyID  uuid.UUID
	PatientID *uuid.UUID
	UserID    string
}

type DocumentRegistry interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByFamilyAndHash(ctx context.Context, familyID uuid.UUID, hash string) (*entity.Document, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job async.Job) error
}
