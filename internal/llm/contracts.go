package llm

import (
	"context"

	"github.com/joseph-ayodele/care-records/constants"
)

// Attachment is binary content passed to the model (an image or a PDF).
type Attachment struct {
	MIMEType string
	Filename string
	Data     []byte
}

// Request is one extraction call. Exactly one of Text, Images or File carries the content,
// according to Kind.
type Request struct {
	Kind       constants.InputKind
	Text       string
	Images     []Attachment
	File       *Attachment
	DomainHint string
}

// Capability is the external AI model: given content, produce the raw model text.
// onDelta, when non-nil, receives partial output as it streams in. The returned string
// is the complete response.
type Capability interface {
	Complete(ctx context.Context, req Request, onDelta func(string)) (string, error)
}
