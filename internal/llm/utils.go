package llm

import (
	"encoding/base64"

	"github.com/joseph-ayodele/care-records/constants"
)

// DataURL encodes an attachment as a base64 data URL.
func (a Attachment) DataURL() string {
	mt := a.MIMEType
	if mt == "" {
		mt = "application/octet-stream"
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// FilenameOrDefault returns a filename suitable for file content parts.
func (a Attachment) FilenameOrDefault() string {
	if a.Filename != "" {
		return a.Filename
	}
	if a.MIMEType == constants.MimePDF {
		return "document.pdf"
	}
	return "document"
}
