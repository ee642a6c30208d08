package constants

import (
	"mime"
	"strings"
)

// InputKind is how a document is handed to the extraction model.
type InputKind string

const (
	InputImage     InputKind = "image"
	InputPDFText   InputKind = "pdfText"
	InputPDFImages InputKind = "pdfImages"
	InputPDFBytes  InputKind = "pdfBytes"
	InputText      InputKind = "text"
)

// SourceClass groups MIME types by the extraction path they take.
type SourceClass string

const (
	SourceImage       SourceClass = "IMAGE"
	SourcePDF         SourceClass = "PDF"
	SourceText        SourceClass = "TXT"
	SourceUnsupported SourceClass = ""
)

const (
	MimePDF  = "application/pdf"
	MimeText = "text/plain"
)

// AllowedExtensions holds the file extensions picked up by the inbox watcher.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
	"gif":  {},
	"txt":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// NormalizeMIME lowercases and drops parameters ("text/plain; charset=utf-8" -> "text/plain").
func NormalizeMIME(mt string) string {
	mt = strings.TrimSpace(strings.ToLower(mt))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// ClassifyMIME maps a declared MIME type to its extraction path.
func ClassifyMIME(mt string) SourceClass {
	mt = NormalizeMIME(mt)
	switch {
	case strings.HasPrefix(mt, "image/"):
		return SourceImage
	case mt == MimePDF:
		return SourcePDF
	case mt == MimeText:
		return SourceText
	default:
		return SourceUnsupported
	}
}

// MIMEFromExt resolves a MIME type for an extension, with fallbacks for the common ones.
func MIMEFromExt(ext string) string {
	ext = NormalizeExt(ext)
	switch ext {
	case "pdf":
		return MimePDF
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "txt":
		return MimeText
	}
	if mt := mime.TypeByExtension("." + ext); mt != "" {
		return NormalizeMIME(mt)
	}
	return "application/octet-stream"
}
