package app

import (
	"bytes"
	"strings"

	"documind/internal/apperr"
	"documind/internal/model"
	"documind/internal/pkg/pdfextract"
)

// extractText turns a document's raw bytes into plain text based on its
// mime type. PDFs go through the PDF extractor; text-like types pass
// through as-is.
func extractText(doc *model.Document) (string, error) {
	switch {
	case doc.MimeType == "application/pdf":
		text, err := pdfextract.ExtractText(bytes.NewReader(doc.RawContent))
		if err != nil {
			return "", apperr.Wrap(apperr.KindValidation, "extract pdf text failed", err)
		}
		return text, nil
	case strings.HasPrefix(doc.MimeType, "text/"),
		doc.MimeType == "application/json":
		return string(doc.RawContent), nil
	}
	return "", apperr.Newf(apperr.KindValidation, "unsupported mime type %q", doc.MimeType)
}
