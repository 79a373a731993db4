// Package docs converts product documents to plain text.
package docs

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/dslipak/pdf"
)

// ErrUnsupported is returned for document types with no text conversion.
var ErrUnsupported = errors.New("unsupported document type")

// ErrEmpty is returned when a document yields no text.
var ErrEmpty = errors.New("document has no extractable text")

// Text returns the plain text of a document.
func Text(data []byte, mimeType string) (string, error) {
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	switch {
	case mt == "application/pdf":
		return PDFText(data)
	case strings.HasPrefix(mt, "text/"):
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", ErrEmpty
		}
		return text, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, mimeType)
	}
}

// PDFText extracts the page text of a PDF, pages separated by newlines.
// Pages that fail to parse are skipped.
func PDFText(data []byte) (content string, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if rec := recover(); rec != nil {
			content, err = "", fmt.Errorf("read pdf: %v", rec)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var buf strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	content = strings.TrimSpace(buf.String())
	if content == "" {
		return "", ErrEmpty
	}
	return content, nil
}
