// Package pdftext turns an uploaded PDF into prompt text.
package pdftext

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxBytes bounds the decoded document size.
const MaxBytes = 10 << 20

var (
	ErrInvalidEncoding = errors.New("pdf payload is not valid base64")
	ErrTooLarge        = errors.New("pdf payload too large")
	ErrNoText          = errors.New("no text extracted from pdf")
)

var spaceRun = regexp.MustCompile(`[ \t\f\r]+`)
var blankLines = regexp.MustCompile(`\n{3,}`)

// FromBase64 decodes b64 (optionally a data: URL) and returns the plain text
// of every readable page.
func FromBase64(b64 string) (string, error) {
	b64 = strings.TrimSpace(b64)
	if i := strings.Index(b64, ";base64,"); i >= 0 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+len(";base64,"):]
	}
	if base64.StdEncoding.DecodedLen(len(b64)) > MaxBytes {
		return "", ErrTooLarge
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", ErrInvalidEncoding
	}
	return Extract(raw)
}

// Extract reads the text layer of a PDF held in memory. Pages that fail to
// decode are skipped.
func Extract(raw []byte) (text string, err error) {
	defer func() {
		// the parser panics on some malformed xref tables
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("open pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		t, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(t)
		b.WriteString("\n")
	}

	out := normalize(b.String())
	if out == "" {
		return "", ErrNoText
	}
	return out, nil
}

func normalize(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
