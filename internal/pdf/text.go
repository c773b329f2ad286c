package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	textpdf "github.com/dslipak/pdf"
)

// ErrNoText is returned when a document has no extractable text layer.
var ErrNoText = errors.New("pdf contains no text layer")

// PageText is the plain text of one PDF page.
type PageText struct {
	Number int    `json:"page"`
	Text   string `json:"text"`
}

// ExtractText returns the text layer of the selected pages. Pages that
// fail to read or carry no text are skipped.
func ExtractText(ctx context.Context, data []byte, pageRange string) ([]PageText, error) {
	if !IsPDF(data) {
		return nil, errors.New("input is not a PDF document")
	}
	pageNumbers, err := parsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	reader, err := textpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	total := reader.NumPage()
	if len(pageNumbers) == 0 {
		for i := 1; i <= total; i++ {
			pageNumbers = append(pageNumbers, i)
		}
	}

	var out []PageText
	for _, n := range pageNumbers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if n < 1 || n > total {
			continue
		}
		text, ok := pageText(reader, n)
		if !ok {
			continue
		}
		out = append(out, PageText{Number: n, Text: text})
	}
	if len(out) == 0 {
		return nil, ErrNoText
	}
	return out, nil
}

// pageText reads one page, containing panics from malformed content streams.
func pageText(reader *textpdf.Reader, n int) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
		}
	}()

	page := reader.Page(n)
	if page.V.IsNull() {
		return "", false
	}
	text, err := page.GetPlainText(nil)
	if err != nil || strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}

// JoinText concatenates page texts separated by newlines.
func JoinText(pages []PageText) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n")
}
