// Package extract turns uploaded document bytes into text plus forensic metadata.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"casecounsel-backend/textutil"

	"github.com/gabriel-vasile/mimetype"
)

// Result is the outcome of extraction
type Result struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Extractor converts a buffer into text and metadata
type Extractor interface {
	Extract(ctx context.Context, data []byte, declaredMIME string) (*Result, error)
}

// BasicExtractor handles plain text, markdown, CSV, JSON and HTML.
// Other formats are recorded with metadata only.
type BasicExtractor struct {
	maxChars int
}

// NewBasicExtractor creates an extractor that keeps at most maxChars of text.
// maxChars <= 0 keeps everything.
func NewBasicExtractor(maxChars int) *BasicExtractor {
	return &BasicExtractor{maxChars: maxChars}
}

// DetectMIME sniffs the content type of data
func DetectMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

// Extract implements Extractor
func (e *BasicExtractor) Extract(ctx context.Context, data []byte, declaredMIME string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	detected := mimetype.Detect(data)
	sum := sha256.Sum256(data)

	meta := map[string]interface{}{
		"sha256":        hex.EncodeToString(sum[:]),
		"size_bytes":    len(data),
		"detected_mime": detected.String(),
		"extension":     detected.Extension(),
	}
	if declaredMIME != "" {
		meta["declared_mime"] = declaredMIME
		if !detected.Is(baseMIME(declaredMIME)) && !isTextual(detected) {
			meta["mime_mismatch"] = true
		}
	}

	var text string
	switch {
	case detected.Is("text/html") || baseMIME(declaredMIME) == "text/html":
		text = textutil.StripHTML(string(data))
	case isTextual(detected):
		if !utf8.Valid(data) {
			meta["note"] = "text is not valid UTF-8; invalid bytes replaced"
			text = strings.ToValidUTF8(string(data), "�")
		} else {
			text = string(data)
		}
	default:
		meta["note"] = "text extraction not supported for " + detected.String()
	}

	text = strings.TrimSpace(text)
	meta["char_count"] = utf8.RuneCountInString(text)
	if e.maxChars > 0 && utf8.RuneCountInString(text) > e.maxChars {
		text = textutil.Truncate(text, e.maxChars)
		meta["truncated"] = true
	}

	return &Result{Text: text, Metadata: meta}, nil
}

func isTextual(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func baseMIME(contentType string) string {
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
