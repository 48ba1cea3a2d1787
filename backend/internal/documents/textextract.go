package documents

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/jlwestsr/nebulus-gantry/backend/pkg/errors"
)

// ExtractText turns an uploaded file's bytes into prose ready for chunking.
// HTML is parsed into block text; txt/csv/md are decoded as UTF-8 with a
// latin-1 fallback. Unknown content types are a validation error.
func ExtractText(content []byte, contentType string) (string, error) {
	switch contentType {
	case "html", "htm":
		return extractHTML(content)
	case "txt", "csv", "md", "markdown":
		return decodeText(content), nil
	default:
		return "", errors.NewUnsupportedContentType(contentType)
	}
}

// extractHTML flattens an HTML document into paragraph-separated prose,
// dropping script and style content
func extractHTML(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	var parts []string
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, td, th, pre, blockquote").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})

	if len(parts) == 0 {
		// Fallback for pages without block structure
		if text := strings.TrimSpace(doc.Find("body").Text()); text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, "\n\n"), nil
}

// decodeText decodes UTF-8, falling back to latin-1 when the bytes are not
// valid UTF-8. Latin-1 decoding cannot fail: every byte maps to a rune.
func decodeText(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}

	runes := make([]rune, len(content))
	for i, b := range content {
		runes[i] = rune(b)
	}
	return string(runes)
}
