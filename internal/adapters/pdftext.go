package adapters

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/massy-ia/citydesk/internal/apperr"
)

// ExtractPDFText concatenates the plain text of every page, one page per line.
// Input that is not a readable PDF is a validation error.
func ExtractPDFText(data []byte) (text string, err error) {
	defer func() {
		// The parser panics on some malformed inputs.
		if r := recover(); r != nil {
			text, err = "", apperr.Validation(fmt.Sprintf("unreadable PDF document: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", apperr.Validation("file is not a valid PDF document")
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", apperr.Validation(fmt.Sprintf("failed to read PDF page %d", i))
		}
		b.WriteString(content)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}
