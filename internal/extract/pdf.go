package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"tenant-rag-chatbot/internal/logger"
)

// extractPDF pulls plain text out of every readable page. Pages that fail
// individually are skipped so one bad page does not sink the document.
func (e *Extractor) extractPDF(content []byte) (*Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: opening PDF: %v", ErrExtraction, err)
	}

	pages := reader.NumPage()
	var b strings.Builder

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract PDF page", "page", i, "error", err)
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}

	text := b.String()
	if text == "" {
		return nil, fmt.Errorf("%w: PDF contains no extractable text", ErrExtraction)
	}
	return newResult(text, pages), nil
}
