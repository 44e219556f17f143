package extract

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrExtraction is returned when a document's content cannot be converted
// to plain text. Ingestion treats it as a permanent failure for that file.
var ErrExtraction = errors.New("text extraction failed")

// ErrUnsupportedType is returned for file types the extractor does not know.
var ErrUnsupportedType = errors.New("unsupported document type")

// Result carries the extracted plain text plus basic stats used for the
// uploaded file record.
type Result struct {
	Text           string
	WordCount      int
	CharacterCount int
	Pages          int
}

// Extractor converts uploaded documents into plain text for chunking and
// indexing. Dispatch is by extension first, then content type.
type Extractor struct {
	maxFileSize int64
}

func New(maxFileSize int64) *Extractor {
	return &Extractor{maxFileSize: maxFileSize}
}

// Extract converts content into plain text based on the original filename
// and declared content type.
func (e *Extractor) Extract(filename, contentType string, content []byte) (*Result, error) {
	if e.maxFileSize > 0 && int64(len(content)) > e.maxFileSize {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrExtraction, e.maxFileSize)
	}

	switch kind := detectKind(filename, contentType); kind {
	case "txt", "md":
		return e.extractPlain(content)
	case "csv":
		return e.extractCSV(content)
	case "json":
		return e.extractJSON(content)
	case "html":
		return e.extractHTML(content)
	case "pdf":
		return e.extractPDF(content)
	case "xlsx":
		return e.extractXLSX(content)
	default:
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, filepath.Ext(filename), contentType)
	}
}

// SupportedExtensions lists the file extensions Extract accepts, used by the
// upload endpoint for early validation.
func SupportedExtensions() []string {
	return []string{".txt", ".md", ".csv", ".json", ".html", ".htm", ".pdf", ".xlsx"}
}

func detectKind(filename, contentType string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return "txt"
	case ".md", ".markdown":
		return "md"
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	case ".html", ".htm":
		return "html"
	case ".pdf":
		return "pdf"
	case ".xlsx":
		return "xlsx"
	}

	switch {
	case strings.HasPrefix(contentType, "text/plain"):
		return "txt"
	case strings.HasPrefix(contentType, "text/markdown"):
		return "md"
	case strings.HasPrefix(contentType, "text/csv"):
		return "csv"
	case strings.HasPrefix(contentType, "application/json"):
		return "json"
	case strings.HasPrefix(contentType, "text/html"):
		return "html"
	case strings.HasPrefix(contentType, "application/pdf"):
		return "pdf"
	case strings.HasPrefix(contentType, "application/vnd.openxmlformats-officedocument.spreadsheetml"):
		return "xlsx"
	}
	return ""
}

func (e *Extractor) extractPlain(content []byte) (*Result, error) {
	text := strings.TrimSpace(string(content))
	if text == "" {
		return nil, fmt.Errorf("%w: document is empty", ErrExtraction)
	}
	return newResult(text, 1), nil
}

// extractCSV renders each row as "header: value" pairs so column context
// survives chunking.
func (e *Extractor) extractCSV(content []byte) (*Result, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading CSV header: %v", ErrExtraction, err)
	}

	var b strings.Builder
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading CSV row: %v", ErrExtraction, err)
		}

		var fields []string
		for i, value := range record {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				fields = append(fields, fmt.Sprintf("%s: %s", strings.TrimSpace(header[i]), value))
			} else {
				fields = append(fields, value)
			}
		}
		if len(fields) > 0 {
			b.WriteString(strings.Join(fields, ", "))
			b.WriteString("\n")
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return nil, fmt.Errorf("%w: CSV contains no data rows", ErrExtraction)
	}
	return newResult(text, 1), nil
}

// extractJSON flattens objects and arrays into "path: value" lines.
func (e *Extractor) extractJSON(content []byte) (*Result, error) {
	var data interface{}
	if err := json.Unmarshal(content, &data); err != nil {
		return nil, fmt.Errorf("%w: parsing JSON: %v", ErrExtraction, err)
	}

	var lines []string
	flattenJSON("", data, &lines)
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: JSON contains no values", ErrExtraction)
	}
	return newResult(strings.Join(lines, "\n"), 1), nil
}

func flattenJSON(prefix string, value interface{}, lines *[]string) {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flattenJSON(joinPath(prefix, k), v[k], lines)
		}
	case []interface{}:
		for i, item := range v {
			flattenJSON(fmt.Sprintf("%s[%d]", prefix, i), item, lines)
		}
	case nil:
		// Null values carry no searchable content.
	default:
		text := strings.TrimSpace(fmt.Sprintf("%v", v))
		if text == "" {
			return
		}
		if prefix == "" {
			*lines = append(*lines, text)
		} else {
			*lines = append(*lines, fmt.Sprintf("%s: %s", prefix, text))
		}
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// extractHTML strips markup and keeps visible text, dropping script and
// style content.
func (e *Extractor) extractHTML(content []byte) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing HTML: %v", ErrExtraction, err)
	}

	doc.Find("script, style, noscript, iframe").Remove()

	var b strings.Builder
	doc.Find("h1, h2, h3, h4, h5, h6, p, li, td, th, pre, blockquote, title").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			b.WriteString(text)
			b.WriteString("\n\n")
		}
	})

	text := strings.TrimSpace(b.String())
	if text == "" {
		// Fall back to the whole body for pages without semantic markup.
		text = strings.TrimSpace(doc.Find("body").Text())
	}
	if text == "" {
		return nil, fmt.Errorf("%w: HTML contains no visible text", ErrExtraction)
	}
	return newResult(normalizeWhitespace(text), 1), nil
}

func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func newResult(text string, pages int) *Result {
	return &Result{
		Text:           text,
		WordCount:      len(strings.Fields(text)),
		CharacterCount: len(text),
		Pages:          pages,
	}
}
