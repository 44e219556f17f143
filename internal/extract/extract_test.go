package extract

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestExtractPlainText(t *testing.T) {
	e := New(0)

	result, err := e.Extract("notes.txt", "text/plain", []byte("  Shipping takes 3-5 days.  "))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if result.Text != "Shipping takes 3-5 days." {
		t.Errorf("unexpected text: %q", result.Text)
	}
	if result.WordCount != 4 {
		t.Errorf("word count = %d, want 4", result.WordCount)
	}
}

func TestExtractEmptyDocument(t *testing.T) {
	e := New(0)
	if _, err := e.Extract("empty.txt", "text/plain", []byte("   \n  ")); !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestExtractUnsupportedType(t *testing.T) {
	e := New(0)
	if _, err := e.Extract("video.mp4", "video/mp4", []byte("x")); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestExtractFileTooLarge(t *testing.T) {
	e := New(10)
	if _, err := e.Extract("big.txt", "text/plain", bytes.Repeat([]byte("a"), 11)); !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction for oversized file, got %v", err)
	}
}

func TestExtractCSV(t *testing.T) {
	e := New(0)
	csvData := "name,price,category\nWidget,9.99,tools\nGadget,19.99,electronics\n"

	result, err := e.Extract("products.csv", "text/csv", []byte(csvData))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	lines := strings.Split(result.Text, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), result.Text)
	}
	if lines[0] != "name: Widget, price: 9.99, category: tools" {
		t.Errorf("unexpected first row: %q", lines[0])
	}
}

func TestExtractJSON(t *testing.T) {
	e := New(0)
	jsonData := `{"faq": [{"question": "Do you ship abroad?", "answer": "Yes, worldwide."}], "version": 2}`

	result, err := e.Extract("faq.json", "application/json", []byte(jsonData))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(result.Text, "faq[0].question: Do you ship abroad?") {
		t.Errorf("missing flattened question: %q", result.Text)
	}
	if !strings.Contains(result.Text, "version: 2") {
		t.Errorf("missing scalar field: %q", result.Text)
	}
}

func TestExtractHTML(t *testing.T) {
	e := New(0)
	html := `<html><head><title>Returns</title><style>p{color:red}</style></head>
<body><script>alert(1)</script><h1>Return policy</h1><p>Items can be returned within 30 days.</p></body></html>`

	result, err := e.Extract("policy.html", "text/html", []byte(html))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(result.Text, "Return policy") {
		t.Errorf("missing heading: %q", result.Text)
	}
	if !strings.Contains(result.Text, "returned within 30 days") {
		t.Errorf("missing paragraph text: %q", result.Text)
	}
	if strings.Contains(result.Text, "alert(1)") || strings.Contains(result.Text, "color:red") {
		t.Errorf("script or style content leaked: %q", result.Text)
	}
}

func TestExtractXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	f.SetCellValue(sheet, "A1", "sku")
	f.SetCellValue(sheet, "B1", "stock")
	f.SetCellValue(sheet, "A2", "W-100")
	f.SetCellValue(sheet, "B2", 42)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("building workbook: %v", err)
	}
	f.Close()

	e := New(0)
	result, err := e.Extract("inventory.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(result.Text, "sku: W-100, stock: 42") {
		t.Errorf("missing row data: %q", result.Text)
	}
}

func TestDetectKindByContentType(t *testing.T) {
	cases := []struct {
		filename    string
		contentType string
		want        string
	}{
		{"upload", "text/plain; charset=utf-8", "txt"},
		{"upload", "application/pdf", "pdf"},
		{"doc.markdown", "", "md"},
		{"page.HTM", "", "html"},
		{"upload.bin", "application/octet-stream", ""},
	}

	for _, tc := range cases {
		if got := detectKind(tc.filename, tc.contentType); got != tc.want {
			t.Errorf("detectKind(%q, %q) = %q, want %q", tc.filename, tc.contentType, got, tc.want)
		}
	}
}
