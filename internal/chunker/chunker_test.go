package chunker

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name    string
		max     int
		overlap int
	}{
		{"zero max", 0, 0},
		{"negative max", -1, 0},
		{"negative overlap", 100, -1},
		{"overlap equals max", 100, 100},
		{"overlap exceeds max", 100, 150},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.max, tc.overlap); !errors.Is(err, ErrChunkConfig) {
				t.Fatalf("New(%d, %d) = %v, want ErrChunkConfig", tc.max, tc.overlap, err)
			}
		})
	}
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	s, err := New(100, 20)
	if err != nil {
		t.Fatal(err)
	}

	for _, text := range []string{"a", "hello world", strings.Repeat("x", 100)} {
		chunks := s.Split(text)
		if len(chunks) != 1 {
			t.Fatalf("Split(%q) returned %d chunks, want 1", text, len(chunks))
		}
		if chunks[0].Text != text {
			t.Errorf("single chunk = %q, want whole text", chunks[0].Text)
		}
		if chunks[0].Overlap != 0 {
			t.Errorf("single chunk overlap = %d, want 0", chunks[0].Overlap)
		}
	}
}

func TestSplitEmptyText(t *testing.T) {
	s, _ := New(10, 2)
	if chunks := s.Split(""); len(chunks) != 0 {
		t.Fatalf("Split(\"\") returned %d chunks, want 0", len(chunks))
	}
}

func TestSplitExactOverlap(t *testing.T) {
	s, err := New(4, 1)
	if err != nil {
		t.Fatal(err)
	}

	chunks := s.Split("ABCDEFGHIJ")
	want := []string{"ABCD", "DEFG", "GHIJ"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks %v, want %d", len(chunks), chunks, len(want))
	}
	for i, w := range want {
		if chunks[i].Text != w {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i].Text, w)
		}
	}

	// Consecutive chunks share exactly one character.
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1].Text
		if prev[len(prev)-1:] != chunks[i].Text[:1] {
			t.Errorf("chunks %d/%d do not share a boundary character", i-1, i)
		}
	}
}

func TestSplitCoverageInvariant(t *testing.T) {
	texts := []string{
		"ABCDEFGHIJ",
		strings.Repeat("lorem ipsum dolor sit amet. ", 50),
		"First paragraph about returns.\n\nSecond paragraph about shipping times and carriers.\n\nThird paragraph.",
		strings.Repeat("z", 997),
	}

	configs := []struct{ max, overlap int }{
		{4, 1}, {10, 3}, {64, 16}, {100, 0}, {50, 25},
	}

	for _, cfg := range configs {
		s, err := New(cfg.max, cfg.overlap)
		if err != nil {
			t.Fatal(err)
		}
		for _, text := range texts {
			chunks := s.Split(text)
			if got := Reassemble(chunks); got != text {
				t.Errorf("max=%d overlap=%d: reassembled text differs from input (got %d bytes, want %d)",
					cfg.max, cfg.overlap, len(got), len(text))
			}
			for _, c := range chunks {
				if len(c.Text) == 0 {
					t.Fatalf("max=%d overlap=%d: empty chunk at index %d", cfg.max, cfg.overlap, c.Index)
				}
				if len(c.Text) > cfg.max {
					t.Errorf("max=%d overlap=%d: chunk %d has length %d", cfg.max, cfg.overlap, c.Index, len(c.Text))
				}
			}
		}
	}
}

func TestSplitKeepsRuneBoundaries(t *testing.T) {
	texts := []string{
		// No ASCII whitespace anywhere, so every cut is a hard cut.
		strings.Repeat("知识库内容", 30),
		// Multi-byte runes mixed with sentence boundaries.
		strings.Repeat("退货政策为三十天. ", 20),
		strings.Repeat("日本語テキスト", 25) + "\n\n" + strings.Repeat("продукт", 15),
	}

	configs := []struct{ max, overlap int }{
		{100, 10}, {64, 16}, {50, 0},
	}

	for _, cfg := range configs {
		s, err := New(cfg.max, cfg.overlap)
		if err != nil {
			t.Fatal(err)
		}
		for _, text := range texts {
			chunks := s.Split(text)
			for _, c := range chunks {
				if !utf8.ValidString(c.Text) {
					t.Fatalf("max=%d overlap=%d: chunk %d is invalid UTF-8: %q",
						cfg.max, cfg.overlap, c.Index, c.Text)
				}
				if len(c.Text) > cfg.max {
					t.Errorf("max=%d overlap=%d: chunk %d has length %d",
						cfg.max, cfg.overlap, c.Index, len(c.Text))
				}
				if text[c.Start:c.End] != c.Text {
					t.Errorf("max=%d overlap=%d: chunk %d offsets [%d,%d) do not match its text",
						cfg.max, cfg.overlap, c.Index, c.Start, c.End)
				}
			}
			if got := Reassemble(chunks); got != text {
				t.Errorf("max=%d overlap=%d: reassembled text differs from input (got %d bytes, want %d)",
					cfg.max, cfg.overlap, len(got), len(text))
			}
		}
	}
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	s, err := New(100, 10)
	if err != nil {
		t.Fatal(err)
	}

	// A sentence ends inside the tolerance window before the 100-byte limit.
	text := strings.Repeat("a", 85) + ". " + strings.Repeat("b", 60)
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Text, ". ") {
		t.Errorf("first chunk should end at the sentence boundary, got %q...", chunks[0].Text[len(chunks[0].Text)-5:])
	}
	if got := Reassemble(chunks); got != text {
		t.Error("boundary splitting broke the coverage invariant")
	}
}

func TestSplitChunkIndexesAndOffsets(t *testing.T) {
	s, _ := New(8, 2)
	text := strings.Repeat("abcdefgh", 5)
	chunks := s.Split(text)

	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if text[c.Start:c.End] != c.Text {
			t.Errorf("chunk %d offsets [%d,%d) do not match its text", i, c.Start, c.End)
		}
		if i > 0 && c.Start != chunks[i-1].End-c.Overlap {
			t.Errorf("chunk %d start %d inconsistent with predecessor end %d and overlap %d",
				i, c.Start, chunks[i-1].End, c.Overlap)
		}
	}
}
