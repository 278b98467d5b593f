package chunker_test

import (
	"strings"
	"testing"

	"github.com/valpere/doctran/internal/chunker"
)

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	text := "Hello, world!"
	chunks, err := chunker.Chunk(text, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("expected %q unmodified, got %q", text, chunks[0])
	}
}

func TestChunk_InvalidMaxSize(t *testing.T) {
	for _, size := range []int{0, -1, -100} {
		if _, err := chunker.Chunk("some text", size); err == nil {
			t.Errorf("expected error for maxSize=%d", size)
		}
	}
}

func TestChunk_LosslessConcatenation(t *testing.T) {
	texts := []string{
		"",
		"one two three four five six seven eight nine ten",
		"First sentence ends here. Second sentence follows. Third sentence.",
		strings.Repeat("word ", 500),
		"para one\n\npara two\n\npara three\n\n" + strings.Repeat("x", 200),
		strings.Repeat("nospacesatall", 100),
		"кирилиця і юнікод — перевірка багатобайтових символів. " + strings.Repeat("ще текст ", 50),
	}
	for _, text := range texts {
		for _, size := range []int{1, 7, 20, 50, 1000} {
			chunks, err := chunker.Chunk(text, size)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := strings.Join(chunks, ""); got != text {
				t.Errorf("maxSize=%d: concatenation does not reproduce input\nwant %q\ngot  %q", size, text, got)
			}
		}
	}
}

func TestChunk_SizeBound(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 100)
	maxSize := 120
	chunks, err := chunker.Chunk(text, maxSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, c := range chunks[:len(chunks)-1] {
		if n := len([]rune(c)); n > maxSize {
			t.Errorf("chunk %d exceeds maxSize: %d > %d", i, n, maxSize)
		}
	}
}

func TestChunk_PrefersParagraphBreak(t *testing.T) {
	// A paragraph break sits between the floor (70) and maxSize (100); an
	// earlier sentence boundary and spaces must be passed over in its favor.
	text := "Sentence one ends. " + strings.Repeat("a", 55) + "\n\n" + strings.Repeat("b", 200)
	chunks, err := chunker.Chunk(text, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Errorf("first chunk should end at the paragraph break, got %q", chunks[0])
	}
}

func TestChunk_FallsBackToNewline(t *testing.T) {
	text := strings.Repeat("a", 80) + "\n" + strings.Repeat("b", 200)
	chunks, err := chunker.Chunk(text, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(chunks[0], "\n") {
		t.Errorf("first chunk should end at the newline, got %q", chunks[0])
	}
}

func TestChunk_SentenceBoundaryCutsAfterTerminator(t *testing.T) {
	text := strings.Repeat("a", 80) + ". " + strings.Repeat("b", 200)
	chunks, err := chunker.Chunk(text, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(chunks[0], ". ") {
		t.Errorf("first chunk should include the terminator and space, got %q", chunks[0])
	}
	if strings.HasPrefix(chunks[1], " ") {
		t.Errorf("second chunk should not start with the consumed space: %q", chunks[1])
	}
}

func TestChunk_HardCutWhenNoBoundary(t *testing.T) {
	text := strings.Repeat("x", 250)
	chunks, err := chunker.Chunk(text, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 100 || len(chunks[1]) != 100 || len(chunks[2]) != 50 {
		t.Errorf("expected hard cuts at exactly 100: %d/%d/%d",
			len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

func TestChunk_BoundaryBeforeFloorIgnored(t *testing.T) {
	// The only space is at position 10, well before the 70% floor, so the
	// chunker must hard-cut at maxSize instead of using it.
	text := strings.Repeat("a", 10) + " " + strings.Repeat("b", 300)
	chunks, err := chunker.Chunk(text, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := len([]rune(chunks[0])); n != 100 {
		t.Errorf("expected hard cut at 100, got chunk of length %d", n)
	}
}

func TestChunk_ParagraphDocumentScenario(t *testing.T) {
	// 100k characters with a paragraph break roughly every 2000: expect 4
	// chunks, each ending after a paragraph break, each 21000–30000 long.
	para := strings.Repeat("z", 1998) + "\n\n"
	text := strings.Repeat(para, 50) // 100000 chars
	maxSize := 30000

	chunks, err := chunker.Chunk(text, maxSize)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		n := len([]rune(c))
		if n > maxSize {
			t.Errorf("chunk %d too long: %d", i, n)
		}
		if i < len(chunks)-1 && n < 21000 {
			t.Errorf("chunk %d shorter than the floor allows: %d", i, n)
		}
		if !strings.HasSuffix(c, "\n\n") {
			t.Errorf("chunk %d does not end at a paragraph break", i)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("concatenation does not reproduce the original text")
	}
}
