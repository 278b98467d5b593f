package placeholder_test

import (
	"strings"
	"testing"

	"github.com/valpere/doctran/internal/placeholder"
)

func TestProtect_NoMarkup(t *testing.T) {
	text := "Hello, world!"
	got, markers := placeholder.Protect(text)
	if got != text {
		t.Errorf("expected unchanged text, got %q", got)
	}
	if len(markers) != 0 {
		t.Errorf("expected 0 markers, got %d", len(markers))
	}
}

func TestProtect_HTMLTags(t *testing.T) {
	got, markers := placeholder.Protect("<p>Hello <b>world</b></p>")
	if len(markers) != 4 {
		t.Fatalf("expected 4 markers, got %d: %v", len(markers), markers)
	}
	for _, tag := range []string{"<p>", "<b>", "</b>", "</p>"} {
		if strings.Contains(got, tag) {
			t.Errorf("tag %q still present in %q", tag, got)
		}
	}
	if !strings.Contains(got, "[PH0]") {
		t.Errorf("expected [PH0] in %q", got)
	}
}

func TestProtect_FencedBeforeInline(t *testing.T) {
	got, markers := placeholder.Protect("Run `x` then:\n```sh\nmake `all`\n```\ndone")
	// The fenced block (backticks inside included) is one marker, the
	// standalone inline span another.
	if len(markers) != 2 {
		t.Fatalf("expected 2 markers, got %d: %v", len(markers), markers)
	}
	if strings.Contains(got, "```") {
		t.Errorf("fenced block still present in %q", got)
	}
}

func TestRestore_RoundTrip(t *testing.T) {
	for _, original := range []string{
		"<p>Hello <b>world</b></p>",
		"Before\n```go\nfmt.Println(\"hi\")\n```\nAfter",
		"Use `fmt.Println` to print.",
	} {
		protected, markers := placeholder.Protect(original)
		if restored := placeholder.Restore(protected, markers); restored != original {
			t.Errorf("round-trip failed:\n  original: %q\n  restored: %q", original, restored)
		}
	}
}

func TestRestore_InventedIndexKept(t *testing.T) {
	restored := placeholder.Restore("[PH99] some text", placeholder.Markers{"<p>"})
	if !strings.Contains(restored, "[PH99]") {
		t.Errorf("expected [PH99] kept verbatim, got %q", restored)
	}
}

func TestRestore_DroppedMarkerTolerated(t *testing.T) {
	protected, markers := placeholder.Protect("<p>Hello</p> <b>world</b>")
	withoutPH1 := strings.Replace(protected, "[PH1]", "", 1)
	restored := placeholder.Restore(withoutPH1, markers)
	if strings.Contains(restored, "</p>") {
		t.Errorf("dropped marker should stay absent, got %q", restored)
	}
	if !strings.Contains(restored, "<p>") {
		t.Errorf("surviving markers should restore, got %q", restored)
	}
}

func TestMissing(t *testing.T) {
	markers := placeholder.Markers{"<p>", "</p>", "<b>"}
	missing := placeholder.Missing("[PH0] some text", markers)
	if len(missing) != 2 || missing[0] != 1 || missing[1] != 2 {
		t.Errorf("expected missing [1 2], got %v", missing)
	}
	if m := placeholder.Missing("[PH0] a [PH1] b [PH2]", markers); len(m) != 0 {
		t.Errorf("expected none missing, got %v", m)
	}
}
