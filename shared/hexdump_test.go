package shared

import (
	"strings"
	"testing"
)

func TestHexDump(t *testing.T) {
	out := HexDump([]byte("acct\x00\x00\x00\x07binary\xffdata here"))

	if !strings.HasPrefix(out, "(0000) ") {
		t.Errorf("missing offset prefix: %q", out)
	}
	if !strings.Contains(out, "61 63 63 74") {
		t.Errorf("missing hex bytes for %q: %q", "acct", out)
	}
	if !strings.Contains(out, "acct") {
		t.Errorf("missing printable column: %q", out)
	}
	if strings.Contains(out, "\xff") {
		t.Error("non-printable byte leaked into printable column")
	}
	if lines := strings.Count(out, "\n"); lines != 2 {
		t.Errorf("line count = %d, want 2 for a 24-byte buffer", lines)
	}
}

func TestHexDumpEmpty(t *testing.T) {
	if out := HexDump(nil); out != "" {
		t.Errorf("HexDump(nil) = %q, want empty", out)
	}
}
