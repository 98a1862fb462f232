package fileutils

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

type record struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

func TestWriteReadJSONL_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "records.jsonl")
	in := []record{{ID: "a", Score: 0.5}, {ID: "b", Score: 1}}

	if err := WriteJSONL(path, in); err != nil {
		t.Fatalf("WriteJSONL: %v", err)
	}
	out, err := ReadJSONL[record](path)
	if err != nil {
		t.Fatalf("ReadJSONL: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip: got %+v, want %+v", out, in)
	}
}

func TestReadJSONL_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	out, err := ReadJSONL[record](filepath.Join(t.TempDir(), "nope.jsonl"))
	if err != nil {
		t.Fatalf("ReadJSONL missing file: %v", err)
	}
	if out != nil {
		t.Fatalf("got %+v, want nil", out)
	}
}

func TestWriteJSONFileAtomic_Overwrites(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "artifact.json")
	if err := WriteJSONFileAtomic(path, record{ID: "v1"}, true); err != nil {
		t.Fatalf("WriteJSONFileAtomic: %v", err)
	}
	if err := WriteJSONFileAtomic(path, record{ID: "v2"}, false); err != nil {
		t.Fatalf("WriteJSONFileAtomic second write: %v", err)
	}

	var got record
	if err := ReadJSONFile(path, &got); err != nil {
		t.Fatalf("ReadJSONFile: %v", err)
	}
	if got.ID != "v2" {
		t.Fatalf("ID=%q, want v2", got.ID)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries)=%d, want 1", len(entries))
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := Truncate("  hello  ", 0); got != "hello" {
		t.Fatalf("Truncate no-limit=%q", got)
	}
	if got := Truncate("hello world", 5); got != "hello…" {
		t.Fatalf("Truncate=%q", got)
	}
}

func TestSanitizeNewlines(t *testing.T) {
	t.Parallel()

	if got := SanitizeNewlines("a\r\nb\rc\nd"); got != "a\\nb\\nc\\nd" {
		t.Fatalf("SanitizeNewlines=%q", got)
	}
}
