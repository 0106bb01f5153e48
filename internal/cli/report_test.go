package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kazoeru/internal/indexer"
	"github.com/hyperjump/kazoeru/internal/models"
	"github.com/hyperjump/kazoeru/internal/stats"
	"github.com/hyperjump/kazoeru/internal/storage"
	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
)

func sampleStatistics() *models.Statistics {
	s := models.NewStatistics()
	s.Documents = 2
	s.Add("a.txt", models.TermVector{"cat": {Frequency: 2}, "dog": {Frequency: 1}})
	s.Add("b.txt", models.TermVector{"dog": {Frequency: 1}, "bird": {Frequency: 1}})
	return s
}

func TestWriteStatistics_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStatistics(&buf, sampleStatistics(), OutputText); err != nil {
		t.Fatalf("WriteStatistics(text): %v", err)
	}
	want := `==================DOCUMENT FREQUENCY===================
bird: 1
cat: 1
dog: 2
==================TERM FREQUENCY===================
Term bird:
  b.txt: 1
Term cat:
  a.txt: 2
Term dog:
  a.txt: 1
  b.txt: 1

2 documents, 3 terms
`
	if got := buf.String(); got != want {
		t.Errorf("text output:\n%s\nwant:\n%s", got, want)
	}
}

func TestWriteStatistics_compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStatistics(&buf, sampleStatistics(), OutputCompact); err != nil {
		t.Fatal(err)
	}
	want := "bird\t1\tb.txt:1\ncat\t1\ta.txt:2\ndog\t2\ta.txt:1\tb.txt:1\n"
	if got := buf.String(); got != want {
		t.Errorf("compact output = %q, want %q", got, want)
	}
}

func TestWriteStatistics_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStatistics(&buf, sampleStatistics(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.Statistics
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.DocumentFrequency["dog"] != 2 || decoded.TermFrequency["cat"]["a.txt"] != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Documents != 2 {
		t.Errorf("documents = %d", decoded.Documents)
	}
}

func TestWriteStatistics_empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStatistics(&buf, models.NewStatistics(), OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "0 documents, 0 terms") {
		t.Errorf("got %q", buf.String())
	}
}

func TestWriteTermStatistics(t *testing.T) {
	ts, _ := sampleStatistics().Term("dog")
	var buf bytes.Buffer
	if err := WriteTermStatistics(&buf, ts, OutputText); err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"Document frequency: 2", "Term dog:", "  a.txt: 1", "  b.txt: 1"} {
		if !strings.Contains(buf.String(), sub) {
			t.Errorf("output missing %q:\n%s", sub, buf.String())
		}
	}

	buf.Reset()
	if err := WriteTermStatistics(&buf, ts, OutputCompact); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "dog\t2\ta.txt:1\tb.txt:1\n" {
		t.Errorf("compact = %q", buf.String())
	}
}

func TestWriteBuildResult(t *testing.T) {
	res := &indexer.BuildResult{
		Mode:     models.UpdateIfExists,
		OpenMode: storage.OpenAppend,
		Added:    1,
		Replaced: 2,
		SkippedFiles: []indexer.SkippedFile{
			{Path: "/src/bin.dat", Reason: indexer.SkipDecode, Error: "undecodable content"},
		},
		Duration: 1500 * time.Millisecond,
	}
	var buf bytes.Buffer
	if err := WriteBuildResult(&buf, res, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, sub := range []string{"Index update (append): 1 added, 2 replaced in 1.5s", "Skipped 1 files", "/src/bin.dat (decode)"} {
		if !strings.Contains(out, sub) {
			t.Errorf("output missing %q:\n%s", sub, out)
		}
	}

	buf.Reset()
	if err := WriteBuildResult(&buf, &indexer.BuildResult{Skipped: true, Generation: "g1"}, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "nothing to do (generation g1)") {
		t.Errorf("skipped output = %q", buf.String())
	}

	buf.Reset()
	if err := WriteBuildResult(&buf, res, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["mode"] != "update" || decoded["open_mode"] != "append" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestWriteStatus(t *testing.T) {
	st := &stats.Status{
		Location:  "/idx",
		Engine:    "bolt",
		Info:      storage.Info{Format: 1, Engine: "bolt", Generation: "gen-1", Created: time.Now()},
		Documents: 4,
		DiskBytes: 2048,
	}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	for _, sub := range []string{"/idx", "bolt (format 1)", "gen-1", "Documents:  4", "2.0 KiB"} {
		if !strings.Contains(buf.String(), sub) {
			t.Errorf("output missing %q:\n%s", sub, buf.String())
		}
	}
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": OutputText, "TEXT": OutputText, "compact": OutputCompact, "json": OutputJSON} {
		got, err := ParseOutputFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseOutputFormat("xml"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		maxLen int
		want   string
	}{
		{"empty", "", 5, ""},
		{"short", "hi", 5, "hi"},
		{"exact", "hello", 5, "hello"},
		{"long", "hello world", 5, "hello..."},
		{"maxLen zero", "ab", 0, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.s, tt.maxLen); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{0: "0 B", 1023: "1023 B", 1024: "1.0 KiB", 1536: "1.5 KiB", 5 << 20: "5.0 MiB"}
	for n, want := range tests {
		if got := FormatBytes(n); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
