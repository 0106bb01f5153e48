// Package cli renders statistics, build results, and index status for the
// command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/kazoeru/internal/indexer"
	"github.com/hyperjump/kazoeru/internal/models"
	"github.com/hyperjump/kazoeru/internal/stats"
	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
)

// OutputFormat is the format for report output.
type OutputFormat string

const (
	// OutputText is the human-readable block report (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per term.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a format name. Empty selects OutputText.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case "":
		return OutputText, nil
	case OutputText, OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q (text, compact, json)", apperrors.ErrInvalidInput, s)
	}
}

const (
	ruleOpen  = "=================="
	ruleClose = "==================="
)

// WriteStatistics writes s to w. Terms, and documents within a term, are
// listed in lexical order.
func WriteStatistics(w io.Writer, s *models.Statistics, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, s)
	case OutputCompact:
		for _, term := range s.Terms() {
			fmt.Fprintf(w, "%s\t%d", term, s.DocumentFrequency[term])
			for _, path := range sortedKeys(s.TermFrequency[term]) {
				fmt.Fprintf(w, "\t%s:%d", path, s.TermFrequency[term][path])
			}
			fmt.Fprintln(w)
		}
		return nil
	default:
		terms := s.Terms()
		fmt.Fprintf(w, "%sDOCUMENT FREQUENCY%s\n", ruleOpen, ruleClose)
		for _, term := range terms {
			fmt.Fprintf(w, "%s: %d\n", term, s.DocumentFrequency[term])
		}
		fmt.Fprintf(w, "%sTERM FREQUENCY%s\n", ruleOpen, ruleClose)
		for _, term := range terms {
			writeTermBlock(w, term, s.TermFrequency[term])
		}
		fmt.Fprintf(w, "\n%d documents, %d terms\n", s.Documents, len(terms))
		return nil
	}
}

// WriteTermStatistics writes the statistics of one term.
func WriteTermStatistics(w io.Writer, ts models.TermStatistics, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, ts)
	case OutputCompact:
		fmt.Fprintf(w, "%s\t%d", ts.Term, ts.DocumentFrequency)
		for _, path := range sortedKeys(ts.TermFrequency) {
			fmt.Fprintf(w, "\t%s:%d", path, ts.TermFrequency[path])
		}
		fmt.Fprintln(w)
		return nil
	default:
		fmt.Fprintf(w, "Document frequency: %d\n", ts.DocumentFrequency)
		writeTermBlock(w, ts.Term, ts.TermFrequency)
		return nil
	}
}

func writeTermBlock(w io.Writer, term string, docs map[string]int) {
	fmt.Fprintf(w, "Term %s:\n", term)
	for _, path := range sortedKeys(docs) {
		fmt.Fprintf(w, "  %s: %d\n", path, docs[path])
	}
}

// WriteBuildResult writes a build summary.
func WriteBuildResult(w io.Writer, res *indexer.BuildResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	if res.Skipped {
		fmt.Fprintf(w, "Index exists, nothing to do (generation %s)\n", res.Generation)
		return nil
	}
	fmt.Fprintf(w, "Index %s (%s): %d added, %d replaced", res.Mode, res.OpenMode, res.Added, res.Replaced)
	if res.Removed > 0 {
		fmt.Fprintf(w, ", %d removed", res.Removed)
	}
	fmt.Fprintf(w, " in %s\n", res.Duration.Round(time.Millisecond))
	if len(res.SkippedFiles) > 0 {
		fmt.Fprintf(w, "Skipped %d files:\n", len(res.SkippedFiles))
		for _, sf := range res.SkippedFiles {
			fmt.Fprintf(w, "  %s (%s): %s\n", sf.Path, sf.Reason, Truncate(sf.Error, 120))
		}
	}
	return nil
}

// WriteStatus writes index metadata.
func WriteStatus(w io.Writer, st *stats.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Location:   %s\n", st.Location)
	fmt.Fprintf(w, "Engine:     %s (format %d)\n", st.Engine, st.Info.Format)
	fmt.Fprintf(w, "Generation: %s\n", st.Info.Generation)
	fmt.Fprintf(w, "Created:    %s\n", st.Info.Created.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Documents:  %d\n", st.Documents)
	fmt.Fprintf(w, "Disk usage: %s\n", FormatBytes(st.DiskBytes))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
