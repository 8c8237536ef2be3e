// Package cli provides output helpers for the kiku command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/storage"
	"github.com/hyperjump/kiku/internal/vector"
	"github.com/hyperjump/kiku/pkg/utils"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// StatusReport is what `kiku status` prints.
type StatusReport struct {
	Collection  *vector.CollectionInfo `json:"collection,omitempty"`
	Stats       *models.CorpusStats    `json:"collection_stats"`
	LedgerBytes int64                  `json:"ledger_bytes"`
}

// WriteStatus writes a status report in the given format.
func WriteStatus(w io.Writer, r *StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, r)
	}
	if r.Collection != nil {
		WriteCollectionInfo(w, r.Collection)
	}
	s := r.Stats
	if s == nil || s.Error != "" {
		msg := "unknown error"
		if s != nil {
			msg = s.Error
		}
		fmt.Fprintf(w, "Statistics unavailable: %s\n", msg)
	} else {
		fmt.Fprintf(w, "Files:   %d\n", s.TotalFiles)
		fmt.Fprintf(w, "Chunks:  %d\n", s.TotalChunks)
		types := make([]string, 0, len(s.ByType))
		for t := range s.ByType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(w, "  %-6s %d\n", t, s.ByType[t])
		}
		if len(s.Samples) > 0 {
			fmt.Fprintf(w, "Samples: %s\n", strings.Join(s.Samples, ", "))
		}
	}
	fmt.Fprintf(w, "Ledger:  %s\n", FormatBytes(r.LedgerBytes))
	return nil
}

// WriteCollectionInfo writes a one-block summary of a vector collection.
func WriteCollectionInfo(w io.Writer, info *vector.CollectionInfo) {
	if !info.Exists {
		fmt.Fprintf(w, "Collection %q does not exist yet\n", info.Name)
		return
	}
	fmt.Fprintf(w, "Collection: %s\n", info.Name)
	fmt.Fprintf(w, "Points:     %d\n", info.Points)
	fmt.Fprintf(w, "Vector:     %d dims, %s\n", info.VectorSize, info.Distance)
}

// WriteDirectoryResult writes the summary of a directory ingestion, listing failures.
func WriteDirectoryResult(w io.Writer, res *models.DirectoryResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	fmt.Fprintf(w, "\nFiles: %d | Succeeded: %d | Failed: %d | Chunks: %d\n",
		res.Files, res.Succeeded, res.Failed, res.Chunks)
	for _, o := range res.Outcomes {
		if reason := FailureReason(o); reason != "" {
			fmt.Fprintf(w, "  FAILED %s: %s\n", o.Path, utils.Truncate(reason, 200))
		}
	}
	return nil
}

// FailureReason returns why a file failed, or "" when it succeeded.
func FailureReason(o *models.FileOutcome) string {
	switch {
	case o.Error != "":
		return o.Error
	case o.Result == nil:
		return "no result"
	case !o.Result.Success:
		return o.Result.Error
	}
	return ""
}

// WriteOrphans writes orphaned point ids grouped by source.
func WriteOrphans(w io.Writer, orphans map[string][]string, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, orphans)
	}
	sources := make([]string, 0, len(orphans))
	for s := range orphans {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	total := 0
	for _, s := range sources {
		ids := orphans[s]
		if len(ids) == 0 {
			continue
		}
		total += len(ids)
		fmt.Fprintf(w, "%s (%d)\n", s, len(ids))
		for _, id := range ids {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
	fmt.Fprintf(w, "%d orphaned points across %d sources\n", total, len(sources))
	return nil
}

// WriteHistory writes ingestion ledger records, newest first as given.
func WriteHistory(w io.Writer, recs []*storage.IngestionRecord, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, recs)
	}
	for _, r := range recs {
		fmt.Fprintf(w, "%s  %-9s %4d/%-3d %5d chunks  %s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"), r.ChunkerType, r.ChunkSize, r.ChunkOverlap, r.Chunks, r.Source)
	}
	return nil
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
