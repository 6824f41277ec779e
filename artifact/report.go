package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pithecene-io/buildout/types"
)

// ReportEntry is one producer in a report.
type ReportEntry struct {
	Files     []string `json:"files"`
	BuiltBy   string   `json:"builtBy"`
	Operation string   `json:"operation,omitempty"`
	Retired   bool     `json:"retired,omitempty"`
}

// Report is a diagnostic snapshot of every artifact type's full producer
// history, keyed by artifact type name.
type Report map[string][]ReportEntry

// CreateReport snapshots the producer history of every artifact type.
// Locations are read without pinning them.
func (h *Holder) CreateReport() Report {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := make(Report, len(h.keys))
	for _, t := range h.keys {
		ledger := h.ledgers[t.Name]
		entries := make([]ReportEntry, 0, len(ledger.history))
		for _, prod := range ledger.history {
			files := []string{}
			if path, ok := prod.Location.Peek(); ok {
				files = append(files, path)
			}
			entries = append(entries, ReportEntry{
				Files:     files,
				BuiltBy:   prod.TaskName,
				Operation: prod.Operation.String(),
				Retired:   prod.Retired,
			})
		}
		report[t.Name] = entries
	}
	return report
}

// ArtifactTypes returns the report keys in sorted order.
func (r Report) ArtifactTypes() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes the report as JSON to path, replacing any existing file.
func (r Report) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadReport reads a report written by Save.
// Unknown artifact type names are rejected.
func LoadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("invalid report %s: %w", path, err)
	}
	for name := range report {
		if _, err := types.LookupArtifactTypeName(name); err != nil {
			return nil, fmt.Errorf("invalid report %s: %w", path, err)
		}
	}
	return report, nil
}
