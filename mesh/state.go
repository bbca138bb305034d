package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// StateTracker keeps the latest peak report per source for HTTP endpoints
type StateTracker struct {
	mu        sync.RWMutex
	reports   map[string]*PeakReport
	colors    map[string]string // source ID -> hex color
	cachePath string            // path to the report cache file; empty disables persistence
}

// NewStateTracker creates a new state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{
		reports: make(map[string]*PeakReport),
		colors:  make(map[string]string),
	}
}

// NewStateTrackerWithCache creates a state tracker that persists reports
// to the given cache file path. If the file exists, the cached reports are
// loaded on creation.
func NewStateTrackerWithCache(cachePath string) *StateTracker {
	st := NewStateTracker()
	st.cachePath = cachePath
	if cachePath != "" {
		if reports, err := LoadReports(cachePath); err == nil {
			for _, r := range reports {
				st.reports[r.Source] = r
			}
		}
	}
	return st
}

// SetColor sets the display color for a source
func (st *StateTracker) SetColor(sourceID, hexColor string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.colors[sourceID] = hexColor
}

// GetColor returns the display color for a source, or "" if none is set
func (st *StateTracker) GetColor(sourceID string) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.colors[sourceID]
}

// UpdateReport stores the latest report for its source
func (st *StateTracker) UpdateReport(r *PeakReport) {
	st.mu.Lock()
	st.reports[r.Source] = r
	cachePath := st.cachePath
	var snapshot []*PeakReport
	if cachePath != "" {
		snapshot = st.sortedLocked()
	}
	st.mu.Unlock()

	if cachePath != "" {
		if err := SaveReports(snapshot, cachePath); err != nil {
			log.Printf("warning: failed to save report cache: %v", err)
		}
	}
}

// GetReport returns a copy of the latest report for a source
func (st *StateTracker) GetReport(sourceID string) (*PeakReport, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	r, ok := st.reports[sourceID]
	if !ok {
		return nil, false
	}
	copy := *r
	return &copy, true
}

// GetReports returns copies of all current reports sorted by source ID
func (st *StateTracker) GetReports() []*PeakReport {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sortedLocked()
}

// HasReports returns true if we have at least one report
func (st *StateTracker) HasReports() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.reports) > 0
}

func (st *StateTracker) sortedLocked() []*PeakReport {
	result := make([]*PeakReport, 0, len(st.reports))
	for _, r := range st.reports {
		copy := *r
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Source < result[j].Source
	})
	return result
}

// SaveReports writes reports to disk as JSON.
func SaveReports(reports []*PeakReport, path string) error {
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal reports: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report cache: %w", err)
	}
	return nil
}

// LoadReports reads reports from a JSON file on disk.
func LoadReports(path string) ([]*PeakReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report cache: %w", err)
	}
	var reports []*PeakReport
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, fmt.Errorf("unmarshal report cache: %w", err)
	}
	return reports, nil
}
