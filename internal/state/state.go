// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package state persists the run record: the date of the last successful run
// and the PMIDs already delivered.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pdiddy/pubmed-digest/pkg/types"
)

// DateLayout is the on-disk and query date format.
const DateLayout = "2006-01-02"

// DefaultLookback is how far back a first run reaches.
const DefaultLookback = 7 * 24 * time.Hour

// RunState is the durable record carried between runs.
type RunState struct {
	LastRun time.Time
	Seen    map[string]struct{}
}

// fileFormat is the JSON layout of the state file.
type fileFormat struct {
	LastRun   string   `json:"last_run"`
	SeenPMIDs []string `json:"seen_pmids"`
}

// Default returns the state used when no file exists: a week before today
// and nothing seen.
func Default(today time.Time) RunState {
	return RunState{
		LastRun: truncateDay(today).Add(-DefaultLookback),
		Seen:    map[string]struct{}{},
	}
}

// HasSeen reports whether id was delivered by an earlier run.
func (s RunState) HasSeen(id string) bool {
	_, ok := s.Seen[id]
	return ok
}

// Window returns the inclusive query window for a run on today: the day after
// the last run through today.
func (s RunState) Window(today time.Time) (start, end time.Time) {
	return truncateDay(s.LastRun).AddDate(0, 0, 1), truncateDay(today)
}

// Advance moves LastRun to today, never backwards, and adds ids to the seen set.
func (s *RunState) Advance(today time.Time, ids []string) {
	today = truncateDay(today)
	if today.After(s.LastRun) {
		s.LastRun = today
	}
	if s.Seen == nil {
		s.Seen = make(map[string]struct{}, len(ids))
	}
	for _, id := range ids {
		s.Seen[id] = struct{}{}
	}
}

// SeenIDs returns the seen set sorted.
func (s RunState) SeenIDs() []string {
	ids := make([]string, 0, len(s.Seen))
	for id := range s.Seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Load reads the state file at path. A missing file yields Default(today);
// a malformed file is a configuration error.
func Load(path string, today time.Time) (RunState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(today), nil
		}
		return RunState{}, fmt.Errorf("reading state file %s: %w", path, err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return RunState{}, fmt.Errorf("%w: parsing state file %s: %v", types.ErrConfiguration, path, err)
	}

	lastRun, err := time.Parse(DateLayout, ff.LastRun)
	if err != nil {
		return RunState{}, fmt.Errorf("%w: invalid last_run %q in %s", types.ErrConfiguration, ff.LastRun, path)
	}

	s := RunState{LastRun: lastRun, Seen: make(map[string]struct{}, len(ff.SeenPMIDs))}
	for _, id := range ff.SeenPMIDs {
		s.Seen[id] = struct{}{}
	}
	return s, nil
}

// Save writes s to path through a temp file and rename.
func Save(path string, s RunState) error {
	ff := fileFormat{
		LastRun:   s.LastRun.Format(DateLayout),
		SeenPMIDs: s.SeenIDs(),
	}
	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing state file %s: %w", path, err)
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
