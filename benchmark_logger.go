// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gudabench

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultReportDir is where session files go when no directory is configured.
const DefaultReportDir = "benchmark_logs"

// ReportEntry is one run of a session file.
type ReportEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Report    *Report   `json:"report"`
	Error     string    `json:"error,omitempty"`
}

// ReportLogger appends run reports to a JSON session file.
type ReportLogger struct {
	mu          sync.Mutex
	entries     []ReportEntry
	sessionFile string
}

// NewReportLogger creates dir if needed and starts a session file named
// <session>_<timestamp>.json in it.
func NewReportLogger(dir, session string) (*ReportLogger, error) {
	if dir == "" {
		dir = DefaultReportDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create report directory")
	}

	timestamp := time.Now().Format("20060102_150405")
	rl := &ReportLogger{
		sessionFile: filepath.Join(dir, fmt.Sprintf("%s_%s.json", session, timestamp)),
	}
	// Write initial file
	return rl, rl.flush()
}

// Path returns the session file.
func (rl *ReportLogger) Path() string { return rl.sessionFile }

// Log appends a report and the error the run ended with, if any, and
// flushes the session file.
func (rl *ReportLogger) Log(report *Report, runErr error) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry := ReportEntry{Timestamp: time.Now(), Report: report}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	rl.entries = append(rl.entries, entry)

	// Flush to disk immediately to avoid losing data on crash
	return rl.flush()
}

func (rl *ReportLogger) flush() error {
	data, err := json.MarshalIndent(rl.entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal reports")
	}
	return errors.Wrapf(os.WriteFile(rl.sessionFile, data, 0644), "writing %s", rl.sessionFile)
}

// LoadReports reads the entries of a session file.
func LoadReports(path string) ([]ReportEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var entries []ReportEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return entries, nil
}

// LatestReport returns the last report of a session file.
func LatestReport(path string) (*Report, error) {
	entries, err := LoadReports(path)
	if err != nil {
		return nil, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Report != nil {
			return entries[i].Report, nil
		}
	}
	return nil, errors.Errorf("%s holds no report", path)
}

// LatestSessionFile returns the most recently modified session file in dir.
func LatestSessionFile(dir string) (string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", errors.Errorf("no session files found in %s", dir)
	}

	// Sort by modification time to get latest
	var latest string
	var latestTime time.Time
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latest = file
			latestTime = info.ModTime()
		}
	}
	return latest, nil
}
