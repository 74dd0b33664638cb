// Package runlog keeps an audit trail of forecast batches: which window and
// stations were requested, how many predictions came out, where they were
// written and whether the run failed.
package runlog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/YDUTSEVOLDN/Subway/core/model"
)

// RunRecord captures one forecast batch.
type RunRecord struct {
	BatchID     string        `json:"batch_id"`
	Timestamp   time.Time     `json:"timestamp"`
	Start       model.Date    `json:"start"`
	End         model.Date    `json:"end"`
	Stations    []string      `json:"stations,omitempty"`
	Records     int           `json:"records"`
	Predictions int           `json:"predictions"`
	Stored      int           `json:"stored"`
	Published   []string      `json:"published,omitempty"`
	Duration    time.Duration `json:"duration"`
	Trigger     string        `json:"trigger,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Failed reports whether the run aborted.
func (r RunRecord) Failed() bool { return r.Error != "" }

// Query filters stored runs. Zero fields match everything.
type Query struct {
	Since      time.Time
	Until      time.Time
	Station    string
	FailedOnly bool
	// Limit keeps only the most recent Limit runs.
	Limit int
}

func (q Query) matches(r RunRecord) bool {
	if !q.Since.IsZero() && r.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && r.Timestamp.After(q.Until) {
		return false
	}
	if q.FailedOnly && !r.Failed() {
		return false
	}
	if q.Station != "" {
		st := strings.ToLower(q.Station)
		// An unfiltered run covered every station.
		if len(r.Stations) > 0 && !slices.ContainsFunc(r.Stations, func(s string) bool {
			return strings.ToLower(s) == st
		}) {
			return false
		}
	}
	return true
}

// limit sorts by timestamp and trims to the newest q.Limit entries.
func (q Query) limit(res []RunRecord) []RunRecord {
	slices.SortStableFunc(res, func(a, b RunRecord) int { return a.Timestamp.Compare(b.Timestamp) })
	if q.Limit > 0 && len(res) > q.Limit {
		res = res[len(res)-q.Limit:]
	}
	return res
}

// Store persists RunRecords and supports querying.
type Store interface {
	Append(ctx context.Context, rec RunRecord) error
	Query(ctx context.Context, q Query) ([]RunRecord, error)
	Close() error
}

// Config selects and configures a run log backend.
type Config struct {
	// Backend is one of "jsonl", "rotating", "sqlite" or "none".
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// New opens the backend selected by cfg. An empty or "none" backend returns
// a nil Store and no error.
func New(cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "jsonl":
		s, err = NewJSONLStore(cfg.Path)
	case "rotating":
		s, err = NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case "sqlite":
		s, err = NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("runlog: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
