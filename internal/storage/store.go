// Package storage persists run history: one RunRecord per completed
// retrieval run, listed most recent first.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rankscope/rankscope/internal/serp"
)

// ErrNotFound is returned when no run with the requested id exists.
var ErrNotFound = errors.New("run not found")

// RunRecord is one completed retrieval run and its per-keyword records.
type RunRecord struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Mode      string            `json:"mode"`
	Domain    string            `json:"domain"`
	Total     int               `json:"total"`
	Found     int               `json:"found"`
	Records   []serp.RankRecord `json:"records"`
}

// RunStore is the persistence surface for run history.
type RunStore interface {
	// Save persists the run and returns the storage key it was written under.
	Save(ctx context.Context, run RunRecord) (string, error)
	// List returns up to limit runs, most recent first. Records are included.
	List(ctx context.Context, limit int) ([]RunRecord, error)
	// Get returns one run by id, or ErrNotFound.
	Get(ctx context.Context, id string) (RunRecord, error)
	// Delete removes one run by id, or ErrNotFound.
	Delete(ctx context.Context, id string) error
}
