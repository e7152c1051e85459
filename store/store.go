// Package store defines the persistence interface for roadmap runs.
package store

import "github.com/guidepost-ai/guidepost/model"

// RunStore persists runs and their event streams.
type RunStore interface {
	// CreateRun inserts a new run.
	CreateRun(run *model.Run) error

	// GetRun retrieves a run by ID.
	GetRun(id string) (*model.Run, error)

	// ListRuns returns all runs, newest first.
	ListRuns() ([]*model.Run, error)

	// UpdateRun updates the mutable fields of a run.
	UpdateRun(run *model.Run) error

	// GetRunByPR returns the most recent run for a repository and PR number.
	GetRunByPR(repo string, prNumber int) (*model.Run, error)

	// AddEvent appends an event to a run's stream and fills in its ID.
	AddEvent(event *model.Event) error

	// GetEvents returns a run's events with ID greater than afterID,
	// oldest first.
	GetEvents(runID string, afterID int64) ([]*model.Event, error)

	// Close releases the underlying resources.
	Close() error
}
