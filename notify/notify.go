// Package notify defines the interface for run completion notifications.
// Backends live in subpackages (slack, telegram).
package notify

import (
	"context"

	"github.com/guidepost-ai/guidepost/model"
)

// Notifier delivers a notification about a finished run. Implementations
// should return quickly; the engine calls them inline at the end of a run
// and logs failures without retrying.
type Notifier interface {
	RoadmapReady(ctx context.Context, run *model.Run) error
}
