package testutil

import (
	"context"

	"moltd/internal/daemon"
)

// StubDetector returns a scripted delta or error.
type StubDetector struct {
	Delta daemon.ProjectDelta
	Err   error
	Calls int
}

var _ daemon.Detector = (*StubDetector)(nil)

func (d *StubDetector) Detect(ctx context.Context, prev daemon.Baseline) (daemon.ProjectDelta, error) {
	d.Calls++
	if d.Err != nil {
		return daemon.ProjectDelta{}, d.Err
	}
	return d.Delta, nil
}
