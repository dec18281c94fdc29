package health

import (
	"context"
	"fmt"
	"time"
)

// Inspector reports whether a named container is currently running. It is
// satisfied by the runtime adapter's container inspection call.
type Inspector interface {
	IsRunning(ctx context.Context, containerName string) (bool, error)
}

// RunningChecker polls a container's running state through an Inspector.
// This is the only check type hangar performs: the deploy path and
// blue-green updater both wait for a freshly created container to report
// running before moving on.
type RunningChecker struct {
	Inspector     Inspector
	ContainerName string
}

// NewRunningChecker creates a checker for the named container.
func NewRunningChecker(inspector Inspector, containerName string) *RunningChecker {
	return &RunningChecker{Inspector: inspector, ContainerName: containerName}
}

// Check performs a single running-state poll.
func (c *RunningChecker) Check(ctx context.Context) Result {
	start := time.Now()

	running, err := c.Inspector.IsRunning(ctx, c.ContainerName)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("inspect failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if !running {
		return Result{
			Healthy:   false,
			Message:   "container not running",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   "container running",
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// WaitRunning polls the container's running state up to attempts times,
// sleeping interval between attempts, and returns on the first success.
// This implements the deploy path's health-wait step: 10 attempts at
// 1-second intervals, success on the first true, Failed otherwise.
func WaitRunning(ctx context.Context, inspector Inspector, containerName string, attempts int, interval time.Duration) error {
	checker := NewRunningChecker(inspector, containerName)

	for i := 0; i < attempts; i++ {
		result := checker.Check(ctx)
		if result.Healthy {
			return nil
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}

	return fmt.Errorf("container %s did not report running after %d attempts", containerName, attempts)
}
