package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/hangar/pkg/events"
	"github.com/cuemby/hangar/pkg/metrics"
)

// withStage emits a "before" deployment event, runs fn, and on success
// emits "after" (when non-empty). On failure it emits a Failed event
// carrying the stage that was in flight and returns the original error
// unchanged, so a caller's own rollback logic still sees the real cause.
func (o *Orchestrator) withStage(emit func(*events.Event), projectName string, before, after events.Stage, fn func() error) error {
	if before != "" {
		emit(events.NewDeployment(projectName, before))
	}
	if err := fn(); err != nil {
		o.fail(emit, projectName, before, err)
		return err
	}
	if after != "" {
		emit(events.NewDeployment(projectName, after))
	}
	return nil
}

// fail emits the terminal Failed event for a run and records which stage
// was in progress, both on the wire and in the rollback-count metric.
func (o *Orchestrator) fail(emit func(*events.Event), projectName string, stage events.Stage, err error) {
	ev := events.NewDeployment(projectName, events.StageFailed)
	ev.Error = err.Error()
	ev.FailedStage = stage
	emit(ev)
	metrics.RolledBackDeploymentsTotal.WithLabelValues(string(stage)).Inc()
}

// rollbackContainerAndVolume is the synchronous half of the rollback
// policy: the container and (if one was attached) its volume are removed
// before the caller returns control.
func (o *Orchestrator) rollbackContainerAndVolume(containerName, volumeName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.runtime.RemoveContainer(ctx, containerName); err != nil {
		o.logger.Warn().Err(err).Str("container", containerName).Msg("rollback: failed to remove container")
	}
	if volumeName != "" {
		if err := o.runtime.RemoveVolume(ctx, volumeName); err != nil {
			o.logger.Warn().Err(err).Str("volume", volumeName).Msg("rollback: failed to remove volume")
		}
	}
}

// rollbackContainerAsync removes a container in the background without
// touching any attached volume. Used by the blue-green updater when a
// freshly created candidate container fails its health check: the volume
// is shared with the project and must survive the rollback.
func (o *Orchestrator) rollbackContainerAsync(containerName string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := o.runtime.RemoveContainer(ctx, containerName); err != nil {
			o.logger.Warn().Err(err).Str("container", containerName).Msg("rollback: failed to remove candidate container")
		}
	}()
}

// rollbackImageAsync is the background half of the rollback policy: image
// removal never blocks the caller and its failure is only logged.
func (o *Orchestrator) rollbackImageAsync(imageTag string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := o.runtime.RemoveImage(ctx, imageTag); err != nil {
			o.logger.Warn().Err(err).Str("image", imageTag).Msg("rollback: failed to remove image")
		}
	}()
}

// writeDockerfile synthesizes the single-stage Dockerfile used for every
// GitHub-sourced build: copy the cloned tree onto the base image, and pin
// the web root if the project specified a subdirectory.
func writeDockerfile(dir, baseImage, rootDir string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n", baseImage)
	b.WriteString("COPY --chown=appuser:appgroup . /var/www/html/\n")
	if rootDir != "" {
		fmt.Fprintf(&b, "ENV HANGAR_WEBROOT_DIR=/var/www/html/%s\n", rootDir)
	}
	return os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(b.String()), 0o644)
}
