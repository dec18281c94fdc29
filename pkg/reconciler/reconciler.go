package reconciler

import (
	"context"
	"strings"
	"sync"
	"time"

	dockerevents "github.com/docker/docker/api/types/events"

	"github.com/cuemby/hangar/pkg/events"
	"github.com/cuemby/hangar/pkg/log"
	"github.com/cuemby/hangar/pkg/metrics"
	"github.com/cuemby/hangar/pkg/runtime"
	"github.com/cuemby/hangar/pkg/storage"
	"github.com/cuemby/hangar/pkg/types"
	"github.com/rs/zerolog"
)

const (
	metricsInterval    = 5 * time.Second
	channelGCInterval  = 300 * time.Second
	eventReconnectWait = 5 * time.Second
)

// Reconciler runs the three background workers that keep the event plane
// fed with container lifecycle and telemetry data, independent of any
// request the HTTP API is currently serving.
type Reconciler struct {
	adapter *runtime.Adapter
	store   storage.Store
	hub     *events.Hub
	logger  zerolog.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New builds a Reconciler wired to the given runtime adapter, store, and
// event hub.
func New(adapter *runtime.Adapter, store storage.Store, hub *events.Hub) *Reconciler {
	return &Reconciler{
		adapter: adapter,
		store:   store,
		hub:     hub,
		logger:  log.WithComponent("reconciler"),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the event listener, metrics collector, and channel-GC
// workers as independent goroutines.
func (r *Reconciler) Start() {
	r.wg.Add(3)
	go r.runEventListener()
	go r.runMetricsCollector()
	go r.runChannelGC()
}

// Stop signals all workers to exit and waits for them to return.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// runEventListener consumes the Docker daemon's container event stream
// and republishes each transition as a container-status event on the
// affected project's channel (and the admin channel, for Dead). On
// stream error it waits and reconnects.
func (r *Reconciler) runEventListener() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}

		ctx, cancel := context.WithCancel(context.Background())
		msgCh, errCh := r.adapter.Events(ctx)

	stream:
		for {
			select {
			case <-r.stopCh:
				cancel()
				return
			case msg, ok := <-msgCh:
				if !ok {
					break stream
				}
				r.handleDockerEvent(ctx, msg)
			case err, ok := <-errCh:
				if ok && err != nil {
					r.logger.Warn().Err(err).Msg("container event stream interrupted")
				}
				break stream
			}
		}
		cancel()

		select {
		case <-r.stopCh:
			return
		case <-time.After(eventReconnectWait):
		}
	}
}

var dockerActionToState = map[string]types.ContainerState{
	"create":  types.ContainerStateCreated,
	"restart": types.ContainerStateRestarting,
	"start":   types.ContainerStateRunning,
	"unpause": types.ContainerStateRunning,
	"stop":    types.ContainerStateExited,
	"die":     types.ContainerStateExited,
	"kill":    types.ContainerStateDead,
	"oom":     types.ContainerStateDead,
	"pause":   types.ContainerStatePaused,
}

func (r *Reconciler) handleDockerEvent(ctx context.Context, msg dockerevents.Message) {
	state, ok := dockerActionToState[string(msg.Action)]
	if !ok {
		return
	}

	name := strings.TrimPrefix(msg.Actor.Attributes["name"], "/")
	if name == "" {
		return
	}

	project, err := r.store.GetProjectByContainerName(ctx, name)
	if err != nil || project == nil {
		return
	}

	ev := events.NewContainerStatus(project.ID, project.Name, state)
	r.hub.EmitProject(project.ID, ev)

	if state == types.ContainerStateDead {
		r.hub.EmitAdmin(ev)
		r.hub.EmitAdmin(events.NewSystem(events.LevelError,
			"Container died unexpectedly", map[string]any{
				"project_name": project.Name,
			}))
	}
}

// runMetricsCollector samples container resource usage every 5 seconds,
// but only for projects that currently have at least one live
// subscriber on their event channel.
func (r *Reconciler) runMetricsCollector() {
	defer r.wg.Done()

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.collectMetrics()
		}
	}
}

func (r *Reconciler) collectMetrics() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.ReconciliationDuration, "metrics")
		metrics.ReconciliationCyclesTotal.WithLabelValues("metrics").Inc()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), metricsInterval)
	defer cancel()

	ids := r.hub.ProjectSubscriberIDs()
	if len(ids) == 0 {
		return
	}

	projects, err := r.store.GetProjectsByIDs(ctx, ids)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to load subscribed projects for metrics sampling")
		return
	}

	for _, p := range projects {
		m, err := r.adapter.Stats(ctx, p.ContainerName)
		if err != nil {
			continue
		}
		r.hub.EmitProject(p.ID, events.NewMetrics(p.ID, p.Name, &m))
	}
}

// runChannelGC removes per-project and per-creation channels with no
// remaining subscribers every 300 seconds.
func (r *Reconciler) runChannelGC() {
	defer r.wg.Done()

	ticker := time.NewTicker(channelGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			timer := metrics.NewTimer()
			r.hub.GCIdleChannels()
			timer.ObserveDurationVec(metrics.ReconciliationDuration, "channel_gc")
			metrics.ReconciliationCyclesTotal.WithLabelValues("channel_gc").Inc()
		}
	}
}
