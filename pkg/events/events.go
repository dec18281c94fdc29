package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/hangar/pkg/metrics"
	"github.com/cuemby/hangar/pkg/types"
)

// EventType is the wire discriminator carried by every Event.
type EventType string

const (
	EventTypeDeployment      EventType = "deployment"
	EventTypeContainerStatus EventType = "container_status"
	EventTypeMetrics         EventType = "metrics"
	EventTypeSystem          EventType = "system"
)

// Stage is the deploy-path stage a Deployment event reports, using the
// literal wire values a client matches against.
type Stage string

const (
	StageStarted               Stage = "started"
	StageValidatingInput       Stage = "validating_input"
	StagePullingImage          Stage = "pulling_image"
	StageImagePulled           Stage = "image_pulled"
	StageScanningImage         Stage = "scanning_image"
	StageImageScanned          Stage = "image_scanned"
	StageCloningRepository     Stage = "cloning_repository"
	StageRepositoryCloned      Stage = "repository_cloned"
	StageBuildingImage         Stage = "building_image"
	StageImageBuilt            Stage = "image_built"
	StageGettingImageDigest    Stage = "getting_image_digest"
	StageCreatingContainer     Stage = "creating_container"
	StageContainerCreated      Stage = "container_created"
	StageWaitingHealthCheck    Stage = "waiting_health_check"
	StageHealthCheckPassed     Stage = "health_check_passed"
	StageProvisioningDatabase  Stage = "provisioning_database"
	StageDatabaseProvisioned   Stage = "database_provisioned"
	StageLinkingDatabase       Stage = "linking_database"
	StageDatabaseLinked        Stage = "database_linked"
	StageCleaningUp            Stage = "cleaning_up"
	StageCompleted             Stage = "completed"
	StageFailed                Stage = "failed"
)

// Level is the severity of a System event.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is the single wire shape for everything emitted on the event
// plane. Only the fields relevant to Type are populated; the rest are
// omitted from the JSON encoding.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Deployment fields.
	ProjectName   string `json:"project_name,omitempty"`
	Stage         Stage  `json:"stage,omitempty"`
	ImageURL      string `json:"image_url,omitempty"`
	RepoURL       string `json:"repo_url,omitempty"`
	ContainerName string `json:"container_name,omitempty"`
	Error         string `json:"error,omitempty"`
	FailedStage   Stage  `json:"failed_stage,omitempty"`

	// ContainerStatus / Metrics fields.
	ProjectID int64                   `json:"project_id,omitempty"`
	Status    types.ContainerState    `json:"status,omitempty"`
	Metrics   *types.ContainerMetrics `json:"metrics,omitempty"`

	// System fields.
	Level   Level          `json:"level,omitempty"`
	Message string         `json:"message,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

func newEventID(t EventType) string {
	return fmt.Sprintf("%s_%d", t, time.Now().UnixMilli())
}

// NewDeployment builds a Deployment event for the given project and stage.
func NewDeployment(projectName string, stage Stage) *Event {
	return &Event{
		ID:          newEventID(EventTypeDeployment),
		Type:        EventTypeDeployment,
		Timestamp:   time.Now(),
		ProjectName: projectName,
		Stage:       stage,
	}
}

// NewContainerStatus builds a ContainerStatus event.
func NewContainerStatus(projectID int64, projectName string, status types.ContainerState) *Event {
	return &Event{
		ID:          newEventID(EventTypeContainerStatus),
		Type:        EventTypeContainerStatus,
		Timestamp:   time.Now(),
		ProjectID:   projectID,
		ProjectName: projectName,
		Status:      status,
	}
}

// NewMetrics builds a Metrics event.
func NewMetrics(projectID int64, projectName string, m *types.ContainerMetrics) *Event {
	return &Event{
		ID:          newEventID(EventTypeMetrics),
		Type:        EventTypeMetrics,
		Timestamp:   time.Now(),
		ProjectID:   projectID,
		ProjectName: projectName,
		Metrics:     m,
	}
}

// NewSystem builds a System event.
func NewSystem(level Level, message string, context map[string]any) *Event {
	return &Event{
		ID:        newEventID(EventTypeSystem),
		Type:      EventTypeSystem,
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Context:   context,
	}
}

// channelCapacity bounds every subscriber buffer. A slow consumer never
// blocks emission; it just misses events past this depth.
const channelCapacity = 1000

// Subscriber is a channel a client reads emitted events from.
type Subscriber chan *Event

type channel struct {
	mu          sync.Mutex
	subscribers map[Subscriber]*int64 // subscriber -> pointer to its missed-event counter
	class       string                // metrics label: "admin", "all", "project", "creation"
}

func newChannel(class string) *channel {
	return &channel{subscribers: make(map[Subscriber]*int64), class: class}
}

func (c *channel) subscribe() Subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := make(Subscriber, channelCapacity)
	missed := new(int64)
	c.subscribers[sub] = missed
	return sub
}

func (c *channel) unsubscribe(sub Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subscribers[sub]; ok {
		delete(c.subscribers, sub)
		close(sub)
	}
}

func (c *channel) subscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers)
}

// emit delivers ev to every subscriber without blocking. A subscriber
// whose buffer is full has its miss counter bumped; the next time that
// subscriber's buffer has room, a synthesized System(warning) event is
// delivered ahead of ev to report the gap.
func (c *channel) emit(ev *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for sub, missed := range c.subscribers {
		if *missed > 0 {
			warn := NewSystem(LevelWarning,
				fmt.Sprintf("Connection slow: %d messages missed", *missed), nil)
			select {
			case sub <- warn:
				*missed = 0
			default:
				*missed++
				metrics.EventsLaggedTotal.WithLabelValues(c.class).Inc()
				continue
			}
		}

		select {
		case sub <- ev:
		default:
			*missed++
			metrics.EventsLaggedTotal.WithLabelValues(c.class).Inc()
		}
	}

	metrics.EventsEmittedTotal.WithLabelValues(c.class, string(ev.Type)).Inc()
}

// Hub is the event fan-out plane: an admin channel, an all-events
// channel, and lazily-created per-project and per-creation channels.
type Hub struct {
	admin *channel
	all   *channel

	mu        sync.Mutex
	projects  map[int64]*channel
	creations map[string]*channel
}

// NewHub constructs an empty event plane.
func NewHub() *Hub {
	return &Hub{
		admin:     newChannel("admin"),
		all:       newChannel("all"),
		projects:  make(map[int64]*channel),
		creations: make(map[string]*channel),
	}
}

// SubscribeAdmin subscribes to the admin channel, which receives every
// deployment, container-status, and system event across the platform.
func (h *Hub) SubscribeAdmin() Subscriber {
	return h.admin.subscribe()
}

// UnsubscribeAdmin removes a subscription from the admin channel.
func (h *Hub) UnsubscribeAdmin(sub Subscriber) {
	h.admin.unsubscribe(sub)
}

// SubscribeAll subscribes to the all-events channel.
func (h *Hub) SubscribeAll() Subscriber {
	return h.all.subscribe()
}

// UnsubscribeAll removes a subscription from the all-events channel.
func (h *Hub) UnsubscribeAll(sub Subscriber) {
	h.all.unsubscribe(sub)
}

// projectChannel returns projectID's channel, creating it lazily on
// first subscription or emission.
func (h *Hub) projectChannel(projectID int64) *channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.projects[projectID]
	if !ok {
		c = newChannel("project")
		h.projects[projectID] = c
		metrics.ActiveProjectChannels.Inc()
	}
	return c
}

// creationChannel returns userID's creation channel, creating it lazily
// on first subscription or emission.
func (h *Hub) creationChannel(userID string) *channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.creations[userID]
	if !ok {
		c = newChannel("creation")
		h.creations[userID] = c
		metrics.ActiveCreationChannels.Inc()
	}
	return c
}

// SubscribeProject subscribes to events for a single project, creating
// its channel if this is the first subscriber.
func (h *Hub) SubscribeProject(projectID int64) Subscriber {
	return h.projectChannel(projectID).subscribe()
}

// UnsubscribeProject removes sub from projectID's channel. The channel
// itself is removed later by the reconciler's GC worker, not here, so a
// racing emit never targets a channel mid-teardown.
func (h *Hub) UnsubscribeProject(projectID int64, sub Subscriber) {
	h.mu.Lock()
	c, ok := h.projects[projectID]
	h.mu.Unlock()
	if ok {
		c.unsubscribe(sub)
	}
}

// SubscribeCreation subscribes to deploy-path progress for a single
// in-flight creation, keyed by the creating user's identifier.
func (h *Hub) SubscribeCreation(userID string) Subscriber {
	return h.creationChannel(userID).subscribe()
}

// UnsubscribeCreation removes sub from userID's creation channel.
func (h *Hub) UnsubscribeCreation(userID string, sub Subscriber) {
	h.mu.Lock()
	c, ok := h.creations[userID]
	h.mu.Unlock()
	if ok {
		c.unsubscribe(sub)
	}
}

// EmitAdmin delivers ev to the admin channel only: admin-scoped system
// events and dead-container notifications.
func (h *Hub) EmitAdmin(ev *Event) {
	h.admin.emit(ev)
}

// EmitAll delivers ev to the all-events channel only: global
// announcements addressed to every connected client.
func (h *Hub) EmitAll(ev *Event) {
	h.all.emit(ev)
}

// EmitProject delivers ev to projectID's channel, creating it if this
// is the first emission.
func (h *Hub) EmitProject(projectID int64, ev *Event) {
	h.projectChannel(projectID).emit(ev)
}

// EmitCreation delivers ev to userID's creation channel, creating it if
// this is the first emission.
func (h *Hub) EmitCreation(userID string, ev *Event) {
	h.creationChannel(userID).emit(ev)
}

// ProjectSubscriberIDs returns the IDs of every project that currently
// has at least one live subscriber. The metrics collector uses this to
// avoid sampling containers nobody is watching.
func (h *Hub) ProjectSubscriberIDs() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]int64, 0, len(h.projects))
	for id, c := range h.projects {
		if c.subscriberCount() > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// GCIdleChannels removes per-project and per-creation channels with no
// remaining subscribers. Called periodically by the reconciler.
func (h *Hub) GCIdleChannels() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.projects {
		if c.subscriberCount() == 0 {
			delete(h.projects, id)
			metrics.ActiveProjectChannels.Dec()
		}
	}
	for key, c := range h.creations {
		if c.subscriberCount() == 0 {
			delete(h.creations, key)
			metrics.ActiveCreationChannels.Dec()
		}
	}
}
