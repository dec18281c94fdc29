package types

import "time"

// Project is a single tenant deployment: one owner, one container, an
// optional linked database. Unique key is Name; at most one row per Owner.
type Project struct {
	ID            int64
	Name          string // DNS-compliant label, lowercased
	Owner         string // authenticated user identifier
	ContainerName string // "<prefix>-<name>" initially; mutable during blue-green

	Source Source

	DeployedImageTag    string // what the runtime shows
	DeployedImageDigest string // immutable content identifier of the launched image

	// EnvVars maps variable name to base64-encoded ciphertext (nonce‖ct‖tag).
	// Absent (nil/empty) when the user supplied no variables.
	EnvVars map[string]string

	PersistentVolumePath string // optional absolute in-container mount path
	VolumeName           string // set iff PersistentVolumePath is set: "hangar-data-<project>"

	CreatedAt time.Time
}

// SourceKind distinguishes a directly-referenced image from a source
// repository that must be cloned and built.
type SourceKind string

const (
	SourceKindDirect SourceKind = "direct"
	SourceKindGitHub SourceKind = "github"
)

// Source describes where a project's deployable content comes from.
type Source struct {
	Kind    SourceKind
	URL     string
	Branch  string // optional
	RootDir string // optional, relative path inside the repo used as web root
}

// ProjectParticipant is a (project, user) pair granting access to a
// project beyond its owner. A participant must never equal the owner;
// insertion is deduplicated.
type ProjectParticipant struct {
	ProjectID     int64
	ParticipantID string
}

// Database is a tenant-server database provisioned for a project owner.
// At most one per owner.
type Database struct {
	ID                int64
	OwnerLogin        string // unique per owner
	DatabaseName      string // "hangardb_<owner>"
	Username          string // == OwnerLogin
	EncryptedPassword string // base64 ciphertext
	ProjectID         *int64 // links to exactly one project, if any
	CreatedAt         time.Time
}

// ContainerState is the runtime-reported lifecycle state of a container,
// mirroring the Docker Engine API's container status values.
type ContainerState string

const (
	ContainerStateCreated    ContainerState = "created"
	ContainerStateRestarting ContainerState = "restarting"
	ContainerStateRunning    ContainerState = "running"
	ContainerStateRemoving   ContainerState = "removing"
	ContainerStatePaused     ContainerState = "paused"
	ContainerStateExited     ContainerState = "exited"
	ContainerStateDead       ContainerState = "dead"
	ContainerStateUnknown    ContainerState = "unknown"
)

// ContainerMetrics is a point-in-time resource sample for a running
// container. These are streamed live over the event plane and never
// persisted.
type ContainerMetrics struct {
	CPUPercent    float64
	MemoryUsage   int64
	MemoryLimit   int64
	MemoryPercent float64
	NetworkRxMB   float64
	NetworkTxMB   float64
}
