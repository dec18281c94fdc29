package storage

import (
	"context"

	"github.com/cuemby/hangar/pkg/types"
)

// Store defines the control-plane SQL operations the orchestrator,
// blue-green updater, and HTTP API depend on. Implemented by *MySQLStore.
type Store interface {
	// Existence checks
	ProjectNameTaken(ctx context.Context, name string) (bool, error)
	OwnerHasProject(ctx context.Context, owner string) (bool, error)
	OwnerHasDatabase(ctx context.Context, owner string) (bool, error)

	// Projects
	CreateProject(ctx context.Context, p *types.Project) (int64, error)
	GetProjectByID(ctx context.Context, id int64, caller string, callerIsAdmin bool) (*types.Project, error)
	GetProjectByContainerName(ctx context.Context, containerName string) (*types.Project, error)
	GetProjectsByIDs(ctx context.Context, ids []int64) ([]*types.Project, error)
	ListProjectsForUser(ctx context.Context, caller string, callerIsAdmin bool) ([]*types.Project, error)

	// UpdateProjectDeployment applies the post-swap metadata change of a
	// blue-green update as a single UPDATE, so a reader never observes a
	// row pointing at the new container but the old image (or vice versa).
	UpdateProjectDeployment(ctx context.Context, projectID int64, u ProjectUpdate) error

	DeleteProject(ctx context.Context, projectID int64) error

	// Participants
	AddParticipant(ctx context.Context, projectID int64, participantID string) error
	RemoveParticipant(ctx context.Context, projectID int64, participantID string) error
	ListParticipants(ctx context.Context, projectID int64) ([]string, error)

	// Databases
	CreateDatabase(ctx context.Context, d *types.Database) (int64, error)
	GetDatabaseByOwner(ctx context.Context, ownerLogin string) (*types.Database, error)
	LinkDatabaseToProject(ctx context.Context, databaseID, projectID int64) error
	DeleteDatabase(ctx context.Context, databaseID int64) error

	// DeployTx runs fn inside a single SQL transaction; the transaction
	// commits iff fn returns nil, and rolls back otherwise. Used by the
	// orchestrator to commit project, database, and participant rows
	// together.
	DeployTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// ProjectUpdate is the metadata a blue-green swap repoints on its
// project row. ContainerName, ImageTag, and ImageDigest are always
// written; SourceURL and EnvVars are written only when non-nil (a direct
// image update repoints the source URL, an env update replaces the
// variable map).
type ProjectUpdate struct {
	ContainerName string
	ImageTag      string
	ImageDigest   string
	SourceURL     *string
	EnvVars       map[string]string
}

// Tx is the subset of Store operations valid inside a DeployTx callback.
type Tx interface {
	CreateProject(ctx context.Context, p *types.Project) (int64, error)
	CreateDatabase(ctx context.Context, d *types.Database) (int64, error)
	LinkDatabaseToProject(ctx context.Context, databaseID, projectID int64) error
	AddParticipant(ctx context.Context, projectID int64, participantID string) error
}
