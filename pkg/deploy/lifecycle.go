package deploy

import (
	"context"

	"github.com/cuemby/hangar/pkg/apperr"
	"github.com/cuemby/hangar/pkg/events"
	"github.com/cuemby/hangar/pkg/tenantdb"
	"github.com/cuemby/hangar/pkg/types"
)

// Purge tears down a project end to end: its container, its volume (if
// any), its linked database on the tenant server (if any), and finally
// its rows in the control-plane store. Unlike Deploy/Update this is a
// destructive operation with no "undo" to roll back to; each step is
// best-effort and logged on failure rather than aborting the remaining
// steps, so a project can never get stuck half-purged because one
// external system briefly misbehaved.
func (o *Orchestrator) Purge(ctx context.Context, project *types.Project, database *types.Database) error {
	emit := func(ev *events.Event) { o.hub.EmitProject(project.ID, ev) }
	emit(events.NewDeployment(project.Name, events.StageCleaningUp))

	if err := o.runtime.RemoveContainer(ctx, project.ContainerName); err != nil {
		o.logger.Warn().Err(err).Str("container", project.ContainerName).Msg("purge: failed to remove container")
	}
	if project.VolumeName != "" {
		if err := o.runtime.RemoveVolume(ctx, project.VolumeName); err != nil {
			o.logger.Warn().Err(err).Str("volume", project.VolumeName).Msg("purge: failed to remove volume")
		}
	}
	if project.DeployedImageTag != "" {
		o.rollbackImageAsync(project.DeployedImageTag)
	}

	if database != nil {
		if err := o.tenantDB.Deprovision(ctx, database.DatabaseName, database.Username); err != nil {
			o.logger.Warn().Err(err).Str("database", database.DatabaseName).Msg("purge: failed to deprovision tenant database")
		}
		if err := o.store.DeleteDatabase(ctx, database.ID); err != nil {
			o.logger.Warn().Err(err).Int64("database_id", database.ID).Msg("purge: failed to delete database row")
		}
	}

	if err := o.store.DeleteProject(ctx, project.ID); err != nil {
		err = apperr.Internal(err)
		o.fail(emit, project.Name, events.Stage("Purge"), err)
		return err
	}

	emit(events.NewDeployment(project.Name, events.StageCompleted))
	return nil
}

// ProvisionDatabase creates a tenant database for an already-deployed
// project that didn't request one at deploy time. The caller is
// responsible for checking the owner doesn't already have a database.
func (o *Orchestrator) ProvisionDatabase(ctx context.Context, project *types.Project, ownerLogin string) (*types.Database, error) {
	dbName := tenantdb.DatabaseName(ownerLogin)
	password, err := tenantdb.GeneratePassword()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if err := o.tenantDB.Provision(ctx, dbName, ownerLogin, password); err != nil {
		return nil, err
	}

	encPassword, err := o.secrets.EncryptValue(password)
	if err != nil {
		o.tenantDB.Deprovision(ctx, dbName, ownerLogin)
		return nil, apperr.Internal(err)
	}

	projectID := project.ID
	db := &types.Database{
		OwnerLogin:        ownerLogin,
		DatabaseName:      dbName,
		Username:          ownerLogin,
		EncryptedPassword: encPassword,
		ProjectID:         &projectID,
	}
	id, err := o.store.CreateDatabase(ctx, db)
	if err != nil {
		o.tenantDB.Deprovision(ctx, dbName, ownerLogin)
		return nil, apperr.Internal(err)
	}
	db.ID = id

	if err := o.store.LinkDatabaseToProject(ctx, id, project.ID); err != nil {
		o.logger.Warn().Err(err).Int64("database_id", id).Msg("failed to link newly-provisioned database to project")
	}

	return db, nil
}

// DeprovisionDatabase tears down a standalone database explicitly, without
// touching any project.
func (o *Orchestrator) DeprovisionDatabase(ctx context.Context, db *types.Database) error {
	if err := o.tenantDB.Deprovision(ctx, db.DatabaseName, db.Username); err != nil {
		return err
	}
	if err := o.store.DeleteDatabase(ctx, db.ID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}
