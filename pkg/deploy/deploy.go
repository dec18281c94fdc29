package deploy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/hangar/pkg/apperr"
	"github.com/cuemby/hangar/pkg/events"
	"github.com/cuemby/hangar/pkg/log"
	"github.com/cuemby/hangar/pkg/metrics"
	"github.com/cuemby/hangar/pkg/runtime"
	"github.com/cuemby/hangar/pkg/security"
	"github.com/cuemby/hangar/pkg/source"
	"github.com/cuemby/hangar/pkg/storage"
	"github.com/cuemby/hangar/pkg/tenantdb"
	"github.com/cuemby/hangar/pkg/types"
	"github.com/cuemby/hangar/pkg/validate"
	"github.com/cuemby/hangar/pkg/health"
)

// Config carries the naming and image defaults the orchestrator needs that
// aren't specific to any one collaborator.
type Config struct {
	NamingPrefix string
	BaseImage    string
}

// Orchestrator runs the deploy-path state machine and the blue-green
// update protocol. It holds every collaborator both operations need:
// the control-plane store, the container runtime adapter, the tenant
// database provisioner, the secrets manager, the GitHub source fetcher,
// and the event hub.
type Orchestrator struct {
	store    storage.Store
	runtime  *runtime.Adapter
	tenantDB *tenantdb.Provisioner
	secrets  *security.SecretsManager
	source   *source.Fetcher
	hub      *events.Hub
	cfg      Config
	logger   zerolog.Logger
}

// New builds an Orchestrator from its collaborators.
func New(
	store storage.Store,
	rt *runtime.Adapter,
	tenantDB *tenantdb.Provisioner,
	secrets *security.SecretsManager,
	src *source.Fetcher,
	hub *events.Hub,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		runtime:  rt,
		tenantDB: tenantDB,
		secrets:  secrets,
		source:   src,
		hub:      hub,
		cfg:      cfg,
		logger:   log.WithComponent("orchestrator"),
	}
}

// DeployRequest is the fully-decoded, not-yet-validated input to Deploy.
type DeployRequest struct {
	ProjectName          string
	Owner                string
	Source               types.Source
	EnvVars              map[string]string // plaintext
	PersistentVolumePath string
	Participants         []string
	CreateDatabase       bool
}

// Deploy runs the full deploy-path state machine for a brand new project:
// precondition checks, input validation, image acquisition (pull or
// clone-and-build), scanning, digest resolution, container creation,
// health-wait, and persistence. Every transition is reported on the
// creation channel keyed by req.Owner; the terminal Completed event is
// additionally mirrored onto the project's own channel once its ID exists.
func (o *Orchestrator) Deploy(ctx context.Context, req *DeployRequest) (project *types.Project, err error) {
	emit := func(ev *events.Event) { o.hub.EmitCreation(req.Owner, ev) }

	timer := metrics.NewTimer()
	defer func() {
		if err != nil {
			metrics.DeploymentsTotal.WithLabelValues("failed").Inc()
			return
		}
		metrics.DeploymentsTotal.WithLabelValues("succeeded").Inc()
		timer.ObserveDuration(metrics.DeploymentDuration)
	}()

	emit(events.NewDeployment(req.ProjectName, events.StageStarted))

	if err = o.checkPreconditions(ctx, req); err != nil {
		o.fail(emit, req.ProjectName, events.Stage("Preconditions check"), err)
		return nil, err
	}

	if err = o.withStage(emit, req.ProjectName, events.StageValidatingInput, "", func() error {
		return validateInput(req)
	}); err != nil {
		return nil, err
	}

	containerName := fmt.Sprintf("%s-%s", o.cfg.NamingPrefix, req.ProjectName)

	var imageIdentifier, builtImageTag string

	switch req.Source.Kind {
	case types.SourceKindDirect:
		imageIdentifier = req.Source.URL

		if err = o.withStage(emit, req.ProjectName, events.StagePullingImage, events.StageImagePulled, func() error {
			return o.runtime.PullImage(ctx, req.Source.URL)
		}); err != nil {
			return nil, err
		}

		if err = o.withStage(emit, req.ProjectName, events.StageScanningImage, events.StageImageScanned, func() error {
			return o.runtime.ScanImage(ctx, req.Source.URL)
		}); err != nil {
			o.rollbackImageAsync(req.Source.URL)
			return nil, err
		}

	case types.SourceKindGitHub:
		cloneDir, derr := os.MkdirTemp("", "hangar-clone-*")
		if derr != nil {
			err = apperr.Internal(derr)
			o.fail(emit, req.ProjectName, events.StageCloningRepository, err)
			return nil, err
		}

		if err = o.withStage(emit, req.ProjectName, events.StageCloningRepository, events.StageRepositoryCloned, func() error {
			return o.source.Clone(ctx, req.Source.URL, cloneDir, req.Source.Branch)
		}); err != nil {
			os.RemoveAll(cloneDir)
			return nil, err
		}

		builtImageTag = fmt.Sprintf("hangar-local/%s:%d", req.ProjectName, time.Now().Unix())
		imageIdentifier = builtImageTag

		if err = o.withStage(emit, req.ProjectName, events.StageBuildingImage, events.StageImageBuilt, func() error {
			if werr := writeDockerfile(cloneDir, o.cfg.BaseImage, req.Source.RootDir); werr != nil {
				return apperr.Internal(werr)
			}
			tarball, terr := runtime.BuildTarball(cloneDir)
			if terr != nil {
				return terr
			}
			return o.runtime.BuildImage(ctx, tarball, builtImageTag)
		}); err != nil {
			os.RemoveAll(cloneDir)
			return nil, err
		}

		if err = o.withStage(emit, req.ProjectName, events.StageScanningImage, events.StageImageScanned, func() error {
			return o.runtime.ScanImage(ctx, builtImageTag)
		}); err != nil {
			os.RemoveAll(cloneDir)
			o.rollbackImageAsync(builtImageTag)
			return nil, err
		}

		if serr := o.withStage(emit, req.ProjectName, events.StageCleaningUp, "", func() error {
			return os.RemoveAll(cloneDir)
		}); serr != nil {
			o.logger.Warn().Err(serr).Str("dir", cloneDir).Msg("failed to remove clone directory")
		}
	}

	var digest string
	if err = o.withStage(emit, req.ProjectName, events.StageGettingImageDigest, "", func() error {
		d, ok, derr := o.runtime.InspectImageDigest(ctx, imageIdentifier)
		if derr != nil {
			return derr
		}
		if !ok {
			return apperr.Project(apperr.ImagePullFailed, "Could not resolve the image digest after pull or build.")
		}
		digest = d
		return nil
	}); err != nil {
		if builtImageTag != "" {
			o.rollbackImageAsync(builtImageTag)
		}
		return nil, err
	}

	var volumeName string
	if err = o.withStage(emit, req.ProjectName, events.StageCreatingContainer, events.StageContainerCreated, func() error {
		vn, cerr := o.runtime.CreateProjectContainer(ctx, containerName, req.ProjectName, imageIdentifier, req.EnvVars, req.PersistentVolumePath)
		if cerr != nil {
			return cerr
		}
		volumeName = vn
		return nil
	}); err != nil {
		if builtImageTag != "" {
			o.rollbackImageAsync(builtImageTag)
		}
		return nil, err
	}

	if err = o.withStage(emit, req.ProjectName, events.StageWaitingHealthCheck, events.StageHealthCheckPassed, func() error {
		cfg := health.DeployHealthWaitConfig()
		return health.WaitRunning(ctx, o.runtime, containerName, cfg.Retries, cfg.Interval)
	}); err != nil {
		o.rollbackContainerAndVolume(containerName, volumeName)
		if builtImageTag != "" {
			o.rollbackImageAsync(builtImageTag)
		}
		return nil, err
	}

	encEnvVars, eerr := o.secrets.EncryptEnvVars(req.EnvVars)
	if eerr != nil {
		err = apperr.Internal(eerr)
		o.rollbackContainerAndVolume(containerName, volumeName)
		if builtImageTag != "" {
			o.rollbackImageAsync(builtImageTag)
		}
		o.fail(emit, req.ProjectName, events.StageCreatingContainer, err)
		return nil, err
	}

	project = &types.Project{
		Name:                 req.ProjectName,
		Owner:                req.Owner,
		ContainerName:        containerName,
		Source:               req.Source,
		DeployedImageTag:     imageIdentifier,
		DeployedImageDigest:  digest,
		EnvVars:              encEnvVars,
		PersistentVolumePath: req.PersistentVolumePath,
		VolumeName:           volumeName,
	}

	if err = o.persist(ctx, req, project, emit); err != nil {
		o.rollbackContainerAndVolume(containerName, volumeName)
		if builtImageTag != "" {
			o.rollbackImageAsync(builtImageTag)
		}
		return nil, err
	}

	completed := events.NewDeployment(project.Name, events.StageCompleted)
	completed.ContainerName = project.ContainerName
	emit(completed)
	o.hub.EmitProject(project.ID, completed)

	return project, nil
}

// checkPreconditions rejects a deploy request before any side effect:
// the owner must not already have a project, the project name must be
// free, a database request requires the owner not already have one, and
// no participant may equal the owner.
func (o *Orchestrator) checkPreconditions(ctx context.Context, req *DeployRequest) error {
	has, err := o.store.OwnerHasProject(ctx, req.Owner)
	if err != nil {
		return apperr.Internal(err)
	}
	if has {
		return apperr.Project(apperr.OwnerAlreadyExists, "You already have a project.")
	}

	name, err := validate.ProjectName(req.ProjectName)
	if err != nil {
		return err
	}
	taken, err := o.store.ProjectNameTaken(ctx, name)
	if err != nil {
		return apperr.Internal(err)
	}
	if taken {
		return apperr.Project(apperr.ProjectNameTaken, "This project name is already taken.")
	}

	if req.CreateDatabase {
		hasDB, err := o.store.OwnerHasDatabase(ctx, req.Owner)
		if err != nil {
			return apperr.Internal(err)
		}
		if hasDB {
			return apperr.Database(apperr.DatabaseAlreadyExists, "You already have a database.")
		}
	}

	for _, p := range req.Participants {
		if p == req.Owner {
			return apperr.Project(apperr.OwnerCannotBeParticipant, "The owner cannot also be a participant.")
		}
	}

	return nil
}

// validateInput normalizes and validates every field of req, rejecting
// anything the preconditions check doesn't already cover.
func validateInput(req *DeployRequest) error {
	name, err := validate.ProjectName(req.ProjectName)
	if err != nil {
		return err
	}
	req.ProjectName = name

	switch req.Source.Kind {
	case types.SourceKindDirect:
		if err := validate.ImageURL(req.Source.URL); err != nil {
			return err
		}
	case types.SourceKindGitHub:
		if _, _, err := source.ParseGitHubURL(req.Source.URL); err != nil {
			return err
		}
		if err := validate.SourceRootDir(req.Source.RootDir); err != nil {
			return err
		}
	default:
		return apperr.BadRequest("Exactly one of image_url or github_repo_url must be supplied.")
	}

	if err := validate.EnvVars(req.EnvVars); err != nil {
		return err
	}

	if req.PersistentVolumePath != "" {
		if err := validate.VolumePath(req.PersistentVolumePath); err != nil {
			return err
		}
	}

	return nil
}

// persist commits the project, its optional database, and its participant
// list in a single SQL transaction. Tenant-database provisioning itself
// runs on the tenant server outside that transaction but is sequenced
// between the project-row insert and the commit: a failure here rolls
// back the tenant-server resources it already created before propagating.
func (o *Orchestrator) persist(ctx context.Context, req *DeployRequest, project *types.Project, emit func(*events.Event)) error {
	return o.store.DeployTx(ctx, func(tx storage.Tx) error {
		id, err := tx.CreateProject(ctx, project)
		if err != nil {
			return apperr.Internal(err)
		}
		project.ID = id

		if req.CreateDatabase {
			dbName := tenantdb.DatabaseName(req.Owner)
			password, perr := tenantdb.GeneratePassword()
			if perr != nil {
				return apperr.Internal(perr)
			}

			if err := o.withStage(emit, project.Name, events.StageProvisioningDatabase, events.StageDatabaseProvisioned, func() error {
				return o.tenantDB.Provision(ctx, dbName, req.Owner, password)
			}); err != nil {
				return err
			}

			encPassword, eerr := o.secrets.EncryptValue(password)
			if eerr != nil {
				o.tenantDB.Deprovision(ctx, dbName, req.Owner)
				return apperr.Internal(eerr)
			}

			if err := o.withStage(emit, project.Name, events.StageLinkingDatabase, events.StageDatabaseLinked, func() error {
				projectID := project.ID
				db := &types.Database{
					OwnerLogin:        req.Owner,
					DatabaseName:      dbName,
					Username:          req.Owner,
					EncryptedPassword: encPassword,
					ProjectID:         &projectID,
				}
				dbID, cerr := tx.CreateDatabase(ctx, db)
				if cerr != nil {
					return apperr.Internal(cerr)
				}
				if lerr := tx.LinkDatabaseToProject(ctx, dbID, project.ID); lerr != nil {
					return apperr.Internal(lerr)
				}
				return nil
			}); err != nil {
				if derr := o.tenantDB.Deprovision(ctx, dbName, req.Owner); derr != nil {
					o.logger.Warn().Err(derr).Str("database", dbName).Msg("failed to roll back tenant database after SQL link failure")
				}
				return err
			}
		}

		for _, participant := range req.Participants {
			if err := tx.AddParticipant(ctx, project.ID, participant); err != nil {
				return apperr.Internal(err)
			}
		}

		return nil
	})
}
