package deploy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/hangar/pkg/apperr"
	"github.com/cuemby/hangar/pkg/events"
	"github.com/cuemby/hangar/pkg/health"
	"github.com/cuemby/hangar/pkg/metrics"
	"github.com/cuemby/hangar/pkg/runtime"
	"github.com/cuemby/hangar/pkg/storage"
	"github.com/cuemby/hangar/pkg/types"
	"github.com/cuemby/hangar/pkg/validate"
)

// UpdateKind selects which part of a running project a blue-green update
// replaces.
type UpdateKind string

const (
	// UpdateKindImage repoints a direct-deployed project at a new image
	// URL. Valid only for SourceKindDirect projects.
	UpdateKindImage UpdateKind = "image"
	// UpdateKindEnv replaces a project's environment variables without
	// touching its image.
	UpdateKindEnv UpdateKind = "env"
	// UpdateKindRebuild re-clones and rebuilds a GitHub-sourced project
	// from its repository. Valid only for SourceKindGitHub projects.
	UpdateKindRebuild UpdateKind = "rebuild"
)

// UpdateRequest is the input to Update.
type UpdateRequest struct {
	Project     *types.Project
	Kind        UpdateKind
	NewImageURL string            // UpdateKindImage
	NewBranch   string            // UpdateKindRebuild; empty keeps the project's current branch
	NewEnvVars  map[string]string // UpdateKindEnv, plaintext
}

// UpdateResult reports the outcome of an Update call.
type UpdateResult struct {
	// Status is "updated" or "no_change". "no_change" is returned when
	// an image or rebuild update resolves to the same content digest
	// already deployed; no container is swapped in that case.
	Status  string
	Project *types.Project
}

// Update runs the blue-green update protocol: it stands up a new
// container for the requested change, health-waits it, atomically
// repoints the project's stored container/image/env references, then
// removes the old container synchronously and the old image in the
// background. A digest match against the currently deployed image
// short-circuits to Status "no_change" before any container is touched.
func (o *Orchestrator) Update(ctx context.Context, req *UpdateRequest) (result *UpdateResult, err error) {
	project := req.Project
	emit := func(ev *events.Event) { o.hub.EmitProject(project.ID, ev) }

	timer := metrics.NewTimer()
	outcome := "failed"
	defer func() {
		metrics.UpdatesTotal.WithLabelValues(string(req.Kind), outcome).Inc()
		if outcome != "failed" {
			timer.ObserveDurationVec(metrics.UpdateDuration, string(req.Kind))
		}
	}()

	switch req.Kind {
	case UpdateKindImage:
		if project.Source.Kind != types.SourceKindDirect {
			return nil, apperr.BadRequest("Image updates are only valid for directly-deployed projects.")
		}
		if err := validate.ImageURL(req.NewImageURL); err != nil {
			return nil, err
		}
	case UpdateKindRebuild:
		if project.Source.Kind != types.SourceKindGitHub {
			return nil, apperr.BadRequest("Rebuilds are only valid for GitHub-sourced projects.")
		}
	case UpdateKindEnv:
		if err := validate.EnvVars(req.NewEnvVars); err != nil {
			return nil, err
		}
	default:
		return nil, apperr.BadRequest("Unknown update kind.")
	}

	var newImageIdentifier, builtImageTag, newDigest string

	switch req.Kind {
	case UpdateKindImage:
		newImageIdentifier = req.NewImageURL

		if err = o.withStage(emit, project.Name, events.StagePullingImage, events.StageImagePulled, func() error {
			return o.runtime.PullImage(ctx, req.NewImageURL)
		}); err != nil {
			return nil, err
		}
		if err = o.withStage(emit, project.Name, events.StageScanningImage, events.StageImageScanned, func() error {
			return o.runtime.ScanImage(ctx, req.NewImageURL)
		}); err != nil {
			o.rollbackImageAsync(req.NewImageURL)
			return nil, err
		}

		d, ok, derr := o.runtime.InspectImageDigest(ctx, newImageIdentifier)
		if derr != nil {
			o.rollbackImageAsync(newImageIdentifier)
			err = derr
			return nil, err
		}
		if !ok {
			o.rollbackImageAsync(newImageIdentifier)
			err = apperr.Project(apperr.ImagePullFailed, "Could not resolve the new image digest.")
			return nil, err
		}
		newDigest = d

		if newDigest == project.DeployedImageDigest {
			o.rollbackImageAsync(newImageIdentifier)
			outcome = "no_change"
			return &UpdateResult{Status: "no_change", Project: project}, nil
		}

	case UpdateKindRebuild:
		cloneDir, derr := os.MkdirTemp("", "hangar-update-*")
		if derr != nil {
			err = apperr.Internal(derr)
			return nil, err
		}

		branch := req.NewBranch
		if branch == "" {
			branch = project.Source.Branch
		}

		if err = o.withStage(emit, project.Name, events.StageCloningRepository, events.StageRepositoryCloned, func() error {
			return o.source.Clone(ctx, project.Source.URL, cloneDir, branch)
		}); err != nil {
			os.RemoveAll(cloneDir)
			return nil, err
		}

		builtImageTag = fmt.Sprintf("hangar-local/%s:%d", project.Name, time.Now().Unix())
		newImageIdentifier = builtImageTag

		if err = o.withStage(emit, project.Name, events.StageBuildingImage, events.StageImageBuilt, func() error {
			if werr := writeDockerfile(cloneDir, o.cfg.BaseImage, project.Source.RootDir); werr != nil {
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

		if err = o.withStage(emit, project.Name, events.StageScanningImage, events.StageImageScanned, func() error {
			return o.runtime.ScanImage(ctx, builtImageTag)
		}); err != nil {
			os.RemoveAll(cloneDir)
			o.rollbackImageAsync(builtImageTag)
			return nil, err
		}

		os.RemoveAll(cloneDir)

		d, ok, derr2 := o.runtime.InspectImageDigest(ctx, builtImageTag)
		if derr2 != nil {
			o.rollbackImageAsync(builtImageTag)
			err = derr2
			return nil, err
		}
		if !ok {
			o.rollbackImageAsync(builtImageTag)
			err = apperr.Internal(fmt.Errorf("built image %s not found after build", builtImageTag))
			return nil, err
		}
		newDigest = d

		if newDigest == project.DeployedImageDigest {
			o.rollbackImageAsync(builtImageTag)
			outcome = "no_change"
			return &UpdateResult{Status: "no_change", Project: project}, nil
		}

	case UpdateKindEnv:
		newImageIdentifier = project.DeployedImageTag
		newDigest = project.DeployedImageDigest
	}

	var plainEnvVars, persistedEnvVars map[string]string
	if req.Kind == UpdateKindEnv {
		encrypted, eerr := o.secrets.EncryptEnvVars(req.NewEnvVars)
		if eerr != nil {
			err = apperr.Internal(eerr)
			return nil, err
		}
		plainEnvVars = req.NewEnvVars
		persistedEnvVars = encrypted
	} else {
		decrypted, derr := o.secrets.DecryptEnvVars(project.EnvVars)
		if derr != nil {
			if builtImageTag != "" {
				o.rollbackImageAsync(builtImageTag)
			}
			err = apperr.Internal(derr)
			return nil, err
		}
		plainEnvVars = decrypted
		persistedEnvVars = project.EnvVars
	}

	newContainerName := fmt.Sprintf("%s-%s-%d", o.cfg.NamingPrefix, project.Name, time.Now().Unix())

	if err = o.withStage(emit, project.Name, events.StageCreatingContainer, events.StageContainerCreated, func() error {
		_, cerr := o.runtime.CreateProjectContainer(ctx, newContainerName, project.Name, newImageIdentifier, plainEnvVars, project.PersistentVolumePath)
		return cerr
	}); err != nil {
		if builtImageTag != "" {
			o.rollbackImageAsync(builtImageTag)
		}
		return nil, err
	}

	if err = o.withStage(emit, project.Name, events.StageWaitingHealthCheck, events.StageHealthCheckPassed, func() error {
		cfg := health.DeployHealthWaitConfig()
		return health.WaitRunning(ctx, o.runtime, newContainerName, cfg.Retries, cfg.Interval)
	}); err != nil {
		o.rollbackContainerAsync(newContainerName)
		if builtImageTag != "" {
			o.rollbackImageAsync(builtImageTag)
		}
		return nil, err
	}

	oldContainerName := project.ContainerName
	oldImageTag := project.DeployedImageTag

	upd := storage.ProjectUpdate{
		ContainerName: newContainerName,
		ImageTag:      newImageIdentifier,
		ImageDigest:   newDigest,
	}
	if req.Kind == UpdateKindImage {
		upd.SourceURL = &req.NewImageURL
	}
	if req.Kind == UpdateKindEnv {
		if persistedEnvVars == nil {
			persistedEnvVars = map[string]string{}
		}
		upd.EnvVars = persistedEnvVars
	}
	if serr := o.store.UpdateProjectDeployment(ctx, project.ID, upd); serr != nil {
		o.rollbackContainerAsync(newContainerName)
		if builtImageTag != "" {
			o.rollbackImageAsync(builtImageTag)
		}
		err = apperr.Internal(serr)
		return nil, err
	}

	if rerr := o.runtime.RemoveContainer(ctx, oldContainerName); rerr != nil {
		o.logger.Warn().Err(rerr).Str("container", oldContainerName).Msg("failed to remove previous container after update")
	}
	if oldImageTag != "" && oldImageTag != newImageIdentifier {
		o.rollbackImageAsync(oldImageTag)
	}

	project.ContainerName = newContainerName
	project.DeployedImageTag = newImageIdentifier
	project.DeployedImageDigest = newDigest
	if req.Kind == UpdateKindImage {
		project.Source.URL = req.NewImageURL
	}
	if req.Kind == UpdateKindEnv {
		project.EnvVars = persistedEnvVars
	}

	completed := events.NewDeployment(project.Name, events.StageCompleted)
	completed.ContainerName = newContainerName
	emit(completed)

	outcome = "updated"
	return &UpdateResult{Status: "updated", Project: project}, nil
}
