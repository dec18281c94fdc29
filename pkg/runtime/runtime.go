// Package runtime is hangar's thin typed façade over the Docker Engine
// API: pull/build/scan/inspect/stats/logs/events, and container and volume
// lifecycle. Every exported method maps Docker's own error shapes onto the
// project error codes the orchestrator and blue-green updater expect.
package runtime

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	units "github.com/docker/go-units"

	"github.com/cuemby/hangar/pkg/apperr"
	"github.com/cuemby/hangar/pkg/log"
	"github.com/cuemby/hangar/pkg/types"
)

const maxLogSize = 10 * 1024 * 1024 // 10 MiB

// Config carries the per-container hardening and labeling parameters the
// orchestrator needs every time it creates a project container.
type Config struct {
	MemoryMB            int64
	CPUQuota            int64
	NetworkName         string
	AppPrefix           string
	DomainSuffix        string
	TraefikEntrypoint   string
	TraefikCertResolver string
	GrypeEnabled        bool
	GrypeFailOnSeverity string
}

// Adapter wraps a Docker Engine API client.
type Adapter struct {
	api *client.Client
	cfg Config
}

// NewAdapter connects to the Docker daemon using the standard environment
// variables (DOCKER_HOST, DOCKER_CERT_PATH, ...) and negotiates the API
// version with the daemon.
func NewAdapter(cfg Config) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Adapter{api: cli, cfg: cfg}, nil
}

func (a *Adapter) Close() error {
	if a == nil || a.api == nil {
		return nil
	}
	return a.api.Close()
}

// PullImage streams a pull of imageURL. Authentication errors against the
// registry map to GITHUB_PACKAGE_NOT_PUBLIC (the one private-registry case
// hangar supports is a public ghcr.io image); any other failure maps to
// IMAGE_PULL_FAILED.
func (a *Adapter) PullImage(ctx context.Context, imageURL string) error {
	log.Logger.Info().Str("image", imageURL).Msg("pulling image")

	reader, err := a.api.ImagePull(ctx, imageURL, image.PullOptions{})
	if err != nil {
		return classifyPullError(err)
	}
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	for {
		var msg struct {
			ErrorDetail struct {
				Message string `json:"message"`
			} `json:"errorDetail"`
			Error string `json:"error"`
		}
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return apperr.Project(apperr.ImagePullFailed, "Failed to pull the Docker image. Please check the URL and registry access.")
		}
		if msg.Error != "" {
			lower := strings.ToLower(msg.Error)
			if strings.Contains(lower, "unauthorized") || strings.Contains(lower, "authentication required") {
				return apperr.Project(apperr.GitHubPackageNotPublic, "Images from ghcr.io must be public for direct deployment.")
			}
			return apperr.Project(apperr.ImagePullFailed, "Failed to pull the Docker image. Please check the URL and registry access.")
		}
	}

	log.Logger.Info().Str("image", imageURL).Msg("image pulled successfully")
	return nil
}

func classifyPullError(err error) error {
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "unauthorized") || strings.Contains(lower, "authentication required") {
		return apperr.Project(apperr.GitHubPackageNotPublic, "Images from ghcr.io must be public for direct deployment.")
	}
	return apperr.Project(apperr.ImagePullFailed, "Failed to pull the Docker image. Please check the URL and registry access.")
}

// ScanImage shells out to the grype vulnerability scanner. When scanning is
// disabled by configuration it unconditionally succeeds.
func (a *Adapter) ScanImage(ctx context.Context, imageURL string) error {
	if !a.cfg.GrypeEnabled {
		log.Logger.Warn().Str("image", imageURL).Msg("grype scan disabled, skipping")
		return nil
	}

	log.Logger.Info().Str("image", imageURL).Msg("scanning image with grype")

	cmd := exec.CommandContext(ctx, "grype", imageURL, "--only-fixed", "--fail-on", a.cfg.GrypeFailOnSeverity)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout

	err := cmd.Run()
	if err == nil {
		log.Logger.Info().Str("image", imageURL).Msg("grype scan passed")
		return nil
	}

	var exitErr *exec.ExitError
	if !isExitError(err, &exitErr) {
		log.Logger.Error().Err(err).Msg("failed to execute grype command")
		return apperr.Internal(err)
	}

	report := strings.TrimSpace(stdout.String())
	log.Logger.Warn().Str("image", imageURL).Msg("grype found vulnerabilities")
	return apperr.ProjectWithDetails(apperr.ImageScanFailed, "Security scan failed: vulnerabilities were found in the image.", report)
}

func isExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

// BuildTarball gzip-tars dir into an in-memory archive suitable for
// BuildImage.
func BuildTarball(dir string) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("build tarball: %w", err))
	}
	if err := tw.Close(); err != nil {
		return nil, apperr.Internal(err)
	}
	if err := gz.Close(); err != nil {
		return nil, apperr.Internal(err)
	}
	return buf.Bytes(), nil
}

// BuildImage streams a build of the gzip-tar context (which must contain a
// Dockerfile at its root) and tags the result imageTag.
func (a *Adapter) BuildImage(ctx context.Context, tarball []byte, imageTag string) error {
	resp, err := a.api.ImageBuild(ctx, bytes.NewReader(tarball), dockertypes.ImageBuildOptions{
		Dockerfile: "Dockerfile",
		Tags:       []string{imageTag},
		Remove:     true,
	})
	if err != nil {
		log.Logger.Error().Err(err).Str("tag", imageTag).Msg("docker build stream error")
		return apperr.Internal(err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	for {
		var msg struct {
			Stream      string `json:"stream"`
			ErrorDetail struct {
				Message string `json:"message"`
			} `json:"errorDetail"`
		}
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return apperr.Internal(err)
		}
		if msg.ErrorDetail.Message != "" {
			log.Logger.Error().Str("tag", imageTag).Str("detail", msg.ErrorDetail.Message).Msg("failed to build image")
			return apperr.BadRequest("Failed to build Docker image from source.")
		}
	}

	log.Logger.Info().Str("tag", imageTag).Msg("image built successfully")
	return nil
}

// InspectImageDigest returns the content digest for tag, or ok=false if the
// image does not exist.
func (a *Adapter) InspectImageDigest(ctx context.Context, tag string) (digest string, ok bool, err error) {
	details, _, err := a.api.ImageInspectWithRaw(ctx, tag)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", false, nil
		}
		return "", false, apperr.Internal(err)
	}
	if details.ID == "" {
		return "", false, nil
	}
	return details.ID, true, nil
}

// CreateProjectContainer creates and starts a project container with
// hangar's standard security hardening, resource limits, and Traefik
// labels. If volumePath is set, a named local volume is created and
// mounted there first. On failure it rolls back whatever it created.
func (a *Adapter) CreateProjectContainer(
	ctx context.Context,
	containerName, projectName, imageIdentifier string,
	envVars map[string]string,
	volumePath string,
) (volumeName string, err error) {
	hostname := fmt.Sprintf("%s.%s", projectName, a.cfg.DomainSuffix)

	var createdVolume string
	var dockerMounts []string
	if volumePath != "" {
		createdVolume = fmt.Sprintf("hangar-data-%s", projectName)
		if _, err := a.api.VolumeCreate(ctx, volume.CreateOptions{
			Name:   createdVolume,
			Driver: "local",
		}); err != nil {
			log.Logger.Error().Err(err).Str("volume", createdVolume).Msg("failed to create docker volume")
			return "", apperr.Project(apperr.ContainerCreationFailed, "Failed to create the project container.")
		}
		dockerMounts = append(dockerMounts, createdVolume+":"+volumePath)
	}

	hostConfig := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
		Resources: container.Resources{
			Memory:           a.cfg.MemoryMB * 1024 * 1024,
			CPUQuota:         a.cfg.CPUQuota,
			PidsLimit:        int64Ptr(1024),
			OomKillDisable:   boolPtr(false),
			MemorySwappiness: int64Ptr(0),
			Ulimits: []*units.Ulimit{
				{Name: "nofile", Soft: 1024, Hard: 2048},
				{Name: "nproc", Soft: 512, Hard: 1024},
			},
		},
		NetworkMode:    container.NetworkMode(a.cfg.NetworkName),
		SecurityOpt:    []string{"no-new-privileges:true", "apparmor:docker-default"},
		ReadonlyRootfs: false,
		Privileged:     false,
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=100m",
		},
		Binds: dockerMounts,
	}

	labels := map[string]string{
		"app":             a.cfg.AppPrefix,
		"traefik.enable":  "true",
		fmt.Sprintf("traefik.http.routers.%s.rule", projectName):                  fmt.Sprintf("Host(`%s`)", hostname),
		fmt.Sprintf("traefik.http.routers.%s.entrypoints", projectName):           a.cfg.TraefikEntrypoint,
		fmt.Sprintf("traefik.http.routers.%s.tls.certresolver", projectName):      a.cfg.TraefikCertResolver,
		fmt.Sprintf("traefik.http.services.%s.loadbalancer.server.port", projectName): "80",
	}

	var env []string
	for k, v := range envVars {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	containerCfg := &container.Config{
		Image:  imageIdentifier,
		Labels: labels,
		Env:    env,
	}

	resp, err := a.api.ContainerCreate(ctx, containerCfg, hostConfig, nil, nil, containerName)
	if err != nil {
		log.Logger.Error().Err(err).Str("container", containerName).Msg("failed to create container")
		if createdVolume != "" {
			go a.rollbackVolume(createdVolume)
		}
		return "", apperr.Project(apperr.ContainerCreationFailed, "Failed to create the project container.")
	}

	if err := a.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		log.Logger.Error().Err(err).Str("container", containerName).Msg("failed to start container")
		go a.rollbackContainerAndVolume(containerName, createdVolume)
		return "", apperr.Project(apperr.ContainerCreationFailed, "Failed to create the project container.")
	}

	log.Logger.Info().Str("container", containerName).Str("id", resp.ID).Msg("container created and started")
	return createdVolume, nil
}

func (a *Adapter) rollbackVolume(volumeName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.RemoveVolume(ctx, volumeName); err != nil {
		log.Logger.Error().Err(err).Str("volume", volumeName).Msg("rollback failed: could not remove volume after container start failure")
		return
	}
	log.Logger.Info().Str("volume", volumeName).Msg("rollback successful for volume")
}

func (a *Adapter) rollbackContainerAndVolume(containerName, volumeName string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	log.Logger.Warn().Str("container", containerName).Msg("attempting rollback for failed container start")
	if err := a.RemoveContainer(ctx, containerName); err != nil {
		log.Logger.Error().Err(err).Str("container", containerName).Msg("rollback failed: could not remove container after start failure")
	} else {
		log.Logger.Info().Str("container", containerName).Msg("rollback successful for container")
	}
	if volumeName != "" {
		a.rollbackVolume(volumeName)
	}
}

// RemoveContainer stops then removes the container; a prior 404 or 304 is
// treated as success.
func (a *Adapter) RemoveContainer(ctx context.Context, name string) error {
	log.Logger.Info().Str("container", name).Msg("stopping and removing container")

	if err := a.api.ContainerStop(ctx, name, container.StopOptions{}); err != nil && !client.IsErrNotFound(err) {
		log.Logger.Error().Err(err).Str("container", name).Msg("error stopping container")
	}

	if err := a.api.ContainerRemove(ctx, name, container.RemoveOptions{RemoveVolumes: false}); err != nil {
		if client.IsErrNotFound(err) {
			log.Logger.Warn().Str("container", name).Msg("container not found during removal")
			return nil
		}
		log.Logger.Error().Err(err).Str("container", name).Msg("error removing container")
		return apperr.Internal(err)
	}

	log.Logger.Info().Str("container", name).Msg("container removed")
	return nil
}

// RemoveImage force-removes tag. Failures are logged, not retried, and not
// returned as a blocking error to the caller's cleanup path.
func (a *Adapter) RemoveImage(ctx context.Context, tag string) error {
	if _, err := a.api.ImageRemove(ctx, tag, image.RemoveOptions{Force: true}); err != nil {
		log.Logger.Error().Err(err).Str("image", tag).Msg("could not remove image")
		return apperr.Internal(err)
	}
	return nil
}

// RemoveVolume force-removes name; 404 is treated as success.
func (a *Adapter) RemoveVolume(ctx context.Context, name string) error {
	if err := a.api.VolumeRemove(ctx, name, true); err != nil {
		if client.IsErrNotFound(err) {
			log.Logger.Warn().Str("volume", name).Msg("volume not found during removal")
			return nil
		}
		log.Logger.Error().Err(err).Str("volume", name).Msg("error removing volume")
		return apperr.Internal(err)
	}
	return nil
}

// GetStatus returns the runtime-reported lifecycle state of name, or
// ok=false if the container does not exist.
func (a *Adapter) GetStatus(ctx context.Context, name string) (state types.ContainerState, ok bool, err error) {
	info, err := a.api.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", false, nil
		}
		return "", false, apperr.Internal(err)
	}
	if info.State == nil {
		return types.ContainerStateUnknown, true, nil
	}
	return mapContainerState(info.State.Status), true, nil
}

// IsRunning implements health.Inspector.
func (a *Adapter) IsRunning(ctx context.Context, name string) (bool, error) {
	state, ok, err := a.GetStatus(ctx, name)
	if err != nil {
		return false, err
	}
	return ok && state == types.ContainerStateRunning, nil
}

func mapContainerState(status string) types.ContainerState {
	switch status {
	case "created":
		return types.ContainerStateCreated
	case "restarting":
		return types.ContainerStateRestarting
	case "running":
		return types.ContainerStateRunning
	case "removing":
		return types.ContainerStateRemoving
	case "paused":
		return types.ContainerStatePaused
	case "exited":
		return types.ContainerStateExited
	case "dead":
		return types.ContainerStateDead
	default:
		return types.ContainerStateUnknown
	}
}

// Logs returns accumulated stdout+stderr with timestamps, truncated at 10
// MiB.
func (a *Adapter) Logs(ctx context.Context, name string, tail string) (string, error) {
	log.Logger.Info().Str("container", name).Str("tail", tail).Msg("fetching logs")

	reader, err := a.api.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       tail,
		Timestamps: true,
	})
	if err != nil {
		return "", apperr.Internal(err)
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	lim := &logLimit{limit: maxLogSize}
	_, cerr := stdcopy.StdCopy(lim.wrap(&stdout), lim.wrap(&stderr), reader)
	if cerr != nil && cerr != errLogLimitReached {
		log.Logger.Error().Err(cerr).Str("container", name).Msg("error streaming logs")
	}

	out := stdout.String() + stderr.String()
	if lim.truncated {
		out += "[...] Logs truncated (exceeded 10MB)"
	}
	return out, nil
}

var errLogLimitReached = fmt.Errorf("log size limit reached")

// logLimit caps the combined number of bytes written across every writer
// it wraps. Once the cap is hit, the next write fails with
// errLogLimitReached so the log stream copy stops reading.
type logLimit struct {
	limit     int
	written   int
	truncated bool
}

func (l *logLimit) wrap(w io.Writer) io.Writer {
	return &limitedWriter{lim: l, w: w}
}

type limitedWriter struct {
	lim *logLimit
	w   io.Writer
}

func (s *limitedWriter) Write(p []byte) (int, error) {
	if s.lim.truncated {
		return 0, errLogLimitReached
	}
	remaining := s.lim.limit - s.lim.written
	if len(p) > remaining {
		p = p[:remaining]
		s.lim.truncated = true
	}
	n, err := s.w.Write(p)
	s.lim.written += n
	if err != nil {
		return n, err
	}
	if s.lim.truncated {
		return n, errLogLimitReached
	}
	return n, nil
}

// Stats returns one resource sample for name.
func (a *Adapter) Stats(ctx context.Context, name string) (types.ContainerMetrics, error) {
	resp, err := a.api.ContainerStatsOneShot(ctx, name)
	if err != nil {
		return types.ContainerMetrics{}, apperr.Internal(err)
	}
	defer resp.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return types.ContainerMetrics{}, apperr.Internal(err)
	}

	return statsToMetrics(stats), nil
}

func statsToMetrics(stats container.StatsResponse) types.ContainerMetrics {
	cpuPercent := calculateCPUPercent(stats)
	memUsage, memLimit := calculateMemory(stats)

	var memPercent float64
	if memLimit > 0 {
		memPercent = (float64(memUsage) / float64(memLimit)) * 100.0
	}

	return types.ContainerMetrics{
		CPUPercent:    cpuPercent,
		MemoryUsage:   memUsage,
		MemoryLimit:   memLimit,
		MemoryPercent: memPercent,
		NetworkRxMB:   networkTotal(stats, true),
		NetworkTxMB:   networkTotal(stats, false),
	}
}

// calculateCPUPercent reproduces Docker's own CPU% formula:
// (Δcontainer_cpu / Δsystem_cpu) × online_cpus × 100.
func calculateCPUPercent(stats container.StatsResponse) float64 {
	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)

	onlineCPUs := float64(stats.CPUStats.OnlineCPUs)
	if onlineCPUs == 0 {
		onlineCPUs = 1
	}

	if systemDelta > 0 && cpuDelta > 0 {
		return (cpuDelta / systemDelta) * onlineCPUs * 100.0
	}
	return 0.0
}

// calculateMemory reports usage minus page cache, matching the Docker CLI.
func calculateMemory(stats container.StatsResponse) (usage, limit int64) {
	usage = int64(stats.MemoryStats.Usage)
	limit = int64(stats.MemoryStats.Limit)
	if cache, ok := stats.MemoryStats.Stats["cache"]; ok {
		usage -= int64(cache)
		if usage < 0 {
			usage = 0
		}
	}
	return usage, limit
}

func networkTotal(stats container.StatsResponse, rx bool) float64 {
	var total uint64
	for _, n := range stats.Networks {
		if rx {
			total += n.RxBytes
		} else {
			total += n.TxBytes
		}
	}
	return float64(total) / (1024.0 * 1024.0)
}

// Events streams raw Docker daemon events filtered to container lifecycle
// changes; the reconciler translates them into status updates.
func (a *Adapter) Events(ctx context.Context) (<-chan events.Message, <-chan error) {
	f := filters.NewArgs()
	f.Add("type", "container")
	f.Add("label", "app="+a.cfg.AppPrefix)
	return a.api.Events(ctx, events.ListOptions{Filters: f})
}

func int64Ptr(v int64) *int64 { return &v }
func boolPtr(v bool) *bool    { return &v }
