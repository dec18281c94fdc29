package deploy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hangar/pkg/apperr"
	"github.com/cuemby/hangar/pkg/events"
	"github.com/cuemby/hangar/pkg/storage"
	"github.com/cuemby/hangar/pkg/types"
)

// fakeStore stubs the three existence checks checkPreconditions performs;
// every other Store method panics via the embedded nil interface.
type fakeStore struct {
	storage.Store
	ownerHasProject  bool
	projectNameTaken bool
	ownerHasDatabase bool
}

func (f *fakeStore) OwnerHasProject(ctx context.Context, owner string) (bool, error) {
	return f.ownerHasProject, nil
}

func (f *fakeStore) ProjectNameTaken(ctx context.Context, name string) (bool, error) {
	return f.projectNameTaken, nil
}

func (f *fakeStore) OwnerHasDatabase(ctx context.Context, owner string) (bool, error) {
	return f.ownerHasDatabase, nil
}

func TestCheckPreconditions(t *testing.T) {
	base := DeployRequest{
		ProjectName: "demo",
		Owner:       "alice",
		Source:      types.Source{Kind: types.SourceKindDirect, URL: "nginx:1.25"},
	}

	cases := []struct {
		name     string
		store    *fakeStore
		mutate   func(*DeployRequest)
		wantCode string
	}{
		{"ok", &fakeStore{}, nil, ""},
		{"owner already has project", &fakeStore{ownerHasProject: true}, nil, apperr.OwnerAlreadyExists},
		{"name taken", &fakeStore{projectNameTaken: true}, nil, apperr.ProjectNameTaken},
		{
			"owner already has database",
			&fakeStore{ownerHasDatabase: true},
			func(r *DeployRequest) { r.CreateDatabase = true },
			apperr.DatabaseAlreadyExists,
		},
		{
			"owner as participant",
			&fakeStore{},
			func(r *DeployRequest) { r.Participants = []string{"bob", "alice"} },
			apperr.OwnerCannotBeParticipant,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			if tc.mutate != nil {
				tc.mutate(&req)
			}
			o := &Orchestrator{store: tc.store}

			err := o.checkPreconditions(context.Background(), &req)
			if tc.wantCode == "" {
				require.NoError(t, err)
				return
			}
			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.wantCode, appErr.Code)
		})
	}
}

func TestCheckPreconditionsExistingDatabaseWithoutRequest(t *testing.T) {
	// An existing database only blocks deploys that ask for one.
	o := &Orchestrator{store: &fakeStore{ownerHasDatabase: true}}
	req := DeployRequest{
		ProjectName: "demo",
		Owner:       "alice",
		Source:      types.Source{Kind: types.SourceKindDirect, URL: "nginx:1.25"},
	}
	require.NoError(t, o.checkPreconditions(context.Background(), &req))
}

func TestValidateInput(t *testing.T) {
	cases := []struct {
		name     string
		req      DeployRequest
		wantCode string
	}{
		{
			"direct ok",
			DeployRequest{ProjectName: "demo", Source: types.Source{Kind: types.SourceKindDirect, URL: "nginx:1.25"}},
			"",
		},
		{
			"github ok",
			DeployRequest{ProjectName: "demo", Source: types.Source{Kind: types.SourceKindGitHub, URL: "https://github.com/acme/webapp", RootDir: "public"}},
			"",
		},
		{
			"bad project name",
			DeployRequest{ProjectName: "-demo", Source: types.Source{Kind: types.SourceKindDirect, URL: "nginx:1.25"}},
			apperr.InvalidProjectName,
		},
		{
			"bad image url",
			DeployRequest{ProjectName: "demo", Source: types.Source{Kind: types.SourceKindDirect, URL: "nginx; rm -rf /"}},
			apperr.InvalidImageURL,
		},
		{
			"bad github url",
			DeployRequest{ProjectName: "demo", Source: types.Source{Kind: types.SourceKindGitHub, URL: "https://gitlab.com/acme/webapp"}},
			apperr.InvalidGitHubURL,
		},
		{
			"bad root dir",
			DeployRequest{ProjectName: "demo", Source: types.Source{Kind: types.SourceKindGitHub, URL: "https://github.com/acme/webapp", RootDir: "../escape"}},
			apperr.InvalidSourceRootDir,
		},
		{
			"forbidden env var",
			DeployRequest{ProjectName: "demo", Source: types.Source{Kind: types.SourceKindDirect, URL: "nginx:1.25"}, EnvVars: map[string]string{"TRAEFIK_ENABLE": "false"}},
			apperr.ForbiddenEnvVar,
		},
		{
			"bad volume path",
			DeployRequest{ProjectName: "demo", Source: types.Source{Kind: types.SourceKindDirect, URL: "nginx:1.25"}, PersistentVolumePath: "/etc"},
			apperr.InvalidVolumePath,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateInput(&tc.req)
			if tc.wantCode == "" {
				require.NoError(t, err)
				return
			}
			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.wantCode, appErr.Code)
		})
	}
}

func TestValidateInputMissingSource(t *testing.T) {
	err := validateInput(&DeployRequest{ProjectName: "demo"})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindBadRequest, appErr.Kind)
}

func TestValidateInputNormalizesName(t *testing.T) {
	req := DeployRequest{ProjectName: "My-App", Source: types.Source{Kind: types.SourceKindDirect, URL: "nginx:1.25"}}
	require.NoError(t, validateInput(&req))
	assert.Equal(t, "my-app", req.ProjectName)
}

func TestWithStageEmitsBeforeAndAfter(t *testing.T) {
	o := &Orchestrator{}
	var got []*events.Event
	emit := func(ev *events.Event) { got = append(got, ev) }

	err := o.withStage(emit, "demo", events.StagePullingImage, events.StageImagePulled, func() error {
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, events.StagePullingImage, got[0].Stage)
	assert.Equal(t, events.StageImagePulled, got[1].Stage)
	assert.Equal(t, "demo", got[0].ProjectName)
}

func TestWithStageEmitsFailed(t *testing.T) {
	o := &Orchestrator{}
	var got []*events.Event
	emit := func(ev *events.Event) { got = append(got, ev) }

	cause := errors.New("pull blew up")
	err := o.withStage(emit, "demo", events.StagePullingImage, events.StageImagePulled, func() error {
		return cause
	})
	require.ErrorIs(t, err, cause)

	require.Len(t, got, 2)
	assert.Equal(t, events.StagePullingImage, got[0].Stage)
	assert.Equal(t, events.StageFailed, got[1].Stage)
	assert.Equal(t, events.StagePullingImage, got[1].FailedStage)
	assert.Equal(t, "pull blew up", got[1].Error)
}

func TestWithStageSkipsEmptyMarkers(t *testing.T) {
	o := &Orchestrator{}
	var got []*events.Event
	emit := func(ev *events.Event) { got = append(got, ev) }

	err := o.withStage(emit, "demo", events.StageGettingImageDigest, "", func() error { return nil })
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, events.StageGettingImageDigest, got[0].Stage)
}

func TestWriteDockerfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeDockerfile(dir, "hangar-base:latest", ""))

	b, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
	require.NoError(t, err)
	content := string(b)
	assert.Contains(t, content, "FROM hangar-base:latest\n")
	assert.Contains(t, content, "COPY --chown=appuser:appgroup . /var/www/html/\n")
	assert.NotContains(t, content, "HANGAR_WEBROOT_DIR")
}

func TestWriteDockerfileWithRootDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeDockerfile(dir, "hangar-base:latest", "public"))

	b, err := os.ReadFile(filepath.Join(dir, "Dockerfile"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "ENV HANGAR_WEBROOT_DIR=/var/www/html/public\n")
}
