package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hangar/pkg/apperr"
	"github.com/cuemby/hangar/pkg/types"
)

// fakeExecutor satisfies sqlExecutor and returns a canned error or result.
type fakeExecutor struct {
	err    error
	result sql.Result
	query  string
	args   []any
}

func (f *fakeExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.query = query
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeResult struct{ id int64 }

func (r fakeResult) LastInsertId() (int64, error) { return r.id, nil }
func (r fakeResult) RowsAffected() (int64, error) { return 1, nil }

func TestCreateProjectDuplicateName(t *testing.T) {
	exec := &fakeExecutor{err: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'demo'"}}

	_, err := createProject(context.Background(), exec, &types.Project{Name: "demo", Owner: "alice"})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.ProjectNameTaken, appErr.Code)
}

func TestCreateProjectOtherErrorIsInternal(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("connection reset")}

	_, err := createProject(context.Background(), exec, &types.Project{Name: "demo", Owner: "alice"})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindInternal, appErr.Kind)
}

func TestCreateProjectAssignsIDAndCreatedAt(t *testing.T) {
	exec := &fakeExecutor{result: fakeResult{id: 7}}

	p := &types.Project{
		Name:          "demo",
		Owner:         "alice",
		ContainerName: "hangar-demo",
		Source:        types.Source{Kind: types.SourceKindDirect, URL: "nginx:1.25"},
		EnvVars:       map[string]string{"APP_COLOR": "ciphertext"},
	}
	id, err := createProject(context.Background(), exec, p)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, int64(7), p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	// Env vars travel as a JSON object string.
	envArg, ok := exec.args[9].(string)
	require.True(t, ok, "env_vars should be bound as a JSON string, got %T", exec.args[9])
	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(envArg), &decoded))
	assert.Equal(t, "ciphertext", decoded["APP_COLOR"])
}

func TestCreateProjectPreservesCreatedAt(t *testing.T) {
	exec := &fakeExecutor{result: fakeResult{id: 1}}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	p := &types.Project{Name: "demo", Owner: "alice", CreatedAt: at}
	_, err := createProject(context.Background(), exec, p)
	require.NoError(t, err)
	assert.Equal(t, at, p.CreatedAt)
}

func TestCreateDatabaseDuplicateOwner(t *testing.T) {
	exec := &fakeExecutor{err: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'alice'"}}

	_, err := createDatabase(context.Background(), exec, &types.Database{OwnerLogin: "alice"})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.DatabaseAlreadyExists, appErr.Code)
}

func TestAddParticipantDeduplicates(t *testing.T) {
	exec := &fakeExecutor{result: fakeResult{}}

	require.NoError(t, addParticipant(context.Background(), exec, 1, "bob"))
	assert.Contains(t, exec.query, "INSERT IGNORE")
}

func TestUpdateProjectDeploymentBaseColumns(t *testing.T) {
	exec := &fakeExecutor{result: fakeResult{}}

	err := updateProjectDeployment(context.Background(), exec, 3, ProjectUpdate{
		ContainerName: "hangar-demo-1700000000",
		ImageTag:      "nginx:1.26",
		ImageDigest:   "sha256:def",
	})
	require.NoError(t, err)

	assert.Equal(t, "UPDATE projects SET container_name = ?, deployed_image_tag = ?, deployed_image_digest = ? WHERE id = ?", exec.query)
	assert.Equal(t, []any{"hangar-demo-1700000000", "nginx:1.26", "sha256:def", int64(3)}, exec.args)
}

func TestUpdateProjectDeploymentWithSourceURL(t *testing.T) {
	exec := &fakeExecutor{result: fakeResult{}}
	url := "nginx:1.26"

	err := updateProjectDeployment(context.Background(), exec, 3, ProjectUpdate{
		ContainerName: "hangar-demo-1700000000",
		ImageTag:      url,
		ImageDigest:   "sha256:def",
		SourceURL:     &url,
	})
	require.NoError(t, err)
	assert.Contains(t, exec.query, "source_url = ?")
	assert.NotContains(t, exec.query, "env_vars")
	assert.Equal(t, url, exec.args[3])
}

func TestUpdateProjectDeploymentWithEnvVars(t *testing.T) {
	exec := &fakeExecutor{result: fakeResult{}}

	err := updateProjectDeployment(context.Background(), exec, 3, ProjectUpdate{
		ContainerName: "hangar-demo-1700000000",
		ImageTag:      "nginx:1.25",
		ImageDigest:   "sha256:abc",
		EnvVars:       map[string]string{"APP_COLOR": "ct"},
	})
	require.NoError(t, err)
	assert.Contains(t, exec.query, "env_vars = ?")

	envArg, ok := exec.args[3].(string)
	require.True(t, ok)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(envArg), &decoded))
	assert.Equal(t, "ct", decoded["APP_COLOR"])
}

func TestUpdateProjectDeploymentClearsEnvVars(t *testing.T) {
	exec := &fakeExecutor{result: fakeResult{}}

	// A non-nil empty map means "replace with nothing": env_vars goes NULL.
	err := updateProjectDeployment(context.Background(), exec, 3, ProjectUpdate{
		ContainerName: "hangar-demo-1700000000",
		ImageTag:      "nginx:1.25",
		ImageDigest:   "sha256:abc",
		EnvVars:       map[string]string{},
	})
	require.NoError(t, err)
	assert.Contains(t, exec.query, "env_vars = ?")
	assert.Nil(t, exec.args[3])
}

func TestMarshalEnvVars(t *testing.T) {
	v, err := marshalEnvVars(nil)
	require.NoError(t, err)
	assert.Nil(t, v, "no env vars persists as SQL NULL")

	v, err = marshalEnvVars(map[string]string{})
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = marshalEnvVars(map[string]string{"A": "b"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"A":"b"}`, v.(string))
}

// fakeRow satisfies rowScanner with a fixed column tuple matching
// projectSelectColumns.
type fakeRow struct {
	vals []any
}

func (f *fakeRow) Scan(dest ...any) error {
	if len(dest) != len(f.vals) {
		return errors.New("column count mismatch")
	}
	for i, v := range f.vals {
		switch d := dest[i].(type) {
		case *int64:
			d2, ok := v.(int64)
			if !ok {
				return errors.New("type mismatch")
			}
			*d = d2
		case *string:
			*d = v.(string)
		case *types.SourceKind:
			*d = types.SourceKind(v.(string))
		case *sql.NullString:
			if v == nil {
				*d = sql.NullString{}
			} else {
				*d = sql.NullString{String: v.(string), Valid: true}
			}
		case *time.Time:
			*d = v.(time.Time)
		default:
			return errors.New("unsupported dest type")
		}
	}
	return nil
}

func TestScanProjectRows(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	row := &fakeRow{vals: []any{
		int64(3), "demo", "alice", "hangar-demo", "direct", "nginx:1.25", "",
		"", "nginx:1.25", "sha256:abc", `{"APP_COLOR":"ct"}`,
		"/data", "hangar-data-demo", now,
	}}

	p, err := scanProjectRows(row)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.ID)
	assert.Equal(t, "demo", p.Name)
	assert.Equal(t, types.SourceKindDirect, p.Source.Kind)
	assert.Equal(t, "ct", p.EnvVars["APP_COLOR"])
	assert.Equal(t, "hangar-data-demo", p.VolumeName)
	assert.Equal(t, now, p.CreatedAt)
}

func TestScanProjectRowsNoEnvVars(t *testing.T) {
	row := &fakeRow{vals: []any{
		int64(4), "plain", "bob", "hangar-plain", "github", "https://github.com/acme/webapp", "main",
		"public", "hangar-local/plain:1", "sha256:def", nil,
		"", "", time.Now(),
	}}

	p, err := scanProjectRows(row)
	require.NoError(t, err)
	assert.Nil(t, p.EnvVars)
	assert.Equal(t, "main", p.Source.Branch)
	assert.Equal(t, "public", p.Source.RootDir)
}
