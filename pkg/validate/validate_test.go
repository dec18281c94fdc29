package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hangar/pkg/apperr"
)

func TestProjectName(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"lowercases", "My-App", "my-app", false},
		{"valid", "web-01", "web-01", false},
		{"empty", "", "", true},
		{"leading hyphen", "-app", "", true},
		{"trailing hyphen", "app-", "", true},
		{"bad char", "app_1", "", true},
		{"too long", stringOfLen(64, 'a'), "", true},
		{"max len ok", stringOfLen(63, 'a'), stringOfLen(63, 'a'), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ProjectName(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				var appErr *apperr.Error
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, apperr.InvalidProjectName, appErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func stringOfLen(n int, r byte) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = r
	}
	return string(b)
}

func TestImageURL(t *testing.T) {
	assert.NoError(t, ImageURL("ghcr.io/acme/app:latest"))
	assert.Error(t, ImageURL(""))
	assert.Error(t, ImageURL("acme/app; rm -rf /"))
	assert.Error(t, ImageURL("acme/app $(whoami)"))
	assert.Error(t, ImageURL(`acme/app"`))
}

func TestEnvVars(t *testing.T) {
	assert.NoError(t, EnvVars(map[string]string{"FOO": "bar"}))
	assert.Error(t, EnvVars(map[string]string{"path": "/x"}))
	assert.Error(t, EnvVars(map[string]string{"HOST": "evil"}))
	assert.Error(t, EnvVars(map[string]string{"TRAEFIK_ROUTER_RULE": "x"}))
}

func TestVolumePath(t *testing.T) {
	assert.NoError(t, VolumePath("/data"))
	assert.Error(t, VolumePath(""))
	assert.Error(t, VolumePath("data"))
	assert.Error(t, VolumePath("/data/../etc"))
	assert.Error(t, VolumePath("/etc"))
	assert.Error(t, VolumePath("/"))
}

func TestSourceRootDir(t *testing.T) {
	assert.NoError(t, SourceRootDir(""))
	assert.NoError(t, SourceRootDir("frontend/dist"))
	assert.Error(t, SourceRootDir("/abs"))
	assert.Error(t, SourceRootDir("../outside"))
	assert.Error(t, SourceRootDir("a/.git/hooks"))
	assert.Error(t, SourceRootDir(".env"))
}

func TestTenantDBIdentifier(t *testing.T) {
	assert.NoError(t, TenantDBIdentifier("hangardb_alice"))
	assert.Error(t, TenantDBIdentifier(""))
	assert.Error(t, TenantDBIdentifier("1abc"))
	assert.Error(t, TenantDBIdentifier("bad-name"))
	assert.Error(t, TenantDBIdentifier("select"))
	assert.Error(t, TenantDBIdentifier(stringOfLen(65, 'a')))
}
