package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/hangar/pkg/apperr"
)

func TestParseGitHubURL(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		owner   string
		repo    string
		wantErr bool
	}{
		{"plain https", "https://github.com/acme/webapp", "acme", "webapp", false},
		{"http", "http://github.com/acme/webapp", "acme", "webapp", false},
		{"www prefix", "https://www.github.com/acme/webapp", "acme", "webapp", false},
		{"dot git suffix", "https://github.com/acme/webapp.git", "acme", "webapp", false},
		{"trailing slash", "https://github.com/acme/webapp/", "acme", "webapp", false},
		{"dotted repo", "https://github.com/acme/web.app", "acme", "web.app", false},
		{"hyphenated owner", "https://github.com/acme-labs/web-app", "acme-labs", "web-app", false},
		{"not github", "https://gitlab.com/acme/webapp", "", "", true},
		{"missing repo", "https://github.com/acme", "", "", true},
		{"extra path", "https://github.com/acme/webapp/tree/main", "", "", true},
		{"bare host", "https://github.com/", "", "", true},
		{"empty", "", "", "", true},
		{"ssh scheme", "git@github.com:acme/webapp.git", "", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			owner, repo, err := ParseGitHubURL(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				var appErr *apperr.Error
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, apperr.InvalidGitHubURL, appErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.owner, owner)
			assert.Equal(t, tc.repo, repo)
		})
	}
}
