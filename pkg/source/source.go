package source

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v66/github"

	"github.com/cuemby/hangar/pkg/apperr"
	"github.com/cuemby/hangar/pkg/log"
)

// githubURLPattern accepts http(s)://[www.]github.com/<owner>/<repo>[.git][/].
var githubURLPattern = regexp.MustCompile(`^https?://(www\.)?github\.com/([\w.-]+)/([\w.-]+?)(\.git)?/?$`)

// ParseGitHubURL extracts the owner and repo from a GitHub repository URL.
func ParseGitHubURL(repoURL string) (owner, repo string, err error) {
	m := githubURLPattern.FindStringSubmatch(repoURL)
	if m == nil {
		return "", "", apperr.Project(apperr.InvalidGitHubURL, "The provided GitHub repository URL is invalid.")
	}
	return m[2], m[3], nil
}

// Config carries the GitHub App credentials used for stage-2 authentication.
type Config struct {
	AppID         int64
	PrivateKeyPEM []byte
}

// Fetcher clones GitHub repositories on the orchestrator's behalf.
type Fetcher struct {
	cfg Config
}

// New builds a Fetcher from the platform's configured GitHub App.
func New(cfg Config) *Fetcher {
	return &Fetcher{cfg: cfg}
}

// Clone performs a depth-1 clone of repoURL into destDir, pinned to
// branch if non-empty. It first attempts an unauthenticated clone; on
// failure it exchanges the configured GitHub App's credentials for an
// installation access token scoped to the repository and retries once.
func (f *Fetcher) Clone(ctx context.Context, repoURL, destDir, branch string) error {
	owner, repo, err := ParseGitHubURL(repoURL)
	if err != nil {
		return err
	}

	if err := gitClone(ctx, repoURL, destDir, branch); err == nil {
		return nil
	}

	token, err := f.installationToken(ctx, owner, repo)
	if err != nil {
		return err
	}

	authedURL := fmt.Sprintf("https://x-access-token:%s@github.com/%s/%s.git", token, owner, repo)
	if err := gitClone(ctx, authedURL, destDir, branch); err != nil {
		return apperr.Project(apperr.GitHubAccountNotLinked, "Unable to clone the repository with the linked GitHub account.")
	}
	return nil
}

// installationToken looks up the installation covering owner/repo, then
// exchanges the app's signed JWT for a short-lived installation access
// token scoped to that installation.
func (f *Fetcher) installationToken(ctx context.Context, owner, repo string) (string, error) {
	appsTransport, err := ghinstallation.NewAppsTransport(http.DefaultTransport, f.cfg.AppID, f.cfg.PrivateKeyPEM)
	if err != nil {
		log.Logger.Error().Err(err).Msg("failed to build GitHub App transport")
		return "", apperr.Project(apperr.GitHubAccountNotLinked, "The platform's GitHub App is not configured correctly.")
	}
	appClient := github.NewClient(&http.Client{Transport: appsTransport})

	installation, resp, err := appClient.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", apperr.Project(apperr.GitHubRepoNotAccessible, "The repository is not accessible to the platform's GitHub App.")
		}
		log.Logger.Error().Err(err).Str("owner", owner).Str("repo", repo).Msg("failed to resolve GitHub App installation")
		return "", apperr.Project(apperr.GitHubAccountNotLinked, "Unable to resolve a GitHub App installation for this account.")
	}

	installTransport, err := ghinstallation.New(http.DefaultTransport, f.cfg.AppID, installation.GetID(), f.cfg.PrivateKeyPEM)
	if err != nil {
		log.Logger.Error().Err(err).Msg("failed to build installation transport")
		return "", apperr.Project(apperr.GitHubAccountNotLinked, "Unable to authenticate with the linked GitHub account.")
	}

	token, err := installTransport.Token(ctx)
	if err != nil {
		log.Logger.Error().Err(err).Msg("failed to exchange installation access token")
		return "", apperr.Project(apperr.GitHubAccountNotLinked, "Unable to authenticate with the linked GitHub account.")
	}

	return token, nil
}

// gitClone shells out to the system git for a shallow, optionally
// branch-pinned clone.
func gitClone(ctx context.Context, repoURL, destDir, branch string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, repoURL, destDir)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	out, err := cmd.CombinedOutput()
	if err != nil {
		log.Logger.Debug().Err(err).Str("output", string(out)).Msg("git clone attempt failed")
		return fmt.Errorf("git clone failed: %w", err)
	}
	return nil
}
