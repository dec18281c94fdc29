// Package validate implements the pure-function input rules the orchestrator
// and store consult before taking any side effect: project names, image
// URLs, environment variable keys, volume paths, source root directories,
// and tenant-database identifiers.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cuemby/hangar/pkg/apperr"
)

var projectNamePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

const maxProjectNameLen = 63

const invalidProjectNameMsg = "The project name is invalid. It must be 1-63 characters, contain only a-z, 0-9, or '-', and not start/end with a hyphen."

// ProjectName normalises name to lowercase and rejects it unless it is
// non-empty, at most 63 characters, matches [a-z0-9-]+, and does not start
// or end with a hyphen.
func ProjectName(name string) (string, error) {
	lower := strings.ToLower(name)

	if lower == "" {
		return "", apperr.Project(apperr.InvalidProjectName, invalidProjectNameMsg)
	}
	if len(lower) > maxProjectNameLen {
		return "", apperr.Project(apperr.InvalidProjectName, invalidProjectNameMsg)
	}
	if !projectNamePattern.MatchString(lower) {
		return "", apperr.Project(apperr.InvalidProjectName, invalidProjectNameMsg)
	}
	if strings.HasPrefix(lower, "-") || strings.HasSuffix(lower, "-") {
		return "", apperr.Project(apperr.InvalidProjectName, invalidProjectNameMsg)
	}

	return lower, nil
}

const forbiddenImageURLChars = " $`'\"\\"

// ImageURL rejects empty URLs and anything containing a shell metacharacter,
// so the URL is safe to hand to the external vulnerability scanner.
func ImageURL(url string) error {
	const msg = "The provided Docker image URL is invalid or contains forbidden characters."
	if url == "" {
		return apperr.Project(apperr.InvalidImageURL, msg)
	}
	if strings.ContainsAny(url, forbiddenImageURLChars) {
		return apperr.Project(apperr.InvalidImageURL, msg)
	}
	return nil
}

var forbiddenEnvVars = map[string]bool{
	"PATH":           true,
	"LD_PRELOAD":     true,
	"DOCKER_HOST":    true,
	"HOST":           true,
	"HOSTNAME":       true,
	"TRAEFIK_ENABLE": true,
}

// EnvVars rejects env var maps that set a forbidden key (case-insensitively,
// exact match or TRAEFIK_ prefix). Returns the first offending key found.
func EnvVars(vars map[string]string) error {
	for k := range vars {
		upper := strings.ToUpper(k)
		if forbiddenEnvVars[upper] || strings.HasPrefix(upper, "TRAEFIK_") {
			return apperr.ProjectWithDetails(apperr.ForbiddenEnvVar,
				fmt.Sprintf("Usage of the environment variable '%s' is forbidden.", k),
				fmt.Sprintf(`{"variable":%q}`, k))
		}
	}
	return nil
}

var volumePathDenylist = map[string]bool{
	"/": true, "/etc": true, "/bin": true, "/sbin": true,
	"/usr": true, "/boot": true, "/dev": true, "/lib": true,
	"/proc": true, "/sys": true,
}

// VolumePath rejects empty paths, paths that don't begin with "/", paths
// containing a ".." component, and a fixed set of system-critical mount
// points.
func VolumePath(path string) error {
	const msg = "The specified persistent volume path is invalid."
	if path == "" {
		return apperr.Project(apperr.InvalidVolumePath, msg)
	}
	if !strings.HasPrefix(path, "/") {
		return apperr.Project(apperr.InvalidVolumePath, msg)
	}
	if hasDotDotComponent(path) {
		return apperr.Project(apperr.InvalidVolumePath, msg)
	}
	if volumePathDenylist[path] {
		return apperr.Project(apperr.InvalidVolumePath, msg)
	}
	return nil
}

// SourceRootDir allows the empty string (project root). Otherwise the path
// must be relative (no leading "/" or "\"), contain no ".." component, and
// not mention .git, .env, or .ssh anywhere in the literal string.
func SourceRootDir(dir string) error {
	const msg = "The specified source root directory is invalid."
	if dir == "" {
		return nil
	}
	if strings.HasPrefix(dir, "/") || strings.HasPrefix(dir, "\\") {
		return apperr.Project(apperr.InvalidSourceRootDir, msg)
	}
	if hasDotDotComponent(dir) {
		return apperr.Project(apperr.InvalidSourceRootDir, msg)
	}
	for _, forbidden := range []string{".git", ".env", ".ssh"} {
		if strings.Contains(dir, forbidden) {
			return apperr.Project(apperr.InvalidSourceRootDir, msg)
		}
	}
	return nil
}

func hasDotDotComponent(path string) bool {
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}

const maxIdentifierLen = 64

// sqlReservedWords is the denylist consulted by TenantDBIdentifier. It is not
// exhaustive of the SQL standard — only the words that would be dangerous or
// confusing as a database/user identifier on the tenant MariaDB server.
var sqlReservedWords = map[string]bool{
	"select": true, "insert": true, "update": true, "delete": true,
	"drop": true, "create": true, "alter": true, "grant": true,
	"revoke": true, "table": true, "database": true, "user": true,
	"from": true, "where": true, "union": true, "into": true,
	"values": true, "set": true, "index": true, "view": true,
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// TenantDBIdentifier validates a string destined for unescaped interpolation
// into a MariaDB DDL statement as a database or user name: non-empty, at
// most 64 characters, not starting with a digit, composed solely of
// [A-Za-z0-9_], and not a SQL reserved word (case-insensitively).
func TenantDBIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier must not be empty")
	}
	if len(id) > maxIdentifierLen {
		return fmt.Errorf("identifier exceeds %d characters", maxIdentifierLen)
	}
	if id[0] >= '0' && id[0] <= '9' {
		return fmt.Errorf("identifier must not start with a digit")
	}
	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("identifier contains characters other than [A-Za-z0-9_]")
	}
	if sqlReservedWords[strings.ToLower(id)] {
		return fmt.Errorf("identifier %q is a reserved word", id)
	}
	return nil
}
