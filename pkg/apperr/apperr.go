// Package apperr defines the error taxonomy surfaced to hangar's HTTP
// clients: a small set of kinds, each with an HTTP status and an
// optional machine-readable code for PROJECT_ERROR/DATABASE_ERROR
// variants.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the top-level error category.
type Kind string

const (
	KindBadRequest  Kind = "BAD_REQUEST"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindNotFound    Kind = "NOT_FOUND"
	KindProject     Kind = "PROJECT_ERROR"
	KindDatabase    Kind = "DATABASE_ERROR"
	KindInternal    Kind = "INTERNAL_SERVER_ERROR"
)

// Project error codes.
const (
	ProjectNameTaken                       = "PROJECT_NAME_TAKEN"
	OwnerAlreadyExists                     = "OWNER_ALREADY_EXISTS"
	OwnerCannotBeParticipant               = "OWNER_CANNOT_BE_PARTICIPANT"
	InvalidProjectName                     = "INVALID_PROJECT_NAME"
	InvalidImageURL                        = "INVALID_IMAGE_URL"
	ImagePullFailed                        = "IMAGE_PULL_FAILED"
	ImageScanFailed                        = "IMAGE_SCAN_FAILED"
	ContainerCreationFailed                = "CONTAINER_CREATION_FAILED"
	DeleteFailed                           = "DELETE_FAILED"
	InvalidGitHubURL                       = "INVALID_GITHUB_URL"
	GitHubAccountNotLinked                 = "GITHUB_ACCOUNT_NOT_LINKED"
	GitHubRepoNotAccessible                = "GITHUB_REPO_NOT_ACCESSIBLE"
	GitHubPackageNotPublic                 = "GITHUB_PACKAGE_NOT_PUBLIC"
	ForbiddenEnvVar                        = "FORBIDDEN_ENV_VAR"
	InvalidVolumePath                      = "INVALID_VOLUME_PATH"
	ProjectCreationFailedWithDatabaseError = "PROJECT_CREATION_FAILED_WITH_DATABASE_ERROR"
	InvalidSourceRootDir                   = "INVALID_SOURCE_ROOT_DIR"
)

// Database error codes.
const (
	DatabaseAlreadyExists = "DATABASE_ALREADY_EXISTS"
	ProvisioningFailed    = "PROVISIONING_FAILED"
	DeprovisioningFailed  = "DEPROVISIONING_FAILED"
	DatabaseNotFound      = "NOT_FOUND"
)

// projectCode500 lists the PROJECT_ERROR codes that indicate
// infrastructure trouble rather than user error, and so map to 500
// instead of the kind's default 400.
var projectCode500 = map[string]bool{
	ImagePullFailed:         true,
	ContainerCreationFailed: true,
}

// databaseCode500 lists DATABASE_ERROR codes that map to 500.
var databaseCode500 = map[string]bool{
	ProvisioningFailed:   true,
	DeprovisioningFailed: true,
}

// Error is the error type returned by every hangar component to its
// caller. The underlying cause (Cause) is logged but never serialized
// back to the client for internal errors.
type Error struct {
	Kind    Kind
	Code    string // set for KindProject / KindDatabase
	Message string
	Details string // e.g. the vulnerability scan report for IMAGE_SCAN_FAILED
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Status returns the HTTP status code this error maps to.
func (e *Error) Status() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindProject:
		if projectCode500[e.Code] {
			return http.StatusInternalServerError
		}
		return http.StatusBadRequest
	case KindDatabase:
		if databaseCode500[e.Code] {
			return http.StatusInternalServerError
		}
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// BadRequest builds a BAD_REQUEST error.
func BadRequest(msg string) *Error {
	return &Error{Kind: KindBadRequest, Message: msg}
}

// Unauthorized builds an UNAUTHORIZED error.
func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

// NotFound builds a NOT_FOUND error.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Project builds a PROJECT_ERROR with the given code.
func Project(code, msg string) *Error {
	return &Error{Kind: KindProject, Code: code, Message: msg}
}

// ProjectWithDetails builds a PROJECT_ERROR carrying extra detail, used
// by IMAGE_SCAN_FAILED to attach the scanner's report.
func ProjectWithDetails(code, msg, details string) *Error {
	return &Error{Kind: KindProject, Code: code, Message: msg, Details: details}
}

// Database builds a DATABASE_ERROR with the given code.
func Database(code, msg string) *Error {
	return &Error{Kind: KindDatabase, Code: code, Message: msg}
}

// Internal wraps an unexpected error. The cause is logged by the caller;
// Message is a generic string safe to return to clients.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", Cause: cause}
}

// As extracts an *Error from err via errors.As, for callers that need to
// inspect Kind/Code (e.g. the HTTP layer building a response body).
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
