package apperr

import (
	"errors"
	"net/http"
	"testing"
)

func TestStatus_SimpleKinds(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{BadRequest("bad"), http.StatusBadRequest},
		{Unauthorized("nope"), http.StatusUnauthorized},
		{NotFound("gone"), http.StatusNotFound},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := tt.err.Status(); got != tt.want {
			t.Errorf("%v.Status() = %d, want %d", tt.err.Kind, got, tt.want)
		}
	}
}

func TestStatus_ProjectErrorDefaultsTo400(t *testing.T) {
	err := Project(ProjectNameTaken, "taken")
	if got := err.Status(); got != http.StatusBadRequest {
		t.Errorf("Status() = %d, want 400", got)
	}
}

func TestStatus_ProjectErrorInfrastructureCodesAre500(t *testing.T) {
	for _, code := range []string{ImagePullFailed, ContainerCreationFailed} {
		err := Project(code, "infra trouble")
		if got := err.Status(); got != http.StatusInternalServerError {
			t.Errorf("Project(%s).Status() = %d, want 500", code, got)
		}
	}
}

func TestStatus_DatabaseErrorCodes(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{DatabaseAlreadyExists, http.StatusBadRequest},
		{DatabaseNotFound, http.StatusBadRequest},
		{ProvisioningFailed, http.StatusInternalServerError},
		{DeprovisioningFailed, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		err := Database(tt.code, "msg")
		if got := err.Status(); got != tt.want {
			t.Errorf("Database(%s).Status() = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Internal(cause)

	if !errors.Is(err, cause) {
		t.Error("Internal() error should unwrap to its cause")
	}
}

func TestAs(t *testing.T) {
	wrapped := error(Project(InvalidProjectName, "bad name"))

	appErr, ok := As(wrapped)
	if !ok {
		t.Fatal("As() should find the *Error")
	}
	if appErr.Code != InvalidProjectName {
		t.Errorf("Code = %q, want %q", appErr.Code, InvalidProjectName)
	}
}

func TestAs_NotAnAppError(t *testing.T) {
	_, ok := As(errors.New("plain error"))
	if ok {
		t.Error("As() should return false for a non-apperr error")
	}
}
