package httpapi

import (
	"testing"

	"github.com/cuemby/hangar/pkg/security"
	"github.com/cuemby/hangar/pkg/types"
)

func TestToProjectDTO_CopiesFields(t *testing.T) {
	s := &Server{}
	project := &types.Project{
		ID:                  1,
		Name:                "demo",
		Owner:               "alice",
		ContainerName:       "hangar-demo",
		Source:              types.Source{Kind: types.SourceKindDirect, URL: "nginx:1.25"},
		DeployedImageTag:    "nginx:1.25",
		DeployedImageDigest: "sha256:abc",
	}

	dto := s.toProjectDTO(project, nil, "running", []string{"bob", "carol"})

	if dto.ID != 1 || dto.Name != "demo" || dto.Owner != "alice" {
		t.Errorf("dto = %+v, missing basic fields", dto)
	}
	if dto.SourceURL != "nginx:1.25" || dto.SourceKind != types.SourceKindDirect {
		t.Errorf("dto source fields = %+v", dto)
	}
	if dto.Status != "running" {
		t.Errorf("Status = %q, want running", dto.Status)
	}
	if len(dto.Participants) != 2 || dto.Participants[0] != "bob" {
		t.Errorf("Participants = %v, want [bob carol]", dto.Participants)
	}
}

func TestDecryptEnvVars_RoundTrips(t *testing.T) {
	sm, err := security.NewSecretsManagerFromPassword("test-password")
	if err != nil {
		t.Fatalf("NewSecretsManagerFromPassword() error = %v", err)
	}

	encrypted, err := sm.EncryptEnvVars(map[string]string{"APP_COLOR": "blue"})
	if err != nil {
		t.Fatalf("EncryptEnvVars() error = %v", err)
	}

	s := &Server{secrets: sm}
	project := &types.Project{ID: 1, EnvVars: encrypted}

	plain := s.decryptEnvVars(project)
	if plain["APP_COLOR"] != "blue" {
		t.Errorf("decryptEnvVars() = %v, want APP_COLOR=blue", plain)
	}
}

func TestDecryptEnvVars_EmptyIsNil(t *testing.T) {
	s := &Server{}
	if got := s.decryptEnvVars(&types.Project{}); got != nil {
		t.Errorf("decryptEnvVars() = %v, want nil for a project with no env vars", got)
	}
}
