package httpapi

import (
	"net/http"
	"time"

	"github.com/cuemby/hangar/pkg/types"
)

// projectDTO is the wire shape for a project. EnvVars is populated with
// decrypted plaintext only when the caller is authorized to see it
// (owner, participant, or admin) — which is every caller reaching these
// handlers, since storage.GetProjectByID/ListProjectsForUser already
// enforce that before a *types.Project is ever returned.
type projectDTO struct {
	ID                   int64             `json:"id"`
	Name                 string            `json:"name"`
	Owner                string            `json:"owner"`
	ContainerName        string            `json:"container_name"`
	SourceKind           types.SourceKind  `json:"source_kind"`
	SourceURL            string            `json:"source_url"`
	SourceBranch         string            `json:"source_branch,omitempty"`
	SourceRootDir        string            `json:"source_root_dir,omitempty"`
	DeployedImageTag     string            `json:"deployed_image_tag"`
	DeployedImageDigest  string            `json:"deployed_image_digest"`
	EnvVars              map[string]string `json:"env_vars,omitempty"`
	PersistentVolumePath string            `json:"persistent_volume_path,omitempty"`
	Participants         []string          `json:"participants,omitempty"`
	Status               string            `json:"status,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
}

func (s *Server) toProjectDTO(project *types.Project, envVars map[string]string, status string, participants []string) projectDTO {
	return projectDTO{
		ID:                   project.ID,
		Name:                 project.Name,
		Owner:                project.Owner,
		ContainerName:        project.ContainerName,
		SourceKind:           project.Source.Kind,
		SourceURL:            project.Source.URL,
		SourceBranch:         project.Source.Branch,
		SourceRootDir:        project.Source.RootDir,
		DeployedImageTag:     project.DeployedImageTag,
		DeployedImageDigest:  project.DeployedImageDigest,
		EnvVars:              envVars,
		PersistentVolumePath: project.PersistentVolumePath,
		Participants:         participants,
		Status:               status,
		CreatedAt:            project.CreatedAt,
	}
}

// projectParticipants is best-effort like projectStatus: a project
// response shouldn't fail because the participant lookup did.
func (s *Server) projectParticipants(r *http.Request, p *types.Project) []string {
	participants, err := s.store.ListParticipants(r.Context(), p.ID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("project_id", p.ID).Msg("failed to list project participants for response")
		return nil
	}
	return participants
}

// decryptEnvVars returns the decrypted form of project.EnvVars, logging
// and falling back to nil rather than failing the whole request if
// decryption breaks — a project listing should survive one bad secret.
func (s *Server) decryptEnvVars(project *types.Project) map[string]string {
	if len(project.EnvVars) == 0 {
		return nil
	}
	plain, err := s.secrets.DecryptEnvVars(project.EnvVars)
	if err != nil {
		s.logger.Warn().Err(err).Int64("project_id", project.ID).Msg("failed to decrypt project env vars for response")
		return nil
	}
	return plain
}

type databaseDTO struct {
	ID           int64  `json:"id"`
	OwnerLogin   string `json:"owner_login"`
	DatabaseName string `json:"database_name"`
	Username     string `json:"username"`
	ProjectID    *int64 `json:"project_id,omitempty"`
}

func toDatabaseDTO(db *types.Database) databaseDTO {
	return databaseDTO{
		ID:           db.ID,
		OwnerLogin:   db.OwnerLogin,
		DatabaseName: db.DatabaseName,
		Username:     db.Username,
		ProjectID:    db.ProjectID,
	}
}
