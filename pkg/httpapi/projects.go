package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/hangar/pkg/apperr"
	"github.com/cuemby/hangar/pkg/deploy"
	"github.com/cuemby/hangar/pkg/types"
)

// deployRequestBody is the wire shape POST /api/projects decodes into a
// deploy.DeployRequest.
type deployRequestBody struct {
	ProjectName          string            `json:"project_name"`
	ImageURL             string            `json:"image_url"`
	GitHubRepoURL        string            `json:"github_repo_url"`
	Branch               string            `json:"branch"`
	RootDir              string            `json:"root_dir"`
	EnvVars              map[string]string `json:"env_vars"`
	PersistentVolumePath string            `json:"persistent_volume_path"`
	Participants         []string          `json:"participants"`
	CreateDatabase       bool              `json:"create_database"`
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	var body deployRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, apperr.BadRequest("Request body is not valid JSON."))
		return
	}

	src := types.Source{Branch: body.Branch, RootDir: body.RootDir}
	switch {
	case body.ImageURL != "" && body.GitHubRepoURL != "":
		writeError(w, r, apperr.BadRequest("Exactly one of image_url or github_repo_url must be supplied."))
		return
	case body.ImageURL != "":
		src.Kind = types.SourceKindDirect
		src.URL = body.ImageURL
	case body.GitHubRepoURL != "":
		src.Kind = types.SourceKindGitHub
		src.URL = body.GitHubRepoURL
	default:
		writeError(w, r, apperr.BadRequest("Exactly one of image_url or github_repo_url must be supplied."))
		return
	}

	req := &deploy.DeployRequest{
		ProjectName:          body.ProjectName,
		Owner:                claims.UserID,
		Source:               src,
		EnvVars:              body.EnvVars,
		PersistentVolumePath: body.PersistentVolumePath,
		Participants:         body.Participants,
		CreateDatabase:       body.CreateDatabase,
	}

	project, err := s.orch.Deploy(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, s.toProjectDTO(project, s.decryptEnvVars(project), s.projectStatus(r, project), s.projectParticipants(r, project)))
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	projects, err := s.store.ListProjectsForUser(r.Context(), claims.UserID, claims.IsAdmin)
	if err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}

	dtos := make([]projectDTO, 0, len(projects))
	for _, p := range projects {
		dtos = append(dtos, s.toProjectDTO(p, s.decryptEnvVars(p), s.projectStatus(r, p), s.projectParticipants(r, p)))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// projectStatus is a best-effort container status lookup; a runtime
// error here shouldn't fail the whole listing, so it degrades to
// "unknown" rather than propagating.
func (s *Server) projectStatus(r *http.Request, p *types.Project) string {
	state, ok, err := s.runtime.GetStatus(r.Context(), p.ContainerName)
	if err != nil || !ok {
		return string(types.ContainerStateUnknown)
	}
	return string(state)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.loadProject(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toProjectDTO(project, s.decryptEnvVars(project), s.projectStatus(r, project), s.projectParticipants(r, project)))
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	project, err := s.loadOwnedProject(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var database *types.Database
	if db, derr := s.store.GetDatabaseByOwner(r.Context(), project.Owner); derr == nil && db.ProjectID != nil && *db.ProjectID == project.ID {
		database = db
	}

	if err := s.orch.Purge(r.Context(), project, database); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type participantRequestBody struct {
	ParticipantID string `json:"participant_id"`
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	project, err := s.loadOwnedProject(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body participantRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, apperr.BadRequest("Request body is not valid JSON."))
		return
	}
	if body.ParticipantID == "" {
		writeError(w, r, apperr.BadRequest("participant_id is required."))
		return
	}
	if body.ParticipantID == project.Owner {
		writeError(w, r, apperr.Project(apperr.OwnerCannotBeParticipant, "The owner cannot also be a participant."))
		return
	}

	if err := s.store.AddParticipant(r.Context(), project.ID, body.ParticipantID); err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	project, err := s.loadOwnedProject(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	participantID := chi.URLParam(r, "participantID")
	if err := s.store.RemoveParticipant(r.Context(), project.ID, participantID); err != nil {
		writeError(w, r, apperr.Internal(err))
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleProvisionDatabase(w http.ResponseWriter, r *http.Request) {
	project, err := s.loadOwnedProject(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	hasDB, herr := s.store.OwnerHasDatabase(r.Context(), project.Owner)
	if herr != nil {
		writeError(w, r, apperr.Internal(herr))
		return
	}
	if hasDB {
		writeError(w, r, apperr.Database(apperr.DatabaseAlreadyExists, "You already have a database."))
		return
	}

	db, err := s.orch.ProvisionDatabase(r.Context(), project, project.Owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDatabaseDTO(db))
}

func (s *Server) handleDeprovisionDatabase(w http.ResponseWriter, r *http.Request) {
	project, err := s.loadOwnedProject(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	db, derr := s.store.GetDatabaseByOwner(r.Context(), project.Owner)
	if derr != nil {
		writeError(w, r, apperr.Database(apperr.DatabaseNotFound, "No database is linked to this project."))
		return
	}

	if err := s.orch.DeprovisionDatabase(r.Context(), db); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// loadProject resolves the {projectID} route param into a project the
// caller is authorized to view (owner, participant, or admin).
func (s *Server) loadProject(r *http.Request) (*types.Project, error) {
	claims := claimsFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "projectID"), 10, 64)
	if err != nil {
		return nil, apperr.BadRequest("Invalid project id.")
	}
	project, err := s.store.GetProjectByID(r.Context(), id, claims.UserID, claims.IsAdmin)
	if err != nil {
		return nil, apperr.NotFound("Project not found.")
	}
	return project, nil
}

// loadOwnedProject is loadProject plus an ownership check: mutating
// operations are the owner's exclusive right.
func (s *Server) loadOwnedProject(r *http.Request) (*types.Project, error) {
	claims := claimsFromContext(r.Context())
	project, err := s.loadProject(r)
	if err != nil {
		return nil, err
	}
	if project.Owner != claims.UserID {
		return nil, apperr.Unauthorized("Only the project owner may perform this action.")
	}
	return project, nil
}
