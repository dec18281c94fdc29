package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/hangar/pkg/apperr"
	"github.com/cuemby/hangar/pkg/deploy"
)

type updateImageRequestBody struct {
	ImageURL string `json:"image_url"`
}

func (s *Server) handleUpdateImage(w http.ResponseWriter, r *http.Request) {
	project, err := s.loadOwnedProject(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body updateImageRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, apperr.BadRequest("Request body is not valid JSON."))
		return
	}

	result, err := s.orch.Update(r.Context(), &deploy.UpdateRequest{
		Project:     project,
		Kind:        deploy.UpdateKindImage,
		NewImageURL: body.ImageURL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeUpdateResult(w, r, result)
}

type updateEnvRequestBody struct {
	EnvVars map[string]string `json:"env_vars"`
}

func (s *Server) handleUpdateEnv(w http.ResponseWriter, r *http.Request) {
	project, err := s.loadOwnedProject(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body updateEnvRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, apperr.BadRequest("Request body is not valid JSON."))
		return
	}

	result, err := s.orch.Update(r.Context(), &deploy.UpdateRequest{
		Project:    project,
		Kind:       deploy.UpdateKindEnv,
		NewEnvVars: body.EnvVars,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeUpdateResult(w, r, result)
}

type rebuildRequestBody struct {
	Branch string `json:"branch"`
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	project, err := s.loadOwnedProject(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var body rebuildRequestBody
	_ = json.NewDecoder(r.Body).Decode(&body)

	result, err := s.orch.Update(r.Context(), &deploy.UpdateRequest{
		Project:   project,
		Kind:      deploy.UpdateKindRebuild,
		NewBranch: body.Branch,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeUpdateResult(w, r, result)
}

func (s *Server) writeUpdateResult(w http.ResponseWriter, r *http.Request, result *deploy.UpdateResult) {
	writeJSON(w, http.StatusOK, struct {
		Status  string     `json:"status"`
		Project projectDTO `json:"project"`
	}{
		Status:  result.Status,
		Project: s.toProjectDTO(result.Project, s.decryptEnvVars(result.Project), s.projectStatus(r, result.Project), s.projectParticipants(r, result.Project)),
	})
}
