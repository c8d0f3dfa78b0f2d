package server

import (
	"net/http"

	"github.com/teranos/dataloader/scheduler"
)

// UpdateDeploymentRequest moves a queued deployment to another state
type UpdateDeploymentRequest struct {
	State string `json:"state"`
}

// localQueue returns the local gateway, or answers 404 when submissions go elsewhere
func (s *Server) localQueue(w http.ResponseWriter) (*scheduler.LocalGateway, bool) {
	local, ok := s.gateway.(*scheduler.LocalGateway)
	if !ok {
		writeError(w, http.StatusNotFound, "Deployments are only tracked by the local scheduler")
		return nil, false
	}
	return local, true
}

// HandleDeployments handles GET /api/deployments (?state=active|paused|inactive)
func (s *Server) HandleDeployments(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	local, ok := s.localQueue(w)
	if !ok {
		return
	}

	deployments, err := local.List(r.Context(), r.URL.Query().Get("state"))
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to list deployments")
		return
	}
	if deployments == nil {
		deployments = []*scheduler.Deployment{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deployments": deployments, "count": len(deployments)})
}

// HandleDeployment handles requests to /api/deployments/{id}
// GET: the queued deployment
// PATCH: pause, resume or stop it
func (s *Server) HandleDeployment(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodPatch) {
		return
	}
	local, ok := s.localQueue(w)
	if !ok {
		return
	}
	id := r.PathValue("id")

	if r.Method == http.MethodPatch {
		var req UpdateDeploymentRequest
		if err := readJSON(w, r, &req); err != nil {
			return
		}
		if err := local.UpdateState(r.Context(), id, req.State); err != nil {
			writeWrappedError(w, s.logger, err, "failed to update deployment")
			return
		}
		s.logger.Infow("Deployment state changed", "deployment_id", shortID(id), "state", req.State)
	}

	d, err := local.Get(r.Context(), id)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to get deployment")
		return
	}
	writeJSON(w, http.StatusOK, d)
}
