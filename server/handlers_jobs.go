package server

import (
	"net/http"
	"strconv"

	"github.com/teranos/dataloader/activity"
	"github.com/teranos/dataloader/bundle"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/jobconfig"
	"github.com/teranos/dataloader/lifecycle"
	"github.com/teranos/dataloader/logger"
)

// ListJobsResponse lists lineage references
type ListJobsResponse struct {
	Lineages []*jobconfig.Reference `json:"lineages"`
	Count    int                    `json:"count"`
}

// LineageResponse lists every record of one lineage, oldest first
type LineageResponse struct {
	ParentID string              `json:"parentId"`
	Records  []*jobconfig.Record `json:"records"`
	Count    int                 `json:"count"`
}

// BundleResponse is a previewed bundle and its digest
type BundleResponse struct {
	Bundle *bundle.Bundle `json:"bundle"`
	Digest string         `json:"digest"`
}

// ActivityResponse lists recent activity for one record
type ActivityResponse struct {
	Events []activity.Event `json:"events"`
	Count  int              `json:"count"`
}

// DeploymentErrorResponse reports a persisted deployment the scheduler did not accept
type DeploymentErrorResponse struct {
	Error      string                `json:"error"`
	Deployment *lifecycle.Deployment `json:"deployment"`
}

// SetActiveRequest toggles is_active
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// HandleJobs handles GET /api/jobs
func (s *Server) HandleJobs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	refs, err := s.manager.ListReferences(r.Context(), r.URL.Query().Get("itemId"))
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to list job configurations")
		return
	}
	if refs == nil {
		refs = []*jobconfig.Reference{}
	}
	writeJSON(w, http.StatusOK, ListJobsResponse{Lineages: refs, Count: len(refs)})
}

// HandleDrafts handles POST /api/jobs/drafts
func (s *Server) HandleDrafts(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var def lifecycle.Definition
	if err := readJSON(w, r, &def); err != nil {
		return
	}

	rec, err := s.manager.SaveDraft(r.Context(), def)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to save draft")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HandlePublish handles POST /api/jobs/publish
func (s *Server) HandlePublish(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var def lifecycle.Definition
	if err := readJSON(w, r, &def); err != nil {
		return
	}

	rec, err := s.manager.Publish(r.Context(), def)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to publish job configuration")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HandleJob handles requests to /api/jobs/{id}
// GET: the record
// PATCH: partial update
func (s *Server) HandleJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		rec, err := s.manager.Get(r.Context(), id)
		if err != nil {
			writeWrappedError(w, s.logger, err, "failed to get job configuration")
			return
		}
		writeJSON(w, http.StatusOK, rec)

	case http.MethodPatch:
		var patch jobconfig.Patch
		if err := readJSON(w, r, &patch); err != nil {
			return
		}
		rec, err := s.manager.UpdateJobConfig(r.Context(), id, patch)
		if err != nil {
			writeWrappedError(w, s.logger, err, "failed to update job configuration")
			return
		}
		writeJSON(w, http.StatusOK, rec)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleJobAction handles requests to /api/jobs/{id}/{action}
func (s *Server) HandleJobAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	action := r.PathValue("action")

	logger.FromContext(r.Context(), s.logger).Infow("Job action",
		"action", action,
		logger.FieldRecordID, shortID(id))

	switch action {
	case "deploy":
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		dep, err := s.manager.DeployAndSubmit(r.Context(), id, "")
		s.writeDeployment(w, dep, err, "failed to deploy job configuration")

	case "resubmit":
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		dep, err := s.manager.Resubmit(r.Context(), id, "")
		s.writeDeployment(w, dep, err, "failed to resubmit job configuration")

	case "active":
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		var req SetActiveRequest
		if err := readJSON(w, r, &req); err != nil {
			return
		}
		rec, err := s.manager.SetActive(r.Context(), id, req.Active, "")
		if err != nil {
			writeWrappedError(w, s.logger, err, "failed to change active flag")
			return
		}
		writeJSON(w, http.StatusOK, rec)

	case "bundle":
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		b, err := s.manager.Preview(r.Context(), id)
		if err != nil {
			writeWrappedError(w, s.logger, err, "failed to assemble bundle")
			return
		}
		digest, err := b.Digest()
		if err != nil {
			writeWrappedError(w, s.logger, err, "failed to digest bundle")
			return
		}
		writeJSON(w, http.StatusOK, BundleResponse{Bundle: b, Digest: digest})

	case "activity":
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
				return
			}
			limit = n
		}
		events, err := s.activity.List(r.Context(), id, limit)
		if err != nil {
			writeWrappedError(w, s.logger, errors.WrapStore(err, "list activity"), "failed to list activity")
			return
		}
		if events == nil {
			events = []activity.Event{}
		}
		writeJSON(w, http.StatusOK, ActivityResponse{Events: events, Count: len(events)})

	default:
		writeError(w, http.StatusNotFound, "Unknown job action: "+action)
	}
}

// HandleLineage handles requests to /api/lineages/{parentId}
// GET: every record of the lineage
// DELETE: remove the lineage and its reference
func (s *Server) HandleLineage(w http.ResponseWriter, r *http.Request) {
	parentID := r.PathValue("parentId")

	switch r.Method {
	case http.MethodGet:
		records, err := s.manager.Lineage(r.Context(), parentID)
		if err != nil {
			writeWrappedError(w, s.logger, err, "failed to get lineage")
			return
		}
		writeJSON(w, http.StatusOK, LineageResponse{ParentID: parentID, Records: records, Count: len(records)})

	case http.MethodDelete:
		removed, err := s.manager.DeleteLineage(r.Context(), parentID)
		if err != nil {
			writeWrappedError(w, s.logger, err, "failed to delete lineage")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"parentId": parentID,
			"deleted":  removed,
		})

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleLineageDeploy handles POST /api/lineages/{parentId}/deploy
func (s *Server) HandleLineageDeploy(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	dep, err := s.manager.DeployLineage(r.Context(), r.PathValue("parentId"), "")
	s.writeDeployment(w, dep, err, "failed to deploy lineage")
}

// writeDeployment answers a deploy or resubmit. A submission failure after
// the DEPLOYED record was persisted still returns the deployment.
func (s *Server) writeDeployment(w http.ResponseWriter, dep *lifecycle.Deployment, err error, context string) {
	if err == nil {
		writeJSON(w, http.StatusOK, dep)
		return
	}
	if errors.IsSubmissionError(err) && dep != nil {
		s.logger.Warnw(context, "error", err, logger.FieldRecordID, dep.Record.ID)
		writeJSON(w, http.StatusBadGateway, DeploymentErrorResponse{Error: err.Error(), Deployment: dep})
		return
	}
	writeWrappedError(w, s.logger, err, context)
}
