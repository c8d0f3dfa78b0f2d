package server

import (
	"net/http"

	"github.com/teranos/dataloader/catalog"
)

// HandleResources handles requests to /api/resources
// GET: list resources
// POST: create or replace a resource
func (s *Server) HandleResources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		resources, err := s.catalog.ListResources(r.Context())
		if err != nil {
			writeWrappedError(w, s.logger, err, "failed to list resources")
			return
		}
		if resources == nil {
			resources = []*catalog.Resource{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"resources": resources, "count": len(resources)})

	case http.MethodPost:
		var res catalog.Resource
		if err := readJSON(w, r, &res); err != nil {
			return
		}
		if err := s.catalog.PutResource(r.Context(), &res); err != nil {
			writeWrappedError(w, s.logger, err, "failed to save resource")
			return
		}
		writeJSON(w, http.StatusCreated, res)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleResource handles requests to /api/resources/{id}
func (s *Server) HandleResource(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	id := r.PathValue("id")

	if r.Method == http.MethodDelete {
		if err := s.catalog.DeleteResource(r.Context(), id); err != nil {
			writeWrappedError(w, s.logger, err, "failed to delete resource")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	res, err := s.catalog.GetResource(r.Context(), id)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to get resource")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleMappings handles requests to /api/mappings
// GET: list mappings
// POST: create or replace a mapping
func (s *Server) HandleMappings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		mappings, err := s.catalog.ListMappings(r.Context())
		if err != nil {
			writeWrappedError(w, s.logger, err, "failed to list mappings")
			return
		}
		if mappings == nil {
			mappings = []*catalog.Mapping{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"mappings": mappings, "count": len(mappings)})

	case http.MethodPost:
		var m catalog.Mapping
		if err := readJSON(w, r, &m); err != nil {
			return
		}
		if err := s.catalog.PutMapping(r.Context(), &m); err != nil {
			writeWrappedError(w, s.logger, err, "failed to save mapping")
			return
		}
		writeJSON(w, http.StatusCreated, m)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleMapping handles requests to /api/mappings/{id}
func (s *Server) HandleMapping(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	id := r.PathValue("id")

	if r.Method == http.MethodDelete {
		if err := s.catalog.DeleteMapping(r.Context(), id); err != nil {
			writeWrappedError(w, s.logger, err, "failed to delete mapping")
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	m, err := s.catalog.GetMapping(r.Context(), id)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to get mapping")
		return
	}
	writeJSON(w, http.StatusOK, m)
}
