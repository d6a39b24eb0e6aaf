package server

import (
	"net/http"
	"strconv"
)

// handleSchedulerStatus handles GET /api/admin/scheduler.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeAdmin(w, "scheduler status", s.app.Scheduler.Status())
}

// handleJobTrigger handles POST /api/admin/jobs/{name}/trigger.
func (s *Server) handleJobTrigger(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	name := pathParam(r, "/api/admin/jobs/", "/trigger")
	entry, err := s.app.Scheduler.Trigger(r.Context(), name)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeAdmin(w, "job "+name+" executed", entry)
}

// handleExecLogs handles GET /api/admin/exec-logs[?job=&limit=].
func (s *Server) handleExecLogs(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.app.Storage.ExecLogs().List(r.Context(), r.URL.Query().Get("job"), limit)
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeAdmin(w, "execution logs", entries)
}

// handleProviderStats handles GET /api/admin/providers.
func (s *Server) handleProviderStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeAdmin(w, "provider stats", s.app.Realtime.Stats())
}

// handleRegistryRefresh handles POST /api/admin/registry/refresh.
func (s *Server) handleRegistryRefresh(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	stocks, etfs, err := s.app.Registry.Refresh(r.Context())
	if err != nil {
		writeAdminError(w, err)
		return
	}
	writeAdmin(w, "symbol registry refreshed", map[string]int{
		"stocks": stocks,
		"etfs":   etfs,
	})
}

// handleReset handles POST /api/admin/reset: flushes every application
// namespace. The Redis DB itself is never flushed.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	deleted, err := s.app.Storage.FlushNamespaces(r.Context())
	if err != nil {
		writeAdminError(w, err)
		return
	}
	s.logger.Warn().Int("deleted", deleted).Msg("Admin reset: namespaces flushed")
	writeAdmin(w, "namespaces flushed", map[string]int{"deleted": deleted})
}
