package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/cnquant/stockpulse/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)

	// Market data plane
	mux.HandleFunc("/api/stocks", s.handleStocks)
	mux.HandleFunc("/api/etfs", s.handleETFs)
	mux.HandleFunc("/api/kline/", s.handleKline)
	mux.HandleFunc("/api/realtime/", s.handleRealtimeOne)
	mux.HandleFunc("/api/signals", s.handleSignals)
	mux.HandleFunc("/api/strategies", s.handleStrategies)
	mux.HandleFunc("/api/news", s.handleNews)
	mux.HandleFunc("/api/chart/", s.routeChart)

	// Admin / operations
	mux.HandleFunc("/api/admin/scheduler", s.handleSchedulerStatus)
	mux.HandleFunc("/api/admin/jobs/", s.handleJobTrigger)
	mux.HandleFunc("/api/admin/exec-logs", s.handleExecLogs)
	mux.HandleFunc("/api/admin/providers", s.handleProviderStats)
	mux.HandleFunc("/api/admin/registry/refresh", s.handleRegistryRefresh)
	mux.HandleFunc("/api/admin/reset", s.handleReset)

	// WebSocket
	mux.HandleFunc("/ws", s.app.Hub.ServeWS)
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	status := "ok"
	if err := s.app.Storage.Ping(r.Context()); err != nil {
		status = "degraded"
	}
	writeData(w, map[string]any{
		"status":  status,
		"uptime":  time.Since(s.app.StartupTime).Round(time.Second).String(),
		"clients": s.app.Hub.ClientCount(),
	})
}

// handleVersion handles GET /api/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeData(w, map[string]string{
		"version": common.GetVersion(),
		"go":      runtime.Version(),
	})
}
