package api

import (
	"net/http"
)

// listCapabilities returns the metadata of every registered capability.
// GET /api/capabilities
func (s *Server) listCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"capabilities": s.engine.Capabilities().List(),
	})
}

// listTypes returns the registered type definitions and compatibility rules.
// GET /api/types
func (s *Server) listTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"types": s.engine.Types().Types(),
		"rules": s.engine.Types().Rules(),
	})
}

// getCacheStats returns invocation-cache counters.
// GET /api/cache/stats
func (s *Server) getCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Cache().Stats())
}

// cleanupCache evicts expired cache entries and reports how many went.
// POST /api/cache/cleanup
func (s *Server) cleanupCache(w http.ResponseWriter, r *http.Request) {
	removed := s.engine.Cache().CleanupExpired()
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
