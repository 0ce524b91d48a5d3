package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/flowline/flowline/internal/flow"
)

// executeRequest is the POST /api/executions body. Durations are plain
// numbers (seconds for TTL and timeout, milliseconds for the retry delay) so
// clients never deal with Go duration encoding.
type executeRequest struct {
	Workflow flow.WorkflowDefinition `json:"workflow"`
	Options  executeOptions          `json:"options"`
}

type executeOptions struct {
	Mode                string   `json:"execution_mode"`
	SelectedNodes       []string `json:"selected_nodes"`
	ResumeFrom          string   `json:"resume_from_node"`
	PreviousExecutionID string   `json:"previous_execution_id"`

	UseCache        *bool    `json:"use_cache"`
	CacheTTLSeconds int      `json:"cache_ttl_seconds"`
	CacheableTypes  []string `json:"cacheable_types"`

	Parallel          *bool `json:"parallel"`
	Workers           int   `json:"workers"`
	MaxRetries        int   `json:"max_retries"`
	RetryBaseDelayMS  int   `json:"retry_base_delay_ms"`
	TimeoutSeconds    int   `json:"timeout_seconds"`
}

// toEngineOptions maps the wire options onto engine options, starting from
// the engine's configured baseline. Absent fields keep the baseline values.
func (o executeOptions) toEngineOptions(base flow.ExecutionOptions) flow.ExecutionOptions {
	opts := base
	if o.Mode != "" {
		opts.Mode = flow.ExecutionMode(o.Mode)
	}
	opts.SelectedNodes = o.SelectedNodes
	opts.ResumeFrom = o.ResumeFrom
	opts.PreviousExecutionID = o.PreviousExecutionID
	if o.UseCache != nil {
		opts.UseCache = *o.UseCache
	}
	if o.CacheTTLSeconds > 0 {
		opts.CacheTTL = time.Duration(o.CacheTTLSeconds) * time.Second
	}
	if o.CacheableTypes != nil {
		opts.CacheableTypes = o.CacheableTypes
	}
	if o.Parallel != nil {
		opts.Parallel = *o.Parallel
	}
	if o.Workers > 0 {
		opts.Workers = o.Workers
	}
	if o.MaxRetries > 0 {
		opts.MaxRetries = o.MaxRetries
	}
	if o.RetryBaseDelayMS > 0 {
		opts.RetryBaseDelay = time.Duration(o.RetryBaseDelayMS) * time.Millisecond
	}
	if o.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(o.TimeoutSeconds) * time.Second
	}
	return opts
}

// startExecution validates and launches a run in the background.
// POST /api/executions
func (s *Server) startExecution(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Workflow.Nodes) == 0 {
		http.Error(w, "workflow has no nodes", http.StatusBadRequest)
		return
	}

	// The run outlives the request; its lifetime is bounded by the execution
	// timeout, not the client connection.
	execID, err := s.engine.Start(context.Background(), &req.Workflow, req.Options.toEngineOptions(s.engine.Defaults()))
	if err != nil {
		writePreflightError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"execution_id": execID,
		"status":       flow.ExecutionStatusPending,
	})
}

// listExecutions returns stored terminal results, newest first.
// GET /api/executions
func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	results := s.store.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"executions": results,
		"total":      len(results),
	})
}

// getExecution returns live state for an in-flight run, or the stored
// terminal result once the run has finished.
// GET /api/executions/{id}
func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if state, ok := s.engine.Tracker().GetState(id); ok {
		writeJSON(w, http.StatusOK, state)
		return
	}
	if res, ok := s.store.Get(id); ok {
		writeJSON(w, http.StatusOK, res)
		return
	}
	http.Error(w, "execution not found", http.StatusNotFound)
}

// stopExecution requests cooperative cancellation of an in-flight run.
// POST /api/executions/{id}/stop
func (s *Server) stopExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.engine.Stop(id); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"execution_id": id,
		"status":       flow.ExecutionStatusStopped,
	})
}

// validateWorkflow runs connection checking without executing anything.
// POST /api/workflows/validate
func (s *Server) validateWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf flow.WorkflowDefinition
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	issues := s.engine.Validate(wf.Nodes, wf.Edges)
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  len(issues) == 0,
		"issues": issues,
	})
}

// writePreflightError maps pre-flight failures to status codes: structural
// graph problems and bad resume points are client errors, validation issues
// come back with per-connection detail.
func writePreflightError(w http.ResponseWriter, err error) {
	var verr *flow.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  verr.Error(),
			"issues": verr.Issues,
		})
		return
	}
	var gerr *flow.GraphError
	var cerr *flow.CyclicGraphError
	var rerr *flow.ResumeError
	if errors.As(err, &gerr) || errors.As(err, &cerr) || errors.As(err, &rerr) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
