package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowline/flowline/internal/output"
)

// exportExecution renders a stored result in the requested format.
// GET /api/executions/{id}/export?format=json|csv|md|html|xlsx
func (s *Server) exportExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format := r.URL.Query().Get("format")

	res, ok := s.store.Get(id)
	if !ok {
		http.Error(w, "execution not found", http.StatusNotFound)
		return
	}

	f, err := output.New(format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", f.ContentType())
	if format != "" && format != "json" {
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", "execution-"+id+"."+format))
	}
	// Headers are already out by the time Format fails; the stream just ends
	// short.
	_ = f.Format(res, w)
}
