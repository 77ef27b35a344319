package api

import (
	"encoding/json"
	"net/http"
)

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}

	body := map[string]any{
		"models": s.deps.Models,
		"stats":  s.deps.Stats.Snapshot(),
	}
	if s.deps.Orchestrator != nil {
		body["queue_depth"] = s.deps.Orchestrator.QueueDepth()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
