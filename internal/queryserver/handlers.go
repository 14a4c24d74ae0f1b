package queryserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNotFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": what + " not found"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"healthy": true})
		return
	}
	healthy, detail := s.health.Check()
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, detail)
}

func (s *Server) handleAgentBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	balance, ok := s.orch.GetAgentBalance(id)
	if !ok {
		writeNotFound(w, "agent")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agent_id": id, "balance": int64(balance)})
}

func (s *Server) handleQueue1Size(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	size, ok := s.orch.GetQueue1Size(id)
	if !ok {
		writeNotFound(w, "agent")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agent_id": id, "queue1_size": size})
}

func (s *Server) handleQueue2Size(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"queue2_size": s.orch.GetQueue2Size()})
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txID")
	tx, ok := s.orch.GetTransaction(txID)
	if !ok {
		writeNotFound(w, "transaction")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleAgentCosts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	costs, ok := s.orch.GetAgentAccumulatedCosts(id)
	if !ok {
		writeNotFound(w, "agent")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agent_id": id, "accumulated_costs": int64(costs)})
}

func (s *Server) handleTickEvents(w http.ResponseWriter, r *http.Request) {
	tickStr := chi.URLParam(r, "tick")
	tick, err := strconv.ParseInt(tickStr, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tick must be an integer"})
		return
	}
	writeJSON(w, http.StatusOK, s.orch.GetTickEvents(tick))
}
