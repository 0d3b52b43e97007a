package api

import (
	"net/http"

	"github.com/dgallion1/huntgest/internal/catalog"
)

// handleListPlaybooks returns the playbook catalog hypotheses are mapped to.
func (s *Server) handleListPlaybooks(w http.ResponseWriter, r *http.Request) {
	playbooks := s.orchestrator.Playbooks()
	if playbooks == nil {
		playbooks = []catalog.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"playbooks": playbooks})
}
