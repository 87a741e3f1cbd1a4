package api

import (
	"net/http"

	"github.com/mattjoyce/hostbridge/internal/events"
)

const accessNeededMessage = "Please grant 'All files access' in the host settings (platform.all_files_access) and restart"

// handleAccessCheck handles GET /storage/access.
func (s *Server) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	if s.deps.Deleter == nil {
		s.writeError(w, http.StatusServiceUnavailable, "deletion coordinator not available")
		return
	}
	respondJSON(w, http.StatusOK, AccessResponse{AccessStatus: s.deps.Deleter.Access()})
}

// handleAccessRequest handles POST /storage/access. A missing grant is
// raised with connected surfaces; the host settings are the only place it
// can be given.
func (s *Server) handleAccessRequest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Deleter == nil {
		s.writeError(w, http.StatusServiceUnavailable, "deletion coordinator not available")
		return
	}
	status := s.deps.Deleter.Access()
	if status.Granted {
		respondJSON(w, http.StatusOK, AccessResponse{AccessStatus: status})
		return
	}

	s.deps.Events.Publish(events.TypeAccessRequested, AccessRequestedPayload{
		APILevel: status.APILevel,
		Message:  accessNeededMessage,
	})
	s.logger.Info("all files access requested", "api_level", status.APILevel)
	respondJSON(w, http.StatusAccepted, AccessResponse{AccessStatus: status, Message: accessNeededMessage})
}
