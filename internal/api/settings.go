package api

import (
	"encoding/json"
	"net/http"
)

// credentialRequest is the body for PUT /settings/credential.
// An empty api_key is valid and returns the bridge to the
// unconfigured state.
type credentialRequest struct {
	APIKey string `json:"api_key"`
}

// credentialStatus is the response for GET /settings/credential.
// The credential itself is never returned.
type credentialStatus struct {
	Configured bool   `json:"configured"`
	Hint       string `json:"hint,omitempty"`
}

// handleGetCredential reports whether a credential is configured,
// with a short suffix hint for recognition.
func (s *Server) handleGetCredential(w http.ResponseWriter, _ *http.Request) {
	credential := s.service.Credential()

	status := credentialStatus{Configured: credential != ""}
	if n := len(credential); n > 4 {
		status.Hint = "..." + credential[n-4:]
	}

	writeJSON(w, http.StatusOK, status)
}

// handlePutCredential installs a new vendor credential and triggers a
// discovery run. The response reflects the registry after that run.
func (s *Server) handlePutCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.service.UpdateCredential(r.Context(), req.APIKey); err != nil {
		s.logger.Error("credential update failed", "error", err)
		writeInternalError(w, "persisting credential")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"configured": req.APIKey != "",
		"devices":    s.registry.Count(),
	})
}

// handleSync triggers a discovery run with the current credential.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.service.Sync(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": s.registry.Count(),
	})
}
