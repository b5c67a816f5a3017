package handlers

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"clip2mp3/internal/logging"
	"clip2mp3/internal/middleware"
)

// authorizeAdmin checks the bearer token against the configured bcrypt
// hash. No configured hash means the admin surface is disabled.
func (h *Handlers) authorizeAdmin(w http.ResponseWriter, r *http.Request) bool {
	if h.adminTokenHash == "" {
		writeJSONError(w, "admin operations are not configured", http.StatusServiceUnavailable)
		return false
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		writeJSONError(w, "missing bearer token", http.StatusUnauthorized)
		return false
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.adminTokenHash), []byte(token)); err != nil {
		logging.Warn("rejected admin request from %s", middleware.ClientIP(r))
		writeJSONError(w, "invalid token", http.StatusUnauthorized)
		return false
	}
	return true
}

// ClearCache drops every cached conversion.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeAdmin(w, r) {
		return
	}

	count, freed, err := h.store.Clear(r.Context())
	if err != nil {
		logging.Error("cache clear failed: %v", err)
		writeJSONError(w, "cache clear failed", http.StatusInternalServerError)
		return
	}

	logging.Info("cache cleared by %s: %d entries, %d bytes", middleware.ClientIP(r), count, freed)
	writeJSON(w, map[string]interface{}{
		"status":     "cleared",
		"entries":    count,
		"bytesFreed": freed,
	})
}
