package httpapi

import (
	"net/http"

	"github.com/MrEthical07/authcore/middleware"
	"github.com/gorilla/mux"
)

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	sessions, err := h.svc.ListSessions(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Retrieved all session successfully",
		"sessions": sessions,
	})
}

func (h *Handler) currentSession(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	user, err := h.svc.CurrentUser(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Session retrieved successfully",
		"user":    user,
	})
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())
	if err := h.svc.DeleteSession(r.Context(), p, mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Session deleted successfully"})
}
