package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nutrilog/sessiond/logical"
)

func (h *handler) handleIdentity(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "principalID")

	cred := credentialFrom(r.Context())
	if cred == nil || cred.PrincipalID != principalID {
		respondServiceError(w, logical.ErrForbidden("forbidden"))
		return
	}

	entry, err := h.cache.GetOrWarm(r.Context(), principalID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	permissions := make([]string, 0, len(entry.Permissions))
	for name := range entry.Permissions {
		permissions = append(permissions, name)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"principal_id": entry.PrincipalID,
		"tier":         entry.Tier,
		"permissions":  permissions,
		"profile":      entry.Profile,
		"cached_at":    entry.CachedAt,
	})
}

func (h *handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]map[string]int64{
		"token":    h.issuer.GetMetrics(),
		"identity": h.cache.GetMetrics(),
	})
}
