package handlers

import (
	"net/http"

	"github.com/AnshRaj112/physiq-backend/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// ListRewards handles GET /api/rewards?category=
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.Rewards.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, rewards)
}

// ClaimReward handles POST /api/rewards/{id}/claim. It is reachable
// anonymously so the claim itself reports NotAuthenticated.
func (h *Handler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	var userID string
	if u := middleware.CurrentUser(r.Context()); u != nil {
		userID = u.ID
	}

	res := h.Rewards.Claim(r.Context(), userID, chi.URLParam(r, "id"))
	if res.Error != nil {
		writeError(w, r, res.Error)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
