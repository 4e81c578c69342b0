package handlers

import (
	"net/http"
	"strconv"

	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/go-chi/chi/v5"
)

// Vote handles POST /api/users/{id}/vote
func (h *Handler) Vote(w http.ResponseWriter, r *http.Request) {
	res := h.Votes.Vote(r.Context(), currentUser(r).ID, chi.URLParam(r, "id"))
	if res.Error != nil {
		writeError(w, r, res.Error)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "Vote recorded"})
}

// VoteStatus handles GET /api/users/{id}/vote
func (h *Handler) VoteStatus(w http.ResponseWriter, r *http.Request) {
	voted, err := h.Votes.HasVoted(r.Context(), currentUser(r).ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, map[string]bool{"voted": voted})
}

// Leaderboard handles GET /api/leaderboard?period=&limit=
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(w, r, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := h.Votes.Leaderboard(r.Context(), models.LeaderboardPeriod(q.Get("period")), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, entries)
}
