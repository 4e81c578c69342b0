package handlers

import (
	"net/http"

	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/services"
	"github.com/go-chi/chi/v5"
)

// AddPointsRequest is the body of POST /api/onboarding/points.
type AddPointsRequest struct {
	Points int `json:"points"`
}

// GetOnboarding handles GET /api/onboarding
func (h *Handler) GetOnboarding(w http.ResponseWriter, r *http.Request) {
	st, err := h.Onboarding.State(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, st)
}

// NextOnboardingStep handles POST /api/onboarding/next
func (h *Handler) NextOnboardingStep(w http.ResponseWriter, r *http.Request) {
	h.onboardingResult(w, r)(h.Onboarding.NextStep(r.Context(), currentUser(r).ID))
}

// GoToOnboardingStep handles PUT /api/onboarding/step/{step}. Unknown steps
// answer 400 with the recovered state.
func (h *Handler) GoToOnboardingStep(w http.ResponseWriter, r *http.Request) {
	step := models.OnboardingStep(chi.URLParam(r, "step"))
	h.onboardingResult(w, r)(h.Onboarding.GoToStep(r.Context(), currentUser(r).ID, step))
}

// AddOnboardingPoints handles POST /api/onboarding/points
func (h *Handler) AddOnboardingPoints(w http.ResponseWriter, r *http.Request) {
	var req AddPointsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	h.onboardingResult(w, r)(h.Onboarding.AddPoints(r.Context(), currentUser(r).ID, req.Points))
}

// AddOnboardingBadge handles POST /api/onboarding/badges/{id}
func (h *Handler) AddOnboardingBadge(w http.ResponseWriter, r *http.Request) {
	id := models.BadgeID(chi.URLParam(r, "id"))
	h.onboardingResult(w, r)(h.Onboarding.AddBadge(r.Context(), currentUser(r).ID, id))
}

// UpdateOnboardingData handles PATCH /api/onboarding/data
func (h *Handler) UpdateOnboardingData(w http.ResponseWriter, r *http.Request) {
	var patch models.OnboardingDataPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	h.onboardingResult(w, r)(h.Onboarding.UpdateUserData(r.Context(), currentUser(r).ID, patch))
}

// Celebrate handles POST /api/onboarding/celebrate
func (h *Handler) Celebrate(w http.ResponseWriter, r *http.Request) {
	h.onboardingResult(w, r)(h.Onboarding.TriggerCelebration(r.Context(), currentUser(r).ID))
}

// RecordActivity handles POST /api/onboarding/activity
func (h *Handler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	h.onboardingResult(w, r)(h.Onboarding.RecordActivity(r.Context(), currentUser(r).ID))
}

type onboardingErrorResponse struct {
	Success bool                   `json:"success"`
	Error   *services.Error        `json:"error"`
	State   models.OnboardingState `json:"state"`
}

func (h *Handler) onboardingResult(w http.ResponseWriter, r *http.Request) func(models.OnboardingState, error) {
	return func(st models.OnboardingState, err error) {
		if err == nil {
			ok(w, st)
			return
		}
		if st.UserID == "" {
			writeError(w, r, err)
			return
		}
		status, e := domainError(r, err)
		writeJSON(w, status, onboardingErrorResponse{Error: e, State: st})
	}
}
