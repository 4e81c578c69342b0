// Package handlers exposes the domain services over JSON HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/AnshRaj112/physiq-backend/internal/middleware"
	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/onboarding"
	"github.com/AnshRaj112/physiq-backend/internal/services"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler is the set of HTTP endpoints. Every field except Uploader is required.
type Handler struct {
	Users      *services.UserService
	Votes      *services.VoteService
	Messages   *services.MessageService
	Rewards    *services.RewardService
	Onboarding *onboarding.Service
	Sessions   *services.SessionManager
	// Uploader is nil when image uploads are not configured.
	Uploader services.ImageUploader
	// SecureCookies marks the session cookie Secure; set in production.
	SecureCookies bool
}

type response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type errorResponse struct {
	Success bool            `json:"success"`
	Error   *services.Error `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("⚠️  Failed to write response: %v", err)
	}
}

func ok(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, response{Success: true, Data: data})
}

func created(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusCreated, response{Success: true, Data: data})
}

// writeError renders err. Domain errors keep their kind; anything else is
// logged and reported as a 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, e := domainError(r, err)
	writeJSON(w, status, errorResponse{Error: e})
}

func domainError(r *http.Request, err error) (int, *services.Error) {
	var e *services.Error
	if !errors.As(err, &e) {
		log.Printf("❌ %s %s: %v", r.Method, r.URL.Path, err)
		e = &services.Error{Kind: services.KindInternal, Message: "something went wrong"}
	} else if e.Kind == services.KindInternal || e.Kind == services.KindVoteFailed {
		log.Printf("❌ %s %s: %v", r.Method, r.URL.Path, err)
	}
	return statusFor(e.Kind), e
}

func statusFor(kind services.Kind) int {
	switch kind {
	case services.KindEmptyContent, services.KindInvalidStep, services.KindInvalidCategory,
		services.KindInvalidInput, services.KindSelfVote, services.KindSelfBlock,
		services.KindInsufficientPoints:
		return http.StatusBadRequest
	case services.KindNotAuthenticated, services.KindInvalidCredentials:
		return http.StatusUnauthorized
	case services.KindBlocked:
		return http.StatusForbidden
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindAlreadyVoted, services.KindUsernameTaken, services.KindOutOfStock:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, &services.Error{Kind: services.KindInvalidInput, Message: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, r, "Invalid request body")
		return false
	}
	return true
}

// currentUser returns the signed-in member. Routes that call it sit behind
// middleware.RequireUser, so a nil user is a wiring bug.
func currentUser(r *http.Request) *models.User {
	u := middleware.CurrentUser(r.Context())
	if u == nil {
		panic("handlers: route requires middleware.RequireUser")
	}
	return u
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
