package handlers

import (
	"net/http"

	"github.com/AnshRaj112/physiq-backend/internal/middleware"
	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/services"
)

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	User    *models.User `json:"user,omitempty"`
	Token   string       `json:"token,omitempty"`
}

// Signup handles POST /api/auth/signup
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req services.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.Users.Signup(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.startSession(w, r, user, http.StatusCreated, "Account created successfully")
}

// Login handles POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.Users.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.startSession(w, r, user, http.StatusOK, "Signed in successfully")
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *models.User, status int, msg string) {
	token, err := h.Sessions.Start(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.SetCookie(w, h.sessionCookie(token, int(services.SessionDuration.Seconds())))
	writeJSON(w, status, AuthResponse{Success: true, Message: msg, User: user, Token: token})
}

// Logout handles POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r, services.SessionCookieName); token != "" {
		if err := h.Sessions.End(r.Context(), token); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if u := middleware.CurrentUser(r.Context()); u != nil {
		h.Onboarding.Evict(u.ID)
	}
	http.SetCookie(w, h.sessionCookie("", -1))
	writeJSON(w, http.StatusOK, response{Success: true, Message: "Signed out"})
}

// Me handles GET /api/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	ok(w, currentUser(r))
}

func (h *Handler) sessionCookie(value string, maxAge int) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if h.SecureCookies {
		// The frontend lives on another origin in production.
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     services.SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: sameSite,
	}
}
