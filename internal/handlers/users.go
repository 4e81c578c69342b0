package handlers

import (
	"net/http"
	"strings"

	"github.com/AnshRaj112/physiq-backend/internal/models"
	"github.com/AnshRaj112/physiq-backend/internal/services"
	"github.com/go-chi/chi/v5"
)

// maxUploadBytes is the multipart limit for profile images (10MB).
const maxUploadBytes = 10 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ListUsers handles GET /api/users?category=
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.Browse(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, users)
}

// GetUser handles GET /api/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, user)
}

// UpdateMe handles PUT /api/users/me
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var patch models.ProfilePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	user, err := h.Users.UpdateProfile(r.Context(), currentUser(r).ID, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, user)
}

// UploadProfileImage handles POST /api/users/me/image (multipart field "file").
func (h *Handler) UploadProfileImage(w http.ResponseWriter, r *http.Request) {
	if h.Uploader == nil {
		writeJSON(w, http.StatusServiceUnavailable, response{Message: "Image uploads are not configured"})
		return
	}
	me := currentUser(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		badRequest(w, r, "Failed to parse form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, r, "No file provided")
		return
	}
	defer file.Close()

	contentType := strings.ToLower(header.Header.Get("Content-Type"))
	if !allowedImageTypes[contentType] {
		badRequest(w, r, "Only JPEG, PNG, WebP and GIF images are allowed")
		return
	}

	url, err := h.Uploader.UploadImage(r.Context(), file, services.ProfileImageFolder, me.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	user, err := h.Users.SetProfileImage(r.Context(), me.ID, url)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, user)
}
