package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// SendMessageRequest is the body of POST /api/messages.
type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

// SendMessage handles POST /api/messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ReceiverID == "" {
		badRequest(w, r, "receiver_id is required")
		return
	}

	msg, err := h.Messages.Send(r.Context(), currentUser(r).ID, req.ReceiverID, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created(w, msg)
}

// Conversations handles GET /api/messages/conversations
func (h *Handler) Conversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.Messages.ConversationsFor(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, convs)
}

// Conversation handles GET /api/messages/{userId}. Opening a conversation
// marks the other member's messages read unless ?mark_read=false.
func (h *Handler) Conversation(w http.ResponseWriter, r *http.Request) {
	me := currentUser(r).ID
	other := chi.URLParam(r, "userId")

	if r.URL.Query().Get("mark_read") != "false" {
		if _, err := h.Messages.MarkConversationRead(r.Context(), me, other); err != nil {
			writeError(w, r, err)
			return
		}
	}
	msgs, err := h.Messages.ConversationBetween(r.Context(), me, other)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, msgs)
}

// MarkRead handles PUT /api/messages/{id}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, r, "invalid message id")
		return
	}
	if err := h.Messages.MarkReadBy(r.Context(), currentUser(r).ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "Message marked as read"})
}

// Block handles POST /api/blocks/{userId}
func (h *Handler) Block(w http.ResponseWriter, r *http.Request) {
	if err := h.Messages.Block(r.Context(), currentUser(r).ID, chi.URLParam(r, "userId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "User blocked"})
}

// Unblock handles DELETE /api/blocks/{userId}
func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	if err := h.Messages.Unblock(r.Context(), currentUser(r).ID, chi.URLParam(r, "userId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Message: "User unblocked"})
}

// ListBlocked handles GET /api/blocks
func (h *Handler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.Messages.ListBlocked(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, blocks)
}
