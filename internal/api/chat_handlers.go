package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/massy-ia/citydesk/internal/store"
)

type chatRequest struct {
	Message string `json:"message" validate:"max=2000"`
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request, caller *store.User) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	reply, err := h.deps.Chat.Chat(r.Context(), caller, req.Message)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "response generated", reply)
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request, caller *store.User) {
	conversations, err := h.deps.Chat.Conversations(r.Context(), caller)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "conversations retrieved", map[string]any{"conversations": conversations})
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request, caller *store.User) {
	conversation, err := h.deps.Chat.Conversation(r.Context(), caller, chi.URLParam(r, "conversationID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "conversation retrieved", map[string]any{"conversation": conversation})
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request, caller *store.User) {
	if err := h.deps.Chat.DeleteConversation(r.Context(), caller, chi.URLParam(r, "conversationID")); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "conversation deleted", nil)
}
