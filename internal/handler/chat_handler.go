package handler

import (
	"net/http"

	"chat-auth-service/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ChatHandler handles chat record endpoints. Every route needs a verified
// account with a completed profile.
type ChatHandler struct {
	auth   *service.AuthService
	chats  *service.ChatService
	logger *zap.Logger
}

func NewChatHandler(auth *service.AuthService, chats *service.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		auth:   auth,
		chats:  chats,
		logger: logger,
	}
}

// RegisterRoutes registers the chat routes on a router mounted at /chats
func (h *ChatHandler) RegisterRoutes(router chi.Router) {
	router.Use(AuthMiddleware(h.auth, h.logger))
	router.Use(RequireCompleteProfile(h.auth, h.logger))

	router.Post("/", h.CreateChat)
	router.Get("/{chatID}", h.GetChat)
	router.Patch("/{chatID}/last-message", h.UpdateLastMessage)
	router.Delete("/{chatID}", h.DeleteChat)
}

func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	var req service.CreateChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	chat, err := h.chats.CreateChat(r.Context(), account.ID, req)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusCreated, successResponse(map[string]interface{}{"chat": chat}, "Chat created successfully"))
}

func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	chat, err := h.chats.GetChat(r.Context(), account.ID, chi.URLParam(r, "chatID"))
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(map[string]interface{}{"chat": chat}, ""))
}

func (h *ChatHandler) UpdateLastMessage(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	var req service.UpdateLastMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	chat, err := h.chats.UpdateLastMessage(r.Context(), account.ID, chi.URLParam(r, "chatID"), req)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(map[string]interface{}{"chat": chat}, "Last message updated"))
}

func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	if err := h.chats.DeleteChat(r.Context(), account.ID, chi.URLParam(r, "chatID")); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(nil, "Chat deleted successfully"))
}
