package handler

import (
	"net/http"

	"chat-auth-service/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AuthHandler handles the phone verification and profile endpoints
type AuthHandler struct {
	auth   *service.AuthService
	chats  *service.ChatService
	logger *zap.Logger
}

func NewAuthHandler(auth *service.AuthService, chats *service.ChatService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		chats:  chats,
		logger: logger,
	}
}

// RegisterRoutes registers the auth routes on a router mounted at /auth
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Post("/send-code", h.SendCode)
	router.Post("/verify-code", h.VerifyCode)

	router.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(h.auth, h.logger))

		r.Post("/complete-profile", h.CompleteProfile)
		r.Get("/me", h.Me)
		r.Patch("/profile", h.UpdateProfile)

		r.With(RequireCompleteProfile(h.auth, h.logger)).Get("/chats", h.ListChats)
	})
}

// SendCode issues a verification code
// @Router /auth/send-code [post]
func (h *AuthHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req service.SendCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	res, err := h.auth.IssueCode(r.Context(), req)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(res, "Verification code sent successfully"))
}

// VerifyCode exchanges a code for a session token
// @Router /auth/verify-code [post]
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req service.VerifyCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	res, err := h.auth.VerifyCode(r.Context(), req)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(res, "Phone number verified successfully"))
}

// CompleteProfile
// @Router /auth/complete-profile [post]
func (h *AuthHandler) CompleteProfile(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	var req service.CompleteProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	user, err := h.auth.CompleteProfile(r.Context(), account.ID, req)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(map[string]interface{}{"user": user}, "Profile completed successfully"))
}

// Me
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	user, err := h.auth.GetCurrentAccount(r.Context(), account.ID)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(map[string]interface{}{"user": user}, ""))
}

// UpdateProfile
// @Router /auth/profile [patch]
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	var req service.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	user, err := h.auth.UpdateProfile(r.Context(), account.ID, req)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(map[string]interface{}{"user": user}, "Profile updated successfully"))
}

// ListChats
// @Router /auth/chats [get]
func (h *AuthHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	account, _ := AccountFromContext(r.Context())

	chats, err := h.chats.ListChats(r.Context(), account.ID)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, successResponse(chats, "Chats loaded successfully"))
}
