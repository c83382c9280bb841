package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/application/services"
	"github.com/heirloom-app/heirloom/pkg/auth"
	"github.com/heirloom-app/heirloom/pkg/common"
	"github.com/heirloom-app/heirloom/pkg/utils"
)

// AuthHandler handles registration and login HTTP requests
type AuthHandler struct {
	auth   *services.AuthService
	logger *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth *services.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	InviteCode string `json:"invite_code,omitempty"`
	Username   string `json:"username" validate:"required,min=3,max=50,alphanum"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Password   string `json:"password" validate:"required,min=8,max=128"`
	SpaceID    string `json:"space_id" validate:"required"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	SpaceID  string `json:"space_id,omitempty"`
}

// SelectSpaceRequest represents the request body for switching spaces
type SelectSpaceRequest struct {
	SpaceID string `json:"space_id" validate:"required"`
}

// TokenResponse carries a freshly issued bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	if err := h.auth.Register(r.Context(), req.InviteCode, req.Username, req.Email, req.Password, req.SpaceID); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, map[string]string{"message": "account created"})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	token, err := h.auth.Login(r.Context(), req.Username, req.Password, req.SpaceID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// SelectSpace handles POST /spaces/select. It issues a fresh token scoped to
// the chosen space.
func (h *AuthHandler) SelectSpace(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var req SelectSpaceRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	token, err := h.auth.SelectSpace(r.Context(), userCtx.Username, req.SpaceID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, TokenResponse{Token: token})
}
