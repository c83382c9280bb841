package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/application/services"
	"github.com/heirloom-app/heirloom/pkg/auth"
	"github.com/heirloom-app/heirloom/pkg/common"
	"github.com/heirloom-app/heirloom/pkg/utils"
)

// SpaceHandler handles family space HTTP requests
type SpaceHandler struct {
	spaces *services.SpaceService
	logger *zap.Logger
}

// NewSpaceHandler creates a new space handler
func NewSpaceHandler(spaces *services.SpaceService, logger *zap.Logger) *SpaceHandler {
	return &SpaceHandler{spaces: spaces, logger: logger}
}

// CreateSpaceRequest represents the request body for creating a space
type CreateSpaceRequest struct {
	ID          string `json:"id" validate:"required,max=50"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty" validate:"omitempty,max=500"`
}

// List handles GET /spaces
func (h *SpaceHandler) List(w http.ResponseWriter, r *http.Request) {
	spaces, err := h.spaces.List(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, spaces)
}

// Create handles POST /spaces
func (h *SpaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var req CreateSpaceRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	space, err := h.spaces.Create(r.Context(), req.ID, req.Name, req.Description, userCtx.Username)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, space)
}
