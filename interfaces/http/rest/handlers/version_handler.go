package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/application/services"
	"github.com/heirloom-app/heirloom/pkg/auth"
	"github.com/heirloom-app/heirloom/pkg/common"
	"github.com/heirloom-app/heirloom/pkg/observability"
	"github.com/heirloom-app/heirloom/pkg/utils"
)

// VersionHandler handles tree version HTTP requests
type VersionHandler struct {
	versions *services.VersionService
	metrics  *observability.Collector
	logger   *zap.Logger
}

// NewVersionHandler creates a new version handler
func NewVersionHandler(versions *services.VersionService, metrics *observability.Collector, logger *zap.Logger) *VersionHandler {
	return &VersionHandler{versions: versions, metrics: metrics, logger: logger}
}

// Save handles POST /tree/save
func (h *VersionHandler) Save(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	version, err := h.versions.Save(r.Context(), userCtx.SpaceID, userCtx.Username)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	h.metrics.TreeSaves.Inc()
	common.RespondJSON(w, http.StatusCreated, version)
}

// RecoverRequest represents the request body for recovering a version
type RecoverRequest struct {
	VersionID string `json:"version_id" validate:"required"`
}

// Recover handles POST /tree/recover
func (h *VersionHandler) Recover(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var req RecoverRequest
	if err := common.ParseJSONBody(r, &req, 1<<20); err != nil {
		common.RespondAppError(w, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	if err := h.versions.Recover(r.Context(), userCtx.SpaceID, userCtx.Username, req.VersionID); err != nil {
		common.RespondAppError(w, err)
		return
	}

	h.metrics.TreeRecoveries.Inc()
	common.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// List handles GET /tree/versions
func (h *VersionHandler) List(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	list, err := h.versions.ListVersions(r.Context(), userCtx.SpaceID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, list)
}

// Unsaved handles GET /tree/unsaved
func (h *VersionHandler) Unsaved(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	state, err := h.versions.Unsaved(r.Context(), userCtx.SpaceID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, state)
}
