package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/heirloom-app/heirloom/application/services"
	"github.com/heirloom-app/heirloom/pkg/auth"
	"github.com/heirloom-app/heirloom/pkg/common"
	"github.com/heirloom-app/heirloom/pkg/observability"
	"github.com/heirloom-app/heirloom/pkg/utils"
)

const maxBodyBytes = 1 << 20

// TreeHandler handles tree and member HTTP requests
type TreeHandler struct {
	trees   *services.TreeService
	metrics *observability.Collector
	logger  *zap.Logger
}

// NewTreeHandler creates a new tree handler
func NewTreeHandler(trees *services.TreeService, metrics *observability.Collector, logger *zap.Logger) *TreeHandler {
	return &TreeHandler{trees: trees, metrics: metrics, logger: logger}
}

// CreateMemberRequest represents the request body for creating a member
type CreateMemberRequest struct {
	FirstName         string   `json:"first_name" validate:"required,person_name,max=100"`
	MiddleName        string   `json:"middle_name,omitempty" validate:"omitempty,person_name,max=100"`
	LastName          string   `json:"last_name" validate:"required,person_name,max=100"`
	NickName          string   `json:"nick_name,omitempty" validate:"omitempty,max=100"`
	DOB               string   `json:"dob,omitempty"`
	IsDeceased        bool     `json:"is_deceased,omitempty"`
	DateOfDeath       string   `json:"date_of_death,omitempty"`
	BirthLocation     string   `json:"birth_location,omitempty" validate:"omitempty,max=200"`
	ResidenceLocation string   `json:"residence_location,omitempty" validate:"omitempty,max=200"`
	Email             string   `json:"email,omitempty" validate:"omitempty,email"`
	Phone             string   `json:"phone,omitempty" validate:"omitempty,max=30"`
	Hobbies           []string `json:"hobbies,omitempty" validate:"omitempty,max=20,dive,max=100"`
	SpouseID          string   `json:"spouse_id,omitempty"`
	ProfilePictureURL string   `json:"profile_picture_url,omitempty" validate:"omitempty,url"`
}

// UpdateMemberRequest represents the request body for updating a member
type UpdateMemberRequest struct {
	FirstName         *string   `json:"first_name,omitempty" validate:"omitempty,person_name,max=100"`
	MiddleName        *string   `json:"middle_name,omitempty" validate:"omitempty,max=100"`
	LastName          *string   `json:"last_name,omitempty" validate:"omitempty,person_name,max=100"`
	NickName          *string   `json:"nick_name,omitempty" validate:"omitempty,max=100"`
	DOB               *string   `json:"dob,omitempty"`
	IsDeceased        *bool     `json:"is_deceased,omitempty"`
	DateOfDeath       *string   `json:"date_of_death,omitempty"`
	BirthLocation     *string   `json:"birth_location,omitempty" validate:"omitempty,max=200"`
	ResidenceLocation *string   `json:"residence_location,omitempty" validate:"omitempty,max=200"`
	Email             *string   `json:"email,omitempty" validate:"omitempty,email"`
	Phone             *string   `json:"phone,omitempty" validate:"omitempty,max=30"`
	Hobbies           *[]string `json:"hobbies,omitempty" validate:"omitempty,max=20,dive,max=100"`
	SpouseID          *string   `json:"spouse_id,omitempty"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty" validate:"omitempty,url"`
}

// MoveMemberRequest represents the request body for re-parenting a member.
// A null new_parent_id makes the member an explicit root.
type MoveMemberRequest struct {
	ChildID     string  `json:"child_id" validate:"required"`
	NewParentID *string `json:"new_parent_id"`
}

// SetSpouseRequest represents the request body for linking or unlinking a
// spouse. A null spouse_id dissolves the current pairing.
type SetSpouseRequest struct {
	SpouseID *string `json:"spouse_id"`
}

// GetTree handles GET /tree
func (h *TreeHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	t, err := h.trees.GetTree(r.Context(), userCtx.SpaceID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	h.metrics.TreeAssemblies.Inc()
	common.RespondJSON(w, http.StatusOK, t)
}

// CreateMember handles POST /tree/members
func (h *TreeHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var req CreateMemberRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	member, err := h.trees.CreateMember(r.Context(), userCtx.SpaceID, userCtx.Username, services.CreateMemberInput{
		FirstName:         req.FirstName,
		MiddleName:        req.MiddleName,
		LastName:          req.LastName,
		NickName:          req.NickName,
		DOB:               req.DOB,
		IsDeceased:        req.IsDeceased,
		DateOfDeath:       req.DateOfDeath,
		BirthLocation:     req.BirthLocation,
		ResidenceLocation: req.ResidenceLocation,
		Email:             req.Email,
		Phone:             req.Phone,
		Hobbies:           req.Hobbies,
		SpouseID:          req.SpouseID,
		ProfilePictureURL: req.ProfilePictureURL,
	})
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	h.metrics.MembersCreated.Inc()
	common.RespondJSON(w, http.StatusCreated, member)
}

// GetMember handles GET /tree/members/{memberID}
func (h *TreeHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	member, err := h.trees.GetMember(r.Context(), userCtx.SpaceID, chi.URLParam(r, "memberID"))
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, member)
}

// UpdateMember handles PATCH /tree/members/{memberID}
func (h *TreeHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var req UpdateMemberRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	member, err := h.trees.UpdateMember(r.Context(), userCtx.SpaceID, chi.URLParam(r, "memberID"), userCtx.Username, services.UpdateMemberInput{
		FirstName:         req.FirstName,
		MiddleName:        req.MiddleName,
		LastName:          req.LastName,
		NickName:          req.NickName,
		DOB:               req.DOB,
		IsDeceased:        req.IsDeceased,
		DateOfDeath:       req.DateOfDeath,
		BirthLocation:     req.BirthLocation,
		ResidenceLocation: req.ResidenceLocation,
		Email:             req.Email,
		Phone:             req.Phone,
		Hobbies:           req.Hobbies,
		SpouseID:          req.SpouseID,
		ProfilePictureURL: req.ProfilePictureURL,
	})
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, member)
}

// DeleteMember handles DELETE /tree/members/{memberID}
func (h *TreeHandler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	if err := h.trees.DeleteMember(r.Context(), userCtx.SpaceID, chi.URLParam(r, "memberID"), userCtx.Username); err != nil {
		common.RespondAppError(w, err)
		return
	}

	h.metrics.MembersDeleted.Inc()
	common.RespondJSON(w, http.StatusOK, map[string]string{"message": "member deleted"})
}

// MoveMember handles POST /tree/move
func (h *TreeHandler) MoveMember(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var req MoveMemberRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		common.RespondAppError(w, err)
		return
	}

	if err := h.trees.Move(r.Context(), userCtx.SpaceID, userCtx.Username, req.ChildID, req.NewParentID); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// SetSpouse handles POST /tree/members/{memberID}/spouse
func (h *TreeHandler) SetSpouse(w http.ResponseWriter, r *http.Request) {
	userCtx, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
		return
	}

	var req SetSpouseRequest
	if err := common.ParseJSONBody(r, &req, maxBodyBytes); err != nil {
		common.RespondAppError(w, err)
		return
	}

	if err := h.trees.SetSpouse(r.Context(), userCtx.SpaceID, chi.URLParam(r, "memberID"), userCtx.Username, req.SpouseID); err != nil {
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
