package user

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gatherly/citrine/internal/middleware"
	"github.com/gatherly/citrine/internal/models"
	"github.com/gatherly/citrine/internal/utils"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/me", h.GetMe)
	r.Patch("/me", h.UpdateProfile)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetUser)

		// Admin-only account changes
		r.Patch("/role", h.ChangeRole)
		r.Patch("/auth-level", h.SetAuthLevel)
	})

	return r
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireAuth(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.service.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			utils.RespondError(w, http.StatusNotFound, "User not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "Failed to get user")
		return
	}

	utils.RespondSuccess(w, user)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.RequireAuth(r.Context()); err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	user, err := h.service.GetPublicUser(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			utils.RespondError(w, http.StatusNotFound, "User not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "Failed to get user")
		return
	}

	utils.RespondSuccess(w, user)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireAuth(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req UpdateProfileRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := utils.Validate(&req); err != nil {
		utils.RespondValidationError(w, utils.FormatValidationErrors(err))
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, &req)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	utils.RespondSuccess(w, user)
}

type ChangeRoleRequest struct {
	Role models.UserRole `json:"role" validate:"required,userrole"`
}

func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var req ChangeRoleRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := utils.Validate(&req); err != nil {
		utils.RespondValidationError(w, utils.FormatValidationErrors(err))
		return
	}

	user, err := h.service.ChangeRole(r.Context(), actorID, targetID, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			utils.RespondError(w, http.StatusNotFound, "User not found")
		case errors.Is(err, ErrSameRole):
			utils.RespondError(w, http.StatusConflict, "User already has this role")
		default:
			utils.RespondError(w, http.StatusInternalServerError, "Failed to change role")
		}
		return
	}

	utils.RespondSuccess(w, user)
}

type SetAuthLevelRequest struct {
	AuthLevel int `json:"authLevel" validate:"min=0,max=10"`
}

func (h *Handler) SetAuthLevel(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var req SetAuthLevelRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := utils.Validate(&req); err != nil {
		utils.RespondValidationError(w, utils.FormatValidationErrors(err))
		return
	}

	user, err := h.service.SetAuthLevel(r.Context(), actorID, targetID, req.AuthLevel)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			utils.RespondError(w, http.StatusNotFound, "User not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "Failed to set auth level")
		return
	}

	utils.RespondSuccess(w, user)
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	actorID, err := middleware.RequireAuth(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	role, ok := middleware.GetUserRole(r.Context())
	if !ok || role != models.UserRoleAdmin {
		utils.RespondError(w, http.StatusForbidden, "Admin access required")
		return uuid.Nil, false
	}
	return actorID, true
}
