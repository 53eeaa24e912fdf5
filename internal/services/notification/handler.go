package notification

import (
	"context"
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

	r.Get("/", h.GetSystemMessages)
	r.Get("/bell", h.GetBellNotifications)
	r.Get("/unread-count", h.GetUnreadCounts)

	// Authoring & maintenance
	r.Post("/broadcast", h.CreateBroadcast)
	r.Post("/targeted", h.CreateTargeted)
	r.Post("/sweep", h.RunSweep)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/state", h.GetState)
		r.Post("/read-bell", h.MarkReadInBell)
		r.Post("/read-system", h.MarkReadInSystem)
		r.Post("/read-all", h.MarkReadEverywhere)
		r.Post("/remove-bell", h.RemoveFromBell)
		r.Delete("/", h.DeleteFromSystem)
	})

	return r
}

func (h *Handler) CreateBroadcast(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireAuth(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreateBroadcastRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := utils.Validate(&req); err != nil {
		utils.RespondValidationError(w, utils.FormatValidationErrors(err))
		return
	}

	message, err := h.service.CreateBroadcast(r.Context(), userID, &req)
	if err != nil {
		h.respondCreateError(w, err)
		return
	}

	utils.RespondCreated(w, message)
}

func (h *Handler) CreateTargeted(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireAuth(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreateTargetedRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := utils.Validate(&req); err != nil {
		utils.RespondValidationError(w, utils.FormatValidationErrors(err))
		return
	}

	message, err := h.service.CreateTargeted(r.Context(), userID, &req)
	if err != nil {
		h.respondCreateError(w, err)
		return
	}

	utils.RespondCreated(w, message)
}

func (h *Handler) respondCreateError(w http.ResponseWriter, err error) {
	var vErr *ValidationError
	switch {
	case errors.Is(err, ErrNotPermitted):
		utils.RespondError(w, http.StatusForbidden, "Only admins and organizers can create system messages")
	case errors.Is(err, ErrNoRecipients):
		utils.RespondError(w, http.StatusBadRequest, "No recipients resolved for this message")
	case errors.Is(err, ErrUnknownRecipient):
		utils.RespondError(w, http.StatusBadRequest, "One or more recipients do not exist")
	case errors.As(err, &vErr):
		utils.RespondErrorWithCode(w, http.StatusBadRequest, "VALIDATION_ERROR", vErr.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, "Failed to create message")
	}
}

func (h *Handler) GetBellNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireAuth(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	notifications, err := h.service.BellList(r.Context(), userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to get notifications")
		return
	}

	utils.RespondSuccess(w, notifications)
}

func (h *Handler) GetSystemMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireAuth(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	page := utils.GetQueryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := utils.GetQueryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	messages, total, err := h.service.SystemPage(r.Context(), userID, page, limit)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to get system messages")
		return
	}

	utils.RespondPaginated(w, messages, total, page, limit)
}

func (h *Handler) GetUnreadCounts(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireAuth(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	counts, err := h.service.UnreadCounts(r.Context(), userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to get unread counts")
		return
	}

	utils.RespondSuccess(w, counts)
}

func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	userID, messageID, ok := h.authAndMessageID(w, r)
	if !ok {
		return
	}

	state, err := h.service.GetState(r.Context(), messageID, userID)
	if err != nil {
		h.respondStateError(w, err, "Failed to get message state")
		return
	}

	utils.RespondSuccess(w, state)
}

func (h *Handler) MarkReadInBell(w http.ResponseWriter, r *http.Request) {
	h.stateOp(w, r, h.service.MarkReadInBell, "Failed to mark message read")
}

func (h *Handler) MarkReadInSystem(w http.ResponseWriter, r *http.Request) {
	h.stateOp(w, r, h.service.MarkReadInSystem, "Failed to mark message read")
}

func (h *Handler) MarkReadEverywhere(w http.ResponseWriter, r *http.Request) {
	h.stateOp(w, r, h.service.MarkReadEverywhere, "Failed to mark message read")
}

func (h *Handler) RemoveFromBell(w http.ResponseWriter, r *http.Request) {
	h.stateOp(w, r, h.service.RemoveFromBell, "Failed to remove notification")
}

func (h *Handler) DeleteFromSystem(w http.ResponseWriter, r *http.Request) {
	h.stateOp(w, r, h.service.DeleteFromSystem, "Failed to delete message")
}

// RunSweep triggers the expiry sweep on demand. Admin only; the background
// sweeper covers the steady state.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.RequireAuth(r.Context()); err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	role, ok := middleware.GetUserRole(r.Context())
	if !ok || role != models.UserRoleAdmin {
		utils.RespondError(w, http.StatusForbidden, "Admin access required")
		return
	}

	retired, err := h.service.ExpireStale(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Sweep failed")
		return
	}

	utils.RespondSuccess(w, map[string]int64{"retired": retired})
}

type stateOpFunc func(ctx context.Context, messageID, recipientID uuid.UUID) error

func (h *Handler) stateOp(w http.ResponseWriter, r *http.Request, op stateOpFunc, failMsg string) {
	userID, messageID, ok := h.authAndMessageID(w, r)
	if !ok {
		return
	}

	if err := op(r.Context(), messageID, userID); err != nil {
		h.respondStateError(w, err, failMsg)
		return
	}

	utils.RespondNoContent(w)
}

func (h *Handler) authAndMessageID(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, err := middleware.RequireAuth(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, uuid.Nil, false
	}

	messageID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid message ID")
		return uuid.Nil, uuid.Nil, false
	}

	return userID, messageID, true
}

func (h *Handler) respondStateError(w http.ResponseWriter, err error, failMsg string) {
	switch {
	case errors.Is(err, ErrMessageNotFound):
		utils.RespondError(w, http.StatusNotFound, "Message not found")
	case errors.Is(err, ErrNotTargeted):
		utils.RespondErrorWithCode(w, http.StatusNotFound, "NOT_TARGETED", "Message was not addressed to you")
	default:
		utils.RespondError(w, http.StatusInternalServerError, failMsg)
	}
}
