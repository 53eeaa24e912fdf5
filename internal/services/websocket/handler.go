package websocket

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gatherly/citrine/internal/middleware"
	"github.com/gatherly/citrine/internal/utils"
	"github.com/gatherly/citrine/pkg/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking in production
		return true
	},
}

type Handler struct {
	hub       *Hub
	jwtSecret string
}

func NewHandler(hub *Hub, jwtSecret string) *Handler {
	return &Handler{
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.HandleWebSocket)

	// REST presence lookup for clients without an open socket
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(h.jwtSecret))
		r.Get("/presence/{userId}", h.GetUserPresence)
	})

	return r
}

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Token arrives as a query parameter or Authorization header
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}
	}

	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateAccessToken(token, h.jwtSecret)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		http.Error(w, "Invalid user ID in token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := NewClient(userID, conn, h.hub)
	h.hub.register <- client

	client.SendEvent(&Event{
		Type: EventTypeReady,
		Data: map[string]any{
			"clientId": client.ID.String(),
			"userId":   userID.String(),
		},
	})

	go client.WritePump()
	go client.ReadPump()
}

func (h *Handler) GetUserPresence(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	status := h.hub.GetUserPresence(r.Context(), userID)
	utils.RespondSuccess(w, map[string]any{
		"userId": userID.String(),
		"status": status,
		"online": h.hub.IsUserOnline(userID),
	})
}
