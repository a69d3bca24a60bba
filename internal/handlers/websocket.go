package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/nikhil/saasbase/internal/logger"
	"github.com/nikhil/saasbase/internal/middleware"
	"github.com/nikhil/saasbase/internal/models"
)

type TeamIDLookup interface {
	TeamIDForUser(ctx context.Context, userID string) (string, error)
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub      *models.Hub
	teams    TeamIDLookup
	upgrader websocket.Upgrader
	Log      *logger.Logger
}

// NewWebSocketHandler creates a new WebSocket handler. Browsers may only
// connect from the application's own origin.
func NewWebSocketHandler(hub *models.Hub, teams TeamIDLookup, baseURL string, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:   hub,
		teams: teams,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameOrigin(baseURL),
		},
		Log: log.Named("websocket"),
	}
}

func sameOrigin(baseURL string) func(r *http.Request) bool {
	allowed := ""
	if u, err := url.Parse(baseURL); err == nil {
		allowed = strings.ToLower(u.Host)
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(u.Host)
		return host == allowed || host == strings.ToLower(r.Host)
	}
}

// HandleWebSocket subscribes the caller to their team's activity feed.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.CurrentUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User is not authenticated")
		return
	}
	log := h.Log.WithContext(r.Context()).WithUser(user.ID)

	teamID, err := h.teams.TeamIDForUser(r.Context(), user.ID)
	if err != nil {
		log.Error("Failed to look up team", "error", err)
		respondWithError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	if teamID == "" {
		respondWithError(w, http.StatusForbidden, "You are not a member of any team")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Error upgrading connection", "error", err)
		return
	}

	client := &models.Client{
		Hub:    h.hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: user.ID,
		TeamID: teamID,
	}
	h.hub.Register(client)
	log.Debug("Feed client connected", "team_id", teamID)

	go client.WritePump()
	go client.ReadPump()
}
