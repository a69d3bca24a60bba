package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/saasbase/internal/handlers"
	"github.com/nikhil/saasbase/internal/middleware"
)

// RegisterWebSocketRoutes registers the live activity feed
func RegisterWebSocketRoutes(router *mux.Router, h *handlers.Handlers) {
	feed := middleware.RequireUser(h.Resolver, h.Log)(http.HandlerFunc(h.WebSocket.HandleWebSocket))
	router.Handle("/team/activity/ws", feed).Methods(http.MethodGet)
}
