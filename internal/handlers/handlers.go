package handlers

import (
	"github.com/nikhil/saasbase/internal/action"
	"github.com/nikhil/saasbase/internal/logger"
)

// Handlers bundles every HTTP handler the router mounts.
type Handlers struct {
	Auth      *AuthHandler
	Team      *TeamHandler
	Account   *AccountHandler
	WebSocket *WebSocketHandler
	Billing   *BillingHandler

	// Resolver gates the JSON read routes and the live feed.
	Resolver action.Resolver
	Log      *logger.Logger
}
