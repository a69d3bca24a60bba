package routes

import (
	"time"

	"github.com/gorilla/mux"

	"github.com/nikhil/saasbase/internal/action"
	"github.com/nikhil/saasbase/internal/handlers"
	"github.com/nikhil/saasbase/internal/middleware"
	authRoute "github.com/nikhil/saasbase/internal/routes/Auth"
	teamroutes "github.com/nikhil/saasbase/internal/routes/TeamRoutes"
	billingRoutes "github.com/nikhil/saasbase/internal/routes/billing"
	userRoutes "github.com/nikhil/saasbase/internal/routes/user"
)

// List of all route registration functions
var routeModules = []func(*mux.Router, *handlers.Handlers){
	authRoute.RegisterAuthRoutes,
	userRoutes.UserProfileRoutes,
	RegisterWebSocketRoutes,
	teamroutes.TeamRoutes,
	billingRoutes.BillingRoutes,
}

// Options configures the shared middleware chain.
type Options struct {
	Timeout        time.Duration
	TrustedProxies action.TrustedProxies
}

// RegisterAllRoutes builds the router with the shared middleware chain and
// every route module.
func RegisterAllRoutes(h *handlers.Handlers, opts Options) *mux.Router {
	router := mux.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.AccessLog(h.Log.Named("http")),
		middleware.ClientIP(opts.TrustedProxies),
		middleware.Timeout(opts.Timeout),
	)

	for _, register := range routeModules {
		register(router, h)
	}

	return router
}
