package billingRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/saasbase/internal/handlers"
	"github.com/nikhil/saasbase/internal/middleware"
)

// BillingRoutes mounts the Stripe callbacks. Both are called by Stripe or by
// its hosted checkout page, so neither requires a session.
func BillingRoutes(router *mux.Router, h *handlers.Handlers) {
	stripeRouter := router.PathPrefix("/api/stripe").Subrouter()
	stripeRouter.Handle("/webhook", middleware.ResponseWrapperMiddleware(http.HandlerFunc(h.Billing.Webhook))).Methods(http.MethodPost)
	stripeRouter.HandleFunc("/checkout", h.Billing.CheckoutCallback).Methods(http.MethodGet)
}
