package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/nikhil/saasbase/internal/logger"
	"github.com/nikhil/saasbase/internal/service/billing"
)

const maxWebhookBody = 64 << 10

type BillingHandler struct {
	Service *billing.Service
	Log     *logger.Logger
}

func NewBillingHandler(service *billing.Service, log *logger.Logger) *BillingHandler {
	return &BillingHandler{Service: service, Log: log.Named("billing-handler")}
}

// Webhook verifies and applies a Stripe event.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	log := h.Log.WithContext(r.Context())

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	event, err := h.Service.ParseEvent(payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		respondWithError(w, http.StatusServiceUnavailable, "Billing is not configured")
		return
	case err != nil:
		log.Warn("Rejected webhook", "error", err)
		respondWithError(w, http.StatusBadRequest, "Webhook signature verification failed")
		return
	}

	if err := h.Service.HandleEvent(r.Context(), event); err != nil {
		log.Error("Failed to handle webhook event", "error", err, "event_id", event.ID, "type", event.Type)
		respondWithError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// CheckoutCallback is the checkout success URL. It links the completed
// subscription to the buyer's team and sends them on to the dashboard.
func (h *BillingHandler) CheckoutCallback(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Redirect(w, r, "/pricing", http.StatusSeeOther)
		return
	}
	if err := h.Service.CompleteCheckout(r.Context(), sessionID); err != nil {
		h.Log.WithContext(r.Context()).Error("Failed to complete checkout", "error", err, "session_id", sessionID)
		http.Redirect(w, r, "/error", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}
