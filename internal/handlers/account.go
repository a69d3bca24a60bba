package handlers

import (
	"net/http"

	"github.com/nikhil/saasbase/internal/action"
	"github.com/nikhil/saasbase/internal/logger"
	profileService "github.com/nikhil/saasbase/internal/service/users"
)

type AccountHandler struct {
	Service  *profileService.ProfileService
	Resolver action.Resolver
	Log      *logger.Logger
}

func NewAccountHandler(service *profileService.ProfileService, resolver action.Resolver, log *logger.Logger) *AccountHandler {
	return &AccountHandler{Service: service, Resolver: resolver, Log: log.Named("account-handler")}
}

// CurrentUser returns the signed-in user, or null for anonymous callers.
func (h *AccountHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Resolver.Resolve(r.Context(), r)
	if err != nil {
		h.Log.WithContext(r.Context()).Error("Failed to resolve session", "error", err)
		respondWithError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	respondWithJSON(w, http.StatusOK, user)
}

func (h *AccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	ServeAction(action.WithUser(h.Resolver, h.Service.UpdateAccount), h.Log)(w, r)
}

func (h *AccountHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	ServeAction(action.WithUser(h.Resolver, h.Service.UpdatePassword), h.Log)(w, r)
}

func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	ServeAction(action.WithUser(h.Resolver, h.Service.DeleteAccount), h.Log)(w, r)
}
