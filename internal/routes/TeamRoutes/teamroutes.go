package teamroutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/saasbase/internal/handlers"
	"github.com/nikhil/saasbase/internal/middleware"
)

func TeamRoutes(router *mux.Router, h *handlers.Handlers) {
	// Form actions resolve the session themselves, after validation.
	actionRouter := router.PathPrefix("/team").Subrouter()
	actionRouter.Use(middleware.ResponseWrapperMiddleware)
	actionRouter.HandleFunc("/create", h.Team.CreateTeam).Methods(http.MethodPost)
	actionRouter.HandleFunc("/invite", h.Team.InviteMember).Methods(http.MethodPost)
	actionRouter.HandleFunc("/accept-invite", h.Team.AcceptInvitation).Methods(http.MethodPost)
	actionRouter.HandleFunc("/remove-member", h.Team.RemoveMember).Methods(http.MethodPost)

	protectedRouter := router.PathPrefix("/api/team").Subrouter()
	protectedRouter.Use(middleware.RequireUser(h.Resolver, h.Log), middleware.ResponseWrapperMiddleware)
	protectedRouter.HandleFunc("", h.Team.GetTeam).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/members", h.Team.ListMembers).Methods(http.MethodGet)
	protectedRouter.HandleFunc("/activity", h.Team.ActivityLogs).Methods(http.MethodGet)
}
