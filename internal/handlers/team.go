package handlers

import (
	"net/http"

	"github.com/nikhil/saasbase/internal/action"
	"github.com/nikhil/saasbase/internal/logger"
	"github.com/nikhil/saasbase/internal/middleware"
	teamService "github.com/nikhil/saasbase/internal/service/team"
)

type TeamHandler struct {
	Service  *teamService.TeamService
	Resolver action.Resolver
	Log      *logger.Logger
}

func NewTeamHandler(service *teamService.TeamService, resolver action.Resolver, log *logger.Logger) *TeamHandler {
	return &TeamHandler{Service: service, Resolver: resolver, Log: log.Named("team-handler")}
}

func (h *TeamHandler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	ServeAction(action.WithUser(h.Resolver, h.Service.CreateTeam), h.Log)(w, r)
}

func (h *TeamHandler) InviteMember(w http.ResponseWriter, r *http.Request) {
	ServeAction(action.WithUser(h.Resolver, h.Service.InviteMember), h.Log)(w, r)
}

func (h *TeamHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	ServeAction(action.WithUser(h.Resolver, h.Service.AcceptInvitation), h.Log)(w, r)
}

func (h *TeamHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	ServeAction(action.WithUser(h.Resolver, h.Service.RemoveMember), h.Log)(w, r)
}

// GetTeam returns the caller's team with the caller's own membership, or
// null when the caller has none.
func (h *TeamHandler) GetTeam(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.CurrentUser(r.Context())
	team, err := h.Service.GetTeamForUser(r.Context(), user.ID)
	if err != nil {
		h.Log.WithContext(r.Context()).Error("Failed to load team", "error", err, "user_id", user.ID)
		respondWithError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	respondWithJSON(w, http.StatusOK, team)
}

// ListMembers returns the caller's team with every member.
func (h *TeamHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.CurrentUser(r.Context())
	team, err := h.Service.TeamDetails(r.Context(), user.ID)
	if err != nil {
		h.Log.WithContext(r.Context()).Error("Failed to load team members", "error", err, "user_id", user.ID)
		respondWithError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	respondWithJSON(w, http.StatusOK, team)
}

func (h *TeamHandler) ActivityLogs(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.CurrentUser(r.Context())
	entries, err := h.Service.ActivityLogs(r.Context(), user.ID)
	if err != nil {
		h.Log.WithContext(r.Context()).Error("Failed to load activity", "error", err, "user_id", user.ID)
		respondWithError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}
