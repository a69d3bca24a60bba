package handlers

import (
	"net/http"

	"github.com/nikhil/saasbase/internal/action"
	"github.com/nikhil/saasbase/internal/logger"
	services "github.com/nikhil/saasbase/internal/service/auth"
)

type AuthHandler struct {
	Service *services.AuthService
	Log     *logger.Logger
}

// NewAuthHandler creates a new instance of AuthHandler
func NewAuthHandler(service *services.AuthService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{Service: service, Log: log.Named("auth-handler")}
}

// SignUp handles the user registration request
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ServeAction(action.Validated(h.Service.SignUp), h.Log)(w, r)
}

// SignIn handles the user authentication request
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	ServeAction(action.Validated(h.Service.SignIn), h.Log)(w, r)
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	ServeAction(h.Service.SignOut, h.Log)(w, r)
}
