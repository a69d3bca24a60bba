package authRoute

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/saasbase/internal/handlers"
	"github.com/nikhil/saasbase/internal/middleware"
)

func RegisterAuthRoutes(router *mux.Router, h *handlers.Handlers) {
	// Public routes without auth middleware
	publicRouter := router.PathPrefix("/auth").Subrouter()
	publicRouter.Use(middleware.ResponseWrapperMiddleware)
	publicRouter.HandleFunc("/sign-up", h.Auth.SignUp).Methods(http.MethodPost)
	publicRouter.HandleFunc("/sign-in", h.Auth.SignIn).Methods(http.MethodPost)
	publicRouter.HandleFunc("/sign-out", h.Auth.SignOut).Methods(http.MethodPost)
}
