package userRoutes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nikhil/saasbase/internal/handlers"
	"github.com/nikhil/saasbase/internal/middleware"
)

func UserProfileRoutes(router *mux.Router, h *handlers.Handlers) {
	router.Handle("/api/user", middleware.ResponseWrapperMiddleware(http.HandlerFunc(h.Account.CurrentUser))).Methods(http.MethodGet)

	accountRouter := router.PathPrefix("/account").Subrouter()
	accountRouter.Use(middleware.ResponseWrapperMiddleware)
	accountRouter.HandleFunc("/update", h.Account.UpdateAccount).Methods(http.MethodPost)
	accountRouter.HandleFunc("/password", h.Account.UpdatePassword).Methods(http.MethodPost)
	accountRouter.HandleFunc("/delete", h.Account.DeleteAccount).Methods(http.MethodPost)
}
