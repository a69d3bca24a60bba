package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nikhil/saasbase/internal/action"
	"github.com/nikhil/saasbase/internal/logger"
)

const msgInternal = "Internal server error"

// respondWithJSON writes payload with the given status code
func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// respondWithError writes {"error": message}
func respondWithError(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, map[string]string{"error": message})
}

// ServeAction adapts an action to an HTTP handler. Success and error
// results are 200 with {"success"} or {"error"}, redirects are 303 with a
// Location header, a missing session is 401 and any other error is 500.
func ServeAction(fn action.Func, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		result, err := fn(ctx, action.Result{}, r)
		if errors.Is(err, action.ErrUnauthenticated) {
			respondWithError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if err != nil {
			log.WithContext(ctx).Error("Action failed", "error", err, "path", r.URL.Path)
			respondWithError(w, http.StatusInternalServerError, msgInternal)
			return
		}
		writeResult(w, result)
	}
}

func writeResult(w http.ResponseWriter, result action.Result) {
	for _, c := range result.Cookies {
		http.SetCookie(w, c)
	}
	switch result.Kind {
	case action.KindRedirect:
		w.Header().Set("Location", result.Location)
		respondWithJSON(w, http.StatusSeeOther, map[string]string{"redirect": result.Location})
	case action.KindError:
		respondWithJSON(w, http.StatusOK, map[string]string{"error": result.Message})
	default:
		respondWithJSON(w, http.StatusOK, map[string]string{"success": result.Message})
	}
}
