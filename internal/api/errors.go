package api

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
)

// httpError renders a framework-level failure as {"detail": "..."}.
func (h *Handler) httpError(w http.ResponseWriter, r *http.Request, status int) {
	detail := http.StatusText(status)
	h.log.WarnObj(
		fmt.Sprintf("Doh! An HTTP error!: HTTPException(status_code=%d, detail='%s')", status, detail),
		"http_error",
		map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		},
	)
	respondWithJSON(w, status, map[string]string{"detail": detail})
}

// NotFound handles unknown routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.httpError(w, r, http.StatusNotFound)
}

// MethodNotAllowed handles known routes hit with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.httpError(w, r, http.StatusMethodNotAllowed)
}

// Recoverer turns handler panics into a logged 500.
func (h *Handler) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.log.ErrorObj("panic recovered", "panic", map[string]any{
				"error": fmt.Sprintf("%v", rec),
				"stack": string(debug.Stack()),
			})
			h.httpError(w, r, http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}
