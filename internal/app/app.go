package app

import (
	"fmt"
	"log"
	"net/http"

	"github.com/go-http-utils/headers"
	"github.com/gorilla/mux"
	"github.com/molpadia/molpareplay/internal/domain/repository"
)

const MaxRequestSize = 1 << 20

type appHandler func(http.ResponseWriter, *http.Request) error

func (fn appHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := fn(w, r); err != nil {
		log.Printf("Error: %v", err)
		if e, ok := err.(*AppError); ok {
			replyJSON(w, e, e.Code)
		} else {
			replyJSON(w, &AppError{http.StatusInternalServerError, fmt.Sprintf("Internal server error: %v", err)}, http.StatusInternalServerError)
		}
	}
}

// Register API endpoints to the router.
func SetupRoutes(r *mux.Router, videos repository.VideoRepository, uploader repository.Uploader, cfg Config) {
	c := newController(videos, uploader, cfg)

	api := r.PathPrefix("/molpastream/v1").Subrouter()
	api.Use(RequireToken(cfg.Token))
	api.Methods("GET").Path("/videos/{id}").Handler(appHandler(c.getVideo))
	api.Methods("POST").Path("/uploads").Handler(appHandler(c.createUpload))
	api.Methods("POST").Path("/uploads/{id}/complete").Handler(appHandler(c.completeUpload))
	api.Methods("DELETE").Path("/uploads/{id}").Handler(appHandler(c.cancelUpload))

	// Part URLs are handed to clients like pre-signed URLs, so they carry no
	// bearer token. Only an active upload session accepts parts.
	r.Methods("PUT").Path("/upload/molpastream/v1/uploads/{id}/parts/{part:[0-9]+}").Handler(appHandler(c.uploadPart))
}

// Require the given bearer token on every request. An empty token disables the check.
func RequireToken(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(headers.Authorization) != "Bearer "+token {
				replyJSON(w, &AppError{http.StatusUnauthorized, "invalid or missing bearer token"}, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
