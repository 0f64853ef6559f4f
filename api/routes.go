package api

import (
	"net/http"

	"anibridge/handlers"

	"github.com/gorilla/mux"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Register mounts API endpoints onto the provided router.
func Register(r *mux.Router, animelistHandler *handlers.AnimelistHandler, limiter *IPRateLimiter) {
	r.Use(corsMiddleware)
	r.Use(RequestLogMiddleware)

	list := http.HandlerFunc(animelistHandler.List)
	if limiter != nil {
		list = RateLimitHandlerFunc(limiter, animelistHandler.List)
	}

	r.HandleFunc("/animelist", list).Methods(http.MethodGet)
	r.HandleFunc("/animelist", animelistHandler.Options).Methods(http.MethodOptions)
}
