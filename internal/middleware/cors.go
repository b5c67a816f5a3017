package middleware

import "net/http"

// CORSConfig holds configuration for the CORS middleware
type CORSConfig struct {
	AllowedOrigin  string
	AllowedMethods string
	AllowedHeaders string
}

// DefaultCORSConfig allows any origin; the service is consumed by
// browser frontends that are typically hosted elsewhere.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigin:  "*",
		AllowedMethods: "GET, POST, DELETE, OPTIONS",
		AllowedHeaders: "Content-Type, Authorization",
	}
}

// CORS returns middleware that adds CORS headers to every response and
// answers preflight OPTIONS requests directly.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", config.AllowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", config.AllowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", config.AllowedHeaders)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
