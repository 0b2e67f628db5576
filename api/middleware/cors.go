package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns middleware that applies the API's allowed origin policy.
func CORS(storefrontURL string) func(http.Handler) http.Handler {
	origins := []string{"http://localhost:3000"}
	if storefrontURL != "" {
		origins = append(origins, storefrontURL)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
