package middleware

import (
	"net/http"

	"github.com/simvoyage/esim-backend/api/responses"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
	"github.com/simvoyage/esim-backend/pkg/logger"
)

// RequireRole rejects requests whose authenticated role does not match.
func RequireRole(role string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if RoleFromContext(r.Context()) != role {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
