package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/harveywang/codedesk-backend/api/responses"
	pkgauth "github.com/harveywang/codedesk-backend/pkg/auth"
	"github.com/harveywang/codedesk-backend/pkg/config"
	pkgerrors "github.com/harveywang/codedesk-backend/pkg/errors"
	"github.com/harveywang/codedesk-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the admin
// identity.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.AdminID <= 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing admin identity"))
				return
			}

			ctx := WithAdmin(r.Context(), claims.AdminID, claims.Username, claims.Role)
			if logg != nil {
				ctx = logg.WithAdminID(ctx, strconv.FormatInt(claims.AdminID, 10))
				ctx = logg.WithField(ctx, "actor_role", claims.Role)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
