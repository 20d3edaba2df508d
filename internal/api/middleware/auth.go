package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/metering/internal/api/response"
	"github.com/edvin/metering/internal/core"
)

type contextKey string

const tenantIDKey contextKey = "tenant_id"

// KeyAuthenticator resolves a raw API key to its tenant.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, secret string) (string, error)
}

// WithTenantID returns a copy of ctx carrying the authenticated tenant.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantIDKey, tenantID)
}

// TenantID returns the tenant authenticated for the request, or "".
func TenantID(ctx context.Context) string {
	id, _ := ctx.Value(tenantIDKey).(string)
	return id
}

// APIKeyAuth validates the X-API-Key header. Every failure mode answers with
// the same message so callers cannot probe which keys exist.
func APIKeyAuth(keys KeyAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			tenantID, err := keys.Authenticate(r.Context(), key)
			if err != nil {
				if errors.Is(err, core.ErrUnauthorized) || errors.Is(err, core.ErrBadRequest) {
					response.WriteError(w, http.StatusUnauthorized, "invalid API key")
					return
				}
				zerolog.Ctx(r.Context()).Error().Err(err).Msg("api key lookup failed")
				response.WriteError(w, http.StatusInternalServerError, "internal error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTenantID(r.Context(), tenantID)))
		})
	}
}

// SessionClaims are the claims the identity provider puts in dashboard
// session tokens.
type SessionClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// SessionAuth validates an HS256 bearer token issued by the identity
// provider and exposes its tenant_id claim. An empty issuer skips the iss
// check.
func SessionAuth(secret, issuer string) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)
	key := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing session token")
				return
			}

			tenantID, err := parseSession(parser, key, raw)
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("session rejected")
				response.WriteError(w, http.StatusUnauthorized, "invalid session token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTenantID(r.Context(), tenantID)))
		})
	}
}

func parseSession(parser *jwt.Parser, key []byte, raw string) (string, error) {
	var claims SessionClaims
	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.TenantID) == "" {
		return "", fmt.Errorf("token has no tenant_id claim")
	}
	return claims.TenantID, nil
}

// AdminAuth guards internal endpoints with a static bearer token.
func AdminAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := bearerToken(r)
			if token == "" || got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				response.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}
