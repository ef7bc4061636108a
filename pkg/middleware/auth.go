package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/mobileshop/pkg/httputil"
)

type contextKeyType string

const (
	userIDKey contextKeyType = "user_id"
	roleKey   contextKeyType = "role"
)

// Roles understood by RequireRole.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Header names used when identity is forwarded by a trusted gateway.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Claims is the identity extracted from a bearer token.
type Claims struct {
	UserID string
	Email  string
	Role   string
}

// TokenValidator validates a raw bearer token and returns its claims.
type TokenValidator func(token string) (*Claims, error)

// NewJWTValidator returns a TokenValidator for HMAC-signed JWTs. The user id
// is read from "user_id", falling back to "sub"; a missing role means
// RoleCustomer.
func NewJWTValidator(secret string) TokenValidator {
	key := []byte(secret)
	return func(raw string) (*Claims, error) {
		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return key, nil
		}, jwt.WithExpirationRequired())
		if err != nil {
			return nil, err
		}
		mc, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			return nil, errors.New("invalid token claims")
		}

		claims := &Claims{}
		claims.UserID, _ = mc["user_id"].(string)
		if claims.UserID == "" {
			claims.UserID, _ = mc["sub"].(string)
		}
		if claims.UserID == "" {
			return nil, errors.New("token has no subject")
		}
		claims.Email, _ = mc["email"].(string)
		claims.Role, _ = mc["role"].(string)
		if claims.Role == "" {
			claims.Role = RoleCustomer
		}
		return claims, nil
	}
}

// AuthConfig configures Auth.
type AuthConfig struct {
	Validate TokenValidator
	// TrustHeaders accepts X-User-ID / X-User-Role as the identity when no
	// bearer token is sent. Only enable behind a gateway that sets them.
	TrustHeaders bool
	Logger       *slog.Logger
}

// Auth resolves the caller identity and stores it in the request context.
// Requests without an identity are rejected with 401.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := identify(r, cfg)
			if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.WarnContext(r.Context(), "authentication failed",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
				}
				writeMiddlewareError(w, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.UserID, claims.Role)))
		})
	}
}

func identify(r *http.Request, cfg AuthConfig) (*Claims, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			return nil, errors.New("invalid authorization header format")
		}
		if cfg.Validate == nil {
			return nil, errors.New("bearer tokens are not accepted")
		}
		claims, err := cfg.Validate(token)
		if err != nil {
			return nil, errors.New("invalid or expired token")
		}
		return claims, nil
	}

	if cfg.TrustHeaders {
		if userID := r.Header.Get(HeaderUserID); userID != "" {
			role := r.Header.Get(HeaderUserRole)
			if role == "" {
				role = RoleCustomer
			}
			return &Claims{UserID: userID, Role: role}, nil
		}
	}
	return nil, errors.New("missing authorization header")
}

// RequireRole rejects callers whose role is not one of roles with 403.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[RoleFromContext(r.Context())]; !ok {
				writeMiddlewareError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity stores the caller identity in ctx.
func WithIdentity(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

// UserIDFromContext returns the authenticated user id or "".
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// RoleFromContext returns the authenticated role or "".
func RoleFromContext(ctx context.Context) string {
	if role, ok := ctx.Value(roleKey).(string); ok {
		return role
	}
	return ""
}

func writeMiddlewareError(w http.ResponseWriter, status int, code, message string) {
	httputil.WriteJSON(w, status, httputil.Response{
		Error: &httputil.ErrorResponse{Code: code, Message: message},
	})
}
