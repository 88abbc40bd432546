package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	ViewerKey    contextKey = "viewer"
)

// Role names carried in tokens.
const (
	RoleAdmin       = "admin"
	RoleClinicStaff = "clinic_staff"
	RoleProviderL1  = "provider_l1"
	RoleProviderL2  = "provider_l2"
	RoleScheduler   = "scheduler"
	RoleIntake      = "intake"
)

// Claims are the token claims issued by the hosted auth backend.
type Claims struct {
	jwt.RegisteredClaims
	ClinicID       string   `json:"clinic_id"`
	Roles          []string `json:"roles"`
	ProviderID     string   `json:"provider_id,omitempty"`
	HighlightColor string   `json:"highlight_color,omitempty"`
	ReadOnly       bool     `json:"read_only,omitempty"`
}

// Viewer is the authenticated caller as seen by the domain packages.
type Viewer struct {
	UserID         string
	ClinicID       string
	Roles          []string
	ProviderID     string
	HighlightColor string
	ReadOnly       bool
}

// HasRole reports whether the viewer holds role. Admins hold every role.
func (v Viewer) HasRole(role string) bool {
	for _, r := range v.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

type JWTConfig struct {
	Issuer   string
	Audience string
	// SigningKey is the HS256 secret shared with the auth backend.
	SigningKey []byte
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}
			if cfg.Audience != "" {
				opts = append(opts, jwt.WithAudience(cfg.Audience))
			}

			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.ClinicID == "" {
				return echo.NewHTTPError(http.StatusForbidden, "token carries no clinic")
			}

			setViewer(c, Viewer{
				UserID:         claims.Subject,
				ClinicID:       claims.ClinicID,
				Roles:          claims.Roles,
				ProviderID:     claims.ProviderID,
				HighlightColor: claims.HighlightColor,
				ReadOnly:       claims.ReadOnly,
			})
			return next(c)
		}
	}
}

// DevAuthMiddleware lets unauthenticated requests through as an admin of
// defaultClinic. Requests that do carry a token are validated with cfg.
func DevAuthMiddleware(defaultClinic string, cfg JWTConfig) echo.MiddlewareFunc {
	jwtMW := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withToken := jwtMW(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" && len(cfg.SigningKey) > 0 {
				return withToken(c)
			}
			setViewer(c, Viewer{
				UserID:   "dev-user",
				ClinicID: defaultClinic,
				Roles:    []string{RoleAdmin},
			})
			return next(c)
		}
	}
}

func setViewer(c echo.Context, v Viewer) {
	c.Set("jwt_clinic_id", v.ClinicID)
	ctx := c.Request().Context()
	ctx = WithViewer(ctx, v)
	c.SetRequest(c.Request().WithContext(ctx))
}

// WithViewer stores v on ctx.
func WithViewer(ctx context.Context, v Viewer) context.Context {
	ctx = context.WithValue(ctx, ViewerKey, v)
	ctx = context.WithValue(ctx, UserIDKey, v.UserID)
	ctx = context.WithValue(ctx, UserRolesKey, v.Roles)
	return ctx
}

func ViewerFromContext(ctx context.Context) (Viewer, bool) {
	v, ok := ctx.Value(ViewerKey).(Viewer)
	return v, ok
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

// ClinicFromContext returns the caller's clinic, or "" when unauthenticated.
func ClinicFromContext(ctx context.Context) string {
	v, _ := ViewerFromContext(ctx)
	return v.ClinicID
}
