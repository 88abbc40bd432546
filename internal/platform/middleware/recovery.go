package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicops/clinicops/internal/platform/auth"
)

// Recovery turns a handler panic into a 500 and logs it with the request,
// caller and clinic it happened for. The panic value is never sent to the
// client.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				req := c.Request()
				rid, _ := c.Get("request_id").(string)
				if rid == "" {
					rid = c.Response().Header().Get(RequestIDHeader)
				}
				ctx := req.Context()
				logger.Error().
					Str("request_id", rid).
					Str("method", req.Method).
					Str("path", c.Path()).
					Str("user_id", auth.UserIDFromContext(ctx)).
					Str("clinic_id", auth.ClinicFromContext(ctx)).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
