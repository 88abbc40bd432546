package lock

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicops/clinicops/internal/domain/sheet"
	"github.com/clinicops/clinicops/internal/platform/auth"
	"github.com/clinicops/clinicops/internal/platform/db"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/locks")
	g.GET("", h.GetLocks)

	staff := g.Group("", auth.RequireRole(auth.RoleClinicStaff), auth.RequireWrite())
	staff.PUT("", h.ReplaceLocks)
	staff.POST("/toggle", h.ToggleLock)
}

// scope reads ?kind= and ?owner= from the request.
func scope(c echo.Context) (Scope, error) {
	kind, err := sheet.ParseSheetKind(c.QueryParam("kind"))
	if err != nil {
		return Scope{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return Scope{
		ClinicID: db.ClinicFromContext(c.Request().Context()),
		Kind:     kind,
		OwnerID:  c.QueryParam("owner"),
	}, nil
}

func writeError(err error) error {
	if errors.Is(err, ErrUnknownField) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) GetLocks(c echo.Context) error {
	sc, err := scope(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Get(c.Request().Context(), sc)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}

type toggleRequest struct {
	Field   string  `json:"field"`
	Comment *string `json:"comment"`
}

func (h *Handler) ToggleLock(c echo.Context) error {
	sc, err := scope(c)
	if err != nil {
		return err
	}
	var req toggleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	field, err := ParseField(req.Field)
	if err != nil {
		return writeError(err)
	}
	ctx := c.Request().Context()
	rec, err := h.svc.Toggle(ctx, sc, field, req.Comment, auth.UserIDFromContext(ctx))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

type replaceRequest struct {
	Fields map[sheet.Field]FieldLock `json:"fields"`
}

func (h *Handler) ReplaceLocks(c echo.Context) error {
	sc, err := scope(c)
	if err != nil {
		return err
	}
	var req replaceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	rec, err := h.svc.Replace(ctx, sc, req.Fields, auth.UserIDFromContext(ctx))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, rec)
}
