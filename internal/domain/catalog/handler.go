package catalog

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
	g := api.Group("/catalog")
	g.GET("", h.GetCatalog)

	admin := g.Group("", auth.RequireRole(auth.RoleClinicStaff), auth.RequireWrite())
	admin.PUT("/status-colors", h.PutStatusColor)
	admin.DELETE("/status-colors/:type/:status", h.DeleteStatusColor)
	admin.PUT("/billing-codes", h.PutBillingCode)
	admin.DELETE("/billing-codes/:code", h.DeleteBillingCode)
	admin.POST("/seed", h.Seed)
}

func writeError(err error) error {
	if errors.Is(err, ErrInvalid) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) GetCatalog(c echo.Context) error {
	ctx := c.Request().Context()
	t, err := h.svc.Get(ctx, db.ClinicFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) PutStatusColor(c echo.Context) error {
	var sc sheet.StatusColor
	if err := c.Bind(&sc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if err := h.svc.PutStatusColor(ctx, db.ClinicFromContext(ctx), sc); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteStatusColor(c echo.Context) error {
	ctx := c.Request().Context()
	typ := sheet.StatusType(c.Param("type"))
	if err := h.svc.DeleteStatusColor(ctx, db.ClinicFromContext(ctx), typ, c.Param("status")); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) PutBillingCode(c echo.Context) error {
	var bc BillingCode
	if err := c.Bind(&bc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if err := h.svc.PutBillingCode(ctx, db.ClinicFromContext(ctx), bc); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteBillingCode(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.svc.DeleteBillingCode(ctx, db.ClinicFromContext(ctx), c.Param("code")); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Seed(c echo.Context) error {
	ctx := c.Request().Context()
	n, err := h.svc.Seed(ctx, db.ClinicFromContext(ctx))
	if err != nil {
		return writeError(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"written": n})
}
