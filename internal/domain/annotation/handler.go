package annotation

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicops/clinicops/internal/domain/sheet"
	"github.com/clinicops/clinicops/internal/platform/auth"
	"github.com/clinicops/clinicops/internal/platform/db"
)

type Handler struct {
	svc              *Service
	defaultHighlight string
}

// NewHandler builds the annotation API. defaultHighlight is used when neither
// the request nor the caller's profile names a color.
func NewHandler(svc *Service, defaultHighlight string) *Handler {
	return &Handler{svc: svc, defaultHighlight: defaultHighlight}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/annotations")
	g.GET("", h.ListAnnotations)

	write := g.Group("", auth.RequireWrite())
	write.PUT("/highlight", h.SetHighlight)
	write.DELETE("/highlight", h.ClearHighlight)
	write.PUT("/comment", h.SetComment)
	write.POST("/resolve", h.ResolveComment)
	write.DELETE("", h.DeleteAnnotation)
}

type cellRequest struct {
	Kind     string `json:"sheet_kind"`
	RowID    string `json:"row_id"`
	Field    string `json:"field"`
	Color    string `json:"color"`
	Comment  string `json:"comment"`
	Resolved *bool  `json:"resolved"`
}

func writeError(err error) error {
	switch {
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// bind reads the cell a write targets. DELETE requests carry it in the query.
func bind(c echo.Context) (cellRequest, Ref, error) {
	var req cellRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return req, Ref{}, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	} else {
		req.Kind = c.QueryParam("kind")
		req.RowID = c.QueryParam("row_id")
		req.Field = c.QueryParam("field")
	}
	kind, err := sheet.ParseSheetKind(req.Kind)
	if err != nil {
		return req, Ref{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ref := Ref{
		ClinicID: db.ClinicFromContext(c.Request().Context()),
		Kind:     kind,
		RowID:    sheet.RowID(req.RowID),
		Field:    sheet.Field(req.Field),
	}
	return req, ref, nil
}

func (h *Handler) respond(c echo.Context, a *Annotation, err error) error {
	if err != nil {
		return writeError(err)
	}
	if a == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAnnotations(c echo.Context) error {
	kind, err := sheet.ParseSheetKind(c.QueryParam("kind"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	list, err := h.svc.List(ctx, db.ClinicFromContext(ctx), kind)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if list == nil {
		list = []*Annotation{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"annotations": list})
}

func (h *Handler) SetHighlight(c echo.Context) error {
	req, ref, err := bind(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	color := req.Color
	if color == "" {
		if v, ok := auth.ViewerFromContext(ctx); ok && v.HighlightColor != "" {
			color = v.HighlightColor
		} else {
			color = h.defaultHighlight
		}
	}
	a, err := h.svc.SetHighlight(ctx, ref, color, auth.UserIDFromContext(ctx))
	return h.respond(c, a, err)
}

func (h *Handler) ClearHighlight(c echo.Context) error {
	_, ref, err := bind(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.ClearHighlight(ctx, ref, auth.UserIDFromContext(ctx))
	return h.respond(c, a, err)
}

func (h *Handler) SetComment(c echo.Context) error {
	req, ref, err := bind(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	a, err := h.svc.SetComment(ctx, ref, req.Comment, auth.UserIDFromContext(ctx))
	return h.respond(c, a, err)
}

func (h *Handler) ResolveComment(c echo.Context) error {
	req, ref, err := bind(c)
	if err != nil {
		return err
	}
	resolved := true
	if req.Resolved != nil {
		resolved = *req.Resolved
	}
	ctx := c.Request().Context()
	a, err := h.svc.ResolveComment(ctx, ref, resolved, auth.UserIDFromContext(ctx))
	return h.respond(c, a, err)
}

func (h *Handler) DeleteAnnotation(c echo.Context) error {
	_, ref, err := bind(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.svc.Delete(ctx, ref, auth.UserIDFromContext(ctx)); err != nil {
		return writeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
