package sheet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

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
	sheets := api.Group("/sheets/:owner/:year/:month")
	sheets.GET("", h.GetSheet)
	sheets.GET("/context-menu", h.GetContextMenu)

	write := sheets.Group("", auth.RequireWrite())
	write.POST("/edits", h.ApplyEdits)
	write.PATCH("/cells", h.PatchCell)
	write.POST("/moves", h.MoveRows)
	write.DELETE("/rows/:index", h.DeleteRow)
	write.POST("/flush", h.Flush)
	write.DELETE("", h.CloseSheet)
}

// ActorFor maps an authenticated viewer to the sheet role it works under.
func ActorFor(v auth.Viewer, mode Mode) Actor {
	role := RoleIntake
	switch {
	case v.HasRole(auth.RoleClinicStaff):
		role = RoleClinicStaff
	case v.HasRole(auth.RoleScheduler):
		role = RoleScheduler
	case v.HasRole(auth.RoleProviderL2):
		role = RoleProviderL2
	case v.HasRole(auth.RoleProviderL1):
		role = RoleProviderL1
	}
	return Actor{
		UserID:         v.UserID,
		View:           ViewContext{Role: role, Mode: mode, CanEdit: !v.ReadOnly},
		HighlightColor: v.HighlightColor,
	}
}

// request resolves the sheet key and actor of a request. Providers only reach
// their own sheets.
func (h *Handler) request(c echo.Context) (SheetKey, Actor, error) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		return SheetKey{}, Actor{}, echo.NewHTTPError(http.StatusBadRequest, "invalid year")
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil {
		return SheetKey{}, Actor{}, echo.NewHTTPError(http.StatusBadRequest, "invalid month")
	}
	ctx := c.Request().Context()
	key := SheetKey{ClinicID: db.ClinicFromContext(ctx), OwnerID: c.Param("owner"), Year: year, Month: month}
	if err := key.Validate(); err != nil {
		return SheetKey{}, Actor{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	mode, err := ParseMode(c.QueryParam("mode"))
	if err != nil {
		return SheetKey{}, Actor{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	viewer, ok := auth.ViewerFromContext(ctx)
	if !ok {
		return SheetKey{}, Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "no authenticated user")
	}
	actor := ActorFor(viewer, mode)
	switch actor.View.Role {
	case RoleProviderL1, RoleProviderL2:
		if viewer.ProviderID != key.OwnerID {
			return SheetKey{}, Actor{}, echo.NewHTTPError(http.StatusForbidden, "sheet belongs to another provider")
		}
	}
	return key, actor, nil
}

func sheetError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrRowNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrReadOnlyField):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrPlaceholderDelete), errors.Is(err, ErrRowIndex), errors.Is(err, ErrInvalidMove):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrStaleRevision):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) GetSheet(c echo.Context) error {
	key, actor, err := h.request(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	var g Grid
	if refresh, _ := strconv.ParseBool(c.QueryParam("refresh")); refresh {
		g, err = h.svc.Reload(ctx, key, actor)
	} else {
		g, err = h.svc.View(ctx, key, actor)
	}
	if err != nil {
		return sheetError(err)
	}
	return c.JSON(http.StatusOK, g)
}

type editsRequest struct {
	Changes []Change `json:"changes"`
}

func (h *Handler) ApplyEdits(c echo.Context) error {
	key, actor, err := h.request(c)
	if err != nil {
		return err
	}
	var req editsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Changes) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "changes are required")
	}
	res, err := h.svc.ApplyEdits(c.Request().Context(), key, actor, req.Changes)
	if err != nil {
		return sheetError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type cellRequest struct {
	RowID RowID   `json:"row_id"`
	Field string  `json:"field"`
	Value *string `json:"value"`
}

func (h *Handler) PatchCell(c echo.Context) error {
	key, actor, err := h.request(c)
	if err != nil {
		return err
	}
	var req cellRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.RowID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "row_id is required")
	}
	field, err := ParseField(req.Field)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.PatchCell(c.Request().Context(), key, actor, Mutation{RowID: req.RowID, Field: field, Value: req.Value})
	if err != nil {
		return sheetError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type moveRequest struct {
	Rows         []int  `json:"rows"`
	Target       int    `json:"target"`
	BaseRevision uint64 `json:"base_revision"`
}

func (h *Handler) MoveRows(c echo.Context) error {
	key, actor, err := h.request(c)
	if err != nil {
		return err
	}
	var req moveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.MoveRows(c.Request().Context(), key, actor, req.Rows, req.Target, req.BaseRevision)
	if err != nil {
		return sheetError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteRow(c echo.Context) error {
	key, actor, err := h.request(c)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid row index")
	}
	g, err := h.svc.DeleteRow(c.Request().Context(), key, actor, index)
	if err != nil {
		return sheetError(err)
	}
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) Flush(c echo.Context) error {
	key, _, err := h.request(c)
	if err != nil {
		return err
	}
	if err := h.svc.Flush(c.Request().Context(), key); err != nil {
		return sheetError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CloseSheet(c echo.Context) error {
	key, _, err := h.request(c)
	if err != nil {
		return err
	}
	if err := h.svc.Close(c.Request().Context(), key); err != nil {
		return sheetError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetContextMenu(c echo.Context) error {
	key, actor, err := h.request(c)
	if err != nil {
		return err
	}
	row, err := strconv.Atoi(c.QueryParam("row"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid row")
	}
	col, err := strconv.Atoi(c.QueryParam("col"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid col")
	}
	items, err := h.svc.ContextMenu(c.Request().Context(), key, actor, row, col)
	if err != nil {
		return sheetError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": items})
}
