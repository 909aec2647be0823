package ventilation

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ventcalc/ventcalc/internal/platform/auth"
	"github.com/ventcalc/ventcalc/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – admin, clinician, auditor
	readGroup := api.Group("", auth.RequireRole("admin", "clinician", "auditor"))
	readGroup.GET("/ventilation/calculations", h.ListCalculations)
	readGroup.GET("/ventilation/calculations/:id", h.GetCalculation)

	// Calculation endpoints – admin, clinician
	calcGroup := api.Group("", auth.RequireRole("admin", "clinician"))
	calcGroup.POST("/ventilation/predictions", h.Predict)
	calcGroup.POST("/ventilation/adjustments/rr", h.AdjustRR)
	calcGroup.POST("/ventilation/adjustments/tv", h.AdjustTV)
	calcGroup.POST("/ventilation/conversions", h.Convert)

	calcGroup.POST("/worksheets", h.CreateWorksheet)
	calcGroup.GET("/worksheets/:id", h.GetWorksheet)
	calcGroup.PATCH("/worksheets/:id/fields", h.EditWorksheetField)
	calcGroup.PATCH("/worksheets/:id/units", h.ChangeWorksheetUnit)
	calcGroup.PATCH("/worksheets/:id/selection", h.ChangeWorksheetSelection)
	calcGroup.DELETE("/worksheets/:id", h.DeleteWorksheet)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrWorksheetNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "worksheet not found")
	case errors.Is(err, ErrCalculationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "calculation not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Calculation Handlers --

func (h *Handler) Predict(c echo.Context) error {
	var req PredictionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Predict(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) AdjustRR(c echo.Context) error {
	var req RRAdjustment
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.AdjustRR(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) AdjustTV(c echo.Context) error {
	var req TVAdjustment
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.AdjustTV(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type conversionRequest struct {
	Value float64 `json:"value"`
	From  Unit    `json:"from"`
	To    Unit    `json:"to"`
}

type conversionResponse struct {
	Value   float64 `json:"value"`
	Unit    Unit    `json:"unit"`
	Display string  `json:"display"`
}

func (h *Handler) Convert(c echo.Context) error {
	var req conversionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.Convert(req.Value, req.From, req.To)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, conversionResponse{Value: v, Unit: req.To, Display: Format2(v)})
}

// -- History Handlers --

func (h *Handler) GetCalculation(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.GetCalculation(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListCalculations(c echo.Context) error {
	pg := pagination.FromContext(c)
	kind := CalculationKind(c.QueryParam("kind"))
	items, total, err := h.svc.ListCalculations(c.Request().Context(), kind, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg).WithLinks(c.Request().URL))
}

// -- Worksheet Handlers --

func (h *Handler) CreateWorksheet(c echo.Context) error {
	var st WorksheetState
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	view, err := h.svc.CreateWorksheet(c.Request().Context(), st)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *Handler) GetWorksheet(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	view, err := h.svc.GetWorksheet(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

type fieldEdit struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (h *Handler) EditWorksheetField(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req fieldEdit
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	view, err := h.svc.EditWorksheetField(c.Request().Context(), id, req.Field, req.Value)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

type unitChange struct {
	Selector string `json:"selector"`
	Unit     string `json:"unit"`
}

func (h *Handler) ChangeWorksheetUnit(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req unitChange
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	view, err := h.svc.ChangeWorksheetUnit(c.Request().Context(), id, req.Selector, req.Unit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) ChangeWorksheetSelection(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req WorksheetSelection
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	view, err := h.svc.ChangeWorksheetSelection(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) DeleteWorksheet(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteWorksheet(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
