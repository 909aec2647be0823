package ventilation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ventcalc/ventcalc/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), echo.New()
}

func jsonContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withID(c echo.Context, id string) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != code {
		t.Errorf("expected %d, got %d (%v)", code, he.Code, he.Message)
	}
}

func TestHandler_Predict(t *testing.T) {
	h, e := newTestHandler()
	body := `{"height":{"value":180,"unit":"cm"},"weight":{"value":80,"unit":"kg"},"sex":"M","tv_selection":{"option":"tvoption1"}}`
	c, rec := jsonContext(e, http.MethodPost, "/api/v1/ventilation/predictions", body)

	if err := h.Predict(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var res PredictionResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Display.IBW != "74.99" || res.Display.PredictedRR != "17.78" {
		t.Errorf("unexpected display %+v", res.Display)
	}
	if res.CalculationID == uuid.Nil {
		t.Error("expected calculation id in response")
	}
}

func TestHandler_Predict_CustomSelection(t *testing.T) {
	h, e := newTestHandler()
	body := `{"height":{"value":180},"weight":{"value":80},"sex":"M","tv_selection":{"option":"tvoption4","custom_ml":480}}`
	c, rec := jsonContext(e, http.MethodPost, "/", body)

	if err := h.Predict(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res PredictionResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Display.PredictedRR != "16.67" {
		t.Errorf("expected RR 16.67, got %s", res.Display.PredictedRR)
	}
}

func TestHandler_Predict_BadRequest(t *testing.T) {
	h, e := newTestHandler()

	c, _ := jsonContext(e, http.MethodPost, "/", `{"height":`)
	expectHTTPError(t, h.Predict(c), http.StatusBadRequest)

	c, _ = jsonContext(e, http.MethodPost, "/", `{"height":{"value":180,"unit":"kg"},"sex":"M"}`)
	expectHTTPError(t, h.Predict(c), http.StatusBadRequest)
}

func TestHandler_AdjustRR(t *testing.T) {
	h, e := newTestHandler()
	c, rec := jsonContext(e, http.MethodPost, "/", `{"current_rr":20,"current_paco2":40,"desired_paco2":50}`)
	if err := h.AdjustRR(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res RRAdjustmentResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Display != "16.00" {
		t.Errorf("expected 16.00, got %s", res.Display)
	}
}

func TestHandler_AdjustTV(t *testing.T) {
	h, e := newTestHandler()
	c, rec := jsonContext(e, http.MethodPost, "/", `{"current_tv":480,"current_paco2":40,"desired_paco2":50}`)
	if err := h.AdjustTV(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res TVAdjustmentResponse
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Display != "384.00" {
		t.Errorf("expected 384.00, got %s", res.Display)
	}

	c, _ = jsonContext(e, http.MethodPost, "/", `{"current_tv":480,"input_unit":"kg"}`)
	expectHTTPError(t, h.AdjustTV(c), http.StatusBadRequest)
}

func TestHandler_Convert(t *testing.T) {
	h, e := newTestHandler()
	c, rec := jsonContext(e, http.MethodPost, "/", `{"value":80,"from":"kg","to":"lb"}`)
	if err := h.Convert(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res conversionResponse
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Display != "176.37" || res.Unit != Pound {
		t.Errorf("expected 176.37 lb, got %+v", res)
	}

	c, _ = jsonContext(e, http.MethodPost, "/", `{"value":80,"from":"kg","to":"cm"}`)
	expectHTTPError(t, h.Convert(c), http.StatusBadRequest)
}

func TestHandler_GetCalculation(t *testing.T) {
	h, e := newTestHandler()
	res, err := h.svc.AdjustRR(context.Background(), RRAdjustment{CurrentRR: 20, CurrentPaCO2: 40, DesiredPaCO2: 50})
	if err != nil {
		t.Fatal(err)
	}

	c, rec := jsonContext(e, http.MethodGet, "/", "")
	if err := h.GetCalculation(withID(c, res.CalculationID.String())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got CalculationRecord
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Kind != KindRRAdjustment {
		t.Errorf("expected rr_adjustment, got %s", got.Kind)
	}

	c, _ = jsonContext(e, http.MethodGet, "/", "")
	expectHTTPError(t, h.GetCalculation(withID(c, "not-a-uuid")), http.StatusBadRequest)

	c, _ = jsonContext(e, http.MethodGet, "/", "")
	expectHTTPError(t, h.GetCalculation(withID(c, uuid.New().String())), http.StatusNotFound)
}

func TestHandler_ListCalculations(t *testing.T) {
	h, e := newTestHandler()
	h.svc.AdjustRR(context.Background(), RRAdjustment{CurrentRR: 20, CurrentPaCO2: 40, DesiredPaCO2: 50})
	h.svc.AdjustTV(context.Background(), TVAdjustment{CurrentTV: 480, CurrentPaCO2: 40, DesiredPaCO2: 50})

	c, rec := jsonContext(e, http.MethodGet, "/api/v1/ventilation/calculations?kind=tv_adjustment", "")
	if err := h.ListCalculations(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		Total int `json:"total"`
		Limit int `json:"limit"`
	}
	json.Unmarshal(rec.Body.Bytes(), &page)
	if page.Total != 1 || page.Limit != 20 {
		t.Errorf("expected total 1 limit 20, got %+v", page)
	}

	c, _ = jsonContext(e, http.MethodGet, "/api/v1/ventilation/calculations?kind=bogus", "")
	expectHTTPError(t, h.ListCalculations(c), http.StatusBadRequest)
}

func TestHandler_WorksheetLifecycle(t *testing.T) {
	h, e := newTestHandler()

	c, rec := jsonContext(e, http.MethodPost, "/", `{"fields":{"height":"180","weight":"80"},"height_unit":"cm","weight_unit":"kg","sex":"M","tv_selection":"tvoption1"}`)
	if err := h.CreateWorksheet(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var view WorksheetView
	json.Unmarshal(rec.Body.Bytes(), &view)
	if view.Outputs.BSA != "2.00" {
		t.Errorf("expected BSA 2.00, got %s", view.Outputs.BSA)
	}
	id := view.ID.String()

	c, _ = jsonContext(e, http.MethodPatch, "/", `{"field":"custom_tv_ml","value":"480"}`)
	if err := h.EditWorksheetField(withID(c, id)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, rec = jsonContext(e, http.MethodPatch, "/", `{"tv_selection":"tvoption4"}`)
	if err := h.ChangeWorksheetSelection(withID(c, id)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	json.Unmarshal(rec.Body.Bytes(), &view)
	if view.Outputs.PredictedRR != "16.67" {
		t.Errorf("expected RR 16.67 with custom volume, got %s", view.Outputs.PredictedRR)
	}

	c, rec = jsonContext(e, http.MethodPatch, "/", `{"selector":"weight_unit","unit":"lb"}`)
	if err := h.ChangeWorksheetUnit(withID(c, id)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	json.Unmarshal(rec.Body.Bytes(), &view)
	if view.State.Fields[FieldWeight] != "176.37" {
		t.Errorf("expected weight rewritten to 176.37, got %q", view.State.Fields[FieldWeight])
	}

	c, _ = jsonContext(e, http.MethodPatch, "/", `{"selector":"weight_unit","unit":"mL"}`)
	expectHTTPError(t, h.ChangeWorksheetUnit(withID(c, id)), http.StatusBadRequest)

	c, rec = jsonContext(e, http.MethodGet, "/", "")
	if err := h.GetWorksheet(withID(c, id)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, rec = jsonContext(e, http.MethodDelete, "/", "")
	if err := h.DeleteWorksheet(withID(c, id)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	c, _ = jsonContext(e, http.MethodGet, "/", "")
	expectHTTPError(t, h.GetWorksheet(withID(c, id)), http.StatusNotFound)
}

func TestHandler_Routes(t *testing.T) {
	h, e := newTestHandler()
	api := e.Group("/api/v1", auth.DevAuthMiddleware())
	h.RegisterRoutes(api)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ventilation/adjustments/rr",
		strings.NewReader(`{"current_rr":20,"current_paco2":40,"desired_paco2":50}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/ventilation/calculations", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var page struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &page)
	if page.Total != 1 {
		t.Errorf("expected the recorded adjustment in history, got %d", page.Total)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/worksheets/"+uuid.New().String(), nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
