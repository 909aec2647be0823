package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ventcalc/ventcalc/internal/domain/ventilation"
)

func TestCalculationRecorded(t *testing.T) {
	m := New()
	m.CalculationRecorded(ventilation.KindPrediction)
	m.CalculationRecorded(ventilation.KindPrediction)
	m.CalculationRecorded(ventilation.KindTVAdjustment)

	if got := testutil.ToFloat64(m.calculations.WithLabelValues("prediction")); got != 2 {
		t.Errorf("expected 2 predictions, got %v", got)
	}
	if got := testutil.ToFloat64(m.calculations.WithLabelValues("tv_adjustment")); got != 1 {
		t.Errorf("expected 1 tv adjustment, got %v", got)
	}
}

func TestWorksheetsActive(t *testing.T) {
	m := New()
	m.WorksheetsActive(3)
	m.WorksheetsActive(1)
	if got := testutil.ToFloat64(m.worksheets); got != 1 {
		t.Errorf("expected gauge 1, got %v", got)
	}
}

func TestMiddleware_ObservesRoute(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/worksheets/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "bad")
	})

	for _, path := range []string{"/worksheets/a", "/worksheets/b", "/boom"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if n := testutil.CollectAndCount(m.requests); n != 2 {
		t.Errorf("expected 2 label sets, got %d", n)
	}
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.CalculationRecorded(ventilation.KindRRAdjustment)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `ventcalc_calculations_total{kind="rr_adjustment"} 1`) {
		t.Errorf("expected calculations counter in exposition, got:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("expected go runtime collector in exposition")
	}
}
