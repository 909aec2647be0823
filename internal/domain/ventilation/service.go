package ventilation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ventcalc/ventcalc/internal/platform/auth"
)

// ErrInvalidInput wraps every request validation failure.
var ErrInvalidInput = errors.New("invalid input")

// Publisher forwards recorded calculations to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Observer receives counters for recorded calculations and live worksheets.
type Observer interface {
	CalculationRecorded(kind CalculationKind)
	WorksheetsActive(n int)
}

type Service struct {
	calc      *Calculator
	history   CalculationRepository
	sheets    *WorksheetStore
	publisher Publisher
	observer  Observer
	logger    zerolog.Logger
}

// Option configures optional collaborators of the Service.
type Option func(*Service)

func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithObserver(o Observer) Option { return func(s *Service) { s.observer = o } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(calc *Calculator, history CalculationRepository, sheets *WorksheetStore, opts ...Option) *Service {
	s := &Service{
		calc:    calc,
		history: history,
		sheets:  sheets,
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// -- Stateless calculations --

// PredictionRequest is one full run of the primary pipeline.
type PredictionRequest struct {
	Height    Measurement          `json:"height"`
	Weight    Measurement          `json:"weight"`
	Sex       Sex                  `json:"sex"`
	Selection TidalVolumeSelection `json:"tv_selection"`
}

func (r *PredictionRequest) validate() error {
	if r.Height.Unit == "" {
		r.Height.Unit = Centimeter
	}
	if r.Weight.Unit == "" {
		r.Weight.Unit = Kilogram
	}
	if r.Height.Unit.Family() != FamilyLength {
		return fmt.Errorf("%w: height unit must be cm or in, got %q", ErrInvalidInput, r.Height.Unit)
	}
	if r.Weight.Unit.Family() != FamilyMass {
		return fmt.Errorf("%w: weight unit must be kg or lb, got %q", ErrInvalidInput, r.Weight.Unit)
	}
	if _, err := ParseSex(string(r.Sex)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := ParseTidalVolumeOption(string(r.Selection.Option)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

type PredictionResult struct {
	CalculationID uuid.UUID         `json:"calculation_id"`
	Derived       DerivedQuantities `json:"derived"`
	Display       PredictionDisplay `json:"display"`
}

func (s *Service) Predict(ctx context.Context, req PredictionRequest) (*PredictionResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	in := PatientInputs{Height: req.Height, Weight: req.Weight, Sex: req.Sex}
	d := s.calc.Recompute(in, req.Selection)
	res := &PredictionResult{Derived: d, Display: DisplayPrediction(d)}

	id, err := s.record(ctx, KindPrediction, req, res)
	if err != nil {
		return nil, err
	}
	res.CalculationID = id
	return res, nil
}

type RRAdjustmentResult struct {
	CalculationID uuid.UUID `json:"calculation_id"`
	AdjustedRR    float64   `json:"adjusted_rr_bpm"`
	Display       string    `json:"display"`
}

func (s *Service) AdjustRR(ctx context.Context, req RRAdjustment) (*RRAdjustmentResult, error) {
	v := s.calc.AdjustRespiratoryRate(req)
	res := &RRAdjustmentResult{AdjustedRR: v, Display: Format2(v)}
	id, err := s.record(ctx, KindRRAdjustment, req, res)
	if err != nil {
		return nil, err
	}
	res.CalculationID = id
	return res, nil
}

type TVAdjustmentResponse struct {
	CalculationID uuid.UUID `json:"calculation_id"`
	TVAdjustmentResult
	Display string `json:"display"`
}

func (s *Service) AdjustTV(ctx context.Context, req TVAdjustment) (*TVAdjustmentResponse, error) {
	if req.InputUnit == "" {
		req.InputUnit = Milliliter
	}
	if req.OutputUnit == "" {
		req.OutputUnit = Milliliter
	}
	if req.InputUnit.Family() != FamilyVolume || req.OutputUnit.Family() != FamilyVolume {
		return nil, fmt.Errorf("%w: tidal volume units must be mL or L", ErrInvalidInput)
	}
	r := s.calc.AdjustTidalVolume(req)
	res := &TVAdjustmentResponse{TVAdjustmentResult: r, Display: Format2(r.AdjustedTV)}
	id, err := s.record(ctx, KindTVAdjustment, req, res)
	if err != nil {
		return nil, err
	}
	res.CalculationID = id
	return res, nil
}

// Convert rewrites a value into another unit of the same family, rounded to
// two decimals the way a unit selector change rewrites its field.
func (s *Service) Convert(value float64, from, to Unit) (float64, error) {
	v, err := s.calc.Factors().Convert(finite(value), from, to)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return Round2(v), nil
}

func (s *Service) record(ctx context.Context, kind CalculationKind, inputs, outputs interface{}) (uuid.UUID, error) {
	in, err := json.Marshal(inputs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode inputs: %w", err)
	}
	out, err := json.Marshal(outputs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode outputs: %w", err)
	}
	rec := &CalculationRecord{Kind: kind, Inputs: in, Outputs: out}
	if uid := auth.UserIDFromContext(ctx); uid != "" {
		rec.RequestedBy = &uid
	}
	if err := s.history.Create(ctx, rec); err != nil {
		return uuid.Nil, fmt.Errorf("record calculation: %w", err)
	}

	s.logger.Debug().Str("calculation_id", rec.ID.String()).Str("kind", string(kind)).Msg("calculation recorded")
	if s.observer != nil {
		s.observer.CalculationRecorded(kind)
	}
	if s.publisher != nil {
		body, err := json.Marshal(rec)
		if err == nil {
			err = s.publisher.Publish(ctx, body)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("calculation_id", rec.ID.String()).Msg("publish calculation failed")
		}
	}
	return rec.ID, nil
}

// -- History --

func (s *Service) GetCalculation(ctx context.Context, id uuid.UUID) (*CalculationRecord, error) {
	return s.history.GetByID(ctx, id)
}

func (s *Service) ListCalculations(ctx context.Context, kind CalculationKind, limit, offset int) ([]*CalculationRecord, int, error) {
	switch kind {
	case "", KindPrediction, KindRRAdjustment, KindTVAdjustment:
	default:
		return nil, 0, fmt.Errorf("%w: unknown calculation kind %q", ErrInvalidInput, kind)
	}
	return s.history.List(ctx, kind, limit, offset)
}

// -- Worksheets --

// CreateWorksheet performs the initial-load event of a new worksheet.
func (s *Service) CreateWorksheet(_ context.Context, initial WorksheetState) (WorksheetView, error) {
	for f := range initial.Fields {
		if _, err := ParseField(string(f)); err != nil {
			return WorksheetView{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if _, err := ParseTidalVolumeOption(string(initial.Selection)); err != nil {
		return WorksheetView{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	w := NewWorksheet(s.calc, initial)
	w.Load()
	s.sheets.Put(w)
	s.reportWorksheets()
	return w.View(), nil
}

func (s *Service) GetWorksheet(_ context.Context, id uuid.UUID) (WorksheetView, error) {
	return s.sheets.Get(id)
}

func (s *Service) EditWorksheetField(_ context.Context, id uuid.UUID, field, raw string) (WorksheetView, error) {
	f, err := ParseField(field)
	if err != nil {
		return WorksheetView{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.sheets.Update(id, func(w *Worksheet) error {
		return w.EditField(f, raw)
	})
}

func (s *Service) ChangeWorksheetUnit(_ context.Context, id uuid.UUID, selector, unit string) (WorksheetView, error) {
	return s.sheets.Update(id, func(w *Worksheet) error {
		if err := w.ChangeUnit(Selector(selector), Unit(unit)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil
	})
}

// WorksheetSelection changes the tidal volume option and/or sex.
type WorksheetSelection struct {
	Option *TidalVolumeOption `json:"tv_selection,omitempty"`
	Sex    *Sex               `json:"sex,omitempty"`
}

func (s *Service) ChangeWorksheetSelection(_ context.Context, id uuid.UUID, sel WorksheetSelection) (WorksheetView, error) {
	if sel.Option != nil {
		if _, err := ParseTidalVolumeOption(string(*sel.Option)); err != nil {
			return WorksheetView{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if sel.Sex != nil {
		if _, err := ParseSex(string(*sel.Sex)); err != nil {
			return WorksheetView{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return s.sheets.Update(id, func(w *Worksheet) error {
		if sel.Sex != nil {
			w.ChangeSex(*sel.Sex)
		}
		if sel.Option != nil {
			w.Select(*sel.Option)
		}
		return nil
	})
}

func (s *Service) DeleteWorksheet(_ context.Context, id uuid.UUID) error {
	if err := s.sheets.Delete(id); err != nil {
		return err
	}
	s.reportWorksheets()
	return nil
}

// SweepWorksheets evicts worksheets idle for longer than idle and refreshes
// the live worksheet gauge.
func (s *Service) SweepWorksheets(idle time.Duration) int {
	n := s.sheets.Sweep(time.Now().UTC().Add(-idle))
	if n > 0 {
		s.logger.Info().Int("evicted", n).Dur("idle", idle).Msg("evicted idle worksheets")
	}
	s.reportWorksheets()
	return n
}

func (s *Service) reportWorksheets() {
	if s.observer != nil {
		s.observer.WorksheetsActive(s.sheets.Len())
	}
}
