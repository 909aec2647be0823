package ventilation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Field names an editable numeric input on the worksheet.
type Field string

const (
	FieldHeight         Field = "height"
	FieldWeight         Field = "weight"
	FieldCustomTV       Field = "custom_tv_ml"
	FieldCurrentRR      Field = "current_rr"
	FieldRRCurrentPaCO2 Field = "rr_current_paco2"
	FieldRRDesiredPaCO2 Field = "rr_desired_paco2"
	FieldCurrentTV      Field = "current_tv"
	FieldTVCurrentPaCO2 Field = "tv_current_paco2"
	FieldTVDesiredPaCO2 Field = "tv_desired_paco2"
)

// TVAdjustOutUnitSelector only changes how the adjusted volume is reported;
// no field is rewritten for it.
const TVAdjustOutUnitSelector Selector = "tv_adjust_out_unit"

type panel int

const (
	panelPrimary panel = iota
	panelRR
	panelTV
)

var fieldPanels = map[Field]panel{
	FieldHeight:         panelPrimary,
	FieldWeight:         panelPrimary,
	FieldCustomTV:       panelPrimary,
	FieldCurrentRR:      panelRR,
	FieldRRCurrentPaCO2: panelRR,
	FieldRRDesiredPaCO2: panelRR,
	FieldCurrentTV:      panelTV,
	FieldTVCurrentPaCO2: panelTV,
	FieldTVDesiredPaCO2: panelTV,
}

// ParseField validates a field name.
func ParseField(s string) (Field, error) {
	f := Field(s)
	if _, ok := fieldPanels[f]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, s)
	}
	return f, nil
}

// WorksheetState is what the presentation layer owns: raw field text and the
// current value of every selector.
type WorksheetState struct {
	Fields          map[Field]string  `json:"fields"`
	HeightUnit      Unit              `json:"height_unit"`
	WeightUnit      Unit              `json:"weight_unit"`
	Sex             Sex               `json:"sex"`
	Selection       TidalVolumeOption `json:"tv_selection"`
	TVAdjustInUnit  Unit              `json:"tv_adjust_in_unit"`
	TVAdjustOutUnit Unit              `json:"tv_adjust_out_unit"`
}

func (s *WorksheetState) applyDefaults() {
	if s.Fields == nil {
		s.Fields = make(map[Field]string)
	}
	if s.HeightUnit.Family() != FamilyLength {
		s.HeightUnit = Centimeter
	}
	if s.WeightUnit.Family() != FamilyMass {
		s.WeightUnit = Kilogram
	}
	if s.Sex != Male && s.Sex != Female {
		s.Sex = Male
	}
	if s.TVAdjustInUnit.Family() != FamilyVolume {
		s.TVAdjustInUnit = Milliliter
	}
	if s.TVAdjustOutUnit.Family() != FamilyVolume {
		s.TVAdjustOutUnit = Milliliter
	}
}

// PredictionDisplay is the primary pipeline rendered for display, each value
// with two fractional digits. Tidal volume strings are empty while the table
// is not valid.
type PredictionDisplay struct {
	IBW         string   `json:"ibw_kg"`
	TV6         string   `json:"tv_6mlkg"`
	TV7         string   `json:"tv_7mlkg"`
	TV8         string   `json:"tv_8mlkg"`
	BSA         string   `json:"bsa_m2"`
	PredictedMV string   `json:"predicted_mv_lmin"`
	PredictedRR string   `json:"predicted_rr_bpm"`
	Warnings    []string `json:"warnings,omitempty"`
}

func DisplayPrediction(d DerivedQuantities) PredictionDisplay {
	out := PredictionDisplay{
		IBW:         Format2(d.IBWKG),
		BSA:         Format2(d.BSAM2),
		PredictedMV: Format2(d.PredictedMVLMin),
		PredictedRR: Format2(d.PredictedRRBPM),
		Warnings:    d.Warnings,
	}
	if d.TidalVolumes.Valid {
		out.TV6 = Format2(d.TidalVolumes.ML6PerKG)
		out.TV7 = Format2(d.TidalVolumes.ML7PerKG)
		out.TV8 = Format2(d.TidalVolumes.ML8PerKG)
	}
	return out
}

// WorksheetOutputs are every displayed value of the worksheet.
type WorksheetOutputs struct {
	PredictionDisplay
	AdjustedRR     string `json:"adjusted_rr_bpm"`
	AdjustedTV     string `json:"adjusted_tv"`
	AdjustedTVUnit Unit   `json:"adjusted_tv_unit"`
}

// WorksheetView is a snapshot of a worksheet for the presentation layer.
type WorksheetView struct {
	ID        uuid.UUID         `json:"id"`
	State     WorksheetState    `json:"state"`
	Outputs   WorksheetOutputs  `json:"outputs"`
	Derived   DerivedQuantities `json:"derived"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Worksheet is one live calculator form. Every event re-derives the affected
// panel from the current state in full.
type Worksheet struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time

	state   WorksheetState
	calc    *Calculator
	tracker *ConversionTracker

	derived    DerivedQuantities
	adjustedRR float64
	adjustedTV TVAdjustmentResult
}

// NewWorksheet builds a worksheet from an initial state. Load must be called
// before the first event.
func NewWorksheet(calc *Calculator, initial WorksheetState) *Worksheet {
	st := initial
	fields := make(map[Field]string, len(initial.Fields))
	for k, v := range initial.Fields {
		fields[k] = v
	}
	st.Fields = fields
	st.applyDefaults()
	now := time.Now().UTC()
	return &Worksheet{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
		state:     st,
		calc:      calc,
		tracker:   NewConversionTracker(calc.Factors()),
	}
}

// Load is the initial-load event: previous units are seeded from the current
// selectors and every panel is computed.
func (w *Worksheet) Load() {
	w.tracker.Seed(HeightUnitSelector, w.state.HeightUnit)
	w.tracker.Seed(WeightUnitSelector, w.state.WeightUnit)
	w.tracker.Seed(TVAdjustInUnitSelector, w.state.TVAdjustInUnit)
	w.recomputePrimary()
	w.recomputeRR()
	w.recomputeTV()
	w.touch()
}

// EditField stores raw text for a field and recomputes its panel.
func (w *Worksheet) EditField(f Field, raw string) error {
	p, ok := fieldPanels[f]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, f)
	}
	w.state.Fields[f] = raw
	w.recompute(p)
	w.touch()
	return nil
}

// ChangeUnit handles a unit selector change. Tracked selectors rewrite their
// field into the new unit first; the primary pipeline always re-runs.
func (w *Worksheet) ChangeUnit(sel Selector, unit Unit) error {
	switch sel {
	case HeightUnitSelector:
		if unit.Family() != FamilyLength {
			return fmt.Errorf("%w: %q is not a height unit", ErrUnknownUnit, unit)
		}
		w.convertField(sel, FieldHeight, unit)
		w.state.HeightUnit = unit
	case WeightUnitSelector:
		if unit.Family() != FamilyMass {
			return fmt.Errorf("%w: %q is not a weight unit", ErrUnknownUnit, unit)
		}
		w.convertField(sel, FieldWeight, unit)
		w.state.WeightUnit = unit
	case TVAdjustInUnitSelector:
		if unit.Family() != FamilyVolume {
			return fmt.Errorf("%w: %q is not a volume unit", ErrUnknownUnit, unit)
		}
		w.convertField(sel, FieldCurrentTV, unit)
		w.state.TVAdjustInUnit = unit
		w.recomputeTV()
	case TVAdjustOutUnitSelector:
		if unit.Family() != FamilyVolume {
			return fmt.Errorf("%w: %q is not a volume unit", ErrUnknownUnit, unit)
		}
		w.state.TVAdjustOutUnit = unit
		w.recomputeTV()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSelector, sel)
	}
	w.recomputePrimary()
	w.touch()
	return nil
}

func (w *Worksheet) convertField(sel Selector, f Field, unit Unit) {
	value := ParseNumber(w.state.Fields[f])
	if out, converted := w.tracker.Change(sel, unit, value); converted {
		w.state.Fields[f] = Format2(out)
	}
}

// Select changes the tidal volume used for the predicted RR.
func (w *Worksheet) Select(opt TidalVolumeOption) {
	w.state.Selection = opt
	w.recomputePrimary()
	w.touch()
}

// ChangeSex switches the IBW and MV formula branch.
func (w *Worksheet) ChangeSex(sex Sex) {
	w.state.Sex = sex
	w.recomputePrimary()
	w.touch()
}

func (w *Worksheet) recompute(p panel) {
	switch p {
	case panelRR:
		w.recomputeRR()
	case panelTV:
		w.recomputeTV()
	default:
		w.recomputePrimary()
	}
}

func (w *Worksheet) recomputePrimary() {
	in := PatientInputs{
		Height: Measurement{Value: w.number(FieldHeight), Unit: w.state.HeightUnit},
		Weight: Measurement{Value: w.number(FieldWeight), Unit: w.state.WeightUnit},
		Sex:    w.state.Sex,
	}
	sel := TidalVolumeSelection{Option: w.state.Selection, CustomML: w.number(FieldCustomTV)}
	w.derived = w.calc.Recompute(in, sel)
}

func (w *Worksheet) recomputeRR() {
	w.adjustedRR = w.calc.AdjustRespiratoryRate(RRAdjustment{
		CurrentRR:    w.number(FieldCurrentRR),
		CurrentPaCO2: w.number(FieldRRCurrentPaCO2),
		DesiredPaCO2: w.number(FieldRRDesiredPaCO2),
	})
}

func (w *Worksheet) recomputeTV() {
	w.adjustedTV = w.calc.AdjustTidalVolume(TVAdjustment{
		CurrentTV:    w.number(FieldCurrentTV),
		InputUnit:    w.state.TVAdjustInUnit,
		CurrentPaCO2: w.number(FieldTVCurrentPaCO2),
		DesiredPaCO2: w.number(FieldTVDesiredPaCO2),
		OutputUnit:   w.state.TVAdjustOutUnit,
	})
}

func (w *Worksheet) number(f Field) float64 {
	return ParseNumber(w.state.Fields[f])
}

func (w *Worksheet) touch() {
	w.UpdatedAt = time.Now().UTC()
}

// View returns a copy of the current state and outputs.
func (w *Worksheet) View() WorksheetView {
	st := w.state
	st.Fields = make(map[Field]string, len(w.state.Fields))
	for k, v := range w.state.Fields {
		st.Fields[k] = v
	}

	d := w.derived
	out := WorksheetOutputs{
		PredictionDisplay: DisplayPrediction(d),
		AdjustedRR:        Format2(w.adjustedRR),
		AdjustedTV:        Format2(w.adjustedTV.AdjustedTV),
		AdjustedTVUnit:    w.adjustedTV.Unit,
	}

	return WorksheetView{
		ID:        w.ID,
		State:     st,
		Outputs:   out,
		Derived:   d,
		UpdatedAt: w.UpdatedAt,
	}
}
