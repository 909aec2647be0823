package ventilation

import "math"

const (
	ibwThresholdIN  = 60.0
	ibwBaseMaleKG   = 50.0
	ibwBaseFemaleKG = 45.5
	ibwKGPerInch    = 2.3
	bsaDivisor      = 3600.0
	mvFactorMale    = 4.0
	mvFactorFemale  = 3.5
)

// Calculator runs the ventilator-setting pipeline. It holds no state besides
// its conversion constants and is safe for concurrent use.
type Calculator struct {
	factors Factors
}

func NewCalculator(f Factors) *Calculator {
	return &Calculator{factors: f}
}

func (c *Calculator) Factors() Factors { return c.factors }

// IdealBodyWeight returns the IBW in kg for a height in inches.
//
// Below 60 in the result is a linear extension, 50 + 2*0.453592*(h-60), applied
// to both sexes. It is not a standard formula and has not been validated
// clinically; callers surface WarnShortStatureIBW alongside it.
func (c *Calculator) IdealBodyWeight(heightIN float64, sex Sex) float64 {
	if heightIN <= 0 {
		return 0
	}
	if heightIN < ibwThresholdIN {
		return finite(ibwBaseMaleKG + (2*c.factors.KGPerPound)*(heightIN-ibwThresholdIN))
	}
	var base float64
	switch sex {
	case Male:
		base = ibwBaseMaleKG
	case Female:
		base = ibwBaseFemaleKG
	default:
		return 0
	}
	return finite(base + ibwKGPerInch*(heightIN-ibwThresholdIN))
}

// TidalVolumes returns the 6, 7 and 8 mL/kg volumes for an IBW. The table is
// only valid when both canonical height and weight are positive.
func (c *Calculator) TidalVolumes(ibwKG, heightCM, weightKG float64) TidalVolumeTable {
	if heightCM <= 0 || weightKG <= 0 {
		return TidalVolumeTable{}
	}
	return TidalVolumeTable{
		Valid:    true,
		ML6PerKG: finite(ibwKG * 6),
		ML7PerKG: finite(ibwKG * 7),
		ML8PerKG: finite(ibwKG * 8),
	}
}

// ResolveSelection returns the tidal volume in mL that feeds the RR stage.
func (c *Calculator) ResolveSelection(sel TidalVolumeSelection, table TidalVolumeTable) float64 {
	var v float64
	switch sel.Option {
	case Option6:
		v = table.ML6PerKG
	case Option7:
		v = table.ML7PerKG
	case Option8:
		v = table.ML8PerKG
	case Custom:
		v = sel.CustomML
	default:
		return 0
	}
	if sel.Option != Custom && !table.Valid {
		return 0
	}
	return finite(v)
}

// BodySurfaceArea uses the Mosteller formula.
func (c *Calculator) BodySurfaceArea(heightCM, weightKG float64) float64 {
	if heightCM <= 0 || weightKG <= 0 {
		return 0
	}
	return finite(math.Sqrt((heightCM * weightKG) / bsaDivisor))
}

// MinuteVentilation returns the predicted MV in L/min.
func (c *Calculator) MinuteVentilation(bsaM2 float64, sex Sex) float64 {
	if sex == Male {
		return finite(bsaM2 * mvFactorMale)
	}
	return finite(bsaM2 * mvFactorFemale)
}

// RespiratoryRate returns the predicted RR in breaths/min.
func (c *Calculator) RespiratoryRate(mvLMin, tidalVolumeML float64) float64 {
	if tidalVolumeML <= 0 || mvLMin <= 0 {
		return 0
	}
	return finite(mvLMin / (tidalVolumeML / c.factors.MLPerLiter))
}

// Recompute derives every quantity from scratch. The same inputs always
// produce the same output. NaN, infinite and overflowing values read as 0.
func (c *Calculator) Recompute(in PatientInputs, sel TidalVolumeSelection) DerivedQuantities {
	in.Height.Value = finite(in.Height.Value)
	in.Weight.Value = finite(in.Weight.Value)
	sel.CustomML = finite(sel.CustomML)

	heightCM, heightIN := c.factors.NormalizeHeight(in.Height)
	heightCM, heightIN = finite(heightCM), finite(heightIN)
	weightKG := finite(c.factors.NormalizeWeight(in.Weight))

	out := DerivedQuantities{
		HeightCM: heightCM,
		HeightIN: heightIN,
		WeightKG: weightKG,
	}

	out.IBWKG = c.IdealBodyWeight(heightIN, in.Sex)
	if heightIN > 0 && heightIN < ibwThresholdIN {
		out.Warnings = append(out.Warnings, WarnShortStatureIBW)
	}

	out.TidalVolumes = c.TidalVolumes(out.IBWKG, heightCM, weightKG)
	out.SelectedTVML = c.ResolveSelection(sel, out.TidalVolumes)
	out.BSAM2 = c.BodySurfaceArea(heightCM, weightKG)
	out.PredictedMVLMin = c.MinuteVentilation(out.BSAM2, in.Sex)
	out.PredictedRRBPM = c.RespiratoryRate(out.PredictedMVLMin, out.SelectedTVML)
	return out
}

// AdjustRespiratoryRate scales the current rate toward the desired PaCO2.
func (c *Calculator) AdjustRespiratoryRate(in RRAdjustment) float64 {
	rr, current, desired := finite(in.CurrentRR), finite(in.CurrentPaCO2), finite(in.DesiredPaCO2)
	if rr <= 0 || current <= 0 || desired <= 0 {
		return 0
	}
	return finite((rr * current) / desired)
}

// AdjustTidalVolume scales the current tidal volume toward the desired PaCO2.
// The computation runs in liters; the result is reported in OutputUnit
// (liters unless mL is requested).
func (c *Calculator) AdjustTidalVolume(in TVAdjustment) TVAdjustmentResult {
	res := TVAdjustmentResult{Unit: Liter}
	if in.OutputUnit == Milliliter {
		res.Unit = Milliliter
	}
	currentL := finite(c.factors.NormalizeVolume(Measurement{Value: finite(in.CurrentTV), Unit: in.InputUnit}))
	current, desired := finite(in.CurrentPaCO2), finite(in.DesiredPaCO2)
	if currentL <= 0 || current <= 0 || desired <= 0 {
		return res
	}
	adjusted := (currentL * current) / desired
	if res.Unit == Milliliter {
		adjusted *= c.factors.MLPerLiter
	}
	res.AdjustedTV = finite(adjusted)
	return res
}
