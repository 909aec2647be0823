package ventilation

import "fmt"

// Factors are the conversion constants the pipeline is built with.
type Factors struct {
	CMPerInch  float64
	KGPerPound float64
	MLPerLiter float64
}

// DefaultFactors: 1 in = 2.54 cm (exact), 1 lb = 0.453592 kg, 1 L = 1000 mL.
func DefaultFactors() Factors {
	return Factors{
		CMPerInch:  2.54,
		KGPerPound: 0.453592,
		MLPerLiter: 1000,
	}
}

// NormalizeHeight returns the height in centimeters and in inches. Values are
// not rounded and non-positive values pass through unchanged.
func (f Factors) NormalizeHeight(m Measurement) (cm, in float64) {
	if m.Unit == Inch {
		return m.Value * f.CMPerInch, m.Value
	}
	return m.Value, m.Value / f.CMPerInch
}

// NormalizeWeight returns the weight in kilograms.
func (f Factors) NormalizeWeight(m Measurement) float64 {
	if m.Unit == Pound {
		return m.Value * f.KGPerPound
	}
	return m.Value
}

// NormalizeVolume returns the volume in liters.
func (f Factors) NormalizeVolume(m Measurement) float64 {
	if m.Unit == Milliliter {
		return m.Value / f.MLPerLiter
	}
	return m.Value
}

// factor returns the multiplier from the family's metric-side unit to the
// other one: in->cm, lb->kg, L->mL.
func (f Factors) factor(family Family) float64 {
	switch family {
	case FamilyLength:
		return f.CMPerInch
	case FamilyMass:
		return f.KGPerPound
	case FamilyVolume:
		return f.MLPerLiter
	}
	return 1
}

// multiplies reports whether converting into u multiplies by the family
// factor (in->cm, lb->kg, L->mL) rather than dividing.
func multiplies(to Unit) bool {
	return to == Centimeter || to == Kilogram || to == Milliliter
}

// Convert rewrites value from one unit into another of the same family. The
// result is not rounded.
func (f Factors) Convert(value float64, from, to Unit) (float64, error) {
	if from.Family() == "" || to.Family() == "" {
		return 0, fmt.Errorf("%w: %q -> %q", ErrUnknownUnit, from, to)
	}
	if from.Family() != to.Family() {
		return 0, fmt.Errorf("%w: cannot convert %s to %s", ErrUnknownUnit, from, to)
	}
	if from == to {
		return value, nil
	}
	k := f.factor(to.Family())
	if multiplies(to) {
		return value * k, nil
	}
	return value / k, nil
}
