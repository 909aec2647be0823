package ventilation

// Selector names a unit drop-down whose previous value is tracked.
type Selector string

const (
	HeightUnitSelector     Selector = "height_unit"
	WeightUnitSelector     Selector = "weight_unit"
	TVAdjustInUnitSelector Selector = "tv_adjust_in_unit"
)

// ConversionTracker remembers the last unit seen on each selector so that an
// already-entered value can be rewritten when the unit changes. It is not
// safe for concurrent use; callers serialize events.
type ConversionTracker struct {
	factors  Factors
	previous map[Selector]Unit
}

func NewConversionTracker(f Factors) *ConversionTracker {
	return &ConversionTracker{factors: f, previous: make(map[Selector]Unit)}
}

// Seed records the selector's current unit as its previous unit. No value is
// converted.
func (t *ConversionTracker) Seed(sel Selector, unit Unit) {
	t.previous[sel] = unit
}

// Previous returns the recorded unit for sel.
func (t *ConversionTracker) Previous(sel Selector) (Unit, bool) {
	u, ok := t.previous[sel]
	return u, ok
}

// Change handles a unit-change event. When a previous unit is recorded and
// differs from next, value is converted and rounded to two decimals and
// converted is true. Otherwise value is returned untouched. The previous unit
// is updated to next in every case.
func (t *ConversionTracker) Change(sel Selector, next Unit, value float64) (out float64, converted bool) {
	prev, ok := t.previous[sel]
	t.previous[sel] = next
	if !ok || prev == "" || prev == next {
		return value, false
	}
	v, err := t.factors.Convert(finite(value), prev, next)
	if err != nil {
		return value, false
	}
	return Round2(v), true
}
