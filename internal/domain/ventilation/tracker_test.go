package ventilation

import "testing"

func TestConversionTracker_FirstChangeWithoutSeedIsNoOp(t *testing.T) {
	tr := NewConversionTracker(DefaultFactors())

	out, converted := tr.Change(HeightUnitSelector, Inch, 180)
	if converted || out != 180 {
		t.Errorf("expected unconverted 180, got %v (converted=%v)", out, converted)
	}
	if prev, ok := tr.Previous(HeightUnitSelector); !ok || prev != Inch {
		t.Errorf("expected previous unit to be initialized to in, got %q (%v)", prev, ok)
	}
}

func TestConversionTracker_SeedDoesNotConvert(t *testing.T) {
	tr := NewConversionTracker(DefaultFactors())
	tr.Seed(WeightUnitSelector, Kilogram)
	tr.Seed(WeightUnitSelector, Kilogram)
	if prev, _ := tr.Previous(WeightUnitSelector); prev != Kilogram {
		t.Errorf("expected kg, got %q", prev)
	}
}

func TestConversionTracker_Change(t *testing.T) {
	tests := []struct {
		name      string
		sel       Selector
		from, to  Unit
		value     float64
		want      float64
		converted bool
	}{
		{"cm to in", HeightUnitSelector, Centimeter, Inch, 180, 70.87, true},
		{"in to cm", HeightUnitSelector, Inch, Centimeter, 70.87, 180.01, true},
		{"kg to lb", WeightUnitSelector, Kilogram, Pound, 80, 176.37, true},
		{"lb to kg", WeightUnitSelector, Pound, Kilogram, 176.37, 80, true},
		{"mL to L", TVAdjustInUnitSelector, Milliliter, Liter, 480, 0.48, true},
		{"L to mL", TVAdjustInUnitSelector, Liter, Milliliter, 0.48, 480, true},
		{"same unit", HeightUnitSelector, Centimeter, Centimeter, 180, 180, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewConversionTracker(DefaultFactors())
			tr.Seed(tt.sel, tt.from)
			out, converted := tr.Change(tt.sel, tt.to, tt.value)
			if converted != tt.converted || out != tt.want {
				t.Errorf("got %v (converted=%v), want %v (converted=%v)", out, converted, tt.want, tt.converted)
			}
			if prev, _ := tr.Previous(tt.sel); prev != tt.to {
				t.Errorf("expected previous %q, got %q", tt.to, prev)
			}
		})
	}
}

func TestConversionTracker_SelectorsIndependent(t *testing.T) {
	tr := NewConversionTracker(DefaultFactors())
	tr.Seed(HeightUnitSelector, Centimeter)
	tr.Seed(WeightUnitSelector, Kilogram)

	tr.Change(HeightUnitSelector, Inch, 180)
	if prev, _ := tr.Previous(WeightUnitSelector); prev != Kilogram {
		t.Errorf("weight selector changed by a height event: %q", prev)
	}
	if out, converted := tr.Change(WeightUnitSelector, Pound, 80); !converted || out != 176.37 {
		t.Errorf("expected 176.37, got %v", out)
	}
}

func TestConversionTracker_CrossFamilyIgnored(t *testing.T) {
	tr := NewConversionTracker(DefaultFactors())
	tr.Seed(HeightUnitSelector, Centimeter)
	out, converted := tr.Change(HeightUnitSelector, Kilogram, 180)
	if converted || out != 180 {
		t.Errorf("expected value kept across families, got %v", out)
	}
}
