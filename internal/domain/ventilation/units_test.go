package ventilation

import (
	"errors"
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	f := DefaultFactors()

	cm, in := f.NormalizeHeight(Measurement{Value: 72, Unit: Inch})
	if !approx(cm, 182.88) || in != 72 {
		t.Errorf("72 in: got %v cm / %v in", cm, in)
	}
	cm, in = f.NormalizeHeight(Measurement{Value: 254, Unit: Centimeter})
	if cm != 254 || !approx(in, 100) {
		t.Errorf("254 cm: got %v cm / %v in", cm, in)
	}
	cm, in = f.NormalizeHeight(Measurement{Value: -3, Unit: Inch})
	if !approx(cm, -7.62) || in != -3 {
		t.Errorf("negative values pass through: got %v / %v", cm, in)
	}

	if kg := f.NormalizeWeight(Measurement{Value: 100, Unit: Pound}); !approx(kg, 45.3592) {
		t.Errorf("100 lb: got %v kg", kg)
	}
	if kg := f.NormalizeWeight(Measurement{Value: 70, Unit: Kilogram}); kg != 70 {
		t.Errorf("70 kg: got %v", kg)
	}

	if l := f.NormalizeVolume(Measurement{Value: 450, Unit: Milliliter}); !approx(l, 0.45) {
		t.Errorf("450 mL: got %v L", l)
	}
	if l := f.NormalizeVolume(Measurement{Value: 0.45, Unit: Liter}); l != 0.45 {
		t.Errorf("0.45 L: got %v", l)
	}
}

func TestConvert(t *testing.T) {
	f := DefaultFactors()
	tests := []struct {
		value    float64
		from, to Unit
		want     float64
	}{
		{1, Inch, Centimeter, 2.54},
		{2.54, Centimeter, Inch, 1},
		{1, Pound, Kilogram, 0.453592},
		{0.453592, Kilogram, Pound, 1},
		{1, Liter, Milliliter, 1000},
		{480, Milliliter, Liter, 0.48},
		{180, Centimeter, Centimeter, 180},
	}
	for _, tt := range tests {
		got, err := f.Convert(tt.value, tt.from, tt.to)
		if err != nil {
			t.Fatalf("Convert(%v, %s, %s): %v", tt.value, tt.from, tt.to, err)
		}
		if !approx(got, tt.want) {
			t.Errorf("Convert(%v, %s, %s) = %v, want %v", tt.value, tt.from, tt.to, got, tt.want)
		}
	}
}

func TestConvert_Errors(t *testing.T) {
	f := DefaultFactors()
	if _, err := f.Convert(1, Centimeter, Kilogram); !errors.Is(err, ErrUnknownUnit) {
		t.Errorf("expected ErrUnknownUnit across families, got %v", err)
	}
	if _, err := f.Convert(1, Unit("ft"), Centimeter); !errors.Is(err, ErrUnknownUnit) {
		t.Errorf("expected ErrUnknownUnit for unknown unit, got %v", err)
	}
}

func TestConvert_RoundTripWithinTolerance(t *testing.T) {
	f := DefaultFactors()
	pairs := [][2]Unit{{Centimeter, Inch}, {Inch, Centimeter}, {Kilogram, Pound}, {Pound, Kilogram}}
	for _, p := range pairs {
		for v := 0.0; v <= 300; v += 0.37 {
			start := Round2(v)
			there, _ := f.Convert(start, p[0], p[1])
			back, _ := f.Convert(Round2(there), p[1], p[0])
			if diff := math.Abs(Round2(back) - start); diff > 0.01+1e-9 {
				t.Fatalf("%v %s->%s->%s drifted by %v", start, p[0], p[1], p[0], diff)
			}
		}
	}
}

func TestParseUnit(t *testing.T) {
	if u, err := ParseUnit("in", FamilyLength); err != nil || u != Inch {
		t.Errorf("ParseUnit(in) = %q, %v", u, err)
	}
	if _, err := ParseUnit("kg", FamilyLength); !errors.Is(err, ErrUnknownUnit) {
		t.Errorf("expected ErrUnknownUnit for kg as length, got %v", err)
	}
	if _, err := ParseUnit("ml", FamilyVolume); err == nil {
		t.Error("expected unit names to be case sensitive")
	}
}
