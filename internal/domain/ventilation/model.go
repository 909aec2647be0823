package ventilation

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownUnit      = errors.New("unknown unit")
	ErrUnknownSex       = errors.New("unknown sex")
	ErrUnknownSelection = errors.New("unknown tidal volume selection")
	ErrUnknownField     = errors.New("unknown field")
	ErrUnknownSelector  = errors.New("unknown unit selector")
)

// Sex drives the IBW base and the minute ventilation factor.
type Sex string

const (
	Male   Sex = "M"
	Female Sex = "F"
)

func ParseSex(s string) (Sex, error) {
	switch Sex(s) {
	case Male, Female:
		return Sex(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSex, s)
}

// Unit is a measurement unit as selected on the form.
type Unit string

const (
	Centimeter Unit = "cm"
	Inch       Unit = "in"
	Kilogram   Unit = "kg"
	Pound      Unit = "lb"
	Milliliter Unit = "mL"
	Liter      Unit = "L"
)

// Family groups units that convert into each other.
type Family string

const (
	FamilyLength Family = "length"
	FamilyMass   Family = "mass"
	FamilyVolume Family = "volume"
)

func (u Unit) Family() Family {
	switch u {
	case Centimeter, Inch:
		return FamilyLength
	case Kilogram, Pound:
		return FamilyMass
	case Milliliter, Liter:
		return FamilyVolume
	}
	return ""
}

// ParseUnit accepts a unit string and checks it belongs to the wanted family.
func ParseUnit(s string, family Family) (Unit, error) {
	u := Unit(s)
	if u.Family() == "" || u.Family() != family {
		return "", fmt.Errorf("%w: %q is not a %s unit", ErrUnknownUnit, s, family)
	}
	return u, nil
}

// Measurement is a raw value tagged with the unit it was entered in.
type Measurement struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// PatientInputs is the root of the primary pipeline.
type PatientInputs struct {
	Height Measurement `json:"height"`
	Weight Measurement `json:"weight"`
	Sex    Sex         `json:"sex"`
}

// TidalVolumeOption identifies which tidal volume feeds the RR stage.
type TidalVolumeOption string

const (
	Option6 TidalVolumeOption = "tvoption1"
	Option7 TidalVolumeOption = "tvoption2"
	Option8 TidalVolumeOption = "tvoption3"
	Custom  TidalVolumeOption = "tvoption4"
)

func ParseTidalVolumeOption(s string) (TidalVolumeOption, error) {
	switch TidalVolumeOption(s) {
	case Option6, Option7, Option8, Custom:
		return TidalVolumeOption(s), nil
	case "":
		return "", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSelection, s)
}

// TidalVolumeSelection is the user's choice. An empty Option means nothing is
// selected.
type TidalVolumeSelection struct {
	Option   TidalVolumeOption `json:"option"`
	CustomML float64           `json:"custom_ml"`
}

// TidalVolumeTable holds the per-kg IBW volumes in mL. Valid is false when the
// inputs were not usable; the values are then zero and must not be shown.
type TidalVolumeTable struct {
	Valid    bool    `json:"valid"`
	ML6PerKG float64 `json:"tv_6mlkg"`
	ML7PerKG float64 `json:"tv_7mlkg"`
	ML8PerKG float64 `json:"tv_8mlkg"`
}

// Warning codes attached to derived quantities.
const (
	WarnShortStatureIBW = "ibw_short_stature_extrapolated"
)

// DerivedQuantities is the full output of one recompute, in canonical units.
type DerivedQuantities struct {
	HeightCM        float64          `json:"height_cm"`
	HeightIN        float64          `json:"height_in"`
	WeightKG        float64          `json:"weight_kg"`
	IBWKG           float64          `json:"ibw_kg"`
	TidalVolumes    TidalVolumeTable `json:"tidal_volumes"`
	SelectedTVML    float64          `json:"selected_tv_ml"`
	BSAM2           float64          `json:"bsa_m2"`
	PredictedMVLMin float64          `json:"predicted_mv_lmin"`
	PredictedRRBPM  float64          `json:"predicted_rr_bpm"`
	Warnings        []string         `json:"warnings,omitempty"`
}

// RRAdjustment are the inputs of the respiratory rate adjustment.
type RRAdjustment struct {
	CurrentRR    float64 `json:"current_rr"`
	CurrentPaCO2 float64 `json:"current_paco2"`
	DesiredPaCO2 float64 `json:"desired_paco2"`
}

// TVAdjustment are the inputs of the tidal volume adjustment. InputUnit and
// OutputUnit are independent selectors.
type TVAdjustment struct {
	CurrentTV    float64 `json:"current_tv"`
	InputUnit    Unit    `json:"input_unit"`
	CurrentPaCO2 float64 `json:"current_paco2"`
	DesiredPaCO2 float64 `json:"desired_paco2"`
	OutputUnit   Unit    `json:"output_unit"`
}

// TVAdjustmentResult reports the adjusted volume in the requested unit.
type TVAdjustmentResult struct {
	AdjustedTV float64 `json:"adjusted_tv"`
	Unit       Unit    `json:"unit"`
}
