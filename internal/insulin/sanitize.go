package insulin

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Defaults applied when a limit is absent from the input.
const (
	DefaultMinDose = 0.0
	DefaultMaxDose = 25.0
	DefaultRoundTo = 0.5
)

// Input is the raw, unvalidated request. Fields hold whatever the caller
// decoded: numbers, numeric strings, json.Number, pointers or nil.
type Input struct {
	TotalCarbs       any `json:"total_carbs"`
	CarbRatio        any `json:"carb_ratio"`
	CurrentGlucose   any `json:"current_glucose,omitempty"`
	TargetBG         any `json:"target_bg,omitempty"`
	TargetRange      any `json:"target_range,omitempty"`
	CorrectionFactor any `json:"correction_factor,omitempty"`
	IOB              any `json:"iob,omitempty"`
	MinDose          any `json:"min_dose,omitempty"`
	MaxDose          any `json:"max_dose,omitempty"`
	RoundTo          any `json:"round_to,omitempty"`
}

// Range is a closed glucose band in mg/dL.
type Range struct {
	Low  float64
	High float64
}

// Midpoint returns the center of the band.
func (r Range) Midpoint() float64 {
	return (r.Low + r.High) / 2
}

// Params is Input after sanitization. Optional values are nil when absent
// or unparseable.
type Params struct {
	TotalCarbs       float64
	CarbRatio        float64
	CurrentGlucose   *float64
	TargetBG         *float64
	TargetRange      *Range
	CorrectionFactor *float64
	IOB              float64
	MinDose          float64
	MaxDose          float64
	RoundTo          float64
}

// Sanitize is the single place where raw input becomes numbers.
//
// Policy: carbs, carb ratio and IOB that fail conversion become 0, and a
// negative IOB is raised to 0 so it cannot add insulin. Optional
// glucose values and the correction factor that fail conversion are treated
// as absent, which disables correction. Absent limits take their defaults,
// malformed limits become 0, so a broken max dose yields a zero dose rather
// than an unbounded one. A negative max dose is raised to 0. Sanitize never
// fails.
func Sanitize(in Input) Params {
	p := Params{
		TotalCarbs:       orZero(in.TotalCarbs),
		CarbRatio:        orZero(in.CarbRatio),
		CurrentGlucose:   optional(in.CurrentGlucose),
		TargetBG:         optional(in.TargetBG),
		TargetRange:      parseRange(in.TargetRange),
		CorrectionFactor: optional(in.CorrectionFactor),
		IOB:              math.Max(orZero(in.IOB), 0),
		MinDose:          limit(in.MinDose, DefaultMinDose),
		MaxDose:          math.Max(limit(in.MaxDose, DefaultMaxDose), 0),
		RoundTo:          limit(in.RoundTo, DefaultRoundTo),
	}
	return p
}

// Number converts v to a finite float64.
func Number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case *float64:
		if n == nil {
			return 0, false
		}
		f = *n
	case *int:
		if n == nil {
			return 0, false
		}
		f = float64(*n)
	case *string:
		if n == nil {
			return 0, false
		}
		return Number(*n)
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func orZero(v any) float64 {
	f, _ := Number(v)
	return f
}

func optional(v any) *float64 {
	f, ok := Number(v)
	if !ok {
		return nil
	}
	return &f
}

func limit(v any, def float64) float64 {
	if isAbsent(v) {
		return def
	}
	return orZero(v)
}

func isAbsent(v any) bool {
	switch n := v.(type) {
	case nil:
		return true
	case *float64:
		return n == nil
	case *int:
		return n == nil
	case *string:
		return n == nil
	}
	return false
}

// parseRange accepts a two element list of numbers in any form Number does.
func parseRange(v any) *Range {
	var items []any
	switch r := v.(type) {
	case nil:
		return nil
	case []any:
		items = r
	case []float64:
		for _, x := range r {
			items = append(items, x)
		}
	case [2]float64:
		items = []any{r[0], r[1]}
	case []string:
		for _, x := range r {
			items = append(items, x)
		}
	case *Range:
		if r == nil {
			return nil
		}
		c := *r
		return &c
	case Range:
		return &r
	default:
		return nil
	}

	if len(items) < 2 {
		return nil
	}
	low, okLow := Number(items[0])
	high, okHigh := Number(items[1])
	if !okLow || !okHigh {
		return nil
	}
	return &Range{Low: low, High: high}
}
