package domain

import (
	"fmt"
	"strings"
)

// Operator is a threshold comparison.
type Operator string

const (
	OpGTE Operator = "gte"
	OpLTE Operator = "lte"
	OpEQ  Operator = "eq"
)

// ParseOperator normalizes an operator spelling. Both the mnemonic form
// ("gte") and the symbolic form (">=") are accepted; empty defaults to gte.
func ParseOperator(raw string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "gte", ">=":
		return OpGTE, nil
	case "lte", "<=":
		return OpLTE, nil
	case "eq", "=", "==":
		return OpEQ, nil
	default:
		return "", fmt.Errorf("unknown threshold operator %q", raw)
	}
}

// ThresholdPolicy decides whether an observed forecast value triggers an
// alert. Bypass forwards every well-formed observation regardless of the
// comparison; it exists for demos and must always be an explicit, visible
// configuration choice.
type ThresholdPolicy struct {
	Field    string
	Operator Operator
	Value    float64
	Bypass   bool
}

// Allows applies the policy to an observed value.
func (p ThresholdPolicy) Allows(observed float64) bool {
	if p.Bypass {
		return true
	}
	switch p.Operator {
	case OpGTE:
		return observed >= p.Value
	case OpLTE:
		return observed <= p.Value
	case OpEQ:
		return observed == p.Value
	default:
		return false
	}
}

// DailyForecast is one day of provider output. Values holds the numeric
// fields of the forecast keyed by provider field name.
type DailyForecast struct {
	Date   string
	Values map[string]float64
}

// Field resolves a configured threshold field against the forecast values.
// The bare name is tried first, then the provider's "<name>Max" daily
// aggregate, so the default field "temperature" finds "temperatureMax".
func (f DailyForecast) Field(name string) (float64, bool) {
	if v, ok := f.Values[name]; ok {
		return v, true
	}
	v, ok := f.Values[name+"Max"]
	return v, ok
}
