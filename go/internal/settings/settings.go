// Package settings declares the user-facing settings of the focus timer and
// reads them with their defaults applied.
package settings

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

const (
	TargetMultiplierID   = "target-multiplier"
	ShowInQueueToolbarID = "show-in-queue-toolbar"

	DefaultTargetMultiplier = 1.2
	DefaultShowTimer        = true
)

// Kind is the value type of a setting.
type Kind string

const (
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
)

// Definition describes a setting registered with the host.
type Definition struct {
	ID           string `json:"id" yaml:"id"`
	Title        string `json:"title" yaml:"title"`
	Description  string `json:"description" yaml:"description"`
	Kind         Kind   `json:"kind" yaml:"kind"`
	DefaultValue any    `json:"defaultValue" yaml:"default_value"`
}

// Definitions returns the settings the plugin registers on activation.
func Definitions() []Definition {
	return []Definition{
		{
			ID:    TargetMultiplierID,
			Title: "Target Time Multiplier",
			Description: "Multiply your average time by this factor to set the target time " +
				"(e.g., 1.2 = 20% longer than average)",
			Kind:         KindNumber,
			DefaultValue: DefaultTargetMultiplier,
		},
		{
			ID:           ShowInQueueToolbarID,
			Title:        "Show Timer in Queue Toolbar",
			Description:  "Display the timer in the flashcard queue toolbar",
			Kind:         KindBoolean,
			DefaultValue: DefaultShowTimer,
		},
	}
}

// Store resolves setting values. A nil value with a nil error means unset.
type Store interface {
	GetSetting(ctx context.Context, id string) (any, error)
}

// Multiplier reads the target multiplier. Unset, non-numeric and
// non-positive values fall back to DefaultTargetMultiplier. On error the
// default is returned alongside the error.
func Multiplier(ctx context.Context, s Store) (float64, error) {
	v, err := s.GetSetting(ctx, TargetMultiplierID)
	if err != nil {
		return DefaultTargetMultiplier, fmt.Errorf("get %s: %w", TargetMultiplierID, err)
	}

	f, ok := toFloat(v)
	if !ok || !(f > 0) || math.IsInf(f, 0) {
		return DefaultTargetMultiplier, nil
	}
	return f, nil
}

// ShowTimer reads the visibility toggle. Unset and non-boolean values fall
// back to DefaultShowTimer. On error the default is returned alongside the error.
func ShowTimer(ctx context.Context, s Store) (bool, error) {
	v, err := s.GetSetting(ctx, ShowInQueueToolbarID)
	if err != nil {
		return DefaultShowTimer, fmt.Errorf("get %s: %w", ShowInQueueToolbarID, err)
	}

	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed, nil
		}
	}
	return DefaultShowTimer, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Values is a fixed in-memory Store.
type Values map[string]any

// GetSetting implements Store.
func (v Values) GetSetting(_ context.Context, id string) (any, error) {
	return v[id], nil
}
