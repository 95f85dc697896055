package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountKind tags how an Amount's value must be read.
type AmountKind string

const (
	// KindMagnitude is a strictly positive value whose direction comes from
	// the transaction type.
	KindMagnitude AmountKind = "magnitude"
	// KindDelta is a signed value applied as-is. Only adjustments use it.
	KindDelta AmountKind = "delta"
)

// Amount is a tagged value so that a stored magnitude is never mistaken for
// a signed delta, or the other way around.
type Amount struct {
	Kind  AmountKind      `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Magnitude builds an unsigned amount.
func Magnitude(v decimal.Decimal) Amount {
	return Amount{Kind: KindMagnitude, Value: v}
}

// Delta builds a signed amount.
func Delta(v decimal.Decimal) Amount {
	return Amount{Kind: KindDelta, Value: v}
}

// IsDelta reports whether the amount is a signed delta.
func (a Amount) IsDelta() bool { return a.Kind == KindDelta }

func (a Amount) String() string {
	if a.IsDelta() && a.Value.IsPositive() {
		return "+" + a.Value.String()
	}
	return a.Value.String()
}

// UnmarshalJSON accepts the tagged form and, for older payloads, a bare
// number which is read as a magnitude.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var tagged struct {
		Kind  AmountKind      `json:"kind"`
		Value decimal.Decimal `json:"value"`
	}
	if len(data) > 0 && data[0] == '{' {
		if err := json.Unmarshal(data, &tagged); err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		switch tagged.Kind {
		case KindMagnitude, KindDelta:
		default:
			return fmt.Errorf("amount: unknown kind %q", tagged.Kind)
		}
		a.Kind, a.Value = tagged.Kind, tagged.Value
		return nil
	}
	var v decimal.Decimal
	if err := v.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = Magnitude(v)
	return nil
}
