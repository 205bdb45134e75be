package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

const dropsPerXRP = 1_000_000

// Amount is a ledger amount: either native drops encoded as a string, or an
// issued currency object {currency, issuer, value}.
type Amount struct {
	Currency string `json:"currency,omitempty"`
	Issuer   string `json:"issuer,omitempty"`
	Value    string `json:"value"`
}

// NewDrops returns a native amount
func NewDrops(drops string) Amount {
	return Amount{Value: drops}
}

// UnmarshalJSON accepts a drops string, a bare number, an issued currency
// object, or null
func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = Amount{}
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount{Value: s}
	case '{':
		type issued Amount
		var v issued
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*a = Amount(v)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("invalid amount %s: %w", string(b), err)
		}
		*a = Amount{Value: n.String()}
	}
	return nil
}

// MarshalJSON writes native amounts as drop strings
func (a Amount) MarshalJSON() ([]byte, error) {
	if a.IsNative() {
		return json.Marshal(a.Value)
	}
	type issued Amount
	return json.Marshal(issued(a))
}

// IsNative reports whether the amount is denominated in drops
func (a Amount) IsNative() bool {
	return a.Currency == "" || a.Currency == "XRP"
}

// IsEmpty reports whether no amount was given at all
func (a Amount) IsEmpty() bool {
	return a.Value == ""
}

// Decimal parses the value; unparseable values are zero
func (a Amount) Decimal() decimal.Decimal {
	d, err := decimal.NewFromString(a.Value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// IsZero reports whether the amount is zero or missing
func (a Amount) IsZero() bool {
	return a.Decimal().IsZero()
}

// GreaterThan compares the numeric value against a threshold
func (a Amount) GreaterThan(threshold decimal.Decimal) bool {
	return a.Decimal().GreaterThan(threshold)
}

// XRP converts a native amount from drops to XRP
func (a Amount) XRP() decimal.Decimal {
	if !a.IsNative() {
		return a.Decimal()
	}
	return a.Decimal().Div(decimal.NewFromInt(dropsPerXRP))
}

// String formats the amount for display
func (a Amount) String() string {
	if a.IsEmpty() {
		return ""
	}
	if a.IsNative() {
		return a.XRP().String() + " XRP"
	}
	return a.Decimal().String() + " " + a.Currency
}
