package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     Amount
		wantZero bool
	}{
		{"drops string", `"1500000"`, Amount{Value: "1500000"}, false},
		{"zero drops", `"0"`, Amount{Value: "0"}, true},
		{"bare number", `20`, Amount{Value: "20"}, false},
		{"null", `null`, Amount{}, true},
		{
			name:  "issued currency",
			input: `{"currency":"USD","issuer":"rIssuer","value":"12.5"}`,
			want:  Amount{Currency: "USD", Issuer: "rIssuer", Value: "12.5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Amount
			require.NoError(t, json.Unmarshal([]byte(tt.input), &got))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantZero, got.IsZero())
		})
	}
}

func TestAmount_XRPAndThreshold(t *testing.T) {
	a := NewDrops("2500000")
	assert.True(t, a.XRP().Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, "2.5 XRP", a.String())

	assert.True(t, NewDrops("20").GreaterThan(decimal.NewFromInt(15)))
	assert.False(t, NewDrops("15").GreaterThan(decimal.NewFromInt(15)))
	assert.False(t, NewDrops("garbage").GreaterThan(decimal.Zero))
}

func TestAmount_MarshalRoundTripShape(t *testing.T) {
	b, err := json.Marshal(NewDrops("10"))
	require.NoError(t, err)
	assert.JSONEq(t, `"10"`, string(b))

	b, err = json.Marshal(Amount{Currency: "USD", Issuer: "rI", Value: "1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"currency":"USD","issuer":"rI","value":"1"}`, string(b))
}
