package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAmountInRange(t *testing.T) {
	cases := map[string]bool{
		"0":             true,
		"0.01":          true,
		"60.00":         true,
		"9999999999.99": true,
		"10000000000":   false,
		"1e10":          false,
		"1e400":         false,
		"1e5000000":     false,
		"-0.01":         false,
		"1e-20":         false,
	}
	for raw, want := range cases {
		assert.Equal(t, want, AmountInRange(decimal.RequireFromString(raw)), raw)
	}
}
