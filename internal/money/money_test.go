package money

import (
	"math/big"
	"testing"

	"github.com/blues/tcf/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToFixedPoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"1", "1000000000000000000"},
		{"2.5", "2500000000000000000"},
		{"0.000000000000000001", "1"},
		{" 10 ", "10000000000000000000"},
		{"123456789.123456789123456789", "123456789123456789123456789"},
		{".5", "500000000000000000"},
		{"1.", "1000000000000000000"},
		{"0.", "0"},
	}

	for _, tt := range tests {
		got, err := ToFixedPoint(tt.in, Decimals)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.String(), tt.in)
	}
}

func TestToFixedPointRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{
		"",
		"   ",
		"abc",
		"-1",
		"1e18",
		"1.2.3",
		".",
		"..5",
		"1..",
		"0.0000000000000000001",
	} {
		_, err := ToFixedPoint(in, Decimals)
		assert.ErrorIs(t, err, errs.ErrInvalidAmount, "input %q", in)
	}
}

func TestToFixedPointCustomDecimals(t *testing.T) {
	got, err := ToFixedPoint("1.25", 6)
	require.NoError(t, err)
	assert.Equal(t, "1250000", got.String())

	_, err = ToFixedPoint("1.1234567", 6)
	assert.ErrorIs(t, err, errs.ErrInvalidAmount)
}

func TestFromFixedPoint(t *testing.T) {
	v, _ := new(big.Int).SetString("2500000000000000000", 10)
	assert.Equal(t, "2.5", FromFixedPoint(v, Decimals))
	assert.Equal(t, "0", FromFixedPoint(big.NewInt(0), Decimals))
	assert.Equal(t, "0", FromFixedPoint(nil, Decimals))
	assert.Equal(t, "0.000000000000000001", FromFixedPoint(big.NewInt(1), Decimals))
	assert.Equal(t, "1.25", FromFixedPoint(big.NewInt(1250000), 6))
}

func TestRoundTrip(t *testing.T) {
	tests := map[string]string{
		"1":                    "1",
		"2.5":                  "2.5",
		"2.50":                 "2.5",
		"007":                  "7",
		"0.1":                  "0.1",
		"0.000000000000000001": "0.000000000000000001",
		"99999999999999999999.999999999999999999": "99999999999999999999.999999999999999999",
	}

	for in, want := range tests {
		fp, err := ParseUnits(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, FormatUnits(fp), in)
	}
}

func TestRequiredPayment(t *testing.T) {
	payment, err := RequiredPayment("3", "2")
	require.NoError(t, err)
	assert.Equal(t, "6000000000000000000", payment.String())
	assert.Equal(t, "6", FormatUnits(payment))

	// 0.1 * 0.2 在浮点下会得到 0.020000000000000004
	payment, err = RequiredPayment("0.1", "0.2")
	require.NoError(t, err)
	assert.Equal(t, "0.02", FormatUnits(payment))

	// 小于最小单位的部分向下取整
	payment, err = RequiredPayment("0.000000000000000001", "0.5")
	require.NoError(t, err)
	assert.Equal(t, "0", payment.String())

	_, err = RequiredPayment("x", "1")
	assert.ErrorIs(t, err, errs.ErrInvalidAmount)
	_, err = RequiredPayment("1", "")
	assert.ErrorIs(t, err, errs.ErrInvalidAmount)
}

func TestParseFixedPointString(t *testing.T) {
	v, err := ParseFixedPointString("1000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1", FormatUnits(v))

	_, err = ParseFixedPointString("-1")
	assert.ErrorIs(t, err, errs.ErrInvalidAmount)
	_, err = ParseFixedPointString("1.5")
	assert.ErrorIs(t, err, errs.ErrInvalidAmount)
}

func TestSubAndIsZero(t *testing.T) {
	diff, err := Sub("10", "2.5")
	require.NoError(t, err)
	assert.Equal(t, "7.5", FormatUnits(diff))

	assert.True(t, IsZero("0"))
	assert.True(t, IsZero("0.000"))
	assert.True(t, IsZero("garbage"))
	assert.False(t, IsZero("0.1"))
}
