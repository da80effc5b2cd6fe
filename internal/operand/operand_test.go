package operand

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/specialistvlad/opcalc/internal/calcerr"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "5", want: "5"},
		{in: "-2.5", want: "-2.5"},
		{in: " 10 ", want: "10"},
		{in: "1e3", want: "1000"},
		{in: "0.1", want: "0.1"},
		{in: "a", wantErr: true},
		{in: "", wantErr: true},
		{in: "1..2", wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, calcerr.ErrInvalidOperand)
				return
			}
			require.NoError(t, err)
			require.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s", got)
		})
	}
}

func TestParseOptional(t *testing.T) {
	t.Parallel()

	absent, err := ParseOptional("")
	require.NoError(t, err)
	require.False(t, absent.Valid)

	present, err := ParseOptional("4")
	require.NoError(t, err)
	require.True(t, present.Valid)
	require.True(t, present.Decimal.Equal(decimal.NewFromInt(4)))

	_, err = ParseOptional("four")
	require.ErrorIs(t, err, calcerr.ErrInvalidOperand)
}
