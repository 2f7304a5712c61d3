package shared

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundMoneyHalfAwayFromZero(t *testing.T) {
	require.Equal(t, "10.13", RoundMoney(Dec("10.125")).StringFixed(2))
	require.Equal(t, "-10.13", RoundMoney(Dec("-10.125")).StringFixed(2))
	require.Equal(t, "0.33", RoundMoney(Dec("1").Div(Dec("3"))).StringFixed(2))
}

func TestRoundQtyKeepsFourPlaces(t *testing.T) {
	require.Equal(t, "1.2346", RoundQty(Dec("1.23455")).StringFixed(4))
}

func TestFitsPrecision(t *testing.T) {
	require.True(t, FitsMoney(Dec("12.30")))
	require.True(t, FitsMoney(Dec("7")))
	require.False(t, FitsMoney(Dec("0.004")))
	require.True(t, FitsQty(Dec("1.2345")))
	require.False(t, FitsQty(Dec("0.00001")))
	require.False(t, FitsQty(Dec("-2.00005")))
}

func TestSumMoneyRoundsOnce(t *testing.T) {
	// Thirds only reach one after the final rounding.
	third := Dec("1").Div(Dec("3"))
	require.True(t, SumMoney(third, third, third).Equal(Dec("1")))
}

func TestMoneyMarshalsAsNumber(t *testing.T) {
	raw, err := json.Marshal(struct {
		Total Money `json:"total"`
	}{Total: Dec("1000.50")})
	require.NoError(t, err)
	require.JSONEq(t, `{"total":1000.5}`, string(raw))
}
