package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrency_Valid(t *testing.T) {
	assert.True(t, COP.Valid())
	assert.True(t, Currency("EUR").Valid())
	assert.False(t, Currency("").Valid())
	assert.False(t, Currency("cop").Valid())
	assert.False(t, Currency("PESO").Valid())
}

func TestNewMoney(t *testing.T) {
	t.Run("rounds half away from zero", func(t *testing.T) {
		m, err := NewMoney(decimal.RequireFromString("10.005"), COP)
		require.NoError(t, err)
		assert.Equal(t, "10.01", m.Amount().StringFixed(2))

		m, err = NewMoney(decimal.RequireFromString("-10.005"), COP)
		require.NoError(t, err)
		assert.Equal(t, "-10.01", m.Amount().StringFixed(2))
		assert.True(t, m.IsNegative())
	})

	t.Run("rejects malformed currency", func(t *testing.T) {
		_, err := NewMoney(decimal.NewFromInt(100), "")
		assert.Error(t, err)
		_, err = NewMoney(decimal.NewFromInt(100), "usd")
		assert.Error(t, err)
	})
}

func TestMoney_Arithmetic(t *testing.T) {
	laptop := NewMoneyCOP(decimal.RequireFromString("2000"))
	mice := NewMoneyCOP(decimal.RequireFromString("25.50")).MultiplyByInt(3)

	subtotal, err := laptop.Add(mice)
	require.NoError(t, err)
	assert.Equal(t, "2076.50", subtotal.Amount().StringFixed(2))

	net, err := subtotal.Subtract(NewMoneyCOP(decimal.NewFromInt(50)))
	require.NoError(t, err)
	assert.Equal(t, "2026.50", net.Amount().StringFixed(2))

	assert.True(t, net.MustAdd(ZeroCOP()).Equals(net))
	assert.Equal(t, "2026.50 COP", net.String())

	t.Run("currency mismatch", func(t *testing.T) {
		usd, err := NewMoney(decimal.NewFromInt(1), USD)
		require.NoError(t, err)
		_, err = laptop.Add(usd)
		assert.ErrorIs(t, err, ErrCurrencyMismatch)
		_, err = laptop.Subtract(usd)
		assert.ErrorIs(t, err, ErrCurrencyMismatch)
		assert.Panics(t, func() { laptop.MustSubtract(usd) })
		assert.False(t, Zero(USD).Equals(ZeroCOP()))
	})
}

func TestMoney_JSON(t *testing.T) {
	data, err := json.Marshal(NewMoneyCOP(decimal.NewFromInt(1500)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"1500.00","currency":"COP"}`, string(data))

	var decoded Money
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"12.345"}`), &decoded))
	assert.Equal(t, COP, decoded.Currency())
	assert.Equal(t, "12.35", decoded.Amount().StringFixed(2))

	assert.Error(t, json.Unmarshal([]byte(`{"amount":"abc","currency":"COP"}`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`{"amount":"1","currency":"pesos"}`), &decoded))
}
