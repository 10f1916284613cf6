package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	m, err := NewMoney(decimal.NewFromInt(40), KES)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(40).Equal(m.Amount()))
	assert.Equal(t, KES, m.Currency())

	_, err = NewMoney(decimal.NewFromInt(1), "")
	assert.Error(t, err)
}

func TestNewMoneyFrom_DefaultsCurrency(t *testing.T) {
	m := NewMoneyFrom(decimal.NewFromInt(5), "")
	assert.Equal(t, DefaultCurrency, m.Currency())
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" ngn ")
	require.NoError(t, err)
	assert.Equal(t, NGN, c)

	_, err = ParseCurrency("dollars")
	assert.Error(t, err)
}

func TestMoneyArithmetic(t *testing.T) {
	a := NewMoneyFrom(decimal.RequireFromString("25.50"), USD)
	b := NewMoneyFrom(decimal.RequireFromString("14.50"), USD)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Equals(NewMoneyFrom(decimal.NewFromInt(40), USD)))

	diff, err := sum.Subtract(a)
	require.NoError(t, err)
	assert.True(t, diff.Equals(b))

	_, err = a.Add(Zero(EUR))
	assert.Error(t, err)
	_, err = a.Subtract(Zero(EUR))
	assert.Error(t, err)
	assert.True(t, Zero(USD).IsZero())
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "40.00 USD", NewMoneyFrom(decimal.NewFromInt(40), USD).String())
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(NewMoneyFrom(decimal.RequireFromString("12.5"), GHS))
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"12.50","currency":"GHS"}`, string(data))
}
