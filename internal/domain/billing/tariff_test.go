package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestTariff_Calculate(t *testing.T) {
	tariff := DefaultTariff()

	tests := []struct {
		name          string
		consumption   uint64
		wantSubtotal  int64
		wantTotal     int64
		wantBreakdown []BreakdownLine
	}{
		{
			name:          "zero consumption charges only the base",
			consumption:   0,
			wantSubtotal:  0,
			wantTotal:     5,
			wantBreakdown: []BreakdownLine{},
		},
		{
			name:         "inside first tier",
			consumption:  7,
			wantSubtotal: 14,
			wantTotal:    19,
			wantBreakdown: []BreakdownLine{
				{Units: 7, Rate: dec(2), Amount: dec(14)},
			},
		},
		{
			name:         "first tier ceiling",
			consumption:  10,
			wantSubtotal: 20,
			wantTotal:    25,
			wantBreakdown: []BreakdownLine{
				{Units: 10, Rate: dec(2), Amount: dec(20)},
			},
		},
		{
			name:         "one unit into second tier",
			consumption:  11,
			wantSubtotal: 23,
			wantTotal:    28,
			wantBreakdown: []BreakdownLine{
				{Units: 10, Rate: dec(2), Amount: dec(20)},
				{Units: 1, Rate: dec(3), Amount: dec(3)},
			},
		},
		{
			name:         "fifteen units",
			consumption:  15,
			wantSubtotal: 35,
			wantTotal:    40,
			wantBreakdown: []BreakdownLine{
				{Units: 10, Rate: dec(2), Amount: dec(20)},
				{Units: 5, Rate: dec(3), Amount: dec(15)},
			},
		},
		{
			name:         "second tier ceiling",
			consumption:  50,
			wantSubtotal: 140,
			wantTotal:    145,
			wantBreakdown: []BreakdownLine{
				{Units: 10, Rate: dec(2), Amount: dec(20)},
				{Units: 40, Rate: dec(3), Amount: dec(120)},
			},
		},
		{
			name:         "one unit into open tier",
			consumption:  51,
			wantSubtotal: 144,
			wantTotal:    149,
			wantBreakdown: []BreakdownLine{
				{Units: 10, Rate: dec(2), Amount: dec(20)},
				{Units: 40, Rate: dec(3), Amount: dec(120)},
				{Units: 1, Rate: dec(4), Amount: dec(4)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := tariff.Calculate(tt.consumption)

			assert.Equal(t, tt.consumption, calc.Consumption)
			assert.True(t, dec(tt.wantSubtotal).Equal(calc.Subtotal), "subtotal: got %s", calc.Subtotal)
			assert.True(t, dec(tt.wantTotal).Equal(calc.Total), "total: got %s", calc.Total)
			assert.True(t, dec(5).Equal(calc.BaseCharge))
			require.Len(t, calc.Breakdown, len(tt.wantBreakdown))
			for i, want := range tt.wantBreakdown {
				got := calc.Breakdown[i]
				assert.Equal(t, want.Units, got.Units)
				assert.True(t, want.Rate.Equal(got.Rate), "line %d rate: got %s", i, got.Rate)
				assert.True(t, want.Amount.Equal(got.Amount), "line %d amount: got %s", i, got.Amount)
			}
		})
	}
}

func TestTariff_Calculate_SubtotalMatchesBreakdown(t *testing.T) {
	tariff := DefaultTariff()
	for _, consumption := range []uint64{0, 1, 9, 10, 11, 49, 50, 51, 1000, 123456} {
		calc := tariff.Calculate(consumption)

		sum := decimal.Zero
		var units uint64
		for _, line := range calc.Breakdown {
			assert.Greater(t, line.Units, uint64(0))
			sum = sum.Add(line.Amount)
			units += line.Units
		}
		assert.Equal(t, consumption, units)
		assert.True(t, sum.Equal(calc.Subtotal))
		assert.True(t, calc.Subtotal.Add(calc.BaseCharge).Equal(calc.Total))
	}
}

func TestTariff_Calculate_IsMonotonic(t *testing.T) {
	tariff := DefaultTariff()
	previous := tariff.Calculate(0).Total
	for c := uint64(1); c <= 120; c++ {
		total := tariff.Calculate(c).Total
		assert.True(t, total.GreaterThanOrEqual(previous), "consumption %d", c)
		previous = total
	}
}

func TestCalculation_ReferenceRate(t *testing.T) {
	tariff := DefaultTariff()

	t.Run("first tier rate even when higher tiers are used", func(t *testing.T) {
		calc := tariff.Calculate(60)
		assert.True(t, dec(2).Equal(calc.ReferenceRate()))
	})

	t.Run("zero when nothing consumed", func(t *testing.T) {
		calc := tariff.Calculate(0)
		assert.True(t, calc.ReferenceRate().IsZero())
	})
}

func TestNewTariff(t *testing.T) {
	t.Run("accepts valid tiers", func(t *testing.T) {
		tiers := []Tier{
			{Ceiling: 20, Rate: decimal.RequireFromString("1.50")},
			{Ceiling: Unbounded, Rate: decimal.RequireFromString("2.25")},
		}
		tariff, err := NewTariff(tiers, dec(3))

		require.NoError(t, err)
		assert.Len(t, tariff.Tiers, 2)

		calc := tariff.Calculate(30)
		assert.True(t, decimal.RequireFromString("55.50").Equal(calc.Total), "got %s", calc.Total)
	})

	t.Run("copies the tier slice", func(t *testing.T) {
		tiers := []Tier{{Ceiling: Unbounded, Rate: dec(1)}}
		tariff, err := NewTariff(tiers, dec(0))
		require.NoError(t, err)

		tiers[0].Rate = dec(99)
		assert.True(t, dec(1).Equal(tariff.Tiers[0].Rate))
	})

	tests := []struct {
		name       string
		tiers      []Tier
		baseCharge decimal.Decimal
		wantMsg    string
	}{
		{"no tiers", nil, dec(5), "at least one tier"},
		{"negative base charge", []Tier{{Ceiling: Unbounded, Rate: dec(1)}}, dec(-1), "Base charge cannot be negative"},
		{"negative rate", []Tier{{Ceiling: Unbounded, Rate: dec(-1)}}, dec(0), "negative rate"},
		{"zero ceiling", []Tier{{Ceiling: 0, Rate: dec(1)}, {Ceiling: Unbounded, Rate: dec(2)}}, dec(0), "ceiling must be greater"},
		{"descending ceilings", []Tier{{Ceiling: 50, Rate: dec(1)}, {Ceiling: 10, Rate: dec(2)}, {Ceiling: Unbounded, Rate: dec(3)}}, dec(0), "ceiling must be greater"},
		{"bounded last tier", []Tier{{Ceiling: 10, Rate: dec(1)}}, dec(0), "Last tier must be unbounded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTariff(tt.tiers, tt.baseCharge)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
