package billing

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/waterbill/backend/internal/domain/shared"
)

// Unbounded marks the ceiling of the final, open-ended tier
const Unbounded uint64 = math.MaxUint64

// Tier is one consumption band. Units above the previous tier's ceiling and up
// to Ceiling are charged at Rate.
type Tier struct {
	Ceiling uint64
	Rate    decimal.Decimal
}

// IsUnbounded returns true if the tier has no upper ceiling
func (t Tier) IsUnbounded() bool {
	return t.Ceiling == Unbounded
}

// Tariff prices consumption against ordered tiers plus a fixed base charge
type Tariff struct {
	Tiers      []Tier
	BaseCharge decimal.Decimal
}

// NewTariff creates a validated tariff. Ceilings must be strictly ascending and
// the last tier must be unbounded.
func NewTariff(tiers []Tier, baseCharge decimal.Decimal) (Tariff, error) {
	if len(tiers) == 0 {
		return Tariff{}, shared.NewDomainError(CodeInvalidTariff, "Tariff must have at least one tier")
	}
	if baseCharge.IsNegative() {
		return Tariff{}, shared.NewDomainError(CodeInvalidTariff, "Base charge cannot be negative")
	}

	var previous uint64
	for i, tier := range tiers {
		if tier.Rate.IsNegative() {
			return Tariff{}, shared.DomainErrorf(CodeInvalidTariff, "Tier %d has a negative rate", i+1)
		}
		if tier.Ceiling <= previous {
			return Tariff{}, shared.DomainErrorf(CodeInvalidTariff, "Tier %d ceiling must be greater than %d", i+1, previous)
		}
		if tier.IsUnbounded() && i != len(tiers)-1 {
			return Tariff{}, shared.NewDomainError(CodeInvalidTariff, "Only the last tier can be unbounded")
		}
		previous = tier.Ceiling
	}
	if !tiers[len(tiers)-1].IsUnbounded() {
		return Tariff{}, shared.NewDomainError(CodeInvalidTariff, "Last tier must be unbounded")
	}

	copied := make([]Tier, len(tiers))
	copy(copied, tiers)
	return Tariff{Tiers: copied, BaseCharge: baseCharge}, nil
}

// DefaultTariff returns the standard residential tariff:
// 0-10 units at 2, 10-50 at 3, above 50 at 4, plus a base charge of 5.
func DefaultTariff() Tariff {
	return Tariff{
		Tiers: []Tier{
			{Ceiling: 10, Rate: decimal.NewFromInt(2)},
			{Ceiling: 50, Rate: decimal.NewFromInt(3)},
			{Ceiling: Unbounded, Rate: decimal.NewFromInt(4)},
		},
		BaseCharge: decimal.NewFromInt(5),
	}
}

// BreakdownLine is the charge for the units that fell into one tier
type BreakdownLine struct {
	Units  uint64          `json:"units"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

// Calculation is the priced result of a consumption figure
type Calculation struct {
	Consumption uint64          `json:"consumption"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	BaseCharge  decimal.Decimal `json:"base_charge"`
	Total       decimal.Decimal `json:"total"`
	Breakdown   []BreakdownLine `json:"breakdown"`
}

// ReferenceRate returns the rate of the first charged tier, or zero when
// nothing was consumed. Bills store this as their per-unit rate; it is not a
// blended average.
func (c Calculation) ReferenceRate() decimal.Decimal {
	if len(c.Breakdown) == 0 {
		return decimal.Zero
	}
	return c.Breakdown[0].Rate
}

// Calculate prices consumption. Tiers with no units are left out of the breakdown.
func (t Tariff) Calculate(consumption uint64) Calculation {
	calc := Calculation{
		Consumption: consumption,
		Subtotal:    decimal.Zero,
		BaseCharge:  t.BaseCharge,
		Breakdown:   []BreakdownLine{},
	}

	remaining := consumption
	var previousCeiling uint64
	for _, tier := range t.Tiers {
		if remaining == 0 {
			break
		}
		units := remaining
		if width := tier.Ceiling - previousCeiling; units > width {
			units = width
		}
		if units > 0 {
			amount := tier.Rate.Mul(decimal.NewFromBigInt(new(big.Int).SetUint64(units), 0))
			calc.Subtotal = calc.Subtotal.Add(amount)
			calc.Breakdown = append(calc.Breakdown, BreakdownLine{
				Units:  units,
				Rate:   tier.Rate,
				Amount: amount,
			})
			remaining -= units
		}
		previousCeiling = tier.Ceiling
	}

	calc.Total = calc.Subtotal.Add(t.BaseCharge)
	return calc
}
