package valuation

import (
	"fmt"
	"math"

	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
)

// RentEstimator estimates market rent per unit. Implementations must be
// deterministic for identical inputs.
type RentEstimator interface {
	EstimateRents(sqftPerUnit float64, units int, market config.MarketRules) []models.Money
}

// PerSqftEstimator prices every unit at the market's rent per square foot
type PerSqftEstimator struct{}

// EstimateRents returns one monthly rent per unit, or nil without a unit size
func (PerSqftEstimator) EstimateRents(sqftPerUnit float64, units int, market config.MarketRules) []models.Money {
	if sqftPerUnit <= 0 || units <= 0 || market.RentPerSqft <= 0 {
		return nil
	}
	rent := models.FromFloat(sqftPerUnit * market.RentPerSqft)
	rents := make([]models.Money, units)
	for i := range rents {
		rents[i] = rent
	}
	return rents
}

// IncomeInput is a rent roll to capitalize. MarketRents, when given, replace
// the estimator for the potential rent roll.
type IncomeInput struct {
	Type        models.PropertyType `json:"property_type"`
	Units       int                 `json:"units"`
	SquareFeet  int                 `json:"square_feet"`
	Rents       []models.Money      `json:"rents"`
	MarketRents []models.Money      `json:"market_rents,omitempty"`
	Market      models.MarketKey    `json:"market"`
}

// IncomeValuator values multi-family and apartment properties by income
// capitalization
type IncomeValuator struct {
	rules     config.IncomeRules
	markets   map[string]config.MarketRules
	estimator RentEstimator
}

// NewIncomeValuator creates a valuator; a nil estimator uses PerSqftEstimator
func NewIncomeValuator(rules config.IncomeRules, markets map[string]config.MarketRules, estimator RentEstimator) *IncomeValuator {
	if estimator == nil {
		estimator = PerSqftEstimator{}
	}
	return &IncomeValuator{rules: rules, markets: markets, estimator: estimator}
}

// Value runs the valuation steps in order: gross rent, potential rent,
// expenses, NOI, ARV, buyer cap rate, max buyer price, fee, offer.
func (v *IncomeValuator) Value(in IncomeInput) (*models.IncomeValuation, error) {
	market, profile, tier, err := v.validate(in)
	if err != nil {
		return nil, err
	}
	capRate, _ := market.CapRate(string(in.Type))

	// Gross rental income
	monthly := sum(in.Rents)
	annual := monthly * 12

	// Potential rent roll from market rents
	potentialRents := in.MarketRents
	if len(potentialRents) != in.Units {
		sqftPerUnit := 0.0
		if in.SquareFeet > 0 {
			sqftPerUnit = float64(in.SquareFeet) / float64(in.Units)
		}
		potentialRents = v.estimator.EstimateRents(sqftPerUnit, in.Units, market)
	}
	if len(potentialRents) != in.Units {
		potentialRents = in.Rents
	}
	potentialMonthly := sum(potentialRents)
	potentialAnnual := potentialMonthly * 12

	expenses := expenseBreakdown(annual, in.Units, profile)
	potentialExpenses := expenseBreakdown(potentialAnnual, in.Units, profile)

	noi := annual - expenses.Total()
	potentialNOI := potentialAnnual - potentialExpenses.Total()

	arv := noi.DivFrac(capRate)

	buyerCapRate := capRate + v.rules.BuyerCapRateSpread
	maxBuyerPrice := potentialNOI.DivFrac(buyerCapRate)

	fee := arv.MulFrac(tier.Percent).Clamp(models.Dollars(tier.Min), models.Dollars(tier.Max))
	buffer := models.Dollars(v.rules.SafetyBuffer)
	offer := maxBuyerPrice - fee - buffer

	result := &models.IncomeValuation{
		Market:              in.Market,
		MonthlyGRI:          monthly,
		AnnualGRI:           annual,
		PotentialMonthlyGRI: potentialMonthly,
		PotentialAnnualGRI:  potentialAnnual,
		Expenses:            expenses,
		PotentialExpenses:   potentialExpenses,
		NOI:                 noi,
		PotentialNOI:        potentialNOI,
		MarketCapRate:       capRate,
		ARV:                 arv,
		BuyerCapRate:        buyerCapRate,
		MaxBuyerPrice:       maxBuyerPrice,
		AssignmentFee:       fee,
		SafetyBuffer:        buffer,
		Offer:               offer,
	}

	if monthly > 0 {
		result.RentUpside = round4((potentialMonthly - monthly).Ratio(monthly))
	}
	if arv > 0 {
		result.Spread = round4((arv - offer).Ratio(arv))
	}
	result.CashOnCash = round4(v.cashOnCash(offer+fee, potentialNOI))

	result.QualityFactors = v.qualityFactors(result, in.Units)
	for _, f := range result.QualityFactors {
		result.QualityScore += f.Points
	}
	if result.QualityScore > 100 {
		result.QualityScore = 100
	}

	return result, nil
}

func (v *IncomeValuator) validate(in IncomeInput) (config.MarketRules, config.ExpenseProfile, config.FeeTier, error) {
	var (
		market  config.MarketRules
		profile config.ExpenseProfile
		tier    config.FeeTier
	)
	fail := func(format string, args ...interface{}) error {
		return errors.InvalidInput(fmt.Sprintf(format, args...), nil).WithOperation("value_income")
	}

	if !in.Type.IsIncome() {
		return market, profile, tier, fail("property type %q is not valued by income", in.Type)
	}
	units, ok := v.rules.UnitTiers[string(in.Type)]
	if !ok {
		return market, profile, tier, fail("no unit tier configured for %s", in.Type)
	}
	if !units.Contains(in.Units) {
		return market, profile, tier, fail("%d units does not match property type %s", in.Units, in.Type)
	}
	if len(in.Rents) != in.Units {
		return market, profile, tier, fail("rent roll has %d entries for %d units", len(in.Rents), in.Units)
	}
	for i, r := range in.Rents {
		if r < 0 {
			return market, profile, tier, fail("unit %d rent cannot be negative", i+1)
		}
	}
	if in.SquareFeet < 0 {
		return market, profile, tier, fail("square feet cannot be negative")
	}

	market, ok = v.markets[string(in.Market)]
	if !ok {
		return market, profile, tier, fail("unknown market %q", in.Market)
	}
	if _, ok := market.CapRate(string(in.Type)); !ok {
		return market, profile, tier, fail("market %s has no cap rate for %s", in.Market, in.Type)
	}
	if profile, ok = v.rules.Expenses[string(in.Type)]; !ok {
		return market, profile, tier, fail("no expense profile for %s", in.Type)
	}
	if tier, ok = v.rules.FeeTiers[string(in.Type)]; !ok {
		return market, profile, tier, fail("no fee tier for %s", in.Type)
	}
	return market, profile, tier, nil
}

// cashOnCash is the buyer's first-year cash flow over cash invested
func (v *IncomeValuator) cashOnCash(price, noi models.Money) float64 {
	if price <= 0 {
		return 0
	}
	down := price.MulFrac(v.rules.DownPaymentFraction)
	if down <= 0 {
		return 0
	}
	loan := (price - down).Float()

	n := float64(v.rules.LoanTermYears * 12)
	r := v.rules.LoanRate / 12
	var payment float64
	switch {
	case n <= 0:
		payment = 0
	case r == 0:
		payment = loan / n
	default:
		payment = loan * r / (1 - math.Pow(1+r, -n))
	}

	cashFlow := noi.Float() - payment*12
	return cashFlow / down.Float()
}

// qualityFactors scores four capped factors so no single one dominates
func (v *IncomeValuator) qualityFactors(r *models.IncomeValuation, units int) []models.QualityFactor {
	capped := func(p int) int {
		if v.rules.QualityFactorCap > 0 && p > v.rules.QualityFactorCap {
			return v.rules.QualityFactorCap
		}
		return p
	}

	upside := r.RentUpside * 100
	coc := r.CashOnCash * 100
	spread := r.Spread * 100

	return []models.QualityFactor{
		{Name: "rent_upside", Value: upside, Points: capped(v.rules.RentUpsideLadder.Points(upside))},
		{Name: "cash_on_cash", Value: coc, Points: capped(v.rules.CashOnCashLadder.Points(coc))},
		{Name: "spread", Value: spread, Points: capped(v.rules.SpreadLadder.Points(spread))},
		{Name: "units", Value: float64(units), Points: capped(v.rules.UnitLadder.Points(float64(units)))},
	}
}

func expenseBreakdown(annual models.Money, units int, p config.ExpenseProfile) models.ExpenseBreakdown {
	return models.ExpenseBreakdown{
		Taxes:       annual.MulFrac(p.Taxes),
		Insurance:   annual.MulFrac(p.Insurance),
		Maintenance: annual.MulFrac(p.Maintenance),
		Repairs:     annual.MulFrac(p.Repairs),
		Utilities:   annual.MulFrac(p.Utilities),
		Management:  annual.MulFrac(p.Management),
		Vacancy:     annual.MulFrac(p.Vacancy),
		Advertising: models.Dollars(p.AdvertisingPerUnit) * models.Money(units),
		Legal:       models.Dollars(p.LegalPerUnit) * models.Money(units),
	}
}

func sum(ms []models.Money) models.Money {
	var total models.Money
	for _, m := range ms {
		total += m
	}
	return total
}
