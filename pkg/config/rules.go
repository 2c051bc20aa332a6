package config

import (
	"fmt"
	"sort"
	"strings"
)

// Rules holds every tunable constant of the valuation, scoring and matching
// engine. A Rules value is an immutable snapshot: components receive the
// section they need by value and never read shared state.
type Rules struct {
	Offer    OfferRules             `mapstructure:"offer" yaml:"offer"`
	Income   IncomeRules            `mapstructure:"income" yaml:"income"`
	Verifier VerifierRules          `mapstructure:"verifier" yaml:"verifier"`
	Lead     LeadRules              `mapstructure:"lead" yaml:"lead"`
	AutoHold AutoHoldRules          `mapstructure:"auto_hold" yaml:"auto_hold"`
	Match    MatchRules             `mapstructure:"match" yaml:"match"`
	Alerts   AlertRules             `mapstructure:"alerts" yaml:"alerts"`
	Markets  map[string]MarketRules `mapstructure:"markets" yaml:"markets"`
}

// Step is one rung of a threshold ladder: values >= Min earn Points
type Step struct {
	Min    float64 `mapstructure:"min" yaml:"min"`
	Points int     `mapstructure:"points" yaml:"points"`
}

// Ladder is evaluated high-to-low; the first rung the value reaches wins
type Ladder []Step

// Points returns the points for v, or 0 when no rung is reached
func (l Ladder) Points(v float64) int {
	steps := make([]Step, len(l))
	copy(steps, l)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Min > steps[j].Min })
	for _, s := range steps {
		if v >= s.Min {
			return s.Points
		}
	}
	return 0
}

// OfferRules drive the single-family wholesale offer. Currency values are in
// whole currency units.
type OfferRules struct {
	ARVMultiplier        float64 `mapstructure:"arv_multiplier" yaml:"arv_multiplier"`
	BuyerProfitFraction  float64 `mapstructure:"buyer_profit_fraction" yaml:"buyer_profit_fraction"`
	HoldingCostPerMonth  int64   `mapstructure:"holding_cost_per_month" yaml:"holding_cost_per_month"`
	HoldingMonths        int     `mapstructure:"holding_months" yaml:"holding_months"`
	DefaultAssignmentFee int64   `mapstructure:"default_assignment_fee" yaml:"default_assignment_fee"`
	MinAssignmentFee     int64   `mapstructure:"min_assignment_fee" yaml:"min_assignment_fee"`
	MaxAssignmentFee     int64   `mapstructure:"max_assignment_fee" yaml:"max_assignment_fee"`
	RoundTo              int64   `mapstructure:"round_to" yaml:"round_to"`
	GreenMinSpread       float64 `mapstructure:"green_min_spread" yaml:"green_min_spread"`
	YellowMinSpread      float64 `mapstructure:"yellow_min_spread" yaml:"yellow_min_spread"`
	QualityFullSpread    float64 `mapstructure:"quality_full_spread" yaml:"quality_full_spread"`
}

// ExpenseProfile is the operating expense model of one property type
type ExpenseProfile struct {
	Taxes              float64 `mapstructure:"taxes" yaml:"taxes"`
	Insurance          float64 `mapstructure:"insurance" yaml:"insurance"`
	Maintenance        float64 `mapstructure:"maintenance" yaml:"maintenance"`
	Repairs            float64 `mapstructure:"repairs" yaml:"repairs"`
	Utilities          float64 `mapstructure:"utilities" yaml:"utilities"`
	Management         float64 `mapstructure:"management" yaml:"management"`
	Vacancy            float64 `mapstructure:"vacancy" yaml:"vacancy"`
	AdvertisingPerUnit int64   `mapstructure:"advertising_per_unit" yaml:"advertising_per_unit"`
	LegalPerUnit       int64   `mapstructure:"legal_per_unit" yaml:"legal_per_unit"`
}

// Ratio is the share of gross rent consumed by percentage-based expenses
func (p ExpenseProfile) Ratio() float64 {
	return p.Taxes + p.Insurance + p.Maintenance + p.Repairs + p.Utilities + p.Management + p.Vacancy
}

// FeeTier bounds the assignment fee for one property tier
type FeeTier struct {
	Percent float64 `mapstructure:"percent" yaml:"percent"`
	Min     int64   `mapstructure:"min" yaml:"min"`
	Max     int64   `mapstructure:"max" yaml:"max"`
}

// UnitRange is the unit count accepted for a property type; Max 0 is unbounded
type UnitRange struct {
	Min int `mapstructure:"min" yaml:"min"`
	Max int `mapstructure:"max" yaml:"max"`
}

// Contains reports whether units falls in the range
func (r UnitRange) Contains(units int) bool {
	if units < r.Min {
		return false
	}
	return r.Max == 0 || units <= r.Max
}

// IncomeRules drive multi-family and apartment valuation
type IncomeRules struct {
	Expenses            map[string]ExpenseProfile `mapstructure:"expenses" yaml:"expenses"`
	FeeTiers            map[string]FeeTier        `mapstructure:"fee_tiers" yaml:"fee_tiers"`
	UnitTiers           map[string]UnitRange      `mapstructure:"unit_tiers" yaml:"unit_tiers"`
	BuyerCapRateSpread  float64                   `mapstructure:"buyer_cap_rate_spread" yaml:"buyer_cap_rate_spread"`
	SafetyBuffer        int64                     `mapstructure:"safety_buffer" yaml:"safety_buffer"`
	DownPaymentFraction float64                   `mapstructure:"down_payment_fraction" yaml:"down_payment_fraction"`
	LoanRate            float64                   `mapstructure:"loan_rate" yaml:"loan_rate"`
	LoanTermYears       int                       `mapstructure:"loan_term_years" yaml:"loan_term_years"`
	QualityFactorCap    int                       `mapstructure:"quality_factor_cap" yaml:"quality_factor_cap"`
	RentUpsideLadder    Ladder                    `mapstructure:"rent_upside_ladder" yaml:"rent_upside_ladder"`
	CashOnCashLadder    Ladder                    `mapstructure:"cash_on_cash_ladder" yaml:"cash_on_cash_ladder"`
	SpreadLadder        Ladder                    `mapstructure:"spread_ladder" yaml:"spread_ladder"`
	UnitLadder          Ladder                    `mapstructure:"unit_ladder" yaml:"unit_ladder"`
}

// VerifierRules drive multi-source reconciliation
type VerifierRules struct {
	MinSources            int     `mapstructure:"min_sources" yaml:"min_sources"`
	ExpectedSources       int     `mapstructure:"expected_sources" yaml:"expected_sources"`
	MaxDispersion         float64 `mapstructure:"max_dispersion" yaml:"max_dispersion"`
	ReviewDispersion      float64 `mapstructure:"review_dispersion" yaml:"review_dispersion"`
	MinConfidence         float64 `mapstructure:"min_confidence" yaml:"min_confidence"`
	MaxObservationAgeDays int     `mapstructure:"max_observation_age_days" yaml:"max_observation_age_days"`
	FieldTolerance        float64 `mapstructure:"field_tolerance" yaml:"field_tolerance"`
	YearBuiltTolerance    int     `mapstructure:"year_built_tolerance" yaml:"year_built_tolerance"`
}

// LeadRules are the categorical lookup tables of the lead scorer
type LeadRules struct {
	Timeline             map[string]int `mapstructure:"timeline" yaml:"timeline"`
	UnitBuckets          Ladder         `mapstructure:"unit_buckets" yaml:"unit_buckets"`
	Equity               map[string]int `mapstructure:"equity" yaml:"equity"`
	ContactBoth          int            `mapstructure:"contact_both" yaml:"contact_both"`
	ContactOne           int            `mapstructure:"contact_one" yaml:"contact_one"`
	Condition            map[string]int `mapstructure:"condition" yaml:"condition"`
	HighScoreThreshold   int            `mapstructure:"high_score_threshold" yaml:"high_score_threshold"`
	MediumScoreThreshold int            `mapstructure:"medium_score_threshold" yaml:"medium_score_threshold"`
}

// AutoHoldRules decide which deals are withheld from buyers. A zero or empty
// value disables the corresponding rule.
type AutoHoldRules struct {
	Enabled           bool     `mapstructure:"enabled" yaml:"enabled"`
	MinProfitMargin   float64  `mapstructure:"min_profit_margin" yaml:"min_profit_margin"`
	PropertyTypes     []string `mapstructure:"property_types" yaml:"property_types"`
	MinUnits          int      `mapstructure:"min_units" yaml:"min_units"`
	PostalCodes       []string `mapstructure:"postal_codes" yaml:"postal_codes"`
	MinARV            int64    `mapstructure:"min_arv" yaml:"min_arv"`
	MaxOfferToARV     float64  `mapstructure:"max_offer_to_arv" yaml:"max_offer_to_arv"`
	MinDealQuality    int      `mapstructure:"min_deal_quality" yaml:"min_deal_quality"`
	HoldDurationHours int      `mapstructure:"hold_duration_hours" yaml:"hold_duration_hours"`
}

// MatchRules are the sub-score weights of buyer/deal matching
type MatchRules struct {
	TypePoints           int     `mapstructure:"type_points" yaml:"type_points"`
	BudgetFull           int     `mapstructure:"budget_full" yaml:"budget_full"`
	BudgetNear           int     `mapstructure:"budget_near" yaml:"budget_near"`
	BudgetTolerance      float64 `mapstructure:"budget_tolerance" yaml:"budget_tolerance"`
	LocationPreferred    int     `mapstructure:"location_preferred" yaml:"location_preferred"`
	LocationAllowed      int     `mapstructure:"location_allowed" yaml:"location_allowed"`
	ROIMeets             int     `mapstructure:"roi_meets" yaml:"roi_meets"`
	ROIBonus             int     `mapstructure:"roi_bonus" yaml:"roi_bonus"`
	ROIBonusMultiple     float64 `mapstructure:"roi_bonus_multiple" yaml:"roi_bonus_multiple"`
	ROINear              int     `mapstructure:"roi_near" yaml:"roi_near"`
	ROINearFraction      float64 `mapstructure:"roi_near_fraction" yaml:"roi_near_fraction"`
	QualityMeets         int     `mapstructure:"quality_meets" yaml:"quality_meets"`
	QualityNear          int     `mapstructure:"quality_near" yaml:"quality_near"`
	QualityNearFraction  float64 `mapstructure:"quality_near_fraction" yaml:"quality_near_fraction"`
	AffinityNeutral      int     `mapstructure:"affinity_neutral" yaml:"affinity_neutral"`
	AffinitySimilar      int     `mapstructure:"affinity_similar" yaml:"affinity_similar"`
	AffinityWon          int     `mapstructure:"affinity_won" yaml:"affinity_won"`
	PriceBandFraction    float64 `mapstructure:"price_band_fraction" yaml:"price_band_fraction"`
	PublishThreshold     int     `mapstructure:"publish_threshold" yaml:"publish_threshold"`
	ExceptionalThreshold int     `mapstructure:"exceptional_threshold" yaml:"exceptional_threshold"`
}

// AlertRules drive notification eligibility and timing
type AlertRules struct {
	InstantMinScore int    `mapstructure:"instant_min_score" yaml:"instant_min_score"`
	SMSMinScore     int    `mapstructure:"sms_min_score" yaml:"sms_min_score"`
	DigestHour      int    `mapstructure:"digest_hour" yaml:"digest_hour"`
	WeeklyDigestDay string `mapstructure:"weekly_digest_day" yaml:"weekly_digest_day"`
	DefaultTimeZone string `mapstructure:"default_time_zone" yaml:"default_time_zone"`
}

// CityState names one city belonging to a market
type CityState struct {
	City  string `mapstructure:"city" yaml:"city"`
	State string `mapstructure:"state" yaml:"state"`
}

// MarketRules hold the market-specific inputs of income valuation
type MarketRules struct {
	Name           string             `mapstructure:"name" yaml:"name"`
	Cities         []CityState        `mapstructure:"cities" yaml:"cities"`
	PostalPrefixes []string           `mapstructure:"postal_prefixes" yaml:"postal_prefixes"`
	CapRates       map[string]float64 `mapstructure:"cap_rates" yaml:"cap_rates"`
	RentPerSqft    float64            `mapstructure:"rent_per_sqft" yaml:"rent_per_sqft"`
}

// DefaultRules returns the documented engine defaults
func DefaultRules() Rules {
	apartmentExpenses := ExpenseProfile{
		Taxes: 0.12, Insurance: 0.05, Maintenance: 0.10, Repairs: 0.05,
		Utilities: 0.08, Management: 0.08, Vacancy: 0.07,
		AdvertisingPerUnit: 100, LegalPerUnit: 50,
	}
	smallExpenses := ExpenseProfile{
		Taxes: 0.10, Insurance: 0.05, Maintenance: 0.08, Repairs: 0.05,
		Utilities: 0.04, Management: 0.08, Vacancy: 0.05,
		AdvertisingPerUnit: 75, LegalPerUnit: 50,
	}

	return Rules{
		Offer: OfferRules{
			ARVMultiplier:        0.70,
			BuyerProfitFraction:  0.15,
			HoldingCostPerMonth:  1500,
			HoldingMonths:        3,
			DefaultAssignmentFee: 10000,
			MinAssignmentFee:     5000,
			MaxAssignmentFee:     50000,
			RoundTo:              1000,
			GreenMinSpread:       0.12,
			YellowMinSpread:      0.10,
			QualityFullSpread:    0.50,
		},
		Income: IncomeRules{
			Expenses: map[string]ExpenseProfile{
				"multi-family-2-4":   smallExpenses,
				"multi-family-5+":    apartmentExpenses,
				"apartment-building": apartmentExpenses,
			},
			FeeTiers: map[string]FeeTier{
				"multi-family-2-4":   {Percent: 0.03, Min: 10000, Max: 25000},
				"multi-family-5+":    {Percent: 0.025, Min: 20000, Max: 75000},
				"apartment-building": {Percent: 0.02, Min: 40000, Max: 150000},
			},
			UnitTiers: map[string]UnitRange{
				"multi-family-2-4":   {Min: 2, Max: 4},
				"multi-family-5+":    {Min: 5},
				"apartment-building": {Min: 10},
			},
			BuyerCapRateSpread:  0.02,
			SafetyBuffer:        50000,
			DownPaymentFraction: 0.25,
			LoanRate:            0.07,
			LoanTermYears:       30,
			QualityFactorCap:    25,
			RentUpsideLadder:    Ladder{{Min: 20, Points: 25}, {Min: 10, Points: 18}, {Min: 5, Points: 10}, {Min: 0.01, Points: 5}},
			CashOnCashLadder:    Ladder{{Min: 12, Points: 25}, {Min: 8, Points: 18}, {Min: 5, Points: 10}, {Min: 0.01, Points: 5}},
			SpreadLadder:        Ladder{{Min: 25, Points: 25}, {Min: 15, Points: 18}, {Min: 10, Points: 10}, {Min: 0.01, Points: 5}},
			UnitLadder:          Ladder{{Min: 20, Points: 25}, {Min: 10, Points: 20}, {Min: 5, Points: 15}, {Min: 2, Points: 10}},
		},
		Verifier: VerifierRules{
			MinSources:            2,
			ExpectedSources:       3,
			MaxDispersion:         0.25,
			ReviewDispersion:      0.15,
			MinConfidence:         0.60,
			MaxObservationAgeDays: 180,
			FieldTolerance:        0.10,
			YearBuiltTolerance:    5,
		},
		Lead: LeadRules{
			Timeline: map[string]int{
				"asap": 30, "30-days": 25, "60-days": 15, "1-3-months": 15,
				"90-days": 10, "3-6-months": 10, "6-months": 5, "6+-months": 5, "exploring": 5,
			},
			UnitBuckets: Ladder{{Min: 10, Points: 20}, {Min: 5, Points: 15}, {Min: 2, Points: 10}, {Min: 1, Points: 5}},
			Equity: map[string]int{
				"high": 20, "medium": 12, "low": 5, "none": 0,
			},
			ContactBoth: 15,
			ContactOne:  8,
			Condition: map[string]int{
				"poor": 15, "fair": 10, "good": 5, "excellent": 2,
			},
			HighScoreThreshold:   70,
			MediumScoreThreshold: 40,
		},
		AutoHold: AutoHoldRules{
			Enabled:           true,
			MinProfitMargin:   0.65,
			MinUnits:          20,
			MinARV:            1000000,
			HoldDurationHours: 48,
		},
		Match: MatchRules{
			TypePoints:           25,
			BudgetFull:           20,
			BudgetNear:           10,
			BudgetTolerance:      0.10,
			LocationPreferred:    20,
			LocationAllowed:      10,
			ROIMeets:             15,
			ROIBonus:             5,
			ROIBonusMultiple:     1.5,
			ROINear:              7,
			ROINearFraction:      0.8,
			QualityMeets:         10,
			QualityNear:          5,
			QualityNearFraction:  0.9,
			AffinityNeutral:      5,
			AffinitySimilar:      5,
			AffinityWon:          5,
			PriceBandFraction:    0.25,
			PublishThreshold:     50,
			ExceptionalThreshold: 80,
		},
		Alerts: AlertRules{
			InstantMinScore: 50,
			SMSMinScore:     80,
			DigestHour:      8,
			WeeklyDigestDay: "monday",
			DefaultTimeZone: "America/Chicago",
		},
		Markets: map[string]MarketRules{
			"dallas-tx": {
				Name:           "Dallas-Fort Worth",
				Cities:         []CityState{{City: "Dallas", State: "TX"}, {City: "Fort Worth", State: "TX"}, {City: "Arlington", State: "TX"}},
				PostalPrefixes: []string{"750", "751", "752", "760", "761"},
				CapRates: map[string]float64{
					"single-family": 0.065, "multi-family-2-4": 0.07, "multi-family-5+": 0.065, "apartment-building": 0.06,
				},
				RentPerSqft: 1.35,
			},
			"houston-tx": {
				Name:           "Houston",
				Cities:         []CityState{{City: "Houston", State: "TX"}, {City: "Pasadena", State: "TX"}},
				PostalPrefixes: []string{"770", "772", "773", "774", "775"},
				CapRates: map[string]float64{
					"single-family": 0.07, "multi-family-2-4": 0.075, "multi-family-5+": 0.07, "apartment-building": 0.065,
				},
				RentPerSqft: 1.20,
			},
		},
	}
}

// CapRate returns the market cap rate for a property type
func (m MarketRules) CapRate(propertyType string) (float64, bool) {
	rate, ok := m.CapRates[propertyType]
	return rate, ok && rate > 0
}

// Validation collects every problem found in a rules snapshot
type Validation struct {
	Errors []string `json:"errors"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// OK reports whether no problem was found
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// Err folds the problems into a single error, or nil
func (v Validation) Err() error {
	if v.OK() {
		return nil
	}
	return fmt.Errorf("invalid rules: %s", strings.Join(v.Errors, "; "))
}

// Validate checks internal consistency of the rules
func (r Rules) Validate() Validation {
	var res Validation

	fraction := func(name string, f float64) {
		if f < 0 || f > 1 {
			res.addErr("%s must be within [0,1], got %v", name, f)
		}
	}

	o := r.Offer
	if o.ARVMultiplier <= 0 || o.ARVMultiplier > 1 {
		res.addErr("offer.arv_multiplier must be within (0,1], got %v", o.ARVMultiplier)
	}
	fraction("offer.buyer_profit_fraction", o.BuyerProfitFraction)
	if o.HoldingCostPerMonth < 0 || o.HoldingMonths < 0 {
		res.addErr("offer holding cost and months must be >= 0")
	}
	if o.MinAssignmentFee < 0 || o.MinAssignmentFee > o.MaxAssignmentFee {
		res.addErr("offer assignment fee bounds invalid: [%d, %d]", o.MinAssignmentFee, o.MaxAssignmentFee)
	}
	if o.DefaultAssignmentFee < o.MinAssignmentFee || o.DefaultAssignmentFee > o.MaxAssignmentFee {
		res.addErr("offer.default_assignment_fee %d outside [%d, %d]", o.DefaultAssignmentFee, o.MinAssignmentFee, o.MaxAssignmentFee)
	}
	if o.GreenMinSpread <= o.YellowMinSpread {
		res.addErr("offer.green_min_spread must exceed offer.yellow_min_spread")
	}
	if o.QualityFullSpread <= 0 {
		res.addErr("offer.quality_full_spread must be > 0")
	}

	in := r.Income
	for _, t := range []string{"multi-family-2-4", "multi-family-5+", "apartment-building"} {
		exp, ok := in.Expenses[t]
		if !ok {
			res.addErr("income.expenses missing profile for %s", t)
		} else if ratio := exp.Ratio(); ratio <= 0 || ratio >= 1 {
			res.addErr("income.expenses[%s] ratio must be within (0,1), got %.2f", t, ratio)
		}
		tier, ok := in.FeeTiers[t]
		if !ok {
			res.addErr("income.fee_tiers missing tier for %s", t)
		} else if tier.Min > tier.Max || tier.Percent < 0 {
			res.addErr("income.fee_tiers[%s] invalid", t)
		}
		if _, ok := in.UnitTiers[t]; !ok {
			res.addErr("income.unit_tiers missing range for %s", t)
		}
	}
	if in.BuyerCapRateSpread < 0 {
		res.addErr("income.buyer_cap_rate_spread must be >= 0")
	}
	fraction("income.down_payment_fraction", in.DownPaymentFraction)
	if in.LoanTermYears <= 0 {
		res.addErr("income.loan_term_years must be > 0")
	}

	v := r.Verifier
	if v.MinSources < 1 {
		res.addErr("verifier.min_sources must be >= 1")
	}
	if v.ExpectedSources < v.MinSources {
		res.addErr("verifier.expected_sources must be >= verifier.min_sources")
	}
	if v.MaxDispersion <= 0 {
		res.addErr("verifier.max_dispersion must be > 0")
	}
	fraction("verifier.min_confidence", v.MinConfidence)

	if r.Lead.HighScoreThreshold <= r.Lead.MediumScoreThreshold {
		res.addErr("lead.high_score_threshold must exceed lead.medium_score_threshold")
	}

	if r.AutoHold.HoldDurationHours <= 0 {
		res.addErr("auto_hold.hold_duration_hours must be > 0")
	}

	if r.Match.PublishThreshold < 0 || r.Match.PublishThreshold > 100 {
		res.addErr("match.publish_threshold must be within [0,100]")
	}

	if r.Alerts.DigestHour < 0 || r.Alerts.DigestHour > 23 {
		res.addErr("alerts.digest_hour must be within [0,23]")
	}

	if len(r.Markets) == 0 {
		res.addErr("at least one market must be configured")
	}
	for key, m := range r.Markets {
		if key != strings.ToLower(key) {
			res.addErr("market key %q must be lower case", key)
		}
		if len(m.Cities) == 0 && len(m.PostalPrefixes) == 0 {
			res.addErr("market %s has neither cities nor postal prefixes", key)
		}
		if m.RentPerSqft <= 0 {
			res.addErr("market %s rent_per_sqft must be > 0", key)
		}
	}

	return res
}
