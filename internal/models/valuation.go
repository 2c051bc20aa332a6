package models

import "time"

// ObservedFields holds the property facts one source reported. Zero values
// mean the source did not report the field.
type ObservedFields struct {
	ARV        Money `json:"arv,omitempty"`
	SquareFeet int   `json:"square_feet,omitempty"`
	YearBuilt  int   `json:"year_built,omitempty"`
	Units      int   `json:"units,omitempty"`
	Bedrooms   int   `json:"bedrooms,omitempty"`
	Bathrooms  int   `json:"bathrooms,omitempty"`
}

// SourceObservation is one data source's view of a property
type SourceObservation struct {
	Source     string         `json:"source"`
	Accuracy   float64        `json:"accuracy"`
	Fields     ObservedFields `json:"fields"`
	ObservedAt time.Time      `json:"observed_at"`
}

// VerifiedValuation is the reconciled, confidence-scored view of all sources.
// Confidence and Variance are always derived by the verifier.
type VerifiedValuation struct {
	ARV               Money    `json:"arv"`
	Confidence        float64  `json:"confidence"`
	SourceCount       int      `json:"source_count"`
	Variance          float64  `json:"variance"`
	NeedsManualReview bool     `json:"needs_manual_review"`
	ReviewReasons     []string `json:"review_reasons"`
}

// Band is the deal-quality band derived from the spread
type Band string

const (
	BandGreen  Band = "green"
	BandYellow Band = "yellow"
	BandRed    Band = "red"
)

// OfferResult is a single-family wholesale offer
type OfferResult struct {
	Offer             Money   `json:"offer"`
	ARV               Money   `json:"arv"`
	Repairs           Money   `json:"repairs"`
	Holding           Money   `json:"holding"`
	AssignmentFee     Money   `json:"assignment_fee"`
	BuyerProfitTarget Money   `json:"buyer_profit_target"`
	SpreadFraction    float64 `json:"spread_fraction"`
	Band              Band    `json:"band"`
}

// ExpenseBreakdown itemizes annual operating expenses
type ExpenseBreakdown struct {
	Taxes       Money `json:"taxes"`
	Insurance   Money `json:"insurance"`
	Maintenance Money `json:"maintenance"`
	Repairs     Money `json:"repairs"`
	Utilities   Money `json:"utilities"`
	Management  Money `json:"management"`
	Vacancy     Money `json:"vacancy"`
	Advertising Money `json:"advertising"`
	Legal       Money `json:"legal"`
}

// Total sums every expense line
func (e ExpenseBreakdown) Total() Money {
	return e.Taxes + e.Insurance + e.Maintenance + e.Repairs + e.Utilities +
		e.Management + e.Vacancy + e.Advertising + e.Legal
}

// QualityFactor is one capped component of the income deal-quality score
type QualityFactor struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Points int     `json:"points"`
}

// IncomeValuation is the result of capitalizing a rent roll
type IncomeValuation struct {
	Market              MarketKey        `json:"market"`
	MonthlyGRI          Money            `json:"monthly_gri"`
	AnnualGRI           Money            `json:"annual_gri"`
	PotentialMonthlyGRI Money            `json:"potential_monthly_gri"`
	PotentialAnnualGRI  Money            `json:"potential_annual_gri"`
	Expenses            ExpenseBreakdown `json:"expenses"`
	PotentialExpenses   ExpenseBreakdown `json:"potential_expenses"`
	NOI                 Money            `json:"noi"`
	PotentialNOI        Money            `json:"potential_noi"`
	MarketCapRate       float64          `json:"market_cap_rate"`
	ARV                 Money            `json:"arv"`
	BuyerCapRate        float64          `json:"buyer_cap_rate"`
	MaxBuyerPrice       Money            `json:"max_buyer_price"`
	AssignmentFee       Money            `json:"assignment_fee"`
	SafetyBuffer        Money            `json:"safety_buffer"`
	Offer               Money            `json:"offer"`
	CashOnCash          float64          `json:"cash_on_cash"`
	RentUpside          float64          `json:"rent_upside"`
	Spread              float64          `json:"spread"`
	QualityScore        int              `json:"quality_score"`
	QualityFactors      []QualityFactor  `json:"quality_factors"`
}
