package valuation

import (
	"strings"
	"testing"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var verifyNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func obs(source string, accuracy float64, arv int64) models.SourceObservation {
	return models.SourceObservation{
		Source:     source,
		Accuracy:   accuracy,
		Fields:     models.ObservedFields{ARV: models.Dollars(arv)},
		ObservedAt: verifyNow.Add(-24 * time.Hour),
	}
}

func newVerifier() *DataVerifier {
	return NewDataVerifier(config.DefaultRules().Verifier)
}

func hasReason(reasons []string, prefix string) bool {
	for _, r := range reasons {
		if strings.HasPrefix(r, prefix) {
			return true
		}
	}
	return false
}

func TestDataVerifier_AgreeingSources(t *testing.T) {
	res, err := newVerifier().Verify("123 Main St, Dallas, TX", []models.SourceObservation{
		obs("county", 0.9, 300000),
		obs("mls", 0.8, 305000),
		obs("avm", 0.7, 295000),
	}, verifyNow)
	require.NoError(t, err)

	v := res.Valuation
	assert.Equal(t, 3, v.SourceCount)
	assert.InDelta(t, 300208.33, v.ARV.Float(), 0.01)
	assert.InDelta(t, 0.758, v.Confidence, 0.01)
	assert.Greater(t, v.Variance, 0.0)
	assert.False(t, v.NeedsManualReview)
	assert.Empty(t, v.ReviewReasons)
}

func TestDataVerifier_SingleSourceForcesReview(t *testing.T) {
	res, err := newVerifier().Verify("1 Elm St", []models.SourceObservation{
		obs("county", 1.0, 250000),
	}, verifyNow)
	require.NoError(t, err)

	v := res.Valuation
	assert.True(t, v.NeedsManualReview)
	assert.True(t, hasReason(v.ReviewReasons, "insufficient sources"))
	assert.True(t, hasReason(v.ReviewReasons, "low confidence"))
	assert.InDelta(t, 0.3333, v.Confidence, 0.0001)
}

func TestDataVerifier_NoSourcesIsNotAnError(t *testing.T) {
	res, err := newVerifier().Verify("1 Elm St", nil, verifyNow)
	require.NoError(t, err)

	v := res.Valuation
	assert.Zero(t, v.ARV)
	assert.Zero(t, v.Confidence)
	assert.True(t, v.NeedsManualReview)
	assert.True(t, hasReason(v.ReviewReasons, "no source reported a value"))
}

func TestDataVerifier_SourcesWithoutValueAreIgnored(t *testing.T) {
	empty := models.SourceObservation{Source: "tax", Accuracy: 0.9}
	res, err := newVerifier().Verify("1 Elm St", []models.SourceObservation{
		empty, obs("mls", 0.8, 200000), obs("avm", 0.8, 204000),
	}, verifyNow)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Valuation.SourceCount)
}

func TestDataVerifier_DisagreementRaisesReview(t *testing.T) {
	res, err := newVerifier().Verify("1 Elm St", []models.SourceObservation{
		obs("a", 0.9, 200000),
		obs("b", 0.9, 400000),
		obs("c", 0.9, 300000),
	}, verifyNow)
	require.NoError(t, err)

	v := res.Valuation
	assert.True(t, v.NeedsManualReview)
	assert.True(t, hasReason(v.ReviewReasons, "source values disagree"))
	assert.Zero(t, v.Confidence)
}

func TestDataVerifier_StaleObservation(t *testing.T) {
	old := obs("county", 0.9, 300000)
	old.ObservedAt = verifyNow.AddDate(0, 0, -200)

	res, err := newVerifier().Verify("1 Elm St", []models.SourceObservation{
		old, obs("mls", 0.9, 300000), obs("avm", 0.9, 300000),
	}, verifyNow)
	require.NoError(t, err)
	assert.True(t, res.Valuation.NeedsManualReview)
	assert.True(t, hasReason(res.Valuation.ReviewReasons, "stale observation from county"))
}

func TestDataVerifier_ReconcilesFieldsByAccuracy(t *testing.T) {
	a := obs("county", 0.95, 300000)
	a.Fields.SquareFeet = 1600
	a.Fields.YearBuilt = 1978
	b := obs("mls", 0.8, 300000)
	b.Fields.SquareFeet = 1650
	b.Fields.YearBuilt = 1980
	b.Fields.Bedrooms = 3
	c := obs("avm", 0.6, 300000)

	res, err := newVerifier().Verify("1 Elm St", []models.SourceObservation{c, b, a}, verifyNow)
	require.NoError(t, err)

	assert.Equal(t, 1600, res.Fields.SquareFeet)
	assert.Equal(t, 1978, res.Fields.YearBuilt)
	assert.Equal(t, 3, res.Fields.Bedrooms)
	assert.False(t, res.Valuation.NeedsManualReview)
}

func TestDataVerifier_FieldConflicts(t *testing.T) {
	a := obs("county", 0.95, 300000)
	a.Fields.SquareFeet = 1500
	a.Fields.Units = 4
	b := obs("mls", 0.8, 300000)
	b.Fields.SquareFeet = 1800
	b.Fields.Units = 3
	c := obs("avm", 0.8, 300000)

	res, err := newVerifier().Verify("1 Elm St", []models.SourceObservation{a, b, c}, verifyNow)
	require.NoError(t, err)

	v := res.Valuation
	assert.True(t, v.NeedsManualReview)
	assert.True(t, hasReason(v.ReviewReasons, "square footage conflict"))
	assert.True(t, hasReason(v.ReviewReasons, "unit count conflict"))
}

func TestDataVerifier_InputOrderDoesNotMatter(t *testing.T) {
	in := []models.SourceObservation{obs("a", 0.9, 310000), obs("b", 0.7, 290000), obs("c", 0.8, 300000)}
	reversed := []models.SourceObservation{in[2], in[1], in[0]}

	v := newVerifier()
	first, err := v.Verify("1 Elm St", in, verifyNow)
	require.NoError(t, err)
	second, err := v.Verify("1 Elm St", reversed, verifyNow)
	require.NoError(t, err)

	assert.Equal(t, first.Valuation, second.Valuation)
}

func TestDataVerifier_InvalidInput(t *testing.T) {
	v := newVerifier()

	_, err := v.Verify("  ", []models.SourceObservation{obs("a", 0.9, 1)}, verifyNow)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = v.Verify("1 Elm St", []models.SourceObservation{obs("a", 1.5, 300000)}, verifyNow)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = v.Verify("1 Elm St", []models.SourceObservation{obs("a", -0.1, 300000)}, verifyNow)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func TestMarketResolver(t *testing.T) {
	r := NewMarketResolver(config.DefaultRules().Markets)

	m, err := r.Resolve(models.GeoLocation{Street: "1 Elm", City: "Somewhere", State: "TX", PostalCode: "75201"})
	require.NoError(t, err)
	assert.Equal(t, models.MarketKey("dallas-tx"), m)

	m, err = r.Resolve(models.GeoLocation{City: "houston", State: "tx"})
	require.NoError(t, err)
	assert.Equal(t, models.MarketKey("houston-tx"), m)

	_, err = r.Resolve(models.GeoLocation{City: "Denver", State: "CO", PostalCode: "80202"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func TestMarketResolver_LongestPrefixWins(t *testing.T) {
	r := NewMarketResolver(map[string]config.MarketRules{
		"wide":   {PostalPrefixes: []string{"75"}},
		"narrow": {PostalPrefixes: []string{"752"}},
	})

	m, err := r.Resolve(models.GeoLocation{PostalCode: "75201"})
	require.NoError(t, err)
	assert.Equal(t, models.MarketKey("narrow"), m)

	m, err = r.Resolve(models.GeoLocation{PostalCode: "75001"})
	require.NoError(t, err)
	assert.Equal(t, models.MarketKey("wide"), m)
}
