package scoring

import (
	"testing"

	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
	"github.com/stretchr/testify/assert"
)

func newMatchScorer() *MatchScorer {
	return NewMatchScorer(config.DefaultRules().Match)
}

func apartmentCriteria() models.BuyerCriteria {
	return models.BuyerCriteria{
		PropertyTypes: []models.PropertyType{models.ApartmentBuilding},
		MinBudget:     models.Dollars(150000),
		MaxBudget:     models.Dollars(350000),
		MinROI:        0.10,
	}
}

func apartmentDeal() models.DealSnapshot {
	return models.DealSnapshot{
		Type:         models.ApartmentBuilding,
		Price:        models.Dollars(300000),
		ROI:          0.14,
		QualityScore: 70,
		Neighborhood: "Oak Cliff",
		City:         "Dallas",
	}
}

func TestMatchScorer_WorkedExample(t *testing.T) {
	res := newMatchScorer().Score(apartmentCriteria(), models.BuyerHistory{}, apartmentDeal())

	assert.Equal(t, 25, res.Breakdown[MatchFactorType])
	assert.Equal(t, 20, res.Breakdown[MatchFactorBudget])
	assert.Equal(t, 15, res.Breakdown[MatchFactorROI])
	assert.GreaterOrEqual(t, res.Score, 60)
	// location 10 (not excluded), quality 10 (no minimum), neutral affinity 5
	assert.Equal(t, 85, res.Score)
	assert.Contains(t, res.Reasons, ExceptionalMatchReason)
}

func TestMatchScorer_Budget(t *testing.T) {
	s := newMatchScorer()
	c := apartmentCriteria()

	tests := []struct {
		price    int64
		expected int
	}{
		{300000, 20},
		{350000, 20},
		{380000, 10},
		{385000, 10},
		{390000, 0},
		{100000, 0},
	}
	for _, tt := range tests {
		d := apartmentDeal()
		d.Price = models.Dollars(tt.price)
		assert.Equal(t, tt.expected, s.Score(c, models.BuyerHistory{}, d).Breakdown[MatchFactorBudget], "price %d", tt.price)
	}
}

func TestMatchScorer_ROI(t *testing.T) {
	s := newMatchScorer()
	c := apartmentCriteria()

	tests := []struct {
		roi      float64
		expected int
	}{
		{0.16, 20},
		{0.10, 15},
		{0.085, 7},
		{0.05, 0},
	}
	for _, tt := range tests {
		d := apartmentDeal()
		d.ROI = tt.roi
		assert.Equal(t, tt.expected, s.Score(c, models.BuyerHistory{}, d).Breakdown[MatchFactorROI], "roi %.3f", tt.roi)
	}
}

func TestMatchScorer_CapRateUsedWithoutROITarget(t *testing.T) {
	c := apartmentCriteria()
	c.MinROI = 0
	c.MinCapRate = 0.08
	d := apartmentDeal()
	d.CapRate = 0.085

	res := newMatchScorer().Score(c, models.BuyerHistory{}, d)
	assert.Equal(t, 15, res.Breakdown[MatchFactorROI])
}

func TestMatchScorer_LocationAndQuality(t *testing.T) {
	s := newMatchScorer()

	c := apartmentCriteria()
	c.PreferredNeighborhoods = []string{"oak cliff"}
	assert.Equal(t, 20, s.Score(c, models.BuyerHistory{}, apartmentDeal()).Breakdown[MatchFactorLocation])

	c.AvoidedNeighborhoods = []string{"Dallas"}
	assert.Equal(t, 0, s.Score(c, models.BuyerHistory{}, apartmentDeal()).Breakdown[MatchFactorLocation])

	c = apartmentCriteria()
	c.MinDealQuality = 75
	assert.Equal(t, 5, s.Score(c, models.BuyerHistory{}, apartmentDeal()).Breakdown[MatchFactorQuality])
	c.MinDealQuality = 70
	assert.Equal(t, 10, s.Score(c, models.BuyerHistory{}, apartmentDeal()).Breakdown[MatchFactorQuality])
	c.MinDealQuality = 90
	assert.Equal(t, 0, s.Score(c, models.BuyerHistory{}, apartmentDeal()).Breakdown[MatchFactorQuality])
}

func TestMatchScorer_Affinity(t *testing.T) {
	s := newMatchScorer()
	c := apartmentCriteria()
	d := apartmentDeal()

	similar := models.BuyerHistory{Bids: []models.BidRecord{
		{PropertyType: models.ApartmentBuilding, Amount: models.Dollars(280000)},
	}}
	assert.Equal(t, 5, s.Score(c, similar, d).Breakdown[MatchFactorAffinity])

	wonAndSimilar := models.BuyerHistory{Bids: []models.BidRecord{
		{PropertyType: models.ApartmentBuilding, Amount: models.Dollars(280000), Won: true},
	}}
	assert.Equal(t, 10, s.Score(c, wonAndSimilar, d).Breakdown[MatchFactorAffinity])

	unrelated := models.BuyerHistory{Bids: []models.BidRecord{
		{PropertyType: models.SingleFamily, Amount: models.Dollars(90000), Won: true},
	}}
	assert.Equal(t, 0, s.Score(c, unrelated, d).Breakdown[MatchFactorAffinity])
}

func TestMatchScorer_SubScoresAreIndependent(t *testing.T) {
	s := newMatchScorer()
	base := apartmentCriteria()
	base.MinDealQuality = 60
	base.PreferredNeighborhoods = []string{"Oak Cliff"}
	history := models.BuyerHistory{Bids: []models.BidRecord{
		{PropertyType: models.ApartmentBuilding, Amount: models.Dollars(310000)},
	}}
	deal := apartmentDeal()
	before := s.Score(base, history, deal).Breakdown

	mutations := map[string]func(*models.BuyerCriteria){
		MatchFactorType:     func(c *models.BuyerCriteria) { c.PropertyTypes = []models.PropertyType{models.SingleFamily} },
		MatchFactorBudget:   func(c *models.BuyerCriteria) { c.MaxBudget = models.Dollars(200000) },
		MatchFactorLocation: func(c *models.BuyerCriteria) { c.AvoidedNeighborhoods = []string{"Oak Cliff"} },
		MatchFactorROI:      func(c *models.BuyerCriteria) { c.MinROI = 0.30 },
		MatchFactorQuality:  func(c *models.BuyerCriteria) { c.MinDealQuality = 95 },
	}

	for changed, mutate := range mutations {
		t.Run(changed, func(t *testing.T) {
			c := base
			mutate(&c)
			after := s.Score(c, history, deal).Breakdown

			assert.NotEqual(t, before[changed], after[changed])
			for key, points := range before {
				if key != changed {
					assert.Equal(t, points, after[key], "%s moved when only %s changed", key, changed)
				}
			}
		})
	}
}

func TestMatchScorer_RepairToleranceWarnsOnly(t *testing.T) {
	s := newMatchScorer()
	c := apartmentCriteria()
	c.MaxRepairs = models.Dollars(10000)
	d := apartmentDeal()

	withinScore := s.Score(c, models.BuyerHistory{}, d).Score
	d.Repairs = models.Dollars(25000)
	res := s.Score(c, models.BuyerHistory{}, d)

	assert.Len(t, res.Warnings, 1)
	assert.Equal(t, withinScore, res.Score)
}

func TestMatchScorer_PublishThreshold(t *testing.T) {
	s := newMatchScorer()
	assert.True(t, s.Publishable(models.MatchResult{Score: 50}))
	assert.False(t, s.Publishable(models.MatchResult{Score: 49}))

	c := apartmentCriteria()
	c.PropertyTypes = []models.PropertyType{models.SingleFamily}
	c.MaxBudget = models.Dollars(100000)
	c.MinROI = 0.5
	res := s.Score(c, models.BuyerHistory{}, apartmentDeal())
	assert.False(t, s.Publishable(res))
	assert.NotContains(t, res.Reasons, ExceptionalMatchReason)
}
