package scoring

import (
	"strings"

	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
)

// Lead score breakdown keys
const (
	LeadFactorTimeline  = "timeline"
	LeadFactorUnits     = "units"
	LeadFactorEquity    = "equity"
	LeadFactorContact   = "contact"
	LeadFactorCondition = "condition"
)

// LeadScorer scores seller motivation from categorical answers
type LeadScorer struct {
	rules config.LeadRules
}

// NewLeadScorer creates a scorer bound to the given lookup tables
func NewLeadScorer(rules config.LeadRules) *LeadScorer {
	return &LeadScorer{rules: rules}
}

// Score sums the table value of every factor. Unknown answers score zero.
func (s *LeadScorer) Score(lead models.Lead) models.LeadScore {
	breakdown := map[string]int{
		LeadFactorTimeline:  lookup(s.rules.Timeline, lead.Timeline),
		LeadFactorUnits:     s.rules.UnitBuckets.Points(float64(lead.Units)),
		LeadFactorEquity:    lookup(s.rules.Equity, lead.Equity),
		LeadFactorContact:   s.contactPoints(lead),
		LeadFactorCondition: lookup(s.rules.Condition, lead.Condition),
	}

	total := 0
	for _, p := range breakdown {
		total += p
	}
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	return models.LeadScore{Score: total, Breakdown: breakdown}
}

func (s *LeadScorer) contactPoints(lead models.Lead) int {
	hasEmail := strings.TrimSpace(lead.Email) != ""
	hasPhone := strings.TrimSpace(lead.Phone) != ""
	switch {
	case hasEmail && hasPhone:
		return s.rules.ContactBoth
	case hasEmail || hasPhone:
		return s.rules.ContactOne
	}
	return 0
}

// lookup matches table keys case-insensitively, treating spaces and
// underscores as dashes
func lookup(table map[string]int, answer string) int {
	key := normalizeKey(answer)
	if key == "" {
		return 0
	}
	if p, ok := table[key]; ok {
		return p
	}
	for k, p := range table {
		if normalizeKey(k) == key {
			return p
		}
	}
	return 0
}

func normalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "-", "_", "-").Replace(s)
}
