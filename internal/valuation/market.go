package valuation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
)

type prefixEntry struct {
	prefix string
	market models.MarketKey
}

// MarketResolver maps a geocoding result to a configured market. Postal-code
// prefixes are checked first (longest wins), then exact city/state pairs.
type MarketResolver struct {
	prefixes []prefixEntry
	cities   map[string]models.MarketKey
}

// NewMarketResolver builds lookup tables from the configured markets
func NewMarketResolver(markets map[string]config.MarketRules) *MarketResolver {
	r := &MarketResolver{cities: make(map[string]models.MarketKey)}

	keys := make([]string, 0, len(markets))
	for k := range markets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		m := markets[k]
		for _, p := range m.PostalPrefixes {
			p = strings.TrimSpace(p)
			if p != "" {
				r.prefixes = append(r.prefixes, prefixEntry{prefix: p, market: models.MarketKey(k)})
			}
		}
		for _, c := range m.Cities {
			key := cityKey(c.City, c.State)
			if _, taken := r.cities[key]; !taken {
				r.cities[key] = models.MarketKey(k)
			}
		}
	}

	sort.SliceStable(r.prefixes, func(i, j int) bool {
		return len(r.prefixes[i].prefix) > len(r.prefixes[j].prefix)
	})
	return r
}

// Resolve returns the market of loc. An unresolvable location is InvalidInput.
func (r *MarketResolver) Resolve(loc models.GeoLocation) (models.MarketKey, error) {
	postal := strings.TrimSpace(loc.PostalCode)
	if postal != "" {
		for _, e := range r.prefixes {
			if strings.HasPrefix(postal, e.prefix) {
				return e.market, nil
			}
		}
	}

	if loc.City != "" && loc.State != "" {
		if m, ok := r.cities[cityKey(loc.City, loc.State)]; ok {
			return m, nil
		}
	}

	return "", errors.InvalidInput(
		fmt.Sprintf("address %q does not resolve to a configured market", loc.Address()), nil,
	).WithOperation("resolve_market")
}

func cityKey(city, state string) string {
	return strings.ToLower(strings.TrimSpace(city)) + "|" + strings.ToLower(strings.TrimSpace(state))
}
