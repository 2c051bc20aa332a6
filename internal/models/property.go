package models

import (
	"fmt"
	"strings"
	"time"
)

// PropertyType classifies a property for valuation and matching
type PropertyType string

const (
	SingleFamily      PropertyType = "single-family"
	MultiFamilySmall  PropertyType = "multi-family-2-4"
	MultiFamilyLarge  PropertyType = "multi-family-5+"
	ApartmentBuilding PropertyType = "apartment-building"
)

// AllPropertyTypes lists every supported property type
var AllPropertyTypes = []PropertyType{SingleFamily, MultiFamilySmall, MultiFamilyLarge, ApartmentBuilding}

// ParsePropertyType normalizes a free-form property type string
func ParsePropertyType(s string) (PropertyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single-family", "single_family", "sfr", "sfh":
		return SingleFamily, nil
	case "multi-family-2-4", "multi_family_2_4", "duplex", "triplex", "fourplex":
		return MultiFamilySmall, nil
	case "multi-family-5+", "multi_family_5_plus", "multi-family-5-plus":
		return MultiFamilyLarge, nil
	case "apartment-building", "apartment", "apartments":
		return ApartmentBuilding, nil
	}
	return "", fmt.Errorf("unknown property type %q", s)
}

// IsIncome reports whether the type is valued from rental income
func (t PropertyType) IsIncome() bool {
	return t == MultiFamilySmall || t == MultiFamilyLarge || t == ApartmentBuilding
}

// MarketKey identifies a deployment market, e.g. "dallas-tx"
type MarketKey string

// GeoLocation is a geocoding result used to resolve a market
type GeoLocation struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

// Address renders the location as a single line
func (g GeoLocation) Address() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{g.Street, g.City, g.State, g.PostalCode} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimSpace(p))
		}
	}
	return strings.Join(parts, ", ")
}

// PropertyRecord is a verified property fact sheet. Records are replaced on
// re-verification and never mutated in place.
type PropertyRecord struct {
	Address      string       `json:"address"`
	Location     GeoLocation  `json:"location"`
	Neighborhood string       `json:"neighborhood,omitempty"`
	Type         PropertyType `json:"property_type"`
	Units        int          `json:"units"`
	SquareFeet   int          `json:"square_feet"`
	YearBuilt    int          `json:"year_built,omitempty"`
	Condition    string       `json:"condition,omitempty"`
	CurrentRents []Money      `json:"current_rents,omitempty"`
	MarketRents  []Money      `json:"market_rents,omitempty"`
	VerifiedAt   time.Time    `json:"verified_at"`
}

// SqftPerUnit returns the average unit size
func (p PropertyRecord) SqftPerUnit() float64 {
	if p.Units <= 0 {
		return float64(p.SquareFeet)
	}
	return float64(p.SquareFeet) / float64(p.Units)
}
