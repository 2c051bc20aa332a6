package valuation

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/ajharbinger/dealflow-engine/pkg/config"
)

// VerifiedResult is the outcome of reconciling every source for one address
type VerifiedResult struct {
	Address      string                     `json:"address"`
	Valuation    models.VerifiedValuation   `json:"valuation"`
	Fields       models.ObservedFields      `json:"fields"`
	Observations []models.SourceObservation `json:"observations"`
	VerifiedAt   time.Time                  `json:"verified_at"`
}

// DataVerifier reconciles multiple source observations into one
// confidence-scored valuation
type DataVerifier struct {
	rules config.VerifierRules
}

// NewDataVerifier creates a verifier with the given thresholds
func NewDataVerifier(rules config.VerifierRules) *DataVerifier {
	return &DataVerifier{rules: rules}
}

// reviewFlag only ever sets; nothing may clear a raised review
type reviewFlag struct {
	raised  bool
	reasons []string
}

func (f *reviewFlag) raise(format string, args ...interface{}) {
	f.raised = true
	f.reasons = append(f.reasons, fmt.Sprintf(format, args...))
}

// Verify reconciles obs for address. Missing sources degrade confidence; they
// are not errors. Malformed input is rejected.
func (v *DataVerifier) Verify(address string, obs []models.SourceObservation, now time.Time) (*VerifiedResult, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.InvalidInput("address is required", nil).WithOperation("verify")
	}
	for _, o := range obs {
		if math.IsNaN(o.Accuracy) || o.Accuracy < 0 || o.Accuracy > 1 {
			return nil, errors.InvalidInput(
				fmt.Sprintf("source %q accuracy %v outside [0,1]", o.Source, o.Accuracy), nil,
			).WithOperation("verify")
		}
		if o.Fields.ARV < 0 {
			return nil, errors.InvalidInput(
				fmt.Sprintf("source %q reported a negative value", o.Source), nil,
			).WithOperation("verify")
		}
	}

	// Highest accuracy first, name as tie-break so results never depend on input order
	sorted := make([]models.SourceObservation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Accuracy != sorted[j].Accuracy {
			return sorted[i].Accuracy > sorted[j].Accuracy
		}
		return sorted[i].Source < sorted[j].Source
	})

	var usable []models.SourceObservation
	for _, o := range sorted {
		if o.Accuracy > 0 && o.Fields.ARV > 0 {
			usable = append(usable, o)
		}
	}

	var flag reviewFlag
	val := models.VerifiedValuation{SourceCount: len(usable)}

	if len(usable) < v.rules.MinSources {
		flag.raise("insufficient sources: %d of %d required", len(usable), v.rules.MinSources)
	}

	if len(usable) > 0 {
		mean, variance := weightedStats(usable)
		val.ARV = models.FromFloat(mean)
		val.Variance = round4(variance)

		cv := 0.0
		if mean > 0 {
			cv = math.Sqrt(variance) / mean
		}

		var accSum float64
		for _, o := range usable {
			accSum += o.Accuracy
		}
		avgAccuracy := accSum / float64(len(usable))
		coverage := math.Min(1, float64(len(usable))/float64(max(v.rules.ExpectedSources, 1)))
		agreement := clamp01(1 - cv/v.rules.MaxDispersion)
		val.Confidence = round4(avgAccuracy * coverage * agreement)

		if cv > v.rules.ReviewDispersion {
			flag.raise("source values disagree (dispersion %.1f%%)", cv*100)
		}
	} else {
		flag.raise("no source reported a value")
	}

	if val.Confidence < v.rules.MinConfidence {
		flag.raise("low confidence %.2f (minimum %.2f)", val.Confidence, v.rules.MinConfidence)
	}

	maxAge := time.Duration(v.rules.MaxObservationAgeDays) * 24 * time.Hour
	for _, o := range usable {
		if maxAge > 0 && !o.ObservedAt.IsZero() && now.Sub(o.ObservedAt) > maxAge {
			flag.raise("stale observation from %s (%s)", o.Source, o.ObservedAt.Format("2006-01-02"))
		}
	}

	fields := v.reconcileFields(sorted, &flag)
	fields.ARV = val.ARV

	val.NeedsManualReview = flag.raised
	val.ReviewReasons = flag.reasons
	if val.ReviewReasons == nil {
		val.ReviewReasons = []string{}
	}

	return &VerifiedResult{
		Address:      address,
		Valuation:    val,
		Fields:       fields,
		Observations: sorted,
		VerifiedAt:   now,
	}, nil
}

// reconcileFields takes each fact from the most accurate source reporting it
// and raises a review when sources disagree beyond tolerance
func (v *DataVerifier) reconcileFields(sorted []models.SourceObservation, flag *reviewFlag) models.ObservedFields {
	var out models.ObservedFields
	var sqftSrc, yearSrc, unitsSrc string

	for _, o := range sorted {
		if o.Accuracy <= 0 {
			continue
		}
		f := o.Fields

		if f.SquareFeet > 0 {
			if out.SquareFeet == 0 {
				out.SquareFeet, sqftSrc = f.SquareFeet, o.Source
			} else if relDiff(float64(out.SquareFeet), float64(f.SquareFeet)) > v.rules.FieldTolerance {
				flag.raise("square footage conflict: %s reports %d, %s reports %d", sqftSrc, out.SquareFeet, o.Source, f.SquareFeet)
			}
		}

		if f.YearBuilt > 0 {
			if out.YearBuilt == 0 {
				out.YearBuilt, yearSrc = f.YearBuilt, o.Source
			} else if absInt(out.YearBuilt-f.YearBuilt) > v.rules.YearBuiltTolerance {
				flag.raise("year built conflict: %s reports %d, %s reports %d", yearSrc, out.YearBuilt, o.Source, f.YearBuilt)
			}
		}

		if f.Units > 0 {
			if out.Units == 0 {
				out.Units, unitsSrc = f.Units, o.Source
			} else if out.Units != f.Units {
				flag.raise("unit count conflict: %s reports %d, %s reports %d", unitsSrc, out.Units, o.Source, f.Units)
			}
		}

		if out.Bedrooms == 0 {
			out.Bedrooms = f.Bedrooms
		}
		if out.Bathrooms == 0 {
			out.Bathrooms = f.Bathrooms
		}
	}
	return out
}

// weightedStats returns the accuracy-weighted mean and variance of ARV in currency units
func weightedStats(obs []models.SourceObservation) (mean, variance float64) {
	var wSum, xSum float64
	for _, o := range obs {
		wSum += o.Accuracy
		xSum += o.Accuracy * o.Fields.ARV.Float()
	}
	mean = xSum / wSum

	var dev float64
	for _, o := range obs {
		d := o.Fields.ARV.Float() - mean
		dev += o.Accuracy * d * d
	}
	variance = dev / wSum
	return mean, variance
}

func relDiff(a, b float64) float64 {
	if a == 0 {
		return 0
	}
	return math.Abs(a-b) / a
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
