package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/models"
)

// HTTPDoer is the transport used by HTMLListingAdapter
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTMLListingAdapter reads a listing or assessor page whose values are marked
// up with data-field attributes, e.g. <span data-field="arv">$300,000</span>.
type HTMLListingAdapter struct {
	name      string
	baseURL   string
	accuracy  float64
	client    HTTPDoer
	userAgent string
	now       func() time.Time
}

// NewHTMLListingAdapter creates an adapter querying baseURL?address=...
func NewHTMLListingAdapter(name, baseURL string, accuracy float64, client HTTPDoer) *HTMLListingAdapter {
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		}
	}
	return &HTMLListingAdapter{
		name:      name,
		baseURL:   baseURL,
		accuracy:  accuracy,
		client:    client,
		userAgent: "Mozilla/5.0 (compatible; DealflowValuation/1.0)",
		now:       time.Now,
	}
}

func (a *HTMLListingAdapter) Name() string { return a.name }

// Fetch downloads and parses the page for address
func (a *HTMLListingAdapter) Fetch(ctx context.Context, address string) (*models.SourceObservation, error) {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return nil, errors.InvalidInput("invalid source URL", err).WithOperation(a.name)
	}
	q := u.Query()
	q.Set("address", address)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.ExternalFailure("failed to perform request", err).WithOperation(a.name)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NotFound("property not listed", nil).WithOperation(a.name)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.ExternalFailure(fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil).WithOperation(a.name)
	}

	obs, err := a.Parse(resp.Body)
	if err != nil {
		return nil, err
	}
	return obs, nil
}

// Parse extracts an observation from listing HTML
func (a *HTMLListingAdapter) Parse(r io.Reader) (*models.SourceObservation, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, errors.ExternalFailure("failed to parse HTML", err).WithOperation(a.name)
	}

	obs := &models.SourceObservation{
		Source:     a.name,
		Accuracy:   a.accuracy,
		ObservedAt: a.now(),
	}

	found := 0
	doc.Find("[data-field]").Each(func(_ int, s *goquery.Selection) {
		field, _ := s.Attr("data-field")
		text := strings.TrimSpace(s.Text())
		if v, ok := s.Attr("data-value"); ok {
			text = v
		}

		switch strings.ToLower(field) {
		case "arv", "value", "estimate":
			if dollars := parseNumber(text); dollars > 0 {
				obs.Fields.ARV = models.Dollars(dollars)
				found++
			}
		case "square_feet", "sqft":
			obs.Fields.SquareFeet = int(parseNumber(text))
			found++
		case "year_built":
			obs.Fields.YearBuilt = int(parseNumber(text))
			found++
		case "units":
			obs.Fields.Units = int(parseNumber(text))
			found++
		case "bedrooms":
			obs.Fields.Bedrooms = int(parseNumber(text))
			found++
		case "bathrooms":
			obs.Fields.Bathrooms = int(parseNumber(text))
			found++
		case "observed_at", "updated":
			if t := parseDate(text); t != nil {
				obs.ObservedAt = *t
			}
		}
	})

	if found == 0 {
		return nil, errors.InsufficientData("page carries no property fields", nil).WithOperation(a.name)
	}
	return obs, nil
}

var numberPattern = regexp.MustCompile(`\d[\d,]*`)

// parseNumber extracts the first integer from text like "$1,250,000" or "2,100 sqft"
func parseNumber(text string) int64 {
	m := numberPattern.FindString(text)
	n, err := strconv.ParseInt(strings.ReplaceAll(m, ",", ""), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseDate(text string) *time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	formats := []string{
		time.RFC3339,
		"2006-01-02",
		"01/02/2006",
		"1/2/2006",
		"January 2, 2006",
		"Jan 2, 2006",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, text); err == nil {
			return &t
		}
	}
	return nil
}
