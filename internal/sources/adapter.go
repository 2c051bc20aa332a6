package sources

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/logger"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"golang.org/x/sync/errgroup"
)

// Adapter fetches one data source's observation of a property
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, address string) (*models.SourceObservation, error)
}

// StaticAdapter serves fixed observations keyed by normalized address
type StaticAdapter struct {
	name         string
	observations map[string]models.SourceObservation
}

// NewStaticAdapter creates an adapter with no observations
func NewStaticAdapter(name string) *StaticAdapter {
	return &StaticAdapter{name: name, observations: make(map[string]models.SourceObservation)}
}

// With registers an observation for an address
func (a *StaticAdapter) With(address string, obs models.SourceObservation) *StaticAdapter {
	obs.Source = a.name
	a.observations[normalizeAddress(address)] = obs
	return a
}

func (a *StaticAdapter) Name() string { return a.name }

func (a *StaticAdapter) Fetch(ctx context.Context, address string) (*models.SourceObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obs, ok := a.observations[normalizeAddress(address)]
	if !ok {
		return nil, errors.NotFound("no observation for address", nil).WithOperation(a.name)
	}
	return &obs, nil
}

func normalizeAddress(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// SourceError records a source that failed during collection
type SourceError struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// Collection is the outcome of querying every source
type Collection struct {
	Observations []models.SourceObservation `json:"observations"`
	Failures     []SourceError              `json:"failures,omitempty"`
}

// Collector queries all sources in parallel. A failing or slow source is
// logged and skipped; the verifier decides whether enough remain.
type Collector struct {
	adapters []Adapter
	timeout  time.Duration
	logger   logger.Logger
}

// NewCollector creates a collector with a per-source timeout
func NewCollector(adapters []Adapter, timeout time.Duration, log logger.Logger) *Collector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewSimpleLogger("sources")
	}
	return &Collector{adapters: adapters, timeout: timeout, logger: log}
}

var errNoObservation = errors.ExternalFailure("source returned no observation", nil)

// Collect fetches the property from every source
func (c *Collector) Collect(ctx context.Context, address string) (Collection, error) {
	if strings.TrimSpace(address) == "" {
		return Collection{}, errors.InvalidInput("address is required", nil).WithOperation("collect")
	}

	var (
		mu  sync.Mutex
		out Collection
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, adapter := range c.adapters {
		adapter := adapter
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, c.timeout)
			defer cancel()

			obs, err := adapter.Fetch(fctx, address)
			if err == nil && obs == nil {
				err = errNoObservation
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Warn("⚠️  Source failed, skipping", "source", adapter.Name(), "error", err.Error())
				out.Failures = append(out.Failures, SourceError{Source: adapter.Name(), Error: err.Error()})
				return nil
			}
			if obs.Source == "" {
				obs.Source = adapter.Name()
			}
			out.Observations = append(out.Observations, *obs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Collection{}, errors.ExternalFailure("source collection failed", err)
	}
	if err := ctx.Err(); err != nil {
		return Collection{}, errors.ExternalFailure("source collection cancelled", err)
	}

	sort.Slice(out.Observations, func(i, j int) bool { return out.Observations[i].Source < out.Observations[j].Source })
	sort.Slice(out.Failures, func(i, j int) bool { return out.Failures[i].Source < out.Failures[j].Source })
	c.logger.Debug("Collected observations", "address", address, "sources", len(out.Observations), "failed", len(out.Failures))
	return out, nil
}
