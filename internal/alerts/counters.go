package alerts

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// CounterSnapshot is the delivery history of one subscription
type CounterSnapshot struct {
	LastEmailSent   *time.Time `json:"last_email_sent,omitempty"`
	TotalEmailsSent int        `json:"total_emails_sent"`
}

// Counters tracks per-subscription delivery counters. A delivery key is
// counted once no matter how often the send is retried.
type Counters struct {
	mu       sync.Mutex
	counts   map[uuid.UUID]CounterSnapshot
	recorded *cache.Cache
}

// NewCounters remembers delivery keys for retention
func NewCounters(retention time.Duration) *Counters {
	return &Counters{
		counts:   make(map[uuid.UUID]CounterSnapshot),
		recorded: cache.New(retention, retention/2),
	}
}

// Record counts a successful delivery. It returns false when deliveryKey was
// already counted.
func (c *Counters) Record(subscriptionID uuid.UUID, deliveryKey string, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.recorded.Add(deliveryKey, at, cache.DefaultExpiration); err != nil {
		return false
	}
	snap := c.counts[subscriptionID]
	sent := at
	snap.LastEmailSent = &sent
	snap.TotalEmailsSent++
	c.counts[subscriptionID] = snap
	return true
}

// Get returns the counters of a subscription
func (c *Counters) Get(subscriptionID uuid.UUID) CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[subscriptionID]
}
