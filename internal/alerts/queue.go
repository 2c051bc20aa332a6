package alerts

import (
	"sort"
	"sync"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Alert is one deal to deliver to one subscription
type Alert struct {
	Subscription    Subscription        `json:"subscription"`
	Deal            models.DealSnapshot `json:"deal"`
	Match           models.MatchResult  `json:"match"`
	Channels        []models.Channel    `json:"channels"`
	DeliverAt       time.Time           `json:"deliver_at"`
	NotificationIDs []uuid.UUID         `json:"notification_ids,omitempty"`
}

// Key identifies an alert by subscription and deal
func (a Alert) Key() string {
	return a.Subscription.ID.String() + ":" + a.Deal.DealID.String()
}

// DeferredQueue holds instant alerts postponed by quiet hours. Each
// (subscription, deal) pair is handed out at most once, whether it was
// deferred or sent straight away.
type DeferredQueue struct {
	mu      sync.Mutex
	pending map[string]Alert
	claimed *cache.Cache
}

// NewDeferredQueue creates a queue that remembers claimed alerts for retention
func NewDeferredQueue(retention time.Duration) *DeferredQueue {
	return &DeferredQueue{
		pending: make(map[string]Alert),
		claimed: cache.New(retention, retention/2),
	}
}

// Add enqueues an alert. It returns false when the same alert is already
// pending or was already handed out.
func (q *DeferredQueue) Add(a Alert) bool {
	key := a.Key()
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[key]; ok {
		return false
	}
	if _, ok := q.claimed.Get(key); ok {
		return false
	}
	q.pending[key] = a
	return true
}

// ClaimDue removes and returns every alert whose delivery time has come
func (q *DeferredQueue) ClaimDue(now time.Time) []Alert {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []Alert
	for key, a := range q.pending {
		if now.Before(a.DeliverAt) {
			continue
		}
		due = append(due, a)
		delete(q.pending, key)
		q.claimed.SetDefault(key, now)
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].DeliverAt.Equal(due[j].DeliverAt) {
			return due[i].DeliverAt.Before(due[j].DeliverAt)
		}
		return due[i].Key() < due[j].Key()
	})
	return due
}

// Take removes a pending alert before its delivery time and marks it handed
// out. It reports false when nothing is pending under key.
func (q *DeferredQueue) Take(key string, now time.Time) (Alert, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	a, ok := q.pending[key]
	if !ok {
		return Alert{}, false
	}
	delete(q.pending, key)
	q.claimed.SetDefault(key, now)
	return a, true
}

// MarkSent records an alert delivered without deferral. It returns false when
// the same alert is pending or was already handed out.
func (q *DeferredQueue) MarkSent(key string, now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.pending[key]; ok {
		return false
	}
	if err := q.claimed.Add(key, now, cache.DefaultExpiration); err != nil {
		return false
	}
	return true
}

// Len is the number of pending alerts
func (q *DeferredQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DigestQueue accrues matches for daily and weekly subscriptions between
// digests
type DigestQueue struct {
	mu      sync.Mutex
	entries map[uuid.UUID]map[uuid.UUID]Alert
}

// NewDigestQueue creates an empty digest queue
func NewDigestQueue() *DigestQueue {
	return &DigestQueue{entries: make(map[uuid.UUID]map[uuid.UUID]Alert)}
}

// Accrue adds a match; a later match for the same deal replaces the earlier one
func (q *DigestQueue) Accrue(a Alert) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sub := a.Subscription.ID
	if q.entries[sub] == nil {
		q.entries[sub] = make(map[uuid.UUID]Alert)
	}
	q.entries[sub][a.Deal.DealID] = a
}

// Drain removes and returns a subscription's accrued matches, best first
func (q *DigestQueue) Drain(subscriptionID uuid.UUID) []Alert {
	q.mu.Lock()
	batch := q.entries[subscriptionID]
	delete(q.entries, subscriptionID)
	q.mu.Unlock()

	out := make([]Alert, 0, len(batch))
	for _, a := range batch {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Match.Score != out[j].Match.Score {
			return out[i].Match.Score > out[j].Match.Score
		}
		return out[i].Deal.DealID.String() < out[j].Deal.DealID.String()
	})
	return out
}

// Requeue puts a drained batch back after a failed send
func (q *DigestQueue) Requeue(batch []Alert) {
	for _, a := range batch {
		q.Accrue(a)
	}
}

// Pending is the number of accrued matches for a subscription
func (q *DigestQueue) Pending(subscriptionID uuid.UUID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries[subscriptionID])
}
