package notify

import (
	"strings"
	"sync"
	"time"
)

// DeliveryMonitor tracks notification delivery success and failure rates
type DeliveryMonitor struct {
	mu                   sync.RWMutex
	now                  func() time.Time
	totalSends           int64
	successfulSends      int64
	failedSends          int64
	consecutiveFailures  int64
	lastFailureTime      time.Time
	lastSuccessTime      time.Time
	recentFailures       []FailureRecord
	maxRecentFailures    int
	failureThreshold     float64 // fraction of failed sends that marks the channel unhealthy
	consecutiveThreshold int64
}

// FailureRecord is a single failed delivery
type FailureRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Recipient string    `json:"recipient"`
	Error     string    `json:"error"`
}

// HealthStatus is the current delivery health
type HealthStatus struct {
	IsHealthy           bool            `json:"is_healthy"`
	TotalSends          int64           `json:"total_sends"`
	SuccessfulSends     int64           `json:"successful_sends"`
	FailedSends         int64           `json:"failed_sends"`
	SuccessRate         float64         `json:"success_rate"`
	ConsecutiveFailures int64           `json:"consecutive_failures"`
	LastFailureTime     *time.Time      `json:"last_failure_time,omitempty"`
	LastSuccessTime     *time.Time      `json:"last_success_time,omitempty"`
	RecentFailures      []FailureRecord `json:"recent_failures"`
	HealthIssues        []string        `json:"health_issues"`
	RecommendedActions  []string        `json:"recommended_actions"`
}

// NewDeliveryMonitor creates a monitor on the wall clock
func NewDeliveryMonitor() *DeliveryMonitor {
	return NewDeliveryMonitorWithClock(time.Now)
}

// NewDeliveryMonitorWithClock creates a monitor reading time from now
func NewDeliveryMonitorWithClock(now func() time.Time) *DeliveryMonitor {
	return &DeliveryMonitor{
		now:                  now,
		maxRecentFailures:    50,
		failureThreshold:     0.2,
		consecutiveThreshold: 5,
		recentFailures:       make([]FailureRecord, 0, 50),
	}
}

// RecordSuccess records a delivered notification
func (m *DeliveryMonitor) RecordSuccess(recipient string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalSends++
	m.successfulSends++
	m.consecutiveFailures = 0
	m.lastSuccessTime = m.now()
}

// RecordFailure records a failed notification
func (m *DeliveryMonitor) RecordFailure(recipient, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := m.now()
	m.totalSends++
	m.failedSends++
	m.consecutiveFailures++
	m.lastFailureTime = at

	m.recentFailures = append(m.recentFailures, FailureRecord{
		Timestamp: at,
		Recipient: maskRecipient(recipient),
		Error:     errorMsg,
	})
	if len(m.recentFailures) > m.maxRecentFailures {
		m.recentFailures = m.recentFailures[1:]
	}
}

// GetHealthStatus returns the current health status
func (m *DeliveryMonitor) GetHealthStatus() HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := HealthStatus{
		TotalSends:          m.totalSends,
		SuccessfulSends:     m.successfulSends,
		FailedSends:         m.failedSends,
		ConsecutiveFailures: m.consecutiveFailures,
		RecentFailures:      make([]FailureRecord, len(m.recentFailures)),
		HealthIssues:        []string{},
		RecommendedActions:  []string{},
	}
	copy(status.RecentFailures, m.recentFailures)

	if m.totalSends > 0 {
		status.SuccessRate = float64(m.successfulSends) / float64(m.totalSends)
	} else {
		status.SuccessRate = 1.0
	}

	if !m.lastFailureTime.IsZero() {
		t := m.lastFailureTime
		status.LastFailureTime = &t
	}
	if !m.lastSuccessTime.IsZero() {
		t := m.lastSuccessTime
		status.LastSuccessTime = &t
	}

	status.IsHealthy = true

	if m.totalSends >= 10 && status.SuccessRate < (1.0-m.failureThreshold) {
		status.IsHealthy = false
		status.HealthIssues = append(status.HealthIssues,
			"High delivery failure rate detected (>20%)")
		status.RecommendedActions = append(status.RecommendedActions,
			"Check email and SMS provider credentials")
	}

	if m.consecutiveFailures >= m.consecutiveThreshold {
		status.IsHealthy = false
		status.HealthIssues = append(status.HealthIssues,
			"Multiple consecutive delivery failures detected")
		status.RecommendedActions = append(status.RecommendedActions,
			"Verify provider availability and sending limits")
	}

	if !m.lastSuccessTime.IsZero() && m.failedSends > 0 && m.lastFailureTime.After(m.lastSuccessTime) &&
		m.now().Sub(m.lastSuccessTime) > time.Hour {
		status.IsHealthy = false
		status.HealthIssues = append(status.HealthIssues,
			"No successful deliveries in the last hour")
		status.RecommendedActions = append(status.RecommendedActions,
			"Check provider status and network connectivity")
	}

	m.analyzeFailurePatterns(&status)

	return status
}

// analyzeFailurePatterns flags an error category behind most recent failures
func (m *DeliveryMonitor) analyzeFailurePatterns(status *HealthStatus) {
	if len(m.recentFailures) < 3 {
		return
	}

	counts := make(map[string]int)
	for _, f := range m.recentFailures {
		counts[categorizeError(f.Error)]++
	}

	total := len(m.recentFailures)
	for category, count := range counts {
		if float64(count)/float64(total) <= 0.5 {
			continue
		}
		switch category {
		case "timeout":
			status.HealthIssues = append(status.HealthIssues, "Frequent timeout errors detected")
			status.RecommendedActions = append(status.RecommendedActions, "Increase send timeout or reduce dispatcher workers")
		case "rate_limit":
			status.HealthIssues = append(status.HealthIssues, "Provider rate limiting detected")
			status.RecommendedActions = append(status.RecommendedActions, "Lower DISPATCH_RATE_PER_SECOND")
		case "authentication":
			status.HealthIssues = append(status.HealthIssues, "Provider authentication errors detected")
			status.RecommendedActions = append(status.RecommendedActions, "Rotate provider API credentials")
		case "recipient":
			status.HealthIssues = append(status.HealthIssues, "Invalid recipient addresses detected")
			status.RecommendedActions = append(status.RecommendedActions, "Review buyer contact details")
		case "queue":
			status.HealthIssues = append(status.HealthIssues, "Dispatch queue saturated")
			status.RecommendedActions = append(status.RecommendedActions, "Increase DISPATCH_WORKERS")
		}
	}
}

func categorizeError(msg string) string {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return "rate_limit"
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return "authentication"
	case strings.Contains(msg, "recipient") || strings.Contains(msg, "invalid address"):
		return "recipient"
	case strings.Contains(msg, "queue full"):
		return "queue"
	}
	return "other"
}

// maskRecipient keeps failure records free of full contact details
func maskRecipient(r string) string {
	if at := strings.Index(r, "@"); at > 0 {
		return r[:1] + "***" + r[at:]
	}
	if len(r) > 4 {
		return "***" + r[len(r)-4:]
	}
	return "***"
}

// Reset clears all counters
func (m *DeliveryMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalSends = 0
	m.successfulSends = 0
	m.failedSends = 0
	m.consecutiveFailures = 0
	m.lastFailureTime = time.Time{}
	m.lastSuccessTime = time.Time{}
	m.recentFailures = m.recentFailures[:0]
}

// IsHealthy reports whether delivery is within healthy parameters
func (m *DeliveryMonitor) IsHealthy() bool {
	return m.GetHealthStatus().IsHealthy
}

// GetFailureRate returns the fraction of failed sends
func (m *DeliveryMonitor) GetFailureRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.totalSends == 0 {
		return 0.0
	}
	return float64(m.failedSends) / float64(m.totalSends)
}
