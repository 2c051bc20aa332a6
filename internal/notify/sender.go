package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/ajharbinger/dealflow-engine/internal/logger"
	"github.com/ajharbinger/dealflow-engine/internal/models"
	"github.com/google/uuid"
)

// Payload is the rendered content of one notification
type Payload struct {
	Subject string      `json:"subject"`
	Body    string      `json:"body"`
	DealIDs []uuid.UUID `json:"deal_ids"`
	Kind    string      `json:"kind"`
}

// Sender delivers a payload to one recipient over one channel
type Sender interface {
	Send(ctx context.Context, recipient string, channel models.Channel, payload Payload) error
}

// RetryReporter receives deliveries that failed so they can be retried later
type RetryReporter interface {
	ReportFailure(ctx context.Context, msg Message, err error)
}

// Message is one queued delivery
type Message struct {
	NotificationID uuid.UUID      `json:"notification_id"`
	Recipient      string         `json:"recipient"`
	Channel        models.Channel `json:"channel"`
	Payload        Payload        `json:"payload"`
}

// LogSender writes notifications to the log instead of delivering them
type LogSender struct {
	logger logger.Logger
}

// NewLogSender creates a development sender
func NewLogSender(log logger.Logger) *LogSender {
	if log == nil {
		log = logger.NewSimpleLogger("notify")
	}
	return &LogSender{logger: log}
}

// Send logs the notification
func (s *LogSender) Send(ctx context.Context, recipient string, channel models.Channel, payload Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(recipient) == "" {
		return fmt.Errorf("empty %s recipient", channel)
	}
	s.logger.Info("📨 Notification",
		"channel", channel,
		"recipient", recipient,
		"subject", payload.Subject,
		"deals", len(payload.DealIDs))
	return nil
}

// LogRetryReporter logs failures. It is the default reporter.
type LogRetryReporter struct {
	logger logger.Logger
}

// NewLogRetryReporter creates a reporter backed by a logger
func NewLogRetryReporter(log logger.Logger) *LogRetryReporter {
	if log == nil {
		log = logger.NewSimpleLogger("notify")
	}
	return &LogRetryReporter{logger: log}
}

func (r *LogRetryReporter) ReportFailure(_ context.Context, msg Message, err error) {
	r.logger.Error("Notification failed, queued for retry", err,
		"notification_id", msg.NotificationID,
		"channel", msg.Channel)
}

// RenderDeals builds the payload for an alert about one or more deals
func RenderDeals(kind string, deals []models.DealSnapshot, scores []int) Payload {
	p := Payload{Kind: kind}
	var b strings.Builder
	for i, d := range deals {
		p.DealIDs = append(p.DealIDs, d.DealID)
		score := 0
		if i < len(scores) {
			score = scores[i]
		}
		fmt.Fprintf(&b, "%s %d-unit in %s: price %s, ARV %s, match %d\n",
			d.Type, d.Units, locationLabel(d), d.Price, d.ARV, score)
	}
	p.Body = b.String()

	switch {
	case len(deals) == 1:
		p.Subject = fmt.Sprintf("New %s deal in %s", deals[0].Type, locationLabel(deals[0]))
	default:
		p.Subject = fmt.Sprintf("%d new deals matching your criteria", len(deals))
	}
	return p
}

func locationLabel(d models.DealSnapshot) string {
	for _, s := range []string{d.Neighborhood, d.City, d.PostalCode, string(d.Market)} {
		if s != "" {
			return s
		}
	}
	return "your market"
}
