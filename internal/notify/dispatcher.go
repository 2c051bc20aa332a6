package notify

import (
	"context"
	"sync"
	"time"

	"github.com/ajharbinger/dealflow-engine/internal/clock"
	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/ajharbinger/dealflow-engine/internal/logger"
	"golang.org/x/time/rate"
)

// DispatcherConfig sizes the dispatcher. Clock stamps deliveries.
type DispatcherConfig struct {
	Workers       int
	QueueSize     int
	RatePerSecond float64
	SendTimeout   time.Duration
	Clock         clock.Clock
}

// DeliveredFunc is called after every successful send
type DeliveredFunc func(msg Message, at time.Time)

// Dispatcher delivers messages in the background. Enqueue never blocks the
// caller on delivery and one recipient's failure never affects another.
type Dispatcher struct {
	sender    Sender
	reporter  RetryReporter
	monitor   *DeliveryMonitor
	limiter   *rate.Limiter
	logger    logger.Logger
	cfg       DispatcherConfig
	delivered DeliveredFunc

	queue   chan Message
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewDispatcher creates a stopped dispatcher
func NewDispatcher(sender Sender, reporter RetryReporter, monitor *DeliveryMonitor, cfg DispatcherConfig, log logger.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if log == nil {
		log = logger.NewSimpleLogger("dispatcher")
	}
	if reporter == nil {
		reporter = NewLogRetryReporter(log)
	}
	if monitor == nil {
		monitor = NewDeliveryMonitor()
	}
	return &Dispatcher{
		sender:   sender,
		reporter: reporter,
		monitor:  monitor,
		limiter:  rate.NewLimiter(limit, cfg.Workers),
		logger:   log,
		cfg:      cfg,
		queue:    make(chan Message, cfg.QueueSize),
	}
}

// OnDelivered registers a callback for successful sends. Call before Start.
func (d *Dispatcher) OnDelivered(fn DeliveredFunc) {
	d.delivered = fn
}

// Monitor returns the delivery health monitor
func (d *Dispatcher) Monitor() *DeliveryMonitor {
	return d.monitor
}

// Start launches the worker pool
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.running = true
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.logger.Info("🚀 Dispatcher started", "workers", d.cfg.Workers)
}

// Stop drains the queue and waits for workers to finish
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
	d.logger.Info("⏹️  Dispatcher stopped")
}

// Enqueue hands a message to the workers. It fails fast when the dispatcher
// is stopped or the queue is full.
func (d *Dispatcher) Enqueue(msg Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return errors.ExternalFailure("dispatcher is not running", nil).WithOperation("enqueue")
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		d.monitor.RecordFailure(msg.Recipient, "queue full")
		d.reporter.ReportFailure(context.Background(), msg, errors.ExternalFailure("dispatch queue full", nil))
		return errors.ExternalFailure("dispatch queue full", nil).WithOperation("enqueue")
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(ctx, msg)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	if err := d.limiter.Wait(ctx); err != nil {
		d.fail(msg, err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	if err := d.sender.Send(sendCtx, msg.Recipient, msg.Channel, msg.Payload); err != nil {
		d.fail(msg, err)
		return
	}

	d.monitor.RecordSuccess(msg.Recipient)
	if d.delivered != nil {
		d.delivered(msg, d.cfg.Clock.Now())
	}
}

func (d *Dispatcher) fail(msg Message, err error) {
	d.monitor.RecordFailure(msg.Recipient, err.Error())
	d.logger.Warn("⚠️  Delivery failed",
		"notification_id", msg.NotificationID,
		"channel", msg.Channel,
		"error", err.Error())
	d.reporter.ReportFailure(context.Background(), msg, err)
}
