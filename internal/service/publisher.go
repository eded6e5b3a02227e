// Package service holds the outbound integrations of the seat lease
// service.  AMQPPublisher delivers lease events to RabbitMQ.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/library-seat-lease/internal/metrics"
	"github.com/iliyamo/library-seat-lease/internal/queue"
)

var (
	// ErrBufferFull is returned by Publish when the event buffer has no room;
	// the event is dropped.
	ErrBufferFull = errors.New("event buffer full")

	errBackoff = errors.New("broker unreachable, waiting to redial")
)

const (
	DefaultBuffer  = 1024
	DefaultBackoff = 5 * time.Second
)

// PublisherOptions tunes an AMQPPublisher.  Zero values use the defaults.
type PublisherOptions struct {
	Buffer  int           // events queued for the worker
	Backoff time.Duration // wait after a failed dial before the next one
}

// AMQPPublisher publishes lease events as persistent JSON messages to a
// durable queue through the default exchange.
//
// Publish only enqueues; Run drains the queue on its own goroutine so a
// slow or absent broker never holds up a lease operation.  The connection
// is opened on first send and reopened after a failure, at most once per
// backoff period.
type AMQPPublisher struct {
	url     string
	queue   string
	log     *zap.Logger
	events  chan queue.LeaseEvent
	backoff time.Duration
	now     func() time.Time

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
}

// NewAMQPPublisher returns a publisher for queueName.  No connection is made
// until Run sends the first event.
func NewAMQPPublisher(url, queueName string, log *zap.Logger, opts PublisherOptions) *AMQPPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	return &AMQPPublisher{
		url:     url,
		queue:   queueName,
		log:     log.Named("publisher"),
		events:  make(chan queue.LeaseEvent, opts.Buffer),
		backoff: opts.Backoff,
		now:     time.Now,
	}
}

// Publish queues ev for delivery and never blocks.  When the buffer is full
// the event is dropped, counted and ErrBufferFull is returned.
func (p *AMQPPublisher) Publish(_ context.Context, ev queue.LeaseEvent) error {
	select {
	case p.events <- ev:
		return nil
	default:
		metrics.EventsPublished.WithLabelValues(string(ev.Type), "dropped").Inc()
		return fmt.Errorf("%w: dropping %s", ErrBufferFull, ev.Type)
	}
}

// Run sends queued events until ctx is done, then flushes what is left for
// a few seconds.
func (p *AMQPPublisher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-p.events:
			p.deliver(ctx, ev)
		case <-ctx.Done():
			p.flush(ctx)
			return nil
		}
	}
}

func (p *AMQPPublisher) flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-p.events:
			p.deliver(ctx, ev)
		default:
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (p *AMQPPublisher) deliver(ctx context.Context, ev queue.LeaseEvent) {
	if err := p.send(ctx, ev); err != nil && !errors.Is(err, errBackoff) {
		p.log.Warn("publish lease event", zap.String("type", string(ev.Type)),
			zap.String("table_id", ev.TableID), zap.Error(err))
	}
}

// send publishes ev synchronously.
func (p *AMQPPublisher) send(ctx context.Context, ev queue.LeaseEvent) error {
	msg, err := publishing(ev, p.now())
	if err != nil {
		metrics.EventsPublished.WithLabelValues(string(ev.Type), "error").Inc()
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err == nil {
		err = ch.PublishWithContext(ctx, "", p.queue, false, false, msg)
	}
	if err != nil {
		p.reset()
		metrics.EventsPublished.WithLabelValues(string(ev.Type), "error").Inc()
		return fmt.Errorf("rabbitmq publish %s: %w", ev.Type, err)
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Type), "ok").Inc()
	return nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if p.now().Before(p.retryAt) {
		return nil, errBackoff
	}

	ch, err := p.dial()
	if err != nil {
		p.retryAt = p.now().Add(p.backoff)
		p.log.Warn("broker unavailable", zap.Duration("retry_in", p.backoff), zap.Error(err))
		return nil, err
	}
	p.retryAt = time.Time{}
	p.log.Info("connected to broker", zap.String("queue", p.queue))
	return ch, nil
}

func (p *AMQPPublisher) dial() (*amqp.Channel, error) {
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(2 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func publishing(ev queue.LeaseEvent, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now.UTC(),
		Type:         string(ev.Type),
		Body:         body,
	}, nil
}
