package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AuditConsumer reads lease events from a durable queue and appends one
// line per event to an audit log file.
type AuditConsumer struct {
	url   string
	queue string
	path  string
	log   *zap.Logger
	mu    sync.Mutex // serialises file appends
}

// NewAuditConsumer returns a consumer for queueName writing to path.
func NewAuditConsumer(url, queueName, path string, log *zap.Logger) *AuditConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditConsumer{url: url, queue: queueName, path: path, log: log.Named("audit-consumer")}
}

// Run connects to the broker and consumes until ctx is done, reconnecting
// with exponential backoff (capped at 30s) whenever the connection drops.
// It returns nil once ctx is cancelled.
func (a *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.DialConfig(a.url, amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)})
		if err != nil {
			a.log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = a.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		a.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (a *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		a.log.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(a.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, a.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := a.HandleMessage(d.Body); err != nil {
				a.log.Warn("handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // drop, requeueing a bad payload would loop
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes one event and appends it to the audit log.
func (a *AuditConsumer) HandleMessage(body []byte) error {
	var ev LeaseEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.TableID == "" {
		return errors.New("event without type or table_id")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single human friendly log line.
func FormatLine(ev LeaseEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | table=%s | seat=%d", ev.OccurredAt, ev.Type, ev.TableID, ev.SeatIndex)
	if ev.HoldID != "" {
		fmt.Fprintf(&b, " | hold=%s", ev.HoldID)
	}
	if ev.OccupantUserID != "" {
		fmt.Fprintf(&b, " | user=%s", ev.OccupantUserID)
	}
	if ev.ExpiresAt != 0 {
		fmt.Fprintf(&b, " | expires_at=%s", time.Unix(ev.ExpiresAt, 0).UTC().Format(time.RFC3339))
	}
	if ev.Type == EventHoldExpired {
		fmt.Fprintf(&b, " | seat_freed=%t", ev.SeatFreed)
	}
	b.WriteByte('\n')
	return b.String()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
