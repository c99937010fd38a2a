package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/dealer-syndication/internal/logging"
)

// StartAuditConsumer connects to RabbitMQ, declares the durable
// marketplace.events queue and appends every delivered event to the audit
// log at path.  It reconnects with exponential backoff and returns only
// when ctx is cancelled.  Messages that cannot be handled are rejected
// without requeue so one bad payload cannot wedge the consumer.
func StartAuditConsumer(ctx context.Context, url, path string) error {
	if url == "" {
		url = DefaultURL
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			logging.Warn().Err(err).Dur("retry_in", backoff).Msg("audit-consumer: failed to dial broker")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, path)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn().Err(err).Msg("audit-consumer: consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
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

func consumeLoop(ctx context.Context, conn *amqp.Connection, path string) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logging.Warn().Err(err).Msg("audit-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(QueueName, "", false, false, false, false, nil)
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
			if err := HandleMessage(d.Body, path); err != nil {
				logging.Error().Err(err).Msg("audit-consumer: handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// auditRecord is the subset of Event the audit line needs.  Data is kept
// raw so the line carries the payload verbatim.
type auditRecord struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	RequestID  string          `json:"request_id"`
	ActorID    uint64          `json:"actor_id"`
	Data       json.RawMessage `json:"data"`
}

// FormatAuditLine renders one event as a single log line.
func FormatAuditLine(body []byte) (string, error) {
	var rec auditRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	if rec.Type == "" {
		return "", errors.New("event without type")
	}
	data := string(rec.Data)
	if data == "" {
		data = "null"
	}
	return fmt.Sprintf("[%s] %s | id=%s | actor_id=%d | request_id=%s | data=%s\n",
		rec.OccurredAt.UTC().Format(time.RFC3339), rec.Type, rec.ID, rec.ActorID, rec.RequestID, data), nil
}

// HandleMessage appends the audit line for body to the file at path,
// creating its directory when needed.
func HandleMessage(body []byte, path string) error {
	line, err := FormatAuditLine(body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
