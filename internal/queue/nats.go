// internal/queue/nats.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fawad-mazhar/jobcards/internal/config"
	"github.com/fawad-mazhar/jobcards/internal/models"
	"github.com/golang-collections/collections/queue"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// PublishFunc sends one message to a subject
type PublishFunc func(subject string, data []byte) error

type outboxMessage struct {
	subject string
	data    []byte
}

// Publisher forwards task history and service status events to NATS.
// Task events go through an in-memory outbox drained by a single loop, so
// subscribers see them in the order they were recorded.
type Publisher struct {
	conn          *nats.Conn
	publish       PublishFunc
	prefix        string
	flushInterval time.Duration
	log           *logrus.Entry

	mu      sync.Mutex
	pending *queue.Queue
	flushMu sync.Mutex
}

// NewNATS connects to the configured NATS server
func NewNATS(cfg config.NATSConfig, log *logrus.Entry) (*Publisher, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("jobcards"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := NewPublisher(cfg, conn.Publish, log)
	p.conn = conn
	return p, nil
}

// NewPublisher creates a publisher on top of an arbitrary publish function
func NewPublisher(cfg config.NATSConfig, publish PublishFunc, log *logrus.Entry) *Publisher {
	interval := time.Duration(cfg.FlushInterval) * time.Millisecond
	if interval <= 0 {
		interval = time.Duration(config.DefaultFlushInterval) * time.Millisecond
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = config.DefaultSubjectPrefix
	}
	return &Publisher{
		publish:       publish,
		prefix:        prefix,
		flushInterval: interval,
		log:           log,
		pending:       queue.New(),
	}
}

// TaskSubject returns the subject task events of a job card are published on
func (p *Publisher) TaskSubject(jobCardID string, event models.HistoryEvent) string {
	return fmt.Sprintf("%s.%s.tasks.%s", p.prefix, jobCardID, event)
}

// ServiceSubject returns the subject service lifecycle events are published on
func (p *Publisher) ServiceSubject() string {
	return p.prefix + ".service"
}

// Enqueue adds history entries to the outbox in the given order
func (p *Publisher) Enqueue(entries ...models.HistoryEntry) error {
	msgs := make([]outboxMessage, 0, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(models.NewTaskStatusMessage(entry))
		if err != nil {
			return fmt.Errorf("failed to marshal task event: %w", err)
		}
		msgs = append(msgs, outboxMessage{subject: p.TaskSubject(entry.JobCardID, entry.Event), data: data})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, msg := range msgs {
		p.pending.Enqueue(msg)
	}
	return nil
}

// Pending returns the number of events waiting in the outbox
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.Len()
}

// Flush publishes queued events in order. It stops at the first failure and
// leaves that event at the head of the outbox for the next attempt.
func (p *Publisher) Flush() (int, error) {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	sent := 0
	for {
		p.mu.Lock()
		head := p.pending.Peek()
		p.mu.Unlock()
		if head == nil {
			return sent, nil
		}

		msg := head.(outboxMessage)
		if err := p.publish(msg.subject, msg.data); err != nil {
			return sent, fmt.Errorf("failed to publish %s: %w", msg.subject, err)
		}

		p.mu.Lock()
		p.pending.Dequeue()
		p.mu.Unlock()
		sent++
	}
}

// Start drains the outbox every flush interval until ctx is cancelled
func (p *Publisher) Start(ctx context.Context) {
	const op = "queue.Publisher.Start"
	log := p.log.WithField("operation", op)

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := p.Flush(); err != nil {
				log.WithError(err).WithField("pending", p.Pending()).Warn("events left unpublished at shutdown")
			}
			return
		case <-ticker.C:
			if _, err := p.Flush(); err != nil {
				log.WithError(err).Warn("publish failed, will retry")
			}
		}
	}
}

// PublishStatus publishes a service lifecycle event immediately
func (p *Publisher) PublishStatus(ctx context.Context, status *models.StatusMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return p.publish(p.ServiceSubject(), data)
}

func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	if err := p.conn.Flush(); err != nil {
		p.conn.Close()
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}
	p.conn.Close()
	return nil
}
