// Package loadevents publishes feature load outcomes to Kafka.
package loadevents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

type Outcome string

const (
	Merged     Outcome = "merged"
	RolledBack Outcome = "rolled_back"
	Rejected   Outcome = "rejected"
)

type Event struct {
	ID         string     `json:"id"`
	Layer      string     `json:"layer"`
	Extent     [4]float64 `json:"extent"`
	Outcome    Outcome    `json:"outcome"`
	Features   int        `json:"features"`
	Error      string     `json:"error,omitempty"`
	DurationMS int64      `json:"duration_ms"`
	TS         time.Time  `json:"ts"`
}

// Publisher must never block the caller.
type Publisher interface {
	Publish(ev Event)
	Close() error
}

type Noop struct{}

func (Noop) Publish(Event) {}
func (Noop) Close() error  { return nil }

type KafkaPublisher struct {
	logger  *slog.Logger
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	stopped chan struct{}
	now     func() time.Time

	mu     sync.RWMutex // guards closed against the send in Publish
	closed bool
}

func NewKafkaPublisher(logger *slog.Logger, brokers []string, topic string, queueSize int) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("loadevents: create async producer: %w", err)
	}
	return newWithProducer(logger, prod, topic, queueSize), nil
}

func newWithProducer(logger *slog.Logger, prod sarama.AsyncProducer, topic string, queueSize int) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	p := &KafkaPublisher{
		logger:  logger,
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
		now:     time.Now,
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Warn("loadevents: marshal", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.Layer),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Warn("loadevents: producer error", "err", err)
			}
		}
	}()

	return p
}

// Publish fills in ID and TS when unset and drops the event when the queue
// is full or the publisher is closed.
func (p *KafkaPublisher) Publish(ev Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Debug("loadevents: publisher closed, event dropped", "layer", ev.Layer, "outcome", ev.Outcome)
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.TS.IsZero() {
		ev.TS = p.now().UTC()
	}
	select {
	case p.events <- ev:
	default:
		p.logger.Debug("loadevents: queue full, event dropped", "layer", ev.Layer, "outcome", ev.Outcome)
	}
}

// Close drains queued events into the producer and closes it. Later calls
// are no-ops.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()
	<-p.stopped

	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("loadevents: close producer: %w", err)
	}
	return nil
}
