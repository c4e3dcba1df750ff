package loadevents

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
)

func TestKafkaPublisher_PublishesJSONKeyedByLayer(t *testing.T) {
	cfg := mocks.NewTestConfig()
	prod := mocks.NewAsyncProducer(t, cfg)

	prod.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "map-feature-loads" {
			return fmt.Errorf("topic=%q", msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil || string(key) != "budynki" {
			return fmt.Errorf("key=%q err=%v", key, err)
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return err
		}
		if _, err := uuid.Parse(ev.ID); err != nil {
			return fmt.Errorf("id %q: %w", ev.ID, err)
		}
		if ev.Outcome != Merged || ev.Features != 3 || ev.Extent != [4]float64{1, 2, 3, 4} {
			return fmt.Errorf("event=%+v", ev)
		}
		if !ev.TS.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
			return fmt.Errorf("ts=%v", ev.TS)
		}
		return nil
	})

	p := newWithProducer(slog.New(slog.NewTextHandler(io.Discard, nil)), prod, "map-feature-loads", 4)
	p.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	p.Publish(Event{Layer: "budynki", Extent: [4]float64{1, 2, 3, 4}, Outcome: Merged, Features: 3})

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestKafkaPublisher_ProducerErrorIsNotFatal(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	prod.ExpectInputAndFail(sarama.ErrOutOfBrokers)
	prod.ExpectInputAndSucceed()

	p := newWithProducer(slog.New(slog.NewTextHandler(io.Discard, nil)), prod, "t", 4)
	p.Publish(Event{Layer: "a", Outcome: RolledBack, Error: "network"})
	p.Publish(Event{Layer: "a", Outcome: Merged})

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestKafkaPublisher_PublishAfterCloseIsDropped(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, mocks.NewTestConfig())
	prod.ExpectInputAndSucceed()

	p := newWithProducer(slog.New(slog.NewTextHandler(io.Discard, nil)), prod, "t", 4)
	p.Publish(Event{Layer: "a", Outcome: Merged})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// a loader finishing during shutdown must not panic on the closed queue
	p.Publish(Event{Layer: "a", Outcome: RolledBack})
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	p.Publish(Event{Layer: "x"})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
