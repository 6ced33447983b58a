package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"todaride/internal/domain"
)

const (
	kafkaWriteTimeout = 2 * time.Second
	kafkaBatchTimeout = 10 * time.Millisecond
	kafkaBufferSize   = 1024
	kafkaMaxBatch     = 100
)

// ErrKafkaBufferFull is returned by Publish when the send buffer is full.
var ErrKafkaBufferFull = errors.New("kafka publisher buffer full")

// ErrKafkaClosed is returned by Publish after Close.
var ErrKafkaClosed = errors.New("kafka publisher closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by tenant and entity,
// so updates to one entity stay ordered within a partition. Publish only
// enqueues; a background goroutine writes batches and logs failures.
type KafkaPublisher struct {
	writer messageWriter
	log    logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	done   chan struct{}
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, log logrus.FieldLogger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: kafkaBatchTimeout,
	}
	return newKafkaPublisher(w, log, kafkaBufferSize)
}

func newKafkaPublisher(w messageWriter, log logrus.FieldLogger, buffer int) *KafkaPublisher {
	k := &KafkaPublisher{
		writer: w,
		log:    log,
		queue:  make(chan kafka.Message, buffer),
		done:   make(chan struct{}),
	}
	go k.run()
	return k
}

// Publish encodes the event and queues it for writing.
func (k *KafkaPublisher) Publish(ctx context.Context, event domain.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.TenantID + ":" + event.EntityID),
		Value: value,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "tenant_id", Value: []byte(event.TenantID)},
		},
	}

	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrKafkaClosed
	}
	select {
	case k.queue <- msg:
		return nil
	default:
		return ErrKafkaBufferFull
	}
}

func (k *KafkaPublisher) run() {
	defer close(k.done)

	batch := make([]kafka.Message, 0, kafkaMaxBatch)
	for msg := range k.queue {
		batch = append(batch[:0], msg)
	fill:
		for len(batch) < kafkaMaxBatch {
			select {
			case m, ok := <-k.queue:
				if !ok {
					break fill
				}
				batch = append(batch, m)
			default:
				break fill
			}
		}
		k.write(batch)
	}
}

func (k *KafkaPublisher) write(batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
	defer cancel()

	if err := k.writer.WriteMessages(ctx, batch...); err != nil {
		k.log.WithField("messages", len(batch)).WithError(err).Warn("kafka write failed")
	}
}

// Close stops accepting events, writes what is queued and closes the writer.
func (k *KafkaPublisher) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	close(k.queue)
	k.mu.Unlock()

	<-k.done
	return k.writer.Close()
}
