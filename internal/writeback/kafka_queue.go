package writeback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaQueueConfig holds configuration for Kafka queue.
type KafkaQueueConfig struct {
	Brokers      []string
	Topic        string
	GroupID      string
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	RequiredAcks int // 0, 1, or -1 (all)
	MaxWait      time.Duration
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueue implements core.WriteBackQueue on a Kafka topic. Messages are
// keyed by card id so the writes of one card stay in one partition.
type KafkaQueue struct {
	writer      kafkaWriter
	reader      kafkaReader
	topic       string
	readTimeout time.Duration
	logger      *zap.Logger

	mu     sync.RWMutex
	closed bool
	size   int // approximate, Kafka has no exact queue length
}

// NewKafkaQueue creates a new Kafka-based retry queue.
func NewKafkaQueue(cfg KafkaQueueConfig, logger *zap.Logger) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "cardtable-drainer"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:  3,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MaxWait:     cfg.MaxWait,
		StartOffset: kafka.FirstOffset,
	})

	q := newKafkaQueue(writer, reader, cfg.Topic, cfg.ReadTimeout, logger)
	q.logger.Info("kafka queue initialized",
		zap.Strings("brokers", cfg.Brokers), zap.String("group_id", cfg.GroupID), zap.Int("required_acks", cfg.RequiredAcks))
	return q, nil
}

func newKafkaQueue(writer kafkaWriter, reader kafkaReader, topic string, readTimeout time.Duration, logger *zap.Logger) *KafkaQueue {
	if readTimeout <= 0 {
		readTimeout = 5 * time.Second
	}
	return &KafkaQueue{
		writer:      writer,
		reader:      reader,
		topic:       topic,
		readTimeout: readTimeout,
		logger:      logger.Named("writeback.kafka").With(zap.String("topic", topic)),
	}
}

// Enqueue produces the write to the topic.
func (q *KafkaQueue) Enqueue(ctx context.Context, write *core.OrderWrite) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return ErrQueueClosed
	}
	if err := validateWrite(write); err != nil {
		return err
	}

	data, err := json.Marshal(write)
	if err != nil {
		return fmt.Errorf("failed to marshal order write: %w", err)
	}
	message := kafka.Message{
		Key:   []byte(write.CardID),
		Value: data,
		Time:  write.Timestamp,
		Headers: []kafka.Header{
			{Key: "product_id", Value: []byte(write.ProductID)},
		},
	}

	start := time.Now()
	if err := q.writer.WriteMessages(ctx, message); err != nil {
		q.logger.Error("failed to produce order write", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	q.mu.Lock()
	q.size++
	size := q.size
	q.mu.Unlock()
	q.logger.Debug("order write produced",
		zap.String("card_id", write.CardID), zap.String("product_id", write.ProductID),
		zap.Duration("duration", time.Since(start)), zap.Int("approx_size", size))
	return nil
}

// Dequeue consumes up to batchSize writes. Reading stops at the first read
// that times out, so an empty topic returns an empty slice.
func (q *KafkaQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.OrderWrite, error) {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return nil, ErrQueueClosed
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	writes := make([]*core.OrderWrite, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		readCtx, cancel := context.WithTimeout(ctx, q.readTimeout)
		message, err := q.reader.FetchMessage(readCtx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				q.logger.Error("failed to read order write", zap.Error(err))
			}
			break
		}

		var w core.OrderWrite
		if err := json.Unmarshal(message.Value, &w); err != nil {
			q.logger.Warn("dropping undecodable order write",
				zap.Int("partition", message.Partition), zap.Int64("offset", message.Offset), zap.Error(err))
		} else {
			writes = append(writes, &w)
		}

		// Offsets are committed once the write is handed out; the drainer
		// re-enqueues writes it could not apply.
		if err := q.reader.CommitMessages(ctx, message); err != nil {
			q.logger.Warn("failed to commit offset",
				zap.Int("partition", message.Partition), zap.Int64("offset", message.Offset), zap.Error(err))
		}
	}

	if len(writes) > 0 {
		q.mu.Lock()
		q.size -= len(writes)
		if q.size < 0 {
			q.size = 0
		}
		q.mu.Unlock()
	}
	return writes, nil
}

// Size returns an approximate number of queued writes.
func (q *KafkaQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.size
}

// Close closes the writer and the reader.
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	return errors.Join(q.writer.Close(), q.reader.Close())
}
