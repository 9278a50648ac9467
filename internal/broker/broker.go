// Package broker wraps NATS JetStream as a set of named, durable work queues.
// Each queue is its own stream whose single subject is the queue name.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/logger"
)

const (
	QueuePayment       = "payment"
	QueueKitchen       = "kitchen"
	QueueWebhookStatus = "webhook-status"
)

var ErrNotConnected = errors.New("broker not connected")

// DefaultQueues are declared at startup.
var DefaultQueues = []QueueOptions{
	{ChannelName: QueuePayment, QueueName: QueuePayment, Durable: true},
	{ChannelName: QueueKitchen, QueueName: QueueKitchen, Durable: true},
	{ChannelName: QueueWebhookStatus, QueueName: QueueWebhookStatus, Durable: true},
}

type Config struct {
	URL        string
	AckWait    time.Duration
	MaxDeliver int
	FetchWait  time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:        nats.DefaultURL,
		AckWait:    30 * time.Second,
		MaxDeliver: -1,
		FetchWait:  5 * time.Second,
	}
}

type QueueOptions struct {
	ChannelName string
	QueueName   string
	Durable     bool
}

type ConsumeOptions struct {
	Channel   string
	QueueName string
	Prefetch  int
}

// Delivery is one message handed to a consumer. jetstream.Msg satisfies it.
type Delivery interface {
	Data() []byte
	Subject() string
	Ack() error
	Nak() error
	Term() error
}

// Handler receives up to Prefetch deliveries and must settle each of them.
type Handler func(ctx context.Context, deliveries []Delivery)

type Broker struct {
	cfg Config
	nc  *nats.Conn
	js  jetstream.JetStream

	mu      sync.Mutex
	streams map[string]jetstream.Stream
}

func New(cfg Config) *Broker {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = 5 * time.Second
	}
	return &Broker{cfg: cfg, streams: make(map[string]jetstream.Stream)}
}

func (b *Broker) Connect(ctx context.Context) error {
	nc, err := nats.Connect(b.cfg.URL,
		nats.Name("checkout-pagamentos"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	b.nc = nc
	b.js = js
	logger.Info("connected to NATS", zap.String("url", b.cfg.URL))
	return nil
}

// DeclareQueue creates or updates the stream backing a queue.
func (b *Broker) DeclareQueue(ctx context.Context, opts QueueOptions) error {
	if b.js == nil {
		return ErrNotConnected
	}

	storage := jetstream.MemoryStorage
	if opts.Durable {
		storage = jetstream.FileStorage
	}

	stream, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      opts.ChannelName,
		Subjects:  []string{opts.QueueName},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   storage,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", opts.QueueName, err)
	}

	b.mu.Lock()
	b.streams[opts.ChannelName] = stream
	b.mu.Unlock()

	logger.Info("queue declared", zap.String("channel", opts.ChannelName), zap.String("queue", opts.QueueName))
	return nil
}

func (b *Broker) DeclareQueues(ctx context.Context, queues []QueueOptions) error {
	for _, q := range queues {
		if err := b.DeclareQueue(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// SendToQueue publishes message to queueName and waits for the stream to
// persist it. []byte messages are sent as is, anything else as JSON.
func (b *Broker) SendToQueue(ctx context.Context, channel, queueName string, message any, opts ...jetstream.PublishOpt) error {
	if b.js == nil {
		return ErrNotConnected
	}

	var data []byte
	switch m := message.(type) {
	case []byte:
		data = m
	default:
		encoded, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message for %s: %w", queueName, err)
		}
		data = encoded
	}

	opts = append(opts, jetstream.WithExpectStream(channel))
	ack, err := b.js.Publish(ctx, queueName, data, opts...)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queueName, err)
	}

	logger.Debug("message published",
		zap.String("queue", queueName),
		zap.Uint64("sequence", ack.Sequence),
	)
	return nil
}

func (b *Broker) stream(ctx context.Context, channel string) (jetstream.Stream, error) {
	b.mu.Lock()
	stream, ok := b.streams[channel]
	b.mu.Unlock()
	if ok {
		return stream, nil
	}
	return b.js.Stream(ctx, channel)
}

// ConsumeQueue pulls at most opts.Prefetch unacknowledged messages at a time
// and hands them to handler. It blocks until ctx is done.
func (b *Broker) ConsumeQueue(ctx context.Context, opts ConsumeOptions, handler Handler) error {
	if b.js == nil {
		return ErrNotConnected
	}
	if opts.Prefetch < 1 {
		opts.Prefetch = 1
	}

	stream, err := b.stream(ctx, opts.Channel)
	if err != nil {
		return fmt.Errorf("queue %s not declared: %w", opts.QueueName, err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       opts.QueueName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       b.cfg.AckWait,
		MaxDeliver:    b.cfg.MaxDeliver,
		MaxAckPending: opts.Prefetch,
		FilterSubject: opts.QueueName,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer for %s: %w", opts.QueueName, err)
	}

	logger.Info("consuming queue", zap.String("queue", opts.QueueName), zap.Int("prefetch", opts.Prefetch))

	for ctx.Err() == nil {
		batch, err := consumer.Fetch(opts.Prefetch, jetstream.FetchMaxWait(b.cfg.FetchWait))
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Warn("failed to fetch messages", zap.String("queue", opts.QueueName), zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		deliveries := make([]Delivery, 0, opts.Prefetch)
		for msg := range batch.Messages() {
			deliveries = append(deliveries, msg)
		}
		if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) {
			logger.Debug("fetch batch ended with error", zap.String("queue", opts.QueueName), zap.Error(err))
		}

		if len(deliveries) > 0 {
			handler(ctx, deliveries)
		}
	}

	logger.Info("queue consumption stopped", zap.String("queue", opts.QueueName))
	return nil
}

// Close drains the connection so in-flight acks reach the server.
func (b *Broker) Close() error {
	if b.nc == nil {
		return nil
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return err
	}
	return nil
}
