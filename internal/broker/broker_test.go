package broker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
)

func runJetStream(t *testing.T) string {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats-server não iniciou")
	}
	t.Cleanup(ns.Shutdown)
	return ns.ClientURL()
}

func connectedBroker(t *testing.T) *Broker {
	t.Helper()

	b := New(Config{URL: runJetStream(t), AckWait: time.Second, MaxDeliver: -1, FetchWait: 200 * time.Millisecond})
	require.NoError(t, b.Connect(context.Background()))
	require.NoError(t, b.DeclareQueues(context.Background(), DefaultQueues))
	t.Cleanup(func() { b.Close() })
	return b
}

type received struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *received) add(batch []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
}

func (r *received) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func (r *received) maxBatch() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		if len(b) > n {
			n = len(b)
		}
	}
	return n
}

func consume(t *testing.T, b *Broker, queue string, settle func(d Delivery, attempt int)) *received {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.Cleanup(func() {
		cancel()
		<-done
	})

	got := &received{}
	attempts := map[string]int{}
	go func() {
		defer close(done)
		err := b.ConsumeQueue(ctx, ConsumeOptions{Channel: queue, QueueName: queue, Prefetch: 1}, func(ctx context.Context, deliveries []Delivery) {
			batch := make([]string, 0, len(deliveries))
			for _, d := range deliveries {
				body := string(d.Data())
				attempts[body]++
				batch = append(batch, body)
				settle(d, attempts[body])
			}
			got.add(batch)
		})
		assert.NoError(t, err)
	}()
	return got
}

func TestBroker_SendAndConsumeWithAck(t *testing.T) {
	b := connectedBroker(t)
	ctx := context.Background()

	for _, body := range []string{"m1", "m2", "m3"} {
		require.NoError(t, b.SendToQueue(ctx, QueuePayment, QueuePayment, []byte(body)))
	}

	got := consume(t, b, QueuePayment, func(d Delivery, _ int) {
		assert.NoError(t, d.Ack())
	})

	require.Eventually(t, func() bool { return len(got.all()) == 3 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"m1", "m2", "m3"}, got.all())
	assert.Equal(t, 1, got.maxBatch(), "prefetch bounds each batch")
}

func TestBroker_NakRedelivers(t *testing.T) {
	b := connectedBroker(t)
	ctx := context.Background()

	require.NoError(t, b.SendToQueue(ctx, QueueWebhookStatus, QueueWebhookStatus, []byte("retry-me")))

	got := consume(t, b, QueueWebhookStatus, func(d Delivery, attempt int) {
		if attempt == 1 {
			assert.NoError(t, d.Nak())
			return
		}
		assert.NoError(t, d.Ack())
	})

	require.Eventually(t, func() bool { return len(got.all()) == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"retry-me", "retry-me"}, got.all())
}

func TestBroker_TermDropsMessage(t *testing.T) {
	b := connectedBroker(t)
	ctx := context.Background()

	require.NoError(t, b.SendToQueue(ctx, QueuePayment, QueuePayment, []byte("poison")))
	require.NoError(t, b.SendToQueue(ctx, QueuePayment, QueuePayment, []byte("ok")))

	got := consume(t, b, QueuePayment, func(d Delivery, _ int) {
		if string(d.Data()) == "poison" {
			assert.NoError(t, d.Term())
			return
		}
		assert.NoError(t, d.Ack())
	})

	require.Eventually(t, func() bool { return len(got.all()) == 2 }, 5*time.Second, 20*time.Millisecond)
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, []string{"poison", "ok"}, got.all(), "terminated message is not redelivered")
}

func TestKitchenPublisher_PublishStatus(t *testing.T) {
	b := connectedBroker(t)

	publisher := NewKitchenPublisher(b)
	update := domain.StatusUpdate{PaymentID: "P1", Status: domain.StatusConcluded}
	require.NoError(t, publisher.PublishStatus(context.Background(), nil, update))

	var bodies [][]byte
	var mu sync.Mutex
	consume(t, b, QueueKitchen, func(d Delivery, _ int) {
		mu.Lock()
		bodies = append(bodies, d.Data())
		mu.Unlock()
		d.Ack()
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) == 1
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	var got domain.StatusUpdate
	require.NoError(t, json.Unmarshal(bodies[0], &got))
	assert.Equal(t, update, got)
}

func TestBroker_NotConnected(t *testing.T) {
	b := New(DefaultConfig())
	assert.ErrorIs(t, b.SendToQueue(context.Background(), QueuePayment, QueuePayment, "x"), ErrNotConnected)
	assert.ErrorIs(t, b.DeclareQueue(context.Background(), DefaultQueues[0]), ErrNotConnected)
	assert.NoError(t, b.Close())
}
