package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/broker"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/config"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/domain"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/integration/pagarme"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/integration/sns"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/lock"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/logger"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/outbox"
	repo "github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/repository/dynamodb"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/repository/gormstore"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/service"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/telemetry"
)

// app holds every wired dependency and the order in which they are closed.
type app struct {
	cfg        *config.Config
	service    *service.PaymentService
	broker     *broker.Broker
	dispatcher *outbox.Dispatcher
	closers    []namedCloser

	awsCfg *aws.Config
}

type namedCloser struct {
	name  string
	close func(context.Context) error
}

func (a *app) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Close releases dependencies in reverse order of creation.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(ctx); err != nil {
			logger.Error("failed to close dependency", zap.String("name", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

func (a *app) aws(ctx context.Context) (aws.Config, error) {
	if a.awsCfg != nil {
		return *a.awsCfg, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load SDK config: %w", err)
	}
	a.awsCfg = &cfg
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ready := false
	defer func() {
		if !ready {
			a.Close(context.Background())
		}
	}()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitProvider(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			Environment: cfg.Env,
			Endpoint:    cfg.Telemetry.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		a.onClose("telemetry", shutdown)
	}

	store, outboxStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	a.broker = broker.New(broker.Config{
		URL:        cfg.Broker.URL,
		AckWait:    cfg.Broker.AckWait,
		MaxDeliver: cfg.Broker.MaxDeliver,
		FetchWait:  cfg.Broker.FetchWait,
	})
	if err := a.broker.Connect(ctx); err != nil {
		return nil, err
	}
	a.onClose("broker", func(context.Context) error { return a.broker.Close() })

	if err := a.broker.DeclareQueues(ctx, broker.DefaultQueues); err != nil {
		return nil, err
	}

	var kitchen domain.KitchenPublisher = broker.NewKitchenPublisher(a.broker)
	if cfg.Kitchen.Delivery == config.DeliveryOutbox {
		kitchen = outbox.NewRecorder()
		a.dispatcher = &outbox.Dispatcher{
			Store:        outboxStore,
			Sender:       a.broker,
			PollInterval: cfg.Kitchen.OutboxInterval,
			BatchSize:    cfg.Kitchen.OutboxBatch,
		}
	}

	opts := []service.Option{service.WithGatewayTimeout(cfg.Gateway.Timeout)}

	if cfg.Lock.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
		a.onClose("redis", func(context.Context) error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		opts = append(opts, service.WithOrderLocker(lock.NewRedisLocker(client, cfg.Lock.TTL)))
	}

	if cfg.SNS.TopicARN != "" {
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithEventPublisher(sns.NewClient(awsCfg, cfg.SNS.TopicARN)))
	}

	a.service = service.NewPaymentService(store, a.gateway(), kitchen, opts...)
	ready = true
	return a, nil
}

func (a *app) openStore(ctx context.Context) (domain.PaymentStore, domain.OutboxStore, error) {
	cfg := a.cfg
	switch cfg.Store.Driver {
	case config.StoreDriverDynamoDB:
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return nil, nil, err
		}
		return repo.NewPaymentRepository(awsdynamodb.NewFromConfig(awsCfg), cfg.Store.DynamoDBTable), nil, nil
	default:
		db, err := gormstore.Open(cfg.Store.Driver, cfg.Store.DSN, cfg.Log.Level == "debug")
		if err != nil {
			return nil, nil, err
		}
		store := gormstore.NewStore(db)
		a.onClose("store", func(context.Context) error { return store.Close() })
		return store, store, nil
	}
}

func (a *app) gateway() domain.PixGateway {
	cfg := a.cfg.Gateway
	if cfg.Driver == config.GatewayDriverPagarme {
		return pagarme.NewClient(cfg.BaseURL, cfg.SecretKey, cfg.PixExpiresIn)
	}
	logger.Warn("using sandbox pix gateway")
	sandbox := pagarme.NewSandboxGateway()
	if cfg.PixExpiresIn > 0 {
		sandbox.ExpiresIn = cfg.PixExpiresIn
	}
	return sandbox
}
