package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/api"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/api/handler"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/config"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/consumer"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/logger"
	repo "github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/repository/dynamodb"
	"github.com/mauriciocarvalho01/FIAP-Tech-Challenge-Restaurante-Acme-Checkout/internal/repository/gormstore"
)

var Version = "dev"

func main() {
	var (
		configPath string
		cfg        *config.Config
	)

	rootCmd := &cobra.Command{
		Use:           "checkout",
		Short:         "Checkout PIX e atualização de pagamentos do Restaurante Acme",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := logger.Configure(loaded.Env, loaded.Log.Level); err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (yaml, json or toml)")

	rootCmd.AddCommand(serveCmd(&cfg))
	rootCmd.AddCommand(workerCmd(&cfg))
	rootCmd.AddCommand(migrateCmd(&cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the queue consumers and the kitchen outbox dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *cfg, true)
		},
	}
}

func workerCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the queue consumers and the kitchen outbox dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *cfg, false)
		},
	}
}

func migrateCmd(cfg **config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the payment tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), *cfg)
		},
	}
}

func run(ctx context.Context, cfg *config.Config, withHTTP bool) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	workCtx, stopWork := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	workers.Add(1)
	go func() {
		defer workers.Done()
		subscriber := consumer.NewSubscriber(a.broker, a.service, cfg.Broker.Prefetch)
		if err := subscriber.Start(workCtx); err != nil {
			logger.Error("queue consumers stopped", zap.Error(err))
		}
	}()

	if a.dispatcher != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			a.dispatcher.Run(workCtx)
		}()
	}

	var srv *http.Server
	if withHTTP {
		paymentHandler := handler.NewPaymentHandler(a.service, cfg.Webhook.Secret)
		srv = &http.Server{
			Addr:              ":" + cfg.HTTP.Port,
			Handler:           api.SetupRouter(paymentHandler),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("Server starting", zap.String("port", cfg.HTTP.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal("failed to run server", zap.Error(err))
			}
		}()
	}

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"checkout": func(ctx context.Context) error {
			var errs []error
			if srv != nil {
				if err := srv.Shutdown(ctx); err != nil {
					errs = append(errs, fmt.Errorf("http: %w", err))
				}
			}

			stopWork()
			workers.Wait()

			if err := a.Close(ctx); err != nil {
				errs = append(errs, err)
			}
			logger.Sync()
			return errors.Join(errs...)
		},
	})

	if code := <-wait; code != 0 {
		return fmt.Errorf("shutdown completed with exit code %d", code)
	}
	return nil
}

func migrate(ctx context.Context, cfg *config.Config) error {
	if cfg.Store.Driver == config.StoreDriverDynamoDB {
		a := &app{cfg: cfg}
		awsCfg, err := a.aws(ctx)
		if err != nil {
			return err
		}
		repository := repo.NewPaymentRepository(awsdynamodb.NewFromConfig(awsCfg), cfg.Store.DynamoDBTable)
		if err := repository.EnsureTable(ctx); err != nil {
			return err
		}
		logger.Info("dynamodb table ready", zap.String("table", cfg.Store.DynamoDBTable))
		return nil
	}

	db, err := gormstore.Open(cfg.Store.Driver, cfg.Store.DSN, cfg.Log.Level == "debug")
	if err != nil {
		return err
	}
	store := gormstore.NewStore(db)
	defer store.Close()

	if err := gormstore.Migrate(db); err != nil {
		return err
	}
	logger.Info("database migrated", zap.String("driver", cfg.Store.Driver))
	return nil
}
