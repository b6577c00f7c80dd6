package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/followrequest"
	"github.com/Ramsey-B/fern/internal/repositories/inbox"
	"github.com/Ramsey-B/fern/internal/repositories/relationship"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/expansion"
	"github.com/Ramsey-B/fern/pkg/fanout"
	"github.com/Ramsey-B/fern/pkg/governance"
	"github.com/Ramsey-B/fern/pkg/graph"
	fernkafka "github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/locks"
	"github.com/Ramsey-B/fern/pkg/notify"
	"github.com/Ramsey-B/fern/pkg/recipients"
	fernredis "github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/requests"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/visibility"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.OTLPEnabled {
		shutdown, err := tracing.Init(ctx, cfg.AppName, tracing.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
		})
		if err != nil {
			logger.WithError(err).Error("failed to initialize tracing")
			os.Exit(1)
		}
		defer shutdown(context.Background())
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("fern exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger ectologger.Logger) error {
	db, sqlxDB, err := database.Connect(ctx, database.Config{
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		UserName:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	driver, err := postgres.WithInstance(sqlxDB.DB, &postgres.Config{})
	if err != nil {
		return err
	}
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		return err
	}

	// Repositories
	relationshipRepo := relationship.NewRepository(db, logger)
	inboxRepo := inbox.NewRepository(db, logger)
	requestRepo := followrequest.NewRepository(db, logger)

	// Fan-out serialization: distributed when redis is available, otherwise
	// in-process.
	var locker locks.Locker = locks.NewKeyedMutex()
	if cfg.RedisEnabled {
		redisClient, err := fernredis.NewClient(fernredis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		locker = fernredis.NewLocker(redisClient, "fern:lock:")
	}

	// Graph projection is optional.
	var projector graph.Projector = graph.NewNoopProjector()
	graphCfg := graph.Config{
		Host:     cfg.GraphHost,
		Port:     cfg.GraphPort,
		Username: cfg.GraphUsername,
		Password: cfg.GraphPassword,
	}
	if graphCfg.Enabled() {
		graphClient, err := graph.NewClient(graphCfg, logger)
		if err != nil {
			return err
		}
		defer graphClient.Close(context.Background())
		projector = graph.NewMirror(graphClient, logger)
	}

	// Outcome events are optional.
	var emitter events.Emitter = events.NewNoopEmitter()
	var producer *fernkafka.Producer
	if cfg.KafkaEventTopic != "" {
		producer, err = fernkafka.NewProducer(fernkafka.ProducerConfig{
			Brokers:      brokers(cfg.KafkaBrokers),
			Topic:        cfg.KafkaEventTopic,
			BatchSize:    100,
			BatchTimeout: 100 * time.Millisecond,
			MaxAttempts:  3,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: -1,
		}, logger)
		if err != nil {
			return err
		}
		defer producer.Close()
		emitter = events.NewKafkaEmitter(producer, logger)
	}

	// Core wiring
	policy := governance.NewOpenPolicy()
	expander := expansion.NewIdentityExpander()
	engine := visibility.NewEngine(relationshipRepo, logger)
	resolver := recipients.NewResolver(relationshipRepo, policy, expander, engine, logger)
	pipeline := fanout.NewPipeline(inboxRepo, locker, logger).WithConcurrency(cfg.FanoutConcurrency)
	workflow := requests.NewWorkflow(requestRepo, relationshipRepo, inboxRepo, policy, logger)
	service := notify.NewService(relationshipRepo, inboxRepo, resolver, pipeline, workflow, projector, emitter, logger)

	consumer, err := fernkafka.NewConsumer(fernkafka.ConsumerConfig{
		Brokers:           brokers(cfg.KafkaBrokers),
		Topic:             cfg.KafkaActivityTopic,
		GroupID:           cfg.KafkaGroupID,
		MinBytes:          1,
		MaxBytes:          10 << 20,
		MaxWait:           time.Second,
		CommitInterval:    time.Second,
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 3 * time.Second,
		RebalanceTimeout:  30 * time.Second,
	}, logger)
	if err != nil {
		return err
	}

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: promhttp.Handler(),
	}

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&startup.Func{
		Name: "metrics",
		StartFn: func(ctx context.Context) error {
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("metrics server failed")
				}
			}()
			return nil
		},
		StopFn: func(ctx context.Context) error {
			return metricsServer.Shutdown(ctx)
		},
	})
	boot.AddDependency(&startup.Func{
		Name: "consumer",
		Deps: []string{"metrics"},
		StartFn: func(ctx context.Context) error {
			return consumer.Start(ctx, func(ctx context.Context, msg *fernkafka.ReceivedMessage) error {
				_, err := service.OnActivityPublished(ctx, msg.Activity)
				return err
			})
		},
		StopFn: func(ctx context.Context) error {
			return consumer.Stop()
		},
	})

	if err := boot.Start(ctx); err != nil {
		return err
	}
	logger.Infof("%s started", cfg.AppName)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return boot.Stop(shutdownCtx)
}

func newLogger(cfg config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	if cfg.PrettyLogs {
		zapLogger, _ = zap.NewDevelopment()
	} else {
		zapLogger, _ = zap.NewProduction()
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func brokers(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
