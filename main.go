package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/handlers"
	"github.com/Ramsey-B/clover/internal/repositories/blacklist"
	"github.com/Ramsey-B/clover/internal/repositories/classifierrule"
	"github.com/Ramsey-B/clover/internal/repositories/entity"
	"github.com/Ramsey-B/clover/internal/repositories/identifier"
	"github.com/Ramsey-B/clover/internal/repositories/matchdecision"
	"github.com/Ramsey-B/clover/internal/repositories/mergerecord"
	"github.com/Ramsey-B/clover/internal/repositories/relationship"
	"github.com/Ramsey-B/clover/internal/repositories/reviewqueue"
	"github.com/Ramsey-B/clover/pkg/classify"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/gate"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/processor"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/resolution"
	"github.com/Ramsey-B/clover/pkg/review"
	"github.com/Ramsey-B/clover/pkg/scoring"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

func main() {
	_ = godotenv.Load()

	var cfg config.Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	logger, flush, err := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.PrettyLogs})
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName:  cfg.AppName,
		Exporter:     cfg.TraceExporter,
		OTLPEndpoint: cfg.TraceOTLPEndpoint,
		OTLPProtocol: cfg.TraceOTLPProtocol,
		Insecure:     cfg.TraceInsecure,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		os.Exit(1)
	}

	var (
		db       database.DB
		sqlxDB   *sqlx.DB
		cache    *redis.Client
		producer *kafka.Producer
		consumer *kafka.Consumer
		server   *echo.Echo
		resolver *resolution.Engine
	)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)

	boot.AddDependency(startup.Dependency{
		Name: "postgres",
		StartFunc: func(ctx context.Context) error {
			var err error
			db, sqlxDB, err = database.Connect(database.Config{
				Host:            cfg.DatabaseHost,
				Port:            cfg.DatabasePort,
				User:            cfg.DatabaseUserName,
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

			driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
			if err != nil {
				return err
			}
			migrations := database.NewMigrationService(logger, database.MigrationConfig{
				FolderPath:   cfg.DatabaseMigrationFolderPath,
				Version:      uint(cfg.DatabaseMigrationVersion),
				AutoRollback: cfg.DatabaseMigrationAutoRollback,
			})
			return migrations.Migrate(cfg.DatabaseName, driver)
		},
		StopFunc: func(context.Context) error { return sqlxDB.Close() },
	})

	boot.AddDependency(startup.Dependency{
		Name: "redis",
		StartFunc: func(ctx context.Context) error {
			var err error
			cache, err = redis.NewClient(redis.Config{
				Host:     cfg.RedisHost,
				Port:     cfg.RedisPort,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			}, logger)
			return err
		},
		StopFunc: func(context.Context) error { return cache.Close() },
	})

	boot.AddDependency(startup.Dependency{
		Name: "kafka-producer",
		StartFunc: func(ctx context.Context) error {
			producer = kafka.NewProducer(kafka.ProducerConfig{
				Brokers:      cfg.KafkaBrokers,
				Topic:        cfg.KafkaOutputTopic,
				BatchSize:    cfg.KafkaBatchSize,
				BatchTimeout: cfg.KafkaBatchTimeout,
				RequiredAcks: cfg.KafkaRequiredAcks,
				Compression:  cfg.KafkaCompression,
			}, logger)
			return nil
		},
		StopFunc: func(context.Context) error { return producer.Close() },
	})

	boot.AddDependency(startup.Dependency{
		Name:  "api",
		Needs: []string{"postgres", "redis", "kafka-producer"},
		StartFunc: func(ctx context.Context) error {
			var err error
			server, resolver, err = buildServer(ctx, cfg, db, cache, producer, logger)
			if err != nil {
				return err
			}

			go func() {
				if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("HTTP server stopped unexpectedly")
				}
			}()
			return nil
		},
		StopFunc: func(ctx context.Context) error { return server.Shutdown(ctx) },
	})

	if cfg.KafkaConsumerEnabled {
		boot.AddDependency(startup.Dependency{
			Name:  "kafka-consumer",
			Needs: []string{"api"},
			StartFunc: func(ctx context.Context) error {
				proc := processor.NewProcessor(resolver, logger)
				consumer = kafka.NewConsumer(kafka.ConsumerConfig{
					Brokers:       cfg.KafkaBrokers,
					Topic:         cfg.KafkaInputTopic,
					ConsumerGroup: cfg.KafkaConsumerGroup,
				}, logger, proc.HandleMessage)
				return consumer.Start(ctx)
			},
			StopFunc: func(context.Context) error { return consumer.Stop() },
		})
	}

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start service")
		os.Exit(1)
	}
	logger.WithField("port", cfg.Port).Infof("%s started", cfg.AppName)

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to stop cleanly")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to flush traces")
	}
}

// buildServer wires repositories, engines, and handlers into the HTTP server.
// The resolution engine is returned separately so the Kafka consumer can feed
// it through the same funnel.
func buildServer(ctx context.Context, cfg config.Config, db database.DB, cache *redis.Client, producer *kafka.Producer, logger ectologger.Logger) (*echo.Echo, *resolution.Engine, error) {
	entities := entity.NewRepository(db, logger)
	identifiers := identifier.NewRepository(db, logger)
	relationships := relationship.NewRepository(db, logger)
	decisions := matchdecision.NewRepository(db, logger)
	mergeRecords := mergerecord.NewRepository(db, logger)
	blacklists := blacklist.NewRepository(db, logger)
	rules := classifierrule.NewRepository(db, logger)
	reviewItems := reviewqueue.NewRepository(db, logger)

	classifier := classify.New(logger)
	storedRules, err := rules.ListActive(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := classifier.Load(storedRules); err != nil {
		return nil, nil, err
	}

	gateSvc := gate.New(blacklists, classifier, cfg.OrgEmailDomains, logger)
	scorer := scoring.New(identifiers, scoring.Config{
		EmailExactScore:     cfg.EmailExactScore,
		PhoneExactScore:     cfg.PhoneExactScore,
		PhoneConflictScore:  cfg.PhoneConflictScore,
		AddressExactScore:   cfg.AddressExactScore,
		AddressNameScore:    cfg.AddressNameScore,
		NameFuzzyThreshold:  cfg.NameFuzzyThreshold,
		NameConflictCeiling: cfg.NameConflictCeiling,
		SoftBlacklistCap:    cfg.SoftBlacklistCap,
		ExtraRuleBonus:      cfg.ExtraRuleBonus,
		MaxPersisted:        cfg.MaxPersistedCandidates,
	}, logger)

	emitter := events.NewEmitter(producer, logger)
	locker := redis.NewLocker(cache, "clover:", cfg.LockWaitTimeout)

	resolver := resolution.NewEngine(db, gateSvc, scorer, classifier, entities, identifiers, decisions, reviewItems, relationships, locker, emitter, resolution.Config{
		AutoMatchThreshold:   cfg.AutoMatchThreshold,
		ReviewThreshold:      cfg.ReviewThreshold,
		HouseholdNameCeiling: cfg.HouseholdNameCeiling,
		ThresholdVersion:     cfg.ThresholdVersion,
		LockTTL:              cfg.ResolveLockTTL,
	}, cfg.MaxPersistedCandidates, logger)

	merger := merging.NewEngine(db, entities, identifiers, relationships, mergeRecords, decisions, locker, emitter, cfg.MergeLockTTL, logger)
	reviewSvc := review.NewService(db, reviewItems, entities, identifiers, merger, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	handlers.NewHealthHandler(map[string]handlers.Pinger{
		"postgres": db.PingContext,
		"redis":    cache.Ping,
	}, logger).Register(e)

	api := e.Group("/api/v1")
	handlers.NewResolveHandler(resolver, logger).Register(api.Group("/resolve"))
	handlers.NewReviewHandler(reviewSvc, logger).Register(api.Group("/reviews"))
	handlers.NewMergeHandler(merger, logger).Register(api.Group("/merges"))
	handlers.NewDecisionHandler(decisions, logger).Register(api.Group("/decisions"))
	handlers.NewBlacklistHandler(blacklists, cfg.BlacklistMinDistinctNames, logger).Register(api.Group("/blacklist"))
	handlers.NewEntityHandler(entities, identifiers, merger, logger).Register(api.Group("/entities"))

	return e, resolver, nil
}
