package di

import (
	"context"
	"fmt"
	"net/http"

	"github.com/woragis/woragis-sub002/application/ports"
	"github.com/woragis/woragis-sub002/application/services"
	domainconfig "github.com/woragis/woragis-sub002/domain/config"
	"github.com/woragis/woragis-sub002/infrastructure/config"
	"github.com/woragis/woragis-sub002/infrastructure/messaging/eventbridge"
	"github.com/woragis/woragis-sub002/infrastructure/messaging/logging"
	"github.com/woragis/woragis-sub002/infrastructure/observability"
	"github.com/woragis/woragis-sub002/infrastructure/persistence/decorators"
	"github.com/woragis/woragis-sub002/infrastructure/persistence/dynamodb"
	"github.com/woragis/woragis-sub002/infrastructure/persistence/memory"
	"github.com/woragis/woragis-sub002/infrastructure/persistence/postgres"
	"github.com/woragis/woragis-sub002/interfaces/http/rest"
	"github.com/woragis/woragis-sub002/pkg/auth"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
)

const serviceName = "idea-canvas"

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		zapCfg.Level = level
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, err
	}
	logger = logger.With(zap.String("service", serviceName), zap.String("environment", cfg.Environment))
	return logger, func() { _ = logger.Sync() }, nil
}

// ProvideDomainConfig publishes the loaded domain rules. The config
// watcher swaps them at runtime.
func ProvideDomainConfig(cfg *config.Config) *domainconfig.Holder {
	return domainconfig.NewHolder(&cfg.Domain)
}

// ProvideCollector creates the metrics collector.
func ProvideCollector() *observability.Collector {
	return observability.NewCollector("idea_canvas")
}

// ProvideTracerProvider installs the global tracer provider.
func ProvideTracerProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("Failed to shut down tracer provider", zap.Error(err))
		}
	}
	return tp, cleanup, nil
}

// ProvideAWSConfig loads the AWS SDK configuration. It is only called for
// AWS-backed storage or events.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Storage.Region))
}

// ProvideNodeRepository opens the configured store and wraps it with the
// tracing, metrics and circuit breaker decorators.
func ProvideNodeRepository(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	collector *observability.Collector,
) (ports.NodeRepository, func(), error) {
	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	var repo ports.NodeRepository = store
	repo = decorators.NewTracingRepository(repo, cfg.Storage.Backend)
	repo = decorators.NewMetricsRepository(repo, collector)
	if cfg.CircuitBreaker.Enabled {
		repo = decorators.NewCircuitBreakerRepository(repo,
			decorators.DefaultCircuitBreakerConfig(cfg.Storage.Backend), logger, collector)
	}

	logger.Info("Node repository initialized",
		zap.String("backend", cfg.Storage.Backend),
		zap.Bool("circuit_breaker", cfg.CircuitBreaker.Enabled),
	)
	return repo, cleanup, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.NodeRepository, func(), error) {
	noop := func() {}
	switch cfg.Storage.Backend {
	case config.StorageMemory:
		return memory.NewNodeRepository(logger), noop, nil

	case config.StorageDynamoDB:
		awsCfg, err := ProvideAWSConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
			if cfg.Storage.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			}
		})
		return dynamodb.NewNodeRepository(client, cfg.Storage.TableName, logger), noop, nil

	case config.StoragePostgres:
		var (
			repo *postgres.NodeRepository
			err  error
		)
		if cfg.Storage.AutoMigrate {
			repo, err = postgres.Open(cfg.Storage.DatabaseURL, logger)
		} else {
			db, openErr := postgres.OpenDB(cfg.Storage.DatabaseURL)
			if openErr == nil {
				repo = postgres.NewNodeRepository(db, logger)
			}
			err = openErr
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		cleanup := func() {
			if err := repo.Close(); err != nil {
				logger.Warn("Failed to close database", zap.Error(err))
			}
		}
		return repo, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// ProvideHealthChecker exposes the repository's ping for the readiness
// probe.
func ProvideHealthChecker(repo ports.NodeRepository) ports.HealthChecker {
	if hc, ok := repo.(ports.HealthChecker); ok {
		return hc
	}
	return nil
}

// ProvideEventPublisher creates the domain event publisher.
func ProvideEventPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.EventPublisher, error) {
	switch cfg.Events.Publisher {
	case config.EventsEventBridge:
		awsCfg, err := ProvideAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return eventbridge.NewPublisher(awseventbridge.NewFromConfig(awsCfg), cfg.Events.EventBusName, logger), nil
	case config.EventsLog, "":
		return logging.NewPublisher(logger), nil
	default:
		return nil, fmt.Errorf("unknown event publisher %q", cfg.Events.Publisher)
	}
}

// ProvideNodeService creates the node application service.
func ProvideNodeService(
	repo ports.NodeRepository,
	publisher ports.EventPublisher,
	holder *domainconfig.Holder,
	logger *zap.Logger,
) *services.NodeService {
	return services.NewNodeService(repo, publisher, holder, logger)
}

// ProvideJWTValidator returns nil when no secret is configured, which
// puts the API in development identity mode.
func ProvideJWTValidator(cfg *config.Config, logger *zap.Logger) (*auth.JWTValidator, error) {
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("No JWT secret configured, trusting the X-User-ID header")
		return nil, nil
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SecretKey: cfg.Auth.JWTSecret,
		Issuer:    cfg.Auth.JWTIssuer,
	})
}

// ProvideHTTPHandler builds the chi router.
func ProvideHTTPHandler(
	service *services.NodeService,
	health ports.HealthChecker,
	validator *auth.JWTValidator,
	collector *observability.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) http.Handler {
	return rest.NewRouter(service, health, validator, collector, rest.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		ServiceName:    serviceName,
		Debug:          cfg.IsDevelopment(),
	}, logger).Setup()
}

// ProvideConfigWatcher returns nil unless the config came from a file.
func ProvideConfigWatcher(cfg *config.Config, holder *domainconfig.Holder, logger *zap.Logger) *config.Watcher {
	if cfg.ConfigFile == "" {
		return nil
	}
	return config.NewWatcher(cfg.ConfigFile, cfg.Environment, holder, logger)
}
