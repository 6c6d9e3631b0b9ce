package app

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/you-humble/genstudio/internal/infra/config"
	"github.com/you-humble/genstudio/internal/infra/events"
	"github.com/you-humble/genstudio/internal/infra/provider"
	imagestore "github.com/you-humble/genstudio/internal/infra/store/image"
	taskstore "github.com/you-humble/genstudio/internal/infra/store/task"
	mio "github.com/you-humble/genstudio/internal/libs/minio"
	natsq "github.com/you-humble/genstudio/internal/libs/nats"
	rediscli "github.com/you-humble/genstudio/internal/libs/redis"
	"github.com/you-humble/genstudio/internal/transport"
	"github.com/you-humble/genstudio/internal/usecase"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const defaultCfgPath = "./configs/local.yaml"

type Router interface {
	MountRoutes(*http.ServeMux) *http.ServeMux
}

type dependencyInjector struct {
	cfg    *config.Config
	logger *slog.Logger

	redis     *redis.Client
	taskRepo  usecase.TaskRepository
	imgStore  usecase.ImageStore
	generator usecase.Generator

	natsConn *nats.Conn
	js       nats.JetStreamContext
	events   usecase.EventPublisher

	usecase transport.Usecase
	handler transport.Handler
	router  Router
}

func newDI() *dependencyInjector {
	return &dependencyInjector{}
}

func (di *dependencyInjector) Config() *config.Config {
	if di.cfg == nil {
		path := os.Getenv("CONFIG_PATH")
		if path == "" {
			path = defaultCfgPath
		}
		di.cfg = config.MustLoad(path)
	}

	return di.cfg
}

func (di *dependencyInjector) Logger() *slog.Logger {
	if di.logger == nil {
		level := slog.LevelInfo
		if err := level.UnmarshalText([]byte(di.Config().LogLevel)); err != nil {
			level = slog.LevelInfo
		}
		di.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		}))
	}

	slog.SetDefault(di.logger)
	return di.logger
}

func (di *dependencyInjector) RedisClient(ctx context.Context) *redis.Client {
	if di.redis == nil {
		cfg := di.Config().Redis
		client, err := rediscli.NewClient(rediscli.Config{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		if err != nil {
			log.Fatalf("redis client: %+v", err)
		}

		di.redis = client
		di.Logger().Info("connected to redis", slog.String("addr", cfg.Addr))
	}
	return di.redis
}

func (di *dependencyInjector) TaskRepository(ctx context.Context) usecase.TaskRepository {
	if di.taskRepo == nil {
		di.taskRepo = taskstore.NewRedisTaskStore(di.RedisClient(ctx), di.Config().TaskTTL)
	}
	return di.taskRepo
}

func (di *dependencyInjector) ImageStore(ctx context.Context) usecase.ImageStore {
	if di.imgStore == nil {
		cfg := di.Config().MinIO

		store, err := imagestore.NewMinIOStore(ctx, mio.Config{
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			UseSSL:          cfg.UseSSL,
			Bucket:          cfg.Bucket,
		}, cfg.URLExpiry)
		if err != nil {
			log.Fatalf("ImageStore minio: %+v", err)
		}

		di.imgStore = store
		di.Logger().Info(
			"initialized MinIO image store",
			slog.String("endpoint", cfg.Endpoint),
			slog.String("bucket", cfg.Bucket),
		)
	}

	return di.imgStore
}

func (di *dependencyInjector) Generator(ctx context.Context) usecase.Generator {
	if di.generator == nil {
		cfg := di.Config().Provider
		di.generator = provider.NewClient(provider.Config{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			CallbackURL: cfg.CallbackURL,
			Timeout:     cfg.Timeout,
		})
		di.Logger().Info("initialized generation provider client",
			slog.String("base_url", cfg.BaseURL),
			slog.String("model", cfg.Model),
		)
	}
	return di.generator
}

func (di *dependencyInjector) NATSConn(ctx context.Context) *nats.Conn {
	if di.natsConn == nil {
		cfg := di.Config().NATS
		nc, err := natsq.NewConnect(cfg.URL, natsq.Config{
			Name:          cfg.Name,
			MaxReconnects: cfg.MaxReconnects,
		})
		if err != nil {
			log.Fatalf("NATS connect: %+v", err)
		}
		di.natsConn = nc
	}
	return di.natsConn
}

func (di *dependencyInjector) JetStream(ctx context.Context) nats.JetStreamContext {
	if di.js == nil {
		cfg := di.Config().NATS
		js, err := natsq.NewJetStream(di.NATSConn(ctx), &nats.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{cfg.Subject},
			Storage:  nats.FileStorage,
			Replicas: 1,
		})
		if err != nil {
			log.Fatalf("DI JetStream: %+v", err)
		}

		di.js = js
	}
	return di.js
}

func (di *dependencyInjector) Events(ctx context.Context) usecase.EventPublisher {
	if di.events == nil {
		di.events = events.New(di.JetStream(ctx), di.Config().NATS.Subject)
	}
	return di.events
}

func (di *dependencyInjector) Usecase(ctx context.Context) transport.Usecase {
	if di.usecase == nil {
		di.usecase = usecase.New(
			di.TaskRepository(ctx),
			di.Generator(ctx),
			di.ImageStore(ctx),
			di.Events(ctx),
		)
	}

	return di.usecase
}

func (di *dependencyInjector) Handler(ctx context.Context) transport.Handler {
	if di.handler == nil {
		di.handler = transport.NewHandler(di.Config().MaxUploadBytesMb, di.Usecase(ctx))
	}

	return di.handler
}

func (di *dependencyInjector) Router(ctx context.Context) Router {
	if di.router == nil {
		di.router = transport.NewRouter(di.Handler(ctx))
	}

	return di.router
}

func (di *dependencyInjector) Close() {
	if di.natsConn != nil {
		if err := di.natsConn.Drain(); err != nil {
			slog.Warn("drain nats", slog.String("error", err.Error()))
		}
	}
	if di.redis != nil {
		if err := di.redis.Close(); err != nil {
			slog.Warn("close redis", slog.String("error", err.Error()))
		}
	}
}
