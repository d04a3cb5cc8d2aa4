// Command notifier runs the LifeBank notification dispatch engine: the HTTP
// API, the realtime gateway and the delivery worker in one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/lifebank/notifykit/modules/notifications"
	"github.com/lifebank/notifykit/pkg/broadcast"
	"github.com/lifebank/notifykit/pkg/config"
	"github.com/lifebank/notifykit/pkg/email"
	"github.com/lifebank/notifykit/pkg/environment"
	"github.com/lifebank/notifykit/pkg/handler"
	"github.com/lifebank/notifykit/pkg/httpserver"
	"github.com/lifebank/notifykit/pkg/logger"
	"github.com/lifebank/notifykit/pkg/metrics"
	"github.com/lifebank/notifykit/pkg/mongo"
	domain "github.com/lifebank/notifykit/pkg/notifications"
	"github.com/lifebank/notifykit/pkg/notifications/mongostore"
	"github.com/lifebank/notifykit/pkg/notifications/pgstore"
	"github.com/lifebank/notifykit/pkg/pg"
	"github.com/lifebank/notifykit/pkg/providers"
	"github.com/lifebank/notifykit/pkg/queue"
	"github.com/lifebank/notifykit/pkg/queue/redisstore"
	"github.com/lifebank/notifykit/pkg/realtime"
	"github.com/lifebank/notifykit/pkg/redis"
	"github.com/lifebank/notifykit/pkg/requestid"
)

type appConfig struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"notifier"`

	// Storage selects the record store: memory, postgres or mongo.
	Storage string `env:"NOTIFY_STORAGE" envDefault:"memory"`
	// SendMode is partial or validate_first.
	SendMode      string `env:"NOTIFY_SEND_MODE" envDefault:"partial"`
	TemplatesFile string `env:"NOTIFY_TEMPLATES_FILE"`

	TemplateCacheSize int           `env:"NOTIFY_TEMPLATE_CACHE_SIZE" envDefault:"256"`
	TemplateCacheTTL  time.Duration `env:"NOTIFY_TEMPLATE_CACHE_TTL" envDefault:"1m"`

	// RealtimeBackplane fans in-app events out through redis so that any
	// replica can reach a recipient's sockets.
	RealtimeBackplane bool   `env:"REALTIME_BACKPLANE" envDefault:"false"`
	RealtimeChannel   string `env:"REALTIME_CHANNEL" envDefault:"notifykit:realtime"`
}

const (
	storageMemory   = "memory"
	storagePostgres = "postgres"
	storageMongo    = "mongo"
	storageRedis    = "redis"
)

func main() {
	if err := run(); err != nil {
		slog.Error("notifier stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.ServiceName),
		logger.WithContextExtractors(requestid.LoggerExtractor(), environment.LoggerExtractor()),
	)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var queueCfg queue.Config
	if err := config.Load(&queueCfg); err != nil {
		return fmt.Errorf("load queue config: %w", err)
	}

	var (
		probes   []func(context.Context) error
		redisCli *goredis.Client
	)
	if queueCfg.Storage == storageRedis || cfg.RealtimeBackplane {
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return fmt.Errorf("load redis config: %w", err)
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer client.Close()
		redisCli = client
		probes = append(probes, redis.Healthcheck(client))
	}

	templates, records, recordProbe, closeStore, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if recordProbe != nil {
		probes = append(probes, recordProbe)
	}

	tasks, err := openQueue(queueCfg, redisCli)
	if err != nil {
		return err
	}

	m := metrics.New()

	gwOpts := []realtime.Option{realtime.WithLogger(log)}
	if cfg.RealtimeBackplane {
		backplane := broadcast.NewRedisBroadcaster[realtime.Envelope](redisCli, cfg.RealtimeChannel,
			broadcast.WithRedisLogger(log))
		defer backplane.Close()
		gwOpts = append(gwOpts, realtime.WithBackplane(backplane))
	}
	gateway := realtime.NewGateway(gwOpts...)
	defer gateway.Close()

	registry, err := newRegistry(gateway, log)
	if err != nil {
		return err
	}

	enqueuer, err := queue.NewEnqueuer(tasks, queue.WithDefaultQueue(queueCfg.QueueName))
	if err != nil {
		return err
	}

	mode := domain.SendModePartial
	if cfg.SendMode == string(domain.SendModeValidateFirst) {
		mode = domain.SendModeValidateFirst
	}
	cached := domain.NewCachedTemplateStore(templates, cfg.TemplateCacheSize, cfg.TemplateCacheTTL)
	orch := domain.NewOrchestrator(cached, records, enqueuer,
		domain.WithSendMode(mode),
		domain.WithObserver(m),
		domain.WithLogger(log),
	)

	worker, err := queue.NewWorker(tasks,
		queue.WithWorkerConfig(queueCfg),
		queue.WithWorkerLogger(log),
	)
	if err != nil {
		return err
	}
	worker.RegisterHandler(domain.NewDeliveryHandler(records, registry,
		domain.WithDeliveryObserver(m),
		domain.WithDeliveryLogger(log),
	))

	var srvCfg httpserver.Config
	if err := config.Load(&srvCfg); err != nil {
		return fmt.Errorf("load http config: %w", err)
	}
	srv := httpserver.NewFromConfig(srvCfg, httpserver.WithLogger(log))

	router := notifications.Router(notifications.RouterOptions{
		Notifications:   notifications.NewNotificationService(orch, handler.NewErrorHandler(log, notifications.MapError)),
		Realtime:        gateway.ServeWSHandler(),
		Metrics:         m,
		ReadinessProbes: probes,
		Logger:          log,
	})
	root := environment.Middleware(environment.Parse(cfg.Env))(router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, root) })
	g.Go(worker.Run(ctx))
	if cfg.RealtimeBackplane {
		g.Go(func() error { return gateway.Run(ctx) })
	}

	log.InfoContext(ctx, "notifier started",
		slog.String("addr", srvCfg.Addr),
		slog.String("storage", cfg.Storage),
		slog.String("queue_storage", queueCfg.Storage),
		slog.String("send_mode", string(mode)),
	)
	return g.Wait()
}

// openStores picks the template and record stores. Mongo keeps records
// only, so templates stay in memory there. Seed templates from
// TemplatesFile are written to whichever template store is chosen.
func openStores(ctx context.Context, cfg appConfig, log *slog.Logger) (domain.TemplateStore, domain.RecordStore, func(context.Context) error, func(), error) {
	seed, err := loadSeed(cfg.TemplatesFile)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	switch cfg.Storage {
	case storagePostgres:
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("load postgres config: %w", err)
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if err := pgstore.Migrate(ctx, pool, pgCfg, log); err != nil {
			pool.Close()
			return nil, nil, nil, nil, err
		}
		store := pgstore.New(pool)
		for _, t := range seed {
			if _, err := store.PutTemplate(ctx, t); err != nil {
				pool.Close()
				return nil, nil, nil, nil, fmt.Errorf("seed template %q: %w", t.Key, err)
			}
		}
		return store, store, pg.Healthcheck(pool), pool.Close, nil

	case storageMongo:
		var mongoCfg mongo.Config
		if err := config.Load(&mongoCfg); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("load mongo config: %w", err)
		}
		db, err := mongo.Connect(ctx, mongoCfg)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		closeDB := func() { _ = db.Client().Disconnect(context.Background()) }
		store := mongostore.New(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			closeDB()
			return nil, nil, nil, nil, err
		}
		return domain.NewMemoryTemplateStore(seed...), store, mongo.Healthcheck(db.Client()), closeDB, nil

	case storageMemory, "":
		return domain.NewMemoryTemplateStore(seed...), domain.NewMemoryRecordStore(), nil, func() {}, nil
	}
	return nil, nil, nil, nil, fmt.Errorf("unknown storage %q", cfg.Storage)
}

func loadSeed(path string) ([]domain.Template, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open templates file: %w", err)
	}
	defer f.Close()
	return domain.LoadTemplatesYAML(f)
}

type taskStore interface {
	queue.EnqueuerRepository
	queue.WorkerRepository
}

func openQueue(cfg queue.Config, client *goredis.Client) (taskStore, error) {
	switch cfg.Storage {
	case storageRedis:
		if client == nil {
			return nil, errors.New("redis queue storage needs a redis connection")
		}
		store, err := redisstore.New(client)
		if err != nil {
			return nil, err
		}
		return store, nil
	case storageMemory, "":
		return queue.NewMemoryStorage(), nil
	}
	return nil, fmt.Errorf("unknown queue storage %q", cfg.Storage)
}

// newRegistry builds one provider per channel. SMS and PUSH run dry when no
// gateway URL is configured; EMAIL falls back to the log sender.
func newRegistry(gateway *realtime.Gateway, log *slog.Logger) (*providers.Registry, error) {
	var emailCfg email.Config
	if err := config.Load(&emailCfg); err != nil {
		return nil, fmt.Errorf("load email config: %w", err)
	}
	var smsCfg providers.SMSConfig
	if err := config.Load(&smsCfg); err != nil {
		return nil, fmt.Errorf("load sms config: %w", err)
	}
	var pushCfg providers.PushConfig
	if err := config.Load(&pushCfg); err != nil {
		return nil, fmt.Errorf("load push config: %w", err)
	}
	var provCfg providers.Config
	if err := config.Load(&provCfg); err != nil {
		return nil, fmt.Errorf("load provider config: %w", err)
	}

	sender, err := email.New(emailCfg, log)
	if err != nil {
		return nil, err
	}
	sms, err := providers.NewSMSProvider(smsCfg, log)
	if err != nil {
		return nil, err
	}
	push, err := providers.NewPushProvider(pushCfg, log)
	if err != nil {
		return nil, err
	}

	return providers.NewRegistry([]providers.Provider{
		sms,
		providers.NewEmailProvider(sender),
		push,
		providers.NewInAppProvider(gateway),
	},
		providers.WithConfig(provCfg),
		providers.WithRegistryLogger(log),
	)
}
