package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	natsio "github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/tasktrail-api/internal/api"
	"github.com/phrazzld/tasktrail-api/internal/cache"
	"github.com/phrazzld/tasktrail-api/internal/config"
	"github.com/phrazzld/tasktrail-api/internal/events"
	"github.com/phrazzld/tasktrail-api/internal/job"
	"github.com/phrazzld/tasktrail-api/internal/metrics"
	"github.com/phrazzld/tasktrail-api/internal/notify"
	"github.com/phrazzld/tasktrail-api/internal/pagination"
	natsqueue "github.com/phrazzld/tasktrail-api/internal/platform/nats"
	"github.com/phrazzld/tasktrail-api/internal/platform/postgres"
	redisstore "github.com/phrazzld/tasktrail-api/internal/platform/redis"
	"github.com/phrazzld/tasktrail-api/internal/service"
	"github.com/phrazzld/tasktrail-api/internal/service/auth"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config  *config.Config
	logger  *slog.Logger
	db      *sql.DB
	metrics *metrics.Metrics

	jwtService      auth.JWTService
	taskService     api.TaskService
	activityService api.ActivityService

	// Exactly one of runner and natsQueue is set, per queue.driver.
	runner    *job.Runner
	natsQueue *natsqueue.JobQueue
	natsConn  *natsio.Conn

	redisClient *goredis.Client
	memoryCache *cache.MemoryStore
}

// newApplication creates a new application instance with all dependencies
// initialized and the job queue started. On failure every resource acquired
// so far, the database included, is released.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (_ *application, err error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: metrics.New(),
	}
	defer func() {
		if err != nil {
			app.cleanup()
		}
	}()

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	cacheStore, err := app.setupCache(ctx)
	if err != nil {
		return nil, err
	}
	paginator := pagination.NewPaginatorFromConfig(cacheStore, logger, app.metrics, cfg.Pagination, cfg.Cache)

	users := postgres.NewPostgresUserStore(db)
	projects := postgres.NewPostgresProjectStore(db)
	tags := postgres.NewPostgresTagStore(db)
	tasks := postgres.NewPostgresTaskStore(db)
	activities := postgres.NewPostgresActivityStore(db)

	activityService, err := service.NewActivityService(activities, tasks, users, paginator, logger, app.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create activity service: %w", err)
	}
	app.activityService = activityService

	registry := job.NewRegistry()
	sender, err := notify.NewSender(cfg.SMTP, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create email sender: %w", err)
	}
	registry.Register(events.TaskAssigned, notify.NewTaskAssignedHandler(sender, logger))

	queue, err := app.setupQueue(ctx, registry)
	if err != nil {
		return nil, err
	}

	emitter := events.NewInMemoryEventEmitter(logger)
	enqueuer := job.NewEventHandler(queue, logger)
	enqueuer.Route(events.TaskAssigned, job.Options{
		Attempts: cfg.Notifications.Attempts,
		Backoff:  cfg.Notifications.Backoff,
	})
	emitter.RegisterHandler(enqueuer)

	app.taskService, err = service.NewTaskService(
		tasks, users, projects, tags,
		activityService, paginator, emitter, logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	logger.Info("application initialized successfully")
	return app, nil
}

// setupCache returns the pagination cache store selected by cache.driver.
func (app *application) setupCache(ctx context.Context) (cache.Store, error) {
	switch app.config.Cache.Driver {
	case "redis":
		client, err := redisstore.NewClient(ctx, app.config.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.redisClient = client
		app.logger.Info("redis pagination cache initialized", "addr", app.config.Redis.Addr)
		return redisstore.NewCacheStore(client), nil
	default:
		app.memoryCache = cache.NewMemoryStore()
		app.logger.Info("in-memory pagination cache initialized")
		return app.memoryCache, nil
	}
}

// setupQueue creates and starts the job queue selected by queue.driver.
func (app *application) setupQueue(ctx context.Context, registry *job.Registry) (job.Queue, error) {
	switch app.config.Queue.Driver {
	case "nats":
		nc, err := natsqueue.Connect(app.config.NATS)
		if err != nil {
			return nil, err
		}
		app.natsConn = nc
		q, err := natsqueue.NewJobQueue(ctx, nc, app.config.NATS.Stream, registry, app.logger, app.metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to create nats job queue: %w", err)
		}
		if err := q.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start nats job queue: %w", err)
		}
		app.natsQueue = q
		return q, nil
	default:
		runner := job.NewRunner(
			postgres.NewPostgresJobStore(app.db),
			registry,
			job.RunnerConfigFromQueue(app.config.Queue),
			app.logger,
			app.metrics,
		)
		if err := runner.Start(); err != nil {
			return nil, fmt.Errorf("failed to start job runner: %w", err)
		}
		app.runner = runner
		return runner, nil
	}
}

// Run serves HTTP until ctx is canceled.
func (app *application) Run(ctx context.Context) error {
	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.runner != nil {
		app.runner.Stop()
	}
	if app.natsQueue != nil {
		app.natsQueue.Stop()
	}
	if app.natsConn != nil {
		if err := app.natsConn.Drain(); err != nil {
			app.logger.Error("error draining nats connection", "error", err)
		}
	}
	if app.memoryCache != nil {
		app.memoryCache.Stop()
	}
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}
