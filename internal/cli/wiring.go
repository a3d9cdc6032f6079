package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/helpline/escalation-service/internal/api/http/handlers"
	"github.com/helpline/escalation-service/internal/auth"
	"github.com/helpline/escalation-service/internal/classifier"
	"github.com/helpline/escalation-service/internal/config"
	"github.com/helpline/escalation-service/internal/events"
	"github.com/helpline/escalation-service/internal/notify"
	"github.com/helpline/escalation-service/internal/observability"
	"github.com/helpline/escalation-service/internal/persistence"
	"github.com/helpline/escalation-service/internal/repository"
	"github.com/helpline/escalation-service/internal/service"
	"github.com/helpline/escalation-service/internal/team"
	"github.com/helpline/escalation-service/internal/worker"
)

const sweepLockKey = "help-requests:sweep-lock"

// wiring is the fully wired process. Close releases everything it opened.
type wiring struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	postgres *persistence.Postgres
	sqlite   *persistence.SQLite
	redis    *persistence.Redis
	kafka    *events.KafkaSink

	repo      repository.HelpRequestRepository
	roster    *team.Roster
	history   *notify.History
	pool      *worker.NotificationPool
	tokens    *auth.TokenManager
	lifecycle *service.LifecycleService
	intake    *service.IntakeService
	stats     *service.StatisticsService
	auth      *service.AuthService
}

// openStore connects the configured backend and applies migrations. Any
// failure here is fatal to the caller.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrate bool) (*wiring, error) {
	rt := &wiring{cfg: cfg, logger: logger}
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		rt.postgres = pg
		if migrate {
			if err := persistence.RunPostgresMigrations(ctx, pg.SQLDB(), logger); err != nil {
				rt.Close()
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		rt.repo = repository.NewPostgresHelpRequestRepository(pg.PoolHandle())
	case config.DriverSQLite:
		db, err := persistence.NewSQLite(ctx, cfg.SQLite, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		rt.sqlite = db
		if migrate {
			if err := persistence.RunSQLiteMigrations(ctx, db.DB, logger); err != nil {
				rt.Close()
				return nil, fmt.Errorf("migrate sqlite: %w", err)
			}
		}
		rt.repo = repository.NewSQLiteHelpRequestRepository(db.DB)
	case config.DriverMemory:
		logger.Warn("using in-memory store; help requests are lost on restart")
		rt.repo = repository.NewMemoryHelpRequestRepository()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err := rt.repo.Ping(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("store unavailable: %w", err)
	}
	return rt, nil
}

// bootstrap wires every service on top of the store.
func bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*wiring, error) {
	rt, err := openStore(ctx, cfg, logger, cfg.Store.RunMigrations)
	if err != nil {
		return nil, err
	}
	rt.metrics = observability.NewMetrics()
	rt.redis = persistence.NewRedis(ctx, cfg.Redis, logger)

	loc := cfg.Team.Location()
	if cfg.Team.RosterFile != "" {
		rt.roster, err = team.LoadFile(cfg.Team.RosterFile, loc)
		if err != nil {
			rt.Close()
			return nil, err
		}
	} else {
		rt.roster = team.NewStaticRoster()
	}
	if rt.roster.Size() == 0 {
		logger.Warn("supervisor roster is empty; every expired request will be marked unresolved")
	}

	kb := classifier.DefaultKnowledge()
	if cfg.Team.KnowledgeFile != "" {
		loaded, err := classifier.LoadKnowledge(cfg.Team.KnowledgeFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Warn("knowledge base not found; every question will be escalated",
				zap.String("path", cfg.Team.KnowledgeFile))
		case err != nil:
			rt.Close()
			return nil, err
		default:
			kb = loaded
		}
	}

	channels := []notify.Notifier{notify.NewLogNotifier(logger)}
	if webhook := notify.NewWebhookNotifier(cfg.Notification.WebhookURL, cfg.Notification.Timeout()); webhook != nil {
		channels = append(channels, webhook)
	}
	if email := notify.NewEmailNotifier(cfg.Notification.SMTPHost, cfg.Notification.SMTPPort,
		cfg.Notification.SMTPUser, cfg.Notification.SMTPPassword, cfg.Notification.EmailFrom); email != nil {
		channels = append(channels, email)
	}
	notifier := notify.NewMultiNotifier(channels...)
	rt.history = notify.NewHistory(cfg.Notification.HistorySize)
	rt.pool = worker.NewNotificationPool(notifier, rt.history, rt.metrics, logger, worker.PoolOptions{
		Workers:   cfg.Notification.Workers,
		QueueSize: cfg.Notification.QueueSize,
		Timeout:   cfg.Notification.Timeout(),
	})

	dispatcher := events.NewInMemoryDispatcher()
	rt.kafka = events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	var sink events.EventHandler
	if rt.kafka.Enabled() {
		sink = rt.kafka.Handle
	}
	service.NewAuditService(dispatcher, sink, logger).RegisterHandlers()

	var guard service.SweepGuard
	if cfg.Sweep.DistributedGuard && rt.redis.Enabled() {
		guard = persistence.NewRedisLock(rt.redis.Client, sweepLockKey, cfg.Sweep.LockTTL())
	}

	rt.lifecycle = service.NewLifecycleService(service.LifecycleDependencies{
		Repo:          rt.repo,
		Team:          rt.roster,
		Notifications: rt.pool,
		Dispatcher:    dispatcher,
		Logger:        logger,
		Metrics:       rt.metrics,
		Guard:         guard,
		Interval:      cfg.Sweep.Interval(),
		RetryAttempts: cfg.Sweep.RetryAttempts,
		RetryBackoff:  cfg.Sweep.RetryBackoff(),
	})
	rt.intake = service.NewIntakeService(classifier.NewKeywordClassifier(kb), rt.lifecycle, logger)

	if rt.redis.Enabled() {
		rt.stats = service.NewStatisticsService(rt.repo, rt.redis.Client, cfg.Stats.CacheTTL(), logger)
	} else {
		rt.stats = service.NewStatisticsService(rt.repo, nil, 0, logger)
	}
	rt.stats.RegisterHandlers(dispatcher)
	rt.tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	rt.auth = service.NewAuthService(cfg.Auth, rt.roster, rt.tokens)
	return rt, nil
}

func (rt *wiring) readinessChecks() map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{"store": rt.repo}
	if rt.redis.Enabled() {
		checks["redis"] = rt.redis
	}
	return checks
}

// Close releases connections in reverse order of acquisition.
func (rt *wiring) Close() {
	if rt.kafka != nil {
		if err := rt.kafka.Close(); err != nil {
			rt.logger.Warn("kafka writer close failed", zap.Error(err))
		}
	}
	rt.redis.Close()
	if rt.sqlite != nil {
		rt.sqlite.Close()
	}
	if rt.postgres != nil {
		rt.postgres.Close()
	}
}
