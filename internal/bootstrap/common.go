package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/krobus00/signal-order-service/internal/config"
	"github.com/krobus00/signal-order-service/internal/constant"
	"github.com/krobus00/signal-order-service/internal/entity"
	"github.com/krobus00/signal-order-service/internal/infrastructure"
	"github.com/krobus00/signal-order-service/internal/repository"
	"github.com/krobus00/signal-order-service/internal/service/broker"
	"github.com/krobus00/signal-order-service/internal/service/contract"
	"github.com/krobus00/signal-order-service/internal/service/lock"
	"github.com/krobus00/signal-order-service/internal/service/orderengine"
	"github.com/krobus00/signal-order-service/internal/service/session"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type operation func(ctx context.Context) error

// gracefulShutdown waits for termination syscalls and doing clean up operations after received it.
func gracefulShutdown(ctx context.Context, timeout time.Duration, ops map[string]operation) <-chan struct{} {
	wait := make(chan struct{})
	go func() {
		s := make(chan os.Signal, 1)

		// add any other syscalls that you want to be notified with
		signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		<-s

		logrus.Info("shutting down")

		// set timeout for the ops to be done to prevent system hang
		timeoutFunc := time.AfterFunc(timeout, func() {
			logrus.Error(fmt.Sprintf("timeout %d ms has been elapsed, force exit", timeout.Milliseconds()))
			os.Exit(0)
		})

		defer timeoutFunc.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		var wg sync.WaitGroup

		for key, op := range ops {
			wg.Add(1)
			go func() {
				defer wg.Done()

				logrus.Info(fmt.Sprintf("cleaning up: %s", key))
				if err := op(shutdownCtx); err != nil {
					logrus.Error(fmt.Sprintf("%s: clean up failed: %s", key, err.Error()))
					return
				}

				logrus.Info(fmt.Sprintf("%s was shutdown gracefully", key))
			}()
		}

		wg.Wait()

		close(wait)
	}()

	return wait
}

// engineDeps holds everything an order engine process needs. close releases the
// resources in reverse order of acquisition.
type engineDeps struct {
	db       *sqlx.DB
	nc       *nats.Conn
	js       nats.JetStreamContext
	redis    *redis.Client
	sessions *session.Manager
	repo     *repository.OrderHistoryRepository
	engine   *orderengine.OrderEngineService
}

func newEngineDeps(ctx context.Context, events entity.OrderEventPublisher, requireJetstream bool) (*engineDeps, error) {
	deps := &engineDeps{}

	dbCfg := config.Env.Database[constant.DefaultOrderHistoryDatabase]
	db, err := infrastructure.NewDatabaseConnection(ctx, constant.DefaultOrderHistoryDatabase, dbCfg)
	if err != nil {
		return nil, err
	}
	deps.db = db
	infrastructure.StartDatabaseHealthCheck(ctx, db, dbCfg.PingInterval)

	nc, js, err := infrastructure.NewJetstream(config.Env.NatsJetstream)
	switch {
	case err == nil:
		deps.nc, deps.js = nc, js
	case requireJetstream:
		_ = db.Close()
		return nil, err
	default:
		logrus.WithError(err).Warn("async order queue disabled")
	}

	locker, redisClient, err := newLocker(config.Env.Trading.Lock)
	if err != nil {
		_ = deps.close(ctx)
		return nil, err
	}
	deps.redis = redisClient

	factory, err := newBrokerFactory(config.Env.Broker)
	if err != nil {
		_ = deps.close(ctx)
		return nil, err
	}

	deps.sessions = session.NewManager(factory, config.Env.Broker)
	deps.repo = repository.NewOrderHistoryRepository(db)
	deps.engine = orderengine.NewOrderEngineService(
		deps.sessions,
		contract.NewDirectory(config.Env.Trading.Families, config.Env.Trading.ContractTimeout),
		locker,
		deps.repo,
		events,
		deps.js,
		config.Env.Trading,
	)

	return deps, nil
}

func (d *engineDeps) close(ctx context.Context) error {
	var errs []error
	if d.sessions != nil {
		if err := d.sessions.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("broker sessions: %w", err))
		}
	}
	if d.nc != nil {
		if err := infrastructure.CloseJetstream(d.nc); err != nil {
			errs = append(errs, err)
		}
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func newBrokerFactory(cfg config.BrokerConfig) (entity.BrokerFactory, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case constant.BrokerDriverSinopac, "":
		return broker.NewSinopacBrokerFactory(cfg), nil
	case constant.BrokerDriverPaper:
		logrus.Warn("paper broker selected, orders are filled in memory")
		return broker.NewPaperBrokerFactory(cfg.Paper), nil
	default:
		return nil, fmt.Errorf("unsupported broker driver: %s", cfg.Driver)
	}
}

func newLocker(cfg config.LockConfig) (orderengine.Locker, *redis.Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case constant.LockDriverLocal, "":
		return lock.NewLocalLocker(), nil, nil
	case constant.LockDriverRedis:
		client, err := lock.NewRedisClient(config.Env.Redis[constant.RedisLock].CacheDSN)
		if err != nil {
			return nil, nil, err
		}
		return lock.NewRedisLocker(client, cfg.TTL, cfg.RetryInterval), client, nil
	default:
		return nil, nil, fmt.Errorf("unsupported lock driver: %s", cfg.Driver)
	}
}
