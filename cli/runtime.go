package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/config"
	"github.com/xraph/jobqueue/failed"
	"github.com/xraph/jobqueue/queue"
	bunstore "github.com/xraph/jobqueue/store/bun"
	"github.com/xraph/jobqueue/store/memory"
	mongostore "github.com/xraph/jobqueue/store/mongo"
	redisstore "github.com/xraph/jobqueue/store/redis"
)

// Runtime holds the clients, queue manager and failed-job store one
// command invocation works with.
type Runtime struct {
	Settings config.Settings
	Logger   *slog.Logger
	Manager  *queue.Manager
	Failed   failed.Store

	redis   goredis.UniversalClient
	mongo   *mongod.Database
	db      *bun.DB
	closers []func(ctx context.Context) error
}

// Open connects a client for every driver the configured connections and
// the failed-job store use, and registers their connectors.
func Open(ctx context.Context, s config.Settings, logger *slog.Logger) (*Runtime, error) {
	conns, err := s.Connections()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Settings: s,
		Logger:   logger,
		Manager:  queue.NewManager(queue.WithLogger(logger)),
	}
	conns.Apply(rt.Manager)

	failedDriver := s.FailedDriver
	if failedDriver == "" {
		failedDriver = conns.Configs[conns.Default].Driver
	}

	drivers := conns.Drivers()
	if !slices.Contains(drivers, failedDriver) {
		drivers = append(drivers, failedDriver)
	}
	for _, d := range drivers {
		if err := rt.register(ctx, d); err != nil {
			return nil, errors.Join(err, rt.Close(ctx))
		}
	}

	rt.Failed, err = rt.failedStore(ctx, failedDriver)
	if err != nil {
		return nil, errors.Join(err, rt.Close(ctx))
	}
	return rt, nil
}

func (rt *Runtime) register(ctx context.Context, driver string) error {
	s := rt.Settings

	switch driver {
	case redisstore.Driver:
		opts, err := goredis.ParseURL(s.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		rt.redis = client
		rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
		rt.Manager.AddConnector(driver, redisstore.NewConnector(client, redisstore.WithLogger(rt.Logger)))

	case mongostore.Driver:
		client, err := mongostore.Dial(ctx, s.MongoURI)
		if err != nil {
			return err
		}
		rt.mongo = client.Database(s.MongoDatabase)
		rt.closers = append(rt.closers, client.Disconnect)
		rt.Manager.AddConnector(driver, mongostore.NewConnector(rt.mongo, mongostore.WithLogger(rt.Logger)))

	case bunstore.Driver:
		db, err := bunstore.Open(s.DatabaseURL)
		if err != nil {
			return err
		}
		rt.db = db
		rt.closers = append(rt.closers, func(context.Context) error { return db.Close() })
		rt.Manager.AddConnector(driver, bunstore.NewConnector(db, bunstore.WithLogger(rt.Logger)))

	case memory.Driver:
		rt.Manager.AddConnector(driver, memory.NewConnector())

	default:
		return fmt.Errorf("%w: %q", jobqueue.ErrUnknownDriver, driver)
	}

	rt.Logger.Debug("queue driver registered", slog.String("driver", driver))
	return nil
}

func (rt *Runtime) failedStore(ctx context.Context, driver string) (failed.Store, error) {
	name := rt.Settings.FailedCollection

	switch driver {
	case redisstore.Driver:
		return redisstore.NewFailedStore(rt.redis, name), nil
	case mongostore.Driver:
		return mongostore.NewFailedStore(rt.mongo, name), nil
	case bunstore.Driver:
		f := bunstore.NewFailedStore(rt.db, name)
		if err := f.Migrate(ctx); err != nil {
			return nil, err
		}
		return f, nil
	case memory.Driver:
		return memory.NewFailedStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q for failed jobs", jobqueue.ErrUnknownDriver, driver)
	}
}

// Close closes resolved backends and then the clients, newest first.
func (rt *Runtime) Close(ctx context.Context) error {
	errs := []error{rt.Manager.Close()}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i](ctx))
	}
	rt.closers = nil
	return errors.Join(errs...)
}
