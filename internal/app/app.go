// Package app builds the long-lived services the commands share: the issue store,
// the fetcher, queue endpoints and the page archive. Connections to Postgres and the
// broker are retried within the startup budget before giving up.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/comic-crawler/internal/comic"
	"github.com/JakeFAU/comic-crawler/internal/config"
	collyfetcher "github.com/JakeFAU/comic-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/comic-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/comic-crawler/internal/queue"
	amqpqueue "github.com/JakeFAU/comic-crawler/internal/queue/amqp"
	queuememory "github.com/JakeFAU/comic-crawler/internal/queue/memory"
	pubsubqueue "github.com/JakeFAU/comic-crawler/internal/queue/pubsub"
	"github.com/JakeFAU/comic-crawler/internal/retry"
	"github.com/JakeFAU/comic-crawler/internal/storage/blob/gcs"
	"github.com/JakeFAU/comic-crawler/internal/storage/blob/local"
	blobmemory "github.com/JakeFAU/comic-crawler/internal/storage/blob/memory"
	"github.com/JakeFAU/comic-crawler/internal/storage/memory"
	"github.com/JakeFAU/comic-crawler/internal/storage/postgres"
)

// Store is the storage surface the commands need.
type Store interface {
	comic.Store
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close()
}

// App holds shared services. Accessors create a service on first use and reuse it.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	policy retry.Policy

	mu        sync.Mutex
	store     Store
	fetcher   *collyfetcher.Fetcher
	broker    *queuememory.Broker
	amqpConn  *amqpqueue.Connection
	pubsub    *pubsub.Client
	gcs       *storage.Client
	endpoints []interface{ Close() error }
}

// New creates an App. No connections are opened until a service is requested.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		policy: retry.Policy{
			MaxAttempts: cfg.Startup.MaxAttempts,
			Interval:    cfg.RetryInterval(),
		},
	}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store opens the configured issue store, applying the schema when db.migrate is set.
func (a *App) Store(ctx context.Context) (Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		return a.store, nil
	}
	if err := a.cfg.ValidateStore(); err != nil {
		return nil, err
	}

	var store Store
	switch a.cfg.DB.Driver {
	case config.StoreDriverMemory:
		a.logger.Warn("using in-memory store; issues are lost on exit")
		store = memory.NewIssueStore()
	default:
		pgCfg := postgres.Config{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetime) * time.Second,
		}
		pg, err := retry.Do(ctx, a.policy, a.logger, "postgres", func(ctx context.Context) (*postgres.IssueStore, error) {
			return postgres.NewIssueStore(ctx, pgCfg)
		})
		if err != nil {
			return nil, err
		}
		store = pg
	}

	if a.cfg.DB.Migrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	a.logger.Info("issue store ready", zap.String("driver", a.cfg.DB.Driver))
	a.store = store
	return store, nil
}

// Fetcher returns the shared page and image fetcher.
func (a *App) Fetcher() *collyfetcher.Fetcher {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fetcher == nil {
		a.fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:    a.cfg.Fetcher.UserAgent,
			PageTimeout:  a.cfg.PageTimeout(),
			ImageTimeout: a.cfg.ImageTimeout(),
			MaxBodyBytes: a.cfg.Fetcher.MaxBodyBytes,
			Limiter: ratelimit.New(ratelimit.Config{
				RequestsPerSecond: a.cfg.Fetcher.RequestsPerSecond,
				Burst:             a.cfg.Fetcher.Burst,
			}),
		})
	}
	return a.fetcher
}

// Publisher opens a publisher on the configured queue driver.
func (a *App) Publisher(ctx context.Context) (queue.Publisher, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.cfg.ValidateQueue(); err != nil {
		return nil, err
	}

	var pub queue.Publisher
	switch a.cfg.Queue.Driver {
	case config.QueueDriverMemory:
		pub = a.memoryBroker()
	case config.QueueDriverPubSub:
		client, err := a.pubsubClient(ctx)
		if err != nil {
			return nil, err
		}
		pub = pubsubqueue.NewPublisher(client, a.cfg.Queue.PubSub.Topic)
	default:
		conn, err := a.amqpConnection(ctx)
		if err != nil {
			return nil, err
		}
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		p, err := amqpqueue.NewPublisher(ch, a.cfg.Queue.Name)
		if err != nil {
			return nil, err
		}
		pub = p
	}
	a.endpoints = append(a.endpoints, pub)
	return pub, nil
}

// Consumer opens a single-credit consumer on the configured queue driver. Each call
// returns an independent consumer.
func (a *App) Consumer(ctx context.Context) (queue.Consumer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.cfg.ValidateQueue(); err != nil {
		return nil, err
	}

	logger := a.logger.Named("queue")
	var consumer queue.Consumer
	switch a.cfg.Queue.Driver {
	case config.QueueDriverMemory:
		consumer = a.memoryBroker()
	case config.QueueDriverPubSub:
		client, err := a.pubsubClient(ctx)
		if err != nil {
			return nil, err
		}
		consumer = pubsubqueue.NewConsumer(client, a.cfg.Queue.PubSub.Subscription, logger)
	default:
		conn, err := a.amqpConnection(ctx)
		if err != nil {
			return nil, err
		}
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		c, err := amqpqueue.NewConsumer(ch, a.cfg.Queue.Name, logger)
		if err != nil {
			return nil, err
		}
		consumer = c
	}
	a.endpoints = append(a.endpoints, consumer)
	return consumer, nil
}

// Archive returns the configured page archive, or nil when archiving is disabled.
func (a *App) Archive(ctx context.Context) (comic.BlobStore, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.cfg.Archive.Driver {
	case config.ArchiveDriverLocal:
		return local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
	case config.ArchiveDriverMemory:
		return blobmemory.NewBlobStore(), nil
	case config.ArchiveDriverGCS:
		if a.gcs == nil {
			client, err := storage.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("create gcs client: %w", err)
			}
			a.gcs = client
		}
		return gcs.New(a.gcs, gcs.Config{Bucket: a.cfg.Archive.GCSBucket})
	default:
		return nil, nil
	}
}

// Close shuts down queue endpoints, then broker clients, then the store.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logger.Info("shutting down services")

	var errs []error
	for _, ep := range a.endpoints {
		errs = append(errs, ep.Close())
	}
	a.endpoints = nil
	if a.broker != nil {
		errs = append(errs, a.broker.Close())
		a.broker = nil
	}
	if a.amqpConn != nil {
		errs = append(errs, a.amqpConn.Close())
		a.amqpConn = nil
	}
	if a.pubsub != nil {
		errs = append(errs, a.pubsub.Close())
		a.pubsub = nil
	}
	if a.gcs != nil {
		errs = append(errs, a.gcs.Close())
		a.gcs = nil
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
	}
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
}

func (a *App) memoryBroker() *queuememory.Broker {
	if a.broker == nil {
		a.broker = queuememory.NewBroker()
	}
	return a.broker
}

func (a *App) amqpConnection(ctx context.Context) (*amqpqueue.Connection, error) {
	if a.amqpConn != nil {
		return a.amqpConn, nil
	}
	url := a.cfg.Queue.AMQP.AMQPURL()
	conn, err := retry.Do(ctx, a.policy, a.logger, "rabbitmq", func(context.Context) (*amqpqueue.Connection, error) {
		return amqpqueue.Dial(url)
	})
	if err != nil {
		return nil, err
	}
	a.amqpConn = conn
	return conn, nil
}

func (a *App) pubsubClient(ctx context.Context) (*pubsub.Client, error) {
	if a.pubsub != nil {
		return a.pubsub, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.Queue.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	a.pubsub = client
	return client, nil
}
