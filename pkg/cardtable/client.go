// Package cardtable wires the card tables together: the remote store, the
// cache slots, the per-card storage managers, their controllers and the
// retry drainer.
//
// Typical usage:
//
//	client, _ := cardtable.NewClient(cardtable.DefaultConfig(), logger)
//	defer client.Close()
//
//	client.Start(ctx) // start the retry drainer
//	app, _ := client.App(ctx, cardID)
//	app.SaveProduct(ctx, form, nil)
package cardtable

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rzpsarthak13/cardtable/internal/cache"
	"github.com/rzpsarthak13/cardtable/internal/card"
	"github.com/rzpsarthak13/cardtable/internal/core"
	"github.com/rzpsarthak13/cardtable/internal/database"
	"github.com/rzpsarthak13/cardtable/internal/kvstore"
	"github.com/rzpsarthak13/cardtable/internal/registry"
	"github.com/rzpsarthak13/cardtable/internal/remote"
	"github.com/rzpsarthak13/cardtable/internal/storage"
	"github.com/rzpsarthak13/cardtable/internal/table"
	"github.com/rzpsarthak13/cardtable/internal/writeback"
	"go.uber.org/zap"
)

// ErrClientClosed is returned by a Client used after Close.
var ErrClientClosed = errors.New("client is closed")

// Client owns every connection and registry of a cardtable process.
type Client struct {
	cfg    *Config
	logger *zap.Logger

	remote  core.RemoteStore
	kv      core.KVStore
	queue   core.WriteBackQueue
	tables  *registry.TablesManager
	cards   *card.Service
	drainer *Drainer

	mu     sync.Mutex
	apps   map[string]*table.App
	closed bool
}

// NewClient connects the configured remote store, KV store and retry queue.
// A nil logger disables logging.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := openRemote(cfg, logger)
	if err != nil {
		return nil, err
	}
	store = remote.WithTimeout(store, cfg.Remote.RequestTimeout)

	kv, err := kvstore.Create(cfg.KVStore, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create KV store: %w", err)
	}

	queue, err := writeback.New(cfg.RetryQueue, kv, logger.Named("writeback"))
	if err != nil {
		_ = kv.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to create retry queue: %w", err)
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		remote: store,
		kv:     kv,
		queue:  queue,
		apps:   make(map[string]*table.App),
	}

	lifecycle := registry.NewLifecycleManager()
	lifecycle.RegisterHook(registry.LifecycleHookFunc{
		OnDeleteFunc: func(ctx context.Context, cardID string, m *storage.Manager) error {
			c.dropApp(cardID)
			if m.Cache() == nil {
				return nil
			}
			if err := m.Cache().Clear(ctx); err != nil {
				logger.Warn("cache not cleared", zap.String("card_id", cardID), zap.Error(err))
			}
			return nil
		},
	})
	c.tables = registry.NewTablesManager(c.newManager, lifecycle, logger)
	c.cards = card.NewService(store, c.tables, logger)

	if queue != nil && cfg.Drainer.Enabled {
		c.drainer = NewDrainer(queue, store, DrainerConfig{
			Rate:       cfg.Drainer.Rate,
			BatchSize:  cfg.Drainer.BatchSize,
			Interval:   cfg.Drainer.Interval,
			MaxRetries: cfg.Drainer.MaxRetries,
		}, logger, WithOrderGuard(OrderGuardFunc(c.superseded)))
	}

	logger.Info("cardtable client ready",
		zap.String("remote", cfg.Remote.Type),
		zap.String("kvstore", cfg.KVStore.Type),
		zap.String("retry_queue", cfg.RetryQueue.Type),
	)
	return c, nil
}

func openRemote(cfg *Config, logger *zap.Logger) (core.RemoteStore, error) {
	switch cfg.Remote.Type {
	case "memory":
		return remote.NewMemoryStore(), nil
	case "sql":
		db, err := database.Open(cfg.Remote.Database, logger.Named("database"))
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		if cfg.Remote.Database.Migrate {
			if err := database.Migrate(context.Background(), db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		return remote.NewSQLStore(db, logger), nil
	default:
		return nil, fmt.Errorf("unsupported remote type: %s", cfg.Remote.Type)
	}
}

func (c *Client) newManager(cardID string) *storage.Manager {
	cm := cache.NewManager(c.kv, cardID,
		cache.WithTTL(c.cfg.Cache.TTL),
		cache.WithNamespace(c.cfg.Cache.Namespace),
		cache.WithLogger(c.logger),
	)
	opts := []storage.Option{storage.WithLogger(c.logger)}
	if c.queue != nil {
		opts = append(opts, storage.WithRetryQueue(c.queue))
	}
	return storage.NewManager(cardID, c.remote, cm, opts...)
}

// superseded reports whether the loaded table of w's card has reordered
// since w was queued. Writes of cards without a loaded table are replayed.
func (c *Client) superseded(w *core.OrderWrite) bool {
	m, ok := c.tables.Lookup(w.CardID)
	return ok && m.Supersedes(w)
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

// Cards returns the card service.
func (c *Client) Cards() *card.Service { return c.cards }

// Tables returns the registry of storage managers.
func (c *Client) Tables() *registry.TablesManager { return c.tables }

// Remote returns the remote store, wrapped with the request timeout.
func (c *Client) Remote() core.RemoteStore { return c.remote }

// Drainer returns the retry drainer, or nil when retries are disabled.
func (c *Client) Drainer() *Drainer { return c.drainer }

// Table returns the storage manager of cardID. Its Init may still be running.
func (c *Client) Table(ctx context.Context, cardID string) (*storage.Manager, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.tables.GetTable(ctx, cardID)
}

// App returns the table controller of cardID, creating and initializing it
// on first use. An unknown card fails with core.ErrNotFound and registers
// nothing.
func (c *Client) App(ctx context.Context, cardID string) (*table.App, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	app, ok := c.apps[cardID]
	c.mu.Unlock()
	if ok {
		return app, nil
	}

	if _, err := c.cards.Get(ctx, cardID); err != nil {
		return nil, err
	}
	m, err := c.tables.GetTable(ctx, cardID)
	if err != nil {
		return nil, err
	}
	app = table.NewApp(m,
		table.WithAppLogger(c.logger),
		table.WithDebounceDelay(c.cfg.Table.DebounceDelay),
		table.WithMaxImageSize(c.cfg.Table.MaxImageSize),
		table.WithLocale(c.cfg.Table.Locale),
	)
	if err := app.Init(ctx); err != nil {
		app.Close()
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.apps[cardID]; ok {
		app.Close()
		return existing, nil
	}
	c.apps[cardID] = app
	return app, nil
}

func (c *Client) dropApp(cardID string) {
	c.mu.Lock()
	app, ok := c.apps[cardID]
	delete(c.apps, cardID)
	c.mu.Unlock()
	if ok {
		app.Close()
	}
}

// Start starts the retry drainer, if one is configured.
func (c *Client) Start(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.drainer != nil {
		c.drainer.Start(ctx)
	}
	return nil
}

// Stop stops the retry drainer.
func (c *Client) Stop() {
	if c.drainer != nil {
		c.drainer.Stop()
	}
}

// Close stops the drainer, waits for background table loads and releases
// every connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	apps := c.apps
	c.apps = make(map[string]*table.App)
	c.mu.Unlock()

	c.Stop()
	for _, app := range apps {
		app.Close()
	}
	c.tables.Wait()

	var errs []error
	if c.queue != nil {
		errs = append(errs, c.queue.Close())
	}
	errs = append(errs, c.kv.Close(), c.remote.Close())
	return errors.Join(errs...)
}
