// ABOUTME: CLI application wiring
// ABOUTME: Builds the cache, restoration store, API client, live channel, and record store
package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/harperreed/funnel/api"
	"github.com/harperreed/funnel/cache"
	"github.com/harperreed/funnel/config"
	"github.com/harperreed/funnel/livesync"
	"github.com/harperreed/funnel/restore"
	"github.com/harperreed/funnel/store"
)

// App holds the wired-up session collaborators.
type App struct {
	Config  *config.Config
	Cache   *cache.Adapter
	Restore *restore.Store
	API     *api.Client
	Live    *livesync.Channel
	Store   *store.Store
}

// NewApp builds a session from config. The cache degrades to in-memory when
// the on-disk store cannot be opened; the restoration database is required.
func NewApp(cfg *config.Config) (*App, error) {
	c, err := cache.Open(cfg.CacheDir())
	if err != nil {
		zap.L().Warn("on-disk cache unavailable, using in-memory", zap.Error(err))
		c, err = cache.OpenInMemory()
		if err != nil {
			return nil, fmt.Errorf("failed to open cache: %w", err)
		}
	}

	r, err := restore.Open(cfg.RestoreDB())
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to open restoration store: %w", err)
	}

	client := api.New(api.Options{
		BaseURL:   cfg.APIBaseURL,
		UserAgent: "funnel/" + Version,
	})

	var live *livesync.Channel
	if cfg.LiveSync {
		live = livesync.New(cfg.LiveSyncURL)
	}

	opts := store.Options{API: client, Cache: c, Restore: r}
	if live != nil {
		opts.Live = live
	}
	s := store.New(opts)

	return &App{
		Config:  cfg,
		Cache:   c,
		Restore: r,
		API:     client,
		Live:    live,
		Store:   s,
	}, nil
}

// Close tears the session down in dependency order.
func (a *App) Close() {
	a.Store.Close()
	_ = a.Restore.Close()
	_ = a.Cache.Close()
}
