package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/marcwinter/streamlens/internal/cache"
	"github.com/marcwinter/streamlens/internal/config"
	"github.com/marcwinter/streamlens/internal/scheduler"
	"github.com/marcwinter/streamlens/internal/store"
	"github.com/marcwinter/streamlens/pkg/catalog"
	"github.com/marcwinter/streamlens/pkg/server"
	"github.com/marcwinter/streamlens/pkg/stats"
	"github.com/marcwinter/streamlens/pkg/twitch"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func newLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func buildClient(cfg *config.Config) *twitch.Client {
	var opts []twitch.Option
	if cfg.Twitch.BaseURL != "" {
		opts = append(opts, twitch.WithBaseURL(cfg.Twitch.BaseURL))
	}
	if cfg.Twitch.RateLimit > 0 {
		opts = append(opts, twitch.WithRateLimit(cfg.Twitch.RateLimit))
	}
	return twitch.NewClient(cfg.Twitch.ClientID, cfg.Twitch.AppToken, opts...)
}

func buildCache(ctx context.Context, cfg *config.Config, log zerolog.Logger) (cache.Cache, error) {
	if !cfg.Redis.Enabled {
		log.Info().Msg("redis disabled, using in-process cache")
		return cache.NewMemory(), nil
	}
	return cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
}

// components wires the store, cache, client and the catalog engine together.
type components struct {
	store  store.Store
	engine *stats.Engine
	tags   *catalog.TagReconciler
	sync   *catalog.Synchronizer
	client *twitch.Client
}

func buildComponents(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*components, error) {
	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	kv, err := buildCache(ctx, cfg, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}

	client := buildClient(cfg)
	engine := stats.NewEngine(db, kv, log)
	tags := catalog.NewTagReconciler(client, db, engine, log, cfg.Sync.TagBatchSize)
	sync := catalog.NewSynchronizer(client, db, tags, engine, log, cfg.Sync.PageBudget, cfg.Sync.PageSize)

	return &components{
		store:  db,
		engine: engine,
		tags:   tags,
		sync:   sync,
		client: client,
	}, nil
}

func runSync() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger()
	ctx := context.Background()

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.store.Close()

	return c.sync.Sync(ctx)
}

func runTags() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger()
	ctx := context.Background()

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.store.Close()

	return c.tags.ResolveAll(ctx)
}

func runTop(jsonOutput bool, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger()
	ctx := context.Background()

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.store.Close()

	streams, err := c.engine.CurrentStreams(ctx)
	if err != nil {
		return fmt.Errorf("load streams: %w", err)
	}
	if limit > 0 && len(streams) > limit {
		streams = streams[:limit]
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(streams)
	}

	if len(streams) == 0 {
		fmt.Println("no streams in snapshot (try syncing first: streamlens sync)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VIEWERS\tCHANNEL\tGAME\tTITLE")
	for _, s := range streams {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ViewerCount, s.UserName, s.GameName, s.Title)
	}
	return w.Flush()
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	log := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.store.Close()

	srv := server.New(c.engine, c.sync, c.client, port, log)
	return srv.ListenAndServe(ctx)
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	log := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.store.Close()

	sched := scheduler.New(c.sync, c.tags,
		cfg.Schedule.ParseSyncInterval(),
		cfg.Schedule.ParseTagRefreshInterval(),
		log)
	go sched.Run(ctx)

	srv := server.New(c.engine, c.sync, c.client, port, log)
	return srv.ListenAndServe(ctx)
}
