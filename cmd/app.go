package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wadl-labs/candidate-sourcer/internal/agent"
	"github.com/wadl-labs/candidate-sourcer/internal/archive"
	"github.com/wadl-labs/candidate-sourcer/internal/config"
	"github.com/wadl-labs/candidate-sourcer/internal/embed"
	"github.com/wadl-labs/candidate-sourcer/internal/enrich"
	"github.com/wadl-labs/candidate-sourcer/internal/fetch"
	"github.com/wadl-labs/candidate-sourcer/internal/llm"
	"github.com/wadl-labs/candidate-sourcer/internal/logging"
	"github.com/wadl-labs/candidate-sourcer/internal/notify"
	"github.com/wadl-labs/candidate-sourcer/internal/pipeline"
	"github.com/wadl-labs/candidate-sourcer/internal/search"
	"github.com/wadl-labs/candidate-sourcer/internal/store"
)

// app holds every wired service for the lifetime of one command.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	store    store.Store
	pipeline *pipeline.Pipeline

	browser       *fetch.BrowserChannel
	archiveCloser func() error
	notifyCloser  func() error
}

// newApp wires the full service graph from configuration. Channels without
// credentials simply report unavailable; only hard requirements fail here.
func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	if cfg.DB.DSN != "" {
		pg, err := store.NewPostgres(ctx, store.PostgresConfig{DSN: cfg.DB.DSN})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.store = pg
	} else {
		logger.Warn("db.dsn not configured, using in-memory store; nothing will survive this process")
		a.store = store.NewMemory()
	}

	llmClient := llm.New(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})
	embedder := embed.New(embed.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.EmbeddingModel,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})
	searcher := search.New(search.Config{
		APIKey:   cfg.Search.APIKey,
		Endpoint: cfg.Search.Endpoint,
		Timeout:  time.Duration(cfg.Search.TimeoutSeconds) * time.Second,
		Logger:   logger,
	})

	dataset, chain, err := a.buildChannels()
	if err != nil {
		return nil, err
	}
	fetcher := fetch.NewFetcher(fetch.FetcherConfig{
		MaxConcurrent: cfg.Fetcher.MaxConcurrent,
		RequestDelay:  cfg.Fetcher.RequestDelay(),
		TTL:           cfg.Fetcher.TTL(),
		Logger:        logger,
	}, chain, dataset, a.store, enrich.NewExtractor(llmClient, logger))

	archiver, err := a.buildArchiver(ctx)
	if err != nil {
		return nil, err
	}
	notifier, err := a.buildNotifier(ctx)
	if err != nil {
		return nil, err
	}

	ag := agent.New(llmClient, searcher, fetcher, embedder, a.store, logger)
	a.pipeline = pipeline.New(llmClient, embedder, ag, a.store, archiver, notifier, cfg.Agent, logger)
	return a, nil
}

// buildChannels assembles the acquisition chain in cost order. The session
// channel covers the same ground as the dataset API, so it only joins the
// chain when no dataset key is configured.
func (a *app) buildChannels() (*fetch.DatasetChannel, *fetch.Chain, error) {
	cfg := a.cfg
	var channels []fetch.Channel

	dataset := fetch.NewDataset(fetch.DatasetConfig{
		APIKey:       cfg.Dataset.APIKey,
		DatasetID:    cfg.Dataset.DatasetID,
		Endpoint:     cfg.Dataset.Endpoint,
		PollInterval: time.Duration(cfg.Dataset.PollIntervalSec) * time.Second,
		MaxPolls:     cfg.Dataset.MaxPolls,
		BatchSize:    cfg.Dataset.BatchSize,
		Timeout:      time.Duration(cfg.Dataset.TimeoutSeconds) * time.Second,
		Logger:       a.logger,
	})
	if dataset.Available() {
		channels = append(channels, dataset)
	} else {
		dataset = nil
		channels = append(channels, fetch.NewSession(fetch.SessionConfig{
			APIKey:   cfg.Session.APIKey,
			Endpoint: cfg.Session.Endpoint,
			Timeout:  time.Duration(cfg.Session.TimeoutSeconds) * time.Second,
			Logger:   a.logger,
		}))
	}

	if cfg.Browser.Enabled {
		a.browser = fetch.NewBrowser(fetch.BrowserConfig{
			Enabled:          true,
			UserDataDir:      cfg.Browser.UserDataDir,
			Headless:         cfg.Browser.Headless,
			UserAgent:        cfg.Browser.UserAgent,
			NavTimeout:       time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
			BreakerThreshold: cfg.Browser.BreakerThreshold,
			MaxRetries:       cfg.Browser.MaxRetries,
			ChallengePolls:   cfg.Browser.ChallengeMaxPolls,
			ChallengePoll:    time.Duration(cfg.Browser.ChallengePollMs) * time.Millisecond,
			SearchEngineURL:  cfg.Browser.SearchEngineURL,
			Logger:           a.logger,
		})
		channels = append(channels, a.browser)
	}

	proxies, err := cfg.Direct.ProxyList()
	if err != nil {
		return nil, nil, fmt.Errorf("load proxy list: %w", err)
	}
	channels = append(channels, fetch.NewDirect(fetch.DirectConfig{
		Proxies: proxies,
		Timeout: time.Duration(cfg.Direct.TimeoutSeconds) * time.Second,
		Logger:  a.logger,
	}))

	return dataset, fetch.NewChain(a.logger, channels...), nil
}

func (a *app) buildArchiver(ctx context.Context) (archive.Archiver, error) {
	switch a.cfg.Archive.Provider {
	case "gcs":
		gcs, err := archive.NewGCS(ctx, a.cfg.Archive.GCSBucket, a.cfg.Archive.Prefix, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		a.archiveCloser = gcs.Close
		return gcs, nil
	case "", "noop":
		return archive.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown archive provider %q", a.cfg.Archive.Provider)
	}
}

func (a *app) buildNotifier(ctx context.Context) (notify.Notifier, error) {
	switch a.cfg.Notify.Provider {
	case "pubsub":
		ps, err := notify.NewPubSub(ctx, a.cfg.Notify.ProjectID, a.cfg.Notify.TopicName, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init pubsub notifier: %w", err)
		}
		a.notifyCloser = ps.Close
		return ps, nil
	case "", "noop":
		return notify.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown notify provider %q", a.cfg.Notify.Provider)
	}
}

// Close releases every held resource in reverse wiring order.
func (a *app) Close() {
	if a.browser != nil {
		a.browser.Close()
	}
	if a.notifyCloser != nil {
		if err := a.notifyCloser(); err != nil {
			a.logger.Warn("close notifier failed", zap.Error(err))
		}
	}
	if a.archiveCloser != nil {
		if err := a.archiveCloser(); err != nil {
			a.logger.Warn("close archive failed", zap.Error(err))
		}
	}
	if a.store != nil {
		a.store.Close()
	}
	_ = a.logger.Sync()
}
