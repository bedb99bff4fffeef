package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Agathx/climact/moderation/auditstore"
	"github.com/Agathx/climact/moderation/cachestore"
	"github.com/Agathx/climact/moderation/countstore"
	"github.com/Agathx/climact/moderation/engine"
	"github.com/Agathx/climact/moderation/flagstore"
	"github.com/Agathx/climact/moderation/itemstore"
	"github.com/Agathx/climact/moderation/scorer"
	"github.com/Agathx/climact/triage"
	"github.com/Agathx/climact/util/cliutil"
)

type Server struct {
	logger *slog.Logger
	engine *engine.Engine
	api    *triage.Server
}

type Config struct {
	Logger             *slog.Logger
	DatabaseURL        string
	MaxDBConnections   int
	RedisURL           string
	Bind               string
	SlackWebhookURL    string
	RoleHost           string
	ReportLexiconsJSON string
	ChatLexiconsJSON   string
	SyncScoring        bool
	ScoringRateLimit   int
	SubmissionQuota    int
	ReportQuota        int
	EscalationQuota    int
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	db, err := cliutil.SetupDatabase(config.DatabaseURL, config.MaxDBConnections)
	if err != nil {
		return nil, err
	}
	items, err := itemstore.NewGormItemStore(db)
	if err != nil {
		return nil, fmt.Errorf("initializing item store: %w", err)
	}
	audit, err := auditstore.NewGormAuditStore(db)
	if err != nil {
		return nil, fmt.Errorf("initializing audit store: %w", err)
	}

	var counters countstore.CountStore
	var cache cachestore.CacheStore
	var flags flagstore.FlagStore
	if config.RedisURL != "" {
		cnt, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis countstore: %v", err)
		}
		counters = cnt

		csh, err := cachestore.NewRedisCacheStore(config.RedisURL, 30*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("initializing redis cachestore: %v", err)
		}
		cache = csh

		flg, err := flagstore.NewRedisFlagStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis flagstore: %v", err)
		}
		flags = flg
	} else {
		counters = countstore.NewMemCountStore()
		cache = cachestore.NewMemCacheStore(5_000, 30*time.Minute)
		flags = flagstore.NewMemFlagStore()
	}

	var roles engine.RoleDirectory
	if config.RoleHost != "" {
		logger.Info("using HTTP role directory", "host", config.RoleHost)
		roles = engine.NewHTTPRoleDirectory(config.RoleHost)
	} else {
		logger.Info("no role host configured, all actors are citizens")
		roles = engine.NewStaticRoleDirectory()
	}

	var notifier engine.Notifier
	if config.SlackWebhookURL != "" {
		notifier = engine.NewSlackNotifier(config.SlackWebhookURL)
	} else {
		notifier = &engine.LogNotifier{Logger: logger}
	}

	reportPolicy := scorer.DefaultReportPolicy()
	if config.ReportLexiconsJSON != "" {
		if err := reportPolicy.LoadLexiconsFileJSON(config.ReportLexiconsJSON); err != nil {
			return nil, fmt.Errorf("loading report lexicons: %w", err)
		}
		logger.Info("loaded report lexicons from JSON", "path", config.ReportLexiconsJSON)
	}
	chatPolicy := scorer.DefaultChatPolicy()
	if config.ChatLexiconsJSON != "" {
		if err := chatPolicy.LoadLexiconsFileJSON(config.ChatLexiconsJSON); err != nil {
			return nil, fmt.Errorf("loading chat lexicons: %w", err)
		}
		logger.Info("loaded chat lexicons from JSON", "path", config.ChatLexiconsJSON)
	}

	engineConfig := engine.DefaultEngineConfig()
	engineConfig.AsyncScoring = !config.SyncScoring
	if config.ScoringRateLimit > 0 {
		engineConfig.ScoringRateLimit = float64(config.ScoringRateLimit)
	}
	engineConfig.SubmissionQuotaHour = config.SubmissionQuota
	engineConfig.ReportQuotaDay = config.ReportQuota
	engineConfig.EscalationQuotaDay = config.EscalationQuota

	eng := &engine.Engine{
		Logger:       logger,
		Store:        items,
		Audit:        audit,
		Counters:     counters,
		Cache:        cache,
		Flags:        flags,
		Roles:        roles,
		Notifier:     notifier,
		ReportPolicy: reportPolicy,
		ChatPolicy:   chatPolicy,
		Config:       engineConfig,
	}

	api, err := triage.NewServer(eng, triage.Config{
		Logger: logger,
		Bind:   config.Bind,
	})
	if err != nil {
		return nil, err
	}

	return &Server{
		logger: logger,
		engine: eng,
		api:    api,
	}, nil
}

// Run starts the HTTP API and the async scoring worker, then blocks until an
// OS exit signal or a fatal error from either.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return s.api.RunAPI()
	})
	if s.engine.Config.AsyncScoring {
		eg.Go(func() error {
			s.logger.Info("starting async scoring worker")
			return s.engine.RunScoringWorker(ctx)
		})
	}
	eg.Go(func() error {
		exitSignals := make(chan os.Signal, 1)
		signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-exitSignals:
			s.logger.Info("received OS exit signal", "signal", sig)
		case <-ctx.Done():
			return ctx.Err()
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := s.api.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown error", "err", err)
		}
		cancel()
		return nil
	})
	return eg.Wait()
}

func (s *Server) RunMetrics(listen string) error {
	return s.api.RunMetrics(listen)
}
