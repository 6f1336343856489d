package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"tutorcore/internal/cache"
	"tutorcore/internal/config"
	"tutorcore/internal/embedding"
	"tutorcore/internal/faststore"
	"tutorcore/internal/generation"
	"tutorcore/internal/intent"
	"tutorcore/internal/jobs"
	"tutorcore/internal/logging"
	"tutorcore/internal/memory"
	"tutorcore/internal/pipeline"
	"tutorcore/internal/quota"
	"tutorcore/internal/retrieval"
	"tutorcore/internal/session"
	"tutorcore/internal/store"
)

// app is the assembled object graph behind every subcommand.
type app struct {
	cfg        *config.Config
	local      *store.LocalStore
	fast       faststore.Store
	gateway    *embedding.Gateway
	classifier *intent.Classifier
	pipeline   *pipeline.Pipeline
	enforcer   *quota.Enforcer
	ledger     *memory.Ledger
	runner     *jobs.Runner
	audit      *logging.AuditLogger
}

// buildApp wires the full pipeline from configuration.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	if err := logging.InitializeWith(cfg.DataDir, logging.Settings{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
		JSONFormat: cfg.Logging.Format == "json",
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	audit, err := logging.NewAuditLogger(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	dbPath := cfg.Memory.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(cfg.DataDir, "tutorcore.db")
	}
	local, err := store.NewLocalStore(dbPath)
	if err != nil {
		return nil, err
	}

	fast := connectFastStore(ctx, cfg.FastStore)

	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	gateway := embedding.NewGateway(engine, cfg.Embedding)

	sched := pipeline.NewCallScheduler(cfg.Pipeline.MaxConcurrentCalls, parseDuration(cfg.Pipeline.SlotAcquireTimeout, 2*time.Minute))
	small := pipeline.NewSlottedClient(generation.NewOpenAIClient(cfg.LLM.Small), sched)
	large := pipeline.NewSlottedClient(generation.NewOpenAIClient(cfg.LLM.Large), sched)
	providers := generation.Providers{Small: small, Large: large}

	index := retrieval.NewStoreIndex(local)
	router := cache.NewRouter(cfg.Cache, fast, local, index, providers)

	summarizer := pipeline.NewSlottedClient(generation.NewOpenAIClient(summarizerProvider(cfg.LLM)), sched)

	log := session.NewMemoryLog()
	builder := session.NewBuilder(cfg.Session, fast, log, session.NewLLMSummarizer(summarizer))

	enforcer := quota.NewEnforcer(cfg.Quota, fast)
	ledger := memory.NewLedger(cfg.Memory, local, gateway)

	classifier := intent.NewClassifier(gateway, cfg.Intent)
	if err := classifier.Start(ctx); err != nil {
		// Unstarted classification defaults every query to knowledge-seeking
		// handling; the pipeline stays usable.
		logger.Warn("Intent classifier unavailable, defaulting to knowledge-seeking handling", zap.Error(err))
	}

	pipe := pipeline.New(*cfg, gateway, classifier, router, builder, log, index, enforcer, ledger, audit)
	runner := jobs.NewRunner(ledger, enforcer, local, jobs.StoreUsers{Local: local}, audit)

	return &app{
		cfg:        cfg,
		local:      local,
		fast:       fast,
		gateway:    gateway,
		classifier: classifier,
		pipeline:   pipe,
		enforcer:   enforcer,
		ledger:     ledger,
		runner:     runner,
		audit:      audit,
	}, nil
}

// connectFastStore returns the Redis store, or the in-process fallback when
// Redis is unreachable. Degraded mode loses cross-process sharing but keeps
// every feature working.
func connectFastStore(ctx context.Context, cfg config.FastStoreConfig) faststore.Store {
	rs := faststore.NewRedisStore(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		logger.Warn("Redis unreachable, running on the in-process fast store", zap.String("addr", cfg.Addr), zap.Error(err))
		rs.Close()
		return faststore.NewLocalStore(0)
	}
	return rs
}

// summarizerProvider derives the summarizer endpoint from the small provider,
// swapping in the configured summarizer model when one is set.
func summarizerProvider(llm config.LLMConfig) config.ProviderConfig {
	pc := llm.Small
	if llm.SummarizerModel != "" {
		pc.Model = llm.SummarizerModel
	}
	return pc
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (a *app) close() {
	a.gateway.Close()
	a.fast.Close()
	a.local.Close()
	a.audit.Close()
	logging.CloseAll()
}
