package app

import (
	"context"
	"log/slog"
	"time"

	"arbscan/internal/engine"
	"arbscan/internal/infra"
	"arbscan/internal/infra/journal"
	"arbscan/internal/infra/redis"
	"arbscan/internal/infra/storage"
	"arbscan/internal/infra/stream"
	"arbscan/internal/server"
	"arbscan/internal/service"
)

// Options tune the startup sequence.
type Options struct {
	ConfigPath string
	Once       bool          // single scan: no HTTP server, no live stream
	Interval   time.Duration // overrides scanner.interval_sec when > 0
}

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Metrics *infra.Metrics
	Prices  *service.PriceService
	Scanner *engine.Scanner
	Sink    *service.FanoutSink
	Store   *storage.Store
	Hub     *stream.Hub
	Server  *server.Server

	opts Options
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(opts Options) *Bootstrap {
	return &Bootstrap{opts: opts, Metrics: infra.GlobalMetrics}
}

// Initialize loads the configuration and wires every component. On error,
// resources opened so far are released.
func (b *Bootstrap) Initialize(ctx context.Context) (err error) {
	// 1. Load Config
	cfg, err := infra.LoadConfig(b.opts.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("🚀 Bootstrapping arbscan...", slog.String("version", cfg.App.Version))

	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	// 3. Fee model
	schedule, err := cfg.FeeSchedule()
	if err != nil {
		return err
	}
	fees := service.NewFeeModel(schedule, cfg.FeeBasis())

	// 4. Price sources
	sources, err := BuildSources(cfg, infra.NewHTTPClient(cfg.FetchTimeout()))
	if err != nil {
		return err
	}
	b.Prices = service.NewPriceService(sources, cfg.FetchTimeout(), cfg.Scanner.MaxConcurrentFetches)
	for _, v := range missingFees(b.Prices.Venues(), schedule) {
		slog.Warn("⚠️ No fee rate configured, pairs on this venue will be skipped", slog.String("venue", v.String()))
	}
	slog.Info("✅ Price sources ready", slog.Int("venues", len(sources)))

	evaluator := service.NewEvaluator(service.EvaluatorConfig{
		Notional:         cfg.Scanner.NotionalUSD,
		MinProfitPercent: cfg.Scanner.MinProfitPercent,
		Inclusive:        cfg.Scanner.ThresholdInclusive,
		AllowCrossMarket: cfg.Scanner.AllowCrossMarket,
	}, fees)

	// 5. Result sinks
	sinks, err := b.openSinks(ctx)
	if err != nil {
		return err
	}
	b.Sink = service.NewFanoutSink(b.Metrics, sinks...)
	slog.Info("✅ Result sinks ready", slog.Any("sinks", b.Sink.Names()))

	// 6. Scanner
	b.Scanner = engine.NewScanner(cfg.Scanner.Assets, b.Prices, evaluator, b.Sink, engine.WithMetrics(b.Metrics))

	// 7. HTTP surface
	if cfg.Server.Enabled && !b.opts.Once {
		deps := server.Deps{Scanner: b.Scanner, Metrics: b.Metrics, Quotes: b.Prices}
		if b.Hub != nil {
			deps.Stream = b.Hub
		}
		if b.Store != nil {
			deps.Store = b.Store
		}
		b.Server = server.New(cfg.Server.Addr, deps)
	}

	return nil
}

func (b *Bootstrap) openSinks(ctx context.Context) ([]service.NamedSink, error) {
	cfg := b.Config
	var sinks []service.NamedSink

	oppLog, err := journal.OpenOpportunityLog(cfg.Output.OpportunityLog)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, service.NamedSink{Name: "opportunity_log", Sink: oppLog})

	activity, err := journal.OpenActivityLog(cfg.Output.ActivityLog, cfg.Output.ActivityMaxSizeMB)
	if err != nil {
		oppLog.Close()
		return nil, err
	}
	sinks = append(sinks, service.NamedSink{Name: "activity_log", Sink: activity})

	// 부가 싱크는 연결 실패 시 경고만 남기고 계속 진행
	if cfg.Storage.Enabled {
		store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
		if err != nil {
			slog.Warn("SQL store unavailable, continuing without it", slog.Any("error", err))
		} else {
			b.Store = store
			sinks = append(sinks, service.NamedSink{Name: "sql_store", Sink: store})
			slog.Info("✅ Database initialized", slog.String("driver", cfg.Storage.Driver))
		}
	}

	if cfg.Redis.Enabled {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		pub, err := redis.NewPublisher(pingCtx, redis.PublisherConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			Channel:      cfg.Redis.Channel,
			Stream:       cfg.Redis.Stream,
			StreamMaxLen: cfg.Redis.StreamMaxLen,
		})
		cancel()
		if err != nil {
			slog.Warn("Redis unavailable, continuing without it", slog.Any("error", err))
		} else {
			sinks = append(sinks, service.NamedSink{Name: "redis", Sink: pub})
			slog.Info("✅ Redis publisher connected", slog.String("addr", cfg.Redis.Addr))
		}
	}

	if cfg.Server.Enabled && !b.opts.Once {
		b.Hub = stream.NewHub(b.Metrics)
		sinks = append(sinks, service.NamedSink{Name: "live_stream", Sink: b.Hub})
	}

	return sinks, nil
}

// Interval returns the effective scan interval.
func (b *Bootstrap) Interval() time.Duration {
	if b.opts.Interval > 0 {
		return b.opts.Interval
	}
	return b.Config.Interval()
}

// Run starts the background services and scans until ctx is cancelled.
func (b *Bootstrap) Run(ctx context.Context) error {
	if b.Hub != nil {
		go b.Hub.Run(ctx)
	}
	if b.Server != nil {
		go func() {
			if err := b.Server.Run(ctx); err != nil {
				slog.Error("HTTP server failed", slog.Any("error", err))
			}
		}()
	}

	slog.InfoContext(ctx, "✨ arbscan fully operational. Press Ctrl+C to exit.")
	return b.Scanner.Run(ctx, b.Interval())
}

// Close releases every sink.
func (b *Bootstrap) Close() error {
	if b.Sink == nil {
		return nil
	}
	if err := b.Sink.Close(); err != nil {
		return err
	}
	slog.Info("👋 Sinks closed")
	return nil
}
