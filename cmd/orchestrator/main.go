package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq"

	"github.com/meridianquant/orbitron/internal/alerts"
	"github.com/meridianquant/orbitron/internal/analyzer"
	"github.com/meridianquant/orbitron/internal/archive"
	"github.com/meridianquant/orbitron/internal/audit"
	"github.com/meridianquant/orbitron/internal/autopilot"
	"github.com/meridianquant/orbitron/internal/bus"
	"github.com/meridianquant/orbitron/internal/config"
	"github.com/meridianquant/orbitron/internal/db"
	"github.com/meridianquant/orbitron/internal/ems"
	"github.com/meridianquant/orbitron/internal/exchange"
	"github.com/meridianquant/orbitron/internal/indicators"
	"github.com/meridianquant/orbitron/internal/intel"
	"github.com/meridianquant/orbitron/internal/killswitch"
	"github.com/meridianquant/orbitron/internal/ledger"
	"github.com/meridianquant/orbitron/internal/market"
	"github.com/meridianquant/orbitron/internal/metrics"
	"github.com/meridianquant/orbitron/internal/notifications"
	"github.com/meridianquant/orbitron/internal/orchestrator"
	"github.com/meridianquant/orbitron/internal/regime"
	"github.com/meridianquant/orbitron/internal/risk"
	"github.com/meridianquant/orbitron/internal/router"
	"github.com/meridianquant/orbitron/internal/swarm"
	"github.com/meridianquant/orbitron/internal/tradesignal"
)

// natsPrefix namespaces the orchestrator's message bus subjects, keeping
// KillSwitch/EMS traffic separate from any other NATS tenant on the same
// cluster.
const natsPrefix = "orbitron."

// marketSinkCallsPerMinute throttles the CoinGecko harvester sink.
const marketSinkCallsPerMinute = 30

func main() {
	verifyKeys := flag.Bool("verify-keys", false, "Verify API keys and secrets, then exit")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	if *verifyKeys {
		os.Exit(verifyAPIKeys())
	}

	log.Info().Msg("Starting Orbitron orchestrator")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := bootstrap(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap orchestrator")
	}
	defer rt.Close()

	metricsServer := metrics.NewServer(cfg.Monitoring.PrometheusPort, log.Logger)
	if err := metricsServer.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start metrics server")
	}

	group, groupCtx := errgroup.WithContext(ctx)

	rt.autopilot.Bootstrap(groupCtx)
	group.Go(func() error {
		rt.autopilot.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		rt.observer.Run(groupCtx)
		return nil
	})
	for _, h := range rt.harvesters {
		h := h
		group.Go(func() error {
			if err := h.Run(groupCtx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-groupCtx.Done():
		log.Warn().Msg("a supervised component stopped the run group")
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()
	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("error while shutting down supervised components")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	rt.ems.Stop()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down metrics server")
	}

	log.Info().Msg("orchestrator shutdown complete")
}

// runtime bundles every long-lived dependency bootstrap constructs, so
// main can supervise the trading loops under one errgroup and release
// connections in Close.
type runtime struct {
	sqlPool *sql.DB
	redis   *redis.Client

	autopilot  *autopilot.Autopilot
	observer   *regime.Observer
	ems        *ems.Router
	harvesters []*market.Harvester
}

func (r *runtime) Close() {
	if r.sqlPool != nil {
		r.sqlPool.Close()
	}
	if r.redis != nil {
		r.redis.Close()
	}
}

// bootstrap wires config, Postgres, Redis, and NATS into the Intel Bus,
// Broker Router, Ledger, KillSwitch, Signal Router (EMS), Autopilot loop
// and Macro Regime Observer — the trading stack the teacher's MCP agent
// consensus engine has been replaced with.
func bootstrap(ctx context.Context, cfg *config.Config) (*runtime, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port,
		cfg.Database.Database, cfg.Database.SSLMode)

	sqlPool, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := sqlPool.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	database, err := db.New(ctx)
	if err != nil {
		sqlPool.Close()
		return nil, fmt.Errorf("connect db pool: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		sqlPool.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	eventBus := bus.New(redisClient)
	publisher := bus.NewClient(eventBus)

	mb, err := orchestrator.NewMessageBus(orchestrator.MessageBusConfig{
		NATSURL: cfg.NATS.URL,
		Prefix:  natsPrefix,
	})
	if err != nil {
		sqlPool.Close()
		redisClient.Close()
		return nil, fmt.Errorf("connect message bus: %w", err)
	}

	alertChannels := []alerts.Alerter{alerts.NewLogAlerter()}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		if telegramAlerter, err := alerts.NewTelegramAlerter(token, nil); err != nil {
			log.Warn().Err(err).Msg("telegram alerter disabled: failed to initialize")
		} else {
			alertChannels = append(alertChannels, telegramAlerter)
		}
	}
	if deviceToken := os.Getenv("FCM_DEVICE_TOKEN"); deviceToken != "" {
		fcmBackend, err := notifications.NewFCMBackend(ctx, os.Getenv("FCM_CREDENTIALS_PATH"))
		if err != nil {
			log.Warn().Err(err).Msg("FCM alerter disabled: failed to initialize backend")
		} else {
			notifySvc := notifications.NewService(database.Pool(), fcmBackend)
			alertChannels = append(alertChannels, notifications.NewAlerter(notifySvc, deviceToken))
		}
	}
	alertManager := alerts.NewManager(alertChannels...)

	kill := killswitch.New(mb)
	kill.SetAlerter(alertManager)
	auditor := audit.NewLogger(database.Pool(), true)
	archiver := archive.New("data/archive")
	drawdown := risk.NewDrawdownMonitor(cfg.Risk.MaxDrawdown)
	ledgerStore := ledger.NewStore(database.Pool())

	brokers := make(map[string]exchange.Broker)
	mockExchange := exchange.NewMockExchange(database)
	broker := exchange.NewMockBroker(cfg.Trading.Exchange, mockExchange, cfg.Trading.InitialCapital)
	brokers[cfg.Trading.Exchange] = broker
	routes := router.New(cfg.Trading.Mode == "live", cfg.Trading.Exchange, cfg.Trading.Exchange, cfg.Trading.Exchange, brokers)

	signalRouter := ems.New(mb, routes, ledgerStore, kill)
	if err := signalRouter.Start(); err != nil {
		return nil, fmt.Errorf("start signal router: %w", err)
	}

	coinGeckoClient, err := market.NewCoinGeckoClient("")
	if err != nil {
		return nil, fmt.Errorf("construct coingecko client: %w", err)
	}
	cachedClient := market.NewCachedCoinGeckoClient(coinGeckoClient, redisClient, time.Minute)
	syncService := market.NewSyncService(cachedClient, sqlPool, cfg.Trading.Symbols, 5*time.Minute)
	history := market.NewHistorySource(syncService)

	recentReturns := func() []float64 {
		positions, err := broker.GetPositions(ctx)
		if err != nil || len(positions) == 0 {
			return nil
		}
		returns := make([]float64, 0, len(positions))
		for _, p := range positions {
			if p.AverageBuyPrice == 0 || p.Quantity == 0 {
				continue
			}
			current := p.MarketValue / p.Quantity
			returns = append(returns, (current-p.AverageBuyPrice)/p.AverageBuyPrice)
		}
		return returns
	}
	equity := func() float64 {
		buyingPower, err := broker.GetBuyingPower(ctx)
		if err != nil {
			return cfg.Trading.InitialCapital
		}
		return buyingPower
	}

	observer := regime.NewObserver(history, cfg.Trading.Symbols, kill, drawdown, archiver, auditor, publisher, recentReturns, equity)

	indicatorSvc := indicators.NewService()
	analyzers := make([]analyzer.Analyzer, 0, len(cfg.Trading.Symbols)+4)
	for _, symbol := range cfg.Trading.Symbols {
		analyzers = append(analyzers, swarm.NewAnalyzer(symbol, tradesignal.AssetCrypto, 65, indicatorSvc, history, eventBus))
	}
	analyzers = append(analyzers,
		intel.NewSocialScoreAnalyzer(eventBus, 60, 1.8),
		intel.NewFedBiasAnalyzer(eventBus, "TLT", 0.5, 1.5),
		intel.NewGeopoliticalRiskAnalyzer(eventBus, "GLD", 70, 1.6),
		intel.NewWeatherEdgeAnalyzer(eventBus, map[string]string{"midwest": "CORN"}, 0.6, 1.4),
	)

	settings := autopilot.Settings{
		TradingEnabled: func() bool { return cfg.Trading.Mode != "" },
		PaperMode:      cfg.Trading.Mode != "live",
		GlobalMinScore: cfg.Risk.MinConfidence * 100,
		MaxPositionPct: cfg.Risk.MaxPositionSize,
		KellyTier:      risk.KellyConservative,
	}
	pilot := autopilot.New(settings, eventBus, analyzers, routes, ledgerStore, kill, auditor)
	pilot.SetAlerter(alertManager)

	harvesters := []*market.Harvester{
		market.NewHarvester(market.NewCoinGeckoSource(cachedClient), cfg.Trading.Symbols, 5*time.Minute, marketSinkCallsPerMinute,
			func(ctx context.Context, bar market.Bar) error {
				return bus.Publish(ctx, eventBus, fmt.Sprintf("market:bar:%s", bar.Symbol), bar, "harvester", 1.0)
			}),
	}

	return &runtime{
		sqlPool:    sqlPool,
		redis:      redisClient,
		autopilot:  pilot,
		observer:   observer,
		ems:        signalRouter,
		harvesters: harvesters,
	}, nil
}

// verifyAPIKeys verifies all configured API keys and secrets.
// Returns 0 if all keys are valid, 1 if any keys are invalid or missing.
func verifyAPIKeys() int {
	log.Info().Msg("Verifying API keys and secrets...")

	cfg, err := config.Load("")
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return 1
	}

	allValid := true
	keysChecked := 0

	if len(cfg.Exchanges) > 0 {
		log.Info().Msg("Checking exchange API keys...")
		for exchangeName, exchangeConfig := range cfg.Exchanges {
			keysChecked++
			if exchangeConfig.APIKey == "" || exchangeConfig.SecretKey == "" {
				log.Warn().Str("exchange", exchangeName).Msg("API key or secret not configured")
				allValid = false
				continue
			}
			if cfg.Trading.Mode == "paper" || cfg.Trading.Mode == "PAPER" {
				log.Info().Str("exchange", exchangeName).Msg("exchange keys present (paper trading, not validated live)")
				continue
			}
			log.Info().Str("exchange", exchangeName).Msg("exchange keys present")
		}
	} else {
		log.Warn().Msg("No exchanges configured")
	}

	log.Info().Msg("Checking database configuration...")
	keysChecked++
	if cfg.Database.Host == "" || cfg.Database.Database == "" {
		log.Error().Msg("database host/name not configured")
		allValid = false
	} else if cfg.App.Environment != "development" && cfg.Database.Password == "" {
		log.Warn().Str("environment", cfg.App.Environment).Msg("database password not configured")
		allValid = false
	}

	if allValid {
		log.Info().Int("keys_checked", keysChecked).Msg("all API keys and configuration verified")
		return 0
	}
	log.Error().Int("keys_checked", keysChecked).Msg("some API keys or configuration are invalid or missing")
	return 1
}
