package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/solquote/mmbot/api"
	"github.com/solquote/mmbot/internal/config"
	"github.com/solquote/mmbot/pkg/exchange"
	"github.com/solquote/mmbot/pkg/hyperliquid"
	"github.com/solquote/mmbot/pkg/models"
	"github.com/solquote/mmbot/pkg/perf"
	"github.com/solquote/mmbot/pkg/risk"
	"github.com/solquote/mmbot/pkg/trader"
	"github.com/solquote/mmbot/pkg/volatility"
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mmbot",
		Short: "Market making bot for Hyperliquid",
		Long:  `A delta-neutral market making bot that quotes tiered spot orders and hedges inventory with perpetual futures`,
		Run:   runBot,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, args []string) {
	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	setupLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth, err := buildAuthenticator(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build authenticator")
	}

	client := hyperliquid.NewClient(cfg.Exchange.BaseURL, cfg.Exchange.MainWallet, auth, logger)
	if err := client.Connect(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to connect to exchange")
	}

	spotSymbol, perpSymbol := cfg.Asset.SpotSymbol, cfg.Asset.PerpSymbol
	if spotSymbol == "" || perpSymbol == "" {
		spotSymbol, perpSymbol, err = client.DiscoverMarkets(cfg.Asset.Base)
		if err != nil {
			logger.WithError(err).Fatal("Failed to discover markets")
		}
		logger.WithFields(logrus.Fields{
			"spot_symbol": spotSymbol,
			"perp_symbol": perpSymbol,
		}).Info("Discovered markets")
	}

	monitor := perf.NewMonitor(logger)
	gateway := exchange.NewCachedGateway(client, monitor, logger)

	estimator := volatility.NewEstimator(gateway, monitor, logger)

	riskMgr := risk.NewManager(risk.Config{
		MaxInventory:  cfg.Risk.MaxInventory,
		MaxVolatility: cfg.Risk.MaxVolatility,
		MarginBuffer:  cfg.Risk.MarginBuffer,
		TradesPerDay:  cfg.Risk.TradesPerDay,
		QuoteCurrency: cfg.Risk.QuoteCurrency,
	}, logger)

	maker := trader.NewMarketMaker(trader.Config{
		SpotSymbol:        spotSymbol,
		PerpSymbol:        perpSymbol,
		BaseSpread:        cfg.Asset.BaseSpread,
		InventorySize:     cfg.Asset.InventorySize,
		Leverage:          cfg.Asset.Leverage,
		ATRPeriod:         cfg.Volatility.ATRPeriod,
		Timeframe:         cfg.Volatility.Timeframe,
		MinSpread:         cfg.Volume.MinSpread,
		MaxSpread:         cfg.Volume.MaxSpread,
		SpreadAggression:  cfg.Volume.SpreadAggression,
		OrderTiers:        cfg.Volume.OrderTiers,
		TierSpacing:       cfg.Volume.TierSpacing,
		MinOrderSize:      cfg.Volume.MinOrderSize,
		MaxOrderSize:      cfg.Volume.MaxOrderSize,
		TargetDailyVolume: cfg.Volume.TargetDailyVolume,
		FundingRateAnnual: cfg.Trading.FundingRateAnnual,
	}, gateway, estimator, riskMgr, logger)

	interval := time.Duration(cfg.Trading.UpdateInterval) * time.Second
	runner := trader.NewRunner(maker, riskMgr, monitor, interval, logger)

	// Stream live tickers into the read cache so polled lookups stay warm.
	startFeed(ctx, cfg, monitor, []string{spotSymbol, perpSymbol})

	apiServer := api.NewServer(maker, runner, riskMgr, monitor, logger, fmt.Sprintf("%d", cfg.Server.Port))
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	go runner.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Market maker is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("Received shutdown signal")

	runner.Stop()
	cancel()

	logger.Info("Market maker stopped")
}

func setupLogger(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if cfg.Logging.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     7, // days
			Compress:   true,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotated))
	}
}

func buildAuthenticator(cfg *config.Config) (hyperliquid.Authenticator, error) {
	switch cfg.Exchange.AuthType {
	case "wallet":
		return hyperliquid.NewWalletAuthenticator(cfg.Exchange.APIWallet, cfg.Exchange.APIWalletPrivate)
	default:
		return hyperliquid.NewHMACAuthenticator(cfg.Exchange.APIWallet, cfg.Exchange.APIWalletPrivate), nil
	}
}

func startFeed(ctx context.Context, cfg *config.Config, monitor *perf.Monitor, symbols []string) {
	if cfg.Exchange.WebSocketURL == "" {
		return
	}

	feed := hyperliquid.NewFeed(cfg.Exchange.WebSocketURL, func(ticker *models.Ticker) {
		monitor.PutCached(perf.KindTicker, ticker.Symbol, ticker)
	}, logger)

	if err := feed.Connect(ctx); err != nil {
		logger.WithError(err).Warn("Websocket feed unavailable, falling back to REST polling")
		return
	}
	if err := feed.Subscribe(symbols); err != nil {
		logger.WithError(err).Warn("Failed to subscribe to ticker feed")
	}
}
