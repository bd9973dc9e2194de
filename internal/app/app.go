// Package app wires configuration, storage, clients, and services into a
// running engine. It is the shared core used by cmd/stockflow-server.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/stockflow/engine/internal/clients/cards"
	"github.com/stockflow/engine/internal/clients/feeds"
	"github.com/stockflow/engine/internal/clients/gemini"
	"github.com/stockflow/engine/internal/clients/marketdata"
	"github.com/stockflow/engine/internal/clients/webfetch"
	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/interfaces"
	"github.com/stockflow/engine/internal/registry"
	"github.com/stockflow/engine/internal/services/batch"
	"github.com/stockflow/engine/internal/services/financial"
	"github.com/stockflow/engine/internal/services/news"
	"github.com/stockflow/engine/internal/services/reportsource"
	"github.com/stockflow/engine/internal/services/trading"
	"github.com/stockflow/engine/internal/storage"
)

// App holds all initialized clients and services.
type App struct {
	Config  *common.Config
	Logger  *common.Logger
	Store   storage.BlobStore
	Gateway *storage.Gateway

	Registry *registry.Registry

	MarketData interfaces.MarketDataClient
	Feeds      interfaces.FeedClient
	Web        *webfetch.Client
	Gemini     *gemini.Client

	Financial    interfaces.FinancialService
	Trading      interfaces.TradingService
	News         interfaces.NewsService
	ReportSource interfaces.ReportSourceService
	Batch        interfaces.BatchService

	StartupTime time.Time

	schedulerStop func()
}

// NewApp initializes storage, clients, and services from configuration.
// configPath may be empty; STOCKFLOW_CONFIG and defaults then apply.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	if configPath == "" {
		configPath = os.Getenv("STOCKFLOW_CONFIG")
	}
	if configPath == "" {
		configPath = "config/stockflow.toml"
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	store, err := storage.NewBlobStore(logger, &config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	gateway := storage.NewGateway(logger, store, &config.Storage)

	reg := registry.NewRegistry(logger, gateway, config.News.RegistryPath, config.News.RegistryRemoteKey)
	ctx := context.Background()
	if err := reg.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("registry refresh failed at startup, starting empty")
	}

	marketOpts := []marketdata.ClientOption{
		marketdata.WithLogger(logger),
		marketdata.WithTimeout(config.Clients.MarketData.GetTimeout()),
	}
	if config.Clients.MarketData.BaseURL != "" {
		marketOpts = append(marketOpts, marketdata.WithBaseURL(config.Clients.MarketData.BaseURL))
	}
	if config.Clients.MarketData.RateLimit > 0 {
		marketOpts = append(marketOpts, marketdata.WithRateLimit(config.Clients.MarketData.RateLimit))
	}
	marketClient := marketdata.NewClient(config.Clients.MarketData.APIKey, marketOpts...)
	if config.Clients.MarketData.APIKey == "" {
		logger.Warn().Msg("market-data API key not configured, upstream calls will fail")
	}

	feedClient := feeds.NewClient(logger, 30*time.Second)
	webClient := webfetch.NewClient(logger)

	var geminiClient *gemini.Client
	if key := config.Clients.Gemini.APIKey; key != "" {
		geminiClient, err = gemini.NewClient(ctx, key,
			gemini.WithLogger(logger),
			gemini.WithModel(config.Clients.Gemini.Model),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("gemini client init failed, AI verification disabled")
			geminiClient = nil
		}
	}

	financialService := financial.NewService(logger, config, gateway, marketClient)
	tradingService := trading.NewService(logger, config, gateway, marketClient)
	newsService := news.NewService(logger, config, gateway, reg, feedClient, webClient, feeds.GoogleNewsURL)

	var verifier interfaces.AIVerifier
	if geminiClient != nil {
		verifier = geminiClient
	}
	reportSourceService := reportsource.NewService(logger, config, gateway, marketClient, webClient, webClient, verifier)

	var cardDispatcher interfaces.CardDispatcher
	if base := config.Clients.Cards.BaseURL; base != "" {
		cardDispatcher = cards.NewClient(base,
			cards.WithLogger(logger),
			cards.WithTimeout(config.Clients.Cards.GetTimeout()),
		)
	} else {
		logger.Warn().Msg("card service not configured, daily runs skip card generation")
	}
	batchService := batch.NewService(logger, config, gateway, financialService, tradingService, newsService, cardDispatcher)

	a := &App{
		Config:       config,
		Logger:       logger,
		Store:        store,
		Gateway:      gateway,
		Registry:     reg,
		MarketData:   marketClient,
		Feeds:        feedClient,
		Web:          webClient,
		Gemini:       geminiClient,
		Financial:    financialService,
		Trading:      tradingService,
		News:         newsService,
		ReportSource: reportSourceService,
		Batch:        batchService,
		StartupTime:  startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("app initialized")
	return a, nil
}

// ReloadConfigs refreshes the dynamic entity registry.
func (a *App) ReloadConfigs(ctx context.Context) error {
	return a.Registry.Refresh(ctx)
}

// Close stops background work and releases the blob store.
func (a *App) Close() {
	if a.schedulerStop != nil {
		a.schedulerStop()
		a.schedulerStop = nil
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("blob store close failed")
		}
	}
}
