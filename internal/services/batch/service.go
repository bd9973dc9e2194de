// Package batch runs the two-phase daily pipeline: data engines first
// (financial, trading, news, concurrently), then the card fan-out. Phase 2
// starts only when every data engine completes.
package batch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/interfaces"
	"github.com/stockflow/engine/internal/models"
	"github.com/stockflow/engine/internal/storage"
)

// Service implements interfaces.BatchService.
type Service struct {
	logger    *common.Logger
	config    *common.Config
	gateway   *storage.Gateway
	financial interfaces.FinancialService
	trading   interfaces.TradingService
	news      interfaces.NewsService
	cards     interfaces.CardDispatcher

	now func() time.Time
}

// NewService creates the orchestrator. cards may be nil; Phase 2 is then
// skipped.
func NewService(logger *common.Logger, config *common.Config, gateway *storage.Gateway, financial interfaces.FinancialService, trading interfaces.TradingService, news interfaces.NewsService, cards interfaces.CardDispatcher) *Service {
	return &Service{
		logger:    logger,
		config:    config,
		gateway:   gateway,
		financial: financial,
		trading:   trading,
		news:      news,
		cards:     cards,
		now:       time.Now,
	}
}

// newsKey identifies one news target; re-insertion with the same key
// replaces the earlier entry.
type newsKey struct {
	ticker     string
	targetType string
	category   string
}

// RunDaily executes one orchestrated run. Per-item failures are recorded in
// the phase results; a data-engine task failing at top level aborts Phase 2
// and marks the run aborted. The returned error covers only input loading.
func (s *Service) RunDaily(ctx context.Context) (*models.BatchRunResult, error) {
	started := s.now()
	result := &models.BatchRunResult{
		RunID:     uuid.NewString(),
		Date:      common.DateString(started.UTC()),
		StartedAt: started.UTC().Format(time.RFC3339),
	}
	log := s.logger.With().Str("run_id", result.RunID).Logger()
	log.Info().Msg("daily batch starting")

	inputs, err := s.loadInputs(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading batch inputs: %w", err)
	}

	financialSet, tradingSet, newsTargets := s.buildPhaseOneSets(inputs)

	g, gctx := errgroup.WithContext(ctx)
	if len(financialSet) > 0 {
		tickers := sortedKeys(financialSet)
		g.Go(func() error {
			return s.runFinancialBatch(gctx, tickers, &result.Financial)
		})
	}
	if len(tradingSet) > 0 {
		tickers := sortedKeys(tradingSet)
		g.Go(func() error {
			return s.runTradingBatch(gctx, tickers, &result.Trading)
		})
	}
	if len(newsTargets) > 0 {
		targets := sortedNewsTargets(newsTargets)
		g.Go(func() error {
			return s.runNewsBatch(gctx, targets, &result.News)
		})
	}

	if err := g.Wait(); err != nil {
		result.Aborted = true
		result.AbortCause = err.Error()
		result.FinishedAt = s.now().UTC().Format(time.RFC3339)
		log.Error().Err(err).Msg("data engine failed, skipping card generation")
		return result, nil
	}

	s.runCardFanOut(ctx, inputs, &result.Cards)

	result.FinishedAt = s.now().UTC().Format(time.RFC3339)
	log.Info().
		Int("cards_ok", len(result.Cards.Succeeded)).
		Int("cards_failed", len(result.Cards.Failed)).
		Msg("daily batch finished")
	return result, nil
}

// buildPhaseOneSets resolves per-target engine flags into the three Phase 1
// work sets.
func (s *Service) buildPhaseOneSets(inputs *runInputs) (map[string]bool, map[string]bool, map[newsKey]models.BatchTarget) {
	financialSet := make(map[string]bool)
	tradingSet := make(map[string]bool)
	newsTargets := make(map[newsKey]models.BatchTarget)

	upsertNews := func(target models.BatchTarget) {
		if target.TargetType == "" {
			target.TargetType = "equity"
		}
		if target.Category == "" {
			if target.TargetType == "topic" {
				target.Category = "topic"
			} else {
				target.Category = target.TargetType
			}
		}
		key := newsKey{target.Ticker, target.TargetType, target.Category}
		newsTargets[key] = target
	}

	baseSet := make(map[string]bool, len(inputs.Tickers))
	for _, t := range inputs.Tickers {
		baseSet[t] = true
	}
	equityOverrides := make(map[string]models.BatchTarget)
	for _, target := range inputs.AdditionalTargets {
		if target.TargetType == "equity" && target.Ticker != "" {
			equityOverrides[target.Ticker] = target
		}
	}

	processedEquity := make(map[string]bool)
	for _, ticker := range inputs.Tickers {
		overrides := mergeFlags(inputs.EquityDefaults.RunEngines, nil)
		newsTarget := models.BatchTarget{Ticker: ticker, TargetType: "equity", Category: "equity"}
		if override, ok := equityOverrides[ticker]; ok {
			processedEquity[ticker] = true
			overrides = mergeFlags(inputs.EquityDefaults.RunEngines, override.RunEngines)
			if override.Category != "" {
				newsTarget.Category = override.Category
			}
			newsTarget.Date = override.Date
		}

		flags := resolveEngineFlags(inputs.EngineControl, overrides)
		if flags.Financials {
			financialSet[ticker] = true
		}
		if flags.Trading {
			tradingSet[ticker] = true
		}
		if flags.News {
			upsertNews(newsTarget)
		}
	}

	for _, target := range inputs.AdditionalTargets {
		if target.Ticker == "" {
			continue
		}
		if target.TargetType == "equity" && processedEquity[target.Ticker] {
			continue
		}

		var overrides map[string]bool
		if target.TargetType == "equity" && baseSet[target.Ticker] {
			overrides = mergeFlags(inputs.EquityDefaults.RunEngines, target.RunEngines)
		} else {
			overrides = mergeFlags(nil, target.RunEngines)
		}

		flags := resolveEngineFlags(inputs.EngineControl, overrides)
		if target.TargetType == "equity" {
			if flags.Financials {
				financialSet[target.Ticker] = true
			}
			if flags.Trading {
				tradingSet[target.Ticker] = true
			}
		}
		if flags.News {
			upsertNews(target)
		}
	}

	return financialSet, tradingSet, newsTargets
}

// runFinancialBatch refreshes financials per ticker with per-item isolation.
// The task fails top-level only when nothing succeeds or the run is
// cancelled.
func (s *Service) runFinancialBatch(ctx context.Context, tickers []string, phase *models.BatchPhaseResult) error {
	for _, ticker := range tickers {
		if ctx.Err() != nil {
			phase.Skipped = append(phase.Skipped, ticker)
			continue
		}
		if err := s.callWithDeadline(ctx, func(cctx context.Context) error {
			_, err := s.financial.RefreshFinancials(cctx, ticker, false)
			return err
		}); err != nil {
			s.logger.Warn().Str("ticker", ticker).Err(err).Msg("financial refresh failed")
			phase.Failed = append(phase.Failed, ticker)
			continue
		}
		phase.Succeeded = append(phase.Succeeded, ticker)
	}
	return s.phaseOutcome(ctx, "financial", phase)
}

func (s *Service) runTradingBatch(ctx context.Context, tickers []string, phase *models.BatchPhaseResult) error {
	for _, ticker := range tickers {
		if ctx.Err() != nil {
			phase.Skipped = append(phase.Skipped, ticker)
			continue
		}
		if err := s.callWithDeadline(ctx, func(cctx context.Context) error {
			_, err := s.trading.RefreshTrading(cctx, ticker)
			return err
		}); err != nil {
			s.logger.Warn().Str("ticker", ticker).Err(err).Msg("trading refresh failed")
			phase.Failed = append(phase.Failed, ticker)
			continue
		}
		phase.Succeeded = append(phase.Succeeded, ticker)
	}
	return s.phaseOutcome(ctx, "trading", phase)
}

// runNewsBatch crawls each target and renders its AI-context artifacts.
func (s *Service) runNewsBatch(ctx context.Context, targets []models.BatchTarget, phase *models.BatchPhaseResult) error {
	for _, target := range targets {
		if ctx.Err() != nil {
			phase.Skipped = append(phase.Skipped, target.Ticker)
			continue
		}

		date := target.Date
		if date == "" {
			date = common.DateString(s.now().UTC())
		}

		err := s.callWithDeadline(ctx, func(cctx context.Context) error {
			if _, err := s.news.CrawlEntity(cctx, target.Ticker, date, false, 0); err != nil {
				return err
			}
			_, err := s.news.BuildAIContext(cctx, target.Ticker, date, s.config.Engine.Steps())
			return err
		})
		if err != nil {
			s.logger.Warn().Str("entity", target.Ticker).Str("type", target.TargetType).Err(err).Msg("news target failed")
			phase.Failed = append(phase.Failed, target.Ticker)
			continue
		}
		phase.Succeeded = append(phase.Succeeded, target.Ticker)
	}
	return s.phaseOutcome(ctx, "news", phase)
}

// phaseOutcome converts a phase result into the task's top-level verdict: a
// cancelled run or a fully failed engine aborts Phase 2.
func (s *Service) phaseOutcome(ctx context.Context, name string, phase *models.BatchPhaseResult) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s engine cancelled: %w", name, err)
	}
	if len(phase.Succeeded) == 0 && len(phase.Failed) > 0 {
		return fmt.Errorf("%s engine failed for all %d items", name, len(phase.Failed))
	}
	return nil
}

// runCardFanOut dispatches one card request per (ticker, card_type), base
// universe first, then additional targets. Duplicate pairs are dispatched
// once.
func (s *Service) runCardFanOut(ctx context.Context, inputs *runInputs, phase *models.BatchPhaseResult) {
	if s.cards == nil {
		s.logger.Info().Msg("no card dispatcher configured, skipping card generation")
		return
	}
	if len(inputs.EnabledCardTypes) == 0 {
		s.logger.Info().Msg("no enabled card types, skipping card generation")
		return
	}

	processed := make(map[models.CardTarget]bool)
	dispatch := func(ticker, cardType string) {
		pair := models.CardTarget{Ticker: ticker, CardType: cardType}
		if processed[pair] {
			return
		}
		processed[pair] = true

		label := ticker + ":" + cardType
		if ctx.Err() != nil {
			phase.Skipped = append(phase.Skipped, label)
			return
		}

		route := resolveRoute(inputs.LLM, cardType)
		err := s.callWithDeadline(ctx, func(cctx context.Context) error {
			return s.cards.GenerateCard(cctx, ticker, cardType, route)
		})
		if err != nil {
			s.logger.Warn().Str("ticker", ticker).Str("card_type", cardType).Err(err).Msg("card dispatch failed")
			phase.Failed = append(phase.Failed, label)
			return
		}
		phase.Succeeded = append(phase.Succeeded, label)
	}

	for _, ticker := range inputs.Tickers {
		for _, cardType := range inputs.EquityCardTypes {
			dispatch(ticker, cardType)
		}
	}
	for _, target := range inputs.AdditionalTargets {
		cardTypes := target.CardTypes
		if len(cardTypes) == 0 {
			cardTypes = inputs.EquityCardTypes
		}
		for _, cardType := range cardTypes {
			dispatch(target.Ticker, cardType)
		}
	}
}

// resolveRoute applies the per-task override field-wise over the default.
func resolveRoute(llm models.LLMConfig, cardType string) models.LLMRoute {
	route := llm.Default
	if override, ok := llm.Tasks[cardType]; ok {
		if override.Backend != "" {
			route.Backend = override.Backend
		}
		if override.Model != "" {
			route.Model = override.Model
		}
	}
	return route
}

// callWithDeadline runs fn under the per-dispatch engine deadline.
func (s *Service) callWithDeadline(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, s.config.Engine.CallTimeout())
	defer cancel()
	return fn(cctx)
}

// mergeFlags overlays b onto a without mutating either.
func mergeFlags(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// sortedNewsTargets orders targets for stable logs: equities first, then by
// category and ticker.
func sortedNewsTargets(targets map[newsKey]models.BatchTarget) []models.BatchTarget {
	out := make([]models.BatchTarget, 0, len(targets))
	for _, t := range targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i], out[j]
		if (ti.TargetType == "topic") != (tj.TargetType == "topic") {
			return tj.TargetType == "topic"
		}
		if ti.Category != tj.Category {
			return ti.Category < tj.Category
		}
		return ti.Ticker < tj.Ticker
	})
	return out
}
