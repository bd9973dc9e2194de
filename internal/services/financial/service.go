// Package financial owns the financial snapshot lifecycle: the
// earnings-gated refresh policy, the layered cache with singleflight, and
// the interpreted-earnings view served to card renderers.
package financial

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stockflow/engine/internal/cache"
	"github.com/stockflow/engine/internal/common"
	"github.com/stockflow/engine/internal/interfaces"
	"github.com/stockflow/engine/internal/models"
	"github.com/stockflow/engine/internal/storage"
	"github.com/stockflow/engine/internal/timeseries"
)

// earningsCalendarTimeout bounds the calendar lookup; a slow calendar must
// not stall a refresh decision.
const earningsCalendarTimeout = 3 * time.Second

// Service implements interfaces.FinancialService.
type Service struct {
	logger  *common.Logger
	config  *common.Config
	gateway *storage.Gateway
	client  interfaces.MarketDataClient

	l1     *cache.L1
	flight *cache.Flight

	followerWait time.Duration
	now          func() time.Time
}

// NewService creates the financial service.
func NewService(logger *common.Logger, config *common.Config, gateway *storage.Gateway, client interfaces.MarketDataClient) *Service {
	return &Service{
		logger:       logger,
		config:       config,
		gateway:      gateway,
		client:       client,
		l1:           cache.NewL1(config.Cache.HitTTL(), config.Cache.MissTTL()),
		flight:       cache.NewFlight(),
		followerWait: cache.DefaultFollowerWait,
		now:          time.Now,
	}
}

// RefreshFinancials runs the refresh policy for one ticker and returns the
// interpreted view of the resulting snapshot.
func (s *Service) RefreshFinancials(ctx context.Context, ticker string, force bool) (*models.InterpretedEarnings, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("%w: empty ticker", common.ErrInvalidInput)
	}

	snap, err := s.loadSnapshot(ctx, ticker)
	if err != nil {
		return nil, err
	}

	upstreamNext := s.nextEarningsDate(ctx, ticker)
	needed, reason := shouldRefresh(snap, upstreamNext, force, s.now(), s.config.Cache.NoEarningsStaleness())

	s.logger.Debug().Str("ticker", ticker).Bool("refresh", needed).Str("reason", reason).Msg("financial refresh decision")

	if !needed {
		if snap == nil {
			return nil, fmt.Errorf("%w: no snapshot for %s", common.ErrNotFound, ticker)
		}
		return s.interpret(ticker, snap, cache.LayerL2), nil
	}

	refreshed, err := s.doRefresh(ctx, ticker, snap, upstreamNext, reason)
	if err != nil {
		if snap != nil {
			stale := s.interpret(ticker, snap, cache.LayerL2Stale)
			stale.Stale = true
			stale.StaleReason = err.Error()
			s.logger.Warn().Str("ticker", ticker).Err(err).Msg("refresh failed, serving stale snapshot")
			return stale, nil
		}
		return nil, err
	}
	s.l1.Invalidate(ticker)
	return s.interpret(ticker, refreshed, cache.LayerUpstream), nil
}

// GetInterpretedEarnings serves the interpreted view through the layered
// cache: L1, then leader/follower coordination over L2 and the upstream.
func (s *Service) GetInterpretedEarnings(ctx context.Context, ticker string, force bool) (*models.InterpretedEarnings, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("%w: empty ticker", common.ErrInvalidInput)
	}

	if !force {
		if payload, miss, ok := s.l1.Get(ticker); ok {
			if miss {
				return nil, fmt.Errorf("%w: %s", common.ErrNotFound, ticker)
			}
			return withLayer(payload.(*models.InterpretedEarnings), cache.LayerL1), nil
		}
	}

	leader, done := s.flight.Begin(ticker)
	if !leader {
		return s.asFollower(ctx, ticker, done)
	}
	defer s.flight.Finish(ticker)

	return s.asLeader(ctx, ticker, force)
}

// asFollower waits for the current leader, then re-checks the cache layers.
func (s *Service) asFollower(ctx context.Context, ticker string, done <-chan struct{}) (*models.InterpretedEarnings, error) {
	if !cache.Wait(done, s.followerWait) {
		s.logger.Warn().Str("ticker", ticker).Msg("follower wait timed out")
	}

	if payload, miss, ok := s.l1.Get(ticker); ok && !miss {
		return withLayer(payload.(*models.InterpretedEarnings), cache.LayerL1AfterWait), nil
	}

	snap, err := s.loadSnapshot(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		return s.interpret(ticker, snap, cache.LayerL2AfterWait), nil
	}
	return nil, fmt.Errorf("%w: %s", common.ErrUpstreamUnavailable, ticker)
}

// asLeader loads L2, runs the refresh policy, and refreshes when required.
func (s *Service) asLeader(ctx context.Context, ticker string, force bool) (*models.InterpretedEarnings, error) {
	snap, err := s.loadSnapshot(ctx, ticker)
	if err != nil {
		return nil, err
	}

	upstreamNext := s.nextEarningsDate(ctx, ticker)
	needed, reason := shouldRefresh(snap, upstreamNext, force, s.now(), s.config.Cache.NoEarningsStaleness())

	if !needed && snap != nil {
		result := s.interpret(ticker, snap, cache.LayerL2)
		s.l1.SetHit(ticker, result)
		return result, nil
	}

	refreshed, err := s.doRefresh(ctx, ticker, snap, upstreamNext, reason)
	if err != nil {
		if snap != nil {
			stale := s.interpret(ticker, snap, cache.LayerL2Stale)
			stale.Stale = true
			stale.StaleReason = err.Error()
			return stale, nil
		}
		s.l1.SetMiss(ticker)
		return nil, err
	}

	result := s.interpret(ticker, refreshed, cache.LayerUpstream)
	s.l1.SetHit(ticker, result)
	return result, nil
}

// doRefresh fetches, merges, stamps, and persists a snapshot.
func (s *Service) doRefresh(ctx context.Context, ticker string, old *models.FinancialSnapshot, upstreamNext, reason string) (*models.FinancialSnapshot, error) {
	fresh, err := s.client.Statements(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("%w: statements fetch for %s: %v", common.ErrUpstream, ticker, err)
	}
	fresh.Ticker = ticker

	merged := timeseries.MergeSnapshot(old, fresh)
	merged.FetchedAt = s.now().UTC()
	merged.CacheMeta = &models.CacheMeta{
		LastRefreshedAt:  s.now().UTC().Format(time.RFC3339),
		NextEarningsDate: upstreamNext,
		RefreshReason:    reason,
	}

	if err := s.gateway.WriteJSON(ctx, s.gateway.FinancialsPath(ticker), merged); err != nil {
		return nil, err
	}

	s.logger.Info().Str("ticker", ticker).Str("reason", reason).Msg("financial snapshot refreshed")
	return merged, nil
}

func (s *Service) loadSnapshot(ctx context.Context, ticker string) (*models.FinancialSnapshot, error) {
	var snap models.FinancialSnapshot
	err := s.gateway.ReadJSON(ctx, s.gateway.FinancialsPath(ticker), &snap)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

// nextEarningsDate asks the calendar with a short deadline; failures and
// timeouts degrade to "unknown".
func (s *Service) nextEarningsDate(ctx context.Context, ticker string) string {
	calCtx, cancel := context.WithTimeout(ctx, earningsCalendarTimeout)
	defer cancel()

	next, err := s.client.NextEarningsDate(calCtx, ticker)
	if err != nil {
		s.logger.Debug().Str("ticker", ticker).Err(err).Msg("earnings calendar unavailable")
		return ""
	}
	return next
}

func withLayer(in *models.InterpretedEarnings, layer string) *models.InterpretedEarnings {
	out := *in
	out.CacheLayer = layer
	return &out
}
