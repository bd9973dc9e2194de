package batch

import (
	"context"
	"errors"
	"strings"

	"github.com/stockflow/engine/internal/models"
	"github.com/stockflow/engine/internal/storage"
)

// fallbackTickers seeds the universe when neither batch_config nor the
// dynamic ticker list exists yet.
var fallbackTickers = []string{"AAPL", "MSFT", "NVDA", "GOOGL", "TSLA"}

// preferredEquityCardTypes is the equity card lineup used when
// equities_default names none.
var preferredEquityCardTypes = []string{
	"news_card",
	"earnings_card",
	"trading_card",
	"news_bull_bear_card",
	"daily_summary_card",
}

// cardTypeEntry is one row of batch_config/card_types.json.
type cardTypeEntry struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// rawTarget is one row of batch_config/card_targets.json before expansion.
type rawTarget struct {
	ID         string          `json:"id"`
	TargetType string          `json:"target_type"`
	Category   string          `json:"category"`
	Type       string          `json:"type"`
	Date       string          `json:"date"`
	CardTypes  []string        `json:"card_types"`
	RunEngines map[string]bool `json:"run_engines"`
}

// equityDefaults carries the equities_default pseudo-target settings.
type equityDefaults struct {
	CardTypes  []string
	RunEngines map[string]bool
}

// runInputs is everything one daily run reads from batch_config.
type runInputs struct {
	Tickers           []string
	EnabledCardTypes  []string
	EquityCardTypes   []string
	EquityDefaults    equityDefaults
	AdditionalTargets []models.BatchTarget
	EngineControl     map[string]bool
	LLM               models.LLMConfig
}

// loadInputs reads the orchestrator inputs. A missing blob falls back to a
// default; a corrupt one fails the run.
func (s *Service) loadInputs(ctx context.Context) (*runInputs, error) {
	tickers, err := s.loadTickers(ctx)
	if err != nil {
		return nil, err
	}

	var cardTypes []cardTypeEntry
	if err := s.readOptional(ctx, s.gateway.BatchConfigPath("card_types"), &cardTypes); err != nil {
		return nil, err
	}
	var enabled []string
	for _, ct := range cardTypes {
		if ct.Enabled && ct.Name != "" {
			enabled = append(enabled, ct.Name)
		}
	}

	var rawTargets []rawTarget
	if err := s.readOptional(ctx, s.gateway.BatchConfigPath("card_targets"), &rawTargets); err != nil {
		return nil, err
	}
	targets, defaults := expandCardTargets(rawTargets, enabled)

	control := map[string]bool{}
	if err := s.readOptional(ctx, s.gateway.BatchConfigPath("engine_control"), &control); err != nil {
		return nil, err
	}
	if len(control) == 0 {
		s.logger.Warn().Msg("engine control missing, running all data engines")
		control = map[string]bool{
			"run_financials_engine": true,
			"run_trading_engine":    true,
			"run_news_engine":       true,
		}
	}

	var llm models.LLMConfig
	if err := s.readOptional(ctx, s.gateway.BatchConfigPath("llm_config"), &llm); err != nil {
		return nil, err
	}

	return &runInputs{
		Tickers:           tickers,
		EnabledCardTypes:  enabled,
		EquityCardTypes:   resolveEquityCardTypes(defaults.CardTypes, enabled),
		EquityDefaults:    defaults,
		AdditionalTargets: targets,
		EngineControl:     control,
		LLM:               llm,
	}, nil
}

// loadTickers resolves the equity universe: batch_config list, then the
// dynamic default-tickers blob, then the built-in fallback.
func (s *Service) loadTickers(ctx context.Context) ([]string, error) {
	var tickers []string
	if err := s.readOptional(ctx, s.gateway.BatchConfigPath("ticker_list"), &tickers); err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		if err := s.readOptional(ctx, s.gateway.DefaultTickersPath(), &tickers); err != nil {
			return nil, err
		}
	}
	if len(tickers) == 0 {
		s.logger.Warn().Msg("no ticker universe configured, using fallback")
		tickers = append(tickers, fallbackTickers...)
	}

	out := tickers[:0]
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// readOptional loads a JSON blob into dst, treating a missing blob as empty.
func (s *Service) readOptional(ctx context.Context, key string, dst any) error {
	err := s.gateway.ReadJSON(ctx, key, dst)
	if err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		return err
	}
	return nil
}

// expandCardTargets normalizes card_targets.json rows into batch targets and
// pulls out the equities_default settings.
func expandCardTargets(raw []rawTarget, enabled []string) ([]models.BatchTarget, equityDefaults) {
	enabledSet := make(map[string]bool, len(enabled))
	for _, ct := range enabled {
		enabledSet[ct] = true
	}

	var defaults equityDefaults
	var out []models.BatchTarget

	for _, entry := range raw {
		id := strings.TrimSpace(entry.ID)

		cardTypes := filterCardTypes(entry.CardTypes, enabledSet)
		if len(entry.CardTypes) == 0 {
			cardTypes = append([]string(nil), enabled...)
		}

		if strings.EqualFold(id, "equities_default") {
			defaults.CardTypes = cardTypes
			defaults.RunEngines = entry.RunEngines
			continue
		}
		if id == "" {
			continue
		}

		out = append(out, models.BatchTarget{
			Ticker:     id,
			TargetType: targetTypeOf(entry),
			Category:   entry.Category,
			Date:       entry.Date,
			CardTypes:  cardTypes,
			RunEngines: entry.RunEngines,
		})
	}
	return out, defaults
}

func filterCardTypes(requested []string, enabled map[string]bool) []string {
	var out []string
	for _, ct := range requested {
		if enabled[ct] {
			out = append(out, ct)
		}
	}
	return out
}

// targetTypeOf derives the target type, falling back on the category the way
// legacy configs encoded it.
func targetTypeOf(entry rawTarget) string {
	tt := strings.ToLower(strings.TrimSpace(entry.TargetType))
	if tt != "" {
		return tt
	}

	category := strings.ToLower(strings.TrimSpace(entry.Category))
	if category == "" {
		category = strings.ToLower(strings.TrimSpace(entry.Type))
	}
	switch category {
	case "celebrity", "person", "people":
		return "person"
	case "equity":
		return "equity"
	default:
		return "topic"
	}
}

// resolveEquityCardTypes picks the card lineup for the base equity universe.
func resolveEquityCardTypes(configured, enabled []string) []string {
	enabledSet := make(map[string]bool, len(enabled))
	for _, ct := range enabled {
		enabledSet[ct] = true
	}

	if out := filterCardTypes(configured, enabledSet); len(out) > 0 {
		return out
	}
	if out := filterCardTypes(preferredEquityCardTypes, enabledSet); len(out) > 0 {
		return out
	}
	return append([]string(nil), enabled...)
}

// resolveEngineFlags folds the global engine-control map and per-target
// overrides into the three engine switches. Both the canonical names and the
// run_*_engine aliases are accepted.
func resolveEngineFlags(global, overrides map[string]bool) models.EngineFlags {
	flags := models.EngineFlags{}
	apply := func(m map[string]bool) {
		// Alias first, canonical second: a map carrying both forms
		// resolves to the canonical one.
		if v, ok := m["run_financials_engine"]; ok {
			flags.Financials = v
		}
		if v, ok := m["financials"]; ok {
			flags.Financials = v
		}
		if v, ok := m["run_trading_engine"]; ok {
			flags.Trading = v
		}
		if v, ok := m["trading"]; ok {
			flags.Trading = v
		}
		if v, ok := m["run_news_engine"]; ok {
			flags.News = v
		}
		if v, ok := m["news"]; ok {
			flags.News = v
		}
	}
	apply(global)
	apply(overrides)
	return flags
}
