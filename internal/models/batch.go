package models

// EngineFlags selects which engines run for a target.
type EngineFlags struct {
	Financials bool `json:"financials"`
	Trading    bool `json:"trading"`
	News       bool `json:"news"`
}

// BatchTarget is one additional entity in the orchestrator's run list with
// optional per-target engine and card-type overrides.
type BatchTarget struct {
	Ticker     string          `json:"ticker"`
	TargetType string          `json:"target_type"` // equity / topic / person
	Category   string          `json:"category,omitempty"`
	Date       string          `json:"date,omitempty"`
	CardTypes  []string        `json:"card_types,omitempty"`
	RunEngines map[string]bool `json:"run_engines,omitempty"`
}

// CardTarget is one (entity, card_type) dispatch in Phase 2.
type CardTarget struct {
	Ticker   string `json:"ticker"`
	CardType string `json:"card_type"`
}

// LLMRoute selects a backend/model pair.
type LLMRoute struct {
	Backend string `json:"backend"`
	Model   string `json:"model"`
}

// LLMConfig routes card generation: a default route plus per-task overrides.
type LLMConfig struct {
	Default LLMRoute            `json:"default"`
	Tasks   map[string]LLMRoute `json:"tasks,omitempty"`
}

// BatchPhaseResult summarizes one phase of a daily run.
type BatchPhaseResult struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
	Skipped   []string `json:"skipped,omitempty"`
}

// BatchRunResult is the daily orchestrator outcome.
type BatchRunResult struct {
	RunID      string           `json:"run_id"`
	Date       string           `json:"date"`
	StartedAt  string           `json:"started_at"`
	FinishedAt string           `json:"finished_at"`
	Financial  BatchPhaseResult `json:"financial"`
	Trading    BatchPhaseResult `json:"trading"`
	News       BatchPhaseResult `json:"news"`
	Cards      BatchPhaseResult `json:"cards"`
	Aborted    bool             `json:"aborted"`
	AbortCause string           `json:"abort_cause,omitempty"`
}
