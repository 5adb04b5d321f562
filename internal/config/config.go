// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	ControlAddr string `yaml:"control_addr"`
	LogLevel    string `yaml:"log_level"`
	StatePath   string `yaml:"state_path"`
}

// Exchange describes the derivatives venue connectivity parameters the engine expects.
type Exchange struct {
	Name           string  `yaml:"name"`
	BaseURL        string  `yaml:"base_url"`
	WSBaseURL      string  `yaml:"ws_base_url"`
	QuoteAsset     string  `yaml:"quote_asset"`
	RequestTimeout int     `yaml:"request_timeout_ms"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	RateBurst      int     `yaml:"rate_burst"`
	MaxConcurrent  int     `yaml:"max_concurrent"`
	RetryCount     int     `yaml:"retry_count"`
	RetryBaseMs    int     `yaml:"retry_base_ms"`
	FallbackLimit  int     `yaml:"fallback_limit"`
}

// Universe controls how the scan universe is rebuilt each cycle.
type Universe struct {
	MinQuoteVolumeUSD float64  `yaml:"min_quote_volume_usd"`
	MinPrice          float64  `yaml:"min_price"`
	ExcludedBases     []string `yaml:"excluded_bases"`
}

// Gate groups the statistical pre-filter thresholds.
type Gate struct {
	Timeframe       string  `yaml:"timeframe"`
	ATRPeriod       int     `yaml:"atr_period"`
	ATRSpikeMult    float64 `yaml:"atr_spike_mult"`
	WickRatio       float64 `yaml:"wick_ratio"`
	VolWindow       int     `yaml:"vol_window"`
	VolZThreshold   float64 `yaml:"vol_z_threshold"`
	MinBodyATRFrac  float64 `yaml:"min_body_atr_frac"`
	SMAPeriod       int     `yaml:"sma_period"`
	LongWickRatio   float64 `yaml:"long_wick_ratio"`
	LongMaxSpikeATR float64 `yaml:"long_max_spike_atr"`
}

// Score groups the scorer weights and the higher-timeframe context settings.
type Score struct {
	HTFTimeframe       string  `yaml:"htf_timeframe"`
	HTFLimit           int     `yaml:"htf_limit"`
	TrendSMAPeriod     int     `yaml:"trend_sma_period"`
	TrendLookback      int     `yaml:"trend_lookback"`
	StrongTrendATR     float64 `yaml:"strong_trend_atr"`
	ReferenceSymbol    string  `yaml:"reference_symbol"`
	ReferenceVetoPct   float64 `yaml:"reference_veto_pct"`
	WickWeight         float64 `yaml:"wick_weight"`
	SpikeWeight        float64 `yaml:"spike_weight"`
	TrendPenalty       float64 `yaml:"trend_penalty"`
	TrendBonus         float64 `yaml:"trend_bonus"`
	ReferencePenalty   float64 `yaml:"reference_penalty"`
	MeanRevPenalty     float64 `yaml:"mean_rev_penalty"`
	MissingHTFPenalty  float64 `yaml:"missing_htf_penalty"`
	ExtraGateBonus     float64 `yaml:"extra_gate_bonus"`
	LongBias           float64 `yaml:"long_bias"`
}

// Threshold configures the adaptive acceptance threshold controller.
type Threshold struct {
	Base          float64 `yaml:"base"`
	ScoreMin      float64 `yaml:"score_min"`
	ScoreMax      float64 `yaml:"score_max"`
	Pad           float64 `yaml:"pad"`
	Smoothing     float64 `yaml:"smoothing"`
	MaxJump       float64 `yaml:"max_jump"`
	MinSample     int     `yaml:"min_sample"`
	ExploreStep   float64 `yaml:"explore_step"`
	LongOffset    float64 `yaml:"long_offset"`
	MaxVetoesIdle int     `yaml:"max_vetoes_idle"`
}

// Risk encodes position sizing, exits, and the guard-rails on open exposure.
type Risk struct {
	PositionSizeUSDT     float64 `yaml:"position_size_usdt"`
	Leverage             float64 `yaml:"leverage"`
	MaxPositions         int     `yaml:"max_positions"`
	MaxPerSymbol         int     `yaml:"max_per_symbol"`
	SLPct                float64 `yaml:"sl_pct"`
	TPPct                float64 `yaml:"tp_pct"`
	SLATRMult            float64 `yaml:"sl_atr_mult"`
	EntryTailFraction    float64 `yaml:"entry_tail_fraction"`
	CooldownSec          int     `yaml:"cooldown_sec"`
	MaintenanceMarginPct float64 `yaml:"maintenance_margin_pct"`
}

// DCA configures the averaging variant: bank split, ladder horizons, trailing stages.
type DCA struct {
	Enabled              bool      `yaml:"enabled"`
	Bank                 float64   `yaml:"bank"`
	Levels               int       `yaml:"levels"`
	Growth               float64   `yaml:"growth"`
	GrowthThin           float64   `yaml:"growth_thin"`
	CumDepositFracAtFull float64   `yaml:"cum_deposit_frac_at_full"`
	TacticalLookback     int       `yaml:"tactical_lookback"`
	StrategicLookback    int       `yaml:"strategic_lookback"`
	LadderStepPct        float64   `yaml:"ladder_step_pct"`
	RetestBandPct        float64   `yaml:"retest_band_pct"`
	TrailArmFracs        []float64 `yaml:"trail_arm_fracs"`
	TrailLockFracs       []float64 `yaml:"trail_lock_fracs"`
	ChandelierATRMult    float64   `yaml:"chandelier_atr_mult"`
	MinTrailTickSteps    int       `yaml:"min_trail_tick_steps"`
}

// Scan controls the outer scheduler loop.
type Scan struct {
	IntervalSec     int `yaml:"interval_sec"`
	MonitorSec      int `yaml:"monitor_sec"`
	ChunkSize       int `yaml:"chunk_size"`
	TimeBudgetSec   int `yaml:"time_budget_sec"`
	BarLimit        int `yaml:"bar_limit"`
	MaxOpensPerScan int `yaml:"max_opens_per_scan"`
	HeartbeatSec    int `yaml:"heartbeat_sec"`
}

// Journal points at the append-only trade log store.
type Journal struct {
	Path string `yaml:"path"`
}

// Telegram configures the notification channel; the token comes from the environment.
type Telegram struct {
	Enabled bool    `yaml:"enabled"`
	PollSec int     `yaml:"poll_sec"`
	ChatIDs []int64 `yaml:"chat_ids"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Exchange  Exchange  `yaml:"exchange"`
	Universe  Universe  `yaml:"universe"`
	Gate      Gate      `yaml:"gate"`
	Score     Score     `yaml:"score"`
	Threshold Threshold `yaml:"threshold"`
	Risk      Risk      `yaml:"risk"`
	DCA       DCA       `yaml:"dca"`
	Scan      Scan      `yaml:"scan"`
	Journal   Journal   `yaml:"journal"`
	Telegram  Telegram  `yaml:"telegram"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.StatePath == "" {
		c.App.StatePath = "bot_state.json"
	}
	if c.Exchange.RequestTimeout <= 0 {
		c.Exchange.RequestTimeout = 8000
	}
	if c.Exchange.MaxConcurrent <= 0 {
		c.Exchange.MaxConcurrent = 10
	}
	if c.Exchange.RetryCount <= 0 {
		c.Exchange.RetryCount = 3
	}
	if c.Exchange.RetryBaseMs <= 0 {
		c.Exchange.RetryBaseMs = 250
	}
	if c.Gate.Timeframe == "" {
		c.Gate.Timeframe = "1m"
	}
	if c.Gate.ATRPeriod <= 0 {
		c.Gate.ATRPeriod = 14
	}
	if c.Gate.ATRSpikeMult <= 0 {
		c.Gate.ATRSpikeMult = 1.8
	}
	if c.Gate.WickRatio <= 0 {
		c.Gate.WickRatio = 2.0
	}
	if c.Gate.VolWindow <= 0 {
		c.Gate.VolWindow = 50
	}
	if c.Gate.VolZThreshold <= 0 {
		c.Gate.VolZThreshold = 2.0
	}
	if c.Gate.SMAPeriod <= 0 {
		c.Gate.SMAPeriod = 20
	}
	if c.Score.HTFTimeframe == "" {
		c.Score.HTFTimeframe = "15m"
	}
	if c.Score.TrendSMAPeriod <= 0 {
		c.Score.TrendSMAPeriod = 50
	}
	if c.Score.TrendLookback <= 0 {
		c.Score.TrendLookback = 3
	}
	if c.Threshold.ScoreMax <= c.Threshold.ScoreMin {
		c.Threshold.ScoreMin, c.Threshold.ScoreMax = 0.5, 3.0
	}
	if c.Threshold.Smoothing <= 0 || c.Threshold.Smoothing > 1 {
		c.Threshold.Smoothing = 0.4
	}
	if c.Threshold.MaxJump <= 0 {
		c.Threshold.MaxJump = 0.15
	}
	if c.Risk.Leverage <= 0 {
		c.Risk.Leverage = 20
	}
	if c.Risk.MaxPositions <= 0 {
		c.Risk.MaxPositions = 10
	}
	if c.Risk.MaxPerSymbol <= 0 {
		c.Risk.MaxPerSymbol = 1
	}
	if c.Scan.IntervalSec <= 0 {
		c.Scan.IntervalSec = 30
	}
	if c.Scan.MonitorSec <= 0 {
		c.Scan.MonitorSec = 5
	}
	if c.Scan.ChunkSize <= 0 {
		c.Scan.ChunkSize = 40
	}
	if c.Scan.TimeBudgetSec <= 0 {
		c.Scan.TimeBudgetSec = 25
	}
	if c.Scan.BarLimit <= 0 {
		c.Scan.BarLimit = c.Gate.VolWindow + c.Gate.ATRPeriod + 1
	}
	if c.Scan.HeartbeatSec <= 0 {
		c.Scan.HeartbeatSec = 300
	}
	if c.DCA.Levels <= 0 {
		c.DCA.Levels = 5
	}
	if c.DCA.Growth < 1 {
		c.DCA.Growth = 2.0
	}
	if c.DCA.CumDepositFracAtFull <= 0 {
		c.DCA.CumDepositFracAtFull = 2.0 / 3.0
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "trades.db"
	}
}
