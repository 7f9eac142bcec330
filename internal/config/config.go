package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendRemote    = "remote"
)

// Agent is a named sub-agent the assistant can mention in its reasoning trace
type Agent struct {
	Key  string `toml:"key"`
	Name string `toml:"name"`
}

// ProgressConfig tunes the step-driven animator and the time-based loading bar
type ProgressConfig struct {
	DurationMs        int     `toml:"duration_ms"`
	BumpFraction      float64 `toml:"bump_fraction"`
	LoadingTarget     float64 `toml:"loading_target"`
	LoadingStep       float64 `toml:"loading_step"`
	LoadingIntervalMs int     `toml:"loading_interval_ms"`
	FrameIntervalMs   int     `toml:"frame_interval_ms"`
}

// ScrollConfig tunes transcript auto-follow
type ScrollConfig struct {
	TolerancePx        float64 `toml:"tolerance_px"`
	UserScrollWindowMs int     `toml:"user_scroll_window_ms"`
}

// TelemetryConfig tunes the OpenTelemetry exporters
type TelemetryConfig struct {
	Enabled             bool `toml:"enabled"`
	MetricIntervalMs    int  `toml:"metric_interval_ms"`
	TraceBatchTimeoutMs int  `toml:"trace_batch_timeout_ms"`
}

// Config holds application configuration
type Config struct {
	Backend  string `toml:"backend"`
	ThreadID string `toml:"thread_id"`
	UserKey  string `toml:"user_key"`
	Debug    bool   `toml:"debug"`

	DBPath        string `toml:"db_path"`
	LogDir        string `toml:"log_dir"`
	CacheMaxItems int64  `toml:"cache_max_items"`

	OllamaURL   string `toml:"ollama_url"`
	OllamaModel string `toml:"ollama_model"` // Model specification in format "model:version" (e.g., "llama3:latest")

	AnthropicKey    string `toml:"-"`
	AnthropicModel  string `toml:"anthropic_model"`
	ThinkingBudget  int64  `toml:"thinking_budget"`
	MaxOutputTokens int64  `toml:"max_output_tokens"`

	// TradeAi API
	APIURL    string `toml:"api_url"`
	StreamURL string `toml:"stream_url"`

	Progress  ProgressConfig  `toml:"progress"`
	Scroll    ScrollConfig    `toml:"scroll"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Agents    []Agent         `toml:"agents"`
}

// Default returns the configuration used when no file or flag overrides a value
func Default() Config {
	return Config{
		Backend:         BackendOllama,
		UserKey:         "local",
		DBPath:          "tradeai.db",
		LogDir:          "logs",
		CacheMaxItems:   256,
		OllamaURL:       "http://localhost:11434",
		OllamaModel:     "llama3:latest",
		AnthropicModel:  "claude-sonnet-4-20250514",
		ThinkingBudget:  2048,
		MaxOutputTokens: 4096,
		Progress: ProgressConfig{
			DurationMs:        5000,
			BumpFraction:      0.5,
			LoadingTarget:     20,
			LoadingStep:       1,
			LoadingIntervalMs: 100,
			FrameIntervalMs:   16,
		},
		Scroll: ScrollConfig{
			TolerancePx:        10,
			UserScrollWindowMs: 150,
		},
		Telemetry: TelemetryConfig{
			Enabled:             true,
			MetricIntervalMs:    10000,
			TraceBatchTimeoutMs: 5000,
		},
		Agents: DefaultAgents(),
	}
}

// DefaultAgents lists the sub-agents the TradeAi orchestrator dispatches to
func DefaultAgents() []Agent {
	return []Agent{
		{Key: "market_data_agent", Name: "Market Data"},
		{Key: "technical_analysis_agent", Name: "Technical Analysis"},
		{Key: "sentiment_agent", Name: "Sentiment"},
		{Key: "onchain_agent", Name: "On-chain"},
		{Key: "news_agent", Name: "News"},
		{Key: "portfolio_agent", Name: "Portfolio"},
	}
}

// Load reads a TOML file on top of the defaults. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.AnthropicKey = v
	}
	if v := os.Getenv("TRADEAI_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("TRADEAI_STREAM_URL"); v != "" {
		c.StreamURL = v
	}
	if v := os.Getenv("TRADEAI_USER_KEY"); v != "" {
		c.UserKey = v
	}
}

// Validate reports the first setting that cannot be used
func (c Config) Validate() error {
	switch c.Backend {
	case BackendOllama, BackendAnthropic:
	case BackendRemote:
		if c.APIURL == "" || c.StreamURL == "" {
			return errors.New("remote backend needs api_url and stream_url")
		}
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}
	if c.Progress.BumpFraction <= 0 || c.Progress.BumpFraction > 1 {
		return fmt.Errorf("bump_fraction must be in (0, 1], got %v", c.Progress.BumpFraction)
	}
	if c.Progress.LoadingTarget < 0 || c.Progress.LoadingTarget > 100 {
		return fmt.Errorf("loading_target must be in [0, 100], got %v", c.Progress.LoadingTarget)
	}
	if c.Progress.DurationMs <= 0 {
		return errors.New("duration_ms must be positive")
	}
	if c.Telemetry.MetricIntervalMs < 0 || c.Telemetry.TraceBatchTimeoutMs < 0 {
		return errors.New("telemetry intervals must not be negative")
	}
	return nil
}

// ProgressDuration is the interpolation window of one animator step
func (c Config) ProgressDuration() time.Duration {
	return time.Duration(c.Progress.DurationMs) * time.Millisecond
}

// LoadingInterval is the tick period of the loading bar
func (c Config) LoadingInterval() time.Duration {
	return time.Duration(c.Progress.LoadingIntervalMs) * time.Millisecond
}

// FrameInterval is the period of the system frame clock
func (c Config) FrameInterval() time.Duration {
	return time.Duration(c.Progress.FrameIntervalMs) * time.Millisecond
}

// UserScrollWindow is how long a user scroll suppresses auto-scroll on resize
func (c Config) UserScrollWindow() time.Duration {
	return time.Duration(c.Scroll.UserScrollWindowMs) * time.Millisecond
}

// MetricInterval is the period of the metrics export
func (c Config) MetricInterval() time.Duration {
	return time.Duration(c.Telemetry.MetricIntervalMs) * time.Millisecond
}

// TraceBatchTimeout bounds how long finished spans wait before export
func (c Config) TraceBatchTimeout() time.Duration {
	return time.Duration(c.Telemetry.TraceBatchTimeoutMs) * time.Millisecond
}

// AgentKeys returns the keys of the configured agents in declaration order
func (c Config) AgentKeys() []string {
	keys := make([]string, len(c.Agents))
	for i, a := range c.Agents {
		keys[i] = a.Key
	}
	return keys
}

// AgentNames maps agent keys to display names
func (c Config) AgentNames() map[string]string {
	names := make(map[string]string, len(c.Agents))
	for _, a := range c.Agents {
		names[a.Key] = a.Name
	}
	return names
}
