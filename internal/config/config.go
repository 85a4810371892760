// Package config loads and centralizes the pipeline's configuration: the
// Threshold Config (component C4) — the single source of truth for every
// tunable constant in the stage algorithms — plus the surrounding app,
// database, LLM, and logging configuration. Layering follows the teacher
// pattern: code defaults, then an optional config file, then environment
// variables (highest precedence), via viper; a local .env file is loaded
// first via godotenv.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	App        App        `mapstructure:"app"`
	Database   Database   `mapstructure:"database"`
	LLM        LLM        `mapstructure:"llm"`
	Pipeline   Pipeline   `mapstructure:"pipeline"`
	Thresholds Thresholds `mapstructure:"thresholds"`
	Logging    Logging    `mapstructure:"logging"`
}

// App holds general application configuration.
type App struct {
	Debug      bool   `mapstructure:"debug"`
	DataDir    string `mapstructure:"data_dir"`
	ConfigFile string `mapstructure:"config_file"`
	Profile    string `mapstructure:"profile"`
}

// Database holds the Article Store's backing configuration.
type Database struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// LLM holds the Gemini client configuration used by Stage 1 and Stage 3.
type LLM struct {
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float32 `mapstructure:"temperature"`
	MaxTokens      int32   `mapstructure:"max_tokens"`
}

// Pipeline holds concurrency and batching knobs from §5 of the spec that are
// operational rather than business-rule thresholds (those live in
// Thresholds below).
type Pipeline struct {
	FetchConcurrency    int `mapstructure:"fetch_concurrency"`
	DelayBetweenBatchesMS int `mapstructure:"delay_between_batches_ms"`
	IncrementalTopN     int `mapstructure:"incremental_top_n"`
}

// Thresholds is the Threshold Config (C4): the single source of truth for
// every numeric cutoff used by the stages.
type Thresholds struct {
	ProcessGateHoldings int `mapstructure:"process_gate_holdings"`
	ProcessGateMacro    int `mapstructure:"process_gate_macro"`

	FeedRankCutoff int `mapstructure:"feed_rank_cutoff"`
	ShownToUserCutoff int `mapstructure:"shown_to_user_cutoff"`

	Stage3MinImpactToContinue int `mapstructure:"stage3_min_impact_to_continue"`
	Stage4MinToStayPersonalized int `mapstructure:"stage4_min_to_stay_personalized"`
	Stage4CostGateImpact int `mapstructure:"stage4_cost_gate_impact"`

	HoldingRelevanceBase      int `mapstructure:"holding_relevance_base"`
	HoldingRelevanceMatchBonus int `mapstructure:"holding_relevance_match_bonus"`
	HoldingRelevancePerMatch   int `mapstructure:"holding_relevance_per_match"`
	HoldingRelevanceMax        int `mapstructure:"holding_relevance_max"`

	ContentMinLength int `mapstructure:"content_min_length"`
	MaxFetchAttempts int `mapstructure:"max_fetch_attempts"`

	Stage1BatchSize int `mapstructure:"stage1_batch_size"`
	Stage3BatchSize int `mapstructure:"stage3_batch_size"`

	SimHashDupHammingThreshold int `mapstructure:"simhash_dup_hamming_threshold"`

	DedupCandidateWindowHours int `mapstructure:"dedup_candidate_window_hours"`
	DedupCandidateLimit       int `mapstructure:"dedup_candidate_limit"`
}

// Logging holds structured-logging configuration.
type Logging struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

var globalConfig *Config

// Load reads configuration from (in increasing precedence) code defaults, an
// optional config file, and the environment, and caches the result. A
// second call returns the cached config without re-reading.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".newsfeed-pipeline")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("NEWSFEED")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = firstNonEmptyEnv("GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY", "GOOGLE_AI_API_KEY")
	}

	globalConfig = cfg
	return cfg, nil
}

// Get returns the cached global configuration, loading it with defaults on
// first use.
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("failed to load configuration: %v", err))
		}
		return cfg
	}
	return globalConfig
}

// Reset clears the cached global configuration; used by tests.
func Reset() {
	globalConfig = nil
	viper.Reset()
}

func firstNonEmptyEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func setDefaults() {
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", "./data")
	viper.SetDefault("app.profile", "balanced")

	viper.SetDefault("database.path", "./data/pipeline.db")
	viper.SetDefault("database.max_connections", 10)

	viper.SetDefault("llm.model", "gemini-flash-lite-latest")
	viper.SetDefault("llm.temperature", float32(0.2))
	viper.SetDefault("llm.max_tokens", int32(6000))

	viper.SetDefault("pipeline.fetch_concurrency", 8)
	viper.SetDefault("pipeline.delay_between_batches_ms", 1000)
	viper.SetDefault("pipeline.incremental_top_n", 20)

	viper.SetDefault("thresholds.process_gate_holdings", 10)
	viper.SetDefault("thresholds.process_gate_macro", 15)
	viper.SetDefault("thresholds.feed_rank_cutoff", 25)
	viper.SetDefault("thresholds.shown_to_user_cutoff", 50)
	viper.SetDefault("thresholds.stage3_min_impact_to_continue", 20)
	viper.SetDefault("thresholds.stage4_min_to_stay_personalized", 15)
	viper.SetDefault("thresholds.stage4_cost_gate_impact", 40)
	viper.SetDefault("thresholds.holding_relevance_base", 20)
	viper.SetDefault("thresholds.holding_relevance_match_bonus", 10)
	viper.SetDefault("thresholds.holding_relevance_per_match", 5)
	viper.SetDefault("thresholds.holding_relevance_max", 45)
	viper.SetDefault("thresholds.content_min_length", 400)
	viper.SetDefault("thresholds.max_fetch_attempts", 2)
	viper.SetDefault("thresholds.stage1_batch_size", 20)
	viper.SetDefault("thresholds.stage3_batch_size", 8)
	viper.SetDefault("thresholds.simhash_dup_hamming_threshold", 3)
	viper.SetDefault("thresholds.dedup_candidate_window_hours", 48)
	viper.SetDefault("thresholds.dedup_candidate_limit", 50)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.pretty", false)
}

// ProcessGate returns the likely_impact threshold for the given bucket.
func (t Thresholds) ProcessGate(bucket string) int {
	if bucket == "MACRO" {
		return t.ProcessGateMacro
	}
	return t.ProcessGateHoldings
}

// DefaultThresholds returns the Threshold Config populated with its
// documented defaults, independent of viper — used by unit tests that do
// not want to go through config file/env discovery.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ProcessGateHoldings: 10, ProcessGateMacro: 15,
		FeedRankCutoff: 25, ShownToUserCutoff: 50,
		Stage3MinImpactToContinue: 20, Stage4MinToStayPersonalized: 15, Stage4CostGateImpact: 40,
		HoldingRelevanceBase: 20, HoldingRelevanceMatchBonus: 10, HoldingRelevancePerMatch: 5, HoldingRelevanceMax: 45,
		ContentMinLength: 400, MaxFetchAttempts: 2,
		Stage1BatchSize: 20, Stage3BatchSize: 8,
		SimHashDupHammingThreshold: 3,
		DedupCandidateWindowHours:  48, DedupCandidateLimit: 50,
	}
}
