package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Meeting bounds.
const (
	MinRounds       = 1
	MaxRounds       = 10
	MaxParticipants = 5
)

// Config is the runtime configuration. It is built once by Load (or Default
// in tests) and passed by reference to every component that needs it.
type Config struct {
	// Provider credentials. A missing key only disables that provider.
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	GoogleAPIKey     string
	OpenRouterAPIKey string

	// Provider endpoints
	OpenAIBaseURL     string
	AnthropicBaseURL  string
	GeminiBaseURL     string
	OpenRouterBaseURL string

	DefaultTemperature float64
	DefaultMaxTokens   int
	DefaultRounds      int

	// Invocation
	RequestTimeout time.Duration
	SummaryTimeout time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	CallsPerSecond float64
	CallDelay      time.Duration

	// Context budgets
	HistoryLimit        int
	SummaryMaxTokens    int
	SummaryLogMaxTokens int
	PromptWarnThreshold int

	// Document processing
	DocumentTargetTokens        int
	HierarchicalThresholdTokens int
	ChunkSize                   int
	ChunkOverlap                int
	ChunkConcurrency            int
	MaxDocumentSizeMB           int
	SummaryCacheTTL             time.Duration

	// Language conformance
	TargetLanguage  string
	ForeignRatio    float64
	MinTargetRatio  float64
	ShortTextRunes  int
	RatioCheckRunes int

	PersonaEnhancement bool
	PersonaModel       string

	// Storage and server
	DataDir            string
	CarryOverDir       string
	ListenAddr         string
	CORSAllowedOrigins []string
	MaxRequestBodySize int64

	LogLevel  string
	LogFormat string
	LogFile   string
}

// fileConfig mirrors config.toml. Zero values leave the default in place;
// pointer fields are the settings where zero or false is meaningful.
type fileConfig struct {
	OpenAIAPIKey     string `toml:"openai_api_key"`
	AnthropicAPIKey  string `toml:"anthropic_api_key"`
	GoogleAPIKey     string `toml:"google_api_key"`
	OpenRouterAPIKey string `toml:"openrouter_api_key"`

	DefaultTemperature float64 `toml:"default_temperature"`
	DefaultMaxTokens   int     `toml:"default_max_tokens"`
	DefaultRounds      int     `toml:"default_rounds"`

	RequestTimeoutSeconds float64  `toml:"request_timeout_seconds"`
	SummaryTimeoutSeconds float64  `toml:"summary_timeout_seconds"`
	MaxRetries            int      `toml:"max_retries"`
	RetryBaseDelaySeconds float64  `toml:"retry_base_delay_seconds"`
	RetryMaxDelaySeconds  float64  `toml:"retry_max_delay_seconds"`
	CallsPerSecond        *float64 `toml:"calls_per_second"`
	CallDelaySeconds      float64  `toml:"call_delay_seconds"`

	HistoryLimit        int `toml:"history_limit"`
	SummaryMaxTokens    int `toml:"summary_max_tokens"`
	SummaryLogMaxTokens int `toml:"summary_log_max_tokens"`
	PromptWarnThreshold int `toml:"prompt_warn_threshold"`

	DocumentTargetTokens        int      `toml:"document_target_tokens"`
	HierarchicalThresholdTokens int      `toml:"hierarchical_threshold_tokens"`
	ChunkSize                   int      `toml:"chunk_size"`
	ChunkOverlap                int      `toml:"chunk_overlap"`
	ChunkConcurrency            int      `toml:"chunk_concurrency"`
	MaxDocumentSizeMB           int      `toml:"max_document_size_mb"`
	SummaryCacheTTLSeconds      *float64 `toml:"summary_cache_ttl_seconds"`

	TargetLanguage  string  `toml:"target_language"`
	ForeignRatio    float64 `toml:"foreign_ratio"`
	MinTargetRatio  float64 `toml:"min_target_ratio"`
	ShortTextRunes  int     `toml:"short_text_runes"`
	RatioCheckRunes int     `toml:"ratio_check_runes"`

	PersonaEnhancement *bool  `toml:"persona_enhancement"`
	PersonaModel       string `toml:"persona_model"`

	DataDir            string   `toml:"data_dir"`
	CarryOverDir       string   `toml:"carry_over_dir"`
	ListenAddr         string   `toml:"listen_addr"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogFile   string `toml:"log_file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		OpenAIBaseURL:     "https://api.openai.com/v1/chat/completions",
		AnthropicBaseURL:  "https://api.anthropic.com/v1/messages",
		GeminiBaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions",
		OpenRouterBaseURL: "https://openrouter.ai/api/v1/chat/completions",

		DefaultTemperature: 0.7,
		DefaultMaxTokens:   1000,
		DefaultRounds:      3,

		RequestTimeout: 60 * time.Second,
		SummaryTimeout: 180 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		RetryMaxDelay:  60 * time.Second,
		CallsPerSecond: 1,
		CallDelay:      time.Second,

		HistoryLimit:        10,
		SummaryMaxTokens:    4000,
		SummaryLogMaxTokens: 15000,
		PromptWarnThreshold: 20000,

		DocumentTargetTokens:        500,
		HierarchicalThresholdTokens: 4000,
		ChunkSize:                   3000,
		ChunkOverlap:                200,
		ChunkConcurrency:            4,
		MaxDocumentSizeMB:           10,
		SummaryCacheTTL:             30 * time.Minute,

		TargetLanguage:  "ja",
		ForeignRatio:    0.3,
		MinTargetRatio:  0.6,
		ShortTextRunes:  10,
		RatioCheckRunes: 20,

		PersonaEnhancement: true,
		PersonaModel:       "gpt-4o",

		DataDir:            filepath.Join("data", "meetings"),
		CarryOverDir:       filepath.Join("data", "carry_over"),
		ListenAddr:         ":8001",
		MaxRequestBodySize: 1 << 20,

		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load builds the configuration from defaults, config.toml, .env and the
// process environment, in that order of precedence (last wins).
func Load() (*Config, error) {
	cfg := Default()

	if path := configFilePath(); path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		cfg.applyFile(fc)
	}

	loadDotEnv()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDotEnv loads the first .env found. Existing environment variables win.
func loadDotEnv() {
	envLocations := []string{
		".env",    // Current directory
		"../.env", // Parent directory
	}

	for _, envPath := range envLocations {
		absPath, err := filepath.Abs(envPath)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			if err := godotenv.Load(absPath); err == nil {
				return
			}
		}
	}
}

func configFilePath() string {
	if explicit := os.Getenv("LLM_MEETING_CONFIG"); explicit != "" {
		return explicit
	}

	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "llm-meeting")
	} else if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "llm-meeting")
	} else {
		return ""
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func (c *Config) applyFile(fc fileConfig) {
	setString(&c.OpenAIAPIKey, fc.OpenAIAPIKey)
	setString(&c.AnthropicAPIKey, fc.AnthropicAPIKey)
	setString(&c.GoogleAPIKey, fc.GoogleAPIKey)
	setString(&c.OpenRouterAPIKey, fc.OpenRouterAPIKey)

	setFloat(&c.DefaultTemperature, fc.DefaultTemperature)
	setInt(&c.DefaultMaxTokens, fc.DefaultMaxTokens)
	setInt(&c.DefaultRounds, fc.DefaultRounds)

	setSeconds(&c.RequestTimeout, fc.RequestTimeoutSeconds)
	setSeconds(&c.SummaryTimeout, fc.SummaryTimeoutSeconds)
	setInt(&c.MaxRetries, fc.MaxRetries)
	setSeconds(&c.RetryBaseDelay, fc.RetryBaseDelaySeconds)
	setSeconds(&c.RetryMaxDelay, fc.RetryMaxDelaySeconds)
	if fc.CallsPerSecond != nil {
		c.CallsPerSecond = *fc.CallsPerSecond
	}
	setSeconds(&c.CallDelay, fc.CallDelaySeconds)

	setInt(&c.HistoryLimit, fc.HistoryLimit)
	setInt(&c.SummaryMaxTokens, fc.SummaryMaxTokens)
	setInt(&c.SummaryLogMaxTokens, fc.SummaryLogMaxTokens)
	setInt(&c.PromptWarnThreshold, fc.PromptWarnThreshold)

	setInt(&c.DocumentTargetTokens, fc.DocumentTargetTokens)
	setInt(&c.HierarchicalThresholdTokens, fc.HierarchicalThresholdTokens)
	setInt(&c.ChunkSize, fc.ChunkSize)
	setInt(&c.ChunkOverlap, fc.ChunkOverlap)
	setInt(&c.ChunkConcurrency, fc.ChunkConcurrency)
	setInt(&c.MaxDocumentSizeMB, fc.MaxDocumentSizeMB)
	if fc.SummaryCacheTTLSeconds != nil {
		c.SummaryCacheTTL = time.Duration(*fc.SummaryCacheTTLSeconds * float64(time.Second))
	}

	setString(&c.TargetLanguage, fc.TargetLanguage)
	setFloat(&c.ForeignRatio, fc.ForeignRatio)
	setFloat(&c.MinTargetRatio, fc.MinTargetRatio)
	setInt(&c.ShortTextRunes, fc.ShortTextRunes)
	setInt(&c.RatioCheckRunes, fc.RatioCheckRunes)

	if fc.PersonaEnhancement != nil {
		c.PersonaEnhancement = *fc.PersonaEnhancement
	}
	setString(&c.PersonaModel, fc.PersonaModel)

	setString(&c.DataDir, expandTilde(fc.DataDir))
	setString(&c.CarryOverDir, expandTilde(fc.CarryOverDir))
	setString(&c.ListenAddr, fc.ListenAddr)
	if len(fc.CORSAllowedOrigins) > 0 {
		c.CORSAllowedOrigins = fc.CORSAllowedOrigins
	}

	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	setString(&c.LogFile, expandTilde(fc.LogFile))
}

func (c *Config) applyEnv() error {
	setString(&c.OpenAIAPIKey, os.Getenv("OPENAI_API_KEY"))
	setString(&c.AnthropicAPIKey, os.Getenv("ANTHROPIC_API_KEY"))
	setString(&c.GoogleAPIKey, os.Getenv("GOOGLE_API_KEY"))
	setString(&c.OpenRouterAPIKey, os.Getenv("OPENROUTER_API_KEY"))

	setString(&c.OpenAIBaseURL, os.Getenv("OPENAI_BASE_URL"))
	setString(&c.AnthropicBaseURL, os.Getenv("ANTHROPIC_BASE_URL"))
	setString(&c.GeminiBaseURL, os.Getenv("GEMINI_BASE_URL"))
	setString(&c.OpenRouterBaseURL, os.Getenv("OPENROUTER_BASE_URL"))

	setString(&c.TargetLanguage, os.Getenv("TARGET_LANGUAGE"))
	setString(&c.PersonaModel, os.Getenv("PERSONA_MODEL"))
	setString(&c.DataDir, os.Getenv("DATA_DIR"))
	setString(&c.CarryOverDir, os.Getenv("CARRY_OVER_DIR"))
	setString(&c.ListenAddr, os.Getenv("LISTEN_ADDR"))
	setString(&c.LogLevel, os.Getenv("LOG_LEVEL"))
	setString(&c.LogFormat, os.Getenv("LOG_FORMAT"))
	setString(&c.LogFile, os.Getenv("LOG_FILE"))

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.CORSAllowedOrigins = c.CORSAllowedOrigins[:0]
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.CORSAllowedOrigins = append(c.CORSAllowedOrigins, origin)
			}
		}
	}

	var errs []error
	errs = append(errs,
		envFloat("DEFAULT_TEMPERATURE", &c.DefaultTemperature),
		envInt("DEFAULT_MAX_TOKENS", &c.DefaultMaxTokens),
		envInt("DEFAULT_ROUNDS", &c.DefaultRounds),
		envSeconds("API_TIMEOUT_SECONDS", &c.RequestTimeout),
		envSeconds("API_TIMEOUT_SECONDS_SUMMARY", &c.SummaryTimeout),
		envInt("MAX_RETRIES", &c.MaxRetries),
		envSeconds("RETRY_BASE_DELAY_SECONDS", &c.RetryBaseDelay),
		envSeconds("RETRY_MAX_DELAY_SECONDS", &c.RetryMaxDelay),
		envFloat("CALLS_PER_SECOND", &c.CallsPerSecond),
		envSeconds("API_CALL_DELAY_SECONDS", &c.CallDelay),
		envInt("CONVERSATION_HISTORY_LIMIT", &c.HistoryLimit),
		envInt("SUMMARY_MAX_TOKENS", &c.SummaryMaxTokens),
		envInt("SUMMARY_LOG_MAX_TOKENS", &c.SummaryLogMaxTokens),
		envInt("PROMPT_WARN_THRESHOLD", &c.PromptWarnThreshold),
		envInt("DOCUMENT_TARGET_TOKENS", &c.DocumentTargetTokens),
		envInt("HIERARCHICAL_THRESHOLD_TOKENS", &c.HierarchicalThresholdTokens),
		envInt("CHUNK_SIZE", &c.ChunkSize),
		envInt("CHUNK_OVERLAP", &c.ChunkOverlap),
		envInt("CHUNK_CONCURRENCY", &c.ChunkConcurrency),
		envInt("MAX_DOCUMENT_SIZE_MB", &c.MaxDocumentSizeMB),
		envSeconds("SUMMARY_CACHE_TTL_SECONDS", &c.SummaryCacheTTL),
		envFloat("FOREIGN_RATIO", &c.ForeignRatio),
		envFloat("MIN_TARGET_RATIO", &c.MinTargetRatio),
		envInt("SHORT_TEXT_RUNES", &c.ShortTextRunes),
		envInt("RATIO_CHECK_RUNES", &c.RatioCheckRunes),
		envBool("PERSONA_ENHANCEMENT", &c.PersonaEnhancement),
	)
	return errors.Join(errs...)
}

// Validate reports every out-of-range setting.
func (c *Config) Validate() error {
	var errs []error
	if c.DefaultRounds < MinRounds || c.DefaultRounds > MaxRounds {
		errs = append(errs, fmt.Errorf("default rounds %d outside %d-%d", c.DefaultRounds, MinRounds, MaxRounds))
	}
	if c.DefaultMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("default max tokens must be positive, got %d", c.DefaultMaxTokens))
	}
	if c.RequestTimeout <= 0 || c.SummaryTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries))
	}
	if c.CallsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("calls per second must not be negative, got %g", c.CallsPerSecond))
	}
	if c.CallDelay < 0 {
		errs = append(errs, errors.New("call delay must not be negative"))
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk overlap %d must be in [0, chunk size %d)", c.ChunkOverlap, c.ChunkSize))
	}
	if c.DocumentTargetTokens <= 0 {
		errs = append(errs, errors.New("document target tokens must be positive"))
	}
	for name, v := range map[string]float64{"foreign ratio": c.ForeignRatio, "min target ratio": c.MinTargetRatio} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s %g outside [0, 1]", name, v))
		}
	}
	return errors.Join(errs...)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func setSeconds(dst *time.Duration, seconds float64) {
	if seconds != 0 {
		*dst = time.Duration(seconds * float64(time.Second))
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	*dst = f
	return nil
}

func envSeconds(key string, dst *time.Duration) error {
	var seconds float64
	if err := envFloat(key, &seconds); err != nil {
		return err
	}
	if os.Getenv(key) != "" {
		*dst = time.Duration(seconds * float64(time.Second))
	}
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	*dst = b
	return nil
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
