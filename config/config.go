// Package config loads chatagent settings from defaults, an optional TOML
// file, .env files and environment variables, in that order of precedence
// (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/martinemde/chatagent/unifiedllm"
)

// DefaultPath is read when no config file is given and it exists.
const DefaultPath = "chatagent.toml"

// Config is the complete application configuration.
type Config struct {
	Provider ProviderConfig `toml:"provider"`
	Agent    AgentConfig    `toml:"agent"`
	Memory   MemoryConfig   `toml:"memory"`
	Tools    ToolsConfig    `toml:"tools"`
	SMTP     SMTPConfig     `toml:"smtp"`
	Telegram TelegramConfig `toml:"telegram"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// ProviderConfig selects and tunes the model provider.
type ProviderConfig struct {
	Name           string        `toml:"name"` // anthropic, or any gollm provider (openai, ollama, ...)
	APIKey         string        `toml:"api_key"`
	BaseURL        string        `toml:"base_url"`
	Model          string        `toml:"model"`
	MaxTokens      int           `toml:"max_tokens"`
	Temperature    float64       `toml:"temperature"`
	MaxAttempts    int           `toml:"max_attempts"`
	RetryBaseDelay time.Duration `toml:"retry_base_delay"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// AgentConfig bounds the orchestration loop.
type AgentConfig struct {
	MaxIterations   int    `toml:"max_iterations"`
	ContextMessages int    `toml:"context_messages"`
	ParallelTools   bool   `toml:"parallel_tools"`
	SystemPrompt    string `toml:"system_prompt"`
	Instructions    string `toml:"instructions"`
}

// MemoryConfig bounds conversation retention.
type MemoryConfig struct {
	MaxMessages int `toml:"max_messages"`
}

// ToolsConfig configures the built-in tools.
type ToolsConfig struct {
	SandboxDir    string        `toml:"sandbox_dir"`
	DatabasePath  string        `toml:"database_path"`
	SerpAPIKey    string        `toml:"serpapi_key"`
	PythonPath    string        `toml:"python_path"`
	PythonTimeout time.Duration `toml:"python_timeout"`
}

// SMTPConfig enables outgoing mail delivery when Host is set.
type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

// Enabled reports whether SMTP delivery is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

// TelegramConfig holds the bot credentials.
type TelegramConfig struct {
	Token string `toml:"token"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Addr      string  `toml:"addr"`
	APIToken  string  `toml:"api_token"`
	RateLimit float64 `toml:"rate_limit"` // chat requests per second per user
	RateBurst int     `toml:"rate_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:           "anthropic",
			Model:          unifiedllm.DefaultModel,
			MaxTokens:      4096,
			Temperature:    0.7,
			MaxAttempts:    3,
			RetryBaseDelay: time.Second,
			RequestTimeout: 120 * time.Second,
		},
		Agent: AgentConfig{
			MaxIterations:   10,
			ContextMessages: 20,
		},
		Memory: MemoryConfig{MaxMessages: 50},
		Tools: ToolsConfig{
			SandboxDir:    "sandbox_files",
			DatabasePath:  "data/chatagent.db",
			PythonPath:    "python3",
			PythonTimeout: 5 * time.Second,
		},
		SMTP:   SMTPConfig{Port: 587},
		Server: ServerConfig{Addr: ":8080", RateLimit: 1, RateBurst: 5},
		Log:    LogConfig{Level: "info", Format: "simple"},
	}
}

// LoadEnvFiles loads .env.local then .env into the process environment.
// Missing files are ignored and existing variables are never overwritten.
func LoadEnvFiles() error {
	envFiles := []string{".env.local", ".env"}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Load builds the configuration. An explicit path must exist; with an empty
// path DefaultPath is read when present. Environment variables override the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()

	switch {
	case path != "":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case fileExists(DefaultPath):
		if _, err := toml.DecodeFile(DefaultPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", DefaultPath, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML text on top of the defaults without consulting the
// environment.
func Parse(data string) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.setString("CHATAGENT_PROVIDER", &c.Provider.Name)
	if key, ok := lookup(ProviderAPIKeyEnv(c.Provider.Name)); ok && key != "" {
		c.Provider.APIKey = key
	}
	e.setString("CHATAGENT_BASE_URL", &c.Provider.BaseURL)
	e.setString("CHATAGENT_MODEL", &c.Provider.Model)
	e.setInt("CHATAGENT_MAX_TOKENS", &c.Provider.MaxTokens)
	e.setFloat("CHATAGENT_TEMPERATURE", &c.Provider.Temperature)
	e.setInt("CHATAGENT_MAX_ATTEMPTS", &c.Provider.MaxAttempts)
	e.setDuration("CHATAGENT_RETRY_BASE_DELAY", &c.Provider.RetryBaseDelay)
	e.setDuration("CHATAGENT_REQUEST_TIMEOUT", &c.Provider.RequestTimeout)

	e.setInt("CHATAGENT_MAX_ITERATIONS", &c.Agent.MaxIterations)
	e.setInt("CHATAGENT_CONTEXT_MESSAGES", &c.Agent.ContextMessages)
	e.setBool("CHATAGENT_PARALLEL_TOOLS", &c.Agent.ParallelTools)
	e.setInt("CHATAGENT_MAX_MESSAGES", &c.Memory.MaxMessages)

	e.setString("CHATAGENT_SANDBOX_DIR", &c.Tools.SandboxDir)
	e.setString("CHATAGENT_DB_PATH", &c.Tools.DatabasePath)
	e.setString("SERPAPI_KEY", &c.Tools.SerpAPIKey)
	e.setString("CHATAGENT_PYTHON", &c.Tools.PythonPath)
	e.setDuration("CHATAGENT_PYTHON_TIMEOUT", &c.Tools.PythonTimeout)

	e.setString("SMTP_HOST", &c.SMTP.Host)
	e.setInt("SMTP_PORT", &c.SMTP.Port)
	e.setString("SMTP_USERNAME", &c.SMTP.Username)
	e.setString("SMTP_PASSWORD", &c.SMTP.Password)
	e.setString("SMTP_FROM", &c.SMTP.From)

	e.setString("TELEGRAM_BOT_TOKEN", &c.Telegram.Token)

	e.setString("CHATAGENT_HTTP_ADDR", &c.Server.Addr)
	e.setString("CHATAGENT_API_TOKEN", &c.Server.APIToken)
	e.setFloat("CHATAGENT_RATE_LIMIT", &c.Server.RateLimit)
	e.setInt("CHATAGENT_RATE_BURST", &c.Server.RateBurst)

	e.setString("LOG_LEVEL", &c.Log.Level)
	e.setString("LOG_FORMAT", &c.Log.Format)
	e.setString("LOG_FILE", &c.Log.File)

	return errors.Join(e.errs...)
}

// ProviderAPIKeyEnv names the environment variable holding provider's key.
func ProviderAPIKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "anthropic", "":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "gemini", "google":
		return "GEMINI_API_KEY"
	default:
		return strings.ToUpper(provider) + "_API_KEY"
	}
}

// Validate reports missing credentials and out-of-range values.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	provider := strings.ToLower(c.Provider.Name)
	if provider == "" {
		add("provider name is required")
	}
	if c.Provider.APIKey == "" && provider != "ollama" {
		add("%s is not set (get a key from your provider's console)", ProviderAPIKeyEnv(provider))
	}
	if c.Provider.MaxTokens <= 0 {
		add("max_tokens must be positive, got %d", c.Provider.MaxTokens)
	}
	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		add("temperature must be between 0 and 2, got %g", c.Provider.Temperature)
	}
	if c.Provider.MaxAttempts < 1 {
		add("max_attempts must be at least 1, got %d", c.Provider.MaxAttempts)
	}
	if c.Provider.RetryBaseDelay < 0 {
		add("retry_base_delay must not be negative")
	}
	if c.Agent.MaxIterations < 1 {
		add("max_iterations must be at least 1, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.ContextMessages < 1 {
		add("context_messages must be at least 1, got %d", c.Agent.ContextMessages)
	}
	if c.Memory.MaxMessages < c.Agent.ContextMessages {
		add("max_messages (%d) must not be smaller than context_messages (%d)", c.Memory.MaxMessages, c.Agent.ContextMessages)
	}
	if c.Tools.SandboxDir == "" {
		add("sandbox_dir is required")
	}
	if c.SMTP.Enabled() && (c.SMTP.Port <= 0 || c.SMTP.Port > 65535) {
		add("smtp port out of range: %d", c.SMTP.Port)
	}
	if c.Server.RateLimit < 0 {
		add("rate_limit must not be negative")
	}
	return errors.Join(errs...)
}

// Warnings lists optional settings that are missing.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Tools.SerpAPIKey == "" {
		warnings = append(warnings, "SERPAPI_KEY not set - web search will use DuckDuckGo (get a key from https://serpapi.com/)")
	}
	if !c.SMTP.Enabled() {
		warnings = append(warnings, "SMTP_HOST not set - sent email is only recorded in the local mailbox")
	}
	return warnings
}

// RetryPolicy converts the provider settings to a unifiedllm policy.
func (c *Config) RetryPolicy() unifiedllm.RetryPolicy {
	policy := unifiedllm.DefaultRetryPolicy()
	policy.MaxAttempts = c.Provider.MaxAttempts
	policy.BaseDelay = c.Provider.RetryBaseDelay.Seconds()
	return policy
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(name string) (string, bool) {
	v, ok := e.lookup(name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) setString(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) setInt(name string, dst *int) {
	if v, ok := e.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", name, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) setFloat(name string, dst *float64) {
	if v, ok := e.get(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", name, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) setBool(name string, dst *bool) {
	if v, ok := e.get(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", name, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) setDuration(name string, dst *time.Duration) {
	if v, ok := e.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", name, err))
			return
		}
		*dst = d
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
