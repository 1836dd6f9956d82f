package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/nestauk/discovery-genai/internal/generator"
	"github.com/nestauk/discovery-genai/internal/llm"
	"github.com/nestauk/discovery-genai/internal/vector"
)

// EnvPrefix prefixes every environment override, e.g. GENAI_LLM_API_KEY.
const EnvPrefix = "GENAI"

// AreasOfLearning are the seven EYFS areas, all selected by default.
var AreasOfLearning = []string{
	"Communication and Language",
	"Personal, Social and Emotional Development",
	"Physical Development",
	"Literacy",
	"Mathematics",
	"Understanding the World",
	"Expressive Arts and Design",
}

// Config holds all application configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Corpus    CorpusConfig    `mapstructure:"corpus"`
	Templates TemplatesConfig `mapstructure:"templates"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	BurstSize         int           `mapstructure:"burst_size"`

	// StripReasoning drops <think> blocks from replies.
	StripReasoning bool `mapstructure:"strip_reasoning"`
}

// ProviderConfig converts the section for the provider factory.
func (c LLMConfig) ProviderConfig() llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider:          c.Provider,
		APIKey:            c.APIKey,
		BaseURL:           c.BaseURL,
		Timeout:           c.Timeout,
		MaxRetries:        c.MaxRetries,
		RetryDelay:        c.RetryDelay,
		RequestsPerMinute: c.RequestsPerMinute,
		BurstSize:         c.BurstSize,
	}
}

// EmbeddingConfig selects the embedding service. Provider, APIKey and
// BaseURL inherit from the llm section when unset.
type EmbeddingConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	BatchSize   int           `mapstructure:"batch_size"`
	Parallelism int           `mapstructure:"parallelism"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// Resolve returns the llm section with the embedding overrides applied.
func (c EmbeddingConfig) Resolve(base LLMConfig) LLMConfig {
	resolved := base
	if c.Provider != "" {
		resolved.Provider = c.Provider
		// a different service never shares the chat endpoint
		if c.Provider != base.Provider {
			resolved.BaseURL = ""
			resolved.APIKey = ""
		}
	}
	if c.APIKey != "" {
		resolved.APIKey = c.APIKey
	}
	if c.BaseURL != "" {
		resolved.BaseURL = c.BaseURL
	}
	return resolved
}

type RetrievalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	K         int    `mapstructure:"k"`
	Injection string `mapstructure:"injection"`
}

type CorpusConfig struct {
	Path         string        `mapstructure:"path"`
	TextColumn   string        `mapstructure:"text_column"`
	SourceColumn string        `mapstructure:"source_column"`
	Watch        bool          `mapstructure:"watch"`
	Debounce     time.Duration `mapstructure:"debounce"`
}

type TemplatesConfig struct {
	// Dir holds user templates; built-in templates answer refs it lacks.
	Dir             string         `mapstructure:"dir"`
	Refs            []string       `mapstructure:"refs"`
	RequestTemplate string         `mapstructure:"request_template"`
	Placeholders    map[string]any `mapstructure:"placeholders"`
}

type VectorConfig struct {
	Metric    string `mapstructure:"metric"`
	Normalize bool   `mapstructure:"normalize"`
	// Backend is "memory" or "qdrant".
	Backend    string `mapstructure:"backend"`
	Mirror     bool   `mapstructure:"mirror"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 0)
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", time.Second)
	v.SetDefault("llm.requests_per_minute", 0)
	v.SetDefault("llm.burst_size", 0)
	v.SetDefault("llm.strip_reasoning", false)

	v.SetDefault("embedding.provider", "")
	v.SetDefault("embedding.model", "text-embedding-ada-002")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.batch_size", 500)
	v.SetDefault("embedding.parallelism", 1)
	v.SetDefault("embedding.cache_ttl", time.Hour)

	v.SetDefault("retrieval.enabled", false)
	v.SetDefault("retrieval.k", 4)
	v.SetDefault("retrieval.injection", string(generator.InjectBeforeRequest))

	v.SetDefault("corpus.path", "")
	v.SetDefault("corpus.text_column", "text")
	v.SetDefault("corpus.source_column", "source")
	v.SetDefault("corpus.watch", false)
	v.SetDefault("corpus.debounce", 500*time.Millisecond)

	v.SetDefault("templates.dir", "")
	v.SetDefault("templates.refs", []string{"eyfs/activity-plan"})
	v.SetDefault("templates.request_template", "eyfs/request")
	v.SetDefault("templates.placeholders", map[string]any{
		"areas_of_learning": AreasOfLearning,
		"difficulty":        "Medium",
		"location":          "Indoor or Outdoor",
		"n_results":         5,
	})

	v.SetDefault("vector.metric", string(vector.Euclidean))
	v.SetDefault("vector.normalize", false)
	v.SetDefault("vector.backend", "memory")
	v.SetDefault("vector.mirror", false)
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "genai")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.request_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "genai")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 1.0)
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if needsKey(c.LLM.Provider) && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}
	if !llm.ValidTemperature(c.LLM.Temperature) {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}

	if c.Embedding.BatchSize <= 0 {
		warnings = append(warnings, fmt.Sprintf("embedding batch_size %d is not positive; the default will be used", c.Embedding.BatchSize))
	}

	if c.Retrieval.Enabled {
		if c.Retrieval.K <= 0 {
			warnings = append(warnings, fmt.Sprintf("retrieval is enabled but k is %d", c.Retrieval.K))
		}
		if c.Corpus.Path == "" && c.Vector.Backend != "qdrant" {
			warnings = append(warnings, "retrieval is enabled but corpus.path is empty")
		}
	}
	if _, err := generator.ParseInjection(c.Retrieval.Injection); err != nil {
		warnings = append(warnings, fmt.Sprintf("retrieval injection: %v", err))
	}

	if _, err := vector.ParseMetric(c.Vector.Metric); err != nil {
		warnings = append(warnings, fmt.Sprintf("vector metric: %v", err))
	}
	switch c.Vector.Backend {
	case "", "memory", "qdrant":
	default:
		warnings = append(warnings, fmt.Sprintf("vector backend '%s' is unknown (want memory or qdrant)", c.Vector.Backend))
	}

	return warnings
}

func needsKey(provider string) bool {
	switch provider {
	case "", "none", "ollama":
		return false
	}
	return true
}

// Load reads configuration from path (optional), a .env file (optional)
// and GENAI_ environment variables, in increasing priority.
func Load(path, envFile string) (*Config, error) {
	return LoadFS(afero.NewOsFs(), path, envFile)
}

// LoadFS is Load reading the config file from fsys.
func LoadFS(fsys afero.Fs, path, envFile string) (*Config, error) {
	if envFile != "" {
		// In containers variables are usually set externally.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetFs(fsys)
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}
