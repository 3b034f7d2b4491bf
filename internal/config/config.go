// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port int `yaml:"port"` // ops server: /healthz, /readyz, /metrics
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
	// PrivilegedURL is the alternate access path the task store retries
	// against once after a store failure. Empty disables the retry path.
	PrivilegedURL string `yaml:"privileged_url"`
	MaxConns      int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // task read cache TTL
}

type QueueConfig struct {
	Name         string        `yaml:"name"`
	PollWait     time.Duration `yaml:"poll_wait"`
	RecoverOnRun bool          `yaml:"recover_on_run"`
}

type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

type AIConfig struct {
	OpenAIKey       string        `yaml:"openai_key"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	GeminiKey       string        `yaml:"gemini_key"`
	GeminiURL       string        `yaml:"gemini_url"`
	ImageModel      string        `yaml:"image_model"`
	PaletteModel    string        `yaml:"palette_model"`
	ImageProvider   string        `yaml:"image_provider"`   // openai|gemini
	PaletteProvider string        `yaml:"palette_provider"` // openai|gemini
	ImageSize       string        `yaml:"image_size"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI calls
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxPromptTokens int           `yaml:"max_prompt_tokens"`
}

type PipelineConfig struct {
	StageTimeout         time.Duration `yaml:"stage_timeout"`
	PaletteCount         int           `yaml:"palette_count"`
	ColorsPerPalette     int           `yaml:"colors_per_palette"`
	VariationConcurrency int           `yaml:"variation_concurrency"`
}

type SagaConfig struct {
	CompensationTimeout time.Duration `yaml:"compensation_timeout"`
}

type TaskConfig struct {
	ErrorMessageMax int           `yaml:"error_message_max"`
	StatusTimeout   time.Duration `yaml:"status_timeout"`
	// tasks in processing longer than StaleAfter are failed by the reaper
	StaleAfter   time.Duration `yaml:"stale_after"`
	ReapInterval time.Duration `yaml:"reap_interval"`
}

type StorageConfig struct {
	PublicBaseURL string `yaml:"public_base_url"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	Worker    WorkerConfig    `yaml:"worker"`
	AI        AIConfig        `yaml:"ai"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Saga      SagaConfig      `yaml:"saga"`
	Task      TaskConfig      `yaml:"task"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies .env and environment
// overrides for secrets, then fills defaults. In dev mode the external
// services are optional.
func LoadConfig(path string, dev bool) (*Config, error) {
	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)
	applyDefaults(cfg)

	cfg.Runtime.Dev = dev
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML without touching the environment.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Database.URL, "DATABASE_URL")
	setFromEnv(&cfg.Database.PrivilegedURL, "DATABASE_PRIVILEGED_URL")
	setFromEnv(&cfg.Redis.URL, "REDIS_URL")
	setFromEnv(&cfg.Redis.Password, "REDIS_PASSWORD")
	setFromEnv(&cfg.AI.OpenAIKey, "OPENAI_API_KEY")
	setFromEnv(&cfg.AI.GeminiKey, "GEMINI_API_KEY")
	setFromEnv(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setFromEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 9090
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "concept_jobs"
	}
	if cfg.Queue.PollWait <= 0 {
		cfg.Queue.PollWait = 5 * time.Second
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.RequestTimeout <= 0 {
		cfg.AI.RequestTimeout = 90 * time.Second
	}
	if cfg.AI.ImageModel == "" {
		cfg.AI.ImageModel = "gpt-image-1"
	}
	if cfg.AI.PaletteModel == "" {
		cfg.AI.PaletteModel = "gemini-2.0-flash"
	}
	if cfg.AI.ImageProvider == "" {
		cfg.AI.ImageProvider = "openai"
	}
	if cfg.AI.PaletteProvider == "" {
		cfg.AI.PaletteProvider = "gemini"
	}
	if cfg.AI.ImageSize == "" {
		cfg.AI.ImageSize = "1024x1024"
	}
	if cfg.AI.MaxPromptTokens <= 0 {
		cfg.AI.MaxPromptTokens = 1000
	}
	if cfg.Pipeline.StageTimeout <= 0 {
		cfg.Pipeline.StageTimeout = 2 * time.Minute
	}
	if cfg.Pipeline.PaletteCount <= 0 {
		cfg.Pipeline.PaletteCount = 3
	}
	if cfg.Pipeline.ColorsPerPalette <= 0 {
		cfg.Pipeline.ColorsPerPalette = 5
	}
	if cfg.Pipeline.VariationConcurrency <= 0 {
		cfg.Pipeline.VariationConcurrency = 2
	}
	if cfg.Saga.CompensationTimeout <= 0 {
		cfg.Saga.CompensationTimeout = 10 * time.Second
	}
	if cfg.Task.ErrorMessageMax <= 0 {
		cfg.Task.ErrorMessageMax = 500
	}
	if cfg.Task.StatusTimeout <= 0 {
		cfg.Task.StatusTimeout = 10 * time.Second
	}
	if cfg.Task.StaleAfter <= 0 {
		cfg.Task.StaleAfter = 30 * time.Minute
	}
	if cfg.Task.ReapInterval <= 0 {
		cfg.Task.ReapInterval = time.Minute
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "concept-forge"
	}
}

// LongestPipelineStages is the stage count of the longest task pipeline
// (refinement). The reaper threshold must outlast it.
const LongestPipelineStages = 6

// Validate performs minimal checks; dev mode runs on in-memory infra.
func (c *Config) Validate() error {
	if budget := c.Pipeline.StageTimeout*LongestPipelineStages + c.Saga.CompensationTimeout; c.Task.StaleAfter <= budget {
		return fmt.Errorf("task.stale_after (%s) must exceed %d x pipeline.stage_timeout + saga.compensation_timeout (%s)",
			c.Task.StaleAfter, LongestPipelineStages, budget)
	}
	if c.Runtime.Dev {
		return nil
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.AI.OpenAIKey == "" && c.AI.GeminiKey == "" {
		return errors.New("no AI provider configured: set ai.openai_key or ai.gemini_key")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Minute
	}
	return d
}
