package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Valkey   ValkeyConfig
	MinIO    MinIOConfig
	Bedrock  BedrockConfig
	Pipeline PipelineConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type ValkeyConfig struct {
	Addr     string
	Password string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether an object store endpoint is configured. Export
// upload and document object storage are skipped when it is not.
func (m MinIOConfig) Enabled() bool { return m.Endpoint != "" }

type BedrockConfig struct {
	Region         string
	ModelID        string
	EmbedModelID   string // empty disables semantic retrieval
	MaxTokens      int
	Temperature    float64
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

// PipelineConfig carries the named pipeline settings that the original
// system threaded around as a free-form map: the dispatcher concurrency
// limit, the fixed set of human-gated stages, and export settings.
type PipelineConfig struct {
	MaxConcurrency   int
	GateStages       []int
	ExportDir        string
	DefaultThreshold int
	ResearchTopN     int
}

// Gated reports whether a stage requires human approval before downstream
// stages may run.
func (p PipelineConfig) Gated(stage int) bool {
	return slices.Contains(p.GateStages, stage)
}

func Load() (*Config, error) {
	// Best effort: a missing .env is normal outside local dev.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT_SECS", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT_SECS", 300)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "svap"),
			Password: getEnv("DB_PASSWORD", "svap"),
			Name:     getEnv("DB_NAME", "svap"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 2)),
		},
		Valkey: ValkeyConfig{
			Addr:     getEnv("VALKEY_ADDR", "localhost:6379"),
			Password: getEnv("VALKEY_PASSWORD", ""),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "svap-exports"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Bedrock: BedrockConfig{
			Region:         getEnv("BEDROCK_REGION", "us-east-1"),
			ModelID:        getEnv("BEDROCK_MODEL_ID", "anthropic.claude-sonnet-4-20250514-v1:0"),
			EmbedModelID:   getEnv("BEDROCK_EMBED_MODEL_ID", ""),
			MaxTokens:      getEnvInt("BEDROCK_MAX_TOKENS", 4096),
			Temperature:    getEnvFloat("BEDROCK_TEMPERATURE", 0.2),
			RetryAttempts:  getEnvInt("BEDROCK_RETRY_ATTEMPTS", 3),
			RetryBaseDelay: time.Duration(getEnvInt("BEDROCK_RETRY_DELAY_SECS", 5)) * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxConcurrency:   getEnvInt("PIPELINE_MAX_CONCURRENCY", 5),
			GateStages:       getEnvInts("PIPELINE_GATE_STAGES", []int{2, 5}),
			ExportDir:        getEnv("PIPELINE_EXPORT_DIR", "./results"),
			DefaultThreshold: getEnvInt("PIPELINE_DEFAULT_THRESHOLD", 3),
			ResearchTopN:     getEnvInt("PIPELINE_RESEARCH_TOP_N", 10),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Pipeline.MaxConcurrency < 1 {
		return fmt.Errorf("PIPELINE_MAX_CONCURRENCY must be >= 1, got %d", c.Pipeline.MaxConcurrency)
	}
	if c.Bedrock.RetryAttempts < 1 {
		return fmt.Errorf("BEDROCK_RETRY_ATTEMPTS must be >= 1, got %d", c.Bedrock.RetryAttempts)
	}
	if c.Pipeline.ResearchTopN < 1 {
		return fmt.Errorf("PIPELINE_RESEARCH_TOP_N must be >= 1, got %d", c.Pipeline.ResearchTopN)
	}
	for _, s := range c.Pipeline.GateStages {
		if s < 0 {
			return fmt.Errorf("PIPELINE_GATE_STAGES contains invalid stage %d", s)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvInts parses a comma-separated list of integers, e.g. "2,5".
func getEnvInts(key string, fallback []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fallback
		}
		out = append(out, i)
	}
	return out
}
