package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds shared runtime configuration for the runner, the producer API and the chat client.
type Config struct {
	Env         string
	HTTPPort    string
	MetricsAddr string

	DataDir    string
	QueueDir   string
	ArchiveDir string
	OutputDir  string

	ScanInterval       time.Duration
	SDBaseURL          string
	SDGeneratePath     string
	SDProgressPath     string
	SDSubmitTimeout    time.Duration
	SDProgressTimeout  time.Duration
	ProgressInterval   time.Duration
	ProgressMaxRetries int

	ModelStandard  string
	ModelAnime     string
	ModelRealism   string
	NegativePrompt string

	OutputThumbnailWidth int
	OutputS3Bucket       string
	OutputS3Region       string
	OutputS3Endpoint     string
	OutputS3PathStyle    bool
	OutputS3Prefix       string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RateLimitCapacity int
	RateLimitRefill   float64

	OllamaBaseURL     string
	OllamaModel       string
	OllamaTemperature float64
	ChatTimeout       time.Duration
}

// Load reads configuration from .env files and environment variables with defaults for local development.
func Load() Config {
	_ = godotenv.Load(".env", ".env.local")

	dataDir := getEnv("DATA_DIR", ".")
	return Config{
		Env:         getEnv("APP_ENV", "dev"),
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		DataDir:    dataDir,
		QueueDir:   getEnv("QUEUE_DIR", filepath.Join(dataDir, "queue")),
		ArchiveDir: getEnv("ARCHIVE_DIR", filepath.Join(dataDir, "archive")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(dataDir, "outputs")),

		ScanInterval:       getEnvDuration("SCAN_INTERVAL", 5*time.Second),
		SDBaseURL:          getEnv("SD_BASE_URL", "http://localhost:7860"),
		SDGeneratePath:     getEnv("SD_GENERATE_PATH", "/sdapi/v1/txt2img"),
		SDProgressPath:     getEnv("SD_PROGRESS_PATH", "/sdapi/v1/progress?skip_current_image=false"),
		SDSubmitTimeout:    getEnvDuration("SD_SUBMIT_TIMEOUT", 600*time.Second),
		SDProgressTimeout:  getEnvDuration("SD_PROGRESS_TIMEOUT", 30*time.Second),
		ProgressInterval:   getEnvDuration("PROGRESS_INTERVAL", 5*time.Second),
		ProgressMaxRetries: getEnvInt("PROGRESS_MAX_RETRIES", 3),

		ModelStandard:  getEnv("MODEL_STANDARD", "v1-5-pruned-emaonly.safetensors"),
		ModelAnime:     getEnv("MODEL_ANIME", "anything-v5.safetensors"),
		ModelRealism:   getEnv("MODEL_REALISM", "realisticVisionV60B1.safetensors"),
		NegativePrompt: getEnv("NEGATIVE_PROMPT", ""),

		OutputThumbnailWidth: getEnvInt("OUTPUT_THUMBNAIL_WIDTH", 0),
		OutputS3Bucket:       getEnv("OUTPUT_S3_BUCKET", ""),
		OutputS3Region:       getEnv("OUTPUT_S3_REGION", "us-east-1"),
		OutputS3Endpoint:     getEnv("OUTPUT_S3_ENDPOINT", ""),
		OutputS3PathStyle:    getEnvBool("OUTPUT_S3_PATH_STYLE", false),
		OutputS3Prefix:       getEnv("OUTPUT_S3_PREFIX", "outputs/"),

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisDB:           getEnvInt("REDIS_DB", 0),
		RateLimitCapacity: getEnvInt("RATE_LIMIT_CAPACITY", 10),
		RateLimitRefill:   getEnvFloat("RATE_LIMIT_REFILL_PER_SEC", 0.5),

		OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:       getEnv("OLLAMA_MODEL", "llama3"),
		OllamaTemperature: getEnvFloat("OLLAMA_TEMPERATURE", 1),
		ChatTimeout:       getEnvDuration("CHAT_TIMEOUT", 5*time.Minute),
	}
}

// Models returns the checkpoint path for every model type label.
func (c Config) Models() map[string]string {
	return map[string]string{
		"Standard": c.ModelStandard,
		"Anime":    c.ModelAnime,
		"Realism":  c.ModelRealism,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
