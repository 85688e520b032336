package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port        string
	DatabaseURL string
	SslCertPath string

	DataDir    string
	UploadsDir string
	ManualsDir string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	LLMProvider      string
	OllamaURL        string
	OCRModel         string
	LLMModel         string
	TranslationModel string
	EmbedModel       string
	EmbedDim         int
	AIAPIKey         string
	GenModel         string
	GeminiEmbedModel string

	ChunkSize          int
	ChunkOverlap       int
	TopK               int
	RelevanceThreshold float64

	ProcessingWorkers      int
	ProcessingQueue        int
	StatusTTL              time.Duration
	LanguageSampleInterval int
	IngestWorkers          int

	OCRRateLimit    float64
	OCRTimeout      time.Duration
	ModelMaxRetries int

	CorsOrigins []string
	MaxUploadMB int

	JWTSecret         string
	AdminEmail        string
	AdminPasswordHash string

	LogLevel  string
	LogFormat string
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),

		DataDir:    dataDir,
		UploadsDir: getEnv("UPLOADS_DIR", filepath.Join(dataDir, "_uploads")),
		ManualsDir: getEnv("MANUALS_DIR", filepath.Join(dataDir, "manuals")),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", ""),

		LLMProvider:      strings.ToLower(getEnv("LLM_PROVIDER", "ollama")),
		OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
		OCRModel:         getEnv("OCR_MODEL", "deepseek-ocr:3b"),
		LLMModel:         getEnv("LLM_MODEL", "mistral:instruct"),
		TranslationModel: getEnv("TRANSLATION_MODEL", "mistral:instruct"),
		EmbedModel:       getEnv("EMBED_MODEL", "bge-m3"),
		EmbedDim:         getEnvInt("EMBED_DIM", 1024),
		AIAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GenModel:         getEnv("GEN_MODEL", "gemini-1.5-flash"),
		GeminiEmbedModel: getEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),

		ChunkSize:          getEnvInt("CHUNK_SIZE", 800),
		ChunkOverlap:       getEnvInt("CHUNK_OVERLAP", 200),
		TopK:               getEnvInt("TOP_K", 5),
		RelevanceThreshold: getEnvFloat("RELEVANCE_THRESHOLD", 0.3),

		ProcessingWorkers:      getEnvInt("PROCESSING_WORKERS", 2),
		ProcessingQueue:        getEnvInt("PROCESSING_QUEUE", 64),
		StatusTTL:              getEnvDuration("STATUS_TTL", time.Hour),
		LanguageSampleInterval: getEnvInt("LANGUAGE_SAMPLE_INTERVAL", 2),
		IngestWorkers:          getEnvInt("INGEST_WORKERS", 1),

		OCRRateLimit:    getEnvFloat("OCR_RATE_LIMIT", 0),
		OCRTimeout:      getEnvDuration("OCR_TIMEOUT", 5*time.Minute),
		ModelMaxRetries: getEnvInt("MODEL_MAX_RETRIES", 2),

		CorsOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:8888"}),
		MaxUploadMB: getEnvInt("MAX_UPLOAD_MB", 100),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		AdminEmail:        getEnv("ADMIN_EMAIL", "admin@homedex.local"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	return cfg
}

// AuthEnabled reports whether mutating routes require an admin token.
func (c *Config) AuthEnabled() bool {
	return c.AdminPasswordHash != ""
}

// ArchiveEnabled reports whether committed manuals are mirrored to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.BucketName != "" && c.AwsAccessKey != "" && c.AwsSecretKey != ""
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Int("default", def).Msg("not an int, using default")
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Float64("default", def).Msg("not a number, using default")
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// bare integers are seconds
		if n, nerr := strconv.Atoi(v); nerr == nil {
			return time.Duration(n) * time.Second
		}
		log.Warn().Str("key", key).Str("value", v).Dur("default", def).Msg("not a duration, using default")
		return def
	}
	return d
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
