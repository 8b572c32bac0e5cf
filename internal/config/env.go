package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	SslCertPath  string
	AIAPIKey     string
	EmbedModel   string
	GenModel     string
	Port         string
	JWTSecret    string
	CORSOrigins  []string
	TmpDir       string

	IngestWorkers int

	AgentsFile        string
	ChatRatePerMinute int
	ChatRateBurst     int

	// Area selection tuning.
	SelectionMinDrag     float64
	SelectionMinChars    int
	SelectionMaxChars    int
	SelectionAreaPerChar float64
	ExtractTimeout       time.Duration
	ViewerIdleTimeout    time.Duration
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "excerpta-docs"),
		SslCertPath:  getEnv("SSL_CERT_PATH", ""),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		Port:         getEnv("PORT", "8080"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		TmpDir:       getEnv("TMP_DIR", ""),

		IngestWorkers: getEnvInt("INGEST_WORKERS", 2),

		AgentsFile:        getEnv("AGENTS_FILE", ""),
		ChatRatePerMinute: getEnvInt("CHAT_RATE_PER_MINUTE", 20),
		ChatRateBurst:     getEnvInt("CHAT_RATE_BURST", 5),

		SelectionMinDrag:     getEnvFloat("SELECTION_MIN_DRAG", 10),
		SelectionMinChars:    getEnvInt("SELECTION_MIN_CHARS", 50),
		SelectionMaxChars:    getEnvInt("SELECTION_MAX_CHARS", 500),
		SelectionAreaPerChar: getEnvFloat("SELECTION_AREA_PER_CHAR", 100),
		ExtractTimeout:       getEnvDuration("EXTRACT_TIMEOUT", 20*time.Second),
		ViewerIdleTimeout:    getEnvDuration("VIEWER_IDLE_TIMEOUT", 30*time.Minute),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET not set")
	}
	if cfg.ChatRatePerMinute < 1 {
		log.Printf("WARN: CHAT_RATE_PER_MINUTE=%d must be at least 1, using default 20", cfg.ChatRatePerMinute)
		cfg.ChatRatePerMinute = 20
	}
	if cfg.ChatRateBurst < 1 {
		log.Printf("WARN: CHAT_RATE_BURST=%d must be at least 1, using default 5", cfg.ChatRateBurst)
		cfg.ChatRateBurst = 5
	}
	if cfg.SelectionMinChars > cfg.SelectionMaxChars {
		log.Printf("WARN: SELECTION_MIN_CHARS=%d exceeds SELECTION_MAX_CHARS=%d, using defaults", cfg.SelectionMinChars, cfg.SelectionMaxChars)
		cfg.SelectionMinChars, cfg.SelectionMaxChars = 50, 500
	}

	return cfg
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
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
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
		log.Printf("WARN: %s=%q not a number, using default %g", key, v, def)
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
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
