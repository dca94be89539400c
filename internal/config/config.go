package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Lllllllleong/medicalreportflow/internal/analysis"
	"github.com/Lllllllleong/medicalreportflow/internal/models"
)

// Storage and database backends.
const (
	StorageGCS = "gcs"
	StorageS3  = "s3"

	DatabaseFirestore = "firestore"
	DatabasePostgres  = "postgres"

	ProviderVertex = "vertex"
	ProviderGemini = "gemini"
)

// Config holds all configuration for the ingestion service. It is loaded once
// and passed explicitly to every constructor.
type Config struct {
	ProjectID string

	AnalysisProvider string
	VertexAIRegion   string
	GeminiAPIKey     string
	AnalysisModel    string
	AnalysisPrompt   string
	AnalysisTimeout  time.Duration
	AnalysisMaxChars int

	StorageBackend string
	ReportsBucket  string
	InboxBucket    string
	AwsRegion      string
	AwsAccessKey   string
	AwsSecretKey   string

	DatabaseBackend     string
	FirestoreCollection string
	DatabaseURL         string

	MaxUploadBytes int64
	Port           string
	AllowedOrigins []string
}

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := GetEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring non-integer environment value.", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := GetEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Ignoring invalid duration environment value.", "key", key, "value", v, "default", def.String())
		return def
	}
	return d
}

// Load reads a local .env file when present, then the environment, and
// validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ProjectID: GetEnv("PROJECT_ID", ""),

		AnalysisProvider: strings.ToLower(GetEnv("ANALYSIS_PROVIDER", ProviderVertex)),
		VertexAIRegion:   GetEnv("VERTEX_AI_REGION", "us-central1"),
		GeminiAPIKey:     GetEnv("GEMINI_API_KEY", ""),
		AnalysisModel:    GetEnv("ANALYSIS_MODEL", "gemini-1.5-flash"),
		AnalysisPrompt:   GetEnv("ANALYSIS_PROMPT", ""),
		AnalysisTimeout:  getEnvDuration("ANALYSIS_TIMEOUT", 2*time.Minute),
		AnalysisMaxChars: getEnvInt("ANALYSIS_MAX_CHARS", analysis.DefaultMaxChars),

		StorageBackend: strings.ToLower(GetEnv("STORAGE_BACKEND", StorageGCS)),
		ReportsBucket:  GetEnv("REPORTS_BUCKET", ""),
		InboxBucket:    GetEnv("INBOX_BUCKET", ""),
		AwsRegion:      GetEnv("AWS_REGION", "us-east-2"),
		AwsAccessKey:   GetEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   GetEnv("AWS_SECRET_KEY", ""),

		DatabaseBackend:     strings.ToLower(GetEnv("DATABASE_BACKEND", DatabaseFirestore)),
		FirestoreCollection: GetEnv("FIRESTORE_COLLECTION", "medicalDocuments"),
		DatabaseURL:         GetEnv("DATABASE_URL", ""),

		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", int(models.DefaultMaxUploadBytes))),
		Port:           GetEnv("PORT", "8080"),
		AllowedOrigins: splitList(GetEnv("ALLOWED_ORIGINS", "*")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the service cannot start without. Missing
// analysis credentials are not an error here: analysis is optional and
// reports a configuration error per call instead.
func (c *Config) Validate() error {
	if c.ReportsBucket == "" {
		return fmt.Errorf("REPORTS_BUCKET environment variable must be set")
	}

	switch c.StorageBackend {
	case StorageGCS:
	case StorageS3:
		if c.AwsAccessKey == "" || c.AwsSecretKey == "" {
			return fmt.Errorf("AWS_ACCESS_KEY and AWS_SECRET_KEY must be set for the s3 storage backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch c.DatabaseBackend {
	case DatabaseFirestore:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID environment variable must be set for the firestore backend")
		}
	case DatabasePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown DATABASE_BACKEND %q", c.DatabaseBackend)
	}

	switch c.AnalysisProvider {
	case ProviderVertex, ProviderGemini:
	default:
		return fmt.Errorf("unknown ANALYSIS_PROVIDER %q", c.AnalysisProvider)
	}

	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = models.DefaultMaxUploadBytes
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
