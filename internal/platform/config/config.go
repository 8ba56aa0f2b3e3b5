package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StorageGCS   = "gcs"
	StorageLocal = "local"
)

// AI providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL   string
	Port          string
	IsProduction  bool
	EnableDBCheck bool
	LogLevel      string
	JWTSecret     string

	CORSAllowedOrigins []string
	UploadRateLimit    string

	StorageDriver      string
	GCSBucket          string
	GCSCredentialsFile string
	LocalStorageDir    string

	AIProvider      string
	GeminiAPIKey    string
	GeminiModel     string
	OpenAIAPIKey    string
	OpenAIModel     string
	AnalysisTimeout time.Duration

	DraftTTL         time.Duration
	DraftCacheSize   int
	RegistryCacheTTL time.Duration
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		DatabaseURL:        v.GetString("PGSQL_URL"),
		Port:               v.GetString("PORT"),
		IsProduction:       v.GetBool("IS_PRODUCTION"),
		EnableDBCheck:      v.GetBool("ENABLE_DB_CHECK"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
		JWTSecret:          v.GetString("JWT_SECRET"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		UploadRateLimit:    v.GetString("UPLOAD_RATE_LIMIT"),
		StorageDriver:      strings.ToLower(v.GetString("STORAGE_DRIVER")),
		GCSBucket:          v.GetString("GCS_BUCKET"),
		GCSCredentialsFile: v.GetString("GCS_CREDENTIALS_FILE"),
		LocalStorageDir:    v.GetString("LOCAL_STORAGE_DIR"),
		AIProvider:         strings.ToLower(v.GetString("AI_PROVIDER")),
		GeminiAPIKey:       v.GetString("GEMINI_API_KEY"),
		GeminiModel:        v.GetString("GEMINI_MODEL"),
		OpenAIAPIKey:       v.GetString("OPENAI_API_KEY"),
		OpenAIModel:        v.GetString("OPENAI_MODEL"),
		DraftCacheSize:     v.GetInt("DRAFT_CACHE_SIZE"),
	}

	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
		log.Printf("Warning: PORT environment variable not set. Defaulting to %s\n", cfg.Port)
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "a-very-secret-key-should-be-longer-and-random" // !! CHANGE IN PRODUCTION !!
		log.Println("Warning: JWT_SECRET environment variable not set. Using default insecure key.")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
		if !cfg.IsProduction {
			cfg.LogLevel = "debug"
		}
	}

	switch cfg.StorageDriver {
	case StorageGCS:
		if cfg.GCSBucket == "" {
			log.Println("Warning: STORAGE_DRIVER is gcs but GCS_BUCKET is not set. Falling back to local storage.")
			cfg.StorageDriver = StorageLocal
		}
	case StorageLocal:
	default:
		log.Printf("Warning: Unknown STORAGE_DRIVER ('%s'). Defaulting to %s.\n", cfg.StorageDriver, StorageLocal)
		cfg.StorageDriver = StorageLocal
	}

	switch cfg.AIProvider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			log.Println("Warning: GEMINI_API_KEY not set. Unstructured documents cannot be analyzed.")
		}
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			log.Println("Warning: OPENAI_API_KEY not set. Unstructured documents cannot be analyzed.")
		}
	default:
		log.Printf("Warning: Unknown AI_PROVIDER ('%s'). Defaulting to %s.\n", cfg.AIProvider, ProviderGemini)
		cfg.AIProvider = ProviderGemini
	}

	cfg.AnalysisTimeout = durationOrDefault(v, "ANALYSIS_TIMEOUT", 90*time.Second)
	cfg.DraftTTL = durationOrDefault(v, "DRAFT_TTL", 2*time.Hour)
	cfg.RegistryCacheTTL = durationOrDefault(v, "REGISTRY_CACHE_TTL", 5*time.Minute)
	if cfg.DraftCacheSize <= 0 {
		cfg.DraftCacheSize = 1024
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PGSQL_URL", "")
	v.SetDefault("PORT", "8080")
	v.SetDefault("IS_PRODUCTION", false)
	v.SetDefault("ENABLE_DB_CHECK", false)
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("UPLOAD_RATE_LIMIT", "30-M")
	v.SetDefault("STORAGE_DRIVER", StorageLocal)
	v.SetDefault("GCS_BUCKET", "")
	v.SetDefault("GCS_CREDENTIALS_FILE", "")
	v.SetDefault("LOCAL_STORAGE_DIR", "./data/documents")
	v.SetDefault("AI_PROVIDER", ProviderGemini)
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_MODEL", "gpt-4.1-mini")
	v.SetDefault("ANALYSIS_TIMEOUT", "90s")
	v.SetDefault("DRAFT_TTL", "2h")
	v.SetDefault("DRAFT_CACHE_SIZE", 1024)
	v.SetDefault("REGISTRY_CACHE_TTL", "5m")
}

func durationOrDefault(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		if raw != "" {
			log.Printf("Warning: Invalid value for %s ('%s'). Defaulting to %s.\n", key, raw, fallback)
		}
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
