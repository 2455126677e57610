// internal/config/config.go
package config

import (
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	App       AppConfig
	Retention RetentionConfig
	Database  DatabaseConfig
	Cache     CacheConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

// StorageConfig describes the three buckets the pipeline works against.
// Backend selects the object store implementation: "s3" (MinIO / any
// S3-compatible endpoint) or "memory" for local runs.
type StorageConfig struct {
	Backend         string
	Endpoint        string
	AccessKey       string
	SecretKey       string
	Region          string
	UseSSL          bool
	RawBucket       string
	ProcessedBucket string
	ArchiveBucket   string
}

type AppConfig struct {
	Environment         string
	WorkerCount         int
	PollIntervalSeconds int
}

// RetentionConfig controls the lifecycle sweep. ArchiveDays is not evaluated
// by the sweeper itself; it describes the cold-store transition policy and is
// surfaced in the stats endpoint for operators.
type RetentionConfig struct {
	RetentionDays    int
	ArchiveDays      int
	SweepConcurrency int
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type CacheConfig struct {
	Enabled         bool
	RedisURL        string
	RedisHost       string
	RedisPort       string
	RedisPassword   string
	RedisDB         int
	StatsTTLSeconds int
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		// Set default values
		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_READ_TIMEOUT", 30)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 30)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("STORAGE_BACKEND", "s3")
		viper.SetDefault("STORAGE_ENDPOINT", "localhost:9000")
		viper.SetDefault("STORAGE_ACCESS_KEY", "")
		viper.SetDefault("STORAGE_SECRET_KEY", "")
		viper.SetDefault("STORAGE_REGION", "us-east-1")
		viper.SetDefault("STORAGE_USE_SSL", false)
		viper.SetDefault("RAW_BUCKET", "datapipe-raw")
		viper.SetDefault("PROCESSED_BUCKET", "datapipe-processed")
		viper.SetDefault("ARCHIVE_BUCKET", "datapipe-archive")
		viper.SetDefault("ENVIRONMENT", "dev")
		viper.SetDefault("WORKER_COUNT", 4)
		viper.SetDefault("POLL_INTERVAL_SECONDS", 0)
		viper.SetDefault("RETENTION_DAYS", 30)
		viper.SetDefault("ARCHIVE_DAYS", 90)
		viper.SetDefault("SWEEP_CONCURRENCY", 8)
		viper.SetDefault("DB_ENABLED", false)
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "datapipe")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_STATS_TTL_SECONDS", 0)

		// Read from environment variables
		viper.AutomaticEnv()

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Storage: StorageConfig{
				Backend:         viper.GetString("STORAGE_BACKEND"),
				Endpoint:        viper.GetString("STORAGE_ENDPOINT"),
				AccessKey:       viper.GetString("STORAGE_ACCESS_KEY"),
				SecretKey:       viper.GetString("STORAGE_SECRET_KEY"),
				Region:          viper.GetString("STORAGE_REGION"),
				UseSSL:          viper.GetBool("STORAGE_USE_SSL"),
				RawBucket:       viper.GetString("RAW_BUCKET"),
				ProcessedBucket: viper.GetString("PROCESSED_BUCKET"),
				ArchiveBucket:   viper.GetString("ARCHIVE_BUCKET"),
			},
			App: AppConfig{
				Environment:         viper.GetString("ENVIRONMENT"),
				WorkerCount:         viper.GetInt("WORKER_COUNT"),
				PollIntervalSeconds: viper.GetInt("POLL_INTERVAL_SECONDS"),
			},
			Retention: RetentionConfig{
				RetentionDays:    viper.GetInt("RETENTION_DAYS"),
				ArchiveDays:      viper.GetInt("ARCHIVE_DAYS"),
				SweepConcurrency: viper.GetInt("SWEEP_CONCURRENCY"),
			},
			Database: DatabaseConfig{
				Enabled:  viper.GetBool("DB_ENABLED"),
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			Cache: CacheConfig{
				Enabled:         viper.GetBool("CACHE_ENABLED"),
				RedisURL:        viper.GetString("REDIS_URL"),
				RedisHost:       viper.GetString("REDIS_HOST"),
				RedisPort:       viper.GetString("REDIS_PORT"),
				RedisPassword:   viper.GetString("REDIS_PASSWORD"),
				RedisDB:         viper.GetInt("REDIS_DB"),
				StatsTTLSeconds: viper.GetInt("CACHE_STATS_TTL_SECONDS"),
			},
		}
	})

	return instance
}
