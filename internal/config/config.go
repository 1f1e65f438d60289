package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Search    SearchConfig    `mapstructure:"search"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	CORS            CORSConfig    `mapstructure:"cors"`
	MaxUploadMB     int           `mapstructure:"max_upload_mb"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// DatabaseConfig selects the relational store. Driver "postgres" uses URL and
// requires the pgvector extension; "sqlite" uses Path and ranks in process.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type StorageConfig struct {
	Type           string        `mapstructure:"type"` // minio or s3
	Endpoint       string        `mapstructure:"endpoint"`
	AccessKey      string        `mapstructure:"access_key"`
	SecretKey      string        `mapstructure:"secret_key"`
	Bucket         string        `mapstructure:"bucket"`
	Region         string        `mapstructure:"region"`
	UseSSL         bool          `mapstructure:"use_ssl"`
	ForcePathStyle bool          `mapstructure:"force_path_style"`
	PublicURL      string        `mapstructure:"public_url"`
	PublicRead     bool          `mapstructure:"public_read"`
	Timeout        time.Duration `mapstructure:"timeout"`
	UploadRetries  int           `mapstructure:"upload_retries"`
}

type MatchingConfig struct {
	Backend             string  `mapstructure:"backend"` // sql or qdrant
	Metric              string  `mapstructure:"metric"`  // l2 or cosine
	DefaultRadiusKm     float64 `mapstructure:"default_radius_km"`
	DefaultLimit        int     `mapstructure:"default_limit"`
	MaxLimit            int     `mapstructure:"max_limit"`
	CandidateOversample int     `mapstructure:"candidate_oversample"`
	MinCandidateWindow  int     `mapstructure:"min_candidate_window"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

type IngestConfig struct {
	TempDir             string `mapstructure:"temp_dir"`
	KeyPrefix           string `mapstructure:"key_prefix"`
	CompensateOnFailure bool   `mapstructure:"compensate_on_failure"`
	Workers             int    `mapstructure:"workers"`
}

type SearchConfig struct {
	KeyPrefix        string `mapstructure:"key_prefix"`
	DeleteQueryImage bool   `mapstructure:"delete_query_image"`
}

// Load reads configs/config.yaml (or configPath), .env and the environment.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("server.request_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "./data/petmatch.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_idle_time", 30*time.Second)
	v.SetDefault("database.connect_timeout", 10*time.Second)
	v.SetDefault("database.query_timeout", 15*time.Second)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.type", "minio")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "minioadmin")
	v.SetDefault("storage.secret_key", "minioadmin")
	v.SetDefault("storage.bucket", "animal-images")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.force_path_style", true)
	v.SetDefault("storage.public_read", true)
	v.SetDefault("storage.timeout", 30*time.Second)
	v.SetDefault("storage.upload_retries", 3)

	v.SetDefault("embedding.url", "http://localhost:8000")
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.health_timeout", 5*time.Second)
	v.SetDefault("embedding.dimensions", 512)
	v.SetDefault("embedding.breaker.enabled", true)
	v.SetDefault("embedding.breaker.max_failures", 5)
	v.SetDefault("embedding.breaker.open_timeout", 30*time.Second)

	v.SetDefault("matching.backend", "sql")
	v.SetDefault("matching.metric", "l2")
	v.SetDefault("matching.default_radius_km", 10.0)
	v.SetDefault("matching.default_limit", 10)
	v.SetDefault("matching.max_limit", 100)
	v.SetDefault("matching.candidate_oversample", 10)
	v.SetDefault("matching.min_candidate_window", 100)

	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "animals")

	v.SetDefault("ingest.temp_dir", "")
	v.SetDefault("ingest.key_prefix", "animals")
	v.SetDefault("ingest.compensate_on_failure", false)
	v.SetDefault("ingest.workers", 4)

	v.SetDefault("search.key_prefix", "search")
	v.SetDefault("search.delete_query_image", false)
}

// bindEnv maps the deployment variables used by docker-compose and the
// embedding service onto config keys.
func bindEnv(v *viper.Viper) {
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("storage.endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.bucket", "MINIO_BUCKET")
	v.BindEnv("storage.use_ssl", "MINIO_USE_SSL")
	v.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	v.BindEnv("embedding.url", "EMBEDDING_URL")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database: url is required for driver postgres (set DATABASE_URL)")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database: path is required for driver sqlite")
		}
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}

	switch c.Storage.Type {
	case "minio", "s3":
	default:
		return fmt.Errorf("storage: unknown type %q", c.Storage.Type)
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage: bucket is required")
	}

	if err := c.Embedding.Validate(); err != nil {
		return err
	}

	switch c.Matching.Backend {
	case "sql":
	case "qdrant":
		if c.Qdrant.Collection == "" {
			return fmt.Errorf("qdrant: collection is required for matching backend qdrant")
		}
	default:
		return fmt.Errorf("matching: unknown backend %q", c.Matching.Backend)
	}
	switch strings.ToLower(c.Matching.Metric) {
	case "", "l2", "euclid", "euclidean", "cosine":
	default:
		return fmt.Errorf("matching: unknown metric %q", c.Matching.Metric)
	}
	if c.Matching.DefaultRadiusKm <= 0 {
		return fmt.Errorf("matching: default_radius_km must be positive")
	}
	if c.Matching.DefaultLimit <= 0 {
		return fmt.Errorf("matching: default_limit must be positive")
	}
	if c.Matching.MaxLimit < c.Matching.DefaultLimit {
		return fmt.Errorf("matching: max_limit must be >= default_limit")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server: max_upload_mb must be positive")
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}
