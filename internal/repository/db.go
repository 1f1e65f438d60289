package repository

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/timmy/petmatch/internal/config"
	"github.com/timmy/petmatch/internal/domain"
	"github.com/timmy/petmatch/internal/logger"
	"github.com/timmy/petmatch/internal/matching"
)

// InitDB opens the configured datastore, applies pool settings and runs migrations.
// Parameters:
//   - ctx: bounds the initial connectivity check.
//   - cfg: database configuration.
//   - dims: embedding dimensionality; > 0 pins the postgres vector column and builds an HNSW index.
//   - metric: vector metric the HNSW index is built for.
//
// Returns:
//   - *gorm.DB: handle shared by every request.
//   - error: non-nil if connection or migration fails.
func InitDB(ctx context.Context, cfg *config.DatabaseConfig, dims int, metric matching.Metric) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		db, err = openPostgres(cfg, gormConfig)
	case "sqlite":
		db, err = openSQLite(cfg, gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", cfg.Driver, err)
	}

	logger.With(logger.Fields{
		"driver":         cfg.Driver,
		"max_open_conns": cfg.MaxOpenConns,
		"auto_migrate":   cfg.AutoMigrate,
	}).Info(ctx, "Database connected")

	if cfg.AutoMigrate {
		if err := Migrate(db, dims, metric); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// Migrate creates the animals table and its indexes.
func Migrate(db *gorm.DB, dims int, metric matching.Metric) error {
	postgresDB := db.Dialector.Name() == "postgres"

	if postgresDB {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("failed to enable pgvector: %w", err)
		}
	}
	if err := db.AutoMigrate(&domain.Animal{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	if !postgresDB || dims <= 0 {
		return nil
	}

	for _, stmt := range vectorIndexStatements(dims, metric) {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to build vector index: %w", err)
		}
	}
	return nil
}

func vectorIndexStatements(dims int, metric matching.Metric) []string {
	ops := "vector_l2_ops"
	if metric == matching.MetricCosine {
		ops = "vector_cosine_ops"
	}
	return []string{
		fmt.Sprintf("ALTER TABLE animals ALTER COLUMN embedding TYPE vector(%d)", dims),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_animals_embedding ON animals USING hnsw (embedding %s)", ops),
	}
}

func openPostgres(cfg *config.DatabaseConfig, gormConfig *gorm.Config) (*gorm.DB, error) {
	// Simple protocol keeps transaction poolers (pgbouncer, Supabase 6543) working.
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  withConnectTimeout(cfg.URL, cfg.ConnectTimeout),
		PreferSimpleProtocol: true,
	}), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return db, nil
}

func openSQLite(cfg *config.DatabaseConfig, gormConfig *gorm.Config) (*gorm.DB, error) {
	if cfg.Path != "" && !strings.HasPrefix(cfg.Path, ":memory:") && !strings.HasPrefix(cfg.Path, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	return db, nil
}

// withConnectTimeout adds connect_timeout (whole seconds) to a postgres DSN
// unless it already sets one. Both URL and key=value forms are handled.
func withConnectTimeout(dsn string, d time.Duration) string {
	if d <= 0 || strings.Contains(dsn, "connect_timeout") {
		return dsn
	}
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return dsn
		}
		q := u.Query()
		q.Set("connect_timeout", strconv.Itoa(secs))
		u.RawQuery = q.Encode()
		return u.String()
	}

	return strings.TrimSpace(dsn + " connect_timeout=" + strconv.Itoa(secs))
}
