// Package warehouse manages the Postgres side of the platform: bronze
// mirrors, silver entity tables and gold analytical views.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	appconfig "affiliateflow/config"
	"affiliateflow/logger"
)

// DB wraps the GORM handle with the platform's warehouse operations.
type DB struct {
	gorm *gorm.DB
	log  *logger.Log
}

// Connect opens and validates a Postgres-backed GORM connection pool.
func Connect(ctx context.Context, cfg appconfig.DatabaseConfig) (*DB, error) {
	log := logger.GetLogger()
	log.WithComponent("warehouse").Info("connecting to postgres")

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
		sqlDB.SetMaxIdleConns(cfg.MaxConns / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.WithComponent("warehouse").Info("postgres connection established")
	return &DB{gorm: db, log: log}, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
