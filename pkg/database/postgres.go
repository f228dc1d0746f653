package database

import (
	"errors"
	"fmt"
	"time"

	"governance-backend/internal/config"
	gov_logger "governance-backend/pkg/logger"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewConnection 按配置的驱动创建数据库连接
func NewConnection(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.Driver == config.DriverSQLite {
		return NewSQLiteConnection(cfg.Path)
	}
	return NewPostgresConnection(cfg)
}

// NewPostgresConnection 创建PostgreSQL数据库连接
func NewPostgresConnection(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		gov_logger.Error("NewPostgresConnection Error: ", errors.New("failed to connect to database"), "error: ", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 获取底层的sql.DB对象进行连接池配置
	sqlDB, err := db.DB()
	if err != nil {
		gov_logger.Error("NewPostgresConnection Error: ", errors.New("failed to get underlying sql.DB"), "error: ", err)
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	gov_logger.Info("NewPostgresConnection: ", "host: ", cfg.Host, "port: ", cfg.Port, "user: ", cfg.User, "dbname: ", cfg.DBName, "sslmode: ", cfg.SSLMode)
	return db, nil
}

// NewSQLiteConnection 创建SQLite连接，用于本地运行和测试
// 单连接，保证:memory:库在所有查询间共享
func NewSQLiteConnection(path string) (*gorm.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		gov_logger.Error("NewSQLiteConnection Error: ", err, "path", path)
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	gov_logger.Info("NewSQLiteConnection: ", "path", path)
	return db, nil
}
