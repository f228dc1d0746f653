package migrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"governance-backend/internal/types"
	"governance-backend/pkg/logger"

	"gorm.io/gorm"
)

// Migration 表示一个数据库迁移版本
type Migration struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Version     string `gorm:"unique;size:50;not null"`
	Description string `gorm:"size:200;not null"`
	Applied     bool   `gorm:"not null;default:false"`
	AppliedAt   *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// TableName 设置表名
func (Migration) TableName() string {
	return "schema_migrations"
}

// Models 全部持久化模型
func Models() []interface{} {
	return []interface{}{
		&types.User{},
		&types.AdminModel{},
		&types.StakeModel{},
		&types.ActionModel{},
		&types.ActionConfirmationModel{},
		&types.TimeLockModel{},
		&types.PermissionModel{},
		&types.LedgerMetaModel{},
		&types.EventModel{},
		&types.PendingTransferModel{},
		&types.TelegramConfig{},
		&types.LarkConfig{},
		&types.FeishuConfig{},
		&types.NotificationLog{},
	}
}

// MigrationHandler 迁移处理器
type MigrationHandler struct {
	db *gorm.DB
}

// NewMigrationHandler 创建迁移处理器
func NewMigrationHandler(db *gorm.DB) *MigrationHandler {
	return &MigrationHandler{db: db}
}

// migrationFunc 迁移函数类型
type migrationFunc struct {
	version     string
	description string
	fn          func(ctx context.Context, tx *gorm.DB) error
}

// InitTables 安全的数据库初始化，不会删除现有数据
func InitTables(db *gorm.DB) error {
	ctx := context.Background()
	logger.Info("InitTables: ", "starting database initialization")

	handler := NewMigrationHandler(db)

	if err := handler.ensureMigrationTable(ctx); err != nil {
		logger.Error("InitTables Error: ", err)
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	if err := handler.runMigrations(ctx); err != nil {
		logger.Error("InitTables Error: ", err)
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("InitTables: ", "database initialization completed")
	return nil
}

// ensureMigrationTable 确保迁移记录表存在
func (h *MigrationHandler) ensureMigrationTable(ctx context.Context) error {
	if h.db.Migrator().HasTable(&Migration{}) {
		return nil
	}
	logger.Info("InitTables: ", "creating migration table")
	return h.db.WithContext(ctx).AutoMigrate(&Migration{})
}

// runMigrations 执行所有待执行的迁移
func (h *MigrationHandler) runMigrations(ctx context.Context) error {
	migrations := []migrationFunc{
		{"v1.0.0", "Create governance tables", h.createInitialTables},
		{"v1.0.1", "Create indexes", h.createIndexes},
	}

	for _, migration := range migrations {
		if err := h.runSingleMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", migration.version, err)
		}
	}
	return nil
}

// runSingleMigration 在事务中执行单个迁移并记录
func (h *MigrationHandler) runSingleMigration(ctx context.Context, migration migrationFunc) error {
	var existing Migration
	result := h.db.WithContext(ctx).Where("version = ?", migration.version).First(&existing)
	if result.Error == nil && existing.Applied {
		logger.Debug("Migration already applied", "version", migration.version)
		return nil
	}
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}

	logger.Info("Running migration", "version", migration.version, "description", migration.description)
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := migration.fn(ctx, tx); err != nil {
			return err
		}

		now := time.Now()
		if result.Error != nil {
			return tx.Create(&Migration{
				Version:     migration.version,
				Description: migration.description,
				Applied:     true,
				AppliedAt:   &now,
			}).Error
		}
		return tx.Model(&existing).Updates(map[string]interface{}{
			"applied":    true,
			"applied_at": &now,
		}).Error
	})
	if err != nil {
		logger.Error("Migration failed", err, "version", migration.version)
		return err
	}

	logger.Info("Migration completed successfully", "version", migration.version)
	return nil
}

// createInitialTables 创建表结构（v1.0.0）
func (h *MigrationHandler) createInitialTables(ctx context.Context, tx *gorm.DB) error {
	if err := tx.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate governance tables: %w", err)
	}
	return nil
}

// createIndexes 创建额外的查询索引（v1.0.1）
func (h *MigrationHandler) createIndexes(ctx context.Context, tx *gorm.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_gov_events_type_seq ON gov_events(type, sequence)",
		"CREATE INDEX IF NOT EXISTS idx_gov_actions_open ON gov_actions(executed, cancelled, deadline)",
		"CREATE INDEX IF NOT EXISTS idx_gov_timelocks_open ON gov_timelocks(executed, cancelled, unlock_time)",
		"CREATE INDEX IF NOT EXISTS idx_gov_action_confirmations_confirmer ON gov_action_confirmations(confirmer)",
		"CREATE INDEX IF NOT EXISTS idx_notification_logs_dedup ON notification_logs(channel, config_id, event_sequence)",
	}
	for _, stmt := range indexes {
		if err := tx.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
