package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"governance-backend/pkg/logger"

	"gorm.io/gorm"
)

// BackupVersion 备份格式版本
const BackupVersion = "1.0.0"

// backupTable 备份表及其冲突键
type backupTable struct {
	name        string
	conflictKey string
	serial      bool // 自增主键，恢复后需同步序列
}

// 按依赖顺序排列，恢复正序，清空逆序
var backupTables = []backupTable{
	{name: "users", conflictKey: "id", serial: true},
	{name: "gov_ledger_meta", conflictKey: "id"},
	{name: "gov_admins", conflictKey: "address"},
	{name: "gov_stakes", conflictKey: "admin"},
	{name: "gov_actions", conflictKey: "id"},
	{name: "gov_action_confirmations", conflictKey: "action_id, confirmer"},
	{name: "gov_timelocks", conflictKey: "id"},
	{name: "gov_permissions", conflictKey: "selector"},
	{name: "gov_events", conflictKey: "sequence"},
	{name: "gov_pending_transfers", conflictKey: "tx_hash"},
	{name: "telegram_configs", conflictKey: "id", serial: true},
	{name: "lark_configs", conflictKey: "id", serial: true},
	{name: "feishu_configs", conflictKey: "id", serial: true},
	{name: "notification_logs", conflictKey: "id", serial: true},
}

// BackupManager 备份管理器
type BackupManager struct {
	db *gorm.DB
}

// NewBackupManager 创建备份管理器
func NewBackupManager(db *gorm.DB) *BackupManager {
	return &BackupManager{db: db}
}

// BackupData 备份数据结构，按表名存放行
type BackupData struct {
	Version   string                              `json:"version"`
	Timestamp time.Time                           `json:"timestamp"`
	Tables    map[string][]map[string]interface{} `json:"tables"`
}

// BackupInfo 备份元信息
type BackupInfo struct {
	Version   string         `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
	Counts    map[string]int `json:"counts"`
}

// ConflictAction 冲突处理策略
type ConflictAction string

const (
	ConflictSkip    ConflictAction = "skip"    // 跳过冲突记录
	ConflictReplace ConflictAction = "replace" // 替换冲突记录
	ConflictError   ConflictAction = "error"   // 遇到冲突报错
)

// RestoreOptions 恢复选项
type RestoreOptions struct {
	ClearExisting bool
	OnConflict    ConflictAction
}

// CreateBackup 导出全部治理与通知数据
func (bm *BackupManager) CreateBackup(ctx context.Context, backupPath string) error {
	logger.Info("CreateBackup: ", "path", backupPath)

	if err := os.MkdirAll(filepath.Dir(backupPath), 0755); err != nil {
		logger.Error("CreateBackup Error: ", err, "path", backupPath)
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	backup := BackupData{
		Version:   BackupVersion,
		Timestamp: time.Now().UTC(),
		Tables:    make(map[string][]map[string]interface{}, len(backupTables)),
	}
	for _, t := range backupTables {
		records, err := bm.dumpTable(ctx, t.name)
		if err != nil {
			logger.Error("CreateBackup Error: ", err, "table", t.name)
			return err
		}
		backup.Tables[t.name] = records
	}

	file, err := os.Create(backupPath)
	if err != nil {
		logger.Error("CreateBackup Error: ", err, "path", backupPath)
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		logger.Error("CreateBackup Error: ", err)
		return fmt.Errorf("failed to encode backup data: %w", err)
	}

	logger.Info("CreateBackup: backup created", "path", backupPath, "events", len(backup.Tables["gov_events"]), "admins", len(backup.Tables["gov_admins"]))
	return nil
}

// RestoreBackup 从备份文件恢复，全部表在一个事务中写入
func (bm *BackupManager) RestoreBackup(ctx context.Context, backupPath string, options RestoreOptions) error {
	backup, err := readBackup(backupPath)
	if err != nil {
		return err
	}
	if err := validateBackup(backup); err != nil {
		logger.Error("RestoreBackup Error: ", err, "path", backupPath)
		return err
	}
	if options.OnConflict == "" {
		options.OnConflict = ConflictSkip
	}

	logger.Info("RestoreBackup: ", "path", backupPath, "version", backup.Version, "clear", options.ClearExisting, "conflict", options.OnConflict)
	err = bm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if options.ClearExisting {
			if err := bm.clearTables(ctx, tx); err != nil {
				return err
			}
		}
		for _, t := range backupTables {
			if err := bm.restoreTable(ctx, tx, t, backup.Tables[t.name], options.OnConflict); err != nil {
				return err
			}
		}
		return bm.syncSequences(ctx, tx)
	})
	if err != nil {
		logger.Error("RestoreBackup Error: ", err, "path", backupPath)
		return err
	}
	logger.Info("RestoreBackup: restore completed", "path", backupPath)
	return nil
}

// ValidateBackup 校验备份文件结构与事件链接
func (bm *BackupManager) ValidateBackup(backupPath string) error {
	backup, err := readBackup(backupPath)
	if err != nil {
		return err
	}
	if err := validateBackup(backup); err != nil {
		logger.Error("ValidateBackup Error: ", err, "path", backupPath)
		return err
	}
	logger.Info("ValidateBackup: ", "path", backupPath, "version", backup.Version, "events", len(backup.Tables["gov_events"]))
	return nil
}

// GetBackupInfo 备份元信息，不含数据
func (bm *BackupManager) GetBackupInfo(backupPath string) (*BackupInfo, error) {
	backup, err := readBackup(backupPath)
	if err != nil {
		return nil, err
	}
	info := &BackupInfo{
		Version:   backup.Version,
		Timestamp: backup.Timestamp,
		Counts:    make(map[string]int, len(backup.Tables)),
	}
	for name, rows := range backup.Tables {
		info.Counts[name] = len(rows)
	}
	return info, nil
}

// Reset 清空所有业务表
func (bm *BackupManager) Reset(ctx context.Context) error {
	return bm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return bm.clearTables(ctx, tx)
	})
}

func readBackup(backupPath string) (*BackupData, error) {
	file, err := os.Open(backupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup file: %w", err)
	}
	defer file.Close()

	var backup BackupData
	if err := json.NewDecoder(file).Decode(&backup); err != nil {
		return nil, fmt.Errorf("failed to decode backup data: %w", err)
	}
	return &backup, nil
}

func validateBackup(backup *BackupData) error {
	if backup.Version == "" {
		return errors.New("backup version is missing")
	}
	if backup.Timestamp.IsZero() {
		return errors.New("backup timestamp is missing")
	}
	if backup.Tables == nil {
		return errors.New("backup has no tables")
	}
	return checkEventLinks(backup.Tables["gov_events"])
}

// checkEventLinks 序号连续且prev_hash指向上一条hash
func checkEventLinks(rows []map[string]interface{}) error {
	type link struct {
		seq        uint64
		prev, hash string
	}
	links := make([]link, 0, len(rows))
	for _, row := range rows {
		seq, ok := row["sequence"].(float64)
		if !ok {
			return errors.New("event row without sequence")
		}
		prev, _ := row["prev_hash"].(string)
		hash, _ := row["hash"].(string)
		links = append(links, link{seq: uint64(seq), prev: prev, hash: hash})
	}
	sort.Slice(links, func(i, j int) bool { return links[i].seq < links[j].seq })
	for i := 1; i < len(links); i++ {
		if links[i].seq != links[i-1].seq+1 {
			return fmt.Errorf("event sequence gap after %d", links[i-1].seq)
		}
		if !strings.EqualFold(links[i].prev, links[i-1].hash) {
			return fmt.Errorf("event %d does not link to event %d", links[i].seq, links[i-1].seq)
		}
	}
	return nil
}

// dumpTable 导出表的全部行
func (bm *BackupManager) dumpTable(ctx context.Context, tableName string) ([]map[string]interface{}, error) {
	rows, err := bm.db.WithContext(ctx).Table(tableName).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query table %s: %w", tableName, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns for table %s: %w", tableName, err)
	}

	records := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row from table %s: %w", tableName, err)
		}

		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		records = append(records, record)
	}
	logger.Debug("dumpTable: ", "table", tableName, "records", len(records))
	return records, rows.Err()
}

// restoreTable 恢复表数据
func (bm *BackupManager) restoreTable(ctx context.Context, tx *gorm.DB, t backupTable, records []map[string]interface{}, onConflict ConflictAction) error {
	for _, record := range records {
		if err := insertRecord(ctx, tx, t, record, onConflict); err != nil {
			return fmt.Errorf("failed to insert record into %s: %w", t.name, err)
		}
	}
	logger.Info("restoreTable: ", "table", t.name, "records", len(records))
	return nil
}

// insertRecord 插入单条记录，ON CONFLICT语法在postgres和sqlite下通用
func insertRecord(ctx context.Context, tx *gorm.DB, t backupTable, record map[string]interface{}, onConflict ConflictAction) error {
	columns := make([]string, 0, len(record))
	for col := range record {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	values := make([]interface{}, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	for _, col := range columns {
		values = append(values, record[col])
		placeholders = append(placeholders, "?")
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	switch onConflict {
	case ConflictSkip:
		sql += " ON CONFLICT DO NOTHING"
	case ConflictReplace:
		keys := make(map[string]bool)
		for _, k := range strings.Split(t.conflictKey, ",") {
			keys[strings.TrimSpace(k)] = true
		}
		var updates []string
		for _, col := range columns {
			if !keys[col] {
				updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
			}
		}
		if len(updates) == 0 {
			sql += " ON CONFLICT DO NOTHING"
		} else {
			sql += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", t.conflictKey, strings.Join(updates, ", "))
		}
	}
	return tx.WithContext(ctx).Exec(sql, values...).Error
}

// clearTables 逆序清空
func (bm *BackupManager) clearTables(ctx context.Context, tx *gorm.DB) error {
	logger.Warn("clearTables: clearing existing data")
	for i := len(backupTables) - 1; i >= 0; i-- {
		name := backupTables[i].name
		if err := tx.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s", name)).Error; err != nil {
			logger.Error("clearTables Error: ", err, "table", name)
			return fmt.Errorf("failed to clear table %s: %w", name, err)
		}
	}
	return nil
}

// syncSequences postgres下将自增序列推进到当前最大ID
func (bm *BackupManager) syncSequences(ctx context.Context, tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	for _, t := range backupTables {
		if !t.serial {
			continue
		}
		stmt := fmt.Sprintf("SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE((SELECT MAX(id) FROM %s), 0) + 1, false)", t.name, t.name)
		if err := tx.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to sync sequence for %s: %w", t.name, err)
		}
	}
	return nil
}
