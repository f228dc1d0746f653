package governance

import (
	"context"
	"errors"
	"fmt"

	"governance-backend/internal/types"
	"governance-backend/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const metaRowID uint8 = 1

// Repository 治理账本持久化接口
type Repository interface {
	// LoadSnapshot 读取完整账本，尚未初始化时返回nil
	LoadSnapshot(ctx context.Context) (*types.LedgerSnapshot, error)
	// Commit 在同一数据库事务内写入变更并执行effects
	Commit(ctx context.Context, cs *types.LedgerChangeSet, effects func(ctx context.Context) error) error
	// CountEvents 已持久化的事件数量
	CountEvents(ctx context.Context) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository 创建治理账本仓库
func NewRepository(db *gorm.DB) Repository {
	return &repository{
		db: db,
	}
}

// Commit 写入一次账本提交，effects失败时整体回滚
func (r *repository) Commit(ctx context.Context, cs *types.LedgerChangeSet, effects func(ctx context.Context) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.writeAdmins(tx, cs.Admins); err != nil {
			return err
		}
		if err := r.writeStakes(tx, cs.Stakes); err != nil {
			return err
		}
		if err := r.writeActions(tx, cs.Actions); err != nil {
			return err
		}
		if err := r.writeTimeLocks(tx, cs.TimeLocks); err != nil {
			return err
		}
		if err := r.writePermissions(tx, cs.Permissions); err != nil {
			return err
		}
		meta := toMetaModel(cs.Meta)
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&meta).Error; err != nil {
			return fmt.Errorf("write ledger meta: %w", err)
		}
		if len(cs.Events) > 0 {
			events := make([]types.EventModel, 0, len(cs.Events))
			for _, e := range cs.Events {
				events = append(events, toEventModel(e))
			}
			if err := tx.Create(&events).Error; err != nil {
				return fmt.Errorf("append events: %w", err)
			}
		}
		if effects == nil {
			return nil
		}
		if err := effects(ctx); err != nil {
			return err
		}
		return r.writePendingTransfers(tx, cs.PendingTransfers)
	})
	if err != nil {
		logger.Error("Commit Error: ", err, "events", len(cs.Events))
		return err
	}
	logger.Debug("Commit: ", "admins", len(cs.Admins), "stakes", len(cs.Stakes), "actions", len(cs.Actions), "timelocks", len(cs.TimeLocks), "events", len(cs.Events))
	return nil
}

func (r *repository) writeAdmins(tx *gorm.DB, admins []types.Admin) error {
	if len(admins) == 0 {
		return nil
	}
	rows := make([]types.AdminModel, 0, len(admins))
	for _, a := range admins {
		rows = append(rows, toAdminModel(a))
	}
	if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
		return fmt.Errorf("write admins: %w", err)
	}
	return nil
}

// writePendingTransfers 记录effects中已广播未确认的交易，随账本一同提交
func (r *repository) writePendingTransfers(tx *gorm.DB, pending []types.PendingTransfer) error {
	if len(pending) == 0 {
		return nil
	}
	rows := make([]types.PendingTransferModel, 0, len(pending))
	for _, p := range pending {
		rows = append(rows, toPendingTransferModel(p))
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("write pending transfers: %w", err)
	}
	return nil
}

func (r *repository) writeStakes(tx *gorm.DB, stakes []types.StakeRecord) error {
	if len(stakes) == 0 {
		return nil
	}
	rows := make([]types.StakeModel, 0, len(stakes))
	for _, s := range stakes {
		rows = append(rows, toStakeModel(s))
	}
	if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
		return fmt.Errorf("write stakes: %w", err)
	}
	return nil
}

// writeActions 提案整行覆盖，确认列表先删后写
func (r *repository) writeActions(tx *gorm.DB, actions []types.PendingAction) error {
	if len(actions) == 0 {
		return nil
	}
	rows := make([]types.ActionModel, 0, len(actions))
	ids := make([]uint64, 0, len(actions))
	var confirmations []types.ActionConfirmationModel
	for _, a := range actions {
		m, c := toActionModel(a)
		rows = append(rows, m)
		ids = append(ids, a.ID)
		confirmations = append(confirmations, c...)
	}
	if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
		return fmt.Errorf("write actions: %w", err)
	}
	if err := tx.Where("action_id IN ?", ids).Delete(&types.ActionConfirmationModel{}).Error; err != nil {
		return fmt.Errorf("clear confirmations: %w", err)
	}
	if len(confirmations) > 0 {
		if err := tx.Create(&confirmations).Error; err != nil {
			return fmt.Errorf("write confirmations: %w", err)
		}
	}
	return nil
}

func (r *repository) writeTimeLocks(tx *gorm.DB, timelocks []types.TimeLock) error {
	if len(timelocks) == 0 {
		return nil
	}
	rows := make([]types.TimeLockModel, 0, len(timelocks))
	for _, t := range timelocks {
		rows = append(rows, toTimeLockModel(t))
	}
	if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
		return fmt.Errorf("write timelocks: %w", err)
	}
	return nil
}

// writePermissions MinRole为NONE的条目删除
func (r *repository) writePermissions(tx *gorm.DB, permissions []types.Permission) error {
	for _, p := range permissions {
		row := toPermissionModel(p)
		if p.MinRole == types.RoleNone {
			if err := tx.Where("selector = ?", row.Selector).Delete(&types.PermissionModel{}).Error; err != nil {
				return fmt.Errorf("delete permission %s: %w", row.Selector, err)
			}
			continue
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("write permission %s: %w", row.Selector, err)
		}
	}
	return nil
}

// LoadSnapshot 读取全部账本表
func (r *repository) LoadSnapshot(ctx context.Context) (*types.LedgerSnapshot, error) {
	db := r.db.WithContext(ctx)

	var meta types.LedgerMetaModel
	if err := db.Where("id = ?", metaRowID).First(&meta).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("LoadSnapshot: ", "ledger not initialized")
			return nil, nil
		}
		logger.Error("LoadSnapshot Error: ", err)
		return nil, err
	}

	snap := &types.LedgerSnapshot{}
	var err error
	if snap.Meta, err = fromMetaModel(meta); err != nil {
		return nil, fmt.Errorf("decode ledger meta: %w", err)
	}

	var admins []types.AdminModel
	if err := db.Order("ordinal ASC").Find(&admins).Error; err != nil {
		logger.Error("LoadSnapshot Error: ", err, "table", "gov_admins")
		return nil, err
	}
	for _, m := range admins {
		snap.Admins = append(snap.Admins, fromAdminModel(m))
	}

	var stakes []types.StakeModel
	if err := db.Find(&stakes).Error; err != nil {
		logger.Error("LoadSnapshot Error: ", err, "table", "gov_stakes")
		return nil, err
	}
	for _, m := range stakes {
		rec, err := fromStakeModel(m)
		if err != nil {
			return nil, fmt.Errorf("decode stake %s: %w", m.Admin, err)
		}
		snap.Stakes = append(snap.Stakes, rec)
	}

	if snap.Actions, err = r.loadActions(db); err != nil {
		return nil, err
	}

	var timelocks []types.TimeLockModel
	if err := db.Order("id ASC").Find(&timelocks).Error; err != nil {
		logger.Error("LoadSnapshot Error: ", err, "table", "gov_timelocks")
		return nil, err
	}
	for _, m := range timelocks {
		snap.TimeLocks = append(snap.TimeLocks, fromTimeLockModel(m))
	}

	var permissions []types.PermissionModel
	if err := db.Find(&permissions).Error; err != nil {
		logger.Error("LoadSnapshot Error: ", err, "table", "gov_permissions")
		return nil, err
	}
	for _, m := range permissions {
		p, err := fromPermissionModel(m)
		if err != nil {
			return nil, err
		}
		snap.Permissions = append(snap.Permissions, p)
	}

	var events []types.EventModel
	if err := db.Order("sequence ASC").Find(&events).Error; err != nil {
		logger.Error("LoadSnapshot Error: ", err, "table", "gov_events")
		return nil, err
	}
	for _, m := range events {
		e, err := fromEventModel(m)
		if err != nil {
			return nil, fmt.Errorf("decode event %d: %w", m.Sequence, err)
		}
		snap.Events = append(snap.Events, e)
	}

	logger.Info("LoadSnapshot: ", "admins", len(snap.Admins), "actions", len(snap.Actions), "timelocks", len(snap.TimeLocks), "events", len(snap.Events))
	return snap, nil
}

func (r *repository) loadActions(db *gorm.DB) ([]types.PendingAction, error) {
	var rows []types.ActionModel
	if err := db.Order("id ASC").Find(&rows).Error; err != nil {
		logger.Error("LoadSnapshot Error: ", err, "table", "gov_actions")
		return nil, err
	}
	var confirmations []types.ActionConfirmationModel
	if err := db.Order("action_id ASC, position ASC").Find(&confirmations).Error; err != nil {
		logger.Error("LoadSnapshot Error: ", err, "table", "gov_action_confirmations")
		return nil, err
	}
	byAction := make(map[uint64][]common.Address)
	for _, c := range confirmations {
		byAction[c.ActionID] = append(byAction[c.ActionID], parseAddress(c.Confirmer))
	}

	out := make([]types.PendingAction, 0, len(rows))
	for _, m := range rows {
		a, err := fromActionModel(m, byAction[m.ID])
		if err != nil {
			return nil, fmt.Errorf("decode action %d: %w", m.ID, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// CountEvents 事件总数
func (r *repository) CountEvents(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&types.EventModel{}).Count(&count).Error; err != nil {
		logger.Error("CountEvents Error: ", err)
		return 0, err
	}
	return count, nil
}
