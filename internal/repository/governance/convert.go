package governance

import (
	"fmt"
	"math/big"

	"governance-backend/internal/types"
	"governance-backend/pkg/crypto"

	"github.com/ethereum/go-ethereum/common"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func addressString(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}

func parseAddress(s string) common.Address {
	if s == "" {
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func toAdminModel(a types.Admin) types.AdminModel {
	return types.AdminModel{
		Address:       a.Address.Hex(),
		Role:          uint8(a.Role),
		JoinTimestamp: a.JoinTimestamp,
		IsActive:      a.IsActive,
		Ordinal:       a.Ordinal,
	}
}

func fromAdminModel(m types.AdminModel) types.Admin {
	return types.Admin{
		Address:       parseAddress(m.Address),
		Role:          types.AdminRole(m.Role),
		JoinTimestamp: m.JoinTimestamp,
		IsActive:      m.IsActive,
		Ordinal:       m.Ordinal,
	}
}

func toStakeModel(s types.StakeRecord) types.StakeModel {
	return types.StakeModel{
		Admin:          s.Admin.Hex(),
		StakedAmount:   amountString(s.StakedAmount),
		SlashCount:     s.SlashCount,
		RewardsClaimed: amountString(s.RewardsClaimed),
		RewardDebt:     amountString(s.RewardDebt),
		AccruedRewards: amountString(s.AccruedRewards),
	}
}

func fromStakeModel(m types.StakeModel) (types.StakeRecord, error) {
	rec := types.NewStakeRecord(parseAddress(m.Admin))
	rec.SlashCount = m.SlashCount
	var err error
	if rec.StakedAmount, err = parseAmount(m.StakedAmount); err != nil {
		return rec, err
	}
	if rec.RewardsClaimed, err = parseAmount(m.RewardsClaimed); err != nil {
		return rec, err
	}
	if rec.RewardDebt, err = parseAmount(m.RewardDebt); err != nil {
		return rec, err
	}
	if rec.AccruedRewards, err = parseAmount(m.AccruedRewards); err != nil {
		return rec, err
	}
	return rec, nil
}

func toActionModel(a types.PendingAction) (types.ActionModel, []types.ActionConfirmationModel) {
	m := types.ActionModel{
		ID:                    a.ID,
		ActionType:            uint8(a.ActionType),
		Proposer:              a.Proposer.Hex(),
		Target:                addressString(a.Target),
		NewRole:               uint8(a.NewRole),
		Amount:                amountString(a.Amount),
		Reason:                a.Reason,
		Data:                  a.Data,
		Confirmations:         a.Confirmations,
		RequiredConfirmations: a.RequiredConfirmations,
		ProposedAt:            a.CreatedAt,
		Deadline:              a.Deadline,
		Executed:              a.Executed,
		Cancelled:             a.Cancelled,
		ExecutedAt:            a.ExecutedAt,
		CancelledAt:           a.CancelledAt,
	}
	confirmations := make([]types.ActionConfirmationModel, 0, len(a.Confirmers))
	for i, c := range a.Confirmers {
		confirmations = append(confirmations, types.ActionConfirmationModel{
			ActionID:  a.ID,
			Confirmer: c.Hex(),
			Position:  i,
		})
	}
	return m, confirmations
}

func fromActionModel(m types.ActionModel, confirmers []common.Address) (types.PendingAction, error) {
	amount, err := parseAmount(m.Amount)
	if err != nil {
		return types.PendingAction{}, err
	}
	var data []byte
	if len(m.Data) > 0 {
		data = m.Data
	}
	return types.PendingAction{
		ID:                    m.ID,
		ActionType:            types.ActionType(m.ActionType),
		Proposer:              parseAddress(m.Proposer),
		Target:                parseAddress(m.Target),
		NewRole:               types.AdminRole(m.NewRole),
		Amount:                amount,
		Reason:                m.Reason,
		Data:                  data,
		Confirmations:         m.Confirmations,
		Confirmers:            confirmers,
		RequiredConfirmations: m.RequiredConfirmations,
		CreatedAt:             m.ProposedAt,
		Deadline:              m.Deadline,
		Executed:              m.Executed,
		Cancelled:             m.Cancelled,
		ExecutedAt:            m.ExecutedAt,
		CancelledAt:           m.CancelledAt,
	}, nil
}

func toTimeLockModel(t types.TimeLock) types.TimeLockModel {
	return types.TimeLockModel{
		ID:          t.ID,
		ActionType:  uint8(t.Action.ActionType),
		Proposer:    t.Action.Proposer.Hex(),
		Target:      t.Action.Target.Hex(),
		NewRole:     uint8(t.Action.NewRole),
		UnlockTime:  t.UnlockTime,
		ScheduledAt: t.CreatedAt,
		Executed:    t.Executed,
		Cancelled:   t.Cancelled,
	}
}

func fromTimeLockModel(m types.TimeLockModel) types.TimeLock {
	return types.TimeLock{
		ID: m.ID,
		Action: types.TimeLockPayload{
			ActionType: types.ActionType(m.ActionType),
			Proposer:   parseAddress(m.Proposer),
			Target:     parseAddress(m.Target),
			NewRole:    types.AdminRole(m.NewRole),
		},
		UnlockTime: m.UnlockTime,
		CreatedAt:  m.ScheduledAt,
		Executed:   m.Executed,
		Cancelled:  m.Cancelled,
	}
}

func toPermissionModel(p types.Permission) types.PermissionModel {
	return types.PermissionModel{
		Selector:  crypto.SelectorHex(p.Selector),
		Signature: p.Signature,
		MinRole:   uint8(p.MinRole),
	}
}

func fromPermissionModel(m types.PermissionModel) (types.Permission, error) {
	sel, err := crypto.ParseSelector(m.Selector)
	if err != nil {
		return types.Permission{}, fmt.Errorf("permission %q: %w", m.Selector, err)
	}
	return types.Permission{
		Selector:  sel,
		Signature: m.Signature,
		MinRole:   types.AdminRole(m.MinRole),
	}, nil
}

func toMetaModel(m types.LedgerMeta) types.LedgerMetaModel {
	return types.LedgerMetaModel{
		ID:                    metaRowID,
		TotalAdmins:           m.TotalAdmins,
		RequiredConfirmations: m.RequiredConfirmations,
		NextActionID:          m.NextActionID,
		NextTimeLockID:        m.NextTimeLockID,
		NextOrdinal:           m.NextOrdinal,
		EmergencyMode:         m.Emergency.EmergencyMode,
		EmergencyTriggeredBy:  addressString(m.Emergency.TriggeredBy),
		EmergencyStartTime:    m.Emergency.StartTime,
		TotalStaked:           amountString(m.TotalStaked),
		RewardPool:            amountString(m.RewardPool),
		AccRewardPerShare:     amountString(m.AccRewardPerShare),
		EventCount:            m.EventCount,
		HeadHash:              m.HeadHash.Hex(),
	}
}

func fromMetaModel(m types.LedgerMetaModel) (types.LedgerMeta, error) {
	meta := types.LedgerMeta{
		TotalAdmins:           m.TotalAdmins,
		RequiredConfirmations: m.RequiredConfirmations,
		NextActionID:          m.NextActionID,
		NextTimeLockID:        m.NextTimeLockID,
		NextOrdinal:           m.NextOrdinal,
		Emergency: types.EmergencyState{
			EmergencyMode: m.EmergencyMode,
			TriggeredBy:   parseAddress(m.EmergencyTriggeredBy),
			StartTime:     m.EmergencyStartTime,
		},
		EventCount: m.EventCount,
		HeadHash:   common.HexToHash(m.HeadHash),
	}
	var err error
	if meta.TotalStaked, err = parseAmount(m.TotalStaked); err != nil {
		return meta, err
	}
	if meta.RewardPool, err = parseAmount(m.RewardPool); err != nil {
		return meta, err
	}
	if meta.AccRewardPerShare, err = parseAmount(m.AccRewardPerShare); err != nil {
		return meta, err
	}
	return meta, nil
}

func toEventModel(e types.Event) types.EventModel {
	m := types.EventModel{
		Sequence:  e.Sequence,
		Type:      string(e.Type),
		Timestamp: e.Timestamp,
		Actor:     e.Actor.Hex(),
		Subject:   addressString(e.Subject),
		ActionID:  e.ActionID,
		Enabled:   e.Enabled,
		Reason:    e.Reason,
		PrevHash:  e.PrevHash.Hex(),
		Hash:      e.Hash.Hex(),
	}
	if e.ActionType != nil {
		v := uint8(*e.ActionType)
		m.ActionType = &v
	}
	if e.OldRole != nil {
		v := uint8(*e.OldRole)
		m.OldRole = &v
	}
	if e.NewRole != nil {
		v := uint8(*e.NewRole)
		m.NewRole = &v
	}
	if e.Amount != nil {
		v := e.Amount.String()
		m.Amount = &v
	}
	return m
}

func fromEventModel(m types.EventModel) (types.Event, error) {
	e := types.Event{
		Sequence:  m.Sequence,
		Type:      types.EventType(m.Type),
		Timestamp: m.Timestamp,
		Actor:     parseAddress(m.Actor),
		Subject:   parseAddress(m.Subject),
		ActionID:  m.ActionID,
		Enabled:   m.Enabled,
		Reason:    m.Reason,
		PrevHash:  common.HexToHash(m.PrevHash),
		Hash:      common.HexToHash(m.Hash),
	}
	if m.ActionType != nil {
		v := types.ActionType(*m.ActionType)
		e.ActionType = &v
	}
	if m.OldRole != nil {
		v := types.AdminRole(*m.OldRole)
		e.OldRole = &v
	}
	if m.NewRole != nil {
		v := types.AdminRole(*m.NewRole)
		e.NewRole = &v
	}
	if m.Amount != nil {
		v, err := parseAmount(*m.Amount)
		if err != nil {
			return e, err
		}
		e.Amount = v
	}
	return e, nil
}

func toPendingTransferModel(p types.PendingTransfer) types.PendingTransferModel {
	return types.PendingTransferModel{
		TxHash:   p.TxHash.Hex(),
		Method:   p.Method,
		Account:  addressString(p.Account),
		Amount:   amountString(p.Amount),
		Sequence: p.Sequence,
	}
}
