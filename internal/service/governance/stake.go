package governance

import (
	"context"
	"fmt"
	"math/big"

	"governance-backend/internal/types"
	"governance-backend/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

// rewardPrecision accRewardPerShare的精度
var rewardPrecision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// accumulated stake * acc / 1e18
func accumulated(stake, acc *big.Int) *big.Int {
	v := new(big.Int).Mul(stake, acc)
	return v.Quo(v, rewardPrecision)
}

// pendingOf 已结算奖励加未结算部分
func pendingOf(rec types.StakeRecord, acc *big.Int) *big.Int {
	pending := new(big.Int).Sub(accumulated(rec.StakedAmount, acc), rec.RewardDebt)
	if pending.Sign() < 0 {
		pending.SetInt64(0)
	}
	return pending.Add(pending, rec.AccruedRewards)
}

// settle 质押变动前结算奖励
func (tx *txn) settle(rec *types.StakeRecord) {
	rec.AccruedRewards = pendingOf(*rec, tx.meta.AccRewardPerShare)
}

// resetDebt 质押变动后重置水位
func (tx *txn) resetDebt(rec *types.StakeRecord) {
	rec.RewardDebt = accumulated(rec.StakedAmount, tx.meta.AccRewardPerShare)
}

// slash 按比例罚没，罚没额进入奖励池并按其他质押者份额分配
func (tx *txn) slash(p Params, actor, target common.Address, reason string, actionID uint64) error {
	rec := tx.stake(target)
	if rec.StakedAmount.Sign() == 0 {
		return ErrNoStakeToSlash
	}
	tx.settle(&rec)

	amount := new(big.Int).Mul(rec.StakedAmount, new(big.Int).SetUint64(p.SlashPercentage))
	amount.Quo(amount, big.NewInt(100))

	rec.StakedAmount = new(big.Int).Sub(rec.StakedAmount, amount)
	rec.SlashCount++
	tx.meta.TotalStaked = new(big.Int).Sub(tx.meta.TotalStaked, amount)
	tx.meta.RewardPool = new(big.Int).Add(tx.meta.RewardPool, amount)

	// 被罚者不参与本次分配；无其他质押时留在池中
	others := new(big.Int).Sub(tx.meta.TotalStaked, rec.StakedAmount)
	if others.Sign() > 0 && amount.Sign() > 0 {
		inc := new(big.Int).Mul(amount, rewardPrecision)
		inc.Quo(inc, others)
		tx.meta.AccRewardPerShare = new(big.Int).Add(tx.meta.AccRewardPerShare, inc)
	}
	tx.resetDebt(&rec)
	tx.putStake(rec)

	tx.emit(types.Event{
		Type:     types.EventAdminSlashed,
		Actor:    actor,
		Subject:  target,
		ActionID: actionID,
		Amount:   amountPtr(amount),
		Reason:   reason,
	})

	if rec.SlashCount >= p.MaxSlashCount {
		if a, ok := tx.serving(target); ok {
			if err := tx.deactivate(target, false, p.AdminFloor); err != nil {
				return err
			}
			tx.emit(types.Event{
				Type:     types.EventAdminDeactivated,
				Actor:    actor,
				Subject:  target,
				ActionID: actionID,
				OldRole:  rolePtr(a.Role),
				Reason:   fmt.Sprintf("slashed %d times", rec.SlashCount),
			})
		}
	}
	return nil
}

// StakeForAdmin 管理员质押，代币从调用者转入托管地址
func (s *service) StakeForAdmin(ctx context.Context, caller common.Address, amount *big.Int) error {
	err := s.mutate(ctx, "StakeForAdmin", caller, func(tx *txn) error {
		if err := tx.requireStaking(s.params); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if err := tx.requireActiveAdmin(caller); err != nil {
			return err
		}
		rec := tx.stake(caller)
		total := new(big.Int).Add(rec.StakedAmount, amount)
		if total.Cmp(s.params.MinimumStake) < 0 {
			return ErrInsufficientStake
		}

		tx.settle(&rec)
		rec.StakedAmount = total
		tx.resetDebt(&rec)
		tx.putStake(rec)
		tx.meta.TotalStaked = new(big.Int).Add(tx.meta.TotalStaked, amount)

		value := new(big.Int).Set(amount)
		custody := s.gateway.Custody()
		tx.deferEffect("transferFrom", caller, value, func(ctx context.Context) error {
			return s.gateway.TransferFrom(ctx, caller, custody, value)
		})
		tx.emit(types.Event{
			Type:    types.EventAdminStaked,
			Actor:   caller,
			Subject: caller,
			Amount:  amountPtr(amount),
		})
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("StakeForAdmin: ", "caller", caller.Hex(), "amount", amount.String())
	return nil
}

// WithdrawStake 在任管理员仅在紧急模式下可提取
func (s *service) WithdrawStake(ctx context.Context, caller common.Address, amount *big.Int) error {
	err := s.mutate(ctx, "WithdrawStake", caller, func(tx *txn) error {
		if err := tx.requireStaking(s.params); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if _, ok := tx.serving(caller); ok && !tx.meta.Emergency.EmergencyMode {
			return ErrActiveAdminWithdraw
		}
		rec := tx.stake(caller)
		if amount.Cmp(rec.StakedAmount) > 0 {
			return ErrWithdrawExceedsStake
		}

		tx.settle(&rec)
		rec.StakedAmount = new(big.Int).Sub(rec.StakedAmount, amount)
		tx.resetDebt(&rec)
		tx.putStake(rec)
		tx.meta.TotalStaked = new(big.Int).Sub(tx.meta.TotalStaked, amount)

		value := new(big.Int).Set(amount)
		tx.deferEffect("transfer", caller, value, func(ctx context.Context) error {
			return s.gateway.Transfer(ctx, caller, value)
		})
		tx.emit(types.Event{
			Type:    types.EventStakeWithdrawn,
			Actor:   caller,
			Subject: caller,
			Amount:  amountPtr(amount),
		})
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("WithdrawStake: ", "caller", caller.Hex(), "amount", amount.String())
	return nil
}

// ClaimRewards 领取按份额累计的奖励，受奖励池余额限制
func (s *service) ClaimRewards(ctx context.Context, caller common.Address) (*big.Int, error) {
	var paid *big.Int
	err := s.mutate(ctx, "ClaimRewards", caller, func(tx *txn) error {
		if err := tx.requireStaking(s.params); err != nil {
			return err
		}
		rec := tx.stake(caller)
		if rec.StakedAmount.Sign() == 0 {
			return ErrNoStakeToClaim
		}
		tx.settle(&rec)
		pay := new(big.Int).Set(rec.AccruedRewards)
		if pay.Cmp(tx.meta.RewardPool) > 0 {
			pay.Set(tx.meta.RewardPool)
		}
		if pay.Sign() == 0 {
			return ErrNoRewards
		}

		rec.AccruedRewards = new(big.Int).Sub(rec.AccruedRewards, pay)
		rec.RewardsClaimed = new(big.Int).Add(rec.RewardsClaimed, pay)
		tx.resetDebt(&rec)
		tx.putStake(rec)
		tx.meta.RewardPool = new(big.Int).Sub(tx.meta.RewardPool, pay)

		value := new(big.Int).Set(pay)
		tx.deferEffect("transfer", caller, value, func(ctx context.Context) error {
			return s.gateway.Transfer(ctx, caller, value)
		})
		tx.emit(types.Event{
			Type:    types.EventRewardsClaimed,
			Actor:   caller,
			Subject: caller,
			Amount:  amountPtr(pay),
		})
		paid = pay
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("ClaimRewards: ", "caller", caller.Hex(), "amount", paid.String())
	return paid, nil
}

// GetStake 质押记录，未知地址返回零值记录
func (s *service) GetStake(addr common.Address) types.StakeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.state.stakes[addr]; ok {
		return rec.Clone()
	}
	return types.NewStakeRecord(addr)
}

// PendingRewards 当前可领取奖励
func (s *service) PendingRewards(addr common.Address) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.state.stakes[addr]
	if !ok {
		return new(big.Int)
	}
	pending := pendingOf(rec, s.state.meta.AccRewardPerShare)
	if pending.Cmp(s.state.meta.RewardPool) > 0 {
		pending.Set(s.state.meta.RewardPool)
	}
	return pending
}

// StakingStats 质押全局统计
func (s *service) StakingStats() types.StakingStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return types.StakingStats{
		Enabled:         s.params.StakingEnabled(),
		MinimumStake:    amountPtr(s.params.MinimumStake),
		SlashPercentage: s.params.SlashPercentage,
		MaxSlashCount:   s.params.MaxSlashCount,
		TotalStaked:     amountPtr(s.state.meta.TotalStaked),
		RewardPool:      amountPtr(s.state.meta.RewardPool),
	}
}
