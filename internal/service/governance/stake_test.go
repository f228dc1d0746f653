package governance

import (
	"context"
	"math/big"
	"testing"

	"governance-backend/internal/types"
	"governance-backend/pkg/token"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slashOnce 提议、确认并执行一次罚没
func (f *fixture) slashOnce(t *testing.T, proposer, target common.Address) {
	t.Helper()
	ctx := context.Background()
	id, err := f.svc.ProposeSlashAdmin(ctx, proposer, target, "missed duty")
	require.NoError(t, err)
	f.passAction(t, id)
	require.NoError(t, f.svc.ExecuteSlash(ctx, proposer, id))
}

func TestStakeForAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	a := f.admins[0]
	f.fund(t, a, 5000)

	err := f.svc.StakeForAdmin(ctx, a, big.NewInt(500))
	assert.ErrorIs(t, err, ErrInsufficientStake)
	assert.Equal(t, KindInsufficientResource, KindOf(err))
	assert.ErrorIs(t, f.svc.StakeForAdmin(ctx, a, big.NewInt(0)), ErrInvalidAmount)
	assert.ErrorIs(t, f.svc.StakeForAdmin(ctx, addrN(404), big.NewInt(2000)), ErrCallerNotAdmin)

	require.NoError(t, f.svc.StakeForAdmin(ctx, a, big.NewInt(1000)))
	// 已有质押时追加额可低于最低值
	require.NoError(t, f.svc.StakeForAdmin(ctx, a, big.NewInt(500)))

	rec := f.svc.GetStake(a)
	assert.Equal(t, int64(1500), rec.StakedAmount.Int64())
	assert.Equal(t, int64(1500), f.svc.StakingStats().TotalStaked.Int64())

	bal, err := f.token.BalanceOf(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), bal.Int64())
	custody, err := f.token.BalanceOf(ctx, custodyAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), custody.Int64())

	info := f.svc.GetAdminInfo(a)
	assert.Equal(t, int64(1500), info.StakedAmount.Int64())
}

func TestStakeForAdmin_InsufficientAllowance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	a := f.admins[0]
	require.NoError(t, f.token.Mint(a, big.NewInt(5000)))

	err := f.svc.StakeForAdmin(ctx, a, big.NewInt(2000))
	assert.ErrorIs(t, err, ErrTokenTransferFailed)
	assert.Equal(t, int64(0), f.svc.GetStake(a).StakedAmount.Int64())
}

func TestSlash_Arithmetic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	target, other := f.admins[3], f.admins[1]
	f.fund(t, target, 2000)
	f.fund(t, other, 2000)
	require.NoError(t, f.svc.StakeForAdmin(ctx, target, big.NewInt(2000)))
	require.NoError(t, f.svc.StakeForAdmin(ctx, other, big.NewInt(2000)))

	f.slashOnce(t, f.admins[0], target)

	rec := f.svc.GetStake(target)
	assert.Equal(t, int64(1800), rec.StakedAmount.Int64())
	assert.Equal(t, uint64(1), rec.SlashCount)
	stats := f.svc.StakingStats()
	assert.Equal(t, int64(200), stats.RewardPool.Int64())
	assert.Equal(t, int64(3800), stats.TotalStaked.Int64())
	assert.True(t, f.svc.IsAdmin(target))

	slashed, _ := f.svc.ListEvents(types.EventFilter{Types: []types.EventType{types.EventAdminSlashed}})
	require.Len(t, slashed, 1)
	assert.Equal(t, int64(200), slashed[0].Amount.Int64())
	assert.Equal(t, target, slashed[0].Subject)

	// 被罚者不分得自己的罚没
	assert.Equal(t, int64(0), f.svc.PendingRewards(target).Int64())
	assert.Equal(t, int64(200), f.svc.PendingRewards(other).Int64())

	_, err := f.svc.ClaimRewards(ctx, target)
	assert.ErrorIs(t, err, ErrNoRewards)

	paid, err := f.svc.ClaimRewards(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, int64(200), paid.Int64())
	assert.Equal(t, int64(0), f.svc.StakingStats().RewardPool.Int64())
	assert.Equal(t, int64(200), f.svc.GetStake(other).RewardsClaimed.Int64())
	bal, err := f.token.BalanceOf(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, int64(200), bal.Int64())

	_, err = f.svc.ClaimRewards(ctx, other)
	assert.ErrorIs(t, err, ErrNoRewards)
	_, err = f.svc.ClaimRewards(ctx, addrN(404))
	assert.ErrorIs(t, err, ErrNoStakeToClaim)
}

func TestSlash_ProRataSplit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	target, small, large := f.admins[3], f.admins[1], f.admins[2]
	f.fund(t, target, 10000)
	f.fund(t, small, 1000)
	f.fund(t, large, 3000)
	require.NoError(t, f.svc.StakeForAdmin(ctx, target, big.NewInt(10000)))
	require.NoError(t, f.svc.StakeForAdmin(ctx, small, big.NewInt(1000)))
	require.NoError(t, f.svc.StakeForAdmin(ctx, large, big.NewInt(3000)))

	f.slashOnce(t, f.admins[0], target)

	assert.Equal(t, int64(250), f.svc.PendingRewards(small).Int64())
	assert.Equal(t, int64(750), f.svc.PendingRewards(large).Int64())

	// 后加入的质押不分得之前的罚没
	late := f.admins[0]
	f.fund(t, late, 4000)
	require.NoError(t, f.svc.StakeForAdmin(ctx, late, big.NewInt(4000)))
	assert.Equal(t, int64(0), f.svc.PendingRewards(late).Int64())

	paid, err := f.svc.ClaimRewards(ctx, small)
	require.NoError(t, err)
	assert.Equal(t, int64(250), paid.Int64())
	assert.Equal(t, int64(750), f.svc.StakingStats().RewardPool.Int64())
	assert.Equal(t, int64(750), f.svc.PendingRewards(large).Int64())
}

func TestSlash_NoOtherStakersLeavesPool(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	target := f.admins[3]
	f.fund(t, target, 2000)
	require.NoError(t, f.svc.StakeForAdmin(ctx, target, big.NewInt(2000)))

	f.slashOnce(t, f.admins[0], target)
	assert.Equal(t, int64(200), f.svc.StakingStats().RewardPool.Int64())
	_, err := f.svc.ClaimRewards(ctx, target)
	assert.ErrorIs(t, err, ErrNoRewards)
}

func TestSlash_ThreeStrikesDeactivates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	target := f.admins[3]
	f.fund(t, target, 2000)
	require.NoError(t, f.svc.StakeForAdmin(ctx, target, big.NewInt(2000)))

	f.slashOnce(t, f.admins[0], target)
	f.slashOnce(t, f.admins[0], target)
	assert.True(t, f.svc.IsAdmin(target))
	f.slashOnce(t, f.admins[0], target)

	rec := f.svc.GetStake(target)
	assert.Equal(t, int64(1458), rec.StakedAmount.Int64())
	assert.Equal(t, uint64(3), rec.SlashCount)
	assert.Equal(t, int64(542), f.svc.StakingStats().RewardPool.Int64())

	info := f.svc.GetAdminInfo(target)
	assert.False(t, info.IsActive)
	assert.Equal(t, types.RoleSuperAdmin, info.Role)
	assert.False(t, f.svc.IsAdmin(target))
	assert.Equal(t, uint64(3), f.svc.TotalAdmins())
	assert.Equal(t, uint64(2), f.svc.RequiredConfirmations())

	deactivated, _ := f.svc.ListEvents(types.EventFilter{Types: []types.EventType{types.EventAdminDeactivated}})
	require.Len(t, deactivated, 1)
	assert.Equal(t, target, deactivated[0].Subject)

	// 停用后可取回剩余质押
	require.NoError(t, f.svc.WithdrawStake(ctx, target, big.NewInt(1458)))
	bal, err := f.token.BalanceOf(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, int64(1458), bal.Int64())
}

func TestSlash_DeactivationRespectsFloor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	target := f.admins[2]
	f.fund(t, target, 2000)
	require.NoError(t, f.svc.StakeForAdmin(ctx, target, big.NewInt(2000)))

	f.slashOnce(t, f.admins[0], target)
	f.slashOnce(t, f.admins[0], target)

	id, err := f.svc.ProposeSlashAdmin(ctx, f.admins[0], target, "third strike")
	require.NoError(t, err)
	f.passAction(t, id)
	err = f.svc.ExecuteSlash(ctx, f.admins[0], id)
	assert.ErrorIs(t, err, ErrBelowAdminFloor)

	rec := f.svc.GetStake(target)
	assert.Equal(t, uint64(2), rec.SlashCount)
	assert.Equal(t, int64(1620), rec.StakedAmount.Int64())
	assert.True(t, f.svc.IsAdmin(target))
	assert.True(t, f.svc.CanExecuteAction(id))
}

func TestWithdrawStake_LockedWhileServing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	super := f.admins[0]
	leaving := f.admins[3]
	f.fund(t, leaving, 2500)
	require.NoError(t, f.svc.StakeForAdmin(ctx, leaving, big.NewInt(2500)))

	err := f.svc.WithdrawStake(ctx, leaving, big.NewInt(100))
	assert.ErrorIs(t, err, ErrActiveAdminWithdraw)
	assert.Equal(t, "Active admins cannot withdraw stake", err.Error())

	require.NoError(t, f.svc.RemoveAdmin(ctx, super, leaving))
	assert.ErrorIs(t, f.svc.WithdrawStake(ctx, leaving, big.NewInt(2501)), ErrWithdrawExceedsStake)
	assert.ErrorIs(t, f.svc.WithdrawStake(ctx, leaving, big.NewInt(0)), ErrInvalidAmount)

	require.NoError(t, f.svc.WithdrawStake(ctx, leaving, big.NewInt(1000)))
	assert.Equal(t, int64(1500), f.svc.GetStake(leaving).StakedAmount.Int64())
	bal, err := f.token.BalanceOf(ctx, leaving)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal.Int64())
	assert.Equal(t, int64(1500), f.svc.StakingStats().TotalStaked.Int64())

	withdrawn, _ := f.svc.ListEvents(types.EventFilter{Types: []types.EventType{types.EventStakeWithdrawn}})
	require.Len(t, withdrawn, 1)
	assert.Equal(t, int64(1000), withdrawn[0].Amount.Int64())
}

func TestStaking_DisabledInBasicMode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 1, basicMode)
	a := f.admins[0]

	assert.ErrorIs(t, f.svc.StakeForAdmin(ctx, a, big.NewInt(1000)), ErrStakingDisabled)
	assert.ErrorIs(t, f.svc.WithdrawStake(ctx, a, big.NewInt(1000)), ErrStakingDisabled)
	_, err := f.svc.ClaimRewards(ctx, a)
	assert.ErrorIs(t, err, ErrStakingDisabled)
	_, err = f.svc.ProposeSlashAdmin(ctx, a, a, "")
	assert.ErrorIs(t, err, ErrStakingDisabled)
	assert.False(t, f.svc.StakingStats().Enabled)
}

func TestWithdrawStake_UnconfirmedTransferKeepsDebit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	leaving := f.admins[3]
	f.fund(t, leaving, 2000)
	require.NoError(t, f.svc.StakeForAdmin(ctx, leaving, big.NewInt(2000)))
	require.NoError(t, f.svc.RemoveAdmin(ctx, f.admins[0], leaving))

	txHash := common.HexToHash("0xfeed")
	f.token.FailNext(&token.PendingError{Method: "transfer", TxHash: txHash, Err: context.DeadlineExceeded})
	require.NoError(t, f.svc.WithdrawStake(ctx, leaving, big.NewInt(1500)))

	assert.Equal(t, int64(500), f.svc.GetStake(leaving).StakedAmount.Int64())
	assert.Equal(t, int64(500), f.svc.StakingStats().TotalStaked.Int64())

	pending := f.store.PendingTransfers()
	require.Len(t, pending, 1)
	assert.Equal(t, txHash, pending[0].TxHash)
	assert.Equal(t, leaving, pending[0].Account)
	assert.Equal(t, int64(1500), pending[0].Amount.Int64())

	withdrawn, _ := f.svc.ListEvents(types.EventFilter{Types: []types.EventType{types.EventStakeWithdrawn}})
	require.Len(t, withdrawn, 1)
	assert.Equal(t, withdrawn[0].Sequence, pending[0].Sequence)

	// 重试只能提取剩余部分
	assert.ErrorIs(t, f.svc.WithdrawStake(ctx, leaving, big.NewInt(1500)), ErrWithdrawExceedsStake)
}

func TestWithdrawStake_CallerCancelDoesNotAbortTransfer(t *testing.T) {
	f := newFixture(t, 4)
	leaving := f.admins[3]
	f.fund(t, leaving, 2000)
	require.NoError(t, f.svc.StakeForAdmin(context.Background(), leaving, big.NewInt(2000)))
	require.NoError(t, f.svc.RemoveAdmin(context.Background(), f.admins[0], leaving))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.svc.WithdrawStake(ctx, leaving, big.NewInt(2000)))
	assert.Equal(t, int64(0), f.svc.GetStake(leaving).StakedAmount.Int64())
	assert.Empty(t, f.store.PendingTransfers())
}
