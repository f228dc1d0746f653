package governance

import (
	"context"
	"math/big"
	"testing"
	"time"

	"governance-backend/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiSigAddAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	a, b, c := f.admins[0], f.admins[1], f.admins[2]
	x := addrN(100)

	id, err := f.svc.ProposeAddAdmin(ctx, a, x, types.RoleTeamManager, "new team manager")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	action, ok := f.svc.GetPendingAction(id)
	require.True(t, ok)
	assert.Equal(t, uint64(1), action.Confirmations)
	assert.Equal(t, uint64(2), action.RequiredConfirmations)
	assert.Equal(t, f.clock.Now().Unix()+604800, action.Deadline)
	assert.False(t, f.svc.CanExecuteAction(id))
	assert.ErrorIs(t, f.svc.ExecuteAction(ctx, c, id), ErrInsufficientConfirmations)

	require.NoError(t, f.svc.ConfirmAction(ctx, b, id))
	action, _ = f.svc.GetPendingAction(id)
	assert.Equal(t, uint64(2), action.Confirmations)
	assert.True(t, f.svc.CanExecuteAction(id))

	require.NoError(t, f.svc.ExecuteAction(ctx, c, id))
	assert.True(t, f.svc.HasRole(x, types.RoleTeamManager))
	assert.Equal(t, types.RoleTeamManager, f.svc.GetAdminRole(x))
	assert.Equal(t, uint64(4), f.svc.TotalAdmins())
	assert.Equal(t, uint64(3), f.svc.RequiredConfirmations())

	action, _ = f.svc.GetPendingAction(id)
	assert.True(t, action.Executed)
	assert.Equal(t, types.ActionStatusExecuted, action.Status(f.clock.Now().Unix()))
	assert.False(t, f.svc.CanExecuteAction(id))

	events, _ := f.svc.ListEvents(types.EventFilter{Limit: 2})
	assert.Equal(t, []types.EventType{types.EventActionExecuted, types.EventAdminAdded}, eventTypes(events))
	assert.Equal(t, id, events[1].ActionID)

	assert.ErrorIs(t, f.svc.ExecuteAction(ctx, a, id), ErrActionExecuted)
	assert.ErrorIs(t, f.svc.ConfirmAction(ctx, x, id), ErrActionExecuted)
}

func TestConfirmAction_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	a, b := f.admins[0], f.admins[1]

	id, err := f.svc.ProposeRemoveAdmin(ctx, a, f.admins[4], "inactive")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.ConfirmAction(ctx, a, id), ErrAlreadyConfirmed)

	require.NoError(t, f.svc.ConfirmAction(ctx, b, id))
	err = f.svc.ConfirmAction(ctx, b, id)
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
	assert.Equal(t, KindStateConflict, KindOf(err))
	action, _ := f.svc.GetPendingAction(id)
	assert.Equal(t, uint64(2), action.Confirmations)

	assert.ErrorIs(t, f.svc.ConfirmAction(ctx, addrN(404), id), ErrCallerNotAdmin)
	assert.ErrorIs(t, f.svc.ConfirmAction(ctx, b, 0), ErrInvalidActionID)
	assert.ErrorIs(t, f.svc.ConfirmAction(ctx, b, 99), ErrInvalidActionID)
}

func TestConfirmAction_DeadlineBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	a := f.admins[0]

	first, err := f.svc.ProposeAddAdmin(ctx, a, addrN(100), types.RoleTeamManager, "")
	require.NoError(t, err)
	second, err := f.svc.ProposeAddAdmin(ctx, a, addrN(101), types.RoleTeamManager, "")
	require.NoError(t, err)

	f.clock.Advance(7 * 24 * time.Hour)
	require.NoError(t, f.svc.ConfirmAction(ctx, f.admins[1], first))
	status, ok := f.svc.ActionStatus(first)
	require.True(t, ok)
	assert.Equal(t, types.ActionStatusPending, status)

	f.clock.Advance(time.Second)
	err = f.svc.ConfirmAction(ctx, f.admins[1], second)
	assert.ErrorIs(t, err, ErrActionExpired)
	assert.Equal(t, KindTemporal, KindOf(err))
	status, _ = f.svc.ActionStatus(second)
	assert.Equal(t, types.ActionStatusExpired, status)

	assert.ErrorIs(t, f.svc.ConfirmAction(ctx, f.admins[2], first), ErrActionExpired)
}

func TestExecuteAction_ExpiredCannotExecute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	id, err := f.svc.ProposeAddAdmin(ctx, f.admins[0], addrN(100), types.RoleTeamManager, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.ConfirmAction(ctx, f.admins[1], id))

	f.clock.Advance(7*24*time.Hour + time.Second)
	assert.False(t, f.svc.CanExecuteAction(id))
	assert.ErrorIs(t, f.svc.ExecuteAction(ctx, f.admins[2], id), ErrActionExpired)
	assert.False(t, f.svc.IsAdmin(addrN(100)))

	open := f.svc.ListPendingActions(types.ActionFilter{OpenOnly: true})
	assert.Empty(t, open)
	all := f.svc.ListPendingActions(types.ActionFilter{})
	assert.Len(t, all, 1)
}

func TestExecuteAction_LiveThresholdRaisesSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	super := f.admins[0]

	id, err := f.svc.ProposeAddAdmin(ctx, super, addrN(100), types.RoleTeamManager, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.AddAdmin(ctx, super, addrN(101), types.RoleTeamManager))
	require.NoError(t, f.svc.ConfirmAction(ctx, f.admins[1], id))

	action, _ := f.svc.GetPendingAction(id)
	assert.Equal(t, uint64(2), action.RequiredConfirmations)
	assert.Equal(t, uint64(3), f.svc.RequiredConfirmations())
	assert.False(t, f.svc.CanExecuteAction(id))
	assert.ErrorIs(t, f.svc.ExecuteAction(ctx, super, id), ErrInsufficientConfirmations)

	require.NoError(t, f.svc.ConfirmAction(ctx, addrN(101), id))
	require.NoError(t, f.svc.ExecuteAction(ctx, super, id))
}

func TestExecuteAction_RevalidatesTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	super := f.admins[0]
	target := addrN(100)

	id, err := f.svc.ProposeAddAdmin(ctx, super, target, types.RoleTeamManager, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.ConfirmAction(ctx, f.admins[1], id))
	require.NoError(t, f.svc.AddAdmin(ctx, super, target, types.RoleVoteAdmin))

	// 目标已被直接添加，执行时重新校验
	require.NoError(t, f.svc.ConfirmAction(ctx, f.admins[2], id))
	assert.ErrorIs(t, f.svc.ExecuteAction(ctx, super, id), ErrAlreadyAdmin)
	action, _ := f.svc.GetPendingAction(id)
	assert.False(t, action.Executed)
}

func TestProposeValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	super := f.admins[0]
	recovery := addrN(50)
	require.NoError(t, f.svc.AddAdmin(ctx, super, recovery, types.RoleRecoveryAdmin))

	_, err := f.svc.ProposeAddAdmin(ctx, recovery, addrN(51), types.RoleTeamManager, "")
	assert.ErrorIs(t, err, ErrInsufficientPrivileges)
	assert.Equal(t, "Insufficient admin privileges", err.Error())
	_, err = f.svc.ProposeSlashAdmin(ctx, recovery, super, "")
	assert.ErrorIs(t, err, ErrInsufficientPrivileges)

	_, err = f.svc.ProposeAddAdmin(ctx, super, super, types.RoleTeamManager, "")
	assert.ErrorIs(t, err, ErrAlreadyAdmin)
	_, err = f.svc.ProposeAddAdmin(ctx, super, addrN(51), types.RoleNone, "")
	assert.ErrorIs(t, err, ErrInvalidRole)
	_, err = f.svc.ProposeRemoveAdmin(ctx, super, addrN(404), "")
	assert.ErrorIs(t, err, ErrNotAdmin)
	_, err = f.svc.ProposeRoleChange(ctx, super, recovery, types.RoleRecoveryAdmin, "")
	assert.ErrorIs(t, err, ErrSameRole)
	_, err = f.svc.ProposeSlashAdmin(ctx, super, recovery, "no stake")
	assert.ErrorIs(t, err, ErrNoStakeToSlash)

	require.NoError(t, f.svc.RemoveAdmin(ctx, super, recovery))
	_, err = f.svc.ProposeRemoveAdmin(ctx, super, f.admins[2], "")
	assert.ErrorIs(t, err, ErrBelowAdminFloor)

	assert.Equal(t, uint64(0), f.svc.GetPendingActionsCount())
}

func TestProposeRoleChange_Execute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	id, err := f.svc.ProposeRoleChange(ctx, f.admins[0], f.admins[2], types.RoleVoteAdmin, "")
	require.NoError(t, err)
	f.passAction(t, id)
	require.NoError(t, f.svc.ExecuteAction(ctx, f.admins[1], id))
	assert.Equal(t, types.RoleVoteAdmin, f.svc.GetAdminRole(f.admins[2]))
}

func TestProposeRemoveAdmin_Execute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	id, err := f.svc.ProposeRemoveAdmin(ctx, f.admins[0], f.admins[3], "")
	require.NoError(t, err)
	f.passAction(t, id)
	require.NoError(t, f.svc.ExecuteAction(ctx, f.admins[1], id))
	assert.False(t, f.svc.IsAdmin(f.admins[3]))
	assert.Equal(t, uint64(3), f.svc.TotalAdmins())
	assert.Equal(t, uint64(2), f.svc.RequiredConfirmations())
}

func TestActionIDs_Monotonic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	super := f.admins[0]

	first, err := f.svc.ProposeAddAdmin(ctx, super, addrN(100), types.RoleTeamManager, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.CancelAction(ctx, super, first))

	f.clock.Advance(8 * 24 * time.Hour)
	second, err := f.svc.ProposeAddAdmin(ctx, super, addrN(100), types.RoleTeamManager, "")
	require.NoError(t, err)
	f.clock.Advance(8 * 24 * time.Hour)
	third, err := f.svc.ProposeEmergencyAction(ctx, super, "drill")
	require.NoError(t, err)

	assert.Equal(t, []uint64{1, 2, 3}, []uint64{first, second, third})
	assert.Equal(t, uint64(3), f.svc.GetPendingActionsCount())

	tl, err := f.svc.ScheduleTimeLockAddAdmin(ctx, super, addrN(101), types.RoleTeamManager, 3600)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tl)
}

func TestCancelAction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	proposer, other := f.admins[0], f.admins[1]
	team := addrN(50)
	require.NoError(t, f.svc.AddAdmin(ctx, proposer, team, types.RoleTeamManager))

	id, err := f.svc.ProposeAddAdmin(ctx, proposer, addrN(100), types.RoleTeamManager, "")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.CancelAction(ctx, team, id), ErrNotProposer)
	require.NoError(t, f.svc.CancelAction(ctx, other, id))
	assert.ErrorIs(t, f.svc.CancelAction(ctx, proposer, id), ErrActionCancelled)
	assert.ErrorIs(t, f.svc.ConfirmAction(ctx, team, id), ErrActionCancelled)
	assert.ErrorIs(t, f.svc.ExecuteAction(ctx, proposer, id), ErrActionCancelled)
	assert.ErrorIs(t, f.svc.CancelAction(ctx, proposer, 42), ErrInvalidActionID)

	action, _ := f.svc.GetPendingAction(id)
	assert.True(t, action.Cancelled)
	assert.Equal(t, types.ActionStatusCancelled, action.Status(f.clock.Now().Unix()))

	executed, err := f.svc.ProposeAddAdmin(ctx, proposer, addrN(101), types.RoleTeamManager, "")
	require.NoError(t, err)
	f.passAction(t, executed)
	require.NoError(t, f.svc.ExecuteAction(ctx, proposer, executed))
	assert.ErrorIs(t, f.svc.CancelAction(ctx, proposer, executed), ErrActionExecuted)
}

func TestExecuteEntryPoints_TypeMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	target := f.admins[2]
	f.fund(t, target, 2000)
	require.NoError(t, f.svc.StakeForAdmin(ctx, target, big.NewInt(2000)))

	addID, err := f.svc.ProposeAddAdmin(ctx, f.admins[0], addrN(100), types.RoleTeamManager, "")
	require.NoError(t, err)
	slashID, err := f.svc.ProposeSlashAdmin(ctx, f.admins[0], target, "missed duty")
	require.NoError(t, err)
	f.passAction(t, addID)
	f.passAction(t, slashID)

	assert.ErrorIs(t, f.svc.ExecuteAction(ctx, f.admins[1], slashID), ErrWrongActionType)
	assert.ErrorIs(t, f.svc.ExecuteSlash(ctx, f.admins[1], addID), ErrWrongActionType)
}

func TestListPendingActions_Filter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)
	a, b := f.admins[0], f.admins[1]

	_, err := f.svc.ProposeAddAdmin(ctx, a, addrN(100), types.RoleTeamManager, "")
	require.NoError(t, err)
	_, err = f.svc.ProposeEmergencyAction(ctx, b, "")
	require.NoError(t, err)
	cancelled, err := f.svc.ProposeRemoveAdmin(ctx, b, f.admins[2], "")
	require.NoError(t, err)
	require.NoError(t, f.svc.CancelAction(ctx, b, cancelled))

	assert.Len(t, f.svc.ListPendingActions(types.ActionFilter{}), 3)
	assert.Len(t, f.svc.ListPendingActions(types.ActionFilter{OpenOnly: true}), 2)

	emergency := types.ActionEmergency
	got := f.svc.ListPendingActions(types.ActionFilter{Type: &emergency})
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].ID)

	got = f.svc.ListPendingActions(types.ActionFilter{Proposer: &b, OpenOnly: true})
	require.Len(t, got, 1)
	assert.Equal(t, types.ActionEmergency, got[0].ActionType)
}
