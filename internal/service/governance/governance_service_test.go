package governance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"governance-backend/internal/config"
	"governance-backend/internal/types"
	"governance-backend/pkg/token"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var custodyAddr = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func addrN(n int) common.Address {
	return common.HexToAddress(fmt.Sprintf("0x%040x", n))
}

type fixture struct {
	svc    Service
	store  *MemoryStore
	token  *token.MemoryToken
	clock  *testClock
	admins []common.Address
}

func newFixture(t *testing.T, n int, tweaks ...func(*Params)) *fixture {
	t.Helper()
	admins := make([]common.Address, n)
	for i := range admins {
		admins[i] = addrN(i + 1)
	}
	params := DefaultParams()
	params.InitialAdmins = admins
	for _, tweak := range tweaks {
		tweak(&params)
	}

	f := &fixture{
		store:  NewMemoryStore(),
		token:  token.NewMemoryToken(custodyAddr),
		clock:  newTestClock(),
		admins: admins,
	}
	var gw token.Gateway
	if params.StakingEnabled() {
		gw = f.token
	}
	svc, err := NewService(context.Background(), params, f.store, gw, WithClock(f.clock.Now))
	require.NoError(t, err)
	f.svc = svc
	return f
}

func basicMode(p *Params) {
	p.Mode = config.ModeBasic
	p.AdminFloor = 1
}

func (f *fixture) fund(t *testing.T, who common.Address, amount int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.token.Mint(who, big.NewInt(amount)))
	require.NoError(t, f.token.ApproveFor(ctx, who, custodyAddr, big.NewInt(amount)))
}

// passAction 由提议者以外的管理员确认直到达到阈值
func (f *fixture) passAction(t *testing.T, id uint64) {
	t.Helper()
	ctx := context.Background()
	for _, admin := range f.svc.GetAllAdmins() {
		if f.svc.CanExecuteAction(id) {
			return
		}
		a, ok := f.svc.GetPendingAction(id)
		require.True(t, ok)
		if a.HasConfirmed(admin.Address) {
			continue
		}
		require.NoError(t, f.svc.ConfirmAction(ctx, admin.Address, id))
	}
	require.True(t, f.svc.CanExecuteAction(id))
}

func eventTypes(events []types.Event) []types.EventType {
	out := make([]types.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func TestNewService_Genesis(t *testing.T) {
	f := newFixture(t, 3)

	assert.Equal(t, uint64(3), f.svc.TotalAdmins())
	assert.Equal(t, uint64(2), f.svc.RequiredConfirmations())
	for _, a := range f.admins {
		assert.Equal(t, types.RoleSuperAdmin, f.svc.GetAdminRole(a))
		assert.True(t, f.svc.IsAdmin(a))
	}

	events, total := f.svc.ListEvents(types.EventFilter{Ascending: true})
	require.Equal(t, 3, total)
	for _, e := range events {
		assert.Equal(t, types.EventAdminAdded, e.Type)
	}
	assert.True(t, f.svc.VerifyEventLog().Valid)
	assert.Equal(t, 1, f.store.Commits())
}

func TestNewService_GenesisValidation(t *testing.T) {
	ctx := context.Background()
	tok := token.NewMemoryToken(custodyAddr)

	params := DefaultParams()
	params.InitialAdmins = []common.Address{addrN(1), addrN(2)}
	_, err := NewService(ctx, params, NewMemoryStore(), tok)
	assert.ErrorIs(t, err, ErrNotEnoughInitialAdmins)

	params.InitialAdmins = []common.Address{addrN(1), addrN(2), addrN(2)}
	_, err = NewService(ctx, params, NewMemoryStore(), tok)
	assert.ErrorIs(t, err, ErrAlreadyAdmin)

	params.InitialAdmins = []common.Address{addrN(1), addrN(2), {}}
	_, err = NewService(ctx, params, NewMemoryStore(), tok)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	params.InitialAdmins = []common.Address{addrN(1), addrN(2), addrN(3)}
	_, err = NewService(ctx, params, NewMemoryStore(), nil)
	assert.ErrorIs(t, err, ErrInvalidStakingToken)

	basic := DefaultParams()
	basicMode(&basic)
	basic.InitialAdmins = []common.Address{addrN(1)}
	svc, err := NewService(ctx, basic, NewMemoryStore(), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), svc.RequiredConfirmations())
}

func TestNewService_RestoresFromStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	newAdmin := addrN(10)
	require.NoError(t, f.svc.AddAdmin(ctx, f.admins[0], newAdmin, types.RoleVoteAdmin))
	id, err := f.svc.ProposeRemoveAdmin(ctx, f.admins[0], newAdmin, "rotate")
	require.NoError(t, err)

	params := DefaultParams()
	params.InitialAdmins = f.admins
	restored, err := NewService(ctx, params, f.store, f.token, WithClock(f.clock.Now))
	require.NoError(t, err)

	assert.Equal(t, uint64(4), restored.TotalAdmins())
	assert.Equal(t, uint64(3), restored.RequiredConfirmations())
	assert.Equal(t, types.RoleVoteAdmin, restored.GetAdminRole(newAdmin))
	action, ok := restored.GetPendingAction(id)
	require.True(t, ok)
	assert.Equal(t, types.ActionRemoveAdmin, action.ActionType)
	assert.Equal(t, f.svc.VerifyEventLog(), restored.VerifyEventLog())
	assert.True(t, restored.VerifyEventLog().Valid)

	next, err := restored.ProposeAddAdmin(ctx, f.admins[1], addrN(11), types.RoleTeamManager, "")
	require.NoError(t, err)
	assert.Equal(t, id+1, next)
}

func TestMutate_TokenFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	a := f.admins[0]
	f.fund(t, a, 5000)

	_, before := f.svc.ListEvents(types.EventFilter{})
	f.token.FailNext(errors.New("rpc unavailable"))
	err := f.svc.StakeForAdmin(ctx, a, big.NewInt(2000))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenTransferFailed)
	assert.Equal(t, KindExternal, KindOf(err))

	assert.Equal(t, int64(0), f.svc.GetStake(a).StakedAmount.Int64())
	assert.Equal(t, int64(0), f.svc.StakingStats().TotalStaked.Int64())
	_, after := f.svc.ListEvents(types.EventFilter{})
	assert.Equal(t, before, after)

	require.NoError(t, f.svc.StakeForAdmin(ctx, a, big.NewInt(2000)))
	assert.Equal(t, int64(2000), f.svc.GetStake(a).StakedAmount.Int64())
}

type failingStore struct {
	*MemoryStore
	fail bool
}

func (s *failingStore) Commit(ctx context.Context, changes *types.LedgerChangeSet, effects func(ctx context.Context) error) error {
	if s.fail {
		return errors.New("connection reset")
	}
	return s.MemoryStore.Commit(ctx, changes, effects)
}

func TestMutate_PersistenceFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: NewMemoryStore()}
	params := DefaultParams()
	basicMode(&params)
	params.InitialAdmins = []common.Address{addrN(1)}
	svc, err := NewService(ctx, params, store, nil)
	require.NoError(t, err)

	store.fail = true
	err = svc.AddAdmin(ctx, addrN(1), addrN(2), types.RoleTeamManager)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.False(t, svc.IsAdmin(addrN(2)))
	assert.Equal(t, uint64(1), svc.TotalAdmins())

	store.fail = false
	require.NoError(t, svc.AddAdmin(ctx, addrN(1), addrN(2), types.RoleTeamManager))
	assert.True(t, svc.IsAdmin(addrN(2)))
}

func TestSubscribe_ReceivesCommittedEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)

	var got []types.Event
	f.svc.Subscribe(func(events []types.Event) {
		got = append(got, events...)
	})

	require.NoError(t, f.svc.AddAdmin(ctx, f.admins[0], addrN(9), types.RoleTeamManager))
	require.Error(t, f.svc.AddAdmin(ctx, f.admins[0], addrN(9), types.RoleTeamManager))

	require.Len(t, got, 1)
	assert.Equal(t, types.EventAdminAdded, got[0].Type)
	assert.Equal(t, addrN(9), got[0].Subject)
	assert.Equal(t, uint64(4), got[0].Sequence)
}

func TestSubscribe_DeliversInCommitOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)

	var (
		mu      sync.Mutex
		seqs    []uint64
		blocked bool
	)
	entered := make(chan struct{})
	release := make(chan struct{})
	f.svc.Subscribe(func(events []types.Event) {
		mu.Lock()
		first := !blocked
		blocked = true
		mu.Unlock()
		if first {
			close(entered)
			<-release
		}
		mu.Lock()
		seqs = append(seqs, events[0].Sequence)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := f.svc.ProposeAddAdmin(ctx, f.admins[0], addrN(10), types.RoleTeamManager, "first")
		assert.NoError(t, err)
	}()
	<-entered
	go func() {
		defer wg.Done()
		_, err := f.svc.ProposeAddAdmin(ctx, f.admins[1], addrN(11), types.RoleTeamManager, "second")
		assert.NoError(t, err)
	}()

	// 第二次提交已并入账本，但回调须等第一批投递完
	require.Eventually(t, func() bool { return f.svc.GetPendingActionsCount() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, seqs)
	mu.Unlock()

	close(release)
	wg.Wait()
	require.Len(t, seqs, 2)
	assert.Less(t, seqs[0], seqs[1])
}

func TestEventLog_TamperDetected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	require.NoError(t, f.svc.AddAdmin(ctx, f.admins[0], addrN(9), types.RoleTeamManager))

	events, _ := f.svc.ListEvents(types.EventFilter{Ascending: true})
	require.True(t, VerifyChain(events).Valid)

	tampered := append([]types.Event(nil), events...)
	tampered[1].Subject = addrN(42)
	v := VerifyChain(tampered)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Message, "sequence 2")

	dropped := append([]types.Event{}, events[:1]...)
	dropped = append(dropped, events[2:]...)
	assert.False(t, VerifyChain(dropped).Valid)
}

func TestListEvents_Filter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	target := addrN(9)
	id, err := f.svc.ProposeAddAdmin(ctx, f.admins[0], target, types.RoleTeamManager, "new member")
	require.NoError(t, err)
	require.NoError(t, f.svc.ConfirmAction(ctx, f.admins[1], id))

	events, total := f.svc.ListEvents(types.EventFilter{ActionID: id})
	require.Equal(t, 2, total)
	assert.Equal(t, []types.EventType{types.EventActionConfirmed, types.EventActionProposed}, eventTypes(events))

	events, total = f.svc.ListEvents(types.EventFilter{Types: []types.EventType{types.EventAdminAdded}, Limit: 2})
	assert.Equal(t, 3, total)
	assert.Len(t, events, 2)

	who := f.admins[1]
	events, _ = f.svc.ListEvents(types.EventFilter{Address: &who, Ascending: true})
	assert.Equal(t, []types.EventType{types.EventAdminAdded, types.EventActionConfirmed}, eventTypes(events))
}

func TestConcurrentExecute_ExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)
	id, err := f.svc.ProposeAddAdmin(ctx, f.admins[0], addrN(50), types.RoleTeamManager, "")
	require.NoError(t, err)
	f.passAction(t, id)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		executed  int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(caller common.Address) {
			defer wg.Done()
			err := f.svc.ExecuteAction(ctx, caller, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrActionExecuted):
				executed++
			}
		}(f.admins[i%len(f.admins)])
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 19, executed)
	assert.Equal(t, uint64(6), f.svc.TotalAdmins())
	assert.True(t, f.svc.VerifyEventLog().Valid)
}

func TestConcurrentConfirmAndRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 3)
	for i := 4; i <= 10; i++ {
		require.NoError(t, f.svc.AddAdmin(ctx, f.admins[0], addrN(i), types.RoleTeamManager))
	}
	id, err := f.svc.ProposeAddAdmin(ctx, f.admins[0], addrN(99), types.RoleTeamManager, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, admin := range f.svc.GetAllAdmins() {
		wg.Add(2)
		go func(a common.Address) {
			defer wg.Done()
			_ = f.svc.ConfirmAction(ctx, a, id)
		}(admin.Address)
		go func() {
			defer wg.Done()
			action, ok := f.svc.GetPendingAction(id)
			if ok {
				assert.Equal(t, uint64(len(action.Confirmers)), action.Confirmations)
			}
		}()
	}
	wg.Wait()

	action, ok := f.svc.GetPendingAction(id)
	require.True(t, ok)
	assert.Equal(t, uint64(10), action.Confirmations)
	assert.Len(t, action.Confirmers, 10)
}
