package governance

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	authHandler "governance-backend/internal/api/auth"
	tokenHandler "governance-backend/internal/api/token"
	"governance-backend/internal/middleware"
	governanceRepo "governance-backend/internal/repository/governance"
	"governance-backend/internal/repository/nonce"
	userRepo "governance-backend/internal/repository/user"
	"governance-backend/internal/service/auth"
	"governance-backend/internal/service/governance"
	"governance-backend/internal/types"
	"governance-backend/pkg/database"
	"governance-backend/pkg/database/migrations"
	"governance-backend/pkg/logger"
	"governance-backend/pkg/token"
	"governance-backend/pkg/utils"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *types.APIError `json:"error"`
}

type countingObserver struct{ codes []string }

func (o *countingObserver) ObserveRejection(code string) { o.codes = append(o.codes, code) }

type wallet struct {
	key   *ecdsa.PrivateKey
	addr  common.Address
	token string
}

type harness struct {
	t        *testing.T
	router   *gin.Engine
	svc      governance.Service
	mem      *token.MemoryToken
	admins   []*wallet
	observer *countingObserver
}

func newWallet(t *testing.T) *wallet {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return &wallet{key: key, addr: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewSQLiteConnection(":memory:")
	require.NoError(t, err)
	require.NoError(t, migrations.InitTables(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	h := &harness{t: t, observer: &countingObserver{}}
	params := governance.DefaultParams()
	for i := 0; i < 4; i++ {
		w := newWallet(t)
		h.admins = append(h.admins, w)
		params.InitialAdmins = append(params.InitialAdmins, w.addr)
	}

	h.mem = token.NewMemoryToken(common.HexToAddress("0x000000000000000000000000000000000000dEaD"))
	h.svc, err = governance.NewService(context.Background(), params, governanceRepo.NewRepository(db), h.mem)
	require.NoError(t, err)

	authSvc := auth.NewService(userRepo.NewRepository(db), nonce.NewMemoryRepository(nil), utils.NewJWTManager("test-secret", time.Hour, time.Hour), h.svc)

	h.router = gin.New()
	h.router.Use(middleware.RequestID())
	v1 := h.router.Group("/api/v1")
	authHandler.NewHandler(authSvc).RegisterRoutes(v1)
	NewHandler(h.svc, authSvc, h.observer).RegisterRoutes(v1)
	tokenHandler.NewHandler(h.mem, authSvc).RegisterRoutes(v1)

	for _, w := range h.admins {
		h.login(w)
	}
	return h
}

func (h *harness) do(method, path, bearer string, body interface{}) (int, envelope) {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (h *harness) login(w *wallet) {
	h.t.Helper()
	code, env := h.do(http.MethodPost, "/api/v1/auth/nonce", "", types.NonceRequest{WalletAddress: w.addr.Hex()})
	require.Equal(h.t, http.StatusOK, code)
	var challenge types.NonceResponse
	require.NoError(h.t, json.Unmarshal(env.Data, &challenge))

	message := challenge.Message
	sig, err := ethcrypto.Sign(accounts.TextHash([]byte(message)), w.key)
	require.NoError(h.t, err)
	sig[64] += 27

	code, env = h.do(http.MethodPost, "/api/v1/auth/wallet-connect", "", types.WalletConnectRequest{
		WalletAddress: w.addr.Hex(),
		Signature:     hexutil.Encode(sig),
		Message:       message,
	})
	require.Equal(h.t, http.StatusOK, code, string(env.Data))
	var resp types.WalletConnectResponse
	require.NoError(h.t, json.Unmarshal(env.Data, &resp))
	w.token = resp.AccessToken
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestReads(t *testing.T) {
	h := newHarness(t)

	code, env := h.do(http.MethodGet, "/api/v1/governance/admins", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]types.AdminInfo](t, env), 4)

	code, env = h.do(http.MethodGet, "/api/v1/governance/stats", "", nil)
	require.Equal(t, http.StatusOK, code)
	stats := decode[types.RegistryStats](t, env)
	assert.Equal(t, uint64(4), stats.TotalAdmins)
	assert.Equal(t, uint64(3), stats.RequiredConfirmations)

	super := h.admins[0].addr.Hex()
	code, env = h.do(http.MethodGet, "/api/v1/governance/admins/"+super+"/has-role/VOTE_ADMIN", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decode[types.HasRoleResponse](t, env).HasRole)

	code, env = h.do(http.MethodGet, "/api/v1/governance/admins/not-an-address", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ADDRESS", env.Error.Code)

	code, env = h.do(http.MethodGet, "/api/v1/governance/actions/99", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "INVALID_ACTION_ID", env.Error.Code)

	code, env = h.do(http.MethodGet, "/api/v1/governance/events?order=asc&limit=2", "", nil)
	require.Equal(t, http.StatusOK, code)
	events := decode[types.EventListResponse](t, env)
	assert.Len(t, events.Events, 2)
	assert.GreaterOrEqual(t, events.Total, 4)
	assert.Less(t, events.Events[0].Sequence, events.Events[1].Sequence)

	code, env = h.do(http.MethodGet, "/api/v1/governance/events/verify", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decode[types.EventLogVerification](t, env).Valid)
}

func TestWrites_RequireAuthAndRole(t *testing.T) {
	h := newHarness(t)
	newcomer := newWallet(t)

	code, env := h.do(http.MethodPost, "/api/v1/governance/admins", "", types.AddAdminRequest{Address: newcomer.addr.Hex(), Role: "VOTE_ADMIN"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	h.login(newcomer)
	code, env = h.do(http.MethodPost, "/api/v1/governance/admins", newcomer.token, types.AddAdminRequest{Address: newcomer.addr.Hex(), Role: "VOTE_ADMIN"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.NotEmpty(t, env.Error.Code)
	assert.Contains(t, h.observer.codes, env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/v1/governance/admins", h.admins[0].token, types.AddAdminRequest{Address: newcomer.addr.Hex(), Role: "KING"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ROLE", env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/v1/governance/admins", h.admins[0].token, types.AddAdminRequest{Address: newcomer.addr.Hex(), Role: "VOTE_ADMIN"})
	require.Equal(t, http.StatusOK, code, env.Error)
	info := decode[types.AdminInfo](t, env)
	assert.Equal(t, types.RoleVoteAdmin, info.Role)

	code, env = h.do(http.MethodPost, "/api/v1/governance/admins", h.admins[0].token, types.AddAdminRequest{Address: newcomer.addr.Hex(), Role: "VOTE_ADMIN"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ALREADY_ADMIN", env.Error.Code)
}

func TestProposalLifecycle(t *testing.T) {
	h := newHarness(t)
	target := newWallet(t)

	code, env := h.do(http.MethodPost, "/api/v1/governance/actions/add-admin", h.admins[0].token, types.ProposeAddAdminRequest{
		Target: target.addr.Hex(), Role: "TEAM_MANAGER", Reason: "new team lead",
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	id := strconv.FormatUint(decode[types.ProposalCreatedResponse](t, env).ID, 10)

	code, env = h.do(http.MethodPost, "/api/v1/governance/actions/"+id+"/execute", h.admins[0].token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "INSUFFICIENT_CONFIRMATIONS", env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/v1/governance/actions/"+id+"/confirm", h.admins[0].token, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ALREADY_CONFIRMED", env.Error.Code)

	for _, w := range h.admins[1:3] {
		code, env = h.do(http.MethodPost, "/api/v1/governance/actions/"+id+"/confirm", w.token, nil)
		require.Equal(t, http.StatusOK, code, env.Error)
	}
	view := decode[types.ActionView](t, env)
	assert.Equal(t, uint64(3), view.Confirmations)
	assert.Equal(t, "ADD_ADMIN", view.TypeName)

	code, env = h.do(http.MethodGet, "/api/v1/governance/actions/"+id+"/can-execute", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decode[types.CanExecuteResponse](t, env).CanExecute)

	code, env = h.do(http.MethodPost, "/api/v1/governance/actions/"+id+"/execute", h.admins[3].token, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, types.ActionStatusExecuted, decode[types.ActionView](t, env).Status)
	assert.True(t, h.svc.IsAdmin(target.addr))

	code, env = h.do(http.MethodGet, "/api/v1/governance/actions?open_only=true", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]types.ActionView](t, env))

	code, env = h.do(http.MethodGet, "/api/v1/governance/events?type=ActionConfirmed&action_id="+id, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, decode[types.EventListResponse](t, env).Total)
}

func TestEmergencyGate(t *testing.T) {
	h := newHarness(t)
	super := h.admins[0]
	recovery := newWallet(t)

	code, env := h.do(http.MethodPost, "/api/v1/governance/admins", super.token, types.AddAdminRequest{Address: recovery.addr.Hex(), Role: "RECOVERY_ADMIN"})
	require.Equal(t, http.StatusOK, code, env.Error)
	h.login(recovery)

	code, env = h.do(http.MethodPost, "/api/v1/governance/emergency/trigger", super.token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "ONLY_RECOVERY_ADMIN", env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/v1/governance/emergency/trigger", recovery.token, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	state := decode[types.EmergencyState](t, env)
	assert.True(t, state.EmergencyMode)
	assert.Equal(t, recovery.addr, state.TriggeredBy)

	code, env = h.do(http.MethodPost, "/api/v1/governance/emergency/trigger", recovery.token, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ALREADY_IN_EMERGENCY", env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/v1/governance/admins", super.token, types.AddAdminRequest{Address: newWallet(t).addr.Hex(), Role: "VOTE_ADMIN"})
	assert.Equal(t, http.StatusLocked, code)
	assert.Equal(t, "EMERGENCY_MODE", env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/v1/governance/emergency/admins", recovery.token, types.AddAdminRequest{Address: newWallet(t).addr.Hex(), Role: "VOTE_ADMIN"})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.True(t, decode[types.AdminInfo](t, env).IsActive)

	code, env = h.do(http.MethodPost, "/api/v1/governance/emergency/resolve", recovery.token, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "ONLY_SUPER_ADMIN", env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/v1/governance/emergency/resolve", super.token, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.False(t, decode[types.EmergencyState](t, env).EmergencyMode)

	code, env = h.do(http.MethodPost, "/api/v1/governance/emergency/admins", recovery.token, types.AddAdminRequest{Address: newWallet(t).addr.Hex(), Role: "VOTE_ADMIN"})
	assert.Equal(t, http.StatusLocked, code)
	assert.Equal(t, "EMERGENCY_REQUIRED", env.Error.Code)
}

func TestTimeLockDelay(t *testing.T) {
	h := newHarness(t)
	super := h.admins[0]
	target := newWallet(t).addr.Hex()

	code, env := h.do(http.MethodPost, "/api/v1/governance/timelocks/add-admin", super.token, types.ScheduleTimeLockRequest{
		Target: target, Role: "VOTE_ADMIN", DelaySeconds: 60,
	})
	assert.Equal(t, http.StatusTooEarly, code)
	assert.Equal(t, "DELAY_TOO_SHORT", env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/v1/governance/timelocks/add-admin", super.token, types.ScheduleTimeLockRequest{
		Target: target, Role: "VOTE_ADMIN", DelaySeconds: 7200,
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	id := strconv.FormatUint(decode[types.ProposalCreatedResponse](t, env).ID, 10)

	code, env = h.do(http.MethodPost, "/api/v1/governance/timelocks/"+id+"/execute", super.token, nil)
	assert.Equal(t, http.StatusTooEarly, code)
	assert.Equal(t, "TIMELOCK_NOT_READY", env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/v1/governance/timelocks/"+id+"/cancel", super.token, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.True(t, decode[types.TimeLock](t, env).Cancelled)

	code, env = h.do(http.MethodGet, "/api/v1/governance/timelocks?open_only=true", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decode[[]types.TimeLock](t, env))
}

func TestStakingThroughTokenApprove(t *testing.T) {
	h := newHarness(t)
	admin := h.admins[1]

	code, env := h.do(http.MethodPost, "/api/v1/governance/staking/stake", admin.token, types.AmountRequest{Amount: "1000"})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "TOKEN_TRANSFER_FAILED", env.Error.Code)

	require.NoError(t, h.mem.Mint(admin.addr, big.NewInt(5000)))
	code, env = h.do(http.MethodPost, "/api/v1/token/approve", admin.token, types.TokenApproveRequest{Amount: "5000"})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = h.do(http.MethodGet, "/api/v1/token/allowance/"+admin.addr.Hex(), "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "5000", decode[types.TokenAllowanceResponse](t, env).Allowance)

	code, env = h.do(http.MethodPost, "/api/v1/governance/staking/stake", admin.token, types.AmountRequest{Amount: "999"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "INSUFFICIENT_STAKE", env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/v1/governance/staking/stake", admin.token, types.AmountRequest{Amount: "1000"})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, "1000", decode[types.StakeView](t, env).StakedAmount)

	code, env = h.do(http.MethodGet, "/api/v1/token/balance/"+admin.addr.Hex(), "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "4000", decode[types.TokenBalanceResponse](t, env).Balance)

	code, env = h.do(http.MethodPost, "/api/v1/governance/staking/withdraw", admin.token, types.AmountRequest{Amount: "100"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ACTIVE_ADMIN_WITHDRAW", env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/v1/governance/staking/stake", admin.token, types.AmountRequest{Amount: "abc"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_AMOUNT", env.Error.Code)
}

func TestPermissions(t *testing.T) {
	h := newHarness(t)
	super := h.admins[0]

	code, env := h.do(http.MethodPut, "/api/v1/governance/permissions", super.token, types.SetPermissionRequest{
		Selector: "pause()", MinRole: "RECOVERY_ADMIN",
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	view := decode[types.PermissionView](t, env)
	assert.Equal(t, "pause()", view.Signature)

	code, env = h.do(http.MethodGet, "/api/v1/governance/admins/"+super.addr.Hex()+"/permissions/"+view.Selector, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decode[types.HasPermissionResponse](t, env).HasPermission)

	code, env = h.do(http.MethodGet, "/api/v1/governance/admins/"+newWallet(t).addr.Hex()+"/permissions/"+view.Selector, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decode[types.HasPermissionResponse](t, env).HasPermission)

	code, env = h.do(http.MethodGet, "/api/v1/governance/permissions", "", nil)
	require.Equal(t, http.StatusOK, code)
	perms := decode[[]types.PermissionView](t, env)
	var found bool
	for _, p := range perms {
		if p.Selector == view.Selector {
			found = true
			assert.Equal(t, types.RoleRecoveryAdmin, p.MinRole)
		}
	}
	assert.True(t, found)
	assert.Greater(t, len(perms), 1)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusGone, statusOf(governance.ErrActionExpired))
	assert.Equal(t, http.StatusTooEarly, statusOf(governance.ErrTimeLockNotReady))
	assert.Equal(t, http.StatusConflict, statusOf(governance.ErrBelowAdminFloor))
	assert.Equal(t, http.StatusBadGateway, statusOf(governance.ErrPersistence))
	assert.Equal(t, http.StatusInternalServerError, statusOf(assert.AnError))
}

func TestWalletConnect_ReplayRejected(t *testing.T) {
	h := newHarness(t)
	w := newWallet(t)

	code, env := h.do(http.MethodPost, "/api/v1/auth/nonce", "", types.NonceRequest{WalletAddress: w.addr.Hex()})
	require.Equal(t, http.StatusOK, code)
	challenge := decode[types.NonceResponse](t, env)
	sig, err := ethcrypto.Sign(accounts.TextHash([]byte(challenge.Message)), w.key)
	require.NoError(t, err)
	sig[64] += 27
	req := types.WalletConnectRequest{WalletAddress: w.addr.Hex(), Signature: hexutil.Encode(sig), Message: challenge.Message}

	code, _ = h.do(http.MethodPost, "/api/v1/auth/wallet-connect", "", req)
	require.Equal(t, http.StatusOK, code)
	code, env = h.do(http.MethodPost, "/api/v1/auth/wallet-connect", "", req)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "NONCE_EXPIRED_OR_USED", env.Error.Code)

	foreign := "Welcome to SomeOtherDapp! Sign to continue."
	sig, err = ethcrypto.Sign(accounts.TextHash([]byte(foreign)), w.key)
	require.NoError(t, err)
	sig[64] += 27
	code, env = h.do(http.MethodPost, "/api/v1/auth/wallet-connect", "", types.WalletConnectRequest{WalletAddress: w.addr.Hex(), Signature: hexutil.Encode(sig), Message: foreign})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "INVALID_CHALLENGE", env.Error.Code)
}

func TestWrites_LoggedOnce(t *testing.T) {
	h := newHarness(t)
	core, logs := observer.New(zapcore.InfoLevel)
	t.Cleanup(logger.Use(zap.New(core)))

	newcomer := newWallet(t)
	code, _ := h.do(http.MethodPost, "/api/v1/governance/admins", h.admins[0].token, types.AddAdminRequest{Address: newcomer.addr.Hex(), Role: "VOTE_ADMIN"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, logs.FilterMessage("AddAdmin: ").Len())

	code, _ = h.do(http.MethodPost, "/api/v1/governance/emergency/trigger", h.admins[0].token, nil)
	require.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, 1, logs.FilterMessage("TriggerEmergency Error: ").Len())
}
