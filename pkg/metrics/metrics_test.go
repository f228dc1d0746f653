package metrics

import (
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"governance-backend/internal/types"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveEvents(t *testing.T) {
	m := New()
	m.ObserveEvents([]types.Event{
		{Type: types.EventActionProposed},
		{Type: types.EventActionConfirmed},
		{Type: types.EventActionConfirmed},
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues(string(types.EventActionProposed))))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsTotal.WithLabelValues(string(types.EventActionConfirmed))))
}

func TestSetLedger(t *testing.T) {
	m := New()
	m.SetLedger(
		types.RegistryStats{TotalAdmins: 4, RequiredConfirmations: 3, PendingActionsCount: 2},
		types.StakingStats{TotalStaked: big.NewInt(1800), RewardPool: big.NewInt(200)},
		types.EmergencyState{EmergencyMode: true},
	)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.totalAdmins))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.requiredConfirmations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emergencyMode))
	assert.Equal(t, 1800.0, testutil.ToFloat64(m.totalStaked))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.rewardPool))

	m.SetLedger(types.RegistryStats{}, types.StakingStats{}, types.EmergencyState{})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.emergencyMode))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.rewardPool))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRejection("ALREADY_ADMIN")
	m.ObserveHTTP(http.MethodGet, "/api/v1/governance/stats", http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `governance_rejections_total{code="ALREADY_ADMIN"} 1`)
	assert.Contains(t, body, "governance_http_request_duration_seconds_bucket")
}
