package metrics

import (
	"math/big"
	"net/http"
	"strconv"
	"time"

	"governance-backend/internal/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "governance"

// Metrics 治理服务Prometheus指标
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal       *prometheus.CounterVec
	rejectionsTotal   *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	notificationsSent *prometheus.CounterVec
	publishFailures   prometheus.Counter

	totalAdmins           prometheus.Gauge
	requiredConfirmations prometheus.Gauge
	pendingActions        prometheus.Gauge
	timeLocks             prometheus.Gauge
	emergencyMode         prometheus.Gauge
	totalStaked           prometheus.Gauge
	rewardPool            prometheus.Gauge
}

// New 创建独立registry上的指标集合
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Committed governance events by type",
		}, []string{"type"}),
		rejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected governance operations by error code",
		}, []string{"code"}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		notificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Alert deliveries by channel and status",
		}, []string{"channel", "status"}),
		publishFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Events that could not be published to redis",
		}),
		totalAdmins: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_admins",
			Help:      "Active admins",
		}),
		requiredConfirmations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "required_confirmations",
			Help:      "Confirmations required for new proposals",
		}),
		pendingActions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Proposals ever created",
		}),
		timeLocks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "timelocks_total",
			Help:      "Time locks ever scheduled",
		}),
		emergencyMode: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "emergency_mode",
			Help:      "1 while the ledger is in emergency mode",
		}),
		totalStaked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_staked",
			Help:      "Tokens held as admin stake",
		}),
		rewardPool: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reward_pool",
			Help:      "Undistributed slashed tokens",
		}),
	}
}

// Registry 指标registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveEvents 统计已提交事件
func (m *Metrics) ObserveEvents(events []types.Event) {
	for _, e := range events {
		m.eventsTotal.WithLabelValues(string(e.Type)).Inc()
	}
}

// ObserveRejection 统计被拒绝的操作
func (m *Metrics) ObserveRejection(code string) {
	m.rejectionsTotal.WithLabelValues(code).Inc()
}

// ObserveHTTP 统计HTTP请求
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveNotification 统计告警发送
func (m *Metrics) ObserveNotification(channel types.NotificationChannel, status string) {
	m.notificationsSent.WithLabelValues(string(channel), status).Inc()
}

// ObservePublishFailure 统计事件推送失败
func (m *Metrics) ObservePublishFailure() {
	m.publishFailures.Inc()
}

// SetLedger 刷新账本状态类指标
func (m *Metrics) SetLedger(reg types.RegistryStats, staking types.StakingStats, emergency types.EmergencyState) {
	m.totalAdmins.Set(float64(reg.TotalAdmins))
	m.requiredConfirmations.Set(float64(reg.RequiredConfirmations))
	m.pendingActions.Set(float64(reg.PendingActionsCount))
	m.timeLocks.Set(float64(reg.TimeLocksCount))
	if emergency.EmergencyMode {
		m.emergencyMode.Set(1)
	} else {
		m.emergencyMode.Set(0)
	}
	m.totalStaked.Set(toFloat(staking.TotalStaked))
	m.rewardPool.Set(toFloat(staking.RewardPool))
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
