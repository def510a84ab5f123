package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 密钥指标
	KeysIssued       *prometheus.CounterVec
	KeysDeleted      prometheus.Counter
	KeysExpired      prometheus.Counter
	KeysActive       prometheus.Gauge
	AuthAttempts     *prometheus.CounterVec
	KeyUsageConflict prometheus.Counter

	// 坐席指标
	AgentsOnline       prometheus.Gauge
	AgentStatusChanges *prometheus.CounterVec

	// 会话指标
	SessionsStarted prometheus.Counter
	SessionsClosed  prometheus.Counter
	SessionsActive  prometheus.Gauge
	MessagesSent    *prometheus.CounterVec

	// WebSocket 指标
	WSConnections prometheus.Gauge

	// 系统指标
	SystemUptime        prometheus.Gauge
	DatabaseConnections prometheus.Gauge
	RedisConnections    prometheus.Gauge
	MemoryUsage         prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		// HTTP 请求指标
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yunjv_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "yunjv_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "yunjv_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "yunjv_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		// 密钥指标
		KeysIssued: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yunjv_keys_issued_total",
				Help: "Total number of access keys issued",
			},
			[]string{"kind"},
		),

		KeysDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "yunjv_keys_deleted_total",
				Help: "Total number of access keys deleted",
			},
		),

		KeysExpired: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "yunjv_keys_expired_total",
				Help: "Total number of access keys lazily marked expired",
			},
		),

		KeysActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "yunjv_keys_active",
				Help: "Number of active access keys",
			},
		),

		AuthAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yunjv_auth_attempts_total",
				Help: "Total number of key authentication attempts",
			},
			[]string{"outcome"},
		),

		KeyUsageConflict: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "yunjv_key_usage_conflicts_total",
				Help: "Total number of guarded usage increments lost to a concurrent login",
			},
		),

		// 坐席指标
		AgentsOnline: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "yunjv_agents_online",
				Help: "Number of online agents",
			},
		),

		AgentStatusChanges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yunjv_agent_status_changes_total",
				Help: "Total number of agent status transitions",
			},
			[]string{"status"},
		),

		// 会话指标
		SessionsStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "yunjv_sessions_started_total",
				Help: "Total number of chat sessions started",
			},
		),

		SessionsClosed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "yunjv_sessions_closed_total",
				Help: "Total number of chat sessions closed",
			},
		),

		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "yunjv_sessions_active",
				Help: "Number of active chat sessions",
			},
		),

		MessagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yunjv_messages_sent_total",
				Help: "Total number of chat messages sent",
			},
			[]string{"sender_type"},
		),

		// WebSocket 指标
		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "yunjv_ws_connections",
				Help: "Number of open websocket connections",
			},
		),

		// 系统指标
		SystemUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "yunjv_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),

		DatabaseConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "yunjv_database_connections",
				Help: "Number of database connections",
			},
		),

		RedisConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "yunjv_redis_connections",
				Help: "Number of Redis connections",
			},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "yunjv_memory_usage_bytes",
				Help: "Memory usage in bytes",
			},
		),

		// 错误指标
		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yunjv_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "yunjv_panics_total",
				Help: "Total number of panics",
			},
		),

		// 限流指标
		RateLimitBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "yunjv_rate_limit_blocks_total",
				Help: "Total number of rate limited requests",
			},
			[]string{"type"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordKeyIssued 记录密钥签发
func (m *Metrics) RecordKeyIssued(kind string) {
	m.KeysIssued.WithLabelValues(kind).Inc()
}

// RecordKeyDeleted 记录密钥删除
func (m *Metrics) RecordKeyDeleted() {
	m.KeysDeleted.Inc()
}

// RecordKeyExpired 记录惰性过期落库
func (m *Metrics) RecordKeyExpired() {
	m.KeysExpired.Inc()
}

// RecordAuthAttempt 按结果记录认证尝试
func (m *Metrics) RecordAuthAttempt(outcome string) {
	m.AuthAttempts.WithLabelValues(outcome).Inc()
}

// RecordUsageConflict 记录并发登录丢失的用量递增
func (m *Metrics) RecordUsageConflict() {
	m.KeyUsageConflict.Inc()
}

// RecordAgentStatusChange 记录坐席状态流转
func (m *Metrics) RecordAgentStatusChange(status string) {
	m.AgentStatusChanges.WithLabelValues(status).Inc()
}

// RecordSessionStarted 记录会话开始
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordSessionClosed 记录会话关闭
func (m *Metrics) RecordSessionClosed() {
	m.SessionsClosed.Inc()
}

// RecordMessageSent 记录消息发送
func (m *Metrics) RecordMessageSent(senderType string) {
	m.MessagesSent.WithLabelValues(senderType).Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// UpdateKeysActive 更新活跃密钥数
func (m *Metrics) UpdateKeysActive(count int) {
	m.KeysActive.Set(float64(count))
}

// UpdateAgentsOnline 更新在线坐席数
func (m *Metrics) UpdateAgentsOnline(count int) {
	m.AgentsOnline.Set(float64(count))
}

// UpdateSessionsActive 更新活跃会话数
func (m *Metrics) UpdateSessionsActive(count int) {
	m.SessionsActive.Set(float64(count))
}

// UpdateWSConnections 更新 websocket 连接数
func (m *Metrics) UpdateWSConnections(count int) {
	m.WSConnections.Set(float64(count))
}

// UpdateSystemUptime 更新系统运行时间
func (m *Metrics) UpdateSystemUptime(uptime time.Duration) {
	m.SystemUptime.Set(uptime.Seconds())
}

// UpdateDatabaseConnections 更新数据库连接数
func (m *Metrics) UpdateDatabaseConnections(count int) {
	m.DatabaseConnections.Set(float64(count))
}

// UpdateRedisConnections 更新 Redis 连接数
func (m *Metrics) UpdateRedisConnections(count int) {
	m.RedisConnections.Set(float64(count))
}

// UpdateMemoryUsage 更新内存使用量
func (m *Metrics) UpdateMemoryUsage(bytes int64) {
	m.MemoryUsage.Set(float64(bytes))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
