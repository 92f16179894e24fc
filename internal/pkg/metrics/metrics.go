package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// 予約操作の総数（operation: acquire/confirm/cancel, status: success, conflict, expired, error）
	BookingOperationsTotal *prometheus.CounterVec

	// 上映ロックの待機時間（status: acquired/contention/timeout）
	ShowLockWaitDuration *prometheus.HistogramVec

	// アクティブな予約数（status: pending, confirmed）
	ActiveBookings *prometheus.GaugeVec

	// リーパーが回収した座席の総数
	SeatsReclaimedTotal prometheus.Counter

	// リーパーが失効させた予約の総数
	BookingsExpiredTotal prometheus.Counter

	// 空席照会キャッシュの結果（result: hit/miss/error）
	AvailabilityCacheTotal *prometheus.CounterVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BookingOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_operations_total",
				Help: "Total number of booking operations",
			},
			[]string{"operation", "status"},
		),
		ShowLockWaitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "show_lock_wait_duration_seconds",
				Help:    "Time spent waiting for a show lock",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"status"},
		),
		ActiveBookings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "active_bookings",
				Help: "Current number of active bookings",
			},
			[]string{"status"},
		),
		SeatsReclaimedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "seats_reclaimed_total",
				Help: "Total number of seats reclaimed from expired leases",
			},
		),
		BookingsExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bookings_expired_total",
				Help: "Total number of pending bookings expired by the reaper",
			},
		),
		AvailabilityCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "availability_cache_total",
				Help: "Availability snapshot cache lookups",
			},
			[]string{"result"},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.BookingOperationsTotal,
		m.ShowLockWaitDuration,
		m.ActiveBookings,
		m.SeatsReclaimedTotal,
		m.BookingsExpiredTotal,
		m.AvailabilityCacheTotal,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
