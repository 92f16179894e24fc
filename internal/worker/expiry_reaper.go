package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/pkg/clock"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/pkg/logger"
)

// ExpiredBookingFinder は期限切れの保留中予約を列挙するインターフェース
type ExpiredBookingFinder interface {
	FindPendingExpiringBefore(ctx context.Context, t time.Time) ([]*booking.Booking, error)
}

// BookingExpirer は予約1件を失効させるインターフェース
// 上映ロックの取得と条件付き台帳遷移はエンジン側で行われる
type BookingExpirer interface {
	ExpireBooking(ctx context.Context, bookingID int64) (bool, error)
}

// ExpiryReaper は期限切れリースと保留中予約を回収するワーカー
// 上映ごとにロックを取り直し、複数上映を1つのロックでまとめて処理しない
type ExpiryReaper struct {
	finder   ExpiredBookingFinder
	expirer  BookingExpirer
	clock    clock.Clock
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewExpiryReaper は新しいリーパーを作成する
func NewExpiryReaper(finder ExpiredBookingFinder, expirer BookingExpirer, clk clock.Clock, interval time.Duration) *ExpiryReaper {
	return &ExpiryReaper{
		finder:   finder,
		expirer:  expirer,
		clock:    clk,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start はリーパーを開始する
func (r *ExpiryReaper) Start(ctx context.Context) {
	logger.Info("期限切れ予約リーパー開始",
		zap.Duration("interval", r.interval),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer close(r.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("期限切れ予約リーパー停止（コンテキストキャンセル）")
			return
		case <-r.stopCh:
			logger.Info("期限切れ予約リーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Stop はリーパーを停止する
func (r *ExpiryReaper) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// Tick は1回分の回収処理を実行する
// スキャン後、予約ごとに上映ロックを取り直して失効させる
// スキャンとロック取得の間に確定/キャンセルされた予約はエンジンが検出して
// スキップするため、多重起動しても安全
func (r *ExpiryReaper) Tick(ctx context.Context) {
	log := logger.Get()
	now := r.clock.Now()

	expired, err := r.finder.FindPendingExpiringBefore(ctx, now)
	if err != nil {
		log.Error("期限切れ予約のスキャンに失敗", zap.Error(err))
		return
	}
	if len(expired) == 0 {
		log.Debug("期限切れ予約なし")
		return
	}

	reaped := 0
	for _, b := range expired {
		select {
		case <-ctx.Done():
			return
		default:
		}
		ok, err := r.expirer.ExpireBooking(ctx, b.ID)
		if err != nil {
			log.Error("予約の失効に失敗",
				logger.BookingID(b.ID),
				logger.ShowID(b.ShowID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			reaped++
		}
	}

	if reaped > 0 {
		log.Info("期限切れ予約を回収",
			zap.Int("scanned", len(expired)),
			zap.Int("reaped", reaped),
		)
	}
}
