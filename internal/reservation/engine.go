package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/seat"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/show"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/pkg/clock"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/pkg/metrics"
)

// AvailabilityCache は空席照会スナップショットのキャッシュポート
// nilの場合キャッシュは使われない
type AvailabilityCache interface {
	GetSeatViews(ctx context.Context, showID int64) ([]SeatView, error)
	SetSeatViews(ctx context.Context, showID int64, views []SeatView) error
	Invalidate(ctx context.Context, showID int64) error
}

// Config はエンジンの動作設定
type Config struct {
	// DefaultLease はリース期間が指定されない場合の既定値
	DefaultLease time.Duration
	// ClockSkewTolerance は確定側の期限チェックを広げる許容スキュー
	ClockSkewTolerance time.Duration
	// CancelConfirmedAfterStart は上映開始後の確定済み予約キャンセルを許可するか
	CancelConfirmedAfterStart bool
}

// Engine は座席予約プロトコル
// 上映ごとの排他ロック下でSeatIndexと台帳を整合させながら
// acquire / confirm / cancel / availability を提供する
type Engine struct {
	ledger  booking.Ledger
	catalog show.Catalog
	locks   *LockRegistry
	index   *SeatIndex
	clock   clock.Clock
	cfg     Config
	metrics *metrics.Metrics
	cache   AvailabilityCache
}

// NewEngine は新しいEngineを作成する
// metricsとcacheはnil可
func NewEngine(
	ledger booking.Ledger,
	catalog show.Catalog,
	locks *LockRegistry,
	index *SeatIndex,
	clk clock.Clock,
	cfg Config,
	m *metrics.Metrics,
	cache AvailabilityCache,
) *Engine {
	return &Engine{
		ledger:  ledger,
		catalog: catalog,
		locks:   locks,
		index:   index,
		clock:   clk,
		cfg:     cfg,
		metrics: m,
		cache:   cache,
	}
}

// Acquire は座席リースを取得し保留中予約を作成する
// 要求座席のいずれかが空席でなければ全体が失敗し、部分的なロックは残さない
func (e *Engine) Acquire(ctx context.Context, userID, showID int64, seatIDs []int64, leaseDuration time.Duration) (*booking.Booking, error) {
	if err := validateSeatIDs(seatIDs); err != nil {
		e.count("acquire", "error")
		return nil, err
	}
	if leaseDuration <= 0 {
		leaseDuration = e.cfg.DefaultLease
	}

	sh, err := e.catalog.GetShow(ctx, showID)
	if err != nil {
		e.count("acquire", "error")
		if errors.Is(err, show.ErrShowNotFound) {
			return nil, fmt.Errorf("%w: 上映%d", ErrShowNotBookable, showID)
		}
		return nil, fmt.Errorf("上映取得に失敗: %w", err)
	}
	if !sh.IsBookable(e.clock.Now()) {
		e.count("acquire", "error")
		return nil, fmt.Errorf("%w: 上映%dは開始済みです", ErrShowNotBookable, showID)
	}

	release, err := e.acquireShowLock(ctx, showID)
	if err != nil {
		e.count("acquire", "error")
		return nil, err
	}
	defer release()

	if err := e.index.Load(ctx, showID); err != nil {
		e.count("acquire", "error")
		return nil, err
	}

	now := e.clock.Now()
	deadline := now.Add(leaseDuration)

	var created *booking.Booking
	err = e.index.Mutate(showID, func(seats map[int64]*seat.State) error {
		// 座席の妥当性チェック
		var invalid []int64
		for _, id := range seatIDs {
			if _, ok := seats[id]; !ok {
				invalid = append(invalid, id)
			}
		}
		if len(invalid) > 0 {
			return fmt.Errorf("%w: 上映%dに存在しない座席 %v", ErrInvalidSeats, showID, invalid)
		}

		// 全席空席でなければアトミックに失敗させる
		var conflicting []int64
		for _, id := range seatIDs {
			if !seats[id].IsAvailable() {
				conflicting = append(conflicting, id)
			}
		}
		if len(conflicting) > 0 {
			return &SeatUnavailableError{SeatIDs: conflicting}
		}

		total := decimal.Zero
		charges := make([]booking.SeatCharge, 0, len(seatIDs))
		for _, id := range seatIDs {
			price := seats[id].Price
			total = total.Add(price)
			charges = append(charges, booking.SeatCharge{SeatID: id, Price: price})
		}

		b, err := booking.NewPending(userID, showID, seatIDs, total, now, deadline)
		if err != nil {
			return err
		}

		// 台帳書き込みはロック解放前に完了させる
		// ここで失敗した場合、座席はまだ一切変更されていない
		if err := e.ledger.InsertPending(ctx, b, charges); err != nil {
			return fmt.Errorf("%w: 予約挿入: %w", ErrStorage, err)
		}

		for _, id := range seatIDs {
			if err := seats[id].Lock(b.ID, deadline); err != nil {
				// 直前に空席確認済みのため到達しない
				return fmt.Errorf("%w: %v", ErrIndexInconsistent, err)
			}
		}
		created = b
		return nil
	})
	if err != nil {
		e.countAcquireFailure(err)
		return nil, err
	}

	e.invalidateCache(ctx, showID)
	e.count("acquire", "success")
	if e.metrics != nil {
		e.metrics.ActiveBookings.WithLabelValues(string(booking.StatusPending)).Inc()
	}
	logger.Info("座席リースを取得",
		logger.BookingID(created.ID),
		logger.ShowID(showID),
		logger.UserID(userID),
		logger.SeatIDs(seatIDs),
		zap.Time("expires_at", deadline),
	)
	return created, nil
}

// Confirm は支払い完了を受けて予約を確定する
// リース期限はスキュー許容分だけ広げて判定し、期限切れなら同一クリティカル
// セクション内で予約をEXPIREDに遷移させてErrLeaseExpiredを返す
func (e *Engine) Confirm(ctx context.Context, bookingID int64, paymentRef string) (*booking.Booking, error) {
	b, err := e.getBooking(ctx, bookingID)
	if err != nil {
		e.count("confirm", "error")
		return nil, err
	}

	release, err := e.acquireShowLock(ctx, b.ShowID)
	if err != nil {
		e.count("confirm", "error")
		return nil, err
	}
	defer release()

	if err := e.index.Load(ctx, b.ShowID); err != nil {
		e.count("confirm", "error")
		return nil, err
	}

	// ロック下で読み直す（取得後に状態が変わっている可能性がある）
	b, err = e.getBooking(ctx, bookingID)
	if err != nil {
		e.count("confirm", "error")
		return nil, err
	}
	if !b.IsPending() {
		e.count("confirm", "error")
		if b.Status == booking.StatusExpired {
			return nil, fmt.Errorf("%w: 予約%d", ErrLeaseExpired, bookingID)
		}
		return nil, fmt.Errorf("%w: 予約%dは%s", booking.ErrBookingNotPending, bookingID, b.Status)
	}

	now := e.clock.Now()
	graceDeadline := b.ExpiresAt.Add(e.cfg.ClockSkewTolerance)

	expired := now.After(graceDeadline)
	if !expired {
		// リーパーとの競合判定: 既に回収された座席が1つでもあれば期限切れ扱い
		err = e.index.Mutate(b.ShowID, func(seats map[int64]*seat.State) error {
			for _, id := range b.SeatIDs {
				st, ok := seats[id]
				if !ok {
					return fmt.Errorf("%w: 座席%dがインデックスに存在しません", ErrIndexInconsistent, id)
				}
				if st.Status != seat.StatusLocked || st.HolderBookingID != b.ID {
					expired = true
					return nil
				}
			}
			return nil
		})
		if err != nil {
			e.count("confirm", "error")
			return nil, err
		}
	}

	if expired {
		if err := e.expireLocked(ctx, b); err != nil {
			e.count("confirm", "error")
			return nil, err
		}
		e.invalidateCache(ctx, b.ShowID)
		e.count("confirm", "expired")
		if e.metrics != nil {
			e.metrics.ActiveBookings.WithLabelValues(string(booking.StatusPending)).Dec()
		}
		logger.Warn("確定が間に合わず予約を失効",
			logger.BookingID(bookingID),
			zap.Time("expires_at", b.ExpiresAt),
		)
		return nil, fmt.Errorf("%w: 予約%d", ErrLeaseExpired, bookingID)
	}

	mutated, err := e.ledger.MarkConfirmed(ctx, bookingID, paymentRef)
	if err != nil {
		e.count("confirm", "error")
		return nil, fmt.Errorf("%w: 確定遷移: %w", ErrStorage, err)
	}
	if !mutated {
		e.count("confirm", "error")
		return nil, fmt.Errorf("%w: 予約%d", booking.ErrBookingNotPending, bookingID)
	}

	err = e.index.Mutate(b.ShowID, func(seats map[int64]*seat.State) error {
		for _, id := range b.SeatIDs {
			if err := seats[id].Confirm(b.ID); err != nil {
				return fmt.Errorf("%w: %v", ErrIndexInconsistent, err)
			}
		}
		return nil
	})
	if err != nil {
		e.count("confirm", "error")
		return nil, err
	}

	b.Status = booking.StatusConfirmed
	b.PaymentRef = paymentRef

	e.invalidateCache(ctx, b.ShowID)
	e.count("confirm", "success")
	if e.metrics != nil {
		e.metrics.ActiveBookings.WithLabelValues(string(booking.StatusPending)).Dec()
		e.metrics.ActiveBookings.WithLabelValues(string(booking.StatusConfirmed)).Inc()
	}
	logger.Info("予約を確定",
		logger.BookingID(bookingID),
		logger.PaymentRef(paymentRef),
	)
	return b, nil
}

// Cancel は予約をキャンセルし保持座席を解放する
// 終端状態の予約に対しては変更なしの成功を返す（冪等）
func (e *Engine) Cancel(ctx context.Context, bookingID, byUserID int64) error {
	b, err := e.getBooking(ctx, bookingID)
	if err != nil {
		e.count("cancel", "error")
		return err
	}
	// 所有者チェックはロック取得前に行う
	if b.UserID != byUserID {
		e.count("cancel", "error")
		return fmt.Errorf("%w: 予約%dはユーザー%dのものではありません", booking.ErrUnauthorized, bookingID, byUserID)
	}

	release, err := e.acquireShowLock(ctx, b.ShowID)
	if err != nil {
		e.count("cancel", "error")
		return err
	}
	defer release()

	if err := e.index.Load(ctx, b.ShowID); err != nil {
		e.count("cancel", "error")
		return err
	}

	b, err = e.getBooking(ctx, bookingID)
	if err != nil {
		e.count("cancel", "error")
		return err
	}
	if b.Status.IsTerminal() {
		// 冪等: 既にキャンセル/失効済みなら変更なしで成功
		e.count("cancel", "success")
		return nil
	}

	if b.Status == booking.StatusConfirmed && !e.cfg.CancelConfirmedAfterStart {
		sh, err := e.catalog.GetShow(ctx, b.ShowID)
		if err != nil {
			e.count("cancel", "error")
			return fmt.Errorf("上映取得に失敗: %w", err)
		}
		if sh.HasStarted(e.clock.Now()) {
			e.count("cancel", "error")
			return fmt.Errorf("%w: 予約%d", ErrCancellationNotAllowed, bookingID)
		}
	}

	mutated, err := e.ledger.MarkCancelled(ctx, bookingID)
	if err != nil {
		e.count("cancel", "error")
		return fmt.Errorf("%w: キャンセル遷移: %w", ErrStorage, err)
	}
	if !mutated {
		e.count("cancel", "success")
		return nil
	}

	err = e.index.Mutate(b.ShowID, func(seats map[int64]*seat.State) error {
		for _, id := range b.SeatIDs {
			st, ok := seats[id]
			if !ok {
				continue
			}
			// リーパーが先に回収した座席は既に保持していない
			if st.HolderBookingID != b.ID {
				continue
			}
			if err := st.Release(b.ID); err != nil {
				return fmt.Errorf("%w: %v", ErrIndexInconsistent, err)
			}
		}
		return nil
	})
	if err != nil {
		e.count("cancel", "error")
		return err
	}

	e.invalidateCache(ctx, b.ShowID)
	e.count("cancel", "success")
	if e.metrics != nil {
		e.metrics.ActiveBookings.WithLabelValues(string(b.Status)).Dec()
	}
	logger.Info("予約をキャンセル",
		logger.BookingID(bookingID),
		logger.UserID(byUserID),
	)
	return nil
}

// ExpireBooking は期限切れの保留中予約を失効させ座席を回収する
// リーパーから上映1件ずつ呼ばれる。既に終端状態ならスキップしfalseを返す
func (e *Engine) ExpireBooking(ctx context.Context, bookingID int64) (bool, error) {
	b, err := e.getBooking(ctx, bookingID)
	if err != nil {
		return false, err
	}
	if !b.IsPending() {
		return false, nil
	}

	release, err := e.acquireShowLock(ctx, b.ShowID)
	if err != nil {
		return false, err
	}
	defer release()

	if err := e.index.Load(ctx, b.ShowID); err != nil {
		return false, err
	}

	// スキャンとロック取得の間に確定/キャンセルされていれば何もしない
	b, err = e.getBooking(ctx, bookingID)
	if err != nil {
		return false, err
	}
	if !b.IsPending() {
		return false, nil
	}
	if !b.IsExpiredAt(e.clock.Now()) {
		return false, nil
	}

	if err := e.expireLocked(ctx, b); err != nil {
		return false, err
	}
	e.invalidateCache(ctx, b.ShowID)
	if e.metrics != nil {
		e.metrics.BookingsExpiredTotal.Inc()
		e.metrics.SeatsReclaimedTotal.Add(float64(len(b.SeatIDs)))
		e.metrics.ActiveBookings.WithLabelValues(string(booking.StatusPending)).Dec()
	}
	return true, nil
}

// expireLocked は予約をEXPIREDに遷移させ保持座席を解放する
// 呼び出し側が該当上映のShowLockを保持していることが前提
func (e *Engine) expireLocked(ctx context.Context, b *booking.Booking) error {
	mutated, err := e.ledger.MarkExpired(ctx, b.ID)
	if err != nil {
		return fmt.Errorf("%w: 失効遷移: %w", ErrStorage, err)
	}
	if !mutated {
		// 条件付き遷移のため複数リーパーが走っても安全
		return nil
	}
	return e.index.Mutate(b.ShowID, func(seats map[int64]*seat.State) error {
		for _, id := range b.SeatIDs {
			st, ok := seats[id]
			if !ok {
				continue
			}
			if st.Status != seat.StatusLocked || st.HolderBookingID != b.ID {
				continue
			}
			if err := st.Release(b.ID); err != nil {
				return fmt.Errorf("%w: %v", ErrIndexInconsistent, err)
			}
		}
		return nil
	})
}

// Availability は上映の空席スナップショットを返す
// 上映ロックを取らないロックフリー読み取りで、返った時点で古くなりうる
func (e *Engine) Availability(ctx context.Context, showID int64) ([]SeatView, error) {
	if e.cache != nil {
		views, err := e.cache.GetSeatViews(ctx, showID)
		if err == nil {
			e.cacheResult("hit")
			return views, nil
		}
		if errors.Is(err, ErrCacheMiss) {
			e.cacheResult("miss")
		} else {
			e.cacheResult("error")
			logger.Warn("空席キャッシュ参照に失敗", zap.Error(err))
		}
	}

	if err := e.index.Load(ctx, showID); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	states := e.index.Snapshot(showID)
	views := make([]SeatView, 0, len(states))
	for _, st := range states {
		views = append(views, NewSeatView(st, now))
	}

	if e.cache != nil {
		if err := e.cache.SetSeatViews(ctx, showID, views); err != nil {
			logger.Warn("空席キャッシュ保存に失敗", zap.Error(err))
		}
	}
	return views, nil
}

// GetBooking は予約を取得する
func (e *Engine) GetBooking(ctx context.Context, bookingID int64) (*booking.Booking, error) {
	return e.getBooking(ctx, bookingID)
}

// GetUserBookings はユーザーの予約履歴を新しい順に返す
func (e *Engine) GetUserBookings(ctx context.Context, userID int64, limit, offset int) ([]*booking.Booking, error) {
	if limit <= 0 {
		limit = 20
	}
	list, err := e.ledger.GetByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: 予約一覧取得: %w", ErrStorage, err)
	}
	return list, nil
}

// TotalSpent はユーザーの確定済み予約の合計金額を返す
func (e *Engine) TotalSpent(ctx context.Context, userID int64) (decimal.Decimal, error) {
	total, err := e.ledger.TotalSpent(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: 合計金額取得: %w", ErrStorage, err)
	}
	return total, nil
}

// getBooking は台帳から予約を読み、NotFound以外のI/O失敗をErrStorageで区別する
func (e *Engine) getBooking(ctx context.Context, bookingID int64) (*booking.Booking, error) {
	b, err := e.ledger.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, booking.ErrBookingNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: 予約取得: %w", ErrStorage, err)
	}
	return b, nil
}

// SetMaintenance は座席を整備中にする/整備から戻す（管理操作）
// 整備中にできるのは空席のみ
func (e *Engine) SetMaintenance(ctx context.Context, showID, seatID int64, on bool) error {
	release, err := e.acquireShowLock(ctx, showID)
	if err != nil {
		return err
	}
	defer release()

	if err := e.index.Load(ctx, showID); err != nil {
		return err
	}
	err = e.index.Mutate(showID, func(seats map[int64]*seat.State) error {
		st, ok := seats[seatID]
		if !ok {
			return fmt.Errorf("%w: 上映%dに存在しない座席 %d", ErrInvalidSeats, showID, seatID)
		}
		if on {
			return st.EnterMaintenance()
		}
		return st.ClearMaintenance()
	})
	if err != nil {
		return err
	}
	e.invalidateCache(ctx, showID)
	return nil
}

// acquireShowLock はメトリクス記録付きで上映ロックを取得する
func (e *Engine) acquireShowLock(ctx context.Context, showID int64) (func(), error) {
	start := time.Now()
	release, err := e.locks.Acquire(ctx, showID)
	if e.metrics != nil {
		status := "acquired"
		switch {
		case errors.Is(err, ErrLockContention):
			status = "contention"
		case errors.Is(err, ErrAcquireTimeout):
			status = "timeout"
		}
		e.metrics.ShowLockWaitDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
	return release, err
}

func (e *Engine) invalidateCache(ctx context.Context, showID int64) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, showID); err != nil {
		logger.Warn("空席キャッシュ無効化に失敗", logger.ShowID(showID), zap.Error(err))
	}
}

func (e *Engine) cacheResult(result string) {
	if e.metrics != nil {
		e.metrics.AvailabilityCacheTotal.WithLabelValues(result).Inc()
	}
}

func (e *Engine) count(operation, status string) {
	if e.metrics != nil {
		e.metrics.BookingOperationsTotal.WithLabelValues(operation, status).Inc()
	}
}

func (e *Engine) countAcquireFailure(err error) {
	switch {
	case errors.Is(err, ErrSeatUnavailable):
		e.count("acquire", "conflict")
	default:
		e.count("acquire", "error")
	}
}

// validateSeatIDs は座席指定の形式チェックを行う
func validateSeatIDs(seatIDs []int64) error {
	if len(seatIDs) == 0 {
		return fmt.Errorf("%w: 座席が指定されていません", ErrInvalidSeats)
	}
	seen := make(map[int64]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: 座席%dが重複しています", ErrInvalidSeats, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
