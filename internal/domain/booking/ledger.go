package booking

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SeatCharge は予約に含まれる座席1席分の請求を表す
type SeatCharge struct {
	SeatID int64
	Price  decimal.Decimal
}

// SeatAssignment は台帳から復元した座席割り当てを表す
// SeatIndexの再構築（クラッシュリカバリ）に使う
type SeatAssignment struct {
	SeatID        int64
	BookingID     int64
	BookingStatus Status
	ExpiresAt     time.Time
	Price         decimal.Decimal
}

// Ledger は予約の永続台帳を表すポート
// 復旧時の真実の源泉（source of truth）であり、行は削除されず状態のみ遷移する
type Ledger interface {
	// InsertPending は保留中予約を挿入しIDを採番する
	InsertPending(ctx context.Context, b *Booking, charges []SeatCharge) error

	// MarkConfirmed は予約をPENDING→CONFIRMEDに条件付きで遷移する
	// 遷移できた場合にtrueを返す
	MarkConfirmed(ctx context.Context, bookingID int64, paymentRef string) (bool, error)

	// MarkCancelled は予約をPENDING/CONFIRMED→CANCELLEDに条件付きで遷移する
	MarkCancelled(ctx context.Context, bookingID int64) (bool, error)

	// MarkExpired は予約をPENDING→EXPIREDに条件付きで遷移する
	MarkExpired(ctx context.Context, bookingID int64) (bool, error)

	// GetByID は予約を取得する
	GetByID(ctx context.Context, bookingID int64) (*Booking, error)

	// GetByUserID はユーザーの予約一覧を新しい順に取得する
	GetByUserID(ctx context.Context, userID int64, limit, offset int) ([]*Booking, error)

	// FindPendingExpiringBefore は期限がt以前の保留中予約を返す（リーパー用）
	FindPendingExpiringBefore(ctx context.Context, t time.Time) ([]*Booking, error)

	// LoadSeatAssignments は上映の座席割り当てを予約状態と結合して返す
	LoadSeatAssignments(ctx context.Context, showID int64) ([]SeatAssignment, error)

	// TotalSpent はユーザーの確定済み予約の合計金額を返す
	TotalSpent(ctx context.Context, userID int64) (decimal.Decimal, error)
}
