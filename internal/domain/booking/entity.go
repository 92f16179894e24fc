package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status は予約の状態を表す
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// IsTerminal は終端状態かを返す
// CONFIRMEDは予約ライフサイクル上は終端だが、キャンセルポリシーにより解約されうる
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

// Booking は予約エンティティを表す
// IDは台帳（Ledger）が採番する。メモリ上のカウンタは使わない
type Booking struct {
	ID          int64
	UserID      int64
	ShowID      int64
	SeatIDs     []int64
	TotalAmount decimal.Decimal
	Status      Status
	PaymentRef  string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// NewPending は保留中の予約を作成する（ID未採番）
// expiresAt は座席リースの初期期限と等しい
func NewPending(userID, showID int64, seatIDs []int64, totalAmount decimal.Decimal, createdAt, expiresAt time.Time) (*Booking, error) {
	b := &Booking{
		UserID:      userID,
		ShowID:      showID,
		SeatIDs:     seatIDs,
		TotalAmount: totalAmount,
		Status:      StatusPending,
		CreatedAt:   createdAt,
		ExpiresAt:   expiresAt,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate は予約の検証を行う
func (b *Booking) Validate() error {
	if b.UserID == 0 {
		return ErrUserIDRequired
	}
	if b.ShowID == 0 {
		return ErrShowIDRequired
	}
	if len(b.SeatIDs) == 0 {
		return ErrSeatIDsRequired
	}
	return nil
}

// IsPending は予約が保留中かを返す
func (b *Booking) IsPending() bool {
	return b.Status == StatusPending
}

// IsExpiredAt は指定時刻において期限切れかを返す
func (b *Booking) IsExpiredAt(now time.Time) bool {
	return now.After(b.ExpiresAt)
}

// HoldsSeats は座席の所有権を保持しているかを返す
// PENDING/CONFIRMEDの間だけ座席を占有する
func (b *Booking) HoldsSeats() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}
