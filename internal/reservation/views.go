package reservation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/seat"
)

// BookingView は外部層へ返す予約ビュー
type BookingView struct {
	ID          int64           `json:"id"`
	Status      booking.Status  `json:"status"`
	ExpiresAt   time.Time       `json:"expires_at"`
	SeatIDs     []int64         `json:"seat_ids"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// NewBookingView は予約エンティティからビューを作る
func NewBookingView(b *booking.Booking) BookingView {
	seatIDs := make([]int64, len(b.SeatIDs))
	copy(seatIDs, b.SeatIDs)
	return BookingView{
		ID:          b.ID,
		Status:      b.Status,
		ExpiresAt:   b.ExpiresAt,
		SeatIDs:     seatIDs,
		TotalAmount: b.TotalAmount,
	}
}

// SeatView は空席照会の1座席分のビュー
// Status は実効状態（期限切れロックはAVAILABLEに畳む）
// LeaseDeadline はLOCKEDの場合のみ設定される
type SeatView struct {
	SeatID        int64       `json:"seat_id"`
	Status        seat.Status `json:"status"`
	LeaseDeadline *time.Time  `json:"lease_deadline,omitempty"`
}

// NewSeatView は座席状態から指定時刻のビューを作る
func NewSeatView(st *seat.State, now time.Time) SeatView {
	v := SeatView{
		SeatID: st.SeatID,
		Status: st.EffectiveStatus(now),
	}
	if v.Status == seat.StatusLocked {
		d := st.LeaseDeadline
		v.LeaseDeadline = &d
	}
	return v
}
