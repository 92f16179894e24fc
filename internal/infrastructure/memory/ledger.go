package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/booking"
)

// Ledger はメモリ上の予約台帳
// テストとローカル動作確認用。PostgreSQL実装と同じ契約を満たす
type Ledger struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]*booking.Booking
	charges map[int64][]booking.SeatCharge
}

// NewLedger は新しいメモリ台帳を作成する
func NewLedger() *Ledger {
	return &Ledger{
		nextID:  1,
		rows:    make(map[int64]*booking.Booking),
		charges: make(map[int64][]booking.SeatCharge),
	}
}

// InsertPending は保留中予約を挿入しIDを採番する
func (l *Ledger) InsertPending(_ context.Context, b *booking.Booking, charges []booking.SeatCharge) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b.ID = l.nextID
	l.nextID++

	stored := cloneBooking(b)
	l.rows[b.ID] = stored
	cs := make([]booking.SeatCharge, len(charges))
	copy(cs, charges)
	l.charges[b.ID] = cs
	return nil
}

// MarkConfirmed はPENDINGの予約のみをCONFIRMEDに遷移する
func (l *Ledger) MarkConfirmed(_ context.Context, bookingID int64, paymentRef string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.rows[bookingID]
	if !ok || b.Status != booking.StatusPending {
		return false, nil
	}
	b.Status = booking.StatusConfirmed
	b.PaymentRef = paymentRef
	return true, nil
}

// MarkCancelled はPENDING/CONFIRMEDの予約のみをCANCELLEDに遷移する
func (l *Ledger) MarkCancelled(_ context.Context, bookingID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.rows[bookingID]
	if !ok || (b.Status != booking.StatusPending && b.Status != booking.StatusConfirmed) {
		return false, nil
	}
	b.Status = booking.StatusCancelled
	return true, nil
}

// MarkExpired はPENDINGの予約のみをEXPIREDに遷移する
func (l *Ledger) MarkExpired(_ context.Context, bookingID int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.rows[bookingID]
	if !ok || b.Status != booking.StatusPending {
		return false, nil
	}
	b.Status = booking.StatusExpired
	return true, nil
}

// GetByID は予約を取得する
func (l *Ledger) GetByID(_ context.Context, bookingID int64) (*booking.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.rows[bookingID]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

// GetByUserID はユーザーの予約一覧を新しい順に取得する
func (l *Ledger) GetByUserID(_ context.Context, userID int64, limit, offset int) ([]*booking.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var result []*booking.Booking
	for _, b := range l.rows {
		if b.UserID == userID {
			result = append(result, cloneBooking(b))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

// FindPendingExpiringBefore は期限がt以前の保留中予約を返す
func (l *Ledger) FindPendingExpiringBefore(_ context.Context, t time.Time) ([]*booking.Booking, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var result []*booking.Booking
	for _, b := range l.rows {
		if b.Status == booking.StatusPending && !b.ExpiresAt.After(t) {
			result = append(result, cloneBooking(b))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ExpiresAt.Before(result[j].ExpiresAt) })
	return result, nil
}

// LoadSeatAssignments は上映の座席割り当てを非終端予約について返す
func (l *Ledger) LoadSeatAssignments(_ context.Context, showID int64) ([]booking.SeatAssignment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var assignments []booking.SeatAssignment
	for id, b := range l.rows {
		if b.ShowID != showID || !b.HoldsSeats() {
			continue
		}
		for _, c := range l.charges[id] {
			assignments = append(assignments, booking.SeatAssignment{
				SeatID:        c.SeatID,
				BookingID:     id,
				BookingStatus: b.Status,
				ExpiresAt:     b.ExpiresAt,
				Price:         c.Price,
			})
		}
	}
	return assignments, nil
}

// TotalSpent はユーザーの確定済み予約の合計金額を返す
func (l *Ledger) TotalSpent(_ context.Context, userID int64) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := decimal.Zero
	for _, b := range l.rows {
		if b.UserID == userID && b.Status == booking.StatusConfirmed {
			total = total.Add(b.TotalAmount)
		}
	}
	return total, nil
}

func cloneBooking(b *booking.Booking) *booking.Booking {
	c := *b
	c.SeatIDs = make([]int64, len(b.SeatIDs))
	copy(c.SeatIDs, b.SeatIDs)
	return &c
}
