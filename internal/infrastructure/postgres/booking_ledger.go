package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/booking"
)

type bookingRow struct {
	ID          int64           `db:"id"`
	UserID      int64           `db:"user_id"`
	ShowID      int64           `db:"show_id"`
	Status      string          `db:"status"`
	TotalAmount decimal.Decimal `db:"total_amount"`
	CreatedAt   time.Time       `db:"created_at"`
	ExpiresAt   time.Time       `db:"expires_at"`
	PaymentRef  sql.NullString  `db:"payment_ref"`
}

func (r *bookingRow) toEntity(seatIDs []int64) *booking.Booking {
	b := &booking.Booking{
		ID: r.ID, UserID: r.UserID, ShowID: r.ShowID,
		SeatIDs: seatIDs, Status: booking.Status(r.Status),
		TotalAmount: r.TotalAmount,
		CreatedAt:   r.CreatedAt, ExpiresAt: r.ExpiresAt,
	}
	if r.PaymentRef.Valid {
		b.PaymentRef = r.PaymentRef.String
	}
	return b
}

// BookingLedger はPostgreSQLによる予約台帳
// 行は削除されず、状態遷移は全て条件付きUPDATEで行う
type BookingLedger struct{ db *sqlx.DB }

// NewBookingLedger は新しいBookingLedgerを作成する
func NewBookingLedger(db *sqlx.DB) *BookingLedger { return &BookingLedger{db: db} }

const bookingColumns = `id, user_id, show_id, status, total_amount, created_at, expires_at, payment_ref`

// InsertPending は保留中予約と座席明細をトランザクションで挿入しIDを採番する
func (l *BookingLedger) InsertPending(ctx context.Context, b *booking.Booking, charges []booking.SeatCharge) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO bookings (user_id, show_id, status, total_amount, created_at, expires_at) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	if err := tx.QueryRowContext(ctx, query, b.UserID, b.ShowID, string(b.Status), b.TotalAmount, b.CreatedAt, b.ExpiresAt).Scan(&b.ID); err != nil {
		return fmt.Errorf("予約挿入に失敗: %w", err)
	}
	for _, c := range charges {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO booking_seats (booking_id, seat_id, price) VALUES ($1, $2, $3)`,
			b.ID, c.SeatID, c.Price,
		); err != nil {
			return fmt.Errorf("座席明細挿入に失敗: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

// MarkConfirmed はPENDINGの予約のみをCONFIRMEDに遷移する
func (l *BookingLedger) MarkConfirmed(ctx context.Context, bookingID int64, paymentRef string) (bool, error) {
	result, err := l.db.ExecContext(ctx,
		`UPDATE bookings SET status = $1, payment_ref = $2 WHERE id = $3 AND status = $4`,
		string(booking.StatusConfirmed), paymentRef, bookingID, string(booking.StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("予約確定に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// MarkCancelled はPENDING/CONFIRMEDの予約のみをCANCELLEDに遷移する
func (l *BookingLedger) MarkCancelled(ctx context.Context, bookingID int64) (bool, error) {
	result, err := l.db.ExecContext(ctx,
		`UPDATE bookings SET status = $1 WHERE id = $2 AND status IN ($3, $4)`,
		string(booking.StatusCancelled), bookingID,
		string(booking.StatusPending), string(booking.StatusConfirmed),
	)
	if err != nil {
		return false, fmt.Errorf("予約キャンセルに失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// MarkExpired はPENDINGの予約のみをEXPIREDに遷移する
func (l *BookingLedger) MarkExpired(ctx context.Context, bookingID int64) (bool, error) {
	result, err := l.db.ExecContext(ctx,
		`UPDATE bookings SET status = $1 WHERE id = $2 AND status = $3`,
		string(booking.StatusExpired), bookingID, string(booking.StatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("予約失効に失敗: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// GetByID は予約を取得する
func (l *BookingLedger) GetByID(ctx context.Context, bookingID int64) (*booking.Booking, error) {
	var row bookingRow
	if err := l.db.GetContext(ctx, &row,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, bookingID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("予約取得に失敗: %w", err)
	}
	seatIDs, err := l.getSeatIDs(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return row.toEntity(seatIDs), nil
}

// GetByUserID はユーザーの予約一覧を新しい順に取得する
func (l *BookingLedger) GetByUserID(ctx context.Context, userID int64, limit, offset int) ([]*booking.Booking, error) {
	var rows []bookingRow
	if err := l.db.SelectContext(ctx, &rows,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	); err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	result := make([]*booking.Booking, len(rows))
	for i, row := range rows {
		seatIDs, err := l.getSeatIDs(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		result[i] = row.toEntity(seatIDs)
	}
	return result, nil
}

// FindPendingExpiringBefore は期限がt以前の保留中予約を返す（リーパー用）
func (l *BookingLedger) FindPendingExpiringBefore(ctx context.Context, t time.Time) ([]*booking.Booking, error) {
	var rows []bookingRow
	if err := l.db.SelectContext(ctx, &rows,
		`SELECT `+bookingColumns+` FROM bookings WHERE status = $1 AND expires_at <= $2 ORDER BY expires_at`,
		string(booking.StatusPending), t,
	); err != nil {
		return nil, fmt.Errorf("期限切れ予約取得に失敗: %w", err)
	}
	result := make([]*booking.Booking, len(rows))
	for i, row := range rows {
		seatIDs, err := l.getSeatIDs(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		result[i] = row.toEntity(seatIDs)
	}
	return result, nil
}

type assignmentRow struct {
	SeatID    int64           `db:"seat_id"`
	BookingID int64           `db:"booking_id"`
	Status    string          `db:"status"`
	ExpiresAt time.Time       `db:"expires_at"`
	Price     decimal.Decimal `db:"price"`
}

// LoadSeatAssignments は上映の座席割り当てを予約状態と結合して返す
// SeatIndexの再構築（クラッシュリカバリ）に使う
func (l *BookingLedger) LoadSeatAssignments(ctx context.Context, showID int64) ([]booking.SeatAssignment, error) {
	var rows []assignmentRow
	if err := l.db.SelectContext(ctx, &rows,
		`SELECT bs.seat_id, bs.booking_id, b.status, b.expires_at, bs.price
		 FROM booking_seats bs
		 JOIN bookings b ON b.id = bs.booking_id
		 WHERE b.show_id = $1 AND b.status IN ($2, $3)`,
		showID, string(booking.StatusPending), string(booking.StatusConfirmed),
	); err != nil {
		return nil, fmt.Errorf("座席割り当て取得に失敗: %w", err)
	}
	assignments := make([]booking.SeatAssignment, len(rows))
	for i, row := range rows {
		assignments[i] = booking.SeatAssignment{
			SeatID:        row.SeatID,
			BookingID:     row.BookingID,
			BookingStatus: booking.Status(row.Status),
			ExpiresAt:     row.ExpiresAt,
			Price:         row.Price,
		}
	}
	return assignments, nil
}

// TotalSpent はユーザーの確定済み予約の合計金額を返す
func (l *BookingLedger) TotalSpent(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := l.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(total_amount), 0) FROM bookings WHERE user_id = $1 AND status = $2`,
		userID, string(booking.StatusConfirmed),
	); err != nil {
		return decimal.Zero, fmt.Errorf("合計金額取得に失敗: %w", err)
	}
	return total, nil
}

func (l *BookingLedger) getSeatIDs(ctx context.Context, bookingID int64) ([]int64, error) {
	var seatIDs []int64
	if err := l.db.SelectContext(ctx, &seatIDs,
		`SELECT seat_id FROM booking_seats WHERE booking_id = $1 ORDER BY seat_id`, bookingID,
	); err != nil {
		return nil, fmt.Errorf("座席ID取得に失敗: %w", err)
	}
	return seatIDs, nil
}
