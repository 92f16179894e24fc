package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/show"
)

type showRow struct {
	ID        int64           `db:"id"`
	ScreenID  int64           `db:"screen_id"`
	BasePrice decimal.Decimal `db:"base_price"`
	StartAt   time.Time       `db:"start_at"`
	EndAt     time.Time       `db:"end_at"`
}

type showSeatRow struct {
	SeatID     int64           `db:"seat_id"`
	Multiplier decimal.Decimal `db:"multiplier"`
}

// ShowCatalog はPostgreSQLによる上映カタログの読み取り専用実装
// 上映・座席の管理系操作はコア外のため持たない
type ShowCatalog struct{ db *sqlx.DB }

// NewShowCatalog は新しいShowCatalogを作成する
func NewShowCatalog(db *sqlx.DB) *ShowCatalog { return &ShowCatalog{db: db} }

// GetShow は上映を取得する
func (c *ShowCatalog) GetShow(ctx context.Context, showID int64) (*show.Show, error) {
	var row showRow
	if err := c.db.GetContext(ctx, &row,
		`SELECT id, screen_id, base_price, start_at, end_at FROM shows WHERE id = $1`, showID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, show.ErrShowNotFound
		}
		return nil, fmt.Errorf("上映取得に失敗: %w", err)
	}
	return &show.Show{
		ID: row.ID, ScreenID: row.ScreenID,
		BasePrice: row.BasePrice,
		StartAt:   row.StartAt, EndAt: row.EndAt,
	}, nil
}

// GetSeatsForShow は上映で有効な座席と価格係数を返す
func (c *ShowCatalog) GetSeatsForShow(ctx context.Context, showID int64) ([]show.SeatInfo, error) {
	var rows []showSeatRow
	if err := c.db.SelectContext(ctx, &rows,
		`SELECT seat_id, multiplier FROM show_seats WHERE show_id = $1 ORDER BY seat_id`, showID,
	); err != nil {
		return nil, fmt.Errorf("座席レイアウト取得に失敗: %w", err)
	}
	infos := make([]show.SeatInfo, len(rows))
	for i, row := range rows {
		infos[i] = show.SeatInfo{SeatID: row.SeatID, Multiplier: row.Multiplier}
	}
	return infos, nil
}
