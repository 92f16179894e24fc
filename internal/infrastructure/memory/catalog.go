package memory

import (
	"context"
	"sync"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/show"
)

// Catalog はメモリ上の上映カタログ
// テストとローカル動作確認用
type Catalog struct {
	mu    sync.RWMutex
	shows map[int64]*show.Show
	seats map[int64][]show.SeatInfo
}

// NewCatalog は新しいメモリカタログを作成する
func NewCatalog() *Catalog {
	return &Catalog{
		shows: make(map[int64]*show.Show),
		seats: make(map[int64][]show.SeatInfo),
	}
}

// PutShow は上映と座席レイアウトを登録する
func (c *Catalog) PutShow(sh *show.Show, seats []show.SeatInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shows[sh.ID] = sh
	c.seats[sh.ID] = seats
}

// GetShow は上映を取得する
func (c *Catalog) GetShow(_ context.Context, showID int64) (*show.Show, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sh, ok := c.shows[showID]
	if !ok {
		return nil, show.ErrShowNotFound
	}
	copied := *sh
	return &copied, nil
}

// GetSeatsForShow は上映で有効な座席と価格係数を返す
func (c *Catalog) GetSeatsForShow(_ context.Context, showID int64) ([]show.SeatInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	infos, ok := c.seats[showID]
	if !ok {
		return nil, show.ErrShowNotFound
	}
	out := make([]show.SeatInfo, len(infos))
	copy(out, infos)
	return out, nil
}
