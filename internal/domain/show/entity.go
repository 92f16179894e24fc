package show

import (
	"time"

	"github.com/shopspring/decimal"
)

// Show は予約コアから見た上映を表す
// 上映の座席レイアウトと基本価格、開始時刻のみを扱う
type Show struct {
	ID        int64
	ScreenID  int64
	BasePrice decimal.Decimal
	StartAt   time.Time
	EndAt     time.Time
}

// IsBookable は指定時刻に予約受付中かを返す
// 上映開始後は新規のロック取得を禁止する
func (s *Show) IsBookable(now time.Time) bool {
	return now.Before(s.StartAt)
}

// HasStarted は上映が開始済みかを返す
func (s *Show) HasStarted(now time.Time) bool {
	return !now.Before(s.StartAt)
}

// SeatInfo は上映で有効な座席と価格係数を表す
// 実売価格は BasePrice × Multiplier
type SeatInfo struct {
	SeatID     int64
	Multiplier decimal.Decimal
}

// PriceFor は座席の実売価格を返す
func (s *Show) PriceFor(info SeatInfo) decimal.Decimal {
	return s.BasePrice.Mul(info.Multiplier)
}
