package show

import "context"

// Catalog は上映カタログへの読み取り専用ポート
// 予約コアはカタログを参照するだけで、上映やスクリーンの管理は行わない
type Catalog interface {
	// GetShow は上映を取得する
	GetShow(ctx context.Context, showID int64) (*Show, error)

	// GetSeatsForShow は上映で有効な座席と価格係数を返す
	GetSeatsForShow(ctx context.Context, showID int64) ([]SeatInfo, error)
}
