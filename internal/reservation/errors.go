package reservation

import (
	"errors"
	"fmt"
)

// 予約プロトコルのエラー定義
// エラー種別はAPI境界までそのまま伝播させる（コア内で握り潰さない）
var (
	ErrSeatUnavailable        = errors.New("座席は空席ではありません")
	ErrInvalidSeats           = errors.New("座席指定が不正です")
	ErrShowNotBookable        = errors.New("上映は予約を受け付けていません")
	ErrLeaseExpired           = errors.New("座席リースの期限が切れています")
	ErrCancellationNotAllowed = errors.New("上映開始後の確定済み予約はキャンセルできません")
	ErrLockContention         = errors.New("上映ロックを時間内に取得できませんでした")
	ErrAcquireTimeout         = errors.New("リクエスト期限内に上映ロックを取得できませんでした")
	ErrIndexInconsistent      = errors.New("座席インデックスと台帳の不整合を検出しました")

	// ErrStorage は台帳I/Oの失敗を示す
	// 部分的な状態は残らないため、呼び出し側はそのままリトライできる
	ErrStorage = errors.New("台帳の読み書きに失敗しました")

	// ErrCacheMiss はAvailabilityCacheにスナップショットがないことを示す
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// SeatUnavailableError は競合した座席IDを保持するエラー
// errors.Is(err, ErrSeatUnavailable) で判別できる
type SeatUnavailableError struct {
	SeatIDs []int64
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("座席は空席ではありません: %v", e.SeatIDs)
}

// Unwrap はセンチネルエラーを返す
func (e *SeatUnavailableError) Unwrap() error {
	return ErrSeatUnavailable
}
