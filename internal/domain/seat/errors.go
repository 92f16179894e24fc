package seat

import "errors"

// Seat ドメインのエラー定義
var (
	ErrSeatNotFound      = errors.New("座席が見つかりません")
	ErrIllegalTransition = errors.New("不正な座席状態遷移です")
	ErrInvalidPrice      = errors.New("価格は0以上である必要があります")
)
