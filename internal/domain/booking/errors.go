package booking

import "errors"

// Booking ドメインのエラー定義
var (
	ErrBookingNotFound   = errors.New("予約が見つかりません")
	ErrBookingNotPending = errors.New("予約は保留中ではありません")
	ErrUnauthorized      = errors.New("予約の所有者ではありません")
	ErrSeatIDsRequired   = errors.New("座席IDは必須です")
	ErrUserIDRequired    = errors.New("ユーザーIDは必須です")
	ErrShowIDRequired    = errors.New("上映IDは必須です")
)
