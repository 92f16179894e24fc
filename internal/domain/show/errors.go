package show

import "errors"

// Show ドメインのエラー定義
var (
	ErrShowNotFound = errors.New("上映が見つかりません")
)
