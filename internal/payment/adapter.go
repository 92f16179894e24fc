package payment

import (
	"context"
	"errors"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/reservation"
)

// Confirmer は決済結果を予約コアへ伝える操作
type Confirmer interface {
	Confirm(ctx context.Context, bookingID int64, paymentRef string) (*booking.Booking, error)
	Cancel(ctx context.Context, bookingID, byUserID int64) error
	GetBooking(ctx context.Context, bookingID int64) (*booking.Booking, error)
}

// RefundInitiator は外部ゲートウェイへの返金開始ポート
// コアは返金の進行状態を追跡しない
type RefundInitiator interface {
	InitiateRefund(ctx context.Context, paymentRef string, bookingID int64) error
}

// CallbackAdapter は外部決済ゲートウェイの結果を確定/キャンセルに変換する
// 重複コールバックは確定/キャンセルの冪等性により吸収される
type CallbackAdapter struct {
	core    Confirmer
	refunds RefundInitiator
}

// NewCallbackAdapter は新しいCallbackAdapterを作成する
func NewCallbackAdapter(core Confirmer, refunds RefundInitiator) *CallbackAdapter {
	return &CallbackAdapter{core: core, refunds: refunds}
}

// HandleSuccess は決済成功コールバックを処理する
// リース期限切れで確定できなかった場合は返金を開始する
func (a *CallbackAdapter) HandleSuccess(ctx context.Context, bookingID int64, paymentRef string) error {
	_, err := a.core.Confirm(ctx, bookingID, paymentRef)
	if err == nil {
		return nil
	}

	if errors.Is(err, reservation.ErrLeaseExpired) {
		logger.Warn("リース期限切れのため返金を開始",
			logger.BookingID(bookingID),
			logger.PaymentRef(paymentRef),
		)
		if rerr := a.refunds.InitiateRefund(ctx, paymentRef, bookingID); rerr != nil {
			return rerr
		}
		return nil
	}

	if errors.Is(err, booking.ErrBookingNotPending) {
		// 重複コールバック: 既に確定済みなら吸収する
		b, gerr := a.core.GetBooking(ctx, bookingID)
		if gerr == nil && b.Status == booking.StatusConfirmed {
			logger.Debug("重複した決済成功コールバックを吸収",
				logger.BookingID(bookingID),
			)
			return nil
		}
	}
	return err
}

// HandleFailure は決済失敗・タイムアウトコールバックを処理する
// キャンセルは冪等なので重複コールバックはそのまま成功する
func (a *CallbackAdapter) HandleFailure(ctx context.Context, bookingID, ownerUserID int64) error {
	if err := a.core.Cancel(ctx, bookingID, ownerUserID); err != nil {
		return err
	}
	logger.Info("決済失敗により予約をキャンセル",
		logger.BookingID(bookingID),
	)
	return nil
}
