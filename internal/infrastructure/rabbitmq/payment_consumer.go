package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/pkg/logger"
)

// PaymentOutcome は決済ゲートウェイが発行する結果メッセージ
type PaymentOutcome struct {
	MessageID  string `json:"message_id"`
	BookingID  int64  `json:"booking_id"`
	UserID     int64  `json:"user_id"`
	Status     string `json:"status"` // success / failure / timeout
	PaymentRef string `json:"payment_ref"`
}

// OutcomeHandler は決済結果を予約コアへ伝えるインターフェース
// CallbackAdapter が実装を提供する
type OutcomeHandler interface {
	HandleSuccess(ctx context.Context, bookingID int64, paymentRef string) error
	HandleFailure(ctx context.Context, bookingID, ownerUserID int64) error
}

// PaymentConsumer は決済結果キューを購読しアダプタへ流し込む
// 接続断は指数バックオフで再接続し、処理に失敗したメッセージは
// 再配達ループを避けるためrequeueせずに破棄する
type PaymentConsumer struct {
	url     string
	queue   string
	handler OutcomeHandler
}

// NewPaymentConsumer は新しいPaymentConsumerを作成する
func NewPaymentConsumer(url, queue string, handler OutcomeHandler) *PaymentConsumer {
	return &PaymentConsumer{url: url, queue: queue, handler: handler}
}

// Start はコンシューマを開始する。ctxがキャンセルされるまで動き続ける
func (c *PaymentConsumer) Start(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			logger.Info("決済結果コンシューマ停止")
			return
		default:
		}

		conn, err := amqp.Dial(c.url)
		if err != nil {
			logger.Warn("ブローカー接続に失敗",
				zap.Error(err),
				zap.Duration("retry_in", backoff),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // 接続成功でリセット

		if err := c.consumeLoop(ctx, conn); err != nil {
			logger.Warn("購読ループ終了、再接続します", zap.Error(err))
		}
		_ = conn.Close()
	}
}

func (c *PaymentConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("チャネル開設に失敗: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn("QoS設定に失敗", zap.Error(err))
	}

	// 耐久キュー（ブローカー再起動でもメッセージを保持）
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("キュー宣言に失敗: %w", err)
	}

	consumerTag := "payment-consumer-" + uuid.NewString()
	msgs, err := ch.Consume(c.queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("購読開始に失敗: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("配信チャネルがクローズされました")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				logger.Error("決済結果の処理に失敗", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *PaymentConsumer) handle(ctx context.Context, body []byte) error {
	var outcome PaymentOutcome
	if err := json.Unmarshal(body, &outcome); err != nil {
		return fmt.Errorf("メッセージ復号に失敗: %w", err)
	}
	if outcome.MessageID == "" {
		outcome.MessageID = uuid.NewString()
	}
	logger.Debug("決済結果を受信",
		zap.String("message_id", outcome.MessageID),
		logger.BookingID(outcome.BookingID),
		zap.String("status", outcome.Status),
	)

	switch outcome.Status {
	case "success":
		return c.handler.HandleSuccess(ctx, outcome.BookingID, outcome.PaymentRef)
	case "failure", "timeout":
		return c.handler.HandleFailure(ctx, outcome.BookingID, outcome.UserID)
	default:
		return fmt.Errorf("未知の決済結果: %s", outcome.Status)
	}
}
