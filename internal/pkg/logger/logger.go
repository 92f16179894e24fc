package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger

func init() {
	log = NewLogger(os.Getenv("APP_ENV"))
}

// NewLogger は環境に応じた予約コア用のzapロガーを作成する
// production はJSON出力、それ以外は開発用のカラー出力になる
func NewLogger(env string) *zap.Logger {
	var config zap.Config
	if env == "production" {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(lvl)); err == nil {
			config.Level = zap.NewAtomicLevelAt(level)
		}
	}

	logger, _ := config.Build()
	return logger.Named("booking")
}

func Get() *zap.Logger {
	return log
}

func Set(l *zap.Logger) {
	log = l
}

// 予約ドメインの定型フィールド
// 全ログでキー名を揃えるため、生のzap.Int64等ではなくこちらを使う

// BookingID は予約IDフィールドを作る
func BookingID(id int64) zap.Field {
	return zap.Int64("booking_id", id)
}

// ShowID は上映IDフィールドを作る
func ShowID(id int64) zap.Field {
	return zap.Int64("show_id", id)
}

// UserID はユーザーIDフィールドを作る
func UserID(id int64) zap.Field {
	return zap.Int64("user_id", id)
}

// SeatIDs は座席IDリストのフィールドを作る
func SeatIDs(ids []int64) zap.Field {
	return zap.Int64s("seat_ids", ids)
}

// PaymentRef は決済参照のフィールドを作る
func PaymentRef(ref string) zap.Field {
	return zap.String("payment_ref", ref)
}

func Info(msg string, fields ...zap.Field) {
	log.Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	log.Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	log.Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	log.Warn(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	log.Fatal(msg, fields...)
}

func With(fields ...zap.Field) *zap.Logger {
	return log.With(fields...)
}

func Sync() error {
	return log.Sync()
}
