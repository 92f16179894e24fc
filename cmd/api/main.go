package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/config"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/infrastructure/rabbitmq"
	redisinfra "github.com/sanosuguru/go-movie-ticket-booking/internal/infrastructure/redis"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/payment"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/pkg/clock"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/pkg/logger"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/pkg/metrics"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/reservation"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/worker"
)

// noopRefunds は返金開始ポートの暫定実装
// 外部ゲートウェイ連携はコア外のため、ログに残すのみ
type noopRefunds struct{}

func (noopRefunds) InitiateRefund(_ context.Context, paymentRef string, bookingID int64) error {
	logger.Warn("返金要求を記録（ゲートウェイ連携は外部層の責務）",
		logger.PaymentRef(paymentRef),
		logger.BookingID(bookingID),
	)
	return nil
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("設定が不正です", zap.Error(err))
	}

	log := logger.NewLogger(os.Getenv("APP_ENV"))
	logger.Set(log)
	defer logger.Sync()

	m := metrics.Init()

	// データベース接続とマイグレーション
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("データベース接続に失敗", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.RunMigrations(db.DB, &cfg.Database); err != nil {
		logger.Fatal("マイグレーションに失敗", zap.Error(err))
	}

	ledger := postgres.NewBookingLedger(db)
	catalog := postgres.NewShowCatalog(db)

	// Redisは任意（未接続でもコアは動作する）
	var cache reservation.AvailabilityCache
	redisClient := redisinfra.NewClient(&cfg.Redis)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisinfra.Ping(pingCtx, redisClient); err != nil {
		logger.Warn("Redis未接続のため空席キャッシュを無効化", zap.Error(err))
	} else {
		cache = redisinfra.NewAvailabilityCache(redisClient, 5*time.Second)
		defer redisClient.Close()
	}
	cancelPing()

	clk := clock.NewReal()
	locks := reservation.NewLockRegistry(cfg.Booking.LockAcquireTimeout, cfg.Booking.LockQuietPeriod, clk)
	index := reservation.NewSeatIndex(catalog, ledger)
	engine := reservation.NewEngine(ledger, catalog, locks, index, clk, reservation.Config{
		DefaultLease:              cfg.Booking.DefaultLease,
		ClockSkewTolerance:        cfg.Booking.ClockSkewTolerance,
		CancelConfirmedAfterStart: cfg.Booking.CancelConfirmedAfterStart,
	}, m, cache)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 期限切れリースのリーパー
	reaper := worker.NewExpiryReaper(ledger, engine, clk, cfg.Booking.ReaperTick)
	go reaper.Start(ctx)

	// 決済結果コンシューマ
	adapter := payment.NewCallbackAdapter(engine, noopRefunds{})
	consumer := rabbitmq.NewPaymentConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.PaymentQueue, adapter)
	go consumer.Start(ctx)

	// 運用エンドポイント（予約APIのルーティングは外部層の責務）
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	e.GET("/health", func(c echo.Context) error {
		if err := postgres.Ping(c.Request().Context(), db); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "db unreachable"})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ok",
			"time":   clk.Now().Format(time.RFC3339),
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	go func() {
		if err := e.Start(fmt.Sprintf(":%s", cfg.Server.Port)); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー起動エラー", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("サーバーをシャットダウンしています...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
	}

	logger.Info("サーバーが正常にシャットダウンしました")
}
