package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/seat"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/show"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/infrastructure/memory"
)

func seedShow(catalog *memory.Catalog, showID int64, seatCount int, basePrice int64, startAt time.Time) {
	infos := make([]show.SeatInfo, 0, seatCount)
	for i := 1; i <= seatCount; i++ {
		infos = append(infos, show.SeatInfo{SeatID: int64(i), Multiplier: decimal.NewFromInt(1)})
	}
	catalog.PutShow(&show.Show{
		ID:        showID,
		ScreenID:  1,
		BasePrice: decimal.NewFromInt(basePrice),
		StartAt:   startAt,
		EndAt:     startAt.Add(2 * time.Hour),
	}, infos)
}

func TestSeatIndex_Load(t *testing.T) {
	ctx := context.Background()
	baseTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	catalog := memory.NewCatalog()
	ledger := memory.NewLedger()
	seedShow(catalog, 1, 5, 10, baseTime.Add(2*time.Hour))

	idx := NewSeatIndex(catalog, ledger)
	require.NoError(t, idx.Load(ctx, 1))

	states := idx.Snapshot(1)
	require.Len(t, states, 5)
	for _, st := range states {
		assert.Equal(t, seat.StatusAvailable, st.Status)
		assert.True(t, decimal.NewFromInt(10).Equal(st.Price))
	}
}

func TestSeatIndex_LoadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	baseTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	catalog := memory.NewCatalog()
	ledger := memory.NewLedger()
	seedShow(catalog, 1, 3, 10, baseTime.Add(2*time.Hour))

	idx := NewSeatIndex(catalog, ledger)
	require.NoError(t, idx.Load(ctx, 1))

	// ロック状態をつけてから再ロードしても上書きされない
	require.NoError(t, idx.Mutate(1, func(seats map[int64]*seat.State) error {
		return seats[2].Lock(99, baseTime.Add(time.Minute))
	}))
	require.NoError(t, idx.Load(ctx, 1))

	states := idx.Snapshot(1)
	locked := 0
	for _, st := range states {
		if st.Status == seat.StatusLocked {
			locked++
		}
	}
	assert.Equal(t, 1, locked)
}

func TestSeatIndex_LoadRebuildsFromLedger(t *testing.T) {
	ctx := context.Background()
	baseTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := baseTime.Add(15 * time.Minute)

	catalog := memory.NewCatalog()
	ledger := memory.NewLedger()
	seedShow(catalog, 1, 5, 10, baseTime.Add(2*time.Hour))

	// 保留中予約（座席1,2）
	pending, err := booking.NewPending(10, 1, []int64{1, 2}, decimal.NewFromInt(20), baseTime, expires)
	require.NoError(t, err)
	require.NoError(t, ledger.InsertPending(ctx, pending, []booking.SeatCharge{
		{SeatID: 1, Price: decimal.NewFromInt(10)},
		{SeatID: 2, Price: decimal.NewFromInt(10)},
	}))

	// 確定済み予約（座席3）
	confirmed, err := booking.NewPending(11, 1, []int64{3}, decimal.NewFromInt(10), baseTime, expires)
	require.NoError(t, err)
	require.NoError(t, ledger.InsertPending(ctx, confirmed, []booking.SeatCharge{
		{SeatID: 3, Price: decimal.NewFromInt(10)},
	}))
	mutated, err := ledger.MarkConfirmed(ctx, confirmed.ID, "pay-1")
	require.NoError(t, err)
	require.True(t, mutated)

	// キャンセル済み予約（座席4）— 座席は空席に回収される
	cancelled, err := booking.NewPending(12, 1, []int64{4}, decimal.NewFromInt(10), baseTime, expires)
	require.NoError(t, err)
	require.NoError(t, ledger.InsertPending(ctx, cancelled, []booking.SeatCharge{
		{SeatID: 4, Price: decimal.NewFromInt(10)},
	}))
	mutated, err = ledger.MarkCancelled(ctx, cancelled.ID)
	require.NoError(t, err)
	require.True(t, mutated)

	idx := NewSeatIndex(catalog, ledger)
	require.NoError(t, idx.Load(ctx, 1))

	byID := make(map[int64]*seat.State)
	for _, st := range idx.Snapshot(1) {
		byID[st.SeatID] = st
	}

	assert.Equal(t, seat.StatusLocked, byID[1].Status)
	assert.Equal(t, pending.ID, byID[1].HolderBookingID)
	assert.Equal(t, expires, byID[1].LeaseDeadline)
	assert.Equal(t, seat.StatusLocked, byID[2].Status)
	assert.Equal(t, seat.StatusBooked, byID[3].Status)
	assert.Equal(t, confirmed.ID, byID[3].HolderBookingID)
	assert.Equal(t, seat.StatusAvailable, byID[4].Status)
	assert.Equal(t, seat.StatusAvailable, byID[5].Status)
}

func TestSeatIndex_LoadUnknownShow(t *testing.T) {
	idx := NewSeatIndex(memory.NewCatalog(), memory.NewLedger())

	err := idx.Load(context.Background(), 404)

	assert.ErrorIs(t, err, show.ErrShowNotFound)
}

func TestSeatIndex_MutateBeforeLoad(t *testing.T) {
	idx := NewSeatIndex(memory.NewCatalog(), memory.NewLedger())

	err := idx.Mutate(1, func(map[int64]*seat.State) error { return nil })

	assert.Error(t, err)
}

func TestSeatIndex_SnapshotIsCopy(t *testing.T) {
	ctx := context.Background()
	baseTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	catalog := memory.NewCatalog()
	ledger := memory.NewLedger()
	seedShow(catalog, 1, 2, 10, baseTime.Add(2*time.Hour))

	idx := NewSeatIndex(catalog, ledger)
	require.NoError(t, idx.Load(ctx, 1))

	snap := idx.Snapshot(1)
	snap[0].Status = seat.StatusMaintenance

	// スナップショットへの変更はインデックスに影響しない
	for _, st := range idx.Snapshot(1) {
		assert.Equal(t, seat.StatusAvailable, st.Status)
	}
}

func TestSeatIndex_Drop(t *testing.T) {
	ctx := context.Background()
	baseTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	catalog := memory.NewCatalog()
	ledger := memory.NewLedger()
	seedShow(catalog, 1, 2, 10, baseTime.Add(2*time.Hour))

	idx := NewSeatIndex(catalog, ledger)
	require.NoError(t, idx.Load(ctx, 1))
	require.NoError(t, idx.Mutate(1, func(seats map[int64]*seat.State) error {
		return seats[1].Lock(99, baseTime.Add(time.Minute))
	}))

	// Drop後の再ロードは台帳から再構築される（メモリ状態は破棄）
	idx.Drop(1)
	require.NoError(t, idx.Load(ctx, 1))
	for _, st := range idx.Snapshot(1) {
		assert.Equal(t, seat.StatusAvailable, st.Status)
	}
}
