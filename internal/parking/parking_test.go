package parking

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/pkg/clock"
)

var parkingBase = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestLot() (*Lot, *clock.Fake) {
	clk := clock.NewFake(parkingBase)
	lot := NewLot(2, 1, 1, decimal.NewFromInt(100), clk)
	return lot, clk
}

func TestLot_ParkAndExit(t *testing.T) {
	lot, clk := newTestLot()

	ticket, err := lot.Park("品川 300 あ 12-34", VehicleCar)
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.Number)
	assert.Equal(t, parkingBase, ticket.EntryAt)
	assert.Equal(t, 1, lot.AvailableSlots(VehicleCar))

	clk.Advance(90 * time.Minute)
	fee, err := lot.Exit(ticket.Number)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(200).Equal(fee), "90分は2時間分: got %s", fee)
	assert.Equal(t, 2, lot.AvailableSlots(VehicleCar))
}

func TestLot_Fee(t *testing.T) {
	rate := decimal.NewFromInt(100)

	tests := []struct {
		name     string
		duration time.Duration
		expected int64
	}{
		{"1分は1時間分", time.Minute, 100},
		{"ちょうど1時間は1時間分", time.Hour, 100},
		{"1時間1秒は2時間分", time.Hour + time.Second, 200},
		{"ちょうど3時間は3時間分", 3 * time.Hour, 300},
		{"滞在0は最低1時間分", 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee := Fee(parkingBase, parkingBase.Add(tt.duration), rate)
			assert.True(t, decimal.NewFromInt(tt.expected).Equal(fee), "got %s", fee)
		})
	}
}

func TestLot_StrictSlotSizes(t *testing.T) {
	lot, _ := newTestLot()

	// 車スロット2台分を使い切る
	_, err := lot.Park("car-1", VehicleCar)
	require.NoError(t, err)
	_, err = lot.Park("car-2", VehicleCar)
	require.NoError(t, err)

	// トラックスロットは空いていても車には割り当てない
	_, err = lot.Park("car-3", VehicleCar)
	assert.ErrorIs(t, err, ErrLotFull)
	assert.Equal(t, 1, lot.AvailableSlots(VehicleTruck), "トラックスロットは手つかず")
	assert.Equal(t, 0, lot.AvailableSlots(VehicleCar), "車の空きにトラックスロットを数えない")
}

func TestLot_DuplicatePlate(t *testing.T) {
	lot, _ := newTestLot()

	_, err := lot.Park("car-1", VehicleCar)
	require.NoError(t, err)

	_, err = lot.Park("car-1", VehicleCar)
	assert.ErrorIs(t, err, ErrAlreadyParked)
}

func TestLot_ExitUnknownTicket(t *testing.T) {
	lot, _ := newTestLot()

	_, err := lot.Exit("TKT-999999")

	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestLot_Counts(t *testing.T) {
	lot, _ := newTestLot()

	assert.Equal(t, 4, lot.TotalSlots())
	assert.Equal(t, 0, lot.OccupiedSlots())

	_, err := lot.Park("m-1", VehicleMotorcycle)
	require.NoError(t, err)
	_, err = lot.Park("t-1", VehicleTruck)
	require.NoError(t, err)

	assert.Equal(t, 2, lot.OccupiedSlots())
	assert.True(t, lot.IsFull(VehicleMotorcycle))
	assert.True(t, lot.IsFull(VehicleTruck))
	assert.False(t, lot.IsFull(VehicleCar))
}

func TestLot_ReusesFreedSlot(t *testing.T) {
	lot, clk := newTestLot()

	t1, err := lot.Park("m-1", VehicleMotorcycle)
	require.NoError(t, err)
	clk.Advance(time.Hour)
	_, err = lot.Exit(t1.Number)
	require.NoError(t, err)

	// 出庫後は同じスロットを再利用できる
	t2, err := lot.Park("m-2", VehicleMotorcycle)
	require.NoError(t, err)
	assert.Equal(t, t1.SlotNumber, t2.SlotNumber)
	assert.NotEqual(t, t1.Number, t2.Number, "チケット番号は再利用しない")
}
