package booking

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPending(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(15 * time.Minute)

	b, err := NewPending(10, 20, []int64{2, 3}, decimal.NewFromInt(3000), now, expires)

	require.NoError(t, err)
	assert.Equal(t, int64(0), b.ID) // IDは台帳が採番する
	assert.Equal(t, StatusPending, b.Status)
	assert.Equal(t, expires, b.ExpiresAt)
	assert.Empty(t, b.PaymentRef)
}

func TestNewPending_Validation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		userID  int64
		showID  int64
		seatIDs []int64
		wantErr error
	}{
		{"ユーザーIDなし", 0, 20, []int64{1}, ErrUserIDRequired},
		{"上映IDなし", 10, 0, []int64{1}, ErrShowIDRequired},
		{"座席なし", 10, 20, nil, ErrSeatIDsRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPending(tt.userID, tt.showID, tt.seatIDs, decimal.Zero, now, now.Add(time.Minute))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBooking_IsExpiredAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b, _ := NewPending(10, 20, []int64{1}, decimal.Zero, now, now.Add(time.Minute))

	assert.False(t, b.IsExpiredAt(now))
	assert.False(t, b.IsExpiredAt(now.Add(time.Minute))) // ちょうど期限は有効
	assert.True(t, b.IsExpiredAt(now.Add(time.Minute+time.Second)))
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())
}

func TestBooking_HoldsSeats(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b, _ := NewPending(10, 20, []int64{1}, decimal.Zero, now, now.Add(time.Minute))

	assert.True(t, b.HoldsSeats())

	b.Status = StatusConfirmed
	assert.True(t, b.HoldsSeats())

	b.Status = StatusCancelled
	assert.False(t, b.HoldsSeats())

	b.Status = StatusExpired
	assert.False(t, b.HoldsSeats())
}
