// Package parking は同梱の駐車場サブシステム
// 車両サイズ別のスロット割り当て、チケット発行、時間課金を提供する
package parking

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/pkg/clock"
)

// VehicleType は車両サイズを表す
type VehicleType string

const (
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleCar        VehicleType = "car"
	VehicleTruck      VehicleType = "truck"
)

// 駐車場のエラー定義
var (
	ErrLotFull        = errors.New("該当サイズの空きスロットがありません")
	ErrTicketNotFound = errors.New("チケットが見つかりません")
	ErrAlreadyParked  = errors.New("この車両は既に駐車中です")
)

// Slot は駐車スロットを表す
// スロットは固定サイズで、異なるサイズの車両は受け入れない
type Slot struct {
	Number   int
	Type     VehicleType
	occupied bool
}

// Ticket は駐車チケットを表す
type Ticket struct {
	Number     string
	Plate      string
	SlotNumber int
	EntryAt    time.Time
}

// Lot は駐車場を表す
type Lot struct {
	mu         sync.Mutex
	slots      []*Slot
	active     map[string]*Ticket // チケット番号 → チケット
	plates     map[string]string  // ナンバープレート → チケット番号
	hourlyRate decimal.Decimal
	clock      clock.Clock
	nextTicket int
}

// NewLot は駐車場を作成する。スロット番号はトラック→車→二輪の順で振る
func NewLot(carSlots, truckSlots, motorcycleSlots int, hourlyRate decimal.Decimal, clk clock.Clock) *Lot {
	l := &Lot{
		active:     make(map[string]*Ticket),
		plates:     make(map[string]string),
		hourlyRate: hourlyRate,
		clock:      clk,
		nextTicket: 1,
	}
	number := 1
	for i := 0; i < truckSlots; i++ {
		l.slots = append(l.slots, &Slot{Number: number, Type: VehicleTruck})
		number++
	}
	for i := 0; i < carSlots; i++ {
		l.slots = append(l.slots, &Slot{Number: number, Type: VehicleCar})
		number++
	}
	for i := 0; i < motorcycleSlots; i++ {
		l.slots = append(l.slots, &Slot{Number: number, Type: VehicleMotorcycle})
		number++
	}
	return l
}

// Park は車両を駐車しチケットを発行する
// スロットは車両サイズと厳密に一致するものだけを割り当てる
// （トラックスロットを車用として数える暗黙の読み替えはしない）
func (l *Lot) Park(plate string, vt VehicleType) (*Ticket, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, parked := l.plates[plate]; parked {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyParked, plate)
	}

	var slot *Slot
	for _, s := range l.slots {
		if !s.occupied && s.Type == vt {
			slot = s
			break
		}
	}
	if slot == nil {
		return nil, fmt.Errorf("%w: %s", ErrLotFull, vt)
	}

	slot.occupied = true
	t := &Ticket{
		Number:     fmt.Sprintf("TKT-%06d", l.nextTicket),
		Plate:      plate,
		SlotNumber: slot.Number,
		EntryAt:    l.clock.Now(),
	}
	l.nextTicket++
	l.active[t.Number] = t
	l.plates[plate] = t.Number
	return t, nil
}

// Exit は出庫を処理し料金を返す
func (l *Lot) Exit(ticketNumber string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.active[ticketNumber]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrTicketNotFound, ticketNumber)
	}

	fee := Fee(t.EntryAt, l.clock.Now(), l.hourlyRate)

	for _, s := range l.slots {
		if s.Number == t.SlotNumber {
			s.occupied = false
			break
		}
	}
	delete(l.active, ticketNumber)
	delete(l.plates, t.Plate)
	return fee, nil
}

// Fee は滞在時間から駐車料金を計算する
// 開始した時間単位ごとに課金する。ちょうど1時間の倍数の滞在には
// 余分な1時間を加算しない
func Fee(entry, exit time.Time, hourlyRate decimal.Decimal) decimal.Decimal {
	d := exit.Sub(entry)
	if d <= 0 {
		return hourlyRate // 最低1時間分
	}
	hours := int64(d / time.Hour)
	if d%time.Hour > 0 || hours == 0 {
		hours++
	}
	return hourlyRate.Mul(decimal.NewFromInt(hours))
}

// AvailableSlots は指定サイズの空きスロット数を返す（厳密一致）
func (l *Lot) AvailableSlots(vt VehicleType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, s := range l.slots {
		if !s.occupied && s.Type == vt {
			count++
		}
	}
	return count
}

// TotalSlots は総スロット数を返す
func (l *Lot) TotalSlots() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// OccupiedSlots は使用中スロット数を返す
func (l *Lot) OccupiedSlots() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, s := range l.slots {
		if s.occupied {
			count++
		}
	}
	return count
}

// IsFull は指定サイズが満車かを返す
func (l *Lot) IsFull(vt VehicleType) bool {
	return l.AvailableSlots(vt) == 0
}
