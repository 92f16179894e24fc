package seat

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status は座席の状態を表す
type Status string

const (
	StatusAvailable   Status = "available"
	StatusLocked      Status = "locked"
	StatusBooked      Status = "booked"
	StatusMaintenance Status = "maintenance"
)

// State は上映×座席ごとの状態を表す
// HolderBookingID はLOCKED/BOOKED時のみ有効（0は保持者なし）
// LeaseDeadline はLOCKED時のみ意味を持つ
type State struct {
	SeatID          int64
	Status          Status
	HolderBookingID int64
	LeaseDeadline   time.Time
	Price           decimal.Decimal
}

// NewState は空席状態のStateを作成する
func NewState(seatID int64, price decimal.Decimal) (*State, error) {
	if price.IsNegative() {
		return nil, ErrInvalidPrice
	}
	return &State{
		SeatID: seatID,
		Status: StatusAvailable,
		Price:  price,
	}, nil
}

// IsAvailable は座席がロック可能かを返す
func (s *State) IsAvailable() bool {
	return s.Status == StatusAvailable
}

// Lock は座席をロック状態にする
func (s *State) Lock(bookingID int64, deadline time.Time) error {
	if s.Status != StatusAvailable {
		return fmt.Errorf("%w: 座席%dは%sのためロックできません", ErrIllegalTransition, s.SeatID, s.Status)
	}
	s.Status = StatusLocked
	s.HolderBookingID = bookingID
	s.LeaseDeadline = deadline
	return nil
}

// Renew はリース期限を延長する（期限は後ろにしか動かせない）
func (s *State) Renew(deadline time.Time) error {
	if s.Status != StatusLocked {
		return fmt.Errorf("%w: 座席%dはロックされていないため延長できません", ErrIllegalTransition, s.SeatID)
	}
	if !deadline.After(s.LeaseDeadline) {
		return fmt.Errorf("%w: 座席%dのリース期限は短縮できません", ErrIllegalTransition, s.SeatID)
	}
	s.LeaseDeadline = deadline
	return nil
}

// Confirm は座席を予約確定状態にする（保持者が一致する場合のみ）
func (s *State) Confirm(bookingID int64) error {
	if s.Status != StatusLocked {
		return fmt.Errorf("%w: 座席%dは%sのため確定できません", ErrIllegalTransition, s.SeatID, s.Status)
	}
	if s.HolderBookingID != bookingID {
		return fmt.Errorf("%w: 座席%dの保持者は予約%dではありません", ErrIllegalTransition, s.SeatID, bookingID)
	}
	s.Status = StatusBooked
	s.LeaseDeadline = time.Time{}
	return nil
}

// Release は座席を空席に戻す（保持者が一致する場合のみ）
// キャンセルによるLOCKED/BOOKED両方からの解放に使う
func (s *State) Release(bookingID int64) error {
	if s.Status != StatusLocked && s.Status != StatusBooked {
		return fmt.Errorf("%w: 座席%dは%sのため解放できません", ErrIllegalTransition, s.SeatID, s.Status)
	}
	if s.HolderBookingID != bookingID {
		return fmt.Errorf("%w: 座席%dの保持者は予約%dではありません", ErrIllegalTransition, s.SeatID, bookingID)
	}
	s.Status = StatusAvailable
	s.HolderBookingID = 0
	s.LeaseDeadline = time.Time{}
	return nil
}

// Reap は期限切れロックを回収して空席に戻す
// リース期限を過ぎていない場合は不正遷移
func (s *State) Reap(now time.Time) error {
	if s.Status != StatusLocked {
		return fmt.Errorf("%w: 座席%dはロックされていないため回収できません", ErrIllegalTransition, s.SeatID)
	}
	if !now.After(s.LeaseDeadline) {
		return fmt.Errorf("%w: 座席%dのリースは期限切れではありません", ErrIllegalTransition, s.SeatID)
	}
	s.Status = StatusAvailable
	s.HolderBookingID = 0
	s.LeaseDeadline = time.Time{}
	return nil
}

// EnterMaintenance は座席を整備中にする（空席からのみ）
func (s *State) EnterMaintenance() error {
	if s.Status != StatusAvailable {
		return fmt.Errorf("%w: 座席%dは%sのため整備中にできません", ErrIllegalTransition, s.SeatID, s.Status)
	}
	s.Status = StatusMaintenance
	return nil
}

// ClearMaintenance は整備中の座席を空席に戻す
func (s *State) ClearMaintenance() error {
	if s.Status != StatusMaintenance {
		return fmt.Errorf("%w: 座席%dは整備中ではありません", ErrIllegalTransition, s.SeatID)
	}
	s.Status = StatusAvailable
	return nil
}

// EffectiveStatus は閲覧用の実効状態を返す
// 期限切れのLOCKEDは回収前でもAVAILABLEとして扱う
func (s *State) EffectiveStatus(now time.Time) Status {
	if s.Status == StatusLocked && now.After(s.LeaseDeadline) {
		return StatusAvailable
	}
	return s.Status
}

// Clone はスナップショット用のコピーを返す
func (s *State) Clone() *State {
	c := *s
	return &c
}
