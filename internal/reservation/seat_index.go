package reservation

import (
	"context"
	"fmt"
	"sync"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/booking"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/seat"
	"github.com/sanosuguru/go-movie-ticket-booking/internal/domain/show"
)

// showSeats は上映1件分の座席状態
// 内側のRWMutexはスナップショット読み取りとのデータ競合を防ぐためのもので、
// プロトコル上の変更は必ず上映ロック（ShowLock）下で行う
type showSeats struct {
	mu     sync.RWMutex
	loaded bool
	seats  map[int64]*seat.State
}

// SeatIndex は上映ごとの座席状態インデックス
// 台帳（Ledger）と整合するメモリ上の索引で、初回利用時に永続状態から構築する
type SeatIndex struct {
	mu      sync.Mutex
	shows   map[int64]*showSeats
	catalog show.Catalog
	ledger  booking.Ledger
}

// NewSeatIndex は新しいSeatIndexを作成する
func NewSeatIndex(catalog show.Catalog, ledger booking.Ledger) *SeatIndex {
	return &SeatIndex{
		shows:   make(map[int64]*showSeats),
		catalog: catalog,
		ledger:  ledger,
	}
}

// Load は上映の座席状態を永続ストアから構築する（冪等）
// 台帳の予約状態と結合し、終端予約が保持していた座席は空席に回収する
func (i *SeatIndex) Load(ctx context.Context, showID int64) error {
	ss := i.forShow(showID)

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.loaded {
		return nil
	}

	sh, err := i.catalog.GetShow(ctx, showID)
	if err != nil {
		return fmt.Errorf("上映取得に失敗: %w", err)
	}
	infos, err := i.catalog.GetSeatsForShow(ctx, showID)
	if err != nil {
		return fmt.Errorf("座席レイアウト取得に失敗: %w", err)
	}

	seats := make(map[int64]*seat.State, len(infos))
	for _, info := range infos {
		st, err := seat.NewState(info.SeatID, sh.PriceFor(info))
		if err != nil {
			return err
		}
		seats[info.SeatID] = st
	}

	assignments, err := i.ledger.LoadSeatAssignments(ctx, showID)
	if err != nil {
		return fmt.Errorf("%w: 座席割り当ての復元: %w", ErrStorage, err)
	}
	for _, a := range assignments {
		st, ok := seats[a.SeatID]
		if !ok {
			return fmt.Errorf("%w: 台帳の座席%dが上映%dに存在しません", ErrIndexInconsistent, a.SeatID, showID)
		}
		switch a.BookingStatus {
		case booking.StatusPending:
			if !st.IsAvailable() {
				return fmt.Errorf("%w: 座席%dが複数の予約に割り当てられています", ErrIndexInconsistent, a.SeatID)
			}
			if err := st.Lock(a.BookingID, a.ExpiresAt); err != nil {
				return err
			}
		case booking.StatusConfirmed:
			if !st.IsAvailable() {
				return fmt.Errorf("%w: 座席%dが複数の予約に割り当てられています", ErrIndexInconsistent, a.SeatID)
			}
			if err := st.Lock(a.BookingID, a.ExpiresAt); err != nil {
				return err
			}
			if err := st.Confirm(a.BookingID); err != nil {
				return err
			}
		default:
			// 終端予約（CANCELLED/EXPIRED）の座席は空席のまま
		}
	}

	ss.seats = seats
	ss.loaded = true
	return nil
}

// Snapshot は空席照会用の読み取り専用コピーを返す
// 上映ロックなしで呼べるが、返った瞬間から古くなりうる
func (i *SeatIndex) Snapshot(showID int64) []*seat.State {
	ss := i.forShow(showID)

	ss.mu.RLock()
	defer ss.mu.RUnlock()
	out := make([]*seat.State, 0, len(ss.seats))
	for _, st := range ss.seats {
		out = append(out, st.Clone())
	}
	return out
}

// Mutate は上映の座席マップに対する変更をデータロック下で実行する
// 呼び出し側がその上映のShowLockを保持していることが前提
func (i *SeatIndex) Mutate(showID int64, fn func(seats map[int64]*seat.State) error) error {
	ss := i.forShow(showID)

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if !ss.loaded {
		return fmt.Errorf("上映%dの座席インデックスが未構築です", showID)
	}
	return fn(ss.seats)
}

// Drop は上映のインデックスを破棄する（再構築テストや上映終了時の解放用）
func (i *SeatIndex) Drop(showID int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.shows, showID)
}

// forShow は上映のエントリを検索または生成する
// レジストリレベルのロックは検索・挿入の間だけ保持する
func (i *SeatIndex) forShow(showID int64) *showSeats {
	i.mu.Lock()
	defer i.mu.Unlock()
	ss, ok := i.shows[showID]
	if !ok {
		ss = &showSeats{seats: make(map[int64]*seat.State)}
		i.shows[showID] = ss
	}
	return ss
}
