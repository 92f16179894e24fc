package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/sanosuguru/go-movie-ticket-booking/internal/pkg/clock"
)

// showLock は上映1件分の排他ロック
// 容量1のチャネルをセマフォとして使い、期限付き取得を可能にする
type showLock struct {
	sem      chan struct{}
	refs     int
	lastUsed time.Time
}

// LockRegistry は上映IDごとの排他ロックを管理する
// ロックは初回要求時に遅延生成され、静穏期間を過ぎた未使用ロックは回収される
//
// ロック順序規則: 同時に2つの上映ロックを保持してはならない
// 複数上映にまたがる操作はこのレジストリでは提供しない
type LockRegistry struct {
	mu             sync.Mutex
	locks          map[int64]*showLock
	acquireTimeout time.Duration
	quietPeriod    time.Duration
	lastSweep      time.Time
	clock          clock.Clock
}

// NewLockRegistry は新しいLockRegistryを作成する
func NewLockRegistry(acquireTimeout, quietPeriod time.Duration, clk clock.Clock) *LockRegistry {
	return &LockRegistry{
		locks:          make(map[int64]*showLock),
		acquireTimeout: acquireTimeout,
		quietPeriod:    quietPeriod,
		lastSweep:      clk.Now(),
		clock:          clk,
	}
}

// Acquire は上映ロックを取得し、解放関数を返す
// リクエストのctx期限が先に切れた場合はErrAcquireTimeout、
// 取得タイムアウト内に取れなかった場合はErrLockContentionを返す
// 解放関数は全ての経路で必ず呼ぶこと（deferを推奨）
func (r *LockRegistry) Acquire(ctx context.Context, showID int64) (func(), error) {
	l := r.checkout(showID)

	timer := time.NewTimer(r.acquireTimeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() {
				<-l.sem
				r.checkin(l)
			})
		}
		return release, nil
	case <-ctx.Done():
		r.checkin(l)
		return nil, ErrAcquireTimeout
	case <-timer.C:
		r.checkin(l)
		return nil, ErrLockContention
	}
}

// checkout はロックを検索または生成し、参照カウントを増やす
// レジストリロックは検索・挿入の間だけ保持し、上映ロック待機中には保持しない
func (r *LockRegistry) checkout(showID int64) *showLock {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if now.Sub(r.lastSweep) >= r.quietPeriod {
		r.sweepLocked(now)
		r.lastSweep = now
	}

	l, ok := r.locks[showID]
	if !ok {
		l = &showLock{sem: make(chan struct{}, 1)}
		r.locks[showID] = l
	}
	l.refs++
	return l
}

// checkin は参照カウントを減らし、最終使用時刻を更新する
func (r *LockRegistry) checkin(l *showLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	l.lastUsed = r.clock.Now()
}

// Sweep は未使用かつ静穏期間を過ぎたロックを回収する
// ロックはデータではなくプロセス内の排他プリミティブなので破棄しても安全
func (r *LockRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked(r.clock.Now())
}

func (r *LockRegistry) sweepLocked(now time.Time) int {
	removed := 0
	for id, l := range r.locks {
		if l.refs == 0 && now.Sub(l.lastUsed) >= r.quietPeriod {
			delete(r.locks, id)
			removed++
		}
	}
	return removed
}

// Len は登録中のロック数を返す
func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
