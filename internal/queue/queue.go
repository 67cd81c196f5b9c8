// Package queue はリソース種別ごとの更新待ちキューを提供する。
// キーは一意で、再投入は重複せずに投入時刻を更新する。
// 取り出しは投入時刻の古い順（明示リクエストによる優先エントリはその前）に行う。
package queue

import (
	"sort"
	"sync"
	"time"
)

// Entry はキュー内のエントリのスナップショット。
type Entry[K comparable] struct {
	Key        K
	EnqueuedAt time.Time
	Urgent     bool
}

type entry struct {
	enqueuedAt time.Time
	seq        uint64
	urgent     bool
}

// RefreshQueue は重複排除付きの更新待ちキュー。
// プロセス内の一時的な状態であり、再起動で失われる（次回のシーダー走査で再発見される）。
type RefreshQueue[K comparable] struct {
	name string
	now  func() time.Time

	mu      sync.Mutex
	entries map[K]*entry
	seq     uint64

	// 取り出し順の記録。次のEnqueueAllで再投入順を決めたあと破棄する。
	drainedAt map[K]uint64
	drainSeq  uint64
}

// New はRefreshQueueを生成する。nowがnilの場合はtime.Nowを使用する。
func New[K comparable](name string, now func() time.Time) *RefreshQueue[K] {
	if now == nil {
		now = time.Now
	}
	return &RefreshQueue[K]{
		name:    name,
		now:     now,
		entries:   make(map[K]*entry),
		drainedAt: make(map[K]uint64),
	}
}

// Name はキュー名を返す。ログとメトリクスのラベルに使用する。
func (q *RefreshQueue[K]) Name() string {
	return q.name
}

// Enqueue はキーを投入する。既に存在する場合は投入時刻のみ更新する。
// 優先マークと最初の投入順は維持される。
func (q *RefreshQueue[K]) Enqueue(key K) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.enqueueLocked(key, q.now())
}

// EnqueueAll は複数のキーを同一の投入時刻で投入する。
// 同時刻のエントリは投入順に取り出される。待機中のキーは順番を保ち、
// 新たに加わるキーは前回取り出された順に後ろへ並ぶため、
// 走査ごとに全件を再投入しても取り出しは一巡ずつ進む。
func (q *RefreshQueue[K]) EnqueueAll(keys []K) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	fresh := make([]K, 0, len(keys))
	seen := make(map[K]struct{}, len(keys))
	for _, key := range keys {
		if e, ok := q.entries[key]; ok {
			e.enqueuedAt = now
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, key)
	}

	// 取り出されたことのないキーは先頭側
	sort.SliceStable(fresh, func(i, j int) bool {
		return q.drainedAt[fresh[i]] < q.drainedAt[fresh[j]]
	})
	for _, key := range fresh {
		q.enqueueLocked(key, now)
	}
	clear(q.drainedAt)
}

func (q *RefreshQueue[K]) enqueueLocked(key K, at time.Time) {
	if e, ok := q.entries[key]; ok {
		e.enqueuedAt = at
		return
	}
	q.seq++
	q.entries[key] = &entry{enqueuedAt: at, seq: q.seq}
}

// Prioritize はキーを優先エントリとして投入する。
// 優先エントリは通常エントリより先に取り出される。
func (q *RefreshQueue[K]) Prioritize(key K) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	if e, ok := q.entries[key]; ok {
		e.urgent = true
		e.enqueuedAt = q.now()
		e.seq = q.seq
		return
	}
	q.entries[key] = &entry{enqueuedAt: q.now(), seq: q.seq, urgent: true}
}

// Drain は最大maxBatch件のキーを取り出し順に返し、キューから削除する。
// 取り出しと削除は同一ロック内で行うため、同じキーが2つの呼び出しに返ることはない。
func (q *RefreshQueue[K]) Drain(maxBatch int) []K {
	if maxBatch <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil
	}

	ordered := q.orderedLocked()
	if len(ordered) > maxBatch {
		ordered = ordered[:maxBatch]
	}

	keys := make([]K, len(ordered))
	for i, e := range ordered {
		keys[i] = e.Key
		delete(q.entries, e.Key)
		q.drainSeq++
		q.drainedAt[e.Key] = q.drainSeq
	}
	return keys
}

// Len は待機中のエントリ数を返す。
func (q *RefreshQueue[K]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Contains はキーが待機中かを返す。
func (q *RefreshQueue[K]) Contains(key K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[key]
	return ok
}

// Snapshot は取り出し順に並べたエントリのコピーを返す。キューは変更しない。
func (q *RefreshQueue[K]) Snapshot() []Entry[K] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.orderedLocked()
}

func (q *RefreshQueue[K]) orderedLocked() []Entry[K] {
	type ranked struct {
		Entry[K]
		seq uint64
	}
	all := make([]ranked, 0, len(q.entries))
	for k, e := range q.entries {
		all = append(all, ranked{
			Entry: Entry[K]{Key: k, EnqueuedAt: e.enqueuedAt, Urgent: e.urgent},
			seq:   e.seq,
		})
	}

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.Urgent != b.Urgent {
			return a.Urgent
		}
		if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
			return a.EnqueuedAt.Before(b.EnqueuedAt)
		}
		return a.seq < b.seq
	})

	out := make([]Entry[K], len(all))
	for i, r := range all {
		out[i] = r.Entry
	}
	return out
}
