// internal/store/store.go

// Package store 提供以 UUID 為鍵的泛型記憶體容器 Store[T]。
// 帳戶與轉帳紀錄各使用一個實例，彼此互不依賴。
//
// 鎖的層級固定為：索引鎖 (RWMutex) → 條目鎖（依 ID 位元組升冪取得）。
// 每個條目有自己的互斥鎖，不相交的帳戶可以完全並行；
// 同一條目上的存取則被序列化。
// 持有條目鎖的呼叫端不得再取得同一個 Store 的索引寫鎖。
package store

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// entry 為單一條目：value 只在 mu 保護下讀寫。
// dead 表示條目已從索引移除；持有舊指標的呼叫端必須視為不存在。
type entry[T any] struct {
	mu    sync.Mutex
	seq   uint64
	value T
	dead  bool
}

// Store 為並發安全的鍵值容器。
// - mu：只保護 entries 索引本身與 seq。
// - seq：插入序號，ReadAll 依此排序輸出。
type Store[T any] struct {
	mu      sync.RWMutex
	seq     uint64
	entries map[uuid.UUID]*entry[T]
}

// New 建立空容器。
func New[T any]() *Store[T] {
	return &Store[T]{entries: make(map[uuid.UUID]*entry[T])}
}

// Create 產生新的 UUID，以 build(id) 的結果存入並回傳該 ID。
// build 讓紀錄本身可以攜帶自己的 ID。
// 產生的 ID 若已存在屬於內部不變量被破壞，直接 panic。
func (s *Store[T]) Create(build func(id uuid.UUID) T) uuid.UUID {
	id := uuid.New()
	v := build(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[id]; exists {
		panic(fmt.Sprintf("store: generated id %s already in use", id))
	}
	s.seq++
	s.entries[id] = &entry[T]{seq: s.seq, value: v}
	return id
}

// Read 回傳目前的值；ID 不存在時 ok 為 false。
func (s *Store[T]) Read(id uuid.UUID) (v T, ok bool) {
	e := s.lookup(id)
	if e == nil {
		return v, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return v, false
	}
	return e.value, true
}

// ReadAll 回傳所有條目的時間點快照（依插入順序）。
// 所有條目會依全域順序同時上鎖後才複製，
// 因此快照不會看到只套用一半的複合操作。
func (s *Store[T]) ReadAll() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	held := make([]*entry[T], 0, len(s.entries))
	for _, id := range sortedIDs(s.entries) {
		held = append(held, s.entries[id])
	}
	for _, e := range held {
		e.mu.Lock()
	}
	slices.SortFunc(held, func(a, b *entry[T]) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	out := make([]T, len(held))
	for i, e := range held {
		out[i] = e.value
	}
	for _, e := range held {
		e.mu.Unlock()
	}
	return out
}

// Update 無條件取代 id 對應的值；不存在時插入（upsert）。
func (s *Store[T]) Update(id uuid.UUID, v T) {
	for {
		e := s.lookup(id)
		if e == nil {
			s.mu.Lock()
			if _, exists := s.entries[id]; exists {
				// 與其他 Update 競爭插入，重新走一次條目鎖路徑
				s.mu.Unlock()
				continue
			}
			s.seq++
			s.entries[id] = &entry[T]{seq: s.seq, value: v}
			s.mu.Unlock()
			return
		}

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		e.value = v
		e.mu.Unlock()
		return
	}
}

// Delete 移除條目；不存在時為 no-op。
// 條目鎖會等待進行中的複合操作結束後才標記刪除。
func (s *Store[T]) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.mu.Lock()
	e.dead = true
	e.mu.Unlock()
	delete(s.entries, id)
}

// Len 回傳目前條目數量。
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store[T]) lookup(id uuid.UUID) *entry[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}

// Locked 是 Lock 回傳的持鎖把手，提供複合 check-then-act 操作所需的讀寫。
// 在 Unlock 之前，其他呼叫端無法觀察或修改被持有的條目。
type Locked[T any] struct {
	entries map[uuid.UUID]*entry[T]
	held    []*entry[T]
	done    bool
}

// Lock 依 ID 位元組升冪取得 ids 對應條目的鎖（重複 ID 只鎖一次）。
// 不論呼叫端傳入順序為何，兩個涉及同一對條目的操作都以相同順序上鎖，避免死結。
// 不存在的 ID 不會被鎖定，Get 對其回傳 false。
//
// 索引在取得條目鎖之前就已釋放；等待期間若有條目被刪除（可能已以同一 ID 重新插入），
// 放掉全部的鎖後重新解析。持有條目鎖時不可回頭取索引鎖。
func (s *Store[T]) Lock(ids ...uuid.UUID) *Locked[T] {
	uniq := slices.Clone(ids)
	slices.SortFunc(uniq, compareIDs)
	uniq = slices.Compact(uniq)

	for {
		l := s.resolve(uniq)
		for _, e := range l.held {
			e.mu.Lock()
		}
		if !l.stale() {
			return l
		}
		l.Unlock()
	}
}

func (s *Store[T]) resolve(ids []uuid.UUID) *Locked[T] {
	l := &Locked[T]{entries: make(map[uuid.UUID]*entry[T], len(ids))}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			l.entries[id] = e
			l.held = append(l.held, e)
		}
	}
	return l
}

// stale 回報是否持有已被刪除的條目。
func (l *Locked[T]) stale() bool {
	for _, e := range l.held {
		if e.dead {
			return true
		}
	}
	return false
}

// Get 回傳持有中條目的值；條目不存在或在上鎖前已被刪除時 ok 為 false。
func (l *Locked[T]) Get(id uuid.UUID) (v T, ok bool) {
	e := l.entries[id]
	if e == nil || e.dead {
		return v, false
	}
	return e.value, true
}

// Put 寫回持有中條目的值。
// 只能寫入 Get 成功過的 ID；否則為呼叫端程式錯誤。
func (l *Locked[T]) Put(id uuid.UUID, v T) {
	e := l.entries[id]
	if l.done || e == nil || e.dead {
		panic(fmt.Sprintf("store: Put on entry %s that is not held", id))
	}
	e.value = v
}

// Unlock 以反向順序釋放所有條目鎖；重複呼叫無作用。
func (l *Locked[T]) Unlock() {
	if l.done {
		return
	}
	l.done = true
	for i := len(l.held) - 1; i >= 0; i-- {
		l.held[i].mu.Unlock()
	}
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

func sortedIDs[T any](m map[uuid.UUID]*entry[T]) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareIDs)
	return ids
}
