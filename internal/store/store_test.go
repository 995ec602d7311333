// internal/store/store_test.go
//
// Store 的單元與並發測試：CRUD 語意、upsert、刪除冪等、
// Lock 的全域上鎖順序與快照一致性。

package store

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID    uuid.UUID
	Value int
}

func create(s *Store[record], v int) uuid.UUID {
	return s.Create(func(id uuid.UUID) record { return record{ID: id, Value: v} })
}

func TestCreateRead(t *testing.T) {
	s := New[record]()
	id1 := create(s, 1)
	id2 := create(s, 2)
	require.NotEqual(t, id1, id2)

	got, ok := s.Read(id1)
	require.True(t, ok)
	assert.Equal(t, record{ID: id1, Value: 1}, got)
	assert.Equal(t, 2, s.Len())
}

func TestReadMissing(t *testing.T) {
	s := New[record]()
	_, ok := s.Read(uuid.New())
	assert.False(t, ok)
}

func TestReadAllInsertionOrder(t *testing.T) {
	s := New[record]()
	var ids []uuid.UUID
	for i := 0; i < 20; i++ {
		ids = append(ids, create(s, i))
	}

	all := s.ReadAll()
	require.Len(t, all, 20)
	for i, r := range all {
		assert.Equal(t, ids[i], r.ID)
		assert.Equal(t, i, r.Value)
	}
}

func TestUpdateIsUpsert(t *testing.T) {
	s := New[record]()
	id := create(s, 1)

	s.Update(id, record{ID: id, Value: 10})
	got, _ := s.Read(id)
	assert.Equal(t, 10, got.Value)

	// 不存在的 ID 直接插入
	other := uuid.New()
	s.Update(other, record{ID: other, Value: 7})
	got, ok := s.Read(other)
	require.True(t, ok)
	assert.Equal(t, 7, got.Value)
	assert.Equal(t, 2, s.Len())
}

func TestDeleteIdempotent(t *testing.T) {
	s := New[record]()
	id := create(s, 1)

	s.Delete(id)
	_, ok := s.Read(id)
	assert.False(t, ok)

	s.Delete(id)
	s.Delete(uuid.New())
	assert.Equal(t, 0, s.Len())
}

func TestLockGetPut(t *testing.T) {
	s := New[record]()
	a := create(s, 1)
	missing := uuid.New()

	l := s.Lock(a, missing, a)
	got, ok := l.Get(a)
	require.True(t, ok)
	_, ok = l.Get(missing)
	assert.False(t, ok)

	got.Value = 99
	l.Put(a, got)
	l.Unlock()
	l.Unlock()

	r, _ := s.Read(a)
	assert.Equal(t, 99, r.Value)
}

func TestLockPutOnMissingPanics(t *testing.T) {
	s := New[record]()
	l := s.Lock(uuid.New())
	defer l.Unlock()
	assert.Panics(t, func() { l.Put(uuid.New(), record{}) })
}

func TestLockSeesDeleteAsMissing(t *testing.T) {
	s := New[record]()
	a := create(s, 1)
	s.Delete(a)

	l := s.Lock(a)
	defer l.Unlock()
	_, ok := l.Get(a)
	assert.False(t, ok)
}

// TestLockRetriesWhenEntryReplaced：Lock 解析到舊條目後，等待期間該 ID 被刪除並重新插入；
// 取得的必須是新條目，而不是回報不存在。
func TestLockRetriesWhenEntryReplaced(t *testing.T) {
	s := New[record]()
	id := uuid.New()
	s.Update(id, record{ID: id, Value: 1})

	old := s.lookup(id)
	old.mu.Lock() // 模擬進行中的複合操作

	got := make(chan record, 1)
	found := make(chan bool, 1)
	go func() {
		l := s.Lock(id)
		defer l.Unlock()
		r, ok := l.Get(id)
		got <- r
		found <- ok
	}()
	time.Sleep(20 * time.Millisecond) // 讓 Lock 先解析到舊條目

	// 與 Delete 相同的步驟；舊條目的鎖已在手上
	s.mu.Lock()
	old.dead = true
	delete(s.entries, id)
	s.mu.Unlock()
	s.Update(id, record{ID: id, Value: 2})
	old.mu.Unlock()

	select {
	case ok := <-found:
		require.True(t, ok)
		assert.Equal(t, 2, (<-got).Value)
	case <-time.After(5 * time.Second):
		t.Fatal("Lock did not return")
	}
}

// TestLockOppositeOrderNoDeadlock 以相反參數順序並行鎖定同一對條目並搬移數值，
// 驗證固定上鎖順序下不會死結且總和守恆。
func TestLockOppositeOrderNoDeadlock(t *testing.T) {
	s := New[record]()
	a := create(s, 1000)
	b := create(s, 1000)

	move := func(from, to uuid.UUID) {
		l := s.Lock(from, to)
		defer l.Unlock()
		src, _ := l.Get(from)
		dst, _ := l.Get(to)
		src.Value--
		dst.Value++
		l.Put(from, src)
		l.Put(to, dst)
	}

	const n = 500
	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() { defer wg.Done(); move(a, b) }()
		go func() { defer wg.Done(); move(b, a) }()
	}
	wg.Wait()

	ra, _ := s.Read(a)
	rb, _ := s.Read(b)
	assert.Equal(t, 2000, ra.Value+rb.Value)
}

// TestReadAllSnapshotConsistent 在並行搬移期間持續取快照，
// 每一份快照的總和都必須守恆。
func TestReadAllSnapshotConsistent(t *testing.T) {
	s := New[record]()
	a := create(s, 500)
	b := create(s, 500)
	create(s, 0)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			from, to := a, b
			if i%2 == 1 {
				from, to = b, a
			}
			l := s.Lock(from, to)
			src, _ := l.Get(from)
			dst, _ := l.Get(to)
			src.Value -= 3
			l.Put(from, src)
			dst.Value += 3
			l.Put(to, dst)
			l.Unlock()
		}
	}()

	for i := 0; i < 200; i++ {
		total := 0
		for _, r := range s.ReadAll() {
			total += r.Value
		}
		require.Equal(t, 1000, total)
	}
	close(stop)
	wg.Wait()
}

func TestConcurrentCreateUpdateDelete(t *testing.T) {
	s := New[record]()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			id := create(s, i)
			s.Update(id, record{ID: id, Value: i * 2})
			if i%2 == 0 {
				s.Delete(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, workers/2, s.Len())
	for _, r := range s.ReadAll() {
		assert.Equal(t, 0, r.Value%2)
	}
}
