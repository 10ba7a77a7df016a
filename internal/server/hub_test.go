package server

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// 동시 쓰기를 감지하는 연결 대역.
type fakeConn struct {
	mu        sync.Mutex
	msgs      [][]byte
	inflight  int32
	overlap   int32
	failWrite bool
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	if atomic.AddInt32(&f.inflight, 1) > 1 {
		atomic.StoreInt32(&f.overlap, 1)
	}
	time.Sleep(time.Millisecond)
	defer atomic.AddInt32(&f.inflight, -1)
	if f.failWrite {
		return errors.New("write failed")
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, append([]byte(nil), data...))
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) first() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		return nil
	}
	return f.msgs[0]
}

func TestHubJoinDuringBroadcastDoesNotOverlapWrites(t *testing.T) {
	h := NewHub()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				h.Broadcast([]byte("update"))
			}
		}
	}()

	conns := make([]*fakeConn, 0, 8)
	for i := 0; i < 8; i++ {
		c := &fakeConn{}
		if err := h.Join(c, []byte(fmt.Sprintf("hello-%d", i))); err != nil {
			t.Fatalf("Join: %v", err)
		}
		conns = append(conns, c)
	}
	time.Sleep(20 * time.Millisecond)
	close(stop)
	wg.Wait()

	for i, c := range conns {
		if atomic.LoadInt32(&c.overlap) != 0 {
			t.Fatalf("conn %d saw overlapping writes", i)
		}
		// 초기 상태가 어떤 브로드캐스트보다 먼저 도착해야 함.
		if got, want := string(c.first()), fmt.Sprintf("hello-%d", i); got != want {
			t.Errorf("conn %d first message = %q, want %q", i, got, want)
		}
	}
}

func TestHubJoinFailedWriteNotRegistered(t *testing.T) {
	h := NewHub()
	c := &fakeConn{failWrite: true}
	if err := h.Join(c, []byte("hello")); err == nil {
		t.Fatal("expected Join error on failed write")
	}
	if got := h.Count(); got != 0 {
		t.Errorf("client count = %d, want 0", got)
	}
}

func TestHubBroadcastDropsFailedConn(t *testing.T) {
	h := NewHub()
	ok := &fakeConn{}
	if err := h.Join(ok, []byte("hello")); err != nil {
		t.Fatalf("Join: %v", err)
	}
	bad := &fakeConn{}
	if err := h.Join(bad, []byte("hello")); err != nil {
		t.Fatalf("Join: %v", err)
	}
	bad.failWrite = true

	h.Broadcast([]byte("update"))
	if got := h.Count(); got != 1 {
		t.Errorf("client count = %d, want 1", got)
	}
}
