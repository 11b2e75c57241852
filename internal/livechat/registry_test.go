package livechat

import (
	"strconv"
	"sync"
	"testing"

	"github.com/ashureev/medmate/internal/domain"
	"github.com/coder/websocket"
)

type fakeConn struct {
	mu     sync.Mutex
	closed []websocket.StatusCode
}

func (f *fakeConn) Close(code websocket.StatusCode, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, code)
	return nil
}

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.closed)
}

func TestRegistryRegisterAndUnregister(t *testing.T) {
	r := NewRegistry()
	key := domain.CaseKey{UserID: "anon_1", SessionID: "tab-1"}
	conn := &fakeConn{}

	r.Register(key, conn)
	if r.get(key) != conn {
		t.Fatal("expected registered connection")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 connection, got %d", r.Len())
	}

	r.Unregister(key, conn)
	if r.get(key) != nil || r.Len() != 0 {
		t.Fatal("expected connection removed")
	}
}

func TestRegistryReplaceClosesOlder(t *testing.T) {
	r := NewRegistry()
	key := domain.CaseKey{UserID: "anon_1", SessionID: "tab-1"}
	older, newer := &fakeConn{}, &fakeConn{}

	r.Register(key, older)
	r.Register(key, newer)

	if older.closeCount() != 1 {
		t.Fatal("older connection should be closed")
	}
	if newer.closeCount() != 0 {
		t.Fatal("newer connection should stay open")
	}

	// A late unregister from the replaced connection must not evict the newer one.
	r.Unregister(key, older)
	if r.get(key) != newer {
		t.Fatal("stale unregister removed the active connection")
	}
}

func TestRegistryTabsAreIndependent(t *testing.T) {
	r := NewRegistry()
	tab1 := domain.CaseKey{UserID: "anon_1", SessionID: "tab-1"}
	tab2 := domain.CaseKey{UserID: "anon_1", SessionID: "tab-2"}
	c1, c2 := &fakeConn{}, &fakeConn{}

	r.Register(tab1, c1)
	r.Register(tab2, c2)
	r.Unregister(tab1, c1)

	if r.get(tab2) != c2 {
		t.Fatal("other tab should remain registered")
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r := NewRegistry()
	conns := make([]*fakeConn, 0, 5)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := &fakeConn{}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
			r.Register(domain.CaseKey{UserID: "anon_" + strconv.Itoa(i%2), SessionID: "tab-" + strconv.Itoa(i)}, c)
		}(i)
	}
	wg.Wait()

	if r.Len() != 5 {
		t.Fatalf("expected 5 connections, got %d", r.Len())
	}
	r.CloseAll("shutdown")
	if r.Len() != 0 {
		t.Fatalf("expected registry empty, got %d", r.Len())
	}
	for i, c := range conns {
		if c.closeCount() != 1 {
			t.Errorf("connection %d not closed", i)
		}
	}
}
