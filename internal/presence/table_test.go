package presence

import (
	"sync"
	"testing"
)

type fakeSession struct {
	id   uint
	sent [][]byte
}

func (f *fakeSession) UserID() uint { return f.id }
func (f *fakeSession) Send(data []byte) bool {
	f.sent = append(f.sent, data)
	return true
}

func TestTable_RegisterLookup(t *testing.T) {
	tbl := NewTable()
	s := &fakeSession{id: 1}

	if _, ok := tbl.Lookup(1); ok {
		t.Fatal("Lookup() on empty table should miss")
	}

	tbl.Register(1, s)
	got, ok := tbl.Lookup(1)
	if !ok {
		t.Fatal("Lookup() after Register() missed")
	}
	if got != Session(s) {
		t.Error("Lookup() returned a different session")
	}
}

func TestTable_RegisterSupersedes(t *testing.T) {
	tbl := NewTable()
	old := &fakeSession{id: 1}
	fresh := &fakeSession{id: 1}

	tbl.Register(1, old)
	tbl.Register(1, fresh)

	got, ok := tbl.Lookup(1)
	if !ok {
		t.Fatal("Lookup() missed after re-register")
	}
	if got != Session(fresh) {
		t.Error("latest registration should win")
	}
}

func TestTable_UnregisterRemoves(t *testing.T) {
	tbl := NewTable()
	s := &fakeSession{id: 1}

	tbl.Register(1, s)
	tbl.Unregister(1, s)

	if _, ok := tbl.Lookup(1); ok {
		t.Error("Lookup() after Unregister() should miss")
	}
}

func TestTable_UnregisterStaleIsNoop(t *testing.T) {
	tbl := NewTable()
	old := &fakeSession{id: 1}
	fresh := &fakeSession{id: 1}

	tbl.Register(1, old)
	tbl.Register(1, fresh)
	// Late disconnect for the superseded connection must not evict the new one.
	tbl.Unregister(1, old)

	got, ok := tbl.Lookup(1)
	if !ok {
		t.Fatal("stale Unregister() evicted the fresh session")
	}
	if got != Session(fresh) {
		t.Error("fresh session should survive a stale unregister")
	}
}

func TestTable_UnregisterIdempotent(t *testing.T) {
	tbl := NewTable()
	s := &fakeSession{id: 1}

	tbl.Register(1, s)
	tbl.Unregister(1, s)
	tbl.Unregister(1, s) // duplicate disconnect signal

	if _, ok := tbl.Lookup(1); ok {
		t.Error("table corrupted by duplicate unregister")
	}
	if len(tbl.Snapshot()) != 0 {
		t.Errorf("Snapshot() = %v, want empty", tbl.Snapshot())
	}
}

func TestTable_Snapshot(t *testing.T) {
	tbl := NewTable()
	tbl.Register(3, &fakeSession{id: 3})
	tbl.Register(1, &fakeSession{id: 1})
	tbl.Register(2, &fakeSession{id: 2})

	got := tbl.Snapshot()
	want := []uint{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("Snapshot() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Snapshot() = %v, want %v", got, want)
		}
	}
}

func TestTable_Concurrent(t *testing.T) {
	tbl := NewTable()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			s := &fakeSession{id: id}
			tbl.Register(id, s)
			tbl.Lookup(id)
			if id%2 == 0 {
				tbl.Unregister(id, s)
			}
		}(uint(i))
	}
	wg.Wait()

	if got := len(tbl.Snapshot()); got != 25 {
		t.Errorf("Snapshot() size = %d, want 25", got)
	}
}
