package server

import (
	"sync"
	"testing"
)

func regConn(fd int, addr string) *Conn {
	return newConn(&fakeSocket{fd: fd}, addr, "user", 64)
}

func TestRegistry_AddGetRemove(t *testing.T) {
	r := NewRegistry()
	a := regConn(5, "10.0.0.1:1")
	r.Add(a)

	if got, ok := r.Get(5); !ok || got != a {
		t.Fatalf("Get(5) = %v, %v", got, ok)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d", r.Len())
	}
	if got := r.Remove(5); got != a {
		t.Errorf("Remove returned %v", got)
	}
	if got := r.Remove(5); got != nil {
		t.Errorf("second Remove returned %v", got)
	}
	if _, ok := r.Get(5); ok {
		t.Error("Get after Remove should miss")
	}
}

func TestRegistry_AllKeepsAcceptOrder(t *testing.T) {
	r := NewRegistry()
	conns := []*Conn{regConn(9, "a:1"), regConn(3, "b:1"), regConn(7, "c:1")}
	for _, c := range conns {
		r.Add(c)
	}
	r.Remove(3)

	all := r.All()
	if len(all) != 2 || all[0] != conns[0] || all[1] != conns[2] {
		t.Errorf("All() order wrong: %v", all)
	}
}

func TestRegistry_AllIsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Add(regConn(1, "a:1"))
	r.Add(regConn(2, "b:1"))

	for _, c := range r.All() {
		r.Remove(c.FD())
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d after removing during iteration", r.Len())
	}
}

func TestRegistry_ReplaceSameFD(t *testing.T) {
	r := NewRegistry()
	old := regConn(4, "a:1")
	fresh := regConn(4, "b:1")
	r.Add(old)
	r.Add(fresh)

	all := r.All()
	if len(all) != 1 || all[0] != fresh {
		t.Errorf("All() = %v, want only the new connection", all)
	}
}

func TestRegistry_FindByAddress(t *testing.T) {
	r := NewRegistry()
	a := regConn(1, "10.0.0.1:1000")
	r.Add(a)
	r.Add(regConn(2, "10.0.0.1:1001"))

	got := r.FindByAddress("10.0.0.1:1000")
	if len(got) != 1 || got[0] != a {
		t.Errorf("FindByAddress = %v", got)
	}
	if got := r.FindByAddress("10.0.0.9:1"); len(got) != 0 {
		t.Errorf("unexpected match %v", got)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				fd := base*1000 + j
				r.Add(regConn(fd, "x:1"))
				r.All()
				r.Remove(fd)
			}
		}(i)
	}
	wg.Wait()
	if r.Len() != 0 {
		t.Errorf("Len = %d", r.Len())
	}
}
