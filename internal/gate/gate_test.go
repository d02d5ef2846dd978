package gate

import (
	"testing"
	"time"
)

func TestGate_SecondAcquireRejected(t *testing.T) {
	g := New(10 * time.Second)

	if !g.TryAcquire(1) {
		t.Fatalf("first acquire must succeed")
	}
	if g.TryAcquire(1) {
		t.Fatalf("second acquire while lease is held must fail")
	}
}

func TestGate_ReleaseAllowsNewAcquire(t *testing.T) {
	g := New(10 * time.Second)

	if !g.TryAcquire(1) {
		t.Fatalf("first acquire must succeed")
	}
	g.Release(1)

	if !g.TryAcquire(1) {
		t.Fatalf("acquire after release must succeed")
	}
}

func TestGate_IndependentSessions(t *testing.T) {
	g := New(10 * time.Second)

	if !g.TryAcquire(1) {
		t.Fatalf("acquire for session 1 must succeed")
	}
	if !g.TryAcquire(2) {
		t.Fatalf("acquire for session 2 must succeed")
	}
}

func TestGate_ExpiredLeaseForceReleased(t *testing.T) {
	g := New(10 * time.Second)

	current := time.Now()
	g.now = func() time.Time { return current }

	if !g.TryAcquire(1) {
		t.Fatalf("first acquire must succeed")
	}

	current = current.Add(11 * time.Second)

	if !g.TryAcquire(1) {
		t.Fatalf("acquire after lease expiry must succeed")
	}
}

func TestGate_HolderReportsLease(t *testing.T) {
	g := New(10 * time.Second)

	current := time.Now()
	g.now = func() time.Time { return current }

	if _, _, held := g.Holder(1); held {
		t.Fatalf("free session must not report a holder")
	}

	g.TryAcquire(1)

	heldBy, acquiredAt, held := g.Holder(1)
	if !held {
		t.Fatalf("acquired lease must report a holder")
	}
	if heldBy != 1 || !acquiredAt.Equal(current) {
		t.Fatalf("holder = %d at %v, want 1 at %v", heldBy, acquiredAt, current)
	}

	current = current.Add(11 * time.Second)

	if _, _, held := g.Holder(1); held {
		t.Fatalf("expired lease must not report a holder")
	}
}

func TestGate_SweepRemovesExpired(t *testing.T) {
	g := New(10 * time.Second)

	current := time.Now()
	g.now = func() time.Time { return current }

	g.TryAcquire(1)
	g.TryAcquire(2)

	current = current.Add(11 * time.Second)
	g.sweep()

	g.mu.Lock()
	n := len(g.leases)
	g.mu.Unlock()

	if n != 0 {
		t.Fatalf("expected all expired leases swept, %d left", n)
	}
}
