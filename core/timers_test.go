package core

import (
	"testing"
	"time"
)

// fakeClock lets tests advance the timer clock by hand.
type fakeClock struct {
	ms int64
}

func (f *fakeClock) now() int64 { return f.ms }

func newTestTimerSet() (*TimerSet, *fakeClock) {
	clk := &fakeClock{}
	ts := NewTimerSet()
	ts.now = clk.now
	return ts, clk
}

func TestTimerSet_ReapExpired(t *testing.T) {
	ts, clk := newTestTimerSet()
	c := newConn()

	ts.Arm(c, 500*time.Millisecond)

	if victims := ts.ReapExpired(); len(victims) != 0 {
		t.Fatalf("expected no victims before deadline, got %d", len(victims))
	}

	clk.ms = 501
	victims := ts.ReapExpired()
	if len(victims) != 1 || victims[0] != c {
		t.Fatalf("expected the armed connection to be reaped, got %v", victims)
	}
	if ts.Len() != 0 {
		t.Errorf("expected empty heap after reap, got %d", ts.Len())
	}
	if c.timer != nil {
		t.Error("expected the connection's timer ref to be cleared")
	}
}

func TestTimerSet_DetachPreventsReap(t *testing.T) {
	ts, clk := newTestTimerSet()
	c := newConn()

	ts.Arm(c, 500*time.Millisecond)
	ts.Detach(c)

	clk.ms = 1000
	if victims := ts.ReapExpired(); len(victims) != 0 {
		t.Fatalf("expected tombstoned entry to be dropped, got %d victims", len(victims))
	}
	if ts.Len() != 0 {
		t.Errorf("expected tombstone popped, heap len %d", ts.Len())
	}
}

func TestTimerSet_RearmTombstonesPrevious(t *testing.T) {
	ts, clk := newTestTimerSet()
	c := newConn()

	ts.Arm(c, 500*time.Millisecond)
	first := c.timer

	clk.ms = 400
	ts.Arm(c, 500*time.Millisecond)

	if !first.deleted {
		t.Error("expected the previous entry to be tombstoned on rearm")
	}
	if c.timer == first {
		t.Error("expected the connection to reference the new entry")
	}

	// The first deadline passes; only the tombstone is popped.
	clk.ms = 600
	if victims := ts.ReapExpired(); len(victims) != 0 {
		t.Fatalf("expected no victims at the stale deadline, got %d", len(victims))
	}

	// The live deadline passes.
	clk.ms = 901
	victims := ts.ReapExpired()
	if len(victims) != 1 || victims[0] != c {
		t.Fatalf("expected reap at the live deadline, got %v", victims)
	}
}

func TestTimerSet_OrderedReap(t *testing.T) {
	ts, clk := newTestTimerSet()
	a := newConn()
	b := newConn()

	ts.Arm(a, 100*time.Millisecond)
	ts.Arm(b, 300*time.Millisecond)

	clk.ms = 150
	victims := ts.ReapExpired()
	if len(victims) != 1 || victims[0] != a {
		t.Fatalf("expected only the earlier deadline reaped, got %v", victims)
	}

	clk.ms = 350
	victims = ts.ReapExpired()
	if len(victims) != 1 || victims[0] != b {
		t.Fatalf("expected the later deadline reaped, got %v", victims)
	}
}
