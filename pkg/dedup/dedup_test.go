package dedup

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestShouldProcessDropsRepeatsWithinTTL(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	d := New(2*time.Minute, 10).WithClock(clk.now)

	if !d.ShouldProcess("42") {
		t.Fatal("first delivery must be processed")
	}
	clk.advance(30 * time.Second)
	if d.ShouldProcess("42") {
		t.Fatal("redelivery inside TTL must be dropped")
	}
	clk.advance(2 * time.Minute)
	if !d.ShouldProcess("42") {
		t.Fatal("key must be processed again after TTL")
	}
}

func TestShouldProcessEmptyKey(t *testing.T) {
	d := New(time.Minute, 10)
	for i := 0; i < 3; i++ {
		if !d.ShouldProcess("") {
			t.Fatal("empty key must always be processed")
		}
	}
	if d.Len() != 0 {
		t.Fatalf("empty key must not be tracked, len=%d", d.Len())
	}
}

func TestCapacityIsBounded(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	d := New(time.Hour, 3).WithClock(clk.now)
	for _, k := range []string{"1", "2", "3", "4", "5"} {
		d.ShouldProcess(k)
		clk.advance(time.Second)
	}
	if d.Len() != 3 {
		t.Fatalf("len = %d, want 3", d.Len())
	}
	if d.ShouldProcess("5") {
		t.Fatal("most recent key must still be remembered")
	}
	if !d.ShouldProcess("1") {
		t.Fatal("oldest key should have been evicted")
	}
}

func TestNilDeduper(t *testing.T) {
	var d *Deduper
	if !d.ShouldProcess("x") {
		t.Fatal("nil deduper must let everything through")
	}
}
