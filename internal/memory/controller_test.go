package memory

import "testing"

func TestUnlimitedCapacity(t *testing.T) {
	mc := NewController(0, nil)

	if !mc.Reserve(1 << 40) {
		t.Fatal("unlimited controller refused a reservation")
	}
	if mc.Used() != 1<<40 {
		t.Fatalf("expected used tracking, got %d", mc.Used())
	}
	mc.Release(1 << 40)
	if mc.Used() != 0 {
		t.Fatalf("expected 0 used after release, got %d", mc.Used())
	}
}

func TestReserveWithinBudget(t *testing.T) {
	mc := NewController(100, nil)

	if !mc.Reserve(60) {
		t.Fatal("reservation within budget refused")
	}
	if mc.Reserve(60) {
		t.Fatal("reservation over budget accepted with no evictor")
	}
	if mc.Used() != 60 {
		t.Fatalf("failed reservation leaked, used=%d", mc.Used())
	}
}

func TestReserveTriggersEviction(t *testing.T) {
	var mc *Controller
	evicted := int64(0)
	mc = NewController(100, func(target int64) int64 {
		evicted += target
		mc.Release(80)
		return 80
	})

	if !mc.Reserve(80) {
		t.Fatal("initial reservation refused")
	}
	if !mc.Reserve(80) {
		t.Fatal("reservation after eviction refused")
	}
	if evicted == 0 {
		t.Fatal("evictor was not invoked")
	}
	if mc.Used() != 80 {
		t.Fatalf("expected 80 used, got %d", mc.Used())
	}
}

func TestReleaseClampsAtZero(t *testing.T) {
	mc := NewController(100, nil)
	mc.Release(50)
	if mc.Used() != 0 {
		t.Fatalf("expected clamp at 0, got %d", mc.Used())
	}
}

func TestUsagePercent(t *testing.T) {
	mc := NewController(200, nil)
	mc.Reserve(50)
	if got := mc.UsagePercent(); got != 25 {
		t.Fatalf("expected 25%%, got %v", got)
	}
	if got := NewController(0, nil).UsagePercent(); got != 0 {
		t.Fatalf("unlimited controller must report 0%%, got %v", got)
	}
}
