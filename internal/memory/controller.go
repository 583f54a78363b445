// Package memory provides the byte budget behind the store's soft unit
// cache. Reservations that would exceed the budget trigger eviction of
// resident units; a reservation that still cannot fit is refused and the
// unit is served without being cached.
package memory

import (
	"sync/atomic"
)

// EvictFunc frees resident bytes toward target and reports how much was
// actually freed. The store supplies one that drops least-recently-used
// units; it is invoked synchronously from Reserve.
type EvictFunc func(target int64) int64

// Controller tracks a global memory budget.
type Controller struct {
	capacity int64
	used     int64
	evict    EvictFunc
}

// NewController creates a controller with the given capacity in bytes.
// A capacity of 0 means unlimited. evict may be nil.
func NewController(capacityBytes int64, evict EvictFunc) *Controller {
	return &Controller{
		capacity: capacityBytes,
		evict:    evict,
	}
}

// Used returns currently reserved bytes.
func (mc *Controller) Used() int64 {
	return atomic.LoadInt64(&mc.used)
}

// Capacity returns the configured budget, 0 for unlimited.
func (mc *Controller) Capacity() int64 {
	return mc.capacity
}

// UsagePercent returns usage as a percentage of capacity.
func (mc *Controller) UsagePercent() float64 {
	if mc.capacity == 0 {
		return 0
	}
	return float64(mc.Used()) / float64(mc.capacity) * 100
}

// Reserve tries to reserve n bytes. On budget pressure it asks the evict
// callback to free room and retries once. Returns false when the
// reservation still does not fit.
func (mc *Controller) Reserve(n int64) bool {
	if n <= 0 {
		return true
	}

	// Unlimited capacity
	if mc.capacity == 0 {
		atomic.AddInt64(&mc.used, n)
		return true
	}

	// Fast path
	newUsed := atomic.AddInt64(&mc.used, n)
	if newUsed <= mc.capacity {
		return true
	}

	// Exceeded - rollback and try eviction
	atomic.AddInt64(&mc.used, -n)
	if mc.evict != nil {
		mc.evict(n)
	}

	// Retry once
	newUsed = atomic.AddInt64(&mc.used, n)
	if newUsed <= mc.capacity {
		return true
	}

	atomic.AddInt64(&mc.used, -n)
	return false
}

// Release returns previously reserved bytes to the budget.
func (mc *Controller) Release(n int64) {
	if n <= 0 {
		return
	}

	atomic.AddInt64(&mc.used, -n)

	// Prevent underflow
	if atomic.LoadInt64(&mc.used) < 0 {
		atomic.StoreInt64(&mc.used, 0)
	}
}
