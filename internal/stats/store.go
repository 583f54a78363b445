// Package stats implements the usage-statistics store: a sharded,
// lazily-loaded, softly-cached, persisted counter database keyed by
// (context, value) pairs. It answers how often and how recently a value
// was selected under a context, for use by suggestion-ranking callers.
package stats

import (
	"container/list"
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/suggestkit/rankstats/internal/memory"
	"github.com/suggestkit/rankstats/internal/observability"
)

// ShardCount is the fixed number of shards. Contexts hash onto shards;
// a prime keeps the distribution even for related context strings.
const ShardCount = 997

// Storage persists shard units, one blob per shard. Implementations live
// in internal/persistence; Load errors of any kind degrade to an empty
// unit and are never fatal.
type Storage interface {
	// EnsureDir makes sure the storage location exists.
	EnsureDir() error

	// Load returns the persisted bytes for a shard. fs.ErrNotExist is
	// the expected error for shards never saved.
	Load(id int) ([]byte, error)

	// Save writes the bytes for a shard, replacing any previous state.
	Save(id int, data []byte) error
}

// Reporter receives persistence-failure notifications. Saves are
// best-effort: failures are reported here and otherwise swallowed.
type Reporter interface {
	ReportSaveFailure(msg string)
}

type logReporter struct {
	log *slog.Logger
}

func (r logReporter) ReportSaveFailure(msg string) {
	r.log.Error("statistics save failed", "reason", msg)
}

// Config configures a Store. The zero value gives an in-memory store
// with no persistence and no memory budget.
type Config struct {
	// Storage persists shard units. nil disables persistence.
	Storage Storage

	// Reporter receives save-failure notifications. Defaults to logging
	// through Logger.
	Reporter Reporter

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// MemoryBudgetBytes bounds the resident unit cache. 0 means
	// unlimited.
	MemoryBudgetBytes int64

	// TestMode marks a store running under a test harness: increments
	// are no-ops until EnableCapture, loads skip storage, and flushes
	// never write.
	TestMode bool
}

// Store routes composite-key queries and updates to per-shard units.
//
// One mutex guards the shard array, the dirty set and all unit contents;
// per-shard locks were rejected for simplicity since update frequency is
// low. Reads may come from any goroutine. IncUseCount and Flush must be
// routed through a single coordinating goroutine so that a burst of
// related updates (all conjuncts of one key) lands atomically relative
// to other coordinator work; the mutex alone does not provide that.
type Store struct {
	mu       sync.Mutex
	units    []*Unit
	reserved []int64
	lruElem  []*list.Element
	lru      *list.List // shard ids, most recently used at front
	dirty    map[int]struct{}

	loads    singleflight.Group
	memctl   *memory.Controller
	storage  Storage
	reporter Reporter
	log      *slog.Logger
	testMode bool
	capture  bool
}

// NewStore creates a store. No shard is loaded until first touched.
func NewStore(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		units:    make([]*Unit, ShardCount),
		reserved: make([]int64, ShardCount),
		lruElem:  make([]*list.Element, ShardCount),
		lru:      list.New(),
		dirty:    make(map[int]struct{}),
		storage:  cfg.Storage,
		reporter: cfg.Reporter,
		log:      logger,
		testMode: cfg.TestMode,
	}
	if s.reporter == nil {
		s.reporter = logReporter{log: logger}
	}
	s.memctl = memory.NewController(cfg.MemoryBudgetBytes, s.evictLocked)
	return s
}

// shardID resolves a context string to its shard.
func shardID(context string) int {
	h := fnv.New32a()
	h.Write([]byte(context))
	return int(h.Sum32() % ShardCount)
}

// GetUseCount returns the maximum use count across the key's conjuncts,
// or 0 for Empty. A composite suggestion is as used as its most-used
// component. Never fails; unknown pairs count as 0.
func (s *Store) GetUseCount(key Key) int {
	if key.IsEmpty() {
		return 0
	}
	useCount := 0
	for _, c := range key.Conjuncts() {
		if n := s.conjunctUseCount(c); n > useCount {
			useCount = n
		}
	}
	return useCount
}

func (s *Store) conjunctUseCount(c Conjunct) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.unitLocked(shardID(c.Context))
	return u.UseCount(c.Context, c.Value)
}

// GetLastUseRecency returns the minimum recency order across the key's
// conjuncts, or 0 for Empty. The least-recently-touched component
// dominates: a composite is only as fresh as its stalest part.
func (s *Store) GetLastUseRecency(key Key) int {
	if key.IsEmpty() {
		return 0
	}
	recency := math.MaxInt
	for _, c := range key.Conjuncts() {
		if r := s.conjunctRecency(c); r < recency {
			recency = r
		}
	}
	return recency
}

func (s *Store) conjunctRecency(c Conjunct) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.unitLocked(shardID(c.Context))
	return u.Recency(c.Context, c.Value)
}

// IncUseCount records one use of every conjunct independently and marks
// the touched shards dirty. No-op for Empty, and no-op in test mode
// unless capture has been enabled.
//
// Must be called from the single coordinating goroutine; see the Store
// doc.
func (s *Store) IncUseCount(key Key) {
	if key.IsEmpty() {
		return
	}
	if s.testMode && !s.captureEnabled() {
		return
	}
	for _, c := range key.Conjuncts() {
		s.incConjunct(c)
	}
}

func (s *Store) incConjunct(c Conjunct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := shardID(c.Context)
	u := s.unitLocked(id)
	u.IncUseCount(c.Context, c.Value)
	s.dirty[id] = struct{}{}
	observability.Increments.Inc()
}

func (s *Store) captureEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capture
}

// GetAllValues returns an atomic key for every value ever counted under
// context, in insertion order.
func (s *Store) GetAllValues(context string) []Key {
	s.mu.Lock()
	values := s.unitLocked(shardID(context)).ValuesForContext(context)
	s.mu.Unlock()

	keys := make([]Key, len(values))
	for i, v := range values {
		keys[i] = NewKey(context, v)
	}
	return keys
}

// Flush persists every dirty shard and clears the dirty set. Saves are
// best-effort: individual failures are reported and do not stop the
// pass, and the dirty set is cleared even when saves fail, so unflushed
// changes are lost until the next increment re-dirties the shard. Shards
// evicted since being marked dirty are skipped.
//
// In test mode nothing is written but the dirty set is still cleared.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	observability.Flushes.Inc()

	ids := make([]int, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	s.dirty = make(map[int]struct{})

	if s.testMode || s.storage == nil || len(ids) == 0 {
		return nil
	}

	if err := s.storage.EnsureDir(); err != nil {
		observability.UnitSaveFailures.Inc()
		s.reporter.ReportSaveFailure(fmt.Sprintf("cannot create statistics directory: %v", err))
		return fmt.Errorf("create statistics directory: %w", err)
	}

	sort.Ints(ids)
	var errs []error
	for _, id := range ids {
		u := s.units[id]
		if u == nil {
			// Evicted between dirtying and flushing; its updates are
			// gone. Accepted degradation, not re-queued.
			continue
		}
		if err := s.storage.Save(id, u.Serialize()); err != nil {
			observability.UnitSaveFailures.Inc()
			s.reporter.ReportSaveFailure(fmt.Sprintf("cannot save statistics shard %d: %v", id, err))
			errs = append(errs, fmt.Errorf("shard %d: %w", id, err))
			continue
		}
		observability.UnitSaves.Inc()
	}
	return errors.Join(errs...)
}

// Reset forgets all cached units without touching disk. The next access
// to any shard reloads it from storage.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.units {
		if u != nil {
			s.dropLocked(id)
		}
	}
}

// EnableCapture makes increments take effect while the store is in test
// mode, so tests can assert on recorded statistics without persisting
// anything. The returned restore func must be called on teardown: it
// drops all cached units and disables capture again. Calling it more
// than once is safe.
func (s *Store) EnableCapture() (restore func()) {
	s.mu.Lock()
	s.capture = true
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.Reset()
			s.mu.Lock()
			s.capture = false
			s.mu.Unlock()
		})
	}
}

// Stats describes the store's resident state.
type Stats struct {
	ResidentUnits int
	DirtyUnits    int
	MemoryUsed    int64
	MemoryBudget  int64
}

// Stats returns a snapshot of cache occupancy.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		ResidentUnits: s.lru.Len(),
		DirtyUnits:    len(s.dirty),
		MemoryUsed:    s.memctl.Used(),
		MemoryBudget:  s.memctl.Capacity(),
	}
}

// unitLocked returns the resident unit for a shard, loading it if
// needed. The caller holds mu; the disk read itself runs outside the
// lock and concurrent loads of the same shard are coalesced.
func (s *Store) unitLocked(id int) *Unit {
	if u := s.units[id]; u != nil {
		s.lru.MoveToFront(s.lruElem[id])
		return u
	}

	s.mu.Unlock()
	v, _, _ := s.loads.Do(strconv.Itoa(id), func() (interface{}, error) {
		return s.loadUnit(id), nil
	})
	s.mu.Lock()

	// Another goroutine may have installed the unit while we reloaded.
	if u := s.units[id]; u != nil {
		s.lru.MoveToFront(s.lruElem[id])
		return u
	}
	u := v.(*Unit)
	s.installLocked(u)
	return u
}

// loadUnit materializes a unit from storage. Missing, unreadable or
// malformed shard files all degrade silently to a fresh empty unit; loss
// of prior statistics is accepted, never surfaced. Test mode skips the
// read entirely so tests start from a guaranteed-empty unit.
func (s *Store) loadUnit(id int) *Unit {
	observability.UnitLoads.Inc()
	if s.testMode || s.storage == nil {
		return NewUnit(id)
	}

	data, err := s.storage.Load(id)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			observability.UnitLoadFallbacks.Inc()
			s.log.Warn("statistics shard unreadable, starting empty", "shard", id, "err", err)
		}
		return NewUnit(id)
	}

	u, err := DeserializeUnit(id, data)
	if err != nil {
		observability.UnitLoadFallbacks.Inc()
		s.log.Warn("statistics shard malformed, starting empty", "shard", id, "err", err)
		return NewUnit(id)
	}
	return u
}

// installLocked caches a freshly loaded unit. When the memory budget
// cannot fit it even after eviction, the unit is served uncached; any
// increments it receives are then lost at flush, the same way an
// eviction between dirtying and flushing loses them.
func (s *Store) installLocked(u *Unit) {
	id := u.ID()
	size := int64(u.SizeBytes())
	if !s.memctl.Reserve(size) {
		return
	}
	s.units[id] = u
	s.reserved[id] = size
	s.lruElem[id] = s.lru.PushFront(id)
	observability.ResidentUnits.Inc()
}

// evictLocked is the memory controller's evict callback. Reserve only
// runs from store paths that hold mu, so mu is held here as well.
func (s *Store) evictLocked(target int64) int64 {
	var freed int64
	for e := s.lru.Back(); e != nil && freed < target; {
		prev := e.Prev()
		freed += s.dropLocked(e.Value.(int))
		observability.UnitEvictions.Inc()
		e = prev
	}
	return freed
}

// dropLocked removes a unit from the cache and returns its reserved
// size. Dirty state for the shard is left alone: flush skips shards that
// are no longer resident.
func (s *Store) dropLocked(id int) int64 {
	if s.units[id] == nil {
		return 0
	}
	s.units[id] = nil
	size := s.reserved[id]
	s.reserved[id] = 0
	if s.lruElem[id] != nil {
		s.lru.Remove(s.lruElem[id])
		s.lruElem[id] = nil
	}
	s.memctl.Release(size)
	observability.ResidentUnits.Dec()
	return size
}
