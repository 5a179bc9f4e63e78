// Package cfoatable implements the concurrent FOA table (spec section
// 4.5): the same group/probe/sizepolicy substrate foatable uses,
// wrapped in a two-tier locking discipline instead of foatable's
// single-threaded assumption. A table-wide rehash_lock (rwspinlock) is
// held SHARED by every operation except rehash itself, which takes it
// EXCLUSIVE; a per-group rwspinlock.RWSpinlock is held SHARED for reads
// and EXCLUSIVE for mutation of that group. There are no iterators —
// every operation that touches an element does so through a caller
// closure (Visit/CVisit/VisitAll and friends), per spec section 4.6.
//
// Ported from original_source's concurrent_flat_map's reference
// semantics; the lock type itself lives in package rwspinlock (section
// 4.6 of the port), the reentrancy guard in internal/reentrancy.
package cfoatable

import (
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/nikgalushko/foaswiss/internal/assert"
	"github.com/nikgalushko/foaswiss/internal/group"
	"github.com/nikgalushko/foaswiss/internal/probe"
	"github.com/nikgalushko/foaswiss/internal/reentrancy"
	"github.com/nikgalushko/foaswiss/internal/sizepolicy"
	"github.com/nikgalushko/foaswiss/rwspinlock"
)

// Hasher computes a key's hash. Equal keys must hash equal.
type Hasher[K any] func(key K) uint64

// Equal implements an equivalence relation over keys.
type Equal[K any] func(a, b K) bool

const defaultMaxLoadFactor = 0.875

type cslot[K comparable, V any] struct {
	key   K
	value V
}

type cgroupT[K comparable, V any] struct {
	meta  group.Group
	slots [group.Size]cslot[K, V]
	mu    rwspinlock.RWSpinlock
}

// Table is the concurrent open-addressing hash table: safe for
// concurrent Visit/Insert/Erase/etc. from any number of goroutines, and
// for Rehash/Reserve to run concurrently with them (rehash briefly
// excludes everything else, per the table-wide lock above).
type Table[K comparable, V any] struct {
	groups []cgroupT[K, V]

	hasher Hasher[K]
	eq     Equal[K]
	policy sizepolicy.Policy

	sizeIndex int
	size      atomic.Int64

	maxLoadFactor float64
	rehashLock    rwspinlock.RWSpinlock
}

// Option configures a Table at construction time.
type Option[K comparable, V any] func(*Table[K, V])

// WithMaxLoadFactor overrides the default 0.875 load factor. +Inf
// disables load-triggered rehashing.
func WithMaxLoadFactor[K comparable, V any](f float64) Option[K, V] {
	return func(t *Table[K, V]) { t.maxLoadFactor = f }
}

// WithAvalanchingHash switches the table to the power-of-two size
// policy for callers whose Hasher is already well distributed in both
// halves of its output.
func WithAvalanchingHash[K comparable, V any]() Option[K, V] {
	return func(t *Table[K, V]) { t.policy = sizepolicy.Pow2Mask{} }
}

// New creates a concurrent table with the given initial capacity hint.
func New[K comparable, V any](hasher Hasher[K], eq Equal[K], capacityHint int, opts ...Option[K, V]) *Table[K, V] {
	t := &Table[K, V]{
		hasher:        hasher,
		eq:            eq,
		policy:        sizepolicy.PrimeFmod{},
		maxLoadFactor: defaultMaxLoadFactor,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.allocate(t.policy.SizeIndexFor(requiredGroupCapacity(capacityHint)))
	return t
}

func requiredGroupCapacity(n int) uint64 {
	if n <= 0 {
		return 1
	}
	return uint64(n)
}

func (t *Table[K, V]) allocate(sizeIndex int) {
	t.sizeIndex = sizeIndex
	numGroups := t.policy.Capacity(sizeIndex)
	if numGroups == 0 {
		numGroups = 1
	}
	t.groups = make([]cgroupT[K, V], numGroups)
}

func (t *Table[K, V]) numGroups() uint64       { return uint64(len(t.groups)) }
func (t *Table[K, V]) capacitySlots() uint64   { return t.numGroups() * group.Size }
func (t *Table[K, V]) identity() uintptr       { return uintptr(unsafe.Pointer(t)) }
func (t *Table[K, V]) probeFor(h uint64) probe.Sequence {
	home := t.policy.Position(h, t.sizeIndex)
	return probe.New(home, t.numGroups())
}

func (t *Table[K, V]) maxLoad() float64 {
	return float64(t.capacitySlots()) * clampLoadFactor(t.maxLoadFactor)
}

func clampLoadFactor(f float64) float64 {
	if math.IsInf(f, 1) {
		return f
	}
	if f > 1.0 {
		return 1.0
	}
	return f
}

// Len returns the number of occupied slots. It is a momentary snapshot
// under concurrent mutation.
func (t *Table[K, V]) Len() int { return int(t.size.Load()) }

// BucketCount returns the current number of slots.
func (t *Table[K, V]) BucketCount() int {
	t.rehashLock.LockShared()
	defer t.rehashLock.UnlockShared()
	return int(t.capacitySlots())
}

// Visit invokes fn with the value mapped to key, if present, and
// reports whether key was found. fn must not call back into this same
// table (spec section 4.5's reentrancy rule) — doing so aborts via the
// package's panic handler (internal/assert).
func (t *Table[K, V]) Visit(key K, fn func(value V)) bool {
	return t.visit(key, func(v *V) { fn(*v) })
}

// CVisit is Visit under another name, kept distinct because the source
// keeps const- and non-const-qualified overloads (cvisit/visit) that
// collapse to one Go signature; callers that want to document
// read-only intent can call CVisit instead of Visit.
func (t *Table[K, V]) CVisit(key K, fn func(value V)) bool {
	return t.visit(key, func(v *V) { fn(*v) })
}

func (t *Table[K, V]) visit(key K, fn func(v *V)) bool {
	t.checkNotReentrant()
	hash := t.hasher(key)
	fp := group.Fingerprint(hash)

	t.rehashLock.LockShared()
	defer t.rehashLock.UnlockShared()

	seq := t.probeFor(hash)
	for {
		gi := seq.Group()
		g := &t.groups[gi]
		g.mu.LockShared()
		m := g.meta.Match(fp)
		for !m.Empty() {
			i := m.First()
			if t.eq(g.slots[i].key, key) {
				t.callVisitor(func() { fn(&g.slots[i].value) })
				g.mu.UnlockShared()
				return true
			}
			m = m.RemoveFirst()
		}
		notEmpty := !g.meta.MatchEmpty().Empty()
		notOverflowed := g.meta.IsNotOverflowed(fp)
		g.mu.UnlockShared()
		if notEmpty && notOverflowed {
			return false
		}
		seq.Step()
		seq.Next()
		if seq.Exhausted() {
			return false
		}
	}
}

// VisitAll invokes fn once for every element currently in the table, in
// unspecified order. It holds the table-wide lock shared for its whole
// duration (concurrent mutation of a group fn hasn't reached yet is
// possible, per spec section 5's "no iteration-order stability"
// non-goal) and each group's lock shared while iterating that group.
func (t *Table[K, V]) VisitAll(fn func(key K, value V)) {
	identity := t.identity()
	assert.Require(reentrancy.Enter(identity), "cfoatable: reentrant VisitAll on the same table")
	defer reentrancy.Leave(identity)

	t.rehashLock.LockShared()
	defer t.rehashLock.UnlockShared()

	for gi := range t.groups {
		g := &t.groups[gi]
		g.mu.LockShared()
		m := g.meta.MatchFull()
		for !m.Empty() {
			i := m.First()
			fn(g.slots[i].key, g.slots[i].value)
			m = m.RemoveFirst()
		}
		g.mu.UnlockShared()
	}
}

// callVisitor wraps a single-key visitor invocation with the
// reentrancy guard: a callback that tries to re-enter this table (e.g.
// calling Insert on t from inside a Visit callback) aborts instead of
// deadlocking on a lock this same goroutine already holds.
func (t *Table[K, V]) callVisitor(call func()) {
	identity := t.identity()
	assert.Require(reentrancy.Enter(identity), "cfoatable: reentrant visit into the same table")
	defer reentrancy.Leave(identity)
	call()
}

// checkNotReentrant aborts if the calling goroutine is already inside a
// callback of this table (VisitAll, or a visitor run by callVisitor).
// visit, TryEmplaceOrVisit, EraseIf, EraseIfAll, Rehash and Reserve call
// it before taking any lock.
func (t *Table[K, V]) checkNotReentrant() {
	identity := t.identity()
	assert.Require(reentrancy.Enter(identity), "cfoatable: reentrant call into the same table")
	reentrancy.Leave(identity)
}

// Insert inserts key/value if key is absent, reporting whether it was
// newly inserted.
func (t *Table[K, V]) Insert(key K, value V) bool {
	return t.TryEmplaceOrVisit(key, func() V { return value }, nil)
}

// InsertOrVisit inserts key/value if key is absent; otherwise it
// invokes visit on the existing element's value. value is always
// constructed eagerly (it is a plain argument, unlike
// TryEmplaceOrVisit's lazily-built makeValue), matching the source's
// insert_or_visit/insert_or_cvisit contract.
func (t *Table[K, V]) InsertOrVisit(key K, value V, visit func(value *V)) bool {
	return t.TryEmplaceOrVisit(key, func() V { return value }, visit)
}

// TryEmplaceOrVisit inserts a value built by makeValue if key is
// absent; otherwise it invokes visit (if non-nil) on the existing
// element's value without ever calling makeValue, mirroring the
// source's try_emplace_or_visit / try_emplace_or_cvisit emplace-only-
// on-miss contract.
func (t *Table[K, V]) TryEmplaceOrVisit(key K, makeValue func() V, visit func(value *V)) bool {
	t.checkNotReentrant()
	hash := t.hasher(key)
	fp := group.Fingerprint(hash)

	for {
		t.rehashLock.LockShared()
		seq := t.probeFor(hash)
		for {
			gi := seq.Group()
			g := &t.groups[gi]
			g.mu.Lock()

			m := g.meta.Match(fp)
			for !m.Empty() {
				i := m.First()
				if t.eq(g.slots[i].key, key) {
					if visit != nil {
						t.callVisitor(func() { visit(&g.slots[i].value) })
					}
					g.mu.Unlock()
					t.rehashLock.UnlockShared()
					return false
				}
				m = m.RemoveFirst()
			}

			if avail := g.meta.MatchEmptyOrDeleted(); !avail.Empty() {
				i := avail.First()
				g.slots[i] = cslot[K, V]{key: key, value: makeValue()}
				g.meta.SetSlot(i, fp)
				g.mu.Unlock()
				t.rehashLock.UnlockShared()

				newSize := t.size.Add(1)
				t.maybeGrow(newSize)
				return true
			}

			// No room in this group for this fingerprint class: mark it
			// overflowed before moving on, so a concurrent lookup that
			// reaches this group before the eventual insert is visible
			// still knows to keep probing (spec invariant 2).
			g.meta.MarkOverflow(fp)
			g.mu.Unlock()

			seq.Step()
			seq.Next()
			if seq.Exhausted() {
				break
			}
		}

		t.rehashLock.UnlockShared()
		t.forceGrow()
		// retry the whole probe against the grown table.
	}
}

// Erase removes key if present, reporting whether it was removed.
func (t *Table[K, V]) Erase(key K) bool {
	return t.EraseIf(key, func(V) bool { return true })
}

// EraseIf removes the element mapped to key if present and pred
// returns true for its value, reporting whether it was removed.
func (t *Table[K, V]) EraseIf(key K, pred func(value V) bool) bool {
	t.checkNotReentrant()
	hash := t.hasher(key)
	fp := group.Fingerprint(hash)

	t.rehashLock.LockShared()
	defer t.rehashLock.UnlockShared()

	seq := t.probeFor(hash)
	for {
		gi := seq.Group()
		g := &t.groups[gi]
		g.mu.Lock()

		m := g.meta.Match(fp)
		for !m.Empty() {
			i := m.First()
			if t.eq(g.slots[i].key, key) {
				if !pred(g.slots[i].value) {
					g.mu.Unlock()
					return false
				}
				t.eraseSlot(g, i)
				g.mu.Unlock()
				t.size.Add(-1)
				return true
			}
			m = m.RemoveFirst()
		}

		notEmpty := !g.meta.MatchEmpty().Empty()
		notOverflowed := g.meta.IsNotOverflowed(fp)
		g.mu.Unlock()
		if notEmpty && notOverflowed {
			return false
		}
		seq.Step()
		seq.Next()
		if seq.Exhausted() {
			return false
		}
	}
}

// EraseIfAll removes every element for which pred returns true,
// scanning the whole table group by group, and reports how many were
// removed. Unlike EraseIf it is not keyed to a single probe sequence.
func (t *Table[K, V]) EraseIfAll(pred func(key K, value V) bool) int {
	t.checkNotReentrant()
	t.rehashLock.LockShared()
	defer t.rehashLock.UnlockShared()

	erased := 0
	for gi := range t.groups {
		g := &t.groups[gi]
		g.mu.Lock()
		m := g.meta.MatchFull()
		for !m.Empty() {
			i := m.First()
			if pred(g.slots[i].key, g.slots[i].value) {
				t.eraseSlot(g, i)
				erased++
			}
			m = m.RemoveFirst()
		}
		g.mu.Unlock()
	}
	if erased > 0 {
		t.size.Add(int64(-erased))
	}
	return erased
}

func (t *Table[K, V]) eraseSlot(g *cgroupT[K, V], i int) {
	var zero cslot[K, V]
	g.slots[i] = zero
	if !g.meta.MatchEmpty().Empty() {
		g.meta.SetSlot(i, 0x00)
	} else {
		g.meta.SetSlot(i, 0x01)
	}
}

// Rehash grows (or reorganizes) the table so it can hold at least n
// elements. It excludes every other operation for its duration (the
// table-wide lock taken exclusively), per spec section 4.5.
func (t *Table[K, V]) Rehash(n int) {
	t.checkNotReentrant()
	t.rehashLock.Lock()
	defer t.rehashLock.Unlock()
	t.rehash(n)
}

// Reserve ensures the table can hold at least n elements without a
// further load-triggered rehash.
func (t *Table[K, V]) Reserve(n int) {
	t.checkNotReentrant()
	t.rehashLock.Lock()
	defer t.rehashLock.Unlock()
	if float64(n) > t.maxLoad() {
		t.rehash(n)
	}
}

// maybeGrow triggers a load-factor-driven rehash after an insert has
// raised size to newSize, taking the table-wide lock exclusively only
// if growth is actually needed.
func (t *Table[K, V]) maybeGrow(newSize int64) {
	if float64(newSize) <= t.maxLoad() {
		return
	}
	t.rehashLock.Lock()
	defer t.rehashLock.Unlock()
	// Re-check: another goroutine may have already grown the table
	// while we were waiting for the exclusive lock.
	if float64(t.size.Load()) <= t.maxLoad() {
		return
	}
	t.rehash(int(t.size.Load()))
}

// forceGrow is called when a probe has exhausted every group along its
// sequence without finding room: the table must grow regardless of
// what the load factor check says (a skewed tombstone distribution can
// exhaust a probe before the load factor threshold is reached).
func (t *Table[K, V]) forceGrow() {
	t.rehashLock.Lock()
	defer t.rehashLock.Unlock()
	t.rehash(int(t.capacitySlots()) + 1)
}

func (t *Table[K, V]) rehash(n int) {
	newSizeIndex := t.policy.SizeIndexFor(requiredCapacityFor(t.policy, n, t.maxLoadFactor))
	if newSizeIndex < t.sizeIndex {
		newSizeIndex = t.sizeIndex
	}
	for newSizeIndex <= t.sizeIndex && float64(n) > float64(t.policy.Capacity(newSizeIndex))*group.Size*math.Min(clampLoadFactor(t.maxLoadFactor), 1.0) {
		newSizeIndex = t.policy.NextSizeIndex(newSizeIndex)
	}

	newGroups := make([]cgroupT[K, V], t.policy.Capacity(newSizeIndex))

	insertInto := func(groups []cgroupT[K, V], sizeIndex int, key K, value V) {
		hash := t.hasher(key)
		fp := group.Fingerprint(hash)
		home := t.policy.Position(hash, sizeIndex)
		seq := probe.New(home, uint64(len(groups)))
		visited := make([]uint64, 0, 4)
		for {
			gi := seq.Group()
			g := &groups[gi]
			if avail := g.meta.MatchEmptyOrDeleted(); !avail.Empty() {
				i := avail.First()
				g.slots[i] = cslot[K, V]{key: key, value: value}
				g.meta.SetSlot(i, fp)
				for _, vg := range visited {
					groups[vg].meta.MarkOverflow(fp)
				}
				return
			}
			visited = append(visited, gi)
			seq.Next()
		}
	}

	for gi := range t.groups {
		m := t.groups[gi].meta.MatchFull()
		for !m.Empty() {
			i := m.First()
			s := t.groups[gi].slots[i]
			insertInto(newGroups, newSizeIndex, s.key, s.value)
			m = m.RemoveFirst()
		}
	}

	t.groups = newGroups
	t.sizeIndex = newSizeIndex
}

func requiredCapacityFor(policy sizepolicy.Policy, n int, maxLoadFactor float64) uint64 {
	lf := clampLoadFactor(maxLoadFactor)
	if lf <= 0 {
		lf = defaultMaxLoadFactor
	}
	slotsNeeded := float64(n) / lf
	groupsNeeded := slotsNeeded / group.Size
	if groupsNeeded < 1 {
		groupsNeeded = 1
	}
	return uint64(groupsNeeded) + 1
}
