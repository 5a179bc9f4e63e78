// Package foatable implements the single-threaded FOA (fast
// open-addressing) table: the substrate spec section 4.4 describes.
// It owns the metadata array and value array and implements
// find/insert/erase/rehash with the group/probe/sizepolicy building
// blocks. cfoatable layers concurrency on top of the same ideas.
//
// Generalizes the vendored crn4/swiss engine (its Put/Get/Delete/Clear
// become Insert/Find/Erase/Clear here) to the spec's fuller contract: TryEmplace, EraseAt, Reserve,
// a configurable max load factor, and a strong exception-safety
// guarantee on rehash.
package foatable

import (
	"iter"
	"math"

	"github.com/nikgalushko/foaswiss/internal/assert"
	"github.com/nikgalushko/foaswiss/internal/group"
	"github.com/nikgalushko/foaswiss/internal/probe"
	"github.com/nikgalushko/foaswiss/internal/sizepolicy"
)

// Hasher computes a key's hash. Equal keys must hash equal.
type Hasher[K any] func(key K) uint64

// Equal implements an equivalence relation over keys.
type Equal[K any] func(a, b K) bool

const defaultMaxLoadFactor = 0.875

type slot[K comparable, V any] struct {
	key   K
	value V
}

type groupT[K comparable, V any] struct {
	meta  group.Group
	slots [group.Size]slot[K, V]
}

// Table is the single-threaded open-addressing hash table.
type Table[K comparable, V any] struct {
	groups []groupT[K, V]

	hasher Hasher[K]
	eq     Equal[K]
	policy sizepolicy.Policy

	sizeIndex int
	size      int // occupied control bytes (spec invariant 3)

	maxLoadFactor float64 // fraction of capacity; +Inf disables load-triggered rehash
}

// Option configures a Table at construction time.
type Option[K comparable, V any] func(*Table[K, V])

// WithMaxLoadFactor overrides the default 0.875 load factor. Any finite
// positive value is accepted; +Inf disables rehashing based on load.
func WithMaxLoadFactor[K comparable, V any](f float64) Option[K, V] {
	return func(t *Table[K, V]) { t.maxLoadFactor = f }
}

// WithAvalanchingHash switches the table to the power-of-two size
// policy, which the caller asserts is safe because Hasher's output is
// well distributed in both halves (spec section 6).
func WithAvalanchingHash[K comparable, V any]() Option[K, V] {
	return func(t *Table[K, V]) { t.policy = sizepolicy.Pow2Mask{} }
}

// New creates a table with the given initial capacity hint.
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
	t.groups = make([]groupT[K, V], numGroups)
}

func (t *Table[K, V]) numGroups() uint64 { return uint64(len(t.groups)) }

// capacitySlots is the raw slot count (numGroups * group.Size).
func (t *Table[K, V]) capacitySlots() uint64 {
	return t.numGroups() * group.Size
}

// maxLoad is the occupancy threshold that triggers a rehash on insert.
func (t *Table[K, V]) maxLoad() float64 {
	return float64(t.capacitySlots()) * clampLoadFactor(t.maxLoadFactor)
}

// clampLoadFactor is the "clamped only at use" step spec section 4.4
// describes: a finite factor above 1.0, however large, is capped to 1.0
// (a flat-layout table cannot hold more than one element per slot); only
// +Inf passes through unclamped, so that maxLoad() becomes +Inf and
// load-triggered rehashing is disabled.
func clampLoadFactor(f float64) float64 {
	if math.IsInf(f, 1) {
		return f
	}
	if f > 1.0 {
		return 1.0
	}
	return f
}

// BucketCount returns the current number of slots.
func (t *Table[K, V]) BucketCount() int { return int(t.capacitySlots()) }

// Len returns the number of occupied slots.
func (t *Table[K, V]) Len() int { return t.size }

// Position identifies a slot by (group, index-within-group); it is the
// addressing unit At, ValueAt and EraseAt operate on, replacing C++
// iterators in this single-threaded table. cfoatable does not use it.
type Position struct {
	group int
	slot  int
}

func (t *Table[K, V]) probeFor(hash uint64) probe.Sequence {
	home := t.policy.Position(hash, t.sizeIndex)
	return probe.New(home, t.numGroups())
}

// Find returns the position of key, if present. The probe sequence is
// only guaranteed to cover every group when numGroups is a power of
// two (WithAvalanchingHash's pow2 sizing); under the prime sizing that
// PrimeFmod uses by default, the triangular sequence can cycle through
// a strict subset of groups forever, so Find bounds itself to
// seq.Exhausted() like TryEmplace does, reporting a miss once the
// bound is hit even if the key could in principle live in a group
// outside that reachable subset.
func (t *Table[K, V]) Find(key K) (Position, bool) {
	hash := t.hasher(key)
	fp := group.Fingerprint(hash)
	seq := t.probeFor(hash)
	for {
		g := &t.groups[seq.Group()]
		m := g.meta.Match(fp)
		for !m.Empty() {
			i := m.First()
			if t.eq(g.slots[i].key, key) {
				return Position{group: int(seq.Group()), slot: i}, true
			}
			m = m.RemoveFirst()
		}
		if !g.meta.MatchEmpty().Empty() && g.meta.IsNotOverflowed(fp) {
			return Position{}, false
		}
		seq.Step()
		seq.Next()
		if seq.Exhausted() {
			return Position{}, false
		}
	}
}

// At dereferences a Position returned by Find/Insert/TryEmplace.
func (t *Table[K, V]) At(p Position) (K, V) {
	t.assertLive(p)
	s := &t.groups[p.group].slots[p.slot]
	return s.key, s.value
}

// ValueAt returns a pointer to the value at p, for in-place mutation.
func (t *Table[K, V]) ValueAt(p Position) *V {
	t.assertLive(p)
	return &t.groups[p.group].slots[p.slot].value
}

// assertLive is an invariant check (spec section 7, kind 4): a Position
// handed back to the table must still name an occupied slot, never one
// erased or invalidated by a rehash in between. It runs on every At and
// ValueAt call; no build mode turns it off.
func (t *Table[K, V]) assertLive(p Position) {
	assert.Require(p.group >= 0 && p.group < len(t.groups), "foatable: position names group %d of %d", p.group, len(t.groups))
	full := t.groups[p.group].meta.MatchFull()
	occupied := full&(group.Mask(1)<<uint(p.slot*8+7)) != 0
	assert.Require(occupied, "foatable: position (%d,%d) does not name an occupied slot", p.group, p.slot)
}

// Insert inserts key/value if key is absent, or leaves the table
// unchanged if present. Returns the element's position and whether it
// was newly inserted.
func (t *Table[K, V]) Insert(key K, value V) (Position, bool) {
	return t.TryEmplace(key, func() V { return value })
}

// TryEmplace looks up key; if present, returns its position unchanged.
// If absent, calls makeValue to construct the value lazily (only on the
// insert path, mirroring the source's emplace semantics of not building
// the value unless needed) and inserts it.
func (t *Table[K, V]) TryEmplace(key K, makeValue func() V) (Position, bool) {
	if float64(t.size+1) > t.maxLoad() {
		t.rehash(t.size + 1)
	}

	hash := t.hasher(key)
	fp := group.Fingerprint(hash)
	seq := t.probeFor(hash)
	var visited []uint64
	for {
		gi := seq.Group()
		g := &t.groups[gi]
		m := g.meta.Match(fp)
		for !m.Empty() {
			i := m.First()
			if t.eq(g.slots[i].key, key) {
				return Position{group: int(gi), slot: i}, false
			}
			m = m.RemoveFirst()
		}
		if avail := g.meta.MatchEmptyOrDeleted(); !avail.Empty() {
			i := avail.First()
			g.slots[i] = slot[K, V]{key: key, value: makeValue()}
			g.meta.SetSlot(i, fp)
			for _, vg := range visited {
				t.groups[vg].meta.MarkOverflow(fp)
			}
			t.size++
			return Position{group: int(gi), slot: i}, true
		}
		visited = append(visited, gi)
		seq.Step()
		seq.Next()
		if seq.Exhausted() {
			// Table full for this key along its whole probe length;
			// force growth and restart the insert.
			t.rehash(int(t.capacitySlots()) + 1)
			seq = t.probeFor(hash)
			visited = visited[:0]
		}
	}
}

// Erase removes key if present, returning 1 if removed, 0 otherwise.
func (t *Table[K, V]) Erase(key K) int {
	p, ok := t.Find(key)
	if !ok {
		return 0
	}
	t.EraseAt(p)
	return 1
}

// EraseAt removes the element at p. Per spec's erasure algorithm: the
// control byte becomes "deleted" unless the group still has another
// empty slot, in which case it reverts to "empty" to preserve the
// negative-lookup short-circuit.
func (t *Table[K, V]) EraseAt(p Position) {
	g := &t.groups[p.group]
	var zero slot[K, V]
	g.slots[p.slot] = zero
	if !g.meta.MatchEmpty().Empty() {
		g.meta.SetSlot(p.slot, 0x00)
	} else {
		g.meta.SetSlot(p.slot, 0x01)
	}
	t.size--
}

// Clear removes all elements, keeping the current capacity.
func (t *Table[K, V]) Clear() {
	for i := range t.groups {
		t.groups[i] = groupT[K, V]{}
	}
	t.size = 0
}

// Reserve ensures the table can hold at least n elements without a
// further rehash.
func (t *Table[K, V]) Reserve(n int) {
	if float64(n) > t.maxLoad() {
		t.rehash(n)
	}
}

// Rehash grows (or reorganizes) the table so it can hold at least n
// elements, following the strong exception-safety discipline of spec
// section 4.4: the new arrays are fully built before anything about the
// old table is touched, so a panicking Hasher/Equal during the rebuild
// leaves the original table completely untouched.
func (t *Table[K, V]) Rehash(n int) {
	t.rehash(n)
}

func (t *Table[K, V]) rehash(n int) {
	newSizeIndex := t.policy.SizeIndexFor(requiredCapacityFor(t.policy, n, t.maxLoadFactor))
	if newSizeIndex < t.sizeIndex {
		newSizeIndex = t.sizeIndex
	}
	for newSizeIndex <= t.sizeIndex && float64(n) > float64(t.policy.Capacity(newSizeIndex))*group.Size*math.Min(clampLoadFactor(t.maxLoadFactor), 1.0) {
		newSizeIndex = t.policy.NextSizeIndex(newSizeIndex)
	}

	newGroups := make([]groupT[K, V], t.policy.Capacity(newSizeIndex))

	// Build entirely into newGroups/newSizeIndex first; only swap into t
	// once the loop below completes without panicking.
	insertInto := func(groups []groupT[K, V], sizeIndex int, key K, value V) {
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
				g.slots[i] = slot[K, V]{key: key, value: value}
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
	// size is unchanged (rehash moves elements, it does not add/remove
	// any); overflow bytes start the new epoch at zero by construction
	// since newGroups is freshly allocated (spec invariant 5).
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

// All iterates every live (key, value) pair. The concurrent table does
// not expose this — see cfoatable's closure-only API.
func (t *Table[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for gi := range t.groups {
			m := t.groups[gi].meta.MatchFull()
			for !m.Empty() {
				i := m.First()
				s := &t.groups[gi].slots[i]
				if !yield(s.key, s.value) {
					return
				}
				m = m.RemoveFirst()
			}
		}
	}
}
