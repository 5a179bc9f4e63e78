package foatable

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"pgregory.net/rand"
)

func identityHasher(k uint64) uint64 { return k }
func uint64Eq(a, b uint64) bool      { return a == b }

func newIntTable(opts ...Option[uint64, string]) *Table[uint64, string] {
	return New[uint64, string](identityHasher, uint64Eq, 0, opts...)
}

func TestInsertFindRoundtrip(t *testing.T) {
	tbl := newIntTable()
	p, inserted := tbl.Insert(42, "answer")
	require.True(t, inserted)

	found, ok := tbl.Find(42)
	require.True(t, ok)
	require.Equal(t, p, found)

	k, v := tbl.At(found)
	require.Equal(t, uint64(42), k)
	require.Equal(t, "answer", v)
}

func TestInsertExistingKeyIsNoop(t *testing.T) {
	tbl := newIntTable()
	_, inserted := tbl.Insert(1, "one")
	require.True(t, inserted)

	_, inserted = tbl.Insert(1, "uno")
	require.False(t, inserted)

	_, v := tbl.At(mustFind(t, tbl, 1))
	require.Equal(t, "one", v, "second insert of an existing key must not overwrite the value")
}

func TestTryEmplaceOnlyBuildsValueOnInsert(t *testing.T) {
	tbl := newIntTable()
	calls := 0
	makeValue := func() string { calls++; return "built" }

	tbl.TryEmplace(1, makeValue)
	require.Equal(t, 1, calls)

	tbl.TryEmplace(1, makeValue)
	require.Equal(t, 1, calls, "makeValue must not run when the key already exists")
}

func TestEraseRemovesKey(t *testing.T) {
	tbl := newIntTable()
	tbl.Insert(7, "seven")
	require.Equal(t, 1, tbl.Erase(7))

	_, ok := tbl.Find(7)
	require.False(t, ok)
	require.Equal(t, 0, tbl.Erase(7), "erasing an absent key reports zero removed")
}

func TestFindMissingKeyReturnsFalse(t *testing.T) {
	tbl := newIntTable()
	tbl.Insert(1, "one")
	_, ok := tbl.Find(999)
	require.False(t, ok)
}

func TestRehashPreservesTheMultisetOfElements(t *testing.T) {
	tbl := newIntTable()
	want := map[uint64]string{}
	rng := rand.New(1)
	for i := 0; i < 500; i++ {
		k := rng.Uint64()
		v := string(rune('a' + i%26))
		tbl.Insert(k, v)
		want[k] = v
	}

	tbl.Rehash(2000)

	got := map[uint64]string{}
	for k, v := range tbl.All() {
		got[k] = v
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rehash changed the element multiset (-want +got):\n%s", diff)
	}
}

func TestInfiniteMaxLoadFactorDisablesLoadTriggeredRehash(t *testing.T) {
	tbl := newIntTable(WithMaxLoadFactor[uint64, string](math.Inf(1)))
	before := tbl.BucketCount()
	for i := uint64(0); i < 1000; i++ {
		tbl.Insert(i, "x")
	}
	require.Equal(t, before, tbl.BucketCount(), "bucket count must not change under +Inf max load factor")
}

func TestLoadFactorAboveOneIsClampedToOne(t *testing.T) {
	tbl := newIntTable(WithMaxLoadFactor[uint64, string](5.0))
	require.Equal(t, float64(tbl.capacitySlots()), tbl.maxLoad())
}

func TestGrowthEventuallyTriggersRehashUnderDefaultLoadFactor(t *testing.T) {
	tbl := newIntTable()
	before := tbl.BucketCount()
	for i := uint64(0); i < 10_000; i++ {
		tbl.Insert(i, "x")
	}
	require.Greater(t, tbl.BucketCount(), before)
	require.Equal(t, 10_000, tbl.Len())
}

func TestElementsWithSharedFingerprintAreStillDistinguishedByEquality(t *testing.T) {
	// Keys chosen so their fingerprints collide (same top 7 bits) but the
	// keys themselves differ, exercising Match()+Equal() together rather
	// than fingerprint equality alone.
	tbl := newIntTable()
	const base = uint64(1) << 57
	k1, k2 := base, base|1
	tbl.Insert(k1, "first")
	tbl.Insert(k2, "second")

	_, v1 := tbl.At(mustFind(t, tbl, k1))
	_, v2 := tbl.At(mustFind(t, tbl, k2))
	require.Equal(t, "first", v1)
	require.Equal(t, "second", v2)
}

func TestEraseThenInsertReusesSlotWithoutGrowth(t *testing.T) {
	tbl := newIntTable()
	tbl.Insert(1, "one")
	before := tbl.BucketCount()
	tbl.Erase(1)
	tbl.Insert(2, "two")
	require.Equal(t, before, tbl.BucketCount())
}

func TestClearEmptiesTableKeepingCapacity(t *testing.T) {
	tbl := newIntTable()
	for i := uint64(0); i < 50; i++ {
		tbl.Insert(i, "x")
	}
	before := tbl.BucketCount()
	tbl.Clear()
	require.Equal(t, 0, tbl.Len())
	require.Equal(t, before, tbl.BucketCount())
	_, ok := tbl.Find(0)
	require.False(t, ok)
}

func TestReserveAvoidsRehashDuringSubsequentInserts(t *testing.T) {
	tbl := newIntTable()
	tbl.Reserve(1000)
	after := tbl.BucketCount()
	for i := uint64(0); i < 800; i++ {
		tbl.Insert(i, "x")
	}
	require.Equal(t, after, tbl.BucketCount(), "reserving up front must avoid a further rehash within budget")
}

func mustFind(t *testing.T, tbl *Table[uint64, string], key uint64) Position {
	t.Helper()
	p, ok := tbl.Find(key)
	require.True(t, ok)
	return p
}

// Under the default PrimeFmod sizing, a key's probe sequence can cycle
// through a proper subset of the table's groups without ever reaching
// the rest (see internal/probe). Insert/delete churn that fills the
// reachable subset with tombstones must not turn a negative Find into
// an infinite loop: the probe's Exhausted() bound caps it at
// numGroups steps even if that means missing a key that happens to
// live outside the reachable subset.
func TestFindTerminatesWhenReachableGroupsAreSaturatedWithTombstones(t *testing.T) {
	tbl := newIntTable()
	for i := uint64(0); i < 2000; i++ {
		tbl.Insert(i, "x")
	}
	for i := uint64(0); i < 2000; i += 2 {
		tbl.Erase(i)
	}
	for i := uint64(0); i < 2000; i++ {
		_, _ = tbl.Find(i)
	}
}
