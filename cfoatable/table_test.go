package cfoatable

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func identityHasher(k uint64) uint64 { return k }
func uint64Eq(a, b uint64) bool      { return a == b }

func newIntTable(opts ...Option[uint64, string]) *Table[uint64, string] {
	return New[uint64, string](identityHasher, uint64Eq, 0, opts...)
}

func TestInsertThenVisitFindsValue(t *testing.T) {
	tbl := newIntTable()
	require.True(t, tbl.Insert(1, "one"))

	var got string
	found := tbl.Visit(1, func(v string) { got = v })
	require.True(t, found)
	require.Equal(t, "one", got)
}

func TestVisitMissingKeyReturnsFalse(t *testing.T) {
	tbl := newIntTable()
	found := tbl.Visit(1, func(string) {})
	require.False(t, found)
}

func TestInsertExistingKeyIsNoop(t *testing.T) {
	tbl := newIntTable()
	require.True(t, tbl.Insert(1, "one"))
	require.False(t, tbl.Insert(1, "uno"))

	var got string
	tbl.Visit(1, func(v string) { got = v })
	require.Equal(t, "one", got)
}

func TestEraseRemovesKey(t *testing.T) {
	tbl := newIntTable()
	tbl.Insert(1, "one")
	require.True(t, tbl.Erase(1))
	require.False(t, tbl.Visit(1, func(string) {}))
	require.False(t, tbl.Erase(1))
}

func TestEraseIfOnlyRemovesWhenPredicateHolds(t *testing.T) {
	tbl := newIntTable()
	tbl.Insert(1, "one")

	require.False(t, tbl.EraseIf(1, func(v string) bool { return v == "nope" }))
	require.True(t, tbl.Visit(1, func(string) {}), "a rejected EraseIf must leave the element in place")

	require.True(t, tbl.EraseIf(1, func(v string) bool { return v == "one" }))
	require.False(t, tbl.Visit(1, func(string) {}))
}

func TestEraseIfAllRemovesMatchingElements(t *testing.T) {
	tbl := newIntTable()
	for i := uint64(0); i < 20; i++ {
		tbl.Insert(i, "x")
	}
	erased := tbl.EraseIfAll(func(k uint64, _ string) bool { return k%2 == 0 })
	require.Equal(t, 10, erased)
	require.Equal(t, 10, tbl.Len())

	tbl.VisitAll(func(k uint64, _ string) {
		require.Equal(t, uint64(1), k%2, "only odd keys should remain")
	})
}

// TryEmplaceOrVisit, called 100 times on the same key with a visitor
// that increments the existing value, should build the value only on
// the first (miss) call and increment it on every subsequent
// (hit/visit) call, ending at 99: one insert-at-0 followed by 99
// increments.
func TestTryEmplaceOrVisitCalledRepeatedlyIncrementsToNMinusOne(t *testing.T) {
	counters := New[uint64, int](identityHasher, uint64Eq, 0)
	for i := 0; i < 100; i++ {
		counters.TryEmplaceOrVisit(5, func() int { return 0 }, func(v *int) { *v++ })
	}
	var got int
	counters.Visit(5, func(v int) { got = v })
	require.Equal(t, 99, got)
}

func TestInsertOrVisitInsertsOnFirstCallAndVisitsAfter(t *testing.T) {
	tbl := newIntTable()
	visited := false
	inserted := tbl.InsertOrVisit(1, "one", func(v *string) { visited = true })
	require.True(t, inserted)
	require.False(t, visited)

	inserted = tbl.InsertOrVisit(1, "ignored", func(v *string) { visited = true })
	require.False(t, inserted)
	require.True(t, visited)
}

func TestVisitCallbackReenteringTheSameTablePanics(t *testing.T) {
	tbl := newIntTable()
	tbl.Insert(1, "one")

	require.Panics(t, func() {
		tbl.Visit(1, func(string) {
			tbl.Insert(2, "two")
		})
	}, "a visitor calling back into the same table must be rejected as reentrant")
}

// TestVisitAllCallbackReenteringViaVisitPanics is the reentrancy
// scenario: a visit_all callback calling back into the same table
// (here, via Visit, the port's equivalent of contains) must trip the
// reentrancy handler.
func TestVisitAllCallbackReenteringViaVisitPanics(t *testing.T) {
	tbl := newIntTable()
	tbl.Insert(0, "zero")

	require.Panics(t, func() {
		tbl.VisitAll(func(uint64, string) {
			tbl.Visit(0, func(string) {})
		})
	}, "a visit_all callback calling back into the same table must be rejected as reentrant")
}

func TestVisitAllObservesEveryConcurrentlyInsertedKey(t *testing.T) {
	tbl := newIntTable()
	const perWorker = 500
	const workers = 4

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			base := uint64(w) * perWorker
			for i := uint64(0); i < perWorker; i++ {
				tbl.Insert(base+i, "x")
			}
		}()
	}
	wg.Wait()

	seen := map[uint64]bool{}
	tbl.VisitAll(func(k uint64, _ string) { seen[k] = true })
	require.Equal(t, workers*perWorker, len(seen))
	require.Equal(t, workers*perWorker, tbl.Len())
}

func TestConcurrentInsertsOfDisjointKeysAllSucceed(t *testing.T) {
	tbl := newIntTable()
	const perWorker = 2000
	const workers = 8

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			base := uint64(w) * perWorker
			for i := uint64(0); i < perWorker; i++ {
				require.True(t, tbl.Insert(base+i, "x"))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, workers*perWorker, tbl.Len())
	for w := 0; w < workers; w++ {
		base := uint64(w) * perWorker
		for i := uint64(0); i < perWorker; i++ {
			require.True(t, tbl.Visit(base+i, func(string) {}))
		}
	}

	counts := map[uint64]int{}
	tbl.VisitAll(func(k uint64, _ string) { counts[k]++ })
	require.Len(t, counts, workers*perWorker)
	for k, n := range counts {
		require.Equalf(t, 1, n, "key %d enumerated more than once", k)
	}
}

func TestReserveAvoidsRehashDuringSubsequentInserts(t *testing.T) {
	tbl := newIntTable()
	tbl.Reserve(1000)
	after := tbl.BucketCount()
	for i := uint64(0); i < 800; i++ {
		tbl.Insert(i, "x")
	}
	require.Equal(t, after, tbl.BucketCount())
}

func TestRehashPreservesAllElements(t *testing.T) {
	tbl := newIntTable()
	for i := uint64(0); i < 200; i++ {
		tbl.Insert(i, "x")
	}
	tbl.Rehash(5000)
	require.Equal(t, 200, tbl.Len())
	for i := uint64(0); i < 200; i++ {
		require.True(t, tbl.Visit(i, func(string) {}))
	}
}
