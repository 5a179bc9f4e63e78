package reentrancy

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnterLeaveRoundTrip(t *testing.T) {
	const table = uintptr(0xdead)
	require.True(t, Enter(table))
	Leave(table)
	require.True(t, Enter(table))
	Leave(table)
}

func TestReenteringSameTableIsRejected(t *testing.T) {
	const table = uintptr(0xbeef)
	require.True(t, Enter(table))
	defer Leave(table)

	require.False(t, Enter(table), "nested entry into the same table must be rejected")
}

func TestDifferentTablesDoNotInterfere(t *testing.T) {
	const a, b = uintptr(1), uintptr(2)
	require.True(t, Enter(a))
	defer Leave(a)
	require.True(t, Enter(b))
	defer Leave(b)
}

func TestGoroutinesAreIndependent(t *testing.T) {
	const table = uintptr(42)
	require.True(t, Enter(table))
	defer Leave(table)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// A different goroutine entering the same table identity is
		// fine: reentrancy is a per-goroutine (thread) concept.
		require.True(t, Enter(table))
		Leave(table)
	}()
	wg.Wait()
}

func TestDisabledSkipsTheCheck(t *testing.T) {
	Enabled = false
	defer func() { Enabled = true }()

	const table = uintptr(7)
	require.True(t, Enter(table))
	require.True(t, Enter(table)) // would be rejected if enabled
}
