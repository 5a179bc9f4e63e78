// Package reentrancy implements the concurrent table's reentrancy
// detection: a per-goroutine stack of table identities currently being
// accessed, checked before acquiring a table's rehash_lock.
//
// The source (original_source/.../reentrancy_check.hpp) keeps a
// thread-local singly-linked list of entry_trace nodes. Go has no
// thread-local storage a library can hook (goroutines aren't threads
// and can migrate between OS threads at scheduling points), so this
// port uses the common goroutine-local-storage workaround of deriving a
// stable per-goroutine key from runtime.Stack's header line, which
// always starts with "goroutine N [...]:" — the same trick used by
// goroutine-aware loggers and request-scoped context shims. Disabled
// builds (the source's BOOST_UNORDERED_DISABLE_REENTRANCY_CHECK) are
// modeled by the Enabled package variable.
package reentrancy

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// Enabled gates the check at runtime, mirroring the source's
// compile-time BOOST_UNORDERED_DISABLE_REENTRANCY_CHECK option. Tests
// and latency-sensitive callers may set this to false.
var Enabled = true

var (
	mu    sync.Mutex
	stack = map[int64][]uintptr{} // goroutine id -> stack of table identities
)

// goroutineID extracts the numeric id from the current goroutine's
// stack trace header ("goroutine 123 [running]:\n...").
func goroutineID() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	// "goroutine " is 10 bytes.
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return -1
	}
	buf = buf[len(prefix):]
	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		return -1
	}
	id, err := strconv.ParseInt(string(buf[:end]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}

// Enter pushes identity onto the current goroutine's stack. It reports
// false (and does not push) if identity is already present, signalling
// a forbidden reentrant access into the same table from a visitor.
func Enter(identity uintptr) bool {
	if !Enabled {
		return true
	}
	gid := goroutineID()
	mu.Lock()
	defer mu.Unlock()
	for _, id := range stack[gid] {
		if id == identity {
			return false
		}
	}
	stack[gid] = append(stack[gid], identity)
	return true
}

// Leave pops identity from the current goroutine's stack. It must be
// called exactly once for every successful Enter, in LIFO order.
func Leave(identity uintptr) {
	if !Enabled {
		return
	}
	gid := goroutineID()
	mu.Lock()
	defer mu.Unlock()
	s := stack[gid]
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == identity {
			stack[gid] = append(s[:i], s[i+1:]...)
			if len(stack[gid]) == 0 {
				delete(stack, gid)
			}
			return
		}
	}
}
