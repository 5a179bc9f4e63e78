// Package probe generates the deterministic sequence of groups a table
// visits for a given key, per spec 4.3: quadratic (triangular-number)
// probing over group indices modulo the group count.
package probe

// Sequence yields groups p, p+1, p+3, p+6, ... (mod numGroups) starting
// from a home group index. The sequence visits every group exactly
// once only when numGroups is a power of two; for other group counts
// (PrimeFmod sizing, the table's default) it can cycle through a
// proper subset of groups forever without covering the rest. Callers
// must therefore treat Exhausted() after numGroups steps as a hard
// stop regardless of whether every group was actually inspected:
// TryEmplace/EraseIf/visit use it to trigger a rehash or report a
// miss, never looping past it.
type Sequence struct {
	numGroups uint64
	current   uint64
	stride    uint64
	steps     uint64
}

// New starts a probe sequence over numGroups groups from home.
func New(home uint64, numGroups uint64) Sequence {
	return Sequence{numGroups: numGroups, current: home % numGroups}
}

// Group returns the current group index.
func (s *Sequence) Group() uint64 {
	return s.current
}

// Next advances to the next group in the triangular sequence.
func (s *Sequence) Next() {
	s.stride++
	s.current = (s.current + s.stride) % s.numGroups
}

// Exhausted reports whether the probe has taken numGroups steps (as
// counted by Step). Those steps inspect every group only when numGroups
// is a power of two; otherwise they revisit a subset (see Sequence).
// Either way it is the signal to stop: report a miss or trigger a rehash.
func (s *Sequence) Exhausted() bool {
	return s.steps >= s.numGroups
}

// Step records that one group was inspected; call once per Next.
func (s *Sequence) Step() {
	s.steps++
}
