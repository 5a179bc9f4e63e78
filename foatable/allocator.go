package foatable

import "sync"

// Allocator is the collaborator contract callers may supply for
// node-layout storage (spec section 6): allocate/construct a T and
// later destroy/deallocate it. The core never assumes the returned
// pointer behaves like a raw Go pointer beyond what *T already gives
// you — it never reads through it except via the returned value.
type Allocator[T any] interface {
	New() *T
	Free(*T)
}

// GCAllocator is the default allocator: plain heap allocation backed by
// the garbage collector. Free is a no-op since Go has no manual
// deallocation; it exists so NodeHandle's allocator-carrying shape
// survives the port for callers who do supply a pooling allocator.
type GCAllocator[T any] struct{}

func (GCAllocator[T]) New() *T   { return new(T) }
func (GCAllocator[T]) Free(*T) {}

// PoolAllocator recycles node storage through a sync.Pool instead of
// allocating fresh nodes on every insert, for node-layout tables under
// high churn.
type PoolAllocator[T any] struct {
	pool sync.Pool
}

// NewPoolAllocator returns a ready-to-use PoolAllocator.
func NewPoolAllocator[T any]() *PoolAllocator[T] {
	p := &PoolAllocator[T]{}
	p.pool.New = func() any { return new(T) }
	return p
}

func (p *PoolAllocator[T]) New() *T {
	return p.pool.Get().(*T)
}

func (p *PoolAllocator[T]) Free(v *T) {
	var zero T
	*v = zero
	p.pool.Put(v)
}
