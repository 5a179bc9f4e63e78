package foatable

// NodeHandle is a movable, allocator-aware owning handle used to
// extract an element from one table and transfer it into another
// without copying the key/value, for node-layout tables (spec section
// 4.7). Ported from original_source's node_handle_base: empty handles
// are the zero value, moving a handle transfers ownership, and
// destroying a non-empty handle (Release) frees the element through
// the allocator it was extracted with.
type NodeHandle[K comparable, V any] struct {
	alloc Allocator[slotPair[K, V]]
	node  *slotPair[K, V]
}

type slotPair[K comparable, V any] struct {
	key   K
	value V
}

// Empty reports whether the handle owns no element.
func (h *NodeHandle[K, V]) Empty() bool { return h.node == nil }

// Key returns the owned element's key. Panics if Empty.
func (h *NodeHandle[K, V]) Key() K {
	return h.node.key
}

// Value returns the owned element's value. Panics if Empty.
func (h *NodeHandle[K, V]) Value() V {
	return h.node.value
}

// SetValue replaces the owned element's value (map node handles permit
// mutating the mapped value, never the key, matching the source's
// node_type::mapped() contract).
func (h *NodeHandle[K, V]) SetValue(v V) {
	h.node.value = v
}

// Extract removes key from t and, if present, returns a handle owning
// it (and whether it was found).
func Extract[K comparable, V any](t *Table[K, V], key K, alloc Allocator[slotPair[K, V]]) (NodeHandle[K, V], bool) {
	p, ok := t.Find(key)
	if !ok {
		return NodeHandle[K, V]{}, false
	}
	k, v := t.At(p)
	t.EraseAt(p)

	node := alloc.New()
	node.key, node.value = k, v
	return NodeHandle[K, V]{alloc: alloc, node: node}, true
}

// Insert moves h's element into t, if t does not already contain an
// equivalent key. On success h becomes empty; on failure (key already
// present) h is left unchanged and owns its element still.
func (h *NodeHandle[K, V]) Insert(t *Table[K, V]) bool {
	if h.Empty() {
		return false
	}
	_, inserted := t.Insert(h.node.key, h.node.value)
	if inserted {
		h.release()
	}
	return inserted
}

// Release destroys the owned element through its allocator, leaving
// the handle empty. Safe to call on an empty handle.
func (h *NodeHandle[K, V]) Release() {
	if h.Empty() {
		return
	}
	h.release()
}

func (h *NodeHandle[K, V]) release() {
	h.alloc.Free(h.node)
	h.node = nil
	h.alloc = nil
}
