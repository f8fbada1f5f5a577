package odbx

import (
	"sync"
	"sync/atomic"
)

// Handle wraps a raw native handle with a liveness flag and its place
// in the ownership tree. A Handle whose ancestor was released is dead
// even though no free was ever issued for it directly: the driver
// invalidated it implicitly, and issuing a second free would touch
// freed native memory.
type Handle struct {
	kind   HandleKind
	raw    uintptr
	live   int32
	parent *Handle

	mu       sync.Mutex
	children map[*Handle]struct{}
}

// Kind returns the handle's resource class.
func (h *Handle) Kind() HandleKind { return h.kind }

// Raw returns the underlying native handle value. The value is only
// meaningful while Live reports true.
func (h *Handle) Raw() uintptr { return h.raw }

// Live reports whether the handle may still be used for native calls.
func (h *Handle) Live() bool { return atomic.LoadInt32(&h.live) == 1 }

// markDead flips the liveness flag of h and every transitively owned
// child. No native frees are issued: the driver already invalidated
// the subtree when its root was freed.
func (h *Handle) markDead() {
	atomic.StoreInt32(&h.live, 0)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.children {
		c.markDead()
		delete(h.children, c)
	}
}

// Tree tracks ownership between environment, connection and statement
// handles and guarantees that every raw handle is freed exactly once.
// Allocate and Release are safe for concurrent use; a release on one
// goroutine is visible to liveness checks on others before the native
// free returns.
type Tree struct {
	api NativeAPI
	mu  sync.Mutex
}

// NewTree returns a handle tree backed by the given native API.
func NewTree(api NativeAPI) *Tree {
	return &Tree{api: api}
}

// Allocate creates a new handle of the given kind owned by parent.
// parent is nil only for environment handles. The child is registered
// with its parent so a later parent release can invalidate it.
func (t *Tree) Allocate(kind HandleKind, parent *Handle) (*Handle, error) {
	var parentRaw uintptr
	if parent != nil {
		if !parent.Live() {
			return nil, &StaleHandleError{Kind: parent.kind}
		}
		parentRaw = parent.raw
	}

	raw, err := t.api.AllocHandle(kind, parentRaw)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		kind:     kind,
		raw:      raw,
		live:     1,
		parent:   parent,
		children: make(map[*Handle]struct{}),
	}

	if parent != nil {
		parent.mu.Lock()
		// The parent may have been released between the liveness check
		// and here; in that case the fresh handle is already garbage.
		if !parent.Live() {
			parent.mu.Unlock()
			atomic.StoreInt32(&h.live, 0)
			return nil, &StaleHandleError{Kind: parent.kind}
		}
		parent.children[h] = struct{}{}
		parent.mu.Unlock()
	}

	return h, nil
}

// Release frees the handle and invalidates everything it owns. Exactly
// one native free is issued per handle over its lifetime: releasing an
// already-dead handle (released before, or invalidated by an ancestor
// release) is a no-op, not an error.
func (t *Tree) Release(h *Handle) error {
	if h == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !atomic.CompareAndSwapInt32(&h.live, 1, 0) {
		return nil
	}

	// Free the root of the subtree, then mark — never free — the
	// children. The driver invalidated them as a side effect of this
	// one free.
	err := t.api.FreeHandle(h.kind, h.raw)
	h.markDead()

	if h.parent != nil {
		h.parent.mu.Lock()
		delete(h.parent.children, h)
		h.parent.mu.Unlock()
	}

	return err
}
