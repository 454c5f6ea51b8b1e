package resource

// Iter walks a snapshot of a node's direct children. It is stable
// against insertion — new siblings added after NewIter never appear —
// but not against deletion: Current returns nil for a destroyed element
// under the cursor, and Next skips destroyed elements, matching
// "deleting the current element invalidates only that iterator's
// cursor" (spec.md §4.2).
type Iter struct {
	nodes []*Node
	pos   int
}

// NewIter creates an iterator over res's direct children.
func NewIter(res *Node) *Iter {
	return &Iter{nodes: res.Children(), pos: -1}
}

// Current returns the node at the cursor, or nil if the cursor is
// before the first or after the last element, or the element under it
// has since been destroyed.
func (it *Iter) Current() *Node {
	if it.pos < 0 || it.pos >= len(it.nodes) {
		return nil
	}
	n := it.nodes[it.pos]
	n.mu.Lock()
	destroyed := n.destroyed
	n.mu.Unlock()
	if destroyed {
		return nil
	}
	return n
}

// Next advances the cursor past any destroyed elements and returns the
// new current node, or nil once the snapshot is exhausted.
func (it *Iter) Next() *Node {
	for it.pos < len(it.nodes) {
		it.pos++
		if n := it.Current(); n != nil {
			return n
		}
	}
	return nil
}

// Previous retreats the cursor and returns the new current node.
func (it *Iter) Previous() *Node {
	if it.pos >= 0 {
		it.pos--
	}
	return it.Current()
}

// Reset returns the cursor to its initial, before-first position.
func (it *Iter) Reset() { it.pos = -1 }

// Destroy releases the iterator. No-op beyond dropping the reference;
// provided for symmetry with sid_resource_iter_destroy.
func (it *Iter) Destroy() { it.nodes = nil }
