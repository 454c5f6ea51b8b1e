// Package resource implements the hierarchical resource tree: named,
// typed nodes with parent/child edges, an optional owned event loop,
// and depth-first destroy semantics. It is the Go port of the source's
// sid_resource_t tree (resource.h).
package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sidbridge/ubridge/eventloop"
)

// Errors matching the source's "construction failure" taxonomy
// (spec.md §7).
var (
	ErrConstructFailed   = errors.New("resource: constructor failed")
	ErrIsolationDisallowed = errors.New("resource: isolation disallowed on this node")
	ErrNotLoopOwner      = errors.New("resource: node does not own an event loop")
)

// Type is the capability descriptor shared by every node of a kind: a
// display name, a constructor invoked with a kickstart payload, a
// destructor, and the two capability flags from sid_resource_type_t.
type Type struct {
	Name          string
	Init          func(n *Node, kickstart any) (data any, err error)
	Destroy       func(n *Node) error
	OwnsEventLoop bool
	OwnsWatchdog  bool
}

// Flags mirror sid_resource_flags_t.
type Flags uint64

const (
	RestrictWalkUp   Flags = 1 << 0
	RestrictWalkDown Flags = 1 << 1
	RestrictWalkMask Flags = RestrictWalkUp | RestrictWalkDown
	DisallowIsolation Flags = 1 << 2
)

// Node is one element of the resource tree.
type Node struct {
	mu sync.Mutex

	id     string
	typ    *Type
	flags  Flags
	parent *Node
	children []*Node

	data any
	loop *eventloop.Loop

	destroying bool
	destroyed  bool
}

// Create allocates a node under parent (or as a new root if parent is
// nil), invokes typ.Init with kickstart, and — if typ.OwnsEventLoop —
// creates the node's event loop. On constructor failure the node is
// not linked into the tree and Create returns ErrConstructFailed
// wrapping the constructor's error, matching "partial state is rolled
// back" (spec.md §4.2).
func Create(parent *Node, typ *Type, flags Flags, id string, kickstart any) (*Node, error) {
	n := &Node{id: id, typ: typ, flags: flags, parent: parent}

	if typ.OwnsEventLoop {
		loop, err := eventloop.New()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConstructFailed, err)
		}
		n.loop = loop
	}

	if typ.Init != nil {
		data, err := typ.Init(n, kickstart)
		if err != nil {
			if n.loop != nil {
				n.loop.Close()
			}
			return nil, fmt.Errorf("%w: %v", ErrConstructFailed, err)
		}
		n.data = data
	}

	if parent != nil {
		parent.mu.Lock()
		parent.children = append(parent.children, n)
		parent.mu.Unlock()
	}
	return n, nil
}

// Destroy depth-first destroys n's descendants, then invokes typ.Destroy,
// then closes n's own loop (if any), then unlinks n from its parent.
// Event sources registered on n's own loop are implicitly invalidated
// once Destroy closes that loop after typ.Destroy returns (or, for
// nodes without their own loop, by the owning
// ancestor's teardown of whatever sources it created on n's behalf) —
// callers are expected to destroy their registered sources from within
// typ.Destroy before returning, so that "no callback can fire against a
// half-dismantled node" (spec.md §3) holds.
func Destroy(n *Node) error {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return nil
	}
	children := append([]*Node(nil), n.children...)
	n.destroying = true
	n.mu.Unlock()

	for _, c := range children {
		if err := Destroy(c); err != nil {
			return err
		}
	}

	if n.typ.Destroy != nil {
		if err := n.typ.Destroy(n); err != nil {
			return fmt.Errorf("resource: destroy %s: %w", n.FullID(), err)
		}
	}
	if n.loop != nil {
		n.loop.Close()
	}

	if n.parent != nil {
		n.parent.mu.Lock()
		for i, c := range n.parent.children {
			if c == n {
				n.parent.children = append(n.parent.children[:i], n.parent.children[i+1:]...)
				break
			}
		}
		n.parent.mu.Unlock()
	}

	n.mu.Lock()
	n.destroyed = true
	n.mu.Unlock()
	return nil
}

// Data returns the node's opaque constructor-produced state.
func (n *Node) Data() any { return n.data }

// GetData recovers the node's state as T, the generic substitute the
// design notes prefer over is_type_of-then-cast (spec.md §9).
func GetData[T any](n *Node) (T, bool) {
	v, ok := n.data.(T)
	return v, ok
}

// ID returns the node's own identifier.
func (n *Node) ID() string { return n.id }

// FullID returns the dotted path from the root to n.
func (n *Node) FullID() string {
	var parts []string
	for cur := n; cur != nil; cur = cur.parent {
		parts = append([]string{cur.id}, parts...)
	}
	return strings.Join(parts, ".")
}

// IsTypeOf reports whether n was created with typ.
func (n *Node) IsTypeOf(typ *Type) bool { return n.typ == typ }

// Type returns n's type descriptor.
func (n *Node) Type() *Type { return n.typ }

// Flags returns n's flags.
func (n *Node) Flags() Flags { return n.flags }

// Loop returns n's owned event loop, or nil if typ.OwnsEventLoop is
// false.
func (n *Node) Loop() *eventloop.Loop { return n.loop }

// OwningLoop walks up from n to the nearest ancestor (including n
// itself) that owns an event loop. Most nodes (e.g. a per-command
// context) do not own a loop themselves but still need to register
// event sources; those sources are bound to the nearest ancestor's
// loop, matching the source's behavior where
// sid_resource_create_*_event_source walks up to the owning resource's
// event loop data.
func (n *Node) OwningLoop() *eventloop.Loop {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.loop != nil {
			return cur.loop
		}
	}
	return nil
}

// Parent returns n's parent, or nil if n is a root.
func (n *Node) Parent() *Node { return n.parent }

// TopLevel walks up to the root ancestor of n.
func (n *Node) TopLevel() *Node {
	cur := n
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Child returns the direct child of n matching typ and id, or nil.
func (n *Node) Child(typ *Type, id string) *Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.children {
		if c.typ == typ && c.id == id {
			return c
		}
	}
	return nil
}

// ChildrenCount returns the number of direct children of n.
func (n *Node) ChildrenCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.children)
}

// Children returns a snapshot slice of n's direct children, safe to
// range over even if the tree mutates concurrently.
func (n *Node) Children() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Node(nil), n.children...)
}

// IsAncestorOfType reports whether any ancestor of n (not including n
// itself) matches typ, honoring RestrictWalkUp.
func (n *Node) IsAncestorOfType(typ *Type) bool {
	if n.flags&RestrictWalkUp != 0 {
		return false
	}
	for cur := n.parent; cur != nil; cur = cur.parent {
		if cur.typ == typ {
			return true
		}
	}
	return false
}

// AddChild links child under n. Used when a node is constructed
// independently of Create and attached afterward (e.g. re-parenting
// during Isolate).
func (n *Node) AddChild(child *Node) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	child.parent = n
	n.children = append(n.children, child)
	return nil
}

// Isolate detaches n from its parent, reparenting n's own children to
// n's former parent — "effectively reparenting children to the node's
// parent" (spec.md §4.2).
func Isolate(n *Node) error {
	if n.flags&DisallowIsolation != 0 {
		return ErrIsolationDisallowed
	}
	parent := n.parent
	n.mu.Lock()
	kids := append([]*Node(nil), n.children...)
	n.children = nil
	n.mu.Unlock()

	if parent != nil {
		parent.mu.Lock()
		for i, c := range parent.children {
			if c == n {
				parent.children = append(parent.children[:i], parent.children[i+1:]...)
				break
			}
		}
		parent.mu.Unlock()
		for _, k := range kids {
			k.parent = parent
			parent.AddChild(k)
		}
	} else {
		for _, k := range kids {
			k.parent = nil
		}
	}
	n.parent = nil
	return nil
}

// IsolateWithChildren detaches n and its entire subtree from its
// parent as a unit. Fails if DisallowIsolation is set.
func IsolateWithChildren(n *Node) error {
	if n.flags&DisallowIsolation != 0 {
		return ErrIsolationDisallowed
	}
	if n.parent != nil {
		n.parent.mu.Lock()
		for i, c := range n.parent.children {
			if c == n {
				n.parent.children = append(n.parent.children[:i], n.parent.children[i+1:]...)
				break
			}
		}
		n.parent.mu.Unlock()
	}
	n.parent = nil
	return nil
}

// RunEventLoop runs n's owned loop to completion. Only valid on a node
// created with OwnsEventLoop.
func RunEventLoop(n *Node, ctx context.Context) (int, error) {
	if n.loop == nil {
		return 0, ErrNotLoopOwner
	}
	return n.loop.Run(ctx), nil
}

// ExitEventLoop requests n's owned loop to stop.
func ExitEventLoop(n *Node, status int) error {
	if n.loop == nil {
		return ErrNotLoopOwner
	}
	n.loop.ExitLoop(status)
	return nil
}
