package worker

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/sidbridge/ubridge/command"
	"github.com/sidbridge/ubridge/resource"
	"github.com/sidbridge/ubridge/wire"
)

// commandKickstart is the per-command constructor payload: the worker
// state (whose connFD the reply is written back to) and the raw frame
// payload (encoded header plus body, length prefix stripped).
type commandKickstart struct {
	st      *State
	payload []byte
}

// CommandType is the per-command node's resource type: it registers a
// deferred event source that runs command.Dispatch and writes the
// framed reply, then self-destroys. This defers the actual dispatch
// work out of the i/o readiness callback's own call stack, matching
// the source's use of a deferred event source to run a command
// outside of the triggering read event (spec.md §4.2, §4.6).
var CommandType = &resource.Type{
	Name: "command",
	Init: initCommand,
}

func initCommand(n *resource.Node, kickstart any) (any, error) {
	ks, ok := kickstart.(commandKickstart)
	if !ok {
		return nil, fmt.Errorf("worker: invalid command kickstart type %T", kickstart)
	}
	loop := n.OwningLoop()
	if loop == nil {
		return nil, fmt.Errorf("worker: command node has no owning loop")
	}
	_, err := loop.RegisterDeferred(func() error {
		runCommand(n, ks)
		return nil
	})
	return ks, err
}

func runCommand(n *resource.Node, ks commandKickstart) {
	defer resource.Destroy(n)

	header, err := wire.DecodeHeader(ks.payload)
	if err != nil {
		ks.st.log.Error("malformed command header", map[string]any{"error": err.Error()})
		return
	}
	body := ks.payload[wire.HeaderSize:]

	framed := command.Dispatch(header, body, ks.st.store)
	if _, err := unix.Write(ks.st.connFD, framed); err != nil {
		ks.st.log.Error("write reply failed", map[string]any{"error": err.Error()})
	}
}

// spawnCommand creates a child command node under the worker node,
// carrying payload (the decoded frame's header+body bytes) through to
// runCommand once its deferred source fires.
func (st *State) spawnCommand(payload []byte) error {
	_, err := resource.Create(st.node, CommandType, 0, fmt.Sprintf("cmd-%d", len(st.node.Children())), commandKickstart{st: st, payload: payload})
	return err
}
