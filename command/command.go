// Package command implements the C6 command pipeline: protocol
// negotiation, tag dispatch, and the IDENTIFY phase state machine
// (spec.md §4.6).
package command

import (
	"github.com/sidbridge/ubridge/kvstore"
	"github.com/sidbridge/ubridge/uevent"
	"github.com/sidbridge/ubridge/wire"
)

// Command is one in-flight command context: the parsed header, the
// parsed device descriptor (nil unless the command is IDENTIFY), the
// store it may read/write, and the accumulating reply payload. It is
// the Go analogue of "struct command" in the source, minus the
// resource-node plumbing, which the worker package supplies by running
// Dispatch from a deferred event source registered on a per-command
// resource.Node (worker/command_node.go).
type Command struct {
	Header  wire.Header
	Device  *uevent.Device
	Store   *kvstore.Store
	rawData []byte
	reply   []byte
}

// Handler executes one command tag against cmd, appending to cmd's
// reply payload via AppendReply. A negative/failing return sets
// wire.StatusFailure on the reply header before it is written to the
// connection.
type Handler func(cmd *Command) error

// AppendReply appends bytes to the command's reply payload (after the
// header, which Dispatch prepends once the handler returns).
func (c *Command) AppendReply(b []byte) {
	c.reply = append(c.reply, b...)
}

// registry maps each known tag to its handler. CmdUnknown and CmdReply
// use the same no-op handler: an inbound REPLY tag has no defined
// client-to-server meaning, and the source's own _command_regs treats
// it identically to UNKNOWN (both resolve to the stub successful
// handler).
var registry = map[wire.Command]Handler{
	wire.CmdUnknown:    handleUnknown,
	wire.CmdReply:      handleUnknown,
	wire.CmdVersion:    handleVersion,
	wire.CmdIdentify:   handleIdentify,
	wire.CmdCheckpoint: handleCheckpoint,
}

func handleUnknown(cmd *Command) error { return nil }

// Dispatch runs the full C6 pipeline for one inbound frame: negotiates
// protocol, normalizes the command tag, parses the uevent payload for
// IDENTIFY, runs the handler, and returns the framed reply bytes ready
// to write to the connection.
func Dispatch(rawHeader wire.Header, payload []byte, store *kvstore.Store) []byte {
	cmdTag := wire.NormalizeCommand(uint8(rawHeader.CmdNumber))

	reply := wire.Header{CmdNumber: wire.CmdReply}

	if rawHeader.Protocol > wire.Protocol {
		reply.Protocol = wire.Protocol
		reply.Status |= wire.StatusFailure
		return wire.EncodeFrame(wire.EncodeHeader(reply))
	}
	reply.Protocol = rawHeader.Protocol

	cmd := &Command{Header: rawHeader, Store: store, rawData: payload}
	if cmdTag == wire.CmdIdentify {
		cmd.Device = uevent.ParseDevice(payload)
	}

	handler, ok := registry[cmdTag]
	if !ok {
		handler = handleUnknown
	}

	if err := safeExecute(handler, cmd); err != nil {
		reply.Status |= wire.StatusFailure
		return wire.EncodeFrame(wire.EncodeHeader(reply))
	}

	out := append(wire.EncodeHeader(reply), cmd.reply...)
	return wire.EncodeFrame(out)
}

// safeExecute recovers a panicking handler and converts it into a
// failure result, so one misbehaving IDENTIFY phase cannot take down a
// worker process serving other connections sequentially queued behind
// it (SPEC_FULL.md §10).
func safeExecute(h Handler, cmd *Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrHandlerPanicked
		}
	}()
	return h(cmd)
}
