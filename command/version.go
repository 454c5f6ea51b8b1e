package command

import "github.com/sidbridge/ubridge/version"

// handleVersion is the Go port of _cmd_execute_version: appends the
// packed {major,minor,release} payload to the reply.
func handleVersion(cmd *Command) error {
	cmd.AppendReply(version.Encode())
	return nil
}
