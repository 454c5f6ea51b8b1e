// Package version holds the daemon's build-time semantic version, the
// Go analogue of the source's static struct version this_version in
// _cmd_execute_version.
package version

import "encoding/binary"

// Major, Minor, and Release make up the VERSION command's reply
// payload (struct version in the source: three packed little-endian
// u16 fields).
const (
	Major   uint16 = 0
	Minor   uint16 = 1
	Release uint16 = 0
)

// Encode returns the 6-byte packed {major,minor,release} payload.
func Encode() []byte {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint16(buf[0:2], Major)
	binary.LittleEndian.PutUint16(buf[2:4], Minor)
	binary.LittleEndian.PutUint16(buf[4:6], Release)
	return buf
}
