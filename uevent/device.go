// Package uevent parses the NUL-separated KEY=VALUE uevent environment
// payload carried by an IDENTIFY command, the Go port of the source's
// _parse_cmd_nullstr_udev_env and _device_add_field (ubridge.c).
package uevent

import (
	"bytes"
	"strconv"
)

// Action is the uevent action enumeration (add/remove/change/...).
type Action int

const (
	ActionUnknown Action = iota
	ActionAdd
	ActionRemove
	ActionChange
	ActionMove
	ActionOnline
	ActionOffline
	ActionBind
	ActionUnbind
)

var actionByName = map[string]Action{
	"add":     ActionAdd,
	"remove":  ActionRemove,
	"change":  ActionChange,
	"move":    ActionMove,
	"online":  ActionOnline,
	"offline": ActionOffline,
	"bind":    ActionBind,
	"unbind":  ActionUnbind,
}

// Device is the parsed device descriptor (struct device in the
// source). DevName, DevType, SynthUUID and Custom (every KEY=VALUE
// pair unrecognized by name) hold Go strings converted from the
// payload, so they are copies and do not reference the payload buffer.
type Device struct {
	Action    Action
	DevName   string
	DevType   string
	Major     int
	Minor     int
	SeqNum    uint64
	SynthUUID string
	Custom    map[string]string
}

// ParseDevice scans a NUL-separated sequence of "KEY=VALUE" strings
// and builds a Device. Unparseable MAJOR/MINOR/SEQNUM values are
// skipped (left at their zero value) rather than aborting the whole
// parse, since one malformed field should not discard an otherwise
// usable uevent payload.
func ParseDevice(raw []byte) *Device {
	d := &Device{Custom: make(map[string]string)}
	for _, field := range bytes.Split(raw, []byte{0}) {
		if len(field) == 0 {
			continue
		}
		eq := bytes.IndexByte(field, '=')
		if eq < 0 {
			continue
		}
		key := string(field[:eq])
		value := string(field[eq+1:])
		addField(d, key, value)
	}
	return d
}

func addField(d *Device, key, value string) {
	switch key {
	case "ACTION":
		if a, ok := actionByName[value]; ok {
			d.Action = a
		}
	case "DEVNAME":
		d.DevName = value
	case "DEVTYPE":
		d.DevType = value
	case "MAJOR":
		if v, err := strconv.Atoi(value); err == nil {
			d.Major = v
		}
	case "MINOR":
		if v, err := strconv.Atoi(value); err == nil {
			d.Minor = v
		}
	case "SEQNUM":
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			d.SeqNum = v
		}
	case "SYNTH_UUID":
		d.SynthUUID = value
	default:
		d.Custom[key] = value
	}
}
