// Package vfs defines the minimal path abstraction the executor partitions
// work by: every path knows, without I/O, which storage device it lives on
// and how to display itself. Concrete network filesystem drivers implement
// Path elsewhere; the local-filesystem form lives here.
package vfs

import "path/filepath"

// DeviceID identifies a storage device (local volume, remote server). The
// unit of concurrency partitioning: work on distinct devices runs in
// parallel, work on one device is serialized.
type DeviceID string

// Path locates an object on some storage device.
type Path interface {
	// Device returns the identity of the storage device this path points
	// into. Must not perform I/O.
	Device() DeviceID
	// DisplayPath returns the human-readable form used in status lines and
	// diagnostics.
	DisplayPath() string
}

// LocalPath is a path beneath a configured local root. The root doubles as
// the device key; real volume detection belongs to the filesystem drivers.
type LocalPath struct {
	Root string // configured folder root
	Rel  string // path relative to Root, "" for the root itself
}

func (p LocalPath) Device() DeviceID { return DeviceID(p.Root) }

func (p LocalPath) DisplayPath() string {
	if p.Rel == "" {
		return p.Root
	}
	return filepath.Join(p.Root, p.Rel)
}
