// Package runtime owns the on-disk layout of the chorusd runtime
// directory: the default input pipe, the two control sockets, and the
// naming conventions producers and the daemon agree on.
package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// Paths names every artifact that lives under one configured root.
type Paths struct {
	Root string
}

// New returns a Paths rooted at dir. dir is not created or validated;
// call EnsureDir for that.
func New(dir string) Paths {
	return Paths{Root: dir}
}

// EnsureDir creates the runtime directory with owner-only permissions if
// it does not already exist.
func (p Paths) EnsureDir() error {
	if err := os.MkdirAll(p.Root, 0o700); err != nil {
		return fmt.Errorf("creating runtime dir %s: %w", p.Root, err)
	}
	return nil
}

// DefaultInput is the daemon-created default input pipe, "in".
func (p Paths) DefaultInput() string {
	return filepath.Join(p.Root, "in")
}

// NamedInput is a producer-created input pipe, "in.<name>".
func (p Paths) NamedInput(name string) string {
	return filepath.Join(p.Root, "in."+name)
}

// NamedOutput is a producer-created output pipe, "out.<name>".
func (p Paths) NamedOutput(name string) string {
	return filepath.Join(p.Root, "out."+name)
}

// ControlSock is the hook-to-daemon endpoint.
func (p Paths) ControlSock() string {
	return filepath.Join(p.Root, "control.sock")
}

// OutputSock is the subscriber broadcast endpoint.
func (p Paths) OutputSock() string {
	return filepath.Join(p.Root, "output.sock")
}

// StdoutLog is where the pane's stdout tap is continuously mirrored so
// the Readiness Detector can poll its mtime.
func (p Paths) StdoutLog() string {
	return filepath.Join(p.Root, "stdout.log")
}

// HookErrorLog records best-effort hook delivery failures; it is
// self-truncating (see internal/cli).
func (p Paths) HookErrorLog() string {
	return filepath.Join(p.Root, "hook-error.log")
}

// EventLog is the JSONL half of the Logger's dual-write audit trail.
func (p Paths) EventLog() string {
	return filepath.Join(p.Root, "events.jsonl")
}

// EventDB is the SQLite half of the Logger's dual-write audit trail.
func (p Paths) EventDB() string {
	return filepath.Join(p.Root, "events.db")
}

// ChannelKind classifies an artifact name found in the runtime
// directory.
type ChannelKind int

const (
	// KindUnknown is any name not matching an input or output pattern.
	KindUnknown ChannelKind = iota
	// KindInput matches "in" or "in.<name>".
	KindInput
	// KindOutput matches "out.<name>".
	KindOutput
)

// Classify determines whether base (a bare filename, no directory
// component) names an input artifact, an output artifact, or neither,
// and returns the channel name derived from it ("default" for the bare
// "in" pipe).
func Classify(base string) (kind ChannelKind, channel string) {
	switch {
	case base == "in":
		return KindInput, "default"
	case strings.HasPrefix(base, "in."):
		name := strings.TrimPrefix(base, "in.")
		if name == "" {
			return KindUnknown, ""
		}
		return KindInput, name
	case strings.HasPrefix(base, "out."):
		name := strings.TrimPrefix(base, "out.")
		if name == "" {
			return KindUnknown, ""
		}
		return KindOutput, name
	default:
		return KindUnknown, ""
	}
}

// IsFIFO reports whether the file at path exists and is a named pipe.
func IsFIFO(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeNamedPipe != 0
}

// MakeFIFO creates a named pipe at path with owner-only permissions if
// one does not already exist. Used only for the daemon-owned "in" pipe;
// producer pipes are never created by chorusd.
func MakeFIFO(path string) error {
	if IsFIFO(path) {
		return nil
	}
	if err := syscall.Mkfifo(path, 0o600); err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("creating fifo %s: %w", path, err)
	}
	return nil
}

// RemoveStale unlinks a stale socket or pipe left over from a previous
// run, tolerating its absence.
func RemoveStale(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale artifact %s: %w", path, err)
	}
	return nil
}
