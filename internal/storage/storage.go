// Package storage holds the backends a received file is written to and the
// logic choosing between them.
package storage

import (
	"context"
	"errors"
	"os"
)

var ErrClosed = errors.New("backend already closed")

// Kind identifies a backend variant.
type Kind int

const (
	Memory Kind = iota
	Streaming
)

func (k Kind) String() string {
	switch k {
	case Memory:
		return "memory"
	case Streaming:
		return "streaming"
	default:
		return ""
	}
}

// Backend receives the bytes of exactly one transfer.
type Backend interface {
	// Write stores b and returns once the bytes have been handed to the destination.
	Write(ctx context.Context, b []byte) error
	// Close finalizes the destination and returns where the file ended up.
	Close(ctx context.Context) (string, error)
	// Abort releases the backend without finalizing it.
	Abort() error
	Kind() Kind
}

// Capability describes whether the streaming backend may be used. It is
// resolved once at startup.
type Capability struct {
	StreamingSave bool // streaming writes are enabled
	Trusted       bool // the output location accepts writes
}

func (c Capability) Streaming() bool {
	return c.StreamingSave && c.Trusted
}

// Probe resolves the capability for the output directory.
func Probe(dir string, streaming bool) Capability {
	return Capability{
		StreamingSave: streaming,
		Trusted:       writable(dir),
	}
}

func writable(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	f, err := os.CreateTemp(dir, ".relaydrop-probe-*")
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(f.Name())
	return true
}
