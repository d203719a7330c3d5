package storage

import (
	"bytes"
	"context"
)

// SaveFunc hands a fully buffered file to its final location and returns it.
type SaveFunc func(ctx context.Context, name string, data []byte) (string, error)

// MemoryBuffer accumulates chunks and materializes the file on Close. Memory
// use is proportional to the file size.
type MemoryBuffer struct {
	name   string
	chunks [][]byte
	size   int
	save   SaveFunc
	closed bool
}

func NewMemoryBuffer(name string, save SaveFunc) *MemoryBuffer {
	return &MemoryBuffer{name: name, save: save}
}

func (m *MemoryBuffer) Kind() Kind { return Memory }

func (m *MemoryBuffer) Write(_ context.Context, b []byte) error {
	if m.closed {
		return ErrClosed
	}
	if len(b) == 0 {
		return nil
	}
	chunk := make([]byte, len(b))
	copy(chunk, b)
	m.chunks = append(m.chunks, chunk)
	m.size += len(b)
	return nil
}

// Len returns the number of buffered bytes.
func (m *MemoryBuffer) Len() int {
	return m.size
}

// Finalize returns the buffered chunks as one contiguous slice.
func (m *MemoryBuffer) Finalize() []byte {
	return bytes.Join(m.chunks, nil)
}

// Close materializes the buffer and calls the save trigger exactly once.
func (m *MemoryBuffer) Close(ctx context.Context) (string, error) {
	if m.closed {
		return "", ErrClosed
	}
	m.closed = true
	data := m.Finalize()
	m.chunks = nil
	return m.save(ctx, m.name, data)
}

// Abort discards the buffer.
func (m *MemoryBuffer) Abort() error {
	m.closed = true
	m.chunks = nil
	return nil
}
