package storage

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// Destination is a writable location acquired from a Picker.
type Destination interface {
	io.WriteCloser
	Name() string
}

// StreamingWriter writes every chunk straight to its destination.
type StreamingWriter struct {
	dst    Destination
	closed bool
}

func NewStreamingWriter(dst Destination) *StreamingWriter {
	return &StreamingWriter{dst: dst}
}

func (s *StreamingWriter) Kind() Kind { return Streaming }

func (s *StreamingWriter) Write(ctx context.Context, b []byte) error {
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.dst.Write(b); err != nil {
		return errors.Wrapf(err, "writing to %s", s.dst.Name())
	}
	return nil
}

type syncer interface {
	Sync() error
}

// Close flushes the destination to stable storage before closing it.
func (s *StreamingWriter) Close(ctx context.Context) (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	s.closed = true
	if f, ok := s.dst.(syncer); ok {
		if err := f.Sync(); err != nil {
			s.dst.Close()
			return "", errors.Wrapf(err, "syncing %s", s.dst.Name())
		}
	}
	if err := s.dst.Close(); err != nil {
		return "", errors.Wrapf(err, "closing %s", s.dst.Name())
	}
	return s.dst.Name(), nil
}

// Abort closes the destination, leaving whatever was written in place.
func (s *StreamingWriter) Abort() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.dst.Close()
}
