package receiver

import (
	"context"
	"errors"
	"fmt"

	"github.com/relaydrop/relaydrop/internal/storage"
)

var (
	ErrProtocolViolation = errors.New("protocol violation")
	ErrTransferFailed    = errors.New("transfer failed")
)

// State is the lifecycle state of the receiving side.
type State int

const (
	Idle State = iota
	AwaitingConsent
	Receiving
	Finalizing
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingConsent:
		return "awaiting consent"
	case Receiving:
		return "receiving"
	case Finalizing:
		return "finalizing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

// Session is one inbound file.
type Session struct {
	FileName  string
	TotalSize int64

	received int64
	backend  storage.Backend
}

func newSession(name string, size int64, backend storage.Backend) *Session {
	return &Session{
		FileName:  name,
		TotalSize: size,
		backend:   backend,
	}
}

// Received returns the number of bytes written so far.
func (s *Session) Received() int64 {
	return s.received
}

// Reported returns the byte count shown to the user, never above the total.
func (s *Session) Reported() int64 {
	return min(s.received, s.TotalSize)
}

// Backend returns the storage backend chosen for the session.
func (s *Session) Backend() storage.Backend {
	return s.backend
}

// apply writes one chunk. It returns once the backend accepted the bytes.
func (s *Session) apply(ctx context.Context, chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	if err := s.backend.Write(ctx, chunk); err != nil {
		return fmt.Errorf("%w: writing chunk at offset %d: %w", ErrTransferFailed, s.received, err)
	}
	s.received += int64(len(chunk))
	return nil
}

// finalize closes the backend and returns the location of the file.
func (s *Session) finalize(ctx context.Context) (string, error) {
	path, err := s.backend.Close(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: finalizing %s: %w", ErrTransferFailed, s.FileName, err)
	}
	return path, nil
}

// Result describes a completed transfer.
type Result struct {
	FileName string
	Path     string
	Size     int64
	Backend  storage.Kind
}
