// Package clip delivers clipboard text pushed through the relay.
package clip

import (
	"errors"

	"github.com/atotto/clipboard"
)

var errUnsupported = errors.New("no clipboard utility available on this system")

// Sink shows clipboard updates and optionally writes them to the local clipboard.
type Sink struct {
	sync   bool
	notify func(string)
	write  func(string) error
}

// NewSink returns a sink calling notify for every update. With sync the text
// is also written to the system clipboard.
func NewSink(sync bool, notify func(string)) *Sink {
	return &Sink{sync: sync, notify: notify, write: clipboard.WriteAll}
}

func (s *Sink) Update(text string) error {
	if s.notify != nil {
		s.notify(text)
	}
	if !s.sync {
		return nil
	}
	if clipboard.Unsupported {
		return errUnsupported
	}
	return s.write(text)
}

