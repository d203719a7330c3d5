// Package consent decides whether an inbound transfer request may proceed.
package consent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Decision is the answer to a transfer request. The zero value rejects.
type Decision int

const (
	Reject Decision = iota
	Accept
)

func (d Decision) String() string {
	if d == Accept {
		return "accept"
	}
	return "reject"
}

var ErrInvalidAnswer = errors.New("invalid answer to prompt")

// Gate asks for a decision on a transfer request. Decide blocks until an
// answer is available or the context is done.
type Gate interface {
	Decide(ctx context.Context, filename, sender string) (Decision, error)
}

// GateFunc adapts a function to a Gate.
type GateFunc func(ctx context.Context, filename, sender string) (Decision, error)

func (f GateFunc) Decide(ctx context.Context, filename, sender string) (Decision, error) {
	return f(ctx, filename, sender)
}

// AutoAccept accepts every request.
var AutoAccept = GateFunc(func(context.Context, string, string) (Decision, error) {
	return Accept, nil
})

// WithTimeout rejects requests that are not answered within d. A zero d
// returns the gate unchanged.
func WithTimeout(g Gate, d time.Duration, logger *zap.Logger) Gate {
	if d <= 0 {
		return g
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return GateFunc(func(ctx context.Context, filename, sender string) (Decision, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		decision, err := g.Decide(ctx, filename, sender)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			logger.Warn("consent request timed out, rejecting",
				zap.String("file", filename), zap.String("sender", sender), zap.Duration("timeout", d))
			return Reject, nil
		}
		return decision, err
	})
}

// Prompt asks on a line based terminal. A line only answers the question that
// was showing when it was read, lines typed in between are dropped.
type Prompt struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan answer

	mu      sync.Mutex
	gen     uint64
	pending bool
}

type answer struct {
	gen  uint64
	line string
}

func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out, lines: make(chan answer)}
}

// Decide writes the question and waits for a yes or no answer.
func (p *Prompt) Decide(ctx context.Context, filename, sender string) (Decision, error) {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.pending = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.pending = false
		p.mu.Unlock()
	}()

	p.once.Do(p.scan)
	fmt.Fprintf(p.out, "\naccept %q from %s? [y/n] ", filename, sender)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out)
			return Reject, ctx.Err()
		case a, ok := <-p.lines:
			if !ok {
				return Reject, io.ErrUnexpectedEOF
			}
			if a.gen != gen {
				continue
			}
			switch strings.TrimSpace(a.line) {
			case "y", "yes", "Y", "Yes":
				return Accept, nil
			case "n", "no", "N", "No":
				return Reject, nil
			default:
				return Reject, ErrInvalidAnswer
			}
		}
	}
}

// scan reads lines in the background so a pending read never outlives a
// cancelled Decide. Each line is tagged with the question showing when it
// was read.
func (p *Prompt) scan() {
	go func() {
		defer close(p.lines)
		s := bufio.NewScanner(p.in)
		for s.Scan() {
			p.mu.Lock()
			gen, pending := p.gen, p.pending
			p.mu.Unlock()
			if !pending {
				continue
			}
			p.lines <- answer{gen: gen, line: s.Text()}
		}
	}()
}
