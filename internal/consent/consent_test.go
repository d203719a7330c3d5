package consent_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/relaydrop/relaydrop/internal/consent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// terminal feeds a Prompt through a pipe and reports every question it prints.
type terminal struct {
	in      *io.PipeWriter
	printed chan string
}

func (term *terminal) Write(b []byte) (int, error) {
	term.printed <- string(b)
	return len(b), nil
}

// waitForQuestion blocks until the prompt asked about filename.
func (term *terminal) waitForQuestion(t *testing.T, filename string) {
	t.Helper()
	for {
		select {
		case out := <-term.printed:
			if strings.Contains(out, fmt.Sprintf("accept %q", filename)) {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("prompt for %s was not shown", filename)
		}
	}
}

func (term *terminal) typeLine(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(term.in, line+"\n")
	require.NoError(t, err)
}

func newTerminal(t *testing.T) (*consent.Prompt, *terminal) {
	r, w := io.Pipe()
	t.Cleanup(func() { w.Close() })
	term := &terminal{in: w, printed: make(chan string, 32)}
	return consent.NewPrompt(r, term), term
}

type decided struct {
	decision consent.Decision
	err      error
}

func decide(ctx context.Context, g consent.Gate, filename string) <-chan decided {
	res := make(chan decided, 1)
	go func() {
		d, err := g.Decide(ctx, filename, "peer1")
		res <- decided{d, err}
	}()
	return res
}

func TestPrompt(t *testing.T) {
	ctx := context.Background()

	t.Run("answers", func(t *testing.T) {
		p, term := newTerminal(t)
		tests := []struct {
			line string
			want consent.Decision
			err  error
		}{
			{"y", consent.Accept, nil},
			{"yes", consent.Accept, nil},
			{"no", consent.Reject, nil},
			{"maybe", consent.Reject, consent.ErrInvalidAnswer},
		}
		for _, tc := range tests {
			res := decide(ctx, p, "b.zip")
			term.waitForQuestion(t, "b.zip")
			term.typeLine(t, tc.line)
			got := <-res
			assert.Equal(t, tc.want, got.decision, tc.line)
			if tc.err != nil {
				assert.ErrorIs(t, got.err, tc.err)
			} else {
				assert.NoError(t, got.err)
			}
		}

		res := decide(ctx, p, "b.zip")
		term.waitForQuestion(t, "b.zip")
		term.in.Close()
		assert.ErrorIs(t, (<-res).err, io.ErrUnexpectedEOF)
	})

	t.Run("cancelled", func(t *testing.T) {
		r, w := io.Pipe()
		defer w.Close()
		p := consent.NewPrompt(r, io.Discard)
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		d, err := p.Decide(ctx, "b.zip", "peer1")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, consent.Reject, d)
	})

	t.Run("late answer does not carry over", func(t *testing.T) {
		p, term := newTerminal(t)
		g := consent.WithTimeout(p, 50*time.Millisecond, nil)

		got := <-decide(ctx, g, "first.bin")
		require.NoError(t, got.err)
		assert.Equal(t, consent.Reject, got.decision)

		// typed after the first question timed out, nothing is showing
		term.typeLine(t, "y")
		time.Sleep(20 * time.Millisecond)

		got = <-decide(ctx, g, "second.bin")
		require.NoError(t, got.err)
		assert.Equal(t, consent.Reject, got.decision)

		res := decide(ctx, p, "third.bin")
		term.waitForQuestion(t, "third.bin")
		term.typeLine(t, "y")
		got = <-res
		require.NoError(t, got.err)
		assert.Equal(t, consent.Accept, got.decision)
	})
}

func TestWithTimeout(t *testing.T) {
	ctx := context.Background()
	blocking := consent.GateFunc(func(ctx context.Context, _, _ string) (consent.Decision, error) {
		<-ctx.Done()
		return consent.Accept, ctx.Err()
	})

	t.Run("auto reject", func(t *testing.T) {
		g := consent.WithTimeout(blocking, 10*time.Millisecond, nil)
		d, err := g.Decide(ctx, "b.zip", "peer1")
		require.NoError(t, err)
		assert.Equal(t, consent.Reject, d)
	})

	t.Run("answered in time", func(t *testing.T) {
		g := consent.WithTimeout(consent.AutoAccept, time.Second, nil)
		d, err := g.Decide(ctx, "b.zip", "peer1")
		require.NoError(t, err)
		assert.Equal(t, consent.Accept, d)
	})

	t.Run("parent cancellation is not a timeout", func(t *testing.T) {
		g := consent.WithTimeout(blocking, time.Hour, nil)
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := g.Decide(ctx, "b.zip", "peer1")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("zero timeout", func(t *testing.T) {
		g := consent.WithTimeout(consent.AutoAccept, 0, nil)
		d, err := g.Decide(ctx, "b.zip", "peer1")
		require.NoError(t, err)
		assert.Equal(t, consent.Accept, d)
	})
}
