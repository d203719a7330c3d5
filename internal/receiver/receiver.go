// Package receiver implements the receiving end of a relayed transfer: it turns
// the ordered frames of one connection into completed files.
package receiver

import (
	"context"
	"errors"
	"fmt"

	"github.com/relaydrop/relaydrop/internal/conn"
	"github.com/relaydrop/relaydrop/internal/consent"
	"github.com/relaydrop/relaydrop/internal/progress"
	"github.com/relaydrop/relaydrop/internal/storage"
	"github.com/relaydrop/relaydrop/protocol/signal"
	"go.uber.org/zap"
)

// ClipboardSink receives clipboard text pushed by the sender.
type ClipboardSink interface {
	Update(text string) error
}

type Option func(*Receiver)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Receiver) {
		r.logger = logger
	}
}

func WithGate(gate consent.Gate) Option {
	return func(r *Receiver) {
		r.gate = gate
	}
}

func WithProgress(estimator *progress.Estimator) Option {
	return func(r *Receiver) {
		r.progress = estimator
	}
}

func WithClipboard(sink ClipboardSink) Option {
	return func(r *Receiver) {
		r.clipboard = sink
	}
}

// WithOnComplete registers a callback invoked after each completed transfer.
func WithOnComplete(fn func(Result)) Option {
	return func(r *Receiver) {
		r.onComplete = fn
	}
}

// RequireConsent makes the receiver refuse metadata that was not preceded by
// an accepted consent request.
func RequireConsent(required bool) Option {
	return func(r *Receiver) {
		r.requireConsent = required
	}
}

// Once makes Run return after the first completed transfer.
func Once() Option {
	return func(r *Receiver) {
		r.once = true
	}
}

// Receiver owns the transfer state of one connection. All frames are handled
// sequentially on the goroutine calling Run.
type Receiver struct {
	sc         conn.Signal
	selector   *storage.Selector
	gate       consent.Gate
	progress   *progress.Estimator
	clipboard  ClipboardSink
	onComplete func(Result)
	logger     *zap.Logger

	requireConsent bool
	once           bool

	state     State
	session   *Session
	consented bool
}

func New(c conn.Conn, selector *storage.Selector, opts ...Option) *Receiver {
	r := &Receiver{
		sc:       conn.Signal{Conn: c},
		selector: selector,
		gate:     consent.AutoAccept,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.progress == nil {
		r.progress = progress.New(nil)
	}
	return r
}

// State returns the current lifecycle state.
func (r *Receiver) State() State {
	return r.state
}

// Session returns the active session, nil when no transfer is in flight.
func (r *Receiver) Session() *Session {
	return r.session
}

// Run processes frames until the connection closes, the context is done, a
// transfer fails, or, with Once, the first transfer completes. A normal
// closure while idle is not an error.
func (r *Receiver) Run(ctx context.Context) error {
	for {
		msg, err := r.sc.ReadMsg(ctx)
		switch {
		case errors.Is(err, signal.ErrMalformedFrame):
			r.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		case err != nil:
			return r.disconnected(ctx, err)
		}

		completed, err := r.Handle(ctx, msg)
		if err != nil {
			return err
		}
		if completed && r.once {
			return nil
		}
	}
}

// Handle applies a single message. It reports whether the message completed a
// transfer. Returned errors are fatal to the connection.
func (r *Receiver) Handle(ctx context.Context, msg signal.Msg) (bool, error) {
	switch msg := msg.(type) {
	case signal.ConsentRequest:
		return false, r.handleConsentRequest(ctx, msg)
	case signal.Metadata:
		r.handleMetadata(ctx, msg)
		return false, nil
	case signal.Chunk:
		return false, r.handleChunk(ctx, msg)
	case signal.TransferComplete:
		return r.handleTransferComplete(ctx)
	case signal.ClipboardUpdate:
		r.handleClipboard(msg)
		return false, nil
	case signal.ConsentResponse, signal.Ignored:
		r.logger.Debug("ignoring message", zap.String("kind", msg.Kind().Name()))
		return false, nil
	default:
		r.logger.Warn("unhandled message", zap.String("type", fmt.Sprintf("%T", msg)))
		return false, nil
	}
}

// ------------------------------------------------------ Handlers -----------------------------------------------------

func (r *Receiver) handleConsentRequest(ctx context.Context, msg signal.ConsentRequest) error {
	logger := r.logger.With(zap.String("file", msg.Filename), zap.String("sender", msg.Sender))
	if r.busy() {
		logger.Warn("rejecting transfer request while receiving", zap.Error(ErrProtocolViolation))
		return r.respond(ctx, msg.Sender, consent.Reject)
	}

	r.state = AwaitingConsent
	r.consented = false
	decision, err := r.gate.Decide(ctx, msg.Filename, msg.Sender)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("consent gate failed, rejecting", zap.Error(err))
		decision = consent.Reject
	}
	logger.Info("answered transfer request", zap.Stringer("decision", decision))

	if decision == consent.Accept {
		r.consented = true
	} else {
		r.state = Idle
	}
	return r.respond(ctx, msg.Sender, decision)
}

func (r *Receiver) handleMetadata(ctx context.Context, msg signal.Metadata) {
	logger := r.logger.With(zap.String("file", msg.Filename), zap.Int64("size", msg.Filesize))
	if r.busy() {
		logger.Warn("rejecting metadata, a transfer is already in progress",
			zap.String("current", r.session.FileName), zap.Error(ErrProtocolViolation))
		return
	}
	if r.requireConsent && !r.consented {
		logger.Warn("rejecting metadata without accepted transfer request", zap.Error(ErrProtocolViolation))
		return
	}

	backend := r.selector.Select(ctx, msg.Filename)
	r.session = newSession(msg.Filename, msg.Filesize, backend)
	r.state = Receiving
	r.consented = false
	logger.Info("receiving file", zap.Stringer("backend", backend.Kind()))

	r.progress.SetTotal(msg.Filesize)
	r.progress.SetTitle(msg.Filename)
}

func (r *Receiver) handleChunk(ctx context.Context, msg signal.Chunk) error {
	if r.state != Receiving {
		r.logger.Warn("dropping chunk without active transfer", zap.Int("bytes", len(msg.Data)), zap.Stringer("state", r.state))
		return nil
	}
	s := r.session
	before := s.Received()
	if err := s.apply(ctx, msg.Data); err != nil {
		return r.fail(err)
	}
	if before <= s.TotalSize && s.Received() > s.TotalSize {
		r.logger.Warn("received more bytes than announced",
			zap.String("file", s.FileName), zap.Int64("size", s.TotalSize), zap.Int64("received", s.Received()))
	}
	r.progress.Update(s.Reported())
	return nil
}

func (r *Receiver) handleTransferComplete(ctx context.Context) (bool, error) {
	if r.state != Receiving {
		r.logger.Warn("dropping transfer completion without active transfer", zap.Stringer("state", r.state))
		return false, nil
	}
	s := r.session
	r.state = Finalizing
	if s.Received() < s.TotalSize {
		r.logger.Warn("transfer completed short",
			zap.String("file", s.FileName), zap.Int64("size", s.TotalSize), zap.Int64("received", s.Received()))
	}
	path, err := s.finalize(ctx)
	if err != nil {
		return false, r.fail(err)
	}

	res := Result{
		FileName: s.FileName,
		Path:     path,
		Size:     s.Received(),
		Backend:  s.Backend().Kind(),
	}
	r.state = Completed
	r.session = nil
	r.progress.Complete()
	r.logger.Info("transfer completed", zap.String("file", res.FileName), zap.String("path", res.Path), zap.Int64("size", res.Size))
	if r.onComplete != nil {
		r.onComplete(res)
	}
	return true, nil
}

func (r *Receiver) handleClipboard(msg signal.ClipboardUpdate) {
	if r.clipboard == nil {
		r.logger.Info("clipboard update ignored", zap.Int("length", len(msg.Text)))
		return
	}
	if err := r.clipboard.Update(msg.Text); err != nil {
		r.logger.Warn("updating clipboard", zap.Error(err))
	}
}

// ------------------------------------------------------ Helpers ------------------------------------------------------

func (r *Receiver) busy() bool {
	return r.state == Receiving || r.state == Finalizing
}

func (r *Receiver) respond(ctx context.Context, sender string, decision consent.Decision) error {
	err := r.sc.WriteMsg(ctx, signal.ConsentResponse{Sender: sender, Accept: decision == consent.Accept})
	if err != nil {
		return fmt.Errorf("sending transfer response: %w", err)
	}
	return nil
}

// fail moves the session into the terminal failed state.
func (r *Receiver) fail(err error) error {
	s := r.session
	if abortErr := s.backend.Abort(); abortErr != nil {
		r.logger.Warn("releasing backend", zap.Error(abortErr))
	}
	r.state = Failed
	r.progress.Fail(err)
	r.logger.Error("transfer failed", zap.String("file", s.FileName), zap.Int64("received", s.Received()), zap.Error(err))
	return err
}

// disconnected handles the end of the channel. An in-flight transfer is
// released unfinalized.
func (r *Receiver) disconnected(ctx context.Context, err error) error {
	if r.busy() {
		return r.fail(fmt.Errorf("%w: connection lost during transfer of %s: %w", ErrTransferFailed, r.session.FileName, err))
	}
	if errors.Is(err, conn.ErrClosed) || ctx.Err() != nil {
		r.logger.Info("connection closed", zap.Error(err))
		return nil
	}
	return fmt.Errorf("reading from relay: %w", err)
}
