package conn

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/relaydrop/relaydrop/protocol/signal"
	"nhooyr.io/websocket"
)

// MaxFrameBytes bounds a single inbound frame. Relays send 64 KiB chunks by
// default, the limit leaves room for larger configured chunk sizes.
const MaxFrameBytes = 16 << 20

// ErrClosed is returned when the peer closed the channel normally.
var ErrClosed = errors.New("connection closed")

// Conn is an interface that wraps an ordered, message based connection.
type Conn interface {
	Write(context.Context, signal.Frame) error
	Read(context.Context) (signal.Frame, error)
}

// ------------------ Conn implementations ------------------

// WS is a wrapper around a websocket connection.
type WS struct {
	Conn *websocket.Conn
}

// NewWS wraps the websocket connection and raises its read limit to MaxFrameBytes.
func NewWS(c *websocket.Conn) *WS {
	c.SetReadLimit(MaxFrameBytes)
	return &WS{Conn: c}
}

func (ws *WS) Write(ctx context.Context, f signal.Frame) error {
	typ := websocket.MessageText
	if f.Binary {
		typ = websocket.MessageBinary
	}
	return ws.Conn.Write(ctx, typ, f.Data)
}

func (ws *WS) Read(ctx context.Context) (signal.Frame, error) {
	typ, payload, err := ws.Conn.Read(ctx)
	switch {
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway,
		errors.Is(err, io.EOF):
		return signal.Frame{}, fmt.Errorf("%w: %v", ErrClosed, err)
	case err != nil:
		return signal.Frame{}, err
	}
	return signal.Frame{Binary: typ == websocket.MessageBinary, Data: payload}, nil
}

// Close closes the websocket with a normal closure status.
func (ws *WS) Close(reason string) error {
	return ws.Conn.Close(websocket.StatusNormalClosure, reason)
}

// ------------------ Signal Conn ------------------------

// Signal specifies a connection carrying signaling messages.
type Signal struct {
	Conn Conn
}

// WriteMsg encodes and writes a signaling message to the underlying connection.
func (s Signal) WriteMsg(ctx context.Context, msg signal.Msg) error {
	f, err := signal.Encode(msg)
	if err != nil {
		return err
	}
	return s.Conn.Write(ctx, f)
}

// ReadMsg reads a frame and decodes it. Transport errors and decode errors are
// returned as is, decode errors wrap signal.ErrMalformedFrame.
func (s Signal) ReadMsg(ctx context.Context, expected ...signal.Kind) (signal.Msg, error) {
	f, err := s.Conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := signal.Decode(f)
	if err != nil {
		return nil, err
	}
	if len(expected) != 0 && expected[0] != msg.Kind() {
		return nil, signal.Error{Expected: expected, Got: msg.Kind()}
	}
	return msg, nil
}
