// signal.go specifies the messages exchanged with the relay over the transport channel.
package signal

import (
	"errors"
	"fmt"
)

const (
	consentRequestPrefix  = "file_request:"
	consentResponsePrefix = "file_response:"

	acceptStatus = "accept"
	rejectStatus = "reject"
)

// JSON control message types.
const (
	TypeMetadata         = "file_metadata"
	TypeTransferComplete = "transfer_complete"
	TypeClipboard        = "clipboard_metadata"
)

var ErrMalformedFrame = errors.New("malformed frame")

// Frame is a single message on the transport channel.
type Frame struct {
	Binary bool
	Data   []byte
}

// Text returns a text frame holding s.
func Text(s string) Frame {
	return Frame{Data: []byte(s)}
}

// Binary returns a binary frame holding b.
func Binary(b []byte) Frame {
	return Frame{Binary: true, Data: b}
}

// Kind enumerates the message variants.
type Kind int

const (
	KindIgnored Kind = iota
	KindConsentRequest
	KindConsentResponse
	KindMetadata
	KindChunk
	KindTransferComplete
	KindClipboardUpdate
)

func (k Kind) Name() string {
	switch k {
	case KindIgnored:
		return "Ignored"
	case KindConsentRequest:
		return "ConsentRequest"
	case KindConsentResponse:
		return "ConsentResponse"
	case KindMetadata:
		return "Metadata"
	case KindChunk:
		return "Chunk"
	case KindTransferComplete:
		return "TransferComplete"
	case KindClipboardUpdate:
		return "ClipboardUpdate"
	default:
		return ""
	}
}

// Msg is one decoded signaling message. The set of implementations is closed,
// callers switch on the concrete type.
type Msg interface {
	Kind() Kind
	msg()
}

// ConsentRequest asks the receiver whether it accepts a file from Sender.
type ConsentRequest struct {
	Filename string
	Sender   string
}

// ConsentResponse answers a ConsentRequest.
type ConsentResponse struct {
	Sender string
	Accept bool
}

// Metadata announces the file that the following chunks belong to.
type Metadata struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

// Chunk carries a contiguous slice of the file. Ordering is given by the channel.
type Chunk struct {
	Data []byte
}

// TransferComplete marks the end of the current file.
type TransferComplete struct{}

// ClipboardUpdate carries clipboard text pushed by the sender.
type ClipboardUpdate struct {
	Text string `json:"text"`
}

// Ignored is a well formed control message of a type this side does not handle.
type Ignored struct {
	Type string
}

func (ConsentRequest) Kind() Kind   { return KindConsentRequest }
func (ConsentResponse) Kind() Kind  { return KindConsentResponse }
func (Metadata) Kind() Kind         { return KindMetadata }
func (Chunk) Kind() Kind            { return KindChunk }
func (TransferComplete) Kind() Kind { return KindTransferComplete }
func (ClipboardUpdate) Kind() Kind  { return KindClipboardUpdate }
func (Ignored) Kind() Kind          { return KindIgnored }

func (ConsentRequest) msg()   {}
func (ConsentResponse) msg()  {}
func (Metadata) msg()         {}
func (Chunk) msg()            {}
func (TransferComplete) msg() {}
func (ClipboardUpdate) msg()  {}
func (Ignored) msg()          {}

// Error is returned when a message of an unexpected kind is read.
type Error struct {
	Expected []Kind
	Got      Kind
}

func (e Error) Error() string {
	names := make([]string, 0, len(e.Expected))
	for _, k := range e.Expected {
		names = append(names, k.Name())
	}
	return fmt.Sprintf("wrong message kind, expected one of: (%v), got: (%s)", names, e.Got.Name())
}
