package signal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// envelope is the shape shared by all JSON control messages.
type envelope struct {
	Type     string  `json:"type"`
	Filename *string `json:"filename,omitempty"`
	Filesize *int64  `json:"filesize,omitempty"`
	Text     *string `json:"text,omitempty"`
}

// Decode classifies a frame into exactly one message. Binary frames are always
// chunks; text frames are either one of the prefix encoded consent frames or a
// JSON control message. Unknown JSON types decode to Ignored.
func Decode(f Frame) (Msg, error) {
	if f.Binary {
		return Chunk{Data: f.Data}, nil
	}
	text := string(f.Data)
	switch {
	case strings.HasPrefix(text, consentRequestPrefix):
		return decodeConsentRequest(strings.TrimPrefix(text, consentRequestPrefix))
	case strings.HasPrefix(text, consentResponsePrefix):
		return decodeConsentResponse(strings.TrimPrefix(text, consentResponsePrefix))
	}

	var env envelope
	if err := json.Unmarshal(f.Data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch env.Type {
	case TypeMetadata:
		if env.Filename == nil || *env.Filename == "" {
			return nil, fmt.Errorf("%w: metadata without filename", ErrMalformedFrame)
		}
		if env.Filesize == nil || *env.Filesize < 0 {
			return nil, fmt.Errorf("%w: metadata without valid filesize", ErrMalformedFrame)
		}
		return Metadata{Filename: *env.Filename, Filesize: *env.Filesize}, nil
	case TypeTransferComplete:
		return TransferComplete{}, nil
	case TypeClipboard:
		var text string
		if env.Text != nil {
			text = *env.Text
		}
		return ClipboardUpdate{Text: text}, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return Ignored{Type: env.Type}, nil
	}
}

// file_request:<filename>:<sender>, the file name ends at the first colon.
func decodeConsentRequest(rest string) (Msg, error) {
	filename, sender, ok := strings.Cut(rest, ":")
	if !ok || filename == "" || sender == "" {
		return nil, fmt.Errorf("%w: bad file request %q", ErrMalformedFrame, rest)
	}
	return ConsentRequest{Filename: filename, Sender: sender}, nil
}

// file_response:<sender>:<accept|reject>, the status follows the last colon.
func decodeConsentResponse(rest string) (Msg, error) {
	i := strings.LastIndex(rest, ":")
	if i <= 0 {
		return nil, fmt.Errorf("%w: bad file response %q", ErrMalformedFrame, rest)
	}
	switch rest[i+1:] {
	case acceptStatus:
		return ConsentResponse{Sender: rest[:i], Accept: true}, nil
	case rejectStatus:
		return ConsentResponse{Sender: rest[:i], Accept: false}, nil
	default:
		return nil, fmt.Errorf("%w: bad file response status %q", ErrMalformedFrame, rest[i+1:])
	}
}

// Encode turns a message into its wire frame.
func Encode(m Msg) (Frame, error) {
	switch m := m.(type) {
	case ConsentRequest:
		return Text(consentRequestPrefix + m.Filename + ":" + m.Sender), nil
	case ConsentResponse:
		status := rejectStatus
		if m.Accept {
			status = acceptStatus
		}
		return Text(consentResponsePrefix + m.Sender + ":" + status), nil
	case Metadata:
		return encodeJSON(envelope{Type: TypeMetadata, Filename: &m.Filename, Filesize: &m.Filesize})
	case TransferComplete:
		return encodeJSON(envelope{Type: TypeTransferComplete})
	case ClipboardUpdate:
		return encodeJSON(envelope{Type: TypeClipboard, Text: &m.Text})
	case Chunk:
		return Binary(m.Data), nil
	case Ignored:
		return encodeJSON(envelope{Type: m.Type})
	default:
		return Frame{}, fmt.Errorf("unable to encode message of type %T", m)
	}
}

func encodeJSON(env envelope) (Frame, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Data: b}, nil
}
