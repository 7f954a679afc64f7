package wire

import (
	"encoding/json"
	"fmt"
)

// Message type constants
const (
	// Handshake
	TypeHello        = "hello"
	TypeChallenge    = "challenge"
	TypeAuthenticate = "authenticate"
	TypeWelcome      = "welcome"

	// Session lifecycle
	TypeAck     = "ack"
	TypeGoodbye = "goodbye"
)

// Message is the flat wire envelope. Every frame on a device connection is a
// single JSON object; which fields are meaningful depends on Type. Fields not
// claimed by the envelope are collected into Payload.
type Message struct {
	Type      string
	PublicKey string
	Nonce     string
	Sign      string
	Key       string

	// ID and Code are pointers because zero is a valid correlation id and a
	// valid (success) response code.
	ID   *int
	Code *int

	Payload map[string]interface{}
}

// envelope field names
const (
	fieldType      = "type"
	fieldPublicKey = "public_key"
	fieldNonce     = "nonce"
	fieldSign      = "sign"
	fieldKey       = "key"
	fieldID        = "id"
	fieldCode      = "code"
)

// HasID reports whether the message carries a correlation id
func (m *Message) HasID() bool { return m.ID != nil }

// HasCode reports whether the message carries a response code
func (m *Message) HasCode() bool { return m.Code != nil }

// Decode parses a raw frame into a Message. Unknown top-level fields are
// preserved in Payload.
func Decode(data []byte) (*Message, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	msg := &Message{Payload: make(map[string]interface{})}
	for name, value := range raw {
		switch name {
		case fieldType:
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("decode message: field %q is not a string", name)
			}
			msg.Type = s
		case fieldPublicKey:
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("decode message: field %q is not a string", name)
			}
			msg.PublicKey = s
		case fieldNonce:
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("decode message: field %q is not a string", name)
			}
			msg.Nonce = s
		case fieldSign:
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("decode message: field %q is not a string", name)
			}
			msg.Sign = s
		case fieldKey:
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("decode message: field %q is not a string", name)
			}
			msg.Key = s
		case fieldID:
			n, ok := asInt(value)
			if !ok {
				return nil, fmt.Errorf("decode message: field %q is not an integer", name)
			}
			msg.ID = &n
		case fieldCode:
			n, ok := asInt(value)
			if !ok {
				return nil, fmt.Errorf("decode message: field %q is not an integer", name)
			}
			msg.Code = &n
		default:
			msg.Payload[name] = value
		}
	}

	return msg, nil
}

// Encode serializes a Message back into a single flat JSON object
func (m *Message) Encode() ([]byte, error) {
	raw := make(map[string]interface{}, len(m.Payload)+7)
	for name, value := range m.Payload {
		raw[name] = value
	}
	if m.Type != "" {
		raw[fieldType] = m.Type
	}
	if m.PublicKey != "" {
		raw[fieldPublicKey] = m.PublicKey
	}
	if m.Nonce != "" {
		raw[fieldNonce] = m.Nonce
	}
	if m.Sign != "" {
		raw[fieldSign] = m.Sign
	}
	if m.Key != "" {
		raw[fieldKey] = m.Key
	}
	if m.ID != nil {
		raw[fieldID] = *m.ID
	}
	if m.Code != nil {
		raw[fieldCode] = *m.Code
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// NewAck builds an acknowledgment for the given correlation id
func NewAck(id int) *Message {
	return &Message{Type: TypeAck, ID: &id}
}

// NewRequest builds an outbound application request envelope
func NewRequest(id int, msgType, key string, payload map[string]interface{}) *Message {
	return &Message{Type: msgType, Key: key, ID: &id, Payload: payload}
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
