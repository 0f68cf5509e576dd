package message

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("message: failed to create CBOR enc mode: %v", err))
	}
	encMode = em

	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("message: failed to create CBOR dec mode: %v", err))
	}
	decMode = dm
}

// Structured is the {callbackId, data} payload.
type Structured struct {
	Data       any   `cbor:"data"`
	CallbackID int32 `cbor:"callbackId"`
}

// Envelope wraps a stream or reply payload for the host.
type Envelope struct {
	Data  []byte `cbor:"data,omitempty"`
	Error string `cbor:"error,omitempty"`
	Done  bool   `cbor:"done"`
}

// Encode serializes an arbitrary value to CBOR bytes.
func Encode(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Decode deserializes CBOR bytes into generic Go values. Maps decode as
// map[string]any.
func Decode(data []byte) (any, error) {
	var v any
	if err := decMode.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("message: decode payload: %w", err)
	}
	return v, nil
}

// NewString builds a plain text message.
func NewString(text string) Message {
	return Message{Kind: KindString, Text: text}
}

// NewStructured encodes {callbackId, data} into a structured message.
func NewStructured(callbackID int32, data any) (Message, error) {
	b, err := encMode.Marshal(Structured{CallbackID: callbackID, Data: data})
	if err != nil {
		return Message{}, fmt.Errorf("message: encode structured: %w", err)
	}
	return Message{Kind: KindStructured, CallbackID: callbackID, Data: b}, nil
}

// DecodeStructured reverses NewStructured.
func DecodeStructured(data []byte) (Structured, error) {
	var s Structured
	if err := decMode.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("message: decode structured: %w", err)
	}
	return s, nil
}

// NewBinary builds a (callbackId, bytes) message with a private copy of data.
func NewBinary(callbackID int32, data []byte) Message {
	return Message{Kind: KindBinary, CallbackID: callbackID, Data: append([]byte{}, data...)}
}

// NewEnvelope encodes e and wraps it as a binary message.
func NewEnvelope(callbackID int32, e Envelope) (Message, error) {
	b, err := encMode.Marshal(e)
	if err != nil {
		return Message{}, fmt.Errorf("message: encode envelope: %w", err)
	}
	return Message{Kind: KindBinary, CallbackID: callbackID, Data: b}, nil
}

// DecodeEnvelope reverses NewEnvelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := decMode.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("message: decode envelope: %w", err)
	}
	return e, nil
}
