// Package progress carries optimization progress over the wire: msgpack
// envelopes pushed to websocket subscribers per run, and a fanout for
// feeding several publishers from one loop.
package progress

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// MessageType identifies the envelope body on the wire.
type MessageType uint16

const (
	TypeError         MessageType = 1
	TypeProgressEvent MessageType = 2
	TypeSubscribeAck  MessageType = 3
)

// Envelope is the framing for every message pushed to a progress
// subscriber.
type Envelope struct {
	RunID string      `msgpack:"runId,omitempty" json:"runId,omitempty"`
	Type  MessageType `msgpack:"type" json:"type"`
	Body  any         `msgpack:"body" json:"body"`
}

func NewEnvelope(runID string, msgType MessageType, body any) *Envelope {
	return &Envelope{
		RunID: runID,
		Type:  msgType,
		Body:  body,
	}
}

func (e *Envelope) Encode() ([]byte, error) {
	data, err := msgpack.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &e, nil
}

// DecodeBody converts an envelope body into its typed form. Bodies arrive
// as generic maps after transport, so the conversion goes through a
// re-encode when a direct assertion misses.
func DecodeBody[T any](e *Envelope) (*T, error) {
	if typed, ok := e.Body.(T); ok {
		return &typed, nil
	}

	data, err := msgpack.Marshal(e.Body)
	if err != nil {
		return nil, fmt.Errorf("re-encode body: %w", err)
	}

	var result T
	if err := msgpack.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode body to %T: %w", result, err)
	}
	return &result, nil
}
