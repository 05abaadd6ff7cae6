package transport

import (
	"encoding/json"

	"github.com/pkg/errors"
)

var (
	ErrClosed         = errors.New("connection closed")
	ErrSlowConsumer   = errors.New("outbound queue full")
	ErrMalformedFrame = errors.New("malformed frame")
)

// Frame is a named client message with an arbitrary JSON body.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Conn is a bidirectional named-event channel to one client.
type Conn interface {
	ID() string
	RemoteAddress() string
	// Next blocks until a frame is received. ErrMalformedFrame is not fatal;
	// any other error means the connection is gone.
	Next() (Frame, error)
	// Emit queues an event for the client without blocking.
	Emit(event string, payload interface{}) error
	Close() error
}

func encodeFrame(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: event, Data: payload})
}

func decodeFrame(buf []byte) (Frame, error) {
	frame := Frame{}
	if err := json.Unmarshal(buf, &frame); err != nil {
		return Frame{}, errors.Wrap(ErrMalformedFrame, err.Error())
	}
	if frame.Event == "" {
		return Frame{}, errors.Wrap(ErrMalformedFrame, "missing event name")
	}
	return frame, nil
}
