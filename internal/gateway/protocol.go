package gateway

import "encoding/json"

// Frame types for the event stream.
const (
	FrameTypeEvent = "event"
	FrameTypeError = "error"
)

// EventConnected is the first frame a stream subscriber receives.
const EventConnected = "connected"

// Frame is one message pushed to an event stream subscriber.
type Frame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Type:    FrameTypeEvent,
		Event:   event,
		Seq:     seq,
		Payload: raw,
	}, nil
}
