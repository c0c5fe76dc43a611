// Package publish fans logged events out to a message broker.
package publish

import (
	"context"
	"encoding/json"

	"github.com/banshee-data/pothole.report/internal/eventlog"
)

// Message is the broker payload for one logged event. The crop image is not
// sent.
type Message struct {
	ID           string  `json:"id"`
	Timestamp    string  `json:"timestamp"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Altitude     string  `json:"altitude,omitempty"`
	AreaM2       float64 `json:"area_m2"`
	Confidence   float64 `json:"confidence"`
	Frame        int64   `json:"frame"`
	DynamicScale float64 `json:"dynamic_scale,omitempty"`
}

// NewMessage builds the payload for e.
func NewMessage(id string, e eventlog.Event) Message {
	return Message{
		ID:         id,
		Timestamp:  e.Row()[0],
		Latitude:   e.Latitude,
		Longitude:  e.Longitude,
		Altitude:   e.Altitude,
		AreaM2:     e.AreaM2,
		Confidence: e.Confidence,
		Frame:      e.Frame,
	}
}

// Payload returns the JSON encoding of m.
func (m Message) Payload() ([]byte, error) { return json.Marshal(m) }

// Publisher delivers event messages.
type Publisher interface {
	Publish(ctx context.Context, m Message) error
	Close()
}

// Noop discards every message.
type Noop struct{}

func (Noop) Publish(context.Context, Message) error { return nil }
func (Noop) Close()                                 {}
