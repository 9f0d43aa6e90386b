package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/livelist/livelist/pkg/types"
)

// Message is the JSON envelope sent to clients for every event.
type Message struct {
	Event string  `json:"event"`
	Data  Payload `json:"data"`
}

// Payload carries one ChangeEvent. Records is the full snapshot after the
// event; the id lists are only set on "updated".
type Payload struct {
	Version  uint64         `json:"version"`
	Records  []types.Record `json:"records"`
	Inserted []string       `json:"inserted,omitempty"`
	Modified []string       `json:"modified,omitempty"`
	Deleted  []string       `json:"deleted,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Encode renders ev as a wire message.
func Encode(ev types.ChangeEvent) ([]byte, error) {
	p := Payload{
		Version:  ev.Snapshot.Version(),
		Records:  ev.Snapshot.Records(),
		Inserted: ev.Inserted,
		Modified: ev.Modified,
		Deleted:  ev.Deleted,
	}
	if ev.Err != nil {
		p.Error = ev.Err.Error()
	}
	return json.Marshal(Message{Event: ev.Kind.String(), Data: p})
}

// Decode parses a wire message back into a ChangeEvent.
func Decode(data []byte) (types.ChangeEvent, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return types.ChangeEvent{}, fmt.Errorf("ws: decode message: %w", err)
	}

	ev := types.ChangeEvent{
		Snapshot: types.NewSnapshot(m.Data.Version, m.Data.Records),
		Inserted: m.Data.Inserted,
		Modified: m.Data.Modified,
		Deleted:  m.Data.Deleted,
	}
	switch m.Event {
	case types.EventInitial.String():
		ev.Kind = types.EventInitial
	case types.EventUpdated.String():
		ev.Kind = types.EventUpdated
	case types.EventError.String():
		ev.Kind = types.EventError
		ev.Err = errors.New(m.Data.Error)
	default:
		return types.ChangeEvent{}, fmt.Errorf("ws: unknown event %q", m.Event)
	}
	return ev, nil
}
