package events

import (
	"encoding/json"
	"time"
)

// Event types published while a harvest runs.
const (
	TypePing            = "ping"
	TypeHarvestQueued   = "harvest_queued"
	TypeHarvestStarted  = "harvest_started"
	TypeStageCompleted  = "stage_completed"
	TypeHarvestFinished = "harvest_finished"
	TypeHarvestFailed   = "harvest_failed"
)

// Event is the envelope every SSE message carries.
type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// MakeEvent encodes an envelope. Data that cannot be marshalled is dropped
// rather than failing the publish.
func MakeEvent(reqID, typ string, v int, data any) string {
	var raw json.RawMessage
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			raw = b
		}
	}
	e := Event{
		Type:      typ,
		Version:   v,
		At:        time.Now().UTC(),
		RequestID: reqID,
		Data:      raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}
