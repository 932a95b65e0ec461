package events

import (
	"encoding/json"
	"time"
)

type Envelope struct {
	EventType     string          `json:"event_type"`
	TenantID      string          `json:"tenant_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Actor         string          `json:"actor"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// NewRoomEnvelope builds a room event. A payload that cannot be encoded is dropped.
func NewRoomEnvelope(eventType, tenantID, roomID, actor string, payload any) Envelope {
	env := Envelope{
		EventType:     eventType,
		TenantID:      tenantID,
		AggregateType: AggregateTypeRoom,
		AggregateID:   roomID,
		Actor:         actor,
		OccurredAt:    time.Now().UTC(),
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			env.Payload = data
		}
	}
	return env
}
