// Package events publishes control-plane lifecycle events — currently
// only enforcement actions the monitor takes — to an optional external
// event bus (spec.md §4.4 "record notification event"). It is not on
// the critical path: nothing in the core reads these events back.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// LifecycleEvent is the envelope published for every lifecycle
// transition the core decides to broadcast.
type LifecycleEvent struct {
	Type    string                 `json:"type"` // e.g. "vps.enforced.stopped"
	ID      string                 `json:"id"`
	Time    time.Time              `json:"time"`
	Subject string                 `json:"subject"` // typically a vps id
	UserID  string                 `json:"user_id,omitempty"`
	Data    map[string]interface{} `json:"data"`
}

func newLifecycleEvent(eventType, subject, userID string, data map[string]interface{}) *LifecycleEvent {
	return &LifecycleEvent{
		Type:    eventType,
		ID:      fmt.Sprintf("evt-%d", time.Now().UnixNano()),
		Time:    time.Now(),
		Subject: subject,
		UserID:  userID,
		Data:    data,
	}
}

func (e *LifecycleEvent) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Emitter publishes lifecycle events. NoopEmitter satisfies it for when
// the event bus is disabled.
type Emitter interface {
	Emit(eventType, subject, userID string, data map[string]interface{})
	Close() error
}

type NoopEmitter struct{}

func (NoopEmitter) Emit(string, string, string, map[string]interface{}) {}
func (NoopEmitter) Close() error                                        { return nil }
