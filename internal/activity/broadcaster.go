// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

// Package activity distributes workspace activity events to in-process
// subscribers, which the HTTP layer bridges to SSE clients.
package activity

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType names what happened in a workspace.
type EventType string

// Activity event types.
const (
	EventDocumentCreated EventType = "document.created"
	EventDocumentUpdated EventType = "document.updated"
	EventMemberUpdated   EventType = "member.updated"
	EventMemberJoined    EventType = "member.joined"
	EventInviteCreated   EventType = "invite.created"
)

// Event is one workspace activity record.
type Event struct {
	ID          ulid.ULID `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Type        EventType `json:"type"`
	ActorID     string    `json:"actorId"`
	SubjectID   string    `json:"subjectId,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// NewEvent creates an Event stamped with a fresh ID and the current time.
func NewEvent(workspaceID string, typ EventType, actorID, subjectID string) Event {
	return Event{
		ID:          ulid.Make(),
		WorkspaceID: workspaceID,
		Type:        typ,
		ActorID:     actorID,
		SubjectID:   subjectID,
		OccurredAt:  time.Now(),
	}
}

const subscriberBuffer = 100

// Broadcaster fans events out to per-workspace subscribers.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string][]chan Event
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string][]chan Event),
	}
}

// Subscribe creates a channel receiving events for one workspace.
func (b *Broadcaster) Subscribe(workspaceID string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	b.subs[workspaceID] = append(b.subs[workspaceID], ch)
	return ch
}

// Unsubscribe removes a channel from a workspace stream and closes it.
func (b *Broadcaster) Unsubscribe(workspaceID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[workspaceID]
	for i, sub := range subs {
		if sub == ch {
			b.subs[workspaceID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Broadcast sends an event to all subscribers of its workspace. Delivery
// is non-blocking: a subscriber whose buffer is full misses the event.
func (b *Broadcaster) Broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[event.WorkspaceID] {
		select {
		case ch <- event:
		default:
			slog.Warn("activity event dropped: subscriber buffer full",
				"workspace_id", event.WorkspaceID,
				"event_id", event.ID.String(),
				"event_type", event.Type,
			)
		}
	}
}
