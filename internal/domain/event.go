package domain

import "time"

// EventType is the kind of a changelog event
type EventType string

const (
	EventCreateEntity           EventType = "createEntity"
	EventCreateAndPublishEntity EventType = "createAndPublishEntity"
	EventUpdateEntity           EventType = "updateEntity"
	EventUpdateAndPublishEntity EventType = "updateAndPublishEntity"
	EventPublishEntities        EventType = "publishEntities"
	EventUnpublishEntities      EventType = "unpublishEntities"
	EventArchiveEntity          EventType = "archiveEntity"
	EventUnarchiveEntity        EventType = "unarchiveEntity"
	EventDeleteEntities         EventType = "deleteEntities"
	EventUpdateSchema           EventType = "updateSchema"
	EventCreatePrincipal        EventType = "createPrincipal"
)

// IsEntityEvent returns true for events carrying entity version references
func (t EventType) IsEntityEvent() bool {
	switch t {
	case EventUpdateSchema, EventCreatePrincipal:
		return false
	}
	return true
}

// EventEntityVersion references an entity version affected by an event
type EventEntityVersion struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
	Type    string `json:"type"`
	Name    string `json:"name"`
}

// ChangelogEvent is an immutable audit record of a mutation
type ChangelogEvent struct {
	ID            string               `json:"id"`
	Type          EventType            `json:"type"`
	CreatedAt     time.Time            `json:"createdAt"`
	CreatedBy     string               `json:"createdBy"`
	Entities      []EventEntityVersion `json:"entities,omitempty"`
	SchemaVersion int                  `json:"schemaVersion,omitempty"`
}

// ChangelogEventQuery filters changelog events
type ChangelogEventQuery struct {
	Reverse   bool        `json:"reverse,omitempty"`
	CreatedBy string      `json:"createdBy,omitempty"`
	EntityID  string      `json:"entityId,omitempty"`
	Types     []EventType `json:"types,omitempty"`
}
