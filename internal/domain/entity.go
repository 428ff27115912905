package domain

import "time"

// EntityInfo holds the system managed properties of an entity
type EntityInfo struct {
	Type           string       `json:"type"`
	Name           string       `json:"name"`
	AuthKey        string       `json:"authKey"`
	Status         EntityStatus `json:"status"`
	Version        int          `json:"version"`
	Valid          bool         `json:"valid"`
	ValidPublished *bool        `json:"validPublished,omitempty"` // nil if never validated against the published schema
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// Entity is a schema-typed content record
type Entity struct {
	ID     string     `json:"id"`
	Info   EntityInfo `json:"info"`
	Fields Fields     `json:"fields"`
}

// EntityCreateInfo is the caller supplied info for a new entity
type EntityCreateInfo struct {
	Type    string `json:"type"`
	AuthKey string `json:"authKey"`
	Name    string `json:"name,omitempty"`    // Overrides the name field value when set
	Version int    `json:"version,omitempty"` // Must be 0 or 1
}

// EntityCreate describes an entity to create. ID is generated if empty.
type EntityCreate struct {
	ID     string           `json:"id,omitempty"`
	Info   EntityCreateInfo `json:"info"`
	Fields map[string]any   `json:"fields"`
}

// EntityUpdateInfo carries optional checks and overrides for an update
type EntityUpdateInfo struct {
	Type    string `json:"type,omitempty"`    // Must match if set
	AuthKey string `json:"authKey,omitempty"` // Must match if set
	Name    string `json:"name,omitempty"`
	Version int    `json:"version,omitempty"` // Must be current version + 1 if set
}

// EntityUpdate is a partial update. Omitted fields are kept, nil values clear.
type EntityUpdate struct {
	ID     string           `json:"id"`
	Info   EntityUpdateInfo `json:"info,omitempty"`
	Fields map[string]any   `json:"fields"`
}

// EntityMutationOptions control create/update side effects
type EntityMutationOptions struct {
	Publish bool `json:"publish,omitempty"`
}

// Effect describes what a mutation did
type Effect string

const (
	EffectNone                Effect = "none"
	EffectCreated             Effect = "created"
	EffectCreatedAndPublished Effect = "createdAndPublished"
	EffectUpdated             Effect = "updated"
	EffectUpdatedAndPublished Effect = "updatedAndPublished"
	EffectPublished           Effect = "published"
	EffectUnpublished         Effect = "unpublished"
	EffectArchived            Effect = "archived"
	EffectUnarchived          Effect = "unarchived"
	EffectDeleted             Effect = "deleted"
)

// EntityMutationPayload is returned by create, update and upsert
type EntityMutationPayload struct {
	Effect Effect  `json:"effect"`
	Entity *Entity `json:"entity"`
}

// EntityVersionReference identifies an entity version. Version 0 means latest.
type EntityVersionReference struct {
	ID      string `json:"id"`
	Version int    `json:"version,omitempty"`
}

// EntityLookup identifies an entity by id (optionally at a version) or by a unique index value
type EntityLookup struct {
	ID      string `json:"id,omitempty"`
	Version int    `json:"version,omitempty"`
	Index   string `json:"index,omitempty"`
	Value   string `json:"value,omitempty"`
}

// EntityStatusPayload is the outcome of a status transition on one entity
type EntityStatusPayload struct {
	ID        string       `json:"id"`
	Status    EntityStatus `json:"status"`
	Effect    Effect       `json:"effect"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// EntityBatchResult is the isolated outcome of one item in a batch operation
type EntityBatchResult = Result[EntityStatusPayload]
