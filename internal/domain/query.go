package domain

// EntityQuery filters entity listings
type EntityQuery struct {
	EntityTypes []string       `json:"entityTypes,omitempty"`
	AuthKeys    []string       `json:"authKeys,omitempty"`
	Status      []EntityStatus `json:"status,omitempty"`
	Valid       *bool          `json:"valid,omitempty"`
	LinksTo     string         `json:"linksTo,omitempty"`   // Entities referencing this id
	LinksFrom   string         `json:"linksFrom,omitempty"` // Entities referenced by this id
	Text        string         `json:"text,omitempty"`
	BoundingBox *BoundingBox   `json:"boundingBox,omitempty"`
	Reverse     bool           `json:"reverse,omitempty"`
}

// EntitySamplingOptions controls sampleEntities
type EntitySamplingOptions struct {
	Seed  int64 `json:"seed,omitempty"` // 0 picks a random seed
	Count int   `json:"count,omitempty"`
}

// EntitySamplingPayload is a seeded random selection of entities
type EntitySamplingPayload struct {
	Seed       int64     `json:"seed"`
	TotalCount int       `json:"totalCount"`
	Items      []*Entity `json:"items"`
}
