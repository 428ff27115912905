package codec

import (
	"io"

	"strata/internal/domain"
	"strata/internal/schema"
)

// Bundle is a portable snapshot of a repository: an optional schema update
// and the entities to create under it
type Bundle struct {
	Schema   *schema.SpecificationUpdate `json:"schema,omitempty"`
	Entities []domain.EntityCreate       `json:"entities,omitempty"`
}

// Importer reads bundles from a serialization format
type Importer interface {
	Parse(r io.Reader) (*Bundle, error)
	Format() string
}

// Exporter writes bundles to a serialization format
type Exporter interface {
	Export(bundle *Bundle, w io.Writer) error
	Format() string
}

// BundleFromEntities builds an export bundle from stored entities
func BundleFromEntities(spec *schema.SpecificationUpdate, entities []*domain.Entity) *Bundle {
	b := &Bundle{Schema: spec, Entities: make([]domain.EntityCreate, 0, len(entities))}
	for _, e := range entities {
		b.Entities = append(b.Entities, domain.EntityCreate{
			ID: e.ID,
			Info: domain.EntityCreateInfo{
				Type:    e.Info.Type,
				AuthKey: e.Info.AuthKey,
				Name:    e.Info.Name,
			},
			Fields: e.Fields,
		})
	}
	return b
}

// ImporterFor returns the importer for a format name or file extension
func ImporterFor(format string) (Importer, bool) {
	switch format {
	case "json", ".json":
		return NewJSONCodec(), true
	case "yaml", "yml", ".yaml", ".yml":
		return NewYAMLCodec(), true
	}
	return nil, false
}

// ExporterFor returns the exporter for a format name or file extension
func ExporterFor(format string) (Exporter, bool) {
	switch format {
	case "json", ".json":
		return NewJSONCodec(), true
	case "yaml", "yml", ".yaml", ".yml":
		return NewYAMLCodec(), true
	}
	return nil, false
}
