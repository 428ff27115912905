package codec

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"strata/internal/domain"
	"strata/internal/schema"
)

// YAMLCodec handles YAML bundle import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// yamlBundle represents the YAML structure for a bundle
type yamlBundle struct {
	Schema   *schema.SpecificationUpdate `yaml:"schema,omitempty"`
	Entities []yamlEntity                `yaml:"entities,omitempty"`
}

type yamlEntity struct {
	ID      string         `yaml:"id,omitempty"`
	Type    string         `yaml:"type"`
	AuthKey string         `yaml:"authKey,omitempty"`
	Name    string         `yaml:"name,omitempty"`
	Fields  map[string]any `yaml:"fields,omitempty"`
}

// Parse imports a bundle from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*Bundle, error) {
	var yb yamlBundle
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&yb); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	bundle := &Bundle{Schema: yb.Schema}
	for _, ye := range yb.Entities {
		create := domain.EntityCreate{
			ID: ye.ID,
			Info: domain.EntityCreateInfo{
				Type:    ye.Type,
				AuthKey: ye.AuthKey,
				Name:    ye.Name,
			},
			Fields: ye.Fields,
		}
		if create.Info.AuthKey == "" {
			create.Info.AuthKey = domain.AuthKeyNone
		}
		if create.Fields == nil {
			create.Fields = make(map[string]any)
		}
		bundle.Entities = append(bundle.Entities, create)
	}

	return bundle, nil
}

// Export exports a bundle to YAML
func (c *YAMLCodec) Export(bundle *Bundle, w io.Writer) error {
	yb := yamlBundle{
		Schema:   bundle.Schema,
		Entities: make([]yamlEntity, 0, len(bundle.Entities)),
	}

	for _, e := range bundle.Entities {
		yb.Entities = append(yb.Entities, yamlEntity{
			ID:      e.ID,
			Type:    e.Info.Type,
			AuthKey: e.Info.AuthKey,
			Name:    e.Info.Name,
			Fields:  e.Fields,
		})
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&yb); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
