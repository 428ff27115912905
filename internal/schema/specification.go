package schema

// FieldType is the value kind a field holds
type FieldType string

const (
	FieldTypeString    FieldType = "String"
	FieldTypeBoolean   FieldType = "Boolean"
	FieldTypeNumber    FieldType = "Number"
	FieldTypeLocation  FieldType = "Location"
	FieldTypeRichText  FieldType = "RichText"
	FieldTypeEntity    FieldType = "Entity"
	FieldTypeComponent FieldType = "Component"
)

// IsValid returns true for known field types
func (t FieldType) IsValid() bool {
	switch t {
	case FieldTypeString, FieldTypeBoolean, FieldTypeNumber, FieldTypeLocation,
		FieldTypeRichText, FieldTypeEntity, FieldTypeComponent:
		return true
	}
	return false
}

// FieldSpecification describes one field of an entity or component type
type FieldSpecification struct {
	Name            string    `json:"name" yaml:"name"`
	Type            FieldType `json:"type" yaml:"type"`
	List            bool      `json:"list,omitempty" yaml:"list,omitempty"`
	Required        bool      `json:"required,omitempty" yaml:"required,omitempty"`
	AdminOnly       bool      `json:"adminOnly,omitempty" yaml:"adminOnly,omitempty"`
	MatchPattern    string    `json:"matchPattern,omitempty" yaml:"matchPattern,omitempty"`
	Index           string    `json:"index,omitempty" yaml:"index,omitempty"`
	Values          []string  `json:"values,omitempty" yaml:"values,omitempty"`
	Multiline       bool      `json:"multiline,omitempty" yaml:"multiline,omitempty"`
	Integer         bool      `json:"integer,omitempty" yaml:"integer,omitempty"`
	EntityTypes     []string  `json:"entityTypes,omitempty" yaml:"entityTypes,omitempty"`
	LinkEntityTypes []string  `json:"linkEntityTypes,omitempty" yaml:"linkEntityTypes,omitempty"`
	ComponentTypes  []string  `json:"componentTypes,omitempty" yaml:"componentTypes,omitempty"`
	RichTextNodes   []string  `json:"richTextNodes,omitempty" yaml:"richTextNodes,omitempty"`
}

// EntityTypeSpecification describes an entity type
type EntityTypeSpecification struct {
	Name           string               `json:"name" yaml:"name"`
	AdminOnly      bool                 `json:"adminOnly,omitempty" yaml:"adminOnly,omitempty"`
	AuthKeyPattern string               `json:"authKeyPattern,omitempty" yaml:"authKeyPattern,omitempty"`
	NameField      string               `json:"nameField,omitempty" yaml:"nameField,omitempty"`
	Fields         []FieldSpecification `json:"fields" yaml:"fields"`
}

// Field returns the named field or nil
func (t *EntityTypeSpecification) Field(name string) *FieldSpecification {
	return findField(t.Fields, name)
}

// ComponentTypeSpecification describes a reusable structured field group
type ComponentTypeSpecification struct {
	Name      string               `json:"name" yaml:"name"`
	AdminOnly bool                 `json:"adminOnly,omitempty" yaml:"adminOnly,omitempty"`
	Fields    []FieldSpecification `json:"fields" yaml:"fields"`
}

// Field returns the named field or nil
func (t *ComponentTypeSpecification) Field(name string) *FieldSpecification {
	return findField(t.Fields, name)
}

func findField(fields []FieldSpecification, name string) *FieldSpecification {
	for i := range fields {
		if fields[i].Name == name {
			return &fields[i]
		}
	}
	return nil
}

// PatternSpecification is a named regular expression
type PatternSpecification struct {
	Name    string `json:"name" yaml:"name"`
	Pattern string `json:"pattern" yaml:"pattern"`
}

// IndexType is the kind of a declared index
type IndexType string

const IndexTypeUnique IndexType = "unique"

// IndexSpecification declares a named index
type IndexSpecification struct {
	Name string    `json:"name" yaml:"name"`
	Type IndexType `json:"type" yaml:"type"`
}

// MigrationActionType is the kind of a migration action
type MigrationActionType string

const (
	ActionRenameField MigrationActionType = "renameField"
	ActionDeleteField MigrationActionType = "deleteField"
	ActionRenameType  MigrationActionType = "renameType"
	ActionDeleteType  MigrationActionType = "deleteType"
)

// MigrationAction rewrites a type or field. Exactly one of EntityType and
// ComponentType names the target type.
type MigrationAction struct {
	Action        MigrationActionType `json:"action" yaml:"action"`
	EntityType    string              `json:"entityType,omitempty" yaml:"entityType,omitempty"`
	ComponentType string              `json:"componentType,omitempty" yaml:"componentType,omitempty"`
	Field         string              `json:"field,omitempty" yaml:"field,omitempty"`
	NewName       string              `json:"newName,omitempty" yaml:"newName,omitempty"`
}

// TypeName returns the target type name
func (a MigrationAction) TypeName() string {
	if a.EntityType != "" {
		return a.EntityType
	}
	return a.ComponentType
}

// IsEntityAction returns true if the action targets an entity type
func (a MigrationAction) IsEntityAction() bool {
	return a.EntityType != ""
}

// Migration groups the actions introduced by one schema version
type Migration struct {
	Version int               `json:"version" yaml:"version"`
	Actions []MigrationAction `json:"actions" yaml:"actions"`
}

// VersionedAction is a migration action together with the version that introduced it
type VersionedAction struct {
	Version int
	MigrationAction
}

// Specification is a complete, versioned schema
type Specification struct {
	Version        int                          `json:"version" yaml:"version"`
	EntityTypes    []EntityTypeSpecification    `json:"entityTypes" yaml:"entityTypes"`
	ComponentTypes []ComponentTypeSpecification `json:"componentTypes" yaml:"componentTypes"`
	Patterns       []PatternSpecification       `json:"patterns" yaml:"patterns"`
	Indexes        []IndexSpecification         `json:"indexes" yaml:"indexes"`
	Migrations     []Migration                  `json:"migrations,omitempty" yaml:"migrations,omitempty"`
}

// EntityTypeSpecificationUpdate adds or extends an entity type. Nil properties are left unchanged.
type EntityTypeSpecificationUpdate struct {
	Name           string               `json:"name" yaml:"name"`
	AdminOnly      *bool                `json:"adminOnly,omitempty" yaml:"adminOnly,omitempty"`
	AuthKeyPattern *string              `json:"authKeyPattern,omitempty" yaml:"authKeyPattern,omitempty"`
	NameField      *string              `json:"nameField,omitempty" yaml:"nameField,omitempty"`
	Fields         []FieldSpecification `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// ComponentTypeSpecificationUpdate adds or extends a component type
type ComponentTypeSpecificationUpdate struct {
	Name      string               `json:"name" yaml:"name"`
	AdminOnly *bool                `json:"adminOnly,omitempty" yaml:"adminOnly,omitempty"`
	Fields    []FieldSpecification `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// SpecificationUpdate is a partial schema merged into the current one.
// Version, when non-zero, must be the current version + 1.
type SpecificationUpdate struct {
	Version        int                                `json:"version,omitempty" yaml:"version,omitempty"`
	EntityTypes    []EntityTypeSpecificationUpdate    `json:"entityTypes,omitempty" yaml:"entityTypes,omitempty"`
	ComponentTypes []ComponentTypeSpecificationUpdate `json:"componentTypes,omitempty" yaml:"componentTypes,omitempty"`
	Patterns       []PatternSpecification             `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	Indexes        []IndexSpecification               `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	Migrations     []Migration                        `json:"migrations,omitempty" yaml:"migrations,omitempty"`
}
