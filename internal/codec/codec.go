package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"strata/internal/domain"
	"strata/internal/schema"
)

// CurrentEncodeVersion is the encode version written by Encode
const CurrentEncodeVersion = 1

// View selects which schema a tree is decoded or validated against
type View int

const (
	ViewAdmin     View = iota // Full admin schema
	ViewPublished             // Published schema, admin-only data removed
)

// Issue is a validation problem at a path in the field tree
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return i.Path + ": " + i.Message
}

// Reference is an entity reference found in a field tree. EntityTypes holds
// the types the field allows, empty for any.
type Reference struct {
	ID          string
	Path        string
	EntityTypes []string
}

// UniqueValue is a value of a unique index
type UniqueValue struct {
	Index string
	Value string
}

// Artifacts are the values extracted from a field tree for indexing
type Artifacts struct {
	Name         string
	References   []Reference
	Locations    []domain.Location
	UniqueValues []UniqueValue
	FullText     string
}

// ReferencedIDs returns the distinct referenced entity ids, sorted
func (a *Artifacts) ReferencedIDs() []string {
	seen := make(map[string]bool, len(a.References))
	var ids []string
	for _, r := range a.References {
		if !seen[r.ID] {
			seen[r.ID] = true
			ids = append(ids, r.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// EncodedEntity is the canonical storage form of an entity's fields
type EncodedEntity struct {
	Fields map[string]any
	Artifacts
}

// StoredEntity is an entity version as read from storage
type StoredEntity struct {
	Type          string // Current type name
	SchemaVersion int
	EncodeVersion int
	Fields        map[string]any
}

// DecodedEntity is a stored entity brought up to the current schema
type DecodedEntity struct {
	Fields domain.Fields
	Valid  bool
	Issues []Issue
	Artifacts
}

// Encode validates fields against the entity type and returns the canonical
// tree together with the extracted index values. The first violation found
// is returned as a BadRequest error.
func Encode(s schema.Schema, typeName string, fields map[string]any) (*EncodedEntity, error) {
	t := s.EntityType(typeName)
	if t == nil {
		return nil, domain.BadRequest("entity.info.type: entity type %s doesn't exist", typeName)
	}

	tree, err := normalize(fields)
	if err != nil {
		return nil, domain.BadRequest("entity.fields: %v", err)
	}

	w := newWalker(s, modeEncode, ViewAdmin)
	out := w.fields("entity.fields", t.Fields, tree, "")
	if len(w.issues) > 0 {
		return nil, domain.BadRequest("%s", w.issues[0])
	}
	return &EncodedEntity{Fields: out, Artifacts: w.artifacts(t, out)}, nil
}

// Validate returns every issue of fields against the entity type, nil when valid
func Validate(s schema.Schema, typeName string, fields map[string]any) []Issue {
	t := s.EntityType(typeName)
	if t == nil {
		return []Issue{{Path: "entity.info.type", Message: fmt.Sprintf("entity type %s doesn't exist", typeName)}}
	}
	tree, err := normalize(fields)
	if err != nil {
		return []Issue{{Path: "entity.fields", Message: err.Error()}}
	}
	w := newWalker(s, modeEncode, ViewAdmin)
	w.fields("entity.fields", t.Fields, tree, "")
	return w.issues
}

// Decode migrates a stored tree to the current schema, upgrades legacy encode
// versions and converts it to typed values for the given view. It never
// fails: values that do not conform are reported as issues and the result is
// marked invalid.
func Decode(s *schema.AdminSchema, stored StoredEntity, view View) *DecodedEntity {
	tree := deepCopy(stored.Fields)

	if stored.SchemaVersion < s.Version() {
		actions := s.CollectMigrationActionsSinceVersion(stored.SchemaVersion)
		tree = Migrate(actions, stored.Type, tree)
	}
	if tree == nil {
		return &DecodedEntity{
			Fields: domain.Fields{},
			Issues: []Issue{{Path: "entity", Message: fmt.Sprintf("entity type %s was deleted", stored.Type)}},
		}
	}

	for v := stored.EncodeVersion; v < CurrentEncodeVersion; v++ {
		if upgrade, ok := legacyUpgrades[v]; ok {
			tree = upgrade(s, stored.Type, tree)
		}
	}

	var target schema.Schema = s
	if view == ViewPublished {
		target = s.ToPublishedSchema()
	}
	t := target.EntityType(stored.Type)
	if t == nil {
		return &DecodedEntity{
			Fields: domain.Fields{},
			Issues: []Issue{{Path: "entity.info.type", Message: fmt.Sprintf("entity type %s doesn't exist", stored.Type)}},
		}
	}

	w := newWalker(target, modeDecode, view)
	out := w.fields("entity.fields", t.Fields, tree, "")
	return &DecodedEntity{
		Fields:    domain.Fields(out),
		Valid:     len(w.issues) == 0,
		Issues:    w.issues,
		Artifacts: w.artifacts(t, out),
	}
}

// IssuesError joins issues into a single BadRequest error, nil when there are none
func IssuesError(issues []Issue) error {
	if len(issues) == 0 {
		return nil
	}
	msgs := make([]string, len(issues))
	for i, issue := range issues {
		msgs[i] = issue.String()
	}
	return domain.BadRequest("%s", strings.Join(msgs, "; "))
}

// normalize converts caller values (typed or generic) into a plain JSON tree
func normalize(fields map[string]any) (map[string]any, error) {
	if len(fields) == 0 {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func deepCopy(tree map[string]any) map[string]any {
	if tree == nil {
		return map[string]any{}
	}
	out, ok := copyValue(tree).(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, child := range x {
			out[k] = copyValue(child)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, child := range x {
			out[i] = copyValue(child)
		}
		return out
	}
	return v
}
