package schema

import (
	"encoding/json"
	"regexp"
	"sort"
	"sync/atomic"
)

// Schema is the read-only view shared by admin and published schemas
type Schema interface {
	Version() int
	Specification() Specification
	EntityType(name string) *EntityTypeSpecification
	ComponentType(name string) *ComponentTypeSpecification
	PatternRegexp(name string) *regexp.Regexp
	Index(name string) *IndexSpecification
}

type base struct {
	spec     Specification
	patterns map[string]*regexp.Regexp
}

func newBase(spec Specification) base {
	b := base{spec: spec, patterns: make(map[string]*regexp.Regexp, len(spec.Patterns))}
	for _, p := range spec.Patterns {
		// Invalid patterns are reported by Validate
		if re, err := regexp.Compile(p.Pattern); err == nil {
			b.patterns[p.Name] = re
		}
	}
	return b
}

// Version returns the schema version
func (b *base) Version() int {
	return b.spec.Version
}

// Specification returns the underlying specification. Callers must not modify it.
func (b *base) Specification() Specification {
	return b.spec
}

// EntityType returns the named entity type or nil
func (b *base) EntityType(name string) *EntityTypeSpecification {
	for i := range b.spec.EntityTypes {
		if b.spec.EntityTypes[i].Name == name {
			return &b.spec.EntityTypes[i]
		}
	}
	return nil
}

// ComponentType returns the named component type or nil
func (b *base) ComponentType(name string) *ComponentTypeSpecification {
	for i := range b.spec.ComponentTypes {
		if b.spec.ComponentTypes[i].Name == name {
			return &b.spec.ComponentTypes[i]
		}
	}
	return nil
}

// PatternRegexp returns the compiled pattern or nil
func (b *base) PatternRegexp(name string) *regexp.Regexp {
	return b.patterns[name]
}

// Index returns the named index or nil
func (b *base) Index(name string) *IndexSpecification {
	for i := range b.spec.Indexes {
		if b.spec.Indexes[i].Name == name {
			return &b.spec.Indexes[i]
		}
	}
	return nil
}

// AdminSchema is the full schema, including admin-only types, fields and the migration log.
// It is immutable; updates return a new instance.
type AdminSchema struct {
	base
	published atomic.Pointer[PublishedSchema]
}

// NewAdminSchema wraps a specification without validating it
func NewAdminSchema(spec Specification) *AdminSchema {
	return &AdminSchema{base: newBase(spec)}
}

// Empty returns the version 0 schema with no types
func Empty() *AdminSchema {
	return NewAdminSchema(Specification{})
}

// ToPublishedSchema derives the published schema. The result is computed at most
// once per instance in the common case; racing callers may compute it twice and
// all observe the first stored value.
func (s *AdminSchema) ToPublishedSchema() *PublishedSchema {
	if p := s.published.Load(); p != nil {
		return p
	}
	p := &PublishedSchema{base: newBase(derivePublished(s.spec))}
	if s.published.CompareAndSwap(nil, p) {
		return p
	}
	return s.published.Load()
}

// CollectMigrationActionsSinceVersion returns the actions of every migration
// newer than oldVersion, in ascending version order
func (s *AdminSchema) CollectMigrationActionsSinceVersion(oldVersion int) []VersionedAction {
	var actions []VersionedAction
	for _, m := range s.spec.Migrations {
		if m.Version <= oldVersion {
			continue
		}
		for _, a := range m.Actions {
			actions = append(actions, VersionedAction{Version: m.Version, MigrationAction: a})
		}
	}
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Version < actions[j].Version })
	return actions
}

// PublishedSchema is the subset of the admin schema visible to public consumers
type PublishedSchema struct {
	base
}

// derivePublished removes admin-only types and fields, prunes references to
// removed types and keeps only the referenced patterns and indexes, sorted by name.
// Applying it to its own output is a no-op.
func derivePublished(spec Specification) Specification {
	out := Specification{Version: spec.Version}

	entityTypes := make(map[string]bool)
	for _, t := range spec.EntityTypes {
		if !t.AdminOnly {
			entityTypes[t.Name] = true
		}
	}
	componentTypes := make(map[string]bool)
	for _, t := range spec.ComponentTypes {
		if !t.AdminOnly {
			componentTypes[t.Name] = true
		}
	}

	usedPatterns := make(map[string]bool)
	usedIndexes := make(map[string]bool)

	publishFields := func(fields []FieldSpecification) []FieldSpecification {
		result := make([]FieldSpecification, 0, len(fields))
		for _, f := range fields {
			if f.AdminOnly {
				continue
			}
			pf, ok := pruneFieldReferences(f, entityTypes, componentTypes)
			if !ok {
				continue
			}
			if pf.MatchPattern != "" {
				usedPatterns[pf.MatchPattern] = true
			}
			if pf.Index != "" {
				usedIndexes[pf.Index] = true
			}
			result = append(result, pf)
		}
		return result
	}

	for _, t := range spec.EntityTypes {
		if t.AdminOnly {
			continue
		}
		pt := EntityTypeSpecification{
			Name:           t.Name,
			AuthKeyPattern: t.AuthKeyPattern,
			NameField:      t.NameField,
			Fields:         publishFields(t.Fields),
		}
		if pt.AuthKeyPattern != "" {
			usedPatterns[pt.AuthKeyPattern] = true
		}
		if pt.NameField != "" && pt.Field(pt.NameField) == nil {
			pt.NameField = ""
		}
		out.EntityTypes = append(out.EntityTypes, pt)
	}
	for _, t := range spec.ComponentTypes {
		if t.AdminOnly {
			continue
		}
		out.ComponentTypes = append(out.ComponentTypes, ComponentTypeSpecification{
			Name:   t.Name,
			Fields: publishFields(t.Fields),
		})
	}

	for _, p := range spec.Patterns {
		if usedPatterns[p.Name] {
			out.Patterns = append(out.Patterns, p)
		}
	}
	for _, idx := range spec.Indexes {
		if usedIndexes[idx.Name] {
			out.Indexes = append(out.Indexes, idx)
		}
	}
	sort.Slice(out.Patterns, func(i, j int) bool { return out.Patterns[i].Name < out.Patterns[j].Name })
	sort.Slice(out.Indexes, func(i, j int) bool { return out.Indexes[i].Name < out.Indexes[j].Name })

	return out
}

// pruneFieldReferences drops references to unpublished types. A field whose
// type restriction is pruned to nothing is not published at all, so it never
// widens to "any type".
func pruneFieldReferences(f FieldSpecification, entityTypes, componentTypes map[string]bool) (FieldSpecification, bool) {
	prune := func(names []string, visible map[string]bool) ([]string, bool) {
		if len(names) == 0 {
			return nil, true
		}
		var kept []string
		for _, n := range names {
			if visible[n] {
				kept = append(kept, n)
			}
		}
		return kept, len(kept) > 0
	}

	var ok bool
	if f.EntityTypes, ok = prune(f.EntityTypes, entityTypes); !ok {
		return f, false
	}
	if f.LinkEntityTypes, ok = prune(f.LinkEntityTypes, entityTypes); !ok {
		return f, false
	}
	if f.ComponentTypes, ok = prune(f.ComponentTypes, componentTypes); !ok {
		return f, false
	}
	return f, true
}

// clone returns a deep copy of the specification
func (s Specification) clone() Specification {
	data, err := json.Marshal(s)
	if err != nil {
		panic("schema: specification is not serializable: " + err.Error())
	}
	var out Specification
	if err := json.Unmarshal(data, &out); err != nil {
		panic("schema: specification round trip failed: " + err.Error())
	}
	return out
}

// semanticallyEqual compares two specifications ignoring the version
func semanticallyEqual(a, b Specification) bool {
	a.Version, b.Version = 0, 0
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}
