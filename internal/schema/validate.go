package schema

import (
	"regexp"
	"strings"

	"strata/internal/domain"
)

var (
	typeNameRegexp  = regexp.MustCompile(`^[A-Z][a-zA-Z0-9_]*$`)
	fieldNameRegexp = regexp.MustCompile(`^[a-z][a-zA-Z0-9_]*$`)
)

// Validate checks the schema for internal consistency. The first problem
// found is returned as a BadRequest error.
func (s *AdminSchema) Validate() error {
	spec := &s.spec
	if spec.Version < 0 {
		return domain.BadRequest("version must not be negative")
	}

	kinds := make(map[string]string)
	for _, t := range spec.EntityTypes {
		if !typeNameRegexp.MatchString(t.Name) {
			return domain.BadRequest("%s: the entity type name has to start with an upper-case letter (A-Z) and can only contain letters (a-z, A-Z), numbers and underscore (_)", t.Name)
		}
		if _, dup := kinds[t.Name]; dup {
			return domain.BadRequest("%s: duplicate type name", t.Name)
		}
		kinds[t.Name] = "entity"
	}
	for _, t := range spec.ComponentTypes {
		if !typeNameRegexp.MatchString(t.Name) {
			return domain.BadRequest("%s: the component type name has to start with an upper-case letter (A-Z) and can only contain letters (a-z, A-Z), numbers and underscore (_)", t.Name)
		}
		if _, dup := kinds[t.Name]; dup {
			return domain.BadRequest("%s: duplicate type name", t.Name)
		}
		kinds[t.Name] = "component"
	}

	patterns := make(map[string]bool)
	for _, p := range spec.Patterns {
		if p.Name == "" {
			return domain.BadRequest("pattern: name is required")
		}
		if patterns[p.Name] {
			return domain.BadRequest("pattern %s: duplicate pattern name", p.Name)
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return domain.BadRequest("pattern %s: invalid regular expression: %v", p.Name, err)
		}
		patterns[p.Name] = true
	}

	indexes := make(map[string]bool)
	for _, idx := range spec.Indexes {
		if idx.Name == "" {
			return domain.BadRequest("index: name is required")
		}
		if indexes[idx.Name] {
			return domain.BadRequest("index %s: duplicate index name", idx.Name)
		}
		if idx.Type != IndexTypeUnique {
			return domain.BadRequest("index %s: unsupported index type %q", idx.Name, idx.Type)
		}
		indexes[idx.Name] = true
	}

	v := &fieldValidator{kinds: kinds, patterns: patterns, indexes: indexes}

	for _, t := range spec.EntityTypes {
		if t.AuthKeyPattern != "" && !patterns[t.AuthKeyPattern] {
			return domain.BadRequest("%s: unknown authKeyPattern (%s)", t.Name, t.AuthKeyPattern)
		}
		if err := v.validateFields(t.Name, false, t.Fields); err != nil {
			return err
		}
		if t.NameField != "" {
			f := t.Field(t.NameField)
			if f == nil {
				return domain.BadRequest("%s: nameField (%s) does not exist", t.Name, t.NameField)
			}
			if f.Type != FieldTypeString || f.List {
				return domain.BadRequest("%s: nameField (%s) should be a string (non-list)", t.Name, t.NameField)
			}
		}
	}
	for _, t := range spec.ComponentTypes {
		if err := v.validateFields(t.Name, true, t.Fields); err != nil {
			return err
		}
	}

	if err := validateComponentCycles(spec); err != nil {
		return err
	}

	return validateMigrations(spec)
}

type fieldValidator struct {
	kinds    map[string]string
	patterns map[string]bool
	indexes  map[string]bool
}

func (v *fieldValidator) validateFields(typeName string, isComponent bool, fields []FieldSpecification) error {
	seen := make(map[string]bool)
	for _, f := range fields {
		path := typeName + "." + f.Name
		if !fieldNameRegexp.MatchString(f.Name) {
			return domain.BadRequest("%s: the field name has to start with a lower-case letter (a-z) and can only contain letters (a-z, A-Z), numbers and underscore (_)", path)
		}
		if isComponent && f.Name == domain.ComponentTypeKey {
			return domain.BadRequest("%s: the field name %q is reserved for component types", path, f.Name)
		}
		if seen[f.Name] {
			return domain.BadRequest("%s: duplicate field name", path)
		}
		seen[f.Name] = true

		if err := v.validateField(path, f); err != nil {
			return err
		}
	}
	return nil
}

func (v *fieldValidator) validateField(path string, f FieldSpecification) error {
	if !f.Type.IsValid() {
		return domain.BadRequest("%s: specified type %q doesn't exist", path, f.Type)
	}

	onlyFor := func(property string, set bool, types ...FieldType) error {
		if !set {
			return nil
		}
		for _, t := range types {
			if f.Type == t {
				return nil
			}
		}
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		return domain.BadRequest("%s: field with type %s shouldn't specify %s (only %s)", path, f.Type, property, strings.Join(names, ", "))
	}

	checks := []error{
		onlyFor("matchPattern", f.MatchPattern != "", FieldTypeString),
		onlyFor("index", f.Index != "", FieldTypeString),
		onlyFor("values", len(f.Values) > 0, FieldTypeString),
		onlyFor("multiline", f.Multiline, FieldTypeString),
		onlyFor("integer", f.Integer, FieldTypeNumber),
		onlyFor("entityTypes", len(f.EntityTypes) > 0, FieldTypeEntity, FieldTypeRichText),
		onlyFor("linkEntityTypes", len(f.LinkEntityTypes) > 0, FieldTypeRichText),
		onlyFor("componentTypes", len(f.ComponentTypes) > 0, FieldTypeComponent, FieldTypeRichText),
		onlyFor("richTextNodes", len(f.RichTextNodes) > 0, FieldTypeRichText),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if f.MatchPattern != "" && !v.patterns[f.MatchPattern] {
		return domain.BadRequest("%s: unknown pattern (%s)", path, f.MatchPattern)
	}
	if f.Index != "" && !v.indexes[f.Index] {
		return domain.BadRequest("%s: unknown index (%s)", path, f.Index)
	}

	for _, name := range f.EntityTypes {
		if v.kinds[name] != "entity" {
			return domain.BadRequest("%s: referenced entity type in entityTypes %s doesn't exist", path, name)
		}
	}
	for _, name := range f.LinkEntityTypes {
		if v.kinds[name] != "entity" {
			return domain.BadRequest("%s: referenced entity type in linkEntityTypes %s doesn't exist", path, name)
		}
	}
	for _, name := range f.ComponentTypes {
		if v.kinds[name] != "component" {
			return domain.BadRequest("%s: referenced component type in componentTypes %s doesn't exist", path, name)
		}
	}

	if len(f.RichTextNodes) > 0 {
		nodes := make(map[string]bool)
		for _, n := range f.RichTextNodes {
			if !domain.IsRichTextNodeKind(n) {
				return domain.BadRequest("%s: unknown rich text node %q", path, n)
			}
			nodes[n] = true
		}
		for _, n := range domain.RequiredRichTextNodes {
			if !nodes[n] {
				return domain.BadRequest("%s: rich text nodes must include %s", path, n)
			}
		}
		if len(f.EntityTypes) > 0 && !nodes[domain.RichTextNodeEntity] {
			return domain.BadRequest("%s: entityTypes is specified but richTextNodes is missing %s", path, domain.RichTextNodeEntity)
		}
		if len(f.LinkEntityTypes) > 0 && !nodes[domain.RichTextNodeEntityLink] {
			return domain.BadRequest("%s: linkEntityTypes is specified but richTextNodes is missing %s", path, domain.RichTextNodeEntityLink)
		}
		if len(f.ComponentTypes) > 0 && !nodes[domain.RichTextNodeComponent] {
			return domain.BadRequest("%s: componentTypes is specified but richTextNodes is missing %s", path, domain.RichTextNodeComponent)
		}
	}

	return nil
}

// validateComponentCycles rejects component types that require themselves
// through a chain of required, single-valued component fields, since no
// finite value could satisfy them. Optional or list self references are fine.
func validateComponentCycles(spec *Specification) error {
	edges := make(map[string][]string)
	for _, t := range spec.ComponentTypes {
		for _, f := range t.Fields {
			if f.Type == FieldTypeComponent && f.Required && !f.List && len(f.ComponentTypes) == 1 {
				edges[t.Name] = append(edges[t.Name], f.ComponentTypes[0])
			}
		}
	}

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int)
	var path []string
	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return domain.BadRequest("component type cycle through required fields: %s -> %s", strings.Join(path, " -> "), name)
		}
		state[name] = visiting
		path = append(path, name)
		for _, next := range edges[name] {
			if err := visit(next); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	for _, t := range spec.ComponentTypes {
		if err := visit(t.Name); err != nil {
			return err
		}
	}
	return nil
}

func validateMigrations(spec *Specification) error {
	previous := 0
	for _, m := range spec.Migrations {
		if m.Version <= previous {
			return domain.BadRequest("migrations: version %d is not increasing (previous %d)", m.Version, previous)
		}
		if m.Version > spec.Version {
			return domain.BadRequest("migrations: version %d is greater than schema version %d", m.Version, spec.Version)
		}
		for _, a := range m.Actions {
			if err := validateActionShape(a); err != nil {
				return err
			}
		}
		previous = m.Version
	}
	return nil
}
