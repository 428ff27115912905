package schema

import (
	"strata/internal/domain"
)

// CreateAndValidate builds a schema from an update applied to the empty schema
func CreateAndValidate(update SpecificationUpdate) (*AdminSchema, error) {
	return Empty().UpdateAndValidate(update)
}

// UpdateAndValidate merges update into the schema and validates the result.
//
// The merge is additive: types, fields, patterns and indexes are matched by
// name, new ones are appended and existing ones replaced. A field keeps its
// type and list flag; removals only happen through migration actions, which
// are applied to the specification before merging. When nothing changes the
// receiver itself is returned.
func (s *AdminSchema) UpdateAndValidate(update SpecificationUpdate) (*AdminSchema, error) {
	current := s.spec
	if update.Version != 0 && update.Version != current.Version+1 {
		return nil, domain.BadRequest("expected version %d, got %d", current.Version+1, update.Version)
	}

	next := current.clone()

	for _, m := range update.Migrations {
		for _, action := range m.Actions {
			if err := applyActionToSpecification(&next, action); err != nil {
				return nil, err
			}
		}
	}

	for _, u := range update.EntityTypes {
		if err := mergeEntityType(&next, u); err != nil {
			return nil, err
		}
	}
	for _, u := range update.ComponentTypes {
		if err := mergeComponentType(&next, u); err != nil {
			return nil, err
		}
	}
	for _, p := range update.Patterns {
		mergePattern(&next, p)
	}
	for _, idx := range update.Indexes {
		mergeIndex(&next, idx)
	}
	next.Migrations = append(next.Migrations, update.Migrations...)

	if semanticallyEqual(current, next) {
		return s, nil
	}

	next.Version = current.Version + 1
	result := NewAdminSchema(next)
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

func mergeEntityType(spec *Specification, u EntityTypeSpecificationUpdate) error {
	for i := range spec.EntityTypes {
		t := &spec.EntityTypes[i]
		if t.Name != u.Name {
			continue
		}
		if u.AdminOnly != nil {
			t.AdminOnly = *u.AdminOnly
		}
		if u.AuthKeyPattern != nil {
			t.AuthKeyPattern = *u.AuthKeyPattern
		}
		if u.NameField != nil {
			t.NameField = *u.NameField
		}
		fields, err := mergeFields(t.Name, t.Fields, u.Fields)
		if err != nil {
			return err
		}
		t.Fields = fields
		return nil
	}

	t := EntityTypeSpecification{Name: u.Name, Fields: append([]FieldSpecification{}, u.Fields...)}
	if u.AdminOnly != nil {
		t.AdminOnly = *u.AdminOnly
	}
	if u.AuthKeyPattern != nil {
		t.AuthKeyPattern = *u.AuthKeyPattern
	}
	if u.NameField != nil {
		t.NameField = *u.NameField
	}
	spec.EntityTypes = append(spec.EntityTypes, t)
	return nil
}

func mergeComponentType(spec *Specification, u ComponentTypeSpecificationUpdate) error {
	for i := range spec.ComponentTypes {
		t := &spec.ComponentTypes[i]
		if t.Name != u.Name {
			continue
		}
		if u.AdminOnly != nil {
			t.AdminOnly = *u.AdminOnly
		}
		fields, err := mergeFields(t.Name, t.Fields, u.Fields)
		if err != nil {
			return err
		}
		t.Fields = fields
		return nil
	}

	t := ComponentTypeSpecification{Name: u.Name, Fields: append([]FieldSpecification{}, u.Fields...)}
	if u.AdminOnly != nil {
		t.AdminOnly = *u.AdminOnly
	}
	spec.ComponentTypes = append(spec.ComponentTypes, t)
	return nil
}

func mergeFields(typeName string, existing, updates []FieldSpecification) ([]FieldSpecification, error) {
	if len(updates) == 0 {
		return existing, nil
	}
	result := append([]FieldSpecification{}, existing...)
	for _, f := range updates {
		current := findField(result, f.Name)
		if current == nil {
			result = append(result, f)
			continue
		}
		if current.Type != f.Type {
			return nil, domain.BadRequest("%s.%s: cannot change type from %s to %s", typeName, f.Name, current.Type, f.Type)
		}
		if current.List != f.List {
			return nil, domain.BadRequest("%s.%s: cannot change list from %t to %t", typeName, f.Name, current.List, f.List)
		}
		*current = f
	}
	return result, nil
}

func mergePattern(spec *Specification, p PatternSpecification) {
	for i := range spec.Patterns {
		if spec.Patterns[i].Name == p.Name {
			spec.Patterns[i] = p
			return
		}
	}
	spec.Patterns = append(spec.Patterns, p)
}

func mergeIndex(spec *Specification, idx IndexSpecification) {
	for i := range spec.Indexes {
		if spec.Indexes[i].Name == idx.Name {
			spec.Indexes[i] = idx
			return
		}
	}
	spec.Indexes = append(spec.Indexes, idx)
}

// applyActionToSpecification makes the schema itself follow a migration action
func applyActionToSpecification(spec *Specification, a MigrationAction) error {
	if err := validateActionShape(a); err != nil {
		return err
	}

	fields, nameField, found := typeFields(spec, a)
	if !found {
		return domain.BadRequest("migration %s: type %s not found", a.Action, a.TypeName())
	}

	switch a.Action {
	case ActionRenameField:
		f := findField(*fields, a.Field)
		if f == nil {
			return domain.BadRequest("migration renameField: field %s.%s not found", a.TypeName(), a.Field)
		}
		if findField(*fields, a.NewName) != nil {
			return domain.BadRequest("migration renameField: field %s.%s already exists", a.TypeName(), a.NewName)
		}
		f.Name = a.NewName
		if nameField != nil && *nameField == a.Field {
			*nameField = a.NewName
		}

	case ActionDeleteField:
		idx := -1
		for i := range *fields {
			if (*fields)[i].Name == a.Field {
				idx = i
			}
		}
		if idx < 0 {
			return domain.BadRequest("migration deleteField: field %s.%s not found", a.TypeName(), a.Field)
		}
		*fields = append((*fields)[:idx], (*fields)[idx+1:]...)
		if nameField != nil && *nameField == a.Field {
			*nameField = ""
		}

	case ActionRenameType:
		if spec.hasType(a.NewName) {
			return domain.BadRequest("migration renameType: type %s already exists", a.NewName)
		}
		renameType(spec, a)

	case ActionDeleteType:
		return deleteType(spec, a)
	}
	return nil
}

func validateActionShape(a MigrationAction) error {
	if (a.EntityType == "") == (a.ComponentType == "") {
		return domain.BadRequest("migration %s: exactly one of entityType and componentType is required", a.Action)
	}
	switch a.Action {
	case ActionRenameField:
		if a.Field == "" || a.NewName == "" {
			return domain.BadRequest("migration renameField: field and newName are required")
		}
	case ActionDeleteField:
		if a.Field == "" {
			return domain.BadRequest("migration deleteField: field is required")
		}
	case ActionRenameType:
		if a.NewName == "" {
			return domain.BadRequest("migration renameType: newName is required")
		}
	case ActionDeleteType:
	default:
		return domain.BadRequest("unknown migration action %q", a.Action)
	}
	return nil
}

func typeFields(spec *Specification, a MigrationAction) (*[]FieldSpecification, *string, bool) {
	if a.IsEntityAction() {
		for i := range spec.EntityTypes {
			if spec.EntityTypes[i].Name == a.EntityType {
				return &spec.EntityTypes[i].Fields, &spec.EntityTypes[i].NameField, true
			}
		}
		return nil, nil, false
	}
	for i := range spec.ComponentTypes {
		if spec.ComponentTypes[i].Name == a.ComponentType {
			return &spec.ComponentTypes[i].Fields, nil, true
		}
	}
	return nil, nil, false
}

func (s *Specification) hasType(name string) bool {
	for _, t := range s.EntityTypes {
		if t.Name == name {
			return true
		}
	}
	for _, t := range s.ComponentTypes {
		if t.Name == name {
			return true
		}
	}
	return false
}

func (s *Specification) eachField(fn func(f *FieldSpecification)) {
	for i := range s.EntityTypes {
		for j := range s.EntityTypes[i].Fields {
			fn(&s.EntityTypes[i].Fields[j])
		}
	}
	for i := range s.ComponentTypes {
		for j := range s.ComponentTypes[i].Fields {
			fn(&s.ComponentTypes[i].Fields[j])
		}
	}
}

func renameType(spec *Specification, a MigrationAction) {
	replace := func(names []string) []string {
		for i, n := range names {
			if n == a.TypeName() {
				names[i] = a.NewName
			}
		}
		return names
	}

	if a.IsEntityAction() {
		for i := range spec.EntityTypes {
			if spec.EntityTypes[i].Name == a.EntityType {
				spec.EntityTypes[i].Name = a.NewName
			}
		}
		spec.eachField(func(f *FieldSpecification) {
			f.EntityTypes = replace(f.EntityTypes)
			f.LinkEntityTypes = replace(f.LinkEntityTypes)
		})
		return
	}

	for i := range spec.ComponentTypes {
		if spec.ComponentTypes[i].Name == a.ComponentType {
			spec.ComponentTypes[i].Name = a.NewName
		}
	}
	spec.eachField(func(f *FieldSpecification) {
		f.ComponentTypes = replace(f.ComponentTypes)
	})
}

// deleteType removes a type and prunes it from the allowed types of the
// remaining fields. A field allowing only the deleted type would come to
// allow any type, so such a field has to be deleted first.
func deleteType(spec *Specification, a MigrationAction) error {
	name := a.TypeName()
	remove := func(names []string) []string {
		var kept []string
		for _, n := range names {
			if n != name {
				kept = append(kept, n)
			}
		}
		return kept
	}

	if a.IsEntityAction() {
		var kept []EntityTypeSpecification
		for _, t := range spec.EntityTypes {
			if t.Name != a.EntityType {
				kept = append(kept, t)
			}
		}
		spec.EntityTypes = kept
	} else {
		var kept []ComponentTypeSpecification
		for _, t := range spec.ComponentTypes {
			if t.Name != a.ComponentType {
				kept = append(kept, t)
			}
		}
		spec.ComponentTypes = kept
	}

	if path := soleTypeReference(spec, name, a.IsEntityAction()); path != "" {
		return domain.BadRequest("migration deleteType: %s is the only allowed type of %s", name, path)
	}

	spec.eachField(func(f *FieldSpecification) {
		if a.IsEntityAction() {
			f.EntityTypes = remove(f.EntityTypes)
			f.LinkEntityTypes = remove(f.LinkEntityTypes)
		} else {
			f.ComponentTypes = remove(f.ComponentTypes)
		}
	})
	return nil
}

// soleTypeReference returns the path of the first field whose allowed types
// consist of name alone
func soleTypeReference(spec *Specification, name string, entity bool) string {
	sole := func(names []string) bool {
		return len(names) == 1 && names[0] == name
	}
	check := func(typeName string, fields []FieldSpecification) string {
		for _, f := range fields {
			if entity && (sole(f.EntityTypes) || sole(f.LinkEntityTypes)) {
				return typeName + "." + f.Name
			}
			if !entity && sole(f.ComponentTypes) {
				return typeName + "." + f.Name
			}
		}
		return ""
	}
	for _, t := range spec.EntityTypes {
		if path := check(t.Name, t.Fields); path != "" {
			return path
		}
	}
	for _, t := range spec.ComponentTypes {
		if path := check(t.Name, t.Fields); path != "" {
			return path
		}
	}
	return ""
}
