package schema

import (
	"encoding/json"
	"sort"
)

// ChangedEntityTypes returns the entity types of next whose stored entities
// may validate or index differently than under prev. A change to any
// component type, pattern or index can reach every entity type through
// component and rich text fields, so it marks all of them.
func ChangedEntityTypes(prev, next *AdminSchema) []string {
	if prev == next {
		return nil
	}
	p, n := prev.spec, next.spec

	all := func() []string {
		names := make([]string, 0, len(n.EntityTypes))
		for _, t := range n.EntityTypes {
			names = append(names, t.Name)
		}
		sort.Strings(names)
		return names
	}

	if !jsonEqual(p.ComponentTypes, n.ComponentTypes) ||
		!jsonEqual(p.Patterns, n.Patterns) ||
		!jsonEqual(p.Indexes, n.Indexes) {
		return all()
	}

	var changed []string
	for i := range n.EntityTypes {
		t := &n.EntityTypes[i]
		old := prev.EntityType(t.Name)
		if old == nil || !jsonEqual(old, t) {
			changed = append(changed, t.Name)
		}
	}
	sort.Strings(changed)
	return changed
}

func jsonEqual(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}
