package codec

import (
	"strata/internal/domain"
	"strata/internal/schema"
)

// Migrate rewrites a stored field tree in place so it conforms to the schema
// the actions lead to. Actions must be in ascending version order.
//
// When typeName is set the tree is the field map of an entity of that type
// (its current name); entity actions apply to the root only, after the name
// has been rewound to the one it had when the tree was written. When typeName
// is empty the tree is treated as a plain value, so a tagged root is
// migrated like any nested component.
//
// Component actions apply to every map tagged with a "type" matching the
// component type name, wherever it occurs. Deleted values are removed: list
// items and rich text nodes are dropped, map entries deleted. A nil result
// means the root itself was deleted.
func Migrate(actions []schema.VersionedAction, typeName string, tree map[string]any) map[string]any {
	if len(actions) == 0 || tree == nil {
		return tree
	}

	if typeName == "" {
		v, keep := migrateValue(actions, tree)
		if !keep {
			return nil
		}
		return v.(map[string]any)
	}

	if _, deleted := applyActions(actions, tree, rewindTypeName(actions, typeName), true); deleted {
		return nil
	}
	migrateChildren(actions, tree)
	return tree
}

// rewindTypeName returns the name an entity type had before the renames in actions
func rewindTypeName(actions []schema.VersionedAction, name string) string {
	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		if a.Action == schema.ActionRenameType && a.IsEntityAction() && a.NewName == name {
			name = a.EntityType
		}
	}
	return name
}

// applyActions runs the actions targeting name against node, following
// renames so later actions see the new name. It returns the final name and
// whether the node was deleted.
func applyActions(actions []schema.VersionedAction, node map[string]any, name string, isEntity bool) (string, bool) {
	for _, a := range actions {
		if a.IsEntityAction() != isEntity || a.TypeName() != name {
			continue
		}
		switch a.Action {
		case schema.ActionRenameField:
			if v, ok := node[a.Field]; ok {
				delete(node, a.Field)
				node[a.NewName] = v
			}
		case schema.ActionDeleteField:
			delete(node, a.Field)
		case schema.ActionRenameType:
			name = a.NewName
			if !isEntity {
				node[domain.ComponentTypeKey] = name
			}
		case schema.ActionDeleteType:
			return name, true
		}
	}
	return name, false
}

func migrateValue(actions []schema.VersionedAction, v any) (any, bool) {
	switch x := v.(type) {
	case map[string]any:
		if name, ok := x[domain.ComponentTypeKey].(string); ok {
			if _, deleted := applyActions(actions, x, name, false); deleted {
				return nil, false
			}
		}
		embedsComponent := x[domain.ComponentTypeKey] == domain.RichTextNodeComponent && x["data"] != nil
		migrateChildren(actions, x)
		if embedsComponent && x["data"] == nil {
			// a rich text component node whose component was deleted
			return nil, false
		}
		return x, true

	case []any:
		out := x[:0]
		for _, item := range x {
			if nv, keep := migrateValue(actions, item); keep {
				out = append(out, nv)
			}
		}
		return out, true
	}
	return v, true
}

func migrateChildren(actions []schema.VersionedAction, node map[string]any) {
	for k, child := range node {
		nv, keep := migrateValue(actions, child)
		if !keep {
			delete(node, k)
			continue
		}
		node[k] = nv
	}
}
