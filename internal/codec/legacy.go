package codec

import (
	"strata/internal/domain"
	"strata/internal/schema"
)

// legacyUpgrade converts a tree written with one encode version to the next
type legacyUpgrade func(s schema.Schema, typeName string, tree map[string]any) map[string]any

// legacyUpgrades is keyed by the encode version an upgrade starts from
var legacyUpgrades = map[int]legacyUpgrade{
	0: upgradeFromVersion0,
}

// upgradeFromVersion0 handles encode version 0, which stored entity
// references as bare id strings instead of {"id": ...} objects
func upgradeFromVersion0(s schema.Schema, typeName string, tree map[string]any) map[string]any {
	t := s.EntityType(typeName)
	if t == nil {
		return tree
	}
	upgradeFields(s, t.Fields, tree)
	return tree
}

func upgradeFields(s schema.Schema, specs []schema.FieldSpecification, values map[string]any) {
	for i := range specs {
		f := &specs[i]
		v, ok := values[f.Name]
		if !ok || v == nil {
			continue
		}
		if items, isList := v.([]any); isList && f.List {
			for j := range items {
				items[j] = upgradeValue(s, f, items[j])
			}
			continue
		}
		values[f.Name] = upgradeValue(s, f, v)
	}
}

func upgradeValue(s schema.Schema, f *schema.FieldSpecification, v any) any {
	switch f.Type {
	case schema.FieldTypeEntity:
		if id, ok := v.(string); ok {
			return map[string]any{"id": id}
		}
	case schema.FieldTypeComponent:
		upgradeComponent(s, v)
	case schema.FieldTypeRichText:
		if doc, ok := v.(map[string]any); ok {
			if root, ok := doc["root"].(map[string]any); ok {
				upgradeRichTextNode(s, root)
			}
		}
	}
	return v
}

func upgradeComponent(s schema.Schema, v any) {
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	name, _ := m[domain.ComponentTypeKey].(string)
	if ct := s.ComponentType(name); ct != nil {
		upgradeFields(s, ct.Fields, m)
	}
}

func upgradeRichTextNode(s schema.Schema, node map[string]any) {
	switch node[domain.ComponentTypeKey] {
	case domain.RichTextNodeEntity, domain.RichTextNodeEntityLink:
		if id, ok := node["reference"].(string); ok {
			node["reference"] = map[string]any{"id": id}
		}
	case domain.RichTextNodeComponent:
		upgradeComponent(s, node["data"])
	}
	children, _ := node["children"].([]any)
	for _, c := range children {
		if child, ok := c.(map[string]any); ok {
			upgradeRichTextNode(s, child)
		}
	}
}
