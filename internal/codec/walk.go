package codec

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"strata/internal/domain"
	"strata/internal/schema"
)

type walkMode int

const (
	modeEncode walkMode = iota // Produce the generic storage tree
	modeDecode                 // Produce typed values, tolerate unpublished data
)

// walker traverses a field tree guided by the schema, collecting issues and
// index artifacts. Recursion follows the data, so cyclic component types are
// bounded by the tree depth.
type walker struct {
	schema schema.Schema
	mode   walkMode
	view   View
	issues []Issue

	references []Reference
	locations  []domain.Location
	uniques    []UniqueValue
	uniqueSeen map[UniqueValue]bool
	text       []string
}

func newWalker(s schema.Schema, mode walkMode, view View) *walker {
	return &walker{schema: s, mode: mode, view: view, uniqueSeen: make(map[UniqueValue]bool)}
}

func (w *walker) issue(path, format string, args ...any) {
	w.issues = append(w.issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (w *walker) artifacts(t *schema.EntityTypeSpecification, out map[string]any) Artifacts {
	a := Artifacts{
		References:   w.references,
		Locations:    w.locations,
		UniqueValues: w.uniques,
		FullText:     strings.Join(w.text, " "),
	}
	if t.NameField != "" {
		if name, ok := out[t.NameField].(string); ok {
			a.Name = strings.TrimSpace(name)
		}
	}
	return a
}

// fields walks a field map. reserved names a key that is not a field, such
// as the component type tag.
func (w *walker) fields(path string, specs []schema.FieldSpecification, values map[string]any, reserved string) map[string]any {
	out := make(map[string]any, len(specs)+1)

	if w.mode == modeEncode {
		var unknown []string
		for key := range values {
			if key != reserved && findSpec(specs, key) == nil {
				unknown = append(unknown, key)
			}
		}
		sort.Strings(unknown)
		for _, key := range unknown {
			w.issue(path, "unsupported field name '%s'", key)
		}
	}

	for i := range specs {
		f := &specs[i]
		fp := path + "." + f.Name
		v, ok := values[f.Name]
		if !ok || v == nil {
			if f.Required {
				w.issue(fp, "required field value is missing")
			}
			continue
		}

		if !f.List {
			if cv, ok := w.value(fp, f, v); ok {
				out[f.Name] = cv
			}
			continue
		}

		items, ok := v.([]any)
		if !ok {
			w.issue(fp, "expected a list of %s, got %s", f.Type, describe(v))
			continue
		}
		list := make([]any, 0, len(items))
		for j, item := range items {
			ip := fmt.Sprintf("%s[%d]", fp, j)
			if item == nil {
				w.issue(ip, "list can't contain null values")
				continue
			}
			if cv, ok := w.value(ip, f, item); ok {
				list = append(list, cv)
			}
		}
		if len(list) == 0 {
			if f.Required {
				w.issue(fp, "required field value is missing")
			}
			continue
		}
		out[f.Name] = list
	}
	return out
}

func (w *walker) value(path string, f *schema.FieldSpecification, v any) (any, bool) {
	switch f.Type {
	case schema.FieldTypeString:
		s, ok := v.(string)
		if !ok {
			w.issue(path, "expected a string, got %s", describe(v))
			return nil, false
		}
		w.checkString(path, f, s)
		return s, true

	case schema.FieldTypeBoolean:
		b, ok := v.(bool)
		if !ok {
			w.issue(path, "expected a boolean, got %s", describe(v))
			return nil, false
		}
		return b, true

	case schema.FieldTypeNumber:
		n, ok := toFloat(v)
		if !ok {
			w.issue(path, "expected a number, got %s", describe(v))
			return nil, false
		}
		if f.Integer {
			if n != math.Trunc(n) {
				w.issue(path, "integer field expected an integer value, got %v", n)
			} else if w.mode == modeDecode {
				return int64(n), true
			}
		}
		return n, true

	case schema.FieldTypeLocation:
		loc, ok := toLocation(v)
		if !ok {
			w.issue(path, "expected a location with lat and lng, got %s", describe(v))
			return nil, false
		}
		if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
			w.issue(path, "location out of range (%v, %v)", loc.Lat, loc.Lng)
		}
		w.locations = append(w.locations, loc)
		if w.mode == modeDecode {
			return loc, true
		}
		return map[string]any{"lat": loc.Lat, "lng": loc.Lng}, true

	case schema.FieldTypeEntity:
		id, ok := referenceID(v)
		if !ok {
			w.issue(path, "expected an entity reference, got %s", describe(v))
			return nil, false
		}
		return w.reference(path, id, f.EntityTypes), true

	case schema.FieldTypeComponent:
		return w.component(path, v, f.ComponentTypes)

	case schema.FieldTypeRichText:
		return w.richText(path, f, v)
	}

	w.issue(path, "unsupported field type %s", f.Type)
	return nil, false
}

func (w *walker) checkString(path string, f *schema.FieldSpecification, s string) {
	if len(f.Values) > 0 && !contains(f.Values, s) {
		w.issue(path, "value %q is not one of the allowed values (%s)", s, strings.Join(f.Values, ", "))
	}
	if !f.Multiline && strings.Contains(s, "\n") {
		w.issue(path, "value cannot contain line breaks")
	}
	if f.MatchPattern != "" {
		re := w.schema.PatternRegexp(f.MatchPattern)
		if re == nil {
			w.issue(path, "unknown pattern %s", f.MatchPattern)
		} else if !re.MatchString(s) {
			w.issue(path, "value does not match pattern %s (%s)", f.MatchPattern, re.String())
		}
	}
	if f.Index != "" && s != "" {
		u := UniqueValue{Index: f.Index, Value: s}
		if w.uniqueSeen[u] {
			w.issue(path, "duplicate value for unique index %s", f.Index)
		} else {
			w.uniqueSeen[u] = true
			w.uniques = append(w.uniques, u)
		}
	}
	if s != "" {
		w.text = append(w.text, s)
	}
}

func (w *walker) reference(path, id string, entityTypes []string) any {
	if w.mode == modeEncode {
		if _, err := uuid.Parse(id); err != nil {
			w.issue(path, "invalid entity id %q", id)
		}
	}
	w.references = append(w.references, Reference{ID: id, Path: path, EntityTypes: entityTypes})
	if w.mode == modeDecode {
		return domain.EntityReference{ID: id}
	}
	return map[string]any{"id": id}
}

func (w *walker) component(path string, v any, allowed []string) (any, bool) {
	m, ok := asMap(v)
	if !ok {
		w.issue(path, "expected a component, got %s", describe(v))
		return nil, false
	}
	name, _ := m[domain.ComponentTypeKey].(string)
	if name == "" {
		w.issue(path+".type", "missing component type")
		return nil, false
	}
	ct := w.schema.ComponentType(name)
	if ct == nil {
		if w.mode == modeDecode && w.view == ViewPublished {
			// Admin-only component, not part of the published view
			return nil, false
		}
		w.issue(path+".type", "component type %s doesn't exist", name)
		return nil, false
	}
	if len(allowed) > 0 && !contains(allowed, name) {
		w.issue(path+".type", "component of type %s is not allowed in field (supported: %s)", name, strings.Join(allowed, ", "))
	}

	out := w.fields(path, ct.Fields, m, domain.ComponentTypeKey)
	out[domain.ComponentTypeKey] = name
	if w.mode == modeDecode {
		return domain.Component(out), true
	}
	return out, true
}

func (w *walker) richText(path string, f *schema.FieldSpecification, v any) (any, bool) {
	doc, ok := asMap(v)
	var root map[string]any
	if ok {
		root, ok = asMap(doc["root"])
	}
	if !ok {
		w.issue(path, "expected a rich text document with a root node, got %s", describe(v))
		return nil, false
	}
	if kind, _ := root[domain.ComponentTypeKey].(string); kind != domain.RichTextNodeRoot {
		w.issue(path+".root", "root node must be of type root")
	}

	var allowed map[string]bool
	if len(f.RichTextNodes) > 0 {
		allowed = make(map[string]bool, len(f.RichTextNodes))
		for _, n := range f.RichTextNodes {
			allowed[n] = true
		}
	}

	node, ok := w.richTextNode(path+".root", f, allowed, root)
	if !ok {
		return nil, false
	}
	if w.mode == modeDecode {
		return domain.RichText{"root": node}, true
	}
	return map[string]any{"root": node}, true
}

func (w *walker) richTextNode(path string, f *schema.FieldSpecification, allowed map[string]bool, node map[string]any) (map[string]any, bool) {
	kind, _ := node[domain.ComponentTypeKey].(string)
	if kind == "" {
		w.issue(path, "rich text node is missing a type")
		return nil, false
	}
	if allowed != nil && !allowed[kind] {
		w.issue(path, "rich text node type %s is not allowed in field (supported: %s)", kind, strings.Join(f.RichTextNodes, ", "))
	}

	out := make(map[string]any, len(node))
	for k, v := range node {
		out[k] = v
	}

	switch kind {
	case domain.RichTextNodeText:
		if s, ok := node["text"].(string); ok && s != "" {
			w.text = append(w.text, s)
		}
	case domain.RichTextNodeEntity, domain.RichTextNodeEntityLink:
		id, ok := referenceID(node["reference"])
		if !ok {
			w.issue(path+".reference", "expected an entity reference, got %s", describe(node["reference"]))
			delete(out, "reference")
			break
		}
		types := f.EntityTypes
		if kind == domain.RichTextNodeEntityLink {
			types = f.LinkEntityTypes
		}
		out["reference"] = w.reference(path+".reference", id, types)
	case domain.RichTextNodeComponent:
		data, ok := w.component(path+".data", node["data"], f.ComponentTypes)
		if !ok {
			return nil, false
		}
		out["data"] = data
	}

	if children, present := node["children"]; present {
		items, ok := children.([]any)
		if !ok {
			w.issue(path+".children", "expected a list of nodes, got %s", describe(children))
			delete(out, "children")
			return out, true
		}
		list := make([]any, 0, len(items))
		for i, c := range items {
			cp := fmt.Sprintf("%s.children[%d]", path, i)
			child, ok := asMap(c)
			if !ok {
				w.issue(cp, "expected a rich text node, got %s", describe(c))
				continue
			}
			if cn, ok := w.richTextNode(cp, f, allowed, child); ok {
				list = append(list, cn)
			}
		}
		out["children"] = list
	}
	return out, true
}

func findSpec(specs []schema.FieldSpecification, name string) *schema.FieldSpecification {
	for i := range specs {
		if specs[i].Name == name {
			return &specs[i]
		}
	}
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, x != nil
	case domain.Component:
		return map[string]any(x), x != nil
	case domain.RichText:
		return map[string]any(x), x != nil
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}

func toLocation(v any) (domain.Location, bool) {
	if loc, ok := v.(domain.Location); ok {
		return loc, true
	}
	m, ok := asMap(v)
	if !ok {
		return domain.Location{}, false
	}
	lat, okLat := toFloat(m["lat"])
	lng, okLng := toFloat(m["lng"])
	if !okLat || !okLng {
		return domain.Location{}, false
	}
	return domain.Location{Lat: lat, Lng: lng}, true
}

func referenceID(v any) (string, bool) {
	if ref, ok := v.(domain.EntityReference); ok {
		return ref.ID, ref.ID != ""
	}
	m, ok := asMap(v)
	if !ok {
		return "", false
	}
	id, ok := m["id"].(string)
	return id, ok && id != ""
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32:
		return "number"
	case []any:
		return "list"
	case map[string]any, domain.Component, domain.RichText:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
