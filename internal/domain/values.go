package domain

// Fields is the value tree of an entity, keyed by field name.
//
// Values are nil, string, bool, float64 or int64 (integer fields), Location,
// EntityReference, Component, RichText, or []any of those for list fields.
type Fields map[string]any

// Clone returns a shallow copy of the top-level field map
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Location is a WGS84 coordinate
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BoundingBox selects locations within a lat/lng rectangle
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLng float64 `json:"minLng"`
	MaxLng float64 `json:"maxLng"`
}

// Contains returns true if the location is inside the box
func (b BoundingBox) Contains(l Location) bool {
	return l.Lat >= b.MinLat && l.Lat <= b.MaxLat && l.Lng >= b.MinLng && l.Lng <= b.MaxLng
}

// EntityReference points at another entity by id
type EntityReference struct {
	ID string `json:"id"`
}

// ComponentTypeKey is the reserved key holding the component type name
const ComponentTypeKey = "type"

// Component is a structured field group tagged with its component type
type Component map[string]any

// NewComponent creates a component of the given type
func NewComponent(typeName string, fields map[string]any) Component {
	c := Component{ComponentTypeKey: typeName}
	for k, v := range fields {
		c[k] = v
	}
	return c
}

// Type returns the component type name, or "" if untagged
func (c Component) Type() string {
	t, _ := c[ComponentTypeKey].(string)
	return t
}

// RichText is a rich text document, a tree of nodes under "root"
type RichText map[string]any

// Rich text node kinds
const (
	RichTextNodeRoot          = "root"
	RichTextNodeParagraph     = "paragraph"
	RichTextNodeText          = "text"
	RichTextNodeLineBreak     = "linebreak"
	RichTextNodeTab           = "tab"
	RichTextNodeHeading       = "heading"
	RichTextNodeList          = "list"
	RichTextNodeListItem      = "listitem"
	RichTextNodeLink          = "link"
	RichTextNodeCode          = "code"
	RichTextNodeCodeHighlight = "code-highlight"
	RichTextNodeQuote         = "quote"
	RichTextNodeEntity        = "entity"
	RichTextNodeEntityLink    = "entityLink"
	RichTextNodeComponent     = "component"
)

// RichTextNodeKinds lists every node kind the codec understands
var RichTextNodeKinds = []string{
	RichTextNodeRoot,
	RichTextNodeParagraph,
	RichTextNodeText,
	RichTextNodeLineBreak,
	RichTextNodeTab,
	RichTextNodeHeading,
	RichTextNodeList,
	RichTextNodeListItem,
	RichTextNodeLink,
	RichTextNodeCode,
	RichTextNodeCodeHighlight,
	RichTextNodeQuote,
	RichTextNodeEntity,
	RichTextNodeEntityLink,
	RichTextNodeComponent,
}

// RequiredRichTextNodes are always allowed when a field restricts node kinds
var RequiredRichTextNodes = []string{
	RichTextNodeRoot,
	RichTextNodeParagraph,
	RichTextNodeText,
	RichTextNodeLineBreak,
	RichTextNodeTab,
}

// IsRichTextNodeKind returns true for known node kinds
func IsRichTextNodeKind(kind string) bool {
	for _, k := range RichTextNodeKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// NewRichText wraps child nodes in a root node
func NewRichText(children ...map[string]any) RichText {
	items := make([]any, len(children))
	for i, c := range children {
		items[i] = c
	}
	return RichText{"root": map[string]any{"type": RichTextNodeRoot, "children": items}}
}

// RichTextParagraph creates a paragraph node
func RichTextParagraph(children ...map[string]any) map[string]any {
	items := make([]any, len(children))
	for i, c := range children {
		items[i] = c
	}
	return map[string]any{"type": RichTextNodeParagraph, "children": items}
}

// RichTextTextNode creates a text node
func RichTextTextNode(text string) map[string]any {
	return map[string]any{"type": RichTextNodeText, "text": text}
}

// RichTextEntityNode creates a node embedding an entity reference
func RichTextEntityNode(ref EntityReference) map[string]any {
	return map[string]any{"type": RichTextNodeEntity, "reference": ref}
}

// RichTextComponentNode creates a node embedding a component
func RichTextComponentNode(c Component) map[string]any {
	return map[string]any{"type": RichTextNodeComponent, "data": c}
}
