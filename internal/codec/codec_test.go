package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/domain"
	"strata/internal/schema"
)

const (
	authorID = "4ba2cba5-19d5-4bd6-8d6c-f5b4a0c3b1a1"
	otherID  = "d2f9a5e0-1b2c-4a3d-9e8f-7a6b5c4d3e2f"
)

func testSchema(t *testing.T) *schema.AdminSchema {
	t.Helper()
	s, err := schema.CreateAndValidate(schema.SpecificationUpdate{
		EntityTypes: []schema.EntityTypeSpecificationUpdate{
			{
				Name:      "Article",
				NameField: strPtr("title"),
				Fields: []schema.FieldSpecification{
					{Name: "title", Type: schema.FieldTypeString, Required: true},
					{Name: "slug", Type: schema.FieldTypeString, MatchPattern: "slug", Index: "slugs"},
					{Name: "rating", Type: schema.FieldTypeNumber, Integer: true},
					{Name: "where", Type: schema.FieldTypeLocation},
					{Name: "author", Type: schema.FieldTypeEntity, EntityTypes: []string{"Author"}},
					{Name: "quotes", Type: schema.FieldTypeComponent, List: true, ComponentTypes: []string{"Quote"}},
					{Name: "body", Type: schema.FieldTypeRichText},
					{Name: "notes", Type: schema.FieldTypeString, AdminOnly: true},
				},
			},
			{Name: "Author"},
		},
		ComponentTypes: []schema.ComponentTypeSpecificationUpdate{
			{Name: "Quote", Fields: []schema.FieldSpecification{{Name: "text", Type: schema.FieldTypeString, Required: true}}},
		},
		Patterns: []schema.PatternSpecification{{Name: "slug", Pattern: "^[a-z0-9-]+$"}},
		Indexes:  []schema.IndexSpecification{{Name: "slugs", Type: schema.IndexTypeUnique}},
	})
	require.NoError(t, err)
	return s
}

func strPtr(s string) *string { return &s }

func TestEncode(t *testing.T) {
	s := testSchema(t)

	encoded, err := Encode(s, "Article", map[string]any{
		"title":  "Hello",
		"slug":   "hello",
		"rating": 4,
		"where":  domain.Location{Lat: 59.3, Lng: 18.1},
		"author": domain.EntityReference{ID: authorID},
		"quotes": []any{domain.NewComponent("Quote", map[string]any{"text": "To be"})},
		"body":   domain.NewRichText(domain.RichTextParagraph(domain.RichTextTextNode("Body text"))),
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello", encoded.Name)
	assert.Equal(t, []UniqueValue{{Index: "slugs", Value: "hello"}}, encoded.UniqueValues)
	assert.Equal(t, []domain.Location{{Lat: 59.3, Lng: 18.1}}, encoded.Locations)
	assert.Equal(t, []string{authorID}, encoded.ReferencedIDs())
	assert.Equal(t, []string{"Author"}, encoded.References[0].EntityTypes)
	assert.Contains(t, encoded.FullText, "Body text")
	assert.Contains(t, encoded.FullText, "To be")

	assert.Equal(t, map[string]any{"id": authorID}, encoded.Fields["author"])
	assert.Equal(t, map[string]any{"lat": 59.3, "lng": 18.1}, encoded.Fields["where"])
	assert.Equal(t, float64(4), encoded.Fields["rating"])
}

func TestEncodeErrors(t *testing.T) {
	s := testSchema(t)

	tests := []struct {
		name   string
		fields map[string]any
		want   string
	}{
		{"missing required", map[string]any{}, "entity.fields.title: required field value is missing"},
		{"unknown field", map[string]any{"title": "x", "color": "red"}, "entity.fields: unsupported field name 'color'"},
		{"wrong type", map[string]any{"title": 12}, "entity.fields.title: expected a string, got number"},
		{"pattern", map[string]any{"title": "x", "slug": "Not A Slug"}, "entity.fields.slug: value does not match pattern slug"},
		{"integer", map[string]any{"title": "x", "rating": 1.5}, "entity.fields.rating: integer field expected an integer value"},
		{"line break", map[string]any{"title": "a\nb"}, "entity.fields.title: value cannot contain line breaks"},
		{
			"unknown component type",
			map[string]any{"title": "x", "quotes": []any{map[string]any{"type": "Author"}}},
			"entity.fields.quotes[0].type: component type Author doesn't exist",
		},
		{
			"nested required",
			map[string]any{"title": "x", "quotes": []any{map[string]any{"type": "Quote"}}},
			"entity.fields.quotes[0].text: required field value is missing",
		},
		{
			"invalid reference",
			map[string]any{"title": "x", "author": map[string]any{"id": "nope"}},
			`entity.fields.author: invalid entity id "nope"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(s, "Article", tt.fields)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrBadRequest)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Encode(s, "Missing", map[string]any{})
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestEncodeRichTextNodeRestriction(t *testing.T) {
	s, err := schema.CreateAndValidate(schema.SpecificationUpdate{
		EntityTypes: []schema.EntityTypeSpecificationUpdate{{
			Name: "Page",
			Fields: []schema.FieldSpecification{{
				Name:          "body",
				Type:          schema.FieldTypeRichText,
				RichTextNodes: domain.RequiredRichTextNodes,
			}},
		}},
	})
	require.NoError(t, err)

	heading := map[string]any{"type": domain.RichTextNodeHeading, "children": []any{domain.RichTextTextNode("Title")}}
	_, err = Encode(s, "Page", map[string]any{"body": domain.NewRichText(heading)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity.fields.body.root.children[0]: rich text node type heading is not allowed")

	_, err = Encode(s, "Page", map[string]any{"body": domain.NewRichText(domain.RichTextParagraph(domain.RichTextTextNode("ok")))})
	assert.NoError(t, err)
}

func TestDecodeFastPath(t *testing.T) {
	s := testSchema(t)

	stored := map[string]any{
		"title":  "Hello",
		"rating": float64(3),
		"author": map[string]any{"id": authorID},
		"notes":  "internal",
	}
	decoded := Decode(s, StoredEntity{Type: "Article", SchemaVersion: s.Version(), EncodeVersion: CurrentEncodeVersion, Fields: stored}, ViewAdmin)

	assert.True(t, decoded.Valid)
	assert.Equal(t, domain.Fields{
		"title":  "Hello",
		"rating": int64(3),
		"author": domain.EntityReference{ID: authorID},
		"notes":  "internal",
	}, decoded.Fields)
	// the stored tree is not modified
	assert.Equal(t, map[string]any{"id": authorID}, stored["author"])
}

func TestDecodePublishedViewDropsAdminOnly(t *testing.T) {
	s := testSchema(t)

	decoded := Decode(s, StoredEntity{
		Type:          "Article",
		SchemaVersion: s.Version(),
		EncodeVersion: CurrentEncodeVersion,
		Fields:        map[string]any{"title": "Hello", "notes": "internal"},
	}, ViewPublished)

	assert.True(t, decoded.Valid)
	assert.Equal(t, domain.Fields{"title": "Hello"}, decoded.Fields)
}

func TestDecodeReportsInvalidInsteadOfFailing(t *testing.T) {
	s := testSchema(t)

	decoded := Decode(s, StoredEntity{
		Type:          "Article",
		SchemaVersion: s.Version(),
		EncodeVersion: CurrentEncodeVersion,
		Fields:        map[string]any{"slug": "Bad Slug"},
	}, ViewAdmin)

	assert.False(t, decoded.Valid)
	require.Len(t, decoded.Issues, 2)
	assert.Equal(t, "entity.fields.title", decoded.Issues[0].Path)
	// the value is kept even though it no longer matches
	assert.Equal(t, "Bad Slug", decoded.Fields["slug"])
}

func TestDecodeLegacyReferences(t *testing.T) {
	s := testSchema(t)

	decoded := Decode(s, StoredEntity{
		Type:          "Article",
		SchemaVersion: s.Version(),
		EncodeVersion: 0,
		Fields: map[string]any{
			"title":  "Hello",
			"author": authorID,
			"body": map[string]any{"root": map[string]any{
				"type": "root",
				"children": []any{
					map[string]any{"type": "entity", "reference": otherID},
				},
			}},
		},
	}, ViewAdmin)

	require.True(t, decoded.Valid, "%v", decoded.Issues)
	assert.Equal(t, domain.EntityReference{ID: authorID}, decoded.Fields["author"])
	assert.ElementsMatch(t, []string{authorID, otherID}, decoded.ReferencedIDs())
}

func TestDecodeMigratesOldVersions(t *testing.T) {
	s := testSchema(t)
	next, err := s.UpdateAndValidate(schema.SpecificationUpdate{
		Migrations: []schema.Migration{{Version: s.Version() + 1, Actions: []schema.MigrationAction{
			{Action: schema.ActionRenameField, ComponentType: "Quote", Field: "text", NewName: "quote"},
			{Action: schema.ActionRenameType, EntityType: "Article", NewName: "Post"},
		}}},
	})
	require.NoError(t, err)

	decoded := Decode(next, StoredEntity{
		Type:          "Post",
		SchemaVersion: s.Version(),
		EncodeVersion: CurrentEncodeVersion,
		Fields: map[string]any{
			"title":  "Hello",
			"quotes": []any{map[string]any{"type": "Quote", "text": "hi"}},
		},
	}, ViewAdmin)

	require.True(t, decoded.Valid, "%v", decoded.Issues)
	assert.Equal(t, []any{domain.Component{"type": "Quote", "quote": "hi"}}, decoded.Fields["quotes"])
	assert.Equal(t, "Hello", decoded.Name)
}

func TestValidate(t *testing.T) {
	s := testSchema(t)

	assert.Empty(t, Validate(s, "Article", map[string]any{"title": "ok"}))

	issues := Validate(s, "Article", map[string]any{"rating": "five"})
	require.Len(t, issues, 2)
	assert.Equal(t, "entity.fields.title", issues[0].Path)
	assert.Equal(t, "entity.fields.rating", issues[1].Path)

	err := IssuesError(issues)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	assert.NoError(t, IssuesError(nil))
}
