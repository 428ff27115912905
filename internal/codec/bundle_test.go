package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/domain"
)

const yamlBundleDoc = `
schema:
  entityTypes:
    - name: Article
      nameField: title
      fields:
        - name: title
          type: String
          required: true
entities:
  - type: Article
    fields:
      title: Hello
  - id: 4ba2cba5-19d5-4bd6-8d6c-f5b4a0c3b1a1
    type: Article
    authKey: subject
    fields:
      title: Second
`

func TestYAMLCodecParse(t *testing.T) {
	bundle, err := NewYAMLCodec().Parse(strings.NewReader(yamlBundleDoc))
	require.NoError(t, err)

	require.NotNil(t, bundle.Schema)
	require.Len(t, bundle.Schema.EntityTypes, 1)
	assert.Equal(t, "title", *bundle.Schema.EntityTypes[0].NameField)

	require.Len(t, bundle.Entities, 2)
	assert.Equal(t, domain.AuthKeyNone, bundle.Entities[0].Info.AuthKey)
	assert.Equal(t, "Hello", bundle.Entities[0].Fields["title"])
	assert.Equal(t, authorID, bundle.Entities[1].ID)
	assert.Equal(t, domain.AuthKeySubject, bundle.Entities[1].Info.AuthKey)
}

func TestYAMLCodecRejectsUnknownKeys(t *testing.T) {
	_, err := NewYAMLCodec().Parse(strings.NewReader("entities:\n  - type: Article\n    colour: red\n"))
	assert.Error(t, err)
}

func TestJSONCodecExportParse(t *testing.T) {
	bundle := BundleFromEntities(nil, []*domain.Entity{{
		ID:     authorID,
		Info:   domain.EntityInfo{Type: "Article", AuthKey: domain.AuthKeyNone, Name: "Hello"},
		Fields: domain.Fields{"title": "Hello"},
	}})

	var buf bytes.Buffer
	c := NewJSONCodec()
	require.NoError(t, c.Export(bundle, &buf))

	parsed, err := c.Parse(&buf)
	require.NoError(t, err)
	require.Len(t, parsed.Entities, 1)
	assert.Equal(t, "Article", parsed.Entities[0].Info.Type)
	assert.Equal(t, "Hello", parsed.Entities[0].Fields["title"])
}

func TestCodecForFormat(t *testing.T) {
	imp, ok := ImporterFor(".yml")
	require.True(t, ok)
	assert.Equal(t, "yaml", imp.Format())

	exp, ok := ExporterFor("json")
	require.True(t, ok)
	assert.Equal(t, "json", exp.Format())

	_, ok = ImporterFor("csv")
	assert.False(t, ok)
}
