package toolcall

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCatalog builds the catalog used across the package tests.
func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog([]*Definition{
		{
			Name:        "add_to_list",
			Description: "Add an item to a named list.",
			Category:    "list",
			Endpoint:    "http://lists.local/rpc/add",
			Params: map[string]ParamSpec{
				"list": {Type: "string", Required: true},
				"item": {Type: "string", Required: true},
			},
		},
		{
			Name:        "store_self_fact",
			Description: "Store a fact about the user.",
			Category:    "memory",
			Endpoint:    "http://memory.local/rpc/store",
			Params: map[string]ParamSpec{
				"key":   {Type: "string", Required: true},
				"value": {Type: "string", Required: true},
			},
		},
		{
			Name:        "get_self_info",
			Description: "Retrieve a stored fact about the user.",
			Category:    "memory",
			Endpoint:    "http://memory.local/rpc/get",
			Params: map[string]ParamSpec{
				"key": {Type: "string", Required: true},
			},
		},
		{
			Name:        "create_event",
			Description: "Create a calendar event.",
			Category:    "calendar",
			Endpoint:    "http://calendar.local/rpc/create",
			Params: map[string]ParamSpec{
				"title":    {Type: "string", Required: true},
				"when":     {Type: "string", Required: true},
				"duration": {Type: "number", Required: false},
			},
		},
		{
			Name:        "find_person",
			Description: "Look up a contact by name.",
			Category:    "people",
			Endpoint:    "http://people.local/rpc/find",
			Params: map[string]ParamSpec{
				"name": {Type: "string", Required: true},
			},
		},
	})
	require.NoError(t, err)
	return c
}

func TestCatalog_Lookup(t *testing.T) {
	c := newTestCatalog(t)

	def, ok := c.Lookup("add_to_list")
	require.True(t, ok)
	assert.Equal(t, "http://lists.local/rpc/add", def.Endpoint)

	_, ok = c.Lookup("no_such_tool")
	assert.False(t, ok)
}

func TestCatalog_DeclarationOrder(t *testing.T) {
	c := newTestCatalog(t)

	defs := c.Definitions()
	require.Len(t, defs, 5)
	assert.Equal(t, "add_to_list", defs[0].Name)
	assert.Equal(t, "find_person", defs[4].Name)
}

func TestNewCatalog_Rejects(t *testing.T) {
	_, err := NewCatalog(nil)
	assert.Error(t, err)

	_, err = NewCatalog([]*Definition{{Name: "x"}})
	assert.Error(t, err, "missing endpoint")

	_, err = NewCatalog([]*Definition{
		{Name: "x", Endpoint: "http://a"},
		{Name: "x", Endpoint: "http://b"},
	})
	assert.Error(t, err, "duplicate name")

	_, err = NewCatalog([]*Definition{{
		Name:     "x",
		Endpoint: "http://a",
		Params:   map[string]ParamSpec{"p": {Type: "integer"}},
	}})
	assert.Error(t, err, "invalid param type")
}

func TestLoadCatalog_YAML(t *testing.T) {
	content := `version: "2026-08-01"
tools:
  - name: add_to_list
    description: Add an item to a named list.
    category: list
    endpoint: http://lists.local/rpc/add
    params:
      list: {type: string, required: true}
      item: {type: string, required: true}
  - name: get_self_info
    description: Retrieve a stored fact.
    category: memory
    endpoint: http://memory.local/rpc/get
    params:
      key: {type: string, required: true}
`
	path := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-01", c.Version())
	assert.Len(t, c.Definitions(), 2)

	def, ok := c.Lookup("add_to_list")
	require.True(t, ok)
	assert.True(t, def.Params["item"].Required)
}
