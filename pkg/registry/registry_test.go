package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidDefinitions(t *testing.T) {
	t.Parallel()

	valid := ToolDefinition{
		Name:        "search_products",
		InputSchema: objectSchema(map[string]any{}),
	}

	testCases := []struct {
		name  string
		tools []ToolDefinition
	}{
		{
			name:  "empty name",
			tools: []ToolDefinition{{InputSchema: objectSchema(map[string]any{})}},
		},
		{
			name:  "duplicate name",
			tools: []ToolDefinition{valid, valid},
		},
		{
			name: "non-object schema",
			tools: []ToolDefinition{{
				Name:        "bad_tool",
				InputSchema: map[string]any{"type": "string"},
			}},
		},
		{
			name:  "missing schema",
			tools: []ToolDefinition{{Name: "bad_tool"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(tc.tools...)
			require.ErrorIs(t, err, ErrInvalidTool)
		})
	}
}

func TestRegistryLookupAndOrder(t *testing.T) {
	t.Parallel()

	reg, err := New(
		ToolDefinition{Name: "zeta", InputSchema: objectSchema(map[string]any{})},
		ToolDefinition{Name: "alpha", InputSchema: objectSchema(map[string]any{})},
	)
	require.NoError(t, err)

	tool, ok := reg.Get("zeta")
	require.True(t, ok)
	assert.Equal(t, "zeta", tool.Name)

	_, ok = reg.Get("nope")
	assert.False(t, ok)

	// List preserves registration order; Names sorts.
	listed := reg.List()
	require.Len(t, listed, 2)
	assert.Equal(t, "zeta", listed[0].Name)
	assert.Equal(t, "alpha", listed[1].Name)
	assert.Equal(t, []string{"alpha", "zeta"}, reg.Names())
	assert.Equal(t, 2, reg.Len())
}

func TestDefaultTools(t *testing.T) {
	t.Parallel()

	reg, err := New(DefaultTools()...)
	require.NoError(t, err)

	expected := []string{
		"add_to_cart", "checkout", "get_deals",
		"get_product_details", "search_products", "view_cart",
	}
	assert.Equal(t, expected, reg.Names())

	// Only the mutating tools carry the consequential marker.
	for _, tool := range reg.List() {
		mutating := tool.Name == "add_to_cart" || tool.Name == "checkout"
		assert.Equal(t, mutating, tool.IsConsequential, "tool %s", tool.Name)
	}

	search, ok := reg.Get("search_products")
	require.True(t, ok)
	assert.Contains(t, search.Properties(), "query")
	assert.Equal(t, []string{"query"}, search.Required())
}
