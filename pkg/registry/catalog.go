package registry

// DefaultTools returns the shopping tool catalog fronted by this gateway.
// Every tool routes to the remote agent service; the gateway itself holds no
// shopping logic.
func DefaultTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "search_products",
			Description: "Search the product catalog by free-text query.",
			InputSchema: objectSchema(map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search terms, e.g. 'organic milk'",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to return",
				},
			}, "query"),
		},
		{
			Name:        "get_product_details",
			Description: "Fetch full details for a single product.",
			InputSchema: objectSchema(map[string]any{
				"product_id": map[string]any{
					"type":        "string",
					"description": "Product identifier from a search result",
				},
			}, "product_id"),
		},
		{
			Name:        "get_deals",
			Description: "List current deals and promotions, optionally filtered by category.",
			InputSchema: objectSchema(map[string]any{
				"category": map[string]any{
					"type":        "string",
					"description": "Optional category filter, e.g. 'produce'",
				},
			}),
		},
		{
			Name:        "add_to_cart",
			Description: "Add a product to the shopping cart.",
			InputSchema: objectSchema(map[string]any{
				"product_id": map[string]any{
					"type":        "string",
					"description": "Product to add",
				},
				"quantity": map[string]any{
					"type":        "integer",
					"description": "Quantity to add, defaults to 1",
				},
			}, "product_id"),
			IsConsequential: true,
		},
		{
			Name:        "view_cart",
			Description: "Show the current cart contents and totals.",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "checkout",
			Description: "Place an order for the current cart contents.",
			InputSchema: objectSchema(map[string]any{
				"confirm": map[string]any{
					"type":        "boolean",
					"description": "Must be true to place the order",
				},
			}, "confirm"),
			IsConsequential: true,
		},
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
