package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/agentshop/shopgate/pkg/logger"
)

// resultSchema describes the ToolInvocationResult body every tool returns.
var resultSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"content": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"type": map[string]any{"type": "string"},
					"text": map[string]any{"type": "string"},
				},
			},
		},
		"isError": map[string]any{"type": "boolean"},
	},
}

// buildOpenAPIDocument derives the OpenAPI 3.0 document from the registry:
// one POST /tools/{name} path per registered tool, each requiring oauth2 and
// carrying the x-openai-isConsequential marker on mutating tools.
func (p *Publisher) buildOpenAPIDocument(ctx context.Context) (*openapi3.T, error) {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       fmt.Sprintf("%s tool API", p.serviceName),
			Description: "REST surface of the shopping agent gateway. Each path invokes one registered tool.",
			Version:     "1.0.0",
		},
		Servers: openapi3.Servers{&openapi3.Server{URL: p.publicURL}},
		Paths:   openapi3.NewPaths(),
	}

	if p.authEnabled {
		doc.Components = &openapi3.Components{
			SecuritySchemes: openapi3.SecuritySchemes{
				"oauth2": &openapi3.SecuritySchemeRef{
					Value: &openapi3.SecurityScheme{
						Type: "oauth2",
						Flows: &openapi3.OAuthFlows{
							ClientCredentials: &openapi3.OAuthFlow{
								TokenURL: p.tokenEndpoint(ctx),
								Scopes:   scopesMap(p.scopes),
							},
						},
					},
				},
			},
		}
	}

	responseRef := &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription("Tool invocation result").
			WithJSONSchema(mustSchema(resultSchema)),
	}

	for _, tool := range p.registry.List() {
		inputSchema, err := schemaFromMap(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %q: invalid input schema: %w", tool.Name, err)
		}

		operation := &openapi3.Operation{
			OperationID: tool.Name,
			Summary:     tool.Description,
			RequestBody: &openapi3.RequestBodyRef{
				Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchema(inputSchema),
			},
			Responses: openapi3.NewResponses(
				openapi3.WithStatus(http.StatusOK, responseRef),
			),
			Extensions: map[string]any{
				"x-openai-isConsequential": tool.IsConsequential,
			},
		}
		if p.authEnabled {
			operation.Security = &openapi3.SecurityRequirements{{"oauth2": []string{}}}
		}

		doc.Paths.Set("/tools/"+tool.Name, &openapi3.PathItem{Post: operation})
	}

	return doc, nil
}

// openAPIJSON returns the serialized document, rebuilt after the TTL lapses.
func (p *Publisher) openAPIJSON(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	cached := p.openapiJSON
	fresh := cached != nil && time.Since(p.openapiTime) < p.ttl
	p.mu.Unlock()

	if fresh {
		return cached, nil
	}

	doc, err := p.buildOpenAPIDocument(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OpenAPI document: %w", err)
	}

	p.mu.Lock()
	p.openapiJSON = data
	p.openapiTime = time.Now()
	p.mu.Unlock()
	return data, nil
}

// OpenAPIHandler serves GET /.well-known/openapi.json.
func (p *Publisher) OpenAPIHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := p.openAPIJSON(r.Context())
		if err != nil {
			logger.Errorw("failed to produce OpenAPI document", "error", err)
			http.Error(w, "failed to generate OpenAPI document", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	})
}

// actionsManifest is the human-readable plugin/actions manifest referencing
// the OpenAPI document.
type actionsManifest struct {
	SchemaVersion       string         `json:"schema_version"`
	NameForHuman        string         `json:"name_for_human"`
	NameForModel        string         `json:"name_for_model"`
	DescriptionForHuman string         `json:"description_for_human"`
	DescriptionForModel string         `json:"description_for_model"`
	Auth                map[string]any `json:"auth"`
	API                 map[string]any `json:"api"`
}

// ManifestHandler serves GET /.well-known/ai-plugin.json.
func (p *Publisher) ManifestHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		manifest := actionsManifest{
			SchemaVersion:       "v1",
			NameForHuman:        "Shopping Agent",
			NameForModel:        "shopping_agent",
			DescriptionForHuman: "Search products, manage a cart, and check out through the shopping agent.",
			DescriptionForModel: "Tools for product search, product details, deals, cart management and checkout. Mutating tools are marked consequential.",
			Auth:                map[string]any{"type": "none"},
			API: map[string]any{
				"type": "openapi",
				"url":  p.publicURL + "/.well-known/openapi.json",
			},
		}
		if p.authEnabled {
			manifest.Auth = map[string]any{
				"type":  "oauth",
				"scope": joinScopes(p.scopes),
			}
		}
		writeJSON(w, manifest)
	})
}

// schemaFromMap converts a raw JSON-schema map to the kin-openapi schema
// type through a marshal round trip, keeping the registry independent of
// the OpenAPI library's schema representation.
func schemaFromMap(m map[string]any) (*openapi3.Schema, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var schema openapi3.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

func mustSchema(m map[string]any) *openapi3.Schema {
	schema, err := schemaFromMap(m)
	if err != nil {
		panic(err)
	}
	return schema
}

func scopesMap(scopes []string) map[string]string {
	out := make(map[string]string, len(scopes))
	for _, s := range scopes {
		out[s] = "Required by the gateway"
	}
	return out
}

func joinScopes(scopes []string) string {
	joined := ""
	for i, s := range scopes {
		if i > 0 {
			joined += " "
		}
		joined += s
	}
	return joined
}
