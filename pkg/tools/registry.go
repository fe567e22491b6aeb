// Package tools holds the page-aware tool schemas a client may advertise
// support for, and the server-side tools the pipeline can always offer.
package tools

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"ChatKit/pkg/llm"

	"gopkg.in/yaml.v3"
)

// Schema describes a tool whose invocation is handled by the client page.
type Schema struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Parameters  map[string]any `yaml:"parameters" json:"parameters"`
}

// Registry maps tool names to page-aware schemas. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	schemas map[string]Schema
}

// NewRegistry returns a registry holding the built-in schemas overlaid with
// custom ones. A custom schema replaces a built-in of the same name.
func NewRegistry(custom ...Schema) *Registry {
	r := &Registry{schemas: make(map[string]Schema)}
	for _, s := range builtinSchemas() {
		r.schemas[s.Name] = s
	}
	for _, s := range custom {
		r.schemas[s.Name] = s
	}
	return r
}

// Names lists registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// Select returns client-handled tools for every allowed name that is
// registered, in the order of allowed. Unknown and duplicate names are
// skipped.
func (r *Registry) Select(allowed []string) []llm.Tool {
	out := make([]llm.Tool, 0, len(allowed))
	seen := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		name = strings.TrimSpace(name)
		if _, dup := seen[name]; dup {
			continue
		}
		s, ok := r.Lookup(name)
		if !ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, llm.Tool{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Parameters,
		})
	}
	return out
}

type schemaFile struct {
	Tools []Schema `yaml:"tools"`
}

// LoadFile reads custom schemas from a YAML file of the form
//
//	tools:
//	  - name: open_record
//	    description: Open a record in the editor
//	    parameters: {type: object, properties: {...}}
func LoadFile(path string) ([]Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tools file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes custom schemas from YAML.
func Parse(raw []byte) ([]Schema, error) {
	var f schemaFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse tools file: %w", err)
	}
	for i, s := range f.Tools {
		if strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("tool #%d has no name", i+1)
		}
		if s.Parameters == nil {
			f.Tools[i].Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
	}
	return f.Tools, nil
}

func builtinSchemas() []Schema {
	return []Schema{
		{
			Name:        "navigate",
			Description: "Navigate the admin application to a route, for example a content list or an edit form.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Application route to open, e.g. /collections/posts",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "get_page_content",
			Description: "Read the visible content and form values of the current page.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "fill_form_field",
			Description: "Set the value of a field in the form shown on the current page.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"field": map[string]any{
						"type":        "string",
						"description": "Field name as shown in the form schema",
					},
					"value": map[string]any{
						"type":        "string",
						"description": "New field value",
					},
				},
				"required": []string{"field", "value"},
			},
		},
		{
			Name:        "submit_form",
			Description: "Submit the form on the current page.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}
