package adapter

import (
	"context"
	"encoding/json"
	"strings"
)

// Adapter defines the interface for LLM provider adapters.
type Adapter interface {
	// Generate sends a completion request to the provider.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

// Request is a provider-neutral completion request.
type Request struct {
	// Model overrides the adapter's configured model when set.
	Model       string
	System      string
	Prompt      string
	Schema      *Schema
	MaxTokens   int
	Temperature float64
}

// Schema constrains the completion to a flat JSON object.
type Schema struct {
	Name       string
	Properties map[string]Property
	Required   []string
}

// Property describes a single field of a Schema.
type Property struct {
	Type        string
	Description string
	Enum        []string
}

// JSONSchema renders the schema as a JSON Schema document.
func (s *Schema) JSONSchema() map[string]any {
	if s == nil {
		return nil
	}
	props := make(map[string]any, len(s.Properties))
	for name, p := range s.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             s.Required,
		"additionalProperties": false,
	}
}

// schemaInstruction is appended to the system prompt for providers without
// native schema enforcement.
func schemaInstruction(s *Schema) string {
	if s == nil {
		return ""
	}
	doc, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return ""
	}
	return "Respond with ONLY a JSON object matching this JSON Schema, no prose:\n" + string(doc)
}

func systemPrompt(req *Request) string {
	parts := make([]string, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		parts = append(parts, req.System)
	}
	if inst := schemaInstruction(req.Schema); inst != "" {
		parts = append(parts, inst)
	}
	return strings.Join(parts, "\n\n")
}

func maxTokens(req *Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return 1024
}

func pickModel(req *Request, fallback string) string {
	if req.Model != "" {
		return req.Model
	}
	return fallback
}
