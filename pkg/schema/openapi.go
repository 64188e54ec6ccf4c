package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// PayloadFieldsFromOpenAPI loads an OpenAPI document and returns the dotted
// leaf paths of the JSON request body of operationID. Objects with declared
// properties are expanded; arrays and free-form objects are leaves.
func PayloadFieldsFromOpenAPI(ctx context.Context, raw []byte, operationID string) ([]string, error) {
	if len(raw) == 0 {
		return nil, errors.New("schema: openapi document is empty")
	}
	loader := &openapi3.Loader{Context: ctx, IsExternalRefsAllowed: false}
	doc, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: load openapi: %w", err)
	}
	if err := doc.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return nil, fmt.Errorf("schema: validate openapi: %w", err)
	}

	operation := findOperation(doc, operationID)
	if operation == nil {
		return nil, fmt.Errorf("schema: operation %q not found", operationID)
	}
	if operation.RequestBody == nil || operation.RequestBody.Value == nil {
		return nil, fmt.Errorf("schema: operation %q has no request body", operationID)
	}
	media := operation.RequestBody.Value.Content.Get("application/json")
	if media == nil || media.Schema == nil {
		return nil, fmt.Errorf("schema: operation %q has no JSON request body", operationID)
	}

	var out []string
	collectLeaves("", media.Schema, &out, map[*openapi3.Schema]bool{})
	sort.Strings(out)
	return out, nil
}

func findOperation(doc *openapi3.T, operationID string) *openapi3.Operation {
	if doc.Paths == nil {
		return nil
	}
	for _, item := range doc.Paths.Map() {
		if item == nil {
			continue
		}
		for _, operation := range item.Operations() {
			if operation != nil && operation.OperationID == operationID {
				return operation
			}
		}
	}
	return nil
}

func collectLeaves(prefix string, ref *openapi3.SchemaRef, out *[]string, visiting map[*openapi3.Schema]bool) {
	if ref == nil || ref.Value == nil {
		if prefix != "" {
			*out = append(*out, prefix)
		}
		return
	}
	schema := ref.Value
	properties := map[string]*openapi3.SchemaRef{}
	for name, prop := range schema.Properties {
		properties[name] = prop
	}
	for _, part := range schema.AllOf {
		if part != nil && part.Value != nil {
			for name, prop := range part.Value.Properties {
				properties[name] = prop
			}
		}
	}

	isObject := schema.Type == nil || schema.Type.Is(openapi3.TypeObject)
	if !isObject || len(properties) == 0 || visiting[schema] {
		if prefix != "" {
			*out = append(*out, prefix)
		}
		return
	}

	visiting[schema] = true
	defer delete(visiting, schema)
	for name, prop := range properties {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		collectLeaves(path, prop, out, visiting)
	}
}
