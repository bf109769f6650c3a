package events

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/wms-platform/nursery-fulfillment/pkg/cloudevents"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var schemaFiles = map[string]string{
	cloudevents.OrderCreated:           "order-created.json",
	cloudevents.OrderTrolleysEstimated: "order-trolleys-estimated.json",
}

// PayloadValidator checks event payloads against their JSON schemas
type PayloadValidator struct {
	schemas map[string]*jsonschema.Schema
}

// NewPayloadValidator compiles the embedded schemas
func NewPayloadValidator() (*PayloadValidator, error) {
	compiler := jsonschema.NewCompiler()
	schemas := make(map[string]*jsonschema.Schema, len(schemaFiles))

	for eventType, file := range schemaFiles {
		raw, err := schemaFS.ReadFile(path.Join("schemas", file))
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", file, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema %s: %w", file, err)
		}

		uri := "nursery://schemas/" + file
		if err := compiler.AddResource(uri, doc); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", file, err)
		}
		compiled, err := compiler.Compile(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", file, err)
		}
		schemas[eventType] = compiled
	}

	return &PayloadValidator{schemas: schemas}, nil
}

// Validate checks the payload of event. Event types without a schema pass.
func (v *PayloadValidator) Validate(event *cloudevents.CloudEvent) error {
	schema, ok := v.schemas[event.Type]
	if !ok {
		return nil
	}
	if event.Data == nil {
		return fmt.Errorf("%s: event data is required", event.Type)
	}

	raw, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s data: %w", event.Type, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to decode %s data: %w", event.Type, err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("%s payload is invalid: %w", event.Type, err)
	}
	return nil
}
