package activities

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentware/agentctl/internal/apperr"
	"github.com/agentware/agentctl/llm"
)

// compileActionSchema compiles a hosted action's declared JSON Schema
// (Action.Schema.Parameters) into a validator. Each call gets its own
// Compiler instance, keyed by a synthetic resource name, since the schema
// documents are small and not reused across activity invocations.
func compileActionSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for %s: %w", name, err)
	}
	url := "mem://agentctl/actions/" + name
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("add schema resource for %s: %w", name, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	return schema, nil
}

// validateToolSchemas checks that every tool's declared parameters document
// is itself a well-formed JSON Schema before it is handed to the LLM, per
// spec.md §4.5 step 4a: a malformed schema on the agent's side should fail
// the decide_action call rather than silently confuse the model.
func validateToolSchemas(tools []llm.ToolSchema) error {
	for _, t := range tools {
		if t.Parameters == nil {
			continue
		}
		if _, err := compileActionSchema(t.Name, t.Parameters); err != nil {
			return apperr.Wrap(apperr.ClientError, err, "invalid parameter schema for action %s", t.Name)
		}
	}
	return nil
}

// validateActionArguments validates a decoded tool-call arguments payload
// against the action's declared parameters schema before it is dispatched
// to the agent's hosted action, per spec.md §4.5 step 4c. A nil schema
// (action advertised with no parameters) is treated as "anything goes".
func validateActionArguments(toolName string, params map[string]any, args map[string]any) error {
	if params == nil {
		return nil
	}
	schema, err := compileActionSchema(toolName, params)
	if err != nil {
		return apperr.Wrap(apperr.ClientError, err, "take_action: tool %s", toolName)
	}
	// jsonschema validates against the same any-tree json.Unmarshal produces
	// (map[string]any/[]any/float64/...), so args can be passed as decoded.
	instance := any(args)
	if args == nil {
		instance = map[string]any{}
	}
	if err := schema.Validate(instance); err != nil {
		return apperr.Wrap(apperr.ClientError, err, "take_action: tool %s: arguments do not match schema", toolName)
	}
	return nil
}
