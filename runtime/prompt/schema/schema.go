// Package schema holds the JSON Schema documents the system's LLM-produced
// payloads must conform to, and validates salvaged JSON against them. The
// same schema text backs both the Prompt Assembler's output-schema blocks
// (so the model is told the exact shape it must produce) and the validation
// the salvager's caller runs against whatever JSON actually comes back.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const toolCallsSchemaJSON = `{
  "$id": "toolcalls.json",
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$defs": {
    "toolCall": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {
          "enum": [
            "jupyter_cell", "markdown", "final_answer", "write_file",
            "read_file", "list_files", "execute_command",
            "search_workspace", "search_notebook_cells", "check_resource"
          ]
        },
        "parameters": {"type": "object"}
      }
    }
  },
  "type": "object",
  "required": ["toolCalls"],
  "properties": {
    "toolCalls": {
      "type": "array",
      "items": {"$ref": "#/$defs/toolCall"}
    },
    "reasoning": {"type": "string"}
  }
}`

const planSchemaJSON = `{
  "$id": "plan.json",
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["totalSteps", "steps"],
  "properties": {
    "totalSteps": {"type": "integer", "minimum": 1},
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["stepNumber", "description", "toolCalls"],
        "properties": {
          "stepNumber": {"type": "integer", "minimum": 1},
          "description": {"type": "string"},
          "dependencies": {"type": "array", "items": {"type": "integer"}},
          "toolCalls": {
            "type": "array",
            "minItems": 1,
            "items": {"$ref": "toolcalls.json#/$defs/toolCall"}
          },
          "checkpoint": {
            "type": "object",
            "properties": {
              "expectedOutcome": {"type": "string"},
              "expectedVariables": {"type": "array", "items": {"type": "string"}},
              "validationPatterns": {"type": "array", "items": {"type": "string"}},
              "risk": {"enum": ["low", "medium", "high"]}
            }
          }
        }
      }
    }
  }
}`

const errorAnalysisSchemaJSON = `{
  "$id": "error_analysis.json",
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["decision", "reasoning"],
  "properties": {
    "decision": {"enum": ["REFINE", "INSERT_STEPS", "REPLACE_STEP", "REPLAN_REMAINING"]},
    "analysis": {"type": "string"},
    "rootCause": {"type": "string"},
    "reasoning": {"type": "string"},
    "missingPackage": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "changes": {
      "type": "object",
      "properties": {
        "newSteps": {"type": "array"},
        "replacementStep": {"type": "object"},
        "remainingSteps": {"type": "array"},
        "systemDependency": {"type": "string"}
      }
    }
  }
}`

const stateVerificationSchemaJSON = `{
  "$id": "state_verification.json",
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["confidence", "recommendation"],
  "properties": {
    "isValid": {"type": "boolean"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "recommendation": {"enum": ["PROCEED", "WARNING", "REPLAN", "ESCALATE"]},
    "mismatches": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "severity"],
        "properties": {
          "type": {"enum": ["VARIABLE_MISSING", "OUTPUT_MISMATCH", "EXCEPTION_OCCURRED", "IMPORT_FAILED"]},
          "severity": {"enum": ["MINOR", "MAJOR", "CRITICAL"]},
          "description": {"type": "string"},
          "suggestion": {"type": "string"}
        }
      }
    }
  }
}`

// Exported aliases of the raw schema text, for the Prompt Assembler to
// embed verbatim in an output-schema block so the model sees the same shape
// validation will hold it to.
const (
	ToolCallsJSON         = toolCallsSchemaJSON
	PlanJSON              = planSchemaJSON
	ErrorAnalysisJSON     = errorAnalysisSchemaJSON
	StateVerificationJSON = stateVerificationSchemaJSON
)

var (
	toolCallsSchema         *jsonschema.Schema
	planSchema              *jsonschema.Schema
	errorAnalysisSchema     *jsonschema.Schema
	stateVerificationSchema *jsonschema.Schema
)

func init() {
	compiler := jsonschema.NewCompiler()
	addResource(compiler, "toolcalls.json", toolCallsSchemaJSON)
	addResource(compiler, "plan.json", planSchemaJSON)
	addResource(compiler, "error_analysis.json", errorAnalysisSchemaJSON)
	addResource(compiler, "state_verification.json", stateVerificationSchemaJSON)

	toolCallsSchema = mustCompile(compiler, "toolcalls.json")
	planSchema = mustCompile(compiler, "plan.json")
	errorAnalysisSchema = mustCompile(compiler, "error_analysis.json")
	stateVerificationSchema = mustCompile(compiler, "state_verification.json")
}

func addResource(compiler *jsonschema.Compiler, name, schemaJSON string) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("schema %s: invalid schema document: %v", name, err))
	}
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("schema %s: add resource: %v", name, err))
	}
}

func mustCompile(compiler *jsonschema.Compiler, name string) *jsonschema.Schema {
	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("schema %s: compile: %v", name, err))
	}
	return sch
}

// ValidatePlan checks raw against the Plan schema.
func ValidatePlan(raw json.RawMessage) error { return validate(planSchema, raw) }

// ValidateToolCalls checks raw against the refine-output ToolCalls schema.
func ValidateToolCalls(raw json.RawMessage) error { return validate(toolCallsSchema, raw) }

// ValidateErrorAnalysis checks raw against the replan-output ErrorAnalysis
// schema.
func ValidateErrorAnalysis(raw json.RawMessage) error { return validate(errorAnalysisSchema, raw) }

// ValidateStateVerification checks raw against the StateVerification schema.
func ValidateStateVerification(raw json.RawMessage) error {
	return validate(stateVerificationSchema, raw)
}

func validate(sch *jsonschema.Schema, raw json.RawMessage) error {
	if raw == nil {
		return fmt.Errorf("no JSON payload to validate")
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return err
	}
	return nil
}
