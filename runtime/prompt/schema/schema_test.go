package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cellmind/agentcore/runtime/prompt/schema"
)

func TestValidatePlanAcceptsWellFormedPlan(t *testing.T) {
	raw := json.RawMessage(`{
		"totalSteps": 2,
		"steps": [
			{"stepNumber": 1, "description": "load data", "toolCalls": [
				{"name": "jupyter_cell", "parameters": {"code": "import pandas as pd"}}
			]},
			{"stepNumber": 2, "description": "answer", "dependencies": [1], "toolCalls": [
				{"name": "final_answer", "parameters": {"answer": "done"}}
			]}
		]
	}`)
	assert.NoError(t, schema.ValidatePlan(raw))
}

func TestValidatePlanRejectsMissingSteps(t *testing.T) {
	raw := json.RawMessage(`{"totalSteps": 1}`)
	assert.Error(t, schema.ValidatePlan(raw))
}

func TestValidatePlanRejectsUnknownToolName(t *testing.T) {
	raw := json.RawMessage(`{
		"totalSteps": 1,
		"steps": [{"stepNumber": 1, "description": "x", "toolCalls": [
			{"name": "delete_everything"}
		]}]
	}`)
	assert.Error(t, schema.ValidatePlan(raw))
}

func TestValidateToolCallsAcceptsRefineOutput(t *testing.T) {
	raw := json.RawMessage(`{
		"toolCalls": [{"name": "jupyter_cell", "parameters": {"code": "x = 1"}}],
		"reasoning": "fixed the off-by-one"
	}`)
	assert.NoError(t, schema.ValidateToolCalls(raw))
}

func TestValidateErrorAnalysisAcceptsInsertSteps(t *testing.T) {
	raw := json.RawMessage(`{
		"decision": "INSERT_STEPS",
		"reasoning": "missing package",
		"missingPackage": "pyarrow",
		"changes": {"newSteps": []}
	}`)
	assert.NoError(t, schema.ValidateErrorAnalysis(raw))
}

func TestValidateErrorAnalysisRejectsUnknownDecision(t *testing.T) {
	raw := json.RawMessage(`{"decision": "GIVE_UP", "reasoning": "nope"}`)
	assert.Error(t, schema.ValidateErrorAnalysis(raw))
}

func TestValidateStateVerificationAcceptsWellFormedResult(t *testing.T) {
	raw := json.RawMessage(`{
		"isValid": false,
		"confidence": 0.42,
		"recommendation": "REPLAN",
		"mismatches": [{"type": "VARIABLE_MISSING", "severity": "MAJOR", "description": "df not found"}]
	}`)
	assert.NoError(t, schema.ValidateStateVerification(raw))
}

func TestValidateStateVerificationRejectsOutOfRangeConfidence(t *testing.T) {
	raw := json.RawMessage(`{"confidence": 1.5, "recommendation": "PROCEED"}`)
	assert.Error(t, schema.ValidateStateVerification(raw))
}

func TestValidateNilPayloadFails(t *testing.T) {
	assert.Error(t, schema.ValidatePlan(nil))
}
