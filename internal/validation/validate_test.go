package validation

import (
	"encoding/json"
	"testing"

	"github.com/aidis-project/aidis-core/internal/apierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func testSchema() Schema {
	return Schema{
		ToolName: "context_store",
		Fields: []Field{
			{Name: "type", Type: TypeString, Required: true, Enum: []string{"code", "decision", "error"}},
			{Name: "content", Type: TypeString, Required: true, MinLength: 1, MaxLength: 10000, TrimString: true},
			{Name: "relevanceScore", Type: TypeNumber, Min: ptr(0), Max: ptr(10), CoerceNumericString: true},
			{Name: "tags", Type: TypeStringArray, TrimString: true},
		},
	}
}

func TestValidateAcceptsValidPayload(t *testing.T) {
	raw := json.RawMessage(`{"type":"code","content":"  hello  ","relevanceScore":"7","tags":["a"," b "]}`)
	out, verr := Validate(testSchema(), raw)
	require.Nil(t, verr)
	assert.Equal(t, "hello", out["content"])
	assert.Equal(t, float64(7), out["relevanceScore"])
	assert.Equal(t, []string{"a", "b"}, out["tags"])
}

func TestValidateRejectsUnknownField(t *testing.T) {
	raw := json.RawMessage(`{"type":"code","content":"x","bogus":1}`)
	_, verr := Validate(testSchema(), raw)
	require.NotNil(t, verr)
	assert.Equal(t, apierr.CodeInvalidInput, verr.Code)
	assert.Equal(t, "bogus", verr.Field)
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	raw := json.RawMessage(`{"type":"code"}`)
	_, verr := Validate(testSchema(), raw)
	require.NotNil(t, verr)
	assert.Equal(t, "content", verr.Field)
}

func TestValidateRejectsBadEnum(t *testing.T) {
	raw := json.RawMessage(`{"type":"banana","content":"x"}`)
	_, verr := Validate(testSchema(), raw)
	require.NotNil(t, verr)
	assert.Equal(t, "type", verr.Field)
}

func TestValidateRejectsOutOfRangeNumber(t *testing.T) {
	raw := json.RawMessage(`{"type":"code","content":"x","relevanceScore":99}`)
	_, verr := Validate(testSchema(), raw)
	require.NotNil(t, verr)
	assert.Equal(t, "relevanceScore", verr.Field)
}

func TestValidateIsPure(t *testing.T) {
	raw := json.RawMessage(`{"type":"code","content":"hi"}`)
	out1, _ := Validate(testSchema(), raw)
	out2, _ := Validate(testSchema(), raw)
	assert.Equal(t, out1, out2)
}

func TestValidateDefaultsEmptyBodyToEmptyObject(t *testing.T) {
	_, verr := Validate(testSchema(), nil)
	require.NotNil(t, verr)
	assert.Equal(t, "type", verr.Field)
}
