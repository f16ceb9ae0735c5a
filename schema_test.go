package parley

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func searchSchema() Schema {
	return Schema{
		"query": {Type: TypeString, Required: true, Description: "Search query"},
		"focus_area": {
			Type: TypeStringEnum,
			Enum: []string{"health", "fitness", "nutrition", "medical", "general"},
		},
		"num_results": {Type: TypeInteger, Default: 5},
	}
}

func TestSchema_Check(t *testing.T) {
	require.NoError(t, searchSchema().Check())
}

func TestSchema_Check_UnknownType(t *testing.T) {
	s := Schema{"x": {Type: ParamType("uuid")}}
	err := s.Check()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownParamType)
}

func TestSchema_Check_EnumWithoutValues(t *testing.T) {
	s := Schema{"x": {Type: TypeStringEnum}}
	require.Error(t, s.Check())
}

func TestSchema_Check_DefaultTypeMismatch(t *testing.T) {
	s := Schema{"n": {Type: TypeInteger, Default: "five"}}
	err := s.Check()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestSchema_JSONSchema(t *testing.T) {
	m := searchSchema().JSONSchema()
	assert.Equal(t, "object", m["type"])
	props, ok := m["properties"].(map[string]any)
	require.True(t, ok)
	require.Len(t, props, 3)

	query, ok := props["query"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", query["type"])
	assert.Equal(t, "Search query", query["description"])

	focus, ok := props["focus_area"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", focus["type"])
	assert.Len(t, focus["enum"], 5)

	num, ok := props["num_results"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "integer", num["type"])
	assert.Equal(t, 5, num["default"])

	required, ok := m["required"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"query"}, required)
}

func TestSchema_JSONSchema_ArrayItems(t *testing.T) {
	s := Schema{
		"data_types": {
			Type:     TypeStringArray,
			Required: true,
			Enum:     []string{"activities", "diet", "weight", "goals", "all"},
		},
		"search_terms": {Type: TypeStringArray},
	}
	m := s.JSONSchema()
	props := m["properties"].(map[string]any)

	dt := props["data_types"].(map[string]any)
	assert.Equal(t, "array", dt["type"])
	items := dt["items"].(map[string]any)
	assert.Equal(t, "string", items["type"])
	assert.Len(t, items["enum"], 5)

	st := props["search_terms"].(map[string]any)
	stItems := st["items"].(map[string]any)
	_, hasEnum := stItems["enum"]
	assert.False(t, hasEnum)
}

func TestSchema_Validate_DefaultsApplied(t *testing.T) {
	args, err := searchSchema().Validate([]byte(`{"query": "HIIT research"}`))
	require.NoError(t, err)
	assert.Equal(t, "HIIT research", args["query"])
	assert.Equal(t, 5, args["num_results"])
	_, hasFocus := args["focus_area"]
	assert.False(t, hasFocus, "optional param without default must stay absent")
}

func TestSchema_Validate_MissingRequired(t *testing.T) {
	_, err := searchSchema().Validate([]byte(`{"num_results": 3}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingParameter)
	assert.True(t, IsClientError(err))
	assert.Contains(t, err.Error(), "query")
}

func TestSchema_Validate_TypeMismatch(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"string for integer", `{"query":"q","num_results":"five"}`},
		{"fractional for integer", `{"query":"q","num_results":2.5}`},
		{"number for string", `{"query":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := searchSchema().Validate([]byte(tt.json))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTypeMismatch)
			assert.True(t, IsClientError(err))
		})
	}
}

func TestSchema_Validate_Enum(t *testing.T) {
	args, err := searchSchema().Validate([]byte(`{"query":"q","focus_area":"fitness"}`))
	require.NoError(t, err)
	assert.Equal(t, "fitness", args["focus_area"])

	_, err = searchSchema().Validate([]byte(`{"query":"q","focus_area":"finance"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEnumValue)
	assert.True(t, IsClientError(err))
}

func TestSchema_Validate_StringArray(t *testing.T) {
	s := Schema{
		"data_types": {
			Type:     TypeStringArray,
			Required: true,
			Enum:     []string{"activities", "diet", "weight"},
		},
	}
	args, err := s.Validate([]byte(`{"data_types":["diet","weight"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"diet", "weight"}, args["data_types"])

	_, err = s.Validate([]byte(`{"data_types":["diet","sleep"]}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidEnumValue)

	_, err = s.Validate([]byte(`{"data_types":["diet",3]}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestSchema_Validate_UnknownParameter(t *testing.T) {
	_, err := searchSchema().Validate([]byte(`{"query":"q","limit":10}`))
	require.Error(t, err)
	assert.True(t, IsClientError(err))
	assert.Contains(t, err.Error(), "limit")
}

func TestSchema_Validate_BadJSON(t *testing.T) {
	_, err := searchSchema().Validate([]byte(`{"query":`))
	require.Error(t, err)
	assert.True(t, IsClientError(err))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSchema_Validate_EmptyInput(t *testing.T) {
	s := Schema{"n": {Type: TypeInteger, Default: 1}}
	args, err := s.Validate(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, args["n"])
}

func TestSchema_Validate_ObjectParam(t *testing.T) {
	s := Schema{"user_data": {Type: TypeObject, Required: true}}
	args, err := s.Validate([]byte(`{"user_data":{"age":33}}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"age": 33.0}, args["user_data"])

	_, err = s.Validate([]byte(`{"user_data":"not an object"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}
