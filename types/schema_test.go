package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tickerSchema() *JSONSchema {
	return NewObjectSchema().
		AddProperty("ticker", NewStringSchema().WithPattern(`^[A-Za-z][A-Za-z0-9 .&-]*$`).WithLength(1, 64)).
		AddProperty("period", NewIntegerSchema().WithRange(2, 100)).
		AddProperty("mode", NewEnumSchema("fast", "full")).
		AddRequired("ticker").
		Closed()
}

func TestJSONSchema_Validate(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		wantErr string
	}{
		{name: "valid minimal", args: `{"ticker":"JKH"}`},
		{name: "valid full", args: `{"ticker":"dialog axiata","period":14,"mode":"fast"}`},
		{name: "missing required", args: `{}`, wantErr: `missing required property "ticker"`},
		{name: "empty document", args: ``, wantErr: `missing required property "ticker"`},
		{name: "wrong type", args: `{"ticker":42}`, wantErr: "ticker: expected string, got number"},
		{name: "non integer", args: `{"ticker":"JKH","period":1.5}`, wantErr: "period: expected integer"},
		{name: "out of range", args: `{"ticker":"JKH","period":500}`, wantErr: "greater than maximum"},
		{name: "enum", args: `{"ticker":"JKH","mode":"slow"}`, wantErr: "is not one of"},
		{name: "pattern", args: `{"ticker":"$$$"}`, wantErr: "does not match"},
		{name: "closed object", args: `{"ticker":"JKH","extra":true}`, wantErr: `unexpected property "extra"`},
		{name: "not an object", args: `["JKH"]`, wantErr: "expected object, got array"},
		{name: "broken json", args: `{"ticker":`, wantErr: "invalid JSON"},
	}

	schema := tickerSchema()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(json.RawMessage(tt.args))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var verr *ValidationErrors
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJSONSchema_ValidateCollectsPathTaggedErrors(t *testing.T) {
	err := tickerSchema().Validate(json.RawMessage(`{"ticker":42,"period":500,"mode":"slow"}`))

	var verr *ValidationErrors
	require.ErrorAs(t, err, &verr)
	paths := make([]string, 0, len(verr.Errors))
	for _, e := range verr.Errors {
		paths = append(paths, e.Path)
	}
	assert.ElementsMatch(t, []string{"ticker", "period", "mode"}, paths)

	single := &ParseError{Path: "period", Message: "greater than maximum 100"}
	assert.Equal(t, "period: greater than maximum 100", single.Error())
	assert.Equal(t, "invalid JSON", (&ParseError{Message: "invalid JSON"}).Error())
}

func TestJSONSchema_RoundTrip(t *testing.T) {
	schema := tickerSchema()
	data := schema.MustJSON()

	parsed, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"ticker"}, parsed.Required)
	require.NotNil(t, parsed.AdditionalProperties)
	assert.False(t, *parsed.AdditionalProperties)

	// The parsed schema validates exactly like the original.
	assert.NoError(t, parsed.Validate(json.RawMessage(`{"ticker":"COMB"}`)))
	assert.Error(t, parsed.Validate(json.RawMessage(`{"ticker":"COMB","x":1}`)))
}
