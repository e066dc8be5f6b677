package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain object", `{"a": 1}`, `{"a": 1}`},
		{"code fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose around", "Here is the result:\n{\"a\": 1}\nHope this helps.", `{"a": 1}`},
		{"array", `[{"a": 1}]`, `[{"a": 1}]`},
		{"double encoded", `"{\"a\": 1}"`, `{"a": 1}`},
		{"trailing comma", `{"a": 1, "b": [1, 2,],}`, `{"a": 1, "b": [1, 2]}`},
		{"duplicate brace", `{{"a": 1}`, `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSON(tt.input)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestParseJSON_Rejects(t *testing.T) {
	for _, input := range []string{"", "   ", `"just a string"`, "42"} {
		_, err := ParseJSON(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestSchemaFor(t *testing.T) {
	s := SchemaFor(&titleOutput{})
	assert.Contains(t, s, `"title"`)
	assert.Contains(t, s, `"year"`)
	assert.Contains(t, s, `"additionalProperties":false`)
	assert.Equal(t, s, SchemaFor(titleOutput{}))
	assert.Equal(t, "", SchemaFor(nil))
}

func TestRuneTruncator(t *testing.T) {
	tr := RuneTruncator{}
	assert.Equal(t, "short", tr.Truncate("short", 10))
	assert.Equal(t, "abcd", tr.Truncate("abcdefgh", 1))
	assert.Equal(t, "abcdefgh", tr.Truncate("abcdefgh", 0))
	assert.Equal(t, "été!", tr.Truncate("été!été!", 1))
}
