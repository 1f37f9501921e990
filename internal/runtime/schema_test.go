package runtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bookingSchema = `{
	"type": "object",
	"properties": {
		"appointment": {
			"type": "object",
			"properties": {
				"name": {"type": "string"},
				"date": {"type": "string"}
			},
			"required": ["name", "date"]
		},
		"guests": {"type": "array", "items": {"type": "integer", "minimum": 1, "maximum": 4}},
		"kind": {"type": "string", "enum": ["checkup", "cleaning"]}
	},
	"required": ["appointment"]
}`

func TestArgsSchemaValidate(t *testing.T) {
	schema, err := CompileSchema("book", json.RawMessage(bookingSchema))
	require.NoError(t, err)

	tests := []struct {
		name    string
		args    string
		wantErr []string
	}{
		{"valid", `{"appointment":{"name":"Jane","date":"2024-05-01"}}`, nil},
		{"valid with optional", `{"appointment":{"name":"Jane","date":"d"},"guests":[1,2],"kind":"checkup"}`, nil},
		{"unknown fields ignored", `{"appointment":{"name":"Jane","date":"d","extra":true}}`, nil},
		{"missing top level", `{}`, []string{"at '/'", "appointment"}},
		{"empty args", ``, []string{"at '/'", "appointment"}},
		{"missing nested", `{"appointment":{"name":"Jane"}}`, []string{"at '/appointment'", "date"}},
		{"wrong nested type", `{"appointment":{"name":5,"date":"d"}}`, []string{"at '/appointment/name'", "string"}},
		{"not an object", `[1]`, []string{"at '/'", "object"}},
		{"fractional integer", `{"appointment":{"name":"J","date":"d"},"guests":[1.5]}`, []string{"at '/guests/0'", "integer"}},
		{"below minimum", `{"appointment":{"name":"J","date":"d"},"guests":[0]}`, []string{"at '/guests/0'", "minimum"}},
		{"above maximum", `{"appointment":{"name":"J","date":"d"},"guests":[2,9]}`, []string{"at '/guests/1'", "maximum"}},
		{"not in enum", `{"appointment":{"name":"J","date":"d"},"kind":"surgery"}`, []string{"at '/kind'", "checkup"}},
		{"every problem reported", `{"appointment":{"name":5},"kind":"surgery"}`, []string{"'/appointment/name'", "'/kind'", "; "}},
		{"malformed json", `{"appointment":`, []string{"not valid JSON"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(json.RawMessage(tt.args))
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestArgsSchemaEmptyAcceptsAnything(t *testing.T) {
	schema, err := CompileSchema("free", nil)
	require.NoError(t, err)
	assert.NoError(t, schema.Validate(json.RawMessage(`{"anything":1}`)))

	var zero *ArgsSchema
	assert.NoError(t, zero.Validate(json.RawMessage(`[]`)))
}

func TestCompileSchemaRejectsBadDocuments(t *testing.T) {
	for name, doc := range map[string]string{
		"truncated":    `{"type":`,
		"unknown type": `{"type":"banana"}`,
		"bad minimum":  `{"type":"integer","minimum":"one"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := CompileSchema("bad", json.RawMessage(doc))
			assert.ErrorContains(t, err, "invalid schema")
		})
	}
}

func TestRegistryRejectsToolWithBadSchema(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&scriptedTool{name: "broken", params: `{"type":"banana"}`})
	assert.ErrorContains(t, err, `tool "broken"`)
	_, ok := r.Get("broken")
	assert.False(t, ok)
}

func TestRegistryValidate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&echoTool{}))

	assert.NoError(t, r.Validate("echo", json.RawMessage(`{"text":"hi"}`)))
	assert.ErrorContains(t, r.Validate("echo", json.RawMessage(`{"text":1}`)), "at '/text'")
	assert.ErrorContains(t, r.Validate("nope", nil), "unknown tool")
}
