package runtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var schemaPrinter = message.NewPrinter(language.English)

// ArgsSchema is a compiled tool parameter schema. The zero value accepts
// any arguments.
type ArgsSchema struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles the JSON schema document of the tool called name.
// An empty document yields a schema that accepts anything.
func CompileSchema(name string, doc json.RawMessage) (*ArgsSchema, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return &ArgsSchema{}, nil
	}
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	loc := "https://bookbot.local/tools/" + url.PathEscape(name) + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(loc, parsed); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	s, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &ArgsSchema{schema: s}, nil
}

// Validate checks args against the schema. Empty args are treated as an
// empty object.
func (s *ArgsSchema) Validate(args json.RawMessage) error {
	if s == nil || s.schema == nil {
		return nil
	}
	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(args))
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := s.schema.Validate(inst); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		var problems []string
		leafProblems(ve, &problems)
		return fmt.Errorf("invalid arguments: %s", strings.Join(problems, "; "))
	}
	return nil
}

// leafProblems flattens a validation error tree into one line per failed
// keyword, each prefixed with the JSON pointer of the offending value.
func leafProblems(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		ptr := "/" + strings.Join(ve.InstanceLocation, "/")
		*out = append(*out, fmt.Sprintf("at '%s': %s", ptr, ve.ErrorKind.LocalizedString(schemaPrinter)))
		return
	}
	for _, c := range ve.Causes {
		leafProblems(c, out)
	}
}
