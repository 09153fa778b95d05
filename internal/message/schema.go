package message

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Inbound message schemas, keyed by type. Types without an entry only need
// the envelope schema.
var requestSchemas = map[Type]string{
	TypeGetAnalysisResult: `{
		"type": "object",
		"required": ["type", "interactionId"],
		"properties": {
			"interactionId": {"type": "string", "minLength": 1}
		}
	}`,
	TypeTestAIService: `{
		"type": "object",
		"required": ["type"],
		"properties": {
			"url": {"type": "string"},
			"service": {"type": "string"},
			"testPrompts": {
				"type": "array",
				"maxItems": 50,
				"items": {"type": "string", "minLength": 1, "maxLength": 8192}
			}
		}
	}`,
}

const envelopeSchema = `{
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {"type": "string", "minLength": 1}
	}
}`

// Validator checks inbound messages. Schemas are compiled once.
type Validator struct {
	envelope *jsonschema.Schema
	byType   map[Type]*jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	env, err := compile("envelope.json", envelopeSchema)
	if err != nil {
		return nil, err
	}
	v := &Validator{envelope: env, byType: make(map[Type]*jsonschema.Schema, len(requestSchemas))}
	for typ, src := range requestSchemas {
		sch, err := compile(string(typ)+".json", src)
		if err != nil {
			return nil, err
		}
		v.byType[typ] = sch
	}
	return v, nil
}

// MustNewValidator panics if the built-in schemas fail to compile.
func MustNewValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks raw against the envelope schema and then the schema for
// its type. It returns the decoded type on success.
func (v *Validator) Validate(raw []byte) (Type, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("message is not valid JSON: %w", err)
	}
	if err := v.envelope.Validate(inst); err != nil {
		return "", fmt.Errorf("invalid message: %s", firstLine(err))
	}
	typ := Type(inst.(map[string]any)["type"].(string))
	if sch, ok := v.byType[typ]; ok {
		if err := sch.Validate(inst); err != nil {
			return typ, fmt.Errorf("invalid %s message: %s", typ, firstLine(err))
		}
	}
	return typ, nil
}

func compile(name, src string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	sch, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	return sch, nil
}

// firstLine trims jsonschema's multi-line error output to its summary.
func firstLine(err error) string {
	s := err.Error()
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
