package shape

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

const codeSchema = `{
  "type": "object",
  "required": ["summary", "concept", "codeOutputs"],
  "properties": {
    "summary": {"type": "string"},
    "concept": {"$ref": "#/$defs/concept"},
    "learningObjectives": {"type": "array", "items": {"type": "string"}},
    "interactivityNotes": {"type": "string"},
    "codeOutputs": {"type": "object", "additionalProperties": {"type": "string"}}
  },
  "$defs": {
    "concept": {
      "type": "object",
      "required": ["name", "principles"],
      "properties": {
        "name": {"type": "string"},
        "principles": {"type": "array", "items": {"type": "string"}}
      }
    }
  }
}`

// imageSchema relaxes codeSchema: a concept is inferred when absent.
const imageSchema = `{
  "type": "object",
  "required": ["summary", "codeOutputs"],
  "properties": {
    "summary": {"type": "string"},
    "concept": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string"},
        "principles": {"type": "array", "items": {"type": "string"}}
      }
    },
    "learningObjectives": {"type": "array", "items": {"type": "string"}},
    "interactivityNotes": {"type": "string"},
    "codeOutputs": {"type": "object", "additionalProperties": {"type": "string"}}
  }
}`

const mcqSetSchema = `{
  "type": "object",
  "required": ["questions"],
  "properties": {
    "questions": {"type": "array"}
  }
}`

const mcqItemSchema = `{
  "type": "object",
  "required": ["question", "options", "correctAnswer"],
  "properties": {
    "question": {"type": "string", "minLength": 1},
    "options": {"type": "array", "items": {"type": "string"}, "minItems": 4, "maxItems": 4},
    "correctAnswer": {"type": "integer", "minimum": 0, "maximum": 3},
    "explanation": {"type": "string"},
    "bloomsLevel": {"type": "string"},
    "relatedLearningObjective": {"type": "string"}
  }
}`

var schemaSources = map[string]string{
	"code":     codeSchema,
	"image":    imageSchema,
	"mcq":      mcqSetSchema,
	"mcq-item": mcqItemSchema,
}

// schemaCache caches compiled JSON schemas by name.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// compiled returns a cached compiled schema or compiles and caches it.
func compiled(name string) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	src, ok := schemaSources[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse schema %q: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	schemaURL := fmt.Sprintf("schema://vizlearn/%s.json", name)
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}

	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", name, err)
	}

	schemaCache.Store(name, sch)
	return sch, nil
}

// validate checks v against the named schema and converts any violation
// into an *Error listing the offending fields.
func validate(name string, v any) error {
	sch, err := compiled(name)
	if err != nil {
		return &Error{Detail: err.Error()}
	}

	err = sch.Validate(v)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return &Error{Mismatched: []string{"(root)"}, Detail: err.Error()}
	}

	var missing, mismatched []string
	collect(ve, &missing, &mismatched)
	return &Error{Missing: dedupe(missing), Mismatched: dedupe(mismatched)}
}

func collect(ve *jsonschema.ValidationError, missing, mismatched *[]string) {
	if len(ve.Causes) > 0 {
		for _, c := range ve.Causes {
			collect(c, missing, mismatched)
		}
		return
	}

	loc := strings.Join(ve.InstanceLocation, ".")
	if req, ok := ve.ErrorKind.(*kind.Required); ok {
		for _, m := range req.Missing {
			*missing = append(*missing, joinPath(loc, m))
		}
		return
	}
	if loc == "" {
		loc = "(root)"
	}
	*mismatched = append(*mismatched, loc)
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	sort.Strings(in)
	out := in[:1]
	for _, s := range in[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
