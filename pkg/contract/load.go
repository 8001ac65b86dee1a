package contract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// contractSchema is the structural contract for the catalog file itself.
// Shape-specific parameter checks happen later; this schema pins the
// envelope so decode errors surface with a stable message.
const contractSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "rules"],
  "properties": {
    "version": {"type": "string"},
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "priority", "description", "evaluator"],
        "properties": {
          "id": {"type": "string"},
          "priority": {"type": "string"},
          "category": {"type": "string"},
          "description": {"type": "string"},
          "regulatory_refs": {"type": "array", "items": {"type": "string"}},
          "evaluator": {
            "type": "object",
            "required": ["shape", "predicate"],
            "properties": {
              "shape": {"type": "string"},
              "params": {"type": "object"},
              "predicate": {"type": "string"}
            }
          },
          "skip": {"type": "boolean"},
          "skip_reason": {"type": "string"}
        }
      }
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource("contract.schema.json", strings.NewReader(contractSchema)); err != nil {
		panic(err)
	}
	return c.MustCompile("contract.schema.json")
}

var yamlErrLine = regexp.MustCompile(`line (\d+):`)

// Load parses and integrity-checks a rule contract. knownShapes is the
// set of evaluator shapes the imperative backend can bind; pass the
// registry's shape names so unknown bindings fail here instead of at
// evaluation time. Returns *ParseError for malformed input and
// *IntegrityError for catalog invariant violations.
func Load(raw []byte, knownShapes []string) (*RuleSet, error) {
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		pe := &ParseError{Msg: err.Error()}
		if m := yamlErrLine.FindStringSubmatch(err.Error()); m != nil {
			pe.Line, _ = strconv.Atoi(m[1])
		}
		return nil, pe
	}
	if err := compiledSchema.Validate(normalizeForSchema(generic)); err != nil {
		return nil, &ParseError{Msg: fmt.Sprintf("contract does not match schema: %v", err)}
	}

	var rs RuleSet
	if err := yaml.Unmarshal(raw, &rs); err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}

	var shapes map[string]bool
	if knownShapes != nil {
		shapes = make(map[string]bool, len(knownShapes))
		for _, s := range knownShapes {
			shapes[s] = true
		}
	}
	if err := rs.checkIntegrity(shapes); err != nil {
		return nil, err
	}
	rs.index()
	return &rs, nil
}

// normalizeForSchema rewrites yaml.v3 generic output into the value
// shapes the jsonschema validator expects (string-keyed maps all the
// way down).
func normalizeForSchema(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeForSchema(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeForSchema(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeForSchema(val)
		}
		return out
	default:
		return v
	}
}
