package document

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// yamlErrLine extracts "line N:" positions out of yaml.v3 error strings.
// The library reports positions in its messages but not structurally.
var yamlErrLine = regexp.MustCompile(`line (\d+):`)

// Parse decodes raw bytes into a Document. Malformed syntax yields a
// *ParseError carrying line and column where known.
func Parse(raw []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		pe := &ParseError{Msg: err.Error()}
		if m := yamlErrLine.FindStringSubmatch(err.Error()); m != nil {
			pe.Line, _ = strconv.Atoi(m[1])
		}
		return nil, pe
	}

	if root.Kind == 0 || len(root.Content) == 0 {
		// Empty input parses to an explicit empty document.
		return &Document{Root: &Node{Kind: KindMissing, Explicit: true}}, nil
	}

	node, err := convert(root.Content[0])
	if err != nil {
		return nil, err
	}
	return &Document{Root: node}, nil
}

func convert(y *yaml.Node) (*Node, error) {
	switch y.Kind {
	case yaml.ScalarNode:
		return convertScalar(y)
	case yaml.SequenceNode:
		n := &Node{Kind: KindList, Line: y.Line, Column: y.Column, Items: make([]*Node, 0, len(y.Content))}
		for _, item := range y.Content {
			child, err := convert(item)
			if err != nil {
				return nil, err
			}
			n.Items = append(n.Items, child)
		}
		return n, nil
	case yaml.MappingNode:
		n := &Node{Kind: KindMapping, Line: y.Line, Column: y.Column, Fields: make([]Field, 0, len(y.Content)/2)}
		seen := make(map[string]int, len(y.Content)/2)
		for i := 0; i+1 < len(y.Content); i += 2 {
			key := y.Content[i]
			if key.Kind != yaml.ScalarNode {
				return nil, &ParseError{Line: key.Line, Column: key.Column, Msg: "mapping key must be a scalar"}
			}
			value, err := convert(y.Content[i+1])
			if err != nil {
				return nil, err
			}
			// Duplicate keys collapse last-wins, keeping the first
			// occurrence's position so key order stays stable.
			if at, ok := seen[key.Value]; ok {
				n.Fields[at].Value = value
				continue
			}
			seen[key.Value] = len(n.Fields)
			n.Fields = append(n.Fields, Field{Key: key.Value, Value: value})
		}
		return n, nil
	case yaml.AliasNode:
		return convert(y.Alias)
	default:
		return nil, &ParseError{Line: y.Line, Column: y.Column, Msg: fmt.Sprintf("unsupported node kind %d", y.Kind)}
	}
}

func convertScalar(y *yaml.Node) (*Node, error) {
	switch y.Tag {
	case "!!null":
		return &Node{Kind: KindMissing, Explicit: true, Line: y.Line, Column: y.Column}, nil
	case "!!bool":
		b, err := strconv.ParseBool(strings.ToLower(y.Value))
		if err != nil {
			return nil, &ParseError{Line: y.Line, Column: y.Column, Msg: "invalid bool: " + y.Value}
		}
		return &Node{Kind: KindBool, Bool: b, Line: y.Line, Column: y.Column}, nil
	case "!!int", "!!float":
		f, err := strconv.ParseFloat(y.Value, 64)
		if err != nil {
			return nil, &ParseError{Line: y.Line, Column: y.Column, Msg: "invalid number: " + y.Value}
		}
		return &Node{Kind: KindNumber, Num: f, Line: y.Line, Column: y.Column}, nil
	default:
		return &Node{Kind: KindString, Str: y.Value, Line: y.Line, Column: y.Column}, nil
	}
}

// Serialize renders the tree back to YAML. Explicit Missing nodes render
// as null, so Parse(Serialize(d)) reproduces an equivalent tree.
func (d *Document) Serialize() ([]byte, error) {
	if d == nil || d.Root == nil {
		return nil, fmt.Errorf("nil document")
	}
	y, err := toYAML(d.Root)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(y)
}

func toYAML(n *Node) (*yaml.Node, error) {
	switch n.Kind {
	case KindMissing:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.Str}, nil
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(n.Bool)}, nil
	case KindNumber:
		v := strconv.FormatFloat(n.Num, 'g', -1, 64)
		tag := "!!float"
		if n.Num == float64(int64(n.Num)) && !strings.ContainsAny(v, "eE.") {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v}, nil
	case KindList:
		y := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range n.Items {
			child, err := toYAML(item)
			if err != nil {
				return nil, err
			}
			y.Content = append(y.Content, child)
		}
		return y, nil
	case KindMapping:
		y := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, f := range n.Fields {
			child, err := toYAML(f.Value)
			if err != nil {
				return nil, err
			}
			y.Content = append(y.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Key},
				child)
		}
		return y, nil
	}
	return nil, fmt.Errorf("unknown node kind %d", n.Kind)
}
