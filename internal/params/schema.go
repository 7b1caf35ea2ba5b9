package params

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed params.yaml
var defaultSource []byte

// Type is the declared primitive type of a parameter.
type Type string

const (
	TypeFloat  Type = "float"
	TypeInt    Type = "int"
	TypeString Type = "str"
)

// Kind is the validation strategy applied to a parameter.
type Kind string

const (
	KindRange       Kind = "range"
	KindChoice      Kind = "choice"
	KindNearest     Kind = "nearest"
	KindFlag        Kind = "flag"
	KindGreaterThan Kind = "greater_than"
	KindNoCheck     Kind = "no_check"
)

// Range is an inclusive [Min, Max] bound.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Definition describes one recognized parameter.
//
// Bound depends on Kind: Range for range, []any (values of the declared type)
// for choice and flag, []float64 in ascending order for nearest, float64 for
// greater_than and nil for no_check. A nil Default means the parameter is unset
// until a caller supplies it.
type Definition struct {
	Name        string `json:"name"`
	Default     any    `json:"default"`
	Type        Type   `json:"type"`
	Kind        Kind   `json:"kind"`
	Bound       any    `json:"bound"`
	Description string `json:"description"`
}

// HasDefault reports whether the definition carries a concrete default.
func (d *Definition) HasDefault() bool {
	return d.Default != nil
}

// Schema is the immutable catalog of parameter definitions. It is safe for
// concurrent use by any number of stores.
type Schema struct {
	names []string
	defs  map[string]*Definition
}

var (
	defaultOnce   sync.Once
	defaultSchema *Schema
	defaultErr    error
)

// Default returns the schema built from the embedded parameter source. It is
// loaded on first use and shared afterwards.
func Default() (*Schema, error) {
	defaultOnce.Do(func() {
		defaultSchema, defaultErr = Load(bytes.NewReader(defaultSource))
	})
	return defaultSchema, defaultErr
}

// MustDefault is like Default but panics if the embedded source is broken.
func MustDefault() *Schema {
	s, err := Default()
	if err != nil {
		panic(err)
	}
	return s
}

// LoadFile reads a schema from a YAML file on disk.
func LoadFile(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SchemaLoadError{Reason: err.Error()}
	}
	defer f.Close()
	return Load(f)
}

// Load parses a YAML mapping of name -> [default, type, kind, bound, description].
// Declaration order is preserved.
func Load(r io.Reader) (*Schema, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &SchemaLoadError{Reason: "empty source"}
		}
		return nil, &SchemaLoadError{Reason: err.Error()}
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, &SchemaLoadError{Reason: "top level must be a mapping of parameter names"}
	}

	s := &Schema{defs: make(map[string]*Definition, len(root.Content)/2)}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		if name == "" {
			return nil, &SchemaLoadError{Reason: fmt.Sprintf("empty parameter name at line %d", root.Content[i].Line)}
		}
		if _, dup := s.defs[name]; dup {
			return nil, &SchemaLoadError{Param: name, Reason: "declared more than once"}
		}

		def, err := parseDefinition(name, root.Content[i+1])
		if err != nil {
			return nil, err
		}
		s.names = append(s.names, name)
		s.defs[name] = def
	}

	if len(s.names) == 0 {
		return nil, &SchemaLoadError{Reason: "no parameters declared"}
	}
	return s, nil
}

func parseDefinition(name string, node *yaml.Node) (*Definition, error) {
	fail := func(format string, args ...any) error {
		return &SchemaLoadError{Param: name, Reason: fmt.Sprintf(format, args...)}
	}

	if node.Kind != yaml.SequenceNode {
		return nil, fail("entry must be a sequence [default, type, kind, bound, description]")
	}
	if len(node.Content) != 5 {
		return nil, fail("entry has %d fields, want 5", len(node.Content))
	}

	var (
		rawDefault any
		rawBound   any
	)
	if err := node.Content[0].Decode(&rawDefault); err != nil {
		return nil, fail("default: %v", err)
	}
	if err := node.Content[3].Decode(&rawBound); err != nil {
		return nil, fail("bound: %v", err)
	}

	typ, err := parseType(node.Content[1].Value)
	if err != nil {
		return nil, fail("%v", err)
	}
	kind := Kind(node.Content[2].Value)

	def := &Definition{
		Name:        name,
		Type:        typ,
		Kind:        kind,
		Description: node.Content[4].Value,
	}

	def.Bound, err = parseBound(typ, kind, rawBound)
	if err != nil {
		return nil, fail("%v", err)
	}

	if rawDefault != nil {
		v, err := Coerce(typ, rawDefault)
		if err != nil {
			return nil, fail("default %v is not a valid %s", rawDefault, typ)
		}
		res, err := Check(def, v)
		if err != nil {
			return nil, fail("default %v does not satisfy its constraint", rawDefault)
		}
		if res.Snapped {
			return nil, fail("default %v is not a member of the nearest set", rawDefault)
		}
		def.Default = res.Value
	}

	return def, nil
}

func parseType(s string) (Type, error) {
	switch s {
	case "float":
		return TypeFloat, nil
	case "int", "integer":
		return TypeInt, nil
	case "str", "string":
		return TypeString, nil
	default:
		return "", fmt.Errorf("unknown type %q", s)
	}
}

func parseBound(typ Type, kind Kind, raw any) (any, error) {
	switch kind {
	case KindRange:
		if typ == TypeString {
			return nil, errors.New("range requires a numeric type")
		}
		pair, ok := raw.([]any)
		if !ok || len(pair) != 2 {
			return nil, errors.New("range bound must be a [min, max] pair")
		}
		lo, err1 := toFloat(pair[0])
		hi, err2 := toFloat(pair[1])
		if err1 != nil || err2 != nil {
			return nil, errors.New("range bound must be numeric")
		}
		if lo > hi {
			return nil, fmt.Errorf("range bound [%v, %v] is not ordered", lo, hi)
		}
		return Range{Min: lo, Max: hi}, nil

	case KindChoice, KindFlag:
		items, ok := raw.([]any)
		if !ok || len(items) == 0 {
			return nil, fmt.Errorf("%s bound must be a non-empty list", kind)
		}
		allowed := make([]any, 0, len(items))
		for _, item := range items {
			v, err := Coerce(typ, item)
			if err != nil {
				return nil, fmt.Errorf("%s member %v is not a valid %s", kind, item, typ)
			}
			allowed = append(allowed, v)
		}
		return allowed, nil

	case KindNearest:
		if typ == TypeString {
			return nil, errors.New("nearest requires a numeric type")
		}
		items, ok := raw.([]any)
		if !ok || len(items) == 0 {
			return nil, errors.New("nearest bound must be a non-empty list")
		}
		set := make([]float64, 0, len(items))
		for i, item := range items {
			f, err := toFloat(item)
			if err != nil {
				return nil, fmt.Errorf("nearest member %v is not numeric", item)
			}
			if i > 0 && f <= set[i-1] {
				return nil, errors.New("nearest bound must be in strictly ascending order")
			}
			set = append(set, f)
		}
		return set, nil

	case KindGreaterThan:
		if typ == TypeString {
			return nil, errors.New("greater_than requires a numeric type")
		}
		f, err := toFloat(raw)
		if err != nil {
			return nil, errors.New("greater_than bound must be a number")
		}
		return f, nil

	case KindNoCheck:
		if raw != nil {
			return nil, errors.New("no_check takes no bound")
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown constraint kind %q", kind)
	}
}

// DefinitionFor returns the definition of name.
func (s *Schema) DefinitionFor(name string) (*Definition, error) {
	def, ok := s.defs[name]
	if !ok {
		return nil, &UnknownParameterError{Name: name}
	}
	return def, nil
}

// Has reports whether name is part of the catalog.
func (s *Schema) Has(name string) bool {
	_, ok := s.defs[name]
	return ok
}

// Names returns all parameter names in declaration order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of parameters.
func (s *Schema) Len() int {
	return len(s.names)
}

// Definitions returns copies of all definitions in declaration order.
func (s *Schema) Definitions() []Definition {
	out := make([]Definition, 0, len(s.names))
	for _, name := range s.names {
		d := *s.defs[name]
		d.Bound = cloneBound(d.Bound)
		out = append(out, d)
	}
	return out
}
