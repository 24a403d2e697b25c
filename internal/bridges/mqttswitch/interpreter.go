package mqttswitch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

// FormatKind tags the payload interpreter variant.
type FormatKind int

const (
	// FormatIdentity compares the raw payload.
	FormatIdentity FormatKind = iota

	// FormatJSONField extracts one field from a JSON document.
	FormatJSONField

	// FormatExpr evaluates an expression against the payload.
	FormatExpr
)

var errTrailingData = errors.New("trailing data after JSON document")

// Scheme prefixes recognised in state_format.
const (
	schemeJSON = "json:"
	schemeExpr = "expr:"
)

func (k FormatKind) String() string {
	switch k {
	case FormatJSONField:
		return "json"
	case FormatExpr:
		return "expr"
	default:
		return "identity"
	}
}

// StateFormat is a parsed state_format descriptor.
type StateFormat struct {
	Kind FormatKind
	// Path holds the JSON field path segments for FormatJSONField.
	Path []string
	// Expression holds the source for FormatExpr.
	Expression string
	// Unknown is set when a non-empty descriptor named no known scheme and
	// fell back to identity.
	Unknown bool
}

// ParseStateFormat resolves a state_format string. Unrecognised
// descriptors fall back to identity with Unknown set.
func ParseStateFormat(s string) (StateFormat, error) {
	switch {
	case s == "":
		return StateFormat{Kind: FormatIdentity}, nil

	case strings.HasPrefix(s, schemeJSON):
		path := strings.TrimSpace(strings.TrimPrefix(s, schemeJSON))
		if path == "" {
			return StateFormat{}, fmt.Errorf("%w: empty json path", ErrInvalidStateFormat)
		}
		segments := strings.Split(path, ".")
		for _, seg := range segments {
			if seg == "" {
				return StateFormat{}, fmt.Errorf("%w: empty segment in json path %q", ErrInvalidStateFormat, path)
			}
		}
		return StateFormat{Kind: FormatJSONField, Path: segments}, nil

	case strings.HasPrefix(s, schemeExpr):
		code := strings.TrimSpace(strings.TrimPrefix(s, schemeExpr))
		if code == "" {
			return StateFormat{}, fmt.Errorf("%w: empty expression", ErrInvalidStateFormat)
		}
		return StateFormat{Kind: FormatExpr, Expression: code}, nil

	default:
		return StateFormat{Kind: FormatIdentity, Unknown: true}, nil
	}
}

// Interpreter maps a raw feedback payload to the comparison payload.
// ok is false when nothing could be extracted; the caller treats that like
// a payload matching neither canonical value.
type Interpreter func(payload []byte) (value string, ok bool)

// Compile turns the descriptor into an Interpreter. Expressions are
// compiled here, once.
func (f StateFormat) Compile() (Interpreter, error) {
	switch f.Kind {
	case FormatJSONField:
		return jsonFieldInterpreter(f.Path), nil
	case FormatExpr:
		return exprInterpreter(f.Expression)
	default:
		return identity, nil
	}
}

// NewInterpreter parses and compiles a state_format string in one step.
func NewInterpreter(stateFormat string) (Interpreter, StateFormat, error) {
	format, err := ParseStateFormat(stateFormat)
	if err != nil {
		return nil, StateFormat{}, err
	}
	interp, err := format.Compile()
	if err != nil {
		return nil, StateFormat{}, err
	}
	return interp, format, nil
}

func identity(payload []byte) (string, bool) {
	return string(payload), true
}

func jsonFieldInterpreter(path []string) Interpreter {
	return func(payload []byte) (string, bool) {
		doc, err := decodeJSON(payload, true)
		if err != nil {
			return "", false
		}

		current := doc
		for _, seg := range path {
			switch node := current.(type) {
			case map[string]any:
				next, ok := node[seg]
				if !ok {
					return "", false
				}
				current = next
			case []any:
				idx, err := strconv.Atoi(seg)
				if err != nil || idx < 0 || idx >= len(node) {
					return "", false
				}
				current = node[idx]
			default:
				return "", false
			}
		}

		return scalarString(current)
	}
}

func exprInterpreter(code string) (Interpreter, error) {
	program, err := expr.Compile(code, expr.Env(exprInput{}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStateFormat, err)
	}

	return func(payload []byte) (string, bool) {
		return runExpr(program, payload)
	}, nil
}

func runExpr(program *vm.Program, payload []byte) (string, bool) {
	// A payload that is not JSON is still available as "payload".
	// Numbers decode as float64 so expressions can compare them.
	value, _ := decodeJSON(payload, false) //nolint:errcheck // value stays nil

	out, err := expr.Run(program, exprInput{Payload: string(payload), Value: value})
	if err != nil {
		return "", false
	}
	return scalarString(out)
}

// exprInput is the environment visible to expr: state formats. "payload" is
// the raw body and "value" its decoded JSON (nil if not JSON).
type exprInput struct {
	Payload string `expr:"payload"`
	Value   any    `expr:"value"`
}

func decodeJSON(payload []byte, useNumber bool) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	if useNumber {
		dec.UseNumber()
	}

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	// Trailing data means the payload was not a single JSON document.
	if dec.More() {
		return nil, errTrailingData
	}
	return doc, nil
}

// scalarString renders a leaf value for comparison with payload_on/off.
// Objects, arrays and null never match.
func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return "", false
	}
}
