package requirement

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/talent-screener/internal/condition"
)

// SkillParser turns a job's skill expression into a condition.
type SkillParser interface {
	Parse(raw any) (condition.Condition, error)
}

// ErrSkillExpression matches every skill expression parse failure.
var ErrSkillExpression = errors.New("invalid skill expression")

// SkillParseError points at the node of the expression that could not be parsed.
type SkillParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *SkillParseError) Error() string {
	msg := fmt.Sprintf("%s at %s: %s", ErrSkillExpression, e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SkillParseError) Is(target error) bool { return target == ErrSkillExpression }

func (e *SkillParseError) Unwrap() error { return e.Err }

// BoolObjectParser reads the boolean tree the job editor saves in boolObj.
//
// A node is either a group:
//
//	{"operator": "and", "conditions": [...]}
//
// or a leaf with keywords or numeric bounds:
//
//	{"key": "skills", "keywords": ["go", "golang"]}
//	{"key": "experienceYears", "gte": 3}
//
// A top-level list is read as an AND of its elements. A string is decoded as JSON first.
type BoolObjectParser struct{}

type boolNode struct {
	Operator         string     `mapstructure:"operator"`
	Conditions       []boolNode `mapstructure:"conditions"`
	Key              string     `mapstructure:"key"`
	Keywords         []string   `mapstructure:"keywords"`
	condition.Bounds `mapstructure:",squash"`
}

func (BoolObjectParser) Parse(raw any) (condition.Condition, error) {
	if s, ok := raw.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, &SkillParseError{Path: "$", Reason: "not valid json", Err: err}
		}
		raw = decoded
	}

	if list, ok := raw.([]any); ok {
		raw = map[string]any{"operator": "and", "conditions": list}
	}

	var root boolNode
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &root,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create skill decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, &SkillParseError{Path: "$", Reason: "unexpected shape", Err: err}
	}

	return root.build("$")
}

func (n boolNode) build(path string) (condition.Condition, error) {
	if n.Operator != "" {
		return n.group(path)
	}

	key := strings.TrimSpace(n.Key)
	if key == "" {
		return nil, &SkillParseError{Path: path, Reason: "node has neither operator nor key"}
	}
	if len(n.Keywords) > 0 {
		kw := condition.NewKeyword(key, n.Keywords...)
		if len(kw.Values()) == 0 {
			return nil, &SkillParseError{Path: path, Reason: "keywords are blank"}
		}
		return kw, nil
	}
	if !n.Bounds.Empty() {
		return condition.NewRange(key, n.Bounds), nil
	}
	return nil, &SkillParseError{Path: path, Reason: fmt.Sprintf("key %q has no keywords or bounds", key)}
}

func (n boolNode) group(path string) (condition.Condition, error) {
	op, ok := parseOperator(n.Operator)
	if !ok {
		return nil, &SkillParseError{Path: path, Reason: fmt.Sprintf("unknown operator %q", n.Operator)}
	}

	children := make([]condition.Condition, 0, len(n.Conditions))
	for i, child := range n.Conditions {
		c, err := child.build(fmt.Sprintf("%s.conditions[%d]", path, i))
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}

	// must_not over several clauses excludes any of them.
	if op == condition.NOT && len(children) > 1 {
		return condition.Not(condition.Or(children...)), nil
	}

	g, err := condition.NewGroup(op, children...)
	if err != nil {
		return nil, &SkillParseError{Path: path, Reason: "bad group", Err: err}
	}
	return g, nil
}

func parseOperator(raw string) (condition.Operator, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "and", "must":
		return condition.AND, true
	case "or", "should":
		return condition.OR, true
	case "not", "must_not":
		return condition.NOT, true
	default:
		return "", false
	}
}
