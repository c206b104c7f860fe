package condition

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// LogicOperator defines how the members of a Trigger are combined.
type LogicOperator string

const (
	AND LogicOperator = "AND"
	OR  LogicOperator = "OR"
	NOT LogicOperator = "NOT"
)

// Op is a comparison applied by a structured Condition.
type Op string

const (
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpEq       Op = "eq"
	OpNeq      Op = "neq"
	OpIn       Op = "in"       // field value is one of Value (a list)
	OpContains Op = "contains" // field is a list containing Value
	OpExists   Op = "exists"
)

var opSymbols = map[Op]string{
	OpLt:  "<",
	OpLte: "<=",
	OpGt:  ">",
	OpGte: ">=",
	OpEq:  "==",
	OpNeq: "!=",
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Condition is one leaf of a Trigger.
// Either Expression (raw CEL over `input`) or Field/Op/Value is set.
type Condition struct {
	Field      string `json:"field,omitempty" yaml:"field,omitempty"`
	Op         Op     `json:"op,omitempty" yaml:"op,omitempty"`
	Value      any    `json:"value,omitempty" yaml:"value,omitempty"`
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// Trigger is a recursive logic tree over trip context fields.
type Trigger struct {
	Logic      LogicOperator `json:"logic,omitempty" yaml:"logic,omitempty"`
	Conditions []Condition   `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Children   []Trigger     `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsEmpty reports whether the trigger has no members at any depth.
func (t Trigger) IsEmpty() bool {
	if len(t.Conditions) > 0 {
		return false
	}
	for _, c := range t.Children {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// String renders the trigger in a readable infix form, used as a trigger reason.
func (t Trigger) String() string {
	parts := make([]string, 0, len(t.Conditions)+len(t.Children))
	for _, c := range t.Conditions {
		parts = append(parts, c.String())
	}
	for _, child := range t.Children {
		parts = append(parts, "("+child.String()+")")
	}
	switch t.logic() {
	case NOT:
		return "NOT (" + strings.Join(parts, " AND ") + ")"
	case OR:
		return strings.Join(parts, " OR ")
	default:
		return strings.Join(parts, " AND ")
	}
}

func (t Trigger) logic() LogicOperator {
	if t.Logic == "" {
		return AND
	}
	return LogicOperator(strings.ToUpper(string(t.Logic)))
}

// String renders a single condition for humans.
func (c Condition) String() string {
	if c.Expression != "" {
		return c.Expression
	}
	switch c.Op {
	case OpExists:
		return c.Field + " exists"
	case OpIn:
		return fmt.Sprintf("%s in %v", c.Field, c.Value)
	case OpContains:
		return fmt.Sprintf("%s contains %v", c.Field, c.Value)
	}
	if sym, ok := opSymbols[c.Op]; ok {
		return fmt.Sprintf("%s %s %v", c.Field, sym, c.Value)
	}
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
}

// CEL returns the CEL source evaluated for this condition.
//
// Structured conditions are guarded with has() so an absent field fails
// every comparison instead of raising a "no such key" error. The exception is
// eq/neq against a boolean literal, where an absent field reads as false.
func (c Condition) CEL() (string, error) {
	if c.Expression != "" {
		if c.Field != "" || c.Op != "" {
			return "", fmt.Errorf("condition sets both expression and field %q", c.Field)
		}
		return c.Expression, nil
	}
	if !fieldPattern.MatchString(c.Field) {
		return "", fmt.Errorf("invalid condition field %q", c.Field)
	}
	ref := "input." + c.Field
	guard := "has(" + ref + ")"

	switch c.Op {
	case OpExists:
		return guard, nil
	case OpLt, OpLte, OpGt, OpGte:
		n, ok := toFloat(c.Value)
		if !ok {
			return "", fmt.Errorf("condition %s %s: value %v is not numeric", c.Field, c.Op, c.Value)
		}
		return fmt.Sprintf("%s && double(%s) %s %s", guard, ref, opSymbols[c.Op], formatDouble(n)), nil
	case OpEq, OpNeq:
		lit, numeric, err := literal(c.Value)
		if err != nil {
			return "", fmt.Errorf("condition %s %s: %w", c.Field, c.Op, err)
		}
		if _, isBool := c.Value.(bool); isBool {
			return fmt.Sprintf("(%s ? %s : false) %s %s", guard, ref, opSymbols[c.Op], lit), nil
		}
		lhs := ref
		if numeric {
			lhs = "double(" + ref + ")"
		}
		return fmt.Sprintf("%s && %s %s %s", guard, lhs, opSymbols[c.Op], lit), nil
	case OpIn:
		items, ok := c.Value.([]any)
		if !ok {
			if ss, isStrings := c.Value.([]string); isStrings {
				for _, s := range ss {
					items = append(items, s)
				}
				ok = true
			}
		}
		if !ok || len(items) == 0 {
			return "", fmt.Errorf("condition %s in: value must be a non-empty list", c.Field)
		}
		lits := make([]string, 0, len(items))
		for _, it := range items {
			lit, _, err := literal(it)
			if err != nil {
				return "", fmt.Errorf("condition %s in: %w", c.Field, err)
			}
			lits = append(lits, lit)
		}
		return fmt.Sprintf("%s && %s in [%s]", guard, ref, strings.Join(lits, ", ")), nil
	case OpContains:
		lit, _, err := literal(c.Value)
		if err != nil {
			return "", fmt.Errorf("condition %s contains: %w", c.Field, err)
		}
		return fmt.Sprintf("%s && %s in %s", guard, lit, ref), nil
	default:
		return "", fmt.Errorf("condition %s: unknown op %q", c.Field, c.Op)
	}
}

// Fields lists the context fields referenced by structured conditions, sorted.
func (t Trigger) Fields() []string {
	seen := map[string]struct{}{}
	var walk func(Trigger)
	walk = func(tr Trigger) {
		for _, c := range tr.Conditions {
			if c.Field != "" {
				seen[c.Field] = struct{}{}
			}
		}
		for _, child := range tr.Children {
			walk(child)
		}
	}
	walk(t)
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func literal(v any) (string, bool, error) {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x), false, nil
	case bool:
		return strconv.FormatBool(x), false, nil
	case nil:
		return "", false, fmt.Errorf("missing value")
	}
	if n, ok := toFloat(v); ok {
		return formatDouble(n), true, nil
	}
	return "", false, fmt.Errorf("unsupported value type %T", v)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// formatDouble always produces a CEL double literal ("100" would parse as int).
func formatDouble(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "0.0"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
