// Package condition evaluates capability pack triggers against a trip
// context rendered as a CEL activation.
package condition

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Evaluator compiles and evaluates trigger conditions.
// It is safe for concurrent use; compiled programs are cached by source.
type Evaluator struct {
	env      *cel.Env
	prgCache map[string]cel.Program
	mu       sync.RWMutex
}

// NewEvaluator creates an evaluator exposing a single `input` map.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return &Evaluator{
		env:      env,
		prgCache: make(map[string]cel.Program),
	}, nil
}

// Compile checks that every condition in the trigger compiles.
// Packs call this once at load time so malformed rules never reach evaluation.
func (e *Evaluator) Compile(t Trigger) error {
	switch t.logic() {
	case AND, OR, NOT:
	default:
		return fmt.Errorf("unknown logic operator: %s", t.Logic)
	}
	for i, c := range t.Conditions {
		src, err := c.CEL()
		if err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
		if _, err := e.program(src); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	for i, child := range t.Children {
		if err := e.Compile(child); err != nil {
			return fmt.Errorf("child %d: %w", i, err)
		}
	}
	return nil
}

// Evaluate reports whether the trigger holds for the given input.
// An empty trigger holds. Evaluation short-circuits in member order.
func (e *Evaluator) Evaluate(t Trigger, input map[string]any) (bool, error) {
	if len(t.Conditions) == 0 && len(t.Children) == 0 {
		return true, nil
	}
	activation := map[string]any{"input": input}

	logic := t.logic()
	// NOT negates the conjunction of its members.
	stopOn := false
	if logic == OR {
		stopOn = true
	}

	for _, c := range t.Conditions {
		v, err := e.evalCondition(c, activation)
		if err != nil {
			return false, err
		}
		if v == stopOn {
			return finish(logic, v), nil
		}
	}
	for _, child := range t.Children {
		v, err := e.Evaluate(child, input)
		if err != nil {
			return false, err
		}
		if v == stopOn {
			return finish(logic, v), nil
		}
	}
	return finish(logic, !stopOn), nil
}

func finish(logic LogicOperator, combined bool) bool {
	if logic == NOT {
		return !combined
	}
	return combined
}

func (e *Evaluator) evalCondition(c Condition, activation map[string]any) (bool, error) {
	src, err := c.CEL()
	if err != nil {
		return false, err
	}
	prg, err := e.program(src)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("CEL eval error in %q: %w", src, err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool", src)
	}
	return val, nil
}

func (e *Evaluator) program(expression string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expression]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.prgCache[expression]; hit {
		return prg, nil
	}
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("CEL expression %q must return bool, got %s", expression, ast.OutputType())
	}
	p, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("CEL program error: %w", err)
	}
	e.prgCache[expression] = p
	return p, nil
}
