// Package condition normalizes declarative attribute conditions into the
// triples consumed by the index selector and request builder. Parsing is
// pure: nothing here touches the wire.
package condition

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/dynaplan/dynaplan/pkg/errors"
)

// Operator is one of the closed condition vocabulary.
type Operator string

const (
	OpEq          Operator = "eq"
	OpNe          Operator = "ne"
	OpGt          Operator = "gt"
	OpLt          Operator = "lt"
	OpGte         Operator = "gte"
	OpLte         Operator = "lte"
	OpBetween     Operator = "between"
	OpBeginsWith  Operator = "begins_with"
	OpIn          Operator = "in"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpNull        Operator = "null"
	OpNotNull     Operator = "not_null"
)

// operators is the closed, case-sensitive vocabulary.
var operators = map[Operator]struct{}{
	OpEq: {}, OpNe: {}, OpGt: {}, OpLt: {}, OpGte: {}, OpLte: {},
	OpBetween: {}, OpBeginsWith: {}, OpIn: {}, OpContains: {},
	OpNotContains: {}, OpNull: {}, OpNotNull: {},
}

// keyOperators are the operators allowed in a key condition clause.
var keyOperators = map[Operator]struct{}{
	OpEq: {}, OpGt: {}, OpLt: {}, OpGte: {}, OpLte: {},
	OpBetween: {}, OpBeginsWith: {},
}

// Valid reports whether op belongs to the vocabulary.
func (o Operator) Valid() bool {
	_, ok := operators[o]
	return ok
}

// KeyCapable reports whether op may appear in a key condition.
func (o Operator) KeyCapable() bool {
	_, ok := keyOperators[o]
	return ok
}

// TakesValue reports whether op carries a value placeholder.
func (o Operator) TakesValue() bool {
	return o != OpNull && o != OpNotNull
}

// Condition is one normalized (attribute, operator, value) triple.
type Condition struct {
	Attribute string
	Operator  Operator
	Value     any
}

// Expr is a raw expression clause with its bound placeholder values, passed
// through to the request builder untouched.
type Expr struct {
	Statement string
	Values    map[string]any
}

// Parse normalizes a condition mapping. Keys are either bare attribute names
// (implying eq) or "attribute.operator" strings. Results are returned in a
// deterministic order so compiled requests are reproducible.
func Parse(conditions map[string]any) ([]Condition, error) {
	parsed := make([]Condition, 0, len(conditions))
	for key, value := range conditions {
		cond, err := parseOne(key, value)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, cond)
	}
	sortConditions(parsed)
	return parsed, nil
}

func parseOne(key string, value any) (Condition, error) {
	attribute, opName := key, string(OpEq)
	if i := strings.LastIndex(key, "."); i >= 0 {
		attribute, opName = key[:i], key[i+1:]
	}
	op := Operator(opName)
	if attribute == "" || !op.Valid() {
		return Condition{}, fmt.Errorf("%w: %q on attribute %q",
			errors.ErrUnsupportedOperator, opName, attribute)
	}
	cond := Condition{Attribute: attribute, Operator: op, Value: value}
	if err := validateValue(cond); err != nil {
		return Condition{}, err
	}
	return cond, nil
}

func validateValue(c Condition) error {
	switch c.Operator {
	case OpBetween:
		n, ok := sliceLen(c.Value)
		if !ok || n != 2 {
			return fmt.Errorf("%w: between on %s requires an ordered pair",
				errors.ErrInvalidCondition, c.Attribute)
		}
	case OpIn:
		n, ok := sliceLen(c.Value)
		if !ok || n == 0 {
			return fmt.Errorf("%w: in on %s requires a non-empty list",
				errors.ErrInvalidCondition, c.Attribute)
		}
	case OpNull, OpNotNull:
		if c.Value != nil {
			return fmt.Errorf("%w: %s on %s takes no value",
				errors.ErrInvalidCondition, c.Operator, c.Attribute)
		}
	}
	return nil
}

// Values returns the condition's value as a slice for multi-placeholder
// operators (between, in).
func (c Condition) Values() []any {
	v := reflect.ValueOf(c.Value)
	if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return []any{c.Value}
	}
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = v.Index(i).Interface()
	}
	return out
}

func sliceLen(value any) (int, bool) {
	v := reflect.ValueOf(value)
	if !v.IsValid() {
		return 0, false
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return 0, false
	}
	return v.Len(), true
}

// sortConditions orders by attribute then operator. Map iteration order must
// not leak into compiled requests.
func sortConditions(conds []Condition) {
	sort.Slice(conds, func(i, j int) bool {
		if conds[i].Attribute != conds[j].Attribute {
			return conds[i].Attribute < conds[j].Attribute
		}
		return conds[i].Operator < conds[j].Operator
	})
}

// FindEq returns the eq condition on the named attribute, if any.
func FindEq(conds []Condition, attribute string) (Condition, bool) {
	for _, c := range conds {
		if c.Attribute == attribute && c.Operator == OpEq {
			return c, true
		}
	}
	return Condition{}, false
}

// Find returns the first condition on the named attribute, if any.
func Find(conds []Condition, attribute string) (Condition, bool) {
	for _, c := range conds {
		if c.Attribute == attribute {
			return c, true
		}
	}
	return Condition{}, false
}
