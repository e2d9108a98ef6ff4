// Package expr compiles condition triples into DynamoDB expression strings.
// Attribute names are never emitted literally: every name goes through a
// generated #nK placeholder, which sidesteps reserved words, punctuation and
// leading underscores in one move. Values become :vK placeholders after
// passing through the caller's dump function.
package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynaplan/dynaplan/pkg/condition"
	"github.com/dynaplan/dynaplan/pkg/errors"
)

// DumpFunc converts a caller value for an attribute into wire format.
type DumpFunc func(attribute string, value any) (types.AttributeValue, error)

// Components is the compiled expression output.
type Components struct {
	KeyConditionExpression    string
	FilterExpression          string
	ProjectionExpression      string
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue
}

// Builder accumulates key conditions, filter conditions, raw clauses and
// projections, then renders them. Placeholder numbering is positional, so
// the same sequence of calls always yields a structurally identical request.
type Builder struct {
	dump DumpFunc

	keyConditions    []string
	filterConditions []string
	projections      []string

	names  map[string]string
	values map[string]types.AttributeValue

	nameCounter  int
	valueCounter int
}

// NewBuilder creates a builder that dumps values through the given function.
func NewBuilder(dump DumpFunc) *Builder {
	return &Builder{
		dump:   dump,
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
}

// AddKeyCondition renders a condition into the key condition clause. Only
// key-capable operators are accepted here.
func (b *Builder) AddKeyCondition(c condition.Condition) error {
	if !c.Operator.KeyCapable() {
		return fmt.Errorf("%w: %s cannot appear in a key condition",
			errors.ErrUnsupportedOperator, c.Operator)
	}
	rendered, err := b.renderCondition(c)
	if err != nil {
		return err
	}
	b.keyConditions = append(b.keyConditions, rendered)
	return nil
}

// AddFilterCondition renders a condition into the filter clause.
func (b *Builder) AddFilterCondition(c condition.Condition) error {
	rendered, err := b.renderCondition(c)
	if err != nil {
		return err
	}
	b.filterConditions = append(b.filterConditions, rendered)
	return nil
}

// AddRawFilter appends a caller-written clause. Its ":name" placeholders are
// rebound to generated value placeholders; the clause text itself passes
// through untouched, except that a bare reserved word used as an attribute
// name is rejected up front instead of surfacing as a ValidationException
// on the wire.
func (b *Builder) AddRawFilter(raw condition.Expr) error {
	if err := validateRawStatement(raw.Statement); err != nil {
		return err
	}
	statement := raw.Statement
	names := make([]string, 0, len(raw.Values))
	for name := range raw.Values {
		names = append(names, name)
	}
	// Longer names first so ":start" is never clobbered by ":s".
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		placeholder := ":" + name
		if !strings.Contains(statement, placeholder) {
			continue
		}
		ref, err := b.addValue("", raw.Values[name])
		if err != nil {
			return err
		}
		statement = strings.ReplaceAll(statement, placeholder, ref)
	}
	b.filterConditions = append(b.filterConditions, statement)
	return nil
}

// AddProjection aliases the fields into the projection expression.
func (b *Builder) AddProjection(fields ...string) {
	for _, field := range fields {
		b.projections = append(b.projections, b.addName(field))
	}
}

// Build renders the accumulated clauses. Clauses of one kind are ANDed.
func (b *Builder) Build() Components {
	c := Components{
		ExpressionAttributeNames:  b.names,
		ExpressionAttributeValues: b.values,
	}
	if len(b.keyConditions) > 0 {
		c.KeyConditionExpression = strings.Join(b.keyConditions, " AND ")
	}
	if len(b.filterConditions) > 0 {
		c.FilterExpression = strings.Join(b.filterConditions, " AND ")
	}
	if len(b.projections) > 0 {
		c.ProjectionExpression = strings.Join(b.projections, ", ")
	}
	return c
}

func (b *Builder) renderCondition(c condition.Condition) (string, error) {
	nameRef := b.addName(c.Attribute)

	switch c.Operator {
	case condition.OpEq, condition.OpNe, condition.OpGt, condition.OpLt,
		condition.OpGte, condition.OpLte:
		valueRef, err := b.addValue(c.Attribute, c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", nameRef, comparator(c.Operator), valueRef), nil

	case condition.OpBetween:
		values := c.Values()
		if len(values) != 2 {
			return "", fmt.Errorf("%w: between on %s requires an ordered pair",
				errors.ErrInvalidCondition, c.Attribute)
		}
		low, err := b.addValue(c.Attribute, values[0])
		if err != nil {
			return "", err
		}
		high, err := b.addValue(c.Attribute, values[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", nameRef, low, high), nil

	case condition.OpIn:
		values := c.Values()
		refs := make([]string, 0, len(values))
		for _, v := range values {
			ref, err := b.addValue(c.Attribute, v)
			if err != nil {
				return "", err
			}
			refs = append(refs, ref)
		}
		return fmt.Sprintf("%s IN (%s)", nameRef, strings.Join(refs, ", ")), nil

	case condition.OpBeginsWith:
		valueRef, err := b.addValue(c.Attribute, c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("begins_with(%s, %s)", nameRef, valueRef), nil

	case condition.OpContains:
		valueRef, err := b.addValue(c.Attribute, c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("contains(%s, %s)", nameRef, valueRef), nil

	case condition.OpNotContains:
		valueRef, err := b.addValue(c.Attribute, c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT contains(%s, %s)", nameRef, valueRef), nil

	case condition.OpNull:
		return fmt.Sprintf("attribute_not_exists(%s)", nameRef), nil

	case condition.OpNotNull:
		return fmt.Sprintf("attribute_exists(%s)", nameRef), nil

	default:
		return "", fmt.Errorf("%w: %s", errors.ErrUnsupportedOperator, c.Operator)
	}
}

func comparator(op condition.Operator) string {
	switch op {
	case condition.OpEq:
		return "="
	case condition.OpNe:
		return "<>"
	case condition.OpGt:
		return ">"
	case condition.OpLt:
		return "<"
	case condition.OpGte:
		return ">="
	default:
		return "<="
	}
}

// validateRawStatement checks a raw clause for attribute names the service
// grammar would choke on. Placeholder references, function calls and the
// boolean connectives are left alone; anything else that collides with the
// reserved word list needs a #name alias from the caller.
func validateRawStatement(statement string) error {
	i := 0
	for i < len(statement) {
		c := statement[i]
		if c == '#' || c == ':' {
			i++
			for i < len(statement) && isWordByte(statement[i]) {
				i++
			}
			continue
		}
		if !isWordStart(c) {
			i++
			continue
		}
		start := i
		for i < len(statement) && isWordByte(statement[i]) {
			i++
		}
		word := statement[start:i]
		if i < len(statement) && statement[i] == '(' {
			// Function call, e.g. size(...) or begins_with(...).
			continue
		}
		switch strings.ToUpper(word) {
		case "AND", "OR", "NOT", "BETWEEN", "IN":
			continue
		}
		if IsReservedWord(word) {
			return fmt.Errorf("%w: %q is a reserved word, alias it with a #name placeholder",
				errors.ErrInvalidCondition, word)
		}
	}
	return nil
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isWordByte(c byte) bool {
	return isWordStart(c) || (c >= '0' && c <= '9')
}

// addName aliases an attribute name, reusing the placeholder when the same
// name appears in several clauses.
func (b *Builder) addName(name string) string {
	for placeholder, existing := range b.names {
		if existing == name {
			return placeholder
		}
	}
	b.nameCounter++
	placeholder := fmt.Sprintf("#n%d", b.nameCounter)
	b.names[placeholder] = name
	return placeholder
}

// addValue dumps a value and binds it to a fresh placeholder. Values are
// never shared between placeholders; the wire request stays unambiguous even
// when two conditions carry equal values.
func (b *Builder) addValue(attribute string, value any) (string, error) {
	av, err := b.dump(attribute, value)
	if err != nil {
		return "", fmt.Errorf("dump %s: %w", attribute, err)
	}
	b.valueCounter++
	placeholder := fmt.Sprintf(":v%d", b.valueCounter)
	b.values[placeholder] = av
	return placeholder, nil
}
