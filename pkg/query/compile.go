package query

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynaplan/dynaplan/internal/expr"
	"github.com/dynaplan/dynaplan/pkg/condition"
	"github.com/dynaplan/dynaplan/pkg/core"
	"github.com/dynaplan/dynaplan/pkg/index"
	"github.com/dynaplan/dynaplan/pkg/schema"
)

// Compile plans a request: normalize the condition mapping, pick a key path,
// split key conditions from filter conditions and render the expressions.
// The result is pure data; nothing has touched the wire yet.
func Compile(tableSchema *schema.TableSchema, conditions map[string]any, codec core.AttributeCodec, opts Options) (*core.CompiledRequest, error) {
	conds, err := condition.Parse(conditions)
	if err != nil {
		return nil, err
	}

	decision, err := index.Select(tableSchema, conds, opts.Index)
	if err != nil {
		return nil, err
	}
	if decision.Scan {
		return compileScan(tableSchema, conds, codec, opts)
	}

	builder := expr.NewBuilder(codec.Dump)
	compiled := &core.CompiledRequest{
		Operation: core.OperationQuery,
		TableName: tableSchema.TableName,
		IndexName: decision.IndexName,
	}

	for _, c := range conds {
		if isKeyCondition(c, decision) {
			if err := builder.AddKeyCondition(c); err != nil {
				return nil, err
			}
			continue
		}
		if err := builder.AddFilterCondition(c); err != nil {
			return nil, err
		}
	}

	if err := finishCompile(compiled, builder, opts); err != nil {
		return nil, err
	}
	if opts.Descending {
		compiled.ScanIndexForward = aws.Bool(false)
	}
	return compiled, nil
}

// CompileScan plans a Scan without consulting the selector; every condition
// becomes a filter.
func CompileScan(tableSchema *schema.TableSchema, conditions map[string]any, codec core.AttributeCodec, opts Options) (*core.CompiledRequest, error) {
	conds, err := condition.Parse(conditions)
	if err != nil {
		return nil, err
	}
	return compileScan(tableSchema, conds, codec, opts)
}

func compileScan(tableSchema *schema.TableSchema, conds []condition.Condition, codec core.AttributeCodec, opts Options) (*core.CompiledRequest, error) {
	builder := expr.NewBuilder(codec.Dump)
	compiled := &core.CompiledRequest{
		Operation: core.OperationScan,
		TableName: tableSchema.TableName,
		IndexName: opts.Index,
	}

	for _, c := range conds {
		if err := builder.AddFilterCondition(c); err != nil {
			return nil, err
		}
	}

	if err := finishCompile(compiled, builder, opts); err != nil {
		return nil, err
	}
	compiled.Segment = opts.Segment
	compiled.TotalSegments = opts.TotalSegments
	return compiled, nil
}

// isKeyCondition reports whether the triple lands in the key condition
// clause: eq on the decided hash key, or a key-capable operator on the
// decided range key.
func isKeyCondition(c condition.Condition, decision index.Decision) bool {
	if c.Attribute == decision.HashKey && c.Operator == condition.OpEq {
		return true
	}
	if decision.RangeKey != "" && c.Attribute == decision.RangeKey {
		return c.Operator.KeyCapable()
	}
	return false
}

func finishCompile(compiled *core.CompiledRequest, builder *expr.Builder, opts Options) error {
	for _, raw := range opts.RawFilters {
		if err := builder.AddRawFilter(raw); err != nil {
			return err
		}
	}
	if len(opts.Projection) > 0 {
		builder.AddProjection(opts.Projection...)
	}

	components := builder.Build()
	compiled.KeyConditionExpression = components.KeyConditionExpression
	compiled.FilterExpression = components.FilterExpression
	compiled.ProjectionExpression = components.ProjectionExpression
	if len(components.ExpressionAttributeNames) > 0 {
		compiled.ExpressionAttributeNames = components.ExpressionAttributeNames
	}
	if len(components.ExpressionAttributeValues) > 0 {
		compiled.ExpressionAttributeValues = components.ExpressionAttributeValues
	}

	if opts.ConsistentRead {
		compiled.ConsistentRead = aws.Bool(true)
	}
	if opts.CountOnly {
		compiled.Select = string(types.SelectCount)
	}
	compiled.ExclusiveStartKey = opts.StartKey
	return nil
}
