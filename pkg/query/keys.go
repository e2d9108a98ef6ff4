package query

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/dynaplan/dynaplan/pkg/core"
	"github.com/dynaplan/dynaplan/pkg/errors"
	"github.com/dynaplan/dynaplan/pkg/schema"
)

// BuildKey dumps hash and range values into a wire key for the table's
// primary key. A composite-key table addressed without its range value
// fails with ErrMissingRangeKey.
func BuildKey(tableSchema *schema.TableSchema, codec core.AttributeCodec, hashValue, rangeValue any) (core.Key, error) {
	if tableSchema.HasRangeKey() && rangeValue == nil {
		return nil, fmt.Errorf("%w: table %s requires %s", errors.ErrMissingRangeKey, tableSchema.TableName, tableSchema.RangeKey)
	}

	key := make(core.Key, 2)
	av, err := codec.Dump(tableSchema.HashKey, hashValue)
	if err != nil {
		return nil, err
	}
	key[tableSchema.HashKey] = av

	if tableSchema.HasRangeKey() {
		av, err := codec.Dump(tableSchema.RangeKey, rangeValue)
		if err != nil {
			return nil, err
		}
		key[tableSchema.RangeKey] = av
	}
	return key, nil
}

// Get performs a point read by primary key. A missing item returns
// ErrItemNotFound rather than a nil item.
func Get(ctx context.Context, client core.DynamoDBAPI, tableSchema *schema.TableSchema, codec core.AttributeCodec, hashValue, rangeValue any, opts ...Option) (core.Item, error) {
	o := BuildOptions(opts)

	key, err := BuildKey(tableSchema, codec, hashValue, rangeValue)
	if err != nil {
		return nil, errors.NewError("GetItem", tableSchema.TableName, err)
	}

	input := &dynamodb.GetItemInput{
		TableName: &tableSchema.TableName,
		Key:       key,
	}
	if o.ConsistentRead {
		input.ConsistentRead = &o.ConsistentRead
	}
	if len(o.Projection) > 0 {
		// Project through placeholders so reserved words stay legal.
		names := make(map[string]string, len(o.Projection))
		projection := ""
		for i, attr := range o.Projection {
			placeholder := fmt.Sprintf("#p%d", i+1)
			names[placeholder] = attr
			if i > 0 {
				projection += ", "
			}
			projection += placeholder
		}
		input.ProjectionExpression = &projection
		input.ExpressionAttributeNames = names
	}

	out, err := client.GetItem(ctx, input)
	if err != nil {
		return nil, errors.NewError("GetItem", tableSchema.TableName, mapServiceError(err))
	}
	if out.Item == nil {
		return nil, errors.NewError("GetItem", tableSchema.TableName, errors.ErrItemNotFound)
	}
	return out.Item, nil
}
