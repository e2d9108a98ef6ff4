package query

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynaplan/dynaplan/pkg/core"
	"github.com/dynaplan/dynaplan/pkg/schema"
)

// stubClient overrides just the wire calls a test exercises; calling anything
// else is a test bug and panics through the nil embedded interface.
type stubClient struct {
	core.DynamoDBAPI

	queryFn      func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error)
	scanFn       func(*dynamodb.ScanInput) (*dynamodb.ScanOutput, error)
	getFn        func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	batchGetFn   func(*dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error)
	batchWriteFn func(*dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error)
	statementFn  func(*dynamodb.ExecuteStatementInput) (*dynamodb.ExecuteStatementOutput, error)
}

func (s *stubClient) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return s.queryFn(in)
}

func (s *stubClient) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return s.scanFn(in)
}

func (s *stubClient) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return s.getFn(in)
}

func (s *stubClient) BatchGetItem(_ context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	return s.batchGetFn(in)
}

func (s *stubClient) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	return s.batchWriteFn(in)
}

func (s *stubClient) ExecuteStatement(_ context.Context, in *dynamodb.ExecuteStatementInput, _ ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error) {
	return s.statementFn(in)
}

func usersSchema() *schema.TableSchema {
	return &schema.TableSchema{
		TableName: "users",
		HashKey:   "name",
		RangeKey:  "age",
		AttributeTypes: map[string]types.ScalarAttributeType{
			"name": types.ScalarAttributeTypeS,
			"age":  types.ScalarAttributeTypeN,
		},
	}
}

func item(id string) core.Item {
	return core.Item{"id": &types.AttributeValueMemberS{Value: id}}
}

func key(id string) core.Key {
	return core.Key{"id": &types.AttributeValueMemberS{Value: id}}
}
