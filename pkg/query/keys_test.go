package query

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynaplan/dynaplan/pkg/codec"
	"github.com/dynaplan/dynaplan/pkg/errors"
	"github.com/dynaplan/dynaplan/pkg/schema"
)

func TestBuildKey_CompositeKey(t *testing.T) {
	k, err := BuildKey(usersSchema(), codec.New(), "Bob", 42)
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "Bob"}, k["name"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "42"}, k["age"])
}

func TestBuildKey_MissingRangeKey(t *testing.T) {
	_, err := BuildKey(usersSchema(), codec.New(), "Bob", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingRangeKey)
	assert.Contains(t, err.Error(), "age")
}

func TestBuildKey_SimpleKeyIgnoresRange(t *testing.T) {
	s := &schema.TableSchema{
		TableName: "users",
		HashKey:   "id",
		AttributeTypes: map[string]types.ScalarAttributeType{
			"id": types.ScalarAttributeTypeS,
		},
	}
	k, err := BuildKey(s, codec.New(), "u1", nil)
	require.NoError(t, err)
	assert.Len(t, k, 1)
}

func TestGet_PointRead(t *testing.T) {
	client := &stubClient{
		getFn: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			assert.Equal(t, "users", *in.TableName)
			assert.Len(t, in.Key, 2)
			return &dynamodb.GetItemOutput{Item: item("found")}, nil
		},
	}

	got, err := Get(context.Background(), client, usersSchema(), codec.New(), "Bob", 42)
	require.NoError(t, err)
	assert.Equal(t, item("found"), got)
}

func TestGet_NotFound(t *testing.T) {
	client := &stubClient{
		getFn: func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{}, nil
		},
	}

	_, err := Get(context.Background(), client, usersSchema(), codec.New(), "Bob", 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrItemNotFound)
	assert.True(t, errors.IsNotFound(err))
}

func TestGet_ProjectionUsesPlaceholders(t *testing.T) {
	client := &stubClient{
		getFn: func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
			require.NotNil(t, in.ProjectionExpression)
			assert.Equal(t, "#p1, #p2", *in.ProjectionExpression)
			assert.Equal(t, "name", in.ExpressionAttributeNames["#p1"])
			assert.Equal(t, "status", in.ExpressionAttributeNames["#p2"])
			return &dynamodb.GetItemOutput{Item: item("x")}, nil
		},
	}

	_, err := Get(context.Background(), client, usersSchema(), codec.New(), "Bob", 42,
		WithProjection("name", "status"))
	require.NoError(t, err)
}
