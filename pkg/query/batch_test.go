package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynaplan/dynaplan/pkg/core"
	"github.com/dynaplan/dynaplan/pkg/errors"
)

func TestBatchWrite_ChunksOf25(t *testing.T) {
	var callSizes []int
	client := &stubClient{
		batchWriteFn: func(in *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
			n := 0
			for _, wrs := range in.RequestItems {
				n += len(wrs)
			}
			callSizes = append(callSizes, n)
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}

	requests := make([]WriteRequest, 30)
	for i := range requests {
		requests[i] = WriteRequest{Table: "users", Put: item(fmt.Sprintf("u%d", i))}
	}

	err := BatchWrite(context.Background(), client, requests, BatchWriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{25, 5}, callSizes)
}

func TestBatchWrite_ReissuesUnprocessed(t *testing.T) {
	calls := 0
	client := &stubClient{
		batchWriteFn: func(in *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
			calls++
			if calls == 1 {
				// Bounce the last request back once.
				wrs := in.RequestItems["users"]
				return &dynamodb.BatchWriteItemOutput{
					UnprocessedItems: map[string][]types.WriteRequest{
						"users": {wrs[len(wrs)-1]},
					},
				}, nil
			}
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}

	var progress []int
	err := BatchWrite(context.Background(), client,
		[]WriteRequest{
			{Table: "users", Put: item("a")},
			{Table: "users", Put: item("b")},
		},
		BatchWriteOptions{
			Callback: func(written int, more bool) {
				progress = append(progress, written)
			},
		})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{1, 2}, progress)
}

func TestBatchWrite_MixedPutsAndDeletes(t *testing.T) {
	var sawPut, sawDelete bool
	client := &stubClient{
		batchWriteFn: func(in *dynamodb.BatchWriteItemInput) (*dynamodb.BatchWriteItemOutput, error) {
			for _, wrs := range in.RequestItems {
				for _, wr := range wrs {
					if wr.PutRequest != nil {
						sawPut = true
					}
					if wr.DeleteRequest != nil {
						sawDelete = true
					}
				}
			}
			return &dynamodb.BatchWriteItemOutput{}, nil
		},
	}

	err := BatchWrite(context.Background(), client, []WriteRequest{
		{Table: "users", Put: item("a")},
		{Table: "users", Delete: key("b")},
	}, BatchWriteOptions{})
	require.NoError(t, err)
	assert.True(t, sawPut)
	assert.True(t, sawDelete)
}

func TestBatchWrite_RejectsMalformedRequest(t *testing.T) {
	err := BatchWrite(context.Background(), &stubClient{}, []WriteRequest{
		{Table: "users"},
	}, BatchWriteOptions{})
	assert.ErrorIs(t, err, errors.ErrInvalidCondition)
}

func TestBatchGet_ChunksOf100(t *testing.T) {
	var callSizes []int
	client := &stubClient{
		batchGetFn: func(in *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
			n := 0
			responses := make(map[string][]map[string]types.AttributeValue)
			for table, ka := range in.RequestItems {
				n += len(ka.Keys)
				for range ka.Keys {
					responses[table] = append(responses[table], item("found"))
				}
			}
			callSizes = append(callSizes, n)
			return &dynamodb.BatchGetItemOutput{Responses: responses}, nil
		},
	}

	keys := make([]core.Key, 150)
	for i := range keys {
		keys[i] = key(fmt.Sprintf("u%d", i))
	}

	results, err := BatchGet(context.Background(), client, map[string][]core.Key{"users": keys}, BatchGetOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{100, 50}, callSizes)
	assert.Len(t, results["users"], 150)
}

func TestBatchGet_ReissuesUnprocessedKeys(t *testing.T) {
	calls := 0
	client := &stubClient{
		batchGetFn: func(in *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
			calls++
			ka := in.RequestItems["users"]
			if calls == 1 {
				// Answer all but the first key, bounce it back.
				return &dynamodb.BatchGetItemOutput{
					Responses: map[string][]map[string]types.AttributeValue{
						"users": {item("answered")},
					},
					UnprocessedKeys: map[string]types.KeysAndAttributes{
						"users": {Keys: ka.Keys[:1]},
					},
				}, nil
			}
			return &dynamodb.BatchGetItemOutput{
				Responses: map[string][]map[string]types.AttributeValue{
					"users": {item("retried")},
				},
			}, nil
		},
	}

	results, err := BatchGet(context.Background(), client,
		map[string][]core.Key{"users": {key("a"), key("b")}}, BatchGetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, results["users"], 2)
}

func TestBatchGet_SingleCallWhenNothingUnprocessed(t *testing.T) {
	calls := 0
	client := &stubClient{
		batchGetFn: func(in *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
			calls++
			return &dynamodb.BatchGetItemOutput{
				Responses: map[string][]map[string]types.AttributeValue{"users": {item("x")}},
			}, nil
		},
	}

	_, err := BatchGet(context.Background(), client,
		map[string][]core.Key{"users": {key("a")}}, BatchGetOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestBatchGet_ConsistentReadPropagates(t *testing.T) {
	client := &stubClient{
		batchGetFn: func(in *dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
			ka := in.RequestItems["users"]
			require.NotNil(t, ka.ConsistentRead)
			assert.True(t, *ka.ConsistentRead)
			return &dynamodb.BatchGetItemOutput{}, nil
		},
	}

	_, err := BatchGet(context.Background(), client,
		map[string][]core.Key{"users": {key("a")}}, BatchGetOptions{ConsistentRead: true})
	require.NoError(t, err)
}

func TestBatchGet_WireErrorWrapped(t *testing.T) {
	client := &stubClient{
		batchGetFn: func(*dynamodb.BatchGetItemInput) (*dynamodb.BatchGetItemOutput, error) {
			return nil, &types.ResourceNotFoundException{}
		},
	}

	_, err := BatchGet(context.Background(), client,
		map[string][]core.Key{"users": {key("a")}}, BatchGetOptions{})
	assert.ErrorIs(t, err, errors.ErrTableNotFound)
}
