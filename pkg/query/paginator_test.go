package query

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynaplan/dynaplan/pkg/core"
	"github.com/dynaplan/dynaplan/pkg/errors"
)

func queryRequest() *core.CompiledRequest {
	return &core.CompiledRequest{
		Operation:              core.OperationQuery,
		TableName:              "users",
		KeyConditionExpression: "#n1 = :v1",
	}
}

// pagedStub answers Query with one item per call until n items are served,
// carrying a continuation key between calls.
func pagedStub(n int, calls *int, limits *[]*int32) *stubClient {
	served := 0
	return &stubClient{
		queryFn: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			*calls++
			if limits != nil {
				*limits = append(*limits, in.Limit)
			}
			served++
			out := &dynamodb.QueryOutput{
				Items:        []map[string]types.AttributeValue{item("i")},
				Count:        1,
				ScannedCount: 1,
			}
			if served < n {
				out.LastEvaluatedKey = key("cursor")
			}
			return out, nil
		},
	}
}

func TestPaginator_RecordLimitStopsWireCalls(t *testing.T) {
	calls := 0
	var limits []*int32
	client := pagedStub(10, &calls, &limits)

	p := NewPaginator(client, queryRequest(), Options{RecordLimit: 2, BatchSize: 1})

	items, err := p.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, calls)
	assert.True(t, p.Done())

	// The wire limit shrinks to the remaining record budget.
	require.Len(t, limits, 2)
	assert.Equal(t, int32(1), *limits[0])
	assert.Equal(t, int32(1), *limits[1])
}

func TestPaginator_ScanLimit(t *testing.T) {
	calls := 0
	client := pagedStub(10, &calls, nil)

	p := NewPaginator(client, queryRequest(), Options{ScanLimit: 3})

	items, err := p.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 3)
	assert.Equal(t, 3, calls)
}

func TestPaginator_ExhaustsOnMissingCursor(t *testing.T) {
	calls := 0
	client := pagedStub(2, &calls, nil)

	p := NewPaginator(client, queryRequest(), Options{})

	first, err := p.NextPage(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.False(t, p.Done())

	second, err := p.NextPage(context.Background())
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.True(t, p.Done())
	assert.Nil(t, p.LastEvaluatedKey())

	third, err := p.NextPage(context.Background())
	require.NoError(t, err)
	assert.Nil(t, third)
	assert.Equal(t, 2, calls)
}

func TestPaginator_CursorCarriedBetweenCalls(t *testing.T) {
	var seenStartKeys []map[string]types.AttributeValue
	served := 0
	client := &stubClient{
		queryFn: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			seenStartKeys = append(seenStartKeys, in.ExclusiveStartKey)
			served++
			out := &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{item("i")}, ScannedCount: 1}
			if served == 1 {
				out.LastEvaluatedKey = key("page-1-end")
			}
			return out, nil
		},
	}

	p := NewPaginator(client, queryRequest(), Options{})
	_, err := p.All(context.Background())
	require.NoError(t, err)

	require.Len(t, seenStartKeys, 2)
	assert.Nil(t, seenStartKeys[0])
	assert.Equal(t, key("page-1-end"), seenStartKeys[1])
}

func TestPaginator_StartKeyResumesFromCursor(t *testing.T) {
	resume := key("resume-here")
	var firstStart map[string]types.AttributeValue
	client := &stubClient{
		queryFn: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			firstStart = in.ExclusiveStartKey
			return &dynamodb.QueryOutput{}, nil
		},
	}

	compiled := queryRequest()
	compiled.ExclusiveStartKey = resume
	p := NewPaginator(client, compiled, Options{})

	_, err := p.NextPage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resume, firstStart)
}

func TestPaginator_BackoffNeverBeforeFirstCall(t *testing.T) {
	var delays []int
	backoff := Backoff(func(attempt int) time.Duration {
		delays = append(delays, attempt)
		return 0
	})

	calls := 0
	client := pagedStub(3, &calls, nil)
	p := NewPaginator(client, queryRequest(), Options{Backoff: backoff})

	_, err := p.All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	// Two sleeps for three calls: between calls only.
	assert.Equal(t, []int{1, 2}, delays)
}

func TestPaginator_ScanOperation(t *testing.T) {
	calls := 0
	client := &stubClient{
		scanFn: func(in *dynamodb.ScanInput) (*dynamodb.ScanOutput, error) {
			calls++
			return &dynamodb.ScanOutput{
				Items:        []map[string]types.AttributeValue{item("a"), item("b")},
				ScannedCount: 5,
			}, nil
		},
	}

	p := NewPaginator(client, &core.CompiledRequest{
		Operation: core.OperationScan,
		TableName: "users",
	}, Options{})

	page, err := p.NextPage(context.Background())
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int32(5), page.ScannedCount)
	assert.Equal(t, 1, calls)
	assert.True(t, p.Done())
}

func TestPaginator_CountOnly(t *testing.T) {
	calls := 0
	client := &stubClient{
		queryFn: func(in *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			calls++
			assert.Equal(t, types.SelectCount, in.Select)
			out := &dynamodb.QueryOutput{Count: 40, ScannedCount: 40}
			if calls == 1 {
				out.LastEvaluatedKey = key("cursor")
			}
			return out, nil
		},
	}

	compiled := queryRequest()
	compiled.Select = string(types.SelectCount)
	p := NewPaginator(client, compiled, Options{})

	total, err := p.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(80), total)
	assert.Equal(t, 2, calls)
}

func TestPaginator_WireErrorWrapped(t *testing.T) {
	client := &stubClient{
		queryFn: func(*dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
			return nil, &types.ResourceNotFoundException{}
		},
	}

	p := NewPaginator(client, queryRequest(), Options{})
	_, err := p.NextPage(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTableNotFound)

	var planErr *errors.PlanError
	require.ErrorAs(t, err, &planErr)
	assert.Equal(t, "Query", planErr.Op)
	assert.Equal(t, "users", planErr.Table)
}
