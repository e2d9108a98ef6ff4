package query

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynaplan/dynaplan/pkg/core"
	"github.com/dynaplan/dynaplan/pkg/errors"
)

type paginatorState int

const (
	stateFetching paginatorState = iota
	stateExhausted
)

// Paginator drives a compiled Query or Scan across as many wire calls as the
// limits allow. It is not safe for concurrent use.
type Paginator struct {
	client   core.DynamoDBAPI
	compiled *core.CompiledRequest

	state   paginatorState
	nextKey map[string]types.AttributeValue
	calls   int

	// -1 means unlimited.
	remainingRecords int
	remainingScan    int
	batchSize        int

	backoff Backoff
}

// NewPaginator wraps a compiled request. The paginator owns the compiled
// request's ExclusiveStartKey from here on.
func NewPaginator(client core.DynamoDBAPI, compiled *core.CompiledRequest, opts Options) *Paginator {
	p := &Paginator{
		client:           client,
		compiled:         compiled,
		nextKey:          compiled.ExclusiveStartKey,
		remainingRecords: -1,
		remainingScan:    -1,
		batchSize:        opts.BatchSize,
		backoff:          opts.Backoff,
	}
	if opts.RecordLimit > 0 {
		p.remainingRecords = opts.RecordLimit
	}
	if opts.ScanLimit > 0 {
		p.remainingScan = opts.ScanLimit
	}
	return p
}

// Done reports whether the paginator has nothing more to fetch.
func (p *Paginator) Done() bool {
	return p.state == stateExhausted
}

// LastEvaluatedKey returns the continuation cursor after the most recent
// page, or nil once the result set is exhausted.
func (p *Paginator) LastEvaluatedKey() map[string]types.AttributeValue {
	return p.nextKey
}

// NextPage issues one wire call and returns its page. It returns (nil, nil)
// once the result set is exhausted.
func (p *Paginator) NextPage(ctx context.Context) (*core.Page, error) {
	if p.state == stateExhausted {
		return nil, nil
	}

	if p.calls > 0 && p.backoff != nil {
		if err := sleep(ctx, p.backoff(p.calls)); err != nil {
			return nil, err
		}
	}

	limit := p.pageLimit()
	page, err := p.fetch(ctx, limit)
	if err != nil {
		return nil, errors.NewError(p.compiled.Operation, p.compiled.TableName, mapServiceError(err))
	}
	p.calls++

	p.account(page)
	p.nextKey = page.LastEvaluatedKey
	if p.nextKey == nil || p.remainingRecords == 0 || p.remainingScan == 0 {
		p.state = stateExhausted
	}
	return page, nil
}

// All drains every remaining page into one slice.
func (p *Paginator) All(ctx context.Context) ([]core.Item, error) {
	var items []core.Item
	for {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if page == nil {
			return items, nil
		}
		items = append(items, page.Items...)
	}
}

// Count drains every remaining page and sums the matched counts. Meant for
// count-only requests but correct for any.
func (p *Paginator) Count(ctx context.Context) (int32, error) {
	var total int32
	for {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		if page == nil {
			return total, nil
		}
		total += page.Count
	}
}

// pageLimit is the smallest of the remaining record budget, the remaining
// scan budget and the batch size. Zero means no Limit on the wire.
func (p *Paginator) pageLimit() int32 {
	limit := 0
	take := func(n int) {
		if n > 0 && (limit == 0 || n < limit) {
			limit = n
		}
	}
	take(p.remainingRecords)
	take(p.remainingScan)
	take(p.batchSize)
	return int32(limit)
}

func (p *Paginator) account(page *core.Page) {
	// Count-only pages carry no items; the count still burns the budget.
	yielded := len(page.Items)
	if yielded == 0 {
		yielded = int(page.Count)
	}
	if p.remainingRecords > 0 {
		p.remainingRecords -= yielded
		if p.remainingRecords < 0 {
			p.remainingRecords = 0
		}
	}
	if p.remainingScan > 0 {
		p.remainingScan -= int(page.ScannedCount)
		if p.remainingScan < 0 {
			p.remainingScan = 0
		}
	}
}

func (p *Paginator) fetch(ctx context.Context, limit int32) (*core.Page, error) {
	c := p.compiled
	var wireLimit *int32
	if limit > 0 {
		wireLimit = &limit
	}

	if c.Operation == core.OperationScan {
		out, err := p.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 &c.TableName,
			IndexName:                 optionalString(c.IndexName),
			FilterExpression:          optionalString(c.FilterExpression),
			ProjectionExpression:      optionalString(c.ProjectionExpression),
			ExpressionAttributeNames:  c.ExpressionAttributeNames,
			ExpressionAttributeValues: c.ExpressionAttributeValues,
			Limit:                     wireLimit,
			ExclusiveStartKey:         p.nextKey,
			ConsistentRead:            c.ConsistentRead,
			Select:                    types.Select(c.Select),
			Segment:                   c.Segment,
			TotalSegments:             c.TotalSegments,
		})
		if err != nil {
			return nil, err
		}
		return &core.Page{
			Items:            out.Items,
			Count:            out.Count,
			ScannedCount:     out.ScannedCount,
			LastEvaluatedKey: out.LastEvaluatedKey,
		}, nil
	}

	out, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 &c.TableName,
		IndexName:                 optionalString(c.IndexName),
		KeyConditionExpression:    optionalString(c.KeyConditionExpression),
		FilterExpression:          optionalString(c.FilterExpression),
		ProjectionExpression:      optionalString(c.ProjectionExpression),
		ExpressionAttributeNames:  c.ExpressionAttributeNames,
		ExpressionAttributeValues: c.ExpressionAttributeValues,
		Limit:                     wireLimit,
		ExclusiveStartKey:         p.nextKey,
		ScanIndexForward:          c.ScanIndexForward,
		ConsistentRead:            c.ConsistentRead,
		Select:                    types.Select(c.Select),
	})
	if err != nil {
		return nil, err
	}
	return &core.Page{
		Items:            out.Items,
		Count:            out.Count,
		ScannedCount:     out.ScannedCount,
		LastEvaluatedKey: out.LastEvaluatedKey,
	}, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
