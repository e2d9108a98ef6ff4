package query

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynaplan/dynaplan/pkg/core"
	"github.com/dynaplan/dynaplan/pkg/errors"
)

// StatementPaginator drives a PartiQL statement across successive
// ExecuteStatement calls, following NextToken. Not safe for concurrent use.
type StatementPaginator struct {
	client    core.DynamoDBAPI
	statement string
	params    []types.AttributeValue

	state     paginatorState
	nextToken *string
	calls     int

	consistentRead bool
	backoff        Backoff
}

// NewStatementPaginator prepares a PartiQL statement. Positional parameters
// are dumped through the codec so custom attribute encodings apply to
// statements too; parameter names are not known here, so the empty attribute
// is passed to the codec.
func NewStatementPaginator(client core.DynamoDBAPI, codec core.AttributeCodec, statement string, params []any, opts ...Option) (*StatementPaginator, error) {
	o := BuildOptions(opts)

	dumped := make([]types.AttributeValue, 0, len(params))
	for _, p := range params {
		av, err := codec.Dump("", p)
		if err != nil {
			return nil, errors.NewError("ExecuteStatement", "", err)
		}
		dumped = append(dumped, av)
	}

	return &StatementPaginator{
		client:         client,
		statement:      statement,
		params:         dumped,
		consistentRead: o.ConsistentRead,
		backoff:        o.Backoff,
	}, nil
}

// Done reports whether the statement's result set is exhausted.
func (p *StatementPaginator) Done() bool {
	return p.state == stateExhausted
}

// NextPage issues one ExecuteStatement call. It returns (nil, nil) once the
// result set is exhausted.
func (p *StatementPaginator) NextPage(ctx context.Context) (*core.Page, error) {
	if p.state == stateExhausted {
		return nil, nil
	}

	if p.calls > 0 && p.backoff != nil {
		if err := sleep(ctx, p.backoff(p.calls)); err != nil {
			return nil, err
		}
	}

	input := &dynamodb.ExecuteStatementInput{
		Statement: &p.statement,
		NextToken: p.nextToken,
	}
	if len(p.params) > 0 {
		input.Parameters = p.params
	}
	if p.consistentRead {
		input.ConsistentRead = &p.consistentRead
	}

	out, err := p.client.ExecuteStatement(ctx, input)
	if err != nil {
		return nil, errors.NewError("ExecuteStatement", "", mapServiceError(err))
	}
	p.calls++

	p.nextToken = out.NextToken
	if p.nextToken == nil {
		p.state = stateExhausted
	}
	return &core.Page{Items: out.Items}, nil
}

// All drains every remaining page into one slice.
func (p *StatementPaginator) All(ctx context.Context) ([]core.Item, error) {
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
