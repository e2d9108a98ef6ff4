package query

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynaplan/dynaplan/pkg/core"
	"github.com/dynaplan/dynaplan/pkg/errors"
)

const (
	// maxBatchGetKeys is the service ceiling on keys per BatchGetItem call.
	maxBatchGetKeys = 100

	// maxBatchWriteItems is the service ceiling on requests per
	// BatchWriteItem call.
	maxBatchWriteItems = 25
)

// BatchGetCallback observes each wire call's merged results. more is false on
// the final call.
type BatchGetCallback func(results map[string][]core.Item, more bool)

// BatchGetOptions configures a batch read.
type BatchGetOptions struct {
	ConsistentRead bool
	Backoff        Backoff
	Callback       BatchGetCallback
}

// BatchGet reads up to 100 keys per wire call across any number of tables,
// reissuing unprocessed keys until the service has answered for all of them.
// Results are keyed by table name. Missing items are simply absent.
func BatchGet(ctx context.Context, client core.DynamoDBAPI, keys map[string][]core.Key, opts BatchGetOptions) (map[string][]core.Item, error) {
	results := make(map[string][]core.Item, len(keys))

	pending := flattenKeys(keys)
	calls := 0
	for len(pending) > 0 {
		if calls > 0 && opts.Backoff != nil {
			if err := sleep(ctx, opts.Backoff(calls)); err != nil {
				return nil, err
			}
		}

		chunk := pending
		if len(chunk) > maxBatchGetKeys {
			chunk = chunk[:maxBatchGetKeys]
		}
		pending = pending[len(chunk):]

		requestItems := make(map[string]types.KeysAndAttributes)
		for _, tk := range chunk {
			ka := requestItems[tk.table]
			ka.Keys = append(ka.Keys, tk.key)
			if opts.ConsistentRead {
				ka.ConsistentRead = &opts.ConsistentRead
			}
			requestItems[tk.table] = ka
		}

		out, err := client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
			RequestItems: requestItems,
		})
		if err != nil {
			return nil, errors.NewError("BatchGet", "", mapServiceError(err))
		}
		calls++

		for table, items := range out.Responses {
			results[table] = append(results[table], items...)
		}

		// Unprocessed keys go back to the front of the queue.
		var reissue []tableKey
		for table, ka := range out.UnprocessedKeys {
			for _, key := range ka.Keys {
				reissue = append(reissue, tableKey{table: table, key: key})
			}
		}
		pending = append(reissue, pending...)

		if opts.Callback != nil {
			opts.Callback(results, len(pending) > 0)
		}
	}
	return results, nil
}

type tableKey struct {
	table string
	key   core.Key
}

func flattenKeys(keys map[string][]core.Key) []tableKey {
	var flat []tableKey
	for table, tableKeys := range keys {
		for _, key := range tableKeys {
			flat = append(flat, tableKey{table: table, key: key})
		}
	}
	return flat
}

// WriteRequest is one put or delete destined for a table. Exactly one of
// Put and Delete is set.
type WriteRequest struct {
	Table  string
	Put    core.Item
	Delete core.Key
}

// BatchWriteCallback observes progress after each wire call.
type BatchWriteCallback func(written int, more bool)

// BatchWriteOptions configures a batch write.
type BatchWriteOptions struct {
	Backoff  Backoff
	Callback BatchWriteCallback
}

// BatchWrite applies puts and deletes in chunks of 25, reissuing unprocessed
// requests until the service has accepted all of them. Batch writes carry no
// condition expressions; conditional writes go through transactions.
func BatchWrite(ctx context.Context, client core.DynamoDBAPI, requests []WriteRequest, opts BatchWriteOptions) error {
	written := 0
	calls := 0

	pending := make([]WriteRequest, len(requests))
	copy(pending, requests)

	for len(pending) > 0 {
		if calls > 0 && opts.Backoff != nil {
			if err := sleep(ctx, opts.Backoff(calls)); err != nil {
				return err
			}
		}

		chunk := pending
		if len(chunk) > maxBatchWriteItems {
			chunk = chunk[:maxBatchWriteItems]
		}
		pending = pending[len(chunk):]

		requestItems := make(map[string][]types.WriteRequest)
		for _, r := range chunk {
			wr, err := r.wire()
			if err != nil {
				return err
			}
			requestItems[r.Table] = append(requestItems[r.Table], wr)
		}

		out, err := client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: requestItems,
		})
		if err != nil {
			return errors.NewError("BatchWrite", "", mapServiceError(err))
		}
		calls++

		unprocessed := 0
		var reissue []WriteRequest
		for table, wrs := range out.UnprocessedItems {
			for _, wr := range wrs {
				unprocessed++
				r := WriteRequest{Table: table}
				if wr.PutRequest != nil {
					r.Put = wr.PutRequest.Item
				} else if wr.DeleteRequest != nil {
					r.Delete = wr.DeleteRequest.Key
				}
				reissue = append(reissue, r)
			}
		}
		pending = append(reissue, pending...)

		written += len(chunk) - unprocessed
		if opts.Callback != nil {
			opts.Callback(written, len(pending) > 0)
		}
	}
	return nil
}

func (r WriteRequest) wire() (types.WriteRequest, error) {
	switch {
	case r.Put != nil && r.Delete != nil:
		return types.WriteRequest{}, fmt.Errorf("%w: write request for table %s has both put and delete", errors.ErrInvalidCondition, r.Table)
	case r.Put != nil:
		return types.WriteRequest{PutRequest: &types.PutRequest{Item: r.Put}}, nil
	case r.Delete != nil:
		return types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: r.Delete}}, nil
	default:
		return types.WriteRequest{}, fmt.Errorf("%w: empty write request for table %s", errors.ErrInvalidCondition, r.Table)
	}
}

// mapServiceError folds SDK fault types into the package sentinels so callers
// can branch with errors.Is instead of matching on AWS error codes.
func mapServiceError(err error) error {
	var ccf *types.ConditionalCheckFailedException
	if stderrors.As(err, &ccf) {
		return fmt.Errorf("%w: %s", errors.ErrConditionalCheckFailed, ccf.ErrorMessage())
	}
	var rnf *types.ResourceNotFoundException
	if stderrors.As(err, &rnf) {
		return fmt.Errorf("%w: %s", errors.ErrTableNotFound, rnf.ErrorMessage())
	}
	return fmt.Errorf("%w: %v", errors.ErrServiceError, err)
}
