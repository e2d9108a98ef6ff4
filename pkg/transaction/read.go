package transaction

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynaplan/dynaplan/pkg/core"
	"github.com/dynaplan/dynaplan/pkg/errors"
)

// ReadTx accumulates point reads across tables and resolves them in one
// consistent TransactGetItems snapshot.
type ReadTx struct {
	client core.DynamoDBAPI

	state   txState
	actions []*readAction
}

type readAction struct {
	table string
	keys  []core.Key
}

// NewReadTx starts an empty read transaction.
func NewReadTx(client core.DynamoDBAPI) *ReadTx {
	return &ReadTx{client: client}
}

// Find registers a read of one or more keys from a table. Results come back
// from Execute in the same order Find calls were made, with one item slice
// per call; keys that matched nothing yield nil in their slot.
func (tx *ReadTx) Find(table string, keys ...core.Key) error {
	if tx.state != stateRegistering {
		return errors.ErrClosedTransaction
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: find requires at least one key", errors.ErrInvalidCondition)
	}
	if tx.keyCount()+len(keys) > maxActions {
		return fmt.Errorf("%w: limit is %d", errors.ErrTransactionTooLarge, maxActions)
	}
	tx.actions = append(tx.actions, &readAction{table: table, keys: keys})
	return nil
}

func (tx *ReadTx) keyCount() int {
	n := 0
	for _, a := range tx.actions {
		n += len(a.keys)
	}
	return n
}

// Execute resolves every registered read in one call. The outer slice has one
// entry per Find call, in registration order; inner slots are nil for items
// that do not exist.
func (tx *ReadTx) Execute(ctx context.Context) ([][]core.Item, error) {
	if tx.state != stateRegistering {
		return nil, errors.ErrClosedTransaction
	}
	tx.state = stateCommitting

	var items []types.TransactGetItem
	for _, a := range tx.actions {
		for _, key := range a.keys {
			items = append(items, types.TransactGetItem{
				Get: &types.Get{
					TableName: &a.table,
					Key:       key,
				},
			})
		}
	}

	results := make([][]core.Item, len(tx.actions))
	if len(items) == 0 {
		tx.state = stateCommitted
		return results, nil
	}

	out, err := tx.client.TransactGetItems(ctx, &dynamodb.TransactGetItemsInput{
		TransactItems: items,
	})
	if err != nil {
		tx.state = stateFailed
		return nil, errors.NewError("TransactRead", "", mapCancellation(err))
	}
	tx.state = stateCommitted

	// Responses come back flat, positionally matched to the request; fold
	// them back into per-Find slices.
	pos := 0
	for i, a := range tx.actions {
		results[i] = make([]core.Item, len(a.keys))
		for j := range a.keys {
			if pos < len(out.Responses) {
				results[i][j] = out.Responses[pos].Item
			}
			pos++
		}
	}
	return results, nil
}
