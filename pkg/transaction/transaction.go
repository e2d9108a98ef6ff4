// Package transaction batches conditioned writes and multi-table reads into
// single atomic TransactWriteItems / TransactGetItems calls.
package transaction

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/dynaplan/dynaplan/pkg/core"
	"github.com/dynaplan/dynaplan/pkg/errors"
)

// maxActions is the service ceiling on actions per transaction call.
const maxActions = 100

type txState int

const (
	stateRegistering txState = iota
	stateCommitting
	stateCommitted
	stateFailed
)

// WriteAction is one registered action on a write transaction. Registration
// returns a handle so callers can abort it before commit or attach hooks.
type WriteAction struct {
	tx      *WriteTx
	wire    types.TransactWriteItem
	aborted bool

	onCommit  []func()
	onFailure []func(error)
}

// Abort removes the action from the transaction. Aborting after commit has
// started has no effect.
func (a *WriteAction) Abort() {
	a.tx.mu.Lock()
	defer a.tx.mu.Unlock()
	if a.tx.state == stateRegistering {
		a.aborted = true
	}
}

// OnCommit registers a hook invoked after the transaction commits.
func (a *WriteAction) OnCommit(fn func()) *WriteAction {
	a.tx.mu.Lock()
	defer a.tx.mu.Unlock()
	a.onCommit = append(a.onCommit, fn)
	return a
}

// OnFailure registers a hook invoked if the transaction fails to commit.
func (a *WriteAction) OnFailure(fn func(error)) *WriteAction {
	a.tx.mu.Lock()
	defer a.tx.mu.Unlock()
	a.onFailure = append(a.onFailure, fn)
	return a
}

// WriteTx accumulates put, update, delete and condition-check actions and
// submits them atomically. A transaction commits or fails exactly once.
type WriteTx struct {
	client core.DynamoDBAPI

	mu      sync.Mutex
	state   txState
	actions []*WriteAction
	token   string
}

// NewWriteTx starts an empty write transaction. The client request token
// makes a retried commit idempotent for ten minutes.
func NewWriteTx(client core.DynamoDBAPI) *WriteTx {
	return &WriteTx{
		client: client,
		token:  uuid.NewString(),
	}
}

// Put registers an unconditional or conditioned put.
func (tx *WriteTx) Put(table string, item core.Item, cond *ConditionExpr) (*WriteAction, error) {
	put := &types.Put{
		TableName: &table,
		Item:      item,
	}
	if cond != nil {
		put.ConditionExpression = &cond.Statement
		put.ExpressionAttributeNames = cond.Names
		put.ExpressionAttributeValues = cond.Values
	}
	return tx.register(types.TransactWriteItem{Put: put})
}

// Update registers an update expression against one key.
func (tx *WriteTx) Update(table string, key core.Key, update *UpdateExpr, cond *ConditionExpr) (*WriteAction, error) {
	if update == nil || update.Statement == "" {
		return nil, fmt.Errorf("%w: update requires an expression", errors.ErrInvalidCondition)
	}
	upd := &types.Update{
		TableName:                 &table,
		Key:                       key,
		UpdateExpression:          &update.Statement,
		ExpressionAttributeNames:  update.Names,
		ExpressionAttributeValues: update.Values,
	}
	if cond != nil {
		upd.ConditionExpression = &cond.Statement
		upd.ExpressionAttributeNames = mergeNames(upd.ExpressionAttributeNames, cond.Names)
		upd.ExpressionAttributeValues = mergeValues(upd.ExpressionAttributeValues, cond.Values)
	}
	return tx.register(types.TransactWriteItem{Update: upd})
}

// Delete registers a delete against one key.
func (tx *WriteTx) Delete(table string, key core.Key, cond *ConditionExpr) (*WriteAction, error) {
	del := &types.Delete{
		TableName: &table,
		Key:       key,
	}
	if cond != nil {
		del.ConditionExpression = &cond.Statement
		del.ExpressionAttributeNames = cond.Names
		del.ExpressionAttributeValues = cond.Values
	}
	return tx.register(types.TransactWriteItem{Delete: del})
}

// ConditionCheck registers a pure precondition: the transaction fails unless
// the condition holds, but the item is not modified.
func (tx *WriteTx) ConditionCheck(table string, key core.Key, cond *ConditionExpr) (*WriteAction, error) {
	if cond == nil || cond.Statement == "" {
		return nil, fmt.Errorf("%w: condition check requires an expression", errors.ErrInvalidCondition)
	}
	return tx.register(types.TransactWriteItem{
		ConditionCheck: &types.ConditionCheck{
			TableName:                 &table,
			Key:                       key,
			ConditionExpression:       &cond.Statement,
			ExpressionAttributeNames:  cond.Names,
			ExpressionAttributeValues: cond.Values,
		},
	})
}

func (tx *WriteTx) register(wire types.TransactWriteItem) (*WriteAction, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != stateRegistering {
		return nil, errors.ErrClosedTransaction
	}
	if tx.live() >= maxActions {
		return nil, fmt.Errorf("%w: limit is %d", errors.ErrTransactionTooLarge, maxActions)
	}

	action := &WriteAction{tx: tx, wire: wire}
	tx.actions = append(tx.actions, action)
	return action, nil
}

// live counts actions that have not been aborted. Callers hold tx.mu.
func (tx *WriteTx) live() int {
	n := 0
	for _, a := range tx.actions {
		if !a.aborted {
			n++
		}
	}
	return n
}

// Len reports the number of live actions.
func (tx *WriteTx) Len() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.live()
}

// Commit submits every live action in one atomic call. Commit hooks fire in
// registration order after success; failure hooks fire after any error. An
// empty transaction commits trivially without touching the wire.
func (tx *WriteTx) Commit(ctx context.Context) error {
	tx.mu.Lock()
	if tx.state != stateRegistering {
		tx.mu.Unlock()
		return errors.ErrClosedTransaction
	}
	tx.state = stateCommitting

	var items []types.TransactWriteItem
	var committed []*WriteAction
	for _, a := range tx.actions {
		if a.aborted {
			continue
		}
		items = append(items, a.wire)
		committed = append(committed, a)
	}
	token := tx.token
	tx.mu.Unlock()

	if len(items) == 0 {
		tx.finish(stateCommitted)
		return nil
	}

	_, err := tx.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems:      items,
		ClientRequestToken: &token,
	})
	if err != nil {
		mapped := errors.NewError("TransactWrite", "", mapCancellation(err))
		tx.finish(stateFailed)
		for _, a := range committed {
			for _, fn := range a.onFailure {
				fn(mapped)
			}
		}
		return mapped
	}

	tx.finish(stateCommitted)
	for _, a := range committed {
		for _, fn := range a.onCommit {
			fn()
		}
	}
	return nil
}

func (tx *WriteTx) finish(s txState) {
	tx.mu.Lock()
	tx.state = s
	tx.mu.Unlock()
}

// mapCancellation folds a canceled transaction into the package sentinels. A
// cancellation caused by a failed condition surfaces as
// ErrConditionalCheckFailed; anything else is ErrTransactionFailed.
func mapCancellation(err error) error {
	var canceled *types.TransactionCanceledException
	if stderrors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return fmt.Errorf("%w: %v", errors.ErrConditionalCheckFailed, err)
			}
		}
		return fmt.Errorf("%w: %v", errors.ErrTransactionFailed, err)
	}
	var conflict *types.TransactionConflictException
	if stderrors.As(err, &conflict) {
		return fmt.Errorf("%w: %v", errors.ErrTransactionFailed, err)
	}
	return fmt.Errorf("%w: %v", errors.ErrServiceError, err)
}

// ConditionExpr is a rendered condition expression with its placeholder
// mappings.
type ConditionExpr struct {
	Statement string
	Names     map[string]string
	Values    map[string]types.AttributeValue
}

// UpdateExpr is a rendered update expression with its placeholder mappings.
type UpdateExpr struct {
	Statement string
	Names     map[string]string
	Values    map[string]types.AttributeValue
}

func mergeNames(a, b map[string]string) map[string]string {
	if len(b) == 0 {
		return a
	}
	merged := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}

func mergeValues(a, b map[string]types.AttributeValue) map[string]types.AttributeValue {
	if len(b) == 0 {
		return a
	}
	merged := make(map[string]types.AttributeValue, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}
