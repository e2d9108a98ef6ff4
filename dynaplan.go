// Package dynaplan plans and executes DynamoDB requests from normalized
// condition mappings: it picks the key path, renders expressions with
// placeholder aliasing, and drives pagination, batches and transactions.
package dynaplan

import (
	"context"
	"fmt"

	"github.com/dynaplan/dynaplan/pkg/codec"
	"github.com/dynaplan/dynaplan/pkg/core"
	"github.com/dynaplan/dynaplan/pkg/query"
	"github.com/dynaplan/dynaplan/pkg/schema"
	"github.com/dynaplan/dynaplan/pkg/session"
	"github.com/dynaplan/dynaplan/pkg/transaction"
)

// Adapter is the entry point: one per client/credential pair. All methods
// are safe for concurrent use; per-request state lives in the returned
// paginators and transactions.
type Adapter struct {
	session *session.Session
	client  core.DynamoDBAPI
	schemas *schema.Cache
	manager *schema.Manager
	codec   core.AttributeCodec
	backoff query.Backoff
}

// AdapterOption customizes an Adapter at construction.
type AdapterOption func(*Adapter)

// WithCodec replaces the default attribute codec.
func WithCodec(c core.AttributeCodec) AdapterOption {
	return func(a *Adapter) { a.codec = c }
}

// WithSchemaSource sets where unknown table schemas are loaded from. Without
// it, schemas are described from the live table on first use.
func WithSchemaSource(source schema.Source) AdapterOption {
	return func(a *Adapter) { a.schemas = schema.NewCache(source) }
}

// WithBackoff sets the default delay strategy applied between paged and
// batched wire calls. Per-request options override it.
func WithBackoff(b query.Backoff) AdapterOption {
	return func(a *Adapter) { a.backoff = b }
}

// New creates an adapter with the given connection configuration.
func New(cfg *session.Config, opts ...AdapterOption) (*Adapter, error) {
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	client, err := sess.Client()
	if err != nil {
		return nil, err
	}

	a := newAdapter(client, opts...)
	a.session = sess
	return a, nil
}

// NewWithClient creates an adapter on an existing client. Tests and
// cross-account setups use this to inject their own wire layer.
func NewWithClient(client core.DynamoDBAPI, opts ...AdapterOption) *Adapter {
	return newAdapter(client, opts...)
}

func newAdapter(client core.DynamoDBAPI, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		client:  client,
		codec:   codec.New(),
		backoff: query.DefaultBackoff,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.schemas == nil {
		// Fall back to describing the live table on first use.
		a.schemas = schema.NewCache(schema.SourceFunc(
			func(ctx context.Context, tableName string) (*schema.TableSchema, error) {
				return schema.NewManager(client, nil).DescribeTable(ctx, tableName)
			}))
	}
	a.manager = schema.NewManager(client, a.schemas)
	return a
}

// RegisterSchema seeds the cache with a descriptor, avoiding a DescribeTable
// round trip on first use.
func (a *Adapter) RegisterSchema(s *schema.TableSchema) error {
	return a.schemas.Put(s)
}

// Schema returns the cached descriptor for a table, loading it if needed.
func (a *Adapter) Schema(ctx context.Context, tableName string) (*schema.TableSchema, error) {
	return a.schemas.Get(ctx, tableName)
}

// Codec returns the attribute codec in use.
func (a *Adapter) Codec() core.AttributeCodec {
	return a.codec
}

// Client returns the underlying wire client.
func (a *Adapter) Client() core.DynamoDBAPI {
	return a.client
}

// ExecuteQuery plans the conditions against the table's schema and returns a
// paginator over the chosen Query or Scan.
func (a *Adapter) ExecuteQuery(ctx context.Context, tableName string, conditions map[string]any, opts ...query.Option) (*query.Paginator, error) {
	tableSchema, err := a.schemas.Get(ctx, tableName)
	if err != nil {
		return nil, err
	}
	o := a.requestOptions(opts)
	compiled, err := query.Compile(tableSchema, conditions, a.codec, o)
	if err != nil {
		return nil, err
	}
	return query.NewPaginator(a.client, compiled, o), nil
}

// ExecuteScan forces a Scan regardless of what the selector would choose.
func (a *Adapter) ExecuteScan(ctx context.Context, tableName string, conditions map[string]any, opts ...query.Option) (*query.Paginator, error) {
	tableSchema, err := a.schemas.Get(ctx, tableName)
	if err != nil {
		return nil, err
	}
	o := a.requestOptions(opts)
	compiled, err := query.CompileScan(tableSchema, conditions, a.codec, o)
	if err != nil {
		return nil, err
	}
	return query.NewPaginator(a.client, compiled, o), nil
}

// Get performs a point read by primary key.
func (a *Adapter) Get(ctx context.Context, tableName string, hashValue, rangeValue any, opts ...query.Option) (core.Item, error) {
	tableSchema, err := a.schemas.Get(ctx, tableName)
	if err != nil {
		return nil, err
	}
	return query.Get(ctx, a.client, tableSchema, a.codec, hashValue, rangeValue, opts...)
}

// BuildKey dumps primary-key values into a wire key for the table.
func (a *Adapter) BuildKey(ctx context.Context, tableName string, hashValue, rangeValue any) (core.Key, error) {
	tableSchema, err := a.schemas.Get(ctx, tableName)
	if err != nil {
		return nil, err
	}
	return query.BuildKey(tableSchema, a.codec, hashValue, rangeValue)
}

// BatchGet reads keys across tables, reissuing unprocessed keys until done.
func (a *Adapter) BatchGet(ctx context.Context, keys map[string][]core.Key, opts query.BatchGetOptions) (map[string][]core.Item, error) {
	if opts.Backoff == nil {
		opts.Backoff = a.backoff
	}
	return query.BatchGet(ctx, a.client, keys, opts)
}

// BatchWrite applies puts and deletes in service-sized chunks.
func (a *Adapter) BatchWrite(ctx context.Context, requests []query.WriteRequest, opts query.BatchWriteOptions) error {
	if opts.Backoff == nil {
		opts.Backoff = a.backoff
	}
	return query.BatchWrite(ctx, a.client, requests, opts)
}

// WriteTx starts an empty atomic write transaction.
func (a *Adapter) WriteTx() *transaction.WriteTx {
	return transaction.NewWriteTx(a.client)
}

// ReadTx starts an empty consistent multi-read transaction.
func (a *Adapter) ReadTx() *transaction.ReadTx {
	return transaction.NewReadTx(a.client)
}

// ExecuteStatement runs a PartiQL statement, paginated via NextToken.
func (a *Adapter) ExecuteStatement(statement string, params []any, opts ...query.Option) (*query.StatementPaginator, error) {
	return query.NewStatementPaginator(a.client, a.codec, statement, params, opts...)
}

// CreateTable creates the table described by the schema and caches it.
func (a *Adapter) CreateTable(ctx context.Context, s *schema.TableSchema, opts ...schema.TableOption) error {
	return a.manager.CreateTable(ctx, s, opts...)
}

// DeleteTable deletes a table and evicts its cached schema.
func (a *Adapter) DeleteTable(ctx context.Context, tableName string) error {
	return a.manager.DeleteTable(ctx, tableName)
}

// DescribeTable reads the live table definition.
func (a *Adapter) DescribeTable(ctx context.Context, tableName string) (*schema.TableSchema, error) {
	return a.manager.DescribeTable(ctx, tableName)
}

// ListTables returns all table names.
func (a *Adapter) ListTables(ctx context.Context) ([]string, error) {
	return a.manager.ListTables(ctx)
}

// UpdateTimeToLive enables or disables TTL on the named attribute.
func (a *Adapter) UpdateTimeToLive(ctx context.Context, tableName, attribute string, enabled bool) error {
	return a.manager.UpdateTimeToLive(ctx, tableName, attribute, enabled)
}

func (a *Adapter) requestOptions(opts []query.Option) query.Options {
	all := make([]query.Option, 0, len(opts)+1)
	all = append(all, query.WithBackoff(a.backoff))
	all = append(all, opts...)
	return query.BuildOptions(all)
}
