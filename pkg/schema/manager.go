package schema

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynaplan/dynaplan/pkg/core"
	"github.com/dynaplan/dynaplan/pkg/errors"
)

// Manager performs table administration from schema descriptors. It shares
// the adapter's cache so deletes invalidate stale entries.
type Manager struct {
	client core.DynamoDBAPI
	cache  *Cache
}

// NewManager creates a schema manager.
func NewManager(client core.DynamoDBAPI, cache *Cache) *Manager {
	return &Manager{client: client, cache: cache}
}

// TableOption customizes the CreateTable request after it is built from the
// descriptor.
type TableOption func(*dynamodb.CreateTableInput)

// WithBillingMode sets the billing mode for the table
func WithBillingMode(mode types.BillingMode) TableOption {
	return func(input *dynamodb.CreateTableInput) {
		input.BillingMode = mode
		if mode == types.BillingModePayPerRequest {
			input.ProvisionedThroughput = nil
		}
	}
}

// WithStreamSpecification enables DynamoDB streams
func WithStreamSpecification(spec types.StreamSpecification) TableOption {
	return func(input *dynamodb.CreateTableInput) {
		input.StreamSpecification = &spec
	}
}

// WithSSESpecification enables server-side encryption
func WithSSESpecification(spec types.SSESpecification) TableOption {
	return func(input *dynamodb.CreateTableInput) {
		input.SSESpecification = &spec
	}
}

// CreateTable creates the table described by the schema. Creating a table
// that already exists is not an error.
func (m *Manager) CreateTable(ctx context.Context, schema *TableSchema, opts ...TableOption) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	input := &dynamodb.CreateTableInput{
		TableName:            aws.String(schema.TableName),
		KeySchema:            buildKeySchema(schema.HashKey, schema.RangeKey),
		AttributeDefinitions: buildAttributeDefinitions(schema),
	}
	if schema.ReadCapacityUnits > 0 && schema.WriteCapacityUnits > 0 {
		input.BillingMode = types.BillingModeProvisioned
		input.ProvisionedThroughput = &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(schema.ReadCapacityUnits),
			WriteCapacityUnits: aws.Int64(schema.WriteCapacityUnits),
		}
	} else {
		input.BillingMode = types.BillingModePayPerRequest
	}

	for _, idx := range schema.Indexes {
		projection := &types.Projection{ProjectionType: types.ProjectionType(projectionOrDefault(idx))}
		if idx.Projection == ProjectInclude {
			projection.NonKeyAttributes = idx.Includes
		}
		keySchema := buildKeySchema(idx.HashKey, idx.RangeKey)

		if idx.Kind == IndexLocal {
			input.LocalSecondaryIndexes = append(input.LocalSecondaryIndexes, types.LocalSecondaryIndex{
				IndexName:  aws.String(idx.Name),
				KeySchema:  keySchema,
				Projection: projection,
			})
			continue
		}

		gsi := types.GlobalSecondaryIndex{
			IndexName:  aws.String(idx.Name),
			KeySchema:  keySchema,
			Projection: projection,
		}
		if input.BillingMode == types.BillingModeProvisioned {
			rcu, wcu := idx.ReadCapacityUnits, idx.WriteCapacityUnits
			if rcu == 0 {
				rcu = schema.ReadCapacityUnits
			}
			if wcu == 0 {
				wcu = schema.WriteCapacityUnits
			}
			gsi.ProvisionedThroughput = &types.ProvisionedThroughput{
				ReadCapacityUnits:  aws.Int64(rcu),
				WriteCapacityUnits: aws.Int64(wcu),
			}
		}
		input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, gsi)
	}

	for _, opt := range opts {
		opt(input)
	}

	if _, err := m.client.CreateTable(ctx, input); err != nil {
		var exists *types.ResourceInUseException
		if stderrors.As(err, &exists) {
			return nil
		}
		return errors.NewError("CreateTable", schema.TableName, err)
	}

	if m.cache != nil {
		_ = m.cache.Put(schema)
	}
	return nil
}

// DeleteTable deletes the table and evicts its cache entry.
func (m *Manager) DeleteTable(ctx context.Context, tableName string) error {
	_, err := m.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		var missing *types.ResourceNotFoundException
		if stderrors.As(err, &missing) {
			err = fmt.Errorf("%w: %s", errors.ErrTableNotFound, tableName)
		}
		return errors.NewError("DeleteTable", tableName, err)
	}
	if m.cache != nil {
		m.cache.Evict(tableName)
	}
	return nil
}

// DescribeTable reads the live table definition back into a descriptor.
func (m *Manager) DescribeTable(ctx context.Context, tableName string) (*TableSchema, error) {
	out, err := m.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err != nil {
		var missing *types.ResourceNotFoundException
		if stderrors.As(err, &missing) {
			err = fmt.Errorf("%w: %s", errors.ErrTableNotFound, tableName)
		}
		return nil, errors.NewError("DescribeTable", tableName, err)
	}
	return fromTableDescription(out.Table), nil
}

// ListTables returns all table names, following the pagination cursor.
func (m *Manager) ListTables(ctx context.Context) ([]string, error) {
	var names []string
	var start *string
	for {
		out, err := m.client.ListTables(ctx, &dynamodb.ListTablesInput{
			ExclusiveStartTableName: start,
		})
		if err != nil {
			return nil, errors.NewError("ListTables", "", err)
		}
		names = append(names, out.TableNames...)
		if out.LastEvaluatedTableName == nil {
			return names, nil
		}
		start = out.LastEvaluatedTableName
	}
}

// UpdateTimeToLive enables or disables TTL on the named attribute.
func (m *Manager) UpdateTimeToLive(ctx context.Context, tableName, attribute string, enabled bool) error {
	_, err := m.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(attribute),
			Enabled:       aws.Bool(enabled),
		},
	})
	if err != nil {
		return errors.NewError("UpdateTimeToLive", tableName, err)
	}
	return nil
}

// WaitForActive polls DescribeTable until the table is ACTIVE or the timeout
// elapses.
func (m *Manager) WaitForActive(ctx context.Context, tableName string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		out, err := m.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(tableName),
		})
		if err == nil && out.Table != nil && out.Table.TableStatus == types.TableStatusActive {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.NewError("WaitForActive", tableName,
				fmt.Errorf("table not active after %s", timeout))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func buildKeySchema(hashKey, rangeKey string) []types.KeySchemaElement {
	keySchema := []types.KeySchemaElement{
		{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
	}
	if rangeKey != "" {
		keySchema = append(keySchema, types.KeySchemaElement{
			AttributeName: aws.String(rangeKey),
			KeyType:       types.KeyTypeRange,
		})
	}
	return keySchema
}

func buildAttributeDefinitions(schema *TableSchema) []types.AttributeDefinition {
	var defs []types.AttributeDefinition
	seen := make(map[string]struct{})
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		defs = append(defs, types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: schema.AttributeTypes[name],
		})
	}
	add(schema.HashKey)
	add(schema.RangeKey)
	for _, idx := range schema.Indexes {
		add(idx.HashKey)
		add(idx.RangeKey)
	}
	return defs
}

func projectionOrDefault(idx SecondaryIndex) ProjectionKind {
	if idx.Projection == "" {
		return ProjectKeysOnly
	}
	return idx.Projection
}

func fromTableDescription(desc *types.TableDescription) *TableSchema {
	schema := &TableSchema{
		TableName:      aws.ToString(desc.TableName),
		AttributeTypes: make(map[string]types.ScalarAttributeType, len(desc.AttributeDefinitions)),
	}
	for _, def := range desc.AttributeDefinitions {
		schema.AttributeTypes[aws.ToString(def.AttributeName)] = def.AttributeType
	}
	schema.HashKey, schema.RangeKey = splitKeySchema(desc.KeySchema)
	if desc.ProvisionedThroughput != nil {
		schema.ReadCapacityUnits = aws.ToInt64(desc.ProvisionedThroughput.ReadCapacityUnits)
		schema.WriteCapacityUnits = aws.ToInt64(desc.ProvisionedThroughput.WriteCapacityUnits)
	}
	for _, gsi := range desc.GlobalSecondaryIndexes {
		idx := SecondaryIndex{
			Name: aws.ToString(gsi.IndexName),
			Kind: IndexGlobal,
		}
		idx.HashKey, idx.RangeKey = splitKeySchema(gsi.KeySchema)
		if gsi.Projection != nil {
			idx.Projection = ProjectionKind(gsi.Projection.ProjectionType)
			idx.Includes = gsi.Projection.NonKeyAttributes
		}
		schema.Indexes = append(schema.Indexes, idx)
	}
	for _, lsi := range desc.LocalSecondaryIndexes {
		idx := SecondaryIndex{
			Name: aws.ToString(lsi.IndexName),
			Kind: IndexLocal,
		}
		idx.HashKey, idx.RangeKey = splitKeySchema(lsi.KeySchema)
		if lsi.Projection != nil {
			idx.Projection = ProjectionKind(lsi.Projection.ProjectionType)
			idx.Includes = lsi.Projection.NonKeyAttributes
		}
		schema.Indexes = append(schema.Indexes, idx)
	}
	return schema
}

func splitKeySchema(elements []types.KeySchemaElement) (hashKey, rangeKey string) {
	for _, el := range elements {
		switch el.KeyType {
		case types.KeyTypeHash:
			hashKey = aws.ToString(el.AttributeName)
		case types.KeyTypeRange:
			rangeKey = aws.ToString(el.AttributeName)
		}
	}
	return hashKey, rangeKey
}
