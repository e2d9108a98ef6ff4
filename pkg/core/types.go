package core

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Operation names for compiled requests
const (
	OperationQuery = "Query"
	OperationScan  = "Scan"
)

// CompiledRequest is a fully planned Query or Scan, ready for the wire.
// It is a pure function of conditions + schema + options; executing it is
// the paginator's job.
type CompiledRequest struct {
	Operation string // OperationQuery or OperationScan
	TableName string
	IndexName string

	// Expression components
	KeyConditionExpression string
	FilterExpression       string
	ProjectionExpression   string

	// Expression mappings
	ExpressionAttributeNames  map[string]string
	ExpressionAttributeValues map[string]types.AttributeValue

	// Other request parameters
	Limit             *int32
	ExclusiveStartKey map[string]types.AttributeValue
	ScanIndexForward  *bool
	ConsistentRead    *bool
	Select            string // "", "ALL_ATTRIBUTES", "COUNT"

	// Parallel scan parameters
	Segment       *int32
	TotalSegments *int32
}

// Page is the result of one wire call: the raw items, the matched and
// scanned counts, and the continuation cursor (nil when exhausted). For
// count-only requests Items is empty and Count carries the answer.
type Page struct {
	Items            []Item
	Count            int32
	ScannedCount     int32
	LastEvaluatedKey map[string]types.AttributeValue
}
