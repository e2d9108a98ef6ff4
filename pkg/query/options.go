// Package query plans and executes Query, Scan, batch and PartiQL requests.
// Results come back as pages of raw attribute mappings; undumping them is
// the caller's concern.
package query

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynaplan/dynaplan/pkg/condition"
)

// Options collects the per-request knobs. Zero values mean unlimited or
// service defaults throughout.
type Options struct {
	// Index pins a named secondary index instead of letting the selector
	// choose.
	Index string

	// Projection restricts the attributes returned.
	Projection []string

	// ConsistentRead requests strongly consistent reads. Ignored on GSIs by
	// the service.
	ConsistentRead bool

	// Descending reverses range-key order on Query.
	Descending bool

	// CountOnly asks the service for counts instead of items.
	CountOnly bool

	// RecordLimit caps the total items yielded across all pages.
	RecordLimit int

	// ScanLimit caps the total items examined (before filtering) across all
	// pages.
	ScanLimit int

	// BatchSize caps the page size requested per wire call.
	BatchSize int

	// StartKey resumes from a previously returned continuation cursor.
	StartKey map[string]types.AttributeValue

	// RawFilters are caller-written filter clauses, ANDed with everything
	// else.
	RawFilters []condition.Expr

	// Backoff, when set, is invoked between successive wire calls.
	Backoff Backoff

	// Segment/TotalSegments configure one worker of a parallel scan.
	Segment       *int32
	TotalSegments *int32
}

// Option customizes one request.
type Option func(*Options)

// WithIndex pins a named index.
func WithIndex(name string) Option {
	return func(o *Options) { o.Index = name }
}

// WithProjection restricts returned attributes.
func WithProjection(fields ...string) Option {
	return func(o *Options) { o.Projection = fields }
}

// WithConsistentRead requests strongly consistent reads.
func WithConsistentRead() Option {
	return func(o *Options) { o.ConsistentRead = true }
}

// Descending reverses the range-key order.
func Descending() Option {
	return func(o *Options) { o.Descending = true }
}

// WithCountOnly requests counts instead of items.
func WithCountOnly() Option {
	return func(o *Options) { o.CountOnly = true }
}

// WithRecordLimit caps items yielded across all pages.
func WithRecordLimit(n int) Option {
	return func(o *Options) { o.RecordLimit = n }
}

// WithScanLimit caps items examined across all pages.
func WithScanLimit(n int) Option {
	return func(o *Options) { o.ScanLimit = n }
}

// WithBatchSize caps the per-call page size.
func WithBatchSize(n int) Option {
	return func(o *Options) { o.BatchSize = n }
}

// WithStartKey resumes from a continuation cursor.
func WithStartKey(key map[string]types.AttributeValue) Option {
	return func(o *Options) { o.StartKey = key }
}

// WithRawFilter adds a caller-written filter clause with bound values.
func WithRawFilter(statement string, values map[string]any) Option {
	return func(o *Options) {
		o.RawFilters = append(o.RawFilters, condition.Expr{
			Statement: statement,
			Values:    values,
		})
	}
}

// WithBackoff sets the delay strategy between wire calls.
func WithBackoff(b Backoff) Option {
	return func(o *Options) { o.Backoff = b }
}

// WithSegment configures one worker of a parallel scan.
func WithSegment(segment, totalSegments int32) Option {
	return func(o *Options) {
		o.Segment = &segment
		o.TotalSegments = &totalSegments
	}
}

// BuildOptions folds option funcs into a concrete Options value.
func BuildOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
