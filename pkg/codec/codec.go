// Package codec provides attribute codecs: the functions that dump caller
// values to DynamoDB wire format and undump them back. The planning layer
// only ever sees the dumped form.
package codec

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynaplan/dynaplan/pkg/core"
)

// DumpFunc converts one caller value to wire format.
type DumpFunc func(value any) (types.AttributeValue, error)

// UndumpFunc converts one wire value back to a caller value.
type UndumpFunc func(av types.AttributeValue) (any, error)

// Codec dumps values with the SDK attributevalue marshaler, with optional
// per-attribute overrides supplied by the ORM layer (custom date formats,
// sets, packed values and the like).
type Codec struct {
	dumps   map[string]DumpFunc
	undumps map[string]UndumpFunc
}

var _ core.AttributeCodec = (*Codec)(nil)

// Option customizes a Codec.
type Option func(*Codec)

// WithDump overrides dumping for one attribute.
func WithDump(attribute string, fn DumpFunc) Option {
	return func(c *Codec) {
		c.dumps[attribute] = fn
	}
}

// WithUndump overrides undumping for one attribute.
func WithUndump(attribute string, fn UndumpFunc) Option {
	return func(c *Codec) {
		c.undumps[attribute] = fn
	}
}

// New creates a codec.
func New(opts ...Option) *Codec {
	c := &Codec{
		dumps:   make(map[string]DumpFunc),
		undumps: make(map[string]UndumpFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dump implements core.AttributeCodec.
func (c *Codec) Dump(attribute string, value any) (types.AttributeValue, error) {
	if fn, ok := c.dumps[attribute]; ok {
		return fn(value)
	}
	if av, ok := value.(types.AttributeValue); ok {
		// Pre-dumped values pass through, e.g. cursor keys fed back in.
		return av, nil
	}
	av, err := attributevalue.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", attribute, err)
	}
	return av, nil
}

// Undump implements core.AttributeCodec.
func (c *Codec) Undump(attribute string, av types.AttributeValue) (any, error) {
	if fn, ok := c.undumps[attribute]; ok {
		return fn(av)
	}
	var out any
	if err := attributevalue.Unmarshal(av, &out); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", attribute, err)
	}
	return out, nil
}

// DumpItem dumps a whole attribute mapping.
func (c *Codec) DumpItem(values map[string]any) (core.Item, error) {
	item := make(core.Item, len(values))
	for attribute, value := range values {
		av, err := c.Dump(attribute, value)
		if err != nil {
			return nil, err
		}
		item[attribute] = av
	}
	return item, nil
}

// UndumpItem undumps a whole attribute mapping.
func (c *Codec) UndumpItem(item core.Item) (map[string]any, error) {
	values := make(map[string]any, len(item))
	for attribute, av := range item {
		value, err := c.Undump(attribute, av)
		if err != nil {
			return nil, err
		}
		values[attribute] = value
	}
	return values, nil
}
