// Package schema describes DynamoDB tables to the planning layer: key
// attributes, secondary indexes and attribute types. Descriptors are built
// once by the ORM layer and treated as immutable afterwards.
package schema

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dynaplan/dynaplan/pkg/errors"
)

// ProjectionKind is what an index projects for each item.
type ProjectionKind string

const (
	ProjectKeysOnly ProjectionKind = "KEYS_ONLY"
	ProjectAll      ProjectionKind = "ALL"
	ProjectInclude  ProjectionKind = "INCLUDE"
)

// IndexKind distinguishes local from global secondary indexes.
type IndexKind string

const (
	IndexLocal  IndexKind = "LSI"
	IndexGlobal IndexKind = "GSI"
)

// SecondaryIndex describes one LSI or GSI. Immutable after validation.
type SecondaryIndex struct {
	Name       string
	Kind       IndexKind
	HashKey    string
	RangeKey   string // optional
	Projection ProjectionKind
	// Includes lists the non-key attributes projected when Projection is
	// ProjectInclude.
	Includes []string

	// Provisioned capacity; zero means inherit/on-demand.
	ReadCapacityUnits  int64
	WriteCapacityUnits int64
}

// ProjectsAll reports whether every table attribute is readable through the
// index without a fetch back to the base table.
func (i SecondaryIndex) ProjectsAll() bool {
	return i.Projection == ProjectAll
}

// Covers reports whether the named attribute is readable through the index.
func (i SecondaryIndex) Covers(attribute string) bool {
	if i.Projection == ProjectAll {
		return true
	}
	if attribute == i.HashKey || attribute == i.RangeKey {
		return true
	}
	if i.Projection == ProjectInclude {
		for _, inc := range i.Includes {
			if inc == attribute {
				return true
			}
		}
	}
	return false
}

// TableSchema is the immutable descriptor the planning layer consumes.
// AttributeTypes maps attribute names to their DynamoDB scalar type
// ("S", "N" or "B"); only key attributes need to be present.
type TableSchema struct {
	TableName      string
	HashKey        string
	RangeKey       string // optional
	Indexes        []SecondaryIndex
	AttributeTypes map[string]types.ScalarAttributeType

	// Provisioned capacity for CreateTable; zero means on-demand billing.
	ReadCapacityUnits  int64
	WriteCapacityUnits int64
}

// HasRangeKey reports whether the table uses a composite primary key.
func (s *TableSchema) HasRangeKey() bool {
	return s.RangeKey != ""
}

// Index returns the named secondary index, or false when it doesn't exist.
func (s *TableSchema) Index(name string) (SecondaryIndex, bool) {
	for _, idx := range s.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return SecondaryIndex{}, false
}

// KeyAttributes returns the set of attributes that are a hash or range key of
// the table or of any index.
func (s *TableSchema) KeyAttributes() map[string]struct{} {
	keys := map[string]struct{}{s.HashKey: {}}
	if s.RangeKey != "" {
		keys[s.RangeKey] = struct{}{}
	}
	for _, idx := range s.Indexes {
		keys[idx.HashKey] = struct{}{}
		if idx.RangeKey != "" {
			keys[idx.RangeKey] = struct{}{}
		}
	}
	return keys
}

// Validate checks the descriptor before it enters the cache. Every key
// attribute (table and index) must carry a declared key-capable type.
func (s *TableSchema) Validate() error {
	if s.TableName == "" {
		return fmt.Errorf("%w: table name is empty", errors.ErrInvalidSchema)
	}
	if s.HashKey == "" {
		return fmt.Errorf("%w: table %s has no hash key", errors.ErrInvalidSchema, s.TableName)
	}
	if err := s.validateKeyAttribute(s.HashKey); err != nil {
		return err
	}
	if s.RangeKey != "" {
		if err := s.validateKeyAttribute(s.RangeKey); err != nil {
			return err
		}
	}

	seen := make(map[string]struct{}, len(s.Indexes))
	for _, idx := range s.Indexes {
		if idx.Name == "" {
			return fmt.Errorf("%w: table %s has an unnamed index", errors.ErrInvalidSchema, s.TableName)
		}
		if _, dup := seen[idx.Name]; dup {
			return fmt.Errorf("%w: duplicate index %s", errors.ErrInvalidSchema, idx.Name)
		}
		seen[idx.Name] = struct{}{}

		if idx.HashKey == "" {
			return fmt.Errorf("%w: index %s has no hash key", errors.ErrInvalidSchema, idx.Name)
		}
		if err := s.validateKeyAttribute(idx.HashKey); err != nil {
			return err
		}
		if idx.RangeKey != "" {
			if err := s.validateKeyAttribute(idx.RangeKey); err != nil {
				return err
			}
		}
		if idx.Kind == IndexLocal && idx.HashKey != s.HashKey {
			return fmt.Errorf("%w: local index %s must share the table hash key", errors.ErrInvalidSchema, idx.Name)
		}
		switch idx.Projection {
		case ProjectKeysOnly, ProjectAll, ProjectInclude, "":
		default:
			return fmt.Errorf("%w: index %s has unknown projection %q", errors.ErrInvalidSchema, idx.Name, idx.Projection)
		}
	}
	return nil
}

func (s *TableSchema) validateKeyAttribute(name string) error {
	t, ok := s.AttributeTypes[name]
	if !ok {
		return fmt.Errorf("%w: key attribute %s has no declared type", errors.ErrInvalidSchema, name)
	}
	switch t {
	case types.ScalarAttributeTypeS, types.ScalarAttributeTypeN, types.ScalarAttributeTypeB:
		return nil
	default:
		return fmt.Errorf("%w: key attribute %s has non-key type %q", errors.ErrInvalidSchema, name, t)
	}
}
