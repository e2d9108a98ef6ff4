package index

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynaplan/dynaplan/pkg/condition"
	"github.com/dynaplan/dynaplan/pkg/errors"
	"github.com/dynaplan/dynaplan/pkg/schema"
)

func usersSchema() *schema.TableSchema {
	return &schema.TableSchema{
		TableName: "users",
		HashKey:   "name",
		RangeKey:  "age",
		AttributeTypes: map[string]types.ScalarAttributeType{
			"name": types.ScalarAttributeTypeS,
			"age":  types.ScalarAttributeTypeN,
		},
	}
}

func parse(t *testing.T, in map[string]any) []condition.Condition {
	t.Helper()
	conds, err := condition.Parse(in)
	require.NoError(t, err)
	return conds
}

func TestSelect_PrimaryKeyQuery(t *testing.T) {
	conds := parse(t, map[string]any{"name": "Bob", "age.gt": 10})

	d, err := Select(usersSchema(), conds, "")
	require.NoError(t, err)
	assert.False(t, d.Scan)
	assert.Equal(t, "name", d.HashKey)
	assert.Equal(t, "age", d.RangeKey)
	assert.Empty(t, d.IndexName)
}

func TestSelect_RangeConditionMustBeKeyCapable(t *testing.T) {
	// "in" cannot appear in a key condition, so age stays a filter.
	conds := parse(t, map[string]any{"name": "Bob", "age.in": []int{1, 2}})

	d, err := Select(usersSchema(), conds, "")
	require.NoError(t, err)
	assert.Equal(t, "name", d.HashKey)
	assert.Empty(t, d.RangeKey)
}

func TestSelect_NoKeyPathFallsToScan(t *testing.T) {
	s := &schema.TableSchema{
		TableName: "users",
		HashKey:   "id",
		AttributeTypes: map[string]types.ScalarAttributeType{
			"id": types.ScalarAttributeTypeS,
		},
	}
	conds := parse(t, map[string]any{"city.eq": "NY"})

	d, err := Select(s, conds, "")
	require.NoError(t, err)
	assert.True(t, d.Scan)
}

func TestSelect_SecondaryIndex(t *testing.T) {
	s := usersSchema()
	s.Indexes = []schema.SecondaryIndex{
		{Name: "city-index", Kind: schema.IndexGlobal, HashKey: "city", Projection: schema.ProjectAll},
	}
	conds := parse(t, map[string]any{"city": "NY"})

	d, err := Select(s, conds, "")
	require.NoError(t, err)
	assert.False(t, d.Scan)
	assert.Equal(t, "city-index", d.IndexName)
	assert.Equal(t, "city", d.HashKey)
}

func TestSelect_PrimaryBeatsSecondary(t *testing.T) {
	s := usersSchema()
	s.Indexes = []schema.SecondaryIndex{
		{Name: "name-index", Kind: schema.IndexGlobal, HashKey: "name", Projection: schema.ProjectAll},
	}
	conds := parse(t, map[string]any{"name": "Bob"})

	d, err := Select(s, conds, "")
	require.NoError(t, err)
	assert.Empty(t, d.IndexName)
}

func TestSelect_RangeConstrainedIndexWins(t *testing.T) {
	s := usersSchema()
	s.HashKey = "id"
	s.RangeKey = ""
	s.Indexes = []schema.SecondaryIndex{
		{Name: "city-index", Kind: schema.IndexGlobal, HashKey: "city", Projection: schema.ProjectAll},
		{Name: "city-age-index", Kind: schema.IndexGlobal, HashKey: "city", RangeKey: "age", Projection: schema.ProjectAll},
	}
	conds := parse(t, map[string]any{"city": "NY", "age.gte": 21})

	d, err := Select(s, conds, "")
	require.NoError(t, err)
	assert.Equal(t, "city-age-index", d.IndexName)
	assert.Equal(t, "age", d.RangeKey)
}

func TestSelect_FirstDeclaredWinsOnTie(t *testing.T) {
	s := usersSchema()
	s.HashKey = "id"
	s.RangeKey = ""
	s.Indexes = []schema.SecondaryIndex{
		{Name: "first", Kind: schema.IndexGlobal, HashKey: "city", Projection: schema.ProjectAll},
		{Name: "second", Kind: schema.IndexGlobal, HashKey: "city", Projection: schema.ProjectAll},
	}
	conds := parse(t, map[string]any{"city": "NY"})

	d, err := Select(s, conds, "")
	require.NoError(t, err)
	assert.Equal(t, "first", d.IndexName)
}

func TestSelect_KeysOnlyIndexSkippedWhenFilteringOtherAttributes(t *testing.T) {
	s := usersSchema()
	s.HashKey = "id"
	s.RangeKey = ""
	s.Indexes = []schema.SecondaryIndex{
		{Name: "city-index", Kind: schema.IndexGlobal, HashKey: "city", Projection: schema.ProjectKeysOnly},
	}
	conds := parse(t, map[string]any{"city": "NY", "email.begins_with": "bob@"})

	d, err := Select(s, conds, "")
	require.NoError(t, err)
	assert.True(t, d.Scan)
}

func TestSelect_IncludeProjectionCoversFilteredAttribute(t *testing.T) {
	s := usersSchema()
	s.HashKey = "id"
	s.RangeKey = ""
	s.Indexes = []schema.SecondaryIndex{
		{
			Name:       "city-index",
			Kind:       schema.IndexGlobal,
			HashKey:    "city",
			Projection: schema.ProjectInclude,
			Includes:   []string{"email"},
		},
	}
	conds := parse(t, map[string]any{"city": "NY", "email.begins_with": "bob@"})

	d, err := Select(s, conds, "")
	require.NoError(t, err)
	assert.Equal(t, "city-index", d.IndexName)
}

func TestSelect_PinnedIndex(t *testing.T) {
	s := usersSchema()
	s.Indexes = []schema.SecondaryIndex{
		{Name: "city-index", Kind: schema.IndexGlobal, HashKey: "city", Projection: schema.ProjectAll},
	}
	conds := parse(t, map[string]any{"city": "NY"})

	d, err := Select(s, conds, "city-index")
	require.NoError(t, err)
	assert.False(t, d.Scan)
	assert.Equal(t, "city-index", d.IndexName)
	assert.Equal(t, "city", d.HashKey)

	_, err = Select(s, conds, "no-such-index")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidIndex)
	assert.Contains(t, err.Error(), "no-such-index")
}

func TestSelect_PinnedIndexWithoutHashEqScans(t *testing.T) {
	s := usersSchema()
	s.HashKey = "id"
	s.RangeKey = ""
	s.Indexes = []schema.SecondaryIndex{
		{Name: "by-email", Kind: schema.IndexGlobal, HashKey: "email", Projection: schema.ProjectAll},
	}
	conds := parse(t, map[string]any{"city.eq": "NY"})

	d, err := Select(s, conds, "by-email")
	require.NoError(t, err)
	assert.True(t, d.Scan)
	assert.Equal(t, "by-email", d.IndexName)
	assert.Empty(t, d.HashKey)
}
