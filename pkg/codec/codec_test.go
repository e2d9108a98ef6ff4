package codec

import (
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDump_Defaults(t *testing.T) {
	c := New()

	av, err := c.Dump("name", "Bob")
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "Bob"}, av)

	av, err = c.Dump("age", 42)
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "42"}, av)

	av, err = c.Dump("active", true)
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberBOOL{Value: true}, av)
}

func TestDump_PreDumpedPassthrough(t *testing.T) {
	c := New()
	in := &types.AttributeValueMemberS{Value: "already wire format"}

	av, err := c.Dump("anything", in)
	require.NoError(t, err)
	assert.Same(t, in, av)
}

func TestDump_AttributeOverride(t *testing.T) {
	c := New(WithDump("created_at", func(value any) (types.AttributeValue, error) {
		ts := value.(time.Time)
		return &types.AttributeValueMemberN{Value: ts.UTC().Format("20060102150405")}, nil
	}))

	av, err := c.Dump("created_at", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "20240301120000"}, av)

	// Other attributes keep the default marshaler.
	av, err = c.Dump("name", "x")
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "x"}, av)
}

func TestUndump_RoundTrip(t *testing.T) {
	c := New()

	out, err := c.Undump("name", &types.AttributeValueMemberS{Value: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "Bob", out)
}

func TestUndump_AttributeOverride(t *testing.T) {
	c := New(WithUndump("age", func(av types.AttributeValue) (any, error) {
		return "overridden", nil
	}))

	out, err := c.Undump("age", &types.AttributeValueMemberN{Value: "5"})
	require.NoError(t, err)
	assert.Equal(t, "overridden", out)
}

func TestItemRoundTrip(t *testing.T) {
	c := New()

	item, err := c.DumpItem(map[string]any{"id": "a1", "count": 3})
	require.NoError(t, err)
	require.Len(t, item, 2)

	values, err := c.UndumpItem(item)
	require.NoError(t, err)
	assert.Equal(t, "a1", values["id"])
}
