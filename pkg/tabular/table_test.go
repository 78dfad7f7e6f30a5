package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendRowArity(t *testing.T) {
	t.Parallel()

	table := New("id", "name")
	require.NoError(t, table.AppendRow(int64(1), "one"))
	assert.Error(t, table.AppendRow(int64(2)))
	assert.Equal(t, 1, table.Len())
}

func TestColumnAndValue(t *testing.T) {
	t.Parallel()

	table := New("id", "name")
	require.NoError(t, table.AppendRow(int64(1), "one"))

	idx, ok := table.Column("name")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = table.Column("missing")
	assert.False(t, ok)

	v, ok := table.Value(0, "name")
	assert.True(t, ok)
	assert.Equal(t, "one", v)

	_, ok = table.Value(5, "name")
	assert.False(t, ok)
}

func TestEqual(t *testing.T) {
	t.Parallel()

	a := &Table{Columns: []string{"x"}, Rows: [][]any{{int64(1)}, {int64(2)}}}
	b := &Table{Columns: []string{"x"}, Rows: [][]any{{int64(1)}, {int64(2)}}}
	reordered := &Table{Columns: []string{"x"}, Rows: [][]any{{int64(2)}, {int64(1)}}}
	renamed := &Table{Columns: []string{"y"}, Rows: [][]any{{int64(1)}, {int64(2)}}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(reordered))
	assert.False(t, a.Equal(renamed))
	assert.False(t, a.Equal(nil))

	var nilTable *Table
	assert.True(t, nilTable.Equal(nil))
}

func TestNewCopiesColumns(t *testing.T) {
	t.Parallel()

	cols := []string{"a", "b"}
	table := New(cols...)
	cols[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, table.Columns)
}

func TestEqualComparesNumbersByValue(t *testing.T) {
	t.Parallel()

	native := &Table{Columns: []string{"n", "f"}, Rows: [][]any{{1, float32(1.5)}}}
	widened := &Table{Columns: []string{"n", "f"}, Rows: [][]any{{int64(1), 1.5}}}
	differentValue := &Table{Columns: []string{"n", "f"}, Rows: [][]any{{int64(2), 1.5}}}
	asText := &Table{Columns: []string{"n", "f"}, Rows: [][]any{{"1", 1.5}}}

	assert.True(t, native.Equal(widened))
	assert.False(t, native.Equal(differentValue))
	assert.False(t, native.Equal(asText))
}
