package btree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/stratadb/value"
)

func TestInsertSearchBasic(t *testing.T) {
	bt := New()
	bt.Insert(value.Int64(5), 100)
	bt.Insert(value.Int64(3), 101)
	bt.Insert(value.Int64(9), 102)

	assert.Equal(t, []int64{100}, bt.Search(value.Int64(5)))
	assert.Equal(t, []int64{101}, bt.Search(value.Int64(3)))
	assert.Empty(t, bt.Search(value.Int64(42)))
	assert.Equal(t, 3, bt.Size())
}

func TestDuplicateKeys(t *testing.T) {
	bt := New()
	bt.Insert(value.Text("dup"), 1)
	bt.Insert(value.Text("dup"), 2)
	bt.Insert(value.Text("dup"), 3)

	got := bt.Search(value.Text("dup"))
	assert.ElementsMatch(t, []int64{1, 2, 3}, got)
}

func TestSplitsAcrossManyInserts(t *testing.T) {
	bt := New()
	const n = 5000
	for i := 0; i < n; i++ {
		bt.Insert(value.Int64(int64(i)), int64(i)*10)
	}
	require.Equal(t, n, bt.Size())

	for i := 0; i < n; i += 137 {
		got := bt.Search(value.Int64(int64(i)))
		require.Equal(t, []int64{int64(i) * 10}, got, "key %d", i)
	}
}

func TestFindRangeInclusivity(t *testing.T) {
	bt := New()
	for i := 0; i < 100; i++ {
		bt.Insert(value.Int64(int64(i)), int64(i))
	}

	entries := bt.FindRange(value.Int64(10), value.Int64(20), true, true)
	require.Len(t, entries, 11)
	assert.Equal(t, int64(10), entries[0].RowID)
	assert.Equal(t, int64(20), entries[len(entries)-1].RowID)

	exclusive := bt.FindRange(value.Int64(10), value.Int64(20), false, false)
	require.Len(t, exclusive, 9)
	assert.Equal(t, int64(11), exclusive[0].RowID)
	assert.Equal(t, int64(19), exclusive[len(exclusive)-1].RowID)
}

func TestFindRangeAscendingOrder(t *testing.T) {
	bt := New()
	order := rand.New(rand.NewSource(1))
	keys := order.Perm(2000)
	for _, k := range keys {
		bt.Insert(value.Int64(int64(k)), int64(k))
	}

	entries := bt.FindRange(value.Int64(0), value.Int64(1999), true, true)
	require.Len(t, entries, 2000)
	for i := 1; i < len(entries); i++ {
		assert.True(t, value.Compare(entries[i-1].Key, entries[i].Key) < 0)
	}
}

func TestDeleteShrinksAndRebalances(t *testing.T) {
	bt := New()
	const n = 3000
	for i := 0; i < n; i++ {
		bt.Insert(value.Int64(int64(i)), int64(i))
	}

	for i := 0; i < n; i += 3 {
		ok := bt.Delete(value.Int64(int64(i)), int64(i))
		require.True(t, ok, "delete %d", i)
	}
	require.Equal(t, n-len(rangeEvery(n, 3)), bt.Size())

	for i := 0; i < n; i++ {
		got := bt.Search(value.Int64(int64(i)))
		if i%3 == 0 {
			assert.Empty(t, got, "key %d should be deleted", i)
		} else {
			assert.Equal(t, []int64{int64(i)}, got, "key %d should survive", i)
		}
	}
}

func TestDeleteMissingReturnsFalse(t *testing.T) {
	bt := New()
	bt.Insert(value.Int64(1), 1)
	assert.False(t, bt.Delete(value.Int64(2), 2))
	assert.False(t, bt.Delete(value.Int64(1), 999))
	assert.True(t, bt.Delete(value.Int64(1), 1))
}

func TestLeafLinksSurviveSplitsAndMerges(t *testing.T) {
	bt := New()
	const n = 1000
	for i := 0; i < n; i++ {
		bt.Insert(value.Int64(int64(i)), int64(i))
	}
	for i := 0; i < n/2; i++ {
		bt.Delete(value.Int64(int64(i)), int64(i))
	}

	entries := bt.FindRange(value.Int64(0), value.Int64(int64(n)), true, true)
	for i := 1; i < len(entries); i++ {
		require.True(t, value.Compare(entries[i-1].Key, entries[i].Key) <= 0)
	}
}

func rangeEvery(n, step int) []int {
	var out []int
	for i := 0; i < n; i += step {
		out = append(out, i)
	}
	return out
}
