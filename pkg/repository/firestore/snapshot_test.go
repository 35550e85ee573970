package firestore_test

import (
	"bytes"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/taxagent/pkg/repository/firestore"
)

func TestSplitParts(t *testing.T) {
	t.Run("empty data yields one empty part", func(t *testing.T) {
		parts := firestore.SplitParts(nil, 4)
		gt.Array(t, parts).Length(1)
		gt.Array(t, parts[0]).Length(0)
	})

	t.Run("data is split in order and rejoins", func(t *testing.T) {
		data := []byte("0123456789")
		parts := firestore.SplitParts(data, 4)
		gt.Array(t, parts).Length(3)
		gt.Value(t, string(parts[2])).Equal("89")
		gt.Value(t, bytes.Join(parts, nil)).Equal(data)
	})

	t.Run("exact multiple has no trailing empty part", func(t *testing.T) {
		parts := firestore.SplitParts([]byte("abcdef"), 3)
		gt.Array(t, parts).Length(2)
	})
}

func TestCommitBatches(t *testing.T) {
	t.Run("small parts split by byte budget", func(t *testing.T) {
		parts := firestore.SplitParts(bytes.Repeat([]byte("x"), 25), 4)
		gt.Array(t, parts).Length(7)

		batches := firestore.CommitBatches(parts, 10, firestore.MaxCommitWrites)
		gt.Value(t, batches).Equal([][2]int{{0, 2}, {2, 4}, {4, 6}, {6, 7}})
	})

	t.Run("write count caps a batch", func(t *testing.T) {
		parts := firestore.SplitParts(bytes.Repeat([]byte("x"), 10), 1)
		batches := firestore.CommitBatches(parts, 100, 4)
		gt.Value(t, batches).Equal([][2]int{{0, 4}, {4, 8}, {8, 10}})
	})

	t.Run("oversized part still gets its own batch", func(t *testing.T) {
		parts := [][]byte{make([]byte, 20), make([]byte, 3)}
		batches := firestore.CommitBatches(parts, 10, firestore.MaxCommitWrites)
		gt.Value(t, batches).Equal([][2]int{{0, 1}, {1, 2}})
	})

	t.Run("large snapshot stays under the commit limit", func(t *testing.T) {
		const partSize = 900 * 1024
		parts := firestore.SplitParts(make([]byte, 25*1024*1024), partSize)
		gt.Array(t, parts).Length(29)

		batches := firestore.CommitBatches(parts, firestore.MaxCommitBytes, firestore.MaxCommitWrites)
		gt.Number(t, len(batches)).Greater(2)

		next := 0
		for _, b := range batches {
			gt.Value(t, b[0]).Equal(next)
			size := 0
			for _, p := range parts[b[0]:b[1]] {
				size += len(p)
			}
			gt.Number(t, size).LessOrEqual(firestore.MaxCommitBytes)
			next = b[1]
		}
		gt.Value(t, next).Equal(len(parts))
	})
}
