package distributed

import (
	"testing"

	"github.com/opencoff/slash/internal/bucket"
	"github.com/opencoff/slash/internal/queryresult"
)

func TestMergeQuerySumsSharedLabels(t *testing.T) {
	// rank a: [(7,3), (9,2), pad]; rank b: [(9,4), (5,1), pad]; k=3.
	// label 9 appears on both sides and sums to 6, so it must rank first.
	a := packAll([]bucket.LocalTopK{{Pairs: []bucket.Pair{{Label: 7, Count: 3}, {Label: 9, Count: 2}}}}, 3)
	b := packAll([]bucket.LocalTopK{{Pairs: []bucket.Pair{{Label: 9, Count: 4}, {Label: 5, Count: 1}}}}, 3)

	out := mergeBuffers(a, b, 1, 3)

	res := queryresult.New(1, 3)
	unpack(out, res, 1, 3)

	row := res.Row(0)
	wantIDs := []uint32{9, 7, 5}
	if len(row) != len(wantIDs) {
		t.Fatalf("row = %v, want ids %v", row, wantIDs)
	}
	for i, id := range wantIDs {
		if row[i] != id {
			t.Fatalf("row[%d] = %d, want %d (row=%v)", i, row[i], id, row)
		}
	}
}

func TestMergeQueryPadsExcludedFromResult(t *testing.T) {
	a := packAll([]bucket.LocalTopK{{Pairs: []bucket.Pair{{Label: 1, Count: 1}}}}, 4)
	b := packAll([]bucket.LocalTopK{{Pairs: nil}}, 4)

	out := mergeBuffers(a, b, 1, 4)
	res := queryresult.New(1, 4)
	unpack(out, res, 1, 4)

	if res.RowLen(0) != 1 {
		t.Fatalf("RowLen = %d, want 1 (pads must not count as entries)", res.RowLen(0))
	}
}

func TestMergeBuffersPerQueryIndependence(t *testing.T) {
	a := packAll([]bucket.LocalTopK{
		{Pairs: []bucket.Pair{{Label: 1, Count: 5}}},
		{Pairs: []bucket.Pair{{Label: 2, Count: 1}}},
	}, 2)
	b := packAll([]bucket.LocalTopK{
		{Pairs: []bucket.Pair{{Label: 3, Count: 9}}},
		{Pairs: []bucket.Pair{{Label: 4, Count: 1}}},
	}, 2)

	out := mergeBuffers(a, b, 2, 2)
	res := queryresult.New(2, 2)
	unpack(out, res, 2, 2)

	if res.Row(0)[0] != 3 {
		t.Fatalf("query 0 top label = %d, want 3", res.Row(0)[0])
	}
	if res.Row(1)[0] != 2 {
		t.Fatalf("query 1 top label = %d, want 2", res.Row(1)[0])
	}
}

func TestPackTruncatesToK(t *testing.T) {
	tk := bucket.LocalTopK{Pairs: []bucket.Pair{
		{Label: 1, Count: 9}, {Label: 2, Count: 8}, {Label: 3, Count: 7},
	}}
	buf := make([]uint32, packedWordsPerQuery(2))
	pack(buf, 0, tk, 2)

	if buf[0] != 1 || buf[1] != 9 || buf[2] != 2 || buf[3] != 8 {
		t.Fatalf("pack truncated incorrectly: %v", buf)
	}
}
