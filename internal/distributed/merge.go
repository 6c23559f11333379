// merge.go -- the rank-tree reduction of per-query top-k candidate lists
//
// Packs a rank's local LocalTopK lists into a fixed-shape send buffer, runs
// the pairwise tree-reduction merge, and unpacks the final rank-0 buffer
// into a queryresult.Result.
package distributed

import (
	"github.com/opencoff/slash/internal/bucket"
	"github.com/opencoff/slash/internal/queryresult"
)

// packedWordsPerQuery is 2*k: an (id, count) pair per slot.
func packedWordsPerQuery(k uint64) uint64 { return 2 * k }

// pack lays out q's top-k list into buf[base:base+2k], id at even offsets,
// count at odd offsets, padding unused slots with the sentinel so every
// query's entry is a fixed 2k words regardless of how many candidates the
// local bank actually found.
func pack(buf []uint32, base uint64, tk bucket.LocalTopK, k uint64) {
	var i uint64
	for ; i < uint64(len(tk.Pairs)) && i < k; i++ {
		buf[base+2*i] = tk.Pairs[i].Label
		buf[base+2*i+1] = tk.Pairs[i].Count
	}
	for ; i < k; i++ {
		buf[base+2*i] = queryresult.Sentinel
		buf[base+2*i+1] = queryresult.Sentinel
	}
}

// packAll builds the full Q*2k send buffer for a rank's local query
// results.
func packAll(local []bucket.LocalTopK, k uint64) []uint32 {
	q := uint64(len(local))
	buf := make([]uint32, q*packedWordsPerQuery(k))
	for i, tk := range local {
		pack(buf, uint64(i)*packedWordsPerQuery(k), tk, k)
	}
	return buf
}

// mergeEntry is one (label,count) slot read back out of a packed buffer,
// with isPad marking sentinel slots. The pad sentinel is treated as
// minus-infinity: pad slots are simply excluded from the merge rather than
// sorted to the front and discarded at unpack.
type mergeEntry struct {
	label uint32
	count uint32
	isPad bool
}

func readEntry(buf []uint32, base uint64) mergeEntry {
	id := buf[base]
	cnt := buf[base+1]
	if id == queryresult.Sentinel && cnt == queryresult.Sentinel {
		return mergeEntry{isPad: true}
	}
	return mergeEntry{label: id, count: cnt}
}

// mergeQuery merges one query's two padded (id,count) lists, summing counts
// for labels both sides observed so a candidate's total count is
// conserved regardless of how the corpus was sharded across ranks, and
// writes exactly k padded pairs into dst[dstBase:dstBase+2k].
func mergeQuery(dst []uint32, dstBase uint64, a, b []uint32, aBase, bBase, k uint64) {
	// Labels seen on either side, counts summed where both sides agree.
	seen := make(map[uint32]uint32, 2*k)
	order := make([]uint32, 0, 2*k)

	collect := func(buf []uint32, base uint64) {
		for i := uint64(0); i < k; i++ {
			e := readEntry(buf, base+2*i)
			if e.isPad {
				continue
			}
			if _, ok := seen[e.label]; !ok {
				order = append(order, e.label)
			}
			seen[e.label] += e.count
		}
	}
	collect(a, aBase)
	collect(b, bBase)

	// Stable sort by descending summed count; ties keep first-seen order
	// (side a before side b), matching LocalTopK's "ties broken
	// arbitrarily but stably" contract.
	sortByCountDesc(order, seen)

	var i uint64
	for ; i < uint64(len(order)) && i < k; i++ {
		dst[dstBase+2*i] = order[i]
		dst[dstBase+2*i+1] = seen[order[i]]
	}
	for ; i < k; i++ {
		dst[dstBase+2*i] = queryresult.Sentinel
		dst[dstBase+2*i+1] = queryresult.Sentinel
	}
}

// sortByCountDesc is a small stable insertion sort; candidate lists are at
// most 2k entries (k is typically single digits to low hundreds), so an
// O(n^2) stable sort is simpler and fast enough here.
func sortByCountDesc(labels []uint32, counts map[uint32]uint32) {
	for i := 1; i < len(labels); i++ {
		for j := i; j > 0 && counts[labels[j-1]] < counts[labels[j]]; j-- {
			labels[j-1], labels[j] = labels[j], labels[j-1]
		}
	}
}

// mergeBuffers merges two full Q*2k buffers query-by-query into a freshly
// allocated Q*2k buffer.
func mergeBuffers(a, b []uint32, q, k uint64) []uint32 {
	out := make([]uint32, q*packedWordsPerQuery(k))
	wpq := packedWordsPerQuery(k)
	for i := uint64(0); i < q; i++ {
		mergeQuery(out, i*wpq, a, b, i*wpq, i*wpq, k)
	}
	return out
}

// unpack scans rank 0's final Q*2k buffer into res, stopping each row at
// the first pad slot or at k, whichever comes first.
func unpack(buf []uint32, res *queryresult.Result, q, k uint64) {
	wpq := packedWordsPerQuery(k)
	for i := uint64(0); i < q; i++ {
		base := i * wpq
		var n uint64
		for ; n < k; n++ {
			id := buf[base+2*n]
			cnt := buf[base+2*n+1]
			if id == queryresult.Sentinel && cnt == queryresult.Sentinel {
				break
			}
			res.SetLabel(i, n, id)
		}
		res.SetRowLen(i, n)
	}
}
