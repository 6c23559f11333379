// Package bucket implements the reservoir-sampled bucket table bank, and
// the per-query candidate-frequency top-k aggregation that sits on top of
// it.
//
// A bulk-build side (Insert) and a query side (Query) share one underlying
// table. The bank is never persisted to disk and its table shape never
// changes after construction — only its contents grow via Insert.
package bucket

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/opencoff/slash/internal/randgen"
)

// maxRand is the size of the precomputed reservoir-replacement table.
const maxRand = 10000

// Pair is a (label, count) observation, the unit LocalTopK and the
// distributed driver's merge operate on.
type Pair struct {
	Label uint32
	Count uint32
}

// Bank is the reservoir-sampled bucket table bank. All inserts for a single
// call may run concurrently over records; all queries for a single call
// may run concurrently over queries. Insert and Query on the same Bank
// MUST NOT overlap in time.
type Bank struct {
	numTables     uint64
	rowsPerTable  uint64 // = range
	reservoirSize uint64
	mask          uint32

	data     []uint32 // [numTables][rowsPerTable][reservoirSize]
	counters []atomic.Uint32

	genRand []uint32
}

// NewBank allocates a Bank with L tables, each range-many rows of
// reservoirSize slots. range must be a power of two (it is always
// 1<<rangePow, the DOPH hasher's output range).
func NewBank(numTables, rangeSize, reservoirSize uint64) *Bank {
	b := &Bank{
		numTables:     numTables,
		rowsPerTable:  rangeSize,
		reservoirSize: reservoirSize,
		mask:          uint32(rangeSize - 1),
		data:          make([]uint32, numTables*rangeSize*reservoirSize),
		counters:      make([]atomic.Uint32, numTables*rangeSize),
		genRand:       genRandTable(maxRand),
	}
	return b
}

// genRandTable precomputes a genRand[i] = rand() mod (i+1) table, seeded
// deterministically so every rank's bank applies the exact same reservoir
// replacement policy.
func genRandTable(m uint64) []uint32 {
	g := make([]uint32, m)
	rs := randgen.New(0x2545f4914f6cdd1d)
	for i := uint64(1); i < m; i++ {
		g[i] = uint32(rs.Next() % (i + 1))
	}
	return g
}

func (b *Bank) counterIdx(table, row uint64) uint64 { return table*b.rowsPerTable + row }
func (b *Bank) dataIdx(table, row, slot uint64) uint64 {
	return table*b.rowsPerTable*b.reservoirSize + row*b.reservoirSize + slot
}
func (b *Bank) hashIdx(i, l, table uint64) uint64 { return i*l + table }

// Insert adds n records (labels[i], hashes[i*L:(i+1)*L]) to the bank. It is
// not idempotent: inserting the same batch twice doubles every touched
// counter. Safe to call concurrently with itself
// across disjoint or overlapping record ranges (the per-cell atomic
// counter linearizes concurrent arrivals); never call concurrently with
// Query.
func (b *Bank) Insert(labels []uint32, hashes []uint32) {
	n := uint64(len(labels))
	l := b.numTables
	for i := uint64(0); i < n; i++ {
		label := labels[i]
		for t := uint64(0); t < l; t++ {
			row := uint64(hashes[b.hashIdx(i, l, t)] & b.mask)
			b.insertOne(t, row, label)
		}
	}
}

func (b *Bank) insertOne(table, row uint64, label uint32) {
	ci := b.counterIdx(table, row)
	c := uint64(b.counters[ci].Add(1) - 1) // zero-based arrival index

	if c < b.reservoirSize {
		b.data[b.dataIdx(table, row, c)] = label
		return
	}

	slot := uint64(b.genRand[c%maxRand])
	if slot < b.reservoirSize {
		b.data[b.dataIdx(table, row, slot)] = label
	}
}

// QueryWithCounts returns, for each of n queries, the top-k (label, count)
// pairs by cross-table co-occurrence frequency, counts non-increasing,
// length <= k. hashes is the n*L signature matrix produced by the same
// Hasher used at insert time.
func (b *Bank) QueryWithCounts(hashes []uint32, n, k uint64) []LocalTopK {
	l := b.numTables
	out := make([]LocalTopK, n)

	for q := uint64(0); q < n; q++ {
		hist := make(map[uint32]uint32, b.reservoirSize*l)
		for t := uint64(0); t < l; t++ {
			row := uint64(hashes[b.hashIdx(q, l, t)] & b.mask)
			ci := b.counterIdx(t, row)
			cnt := b.counters[ci].Load()
			lim := uint64(cnt)
			if lim > b.reservoirSize {
				lim = b.reservoirSize
			}
			for s := uint64(0); s < lim; s++ {
				hist[b.data[b.dataIdx(t, row, s)]]++
			}
		}

		pairs := make([]Pair, 0, len(hist))
		for label, count := range hist {
			pairs = append(pairs, Pair{Label: label, Count: count})
		}
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i].Count != pairs[j].Count {
				return pairs[i].Count > pairs[j].Count
			}
			return pairs[i].Label < pairs[j].Label
		})

		if uint64(len(pairs)) > k {
			pairs = pairs[:k]
		}
		out[q] = LocalTopK{Pairs: pairs}
	}

	return out
}

// Query is QueryWithCounts with counts stripped, for callers that only
// need labels.
func (b *Bank) Query(hashes []uint32, n, k uint64) [][]uint32 {
	withCounts := b.QueryWithCounts(hashes, n, k)
	out := make([][]uint32, n)
	for i, tk := range withCounts {
		labels := make([]uint32, len(tk.Pairs))
		for j, p := range tk.Pairs {
			labels[j] = p.Label
		}
		out[i] = labels
	}
	return out
}

// LocalTopK is the in-flight payload of a single query's candidate list:
// an ordered list of up to k (label,count) pairs, counts non-increasing.
type LocalTopK struct {
	Pairs []Pair
}

// DebugDump writes the per-(table,row) counters and stored labels. Used by
// tests and available to callers for diagnostics; not part of the CLI
// surface.
func (b *Bank) DebugDump(w fmtStringer) {
	for t := uint64(0); t < b.numTables; t++ {
		fmt.Fprintf(w, "Table: %d\n", t)
		for r := uint64(0); r < b.rowsPerTable; r++ {
			cnt := b.counters[b.counterIdx(t, r)].Load()
			fmt.Fprintf(w, "[ %d :: %d ]", r, cnt)
			lim := uint64(cnt)
			if lim > b.reservoirSize {
				lim = b.reservoirSize
			}
			for s := uint64(0); s < lim; s++ {
				fmt.Fprintf(w, "\t%d", b.data[b.dataIdx(t, r, s)])
			}
			fmt.Fprintln(w)
		}
	}
}

// fmtStringer is the minimal io.Writer-like surface DebugDump needs; kept
// narrow so tests can pass a *bytes.Buffer or *strings.Builder directly.
type fmtStringer interface {
	Write(p []byte) (n int, err error)
}
