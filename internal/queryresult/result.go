// Package queryresult implements the query result container: the final
// Q*k label matrix and per-query length vector that the distributed driver
// populates on rank 0. There is no Clone method; callers should not alias
// a Row() slice across goroutines while the driver is still writing to it.
package queryresult

// Sentinel is the pad value used in padded record buffers throughout the
// distributed protocol: math.MaxUint32, treated by the merge as excluded
// from any real candidate list (see internal/distributed).
const Sentinel = ^uint32(0)

// Result owns a Q*k label matrix and a per-query valid-length vector. It is
// only meaningfully populated on rank 0 of a distributed query; other ranks
// get an empty Result from New, with Q rows of length 0.
type Result struct {
	ids     []uint32
	lengths []uint64
	q, k    uint64
}

// New allocates a Result for q queries, each with capacity for up to k
// labels.
func New(q, k uint64) *Result {
	return &Result{
		ids:     make([]uint32, q*k),
		lengths: make([]uint64, q),
		q:       q,
		k:       k,
	}
}

// Len returns the number of queries, Q.
func (r *Result) Len() uint64 { return r.q }

// RowLen returns the valid-prefix length of query i's row (<= k).
func (r *Result) RowLen(i uint64) uint64 { return r.lengths[i] }

// SetRowLen sets query i's valid-prefix length.
func (r *Result) SetRowLen(i, n uint64) { r.lengths[i] = n }

// Row returns the label slice of query i's valid prefix.
func (r *Result) Row(i uint64) []uint32 {
	base := i * r.k
	return r.ids[base : base+r.lengths[i]]
}

// SetLabel writes label at query i's slot j (j < k); used while unpacking
// the final merged buffer.
func (r *Result) SetLabel(i, j uint64, label uint32) {
	r.ids[i*r.k+j] = label
}

// K returns the configured per-query capacity.
func (r *Result) K() uint64 { return r.k }
