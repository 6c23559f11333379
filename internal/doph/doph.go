// Package doph implements the Densified One-Permutation MinHash family
// SLASH uses to turn a sparse vector's nonzero index set into L bucket
// signatures: one-permutation partitioning into bins, densification of
// empty bins by double hashing, and a K-wise combination of bin values into
// per-table signatures.
//
// Construction mirrors a build-then-freeze split: New() derives the
// family's random state once, and the read-only Hash() is used afterwards.
// Every random draw must be reproducible across ranks without
// communication (see randgen), so none of it is drawn from crypto/rand.
package doph

import (
	"fmt"
	"math/bits"

	"github.com/opencoff/slash/internal/dataset"
	"github.com/opencoff/slash/internal/randgen"
)

const nullHash = ^uint32(0)

// Params are the construction-time scalars for a Hasher.
type Params struct {
	K        uint64
	L        uint64
	RangePow uint64
}

// Hasher is an immutable, read-shared DOPH hash family. Two Hashers built
// from identical Params are bit-for-bit identical: every rank in a SLASH
// world constructs its own Hasher from the same Params and never exchanges
// the derived seeds over the wire.
type Hasher struct {
	k, l         uint64
	rangePow     uint64
	rng          uint64 // 1 << rangePow
	numHashes    uint64
	binsize      uint64
	logNumHashes uint64

	randSeeds []uint32
	seed      uint32
	dhSeed    uint32
}

// New constructs a Hasher, deriving its random state deterministically from
// p. It rejects degenerate parameterizations: K*L must not exceed the
// output range, and the derived binsize must be nonzero.
func New(p Params) (*Hasher, error) {
	numHashes := p.K * p.L
	rng := uint64(1) << p.RangePow

	if numHashes == 0 {
		return nil, fmt.Errorf("doph: K*L must be positive")
	}
	if numHashes > rng {
		return nil, fmt.Errorf("doph: K*L (%d) exceeds range 2^%d: %w", numHashes, p.RangePow, ErrDegenerate)
	}

	binsize := (rng + numHashes - 1) / numHashes // ceil(range/numHashes)
	if binsize == 0 {
		return nil, fmt.Errorf("doph: binsize underflowed: %w", ErrDegenerate)
	}

	randSeeds, seed, dhSeed := deriveSeeds(numHashes)

	return &Hasher{
		k:            p.K,
		l:            p.L,
		rangePow:     p.RangePow,
		rng:          rng,
		numHashes:    numHashes,
		binsize:      binsize,
		logNumHashes: uint64(bits.Len64(numHashes) - 1),
		randSeeds:    randSeeds,
		seed:         seed,
		dhSeed:       dhSeed,
	}, nil
}

func deriveSeeds(numHashes uint64) (randSeeds []uint32, seed, dhSeed uint32) {
	rs := randgen.New(0xd1b54a32d192ed03)
	randSeeds = make([]uint32, numHashes)
	for i := range randSeeds {
		randSeeds[i] = randgen.Odd(rs.Uint32())
	}
	seed = randgen.Odd(randgen.New(0x9e3779b97f4a7c15).Uint32())
	dhSeed = randgen.Odd(randgen.New(0xc2b2ae3d27d4eb4f).Uint32())
	return
}

// Range returns 2^rangePow, the exclusive upper bound of every signature
// this Hasher emits.
func (h *Hasher) Range() uint64 { return h.rng }

// L returns the number of tables (signatures per vector) this Hasher emits.
func (h *Hasher) L() uint64 { return h.l }

// hashIdx is the row-major offset of vector i's signature for table t in a
// flat n*L signature matrix.
func hashIdx(i, l, t uint64) uint64 { return i*l + t }

// Hash computes the n*L signature matrix for rows [offset, offset+n) of
// dataset ds. The result is row-major: signature for row i (relative to
// offset), table t is at result[i*L+t]. Hash is pure: it never mutates h
// and, for identical (h, ds, offset, n), always returns the same matrix.
func (h *Hasher) Hash(ds *dataset.SparseVectorSet, offset, n uint64) []uint32 {
	out := make([]uint32, n*h.l)

	for row := uint64(0); row < n; row++ {
		nz := ds.Indices(offset + row)
		minbin := h.computeMinHashes(nz)

		for t := uint64(0); t < h.l; t++ {
			var index uint32
			for k := uint64(0); k < h.k; k++ {
				g := minbin[t*h.k+k]
				rs := h.randSeeds[t*h.k+k]
				m := g * rs
				m ^= m >> 13
				m ^= rs
				index += m * g
			}
			out[hashIdx(row, h.l, t)] = (index << 2) >> (32 - uint32(h.rangePow))
		}
	}

	return out
}

// computeMinHashes runs one-permutation partitioning followed by
// densification of empty bins, returning one MinHash value per bin
// (numHashes bins total).
func (h *Hasher) computeMinHashes(nz []uint32) []uint32 {
	minbin := make([]uint32, h.numHashes)
	for i := range minbin {
		minbin[i] = nullHash
	}

	for _, x := range nz {
		hh := x * h.seed
		hh ^= hh >> 13
		hh *= 0x85ebca6b
		curhash := (hh * x << 5) >> (32 - uint32(h.rangePow))

		binid := curhash / uint32(h.binsize)
		if uint64(binid) >= h.numHashes-1 {
			binid = uint32(h.numHashes - 1)
		}

		if curhash < minbin[binid] {
			minbin[binid] = curhash
		}
	}

	final := make([]uint32, h.numHashes)
	for bin := uint64(0); bin < h.numHashes; bin++ {
		next := minbin[bin]
		if next != nullHash {
			final[bin] = next
			continue
		}

		cnt := uint32(0)
		for next == nullHash {
			cnt++
			idx := h.randDoubleHash(uint32(bin), cnt)
			next = minbin[idx]
			if cnt > 100 {
				next = nullHash
				break
			}
		}
		final[bin] = next
	}

	return final
}

// randDoubleHash computes the densification probe sequence for bin binid,
// round cnt.
func (h *Hasher) randDoubleHash(binid, cnt uint32) uint32 {
	val := ((binid + 1) << 10) + cnt
	return (h.dhSeed * val << 3) >> (32 - uint32(h.logNumHashes))
}
