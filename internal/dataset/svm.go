// Package dataset implements a zero-copy sparse vector set view and the
// libSVM-format reader that populates it: a single pass over a
// bufio.Scanner, no external tokenizer dependency.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/opencoff/go-fasthash"
)

// ErrShortRead is returned when the reader reaches EOF before producing the
// requested number of rows. It is always fatal.
var ErrShortRead = errors.New("dataset: short read")

// LabelSpec selects how row labels are derived: either an explicit,
// caller-owned array, or a contiguous range starting at Start (row i's
// label is Start+i).
type LabelSpec struct {
	explicit []uint32
	start    uint32
	implicit bool
}

// ExplicitLabels builds a LabelSpec backed by an owned label array, one
// entry per row.
func ExplicitLabels(labels []uint32) LabelSpec {
	return LabelSpec{explicit: labels}
}

// SequentialLabels builds a LabelSpec where row i's label is start+i.
func SequentialLabels(start uint32) LabelSpec {
	return LabelSpec{start: start, implicit: true}
}

// SparseVectorSet is a contiguous block of n rows of a sparse dataset:
// column indices, values and prefix-sum row markers, plus a label source.
// It is constructed once by ReadSVM and consumed read-only by the hasher
// and the evaluator.
type SparseVectorSet struct {
	Cols    []uint32 // nonzero column ids, concatenated across rows
	Vals    []float32
	Markers []uint32 // len(Markers) == n+1; row i occupies [Markers[i], Markers[i+1])
	Labels  LabelSpec
}

// Len returns the number of rows (vectors) in the set.
func (s *SparseVectorSet) Len() uint64 { return uint64(len(s.Markers) - 1) }

// Indices returns the sorted nonzero column ids of row i.
func (s *SparseVectorSet) Indices(i uint64) []uint32 {
	return s.Cols[s.Markers[i]:s.Markers[i+1]]
}

// Values returns the nonzero values of row i, aligned with Indices(i).
func (s *SparseVectorSet) Values(i uint64) []float32 {
	return s.Vals[s.Markers[i]:s.Markers[i+1]]
}

// Label returns the label of row i.
func (s *SparseVectorSet) Label(i uint64) uint32 {
	if s.Labels.implicit {
		return s.Labels.start + uint32(i)
	}
	return s.Labels.explicit[i]
}

// ReadSVM reads exactly n libSVM-format rows from path, skipping the first
// offset lines. Each row is "<label> (<index>:<value>)*", whitespace
// separated; the label token is always present but ignored here (the
// caller supplies labels via its own LabelSpec). avgDim sizes the initial
// index/value buffers; they grow via append if a row is denser than avgDim
// implies, rather than pre-sizing for the worst case.
//
// A fasthash fingerprint of (path, n, avgDim, offset) is logged by the
// caller (see internal/distributed) so every rank's log can be diffed to
// confirm all ranks were handed matching shard parameters.
func ReadSVM(path string, spec LabelSpec, n, avgDim, offset uint64) (*SparseVectorSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for i := uint64(0); i < offset; i++ {
		if !sc.Scan() {
			return nil, fmt.Errorf("dataset: %s: %w (wanted to skip %d lines, saw %d)", path, ErrShortRead, offset, i)
		}
	}

	out := &SparseVectorSet{
		Cols:    make([]uint32, 0, n*avgDim),
		Vals:    make([]float32, 0, n*avgDim),
		Markers: make([]uint32, n+1),
		Labels:  spec,
	}

	var row uint64
	for row = 0; row < n && sc.Scan(); row++ {
		out.Markers[row] = uint32(len(out.Cols))
		if err := parseRow(sc.Text(), out); err != nil {
			return nil, fmt.Errorf("dataset: %s: line %d: %w", path, offset+row+1, err)
		}
	}
	if err := sc.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("dataset: %s: %w", path, err)
	}
	if row < n {
		return nil, fmt.Errorf("dataset: %s: only read %d of %d requested rows: %w", path, row, n, ErrShortRead)
	}
	out.Markers[n] = uint32(len(out.Cols))

	return out, nil
}

func parseRow(line string, out *SparseVectorSet) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	// fields[0] is the label token; the core never consumes it, since
	// labels come from the caller's LabelSpec instead.
	for _, tok := range fields[1:] {
		pos := strings.IndexByte(tok, ':')
		if pos < 0 {
			return fmt.Errorf("malformed token %q", tok)
		}
		idx, err := strconv.ParseUint(tok[:pos], 10, 32)
		if err != nil {
			return fmt.Errorf("bad index in %q: %w", tok, err)
		}
		val, err := strconv.ParseFloat(tok[pos+1:], 32)
		if err != nil {
			return fmt.Errorf("bad value in %q: %w", tok, err)
		}
		out.Cols = append(out.Cols, uint32(idx))
		out.Vals = append(out.Vals, float32(val))
	}
	return nil
}

// Fingerprint returns a fasthash of the shard-selection parameters a rank
// used to read this dataset, for cross-rank log comparison.
func Fingerprint(path string, n, avgDim, offset uint64) uint64 {
	key := fmt.Sprintf("%s|%d|%d|%d", path, n, avgDim, offset)
	return fasthash.Hash64(0, []byte(key))
}
