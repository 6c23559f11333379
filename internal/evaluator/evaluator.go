// Package evaluator is a rank-0-only collaborator: it recomputes exact
// cosine similarity between queries and their candidate rows, and scores
// recall@k against a ground-truth file. It is not part of the index core —
// it only consumes a *queryresult.Result and a *dataset.SparseVectorSet.
//
// Repeated recall scoring re-reads the same corpus rows across many
// queries, so parsed rows are kept behind an ARC cache rather than
// re-parsed from the dataset each time.
package evaluator

import (
	"bufio"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	lru "github.com/opencoff/golang-lru"

	"github.com/opencoff/slash/internal/dataset"
	"github.com/opencoff/slash/internal/queryresult"
)

const defaultCacheSize = 4096

// Evaluator scores a Result against exact cosine similarity and an
// optional ground-truth file.
type Evaluator struct {
	corpus *dataset.SparseVectorSet
	cache  *lru.ARCCache
	log    *slog.Logger
}

// New builds an Evaluator over corpus, caching up to cacheSize decoded
// rows (0 selects defaultCacheSize).
func New(corpus *dataset.SparseVectorSet, cacheSize int, log *slog.Logger) (*Evaluator, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	c, err := lru.NewARC(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("evaluator: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{corpus: corpus, cache: c, log: log}, nil
}

// row returns the (indices, values) pair for corpus row i, through the ARC
// cache.
func (e *Evaluator) row(i uint64) ([]uint32, []float32) {
	if v, ok := e.cache.Get(i); ok {
		r := v.(cachedRow)
		return r.idx, r.val
	}
	idx, val := e.corpus.Indices(i), e.corpus.Values(i)
	e.cache.Add(i, cachedRow{idx: idx, val: val})
	return idx, val
}

type cachedRow struct {
	idx []uint32
	val []float32
}

// Cosine computes the exact cosine similarity between a query row's
// sparse vector and the candidate row's, using the corpus's cached
// indices/values.
func Cosine(qIdx []uint32, qVal []float32, cIdx []uint32, cVal []float32) float64 {
	var dot, qn, cn float64
	i, j := 0, 0
	for i < len(qIdx) && j < len(cIdx) {
		switch {
		case qIdx[i] == cIdx[j]:
			dot += float64(qVal[i]) * float64(cVal[j])
			i++
			j++
		case qIdx[i] < cIdx[j]:
			i++
		default:
			j++
		}
	}
	for _, v := range qVal {
		qn += float64(v) * float64(v)
	}
	for _, v := range cVal {
		cn += float64(v) * float64(v)
	}
	if qn == 0 || cn == 0 {
		return 0
	}
	return dot / (math.Sqrt(qn) * math.Sqrt(cn))
}

// ScoreCandidates recomputes cosine similarity between query row qi (drawn
// from queries) and every candidate label res returned for query qi,
// using the row index by candidate label lookup rowByLabel supplies.
func (e *Evaluator) ScoreCandidates(queries *dataset.SparseVectorSet, qi uint64, res *queryresult.Result, rowByLabel func(label uint32) (uint64, bool)) []float64 {
	qIdx, qVal := queries.Indices(qi), queries.Values(qi)
	row := res.Row(qi)
	scores := make([]float64, len(row))
	for i, label := range row {
		r, ok := rowByLabel(label)
		if !ok {
			continue
		}
		cIdx, cVal := e.row(r)
		scores[i] = Cosine(qIdx, qVal, cIdx, cVal)
	}
	return scores
}

// RecallAtK scores recall@k of res against a ground-truth file: one line
// per query, whitespace-separated true-neighbor labels, the first evalK of
// which are the ground truth set. If evalK > topK the metric is skipped
// with a logged warning rather than silently truncated or panicking.
func (e *Evaluator) RecallAtK(path string, res *queryresult.Result, evalK uint64) (float64, error) {
	topK := res.K()
	if evalK > topK {
		e.log.Warn("eval_k exceeds stored topk; skipping recall metric",
			slog.Uint64("eval_k", evalK), slog.Uint64("topk", topK))
		return 0, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("evaluator: ground truth: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var totalHits, totalPossible int
	var qi uint64
	for sc.Scan() {
		if qi >= res.Len() {
			break
		}
		truth := make(map[uint32]bool)
		fields := strings.Fields(sc.Text())
		for i, tok := range fields {
			if uint64(i) >= evalK {
				break
			}
			n, err := strconv.ParseUint(tok, 10, 32)
			if err != nil {
				return 0, fmt.Errorf("evaluator: ground truth: line %d: %w", qi+1, err)
			}
			truth[uint32(n)] = true
		}

		hits := 0
		for _, label := range res.Row(qi) {
			if truth[label] {
				hits++
			}
		}
		totalHits += hits
		totalPossible += len(truth)
		qi++
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("evaluator: ground truth: %w", err)
	}
	if totalPossible == 0 {
		return 0, nil
	}
	return float64(totalHits) / float64(totalPossible), nil
}
