// Package distributed implements the distributed driver: shard
// partitioning, shard-local insertion, shard-local query, and the rank-tree
// merge that reduces per-query top-k candidate lists across ranks. It is
// parameterized over the transport.Transport interface rather than bound
// to any particular process-group runtime.
package distributed

import (
	"context"
	"fmt"
	"log/slog"
	"math/bits"
	"time"

	"github.com/opencoff/slash/internal/bucket"
	"github.com/opencoff/slash/internal/dataset"
	"github.com/opencoff/slash/internal/doph"
	"github.com/opencoff/slash/internal/queryresult"
	"github.com/opencoff/slash/internal/transport"
)

// Driver owns one rank's local DOPH hasher and bucket bank, and drives
// insertion/query against the shared world described by its Transport.
// Every rank constructs its Driver from identical (K, L, rangePow,
// reservoirSize) so every rank's Hasher derives bit-identical state
// without communicating.
type Driver struct {
	hasher *doph.Hasher
	bank   *bucket.Bank
	tr     transport.Transport
	log    *slog.Logger
}

// New constructs a Driver. batchSize-driven insertion happens in InsertSVM.
func New(hp doph.Params, reservoirSize uint64, tr transport.Transport, log *slog.Logger) (*Driver, error) {
	h, err := doph.New(hp)
	if err != nil {
		return nil, err
	}
	bank := bucket.NewBank(hp.L, h.Range(), reservoirSize)
	if log == nil {
		log = slog.Default()
	}
	return &Driver{hasher: h, bank: bank, tr: tr, log: log}, nil
}

// Shard returns [localOffset, localOffset+localN) for rank r of world size
// w, partitioning a logical range of N vectors as evenly as possible: the
// first N%w ranks get one extra element.
func Shard(n uint64, w, r int) (localN, localOffset uint64) {
	base := n / uint64(w)
	extra := n % uint64(w)
	localN = base
	if uint64(r) < extra {
		localN++
	}
	localOffset = base*uint64(r) + minU64(uint64(r), extra)
	return
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// InsertSVM reads this rank's shard of datafile (N vectors total across the
// world, labeled by the absolute corpus offset), hashes it in batches of
// batchSize, and inserts each batch into the local bank. offset is an
// additional file-skip applied before the logical corpus start: the reader
// skips localOffset+offset lines, while labels still start at localOffset.
func (d *Driver) InsertSVM(datafile string, n, offset, avgDim, batchSize uint64) error {
	rank, world := d.tr.Rank(), d.tr.Size()
	localN, localOffset := Shard(n, world, rank)

	d.log.Info("inserting", slog.Int("rank", rank), slog.Uint64("local_n", localN), slog.Uint64("local_offset", localOffset))

	fp := dataset.Fingerprint(datafile, localN, avgDim, localOffset+offset)
	d.log.Debug("shard fingerprint", slog.Int("rank", rank), slog.Uint64("fingerprint", fp))

	ds, err := dataset.ReadSVM(datafile, dataset.SequentialLabels(uint32(localOffset)), localN, avgDim, localOffset+offset)
	if err != nil {
		return fmt.Errorf("distributed: insert: %w", err)
	}

	numBatches := (localN + batchSize - 1) / batchSize
	start := time.Now()
	for batch := uint64(0); batch < numBatches; batch++ {
		bStart := batch * batchSize
		cnt := minU64(localN, (batch+1)*batchSize) - bStart

		hashes := d.hasher.Hash(ds, bStart, cnt)
		labels := make([]uint32, cnt)
		for i := uint64(0); i < cnt; i++ {
			labels[i] = ds.Label(bStart + i)
		}
		d.bank.Insert(labels, hashes)
	}
	d.log.Info("inserted", slog.Int("rank", rank), slog.Uint64("local_n", localN),
		slog.Uint64("batches", numBatches), slog.Duration("elapsed", time.Since(start)))

	return nil
}

// QuerySVM reads Q queries (identically on every rank), hashes them once,
// runs the local candidate-frequency query, and reduces the per-query
// top-k lists across the world via the rank-tree merge. Only rank 0 returns
// a populated *queryresult.Result; other ranks get an empty one.
func (d *Driver) QuerySVM(ctx context.Context, queryfile string, q, avgDim, topk uint64) (*queryresult.Result, error) {
	rank := d.tr.Rank()
	d.log.Info("querying", slog.Int("rank", rank), slog.Uint64("q", q))

	queries, err := dataset.ReadSVM(queryfile, dataset.SequentialLabels(0), q, avgDim, 0)
	if err != nil {
		return nil, fmt.Errorf("distributed: query: %w", err)
	}

	start := time.Now()
	hashes := d.hasher.Hash(queries, 0, q)
	local := d.bank.QueryWithCounts(hashes, q, topk)

	res, err := d.reduce(ctx, local, q, topk)
	if err != nil {
		return nil, fmt.Errorf("distributed: query: %w", err)
	}

	d.log.Info("queried", slog.Int("rank", rank), slog.Uint64("q", q), slog.Duration("elapsed", time.Since(start)))
	return res, nil
}

// reduce implements the remaining phases of a distributed query after the
// local candidate-frequency pass: pack, tree reduction, unpack.
func (d *Driver) reduce(ctx context.Context, local []bucket.LocalTopK, q, k uint64) (*queryresult.Result, error) {
	rank, world := d.tr.Rank(), d.tr.Size()
	sendBuf := packAll(local, k)

	rounds := 0
	if world > 1 {
		rounds = bits.Len(uint(world - 1))
	}

	for iter := 0; iter < rounds; iter++ {
		stride := 1 << iter
		if rank%(2*stride) == 0 {
			partner := rank + stride
			if partner < world {
				recvBuf := make([]uint32, len(sendBuf))
				if err := d.tr.Recv(ctx, recvBuf, partner, iter); err != nil {
					return nil, fmt.Errorf("transport-error: recv from rank %d round %d: %w", partner, iter, err)
				}
				sendBuf = mergeBuffers(sendBuf, recvBuf, q, k)
			}
		} else if rank%(2*stride) == stride {
			partner := rank - stride
			if err := d.tr.Send(ctx, sendBuf, partner, iter); err != nil {
				return nil, fmt.Errorf("transport-error: send to rank %d round %d: %w", partner, iter, err)
			}
			// This rank is done: it has handed its contribution up
			// the tree and takes no further part in this query.
			return queryresult.New(q, k), nil
		}
	}

	res := queryresult.New(q, k)
	if rank == 0 {
		unpack(sendBuf, res, q, k)
	}
	return res, nil
}

// Bank exposes the local bucket bank for diagnostics.
func (d *Driver) Bank() *bucket.Bank { return d.bank }
