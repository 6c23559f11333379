// Command slash is SLASH's CLI entrypoint: a single positional argument
// naming a configuration file. It builds the DOPH hasher and bucket bank,
// drives insertion and query through internal/distributed against a
// single-process Local transport (world size 1 unless the config names
// peer addresses), runs the evaluator on rank 0, and logs a summary.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/opencoff/slash/internal/config"
	"github.com/opencoff/slash/internal/dataset"
	"github.com/opencoff/slash/internal/distributed"
	"github.com/opencoff/slash/internal/doph"
	"github.com/opencoff/slash/internal/evaluator"
	"github.com/opencoff/slash/internal/logging"
	"github.com/opencoff/slash/internal/transport"
)

func main() {
	root := &cobra.Command{
		Use:   "slash CONFIG",
		Short: "SLASH: distributed LSH nearest-neighbor index over sparse vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0])
		},
		SilenceUsage: true,
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logPrefix, err := cfg.Str("log_prefix", 0)
	if err != nil {
		logPrefix = "slash."
	}

	tr, err := buildTransport(cfg)
	if err != nil {
		return err
	}

	log, closeLog, err := logging.New(logPrefix, tr.Rank())
	if err != nil {
		return err
	}
	defer closeLog()

	log.Info("configuration", slog.String("resolved", cfg.String()))

	hp := doph.Params{
		K:        cfg.MustUint("K", 0),
		L:        cfg.MustUint("L", 0),
		RangePow: cfg.MustUint("rangePow", 0),
	}
	reservoirSize := cfg.MustUint("reservoirSize", 0)
	n := cfg.MustUint("N", 0)
	q := cfg.MustUint("Q", 0)
	topk := cfg.MustUint("topk", 0)
	avgDim := cfg.MustUint("avgDim", 0)
	batchSize := cfg.MustUint("batchSize", 0)

	var fileOffset uint64
	if v, err := cfg.Uint("offset", 0); err == nil {
		fileOffset = v
	}

	dataFile, err := cfg.Str("data_file", 0)
	if err != nil {
		return err
	}
	queryFile, err := cfg.Str("query_file", 0)
	if err != nil {
		return err
	}

	driver, err := distributed.New(hp, reservoirSize, tr, log)
	if err != nil {
		return err
	}

	if err := driver.InsertSVM(dataFile, n, fileOffset, avgDim, batchSize); err != nil {
		return err
	}

	ctx := context.Background()
	res, err := driver.QuerySVM(ctx, queryFile, q, avgDim, topk)
	if err != nil {
		return err
	}

	if gt, err := cfg.Str("ground_truth_file", 0); err == nil && tr.Rank() == 0 {
		evalK := topk
		if v, err := cfg.Uint("eval_k", 0); err == nil {
			evalK = v
		}
		corpus, err := dataset.ReadSVM(dataFile, dataset.SequentialLabels(0), n, avgDim, fileOffset)
		if err != nil {
			return err
		}
		ev, err := evaluator.New(corpus, 0, log)
		if err != nil {
			return err
		}
		recall, err := ev.RecallAtK(gt, res, evalK)
		if err != nil {
			return err
		}
		log.Info("recall", slog.Float64("recall_at_k", recall), slog.Uint64("eval_k", evalK))
	}

	fmt.Printf("query results: %d queries, top-%d each (rank 0)\n", res.Len(), topk)
	return nil
}

// buildTransport selects a single-process Local transport by default. If
// the config names peer_addrs (one value per rank) and a rank index, it
// dials a real TCP mesh instead, so the same binary doubles as every
// rank's process in a genuinely distributed deployment (one invocation
// per rank, launched by whatever scheduler owns the world).
func buildTransport(cfg *config.Reader) (transport.Transport, error) {
	nPeers := cfg.Len("peer_addrs")
	if nPeers == 0 {
		worlds := transport.NewLocalWorld(1)
		return worlds[0], nil
	}

	rank := int(cfg.MustUint("rank", 0))
	addrs := make([]string, nPeers)
	for i := 0; i < nPeers; i++ {
		a, err := cfg.Str("peer_addrs", i)
		if err != nil {
			return nil, err
		}
		addrs[i] = a
	}

	salt := make([]byte, 16)
	for i, v := range []byte("slash-tree-merge-") {
		if i < len(salt) {
			salt[i] = v
		}
	}

	return transport.DialTCP(context.Background(), rank, addrs, salt)
}
