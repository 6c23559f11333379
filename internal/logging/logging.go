// Package logging provides SLASH's per-rank append-only log stream: an
// idiomatic slog.Logger writing structured records to a per-rank file.
package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// New opens (creating/truncating) "<prefix><rank>.log" and returns a
// slog.Logger writing structured records to it, tagged with the rank so
// records remain attributable if logs are later aggregated.
func New(prefix string, rank int) (*slog.Logger, func() error, error) {
	path := fmt.Sprintf("%s%d.log", prefix, rank)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: %w", err)
	}

	h := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	log := slog.New(h).With(slog.Int("rank", rank))

	return log, f.Close, nil
}
