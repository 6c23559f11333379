package transport

import (
	"context"
	"fmt"
)

// envelope is a single in-flight message on a Local transport.
type envelope struct {
	from, tag int
	buf       []uint32
}

// Local is an in-process Transport: every rank is a goroutine in the same
// binary, and point-to-point messages travel over per-(dest) channels.
// Ordered delivery per (source, destination, tag) holds because each
// rank's inbox is a single channel drained in send order by that rank
// alone.
//
// Local is the transport the test suite uses to exercise the tree-merge
// protocol without standing up real processes.
type Local struct {
	rank  int
	size  int
	boxes []chan envelope // one inbox per rank, shared across all Local handles in a world
}

// NewLocalWorld builds size Local transports, one per rank, sharing the
// inboxes a real Send/Recv round trip needs.
func NewLocalWorld(size int) []*Local {
	boxes := make([]chan envelope, size)
	for i := range boxes {
		boxes[i] = make(chan envelope, size)
	}
	out := make([]*Local, size)
	for r := range out {
		out[r] = &Local{rank: r, size: size, boxes: boxes}
	}
	return out
}

func (l *Local) Rank() int { return l.rank }
func (l *Local) Size() int { return l.size }

func (l *Local) Send(ctx context.Context, buf []uint32, dest int, tag int) error {
	cp := make([]uint32, len(buf))
	copy(cp, buf)
	select {
	case l.boxes[dest] <- envelope{from: l.rank, tag: tag, buf: cp}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Local) Recv(ctx context.Context, buf []uint32, source int, tag int) error {
	// A rank's inbox may interleave messages from different sources in
	// the same round only if the caller issues concurrent Recvs; the
	// distributed driver never does (its round structure is strictly
	// sequential per rank), so a single blocking receive matching on
	// (source, tag) is sufficient and never reorders.
	for {
		select {
		case env := <-l.boxes[l.rank]:
			if env.from != source || env.tag != tag {
				return fmt.Errorf("transport: local: unexpected message from rank %d tag %d (wanted %d/%d)", env.from, env.tag, source, tag)
			}
			if len(env.buf) != len(buf) {
				return fmt.Errorf("transport: local: size mismatch: got %d words, want %d", len(env.buf), len(buf))
			}
			copy(buf, env.buf)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Local) Finalize() error { return nil }
