// Package transport implements the process-group transport the
// distributed driver consumes: a fixed-size rank()/size(), blocking
// send/recv of uint32 payloads tagged by round, plus a finalize lifecycle.
//
// Two implementations are provided: Local, an in-process, channel-backed
// transport for single-binary simulation of a world (used by the test
// suite and by single-machine demos), and TCP, a real point-to-point
// transport over plain net.Conn for a genuinely distributed deployment.
package transport

import "context"

// Transport is the process-group abstraction the distributed driver
// depends on. Every rank in a world constructs the same Transport kind
// (NewLocalWorld or DialTCP) before any Send/Recv and calls Finalize
// exactly once when done.
type Transport interface {
	// Rank returns this process's rank, 0 <= Rank() < Size().
	Rank() int

	// Size returns the world size, W.
	Size() int

	// Send blocks until buf has been handed to rank dest tagged with tag.
	Send(ctx context.Context, buf []uint32, dest int, tag int) error

	// Recv blocks until a buffer tagged tag has arrived from rank
	// source, and copies it into buf. len(buf) must equal the sender's
	// buffer length.
	Recv(ctx context.Context, buf []uint32, source int, tag int) error

	// Finalize releases any resources held by the transport. No further
	// Send/Recv calls are valid afterwards.
	Finalize() error
}
