// tcp.go -- a real point-to-point Transport over plain TCP connections.
//
// Every tree-reduction round is strictly half-duplex on any one
// connection (a rank either sends to, or receives from, a given partner in
// a given round, never both), so TCP needs no multiplexing: one
// long-lived connection per unordered rank pair, written and read
// directly, with each frame protected by a siphash-2-4 over its payload
// bytes.
package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/dchest/siphash"
)

// TCP is a Transport backed by one net.Conn per unordered {i,j} rank pair.
// Addrs[r] is the listen address rank r will accept connections on; every
// rank with a lower index dials every rank with a higher index, so the
// mesh forms without any coordination beyond the shared Addrs slice.
type TCP struct {
	rank  int
	size  int
	salt  []byte
	conns []net.Conn // conns[r] is this rank's connection to rank r (nil for r == rank)
	ln    net.Listener
}

// DialTCP builds the full mesh of connections for rank's position in
// addrs, blocking until every pair is established. salt is the shared
// siphash key every rank must supply identically (like DOPH's seeds, it
// is derived once and never renegotiated over the wire).
func DialTCP(ctx context.Context, rank int, addrs []string, salt []byte) (*TCP, error) {
	size := len(addrs)
	t := &TCP{rank: rank, size: size, salt: salt, conns: make([]net.Conn, size)}

	ln, err := net.Listen("tcp", addrs[rank])
	if err != nil {
		return nil, fmt.Errorf("transport: tcp: listen %s: %w", addrs[rank], err)
	}
	t.ln = ln

	var wg sync.WaitGroup
	errCh := make(chan error, size)

	// Accept connections from every lower-ranked peer.
	lower := rank
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < lower; i++ {
			conn, err := ln.Accept()
			if err != nil {
				errCh <- fmt.Errorf("transport: tcp: accept: %w", err)
				return
			}
			var hdr [4]byte
			if _, err := io.ReadFull(conn, hdr[:]); err != nil {
				errCh <- fmt.Errorf("transport: tcp: handshake read: %w", err)
				return
			}
			peer := int(binary.BigEndian.Uint32(hdr[:]))
			if peer < 0 || peer >= size {
				errCh <- fmt.Errorf("transport: tcp: bad peer rank %d in handshake", peer)
				return
			}
			t.conns[peer] = conn
		}
	}()

	// Dial every higher-ranked peer.
	var dialWG sync.WaitGroup
	for j := rank + 1; j < size; j++ {
		dialWG.Add(1)
		go func(j int) {
			defer dialWG.Done()
			var d net.Dialer
			conn, err := d.DialContext(ctx, "tcp", addrs[j])
			if err != nil {
				errCh <- fmt.Errorf("transport: tcp: dial %s: %w", addrs[j], err)
				return
			}
			var hdr [4]byte
			binary.BigEndian.PutUint32(hdr[:], uint32(rank))
			if _, err := conn.Write(hdr[:]); err != nil {
				errCh <- fmt.Errorf("transport: tcp: handshake write: %w", err)
				return
			}
			t.conns[j] = conn
		}(j)
	}
	dialWG.Wait()
	wg.Wait()

	select {
	case err := <-errCh:
		return nil, err
	default:
	}

	return t, nil
}

func (t *TCP) Rank() int { return t.rank }
func (t *TCP) Size() int { return t.size }

// frame header: tag (4 bytes) | word count (4 bytes) | siphash-2-4 (8 bytes)
const frameHeaderSize = 4 + 4 + 8

func (t *TCP) Send(ctx context.Context, buf []uint32, dest int, tag int) error {
	conn := t.conns[dest]
	if conn == nil {
		return fmt.Errorf("transport: tcp: no connection to rank %d", dest)
	}

	payload := u32sToBytes(buf)
	sum := siphash.Hash(binary.LittleEndian.Uint64(t.salt[:8]), binary.LittleEndian.Uint64(t.salt[8:16]), payload)

	var hdr [frameHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(tag))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(buf)))
	binary.BigEndian.PutUint64(hdr[8:16], sum)

	if _, err := conn.Write(hdr[:]); err != nil {
		return fmt.Errorf("transport: tcp: send header to rank %d: %w", dest, err)
	}
	if len(payload) > 0 {
		if _, err := conn.Write(payload); err != nil {
			return fmt.Errorf("transport: tcp: send payload to rank %d: %w", dest, err)
		}
	}
	return nil
}

func (t *TCP) Recv(ctx context.Context, buf []uint32, source int, tag int) error {
	conn := t.conns[source]
	if conn == nil {
		return fmt.Errorf("transport: tcp: no connection to rank %d", source)
	}

	var hdr [frameHeaderSize]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return fmt.Errorf("transport: tcp: recv header from rank %d: %w", source, err)
	}
	gotTag := int(binary.BigEndian.Uint32(hdr[0:4]))
	nwords := binary.BigEndian.Uint32(hdr[4:8])
	sum := binary.BigEndian.Uint64(hdr[8:16])

	if gotTag != tag {
		return fmt.Errorf("transport: tcp: unexpected tag %d from rank %d (wanted %d)", gotTag, source, tag)
	}
	if int(nwords) != len(buf) {
		return fmt.Errorf("transport: tcp: size mismatch from rank %d: got %d words, want %d", source, nwords, len(buf))
	}

	payload := u32sToBytes(buf)
	if len(payload) > 0 {
		if _, err := io.ReadFull(conn, payload); err != nil {
			return fmt.Errorf("transport: tcp: recv payload from rank %d: %w", source, err)
		}
	}

	want := siphash.Hash(binary.LittleEndian.Uint64(t.salt[:8]), binary.LittleEndian.Uint64(t.salt[8:16]), payload)
	if want != sum {
		return fmt.Errorf("transport: tcp: checksum mismatch from rank %d (corrupt message)", source)
	}

	return nil
}

func (t *TCP) Finalize() error {
	var firstErr error
	for _, c := range t.conns {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if t.ln != nil {
		if err := t.ln.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
