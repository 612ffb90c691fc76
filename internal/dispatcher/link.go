// Package dispatcher implements the round-robin SDLC request loop: polling
// every configured port for a ready client, decoding the 10-byte request
// frame, and routing it to the boot, check, raw sector, file-op or logon
// handler, per spec.md §4.6 and original_source/almmmost/almmmost.c's main
// loop.
package dispatcher

import "context"

// Link abstracts one SDLC/serial port. CheckReady, RecvFrame, SendFrame and
// Reset stand in for the original's alm_dev_check_cts/alm_dev_read/
// alm_dev_write/alm_dev_reset, so the dispatcher never depends on the
// underlying transport.
type Link interface {
	// CheckReady reports whether the client on this port has data ready to
	// send (CTS asserted).
	CheckReady(ctx context.Context) (bool, error)
	// RecvFrame reads up to len(buf) bytes into buf and returns the count.
	RecvFrame(ctx context.Context, buf []byte) (int, error)
	// SendFrame writes buf in full.
	SendFrame(ctx context.Context, buf []byte) error
	// Reset recovers the link after a malformed or truncated request.
	Reset(ctx context.Context) error
}
