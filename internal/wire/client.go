// Package wire owns the persistent connection to a single analysis worker:
// transport-level reachability probe, protocol handshake, and correlated
// request/response exchanges with progress streaming.
package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"AnalysisOrchestrator/internal/domain"
	"AnalysisOrchestrator/internal/protocol"

	"github.com/google/uuid"
)

// ErrTransportUnreachable means the worker did not accept a TCP connection.
// Counted against the worker's circuit breaker by the dispatcher.
var ErrTransportUnreachable = errors.New("worker transport unreachable")

// ErrProtocolTimeout means the worker was connected but produced no terminal
// frame within the caller's deadline.
var ErrProtocolTimeout = errors.New("no terminal frame within deadline")

// Client dials workers. ConnectTimeout bounds both the probe and the dial.
type Client struct {
	ConnectTimeout time.Duration
}

func NewClient(connectTimeout time.Duration) *Client {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	return &Client{ConnectTimeout: connectTimeout}
}

// Probe performs the cheap connect-and-close reachability check. It proves
// the transport is up without spending a protocol handshake.
func (c *Client) Probe(ctx context.Context, address string) error {
	d := net.Dialer{Timeout: c.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransportUnreachable, address, err)
	}
	return conn.Close()
}

// Connect probes the worker, then dials and completes the hello handshake.
func (c *Client) Connect(ctx context.Context, worker domain.WorkerIdentity) (*Conn, error) {
	if err := c.Probe(ctx, worker.Address); err != nil {
		return nil, err
	}
	d := net.Dialer{Timeout: c.ConnectTimeout}
	nc, err := d.DialContext(ctx, "tcp", worker.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTransportUnreachable, worker.Address, err)
	}
	conn := &Conn{worker: worker, nc: nc, codec: protocol.NewCodec(nc)}
	if err := conn.handshake(c.ConnectTimeout); err != nil {
		nc.Close()
		return nil, err
	}
	return conn, nil
}

// Conn is one live connection to one worker.
type Conn struct {
	worker domain.WorkerIdentity
	nc     net.Conn
	codec  *protocol.Codec

	mu  sync.Mutex
	err error
}

func (c *Conn) Worker() string { return c.worker.Name }

func (c *Conn) Close() error { return c.nc.Close() }

// Err returns why the last exchange ended without a terminal frame, nil
// after a clean exchange.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *Conn) handshake(timeout time.Duration) error {
	_ = c.nc.SetDeadline(time.Now().Add(timeout))
	defer c.nc.SetDeadline(time.Time{})
	if err := c.codec.Write(&protocol.Frame{Type: protocol.TypeHello, ID: uuid.NewString()}); err != nil {
		return fmt.Errorf("%w: handshake write: %v", ErrTransportUnreachable, err)
	}
	f, err := c.codec.Read()
	if err != nil {
		return fmt.Errorf("%w: handshake read: %v", ErrTransportUnreachable, err)
	}
	if f.Type != protocol.TypeHelloAck {
		return fmt.Errorf("%w: unexpected handshake frame %q", ErrTransportUnreachable, f.Type)
	}
	return nil
}

// Send issues one capability request and returns a bounded stream of frames:
// zero or more progress frames followed by exactly one terminal frame, then
// the channel closes. If the deadline elapses or the transport fails before
// a terminal frame arrives, the channel closes early and Err() reports why.
// Cancelling ctx closes the connection and abandons the read.
func (c *Conn) Send(ctx context.Context, capability string, payload protocol.RequestPayload, deadline time.Duration) <-chan protocol.Frame {
	out := make(chan protocol.Frame, 16)
	c.setErr(nil)

	raw, _ := json.Marshal(payload)
	req := protocol.Frame{
		Type:    protocol.RequestType(capability),
		ID:      uuid.NewString(),
		Payload: raw,
	}

	go func() {
		defer close(out)

		// Propagate cancellation by tearing the connection down; the
		// blocked Read below unblocks with an error.
		stop := context.AfterFunc(ctx, func() { _ = c.nc.Close() })
		defer stop()

		_ = c.nc.SetDeadline(time.Now().Add(deadline))
		defer c.nc.SetDeadline(time.Time{})

		if err := c.codec.Write(&req); err != nil {
			c.setErr(fmt.Errorf("%w: write: %v", ErrTransportUnreachable, err))
			return
		}
		for {
			f, err := c.codec.Read()
			if err != nil {
				if ctx.Err() != nil {
					c.setErr(ctx.Err())
				} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
					c.setErr(fmt.Errorf("%w: worker %s", ErrProtocolTimeout, c.worker.Name))
				} else {
					c.setErr(fmt.Errorf("%w: read: %v", ErrTransportUnreachable, err))
				}
				return
			}
			// Stale or duplicate response from an earlier exchange.
			if f.ID != "" && f.ID != req.ID {
				continue
			}
			select {
			case out <- *f:
			case <-ctx.Done():
				c.setErr(ctx.Err())
				return
			}
			if f.IsTerminalFor(capability) {
				return
			}
		}
	}()
	return out
}
