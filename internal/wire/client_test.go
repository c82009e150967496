package wire

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AnalysisOrchestrator/internal/domain"
	"AnalysisOrchestrator/internal/protocol"
)

// fakeWorker accepts one connection, answers the hello handshake, then hands
// each request frame to respond.
func fakeWorker(t *testing.T, respond func(codec *protocol.Codec, req *protocol.Frame)) domain.WorkerIdentity {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				codec := protocol.NewCodec(conn)
				for {
					f, err := codec.Read()
					if err != nil {
						return
					}
					if f.Type == protocol.TypeHello {
						_ = codec.Write(&protocol.Frame{Type: protocol.TypeHelloAck, ID: f.ID})
						continue
					}
					if respond != nil {
						respond(codec, f)
					}
				}
			}(conn)
		}
	}()

	return domain.WorkerIdentity{
		Name:         "static-1",
		Address:      ln.Addr().String(),
		Capabilities: []domain.CapabilitySpec{{Name: "static", Tools: []string{"lint"}}},
	}
}

func TestProbeUnreachable(t *testing.T) {
	c := NewClient(200 * time.Millisecond)
	err := c.Probe(context.Background(), "127.0.0.1:1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportUnreachable)
}

func TestConnectHandshake(t *testing.T) {
	worker := fakeWorker(t, nil)
	c := NewClient(time.Second)

	conn, err := c.Connect(context.Background(), worker)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "static-1", conn.Worker())
}

func TestConnectRejectsBadHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		codec := protocol.NewCodec(conn)
		if _, err := codec.Read(); err != nil {
			return
		}
		_ = codec.Write(&protocol.Frame{Type: protocol.TypeProgress})
	}()

	c := NewClient(time.Second)
	_, err = c.Connect(context.Background(), domain.WorkerIdentity{Name: "w", Address: ln.Addr().String()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportUnreachable)
}

func TestSendStreamsProgressThenTerminal(t *testing.T) {
	worker := fakeWorker(t, func(codec *protocol.Codec, req *protocol.Frame) {
		_ = codec.Write(&protocol.Frame{Type: protocol.TypeProgress, ID: req.ID, Percent: 50})
		_ = codec.Write(&protocol.Frame{
			Type:    protocol.ResultType("static"),
			ID:      req.ID,
			Status:  "success",
			Results: json.RawMessage(`{"lint":{"status":"success"}}`),
		})
	})

	c := NewClient(time.Second)
	conn, err := c.Connect(context.Background(), worker)
	require.NoError(t, err)
	defer conn.Close()

	var frames []protocol.Frame
	for f := range conn.Send(context.Background(), "static", protocol.RequestPayload{Tools: []string{"lint"}}, 2*time.Second) {
		frames = append(frames, f)
	}
	require.NoError(t, conn.Err())
	require.Len(t, frames, 2)
	assert.Equal(t, protocol.TypeProgress, frames[0].Type)
	assert.Equal(t, 50, frames[0].Percent)
	assert.Equal(t, "static_result", frames[1].Type)
}

func TestSendDiscardsStaleCorrelationIDs(t *testing.T) {
	worker := fakeWorker(t, func(codec *protocol.Codec, req *protocol.Frame) {
		// A late response from some earlier exchange arrives first.
		_ = codec.Write(&protocol.Frame{Type: protocol.ResultType("static"), ID: "stale", Status: "error"})
		_ = codec.Write(&protocol.Frame{Type: protocol.ResultType("static"), ID: req.ID, Status: "success"})
	})

	c := NewClient(time.Second)
	conn, err := c.Connect(context.Background(), worker)
	require.NoError(t, err)
	defer conn.Close()

	var frames []protocol.Frame
	for f := range conn.Send(context.Background(), "static", protocol.RequestPayload{}, 2*time.Second) {
		frames = append(frames, f)
	}
	require.NoError(t, conn.Err())
	require.Len(t, frames, 1)
	assert.Equal(t, "success", frames[0].Status)
}

func TestSendTimesOutWithoutTerminalFrame(t *testing.T) {
	worker := fakeWorker(t, func(codec *protocol.Codec, req *protocol.Frame) {
		// Progress only, never a terminal frame.
		_ = codec.Write(&protocol.Frame{Type: protocol.TypeProgress, ID: req.ID, Percent: 10})
	})

	c := NewClient(time.Second)
	conn, err := c.Connect(context.Background(), worker)
	require.NoError(t, err)
	defer conn.Close()

	start := time.Now()
	for range conn.Send(context.Background(), "static", protocol.RequestPayload{}, 300*time.Millisecond) {
	}
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, conn.Err(), ErrProtocolTimeout)
}

func TestSendCancellationClosesConnection(t *testing.T) {
	worker := fakeWorker(t, func(codec *protocol.Codec, req *protocol.Frame) {
		_ = codec.Write(&protocol.Frame{Type: protocol.TypeProgress, ID: req.ID, Percent: 10})
	})

	c := NewClient(time.Second)
	conn, err := c.Connect(context.Background(), worker)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := conn.Send(ctx, "static", protocol.RequestPayload{}, 10*time.Second)
	<-ch // first progress frame
	cancel()
	for range ch {
	}
	assert.True(t, errors.Is(conn.Err(), context.Canceled))
}
