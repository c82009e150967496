// Command workersim is a development stand-in for an analysis worker. It
// speaks the dispatcher protocol over TCP and answers every capability
// request with canned tool results, after a couple of progress frames.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"AnalysisOrchestrator/internal/protocol"
)

func main() {
	addr := flag.String("addr", ":9101", "listen address")
	fail := flag.Bool("fail", false, "answer every request with an error frame")
	delay := flag.Duration("delay", 200*time.Millisecond, "delay between frames")
	flag.Parse()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("listen failed: %v", err)
	}
	log.Printf("workersim listening on %s (fail=%v)", *addr, *fail)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Printf("accept failed: %v", err)
			continue
		}
		go serve(conn, *fail, *delay)
	}
}

func serve(conn net.Conn, fail bool, delay time.Duration) {
	defer conn.Close()
	codec := protocol.NewCodec(conn)
	for {
		f, err := codec.Read()
		if err != nil {
			return
		}
		switch {
		case f.Type == protocol.TypeHello:
			_ = codec.Write(&protocol.Frame{Type: protocol.TypeHelloAck, ID: f.ID})
		case strings.HasSuffix(f.Type, "_request"):
			if err := answer(codec, f, fail, delay); err != nil {
				return
			}
		}
	}
}

func answer(codec *protocol.Codec, req *protocol.Frame, fail bool, delay time.Duration) error {
	capability := strings.TrimSuffix(req.Type, "_request")
	var payload protocol.RequestPayload
	_ = json.Unmarshal(req.Payload, &payload)

	for _, pct := range []int{25, 75} {
		time.Sleep(delay)
		if err := codec.Write(&protocol.Frame{
			Type:    protocol.TypeProgress,
			ID:      req.ID,
			Percent: pct,
			Message: fmt.Sprintf("%s analysis %d%%", capability, pct),
		}); err != nil {
			return err
		}
	}

	if fail {
		return codec.Write(&protocol.Frame{
			Type:    protocol.TypeError,
			ID:      req.ID,
			Message: "simulated worker failure",
		})
	}

	results := make(map[string]protocol.ToolResult, len(payload.Tools))
	for _, tool := range payload.Tools {
		results[tool] = protocol.ToolResult{
			Status: "success",
			Issues: []protocol.ToolIssue{
				{Severity: "warning", Location: "app/main.py:42", Message: "simulated finding from " + tool},
			},
			Raw: json.RawMessage(fmt.Sprintf(`{"tool":%q,"simulated":true}`, tool)),
		}
	}
	raw, _ := json.Marshal(results)
	return codec.Write(&protocol.Frame{
		Type:    protocol.ResultType(capability),
		ID:      req.ID,
		Status:  "success",
		Results: raw,
	})
}
