// File: cmd/broadcast/main.go
//
// Broadcast WebSocket server built on wsserver: every inbound message
// on the "chat" protocol is re-broadcast to every connection bound to
// that protocol via Protocol.Broadcast, which wsserver fans out
// through the unified loopback dispatch path.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tidalws/core/adapters"
	"github.com/tidalws/core/protocol"
	"github.com/tidalws/core/wsserver"
)

func main() {
	addr := flag.String("addr", ":9002", "WebSocket listen address")
	maxClients := flag.Int("max-clients", 1024, "maximum concurrent fds")
	numa := flag.Int("numa", -1, "preferred NUMA node (-1 = auto)")
	pinCPU := flag.Int("pin-cpu", -1, "CPU to pin the event loop to (-1 = none)")
	flag.Parse()

	var (
		totalMsgs   int64
		activeConns int64
	)

	reg := protocol.NewRegistry()
	var chat *protocol.Protocol

	base := protocol.HandlerFunc(func(conn *protocol.Connection, reason protocol.Reason, userData *any, in []byte) error {
		switch reason {
		case protocol.ReasonEstablished:
			atomic.AddInt64(&activeConns, 1)
		case protocol.ReasonClosed:
			atomic.AddInt64(&activeConns, -1)
		case protocol.ReasonReceive:
			atomic.AddInt64(&totalMsgs, 1)
			payload := make([]byte, len(in))
			copy(payload, in)
			if _, err := chat.Broadcast(payload); err != nil {
				return err
			}
		case protocol.ReasonBroadcast:
			frame := &protocol.Frame{IsFinal: true, Opcode: protocol.OpcodeBinary, PayloadLen: int64(len(in)), Payload: in}
			out, err := protocol.EncodeFrame(frame, false, nil)
			if err != nil {
				return err
			}
			return conn.Transport.Send([][]byte{out})
		}
		return nil
	})

	ctrl := adapters.NewControlAdapter()
	handler := adapters.Chain(base,
		adapters.LoggingMiddleware,
		adapters.RecoveryMiddleware,
		adapters.MetricsMiddleware(ctrl),
	)
	chat = reg.Register("chat", handler, 0)

	cfg := wsserver.DefaultConfig(*addr)
	cfg.MaxClients = *maxClients
	cfg.NUMANode = *numa
	cfg.PinCPU = *pinCPU

	s, err := wsserver.New(cfg, reg, wsserver.WithControl(ctrl))
	if err != nil {
		fmt.Fprintf(os.Stderr, "wsserver.New: %v\n", err)
		os.Exit(1)
	}

	ctrl.RegisterDebugProbe("connections", func() any { return atomic.LoadInt64(&activeConns) })
	ctrl.RegisterDebugProbe("total_messages", func() any { return atomic.LoadInt64(&totalMsgs) })

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := ctrl.Stats()
			fmt.Printf("[%s] Conns: %v, Msgs: %v\n", time.Now().Format(time.Stamp),
				stats["debug.connections"], stats["debug.total_messages"])
		}
	}()

	fmt.Println("Starting WS broadcast server on", *addr)
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		fmt.Println("Shutting down broadcast server...")
		cancel()
		<-runErr
	case err := <-runErr:
		if err != nil {
			fmt.Fprintf(os.Stderr, "Run error: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Println("Server stopped.")
}
