// File: cmd/echo/main.go
//
// Echo WebSocket server built on wsserver: one protocol that frames
// every inbound payload straight back to its sender, with the
// standard logging/recovery/metrics middleware stack and periodic
// console stats.

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
	addr := flag.String("addr", ":9001", "WebSocket listen address")
	maxClients := flag.Int("max-clients", 1024, "maximum concurrent fds")
	numa := flag.Int("numa", -1, "preferred NUMA node (-1 = auto)")
	pinCPU := flag.Int("pin-cpu", -1, "CPU to pin the event loop to (-1 = none)")
	flag.Parse()

	var totalMsgs int64

	reg := protocol.NewRegistry()
	base := protocol.HandlerFunc(func(conn *protocol.Connection, reason protocol.Reason, userData *any, in []byte) error {
		if reason != protocol.ReasonReceive {
			return nil
		}
		atomic.AddInt64(&totalMsgs, 1)
		frame := &protocol.Frame{IsFinal: true, Opcode: protocol.OpcodeBinary, PayloadLen: int64(len(in)), Payload: in}
		out, err := protocol.EncodeFrame(frame, false, nil)
		if err != nil {
			return err
		}
		return conn.Transport.Send([][]byte{out})
	})

	ctrl := adapters.NewControlAdapter()
	handler := adapters.Chain(base,
		adapters.LoggingMiddleware,
		adapters.RecoveryMiddleware,
		adapters.MetricsMiddleware(ctrl),
	)
	reg.Register("echo", handler, 0)

	cfg := wsserver.DefaultConfig(*addr)
	cfg.MaxClients = *maxClients
	cfg.NUMANode = *numa
	cfg.PinCPU = *pinCPU

	s, err := wsserver.New(cfg, reg, wsserver.WithControl(ctrl))
	if err != nil {
		fmt.Fprintf(os.Stderr, "wsserver.New: %v\n", err)
		os.Exit(1)
	}

	ctrl.RegisterDebugProbe("messages_processed", func() any {
		return atomic.LoadInt64(&totalMsgs)
	})

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := ctrl.Stats()
			fmt.Printf("[%s] Msgs: %v\n", time.Now().Format(time.Stamp), stats["debug.messages_processed"])
		}
	}()

	fmt.Println("Starting WS echo server on", *addr)
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		fmt.Println("Shutting down echo server...")
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
