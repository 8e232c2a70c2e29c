package adapters_test

import (
	"errors"
	"testing"

	"github.com/tidalws/core/adapters"
	"github.com/tidalws/core/protocol"
)

func TestChainOrdersMiddlewareOutermostFirst(t *testing.T) {
	var order []string
	mark := func(name string) adapters.Middleware {
		return func(next protocol.Handler) protocol.Handler {
			return protocol.HandlerFunc(func(conn *protocol.Connection, reason protocol.Reason, userData *any, in []byte) error {
				order = append(order, name)
				return next.Handle(conn, reason, userData, in)
			})
		}
	}
	base := protocol.HandlerFunc(func(conn *protocol.Connection, reason protocol.Reason, userData *any, in []byte) error {
		order = append(order, "base")
		return nil
	})

	h := adapters.Chain(base, mark("outer"), mark("inner"))
	if err := h.Handle(nil, protocol.ReasonReceive, nil, nil); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	want := []string{"outer", "inner", "base"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRecoveryMiddlewareConvertsPanicToError(t *testing.T) {
	base := protocol.HandlerFunc(func(conn *protocol.Connection, reason protocol.Reason, userData *any, in []byte) error {
		panic("boom")
	})
	h := adapters.Chain(base, adapters.RecoveryMiddleware)
	err := h.Handle(nil, protocol.ReasonReceive, nil, nil)
	if err == nil {
		t.Fatal("expected error from recovered panic, got nil")
	}
}

func TestLoggingMiddlewarePassesThroughError(t *testing.T) {
	wantErr := errors.New("boom")
	base := protocol.HandlerFunc(func(conn *protocol.Connection, reason protocol.Reason, userData *any, in []byte) error {
		return wantErr
	})
	h := adapters.Chain(base, adapters.LoggingMiddleware)
	if err := h.Handle(nil, protocol.ReasonReceive, nil, nil); !errors.Is(err, wantErr) {
		t.Fatalf("Handle err = %v, want %v", err, wantErr)
	}
}

func TestMetricsMiddlewareIncrementsCount(t *testing.T) {
	ctrl := adapters.NewControlAdapter()
	base := protocol.HandlerFunc(func(conn *protocol.Connection, reason protocol.Reason, userData *any, in []byte) error {
		return nil
	})
	h := adapters.Chain(base, adapters.MetricsMiddleware(ctrl))

	if err := h.Handle(nil, protocol.ReasonReceive, nil, nil); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := h.Handle(nil, protocol.ReasonReceive, nil, nil); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	stats := ctrl.Stats()
	count, _ := stats["handler.RECEIVE.count"].(int64)
	if count != 2 {
		t.Fatalf("handler.RECEIVE.count = %v, want 2", count)
	}
}
