// File: adapters/handler_adapter.go
// Package adapters
//
// HandlerFunc glue and middleware chaining for protocol.Handler.

package adapters

import (
	"fmt"
	"log"

	"github.com/tidalws/core/api"
	"github.com/tidalws/core/protocol"
)

// Middleware wraps a protocol.Handler with additional behavior.
type Middleware func(protocol.Handler) protocol.Handler

// Chain applies middleware to base in the order given: the first
// middleware in the list is the outermost wrapper, so it sees each
// call first and the base handler's result last.
func Chain(base protocol.Handler, middleware ...Middleware) protocol.Handler {
	h := base
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}

// LoggingMiddleware logs every invocation's reason and any error the
// base handler returns.
func LoggingMiddleware(next protocol.Handler) protocol.Handler {
	return protocol.HandlerFunc(func(conn *protocol.Connection, reason protocol.Reason, userData *any, in []byte) error {
		err := next.Handle(conn, reason, userData, in)
		if err != nil {
			log.Printf("[handler] %s: %v", reason, err)
		}
		return err
	})
}

// RecoveryMiddleware converts a panic in the base handler into an
// error, so a single bad callback cannot take down the event loop.
func RecoveryMiddleware(next protocol.Handler) protocol.Handler {
	return protocol.HandlerFunc(func(conn *protocol.Connection, reason protocol.Reason, userData *any, in []byte) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[handler] panic on %s: %v", reason, r)
				err = fmt.Errorf("handler panic: %v", r)
			}
		}()
		return next.Handle(conn, reason, userData, in)
	})
}

// MetricsMiddleware records a per-reason invocation count into
// control's Stats under "handler.<reason>.count".
func MetricsMiddleware(control api.Control) Middleware {
	return func(next protocol.Handler) protocol.Handler {
		return protocol.HandlerFunc(func(conn *protocol.Connection, reason protocol.Reason, userData *any, in []byte) error {
			key := fmt.Sprintf("handler.%s.count", reason)
			stats := control.Stats()
			count, _ := stats[key].(int64)
			_ = control.SetConfig(map[string]any{key: count + 1})
			return next.Handle(conn, reason, userData, in)
		})
	}
}
