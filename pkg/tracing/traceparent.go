// Package tracing carries a W3C traceparent header across the boundary
// between an inbound request context and a downstream peer message (spec
// §6, §7). No tracing SDK in the reference stack is pulled in for this;
// CARL only needs to propagate the header, not originate or sample spans.
package tracing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

type contextKey struct{}

// TraceParent is the parsed form of a W3C traceparent header value.
type TraceParent struct {
	Version    string
	TraceId    string
	ParentId   string
	TraceFlags string
}

// String renders the traceparent back to its wire form.
func (t TraceParent) String() string {
	return fmt.Sprintf("%s-%s-%s-%s", t.Version, t.TraceId, t.ParentId, t.TraceFlags)
}

// NewRoot creates a fresh sampled traceparent, used when handling a request
// that did not already carry one.
func NewRoot() TraceParent {
	return TraceParent{
		Version:    "00",
		TraceId:    randomHex(16),
		ParentId:   randomHex(8),
		TraceFlags: "01",
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithTraceParent attaches tp to ctx.
func WithTraceParent(ctx context.Context, tp TraceParent) context.Context {
	return context.WithValue(ctx, contextKey{}, tp)
}

// FromContext returns the traceparent carried by ctx, creating a new root
// traceparent if none is present.
func FromContext(ctx context.Context) TraceParent {
	if tp, ok := ctx.Value(contextKey{}).(TraceParent); ok {
		return tp
	}
	return NewRoot()
}

// Inject writes the current traceparent into a carrier map, the shape
// broker.TracingContext.Values uses on the wire.
func Inject(ctx context.Context, carrier map[string]string) {
	carrier["traceparent"] = FromContext(ctx).String()
}
