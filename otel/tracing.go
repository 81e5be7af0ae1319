// Package otel provides OpenTelemetry tracing integration for the Peer
// Manager.
//
// This package enables distributed tracing of connection lifecycle,
// handshake, and relay operations. It is an optional adapter: nothing in
// the core package imports it, so a deployment that doesn't want tracing
// pays no cost for it.
//
// # Spans
//
// Each Start* method opens one span; nesting follows the ctx the caller
// passes in:
//
//	meshkeep.connect          StartConnect
//	meshkeep.dial             StartDial (outbound direct connections)
//	meshkeep.handshake        StartHandshake
//	meshkeep.signal_request   StartSignalRequest
//	meshkeep.signal           StartSignal
//	meshkeep.disconnect       StartDisconnect
//
// SpanEstablished and SpanRelay are declared, but no method starts a span
// with those names.
//
// # Attributes
//
// Common span attributes include:
//   - peer.identity: the remote peer's overlay identity
//   - connection.transport: "direct" or "assisted"
//   - connection.direction: "inbound" or "outbound"
//   - handshake.result: "success", "self_dial", "version_mismatch", ...
//
// # Example Usage
//
//	tp := otel.GetTracerProvider()
//	tracer := meshkeepotel.NewTracer(tp)
//
//	ctx, span := tracer.StartHandshake(ctx, remoteIdentity)
//	defer tracer.EndSpan(span, err)
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/quietmesh/meshkeep/pkg/identity"
)

const (
	// TracerName is the name used for the OpenTelemetry tracer.
	TracerName = "github.com/quietmesh/meshkeep"

	SpanConnect       = "meshkeep.connect"
	SpanDial          = "meshkeep.dial"
	SpanHandshake     = "meshkeep.handshake"
	SpanEstablished   = "meshkeep.established"
	SpanRelay         = "meshkeep.relay"
	SpanSignalRequest = "meshkeep.signal_request"
	SpanSignal        = "meshkeep.signal"
	SpanDisconnect    = "meshkeep.disconnect"

	AttrPeerIdentity        = "peer.identity"
	AttrConnectionTransport = "connection.transport"
	AttrConnectionDirection = "connection.direction"
	AttrHandshakeResult     = "handshake.result"
	AttrErrorMessage        = "error.message"
)

// Tracer creates spans for Peer Manager operations. It wraps an
// OpenTelemetry TracerProvider and is safe for concurrent use.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer from provider. A nil provider yields a
// no-op tracer, so callers can wire this in unconditionally.
func NewTracer(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(TracerName)}
	}
	return &Tracer{tracer: provider.Tracer(TracerName)}
}

// StartConnect starts a span for a connection attempt to id over
// transport ("direct" or "assisted").
func (t *Tracer) StartConnect(ctx context.Context, id identity.Identity, transport, direction string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanConnect,
		trace.WithAttributes(
			attribute.String(AttrPeerIdentity, id.String()),
			attribute.String(AttrConnectionTransport, transport),
			attribute.String(AttrConnectionDirection, direction),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartDial starts a span for dialing a peer's direct-transport address.
func (t *Tracer) StartDial(ctx context.Context, address string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDial, trace.WithAttributes(
		attribute.String("connection.address", address),
	))
}

// StartHandshake starts a span for the identity handshake against id.
func (t *Tracer) StartHandshake(ctx context.Context, id identity.Identity) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanHandshake, trace.WithAttributes(
		attribute.String(AttrPeerIdentity, id.String()),
	))
}

// StartSignalRequest starts a span for relaying a SignalRequest frame.
func (t *Tracer) StartSignalRequest(ctx context.Context, source, destination identity.Identity) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanSignalRequest, trace.WithAttributes(
		attribute.String("signal.source", source.String()),
		attribute.String("signal.destination", destination.String()),
	))
}

// StartSignal starts a span for relaying a Signal frame.
func (t *Tracer) StartSignal(ctx context.Context, source, destination identity.Identity) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanSignal, trace.WithAttributes(
		attribute.String("signal.source", source.String()),
		attribute.String("signal.destination", destination.String()),
	))
}

// StartDisconnect starts a span for a peer disconnection.
func (t *Tracer) StartDisconnect(ctx context.Context, id identity.Identity, reason string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDisconnect, trace.WithAttributes(
		attribute.String(AttrPeerIdentity, id.String()),
		attribute.String("disconnect.reason", reason),
	))
}

// RecordHandshakeResult annotates span with the handshake outcome.
func (t *Tracer) RecordHandshakeResult(span trace.Span, result string, err error) {
	span.SetAttributes(attribute.String(AttrHandshakeResult, result))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

// RecordError records err on span without ending it.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// EndSpan ends span, recording err on it first if non-nil.
func (t *Tracer) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// NewNopTracer returns a Tracer backed by a no-op TracerProvider, for
// deployments that want the same call sites instrumented either way.
func NewNopTracer() *Tracer {
	return NewTracer(nil)
}
