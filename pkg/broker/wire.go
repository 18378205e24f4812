package broker

import (
	"github.com/opendut/carl/pkg/types"
)

// Upstream is one message sent by a connected peer to CARL.
type Upstream struct {
	Ping *Ping
}

// Ping is sent periodically by a peer to prove liveness; CARL answers with
// Pong and otherwise ignores it.
type Ping struct{}

// Downstream is one message sent by CARL to a connected peer, optionally
// carrying a propagated trace context (spec §6).
type Downstream struct {
	Context *TracingContext
	Message DownstreamMessage
}

// DownstreamMessage is the tagged union of everything CARL can push to a
// peer. Exactly one field is non-nil.
type DownstreamMessage struct {
	Pong                  *Pong
	ApplyPeerConfiguration *ApplyPeerConfiguration
}

type Pong struct{}

// ApplyPeerConfiguration carries both the legacy cluster-assignment envelope
// and the current parameter-based configuration, so older and newer peers
// can both act on the same message (spec §3).
type ApplyPeerConfiguration struct {
	OldConfiguration types.OldPeerConfiguration
	Configuration    types.PeerConfiguration
}

// TracingContext carries a W3C traceparent (and any vendor tracestate) so a
// peer's executors can continue the trace CARL started handling the
// request that produced this message (spec §6, §7).
type TracingContext struct {
	Values map[string]string
}
