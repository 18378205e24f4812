package broker

import (
	"fmt"

	"github.com/opendut/carl/pkg/types"
)

// PeerAlreadyConnectedError is returned by Open when a peer opens a second
// stream while CARL still believes its first one is live. This usually
// means a second host was set up with the same PeerId.
type PeerAlreadyConnectedError struct {
	PeerId types.PeerId
}

func (e PeerAlreadyConnectedError) Error() string {
	return fmt.Sprintf("peer <%s> opened stream, but CARL already has a connected stream with this id; rejecting connection", e.PeerId)
}

// PeerNotFoundError is returned when an operation references a peer with no
// open stream (SendToPeer) or no known connection state (removePeer).
type PeerNotFoundError struct {
	PeerId types.PeerId
}

func (e PeerNotFoundError) Error() string {
	return fmt.Sprintf("peer <%s> not found", e.PeerId)
}

// DownstreamSendError is returned by SendToPeer when the peer's downstream
// channel is full, meaning the transport layer is not draining it fast
// enough.
type DownstreamSendError struct {
	PeerId types.PeerId
}

func (e DownstreamSendError) Error() string {
	return fmt.Sprintf("failed to send message to peer <%s>: downstream channel full", e.PeerId)
}

// SendApplyPeerConfigurationError wraps a failed attempt to deliver the
// initial configuration to a newly-connected peer.
type SendApplyPeerConfigurationError struct {
	PeerId types.PeerId
	Cause  error
}

func (e SendApplyPeerConfigurationError) Error() string {
	return fmt.Sprintf("error sending peer configuration to peer <%s>: %v", e.PeerId, e.Cause)
}

func (e SendApplyPeerConfigurationError) Unwrap() error {
	return e.Cause
}
