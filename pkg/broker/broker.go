// Package broker implements the Peer Messaging Broker (spec §4.2): the
// long-lived, bidirectional, per-peer stream that CARL uses to push
// configuration to a connected peer and to detect its liveness. It mirrors
// the channel-plus-goroutine shape the teacher uses for its gossip and
// membership loops (criticalstack/e2d's pkg/manager/gossip.go,
// membership.go), generalized from a single gossip ring to one goroutine
// per connected peer.
package broker

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/opendut/carl/pkg/log"
	"github.com/opendut/carl/pkg/resource"
	"github.com/opendut/carl/pkg/tracing"
	"github.com/opendut/carl/pkg/types"
)

// Options configures timing behavior of the broker.
type Options struct {
	// PeerDisconnectTimeout is how long the broker waits for any upstream
	// message (including a Ping) before declaring a peer's stream dead.
	PeerDisconnectTimeout time.Duration
}

type peerRef struct {
	downstream chan Downstream
}

// PeerMessagingBroker holds one outbound channel per connected peer and
// reconciles PeerConnectionState through the resource manager as peers
// connect, ping, and disconnect.
type PeerMessagingBroker struct {
	resourceManager *resource.ResourceManager
	options         Options

	mu    sync.RWMutex
	peers map[types.PeerId]*peerRef
}

func New(resourceManager *resource.ResourceManager, options Options) *PeerMessagingBroker {
	return &PeerMessagingBroker{
		resourceManager: resourceManager,
		options:         options,
		peers:           make(map[types.PeerId]*peerRef),
	}
}

// SendToPeer pushes message to peerId's downstream channel, tagging it with
// the traceparent carried by ctx (spec §6, §7). Returns PeerNotFound if no
// stream is currently open for peerId.
func (b *PeerMessagingBroker) SendToPeer(ctx context.Context, peerId types.PeerId, message DownstreamMessage) error {
	b.mu.RLock()
	peer, ok := b.peers[peerId]
	b.mu.RUnlock()
	if !ok {
		return PeerNotFoundError{PeerId: peerId}
	}

	carrier := make(map[string]string, 1)
	tracing.Inject(ctx, carrier)

	select {
	case peer.downstream <- Downstream{Context: &TracingContext{Values: carrier}, Message: message}:
		return nil
	default:
		return DownstreamSendError{PeerId: peerId}
	}
}

// Open registers peerId as connected from remoteHost, returning the channel
// pair the transport layer should pump: send received Upstream messages
// into the returned chan<- Upstream, and forward everything read from the
// returned <-chan Downstream to the peer. A background goroutine owns
// liveness tracking and is torn down automatically once upstream closes or
// PeerDisconnectTimeout elapses without a message (spec §4.2).
func (b *PeerMessagingBroker) Open(ctx context.Context, peerId types.PeerId, remoteHost net.IP) (chan<- Upstream, <-chan Downstream, error) {
	log.Debugf("peer <%s> opened stream from remote address %s", peerId, remoteHost)

	upstream := make(chan Upstream, 1024)
	downstream := make(chan Downstream, 1024)

	ref := &peerRef{downstream: downstream}

	if err := b.updatePeerConnectionState(peerId, remoteHost); err != nil {
		return nil, nil, err
	}

	b.mu.Lock()
	b.peers[peerId] = ref
	b.mu.Unlock()

	if err := b.sendInitialPeerConfiguration(ctx, peerId); err != nil {
		return nil, nil, err
	}

	go b.pumpUpstream(peerId, upstream, downstream)

	return upstream, downstream, nil
}

// pumpUpstream is the per-peer liveness loop: it answers Pings, and declares
// the peer disconnected if no upstream message arrives within the
// configured timeout or the channel is closed by the transport layer.
func (b *PeerMessagingBroker) pumpUpstream(peerId types.PeerId, upstream chan Upstream, downstream chan Downstream) {
	timer := time.NewTimer(b.options.PeerDisconnectTimeout)
	defer timer.Stop()

	for {
		select {
		case message, open := <-upstream:
			if !open {
				log.Infof("peer <%s> disconnected", peerId)
				b.removePeer(peerId)
				return
			}
			handleUpstreamMessage(peerId, message, downstream)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(b.options.PeerDisconnectTimeout)
		case <-timer.C:
			log.Errorf("no message from peer <%s> within %s", peerId, b.options.PeerDisconnectTimeout)
			b.removePeer(peerId)
			return
		}
	}
}

func handleUpstreamMessage(peerId types.PeerId, message Upstream, downstream chan Downstream) {
	if message.Ping == nil {
		return
	}
	select {
	case downstream <- Downstream{Message: DownstreamMessage{Pong: &Pong{}}}:
	default:
		log.Warnf("failed to send pong to peer <%s>: downstream channel full", peerId)
	}
}

func (b *PeerMessagingBroker) sendInitialPeerConfiguration(ctx context.Context, peerId types.PeerId) error {
	var old types.OldPeerConfiguration
	var config types.PeerConfiguration

	err := b.resourceManager.Resources(func(r *resource.Resources) error {
		if v, ok := resource.Get[types.OldPeerConfiguration](r, peerId); ok {
			old = v
			log.Debugf("found an OldPeerConfiguration for newly connected peer <%s>", peerId)
		} else {
			log.Debugf("no OldPeerConfiguration found for newly connected peer <%s>, sending empty configuration", peerId)
		}
		if v, ok := resource.Get[types.PeerConfiguration](r, peerId); ok {
			config = v
			log.Debugf("found a PeerConfiguration for newly connected peer <%s>", peerId)
		} else {
			log.Debugf("no PeerConfiguration found for newly connected peer <%s>, sending empty configuration", peerId)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "reading initial configuration for peer <%s>", peerId)
	}

	message := DownstreamMessage{ApplyPeerConfiguration: &ApplyPeerConfiguration{
		OldConfiguration: old,
		Configuration:    config,
	}}
	if err := b.SendToPeer(ctx, peerId, message); err != nil {
		return SendApplyPeerConfigurationError{PeerId: peerId, Cause: err}
	}
	return nil
}

// updatePeerConnectionState transitions a peer to Online, rejecting the
// open if it already believes itself connected (spec §4.2: a duplicate
// connection for the same PeerId is refused rather than silently replacing
// the first).
func (b *PeerMessagingBroker) updatePeerConnectionState(peerId types.PeerId, remoteHost net.IP) error {
	return b.resourceManager.ResourcesMut(func(r *resource.ResourcesMut) error {
		current, existed := resource.GetMut[types.PeerConnectionState](r, peerId)
		if existed && current.Online {
			log.Errorf("peer <%s> opened stream which was already connected, rejecting", peerId)
			return PeerAlreadyConnectedError{PeerId: peerId}
		}
		if !existed {
			log.Infof("peer <%s> had not been seen before", peerId)
		} else {
			log.Debugf("peer <%s> had been seen before and was down", peerId)
		}
		resource.Insert(r, peerId, types.Online(remoteHost))
		return nil
	})
}

// removePeer marks peerId offline and drops its stream registration. It is
// called once the owning goroutine observes the peer's stream has ended,
// whether by clean close or by liveness timeout.
func (b *PeerMessagingBroker) removePeer(peerId types.PeerId) error {
	err := b.resourceManager.ResourcesMut(func(r *resource.ResourcesMut) error {
		current, existed := resource.GetMut[types.PeerConnectionState](r, peerId)
		if !existed {
			return PeerNotFoundError{PeerId: peerId}
		}
		if current.Online {
			log.Debugf("removing peer <%s> from broker, last known address %s", peerId, current.RemoteHost)
		} else {
			log.Debugf("removing peer <%s> from broker, no previously known address", peerId)
		}
		resource.Insert(r, peerId, types.Offline())
		return nil
	})

	b.mu.Lock()
	_, existed := b.peers[peerId]
	delete(b.peers, peerId)
	b.mu.Unlock()

	if err != nil {
		return err
	}
	if !existed {
		return PeerNotFoundError{PeerId: peerId}
	}
	return nil
}
