// Package vpn declares the narrow boundary between the core and the VPN
// overlay network controller (spec §1 Non-goals: reimplementing the VPN
// controller itself, e.g. NetBird, is out of scope). The core only ever
// needs to create/delete per-peer self-groups and per-cluster groups; it
// never inspects the overlay's own topology.
package vpn

import (
	"context"
	"net"

	"github.com/opendut/carl/pkg/types"
)

// Collaborator is implemented by whatever controls the VPN overlay. The
// core depends only on this interface, the same way the teacher depends on
// pkg/discovery.Provider rather than on AWS or DigitalOcean directly.
type Collaborator interface {
	// CreateSelfGroup provisions the peer's own VPN identity, returning the
	// address it should be reachable at once connected.
	CreateSelfGroup(ctx context.Context, peerId types.PeerId) (net.IP, error)
	// DeleteSelfGroup removes a peer's VPN identity.
	DeleteSelfGroup(ctx context.Context, peerId types.PeerId) error
	// CreateCluster provisions connectivity among exactly the given peers,
	// returning each member's VPN address.
	CreateCluster(ctx context.Context, clusterId types.ClusterId, members []types.PeerId) (map[types.PeerId]net.IP, error)
	// DeleteCluster tears down cluster-scoped connectivity.
	DeleteCluster(ctx context.Context, clusterId types.ClusterId) error
}

// Disabled satisfies Collaborator for deployments without a VPN overlay
// configured. CreateSelfGroup/CreateCluster return nil addresses. Cluster
// rollout does not use the addresses CreateCluster returns: each member's
// assigned address is the remote host recorded in its PeerConnectionState.
type Disabled struct{}

func (Disabled) CreateSelfGroup(context.Context, types.PeerId) (net.IP, error) {
	return nil, nil
}

func (Disabled) DeleteSelfGroup(context.Context, types.PeerId) error {
	return nil
}

func (Disabled) CreateCluster(ctx context.Context, clusterId types.ClusterId, members []types.PeerId) (map[types.PeerId]net.IP, error) {
	result := make(map[types.PeerId]net.IP, len(members))
	for _, peerId := range members {
		result[peerId] = nil
	}
	return result, nil
}

func (Disabled) DeleteCluster(context.Context, types.ClusterId) error {
	return nil
}
