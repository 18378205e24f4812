package resource

import (
	"github.com/opendut/carl/pkg/types"
)

// GetPeerState derives the Down|Up(Available|Blocked(...)) state of a single
// peer by joining PeerConnectionState, membership in any
// ClusterConfiguration (as leader, or through a device in its
// PeerDescriptor), and ClusterDeployment/ClusterAssignment existence
// (spec §3's derived-state rules, §4.3's Blocked reasons).
func GetPeerState(r *Resources, id types.PeerId) types.PeerState {
	conn, _ := Get[types.PeerConnectionState](r, id)
	if !conn.Online {
		return types.PeerDown()
	}
	return types.PeerUp(peerAvailability(r, id))
}

// peerAvailability determines why an online peer is blocked, if at all: a
// peer is blocked while its cluster is mid-rollout (Deploying), while it is
// an active cluster member (Member), or while that cluster is being torn
// down (Undeploying). It is otherwise Available.
func peerAvailability(r *Resources, id types.PeerId) types.PeerAvailability {
	configs := List[types.ClusterConfiguration](r)
	deployments := List[types.ClusterDeployment](r)
	assignments := List[types.ClusterAssignment](r)
	peer, _ := Get[types.PeerDescriptor](r, id)

	for _, cfg := range configs {
		if !memberOf(cfg, id, peer) {
			continue
		}
		_, deployed := deployments[cfg.Id.UUID()]
		_, assigned := assignments[cfg.Id.UUID()]
		switch {
		case deployed && assigned:
			return types.PeerBlockedMember
		case deployed && !assigned:
			return types.PeerBlockedDeploying
		case !deployed && assigned:
			return types.PeerBlockedUndeploying
		}
	}
	return types.PeerAvailable
}

// memberOf reports whether the peer is cfg's leader or owns one of the
// cluster's devices according to its PeerDescriptor.
func memberOf(cfg types.ClusterConfiguration, id types.PeerId, peer types.PeerDescriptor) bool {
	if cfg.Leader == id {
		return true
	}
	for _, device := range peer.Topology.Devices {
		if _, inCluster := cfg.Devices[device.Id]; inCluster {
			return true
		}
	}
	return false
}

// ListPeerStates derives PeerState for every known peer.
func ListPeerStates(r *Resources) map[types.PeerId]types.PeerState {
	peers := List[types.PeerDescriptor](r)
	result := make(map[types.PeerId]types.PeerState, len(peers))
	for id, p := range peers {
		result[p.Id] = GetPeerState(r, types.PeerId(id))
	}
	return result
}

// ListClusterPeerStates derives PeerState for every peer that is a member of
// cluster (by leadership or by owning one of the cluster's devices).
func ListClusterPeerStates(r *Resources, clusterId types.ClusterId) map[types.PeerId]types.PeerState {
	configs := List[types.ClusterConfiguration](r)
	cfg, ok := configs[clusterId.UUID()]
	if !ok {
		return nil
	}

	peers := List[types.PeerDescriptor](r)
	members := make(map[types.PeerId]struct{})
	members[cfg.Leader] = struct{}{}
	for _, p := range peers {
		for _, device := range p.Topology.Devices {
			if _, inCluster := cfg.Devices[device.Id]; inCluster {
				members[p.Id] = struct{}{}
				break
			}
		}
	}

	result := make(map[types.PeerId]types.PeerState, len(members))
	for id := range members {
		result[id] = GetPeerState(r, id)
	}
	return result
}

// AllPeersAvailable reports whether every member of cluster is currently
// Up(Available), the precondition for CheckClusterDeployable (spec §4.3.1).
func AllPeersAvailable(r *Resources, clusterId types.ClusterId) bool {
	for _, state := range ListClusterPeerStates(r, clusterId) {
		if !state.Up || state.Availability != types.PeerAvailable {
			return false
		}
	}
	return true
}
