package clustermanager

import (
	"github.com/opendut/carl/pkg/resource"
	"github.com/opendut/carl/pkg/types"
)

// Deployability is the result of CheckClusterDeployable (spec §4.3).
type Deployability int

const (
	// AllPeersAvailable means rollout may proceed immediately.
	AllPeersAvailable Deployability = iota
	// AlreadyDeployed means a ClusterDeployment already exists and every
	// member is Up(Blocked(Member)) of this same cluster; nothing to do.
	AlreadyDeployed
	// NotAllPeersAvailable carries the set of peers preventing deployment.
	NotAllPeersAvailable
)

// DeployabilityResult is the full outcome of a deployability check,
// including the offending peers when the cluster is not deployable.
type DeployabilityResult struct {
	Status           Deployability
	UnavailablePeers []types.PeerId
}

// CheckClusterDeployable evaluates whether clusterId can be rolled out,
// given the cluster's current member states (spec §4.3).
func CheckClusterDeployable(r *resource.Resources, clusterId types.ClusterId, cfg types.ClusterConfiguration) DeployabilityResult {
	states := resource.ListClusterPeerStates(r, clusterId)

	_, alreadyDeployed := resource.List[types.ClusterDeployment](r)[clusterId.UUID()]

	if alreadyDeployed {
		allMember := true
		for _, state := range states {
			if !state.Up || state.Availability != types.PeerBlockedMember {
				allMember = false
				break
			}
		}
		if allMember {
			return DeployabilityResult{Status: AlreadyDeployed}
		}
	}

	var unavailable []types.PeerId
	for peerId, state := range states {
		if !state.Up || state.Availability != types.PeerAvailable {
			unavailable = append(unavailable, peerId)
		}
	}
	if len(unavailable) == 0 {
		return DeployabilityResult{Status: AllPeersAvailable}
	}
	return DeployabilityResult{Status: NotAllPeersAvailable, UnavailablePeers: unavailable}
}

// CheckAllPeersAreAvailableNotNecessarilyOnline is the variant used at
// store-deployment time (spec §4.3): a peer that is simply Down is
// acceptable here, since online-ness is only enforced later, at rollout.
func CheckAllPeersAreAvailableNotNecessarilyOnline(r *resource.Resources, clusterId types.ClusterId) DeployabilityResult {
	states := resource.ListClusterPeerStates(r, clusterId)

	var unavailable []types.PeerId
	for peerId, state := range states {
		if state.Up && state.Availability != types.PeerAvailable {
			unavailable = append(unavailable, peerId)
		}
	}
	if len(unavailable) == 0 {
		return DeployabilityResult{Status: AllPeersAvailable}
	}
	return DeployabilityResult{Status: NotAllPeersAvailable, UnavailablePeers: unavailable}
}
