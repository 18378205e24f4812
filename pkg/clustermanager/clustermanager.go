// Package clustermanager implements the Cluster Manager (spec §4.3): the
// component that decides whether a cluster can be rolled out, allocates
// CAN server ports, and computes the per-peer configuration delta that
// turns a declared ClusterConfiguration into concrete PeerConfiguration
// parameters. It follows the teacher's pattern of a small struct holding a
// single sync.Mutex-guarded counter (criticalstack/e2d's pkg/manager
// atomic/mutex-guarded server state), generalized here to CAN server port
// allocation.
package clustermanager

import (
	"context"
	"sync"

	"github.com/opendut/carl/pkg/broker"
	"github.com/opendut/carl/pkg/log"
	"github.com/opendut/carl/pkg/resource"
	"github.com/opendut/carl/pkg/types"
	"github.com/opendut/carl/pkg/vpn"
)

// Options configures the Cluster Manager's CAN server port allocation
// range and the default Ethernet bridge name used when a peer declares
// none of its own (spec §4.3.3).
type Options struct {
	CanServerPortRangeStart types.Port
	CanServerPortRangeEnd   types.Port
	BridgeNameDefault       types.NetworkInterfaceName
}

// ClusterManager owns the CAN server port counter and coordinates cluster
// rollout across the resource manager, the peer messaging broker, and the
// VPN collaborator.
type ClusterManager struct {
	resourceManager *resource.ResourceManager
	broker          *broker.PeerMessagingBroker
	vpn             vpn.Collaborator
	options         Options

	mu                    sync.Mutex
	canServerPortCounter  types.Port
}

func New(resourceManager *resource.ResourceManager, peerBroker *broker.PeerMessagingBroker, collaborator vpn.Collaborator, options Options) *ClusterManager {
	m := &ClusterManager{
		resourceManager:      resourceManager,
		broker:               peerBroker,
		vpn:                  collaborator,
		options:              options,
		canServerPortCounter: options.CanServerPortRangeStart,
	}
	m.registerEffects()
	return m
}

// registerEffects wires the Cluster Manager's reactive behavior (spec §4.3
// "Reactive behavior"): a peer coming online may unblock a pending
// deployment, and a removed deployment tears down its members'
// configuration.
func (m *ClusterManager) registerEffects() {
	resource.Subscribe(m.resourceManager.Bus(), func(ev resource.Event[types.PeerConnectionState]) {
		if ev.Kind == resource.Removed || ev.New == nil || !ev.New.Online {
			return
		}
		m.onPeerOnline(types.PeerId(ev.Id))
	})
	resource.Subscribe(m.resourceManager.Bus(), func(ev resource.Event[types.ClusterDeployment]) {
		if ev.Kind != resource.Removed {
			return
		}
		m.onDeploymentRemoved(types.ClusterId(ev.Id))
	})
}

func (m *ClusterManager) onPeerOnline(peerId types.PeerId) {
	var clusterIds []types.ClusterId
	err := m.resourceManager.Resources(func(r *resource.Resources) error {
		peer, ok := resource.Get[types.PeerDescriptor](r, peerId)
		if !ok {
			return nil
		}
		deviceIds := make(map[types.DeviceId]struct{}, len(peer.Topology.Devices))
		for _, d := range peer.Topology.Devices {
			deviceIds[d.Id] = struct{}{}
		}

		deployments := resource.List[types.ClusterDeployment](r)
		configs := resource.List[types.ClusterConfiguration](r)
		for id := range deployments {
			cfg, ok := configs[id]
			if !ok {
				continue
			}
			for deviceId := range cfg.Devices {
				if _, owned := deviceIds[deviceId]; owned {
					clusterIds = append(clusterIds, cfg.Id)
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Errorf("clustermanager: failed to determine affected clusters for peer <%s> coming online: %v", peerId, err)
		return
	}
	for _, clusterId := range clusterIds {
		if err := m.RolloutClusterIfAllPeersAvailable(context.Background(), clusterId); err != nil {
			log.Warnf("clustermanager: rollout of cluster <%s> after peer <%s> came online failed: %v", clusterId, peerId, err)
		}
	}
}

func (m *ClusterManager) onDeploymentRemoved(clusterId types.ClusterId) {
	var members map[types.PeerId]struct{}
	err := m.resourceManager.Resources(func(r *resource.Resources) error {
		members = clusterMemberIds(r, clusterId)
		return nil
	})
	if err != nil {
		log.Errorf("clustermanager: failed to read members for removed deployment of cluster <%s>: %v", clusterId, err)
		return
	}

	for peerId := range members {
		if err := m.clearClusterAssignment(context.Background(), peerId); err != nil {
			log.Warnf("clustermanager: failed to clear cluster assignment for peer <%s> after cluster <%s> teardown: %v", peerId, clusterId, err)
		}
	}
	if err := m.vpn.DeleteCluster(context.Background(), clusterId); err != nil {
		log.Warnf("clustermanager: failed to delete VPN group for cluster <%s>: %v", clusterId, err)
	}
}

func clusterMemberIds(r *resource.Resources, clusterId types.ClusterId) map[types.PeerId]struct{} {
	configs := resource.List[types.ClusterConfiguration](r)
	cfg, ok := configs[clusterId.UUID()]
	if !ok {
		return nil
	}
	members := make(map[types.PeerId]struct{})
	members[cfg.Leader] = struct{}{}
	for _, peer := range resource.List[types.PeerDescriptor](r) {
		for _, device := range peer.Topology.Devices {
			if _, inCluster := cfg.Devices[device.Id]; inCluster {
				members[peer.Id] = struct{}{}
				break
			}
		}
	}
	return members
}

// clearClusterAssignment re-sends ApplyPeerConfiguration to peerId with its
// OldPeerConfiguration.ClusterAssignment cleared, the teardown half of spec
// §4.3's reactive behavior.
func (m *ClusterManager) clearClusterAssignment(ctx context.Context, peerId types.PeerId) error {
	var config types.PeerConfiguration
	err := m.resourceManager.ResourcesMut(func(r *resource.ResourcesMut) error {
		if _, existed := resource.GetMut[types.PeerDescriptor](r, peerId); !existed {
			return PeerNotFoundError{PeerId: peerId}
		}
		resource.Insert(r, peerId, types.OldPeerConfiguration{})
		config, _ = resource.GetMut[types.PeerConfiguration](r, peerId)
		return nil
	})
	if err != nil {
		return err
	}

	message := broker.DownstreamMessage{ApplyPeerConfiguration: &broker.ApplyPeerConfiguration{
		OldConfiguration: types.OldPeerConfiguration{},
		Configuration:    config,
	}}
	if err := m.broker.SendToPeer(ctx, peerId, message); err != nil {
		return SendingToPeerFailedError{PeerId: peerId, Cause: err}
	}
	return nil
}

// StoreClusterDeployment persists a ClusterDeployment if every member is
// currently available (not necessarily online), then attempts an
// immediate rollout (spec §4.3 store_cluster_deployment).
func (m *ClusterManager) StoreClusterDeployment(ctx context.Context, deployment types.ClusterDeployment) error {
	var clusterName types.ClusterName
	err := m.resourceManager.ResourcesMut(func(r *resource.ResourcesMut) error {
		configs := resource.ListMut[types.ClusterConfiguration](r)
		cfg, ok := configs[deployment.Id.UUID()]
		if ok {
			clusterName = cfg.Name
		}

		result := checkAllPeersAreAvailableNotNecessarilyOnlineMut(r, deployment.Id)
		switch result.Status {
		case AlreadyDeployed, AllPeersAvailable:
			resource.Insert(r, deployment.Id, deployment)
			return nil
		default:
			return IllegalPeerStateError{ClusterId: deployment.Id, InvalidPeers: result.UnavailablePeers}
		}
	})
	if err != nil {
		return err
	}

	log.Debugf("stored deployment for cluster <%s> (%s)", deployment.Id, clusterName)

	if err := m.RolloutClusterIfAllPeersAvailable(ctx, deployment.Id); err != nil {
		log.Warnf("clustermanager: rollout of cluster <%s> after storing deployment failed: %v", deployment.Id, err)
	}
	return nil
}

// checkAllPeersAreAvailableNotNecessarilyOnlineMut is CheckAllPeersAreAvailableNotNecessarilyOnline
// adapted to run inside a ResourcesMut closure, where only the mutable
// handle's read accessors are in scope.
func checkAllPeersAreAvailableNotNecessarilyOnlineMut(r *resource.ResourcesMut, clusterId types.ClusterId) DeployabilityResult {
	configs := resource.ListMut[types.ClusterConfiguration](r)
	cfg, ok := configs[clusterId.UUID()]
	if !ok {
		return DeployabilityResult{Status: NotAllPeersAvailable}
	}
	members := make(map[types.PeerId]struct{})
	members[cfg.Leader] = struct{}{}
	for _, peer := range resource.ListMut[types.PeerDescriptor](r) {
		for _, device := range peer.Topology.Devices {
			if _, inCluster := cfg.Devices[device.Id]; inCluster {
				members[peer.Id] = struct{}{}
				break
			}
		}
	}

	var unavailable []types.PeerId
	for peerId := range members {
		conn, _ := resource.GetMut[types.PeerConnectionState](r, peerId)
		if !conn.Online {
			continue // Down is acceptable at store-deployment time
		}
		availability := peerAvailabilityMut(r, peerId)
		if availability != types.PeerAvailable {
			unavailable = append(unavailable, peerId)
		}
	}
	if len(unavailable) == 0 {
		return DeployabilityResult{Status: AllPeersAvailable}
	}
	return DeployabilityResult{Status: NotAllPeersAvailable, UnavailablePeers: unavailable}
}

func peerAvailabilityMut(r *resource.ResourcesMut, peerId types.PeerId) types.PeerAvailability {
	configs := resource.ListMut[types.ClusterConfiguration](r)
	deployments := resource.ListMut[types.ClusterDeployment](r)
	assignments := resource.ListMut[types.ClusterAssignment](r)
	peer, _ := resource.GetMut[types.PeerDescriptor](r, peerId)

	for _, cfg := range configs {
		member := cfg.Leader == peerId
		for _, device := range peer.Topology.Devices {
			if _, inCluster := cfg.Devices[device.Id]; inCluster {
				member = true
			}
		}
		if !member {
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

// RolloutClusterIfAllPeersAvailable rolls out clusterId only if every
// member currently shows Up(Available), or the cluster is already deployed
// with every member Up(Blocked(Member)); otherwise it is a no-op, matching
// spec §4.3's reactive triggers which fire speculatively and should not log
// as failures when the cluster simply isn't ready yet.
func (m *ClusterManager) RolloutClusterIfAllPeersAvailable(ctx context.Context, clusterId types.ClusterId) error {
	var deployable bool
	err := m.resourceManager.Resources(func(r *resource.Resources) error {
		configs := resource.List[types.ClusterConfiguration](r)
		cfg, ok := configs[clusterId.UUID()]
		if !ok {
			return ClusterDescriptorNotFoundError{ClusterId: clusterId}
		}
		result := CheckClusterDeployable(r, clusterId, cfg)
		deployable = result.Status == AllPeersAvailable || result.Status == AlreadyDeployed
		return nil
	})
	if err != nil {
		return err
	}
	if !deployable {
		return nil
	}
	return m.RolloutCluster(ctx, clusterId)
}

// allocateCanServerPorts allocates n consecutive ports from the configured
// range, wrapping around without reclaiming previously allocated ports
// (spec §4.3 "CAN server port allocation").
func (m *ClusterManager) allocateCanServerPorts(clusterId types.ClusterId, n int) ([]types.Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := int(m.options.CanServerPortRangeStart)
	end := int(m.options.CanServerPortRangeEnd)
	if start+n >= end {
		return nil, DetermineCanServerPortError{ClusterId: clusterId, RequestedPorts: n}
	}

	counter := int(m.canServerPortCounter)
	if counter+n >= end {
		counter = start
		if start+2*n >= end {
			log.Warnf("clustermanager: CAN server port range [%d, %d) is tight relative to request of %d ports for cluster <%s>; wrapping to start", start, end, n, clusterId)
		}
	}

	ports := make([]types.Port, n)
	for i := 0; i < n; i++ {
		ports[i] = types.Port(counter + i)
	}
	m.canServerPortCounter = types.Port(counter + n)
	return ports, nil
}
