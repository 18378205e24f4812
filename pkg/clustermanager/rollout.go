package clustermanager

import (
	"context"

	"github.com/opendut/carl/pkg/broker"
	"github.com/opendut/carl/pkg/resource"
	"github.com/opendut/carl/pkg/types"
)

// RolloutCluster computes and pushes member interface assignments for
// clusterId. It is idempotent: re-running it for an already-deployed
// cluster recomputes the same target configuration (spec §4.3
// rollout_cluster).
func (m *ClusterManager) RolloutCluster(ctx context.Context, clusterId types.ClusterId) error {
	var cfg types.ClusterConfiguration
	var peers map[types.PeerId]types.PeerDescriptor

	err := m.resourceManager.Resources(func(r *resource.Resources) error {
		configs := resource.List[types.ClusterConfiguration](r)
		c, ok := configs[clusterId.UUID()]
		if !ok {
			return ClusterDescriptorNotFoundError{ClusterId: clusterId}
		}
		cfg = c

		peers = make(map[types.PeerId]types.PeerDescriptor)
		for _, p := range resource.List[types.PeerDescriptor](r) {
			peers[p.Id] = p
		}
		return nil
	})
	if err != nil {
		return err
	}

	memberInterfaces, err := determineMemberInterfaceMapping(cfg, peers)
	if err != nil {
		return err
	}

	memberIds := make([]types.PeerId, 0, len(memberInterfaces))
	for peerId := range memberInterfaces {
		memberIds = append(memberIds, peerId)
	}

	if _, err := m.vpn.CreateCluster(ctx, clusterId, memberIds); err != nil {
		return err
	}

	ports, err := m.allocateCanServerPorts(clusterId, len(memberIds))
	if err != nil {
		return err
	}

	assignment := types.ClusterAssignment{
		Id:          clusterId,
		Leader:      cfg.Leader,
		Assignments: make(map[types.PeerId]types.PeerClusterAssignment, len(memberIds)),
	}

	var remoteHosts map[types.PeerId]bool
	err = m.resourceManager.Resources(func(r *resource.Resources) error {
		remoteHosts = make(map[types.PeerId]bool, len(memberIds))
		for i, peerId := range memberIds {
			conn, _ := resource.Get[types.PeerConnectionState](r, peerId)
			if !conn.Online {
				return InternalError{Cause: "cluster member is not online at rollout time"}
			}
			remoteHosts[peerId] = true
			assignment.Assignments[peerId] = types.PeerClusterAssignment{
				VpnAddress:    conn.RemoteHost,
				CanServerPort: ports[i],
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	type delivery struct {
		peerId types.PeerId
		old    types.OldPeerConfiguration
		config types.PeerConfiguration
	}
	var deliveries []delivery

	err = m.resourceManager.ResourcesMut(func(r *resource.ResourcesMut) error {
		for peerId, interfaces := range memberInterfaces {
			old, config, err := assignCluster(r, assignment, peerId, interfaces, m.options.BridgeNameDefault)
			if err != nil {
				return err
			}
			deliveries = append(deliveries, delivery{peerId: peerId, old: old, config: config})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, d := range deliveries {
		message := broker.DownstreamMessage{ApplyPeerConfiguration: &broker.ApplyPeerConfiguration{
			OldConfiguration: d.old,
			Configuration:    d.config,
		}}
		if err := m.broker.SendToPeer(ctx, d.peerId, message); err != nil {
			return SendingToPeerFailedError{PeerId: d.peerId, Cause: err}
		}
	}
	return nil
}

// determineMemberInterfaceMapping computes, for every device declared in
// cfg, the unique peer that owns it and the set of that peer's interfaces
// backing clustered devices (spec §4.3 step 2).
func determineMemberInterfaceMapping(cfg types.ClusterConfiguration, peers map[types.PeerId]types.PeerDescriptor) (map[types.PeerId][]types.NetworkInterfaceDescriptor, error) {
	mapping := map[types.PeerId][]types.NetworkInterfaceDescriptor{
		cfg.Leader: {},
	}

	deviceOwner := make(map[types.DeviceId]types.PeerId)
	deviceInterface := make(map[types.DeviceId]types.NetworkInterfaceDescriptor)
	for _, peer := range peers {
		interfaceById := make(map[types.NetworkInterfaceId]types.NetworkInterfaceDescriptor, len(peer.Network.Interfaces))
		for _, iface := range peer.Network.Interfaces {
			interfaceById[iface.Id] = iface
		}
		for _, device := range peer.Topology.Devices {
			deviceOwner[device.Id] = peer.Id
			deviceInterface[device.Id] = interfaceById[device.Interface]
		}
	}

	for deviceId := range cfg.Devices {
		peerId, ok := deviceOwner[deviceId]
		if !ok {
			return nil, PeerForDeviceNotFoundError{ClusterId: cfg.Id, DeviceId: deviceId}
		}
		mapping[peerId] = append(mapping[peerId], deviceInterface[deviceId])
	}
	return mapping, nil
}
