package clustermanager

import (
	"net"

	"github.com/opendut/carl/pkg/resource"
	"github.com/opendut/carl/pkg/types"
)

// determineExpectedGreInterfaceConfigs computes the GRE tunnel legs peerId
// needs (spec §4.3.3): the leader gets one leg per non-leader member, every
// other member gets exactly one leg to the leader. All VPN addresses
// involved must be IPv4.
func determineExpectedGreInterfaceConfigs(peerId types.PeerId, assignment types.ClusterAssignment) ([]types.GreInterfaceConfig, error) {
	leaderAssignment, ok := assignment.Assignments[assignment.Leader]
	if !ok {
		return nil, PeerNotFoundError{PeerId: assignment.Leader}
	}
	leaderIp, err := requireIpv4(assignment.Leader, leaderAssignment.VpnAddress)
	if err != nil {
		return nil, err
	}

	peerAssignment, ok := assignment.Assignments[peerId]
	if !ok {
		return nil, PeerNotFoundError{PeerId: peerId}
	}
	peerIp, err := requireIpv4(peerId, peerAssignment.VpnAddress)
	if err != nil {
		return nil, err
	}

	if peerId == assignment.Leader {
		var configs []types.GreInterfaceConfig
		for memberId, memberAssignment := range assignment.Assignments {
			if memberId == assignment.Leader {
				continue
			}
			remoteIp, err := requireIpv4(memberId, memberAssignment.VpnAddress)
			if err != nil {
				return nil, err
			}
			configs = append(configs, types.GreInterfaceConfig{LocalIp: peerIp, RemoteIp: remoteIp})
		}
		return configs, nil
	}

	return []types.GreInterfaceConfig{{LocalIp: peerIp, RemoteIp: leaderIp}}, nil
}

func requireIpv4(peerId types.PeerId, ip net.IP) ([4]byte, error) {
	var result [4]byte
	v4 := ip.To4()
	if v4 == nil {
		return result, Ipv6NotSupportedError{PeerId: peerId}
	}
	copy(result[:], v4)
	return result, nil
}

// computePeerConfiguration derives the target PeerConfiguration for a
// cluster member from its existing configuration, its declared devices and
// executors, and the GRE/bridge parameters its cluster role requires (spec
// §4.3.3). It mutates and returns the supplied configuration in place,
// mirroring the teacher's upsert-by-content-id Parameter helpers.
func computePeerConfiguration(
	config types.PeerConfiguration,
	descriptor types.PeerDescriptor,
	deviceInterfaces []types.NetworkInterfaceDescriptor,
	greConfigs []types.GreInterfaceConfig,
	bridgeNameDefault types.NetworkInterfaceName,
) (types.PeerConfiguration, error) {

	// Device interfaces: present for every interface backing a clustered
	// device on this peer, absent for everything else currently configured.
	expectedDeviceIds := make(map[types.ParameterId]struct{}, len(deviceInterfaces))
	for _, iface := range deviceInterfaces {
		id := types.ParameterId(iface.Id.UUID())
		expectedDeviceIds[id] = struct{}{}
	}
	for _, p := range config.DeviceInterfaces {
		if _, expected := expectedDeviceIds[types.ParameterId(p.Value.Descriptor.Id.UUID())]; !expected {
			config.SetDeviceInterface(p.Value, types.Absent)
		}
	}
	for _, iface := range deviceInterfaces {
		config.SetDeviceInterface(types.DeviceInterfaceValue{Descriptor: iface}, types.Present)
	}

	// Ethernet bridge: exactly one Present at a time, supports rename.
	bridgeName := bridgeNameDefault
	if descriptor.Network.BridgeName != nil {
		bridgeName = *descriptor.Network.BridgeName
	}
	bridgeValue := types.EthernetBridgeValue{Name: bridgeName}
	expectedBridgeId := types.ParameterIdentifierOf(bridgeValue)
	for _, p := range config.EthernetBridges {
		if p.Id != expectedBridgeId {
			config.SetEthernetBridge(p.Value, types.Absent)
		}
	}
	config.SetEthernetBridge(bridgeValue, types.Present)

	// GRE interfaces.
	expectedGreIds := make(map[types.ParameterId]struct{}, len(greConfigs))
	for _, gre := range greConfigs {
		expectedGreIds[types.ParameterIdentifierOf(gre)] = struct{}{}
	}
	for _, p := range config.GreInterfaces {
		if _, expected := expectedGreIds[p.Id]; !expected {
			config.SetGreInterface(p.Value, types.Absent)
		}
	}
	for _, gre := range greConfigs {
		config.SetGreInterface(gre, types.Present)
	}

	// Joined interfaces: every expected GRE interface plus every Ethernet
	// device interface on this peer, joined into the chosen bridge.
	var joinNames []types.NetworkInterfaceName
	for _, gre := range greConfigs {
		name, err := gre.InterfaceName()
		if err != nil {
			return config, err
		}
		joinNames = append(joinNames, name)
	}
	for _, iface := range deviceInterfaces {
		if iface.Configuration.IsEthernet() {
			joinNames = append(joinNames, iface.Name)
		}
	}

	expectedJoinIds := make(map[types.ParameterId]struct{}, len(joinNames))
	for _, name := range joinNames {
		expectedJoinIds[types.ParameterIdentifierOf(types.InterfaceJoinConfig{Name: name, Bridge: bridgeName})] = struct{}{}
	}
	for _, p := range config.JoinedInterfaces {
		if _, expected := expectedJoinIds[p.Id]; !expected {
			config.SetJoinedInterface(p.Value, types.Absent)
		}
	}
	for _, name := range joinNames {
		config.SetJoinedInterface(types.InterfaceJoinConfig{Name: name, Bridge: bridgeName}, types.Present)
	}

	// Executors: mirror the peer descriptor's own list.
	expectedExecutorIds := make(map[types.ParameterId]struct{}, len(descriptor.Executors.Executors))
	for _, executor := range descriptor.Executors.Executors {
		expectedExecutorIds[types.ParameterId(executor.Id.UUID())] = struct{}{}
	}
	for _, p := range config.Executors {
		if _, expected := expectedExecutorIds[types.ParameterId(p.Value.Descriptor.Id.UUID())]; !expected {
			config.SetExecutor(p.Value, types.Absent)
		}
	}
	for _, executor := range descriptor.Executors.Executors {
		config.SetExecutor(types.ExecutorValue{Descriptor: executor}, types.Present)
	}

	return config, nil
}

// assignCluster reads the current PeerConfiguration and PeerDescriptor for
// peerId, computes its target configuration, and upserts both it and the
// OldPeerConfiguration wrapping assignment. It returns the pair so the
// caller can deliver ApplyPeerConfiguration after the transaction commits
// (spec §5: no component holds the resource lock across a send).
func assignCluster(
	r *resource.ResourcesMut,
	assignment types.ClusterAssignment,
	peerId types.PeerId,
	deviceInterfaces []types.NetworkInterfaceDescriptor,
	bridgeNameDefault types.NetworkInterfaceName,
) (types.OldPeerConfiguration, types.PeerConfiguration, error) {
	descriptor, existed := resource.GetMut[types.PeerDescriptor](r, peerId)
	if !existed {
		return types.OldPeerConfiguration{}, types.PeerConfiguration{}, PeerNotFoundError{PeerId: peerId}
	}

	greConfigs, err := determineExpectedGreInterfaceConfigs(peerId, assignment)
	if err != nil {
		return types.OldPeerConfiguration{}, types.PeerConfiguration{}, err
	}

	existing, _ := resource.GetMut[types.PeerConfiguration](r, peerId)
	config, err := computePeerConfiguration(existing, descriptor, deviceInterfaces, greConfigs, bridgeNameDefault)
	if err != nil {
		return types.OldPeerConfiguration{}, types.PeerConfiguration{}, err
	}

	old := types.OldPeerConfiguration{ClusterAssignment: &assignment}
	resource.Insert(r, peerId, old)
	resource.Insert(r, peerId, config)
	return old, config, nil
}
