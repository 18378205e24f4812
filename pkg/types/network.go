package types

import "net"

// NetworkInterfaceConfiguration discriminates between the two interface
// kinds a peer can declare.
type NetworkInterfaceConfiguration struct {
	Ethernet *EthernetConfiguration
	Can      *CanConfiguration
}

type EthernetConfiguration struct{}

// CanConfiguration carries the parameters needed to bring up a CAN
// interface on the peer (bitrate etc.). Fields are intentionally minimal -
// the peer-side executor runtime (out of scope, spec §1) owns the rest.
type CanConfiguration struct {
	Bitrate        uint32
	SamplePoint    uint32
	FdBitrate      uint32
	FdSamplePoint  uint32
	FdFlagSupport  bool
	RestartMs      uint32
}

func (c NetworkInterfaceConfiguration) IsEthernet() bool { return c.Ethernet != nil }
func (c NetworkInterfaceConfiguration) IsCan() bool      { return c.Can != nil }

// NetworkInterfaceDescriptor describes one network interface owned by a
// peer, referenced by id from DeviceDescriptor.Interface.
type NetworkInterfaceDescriptor struct {
	Id            NetworkInterfaceId
	Name          NetworkInterfaceName
	Configuration NetworkInterfaceConfiguration
}

// PeerNetworkDescriptor is the declared network shape of a peer: the set of
// interfaces it exposes, and an optional operator-chosen bridge name.
type PeerNetworkDescriptor struct {
	Interfaces []NetworkInterfaceDescriptor
	BridgeName *NetworkInterfaceName
}

// PeerVpnAddress records the address a peer's VPN self-group was assigned,
// once the Peer Manager has asked the VPN collaborator to provision it
// (spec §4.4). Its presence in the store is what makes self-group creation
// idempotent across repeated store_peer_descriptor calls.
type PeerVpnAddress struct {
	Address net.IP
}

// InterfacesZippedWithDevices pairs each of the given devices with the
// interface descriptor it references, skipping devices whose interface is
// not present on this network descriptor (should not happen given the
// PeerDescriptor invariant, but the caller is in a better position to decide
// how to treat that).
func (n PeerNetworkDescriptor) InterfacesZippedWithDevices(devices []DeviceDescriptor) []struct {
	Interface NetworkInterfaceDescriptor
	Device    DeviceDescriptor
} {
	byId := make(map[NetworkInterfaceId]NetworkInterfaceDescriptor, len(n.Interfaces))
	for _, iface := range n.Interfaces {
		byId[iface.Id] = iface
	}
	result := make([]struct {
		Interface NetworkInterfaceDescriptor
		Device    DeviceDescriptor
	}, 0, len(devices))
	for _, device := range devices {
		if iface, ok := byId[device.Interface]; ok {
			result = append(result, struct {
				Interface NetworkInterfaceDescriptor
				Device    DeviceDescriptor
			}{Interface: iface, Device: device})
		}
	}
	return result
}
