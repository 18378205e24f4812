package types

import (
	"net"

	"github.com/pkg/errors"
)

// PeerLocation is a free-form operator-provided location hint.
type PeerLocation string

// PeerDescriptor is the declared shape of a peer: identity, network, device
// topology and the executors it should run. It is owned exclusively by the
// Resource Manager (spec §3: ownership is tree-shaped).
type PeerDescriptor struct {
	Id        PeerId
	Name      PeerName
	Location  *PeerLocation
	Network   PeerNetworkDescriptor
	Topology  Topology
	Executors ExecutorDescriptors
}

// Validate enforces the invariant from spec §3: every device's interface id
// must reference an interface declared in the same descriptor.
func (p PeerDescriptor) Validate() error {
	known := make(map[NetworkInterfaceId]struct{}, len(p.Network.Interfaces))
	for _, iface := range p.Network.Interfaces {
		known[iface.Id] = struct{}{}
	}
	for _, device := range p.Topology.Devices {
		if _, ok := known[device.Interface]; !ok {
			return errors.Wrapf(ErrInterfaceNotFound, "device %s references interface %s", device.Id, device.Interface)
		}
	}
	return nil
}

// PeerConnectionState tracks whether CARL currently holds an authoritative
// stream to the peer, and from which remote host. Mutated exclusively by the
// Peer Messaging Broker.
type PeerConnectionState struct {
	Online     bool
	RemoteHost net.IP
}

func Offline() PeerConnectionState { return PeerConnectionState{} }

func Online(remoteHost net.IP) PeerConnectionState {
	return PeerConnectionState{Online: true, RemoteHost: remoteHost}
}

// PeerAvailability is the "Available | Blocked(reason)" part of PeerState.
type PeerAvailability int

const (
	PeerAvailable PeerAvailability = iota
	PeerBlockedDeploying
	PeerBlockedMember
	PeerBlockedUndeploying
)

func (a PeerAvailability) String() string {
	switch a {
	case PeerAvailable:
		return "Available"
	case PeerBlockedDeploying:
		return "Blocked(Deploying)"
	case PeerBlockedMember:
		return "Blocked(Member)"
	case PeerBlockedUndeploying:
		return "Blocked(Undeploying)"
	default:
		return "Unknown"
	}
}

// PeerState is the derived Down | Up(Available|Blocked(...)) state of a peer
// (spec §3).
type PeerState struct {
	Up           bool
	Availability PeerAvailability
}

func PeerDown() PeerState { return PeerState{} }

func PeerUp(availability PeerAvailability) PeerState {
	return PeerState{Up: true, Availability: availability}
}

func (s PeerState) String() string {
	if !s.Up {
		return "Down"
	}
	return "Up(" + s.Availability.String() + ")"
}
