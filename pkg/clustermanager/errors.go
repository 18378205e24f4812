package clustermanager

import (
	"fmt"

	"github.com/opendut/carl/pkg/types"
)

// IllegalPeerStateError is returned by StoreClusterDeployment when one or
// more cluster members are not available for deployment.
type IllegalPeerStateError struct {
	ClusterId     types.ClusterId
	InvalidPeers  []types.PeerId
}

func (e IllegalPeerStateError) Error() string {
	return fmt.Sprintf("cluster <%s> has peers in an illegal state for deployment: %v", e.ClusterId, e.InvalidPeers)
}

// ClusterDescriptorNotFoundError is returned by RolloutCluster when the
// cluster's ClusterConfiguration no longer exists.
type ClusterDescriptorNotFoundError struct {
	ClusterId types.ClusterId
}

func (e ClusterDescriptorNotFoundError) Error() string {
	return fmt.Sprintf("cluster configuration for <%s> not found", e.ClusterId)
}

// PeerForDeviceNotFoundError is returned by RolloutCluster when a clustered
// device cannot be attributed to exactly one known peer.
type PeerForDeviceNotFoundError struct {
	ClusterId types.ClusterId
	DeviceId  types.DeviceId
}

func (e PeerForDeviceNotFoundError) Error() string {
	return fmt.Sprintf("no peer found owning device <%s> of cluster <%s>", e.DeviceId, e.ClusterId)
}

// DetermineCanServerPortError is returned when the configured port range is
// too small to satisfy a rollout's port requirement.
type DetermineCanServerPortError struct {
	ClusterId       types.ClusterId
	RequestedPorts  int
}

func (e DetermineCanServerPortError) Error() string {
	return fmt.Sprintf("cannot allocate %d CAN server ports for cluster <%s>: configured range is too small", e.RequestedPorts, e.ClusterId)
}

// Ipv6NotSupportedError is returned by assignCluster when a member's VPN
// address is IPv6 (spec §4.3.3: GRE tunnels are IPv4 only).
type Ipv6NotSupportedError struct {
	PeerId types.PeerId
}

func (e Ipv6NotSupportedError) Error() string {
	return fmt.Sprintf("peer <%s> has an IPv6 VPN address, which GRE tunnel configuration does not support", e.PeerId)
}

// PeerNotFoundError is returned by assignCluster when the target peer has
// no PeerDescriptor in the store at send time.
type PeerNotFoundError struct {
	PeerId types.PeerId
}

func (e PeerNotFoundError) Error() string {
	return fmt.Sprintf("peer <%s> not found", e.PeerId)
}

// SendingToPeerFailedError wraps a broker rejection while delivering a
// computed PeerConfiguration.
type SendingToPeerFailedError struct {
	PeerId types.PeerId
	Cause  error
}

func (e SendingToPeerFailedError) Error() string {
	return fmt.Sprintf("failed to send configuration to peer <%s>: %v", e.PeerId, e.Cause)
}

func (e SendingToPeerFailedError) Unwrap() error {
	return e.Cause
}

// InternalError wraps an invariant violation that should be impossible in
// practice (spec §9's decision to preserve a free-form Internal{cause}
// variant rather than enumerate every unreachable branch).
type InternalError struct {
	Cause string
}

func (e InternalError) Error() string {
	return fmt.Sprintf("internal error: %s", e.Cause)
}
