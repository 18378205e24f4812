package peermanager

import (
	"fmt"

	"github.com/opendut/carl/pkg/types"
)

// DeviceAlreadyExistsError is returned by StorePeerDescriptor when a device
// id in the candidate descriptor is already claimed by a different peer
// (spec §4.4, property S5).
type DeviceAlreadyExistsError struct {
	DeviceId types.DeviceId
	PeerId   types.PeerId
	OwnerId  types.PeerId
}

func (e DeviceAlreadyExistsError) Error() string {
	return fmt.Sprintf("device <%s> declared by peer <%s> already belongs to peer <%s>", e.DeviceId, e.PeerId, e.OwnerId)
}

// PeerNotFoundError is returned by DeletePeerDescriptor/GeneratePeerSetup
// when no descriptor exists for the given peer.
type PeerNotFoundError struct {
	PeerId types.PeerId
}

func (e PeerNotFoundError) Error() string {
	return fmt.Sprintf("peer <%s> not found", e.PeerId)
}

// ClusterDeploymentExistsError is returned by DeletePeerDescriptor when a
// deployed cluster still depends on one of the peer's devices.
type ClusterDeploymentExistsError struct {
	ClusterId types.ClusterId
}

func (e ClusterDeploymentExistsError) Error() string {
	return fmt.Sprintf("cannot delete peer: cluster <%s> is still deployed using one of its devices", e.ClusterId)
}

// InternalError wraps a collaborator failure (VPN or OIDC) that is not a
// usage error: the request was well-formed but an external dependency
// failed (spec §7's "Internal" error class).
type InternalError struct {
	Cause error
}

func (e InternalError) Error() string {
	return fmt.Sprintf("internal error: %v", e.Cause)
}

func (e InternalError) Unwrap() error {
	return e.Cause
}
