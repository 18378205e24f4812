// Package peermanager implements the Peer Manager (spec §4.4): peer
// descriptor lifecycle, VPN self-group provisioning, and setup-key
// generation for newly registered peers. Like the Cluster Manager, it holds
// no state of its own beyond its collaborators - everything it reads or
// writes lives in the Resource Manager.
package peermanager

import (
	"context"
	"net"

	"github.com/opendut/carl/pkg/oidc"
	"github.com/opendut/carl/pkg/pki"
	"github.com/opendut/carl/pkg/resource"
	"github.com/opendut/carl/pkg/types"
	"github.com/opendut/carl/pkg/vpn"
)

// PeerManager coordinates peer descriptor storage with the narrow VPN and
// OIDC collaborators, both wired in at construction the same way the
// Cluster Manager holds its own vpn.Collaborator.
type PeerManager struct {
	resourceManager *resource.ResourceManager
	vpn             vpn.Collaborator
	oidc            oidc.Registrar
}

func New(resourceManager *resource.ResourceManager, collaborator vpn.Collaborator, registrar oidc.Registrar) *PeerManager {
	return &PeerManager{
		resourceManager: resourceManager,
		vpn:             collaborator,
		oidc:            registrar,
	}
}

// StorePeerDescriptor validates that every device in descriptor is unique
// across the whole store, upserts the descriptor, provisions a VPN
// self-group if none is recorded for this peer yet, and requests an OIDC
// setup key on every call (spec §4.4 store_peer_descriptor).
func (m *PeerManager) StorePeerDescriptor(ctx context.Context, descriptor types.PeerDescriptor) error {
	if err := descriptor.Validate(); err != nil {
		return err
	}

	var needsSelfGroup bool
	err := m.resourceManager.ResourcesMut(func(r *resource.ResourcesMut) error {
		for _, other := range resource.ListMut[types.PeerDescriptor](r) {
			if other.Id == descriptor.Id {
				continue
			}
			for _, device := range descriptor.Topology.Devices {
				for _, otherDevice := range other.Topology.Devices {
					if device.Id == otherDevice.Id {
						return DeviceAlreadyExistsError{DeviceId: device.Id, PeerId: descriptor.Id, OwnerId: other.Id}
					}
				}
			}
		}

		resource.Insert(r, descriptor.Id, descriptor)

		_, hasVpnAddress := resource.GetMut[types.PeerVpnAddress](r, descriptor.Id)
		needsSelfGroup = !hasVpnAddress
		return nil
	})
	if err != nil {
		return err
	}

	if needsSelfGroup {
		address, err := m.vpn.CreateSelfGroup(ctx, descriptor.Id)
		if err != nil {
			return InternalError{Cause: err}
		}
		err = m.resourceManager.ResourcesMut(func(r *resource.ResourcesMut) error {
			resource.Insert(r, descriptor.Id, types.PeerVpnAddress{Address: address})
			return nil
		})
		if err != nil {
			return InternalError{Cause: err}
		}
	}

	if _, err := m.oidc.IssueSetupKey(ctx, descriptor.Id); err != nil {
		return InternalError{Cause: err}
	}
	return nil
}

// DeletePeerDescriptor removes peerId's descriptor, VPN self-group and OIDC
// registration, failing ClusterDeploymentExistsError if a deployed cluster
// still depends on one of its devices (spec §4.4 delete_peer_descriptor).
func (m *PeerManager) DeletePeerDescriptor(ctx context.Context, peerId types.PeerId) error {
	var existed bool
	err := m.resourceManager.ResourcesMut(func(r *resource.ResourcesMut) error {
		descriptor, ok := resource.GetMut[types.PeerDescriptor](r, peerId)
		existed = ok
		if !ok {
			return nil
		}

		deviceIds := make(map[types.DeviceId]struct{}, len(descriptor.Topology.Devices))
		for _, device := range descriptor.Topology.Devices {
			deviceIds[device.Id] = struct{}{}
		}

		for clusterUUID := range resource.ListMut[types.ClusterDeployment](r) {
			cfg, ok := resource.ListMut[types.ClusterConfiguration](r)[clusterUUID]
			if !ok {
				continue
			}
			for deviceId := range cfg.Devices {
				if _, owned := deviceIds[deviceId]; owned {
					return ClusterDeploymentExistsError{ClusterId: cfg.Id}
				}
			}
		}

		resource.Remove[types.PeerDescriptor](r, peerId)
		resource.Remove[types.PeerVpnAddress](r, peerId)
		return nil
	})
	if err != nil {
		return err
	}
	if !existed {
		return PeerNotFoundError{PeerId: peerId}
	}

	if err := m.vpn.DeleteSelfGroup(ctx, peerId); err != nil {
		return InternalError{Cause: err}
	}
	if err := m.oidc.Revoke(ctx, peerId); err != nil {
		return InternalError{Cause: err}
	}
	return nil
}

// PeerSetup is the bundle a peer needs to perform its first connection to
// CARL: who it is, where to reach CARL, the CA it should trust, the VPN
// address its self-group was assigned, and the OIDC credential to present
// (spec §4.4 generate_peer_setup).
type PeerSetup struct {
	PeerId     types.PeerId
	CarlUrl    string
	Ca         []byte
	VpnAddress net.IP
	Oidc       oidc.SetupKey
}

// GeneratePeerSetup assembles a PeerSetup for peerId by reading its current
// descriptor and VPN address from the store and minting a fresh OIDC setup
// key; it performs no writes of its own (spec §4.4: "pure read-and-
// assemble").
func (m *PeerManager) GeneratePeerSetup(ctx context.Context, peerId types.PeerId, carlUrl string, ca *pki.RootCA) (PeerSetup, error) {
	var vpnAddress types.PeerVpnAddress
	err := m.resourceManager.Resources(func(r *resource.Resources) error {
		if _, ok := resource.Get[types.PeerDescriptor](r, peerId); !ok {
			return PeerNotFoundError{PeerId: peerId}
		}
		vpnAddress, _ = resource.Get[types.PeerVpnAddress](r, peerId)
		return nil
	})
	if err != nil {
		return PeerSetup{}, err
	}

	setupKey, err := m.oidc.IssueSetupKey(ctx, peerId)
	if err != nil {
		return PeerSetup{}, InternalError{Cause: err}
	}

	return PeerSetup{
		PeerId:     peerId,
		CarlUrl:    carlUrl,
		Ca:         ca.CACertPEM(),
		VpnAddress: vpnAddress.Address,
		Oidc:       setupKey,
	}, nil
}
