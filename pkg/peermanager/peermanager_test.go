package peermanager

import (
	"context"
	"net"
	"testing"

	"github.com/opendut/carl/pkg/oidc"
	"github.com/opendut/carl/pkg/pki"
	"github.com/opendut/carl/pkg/resource"
	"github.com/opendut/carl/pkg/resource/persistence"
	"github.com/opendut/carl/pkg/types"
	"github.com/opendut/carl/pkg/vpn"
)

func testRootCA(t *testing.T) (*pki.RootCA, error) {
	t.Helper()
	return pki.NewDefaultRootCA()
}

// countingVpn counts CreateSelfGroup invocations so tests can assert
// idempotency of self-group provisioning across repeated stores.
type countingVpn struct {
	vpn.Disabled
	selfGroupCalls int
}

func (c *countingVpn) CreateSelfGroup(ctx context.Context, peerId types.PeerId) (net.IP, error) {
	c.selfGroupCalls++
	return net.ParseIP("10.10.0.1"), nil
}

func mustInterfaceName(t *testing.T, name string) types.NetworkInterfaceName {
	t.Helper()
	n, err := types.NewNetworkInterfaceName(name)
	if err != nil {
		t.Fatalf("NewNetworkInterfaceName(%q): %v", name, err)
	}
	return n
}

func mustDeviceName(t *testing.T, name string) types.DeviceName {
	t.Helper()
	n, err := types.NewDeviceName(name)
	if err != nil {
		t.Fatalf("NewDeviceName(%q): %v", name, err)
	}
	return n
}

func newDescriptorWithDevice(t *testing.T, peerId types.PeerId, deviceId types.DeviceId) types.PeerDescriptor {
	t.Helper()
	ifaceId := types.NewNetworkInterfaceId()
	return types.PeerDescriptor{
		Id:   peerId,
		Name: mustPeerName(t, "peer"),
		Network: types.PeerNetworkDescriptor{
			Interfaces: []types.NetworkInterfaceDescriptor{
				{Id: ifaceId, Name: mustInterfaceName(t, "eth0")},
			},
		},
		Topology: types.Topology{
			Devices: []types.DeviceDescriptor{
				{Id: deviceId, Name: mustDeviceName(t, "device"), Interface: ifaceId},
			},
		},
	}
}

func mustPeerName(t *testing.T, name string) types.PeerName {
	t.Helper()
	n, err := types.NewPeerName(name)
	if err != nil {
		t.Fatalf("NewPeerName(%q): %v", name, err)
	}
	return n
}

func TestStorePeerDescriptor_RejectsDeviceClaimedByAnotherPeer(t *testing.T) {
	rm := resource.NewResourceManager(persistence.Noop{})
	m := New(rm, vpn.Disabled{}, oidc.Disabled{})

	deviceId := types.NewDeviceId()
	first := newDescriptorWithDevice(t, types.NewPeerId(), deviceId)
	if err := m.StorePeerDescriptor(context.Background(), first); err != nil {
		t.Fatalf("storing first peer: %v", err)
	}

	second := newDescriptorWithDevice(t, types.NewPeerId(), deviceId)
	err := m.StorePeerDescriptor(context.Background(), second)
	if _, ok := err.(DeviceAlreadyExistsError); !ok {
		t.Fatalf("expected DeviceAlreadyExistsError, got %v", err)
	}
}

func TestStorePeerDescriptor_ReStoringSamePeerIsNotARejection(t *testing.T) {
	rm := resource.NewResourceManager(persistence.Noop{})
	m := New(rm, vpn.Disabled{}, oidc.Disabled{})

	peerId := types.NewPeerId()
	descriptor := newDescriptorWithDevice(t, peerId, types.NewDeviceId())
	if err := m.StorePeerDescriptor(context.Background(), descriptor); err != nil {
		t.Fatalf("first store: %v", err)
	}
	if err := m.StorePeerDescriptor(context.Background(), descriptor); err != nil {
		t.Fatalf("re-storing same peer should succeed, got: %v", err)
	}
}

func TestStorePeerDescriptor_CreatesSelfGroupOnlyOnce(t *testing.T) {
	rm := resource.NewResourceManager(persistence.Noop{})
	counting := &countingVpn{}
	m := New(rm, counting, oidc.Disabled{})

	descriptor := newDescriptorWithDevice(t, types.NewPeerId(), types.NewDeviceId())
	if err := m.StorePeerDescriptor(context.Background(), descriptor); err != nil {
		t.Fatalf("first store: %v", err)
	}
	if err := m.StorePeerDescriptor(context.Background(), descriptor); err != nil {
		t.Fatalf("second store: %v", err)
	}
	if counting.selfGroupCalls != 1 {
		t.Fatalf("expected exactly one CreateSelfGroup call, got %d", counting.selfGroupCalls)
	}
}

func TestDeletePeerDescriptor_NotFound(t *testing.T) {
	rm := resource.NewResourceManager(persistence.Noop{})
	m := New(rm, vpn.Disabled{}, oidc.Disabled{})

	err := m.DeletePeerDescriptor(context.Background(), types.NewPeerId())
	if _, ok := err.(PeerNotFoundError); !ok {
		t.Fatalf("expected PeerNotFoundError, got %v", err)
	}
}

func TestDeletePeerDescriptor_FailsWhenClusterDeploymentExists(t *testing.T) {
	rm := resource.NewResourceManager(persistence.Noop{})
	m := New(rm, vpn.Disabled{}, oidc.Disabled{})

	deviceId := types.NewDeviceId()
	descriptor := newDescriptorWithDevice(t, types.NewPeerId(), deviceId)
	if err := m.StorePeerDescriptor(context.Background(), descriptor); err != nil {
		t.Fatalf("storing peer: %v", err)
	}

	clusterId := types.NewClusterId()
	clusterName, err := types.NewClusterName("test-cluster")
	if err != nil {
		t.Fatalf("NewClusterName: %v", err)
	}
	err = rm.ResourcesMut(func(r *resource.ResourcesMut) error {
		resource.Insert(r, clusterId, types.ClusterConfiguration{
			Id:     clusterId,
			Name:   clusterName,
			Leader: descriptor.Id,
			Devices: map[types.DeviceId]struct{}{
				deviceId: {},
			},
		})
		resource.Insert(r, clusterId, types.ClusterDeployment{Id: clusterId})
		return nil
	})
	if err != nil {
		t.Fatalf("seeding deployment: %v", err)
	}

	err = m.DeletePeerDescriptor(context.Background(), descriptor.Id)
	deploymentErr, ok := err.(ClusterDeploymentExistsError)
	if !ok {
		t.Fatalf("expected ClusterDeploymentExistsError, got %v", err)
	}
	if deploymentErr.ClusterId != clusterId {
		t.Fatalf("expected cluster id <%s>, got <%s>", clusterId, deploymentErr.ClusterId)
	}
}

func TestGeneratePeerSetup_AssemblesBundle(t *testing.T) {
	rm := resource.NewResourceManager(persistence.Noop{})
	counting := &countingVpn{}
	m := New(rm, counting, oidc.Disabled{})

	descriptor := newDescriptorWithDevice(t, types.NewPeerId(), types.NewDeviceId())
	if err := m.StorePeerDescriptor(context.Background(), descriptor); err != nil {
		t.Fatalf("storing peer: %v", err)
	}

	ca, err := testRootCA(t)
	if err != nil {
		t.Fatalf("building test CA: %v", err)
	}

	setup, err := m.GeneratePeerSetup(context.Background(), descriptor.Id, "https://carl.example:1234", ca)
	if err != nil {
		t.Fatalf("GeneratePeerSetup: %v", err)
	}
	if setup.PeerId != descriptor.Id {
		t.Fatalf("expected peer id <%s>, got <%s>", descriptor.Id, setup.PeerId)
	}
	if setup.CarlUrl != "https://carl.example:1234" {
		t.Fatalf("unexpected carl url %q", setup.CarlUrl)
	}
	if len(setup.Ca) == 0 {
		t.Fatal("expected non-empty CA PEM")
	}
	if setup.VpnAddress == nil || !setup.VpnAddress.Equal(net.ParseIP("10.10.0.1")) {
		t.Fatalf("expected VPN address 10.10.0.1, got %v", setup.VpnAddress)
	}
}
