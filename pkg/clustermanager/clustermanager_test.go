package clustermanager

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/opendut/carl/pkg/broker"
	"github.com/opendut/carl/pkg/resource"
	"github.com/opendut/carl/pkg/resource/persistence"
	"github.com/opendut/carl/pkg/types"
	"github.com/opendut/carl/pkg/vpn"
)

func newTestManager(t *testing.T) (*ClusterManager, *resource.ResourceManager, *broker.PeerMessagingBroker) {
	t.Helper()
	rm := resource.NewResourceManager(persistence.Noop{})
	b := broker.New(rm, broker.Options{PeerDisconnectTimeout: time.Minute})
	m := New(rm, b, vpn.Disabled{}, Options{
		CanServerPortRangeStart: 20000,
		CanServerPortRangeEnd:   20010,
		BridgeNameDefault:       mustBridgeName(t, "br-opendut"),
	})
	return m, rm, b
}

func mustBridgeName(t *testing.T, name string) types.NetworkInterfaceName {
	t.Helper()
	n, err := types.NewNetworkInterfaceName(name)
	if err != nil {
		t.Fatalf("NewNetworkInterfaceName(%q): %v", name, err)
	}
	return n
}

func mustPeerName(t *testing.T, name string) types.PeerName {
	t.Helper()
	n, err := types.NewPeerName(name)
	if err != nil {
		t.Fatalf("NewPeerName(%q): %v", name, err)
	}
	return n
}

func newFixturePeer(t *testing.T) types.PeerDescriptor {
	t.Helper()
	return types.PeerDescriptor{
		Id:   types.NewPeerId(),
		Name: mustPeerName(t, "peer-under-test"),
		Network: types.PeerNetworkDescriptor{
			Interfaces: nil,
		},
		Topology:  types.Topology{},
		Executors: types.ExecutorDescriptors{},
	}
}

// TestAssignCluster_SendsApplyPeerConfigurationOnOpen mirrors the original
// should_update_peer_configuration test: opening a peer stream immediately
// receives its current configuration, and assigning the peer to a cluster
// and delivering the result (as RolloutCluster does after its transaction
// commits) pushes an updated one carrying the bridge parameter and the
// cluster assignment.
func TestAssignCluster_SendsApplyPeerConfigurationOnOpen(t *testing.T) {
	m, rm, b := newTestManager(t)
	peer := newFixturePeer(t)

	err := rm.ResourcesMut(func(r *resource.ResourcesMut) error {
		resource.Insert(r, peer.Id, peer)
		resource.Insert(r, peer.Id, types.OldPeerConfiguration{})
		resource.Insert(r, peer.Id, types.PeerConfiguration{})
		return nil
	})
	if err != nil {
		t.Fatalf("seeding peer: %v", err)
	}

	ctx := context.Background()
	_, downstream, err := b.Open(ctx, peer.Id, net.ParseIP("1.2.3.4"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	select {
	case msg := <-downstream:
		if msg.Message.ApplyPeerConfiguration == nil {
			t.Fatalf("expected initial ApplyPeerConfiguration, got %+v", msg.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial configuration")
	}

	assignment := types.ClusterAssignment{
		Id:     types.NewClusterId(),
		Leader: peer.Id,
		Assignments: map[types.PeerId]types.PeerClusterAssignment{
			peer.Id: {VpnAddress: net.ParseIP("1.2.3.4"), CanServerPort: 20000},
		},
	}

	var old types.OldPeerConfiguration
	var config types.PeerConfiguration
	err = rm.ResourcesMut(func(r *resource.ResourcesMut) error {
		var err error
		old, config, err = assignCluster(r, assignment, peer.Id, nil, m.options.BridgeNameDefault)
		return err
	})
	if err != nil {
		t.Fatalf("assignCluster: %v", err)
	}

	message := broker.DownstreamMessage{ApplyPeerConfiguration: &broker.ApplyPeerConfiguration{
		OldConfiguration: old,
		Configuration:    config,
	}}
	if err := b.SendToPeer(ctx, peer.Id, message); err != nil {
		t.Fatalf("SendToPeer: %v", err)
	}

	var gotOld types.OldPeerConfiguration
	err = rm.Resources(func(r *resource.Resources) error {
		gotOld, _ = resource.Get[types.OldPeerConfiguration](r, peer.Id)
		return nil
	})
	if err != nil {
		t.Fatalf("reading OldPeerConfiguration: %v", err)
	}
	if gotOld.ClusterAssignment == nil || gotOld.ClusterAssignment.Id != assignment.Id {
		t.Fatalf("expected stored ClusterAssignment <%s>, got %+v", assignment.Id, gotOld.ClusterAssignment)
	}

	select {
	case msg := <-downstream:
		apc := msg.Message.ApplyPeerConfiguration
		if apc == nil {
			t.Fatalf("expected ApplyPeerConfiguration after assignCluster, got %+v", msg.Message)
		}
		if apc.OldConfiguration.ClusterAssignment == nil || apc.OldConfiguration.ClusterAssignment.Id != assignment.Id {
			t.Fatalf("delivered OldConfiguration missing assignment <%s>", assignment.Id)
		}
		bridgeId := types.ParameterIdentifierOf(types.EthernetBridgeValue{Name: m.options.BridgeNameDefault})
		found := false
		for _, p := range apc.Configuration.EthernetBridges {
			if p.Id == bridgeId && p.Target == types.Present {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected bridge %s Present in delivered configuration, got %+v", m.options.BridgeNameDefault, apc.Configuration.EthernetBridges)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for updated configuration")
	}
}

func TestAllocateCanServerPorts_AdvancesAndWrapsWithoutReclaiming(t *testing.T) {
	m, _, _ := newTestManager(t)

	first, err := m.allocateCanServerPorts(types.NewClusterId(), 3)
	if err != nil {
		t.Fatalf("allocateCanServerPorts: %v", err)
	}
	want := []types.Port{20000, 20001, 20002}
	for i := range want {
		if first[i] != want[i] {
			t.Fatalf("allocation %d: want %v, got %v", i, want, first)
		}
	}

	second, err := m.allocateCanServerPorts(types.NewClusterId(), 3)
	if err != nil {
		t.Fatalf("allocateCanServerPorts: %v", err)
	}
	if second[0] != 20003 {
		t.Fatalf("expected second allocation to continue from 20003, got %v", second)
	}

	third, err := m.allocateCanServerPorts(types.NewClusterId(), 3)
	if err != nil {
		t.Fatalf("allocateCanServerPorts: %v", err)
	}
	if third[0] != 20006 {
		t.Fatalf("expected third allocation to continue from 20006, got %v", third)
	}

	// 20009+3 reaches the range end 20010, so the counter wraps to the start.
	fourth, err := m.allocateCanServerPorts(types.NewClusterId(), 3)
	if err != nil {
		t.Fatalf("allocateCanServerPorts: %v", err)
	}
	if fourth[0] != 20000 {
		t.Fatalf("expected fourth allocation to wrap to 20000, got %v", fourth)
	}
}

func TestAllocateCanServerPorts_FailsWhenRangeTooSmall(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.allocateCanServerPorts(types.NewClusterId(), 100)
	if _, ok := err.(DetermineCanServerPortError); !ok {
		t.Fatalf("expected DetermineCanServerPortError, got %v", err)
	}
}

func TestCheckClusterDeployable_ReportsUnavailablePeers(t *testing.T) {
	_, rm, _ := newTestManager(t)
	peer := newFixturePeer(t)
	clusterId := types.NewClusterId()
	cfg := types.ClusterConfiguration{Id: clusterId, Leader: peer.Id, Devices: map[types.DeviceId]struct{}{}}

	err := rm.ResourcesMut(func(r *resource.ResourcesMut) error {
		resource.Insert(r, peer.Id, peer)
		resource.Insert(r, clusterId, cfg)
		return nil
	})
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}

	var result DeployabilityResult
	err = rm.Resources(func(r *resource.Resources) error {
		result = CheckClusterDeployable(r, clusterId, cfg)
		return nil
	})
	if err != nil {
		t.Fatalf("Resources: %v", err)
	}
	if result.Status != NotAllPeersAvailable {
		t.Fatalf("expected NotAllPeersAvailable (leader never came online), got %v", result.Status)
	}
	if len(result.UnavailablePeers) != 1 || result.UnavailablePeers[0] != peer.Id {
		t.Fatalf("expected leader <%s> listed unavailable, got %v", peer.Id, result.UnavailablePeers)
	}
}
