package resource

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/opendut/carl/pkg/resource/persistence"
	"github.com/opendut/carl/pkg/types"
)

func TestResourcesMut_InsertThenGet(t *testing.T) {
	m := NewResourceManager(persistence.Noop{})
	peerId := types.NewPeerId()
	name, err := types.NewPeerName("peer-a")
	if err != nil {
		t.Fatal(err)
	}
	descriptor := types.PeerDescriptor{Id: peerId, Name: name}

	err = m.ResourcesMut(func(r *ResourcesMut) error {
		Insert(r, peerId, descriptor)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = m.Resources(func(r *Resources) error {
		got, ok := Get[types.PeerDescriptor](r, peerId)
		if !ok {
			t.Fatal("expected PeerDescriptor to exist")
		}
		if diff := cmp.Diff(descriptor, got); diff != "" {
			t.Errorf("PeerDescriptor: after round-trip differs: (-want +got)\n%s", diff)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestResourcesMut_ErrorDiscardsAllChanges(t *testing.T) {
	m := NewResourceManager(persistence.Noop{})
	peerId := types.NewPeerId()
	name, _ := types.NewPeerName("peer-b")

	sentinel := errors.New("boom")
	err := m.ResourcesMut(func(r *ResourcesMut) error {
		Insert(r, peerId, types.PeerDescriptor{Id: peerId, Name: name})
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	err = m.Resources(func(r *Resources) error {
		if _, ok := Get[types.PeerDescriptor](r, peerId); ok {
			t.Error("expected insert to have been rolled back")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRemove_IsNoopWhenAbsent(t *testing.T) {
	m := NewResourceManager(persistence.Noop{})
	peerId := types.NewPeerId()

	err := m.ResourcesMut(func(r *ResourcesMut) error {
		_, existed := Remove[types.PeerDescriptor](r, peerId)
		if existed {
			t.Error("expected Remove on absent resource to report existed=false")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSubscribe_ReceivesInsertedAndRemovedEvents(t *testing.T) {
	m := NewResourceManager(persistence.Noop{})
	peerId := types.NewPeerId()
	name, _ := types.NewPeerName("peer-c")

	events := make(chan Event[types.PeerDescriptor], 4)
	unsubscribe := Subscribe(m.Bus(), func(ev Event[types.PeerDescriptor]) {
		events <- ev
	})
	defer unsubscribe()

	descriptor := types.PeerDescriptor{Id: peerId, Name: name}
	if err := m.ResourcesMut(func(r *ResourcesMut) error {
		Insert(r, peerId, descriptor)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	ev := <-events
	if ev.Kind != Inserted {
		t.Errorf("expected Inserted event, got %s", ev.Kind)
	}
	if ev.New == nil || ev.New.Id != peerId {
		t.Errorf("expected event New to carry the inserted descriptor")
	}

	if err := m.ResourcesMut(func(r *ResourcesMut) error {
		Remove[types.PeerDescriptor](r, peerId)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	ev = <-events
	if ev.Kind != Removed {
		t.Errorf("expected Removed event, got %s", ev.Kind)
	}
}
