package broker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/opendut/carl/pkg/resource"
	"github.com/opendut/carl/pkg/resource/persistence"
	"github.com/opendut/carl/pkg/types"
)

func newTestBroker(t *testing.T, timeout time.Duration) (*PeerMessagingBroker, types.PeerId) {
	t.Helper()
	rm := resource.NewResourceManager(persistence.Noop{})
	return New(rm, Options{PeerDisconnectTimeout: timeout}), types.NewPeerId()
}

func TestOpen_SendsInitialConfigurationAndMarksOnline(t *testing.T) {
	b, peerId := newTestBroker(t, 200*time.Millisecond)
	remoteHost := net.ParseIP("1.2.3.4")

	_, downstream, err := b.Open(context.Background(), peerId, remoteHost)
	if err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-downstream:
		if msg.Message.ApplyPeerConfiguration == nil {
			t.Errorf("expected initial message to be ApplyPeerConfiguration, got %+v", msg.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial configuration")
	}

	err = b.resourceManager.Resources(func(r *resource.Resources) error {
		state, ok := resource.Get[types.PeerConnectionState](r, peerId)
		if !ok {
			t.Errorf("expected PeerConnectionState to exist for peer <%s>", peerId)
		}
		if !state.Online {
			t.Errorf("expected PeerConnectionState to be Online")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestOpen_RejectsSecondConnectionForSamePeer(t *testing.T) {
	b, peerId := newTestBroker(t, 200*time.Millisecond)
	remoteHost := net.ParseIP("1.2.3.4")

	if _, _, err := b.Open(context.Background(), peerId, remoteHost); err != nil {
		t.Fatal(err)
	}

	_, _, err := b.Open(context.Background(), peerId, remoteHost)
	if _, ok := err.(PeerAlreadyConnectedError); !ok {
		t.Errorf("expected PeerAlreadyConnectedError, got %T: %v", err, err)
	}
}

func TestPeerMarkedOfflineAfterDisconnectTimeout(t *testing.T) {
	b, peerId := newTestBroker(t, 50*time.Millisecond)
	remoteHost := net.ParseIP("1.2.3.4")

	upstream, downstream, err := b.Open(context.Background(), peerId, remoteHost)
	if err != nil {
		t.Fatal(err)
	}
	<-downstream // drain initial ApplyPeerConfiguration

	_ = upstream // no pings sent, so the peer must time out

	deadline := time.After(time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("peer was never marked offline after the disconnect timeout")
		default:
		}

		var offline bool
		err := b.resourceManager.Resources(func(r *resource.Resources) error {
			state, _ := resource.Get[types.PeerConnectionState](r, peerId)
			offline = !state.Online
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if offline {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPing_RespondsWithPong(t *testing.T) {
	b, peerId := newTestBroker(t, time.Second)
	upstream, downstream, err := b.Open(context.Background(), peerId, net.ParseIP("1.2.3.4"))
	if err != nil {
		t.Fatal(err)
	}
	<-downstream // drain initial ApplyPeerConfiguration

	upstream <- Upstream{Ping: &Ping{}}

	select {
	case msg := <-downstream:
		if msg.Message.Pong == nil {
			t.Errorf("expected Pong in response to Ping, got %+v", msg.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pong")
	}
}
