// Package selfgroup encodes the small metadata record a VPN collaborator
// attaches to a peer's own group membership. It mirrors the
// Marshal/Unmarshal-via-gob pattern the teacher uses for its gossip
// membership records (criticalstack/e2d's pkg/manager/gossip.go Member
// type), repurposed from cluster-membership gossip (CARL is a star
// topology, not a mesh) to carrying the handful of fields the VPN
// overlay needs about a single peer.
package selfgroup

import (
	"bytes"
	"encoding/gob"

	"github.com/opendut/carl/pkg/types"
)

// Record is the self-group membership record for one peer: its identity,
// its declared name, and the network interfaces the VPN overlay needs to
// know about when building its own routing/ACL state.
type Record struct {
	PeerId     types.PeerId
	PeerName   types.PeerName
	Interfaces []types.NetworkInterfaceDescriptor
}

// Marshal gob-encodes the record for handoff to the VPN collaborator.
func (r *Record) Marshal() ([]byte, error) {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(*r); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal decodes a record previously produced by Marshal.
func (r *Record) Unmarshal(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(r)
}

// NewRecord builds the self-group record for descriptor. The Peer Manager
// does not pass it to the VPN collaborator: CreateSelfGroup receives only
// the peer id.
func NewRecord(descriptor types.PeerDescriptor) *Record {
	return &Record{
		PeerId:     descriptor.Id,
		PeerName:   descriptor.Name,
		Interfaces: descriptor.Network.Interfaces,
	}
}
