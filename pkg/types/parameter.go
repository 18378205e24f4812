package types

import (
	"bytes"
	"encoding/gob"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// parameterNamespace anchors the content-addressed uuid.NewSHA1 derivation
// used for ParameterId, so that two processes computing the same logical
// parameter always agree on its id.
var parameterNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// parameterIdentifierOf derives a stable ParameterId from the logical
// content of a parameter value: re-computing it for unchanged input always
// yields the same id, so recomputing a target PeerConfiguration does not
// churn the peer (spec §9).
func parameterIdentifierOf[V any](value V) ParameterId {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		panic(errors.Wrap(err, "cannot derive parameter id: value is not gob-encodable"))
	}
	return ParameterId(uuid.NewSHA1(parameterNamespace, buf.Bytes()))
}

// ParameterIdentifierOf exposes parameterIdentifierOf to callers outside
// this package that need to compare a candidate value's id against a
// Parameter already in a PeerConfiguration field, without going through
// SetXxx (e.g. the Cluster Manager's Absent-filtering passes).
func ParameterIdentifierOf[V any](value V) ParameterId {
	return parameterIdentifierOf(value)
}

// ParameterTarget is Present|Absent: whether the peer should have this
// parameter applied, or should tear it down.
type ParameterTarget int

const (
	Present ParameterTarget = iota
	Absent
)

func (t ParameterTarget) String() string {
	if t == Present {
		return "Present"
	}
	return "Absent"
}

// Parameter is an atomic, individually reconcilable unit of desired peer
// configuration (spec §3/§9).
type Parameter[V any] struct {
	Id        ParameterId
	DependsOn []ParameterId
	Target    ParameterTarget
	Value     V
}

// setParameter upserts value into list by content-derived id: an existing
// entry with the same id has its target and value refreshed in place (its
// dependencies are left unchanged), a new value is appended carrying
// dependsOn. The Cluster Manager's computePeerConfiguration passes no
// dependencies, so a Present parameter that replaces one it marks Absent
// carries no dependency on it.
func setParameter[V any](list []Parameter[V], value V, target ParameterTarget, dependsOn ...ParameterId) []Parameter[V] {
	id := parameterIdentifierOf(value)
	for i := range list {
		if list[i].Id == id {
			list[i].Target = target
			list[i].Value = value
			return list
		}
	}
	return append(list, Parameter[V]{
		Id:        id,
		DependsOn: dependsOn,
		Target:    target,
		Value:     value,
	})
}

// --- Parameter value types, one per PeerConfiguration field (spec §3) ---

type DeviceInterfaceValue struct {
	Descriptor NetworkInterfaceDescriptor
}

type EthernetBridgeValue struct {
	Name NetworkInterfaceName
}

type ExecutorValue struct {
	Descriptor ExecutorDescriptor
}

// GreInterfaceConfig describes one leg of a GRE tunnel between this peer and
// another cluster member (spec §4.3.3). IPv6 is rejected upstream of this
// type (clustermanager.Ipv6NotSupportedError), so LocalIp/RemoteIp are
// always 4-byte IPs.
type GreInterfaceConfig struct {
	LocalIp  [4]byte
	RemoteIp [4]byte
}

// InterfaceName derives the deterministic, content-addressed Linux
// interface name for this GRE tunnel leg, e.g. "gre-1a2b3c4d".
func (c GreInterfaceConfig) InterfaceName() (NetworkInterfaceName, error) {
	id := parameterIdentifierOf(c)
	hex := strings.ReplaceAll(id.String(), "-", "")
	return NewNetworkInterfaceName("gre-" + hex[:8])
}

type InterfaceJoinConfig struct {
	Name   NetworkInterfaceName
	Bridge NetworkInterfaceName
}

// RemotePeerConnectionCheck, CanConnection, CanBridge and CanLocalRoute are
// reserved parameter kinds for peer-side CAN routing and connectivity
// checks. Their reconciliation algorithm lives on the peer-side executor
// runtime, which is out of scope (spec §1); CARL only needs to carry these
// fields through PeerConfiguration so the wire shape is complete.
type RemotePeerConnectionCheck struct {
	Peer PeerId
}

type CanConnection struct {
	ServerPort Port
}

type CanBridge struct {
	Name NetworkInterfaceName
}

type CanLocalRoute struct {
	Interface NetworkInterfaceName
}
