// Package types holds the domain model shared by every core component:
// peers, clusters, network interfaces, executors and the configuration
// parameters distributed to peers. Identities are UUIDs; names are validated
// strings.
package types

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// PeerId identifies a PeerDescriptor.
type PeerId uuid.UUID

func NewPeerId() PeerId       { return PeerId(uuid.New()) }
func (id PeerId) String() string { return uuid.UUID(id).String() }
func (id PeerId) UUID() uuid.UUID { return uuid.UUID(id) }

// ClusterId identifies a ClusterConfiguration/ClusterDeployment pair.
type ClusterId uuid.UUID

func NewClusterId() ClusterId        { return ClusterId(uuid.New()) }
func (id ClusterId) String() string  { return uuid.UUID(id).String() }
func (id ClusterId) UUID() uuid.UUID { return uuid.UUID(id) }

// DeviceId identifies a DeviceDescriptor within a peer's Topology.
type DeviceId uuid.UUID

func NewDeviceId() DeviceId         { return DeviceId(uuid.New()) }
func (id DeviceId) String() string  { return uuid.UUID(id).String() }
func (id DeviceId) UUID() uuid.UUID { return uuid.UUID(id) }

// NetworkInterfaceId identifies a NetworkInterfaceDescriptor.
type NetworkInterfaceId uuid.UUID

func NewNetworkInterfaceId() NetworkInterfaceId { return NetworkInterfaceId(uuid.New()) }
func (id NetworkInterfaceId) String() string     { return uuid.UUID(id).String() }
func (id NetworkInterfaceId) UUID() uuid.UUID    { return uuid.UUID(id) }

// ExecutorId identifies an ExecutorDescriptor.
type ExecutorId uuid.UUID

func NewExecutorId() ExecutorId       { return ExecutorId(uuid.New()) }
func (id ExecutorId) String() string  { return uuid.UUID(id).String() }
func (id ExecutorId) UUID() uuid.UUID { return uuid.UUID(id) }

// ParameterId identifies an individual Parameter within a PeerConfiguration.
// It is content-addressed (see parameter.go), never randomly generated.
type ParameterId uuid.UUID

func (id ParameterId) String() string  { return uuid.UUID(id).String() }
func (id ParameterId) UUID() uuid.UUID { return uuid.UUID(id) }

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_.\-]{1,64}$`)

func validateName(kind, value string) error {
	if !namePattern.MatchString(value) {
		return errors.Wrapf(ErrInvalidName, "%s: %#v", kind, value)
	}
	return nil
}

var ErrInvalidName = errors.New("invalid name")

// PeerName is a validated display name for a peer.
type PeerName string

func NewPeerName(value string) (PeerName, error) {
	if err := validateName("PeerName", value); err != nil {
		return "", err
	}
	return PeerName(value), nil
}

// ClusterName is a validated display name for a cluster.
type ClusterName string

func NewClusterName(value string) (ClusterName, error) {
	if err := validateName("ClusterName", value); err != nil {
		return "", err
	}
	return ClusterName(value), nil
}

// NetworkInterfaceName is a validated Linux-style interface name (e.g. "eth0",
// "br-opendut-1").
type NetworkInterfaceName string

var interfaceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.\-]{1,15}$`)

func NewNetworkInterfaceName(value string) (NetworkInterfaceName, error) {
	if !interfaceNamePattern.MatchString(value) {
		return "", errors.Wrapf(ErrInvalidName, "NetworkInterfaceName: %#v", value)
	}
	return NetworkInterfaceName(value), nil
}

func (n NetworkInterfaceName) String() string { return string(n) }

// Port is a TCP/UDP port number, used for CAN server port allocation.
type Port uint16

func (p Port) String() string { return fmt.Sprintf("%d", uint16(p)) }
