package types

import "github.com/pkg/errors"

// DeviceName is a validated display name for a device.
type DeviceName string

func NewDeviceName(value string) (DeviceName, error) {
	if err := validateName("DeviceName", value); err != nil {
		return "", err
	}
	return DeviceName(value), nil
}

// DeviceDescriptor binds a device to exactly one of the peer's network
// interfaces.
type DeviceDescriptor struct {
	Id          DeviceId
	Name        DeviceName
	Description string
	Interface   NetworkInterfaceId
	Tags        []string
}

// Topology is the ordered sequence of devices a peer exposes.
type Topology struct {
	Devices []DeviceDescriptor
}

// ErrInterfaceNotFound is returned by PeerDescriptor.Validate when a device
// references an interface id not present in the peer's network descriptor.
var ErrInterfaceNotFound = errors.New("device references unknown network interface")
