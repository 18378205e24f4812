package types

// PeerConfiguration is the target configuration a peer should converge to:
// a mapping from ParameterId to Parameter, partitioned by value type into
// parameter fields (spec §3).
type PeerConfiguration struct {
	DeviceInterfaces           []Parameter[DeviceInterfaceValue]
	EthernetBridges            []Parameter[EthernetBridgeValue]
	Executors                  []Parameter[ExecutorValue]
	GreInterfaces              []Parameter[GreInterfaceConfig]
	JoinedInterfaces           []Parameter[InterfaceJoinConfig]
	RemotePeerConnectionChecks []Parameter[RemotePeerConnectionCheck]
	CanConnections             []Parameter[CanConnection]
	CanBridges                 []Parameter[CanBridge]
	CanLocalRoutes             []Parameter[CanLocalRoute]
}

func (c *PeerConfiguration) SetDeviceInterface(value DeviceInterfaceValue, target ParameterTarget, dependsOn ...ParameterId) {
	c.DeviceInterfaces = setParameter(c.DeviceInterfaces, value, target, dependsOn...)
}

func (c *PeerConfiguration) SetEthernetBridge(value EthernetBridgeValue, target ParameterTarget, dependsOn ...ParameterId) {
	c.EthernetBridges = setParameter(c.EthernetBridges, value, target, dependsOn...)
}

func (c *PeerConfiguration) SetExecutor(value ExecutorValue, target ParameterTarget, dependsOn ...ParameterId) {
	c.Executors = setParameter(c.Executors, value, target, dependsOn...)
}

func (c *PeerConfiguration) SetGreInterface(value GreInterfaceConfig, target ParameterTarget, dependsOn ...ParameterId) {
	c.GreInterfaces = setParameter(c.GreInterfaces, value, target, dependsOn...)
}

func (c *PeerConfiguration) SetJoinedInterface(value InterfaceJoinConfig, target ParameterTarget, dependsOn ...ParameterId) {
	c.JoinedInterfaces = setParameter(c.JoinedInterfaces, value, target, dependsOn...)
}

// ParameterIds returns every ParameterId currently present in the
// configuration, across all fields, for checking parameter identity
// stability (spec §8, property 5).
func (c *PeerConfiguration) ParameterIds() map[ParameterId]struct{} {
	ids := make(map[ParameterId]struct{})
	for _, p := range c.DeviceInterfaces {
		ids[p.Id] = struct{}{}
	}
	for _, p := range c.EthernetBridges {
		ids[p.Id] = struct{}{}
	}
	for _, p := range c.Executors {
		ids[p.Id] = struct{}{}
	}
	for _, p := range c.GreInterfaces {
		ids[p.Id] = struct{}{}
	}
	for _, p := range c.JoinedInterfaces {
		ids[p.Id] = struct{}{}
	}
	for _, p := range c.RemotePeerConnectionChecks {
		ids[p.Id] = struct{}{}
	}
	for _, p := range c.CanConnections {
		ids[p.Id] = struct{}{}
	}
	for _, p := range c.CanBridges {
		ids[p.Id] = struct{}{}
	}
	for _, p := range c.CanLocalRoutes {
		ids[p.Id] = struct{}{}
	}
	return ids
}

// OldPeerConfiguration is a compatibility envelope holding only the current
// ClusterAssignment (spec §3). It is not persisted across CARL restarts.
type OldPeerConfiguration struct {
	ClusterAssignment *ClusterAssignment
}
