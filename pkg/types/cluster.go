package types

import "net"

// ClusterConfiguration declares a set of devices to be interconnected over
// an overlay, with a designated leader (spec §3).
type ClusterConfiguration struct {
	Id      ClusterId
	Name    ClusterName
	Leader  PeerId
	Devices map[DeviceId]struct{}
}

// ClusterDeployment being present means "the operator wants this cluster
// rolled out" (spec §3). It carries no fields beyond the id it shares with
// its ClusterConfiguration.
type ClusterDeployment struct {
	Id ClusterId
}

// ClusterHealth is Healthy|Unhealthy, the health of a Deployed cluster.
type ClusterHealth int

const (
	ClusterHealthy ClusterHealth = iota
	ClusterUnhealthy
)

// ClusterPhase is the derived Undeployed|Deploying|Deployed phase (spec §3).
type ClusterPhase int

const (
	ClusterUndeployed ClusterPhase = iota
	ClusterDeploying
	ClusterDeployed
)

// ClusterState is the derived state of a cluster; Health is only meaningful
// when Phase == ClusterDeployed.
type ClusterState struct {
	Phase  ClusterPhase
	Health ClusterHealth
}

// PeerClusterAssignment is the per-member portion of a ClusterAssignment:
// the VPN address a peer should use, and the CAN server port allocated to
// it for this rollout.
type PeerClusterAssignment struct {
	VpnAddress    net.IP
	CanServerPort Port
}

// ClusterAssignment is the current cluster assignment communicated to
// member peers, wrapped by OldPeerConfiguration for backward-compatible
// delivery alongside the new PeerConfiguration.
type ClusterAssignment struct {
	Id          ClusterId
	Leader      PeerId
	Assignments map[PeerId]PeerClusterAssignment
}
