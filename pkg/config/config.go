// Package config loads CARL's runtime configuration from a hierarchical
// key/value source (file, environment, flags) via viper, the way the
// teacher's cmd/e2d/app/root.go binds its persistent flags into viper
// before handing a typed Config to the manager.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/opendut/carl/pkg/log"
	"github.com/opendut/carl/pkg/types"
	utilnet "github.com/opendut/carl/pkg/util/net"
)

// Config is CARL's fully resolved runtime configuration: every field here
// corresponds to a flag (and viper key of the same name) registered by
// BindFlags.
type Config struct {
	// ListenAddr is the address the peer messaging broker's stream and the
	// RPC surface listen on.
	ListenAddr string

	// CarlUrl is the address PeerSetup bundles hand to a newly registered
	// peer so it knows where to dial back. It is ListenAddr prefixed with
	// "https://", except that an unspecified host (e.g. "0.0.0.0") is
	// resolved to the host's own routable IPv4 address the same way the
	// teacher's node bootstrapping detects its own advertise address.
	CarlUrl string

	// CaCertPath/CaKeyPath locate CARL's own CA, used both for the broker's
	// mutual-TLS stream and for the CA PEM embedded in PeerSetup.
	CaCertPath string
	CaKeyPath  string

	// SnapshotPath, if non-empty, enables the bbolt-backed persistence
	// snapshotter at this path; left empty, the Resource Manager runs
	// purely in-memory (persistence.Noop).
	SnapshotPath string

	// SnapshotEncryptionKeyPath, if non-empty, wraps the snapshotter with
	// NaCl secretbox encryption using the 32-byte key at this path.
	SnapshotEncryptionKeyPath string

	// SnapshotCompress wraps the snapshotter with gzip compression.
	SnapshotCompress bool

	// PeerDisconnectTimeout is how long the broker tolerates silence from a
	// peer stream before marking it offline.
	PeerDisconnectTimeout time.Duration

	// CanServerPortRangeStart/End bound the Cluster Manager's CAN server
	// port allocator.
	CanServerPortRangeStart types.Port
	CanServerPortRangeEnd   types.Port

	// BridgeNameDefault is the Ethernet bridge name used for peers that
	// declare none of their own.
	BridgeNameDefault types.NetworkInterfaceName

	// VpnEnabled toggles whether a real VPN collaborator is wired in, or
	// vpn.Disabled is used instead.
	VpnEnabled bool
	VpnBaseUrl string

	// OidcEnabled toggles whether setup keys are issued via a real OIDC
	// provider, or oidc.Disabled is used instead.
	OidcEnabled    bool
	OidcTokenUrl   string
	OidcClientId   string
	OidcClientSecret string
}

// BindFlags registers the persistent flags run accepts and binds them into
// v, mirroring the teacher's RootCmd.PersistentFlags()/viper.BindPFlags
// pairing.
func BindFlags(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("listen-addr", "0.0.0.0:8080", "address the broker stream and RPC surface listen on")
	flags.String("ca-cert", "carl-ca.pem", "path to CARL's CA certificate")
	flags.String("ca-key", "carl-ca-key.pem", "path to CARL's CA private key")
	flags.String("snapshot-path", "", "path to a bbolt snapshot file (empty disables persistence)")
	flags.String("snapshot-encryption-key", "", "path to a 32-byte snapshot encryption key (empty disables encryption)")
	flags.Bool("snapshot-compress", false, "gzip-compress snapshots before they reach the snapshot backend")
	flags.Duration("peer-disconnect-timeout", 30*time.Second, "how long a silent peer stream is tolerated before being marked offline")
	flags.Uint16("can-server-port-range-start", 20000, "first port in the CAN server port allocation range")
	flags.Uint16("can-server-port-range-end", 21000, "first port past the CAN server port allocation range")
	flags.String("bridge-name-default", "br-opendut", "Ethernet bridge name used when a peer declares none of its own")
	flags.Bool("vpn-enabled", false, "enable the VPN collaborator instead of running without an overlay")
	flags.String("vpn-base-url", "", "base URL of the VPN overlay controller")
	flags.Bool("oidc-enabled", false, "enable OIDC setup-key issuance instead of running without an identity provider")
	flags.String("oidc-token-url", "", "OIDC token endpoint used to mint peer setup keys")
	flags.String("oidc-client-id", "", "OIDC client id used for the client-credentials grant")
	flags.String("oidc-client-secret", "", "OIDC client secret used for the client-credentials grant")

	v.BindPFlags(flags)
}

// Load resolves a Config from v, which must already have had a config file
// set (viper.SetConfigFile) and/or flags bound (BindFlags) as the caller
// requires; CARL_-prefixed environment variables take precedence over the
// config file and flag defaults (a flag set explicitly on the command line
// still wins), matching the teacher's convention of environment overriding
// file config.
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("carl")
	v.AutomaticEnv()

	bridgeName, err := types.NewNetworkInterfaceName(v.GetString("bridge-name-default"))
	if err != nil {
		return nil, err
	}

	listenAddr := v.GetString("listen-addr")
	carlUrl := resolveCarlUrl(listenAddr)

	return &Config{
		ListenAddr:                listenAddr,
		CarlUrl:                   carlUrl,
		CaCertPath:                v.GetString("ca-cert"),
		CaKeyPath:                 v.GetString("ca-key"),
		SnapshotPath:              v.GetString("snapshot-path"),
		SnapshotEncryptionKeyPath: v.GetString("snapshot-encryption-key"),
		SnapshotCompress:          v.GetBool("snapshot-compress"),
		PeerDisconnectTimeout:     v.GetDuration("peer-disconnect-timeout"),
		CanServerPortRangeStart:   types.Port(v.GetUint16("can-server-port-range-start")),
		CanServerPortRangeEnd:     types.Port(v.GetUint16("can-server-port-range-end")),
		BridgeNameDefault:         bridgeName,
		VpnEnabled:                v.GetBool("vpn-enabled"),
		VpnBaseUrl:                v.GetString("vpn-base-url"),
		OidcEnabled:               v.GetBool("oidc-enabled"),
		OidcTokenUrl:              v.GetString("oidc-token-url"),
		OidcClientId:              v.GetString("oidc-client-id"),
		OidcClientSecret:          v.GetString("oidc-client-secret"),
	}, nil
}

// resolveCarlUrl turns a listen address into the URL peers should dial back.
// A host left unspecified (empty, "0.0.0.0", "::") is replaced with the
// host's own routable IPv4 address where one can be detected; failing that,
// the unspecified host is kept as-is and it is up to the operator to set
// listen-addr explicitly.
func resolveCarlUrl(listenAddr string) string {
	host, port, err := utilnet.SplitHostPort(listenAddr)
	if err != nil {
		return listenAddr
	}
	if host == "" || net.ParseIP(host).IsUnspecified() {
		if detected, err := utilnet.DetectHostIPv4(); err != nil {
			log.Warnf("could not detect a routable IPv4 address, advertising %q to peers as-is: %v", listenAddr, err)
		} else {
			host = detected
		}
	}
	return fmt.Sprintf("https://%s", (&utilnet.Address{Host: host, Port: port}).String())
}
