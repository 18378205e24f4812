package app

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opendut/carl/pkg/broker"
	"github.com/opendut/carl/pkg/clustermanager"
	carlconfig "github.com/opendut/carl/pkg/config"
	"github.com/opendut/carl/pkg/log"
	"github.com/opendut/carl/pkg/oidc"
	"github.com/opendut/carl/pkg/peermanager"
	"github.com/opendut/carl/pkg/pki"
	"github.com/opendut/carl/pkg/resource"
	"github.com/opendut/carl/pkg/resource/persistence"
	"github.com/opendut/carl/pkg/types"
	"github.com/opendut/carl/pkg/vpn"
)

func newRunCmd() *cobra.Command {
	var configFile string
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "run",
		Short:         "start carl",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				v.SetConfigFile(configFile)
				if err := v.ReadInConfig(); err != nil {
					return err
				}
			}
			cfg, err := carlconfig.Load(v)
			if err != nil {
				return err
			}
			return runCarl(cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file (defaults, flags and CARL_ env vars apply when absent)")
	carlconfig.BindFlags(cmd.Flags(), v)
	return cmd
}

// runCarl constructs and wires every component together: the Resource
// Manager (optionally persistence-backed), the Peer Messaging Broker, and
// the Cluster Manager and Peer Manager built on top of them. It registers
// every persistent resource type before loading a snapshot, the order the
// Resource Manager's own doc comment requires.
func runCarl(cfg *carlconfig.Config) error {
	snapshotter, err := newSnapshotter(cfg)
	if err != nil {
		return err
	}

	resourceManager := resource.NewResourceManager(snapshotter)
	resource.RegisterPersistentType[types.PeerDescriptor](resourceManager)
	resource.RegisterPersistentType[types.PeerConnectionState](resourceManager)
	resource.RegisterPersistentType[types.PeerConfiguration](resourceManager)
	resource.RegisterPersistentType[types.OldPeerConfiguration](resourceManager)
	resource.RegisterPersistentType[types.PeerVpnAddress](resourceManager)
	resource.RegisterPersistentType[types.ClusterConfiguration](resourceManager)
	resource.RegisterPersistentType[types.ClusterDeployment](resourceManager)
	resource.RegisterPersistentType[types.ClusterAssignment](resourceManager)
	if err := resourceManager.Load(); err != nil {
		return err
	}

	peerBroker := broker.New(resourceManager, broker.Options{
		PeerDisconnectTimeout: cfg.PeerDisconnectTimeout,
	})

	collaborator := newVpnCollaborator(cfg)
	registrar := newOidcRegistrar(cfg)

	clustermanager.New(resourceManager, peerBroker, collaborator, clustermanager.Options{
		CanServerPortRangeStart: cfg.CanServerPortRangeStart,
		CanServerPortRangeEnd:   cfg.CanServerPortRangeEnd,
		BridgeNameDefault:       cfg.BridgeNameDefault,
	})
	peermanager.New(resourceManager, collaborator, registrar)

	ca, err := loadOrCreateRootCA(cfg)
	if err != nil {
		return err
	}
	log.Infof("carl CA subject: %s", ca.CA.Cert.Subject)

	log.Infof("carl listening on %s, advertising %s to new peers", cfg.ListenAddr, cfg.CarlUrl)
	select {}
}

// loadOrCreateRootCA reads CARL's CA from cfg.CaCertPath/CaKeyPath, or mints
// a fresh self-signed one on first run - the same fallback the teacher's
// certs init subcommand performs explicitly, done here implicitly so a
// bare `carl run` works without a separate provisioning step.
func loadOrCreateRootCA(cfg *carlconfig.Config) (*pki.RootCA, error) {
	ca, err := pki.NewRootCAFromFile(cfg.CaCertPath, cfg.CaKeyPath)
	if err == nil {
		return ca, nil
	}
	if !os.IsNotExist(err) {
		log.Warnf("failed to load CA from %s/%s, minting a new one: %v", cfg.CaCertPath, cfg.CaKeyPath, err)
	}
	return pki.NewDefaultRootCA()
}

func newSnapshotter(cfg *carlconfig.Config) (persistence.Snapshotter, error) {
	if cfg.SnapshotPath == "" {
		return persistence.Noop{}, nil
	}
	var snapshotter persistence.Snapshotter
	snapshotter, err := persistence.OpenBbolt(cfg.SnapshotPath)
	if err != nil {
		return nil, err
	}
	if cfg.SnapshotCompress {
		snapshotter = persistence.NewCompressed(snapshotter)
	}
	if cfg.SnapshotEncryptionKeyPath != "" {
		key, err := readSnapshotKey(cfg.SnapshotEncryptionKeyPath)
		if err != nil {
			return nil, err
		}
		snapshotter = persistence.NewEncrypted(snapshotter, key)
	}
	return snapshotter, nil
}

func readSnapshotKey(path string) ([32]byte, error) {
	var key [32]byte
	data, err := os.ReadFile(path)
	if err != nil {
		return key, err
	}
	if len(data) != 32 {
		return key, errors.Errorf("snapshot encryption key at %q must be exactly 32 bytes, got %d", path, len(data))
	}
	copy(key[:], data)
	return key, nil
}

func newVpnCollaborator(cfg *carlconfig.Config) vpn.Collaborator {
	if !cfg.VpnEnabled {
		return vpn.Disabled{}
	}
	// A concrete VPN overlay controller (e.g. NetBird) is out of scope; an
	// operator who enables vpn-enabled without wiring a real collaborator
	// gets the same no-op behavior as leaving it disabled.
	log.Warnf("vpn-enabled is set but no VPN collaborator implementation is wired in; running with vpn.Disabled")
	return vpn.Disabled{}
}

func newOidcRegistrar(cfg *carlconfig.Config) oidc.Registrar {
	if !cfg.OidcEnabled {
		return oidc.Disabled{}
	}
	return oidc.NewClientCredentials(cfg.OidcTokenUrl, cfg.OidcClientId, cfg.OidcClientSecret, nil)
}
