package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	BindFlags(flags, v)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:8080" {
		t.Fatalf("unexpected default ListenAddr: %q", cfg.ListenAddr)
	}
	if cfg.PeerDisconnectTimeout != 30*time.Second {
		t.Fatalf("unexpected default PeerDisconnectTimeout: %v", cfg.PeerDisconnectTimeout)
	}
	if cfg.CanServerPortRangeStart != 20000 || cfg.CanServerPortRangeEnd != 21000 {
		t.Fatalf("unexpected default CAN port range: [%d, %d)", cfg.CanServerPortRangeStart, cfg.CanServerPortRangeEnd)
	}
	if cfg.BridgeNameDefault.String() != "br-opendut" {
		t.Fatalf("unexpected default bridge name: %q", cfg.BridgeNameDefault)
	}
}

func TestLoad_FlagOverridesDefault(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	BindFlags(flags, v)

	if err := flags.Parse([]string{"--listen-addr", "127.0.0.1:9000"}); err != nil {
		t.Fatalf("parsing flags: %v", err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("expected flag override to take effect, got %q", cfg.ListenAddr)
	}
	if cfg.CarlUrl != "https://127.0.0.1:9000" {
		t.Fatalf("expected CarlUrl to reuse an explicit host, got %q", cfg.CarlUrl)
	}
}
