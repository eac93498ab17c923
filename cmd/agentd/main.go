// Command agentd is the Router Agent daemon: it dials the control plane's
// WebSocket, authenticates with its configured device_id/api_key, and then
// serves CONFIG_PUSH/CONFIG_FULL/EXEC/REBOOT/UPGRADE/MODE_UPDATE directives
// against the local subsystem adapters for the lifetime of the process.
//
// Usage:
//
//	agentd --config /etc/router-agent/agent.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meshbridge/routeragent/pkg/adapter"
	"github.com/meshbridge/routeragent/pkg/adapter/dhcpdns"
	"github.com/meshbridge/routeragent/pkg/adapter/modewrap"
	"github.com/meshbridge/routeragent/pkg/adapter/packetfilter"
	"github.com/meshbridge/routeragent/pkg/adapter/system"
	"github.com/meshbridge/routeragent/pkg/adapter/vpn"
	"github.com/meshbridge/routeragent/pkg/adapter/wifi"
	"github.com/meshbridge/routeragent/pkg/agent"
	"github.com/meshbridge/routeragent/pkg/collector"
	"github.com/meshbridge/routeragent/pkg/config"
	"github.com/meshbridge/routeragent/pkg/rpc"
	"github.com/meshbridge/routeragent/pkg/util"
	"github.com/meshbridge/routeragent/pkg/version"
)

var (
	configPath string
	nvramPath  string
	wanIface   string
	verbose    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "agentd",
	Short:         "Router Agent session daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runAgentd,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "agent config file")
	rootCmd.Flags().StringVar(&nvramPath, "nvram", "/var/lib/router-agent/nvram", "system-section NVRAM store path")
	rootCmd.Flags().StringVar(&wanIface, "wan-interface", "eth0", "WAN-facing network interface")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")
}

func runAgentd(cmd *cobra.Command, args []string) error {
	if verbose {
		_ = util.SetLogLevel("debug")
	}

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("agentd: %w", err)
	}
	_ = util.SetLogLevel(cfg.LogLevel)

	sess, err := buildSession(cfg)
	if err != nil {
		return fmt.Errorf("agentd: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	util.WithDeviceID(cfg.DeviceID).WithField("version", version.Info()).Info("agentd: starting")
	return sess.Run(ctx)
}

// buildSession wires every known adapter into a registry, wrapping each
// with modewrap so MODE_UPDATE governs enforcement per section, then
// builds the Session and the Collector it runs alongside. resolveMode
// closes over sess before sess itself exists; it is only ever called
// during dispatch, after buildSession has returned, which breaks what
// would otherwise be a construction cycle between Session and its own
// mode-wrapped registry.
func buildSession(cfg *config.Config) (*agent.Session, error) {
	var sess *agent.Session
	resolveMode := func(section rpc.Section) rpc.Mode { return sess.ResolveMode(section) }

	store, err := system.NewStore(nvramPath)
	if err != nil {
		return nil, fmt.Errorf("open nvram store: %w", err)
	}
	sources := system.DefaultMetricSources()

	adapters := []adapter.Adapter{
		system.New(store, sources, system.RealRunner),
		dhcpdns.NewDNS(nil, nil, dnsApplier),
		dhcpdns.NewDHCP(nil, dhcpLeaseReader, dhcpApplier),
		wifi.New(nil, wifiRadioLister, wifiClientEnumerator, wifiApplier),
		packetfilter.NewFirewall(nil, firewallApplier),
		packetfilter.NewNAT(nil, natApplier),
		vpn.NewServer(nil, vpnApplier("wg-server")),
		vpn.NewClient(nil, vpnApplier("wg-client")),
	}

	wrapped := make([]adapter.Adapter, 0, len(adapters))
	for _, a := range adapters {
		if !cfg.AdapterEnabled(string(a.Section())) {
			continue
		}
		wrapped = append(wrapped, modewrap.New(a, resolveMode))
	}
	registry := adapter.NewRegistry(wrapped...)

	source := collector.NewLinuxSource(sources, listInterfaces, resolveWANIP(wanIface), readDNSCounters, version.Info())
	col := collector.New(source, util.WithDeviceID(cfg.DeviceID))

	sess = agent.New(cfg, registry, col, agent.DialWebSocket,
		agent.WithRebootFunc(rebootAction),
		agent.WithUpgradeFunc(upgradeAction),
	)
	return sess, nil
}
