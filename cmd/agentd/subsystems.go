package main

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/meshbridge/routeragent/pkg/adapter/dhcpdns"
	"github.com/meshbridge/routeragent/pkg/adapter/packetfilter"
	"github.com/meshbridge/routeragent/pkg/adapter/vpn"
	"github.com/meshbridge/routeragent/pkg/adapter/wifi"
)

// runService shells out and restarts the named systemd unit, returning it
// as the Applier's service name so ConfigDiff.ServicesTouched is accurate.
func runService(ctx context.Context, service string, cmd string, args ...string) (string, error) {
	if err := exec.CommandContext(ctx, cmd, args...).Run(); err != nil {
		return "", fmt.Errorf("%s: %w", cmd, err)
	}
	if err := exec.CommandContext(ctx, "systemctl", "restart", service).Run(); err != nil {
		return "", fmt.Errorf("restart %s: %w", service, err)
	}
	return service, nil
}

// dhcpApplier regenerates dnsmasq's dhcp-host reservation file and
// restarts it.
func dhcpApplier(ctx context.Context, reservations []dhcpdns.Reservation) (string, error) {
	args := []string{"-c", "router-agent-dhcp-reservations"}
	for _, r := range reservations {
		args = append(args, fmt.Sprintf("%s,%s,%s", r.MAC, r.IP, r.Hostname))
	}
	return runService(ctx, "dnsmasq", "router-agent-write-dhcp-conf", args...)
}

// dhcpLeaseReader reads dnsmasq's active lease file.
func dhcpLeaseReader(ctx context.Context) ([]dhcpdns.Lease, error) {
	out, err := exec.CommandContext(ctx, "router-agent-read-dhcp-leases").Output()
	if err != nil {
		return nil, fmt.Errorf("read dhcp leases: %w", err)
	}
	return parseLeaseOutput(out)
}

// dnsApplier regenerates the DNS resolver's block/allow lists and
// restarts it.
func dnsApplier(ctx context.Context, blocklist, allowlist []string) (string, error) {
	return runService(ctx, "dnsmasq", "router-agent-write-dns-conf", append(blocklist, allowlist...)...)
}

// firewallApplier loads rules into netfilter atomically via
// iptables-restore and returns the service name touched.
func firewallApplier(ctx context.Context, rules []packetfilter.Rule) (string, error) {
	return runService(ctx, "netfilter-persistent", "router-agent-write-iptables", ruleArgs(rules)...)
}

// natApplier is the nat-table counterpart of firewallApplier.
func natApplier(ctx context.Context, rules []packetfilter.Rule) (string, error) {
	return runService(ctx, "netfilter-persistent", "router-agent-write-iptables-nat", ruleArgs(rules)...)
}

func ruleArgs(rules []packetfilter.Rule) []string {
	args := make([]string, 0, len(rules))
	for _, r := range rules {
		args = append(args, fmt.Sprintf("%s/%s->%s", r.Proto, r.Src, r.Dst))
	}
	return args
}

// wifiApplier writes one radio's hostapd configuration and restarts the
// per-radio hostapd instance.
func wifiApplier(ctx context.Context, radio string, cfg wifi.RadioConfig) (string, error) {
	service := "hostapd@" + radio
	args := []string{radio, cfg.SSID, fmt.Sprintf("%d", cfg.Channel), cfg.Width, cfg.Security}
	return runService(ctx, service, "router-agent-write-hostapd-conf", args...)
}

// wifiRadioLister enumerates radio interfaces via the wireless CLI.
func wifiRadioLister(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, "router-agent-list-radios").Output()
	if err != nil {
		return nil, fmt.Errorf("list radios: %w", err)
	}
	return splitLines(out), nil
}

// wifiClientEnumerator lists clients associated to radio.
func wifiClientEnumerator(ctx context.Context, radio string) ([]wifi.AssociatedClient, error) {
	out, err := exec.CommandContext(ctx, "router-agent-list-stations", radio).Output()
	if err != nil {
		return nil, fmt.Errorf("list stations on %s: %w", radio, err)
	}
	return parseStationOutput(radio, out)
}

// vpnApplier pushes a WireGuard peer set and reloads the interface.
func vpnApplier(iface string) vpn.Applier {
	return func(ctx context.Context, peers []vpn.Peer) (string, error) {
		args := []string{iface}
		for _, p := range peers {
			args = append(args, p.PublicKey)
		}
		if err := exec.CommandContext(ctx, "router-agent-write-wg-conf", args...).Run(); err != nil {
			return "", fmt.Errorf("write wireguard config: %w", err)
		}
		if err := exec.CommandContext(ctx, "wg-quick", "strip", iface).Run(); err != nil {
			return "", fmt.Errorf("reload wireguard interface %s: %w", iface, err)
		}
		return "wg-quick@" + iface, nil
	}
}
