package main

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/meshbridge/routeragent/pkg/collector"
	"github.com/meshbridge/routeragent/pkg/rpc"
)

// listInterfaces enumerates interfaces via "ip -o addr show", the
// standard Linux CLI for reading interface state without a netlink binding.
func listInterfaces(ctx context.Context) ([]collector.InterfaceState, error) {
	out, err := exec.CommandContext(ctx, "ip", "-o", "addr", "show").Output()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	byName := make(map[string]*collector.InterfaceState)
	var order []string
	for _, line := range splitLines(out) {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		name := fields[1]
		st, ok := byName[name]
		if !ok {
			st = &collector.InterfaceState{Name: name}
			byName[name] = st
			order = append(order, name)
		}
		if fields[2] == "inet" {
			st.IP = strings.SplitN(fields[3], "/", 2)[0]
		}
	}

	states := make([]collector.InterfaceState, 0, len(order))
	for _, name := range order {
		st := byName[name]
		st.Up = interfaceIsUp(ctx, name)
		states = append(states, *st)
	}
	return states, nil
}

func interfaceIsUp(ctx context.Context, name string) bool {
	out, err := exec.CommandContext(ctx, "ip", "link", "show", name).Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "state UP") || strings.Contains(string(out), "UP,")
}

// resolveWANIP reads the address currently assigned to the WAN-facing
// interface.
func resolveWANIP(iface string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		out, err := exec.CommandContext(ctx, "router-agent-read-wan-ip", iface).Output()
		if err != nil {
			return "", fmt.Errorf("resolve wan ip on %s: %w", iface, err)
		}
		return strings.TrimSpace(string(out)), nil
	}
}

// readDNSCounters parses dnsmasq's query-log-derived counter snapshot.
func readDNSCounters(ctx context.Context) (rpc.DNSCounters, error) {
	out, err := exec.CommandContext(ctx, "router-agent-read-dns-counters").Output()
	if err != nil {
		return rpc.DNSCounters{}, fmt.Errorf("read dns counters: %w", err)
	}
	fields := strings.Fields(string(out))
	if len(fields) < 3 {
		return rpc.DNSCounters{}, nil
	}
	return rpc.DNSCounters{
		Queries: atoiOr0(fields[0]),
		Blocked: atoiOr0(fields[1]),
		Cached:  atoiOr0(fields[2]),
	}, nil
}

func atoiOr0(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
