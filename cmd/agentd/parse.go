package main

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/meshbridge/routeragent/pkg/adapter/wifi"
	"github.com/meshbridge/routeragent/pkg/util"

	"github.com/meshbridge/routeragent/pkg/adapter/dhcpdns"
)

// splitLines returns out's non-empty trimmed lines.
func splitLines(out []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// parseLeaseOutput parses dnsmasq's lease-file line format:
// "<expiry> <mac> <ip> <hostname>".
func parseLeaseOutput(out []byte) ([]dhcpdns.Lease, error) {
	var leases []dhcpdns.Lease
	for _, line := range splitLines(out) {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		leases = append(leases, dhcpdns.Lease{
			ExpiresAt: fields[0],
			MAC:       fields[1],
			IP:        fields[2],
			Hostname:  fields[3],
		})
	}
	return leases, nil
}

// parseStationOutput parses "router-agent-list-stations"' line format:
// "<mac> <rssi>".
func parseStationOutput(radio string, out []byte) ([]wifi.AssociatedClient, error) {
	var clients []wifi.AssociatedClient
	for _, line := range splitLines(out) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		rssi, err := strconv.Atoi(fields[1])
		if err != nil {
			util.WithField("radio", radio).WithError(err).Warn("agentd: skipping malformed station line")
			continue
		}
		clients = append(clients, wifi.AssociatedClient{MAC: fields[0], RSSI: rssi, Radio: radio})
	}
	return clients, nil
}
