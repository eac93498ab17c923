// Package wifi implements the wireless configuration section: multi-radio
// SSID/channel/width/security configuration plus associated-client
// enumeration.
package wifi

import (
	"context"
	"fmt"

	"github.com/meshbridge/routeragent/pkg/adapter"
	"github.com/meshbridge/routeragent/pkg/rpc"
	"github.com/meshbridge/routeragent/pkg/util"
)

// Security is the whitelisted set of wireless security modes.
type Security string

const (
	SecurityNone  Security = "none"
	SecurityWPA2  Security = "wpa2"
	SecurityWPA3  Security = "wpa3"
	SecurityMixed Security = "mixed"
)

func (s Security) valid() bool {
	switch s {
	case SecurityNone, SecurityWPA2, SecurityWPA3, SecurityMixed:
		return true
	}
	return false
}

// RadioConfig is one radio's configuration document, matching the shape
// of a "radios" entry in the wire document.
type RadioConfig struct {
	SSID     string `json:"ssid"`
	Channel  int    `json:"channel"`
	Width    string `json:"width"`
	Security string `json:"security"`
	PSK      string `json:"psk,omitempty"`
}

// AssociatedClient describes one client associated to a radio, reported
// under CollectMetrics.
type AssociatedClient struct {
	MAC   string `json:"mac"`
	RSSI  int    `json:"rssi"`
	Radio string `json:"radio"`
}

// RadioLister enumerates radio interface names present on the device
// (e.g. via the platform's wireless CLI), so Validate can reject a
// configuration referencing a radio that doesn't exist.
type RadioLister func(ctx context.Context) ([]string, error)

// ClientEnumerator lists clients currently associated to radio.
type ClientEnumerator func(ctx context.Context, radio string) ([]AssociatedClient, error)

// Applier pushes one radio's configuration to the wireless subsystem and
// restarts the hostapd-equivalent service. Returns the service name that
// was restarted, for ConfigDiff.ServicesTouched.
type Applier func(ctx context.Context, radio string, cfg RadioConfig) (service string, err error)

// Adapter implements the wifi configuration section.
type Adapter struct {
	adapter.BeforeImageStore
	radios    map[string]RadioConfig
	listRadio RadioLister
	clients   ClientEnumerator
	apply     Applier
}

// New builds a wifi Adapter. initial seeds the adapter's view of current
// radio configuration (as would be read back from the wireless subsystem
// at startup).
func New(initial map[string]RadioConfig, listRadio RadioLister, clients ClientEnumerator, apply Applier) *Adapter {
	radios := make(map[string]RadioConfig, len(initial))
	for k, v := range initial {
		radios[k] = v
	}
	return &Adapter{radios: radios, listRadio: listRadio, clients: clients, apply: apply}
}

func (a *Adapter) Section() rpc.Section { return rpc.SectionWiFi }

func (a *Adapter) Read(ctx context.Context) (adapter.Document, error) {
	return adapter.Document{"radios": radioDocuments(a.radios)}, nil
}

// radioDocuments serializes radios the same way for every caller (Read and
// Diff alike), so a round trip through apply/read never drops a field. psk
// is included here and redacted only at the transmission boundary
// (pkg/redact), not dropped from the document itself.
func radioDocuments(radios map[string]RadioConfig) map[string]interface{} {
	out := make(map[string]interface{}, len(radios))
	for name, cfg := range radios {
		out[name] = map[string]interface{}{
			"ssid":     cfg.SSID,
			"channel":  float64(cfg.Channel),
			"width":    cfg.Width,
			"security": cfg.Security,
			"psk":      cfg.PSK,
		}
	}
	return out
}

// parseRadios decodes doc's "radios" field into the typed form, defaulting
// any field a radio omits to its zero value rather than stringifying a nil
// interface.
func parseRadios(doc adapter.Document) map[string]RadioConfig {
	radiosRaw, _ := doc["radios"].(map[string]interface{})
	radios := make(map[string]RadioConfig, len(radiosRaw))
	for name, raw := range radiosRaw {
		cfg, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		channel, _ := cfg["channel"].(float64)
		ssid, _ := cfg["ssid"].(string)
		width, _ := cfg["width"].(string)
		security, _ := cfg["security"].(string)
		psk, _ := cfg["psk"].(string)
		radios[name] = RadioConfig{
			SSID: ssid, Channel: int(channel), Width: width, Security: security, PSK: psk,
		}
	}
	return radios
}

func (a *Adapter) Validate(doc adapter.Document) []rpc.ValidationIssue {
	var b adapter.IssueBuilder

	radiosRaw, ok := doc["radios"]
	if !ok {
		b.Require(false, "radios", "MISSING_RADIOS", "radios is required")
		return b.Issues()
	}
	radios, ok := radiosRaw.(map[string]interface{})
	if !ok {
		b.Require(false, "radios", "INVALID_RADIOS", "radios must be an object keyed by radio name")
		return b.Issues()
	}

	var known map[string]bool
	if a.listRadio != nil {
		if names, err := a.listRadio(context.Background()); err == nil {
			known = make(map[string]bool, len(names))
			for _, n := range names {
				known[n] = true
			}
		}
	}

	for name, raw := range radios {
		path := fmt.Sprintf("radios.%s", name)
		if known != nil {
			b.Require(known[name], path, "UNKNOWN_RADIO", fmt.Sprintf("radio %q does not exist on this device", name))
		}
		cfg, ok := raw.(map[string]interface{})
		if !ok {
			b.Require(false, path, "INVALID_RADIO_CONFIG", "radio config must be an object")
			continue
		}
		ssid, _ := cfg["ssid"].(string)
		b.Require(ssid != "", path+".ssid", "MISSING_SSID", "ssid is required")

		security, _ := cfg["security"].(string)
		b.Require(Security(security).valid(), path+".security",
			"INVALID_SECURITY", fmt.Sprintf("security %q is not one of none/wpa2/wpa3/mixed", security))

		if Security(security) != SecurityNone {
			psk, _ := cfg["psk"].(string)
			b.Require(len(psk) >= 8, path+".psk", "WEAK_PSK", "psk must be at least 8 characters for a secured radio")
		}
	}
	return b.Issues()
}

func (a *Adapter) Diff(ctx context.Context, proposed adapter.Document) (rpc.ConfigDiff, error) {
	current, err := a.Read(ctx)
	if err != nil {
		return rpc.ConfigDiff{}, err
	}
	canonical := adapter.Document{"radios": radioDocuments(parseRadios(proposed))}
	diff := adapter.Diff(current, canonical)
	if !diff.IsEmpty() {
		diff.RequiresRestart = true
		diff.ServicesTouched = []string{"hostapd"}
	}
	return diff, nil
}

func (a *Adapter) Apply(ctx context.Context, doc adapter.Document, version rpc.SectionVersion) (adapter.Result, error) {
	diff, err := a.Diff(ctx, doc)
	if err != nil {
		return adapter.Result{Success: false, Step: "diff", Err: err}, err
	}
	if diff.IsEmpty() {
		return adapter.Result{Success: true, Diff: diff}, nil
	}

	next := parseRadios(doc)
	before := a.snapshot()
	a.BeforeImageStore.Capture(before)

	services := map[string]struct{}{}
	for name, rc := range next {
		if a.apply != nil {
			service, err := a.apply(ctx, name, rc)
			if err != nil {
				rollback, rerr := a.Rollback(ctx)
				if rerr != nil {
					return adapter.Result{Success: false, Step: "apply_radio:" + name, Err: err}, rerr
				}
				_ = rollback
				return adapter.Result{Success: false, Step: "apply_radio:" + name, Err: err}, err
			}
			if service != "" {
				services[service] = struct{}{}
			}
		}
		a.radios[name] = rc
	}

	for svc := range services {
		diff.ServicesTouched = append(diff.ServicesTouched, svc)
	}
	return adapter.Result{Success: true, Diff: diff}, nil
}

func (a *Adapter) Rollback(ctx context.Context) (adapter.Result, error) {
	before, ok := a.BeforeImageStore.Get()
	if !ok {
		applyErr := util.NewApplyError(string(rpc.SectionWiFi), "rollback", util.ErrNoSnapshot)
		applyErr.RollbackAttempt = util.ErrNoSnapshot
		return adapter.Result{Success: false}, applyErr
	}
	radios, _ := before["radios"].(map[string]RadioConfig)
	a.radios = radios
	if a.apply != nil {
		for name, cfg := range a.radios {
			if _, err := a.apply(ctx, name, cfg); err != nil {
				return adapter.Result{Success: false, Step: "rollback_radio:" + name, Err: err}, err
			}
		}
	}
	return adapter.Result{Success: true, Step: "rollback"}, nil
}

func (a *Adapter) CollectMetrics(ctx context.Context) (adapter.Document, error) {
	if a.clients == nil {
		return adapter.Document{}, nil
	}
	all := []AssociatedClient{}
	for name := range a.radios {
		clients, err := a.clients(ctx, name)
		if err != nil {
			continue
		}
		all = append(all, clients...)
	}
	return adapter.Document{"clients": all}, nil
}

func (a *Adapter) AllowedCommands() []string {
	return []string{"wifi_scan", "hostapd_cli"}
}

func (a *Adapter) snapshot() adapter.Document {
	radios := make(map[string]RadioConfig, len(a.radios))
	for k, v := range a.radios {
		radios[k] = v
	}
	return adapter.Document{"radios": radios}
}
