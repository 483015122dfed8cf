// Package platform adapts host facilities to the engine: a NetworkManager
// backend driven through nmcli and a scripted scenario source.
package platform

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"wifistate-go/internal/config"
	"wifistate-go/internal/netstate"
)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec. Stderr is folded into the error.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err,
				strings.TrimSpace(string(exitErr.Stderr)))
		}
		return out, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// ErrNoWifiDevice is returned when nmcli lists no Wi-Fi interface.
var ErrNoWifiDevice = errors.New("no wifi device found")

// Nmcli reads and controls the Wi-Fi radio through NetworkManager's CLI.
type Nmcli struct {
	bin    string
	device string
	run    Runner
	logger *zap.Logger
}

// NewNmcli creates an nmcli backend. An empty bin uses "nmcli" from PATH, an
// empty device picks the first Wi-Fi interface and a nil run uses ExecRunner.
func NewNmcli(bin, device string, run Runner, logger *zap.Logger) *Nmcli {
	if bin == "" {
		bin = "nmcli"
	}
	if run == nil {
		run = ExecRunner
	}
	return &Nmcli{
		bin:    bin,
		device: device,
		run:    run,
		logger: logger.Named("nmcli"),
	}
}

// Available reports whether the nmcli binary can be found.
func (n *Nmcli) Available() bool {
	_, err := exec.LookPath(n.bin)
	return err == nil
}

func (n *Nmcli) exec(ctx context.Context, args ...string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, config.CommandTimeout)
	defer cancel()

	out, err := n.run(ctx, n.bin, args...)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// PowerState returns the Wi-Fi radio power. NetworkManager only reports the
// settled states.
func (n *Nmcli) PowerState(ctx context.Context) (netstate.RadioPower, error) {
	lines, err := n.exec(ctx, "-t", "radio", "wifi")
	if err != nil {
		return netstate.PowerUnknown, fmt.Errorf("query radio: %w", err)
	}
	if len(lines) == 0 {
		return netstate.PowerUnknown, errors.New("query radio: empty output")
	}

	switch strings.TrimSpace(lines[0]) {
	case "enabled":
		return netstate.PowerEnabled, nil
	case "disabled":
		return netstate.PowerDisabled, nil
	default:
		return netstate.PowerUnknown, fmt.Errorf("query radio: unexpected value %q", lines[0])
	}
}

// SetEnabled switches the Wi-Fi radio on or off.
func (n *Nmcli) SetEnabled(ctx context.Context, enabled bool) error {
	arg := "off"
	if enabled {
		arg = "on"
	}
	if _, err := n.exec(ctx, "radio", "wifi", arg); err != nil {
		return fmt.Errorf("set radio %s: %w", arg, err)
	}
	n.logger.Debug("Radio command issued", zap.String("wifi", arg))
	return nil
}

type device struct {
	name       string
	kind       string
	state      string
	connection string
}

func (n *Nmcli) devices(ctx context.Context) ([]device, error) {
	lines, err := n.exec(ctx, "-t", "-f", "DEVICE,TYPE,STATE,CONNECTION", "device", "status")
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	var out []device
	for _, line := range lines {
		f := splitTerse(line)
		if len(f) < 4 {
			continue
		}
		conn := f[3]
		if conn == "--" {
			conn = ""
		}
		out = append(out, device{name: f[0], kind: f[1], state: f[2], connection: conn})
	}
	return out, nil
}

// ReadSignal samples radio power, the Wi-Fi device state and, when present,
// the mobile broadband device.
func (n *Nmcli) ReadSignal(ctx context.Context) (netstate.RawSignal, error) {
	power, err := n.PowerState(ctx)
	if err != nil {
		return netstate.RawSignal{}, err
	}
	devs, err := n.devices(ctx)
	if err != nil {
		return netstate.RawSignal{}, err
	}

	raw := netstate.RawSignal{RadioPower: power}

	if mob, ok := findDevice(devs, "", "gsm", "cdma"); ok {
		raw.MobileData = mobileDataState(mob.state)
		if raw.MobileData != netstate.MobileOther {
			raw.Mobile = &netstate.MobileInfo{APN: mob.connection}
			if addr, _, err := n.addresses(ctx, mob.name); err == nil {
				raw.Mobile.IPAddress = addr
			}
		}
	}

	wifi, ok := findDevice(devs, n.device, "wifi")
	if !ok {
		if power == netstate.PowerEnabled {
			return raw, ErrNoWifiDevice
		}
		return raw, nil
	}
	if power != netstate.PowerEnabled {
		return raw, nil
	}

	raw.Supplicant, raw.Link = wifiProgress(wifi.state)
	if raw.Link == nil && raw.Supplicant == netstate.SupplicantNone {
		return raw, nil
	}

	info := &netstate.WifiInfo{SSID: wifi.connection}
	if err := n.fillAccessPoint(ctx, wifi.name, info); err != nil {
		n.logger.Debug("Access point details unavailable", zap.String("device", wifi.name), zap.Error(err))
	}
	if addr, gw, err := n.addresses(ctx, wifi.name); err == nil {
		info.IPAddress, info.Gateway = addr, gw
	} else {
		n.logger.Debug("Address details unavailable", zap.String("device", wifi.name), zap.Error(err))
	}
	raw.Wifi = info
	return raw, nil
}

func (n *Nmcli) fillAccessPoint(ctx context.Context, dev string, info *netstate.WifiInfo) error {
	lines, err := n.exec(ctx, "-t", "-f", "IN-USE,SSID,BSSID,SIGNAL,FREQ,RATE",
		"device", "wifi", "list", "ifname", dev, "--rescan", "no")
	if err != nil {
		return err
	}
	for _, line := range lines {
		f := splitTerse(line)
		if len(f) < 6 || f[0] != "*" {
			continue
		}
		if f[1] != "" {
			info.SSID = f[1]
		}
		info.BSSID = f[2]
		if q, ok := leadingInt(f[3]); ok {
			info.RSSI = QualityToDBm(q)
		}
		info.FrequencyMHz, _ = leadingInt(f[4])
		info.LinkSpeedMbps, _ = leadingInt(f[5])
		return nil
	}
	return errors.New("no access point in use")
}

func (n *Nmcli) addresses(ctx context.Context, dev string) (addr, gateway string, err error) {
	lines, err := n.exec(ctx, "-t", "-f", "IP4.ADDRESS,IP4.GATEWAY", "device", "show", dev)
	if err != nil {
		return "", "", err
	}
	for _, line := range lines {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(key, "IP4.ADDRESS") && addr == "":
			addr, _, _ = strings.Cut(value, "/")
		case key == "IP4.GATEWAY" && value != "--":
			gateway = value
		}
	}
	return addr, gateway, nil
}

func findDevice(devs []device, name string, kinds ...string) (device, bool) {
	for _, d := range devs {
		if name != "" && d.name != name {
			continue
		}
		for _, k := range kinds {
			if d.kind == k {
				return d, true
			}
		}
	}
	return device{}, false
}

// wifiProgress maps a NetworkManager device state onto supplicant and link
// progress.
func wifiProgress(state string) (netstate.SupplicantState, *netstate.Link) {
	switch state {
	case "connected", "connected (site only)", "connected (local only)":
		return netstate.SupplicantCompleted, &netstate.Link{
			Available: true, Phase: netstate.LinkConnected, Detail: netstate.LinkDetailConnected,
		}
	case "connecting (getting IP configuration)",
		"connecting (checking IP connectivity)",
		"connecting (starting secondary connections)":
		return netstate.SupplicantCompleted, &netstate.Link{
			Available: true, Phase: netstate.LinkConnecting, Detail: netstate.LinkDetailObtainingAddress,
		}
	case "connecting (need authentication)":
		return netstate.SupplicantHandshake, nil
	case "connecting (prepare)", "connecting (configuring)":
		return netstate.SupplicantAssociating, nil
	case "disconnected", "deactivating":
		return netstate.SupplicantDisconnected, nil
	default:
		return netstate.SupplicantNone, nil
	}
}

func mobileDataState(state string) netstate.MobileDataState {
	switch {
	case strings.HasPrefix(state, "connected"):
		return netstate.MobileConnected
	case strings.HasPrefix(state, "connecting"):
		return netstate.MobileConnecting
	default:
		return netstate.MobileOther
	}
}

// QualityToDBm converts nmcli's 0-100 signal quality to an approximate RSSI.
func QualityToDBm(quality int) int {
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}
	return quality/2 - 100
}

// splitTerse splits one line of `nmcli -t` output. Colons and backslashes
// inside values are escaped with a backslash.
func splitTerse(line string) []string {
	var (
		fields []string
		cur    strings.Builder
	)
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case c == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(fields, cur.String())
}

func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(s[:end])
	return v, err == nil
}
