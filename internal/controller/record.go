package controller

import (
	"fmt"

	"wifistate-go/internal/netstate"
)

// AppName is the indicator title when no network name is known.
const AppName = "WifiState"

// Icon identifies one of the indicator images.
type Icon string

const (
	IconDisabled         Icon = "state_0"
	IconReserved         Icon = "state_w1"
	IconEnabling         Icon = "state_w2"
	IconEnabled          Icon = "state_w3"
	IconScanning         Icon = "state_w4"
	IconConnecting       Icon = "state_w5"
	IconCompleted        Icon = "state_w6"
	IconObtainingAddress Icon = "state_w7"
	IconConnected        Icon = "state_w8"
	IconMobileConnecting Icon = "state_m4"
	IconMobileConnected  Icon = "state_m8"
	IconWarning          Icon = "state_warn"
)

var stateIcons = map[netstate.ConnectivityState]Icon{
	netstate.StateDisabled:            IconDisabled,
	netstate.StateReserved:            IconReserved,
	netstate.StateEnabling:            IconEnabling,
	netstate.StateEnabled:             IconEnabled,
	netstate.StateScanning:            IconScanning,
	netstate.StateAssociating:         IconConnecting,
	netstate.StateHandshaking:         IconConnecting,
	netstate.StateSupplicantCompleted: IconCompleted,
	netstate.StateObtainingAddress:    IconObtainingAddress,
	netstate.StateConnected:           IconConnected,
	netstate.StateMobileConnecting:    IconMobileConnecting,
	netstate.StateMobileConnected:     IconMobileConnected,
}

// IconFor returns the indicator image of state.
func IconFor(state netstate.ConnectivityState) Icon {
	if icon, ok := stateIcons[state]; ok {
		return icon
	}
	return IconDisabled
}

// AllIcons lists every icon in display order.
func AllIcons() []Icon {
	return []Icon{
		IconDisabled, IconReserved, IconEnabling, IconEnabled, IconScanning,
		IconConnecting, IconCompleted, IconObtainingAddress, IconConnected,
		IconMobileConnecting, IconMobileConnected, IconWarning,
	}
}

// Record is the content of the single status indicator. It is always
// derived from the current snapshot and reachability flag.
type Record struct {
	Icon    Icon   `json:"icon"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Extra   string `json:"extra,omitempty"`
	Ongoing bool   `json:"ongoing"`
}

// Sink displays the indicator.
type Sink interface {
	// Show displays rec, replacing whatever is shown.
	Show(rec Record)
	// Clear removes the indicator.
	Clear()
}

// buildRecord derives the indicator content. pingCounts is appended to the
// body when non-empty.
func buildRecord(snap netstate.StateSnapshot, reachable, clearable bool, pingCounts string) Record {
	icon := IconFor(snap.State)
	if snap.State.IsConnected() && !reachable {
		icon = IconWarning
	}

	title := AppName
	if snap.HasName() {
		title = snap.NetworkType() + ": " + snap.NetworkName
	}

	return Record{
		Icon:    icon,
		Title:   title,
		Body:    snap.DisplayDetail() + pingCounts,
		Extra:   snap.ExtraInfo(),
		Ongoing: !clearable,
	}
}

func formatPingCounts(ok, total uint64) string {
	return fmt.Sprintf(" ping:%d/%d", ok, total)
}
