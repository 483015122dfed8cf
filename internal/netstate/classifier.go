package netstate

// Detail texts attached to classified states.
const (
	DetailUnavailable        = "unavailable"
	DetailEnabling           = "enabling"
	DetailEnabled            = "enabled"
	DetailObtainingAddress   = "obtaining IP address"
	DetailConnected          = "connected"
	DetailScanning           = "scanning"
	DetailAssociating        = "associating"
	DetailAssociated         = "associated"
	DetailHandshaking        = "handshaking"
	DetailHandshakeCompleted = "handshake completed"
	DetailDisconnected       = "disconnected"
	DetailMobileConnecting   = "mobile connecting"
	DetailMobileConnected    = "mobile connected"
)

// Options are the configuration inputs that influence classification.
type Options struct {
	// ShowMobileData lets the mobile data link replace a disabled (or hidden
	// scanning) Wi-Fi state.
	ShowMobileData bool
	// ClearOnScanning hides the scanning state, which also makes the mobile
	// data link visible while Wi-Fi scans.
	ClearOnScanning bool
}

// StateSnapshot is one accepted classification result. Snapshots are values;
// a new one replaces the previous one as a whole.
type StateSnapshot struct {
	State       ConnectivityState `json:"state"`
	Detail      string            `json:"detail"`
	NetworkName string            `json:"network_name,omitempty"`
	Wifi        *WifiInfo         `json:"wifi,omitempty"`
	Mobile      *MobileInfo       `json:"mobile,omitempty"`
}

// HasName reports whether the snapshot carries a network name.
func (s StateSnapshot) HasName() bool {
	return s.NetworkName != ""
}

// Classify resolves raw into a new snapshot. The second return value is false
// when nothing changed relative to prev (same state and detail text) or when
// the raw combination is not recognized; the returned snapshot is then prev
// (or the zero snapshot when prev is nil).
func Classify(raw RawSignal, prev *StateSnapshot, opts Options) (StateSnapshot, bool) {
	current := StateSnapshot{State: StateDisabled}
	if prev != nil {
		current = *prev
	}

	state, detail := current.State, current.Detail

	switch raw.RadioPower {
	case PowerDisabling, PowerDisabled:
		state, detail = StateDisabled, DetailUnavailable

	case PowerEnabling:
		// A session that already reached a Wi-Fi milestone only falls back
		// through Disabled, never straight to Enabling.
		if current.State.AtLeast(StateEnabled) && current.State.Compare(StateConnected) <= 0 {
			return current, false
		}
		state, detail = StateEnabling, DetailEnabling

	case PowerEnabled:
		if current.State.Less(StateEnabled) {
			state, detail = StateEnabled, DetailEnabled
		}
		if s, d, ok := refineEnabled(raw); ok {
			state, detail = s, d
		}
	}

	if opts.ShowMobileData && (state == StateDisabled || (state == StateScanning && opts.ClearOnScanning)) {
		state, detail = mobileState(raw.MobileData)
	}

	if detail == "" {
		return current, false
	}
	if prev != nil && state == prev.State && detail == prev.Detail {
		return current, false
	}

	next := StateSnapshot{
		State:  state,
		Detail: detail,
		Wifi:   cloneWifi(raw.Wifi),
		Mobile: cloneMobile(raw.Mobile),
	}
	next.NetworkName = networkName(next)
	return next, true
}

func refineEnabled(raw RawSignal) (ConnectivityState, string, bool) {
	switch {
	case raw.Link.is(LinkConnecting, LinkDetailObtainingAddress):
		return StateObtainingAddress, DetailObtainingAddress, true
	case raw.Link.is(LinkConnected, LinkDetailConnected):
		return StateConnected, DetailConnected, true
	}

	switch raw.Supplicant {
	case SupplicantScanning:
		return StateScanning, DetailScanning, true
	case SupplicantAssociating:
		return StateAssociating, DetailAssociating, true
	case SupplicantAssociated:
		return StateAssociating, DetailAssociated, true
	case SupplicantHandshake:
		return StateHandshaking, DetailHandshaking, true
	case SupplicantCompleted:
		return StateSupplicantCompleted, DetailHandshakeCompleted, true
	case SupplicantDisconnected:
		return StateScanning, DetailDisconnected, true
	}
	return "", "", false
}

func mobileState(m MobileDataState) (ConnectivityState, string) {
	switch m {
	case MobileConnecting:
		return StateMobileConnecting, DetailMobileConnecting
	case MobileConnected:
		return StateMobileConnected, DetailMobileConnected
	default:
		return StateDisabled, DetailUnavailable
	}
}

func networkName(s StateSnapshot) string {
	switch {
	case s.State.IsAccessPointDecided():
		if s.Wifi != nil {
			return s.Wifi.SSID
		}
	case s.State.IsMobile():
		if s.Mobile != nil {
			return s.Mobile.APN
		}
	}
	return ""
}

func cloneWifi(w *WifiInfo) *WifiInfo {
	if w == nil {
		return nil
	}
	c := *w
	return &c
}

func cloneMobile(m *MobileInfo) *MobileInfo {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
