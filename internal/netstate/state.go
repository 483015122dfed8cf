// Package netstate classifies raw radio, supplicant and link signals into an
// ordered connectivity state.
package netstate

// ConnectivityState is the classified state of the network interface.
// States are totally ordered through an explicit rank table; the order encodes
// milestone progression from radio off to fully connected.
type ConnectivityState string

const (
	StateDisabled            ConnectivityState = "disabled"
	StateReserved            ConnectivityState = "reserved"
	StateEnabling            ConnectivityState = "enabling"
	StateEnabled             ConnectivityState = "enabled"
	StateScanning            ConnectivityState = "scanning"
	StateAssociating         ConnectivityState = "associating"
	StateHandshaking         ConnectivityState = "handshaking"
	StateSupplicantCompleted ConnectivityState = "supplicant_completed"
	StateObtainingAddress    ConnectivityState = "obtaining_address"
	StateConnected           ConnectivityState = "connected"
	StateMobileConnecting    ConnectivityState = "mobile_connecting"
	StateMobileConnected     ConnectivityState = "mobile_connected"
)

// rankTable is the single source of truth for state ordering.
// StateReserved keeps its slot so ranks stay stable for metrics and icons.
var rankTable = map[ConnectivityState]int{
	StateDisabled:            0,
	StateReserved:            1,
	StateEnabling:            2,
	StateEnabled:             3,
	StateScanning:            4,
	StateAssociating:         5,
	StateHandshaking:         6,
	StateSupplicantCompleted: 7,
	StateObtainingAddress:    8,
	StateConnected:           9,
	StateMobileConnecting:    10,
	StateMobileConnected:     11,
}

// orderedStates lists every state in rank order.
var orderedStates = []ConnectivityState{
	StateDisabled,
	StateReserved,
	StateEnabling,
	StateEnabled,
	StateScanning,
	StateAssociating,
	StateHandshaking,
	StateSupplicantCompleted,
	StateObtainingAddress,
	StateConnected,
	StateMobileConnecting,
	StateMobileConnected,
}

// AllStates returns every known state in ascending rank order.
func AllStates() []ConnectivityState {
	out := make([]ConnectivityState, len(orderedStates))
	copy(out, orderedStates)
	return out
}

// Rank returns the position of s in the total order, or -1 for unknown values.
func (s ConnectivityState) Rank() int {
	if r, ok := rankTable[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is a known state.
func (s ConnectivityState) Valid() bool {
	_, ok := rankTable[s]
	return ok
}

// Compare returns -1, 0 or +1 depending on whether s ranks below, equal to or
// above other.
func (s ConnectivityState) Compare(other ConnectivityState) int {
	a, b := s.Rank(), other.Rank()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether s ranks strictly below other.
func (s ConnectivityState) Less(other ConnectivityState) bool {
	return s.Compare(other) < 0
}

// AtLeast reports whether s ranks at or above other.
func (s ConnectivityState) AtLeast(other ConnectivityState) bool {
	return s.Compare(other) >= 0
}

// String returns the state identifier.
func (s ConnectivityState) String() string {
	return string(s)
}

// IsConnected reports a fully connected Wi-Fi or mobile data link.
func (s ConnectivityState) IsConnected() bool {
	return s == StateConnected || s == StateMobileConnected
}

// IsWifiConnected reports a fully connected Wi-Fi link.
func (s ConnectivityState) IsWifiConnected() bool {
	return s == StateConnected
}

// IsScanning reports whether Wi-Fi is scanning for an access point.
func (s ConnectivityState) IsScanning() bool {
	return s == StateScanning
}

// IsMobile reports whether the state describes the mobile data link.
func (s ConnectivityState) IsMobile() bool {
	return s.AtLeast(StateMobileConnecting)
}

// IsAccessPointDecided reports whether an access point has been selected,
// i.e. Scanning < s <= Connected.
func (s ConnectivityState) IsAccessPointDecided() bool {
	return StateScanning.Less(s) && s.Compare(StateConnected) <= 0
}

// NetworkType returns the user-facing label of the link type.
func (s ConnectivityState) NetworkType() string {
	if s.IsMobile() {
		return "Mobile Data"
	}
	return "Wi-Fi"
}
