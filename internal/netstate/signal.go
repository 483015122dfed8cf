package netstate

// RadioPower is the coarse power state of the Wi-Fi radio.
type RadioPower string

const (
	PowerUnknown   RadioPower = ""
	PowerDisabled  RadioPower = "disabled"
	PowerDisabling RadioPower = "disabling"
	PowerEnabling  RadioPower = "enabling"
	PowerEnabled   RadioPower = "enabled"
)

// SupplicantState is the association/authentication progress of the supplicant.
// SupplicantNone means the supplicant has not reported anything yet.
type SupplicantState string

const (
	SupplicantNone         SupplicantState = ""
	SupplicantDisconnected SupplicantState = "disconnected"
	SupplicantScanning     SupplicantState = "scanning"
	SupplicantAssociating  SupplicantState = "associating"
	SupplicantAssociated   SupplicantState = "associated"
	SupplicantHandshake    SupplicantState = "handshake"
	SupplicantCompleted    SupplicantState = "completed"
)

// LinkPhase is the coarse IP-layer phase of the Wi-Fi link.
type LinkPhase string

const (
	LinkConnecting LinkPhase = "connecting"
	LinkConnected  LinkPhase = "connected"
)

// LinkDetail is the detailed sub-phase of the Wi-Fi link.
type LinkDetail string

const (
	LinkDetailObtainingAddress LinkDetail = "obtaining_address"
	LinkDetailConnected        LinkDetail = "connected"
)

// Link describes the IP-layer status of the Wi-Fi interface.
type Link struct {
	Available bool       `json:"available" yaml:"available"`
	Phase     LinkPhase  `json:"phase" yaml:"phase"`
	Detail    LinkDetail `json:"detail" yaml:"detail"`
}

// MobileDataState is the state of the cellular data connection.
type MobileDataState string

const (
	MobileOther      MobileDataState = ""
	MobileConnecting MobileDataState = "connecting"
	MobileConnected  MobileDataState = "connected"
)

// WifiInfo carries descriptive data about the current Wi-Fi association.
// Zero values mean "not reported".
type WifiInfo struct {
	SSID          string `json:"ssid,omitempty" yaml:"ssid"`
	BSSID         string `json:"bssid,omitempty" yaml:"bssid"`
	RSSI          int    `json:"rssi,omitempty" yaml:"rssi"`
	FrequencyMHz  int    `json:"frequency_mhz,omitempty" yaml:"frequency_mhz"`
	LinkSpeedMbps int    `json:"link_speed_mbps,omitempty" yaml:"link_speed_mbps"`
	IPAddress     string `json:"ip_address,omitempty" yaml:"ip_address"`
	Gateway       string `json:"gateway,omitempty" yaml:"gateway"`
}

// MobileInfo carries descriptive data about the mobile data connection.
type MobileInfo struct {
	APN       string `json:"apn,omitempty" yaml:"apn"`
	IPAddress string `json:"ip_address,omitempty" yaml:"ip_address"`
}

// RawSignal is one observation of every platform input the classifier reads.
type RawSignal struct {
	RadioPower RadioPower      `json:"radio_power" yaml:"radio_power"`
	Supplicant SupplicantState `json:"supplicant,omitempty" yaml:"supplicant"`
	Link       *Link           `json:"link,omitempty" yaml:"link"`
	MobileData MobileDataState `json:"mobile_data,omitempty" yaml:"mobile_data"`
	Wifi       *WifiInfo       `json:"wifi,omitempty" yaml:"wifi"`
	Mobile     *MobileInfo     `json:"mobile,omitempty" yaml:"mobile"`
}

// Gateway returns the reported Wi-Fi gateway address, if any.
func (r RawSignal) Gateway() string {
	if r.Wifi == nil {
		return ""
	}
	return r.Wifi.Gateway
}

func (l *Link) is(phase LinkPhase, detail LinkDetail) bool {
	return l != nil && l.Available && l.Phase == phase && l.Detail == detail
}
