package netstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var homeWifi = &WifiInfo{
	SSID:          "home",
	BSSID:         "aa:bb:cc:dd:ee:ff",
	RSSI:          -60,
	FrequencyMHz:  5180,
	LinkSpeedMbps: 433,
	IPAddress:     "192.168.1.20",
	Gateway:       "192.168.1.1",
}

func connectedSignal() RawSignal {
	return RawSignal{
		RadioPower: PowerEnabled,
		Supplicant: SupplicantCompleted,
		Link:       &Link{Available: true, Phase: LinkConnected, Detail: LinkDetailConnected},
		Wifi:       homeWifi,
	}
}

func TestClassify_ConnectedCarriesSSID(t *testing.T) {
	snap, changed := Classify(connectedSignal(), nil, Options{})
	require.True(t, changed)
	assert.Equal(t, StateConnected, snap.State)
	assert.Equal(t, DetailConnected, snap.Detail)
	assert.Equal(t, "home", snap.NetworkName)
}

func TestClassify_DisabledWithoutMobileDisplay(t *testing.T) {
	snap, changed := Classify(RawSignal{RadioPower: PowerDisabled, MobileData: MobileConnected}, nil, Options{})
	require.True(t, changed)
	assert.Equal(t, StateDisabled, snap.State)
	assert.Equal(t, DetailUnavailable, snap.Detail)
	assert.False(t, snap.HasName())
}

func TestClassify_RadioPowerBranches(t *testing.T) {
	enabled := &StateSnapshot{State: StateEnabled, Detail: DetailEnabled}
	tests := []struct {
		name       string
		raw        RawSignal
		prev       *StateSnapshot
		wantState  ConnectivityState
		wantDetail string
	}{
		{"disabling", RawSignal{RadioPower: PowerDisabling}, enabled, StateDisabled, DetailUnavailable},
		{"enabling from disabled", RawSignal{RadioPower: PowerEnabling}, nil, StateEnabling, DetailEnabling},
		{"enabled bump", RawSignal{RadioPower: PowerEnabled}, &StateSnapshot{State: StateEnabling, Detail: DetailEnabling}, StateEnabled, DetailEnabled},
		{"obtaining address", RawSignal{RadioPower: PowerEnabled, Link: &Link{Available: true, Phase: LinkConnecting, Detail: LinkDetailObtainingAddress}}, enabled, StateObtainingAddress, DetailObtainingAddress},
		{"supplicant scanning", RawSignal{RadioPower: PowerEnabled, Supplicant: SupplicantScanning}, enabled, StateScanning, DetailScanning},
		{"supplicant associating", RawSignal{RadioPower: PowerEnabled, Supplicant: SupplicantAssociating}, enabled, StateAssociating, DetailAssociating},
		{"supplicant associated", RawSignal{RadioPower: PowerEnabled, Supplicant: SupplicantAssociated}, enabled, StateAssociating, DetailAssociated},
		{"supplicant handshake", RawSignal{RadioPower: PowerEnabled, Supplicant: SupplicantHandshake}, enabled, StateHandshaking, DetailHandshaking},
		{"supplicant completed", RawSignal{RadioPower: PowerEnabled, Supplicant: SupplicantCompleted}, enabled, StateSupplicantCompleted, DetailHandshakeCompleted},
		{"supplicant disconnected", RawSignal{RadioPower: PowerEnabled, Supplicant: SupplicantDisconnected}, enabled, StateScanning, DetailDisconnected},
		{"unavailable link falls through to supplicant", RawSignal{RadioPower: PowerEnabled, Supplicant: SupplicantCompleted, Link: &Link{Available: false, Phase: LinkConnected, Detail: LinkDetailConnected}}, enabled, StateSupplicantCompleted, DetailHandshakeCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, changed := Classify(tt.raw, tt.prev, Options{})
			require.True(t, changed)
			assert.Equal(t, tt.wantState, snap.State)
			assert.Equal(t, tt.wantDetail, snap.Detail)
		})
	}
}

func TestClassify_EnabledKeepsPreviousWhenNothingRecognized(t *testing.T) {
	prev := &StateSnapshot{State: StateConnected, Detail: DetailConnected, NetworkName: "home"}
	snap, changed := Classify(RawSignal{RadioPower: PowerEnabled}, prev, Options{})
	assert.False(t, changed)
	assert.Equal(t, *prev, snap)
}

func TestClassify_UnrecognizedFirstSignalIsNoChange(t *testing.T) {
	_, changed := Classify(RawSignal{}, nil, Options{})
	assert.False(t, changed)
}

func TestClassify_Idempotent(t *testing.T) {
	signals := []RawSignal{
		connectedSignal(),
		{RadioPower: PowerDisabled},
		{RadioPower: PowerEnabling},
		{RadioPower: PowerEnabled, Supplicant: SupplicantScanning},
		{RadioPower: PowerDisabled, MobileData: MobileConnected, Mobile: &MobileInfo{APN: "internet"}},
	}
	for _, raw := range signals {
		first, changed := Classify(raw, nil, Options{ShowMobileData: true})
		require.True(t, changed)
		second, changed := Classify(raw, &first, Options{ShowMobileData: true})
		assert.False(t, changed, "second classification of %+v", raw)
		assert.Equal(t, first, second)
	}
}

func TestClassify_DetailChangeIsAChange(t *testing.T) {
	prev := &StateSnapshot{State: StateAssociating, Detail: DetailAssociating}
	snap, changed := Classify(RawSignal{RadioPower: PowerEnabled, Supplicant: SupplicantAssociated}, prev, Options{})
	require.True(t, changed)
	assert.Equal(t, StateAssociating, snap.State)
	assert.Equal(t, DetailAssociated, snap.Detail)
}

func TestClassify_MilestoneNeverFallsBackToEnabling(t *testing.T) {
	for _, s := range []ConnectivityState{StateEnabled, StateScanning, StateAssociating, StateHandshaking,
		StateSupplicantCompleted, StateObtainingAddress, StateConnected} {
		prev := &StateSnapshot{State: s, Detail: "x"}
		snap, changed := Classify(RawSignal{RadioPower: PowerEnabling}, prev, Options{})
		assert.False(t, changed, "from %s", s)
		assert.Equal(t, s, snap.State)
	}

	// Passing through Disabled re-arms Enabling.
	disabled, changed := Classify(RawSignal{RadioPower: PowerDisabled}, &StateSnapshot{State: StateConnected, Detail: DetailConnected}, Options{})
	require.True(t, changed)
	snap, changed := Classify(RawSignal{RadioPower: PowerEnabling}, &disabled, Options{})
	require.True(t, changed)
	assert.Equal(t, StateEnabling, snap.State)
}

func TestClassify_MobileOverride(t *testing.T) {
	mobile := &MobileInfo{APN: "internet.carrier", IPAddress: "10.0.0.5"}
	tests := []struct {
		name      string
		raw       RawSignal
		opts      Options
		wantState ConnectivityState
		wantName  string
	}{
		{"disabled radio connecting mobile", RawSignal{RadioPower: PowerDisabled, MobileData: MobileConnecting, Mobile: mobile}, Options{ShowMobileData: true}, StateMobileConnecting, "internet.carrier"},
		{"disabled radio connected mobile", RawSignal{RadioPower: PowerDisabled, MobileData: MobileConnected, Mobile: mobile}, Options{ShowMobileData: true}, StateMobileConnected, "internet.carrier"},
		{"disabled radio no mobile", RawSignal{RadioPower: PowerDisabled, MobileData: MobileOther}, Options{ShowMobileData: true}, StateDisabled, ""},
		{"scanning hidden shows mobile", RawSignal{RadioPower: PowerEnabled, Supplicant: SupplicantScanning, MobileData: MobileConnected, Mobile: mobile}, Options{ShowMobileData: true, ClearOnScanning: true}, StateMobileConnected, "internet.carrier"},
		{"scanning visible keeps wifi", RawSignal{RadioPower: PowerEnabled, Supplicant: SupplicantScanning, MobileData: MobileConnected, Mobile: mobile}, Options{ShowMobileData: true}, StateScanning, ""},
		{"connected wifi never overridden", RawSignal{RadioPower: PowerEnabled, Link: &Link{Available: true, Phase: LinkConnected, Detail: LinkDetailConnected}, MobileData: MobileConnected, Wifi: homeWifi, Mobile: mobile}, Options{ShowMobileData: true, ClearOnScanning: true}, StateConnected, "home"},
	}

	prev := &StateSnapshot{State: StateEnabled, Detail: DetailEnabled}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, changed := Classify(tt.raw, prev, tt.opts)
			require.True(t, changed)
			assert.Equal(t, tt.wantState, snap.State)
			assert.Equal(t, tt.wantName, snap.NetworkName)
		})
	}
}

func TestClassify_NameDomain(t *testing.T) {
	mobile := &MobileInfo{APN: "apn"}
	for _, s := range AllStates() {
		snap := StateSnapshot{State: s, Wifi: homeWifi, Mobile: mobile}
		name := networkName(snap)
		want := StateScanning.Less(s) && s.Compare(StateConnected) <= 0 || s.AtLeast(StateMobileConnecting)
		assert.Equal(t, want, name != "", "state %s", s)
	}
}

func TestClassify_SnapshotDoesNotAliasRawInfo(t *testing.T) {
	wifi := *homeWifi
	raw := connectedSignal()
	raw.Wifi = &wifi

	snap, changed := Classify(raw, nil, Options{})
	require.True(t, changed)
	wifi.SSID = "mutated"
	assert.Equal(t, "home", snap.Wifi.SSID)
}
