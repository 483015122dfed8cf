package netstate

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	minRSSI = -100
	maxRSSI = -55

	// SignalLevels is the number of buckets SignalLevel maps RSSI into.
	SignalLevels = 5
)

var numberPrinter = message.NewPrinter(language.English)

// NetworkType returns "Wi-Fi" or "Mobile Data" for the snapshot state.
func (s StateSnapshot) NetworkType() string {
	return s.State.NetworkType()
}

// IPAddress returns the address of the link the snapshot describes.
func (s StateSnapshot) IPAddress() string {
	switch {
	case s.State.IsWifiConnected() && s.Wifi != nil:
		return s.Wifi.IPAddress
	case s.State == StateMobileConnected && s.Mobile != nil:
		return s.Mobile.IPAddress
	}
	return ""
}

// DisplayDetail returns the detail text, replaced by "IP:<addr>" once the
// link is connected and an address is known.
func (s StateSnapshot) DisplayDetail() string {
	if s.State.IsConnected() {
		if ip := s.IPAddress(); ip != "" {
			return "IP:" + ip
		}
	}
	return s.Detail
}

// ExtraInfo describes signal level, channel and link speed of the selected
// access point. It is empty until an access point has been decided.
func (s StateSnapshot) ExtraInfo() string {
	if !s.State.IsAccessPointDecided() || s.Wifi == nil {
		return ""
	}

	lines := []string{
		fmt.Sprintf("Signal: %d/%d (%ddBm)", SignalLevel(s.Wifi.RSSI, SignalLevels), SignalLevels-1, s.Wifi.RSSI),
	}
	if freq := s.Wifi.FrequencyMHz; freq > 0 {
		if ch := FrequencyToChannel(freq); ch > 0 {
			lines = append(lines, numberPrinter.Sprintf("Channel: %dCH (%dMHz)", ch, freq))
		}
	}
	if speed := s.Wifi.LinkSpeedMbps; speed > 0 {
		lines = append(lines, fmt.Sprintf("Speed: %dMbps", speed))
	}
	return strings.Join(lines, "\n")
}

// FrequencyToChannel maps a Wi-Fi center frequency to its channel number.
// It returns -1 for frequencies outside the 2.4 GHz and 5 GHz bands.
func FrequencyToChannel(freqMHz int) int {
	switch {
	case freqMHz >= 2412 && freqMHz <= 2484:
		return (freqMHz-2412)/5 + 1
	case freqMHz >= 5170 && freqMHz <= 5825:
		return (freqMHz-5170)/5 + 34
	default:
		return -1
	}
}

// SignalLevel buckets an RSSI reading into levels 0..numLevels-1.
func SignalLevel(rssi, numLevels int) int {
	if numLevels < 2 {
		return 0
	}
	switch {
	case rssi <= minRSSI:
		return 0
	case rssi >= maxRSSI:
		return numLevels - 1
	}
	return (rssi - minRSSI) * (numLevels - 1) / (maxRSSI - minRSSI)
}
