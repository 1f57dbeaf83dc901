// Package aprs implements the APRS-IS wire format: parsing of inbound station
// packets and encoding of login, filter, position and weather report lines.
// Everything in this package is pure; no function here performs I/O.
package aprs

import (
	"strings"
)

// ToCall is the destination (software identifier) used on every outbound packet.
const ToCall = "APHMEY"

// CalculatePasscode calculates the APRS-IS passcode for a given callsign
// using the pairwise XOR algorithm
func CalculatePasscode(callsign string) int {
	// Use only base callsign (no SSID), uppercased
	base := strings.ToUpper(strings.Split(callsign, "-")[0])

	code := 0x73E2

	// Process characters in pairs
	for i := 0; i < len(base); i += 2 {
		c1 := base[i]
		var c2 byte = 0
		if i+1 < len(base) {
			c2 = base[i+1]
		}
		code ^= int(c1) << 8
		code ^= int(c2)
	}

	return code & 0x7FFF
}

// EncodeLogin builds the APRS-IS login command (without line terminator).
func EncodeLogin(callsign, passcode, appVersion string) string {
	return "user " + callsign + " pass " + passcode + " vers " + appVersion
}

// EncodeFilter builds the server-side filter command.
func EncodeFilter(filter string) string {
	return "#filter " + filter
}

// EncodeMessage wraps an APRS information field into a complete TNC2 line
// originating from callsign and injected via TCPIP.
func EncodeMessage(callsign, payload string) string {
	return callsign + ">" + ToCall + ",TCPIP*:" + payload
}
