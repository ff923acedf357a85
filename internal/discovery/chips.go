// internal/discovery/chips.go
package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// Chip describes a USB-serial adapter the logger cables are built with
type Chip struct {
	Vendor     string
	Model      string
	Confidence float64
}

type usbID struct {
	vendor, product uint16
}

// knownChips lists the adapters found in logger interface cables
var knownChips = map[usbID]Chip{
	{0x0403, 0x6001}: {Vendor: "FTDI", Model: "FT232R", Confidence: 0.9},
	{0x0403, 0x6015}: {Vendor: "FTDI", Model: "FT231X", Confidence: 0.9},
	{0x0403, 0x6010}: {Vendor: "FTDI", Model: "FT2232", Confidence: 0.7},
	{0x10C4, 0xEA60}: {Vendor: "Silicon Labs", Model: "CP210x", Confidence: 0.7},
	{0x067B, 0x2303}: {Vendor: "Prolific", Model: "PL2303", Confidence: 0.7},
	{0x1A86, 0x7523}: {Vendor: "WCH", Model: "CH340", Confidence: 0.6},
	{0x1A86, 0x5523}: {Vendor: "WCH", Model: "CH341", Confidence: 0.6},
}

// LookupChip identifies an adapter by vendor and product ID
func LookupChip(vendor, product uint16) (Chip, bool) {
	chip, ok := knownChips[usbID{vendor, product}]
	return chip, ok
}

// KnownVendor reports whether any listed adapter has the vendor ID
func KnownVendor(vendor uint16) bool {
	for id := range knownChips {
		if id.vendor == vendor {
			return true
		}
	}
	return false
}

// ParseUSBID parses a hex vendor or product ID as reported by the OS
func ParseUSBID(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid usb id %q: %w", s, err)
	}
	return uint16(v), nil
}

// FormatUSBID renders an ID the way the scanners report it
func FormatUSBID(id uint16) string {
	return fmt.Sprintf("0x%04X", id)
}
