package linkstats

import "strings"

// ouiVendors maps MAC prefixes to vendors seen around treadmill setups:
// strap makers plus the usual host adapters. Purely informational, used to
// make scan logs readable.
var ouiVendors = map[string]string{
	"A0:9E:1A": "Polar Electro",
	"00:22:D0": "Polar Electro",
	"00:E0:4C": "Realtek",
	"E4:5F:01": "Raspberry Pi",
}

// Vendor guesses the device vendor from its MAC address prefix.
func Vendor(mac string) string {
	if len(mac) < 8 {
		return "unknown"
	}
	if v, ok := ouiVendors[strings.ToUpper(mac[:8])]; ok {
		return v
	}
	return "unknown"
}
