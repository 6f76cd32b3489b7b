package link

import (
	"fmt"
	"strconv"
	"strings"
)

// Known schemes.
const (
	SchemeRadio = "radio"
	SchemeSim   = "sim"
	SchemeMQTT  = "mqtt"
	SchemeDebug = "debug"
)

// MaxRadioChannel is the highest radio channel.
const MaxRadioChannel = 125

// DataRate is the on-air data rate tag of a link.
type DataRate int

// Data rates.
const (
	DataRate250K DataRate = iota
	DataRate1M
	DataRate2M
)

var dataRateNames = [...]string{"250K", "1M", "2M"}

// DataRates lists all valid data rates in sweep order.
func DataRates() []DataRate {
	return []DataRate{DataRate250K, DataRate1M, DataRate2M}
}

// String implements fmt.Stringer.
func (r DataRate) String() string {
	if r.IsValid() {
		return dataRateNames[r]
	}
	return "DataRate(" + strconv.Itoa(int(r)) + ")"
}

// IsValid reports whether r is a known data rate.
func (r DataRate) IsValid() bool {
	return r >= DataRate250K && r <= DataRate2M
}

// ParseDataRate parses a data rate tag.
func ParseDataRate(s string) (DataRate, bool) {
	for n, name := range dataRateNames {
		if name == s {
			return DataRate(n), true
		}
	}
	return 0, false
}

// Address is a 5-byte radio address.
type Address uint64

const (
	// MaxAddress is the largest representable address.
	MaxAddress Address = 1<<40 - 1
	// DefaultAddress is the factory address of a Crazyflie.
	DefaultAddress Address = 0xE7E7E7E7E7

	addressDigits = 10
)

// Bytes returns the 5 address bytes, most significant first.
func (a Address) Bytes() []byte {
	b := make([]byte, 5)
	for i := range b {
		b[i] = byte(a >> uint(8*(4-i)))
	}
	return b
}

// String renders the address as 10 upper-case hex digits.
func (a Address) String() string {
	return fmt.Sprintf("%010X", uint64(a&MaxAddress))
}

// ParseAddress parses up to 10 hex digits.
func ParseAddress(s string) (Address, error) {
	if s == "" || len(s) > addressDigits {
		return 0, fmt.Errorf("address must be 1 to %d hex digits", addressDigits)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex address %q", s)
	}
	return Address(v), nil
}

// URI names one link endpoint:
//   <scheme>://<interface>/<channel>/<datarate>/<address>
type URI struct {
	Scheme    string
	Interface int
	Channel   int
	DataRate  DataRate
	Address   Address
}

// IsKnownScheme reports whether scheme is handled by any driver family.
func IsKnownScheme(scheme string) bool {
	switch scheme {
	case SchemeRadio, SchemeSim, SchemeMQTT, SchemeDebug:
		return true
	}
	return false
}

// ParseURI parses a link URI.
func ParseURI(s string) (URI, error) {
	var u URI
	pos := strings.Index(s, "://")
	if pos < 0 {
		return u, &ParseError{URI: s, Reason: "missing ://"}
	}
	u.Scheme = s[:pos]
	if !IsKnownScheme(u.Scheme) {
		return u, &ParseError{URI: s, Reason: fmt.Sprintf("unknown scheme %q", u.Scheme)}
	}
	fields := strings.Split(s[pos+3:], "/")
	if len(fields) != 4 {
		return u, &ParseError{URI: s, Reason: fmt.Sprintf("expect 4 fields, got %d", len(fields))}
	}
	iface, err := parseDecimal(fields[0])
	if err != nil {
		return u, &ParseError{URI: s, Reason: "invalid interface: " + err.Error()}
	}
	u.Interface = iface
	ch, err := parseDecimal(fields[1])
	if err != nil {
		return u, &ParseError{URI: s, Reason: "invalid channel: " + err.Error()}
	}
	if ch > MaxRadioChannel {
		return u, &ParseError{URI: s, Reason: fmt.Sprintf("channel %d out of range 0-%d", ch, MaxRadioChannel)}
	}
	u.Channel = ch
	rate, ok := ParseDataRate(fields[2])
	if !ok {
		return u, &ParseError{URI: s, Reason: fmt.Sprintf("unknown data rate %q", fields[2])}
	}
	u.DataRate = rate
	if u.Address, err = ParseAddress(fields[3]); err != nil {
		return u, &ParseError{URI: s, Reason: err.Error()}
	}
	return u, nil
}

// MustParseURI parses a URI and panics on error.
func MustParseURI(s string) URI {
	u, err := ParseURI(s)
	if err != nil {
		panic(err)
	}
	return u
}

// String formats the URI.
func (u URI) String() string {
	return fmt.Sprintf("%s://%d/%d/%s/%s", u.Scheme, u.Interface, u.Channel, u.DataRate, u.Address)
}

// WithScheme returns a copy of u using another scheme.
func (u URI) WithScheme(scheme string) URI {
	u.Scheme = scheme
	return u
}

// parseDecimal accepts only plain non-negative decimal numbers.
func parseDecimal(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%q is not decimal", s)
		}
	}
	return strconv.Atoi(s)
}
