package link

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	u, err := ParseURI("radio://0/80/2M/E7E7E7E701")
	require.NoError(t, err)
	require.Equal(t, URI{
		Scheme:    SchemeRadio,
		Interface: 0,
		Channel:   80,
		DataRate:  DataRate2M,
		Address:   0xE7E7E7E701,
	}, u)
	require.Equal(t, "radio://0/80/2M/E7E7E7E701", u.String())
}

func TestParseURIAcceptsLowerHex(t *testing.T) {
	u, err := ParseURI("sim://1/0/250K/e7e7e7e7e7")
	require.NoError(t, err)
	require.Equal(t, DefaultAddress, u.Address)
	require.Equal(t, DataRate250K, u.DataRate)
	require.Equal(t, "sim://1/0/250K/E7E7E7E7E7", u.String())
}

func TestURIRoundTrip(t *testing.T) {
	schemes := []string{SchemeRadio, SchemeSim, SchemeMQTT, SchemeDebug}
	addrs := []Address{0, 1, 0xE7E7E7E70A, DefaultAddress, MaxAddress}
	for _, scheme := range schemes {
		for _, rate := range DataRates() {
			for _, ch := range []int{0, 2, 80, MaxRadioChannel} {
				for n, addr := range addrs {
					u := URI{Scheme: scheme, Interface: n, Channel: ch, DataRate: rate, Address: addr}
					parsed, err := ParseURI(u.String())
					require.NoError(t, err)
					require.Equal(t, u, parsed)
				}
			}
		}
	}
}

func TestParseURIErrors(t *testing.T) {
	testCases := []string{
		"",
		"radio:/0/80/2M/E7E7E7E7E7",
		"usb://0/80/2M/E7E7E7E7E7",
		"radio://0/80/2M",
		"radio://0/80/2M/E7E7E7E7E7/1",
		"radio://x/80/2M/E7E7E7E7E7",
		"radio://-1/80/2M/E7E7E7E7E7",
		"radio://0/126/2M/E7E7E7E7E7",
		"radio://0/+1/2M/E7E7E7E7E7",
		"radio://0/80/3M/E7E7E7E7E7",
		"radio://0/80/2m/E7E7E7E7E7",
		"radio://0/80/2M/G7E7E7E7E7",
		"radio://0/80/2M/E7E7E7E7E701",
		"radio://0/80/2M/",
	}
	for _, s := range testCases {
		_, err := ParseURI(s)
		require.Errorf(t, err, "%q", s)
		var pe *ParseError
		require.Truef(t, errors.As(err, &pe), "%q", s)
		require.Equal(t, s, pe.URI)
	}
}

func TestAddressBytes(t *testing.T) {
	require.Equal(t, []byte{0xE7, 0xE7, 0xE7, 0xE7, 0x01}, Address(0xE7E7E7E701).Bytes())
	require.Equal(t, "0000000001", Address(1).String())
}

func TestDataRate(t *testing.T) {
	for _, rate := range DataRates() {
		parsed, ok := ParseDataRate(rate.String())
		require.True(t, ok)
		require.Equal(t, rate, parsed)
	}
	require.False(t, DataRate(3).IsValid())
}
