package sim

import "github.com/robotalks/crtplink/pkg/link"

// Entries in the address table are consecutive from FirstAddress, all on
// the same channel and data rate.
const (
	TableSize                  = 10
	FirstAddress  link.Address = 0xE7E7E7E701
	TableChannel               = 80
	TableDataRate              = link.DataRate2M
)

var table = func() (entries [TableSize]link.URI) {
	for n := range entries {
		entries[n] = link.URI{
			Scheme:   link.SchemeRadio,
			Channel:  TableChannel,
			DataRate: TableDataRate,
			Address:  FirstAddress + link.Address(n),
		}
	}
	return
}()

// Entries returns all URIs of the address table in address order.
func Entries() []link.URI {
	entries := make([]link.URI, TableSize)
	copy(entries, table[:])
	return entries
}

// Lookup finds the table entry of addr.
func Lookup(addr link.Address) (link.URI, bool) {
	if addr < FirstAddress || addr >= FirstAddress+TableSize {
		return link.URI{}, false
	}
	return table[addr-FirstAddress], true
}
