// Package crtp provides the CRTP packet format.
package crtp

// CRTP (Crazy Real-Time Protocol) is communicated between the client and
// the flight controller over any link (radio, simulator, network).
//
// Every frame starts with one header byte selecting a port (logical
// subsystem) and a channel (sub-stream within the port), followed by up to
// MaxPayload bytes which are opaque to the link layer.
//
//   7 6 5 4 3 2 1 0
//  +-------+---+---+
//  | port  |lnk|ch |
//  +-------+---+---+
//
// The link bits are always written as 0b11 and ignored on decode.
