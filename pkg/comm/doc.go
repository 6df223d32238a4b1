// Package comm implements the drive command/response protocol engine.
package comm

// The protocol runs over any reliable or unreliable byte stream between a
// host and a motor drive. Every packet is
//
//	[tag][length][body...][checksum]
//
// where length counts every byte of the packet and checksum makes the byte
// sum of the whole packet zero (mod 256). Three tags exist: command packets
// (host to drive), status packets (drive to host, echoing the command byte)
// and real-time data packets (drive to host, periodic telemetry).
//
// There is no sequencing and no negative acknowledgement. A receiver
// resynchronizes on the next tag byte after garbage; a malformed request
// still gets an acknowledgement that carries no data.
//
// The Engine is transport agnostic: a transport feeds received bytes to
// Engine.Write and provides a Port for the outgoing direction.
