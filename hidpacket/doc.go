// Package hidpacket encodes and decodes the two U2FHID report variants
// exchanged over a [transport.Transport]: initialization packets, which
// carry a channel ID, command byte, and total byte count, and
// continuation packets, which carry a channel ID and sequence number.
//
// Neither variant is ever overlaid on the wire buffer as a Go struct;
// every field is read and written individually, matching the field
// order the wire format defines.
package hidpacket
