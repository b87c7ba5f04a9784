// Package u2f parses U2F APDUs carried in U2FHID MSG payloads and
// dispatches them to the REGISTER, AUTHENTICATE, and VERSION
// handlers.
//
// Every multi-byte field in an APDU is big-endian; response payloads
// always end with a two-byte status word, even on error — APDU-level
// errors never surface as a HID ERROR frame.
package u2f
