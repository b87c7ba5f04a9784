// Package hidcmd dispatches a fully reassembled U2FHID message to its
// command handler and produces the response to serialize back to the
// host.
//
// Handlers are selected from a table keyed by CMD rather than a switch
// ladder, closed over the channel table and the U2F message handler
// they need.
package hidcmd
