// Package engine wires a transport, channel table, and command
// dispatcher into a running authenticator: one goroutine reads reports
// and drives the reassembler and dispatcher synchronously, a second
// goroutine reaps idle channels on a ticker.
package engine
