package channel

import (
	"time"

	"github.com/MattGorko/U2F-Emulated/hidpacket"
)

// State is the lifecycle stage of a single channel's in-flight
// transaction.
type State int

// Channel states.
const (
	// Idle means no transaction is in flight on this channel.
	Idle State = iota

	// Receiving means an init packet started a message and at least one
	// more continuation packet is still expected.
	Receiving

	// Processing means every byte of the in-flight message has been
	// gathered and it is queued for dispatch.
	Processing
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Receiving:
		return "receiving"
	case Processing:
		return "processing"
	default:
		return "unknown"
	}
}

// DefaultTransactionTimeout is the idle duration after which a
// receiving channel's in-flight message is dropped.
const DefaultTransactionTimeout = 500 * time.Millisecond

// Message is a fully or partially reassembled U2FHID message.
type Message struct {
	CID  uint32
	CMD  byte
	BCNT uint16

	// buf accumulates payload bytes in wire order as continuation
	// packets arrive; it grows to exactly BCNT bytes before the message
	// is considered complete.
	buf []byte

	// seqReceived counts continuation packets appended so far, giving
	// the next expected SEQ value without rescanning buf.
	seqReceived byte
}

// nextSeq returns the SEQ value the next continuation packet must
// carry.
func (m *Message) nextSeq() byte {
	return m.seqReceived
}

// newMessage starts a message from an init packet's fields.
func newMessage(cid uint32, cmd byte, bcnt uint16, initData []byte) *Message {
	m := &Message{CID: cid, CMD: cmd, BCNT: bcnt}
	take := len(initData)
	if take > int(bcnt) {
		take = int(bcnt)
	}
	m.buf = make([]byte, 0, bcnt)
	m.buf = append(m.buf, initData[:take]...)
	return m
}

// append adds a continuation packet's data to the message, trimming to
// BCNT if the final continuation overshoots (wire padding).
func (m *Message) append(data []byte) {
	remaining := int(m.BCNT) - len(m.buf)
	take := len(data)
	if take > remaining {
		take = remaining
	}
	if take > 0 {
		m.buf = append(m.buf, data[:take]...)
	}
}

// complete reports whether every BCNT byte has been gathered.
func (m *Message) complete() bool {
	return len(m.buf) >= int(m.BCNT)
}

// Payload returns the message's reassembled bytes.
func (m *Message) Payload() []byte {
	return m.buf
}

// NbPackets returns the number of packets (one init plus N
// continuations) needed to carry a message of the given byte count.
func NbPackets(bcnt int) int {
	if bcnt <= hidpacket.InitDataCap {
		return 1
	}
	remaining := bcnt - hidpacket.InitDataCap
	return 1 + (remaining+hidpacket.ContDataCap-1)/hidpacket.ContDataCap
}
