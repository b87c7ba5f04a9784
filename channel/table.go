package channel

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/MattGorko/U2F-Emulated/hidpacket"
	"github.com/MattGorko/U2F-Emulated/pkg"
)

// Broadcast channel IDs reserved by the protocol.
const (
	CIDReservedZero = 0x00000000
	CIDBroadcast    = 0xFFFFFFFF
)

// entry is the live state the table keeps for one channel.
type entry struct {
	state        State
	inFlight     *Message
	lastActivity time.Time
}

// Outcome is the result of ingesting one report.
type Outcome int

// Outcome values.
const (
	// None means the report advanced channel state but produced no
	// complete message.
	None Outcome = iota
	// Complete means the report completed a message; Table.Ingest
	// returns it alongside this outcome.
	Complete
	// Errored means the report violated the protocol; the CID and a
	// sentinel error describe what to report back.
	Errored
)

// Table tracks every live channel's state machine and reassembles
// complete messages from the packet stream.
type Table struct {
	mutex    sync.Mutex
	channels map[uint32]*entry
	timeout  time.Duration
}

// NewTable constructs an empty channel table with the given
// transaction timeout.
func NewTable(timeout time.Duration) *Table {
	return &Table{
		channels: make(map[uint32]*entry),
		timeout:  timeout,
	}
}

// AllocateChannel returns a fresh, non-reserved channel ID not
// currently live in the table.
func (t *Table) AllocateChannel() (uint32, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for attempt := 0; attempt < 64; attempt++ {
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("%w: generate cid: %v", pkg.ErrTransport, err)
		}
		cid := binary.BigEndian.Uint32(buf[:])
		if cid == CIDReservedZero || cid == CIDBroadcast {
			continue
		}
		if _, live := t.channels[cid]; live {
			continue
		}
		t.channels[cid] = &entry{state: Idle, lastActivity: time.Now()}
		return cid, nil
	}
	return 0, fmt.Errorf("%w: exhausted cid allocation attempts", pkg.ErrInternal)
}

// Ingest feeds one decoded report through the channel's state machine.
// It returns the outcome, the completed message (only when outcome is
// Complete), the CID an error outcome concerns, and a sentinel error
// describing an Errored outcome.
func (t *Table) Ingest(init *hidpacket.Init, cont *hidpacket.Cont) (outcome Outcome, msg *Message, errCID uint32, err error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	now := time.Now()

	if init != nil {
		return t.ingestInit(init, now)
	}
	return t.ingestCont(cont, now)
}

// busyChannel reports a CID other than except that currently has a
// transaction in flight. Only one transaction may receive at a time
// across the whole table; a second channel attempting to start one is
// rejected with ERR_CHANNEL_BUSY while the first completes.
func (t *Table) busyChannel(except uint32) (uint32, bool) {
	for cid, e := range t.channels {
		if cid != except && e.state == Receiving {
			return cid, true
		}
	}
	return 0, false
}

func (t *Table) ingestInit(p *hidpacket.Init, now time.Time) (Outcome, *Message, uint32, error) {
	if _, busy := t.busyChannel(p.CID); busy {
		return Errored, nil, p.CID, pkg.ErrChannelBusy
	}

	e, live := t.channels[p.CID]
	if live && e.state == Receiving {
		if p.CMD != cmdInit {
			e.state = Idle
			e.inFlight = nil
			return Errored, nil, p.CID, pkg.ErrInvalidCmd
		}
		// INIT on an already-receiving channel aborts the in-flight
		// transaction and resynchronizes; fall through to start fresh.
	}

	if !live {
		e = &entry{}
		t.channels[p.CID] = e
	}

	m := newMessage(p.CID, p.CMD, p.BCNT, p.Data)
	e.lastActivity = now
	if m.complete() {
		e.state = Processing
		e.inFlight = nil
		return Complete, m, 0, nil
	}
	e.state = Receiving
	e.inFlight = m
	return None, nil, 0, nil
}

func (t *Table) ingestCont(p *hidpacket.Cont, now time.Time) (Outcome, *Message, uint32, error) {
	e, live := t.channels[p.CID]
	if !live || e.state != Receiving {
		if live {
			e.state = Idle
			e.inFlight = nil
		}
		return Errored, nil, p.CID, pkg.ErrInvalidSeq
	}

	expected := e.inFlight.nextSeq()
	if p.SEQ != expected {
		e.state = Idle
		e.inFlight = nil
		return Errored, nil, p.CID, pkg.ErrInvalidSeq
	}

	e.inFlight.append(p.Data)
	e.inFlight.seqReceived++
	e.lastActivity = now

	if e.inFlight.complete() {
		m := e.inFlight
		e.state = Processing
		e.inFlight = nil
		return Complete, m, 0, nil
	}
	return None, nil, 0, nil
}

// Serialize splits a message into the init packet followed by
// continuation packets needed to carry it, SEQ starting at 0.
func Serialize(cid uint32, cmd byte, payload []byte) [][]byte {
	bcnt := len(payload)
	reports := make([][]byte, 0, NbPackets(bcnt))

	take := bcnt
	if take > hidpacket.InitDataCap {
		take = hidpacket.InitDataCap
	}
	reports = append(reports, hidpacket.EncodeInit(cid, cmd, uint16(bcnt), payload[:take]))

	rest := payload[take:]
	seq := byte(0)
	for len(rest) > 0 {
		chunk := rest
		if len(chunk) > hidpacket.ContDataCap {
			chunk = chunk[:hidpacket.ContDataCap]
		}
		reports = append(reports, hidpacket.EncodeCont(cid, seq, chunk))
		rest = rest[len(chunk):]
		seq++
	}
	return reports
}

// Tick reaps channels whose last activity exceeds the table's
// transaction timeout while receiving, returning the CIDs that timed
// out so the caller can emit ERR_MSG_TIMEOUT for each.
func (t *Table) Tick(now time.Time) []uint32 {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var timedOut []uint32
	for cid, e := range t.channels {
		if e.state == Receiving && now.Sub(e.lastActivity) > t.timeout {
			e.state = Idle
			e.inFlight = nil
			timedOut = append(timedOut, cid)
		}
	}
	return timedOut
}

// MarkIdle resets a channel (after PROCESSING completes and a response
// was sent) back to IDLE so it may accept a new transaction.
func (t *Table) MarkIdle(cid uint32) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if e, ok := t.channels[cid]; ok {
		e.state = Idle
		e.lastActivity = time.Now()
	}
}

// Forget removes a channel from the table entirely.
func (t *Table) Forget(cid uint32) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.channels, cid)
}

// cmdInit is the U2FHID INIT command byte; duplicated from hidcmd to
// avoid an import cycle (hidcmd depends on channel, not vice versa).
const cmdInit = 0x86
