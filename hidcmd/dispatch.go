package hidcmd

import (
	"encoding/binary"

	"github.com/MattGorko/U2F-Emulated/channel"
	"github.com/MattGorko/U2F-Emulated/pkg"
)

// U2FHID command bytes.
const (
	CmdInit  = 0x86
	CmdPing  = 0x81
	CmdWink  = 0x88
	CmdMsg   = 0x83
	CmdError = 0xBF
)

// ProtocolVersion is the U2FHID protocol version reported by INIT.
const ProtocolVersion = 2

// CapWink advertises WINK support in the INIT response's CAP_FLAGS byte.
const CapWink = 0x01

// initNonceLen is the fixed length of an INIT request payload.
const initNonceLen = 8

// DeviceVersion is the firmware version triple reported by INIT.
type DeviceVersion struct {
	Major byte
	Minor byte
	Build byte
}

// MsgHandler processes a U2F APDU payload (the contents of a MSG
// command) and returns the APDU response payload, including its
// trailing status word.
type MsgHandler func(payload []byte) []byte

// Response is one HID command result: the CMD byte and payload to
// serialize back on the given CID.
type Response struct {
	CID     uint32
	CMD     byte
	Payload []byte
}

// Dispatcher routes a complete message to its HID command handler.
type Dispatcher struct {
	table   *channel.Table
	version DeviceVersion
	msg     MsgHandler
}

// NewDispatcher constructs a Dispatcher. msg handles MSG payloads;
// table is consulted by INIT to allocate fresh channel IDs.
func NewDispatcher(table *channel.Table, version DeviceVersion, msg MsgHandler) *Dispatcher {
	return &Dispatcher{table: table, version: version, msg: msg}
}

type handlerFunc func(*Dispatcher, *channel.Message) (Response, error)

var handlers = map[byte]handlerFunc{
	CmdInit: (*Dispatcher).handleInit,
	CmdPing: (*Dispatcher).handlePing,
	CmdWink: (*Dispatcher).handleWink,
	CmdMsg:  (*Dispatcher).handleMsg,
}

// Dispatch routes m to its handler and returns the response to send.
// An unrecognized CMD, or a handler error, produces an ERROR response
// on the same channel instead.
func (d *Dispatcher) Dispatch(m *channel.Message) Response {
	h, ok := handlers[m.CMD]
	if !ok {
		return errorResponse(m.CID, pkg.ErrInvalidCmd)
	}
	resp, err := h(d, m)
	if err != nil {
		return errorResponse(m.CID, err)
	}
	return resp
}

func errorResponse(cid uint32, err error) Response {
	return Response{CID: cid, CMD: CmdError, Payload: []byte{pkg.HIDErrorCode(err)}}
}

func (d *Dispatcher) handleInit(m *channel.Message) (Response, error) {
	payload := m.Payload()
	if len(payload) != initNonceLen {
		return Response{}, pkg.ErrInvalidLen
	}

	cid := m.CID
	if cid == channel.CIDBroadcast {
		allocated, err := d.table.AllocateChannel()
		if err != nil {
			return Response{}, err
		}
		cid = allocated
	}

	resp := make([]byte, 0, initNonceLen+4+5)
	resp = append(resp, payload...)
	var cidBuf [4]byte
	binary.BigEndian.PutUint32(cidBuf[:], cid)
	resp = append(resp, cidBuf[:]...)
	resp = append(resp, ProtocolVersion, d.version.Major, d.version.Minor, d.version.Build, CapWink)

	return Response{CID: cid, CMD: CmdInit, Payload: resp}, nil
}

func (d *Dispatcher) handlePing(m *channel.Message) (Response, error) {
	return Response{CID: m.CID, CMD: CmdPing, Payload: m.Payload()}, nil
}

func (d *Dispatcher) handleWink(m *channel.Message) (Response, error) {
	return Response{CID: m.CID, CMD: CmdWink, Payload: nil}, nil
}

func (d *Dispatcher) handleMsg(m *channel.Message) (Response, error) {
	return Response{CID: m.CID, CMD: CmdMsg, Payload: d.msg(m.Payload())}, nil
}
