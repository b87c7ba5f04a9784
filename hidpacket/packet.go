package hidpacket

import (
	"encoding/binary"
	"fmt"

	"github.com/MattGorko/U2F-Emulated/pkg"
	"github.com/MattGorko/U2F-Emulated/transport"
)

// TypeMask is the high bit of the packet's fifth byte (offset 4)
// that discriminates an initialization packet from a continuation
// packet.
const TypeMask = 0x80

// InitHeaderLen is the number of header bytes in an initialization
// packet: CID(4) + CMD(1) + BCNT(2).
const InitHeaderLen = 7

// ContHeaderLen is the number of header bytes in a continuation
// packet: CID(4) + SEQ(1).
const ContHeaderLen = 5

// InitDataCap is the number of payload bytes an initialization packet
// carries.
const InitDataCap = transport.ReportLen - InitHeaderLen

// ContDataCap is the number of payload bytes a continuation packet
// carries.
const ContDataCap = transport.ReportLen - ContHeaderLen

// MaxSeq is the largest sequence number a continuation packet may
// carry; SEQ is a 7-bit field (bit 7 clear distinguishes it from an
// init packet).
const MaxSeq = 0x7F

// Init is a decoded initialization packet.
type Init struct {
	CID uint32
	// CMD is the full command byte as transmitted, including its
	// always-set high bit (e.g. 0x86 for INIT); command constants are
	// defined with that bit already set.
	CMD  byte
	BCNT uint16
	Data []byte // exactly InitDataCap bytes, zero-padded past BCNT
}

// Cont is a decoded continuation packet.
type Cont struct {
	CID  uint32
	SEQ  byte
	Data []byte // exactly ContDataCap bytes
}

// EncodeInit builds an initialization packet. data longer than
// InitDataCap is truncated by the caller's responsibility; shorter
// data is zero-padded.
func EncodeInit(cid uint32, cmd byte, bcnt uint16, data []byte) []byte {
	report := make([]byte, transport.ReportLen)
	binary.BigEndian.PutUint32(report[0:4], cid)
	report[4] = cmd | TypeMask
	binary.BigEndian.PutUint16(report[5:7], bcnt)
	copy(report[InitHeaderLen:], data)
	return report
}

// EncodeCont builds a continuation packet. data longer than
// ContDataCap is truncated by the caller's responsibility; shorter
// data is zero-padded.
func EncodeCont(cid uint32, seq byte, data []byte) []byte {
	report := make([]byte, transport.ReportLen)
	binary.BigEndian.PutUint32(report[0:4], cid)
	report[4] = seq &^ TypeMask
	copy(report[ContHeaderLen:], data)
	return report
}

// Decode classifies report as an Init or a Cont and parses its
// fields. report must be exactly transport.ReportLen bytes.
func Decode(report []byte) (init *Init, cont *Cont, err error) {
	if len(report) != transport.ReportLen {
		return nil, nil, fmt.Errorf("%w: report is %d bytes, want %d", pkg.ErrMalformedReport, len(report), transport.ReportLen)
	}

	cid := binary.BigEndian.Uint32(report[0:4])
	if report[4]&TypeMask != 0 {
		data := make([]byte, InitDataCap)
		copy(data, report[InitHeaderLen:])
		return &Init{
			CID:  cid,
			CMD:  report[4],
			BCNT: binary.BigEndian.Uint16(report[5:7]),
			Data: data,
		}, nil, nil
	}

	data := make([]byte, ContDataCap)
	copy(data, report[ContHeaderLen:])
	return nil, &Cont{
		CID:  cid,
		SEQ:  report[4],
		Data: data,
	}, nil
}
