package u2f

import "github.com/MattGorko/U2F-Emulated/pkg"

// APDU instruction bytes this handler recognizes.
const (
	InsRegister     = 0x01
	InsAuthenticate = 0x02
	InsVersion      = 0x03
)

// ClaStandard is the only APDU class byte this implementation accepts.
const ClaStandard = 0x00

// Status words, big-endian, appended as the last two bytes of every
// MSG response.
const (
	SWNoError                uint16 = 0x9000
	SWConditionsNotSatisfied uint16 = 0x6985
	SWWrongData              uint16 = 0x6A80
	SWWrongLength            uint16 = 0x6700
	SWClaNotSupported        uint16 = 0x6E00
	SWInsNotSupported        uint16 = 0x6D00
)

// headerLen is the fixed APDU header size: CLA, INS, P1, P2, and a
// 3-byte extended-length LC.
const headerLen = 7

type header struct {
	CLA, INS, P1, P2 byte
	LC               int
}

// parseHeader splits an APDU into its header and the LC-bounded
// request body, ignoring any trailing LE bytes.
func parseHeader(payload []byte) (header, []byte, error) {
	if len(payload) < headerLen {
		return header{}, nil, pkg.ErrWrongLength
	}
	h := header{
		CLA: payload[0],
		INS: payload[1],
		P1:  payload[2],
		P2:  payload[3],
		LC:  int(payload[4])<<16 | int(payload[5])<<8 | int(payload[6]),
	}
	body := payload[headerLen:]
	if len(body) < h.LC {
		return header{}, nil, pkg.ErrWrongLength
	}
	return h, body[:h.LC], nil
}

func statusOnly(sw uint16) []byte {
	return appendSW(nil, sw)
}

func appendSW(buf []byte, sw uint16) []byte {
	return append(buf, byte(sw>>8), byte(sw))
}
