package u2f

// versionString is the literal U2F protocol version this emulator
// reports.
const versionString = "U2F_V2"

func (h *Handler) version() []byte {
	return appendSW([]byte(versionString), SWNoError)
}
