// Package vendorc implements the 0x1915 protocol family: 64-byte framed
// registers behind a secure-unlock gate, with polling-rate-dependent
// performance registers.
package vendorc

import (
	"bytes"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/protocol"
)

const (
	frameLen = 64

	cmdReportID    byte = 0x08
	secureReportID byte = 0x09

	rwWrite byte = 0x01
	rwRead  byte = 0x00
)

// header is the constant frame header at bytes 1-4.
var header = [4]byte{0x00, 0x00, 0x01, 0x00}

// buildFrame packs one 64-byte frame: opcode, constant header,
// length-or-index, R/W flag, then data left-aligned.
func buildFrame(opcode, lenOrIdx, rw byte, data []byte) []byte {
	f := make([]byte, frameLen)
	f[0] = opcode
	copy(f[1:5], header[:])
	f[5] = lenOrIdx
	f[6] = rw
	copy(f[7:], data)
	return f
}

// readFrame builds the read request for a register.
func readFrame(opcode, lenOrIdx byte) []byte {
	return buildFrame(opcode, lenOrIdx, rwRead, nil)
}

// pack frames a WriteSpec into a Command on the command report.
func pack(ws protocol.WriteSpec) protocol.Command {
	return protocol.Command{
		ReportID:  cmdReportID,
		Payload:   buildFrame(ws.Opcode, ws.LenOrIdx, rwWrite, ws.Data),
		WaitMS:    ws.WaitMS,
		Opcode:    ws.Opcode,
		Sensitive: ws.Sensitive,
	}
}

// Response is one parsed reply frame.
type Response struct {
	Opcode      byte
	DeclaredLen int
	Data        []byte
	Raw         []byte
}

// parseResponse tries the three reply layouts the firmware family emits and
// selects the first whose reconstructed opcode matches the expected one.
func parseResponse(raw []byte, expected byte) (Response, error) {
	if len(raw) < 8 {
		return Response{}, cfgerror.IoReadFail("reply frame too short")
	}
	type layout struct {
		opcode byte
		length int
		data   []byte
	}
	candidates := []layout{
		// Report-id echo: the stack prepends the report id.
		{opcode: raw[1], length: int(raw[6]), data: raw[8:]},
		// Mirror of the write framing.
		{opcode: raw[0], length: int(raw[5]), data: raw[7:]},
		// Legacy short header.
		{opcode: raw[2], length: int(raw[3]), data: raw[4:]},
	}
	var observed byte
	for i, c := range candidates {
		if i == 0 {
			observed = c.opcode
		}
		if c.opcode != expected {
			continue
		}
		data := c.data
		if c.length > 0 && c.length <= len(data) {
			data = data[:c.length]
		} else {
			data = bytes.TrimRight(data, "\x00")
		}
		return Response{Opcode: c.opcode, DeclaredLen: c.length, Data: data, Raw: raw}, nil
	}
	return Response{}, cfgerror.IoCmdMismatch(expected, observed)
}

// Secure gate payloads: full frames on the secure report id. The unlock and
// lock forms differ only in the trailing flag byte.
var (
	unlockPayload = buildFrame(opSecure, 0x01, rwWrite, []byte{0x01})
	lockPayload   = buildFrame(opSecure, 0x01, rwWrite, []byte{0x00})
)

func gate() *protocol.Gate {
	return &protocol.Gate{
		ReportID: secureReportID,
		Unlock:   append([]byte(nil), unlockPayload...),
		Lock:     append([]byte(nil), lockPayload...),
		WaitMS:   20,
	}
}
