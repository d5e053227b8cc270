// Package vendora implements the 0x093A protocol family: 32-byte fixed
// frames with the opcode in byte 0 and a zero-padded payload.
package vendora

import (
	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/protocol"
)

const (
	frameLen = 32

	cmdReportID byte = 0x05

	// readBit turns a register opcode into its read request form.
	readBit byte = 0x80
)

// buildFrame packs one 32-byte frame: opcode then payload, zero padded.
func buildFrame(opcode byte, data []byte) []byte {
	f := make([]byte, frameLen)
	f[0] = opcode
	copy(f[1:], data)
	return f
}

func pack(ws protocol.WriteSpec) protocol.Command {
	return protocol.Command{
		ReportID:  cmdReportID,
		Payload:   buildFrame(ws.Opcode, ws.Data),
		WaitMS:    ws.WaitMS,
		Opcode:    ws.Opcode,
		Sensitive: ws.Sensitive,
	}
}

// parseResponse checks the opcode echo in byte 0 and returns the payload
// with trailing padding intact (register decoders know their lengths).
func parseResponse(raw []byte, expected byte) ([]byte, error) {
	if len(raw) < 2 {
		return nil, cfgerror.IoReadFail("reply frame too short")
	}
	if raw[0] != expected {
		return nil, cfgerror.IoCmdMismatch(expected, raw[0])
	}
	return raw[1:], nil
}

// The secure bracket around button-map access: a fixed frame with the
// unlock flag in byte 1.
const opSecure byte = 0x1F

func gate() *protocol.Gate {
	return &protocol.Gate{
		ReportID: cmdReportID,
		Unlock:   buildFrame(opSecure, []byte{0x01}),
		Lock:     buildFrame(opSecure, []byte{0x00}),
		WaitMS:   15,
	}
}
