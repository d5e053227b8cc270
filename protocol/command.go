// Package protocol implements the vendor-independent engine layers: the
// command model, the declarative SPEC table shape, the planner that turns
// patches into command sequences, and the queued transport that executes
// them against a HID device.
package protocol

import "fmt"

// AckMatcher describes the input report that acknowledges a sent command.
// Transport holds it until a matching report arrives or the ack window
// expires.
type AckMatcher struct {
	ReportID byte
	Match    func(data []byte) bool
}

// Command is one planned device write. Produced by the planner, consumed
// exactly once by Transport.
type Command struct {
	ReportID byte
	Payload  []byte
	// WaitMS is slept after the write completes (and after the ack for
	// acked commands) before the next command starts.
	WaitMS uint16
	// Opcode is the logical register this command writes; it feeds the
	// dedup key and debug logs.
	Opcode    byte
	Sensitive bool
	Ack       *AckMatcher
	// ProfileStream marks members of an atomic streaming group: an ack
	// timeout anywhere in the group retries the whole group.
	ProfileStream     bool
	RetryOnAckTimeout bool
	// gate marks injected unlock/lock commands so dedup never folds them.
	gate bool
}

// IsGate reports whether the command is an injected unlock/lock bracket.
func (c Command) IsGate() bool { return c.gate }

func (c Command) String() string {
	return fmt.Sprintf("cmd{rid=0x%02x op=0x%02x len=%d wait=%dms sensitive=%t}",
		c.ReportID, c.Opcode, len(c.Payload), c.WaitMS, c.Sensitive)
}

// WriteSpec is the output of a Direct or Compound SPEC entry's encoder,
// before the vendor codec packs it into a frame.
type WriteSpec struct {
	Opcode    byte
	LenOrIdx  byte
	Data      []byte
	Sensitive bool
	WaitMS    uint16
}

// Gate is a vendor's secure unlock/lock bracket.
type Gate struct {
	ReportID byte
	Unlock   []byte
	Lock     []byte
	WaitMS   uint16
}

// UnlockCommand builds the gate's opening command.
func (g *Gate) UnlockCommand() Command {
	return Command{ReportID: g.ReportID, Payload: append([]byte(nil), g.Unlock...), WaitMS: g.WaitMS, Opcode: g.Unlock[0], gate: true}
}

// LockCommand builds the gate's closing command.
func (g *Gate) LockCommand() Command {
	return Command{ReportID: g.ReportID, Payload: append([]byte(nil), g.Lock...), WaitMS: g.WaitMS, Opcode: g.Lock[0], gate: true}
}
