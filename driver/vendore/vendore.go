// Package vendore implements the 0x373B/0x3710 protocol family. The wire
// framing follows the 32-byte opcode style with a different register map and
// high-rate polling support.
package vendore

import (
	"context"
	"fmt"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/hid"
	"github.com/Nuitfanee/clicksync/protocol"
	"github.com/Nuitfanee/clicksync/transform"
)

const (
	frameLen   = 32
	readWaitMS = 20

	cmdReportID byte = 0x06
	readBit     byte = 0x80
)

// Register opcodes.
const (
	opPolling   byte = 0x21
	opDpi       byte = 0x22
	opSlotCount byte = 0x23
	opSlotIndex byte = 0x24
	opLod       byte = 0x25
	opDebounce  byte = 0x26
	opMotion    byte = 0x27
	opBattery   byte = 0x2A
)

var pollingCode = map[int]byte{125: 0x00, 250: 0x01, 500: 0x02, 1000: 0x03, 2000: 0x04, 4000: 0x05, 8000: 0x06}

var lodCode = map[string]byte{"low": 0x01, "mid": 0x02, "high": 0x03}

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

func parseResponse(raw []byte, expected byte) ([]byte, error) {
	if len(raw) < 2 {
		return nil, cfgerror.IoReadFail("reply frame too short")
	}
	if raw[0] != expected {
		return nil, cfgerror.IoCmdMismatch(expected, raw[0])
	}
	return raw[1:], nil
}

func Capabilities() *config.Capabilities {
	return &config.Capabilities{
		Vendor:       config.VendorE,
		PollingRates: []int{125, 250, 500, 1000, 2000, 4000, 8000},
		DpiMin:       50, DpiMax: 30000, DpiSlotMax: 4,
		ButtonCount: 5,
		Keys: []string{
			config.KeyPollingHz, config.KeyLodHeight,
			config.KeyDebounceLevel, config.KeyDebounceMS, config.KeyMotionSync,
			config.KeyDpiSlotCount, config.KeyCurrentDpiIndex,
			config.KeyDpiSlots, config.KeyDpiSlot,
			config.KeyDpiProfile,
		},
		GranularDedupOpcodes: map[byte]bool{opDpi: true},
	}
}

func Table() *protocol.Table {
	return &protocol.Table{
		Vendor:  config.VendorE,
		Entries: entries(),
		Pack:    pack,
		DedupKey: func(c protocol.Command) string {
			if c.Opcode == opDpi && len(c.Payload) > 1 {
				return fmt.Sprintf("%d/%d/%d", c.ReportID, c.Opcode, c.Payload[1])
			}
			return fmt.Sprintf("%d/%d", c.ReportID, c.Opcode)
		},
	}
}

func entries() []protocol.Entry {
	return []protocol.Entry{
		{
			Key: config.KeyPollingHz, Kind: protocol.Direct, Priority: 10,
			Validate: func(c *protocol.Ctx) error {
				if _, ok := pollingCode[*c.Next.PollingHz]; !ok {
					return cfgerror.BadParam(config.KeyPollingHz, *c.Next.PollingHz, "unsupported polling rate")
				}
				return nil
			},
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				return protocol.WriteSpec{Opcode: opPolling, Data: []byte{pollingCode[*c.Next.PollingHz]}}, nil
			},
		},
		{
			Key: config.KeyLodHeight, Kind: protocol.Direct, Priority: 30,
			Validate: func(c *protocol.Ctx) error {
				if _, ok := lodCode[*c.Next.LodHeight]; !ok {
					return cfgerror.BadParam(config.KeyLodHeight, *c.Next.LodHeight, "must be low, mid or high")
				}
				return nil
			},
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				return protocol.WriteSpec{Opcode: opLod, Data: []byte{lodCode[*c.Next.LodHeight]}}, nil
			},
		},
		{
			Key: config.KeyDebounceLevel, Kind: protocol.Compound, Priority: 35,
			Triggers: []string{config.KeyDebounceMS},
			Validate: func(c *protocol.Ctx) error {
				if c.Next.DebounceMS == nil {
					return cfgerror.BadParam(config.KeyDebounceLevel, nil, "no debounce value")
				}
				if _, ok := transform.MSToDebounceLevel(*c.Next.DebounceMS); !ok {
					return cfgerror.BadParam(config.KeyDebounceMS, *c.Next.DebounceMS, "must be 2, 5 or 10")
				}
				return nil
			},
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				return protocol.WriteSpec{Opcode: opDebounce, Data: []byte{byte(*c.Next.DebounceMS)}}, nil
			},
		},
		{
			Key: config.KeyMotionSync, Kind: protocol.Direct, Priority: 35,
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				v := byte(0)
				if *c.Next.MotionSync {
					v = 1
				}
				return protocol.WriteSpec{Opcode: opMotion, Data: []byte{v}}, nil
			},
		},
		{
			Key: config.KeyDpiProfile, Kind: protocol.Virtual, Priority: 50,
			Triggers: []string{
				config.KeyDpiSlots, config.KeyDpiSlot,
				config.KeyDpiSlotCount, config.KeyCurrentDpiIndex,
			},
			Validate: func(c *protocol.Ctx) error {
				if c.Next.DpiSlotCount != nil {
					n := *c.Next.DpiSlotCount
					if n < 1 || n > c.Caps.DpiSlotMax {
						return cfgerror.BadParam(config.KeyDpiSlotCount, n, fmt.Sprintf("out of 1..%d", c.Caps.DpiSlotMax))
					}
				}
				for i, s := range c.Next.DpiSlots {
					if int(s.X) < c.Caps.DpiMin || int(s.X) > c.Caps.DpiMax {
						return cfgerror.BadParam(config.KeyDpiSlots, s.X,
							fmt.Sprintf("slot %d out of %d..%d", i, c.Caps.DpiMin, c.Caps.DpiMax))
					}
				}
				return nil
			},
			Plan: func(c *protocol.Ctx) ([]protocol.Command, error) {
				var cmds []protocol.Command
				writeSlot := func(slot int) {
					data := []byte{byte(slot)}
					data = transform.PutU16LE(data, c.Next.DpiSlots[slot].X)
					cmds = append(cmds, pack(protocol.WriteSpec{Opcode: opDpi, Data: data}))
				}
				switch {
				case c.Patch.Has(config.KeyDpiSlot):
					arg := c.Patch[config.KeyDpiSlot].(config.DpiSlotArg)
					writeSlot(arg.Slot - 1)
				case c.Patch.Has(config.KeyDpiSlots):
					for slot := range c.Next.DpiSlots {
						writeSlot(slot)
					}
				}
				if c.Patch.Has(config.KeyDpiSlotCount) && c.Next.DpiSlotCount != nil {
					cmds = append(cmds, pack(protocol.WriteSpec{Opcode: opSlotCount, Data: []byte{byte(*c.Next.DpiSlotCount)}}))
				}
				selectIdx := c.Patch.Has(config.KeyCurrentDpiIndex)
				if arg, ok := c.Patch[config.KeyDpiSlot].(config.DpiSlotArg); ok && arg.Select {
					selectIdx = true
				}
				if selectIdx && c.Next.CurrentDpiIndex != nil {
					cmds = append(cmds, pack(protocol.WriteSpec{Opcode: opSlotIndex, Data: []byte{byte(*c.Next.CurrentDpiIndex)}}))
				}
				return cmds, nil
			},
		},
	}
}

type proto struct {
	caps  *config.Capabilities
	table *protocol.Table
}

// Protocol returns the family binding.
func Protocol() *proto {
	return &proto{caps: Capabilities(), table: Table()}
}

func (p *proto) Tag() config.VendorTag              { return config.VendorE }
func (p *proto) Capabilities() *config.Capabilities { return p.caps }
func (p *proto) KeepAlive(data []byte) bool         { return false }

func (p *proto) DefaultConfig() *config.MouseConfig {
	return &config.MouseConfig{
		Vendor:          config.VendorE,
		PollingHz:       config.Ptr(1000),
		LodHeight:       config.Ptr("low"),
		DebounceLevel:   config.Ptr("mid"),
		DebounceMS:      config.Ptr(5),
		MotionSync:      config.Ptr(false),
		DpiSlotCount:    config.Ptr(4),
		CurrentDpiIndex: config.Ptr(1),
		DpiSlots: []config.DpiSlot{
			{X: 400, Y: 400}, {X: 800, Y: 800}, {X: 1600, Y: 1600}, {X: 3200, Y: 3200},
		},
	}
}

func (p *proto) Plan(prev *config.MouseConfig, patch config.Patch) (*config.MouseConfig, []protocol.Command, error) {
	_, next, cmds, err := protocol.Plan(p.table, p.caps, prev, patch)
	return next, cmds, err
}

func (p *proto) OnOpen(ctx context.Context, tr *protocol.Transport) error { return nil }

func readRegister(ctx context.Context, tr *protocol.Transport, opcode byte, arg []byte, decode func([]byte) error) error {
	req := buildFrame(opcode|readBit, arg)
	return tr.SendAndRecvDrained(ctx, cmdReportID, req, cmdReportID, readWaitMS, func(raw []byte) error {
		data, err := parseResponse(raw, opcode|readBit)
		if err != nil {
			return err
		}
		return decode(data)
	})
}

func (p *proto) ReadConfig(ctx context.Context, tr *protocol.Transport, into *config.MouseConfig) error {
	reads := []struct {
		opcode byte
		decode func([]byte) error
	}{
		{opPolling, func(d []byte) error { return decodeCode(d, pollingCode, &into.PollingHz) }},
		{opLod, func(d []byte) error { return decodeCode(d, lodCode, &into.LodHeight) }},
		{opDebounce, func(d []byte) error { return decodeDebounce(d, into) }},
		{opMotion, func(d []byte) error {
			if len(d) < 1 {
				return fmt.Errorf("motion sync reply too short")
			}
			into.MotionSync = config.Ptr(d[0] != 0)
			return nil
		}},
		{opSlotCount, func(d []byte) error {
			if len(d) < 1 {
				return fmt.Errorf("slot count reply too short")
			}
			into.DpiSlotCount = config.Ptr(int(d[0]))
			return nil
		}},
		{opSlotIndex, func(d []byte) error {
			if len(d) < 1 {
				return fmt.Errorf("slot index reply too short")
			}
			into.CurrentDpiIndex = config.Ptr(int(d[0]))
			return nil
		}},
	}
	for _, rd := range reads {
		if err := readRegister(ctx, tr, rd.opcode, nil, rd.decode); err != nil {
			return err
		}
	}
	for slot := 0; slot < p.caps.DpiSlotMax; slot++ {
		slot := slot
		if err := readRegister(ctx, tr, opDpi, []byte{byte(slot)}, func(d []byte) error {
			if len(d) < 3 {
				return fmt.Errorf("dpi reply too short")
			}
			v := transform.U16LE(d[1:3])
			for len(into.DpiSlots) <= slot {
				into.DpiSlots = append(into.DpiSlots, config.DpiSlot{})
			}
			into.DpiSlots[slot] = config.DpiSlot{X: v, Y: v}
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *proto) ReadBattery(ctx context.Context, tr *protocol.Transport) (config.Battery, error) {
	var bat config.Battery
	err := readRegister(ctx, tr, opBattery, nil, func(d []byte) error {
		if len(d) < 1 {
			return fmt.Errorf("battery reply too short")
		}
		bat = config.Battery{Percent: int(d[0])}
		if len(d) > 1 {
			bat.Charging = d[1]&0x01 != 0
		}
		return nil
	})
	return bat, err
}

func (p *proto) HandleInput(r hid.InputReport, into *config.MouseConfig) (bool, bool) {
	return false, false
}

func decodeCode[T comparable](d []byte, table map[T]byte, dst **T) error {
	if len(d) < 1 {
		return fmt.Errorf("reply too short")
	}
	for k, code := range table {
		if code == d[0] {
			*dst = config.Ptr(k)
			return nil
		}
	}
	return fmt.Errorf("unknown register code 0x%02x", d[0])
}

func decodeDebounce(d []byte, into *config.MouseConfig) error {
	if len(d) < 1 {
		return fmt.Errorf("debounce reply too short")
	}
	ms := int(d[0])
	into.DebounceMS = config.Ptr(ms)
	if level, ok := transform.MSToDebounceLevel(ms); ok {
		into.DebounceLevel = config.Ptr(level)
	}
	return nil
}
