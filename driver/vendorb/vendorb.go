// Package vendorb implements the 0x24AE protocol family: A5-prefixed
// bank/address register frames with probed report lengths and a dual-bank
// DPI table.
package vendorb

import (
	"fmt"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/protocol"
	"github.com/Nuitfanee/clicksync/transform"
)

const (
	cmdReportID     byte = 0x02
	featureReportID byte = 0x08
	batteryReportID byte = 0x07

	magic      byte = 0xA5
	magicWrite byte = 0xA5
	magicRead  byte = 0xA4
)

// Register banks.
const (
	bankDpiA    byte = 0x02
	bankDpiB    byte = 0x03
	bankPolling byte = 0x04
	bankButtons byte = 0x06
	bankSensor  byte = 0x08
)

// Sensor bank addresses.
const (
	addrPolling  byte = 0x10
	addrLod      byte = 0x84
	addrRipple   byte = 0x85
	addrDebounce byte = 0x86
	addrSlotCnt  byte = 0x30
	addrSlotIdx  byte = 0x31
	addrButton0  byte = 0x20
)

// dpiBankDelayMS is the settle delay after the second DPI bank write; the
// firmware needs it between the mirrored tables.
const dpiBankDelayMS = 12

var lodCode = map[string]byte{"low": 0x01, "mid": 0x02, "high": 0x03}

var pollingCode = map[int]byte{125: 8, 250: 4, 500: 2, 1000: 1}

// buildFrame packs the write form: magic pair, length, address, bank, two
// reserved bytes, then data. Transport right-pads to a candidate report
// length on send.
func buildFrame(read bool, bank, addr byte, data []byte) []byte {
	m := magicWrite
	if read {
		m = magicRead
	}
	f := []byte{magic, m, byte(len(data)), addr, bank, 0x00, 0x00}
	return append(f, data...)
}

// parseResponse validates the read echo and returns the register data.
func parseResponse(raw []byte, bank, addr byte) ([]byte, error) {
	if len(raw) < 8 {
		return nil, cfgerror.IoReadFail("reply frame too short")
	}
	if raw[0] != magic || (raw[1] != magicRead && raw[1] != magicWrite) {
		return nil, cfgerror.IoReadFail("missing frame magic")
	}
	if raw[3] != addr || raw[4] != bank {
		return nil, cfgerror.IoCmdMismatch(addr, raw[3])
	}
	n := int(raw[2])
	data := raw[7:]
	if n > 0 && n <= len(data) {
		data = data[:n]
	}
	return data, nil
}

func packRegister(bank, addr byte, data []byte, waitMS uint16) protocol.Command {
	return protocol.Command{
		ReportID: cmdReportID,
		Payload:  buildFrame(false, bank, addr, data),
		WaitMS:   waitMS,
		Opcode:   addr,
	}
}

func Capabilities() *config.Capabilities {
	return &config.Capabilities{
		Vendor:       config.VendorB,
		PollingRates: []int{125, 250, 500, 1000},
		DpiMin:       100, DpiMax: 12000, DpiSlotMax: 6,
		ButtonCount: 6,
		Keys: []string{
			config.KeyPollingHz, config.KeyLodHeight, config.KeyRippleControl,
			config.KeyDebounceLevel, config.KeyDebounceMS,
			config.KeyDpiSlotCount, config.KeyCurrentDpiIndex,
			config.KeyDpiSlots, config.KeyDpiSlot,
			config.KeyButtonMappings, config.KeyButtonMapping,
			config.KeyDpiProfile,
		},
	}
}

func Table() *protocol.Table {
	return &protocol.Table{
		Vendor:   config.VendorB,
		Entries:  entries(),
		Expand:   expand,
		Pack:     packSpec,
		DedupKey: dedupKey,
	}
}

// packSpec maps WriteSpec onto the register framing: Opcode carries the
// address, LenOrIdx the bank.
func packSpec(ws protocol.WriteSpec) protocol.Command {
	return packRegister(ws.LenOrIdx, ws.Opcode, ws.Data, ws.WaitMS)
}

// dedupKey keys on bank+address so same-address registers in different
// banks stay distinct.
func dedupKey(c protocol.Command) string {
	if len(c.Payload) < 5 {
		return fmt.Sprintf("%d/%d", c.ReportID, c.Opcode)
	}
	return fmt.Sprintf("%d/%d/%d", c.ReportID, c.Payload[4], c.Payload[3])
}

// expand rejects the millimetre LOD form up front. The register has two
// mutually exclusive encodings in the wild; only the named levels are
// accepted so the wire value is never ambiguous.
func expand(prev *config.MouseConfig, p config.Patch) error {
	if p.Has(config.KeyLodHeight) {
		if _, isNum := config.AsInt(p[config.KeyLodHeight]); isNum {
			return cfgerror.BadParam(config.KeyLodHeight, p[config.KeyLodHeight],
				"millimetre form not supported; use low, mid or high")
		}
	}
	return nil
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
				return protocol.WriteSpec{Opcode: addrPolling, LenOrIdx: bankPolling,
					Data: []byte{pollingCode[*c.Next.PollingHz]}}, nil
			},
		},
		{
			Key: config.KeyLodHeight, Kind: protocol.Direct, Priority: 50,
			Validate: func(c *protocol.Ctx) error {
				if _, ok := lodCode[*c.Next.LodHeight]; !ok {
					return cfgerror.BadParam(config.KeyLodHeight, *c.Next.LodHeight, "must be low, mid or high")
				}
				return nil
			},
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				return protocol.WriteSpec{Opcode: addrLod, LenOrIdx: bankSensor,
					Data: []byte{lodCode[*c.Next.LodHeight]}}, nil
			},
		},
		{
			Key: config.KeyRippleControl, Kind: protocol.Direct, Priority: 50,
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				v := byte(0)
				if *c.Next.RippleControl {
					v = 1
				}
				return protocol.WriteSpec{Opcode: addrRipple, LenOrIdx: bankSensor, Data: []byte{v}}, nil
			},
		},
		{
			Key: config.KeyDebounceLevel, Kind: protocol.Compound, Priority: 50,
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
				return protocol.WriteSpec{Opcode: addrDebounce, LenOrIdx: bankSensor,
					Data: []byte{byte(*c.Next.DebounceMS)}}, nil
			},
		},
		{
			Key: config.KeyDpiProfile, Kind: protocol.Virtual, Priority: 60,
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
			Plan: planDpiTable,
		},
		{
			Key: config.KeyButtonMappings, Kind: protocol.Virtual, Priority: 70,
			Triggers: []string{config.KeyButtonMapping},
			Validate: func(c *protocol.Ctx) error {
				if len(c.Next.ButtonMappings) != c.Caps.ButtonCount {
					return cfgerror.BadParam(config.KeyButtonMappings, len(c.Next.ButtonMappings),
						fmt.Sprintf("need %d mappings", c.Caps.ButtonCount))
				}
				return nil
			},
			Plan: func(c *protocol.Ctx) ([]protocol.Command, error) {
				var cmds []protocol.Command
				for slot, m := range c.Next.ButtonMappings {
					if !slotPatched(c, slot) {
						continue
					}
					cmds = append(cmds, packRegister(bankButtons, addrButton0+byte(slot),
						[]byte{m.FuncKey, m.KeyCode}, 0))
				}
				return cmds, nil
			},
		},
	}
}

// planDpiTable writes the full slot table twice, once per mirror bank. The
// firmware wants the banks identical; the settle delay lives on the second
// bank's writes and nowhere else.
func planDpiTable(c *protocol.Ctx) ([]protocol.Command, error) {
	var cmds []protocol.Command
	for _, bank := range []byte{bankDpiA, bankDpiB} {
		var wait uint16
		if bank == bankDpiB {
			wait = dpiBankDelayMS
		}
		for slot, s := range c.Next.DpiSlots {
			var data []byte
			data = transform.PutU16LE(data, s.X)
			cmds = append(cmds, packRegister(bank, byte(slot*2), data, wait))
		}
	}
	if c.Patch.Has(config.KeyDpiSlotCount) && c.Next.DpiSlotCount != nil {
		cmds = append(cmds, packRegister(bankSensor, addrSlotCnt, []byte{byte(*c.Next.DpiSlotCount)}, 0))
	}
	selectIdx := c.Patch.Has(config.KeyCurrentDpiIndex)
	if arg, ok := c.Patch[config.KeyDpiSlot].(config.DpiSlotArg); ok && arg.Select {
		selectIdx = true
	}
	if selectIdx && c.Next.CurrentDpiIndex != nil {
		cmds = append(cmds, packRegister(bankSensor, addrSlotIdx, []byte{byte(*c.Next.CurrentDpiIndex)}, 0))
	}
	return cmds, nil
}

func slotPatched(c *protocol.Ctx, slot int) bool {
	if c.Patch.Has(config.KeyButtonMappings) {
		return true
	}
	if arg, ok := c.Patch[config.KeyButtonMapping].(config.ButtonMappingArg); ok {
		return arg.Slot == slot
	}
	return false
}
