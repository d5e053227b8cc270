package vendora

import (
	"fmt"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/protocol"
	"github.com/Nuitfanee/clicksync/transform"
)

// Register opcodes.
const (
	opPolling    byte = 0x01
	opDpi        byte = 0x02
	opSlotCount  byte = 0x03
	opSlotIndex  byte = 0x04
	opLod        byte = 0x05
	opPerfMode   byte = 0x06
	opDebounce   byte = 0x07
	opHyperclick byte = 0x08
	opBurst      byte = 0x09
	opSleep      byte = 0x0A
	opButtonMap  byte = 0x0B
	opLed        byte = 0x0C
	opBattery    byte = 0x12
	opFwMain     byte = 0x13
	opFwWireless byte = 0x14
	opName       byte = 0x15
)

// Polling is stored as the report interval in milliseconds.
var pollingCode = map[int]byte{125: 8, 250: 4, 500: 2, 1000: 1}

var lodCode = map[string]byte{"low": 0x01, "mid": 0x02, "high": 0x03}

var perfModeCode = map[string]byte{"low": 0x00, "std": 0x01, "hp": 0x02}

// brightnessCode maps the four allowed brightness percents onto 1..4.
var brightnessCode = map[int]byte{25: 1, 50: 2, 75: 3, 100: 4}

var ledModeCode = map[string]byte{"off": 0x00, "static": 0x01, "breathing": 0x02, "neon": 0x03}

func Capabilities() *config.Capabilities {
	return &config.Capabilities{
		Vendor:       config.VendorA,
		PollingRates: []int{125, 250, 500, 1000},
		PerfModes:    []string{"low", "std", "hp"},
		DpiMin:       100, DpiMax: 16000, DpiSlotMax: 5,
		ButtonCount:     5,
		SleepMinMinutes: 1, SleepMaxMinutes: 15,
		LedModes:          []string{"off", "static", "breathing", "neon"},
		LedBrightnessPcts: []int{25, 50, 75, 100},
		LedSpeedMax:       20,
		Keys: []string{
			config.KeyPollingHz, config.KeyPerformanceMode, config.KeyLodHeight,
			config.KeyDebounceLevel, config.KeyDebounceMS,
			config.KeyHyperclick, config.KeyBurstDelayMS, config.KeySleepSeconds,
			config.KeyDpiSlotCount, config.KeyCurrentDpiIndex,
			config.KeyDpiSlots, config.KeyDpiSlot,
			config.KeyButtonMappings, config.KeyButtonMapping,
			config.KeyLedEnabled, config.KeyLedBrightness, config.KeyLedMode,
			config.KeyLedSpeed, config.KeyLedColor,
			config.KeyDpiProfile,
		},
		GranularDedupOpcodes: map[byte]bool{opDpi: true, opButtonMap: true},
	}
}

func Table() *protocol.Table {
	return &protocol.Table{
		Vendor:   config.VendorA,
		Entries:  entries(),
		Pack:     pack,
		Gate:     gate(),
		DedupKey: dedupKey,
	}
}

func dedupKey(c protocol.Command) string {
	if (c.Opcode == opDpi || c.Opcode == opButtonMap) && len(c.Payload) > 1 {
		return fmt.Sprintf("%d/%d/%d", c.ReportID, c.Opcode, c.Payload[1])
	}
	return fmt.Sprintf("%d/%d", c.ReportID, c.Opcode)
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
			Key: config.KeyPerformanceMode, Kind: protocol.Direct, Priority: 20,
			Validate: func(c *protocol.Ctx) error {
				if _, ok := perfModeCode[*c.Next.PerformanceMode]; !ok {
					return cfgerror.FeatureUnsupported(config.KeyPerformanceMode, c.Caps.PerfModes)
				}
				return nil
			},
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				return protocol.WriteSpec{Opcode: opPerfMode, Data: []byte{perfModeCode[*c.Next.PerformanceMode]}}, nil
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
			Key: config.KeyHyperclick, Kind: protocol.Direct, Priority: 35,
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				return protocol.WriteSpec{Opcode: opHyperclick, Data: []byte{boolByte(*c.Next.Hyperclick)}}, nil
			},
		},
		{
			Key: config.KeyBurstDelayMS, Kind: protocol.Direct, Priority: 35,
			Validate: func(c *protocol.Ctx) error {
				v := *c.Next.BurstDelayMS
				if v < 0 || v > 2550 || v%10 != 0 {
					return cfgerror.BadParam(config.KeyBurstDelayMS, v, "must be 0..2550 in steps of 10")
				}
				return nil
			},
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				return protocol.WriteSpec{Opcode: opBurst, Data: []byte{byte(*c.Next.BurstDelayMS / 10)}}, nil
			},
		},
		{
			Key: config.KeySleepSeconds, Kind: protocol.Direct, Priority: 40,
			Validate: func(c *protocol.Ctx) error {
				s := *c.Next.SleepSeconds
				if s%60 != 0 {
					return cfgerror.BadParam(config.KeySleepSeconds, s, "must be a multiple of 60")
				}
				m := s / 60
				if m < c.Caps.SleepMinMinutes || m > c.Caps.SleepMaxMinutes {
					return cfgerror.BadParam(config.KeySleepSeconds, s,
						fmt.Sprintf("must be %d..%d minutes", c.Caps.SleepMinMinutes, c.Caps.SleepMaxMinutes))
				}
				return nil
			},
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				return protocol.WriteSpec{Opcode: opSleep, Data: []byte{byte(*c.Next.SleepSeconds / 60)}}, nil
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
			Plan: planDpiTable,
		},
		{
			Key: config.KeyButtonMappings, Kind: protocol.Virtual, Priority: 60,
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
					cmds = append(cmds, pack(protocol.WriteSpec{
						Opcode:    opButtonMap,
						Data:      []byte{byte(slot), m.FuncKey, m.KeyCode},
						Sensitive: true,
					}))
				}
				return cmds, nil
			},
		},
		{
			Key: config.KeyLedMode, Kind: protocol.Compound, Priority: 70,
			Triggers: []string{
				config.KeyLedEnabled, config.KeyLedBrightness,
				config.KeyLedSpeed, config.KeyLedColor,
			},
			Validate: func(c *protocol.Ctx) error {
				led := c.Next.Led
				if led == nil {
					return cfgerror.BadParam(config.KeyLedMode, nil, "no led state")
				}
				if led.Mode != "" {
					if _, ok := ledModeCode[led.Mode]; !ok {
						return cfgerror.FeatureUnsupported(config.KeyLedMode, c.Caps.LedModes)
					}
				}
				if _, ok := brightnessCode[led.Brightness]; !ok {
					return cfgerror.BadParam(config.KeyLedBrightness, led.Brightness, "must be 25, 50, 75 or 100")
				}
				if led.Speed < 0 || led.Speed > c.Caps.LedSpeedMax {
					return cfgerror.BadParam(config.KeyLedSpeed, led.Speed, fmt.Sprintf("out of 0..%d", c.Caps.LedSpeedMax))
				}
				if led.Color != "" {
					if _, err := transform.ParseColor(led.Color); err != nil {
						return err
					}
				}
				return nil
			},
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				led := c.Next.Led
				rgb := transform.RGB{}
				if led.Color != "" {
					rgb, _ = transform.ParseColor(led.Color)
				}
				// The speed register is inverted on the wire.
				data := []byte{
					boolByte(led.Enabled), ledModeCode[led.Mode],
					brightnessCode[led.Brightness], transform.LedSpeedWire(led.Speed),
					rgb.R, rgb.G, rgb.B,
				}
				return protocol.WriteSpec{Opcode: opLed, Data: data}, nil
			},
		},
	}
}

// planDpiTable writes each patched slot as a packed hi/lo pair, then the
// count and index registers when those changed.
func planDpiTable(c *protocol.Ctx) ([]protocol.Command, error) {
	var cmds []protocol.Command
	writeSlot := func(slot int) {
		hi, lo := transform.PackDpiIndexed(slot, c.Next.DpiSlots[slot].X)
		cmds = append(cmds, pack(protocol.WriteSpec{Opcode: opDpi, Data: []byte{hi, lo}}))
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

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
