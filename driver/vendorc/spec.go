package vendorc

import (
	"fmt"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/protocol"
	"github.com/Nuitfanee/clicksync/transform"
)

// Register opcodes.
const (
	opDpi       byte = 0x03
	opSlotCount byte = 0x04
	opPolling   byte = 0x05
	opPerfMode  byte = 0x06
	opSleep     byte = 0x07
	opSlotIndex byte = 0x08
	opMode      byte = 0x09 // motion sync + linear correction, inverted bits
	opGlass     byte = 0x0A
	opRipple    byte = 0x0D
	opSecure    byte = 0x0E
	opAngle     byte = 0x0F
	opFeel      byte = 0x10
	opDebounce  byte = 0x11
	opButtonMap byte = 0x12
	opLed       byte = 0x13
	opBattery   byte = 0x14
	opFirmware  byte = 0x15
)

// pollingCode maps polling Hz onto the rate register value.
var pollingCode = map[int]byte{
	500: 0x00, 1000: 0x01, 2000: 0x02, 4000: 0x03, 8000: 0x04,
	250: 0x05, 125: 0x06,
}

// perfAddr maps the current polling rate onto the performance-mode register
// index. The register moves when the sensor runs at high report rates.
var perfAddr = map[int]byte{
	125: 0x10, 250: 0x10, 500: 0x10, 1000: 0x10,
	2000: 0x11, 4000: 0x12, 8000: 0x13,
}

// perfModes is the canonical mode order used for nearest-mode snapping.
var perfModes = []string{"low", "std", "hp", "sport", "oc"}

var perfModeCode = map[string]byte{"low": 0x00, "std": 0x01, "hp": 0x02, "sport": 0x03, "oc": 0x04}

var lodCode = map[string]byte{"low": 0x01, "mid": 0x02, "high": 0x03}

var ledModeCode = map[string]byte{"off": 0x00, "static": 0x01, "breathing": 0x02, "rainbow": 0x03}

// Capabilities returns the family capability record.
func Capabilities() *config.Capabilities {
	return &config.Capabilities{
		Vendor:       config.VendorC,
		PollingRates: []int{125, 250, 500, 1000, 2000, 4000, 8000},
		PerfModes:    perfModes,
		PerfModesByPolling: map[int][]string{
			125:  {"low", "std", "hp"},
			250:  {"low", "std", "hp"},
			500:  {"low", "std", "hp", "sport"},
			1000: {"low", "std", "hp", "sport", "oc"},
			2000: {"hp", "sport", "oc"},
			4000: {"hp", "sport", "oc"},
			8000: {"sport", "oc"},
		},
		DpiMin: 50, DpiMax: 26000, DpiSlotMax: 5,
		ButtonCount:     6,
		SleepMinMinutes: 2, SleepMaxMinutes: 120,
		LedModes: []string{"off", "static", "breathing", "rainbow"},
		Keys: []string{
			config.KeyPollingHz, config.KeyPerformanceMode, config.KeyLodHeight,
			config.KeyDebounceLevel, config.KeyDebounceMS,
			config.KeyMotionSync, config.KeyLinearCorrection, config.KeyModeByte,
			config.KeyGlassMode, config.KeyRippleControl,
			config.KeySensorAngle, config.KeySensorFeel, config.KeySleepSeconds,
			config.KeyDpiSlotCount, config.KeyCurrentDpiIndex,
			config.KeyDpiSlots, config.KeyDpiSlotsX, config.KeyDpiSlotsY, config.KeyDpiSlot,
			config.KeyButtonMappings, config.KeyButtonMapping,
			config.KeyLedEnabled, config.KeyLedBrightness, config.KeyLedMode,
			config.KeyLedSpeed, config.KeyLedColor,
			config.KeyDpiProfile,
		},
		GranularDedupOpcodes: map[byte]bool{opDpi: true, opButtonMap: true},
	}
}

// Table returns the family SPEC table.
func Table() *protocol.Table {
	caps := Capabilities()
	return &protocol.Table{
		Vendor:    config.VendorC,
		Entries:   entries(),
		Expand:    expand(caps),
		Normalize: normalize,
		Pack:      pack,
		Gate:      gate(),
		DedupKey:  dedupKey,
	}
}

// dedupKey keeps distinct-slot writes apart for the slot-indexed registers
// and folds everything else per register.
func dedupKey(c protocol.Command) string {
	if len(c.Payload) < 8 {
		return fmt.Sprintf("%d/%d", c.ReportID, c.Opcode)
	}
	if c.Opcode == opDpi || c.Opcode == opButtonMap {
		return fmt.Sprintf("%d/%d/%d/%d", c.ReportID, c.Opcode, c.Payload[5], c.Payload[7])
	}
	return fmt.Sprintf("%d/%d/%d", c.ReportID, c.Opcode, c.Payload[5])
}

// expand applies the polling/performance coupling: the performance register
// address depends on the polling rate, and not every mode exists at every
// rate. The loop converges in at most four rounds because each round either
// closes the mode gap or the rate gap.
func expand(caps *config.Capabilities) func(prev *config.MouseConfig, p config.Patch) error {
	return func(prev *config.MouseConfig, p config.Patch) error {
		// A flag patch against a cached raw modeByte carries the merged
		// register along, so normalize derives the patched flag, not the
		// stale one.
		if prev.ModeByte != nil && !p.Has(config.KeyModeByte) &&
			(p.Has(config.KeyMotionSync) || p.Has(config.KeyLinearCorrection)) {
			merged := &config.MouseConfig{MotionSync: prev.MotionSync, LinearCorrection: prev.LinearCorrection}
			if v, ok := config.AsBool(p[config.KeyMotionSync]); ok {
				merged.MotionSync = &v
			}
			if v, ok := config.AsBool(p[config.KeyLinearCorrection]); ok {
				merged.LinearCorrection = &v
			}
			p[config.KeyModeByte] = int(modeByteFor(merged))
		}

		modeExplicit := p.Has(config.KeyPerformanceMode)
		if modeExplicit && !p.Has(config.KeyPollingHz) && prev.PollingHz != nil {
			p[config.KeyPollingHz] = *prev.PollingHz
		}
		if !p.Has(config.KeyPollingHz) {
			return nil
		}

		hz, ok := config.AsInt(p[config.KeyPollingHz])
		if !ok {
			return cfgerror.BadParam(config.KeyPollingHz, p[config.KeyPollingHz], "not a number")
		}
		mode := ""
		if modeExplicit {
			mode, _ = config.AsString(p[config.KeyPerformanceMode])
		} else if prev.PerformanceMode != nil {
			mode = *prev.PerformanceMode
		}
		if mode == "" {
			return nil
		}

		for round := 0; round < 4; round++ {
			allowed := caps.AllowedModes(hz)
			if containsString(allowed, mode) {
				break
			}
			if modeExplicit {
				hz = nearestRateForMode(caps, mode, hz)
			} else {
				mode = nearestMode(allowed, mode)
			}
		}
		p[config.KeyPollingHz] = hz
		modeMoved := prev.PerformanceMode == nil || *prev.PerformanceMode != mode
		if modeExplicit || modeMoved {
			p[config.KeyPerformanceMode] = mode
		}
		return nil
	}
}

// nearestMode picks the allowed mode closest to want in the canonical order.
func nearestMode(allowed []string, want string) string {
	wi := modeIndex(want)
	best := allowed[0]
	bestD := absInt(modeIndex(best) - wi)
	for _, m := range allowed[1:] {
		if d := absInt(modeIndex(m) - wi); d < bestD {
			best, bestD = m, d
		}
	}
	return best
}

// nearestRateForMode picks the polling rate closest to want that still
// supports the mode.
func nearestRateForMode(caps *config.Capabilities, mode string, want int) int {
	best, bestD := want, -1
	for _, hz := range caps.PollingRates {
		if !containsString(caps.AllowedModes(hz), mode) {
			continue
		}
		d := absInt(hz - want)
		if bestD < 0 || d < bestD {
			best, bestD = hz, d
		}
	}
	return best
}

func modeIndex(m string) int {
	for i, n := range perfModes {
		if n == m {
			return i
		}
	}
	return 0
}

func containsString(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// normalize re-derives the merged mode flags when a raw modeByte arrived
// (e.g. from a config read) so single-flag patches keep the other bit.
func normalize(next *config.MouseConfig, caps *config.Capabilities) {
	if next.ModeByte != nil {
		b := *next.ModeByte
		// Bits are inverted on the wire: 0 = enabled.
		next.MotionSync = config.Ptr(b&0x01 == 0)
		next.LinearCorrection = config.Ptr(b&0x02 == 0)
	}
}

// modeByteFor packs the merged register from the full next state.
func modeByteFor(next *config.MouseConfig) byte {
	var b byte
	if next.MotionSync == nil || !*next.MotionSync {
		b |= 0x01
	}
	if next.LinearCorrection == nil || !*next.LinearCorrection {
		b |= 0x02
	}
	return b
}

func entries() []protocol.Entry {
	return []protocol.Entry{
		{
			Key: config.KeyPollingHz, Kind: protocol.Direct, Priority: 10,
			Validate: func(c *protocol.Ctx) error {
				hz := *c.Next.PollingHz
				if _, ok := pollingCode[hz]; !ok {
					return cfgerror.BadParam(config.KeyPollingHz, hz, "unsupported polling rate")
				}
				return nil
			},
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				return protocol.WriteSpec{Opcode: opPolling, LenOrIdx: 0x01, Data: []byte{pollingCode[*c.Next.PollingHz]}}, nil
			},
		},
		{
			Key: config.KeyPerformanceMode, Kind: protocol.Direct, Priority: 20,
			Validate: func(c *protocol.Ctx) error {
				mode := *c.Next.PerformanceMode
				if _, ok := perfModeCode[mode]; !ok {
					return cfgerror.BadParam(config.KeyPerformanceMode, mode, "unknown mode")
				}
				hz := 1000
				if c.Next.PollingHz != nil {
					hz = *c.Next.PollingHz
				}
				if !containsString(c.Caps.AllowedModes(hz), mode) {
					return cfgerror.FeatureUnsupported(config.KeyPerformanceMode, c.Caps.AllowedModes(hz))
				}
				return nil
			},
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				hz := 1000
				if c.Next.PollingHz != nil {
					hz = *c.Next.PollingHz
				}
				return protocol.WriteSpec{Opcode: opPerfMode, LenOrIdx: perfAddr[hz], Data: []byte{perfModeCode[*c.Next.PerformanceMode]}}, nil
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
				return protocol.WriteSpec{Opcode: opGlass, LenOrIdx: 0x02, Data: []byte{lodCode[*c.Next.LodHeight]}}, nil
			},
		},
		{
			Key: config.KeyGlassMode, Kind: protocol.Direct, Priority: 30,
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				return protocol.WriteSpec{Opcode: opGlass, LenOrIdx: 0x01, Data: []byte{boolByte(*c.Next.GlassMode)}}, nil
			},
		},
		{
			Key: config.KeyRippleControl, Kind: protocol.Direct, Priority: 30,
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				return protocol.WriteSpec{Opcode: opRipple, LenOrIdx: 0x01, Data: []byte{boolByte(*c.Next.RippleControl)}}, nil
			},
		},
		{
			// Motion sync and linear correction share one register; the
			// encoder reads both flags from the overlaid state so a
			// single-flag patch preserves the other bit.
			Key: config.KeyMotionSync, Kind: protocol.Compound, Priority: 35,
			Triggers: []string{config.KeyLinearCorrection, config.KeyModeByte},
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				return protocol.WriteSpec{Opcode: opMode, LenOrIdx: 0x01, Data: []byte{modeByteFor(c.Next)}}, nil
			},
		},
		{
			Key: config.KeySensorAngle, Kind: protocol.Direct, Priority: 40,
			Validate: func(c *protocol.Ctx) error {
				v := *c.Next.SensorAngle
				if v < -100 || v > 100 {
					return cfgerror.BadParam(config.KeySensorAngle, v, "out of -100..100")
				}
				return nil
			},
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				return protocol.WriteSpec{Opcode: opAngle, LenOrIdx: 0x01, Data: []byte{transform.Signed8(*c.Next.SensorAngle)}}, nil
			},
		},
		{
			Key: config.KeySensorFeel, Kind: protocol.Direct, Priority: 40,
			Validate: func(c *protocol.Ctx) error {
				v := *c.Next.SensorFeel
				if v < -62 || v > 65 {
					return cfgerror.BadParam(config.KeySensorFeel, v, "out of -62..65")
				}
				return nil
			},
			Encode: func(c *protocol.Ctx) (protocol.WriteSpec, error) {
				return protocol.WriteSpec{Opcode: opFeel, LenOrIdx: 0x01, Data: []byte{transform.Feel7(*c.Next.SensorFeel)}}, nil
			},
		},
		{
			Key: config.KeyDebounceLevel, Kind: protocol.Compound, Priority: 40,
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
				return protocol.WriteSpec{Opcode: opDebounce, LenOrIdx: 0x01, Data: []byte{byte(*c.Next.DebounceMS)}}, nil
			},
		},
		{
			// Sleep timeout is stored in minutes; anything that is not a
			// whole minute is rejected rather than rounded so the UI and
			// the device can never drift.
			Key: config.KeySleepSeconds, Kind: protocol.Direct, Priority: 45,
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
				return protocol.WriteSpec{Opcode: opSleep, LenOrIdx: 0x01, Data: []byte{byte(*c.Next.SleepSeconds / 60)}}, nil
			},
		},
		{
			Key: config.KeyDpiProfile, Kind: protocol.Virtual, Priority: 50,
			Triggers: dpiTriggerKeys(),
			Validate: validateDpiTable,
			Plan:     planDpiTable,
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
					ws := protocol.WriteSpec{
						Opcode: opButtonMap, LenOrIdx: 0x03,
						Data:      []byte{byte(slot), m.FuncKey, m.KeyCode},
						Sensitive: true,
					}
					cmds = append(cmds, pack(ws))
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
				if led.Brightness < 0 || led.Brightness > 100 {
					return cfgerror.BadParam(config.KeyLedBrightness, led.Brightness, "out of 0..100")
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
				mode := ledModeCode[led.Mode]
				data := []byte{boolByte(led.Enabled), mode, byte(led.Brightness), byte(led.Speed), rgb.R, rgb.G, rgb.B}
				return protocol.WriteSpec{Opcode: opLed, LenOrIdx: byte(len(data)), Data: data}, nil
			},
		},
	}
}

func dpiTriggerKeys() []string {
	return []string{
		config.KeyDpiSlots, config.KeyDpiSlotsX, config.KeyDpiSlotsY,
		config.KeyDpiSlot, config.KeyDpiSlotCount, config.KeyCurrentDpiIndex,
	}
}

func validateDpiTable(c *protocol.Ctx) error {
	if c.Next.DpiSlotCount != nil {
		n := *c.Next.DpiSlotCount
		if n < 1 || n > c.Caps.DpiSlotMax {
			return cfgerror.BadParam(config.KeyDpiSlotCount, n, fmt.Sprintf("out of 1..%d", c.Caps.DpiSlotMax))
		}
	}
	for i, s := range c.Next.DpiSlots {
		for _, v := range []uint16{s.X, s.Y} {
			if int(v) < c.Caps.DpiMin || int(v) > c.Caps.DpiMax {
				return cfgerror.BadParam(config.KeyDpiSlots, v,
					fmt.Sprintf("slot %d out of %d..%d", i, c.Caps.DpiMin, c.Caps.DpiMax))
			}
		}
	}
	return nil
}

// planDpiTable emits slot-value writes for patched slots plus count/index
// writes when those changed. DPI values are sensitive and ride inside the
// secure gate.
func planDpiTable(c *protocol.Ctx) ([]protocol.Command, error) {
	var cmds []protocol.Command
	writeSlot := func(slot int) {
		s := c.Next.DpiSlots[slot]
		data := []byte{byte(slot)}
		data = transform.PutU16LE(data, s.X)
		cmds = append(cmds, pack(protocol.WriteSpec{
			Opcode: opDpi, LenOrIdx: 0x04, Data: data, Sensitive: true,
		}))
	}
	switch {
	case c.Patch.Has(config.KeyDpiSlot):
		arg := c.Patch[config.KeyDpiSlot].(config.DpiSlotArg)
		writeSlot(arg.Slot - 1)
	case c.Patch.Has(config.KeyDpiSlots) || c.Patch.Has(config.KeyDpiSlotsX) || c.Patch.Has(config.KeyDpiSlotsY):
		for slot := range c.Next.DpiSlots {
			writeSlot(slot)
		}
	}
	if c.Patch.Has(config.KeyDpiSlotCount) && c.Next.DpiSlotCount != nil {
		cmds = append(cmds, pack(protocol.WriteSpec{
			Opcode: opSlotCount, LenOrIdx: 0x01, Data: []byte{byte(*c.Next.DpiSlotCount)}, Sensitive: true,
		}))
	}
	selectIdx := c.Patch.Has(config.KeyCurrentDpiIndex)
	if arg, ok := c.Patch[config.KeyDpiSlot].(config.DpiSlotArg); ok && arg.Select {
		selectIdx = true
	}
	if selectIdx && c.Next.CurrentDpiIndex != nil {
		cmds = append(cmds, pack(protocol.WriteSpec{
			Opcode: opSlotIndex, LenOrIdx: 0x01, Data: []byte{byte(*c.Next.CurrentDpiIndex)}, Sensitive: true,
		}))
	}
	return cmds, nil
}

// slotPatched reports whether a button slot was named by the patch (single
// mapping) or the whole table was replaced.
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
