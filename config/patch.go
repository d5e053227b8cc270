package config

import (
	"fmt"
	"strings"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/transform"
)

// Canonical patch keys. A Patch uses these after alias normalization.
const (
	KeyPollingHz        = "pollingHz"
	KeyPerformanceMode  = "performanceMode"
	KeyLodHeight        = "lodHeight"
	KeyDebounceLevel    = "debounceLevel"
	KeyDebounceMS       = "debounceMs"
	KeyMotionSync       = "motionSync"
	KeyLinearCorrection = "linearCorrection"
	KeyRippleControl    = "rippleControl"
	KeyGlassMode        = "glassMode"
	KeyHyperclick       = "hyperclick"
	KeySensorAngle      = "sensorAngle"
	KeySensorFeel       = "sensorFeel"
	KeySleepSeconds     = "sleepSeconds"
	KeyBurstDelayMS     = "burstDelayMs"
	KeyModeByte         = "modeByte"
	KeyDpiSlotCount     = "dpiSlotCount"
	KeyCurrentDpiIndex  = "currentDpiIndex"
	KeyDpiSlots         = "dpiSlots"
	KeyDpiSlotsX        = "dpiSlotsX"
	KeyDpiSlotsY        = "dpiSlotsY"
	KeyDpiSlot          = "dpiSlot"
	KeyButtonMappings   = "buttonMappings"
	KeyButtonMapping    = "buttonMapping"
	KeyLedEnabled       = "ledEnabled"
	KeyLedBrightness    = "ledBrightness"
	KeyLedMode          = "ledMode"
	KeyLedSpeed         = "ledSpeed"
	KeyLedColor         = "ledColor"

	// KeyDpiProfile is the virtual trigger raised whenever any DPI table
	// field is patched; families with profile images plan off it.
	KeyDpiProfile = "dpiProfile"
)

// aliases maps accepted spellings onto canonical keys.
var aliases = map[string]string{
	"polling_rate":           KeyPollingHz,
	"pollingrate":            KeyPollingHz,
	"polling_hz":             KeyPollingHz,
	"report_rate":            KeyPollingHz,
	"performance_mode":       KeyPerformanceMode,
	"perf_mode":              KeyPerformanceMode,
	"lod":                    KeyLodHeight,
	"lod_height":             KeyLodHeight,
	"liftoff":                KeyLodHeight,
	"debounce":               KeyDebounceLevel,
	"debounce_level":         KeyDebounceLevel,
	"debounce_ms":            KeyDebounceMS,
	"motion_sync":            KeyMotionSync,
	"linear_correction":      KeyLinearCorrection,
	"ripple":                 KeyRippleControl,
	"ripple_control":         KeyRippleControl,
	"glass_mode":             KeyGlassMode,
	"sensor_angle":           KeySensorAngle,
	"angle":                  KeySensorAngle,
	"sensor_feel":            KeySensorFeel,
	"feel":                   KeySensorFeel,
	"sleep_time":             KeySleepSeconds,
	"sleep_seconds":          KeySleepSeconds,
	"sleep":                  KeySleepSeconds,
	"burst_delay_ms":         KeyBurstDelayMS,
	"bhop_delay":             KeyBurstDelayMS,
	"dpi_slot_count":         KeyDpiSlotCount,
	"current_dpi_index":      KeyCurrentDpiIndex,
	"active_dpi_slot":        KeyCurrentDpiIndex,
	"default_dpi_slot_index": KeyCurrentDpiIndex,
	"defaultdpislotindex":    KeyCurrentDpiIndex,
	"dpi_slots":              KeyDpiSlots,
	"dpi_slots_x":            KeyDpiSlotsX,
	"dpi_slots_y":            KeyDpiSlotsY,
	"dpi_slot":               KeyDpiSlot,
	"button_mappings":        KeyButtonMappings,
	"button_mapping":         KeyButtonMapping,
	"led_enabled":            KeyLedEnabled,
	"led_brightness":         KeyLedBrightness,
	"led_mode":               KeyLedMode,
	"led_speed":              KeyLedSpeed,
	"led_color":              KeyLedColor,
	"color":                  KeyLedColor,
}

// CanonicalKey resolves one key through the alias table. Unknown keys come
// back unchanged; the planner rejects them against the capability key set.
func CanonicalKey(key string) string {
	if a, ok := aliases[key]; ok {
		return a
	}
	if a, ok := aliases[strings.ToLower(key)]; ok {
		return a
	}
	return key
}

// Patch is a partial desired configuration, semantic key to value.
type Patch map[string]any

// Normalized returns a copy of the patch with every key canonicalized.
// When two spellings of the same key are present, which value survives is
// not defined (map iteration order).
func (p Patch) Normalized() Patch {
	out := make(Patch, len(p))
	for k, v := range p {
		out[CanonicalKey(k)] = v
	}
	return out
}

// Has reports presence of a canonical key.
func (p Patch) Has(key string) bool { _, ok := p[key]; return ok }

// DpiSlotArg is the payload of the "dpiSlot" key: one slot write with an
// optional select. Slot is the 1-based slot number; the wire index is one
// less.
type DpiSlotArg struct {
	Slot   int  `json:"slot" yaml:"slot"`
	Dpi    int  `json:"dpi" yaml:"dpi"`
	DpiY   int  `json:"dpiY,omitempty" yaml:"dpiY,omitempty"` // 0 = same as X
	Select bool `json:"select,omitempty" yaml:"select,omitempty"`
}

// ButtonMappingArg is the payload of the "buttonMapping" key.
type ButtonMappingArg struct {
	Slot    int    `json:"slot" yaml:"slot"`
	Label   string `json:"label,omitempty" yaml:"label,omitempty"`
	FuncKey byte   `json:"funckey,omitempty" yaml:"funckey,omitempty"`
	KeyCode byte   `json:"keycode,omitempty" yaml:"keycode,omitempty"`
}

// AsInt coerces the numeric forms a patch value may arrive in.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// AsBool coerces bools and the 0/1 integer forms.
func AsBool(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	if n, ok := AsInt(v); ok {
		return n != 0, true
	}
	return false, false
}

// AsString lowercases string values for enum comparison.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(s)), true
}

// AsIntSlice coerces []int-ish patch values ([]int, []any, []uint16...).
func AsIntSlice(v any) ([]int, bool) {
	switch s := v.(type) {
	case []int:
		return append([]int(nil), s...), true
	case []uint16:
		out := make([]int, len(s))
		for i, n := range s {
			out[i] = int(n)
		}
		return out, true
	case []any:
		out := make([]int, len(s))
		for i, e := range s {
			n, ok := AsInt(e)
			if !ok {
				return nil, false
			}
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

// ApplyKey overlays one canonical patch key onto the snapshot. It is the
// planner's step-3 overlay; validation happens later against the SPEC table,
// so this only rejects values whose shape cannot be coerced at all.
func ApplyKey(c *MouseConfig, key string, v any) error {
	switch key {
	case KeyPollingHz:
		return applyInt(c, key, v, &c.PollingHz)
	case KeySensorAngle:
		return applyInt(c, key, v, &c.SensorAngle)
	case KeySensorFeel:
		return applyInt(c, key, v, &c.SensorFeel)
	case KeySleepSeconds:
		return applyInt(c, key, v, &c.SleepSeconds)
	case KeyBurstDelayMS:
		return applyInt(c, key, v, &c.BurstDelayMS)
	case KeyDebounceMS:
		return applyInt(c, key, v, &c.DebounceMS)
	case KeyDpiSlotCount:
		return applyInt(c, key, v, &c.DpiSlotCount)
	case KeyCurrentDpiIndex:
		return applyInt(c, key, v, &c.CurrentDpiIndex)

	case KeyPerformanceMode:
		return applyString(c, key, v, &c.PerformanceMode)
	case KeyLodHeight:
		return applyString(c, key, v, &c.LodHeight)
	case KeyDebounceLevel:
		return applyString(c, key, v, &c.DebounceLevel)

	case KeyMotionSync:
		return applyBool(c, key, v, &c.MotionSync)
	case KeyLinearCorrection:
		return applyBool(c, key, v, &c.LinearCorrection)
	case KeyRippleControl:
		return applyBool(c, key, v, &c.RippleControl)
	case KeyGlassMode:
		return applyBool(c, key, v, &c.GlassMode)
	case KeyHyperclick:
		return applyBool(c, key, v, &c.Hyperclick)

	case KeyModeByte:
		n, ok := AsInt(v)
		if !ok || n < 0 || n > 0xFF {
			return badShape(key, v)
		}
		b := byte(n)
		c.ModeByte = &b
		return nil

	case KeyDpiSlots:
		switch s := v.(type) {
		case []DpiSlot:
			c.DpiSlots = append([]DpiSlot(nil), s...)
			return nil
		default:
			ints, ok := AsIntSlice(v)
			if !ok {
				return badShape(key, v)
			}
			c.DpiSlots = make([]DpiSlot, len(ints))
			for i, n := range ints {
				c.DpiSlots[i] = DpiSlot{X: uint16(n), Y: uint16(n)}
			}
			return nil
		}
	case KeyDpiSlotsX:
		ints, ok := AsIntSlice(v)
		if !ok {
			return badShape(key, v)
		}
		growSlots(c, len(ints))
		for i, n := range ints {
			c.DpiSlots[i].X = uint16(n)
		}
		return nil
	case KeyDpiSlotsY:
		ints, ok := AsIntSlice(v)
		if !ok {
			return badShape(key, v)
		}
		growSlots(c, len(ints))
		for i, n := range ints {
			c.DpiSlots[i].Y = uint16(n)
		}
		return nil
	case KeyDpiSlot:
		arg, ok := v.(DpiSlotArg)
		if !ok {
			return badShape(key, v)
		}
		if arg.Slot < 1 {
			return cfgerror.BadParam(key, arg.Slot, "slot numbers start at 1")
		}
		idx := arg.Slot - 1
		growSlots(c, arg.Slot)
		y := arg.DpiY
		if y == 0 {
			y = arg.Dpi
		}
		c.DpiSlots[idx] = DpiSlot{X: uint16(arg.Dpi), Y: uint16(y)}
		if arg.Select {
			c.CurrentDpiIndex = &idx
		}
		return nil

	case KeyButtonMappings:
		s, ok := v.([]ButtonMapping)
		if !ok {
			return badShape(key, v)
		}
		c.ButtonMappings = append([]ButtonMapping(nil), s...)
		return nil
	case KeyButtonMapping:
		arg, ok := v.(ButtonMappingArg)
		if !ok {
			return badShape(key, v)
		}
		if arg.Label != "" {
			act, err := transform.FuncFromLabel(arg.Label)
			if err != nil {
				return err
			}
			arg.FuncKey, arg.KeyCode = act.FuncKey, act.KeyCode
		}
		for len(c.ButtonMappings) <= arg.Slot {
			c.ButtonMappings = append(c.ButtonMappings, ButtonMapping{})
		}
		c.ButtonMappings[arg.Slot] = ButtonMapping{FuncKey: arg.FuncKey, KeyCode: arg.KeyCode}
		return nil

	case KeyLedEnabled, KeyLedBrightness, KeyLedMode, KeyLedSpeed, KeyLedColor:
		if c.Led == nil {
			c.Led = &LedState{}
		}
		switch key {
		case KeyLedEnabled:
			b, ok := AsBool(v)
			if !ok {
				return badShape(key, v)
			}
			c.Led.Enabled = b
		case KeyLedBrightness:
			n, ok := AsInt(v)
			if !ok {
				return badShape(key, v)
			}
			c.Led.Brightness = n
		case KeyLedSpeed:
			n, ok := AsInt(v)
			if !ok {
				return badShape(key, v)
			}
			c.Led.Speed = n
		case KeyLedMode:
			s, ok := AsString(v)
			if !ok {
				return badShape(key, v)
			}
			c.Led.Mode = s
		case KeyLedColor:
			s, ok := v.(string)
			if !ok {
				return badShape(key, v)
			}
			c.Led.Color = s
		}
		return nil

	case KeyDpiProfile:
		// Virtual trigger, carries no state.
		return nil
	}
	return cfgerror.FeatureUnsupported(key)
}

func applyInt(c *MouseConfig, key string, v any, dst **int) error {
	n, ok := AsInt(v)
	if !ok {
		return badShape(key, v)
	}
	*dst = &n
	return nil
}

func applyBool(c *MouseConfig, key string, v any, dst **bool) error {
	b, ok := AsBool(v)
	if !ok {
		return badShape(key, v)
	}
	*dst = &b
	return nil
}

func applyString(c *MouseConfig, key string, v any, dst **string) error {
	s, ok := AsString(v)
	if !ok {
		return badShape(key, v)
	}
	*dst = &s
	return nil
}

func badShape(key string, v any) error {
	return cfgerror.BadParam(key, v, fmt.Sprintf("unexpected value type %T", v))
}

func growSlots(c *MouseConfig, n int) {
	for len(c.DpiSlots) < n {
		c.DpiSlots = append(c.DpiSlots, DpiSlot{})
	}
}
