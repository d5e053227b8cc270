// Package config holds the semantic configuration model shared by every
// vendor family: the cached device snapshot, patches, and capability
// records. It contains no protocol knowledge.
package config

// VendorTag identifies one supported protocol family.
type VendorTag string

const (
	VendorA VendorTag = "A"
	VendorB VendorTag = "B"
	VendorC VendorTag = "C"
	VendorD VendorTag = "D"
	VendorE VendorTag = "E"
)

// DpiSlot is one DPI setting. Families without split-axis DPI keep X == Y.
type DpiSlot struct {
	X uint16 `json:"x" yaml:"x"`
	Y uint16 `json:"y" yaml:"y"`
}

// ButtonMapping is the wire assignment of one physical button.
type ButtonMapping struct {
	FuncKey byte `json:"funckey" yaml:"funckey"`
	KeyCode byte `json:"keycode" yaml:"keycode"`
}

// LedState is the lighting block of a snapshot.
type LedState struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Brightness int    `json:"brightness" yaml:"brightness"`
	Mode       string `json:"mode" yaml:"mode"`
	Speed      int    `json:"speed" yaml:"speed"`
	Color      string `json:"color" yaml:"color"` // "#rrggbb"
}

// Battery is the last reported battery state.
type Battery struct {
	Percent  int  `json:"percent" yaml:"percent"`
	Charging bool `json:"charging" yaml:"charging"`
}

// MouseConfig is the full cached snapshot of one device. Fields a family
// does not support stay nil.
type MouseConfig struct {
	Vendor VendorTag `json:"vendor" yaml:"vendor"`

	PollingHz        *int    `json:"pollingHz,omitempty" yaml:"pollingHz,omitempty"`
	PerformanceMode  *string `json:"performanceMode,omitempty" yaml:"performanceMode,omitempty"`
	LodHeight        *string `json:"lodHeight,omitempty" yaml:"lodHeight,omitempty"`
	DebounceLevel    *string `json:"debounceLevel,omitempty" yaml:"debounceLevel,omitempty"`
	DebounceMS       *int    `json:"debounceMs,omitempty" yaml:"debounceMs,omitempty"`
	MotionSync       *bool   `json:"motionSync,omitempty" yaml:"motionSync,omitempty"`
	LinearCorrection *bool   `json:"linearCorrection,omitempty" yaml:"linearCorrection,omitempty"`
	RippleControl    *bool   `json:"rippleControl,omitempty" yaml:"rippleControl,omitempty"`
	GlassMode        *bool   `json:"glassMode,omitempty" yaml:"glassMode,omitempty"`
	Hyperclick       *bool   `json:"hyperclick,omitempty" yaml:"hyperclick,omitempty"`
	SensorAngle      *int    `json:"sensorAngle,omitempty" yaml:"sensorAngle,omitempty"`
	SensorFeel       *int    `json:"sensorFeel,omitempty" yaml:"sensorFeel,omitempty"`
	SleepSeconds     *int    `json:"sleepSeconds,omitempty" yaml:"sleepSeconds,omitempty"`
	BurstDelayMS     *int    `json:"burstDelayMs,omitempty" yaml:"burstDelayMs,omitempty"`
	ModeByte         *byte   `json:"modeByte,omitempty" yaml:"modeByte,omitempty"`

	DpiSlotCount    *int            `json:"dpiSlotCount,omitempty" yaml:"dpiSlotCount,omitempty"`
	CurrentDpiIndex *int            `json:"currentDpiIndex,omitempty" yaml:"currentDpiIndex,omitempty"`
	DpiSlots        []DpiSlot       `json:"dpiSlots,omitempty" yaml:"dpiSlots,omitempty"`
	ButtonMappings  []ButtonMapping `json:"buttonMappings,omitempty" yaml:"buttonMappings,omitempty"`
	Led             *LedState       `json:"led,omitempty" yaml:"led,omitempty"`
	Battery         *Battery        `json:"battery,omitempty" yaml:"battery,omitempty"`

	FirmwareIDs []string `json:"firmwareIds,omitempty" yaml:"firmwareIds,omitempty"`
	DeviceName  string   `json:"deviceName,omitempty" yaml:"deviceName,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (c *MouseConfig) Clone() *MouseConfig {
	if c == nil {
		return nil
	}
	out := *c
	out.PollingHz = cloneP(c.PollingHz)
	out.PerformanceMode = cloneP(c.PerformanceMode)
	out.LodHeight = cloneP(c.LodHeight)
	out.DebounceLevel = cloneP(c.DebounceLevel)
	out.DebounceMS = cloneP(c.DebounceMS)
	out.MotionSync = cloneP(c.MotionSync)
	out.LinearCorrection = cloneP(c.LinearCorrection)
	out.RippleControl = cloneP(c.RippleControl)
	out.GlassMode = cloneP(c.GlassMode)
	out.Hyperclick = cloneP(c.Hyperclick)
	out.SensorAngle = cloneP(c.SensorAngle)
	out.SensorFeel = cloneP(c.SensorFeel)
	out.SleepSeconds = cloneP(c.SleepSeconds)
	out.BurstDelayMS = cloneP(c.BurstDelayMS)
	out.ModeByte = cloneP(c.ModeByte)
	out.DpiSlotCount = cloneP(c.DpiSlotCount)
	out.CurrentDpiIndex = cloneP(c.CurrentDpiIndex)
	if c.DpiSlots != nil {
		out.DpiSlots = append([]DpiSlot(nil), c.DpiSlots...)
	}
	if c.ButtonMappings != nil {
		out.ButtonMappings = append([]ButtonMapping(nil), c.ButtonMappings...)
	}
	if c.Led != nil {
		led := *c.Led
		out.Led = &led
	}
	if c.Battery != nil {
		bat := *c.Battery
		out.Battery = &bat
	}
	if c.FirmwareIDs != nil {
		out.FirmwareIDs = append([]string(nil), c.FirmwareIDs...)
	}
	return &out
}

func cloneP[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr is a literal-to-pointer helper for building snapshots.
func Ptr[T any](v T) *T { return &v }

// Capabilities is the per-family record of supported values. The UI and the
// validators both read it; it never changes after construction.
type Capabilities struct {
	Vendor VendorTag

	PollingRates       []int
	PerfModes          []string
	PerfModesByPolling map[int][]string // nil when mode is polling-independent

	DpiMin, DpiMax int
	DpiSlotMax     int
	SplitAxisDpi   bool

	ButtonCount int

	SleepMinMinutes, SleepMaxMinutes int

	LedModes          []string
	LedBrightnessPcts []int // allowed brightness percents, nil = free 0..100
	LedSpeedMax       int

	// Keys is the closed set of patch keys this family understands.
	Keys []string

	// GranularDedupOpcodes lists opcodes whose dedup key includes data[0]
	// so writes to distinct slots survive last-write-wins dedup.
	GranularDedupOpcodes map[byte]bool
}

// SupportsKey reports whether the canonical patch key is known to the family.
func (c *Capabilities) SupportsKey(key string) bool {
	for _, k := range c.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// AllowedModes returns the performance modes allowed at the given polling
// rate, falling back to the full mode list when no per-rate table exists.
func (c *Capabilities) AllowedModes(pollingHz int) []string {
	if c.PerfModesByPolling != nil {
		if m, ok := c.PerfModesByPolling[pollingHz]; ok {
			return m
		}
	}
	return c.PerfModes
}
