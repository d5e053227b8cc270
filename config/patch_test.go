package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Nuitfanee/clicksync/config"
)

func TestCanonicalKey(t *testing.T) {
	type testCase struct {
		in, want string
	}
	cases := []testCase{
		{"polling_rate", config.KeyPollingHz},
		{"Report_Rate", config.KeyPollingHz},
		{"sleep_time", config.KeySleepSeconds},
		{"default_dpi_slot_index", config.KeyCurrentDpiIndex},
		{"defaultDpiSlotIndex", config.KeyCurrentDpiIndex},
		{"lod", config.KeyLodHeight},
		{"color", config.KeyLedColor},
		{"pollingHz", config.KeyPollingHz},
		{"noSuchKey", "noSuchKey"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, config.CanonicalKey(tc.in), tc.in)
	}
}

func TestPatchNormalized(t *testing.T) {
	p := config.Patch{"polling_rate": 1000, "ripple": true}
	n := p.Normalized()
	assert.True(t, n.Has(config.KeyPollingHz))
	assert.True(t, n.Has(config.KeyRippleControl))
	assert.False(t, n.Has("polling_rate"))
}

func TestApplyKeyCoercion(t *testing.T) {
	c := &config.MouseConfig{}

	assert.NoError(t, config.ApplyKey(c, config.KeyPollingHz, float64(1000)))
	assert.Equal(t, 1000, *c.PollingHz)

	assert.NoError(t, config.ApplyKey(c, config.KeyMotionSync, 1))
	assert.True(t, *c.MotionSync)

	assert.NoError(t, config.ApplyKey(c, config.KeyPerformanceMode, " HP "))
	assert.Equal(t, "hp", *c.PerformanceMode)

	assert.NoError(t, config.ApplyKey(c, config.KeyDpiSlots, []any{400, 800.0}))
	assert.Equal(t, []config.DpiSlot{{X: 400, Y: 400}, {X: 800, Y: 800}}, c.DpiSlots)

	err := config.ApplyKey(c, config.KeyPollingHz, "fast")
	assert.Error(t, err)
}

func TestApplyKeyDpiSlotArg(t *testing.T) {
	c := &config.MouseConfig{DpiSlots: []config.DpiSlot{{X: 400, Y: 400}}}
	err := config.ApplyKey(c, config.KeyDpiSlot, config.DpiSlotArg{Slot: 2, Dpi: 800, Select: true})
	assert.NoError(t, err)
	assert.Len(t, c.DpiSlots, 2)
	assert.Equal(t, config.DpiSlot{X: 800, Y: 800}, c.DpiSlots[1])
	assert.Equal(t, 1, *c.CurrentDpiIndex)

	err = config.ApplyKey(c, config.KeyDpiSlot, config.DpiSlotArg{Slot: 0, Dpi: 800})
	assert.Error(t, err)
}

func TestApplyKeyButtonLabel(t *testing.T) {
	c := &config.MouseConfig{}
	err := config.ApplyKey(c, config.KeyButtonMapping, config.ButtonMappingArg{Slot: 2, Label: "middle"})
	assert.NoError(t, err)
	assert.Len(t, c.ButtonMappings, 3)
	assert.Equal(t, byte(0x04), c.ButtonMappings[2].KeyCode)
}

func TestApplyKeyLed(t *testing.T) {
	c := &config.MouseConfig{}
	assert.NoError(t, config.ApplyKey(c, config.KeyLedBrightness, 75))
	assert.NoError(t, config.ApplyKey(c, config.KeyLedColor, "#ff0000"))
	assert.Equal(t, 75, c.Led.Brightness)
	assert.Equal(t, "#ff0000", c.Led.Color)
}

func TestCloneIsDeep(t *testing.T) {
	orig := &config.MouseConfig{
		PollingHz: config.Ptr(1000),
		DpiSlots:  []config.DpiSlot{{X: 400, Y: 400}},
		Led:       &config.LedState{Color: "#ffffff"},
	}
	cp := orig.Clone()
	*cp.PollingHz = 500
	cp.DpiSlots[0].X = 9999
	cp.Led.Color = "#000000"
	assert.Equal(t, 1000, *orig.PollingHz)
	assert.Equal(t, uint16(400), orig.DpiSlots[0].X)
	assert.Equal(t, "#ffffff", orig.Led.Color)
}
