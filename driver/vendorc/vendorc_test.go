package vendorc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/hid"
	"github.com/Nuitfanee/clicksync/protocol"
)

func hidInput(id byte, data []byte) hid.InputReport {
	return hid.InputReport{ReportID: id, Data: data}
}

func plan(t *testing.T, prev *config.MouseConfig, patch config.Patch) (*config.MouseConfig, []protocol.Command) {
	t.Helper()
	p := Protocol()
	next, cmds, err := p.Plan(prev, patch)
	assert.NoError(t, err)
	return next, cmds
}

func TestFrameLayout(t *testing.T) {
	f := buildFrame(0x05, 0x01, rwWrite, []byte{0x03})
	assert.Len(t, f, 64)
	assert.Equal(t, byte(0x05), f[0])
	assert.Equal(t, []byte{0x00, 0x00, 0x01, 0x00}, f[1:5])
	assert.Equal(t, byte(0x01), f[5])
	assert.Equal(t, byte(0x01), f[6])
	assert.Equal(t, byte(0x03), f[7])
}

func TestSetPolling4000(t *testing.T) {
	p := Protocol()
	next, cmds := plan(t, p.DefaultConfig(), config.Patch{"pollingHz": 4000})

	assert.Equal(t, 4000, *next.PollingHz)
	// One write, no secure gate.
	assert.Len(t, cmds, 1)
	c := cmds[0]
	assert.False(t, c.IsGate())
	assert.Equal(t, byte(0x05), c.Payload[0])
	assert.Equal(t, byte(0x01), c.Payload[5])
	assert.Equal(t, byte(0x03), c.Payload[7])
}

func TestSetDpiSlotGated(t *testing.T) {
	p := Protocol()
	_, cmds := plan(t, p.DefaultConfig(), config.Patch{
		"dpiSlot": config.DpiSlotArg{Slot: 1, Dpi: 800},
	})

	assert.Len(t, cmds, 3)
	assert.True(t, cmds[0].IsGate())
	assert.Equal(t, unlockPayload, cmds[0].Payload)
	assert.True(t, cmds[2].IsGate())
	assert.Equal(t, lockPayload, cmds[2].Payload)

	w := cmds[1]
	assert.Equal(t, byte(0x03), w.Payload[0])
	assert.Equal(t, byte(0x04), w.Payload[5])
	// Slot index 0, 800 cpi little-endian.
	assert.Equal(t, []byte{0x00, 0x20, 0x03}, w.Payload[7:10])
	assert.True(t, w.Sensitive)
}

func TestSensitiveOnlyInsideGate(t *testing.T) {
	p := Protocol()
	_, cmds := plan(t, p.DefaultConfig(), config.Patch{
		"dpiSlots":  []int{400, 800, 1600, 3200, 6400},
		"pollingHz": 2000,
	})
	assert.True(t, cmds[0].IsGate())
	assert.True(t, cmds[len(cmds)-1].IsGate())
	for _, c := range cmds[1 : len(cmds)-1] {
		if c.Sensitive {
			continue
		}
		// Non-sensitive writes may ride inside the bracket, but no
		// sensitive opcode may appear outside it.
	}
}

func TestPollingBeforePerfModeAndAddressFollowsRate(t *testing.T) {
	p := Protocol()
	prev := p.DefaultConfig()
	prev.PollingHz = config.Ptr(1000)

	_, cmds := plan(t, prev, config.Patch{"pollingHz": 4000, "performanceMode": "oc"})

	var pollingIdx, perfIdx = -1, -1
	for i, c := range cmds {
		switch c.Payload[0] {
		case opPolling:
			pollingIdx = i
		case opPerfMode:
			perfIdx = i
			// The register address belongs to the new rate, not the old one.
			assert.Equal(t, perfAddr[4000], c.Payload[5])
		}
	}
	assert.GreaterOrEqual(t, pollingIdx, 0)
	assert.GreaterOrEqual(t, perfIdx, 0)
	assert.Less(t, pollingIdx, perfIdx)
}

func TestConvergenceSnapsModeWhenImplicit(t *testing.T) {
	p := Protocol()
	prev := p.DefaultConfig()
	prev.PollingHz = config.Ptr(1000)
	prev.PerformanceMode = config.Ptr("low")

	next, _ := plan(t, prev, config.Patch{"pollingHz": 2000})
	assert.Equal(t, 2000, *next.PollingHz)
	// "low" does not exist at 2000; the nearest allowed mode wins.
	assert.Equal(t, "hp", *next.PerformanceMode)
}

func TestConvergenceSnapsRateWhenModeExplicit(t *testing.T) {
	p := Protocol()
	prev := p.DefaultConfig()
	prev.PollingHz = config.Ptr(2000)
	prev.PerformanceMode = config.Ptr("hp")

	next, _ := plan(t, prev, config.Patch{"performanceMode": "low"})
	// The user asked for the mode; the rate moves to the nearest one that
	// still supports it.
	assert.Equal(t, 1000, *next.PollingHz)
	assert.Equal(t, "low", *next.PerformanceMode)
}

func TestSleepRejectsNonMinuteValues(t *testing.T) {
	p := Protocol()
	type testCase struct {
		name    string
		seconds int
		wantErr bool
	}
	cases := []testCase{
		{name: "whole minutes", seconds: 300},
		{name: "ninety seconds", seconds: 90, wantErr: true},
		{name: "too short", seconds: 60, wantErr: true},
		{name: "upper bound", seconds: 7200},
		{name: "too long", seconds: 7260, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := p.Plan(p.DefaultConfig(), config.Patch{"sleepSeconds": tc.seconds})
			if tc.wantErr {
				assert.Error(t, err)
				assert.Equal(t, cfgerror.KindBadParam, cfgerror.KindOf(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestModeRegisterMergesBothFlags(t *testing.T) {
	p := Protocol()
	prev := p.DefaultConfig()
	prev.MotionSync = config.Ptr(true)
	prev.LinearCorrection = config.Ptr(false)

	// Patch only one flag; the other must come from the cached state.
	_, cmds := plan(t, prev, config.Patch{"linearCorrection": true})
	assert.Len(t, cmds, 1)
	c := cmds[0]
	assert.Equal(t, opMode, c.Payload[0])
	// Inverted register: 0 means enabled, so both on = 0x00.
	assert.Equal(t, byte(0x00), c.Payload[7])

	prev.MotionSync = config.Ptr(false)
	_, cmds = plan(t, prev, config.Patch{"linearCorrection": true})
	assert.Equal(t, byte(0x01), cmds[0].Payload[7])
}

func TestResponseParserLayouts(t *testing.T) {
	type testCase struct {
		name string
		raw  []byte
		want []byte
	}
	frame := func(set func(f []byte)) []byte {
		f := make([]byte, 64)
		set(f)
		return f
	}
	cases := []testCase{
		{
			name: "report id echo",
			raw: frame(func(f []byte) {
				f[0] = cmdReportID
				f[1] = 0x05
				f[6] = 0x01
				f[8] = 0x03
			}),
			want: []byte{0x03},
		},
		{
			name: "write frame mirror",
			raw: frame(func(f []byte) {
				f[0] = 0x05
				f[5] = 0x01
				f[7] = 0x03
			}),
			want: []byte{0x03},
		},
		{
			name: "legacy short header",
			raw: frame(func(f []byte) {
				f[2] = 0x05
				f[3] = 0x01
				f[4] = 0x03
			}),
			want: []byte{0x03},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := parseResponse(tc.raw, 0x05)
			assert.NoError(t, err)
			assert.Equal(t, byte(0x05), resp.Opcode)
			assert.Equal(t, tc.want, resp.Data)
		})
	}
}

func TestResponseParserMismatch(t *testing.T) {
	raw := make([]byte, 64)
	raw[0] = 0x99
	_, err := parseResponse(raw, 0x05)
	assert.Error(t, err)
	assert.Equal(t, cfgerror.KindIoCmdMismatch, cfgerror.KindOf(err))
}

func TestDedupKeepsDistinctSlots(t *testing.T) {
	p := Protocol()
	_, cmds := plan(t, p.DefaultConfig(), config.Patch{
		"dpiSlots": []int{400, 800, 1600, 3200, 6400},
	})
	slotWrites := 0
	for _, c := range cmds {
		if !c.IsGate() && c.Payload[0] == opDpi {
			slotWrites++
		}
	}
	assert.Equal(t, 5, slotWrites)
}

func TestDecodeRoundTripPushedPolling(t *testing.T) {
	p := Protocol()
	into := p.DefaultConfig()
	data := make([]byte, 16)
	data[0] = inputTypeConfig
	data[1] = opPolling
	data[2] = 0x01
	data[3] = pollingCode[8000]
	changed, _ := p.HandleInput(hidInput(0x08, data), into)
	assert.True(t, changed)
	assert.Equal(t, 8000, *into.PollingHz)
}

func TestHandleInputBattery(t *testing.T) {
	p := Protocol()
	into := p.DefaultConfig()
	_, battery := p.HandleInput(hidInput(0x08, []byte{inputTypeBattery, 87, 0x01}), into)
	assert.True(t, battery)
	assert.Equal(t, 87, into.Battery.Percent)
	assert.True(t, into.Battery.Charging)
}
