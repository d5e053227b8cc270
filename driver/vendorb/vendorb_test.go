package vendorb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/hid"
	"github.com/Nuitfanee/clicksync/protocol"
)

func plan(t *testing.T, patch config.Patch) []protocol.Command {
	t.Helper()
	p := Protocol()
	_, cmds, err := p.Plan(p.DefaultConfig(), patch)
	assert.NoError(t, err)
	return cmds
}

func TestFrameLayout(t *testing.T) {
	f := buildFrame(false, bankSensor, addrLod, []byte{0x01})
	assert.Equal(t, []byte{0xA5, 0xA5, 0x01, 0x84, 0x08, 0x00, 0x00, 0x01}, f)

	r := buildFrame(true, bankSensor, addrLod, []byte{0x00})
	assert.Equal(t, byte(0xA4), r[1])
}

func TestLodAndRippleInOneCall(t *testing.T) {
	cmds := plan(t, config.Patch{"lodHeight": "low", "rippleControl": true})
	assert.Len(t, cmds, 2)

	// Equal priority resolves deterministically by key sort, so the LOD
	// write comes first.
	lod, ripple := cmds[0], cmds[1]
	assert.Equal(t, byte(0x84), lod.Payload[3])
	assert.Equal(t, byte(0x08), lod.Payload[4])
	assert.Equal(t, byte(0x01), lod.Payload[7])

	assert.Equal(t, byte(0x85), ripple.Payload[3])
	assert.Equal(t, byte(0x08), ripple.Payload[4])
	assert.Equal(t, byte(0x01), ripple.Payload[7])

	for _, c := range cmds {
		assert.False(t, c.Sensitive)
		assert.False(t, c.IsGate())
	}
}

func TestLodMillimetresRejected(t *testing.T) {
	p := Protocol()
	_, _, err := p.Plan(p.DefaultConfig(), config.Patch{"lodHeight": 1.2})
	assert.Error(t, err)
	assert.Equal(t, cfgerror.KindBadParam, cfgerror.KindOf(err))
	assert.Contains(t, err.Error(), "millimetre")
}

func TestDpiDualBankWrite(t *testing.T) {
	cmds := plan(t, config.Patch{"dpiSlots": []int{400, 800, 1600, 3200, 6400, 12000}})

	var bankA, bankB []protocol.Command
	for _, c := range cmds {
		switch c.Payload[4] {
		case bankDpiA:
			bankA = append(bankA, c)
		case bankDpiB:
			bankB = append(bankB, c)
		}
	}
	assert.Len(t, bankA, 6)
	assert.Len(t, bankB, 6)

	// Identical tables in both banks; the settle delay lives only on the
	// second bank's writes.
	for i := range bankA {
		assert.Equal(t, bankA[i].Payload[7:9], bankB[i].Payload[7:9])
		assert.Equal(t, uint16(0), bankA[i].WaitMS)
		assert.Equal(t, uint16(dpiBankDelayMS), bankB[i].WaitMS)
	}
	// 800 little-endian in slot 1.
	assert.Equal(t, []byte{0x20, 0x03}, bankA[1].Payload[7:9])
}

func TestBatteryFromInputReport(t *testing.T) {
	p := Protocol()
	into := p.DefaultConfig()
	data := make([]byte, 9)
	data[batteryByteIndex] = 64
	configChanged, batteryChanged := p.HandleInput(hid.InputReport{ReportID: batteryReportID, Data: data}, into)
	assert.False(t, configChanged)
	assert.True(t, batteryChanged)
	assert.Equal(t, 64, into.Battery.Percent)

	// Other report ids are not interpreted.
	_, batteryChanged = p.HandleInput(hid.InputReport{ReportID: 0x01, Data: data}, into)
	assert.False(t, batteryChanged)
}

func TestParseResponseEcho(t *testing.T) {
	raw := []byte{0xA5, 0xA4, 0x02, 0x10, 0x04, 0x00, 0x00, 0x01, 0x00}
	data, err := parseResponse(raw, bankPolling, addrPolling)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00}, data)

	_, err = parseResponse(raw, bankSensor, addrLod)
	assert.Error(t, err)
	assert.Equal(t, cfgerror.KindIoCmdMismatch, cfgerror.KindOf(err))
}
