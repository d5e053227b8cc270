package vendora

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/internal/hidtest"
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
	f := buildFrame(0x0C, []byte{0x01, 0x02})
	assert.Len(t, f, 32)
	assert.Equal(t, byte(0x0C), f[0])
	assert.Equal(t, byte(0x01), f[1])
	assert.Equal(t, byte(0x02), f[2])
	assert.Equal(t, byte(0x00), f[31])
}

func TestLedSpeedWireBytes(t *testing.T) {
	type testCase struct {
		speed int
		wire  byte
	}
	// Inverted register: the endpoints are the regression-prone ones.
	cases := []testCase{{0, 20}, {20, 0}, {5, 15}}
	for _, tc := range cases {
		cmds := plan(t, config.Patch{"ledSpeed": tc.speed, "ledBrightness": 100})
		assert.Len(t, cmds, 1)
		assert.Equal(t, opLed, cmds[0].Payload[0])
		assert.Equal(t, tc.wire, cmds[0].Payload[4], "speed %d", tc.speed)
	}
}

func TestLedBrightnessCodes(t *testing.T) {
	for pct, code := range map[int]byte{25: 1, 50: 2, 75: 3, 100: 4} {
		cmds := plan(t, config.Patch{"ledBrightness": pct})
		assert.Equal(t, code, cmds[0].Payload[3], "pct %d", pct)
	}
	p := Protocol()
	_, _, err := p.Plan(p.DefaultConfig(), config.Patch{"ledBrightness": 60})
	assert.Error(t, err)
	assert.Equal(t, cfgerror.KindBadParam, cfgerror.KindOf(err))
}

func TestDpiPackedWrite(t *testing.T) {
	cmds := plan(t, config.Patch{"dpiSlot": config.DpiSlotArg{Slot: 3, Dpi: 1600}})
	assert.Len(t, cmds, 1)
	c := cmds[0]
	assert.Equal(t, opDpi, c.Payload[0])
	// Slot 2 (wire index), 1600 = 0x640: high bits share the slot byte.
	assert.Equal(t, byte((1600>>8)&0x1F|2<<5), c.Payload[1])
	assert.Equal(t, byte(1600&0xFF), c.Payload[2])
}

func TestButtonMappingGated(t *testing.T) {
	cmds := plan(t, config.Patch{
		"buttonMapping": config.ButtonMappingArg{Slot: 2, Label: "dpi_cycle"},
	})
	assert.Len(t, cmds, 3)
	assert.True(t, cmds[0].IsGate())
	assert.Equal(t, opSecure, cmds[0].Payload[0])
	assert.Equal(t, byte(0x01), cmds[0].Payload[1])
	assert.True(t, cmds[2].IsGate())
	assert.Equal(t, byte(0x00), cmds[2].Payload[1])
	assert.Equal(t, opButtonMap, cmds[1].Payload[0])
	assert.Equal(t, byte(2), cmds[1].Payload[1])
}

func TestSleepBounds(t *testing.T) {
	p := Protocol()
	_, _, err := p.Plan(p.DefaultConfig(), config.Patch{"sleepSeconds": 16 * 60})
	assert.Error(t, err)
	_, _, err = p.Plan(p.DefaultConfig(), config.Patch{"sleepSeconds": 90})
	assert.Error(t, err)
	cmds := plan(t, config.Patch{"sleepSeconds": 60})
	assert.Equal(t, byte(1), cmds[0].Payload[1])
}

func TestReadBattery(t *testing.T) {
	dev := hidtest.New(0x093A, 0xEB02)
	timings := protocol.DefaultTimings()
	tr := protocol.NewTransport(dev, timings, nil, nil)
	defer tr.Close()

	reply := make([]byte, 64)
	reply[0] = opBattery | readBit
	reply[1] = 77
	dev.QueueFeature(cmdReportID, reply)

	p := Protocol()
	bat, err := p.ReadBattery(context.Background(), tr)
	assert.NoError(t, err)
	assert.Equal(t, 77, bat.Percent)
	assert.False(t, bat.Charging)

	sent := dev.SentReports()
	assert.Len(t, sent, 1)
	assert.Equal(t, opBattery|readBit, sent[0].Data[0])
}

func TestReadConfigButtonsAreGated(t *testing.T) {
	dev := hidtest.New(0x093A, 0xEB02)
	tr := protocol.NewTransport(dev, protocol.DefaultTimings(), nil, nil)
	defer tr.Close()

	// Scripted replies for every read the walk performs.
	queue := func(op byte, data ...byte) {
		reply := make([]byte, 64)
		reply[0] = op | readBit
		copy(reply[1:], data)
		dev.QueueFeature(cmdReportID, reply)
	}
	queue(opPolling, 1)
	queue(opLod, 1)
	queue(opPerfMode, 1)
	queue(opDebounce, 5)
	queue(opHyperclick, 0)
	queue(opBurst, 0)
	queue(opSleep, 3)
	queue(opSlotCount, 4)
	queue(opSlotIndex, 1)
	queue(opLed, 1, 1, 4, 10, 0xFF, 0x00, 0x00)
	for slot := 0; slot < 5; slot++ {
		hi := byte((800>>8)&0x1F) | byte(slot<<5)
		queue(opDpi, hi, byte(800&0xFF))
	}
	for slot := 0; slot < 5; slot++ {
		queue(opButtonMap, byte(slot), 0x01, byte(slot+1))
	}
	queue(opFwMain, 1, 2)
	queue(opFwWireless, 3, 4)
	queue(opName, 'm', 'o', 'u', 's', 'e')

	p := Protocol()
	into := p.DefaultConfig()
	assert.NoError(t, p.ReadConfig(context.Background(), tr, into))

	assert.Equal(t, 1000, *into.PollingHz)
	assert.Equal(t, 180, *into.SleepSeconds)
	assert.Equal(t, uint16(800), into.DpiSlots[2].X)
	assert.Equal(t, "mouse", into.DeviceName)
	assert.Equal(t, []string{"1.2", "3.4"}, into.FirmwareIDs)
	assert.Equal(t, 10, into.Led.Speed)

	// The button reads ride between an unlock and a lock frame.
	var unlockAt, lockAt, firstButton = -1, -1, -1
	for i, s := range dev.SentReports() {
		switch s.Data[0] {
		case opSecure:
			if s.Data[1] == 0x01 {
				unlockAt = i
			} else if lockAt < 0 {
				lockAt = i
			}
		case opButtonMap | readBit:
			if firstButton < 0 {
				firstButton = i
			}
		}
	}
	assert.Greater(t, firstButton, unlockAt)
	assert.Greater(t, lockAt, firstButton)
}
