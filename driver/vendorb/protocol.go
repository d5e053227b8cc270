package vendorb

import (
	"context"
	"fmt"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/hid"
	"github.com/Nuitfanee/clicksync/protocol"
	"github.com/Nuitfanee/clicksync/transform"
)

const readWaitMS = 15

// batteryByteIndex is where the percent lives in the status input report.
const batteryByteIndex = 7

type proto struct {
	caps  *config.Capabilities
	table *protocol.Table
}

// Protocol returns the family binding.
func Protocol() *proto {
	return &proto{caps: Capabilities(), table: Table()}
}

func (p *proto) Tag() config.VendorTag              { return config.VendorB }
func (p *proto) Capabilities() *config.Capabilities { return p.caps }
func (p *proto) KeepAlive(data []byte) bool         { return false }

func (p *proto) DefaultConfig() *config.MouseConfig {
	return &config.MouseConfig{
		Vendor:          config.VendorB,
		PollingHz:       config.Ptr(1000),
		LodHeight:       config.Ptr("low"),
		RippleControl:   config.Ptr(false),
		DebounceLevel:   config.Ptr("mid"),
		DebounceMS:      config.Ptr(5),
		DpiSlotCount:    config.Ptr(4),
		CurrentDpiIndex: config.Ptr(1),
		DpiSlots: []config.DpiSlot{
			{X: 400, Y: 400}, {X: 800, Y: 800}, {X: 1600, Y: 1600},
			{X: 3200, Y: 3200}, {X: 6400, Y: 6400}, {X: 12000, Y: 12000},
		},
		ButtonMappings: defaultButtons(),
	}
}

func defaultButtons() []config.ButtonMapping {
	labels := []string{"left", "right", "middle", "back", "forward", "dpi_cycle"}
	out := make([]config.ButtonMapping, len(labels))
	for i, l := range labels {
		act, _ := transform.FuncFromLabel(l)
		out[i] = config.ButtonMapping{FuncKey: act.FuncKey, KeyCode: act.KeyCode}
	}
	return out
}

func (p *proto) Plan(prev *config.MouseConfig, patch config.Patch) (*config.MouseConfig, []protocol.Command, error) {
	_, next, cmds, err := protocol.Plan(p.table, p.caps, prev, patch)
	return next, cmds, err
}

func (p *proto) OnOpen(ctx context.Context, tr *protocol.Transport) error { return nil }

// readRegister issues the A5A4 read form and parses the echo from the
// feature report.
func readRegister(ctx context.Context, tr *protocol.Transport, bank, addr byte, n byte, decode func([]byte) error) error {
	req := buildFrame(true, bank, addr, make([]byte, n))
	return tr.SendAndRecvDrained(ctx, cmdReportID, req, featureReportID, readWaitMS, func(raw []byte) error {
		data, err := parseResponse(raw, bank, addr)
		if err != nil {
			return err
		}
		return decode(data)
	})
}

func (p *proto) ReadConfig(ctx context.Context, tr *protocol.Transport, into *config.MouseConfig) error {
	reads := []struct {
		bank, addr, n byte
		decode        func([]byte) error
	}{
		{bankPolling, addrPolling, 1, func(d []byte) error { return decodePolling(d, into) }},
		{bankSensor, addrLod, 1, func(d []byte) error { return decodeLod(d, into) }},
		{bankSensor, addrRipple, 1, func(d []byte) error { return decodeFlag(d, &into.RippleControl) }},
		{bankSensor, addrDebounce, 1, func(d []byte) error { return decodeDebounce(d, into) }},
		{bankSensor, addrSlotCnt, 1, func(d []byte) error { return decodeSlotCount(d, into) }},
		{bankSensor, addrSlotIdx, 1, func(d []byte) error { return decodeSlotIndex(d, into) }},
	}
	for _, rd := range reads {
		if err := readRegister(ctx, tr, rd.bank, rd.addr, rd.n, rd.decode); err != nil {
			return err
		}
	}
	for slot := 0; slot < p.caps.DpiSlotMax; slot++ {
		slot := slot
		if err := readRegister(ctx, tr, bankDpiA, byte(slot*2), 2, func(d []byte) error {
			return decodeDpiSlot(d, slot, into)
		}); err != nil {
			return err
		}
	}
	for slot := 0; slot < p.caps.ButtonCount; slot++ {
		slot := slot
		if err := readRegister(ctx, tr, bankButtons, addrButton0+byte(slot), 2, func(d []byte) error {
			return decodeButton(d, slot, into)
		}); err != nil {
			return err
		}
	}
	return nil
}

// ReadBattery: the family only pushes battery state; the last pushed value
// is what the cache holds, so a forced poll is a read of the status report.
func (p *proto) ReadBattery(ctx context.Context, tr *protocol.Transport) (config.Battery, error) {
	var bat config.Battery
	err := tr.RecvFeatureDrained(ctx, batteryReportID, func(raw []byte) error {
		if len(raw) <= batteryByteIndex {
			return cfgerror.IoReadFail("status report too short")
		}
		bat = config.Battery{Percent: int(raw[batteryByteIndex])}
		return nil
	})
	return bat, err
}

// HandleInput picks the battery percent out of the status input report.
func (p *proto) HandleInput(r hid.InputReport, into *config.MouseConfig) (bool, bool) {
	if r.ReportID != batteryReportID || len(r.Data) <= batteryByteIndex {
		return false, false
	}
	into.Battery = &config.Battery{Percent: int(r.Data[batteryByteIndex])}
	return false, true
}

func errShort(addr byte) error {
	return fmt.Errorf("register 0x%02x reply too short", addr)
}

func decodePolling(d []byte, into *config.MouseConfig) error {
	if len(d) < 1 {
		return errShort(addrPolling)
	}
	for hz, code := range pollingCode {
		if code == d[0] {
			into.PollingHz = config.Ptr(hz)
			return nil
		}
	}
	return fmt.Errorf("unknown polling interval %d", d[0])
}

func decodeLod(d []byte, into *config.MouseConfig) error {
	if len(d) < 1 {
		return errShort(addrLod)
	}
	for lod, code := range lodCode {
		if code == d[0] {
			into.LodHeight = config.Ptr(lod)
			return nil
		}
	}
	return fmt.Errorf("unknown lod code 0x%02x", d[0])
}

func decodeFlag(d []byte, dst **bool) error {
	if len(d) < 1 {
		return fmt.Errorf("flag reply too short")
	}
	*dst = config.Ptr(d[0] != 0)
	return nil
}

func decodeDebounce(d []byte, into *config.MouseConfig) error {
	if len(d) < 1 {
		return errShort(addrDebounce)
	}
	ms := int(d[0])
	into.DebounceMS = config.Ptr(ms)
	if level, ok := transform.MSToDebounceLevel(ms); ok {
		into.DebounceLevel = config.Ptr(level)
	}
	return nil
}

func decodeSlotCount(d []byte, into *config.MouseConfig) error {
	if len(d) < 1 {
		return errShort(addrSlotCnt)
	}
	into.DpiSlotCount = config.Ptr(int(d[0]))
	return nil
}

func decodeSlotIndex(d []byte, into *config.MouseConfig) error {
	if len(d) < 1 {
		return errShort(addrSlotIdx)
	}
	into.CurrentDpiIndex = config.Ptr(int(d[0]))
	return nil
}

func decodeDpiSlot(d []byte, slot int, into *config.MouseConfig) error {
	if len(d) < 2 {
		return errShort(byte(slot * 2))
	}
	v := transform.U16LE(d)
	for len(into.DpiSlots) <= slot {
		into.DpiSlots = append(into.DpiSlots, config.DpiSlot{})
	}
	into.DpiSlots[slot] = config.DpiSlot{X: v, Y: v}
	return nil
}

func decodeButton(d []byte, slot int, into *config.MouseConfig) error {
	if len(d) < 2 {
		return errShort(addrButton0 + byte(slot))
	}
	for len(into.ButtonMappings) <= slot {
		into.ButtonMappings = append(into.ButtonMappings, config.ButtonMapping{})
	}
	into.ButtonMappings[slot] = config.ButtonMapping{FuncKey: d[0], KeyCode: d[1]}
	return nil
}
