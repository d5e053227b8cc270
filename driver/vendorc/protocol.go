package vendorc

import (
	"context"
	"fmt"

	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/hid"
	"github.com/Nuitfanee/clicksync/protocol"
	"github.com/Nuitfanee/clicksync/transform"
)

// Input-report type bytes pushed by the device.
const (
	inputTypeConfig  byte = 0x02
	inputTypeBattery byte = 0x03
)

// readWaitMS is the pause between a read request and its feature read.
const readWaitMS = 25

type proto struct {
	caps  *config.Capabilities
	table *protocol.Table
}

// Protocol returns the family binding.
func Protocol() *proto {
	return &proto{caps: Capabilities(), table: Table()}
}

func (p *proto) Tag() config.VendorTag              { return config.VendorC }
func (p *proto) Capabilities() *config.Capabilities { return p.caps }
func (p *proto) KeepAlive(data []byte) bool         { return false }

func (p *proto) DefaultConfig() *config.MouseConfig {
	return &config.MouseConfig{
		Vendor:           config.VendorC,
		PollingHz:        config.Ptr(1000),
		PerformanceMode:  config.Ptr("hp"),
		LodHeight:        config.Ptr("low"),
		DebounceLevel:    config.Ptr("mid"),
		DebounceMS:       config.Ptr(5),
		MotionSync:       config.Ptr(false),
		LinearCorrection: config.Ptr(false),
		RippleControl:    config.Ptr(false),
		GlassMode:        config.Ptr(false),
		SensorAngle:      config.Ptr(0),
		SensorFeel:       config.Ptr(0),
		SleepSeconds:     config.Ptr(300),
		DpiSlotCount:     config.Ptr(4),
		CurrentDpiIndex:  config.Ptr(1),
		DpiSlots: []config.DpiSlot{
			{X: 400, Y: 400}, {X: 800, Y: 800}, {X: 1600, Y: 1600},
			{X: 3200, Y: 3200}, {X: 6400, Y: 6400},
		},
		ButtonMappings: defaultButtons(),
		Led:            &config.LedState{Enabled: true, Mode: "static", Brightness: 100, Color: "#ffffff"},
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

// OnOpen runs the secure-unlock handshake; the firmware treats a repeated
// unlock as a no-op, so this is safe on already-open devices.
func (p *proto) OnOpen(ctx context.Context, tr *protocol.Transport) error {
	g := gate()
	if err := tr.Unlock(ctx, g); err != nil {
		return err
	}
	return tr.Lock(ctx, g)
}

// readRegister performs one read round trip with stale-frame draining.
func readRegister(ctx context.Context, tr *protocol.Transport, opcode, lenOrIdx byte, decode func(Response) error) error {
	return tr.SendAndRecvDrained(ctx, cmdReportID, readFrame(opcode, lenOrIdx), cmdReportID, readWaitMS, func(raw []byte) error {
		resp, err := parseResponse(raw, opcode)
		if err != nil {
			return err
		}
		return decode(resp)
	})
}

// ReadConfig rebuilds the snapshot register by register.
func (p *proto) ReadConfig(ctx context.Context, tr *protocol.Transport, into *config.MouseConfig) error {
	reads := []struct {
		opcode, lenOrIdx byte
		decode           func(Response) error
	}{
		{opPolling, 0x01, func(r Response) error { return decodePolling(r, into) }},
		{opPerfMode, 0x01, func(r Response) error { return decodePerfMode(r, into) }},
		{opGlass, 0x02, func(r Response) error { return decodeLod(r, into) }},
		{opGlass, 0x01, func(r Response) error { return decodeFlag(r, &into.GlassMode) }},
		{opRipple, 0x01, func(r Response) error { return decodeFlag(r, &into.RippleControl) }},
		{opMode, 0x01, func(r Response) error { return decodeModeByte(r, into) }},
		{opAngle, 0x01, func(r Response) error { return decodeAngle(r, into) }},
		{opFeel, 0x01, func(r Response) error { return decodeFeel(r, into) }},
		{opDebounce, 0x01, func(r Response) error { return decodeDebounce(r, into) }},
		{opSleep, 0x01, func(r Response) error { return decodeSleep(r, into) }},
		{opSlotCount, 0x01, func(r Response) error { return decodeSlotCount(r, into) }},
		{opSlotIndex, 0x01, func(r Response) error { return decodeSlotIndex(r, into) }},
		{opLed, 0x07, func(r Response) error { return decodeLed(r, into) }},
		{opFirmware, 0x01, func(r Response) error { return decodeFirmware(r, into) }},
	}
	for _, rd := range reads {
		if err := readRegister(ctx, tr, rd.opcode, rd.lenOrIdx, rd.decode); err != nil {
			return err
		}
	}
	for slot := 0; slot < p.caps.DpiSlotMax; slot++ {
		slot := slot
		if err := readRegister(ctx, tr, opDpi, byte(slot), func(r Response) error {
			return decodeDpiSlot(r, slot, into)
		}); err != nil {
			return err
		}
	}
	for slot := 0; slot < p.caps.ButtonCount; slot++ {
		slot := slot
		if err := readRegister(ctx, tr, opButtonMap, byte(slot), func(r Response) error {
			return decodeButton(r, slot, into)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *proto) ReadBattery(ctx context.Context, tr *protocol.Transport) (config.Battery, error) {
	var bat config.Battery
	err := readRegister(ctx, tr, opBattery, 0x01, func(r Response) error {
		if len(r.Data) < 1 {
			return errShort(opBattery)
		}
		bat = config.Battery{Percent: int(r.Data[0])}
		if len(r.Data) > 1 {
			bat.Charging = r.Data[1]&0x01 != 0
		}
		return nil
	})
	return bat, err
}

// HandleInput demultiplexes pushed frames: type 0x03 is battery, type 0x02
// carries a register echo laid out as opcode, length, then data.
func (p *proto) HandleInput(r hid.InputReport, into *config.MouseConfig) (configChanged, batteryChanged bool) {
	if len(r.Data) < 2 {
		return false, false
	}
	switch r.Data[0] {
	case inputTypeBattery:
		bat := config.Battery{Percent: int(r.Data[1])}
		if len(r.Data) > 2 {
			bat.Charging = r.Data[2]&0x01 != 0
		}
		into.Battery = &bat
		return false, true
	case inputTypeConfig:
		if len(r.Data) < 9 {
			return false, false
		}
		resp := Response{Opcode: r.Data[1], Data: r.Data[3:]}
		if n := int(r.Data[2]); n > 0 && n <= len(resp.Data) {
			resp.Data = resp.Data[:n]
		}
		return decodePushed(resp, into), false
	}
	return false, false
}

// decodePushed routes a pushed register echo through the read decoders.
func decodePushed(r Response, into *config.MouseConfig) bool {
	var err error
	switch r.Opcode {
	case opPolling:
		err = decodePolling(r, into)
	case opPerfMode:
		err = decodePerfMode(r, into)
	case opMode:
		err = decodeModeByte(r, into)
	case opSlotIndex:
		err = decodeSlotIndex(r, into)
	case opSlotCount:
		err = decodeSlotCount(r, into)
	default:
		return false
	}
	return err == nil
}

func errShort(op byte) error {
	return fmt.Errorf("register 0x%02x reply too short", op)
}

func decodePolling(r Response, into *config.MouseConfig) error {
	if len(r.Data) < 1 {
		return errShort(r.Opcode)
	}
	for hz, code := range pollingCode {
		if code == r.Data[0] {
			into.PollingHz = config.Ptr(hz)
			return nil
		}
	}
	return fmt.Errorf("unknown polling code 0x%02x", r.Data[0])
}

func decodePerfMode(r Response, into *config.MouseConfig) error {
	if len(r.Data) < 1 {
		return errShort(r.Opcode)
	}
	for mode, code := range perfModeCode {
		if code == r.Data[0] {
			into.PerformanceMode = config.Ptr(mode)
			return nil
		}
	}
	return fmt.Errorf("unknown performance mode code 0x%02x", r.Data[0])
}

func decodeLod(r Response, into *config.MouseConfig) error {
	if len(r.Data) < 1 {
		return errShort(r.Opcode)
	}
	for lod, code := range lodCode {
		if code == r.Data[0] {
			into.LodHeight = config.Ptr(lod)
			return nil
		}
	}
	return fmt.Errorf("unknown lod code 0x%02x", r.Data[0])
}

func decodeFlag(r Response, dst **bool) error {
	if len(r.Data) < 1 {
		return errShort(r.Opcode)
	}
	*dst = config.Ptr(r.Data[0] != 0)
	return nil
}

func decodeModeByte(r Response, into *config.MouseConfig) error {
	if len(r.Data) < 1 {
		return errShort(r.Opcode)
	}
	b := r.Data[0]
	into.ModeByte = config.Ptr(b)
	into.MotionSync = config.Ptr(b&0x01 == 0)
	into.LinearCorrection = config.Ptr(b&0x02 == 0)
	return nil
}

func decodeAngle(r Response, into *config.MouseConfig) error {
	if len(r.Data) < 1 {
		return errShort(r.Opcode)
	}
	into.SensorAngle = config.Ptr(transform.Unsigned8(r.Data[0]))
	return nil
}

func decodeFeel(r Response, into *config.MouseConfig) error {
	if len(r.Data) < 1 {
		return errShort(r.Opcode)
	}
	into.SensorFeel = config.Ptr(transform.UnFeel7(r.Data[0]))
	return nil
}

func decodeDebounce(r Response, into *config.MouseConfig) error {
	if len(r.Data) < 1 {
		return errShort(r.Opcode)
	}
	ms := int(r.Data[0])
	into.DebounceMS = config.Ptr(ms)
	if level, ok := transform.MSToDebounceLevel(ms); ok {
		into.DebounceLevel = config.Ptr(level)
	}
	return nil
}

func decodeSleep(r Response, into *config.MouseConfig) error {
	if len(r.Data) < 1 {
		return errShort(r.Opcode)
	}
	into.SleepSeconds = config.Ptr(int(r.Data[0]) * 60)
	return nil
}

func decodeSlotCount(r Response, into *config.MouseConfig) error {
	if len(r.Data) < 1 {
		return errShort(r.Opcode)
	}
	into.DpiSlotCount = config.Ptr(int(r.Data[0]))
	return nil
}

func decodeSlotIndex(r Response, into *config.MouseConfig) error {
	if len(r.Data) < 1 {
		return errShort(r.Opcode)
	}
	into.CurrentDpiIndex = config.Ptr(int(r.Data[0]))
	return nil
}

func decodeDpiSlot(r Response, slot int, into *config.MouseConfig) error {
	if len(r.Data) < 3 {
		return errShort(r.Opcode)
	}
	for len(into.DpiSlots) <= slot {
		into.DpiSlots = append(into.DpiSlots, config.DpiSlot{})
	}
	v := transform.U16LE(r.Data[1:3])
	into.DpiSlots[slot] = config.DpiSlot{X: v, Y: v}
	return nil
}

func decodeButton(r Response, slot int, into *config.MouseConfig) error {
	if len(r.Data) < 3 {
		return errShort(r.Opcode)
	}
	for len(into.ButtonMappings) <= slot {
		into.ButtonMappings = append(into.ButtonMappings, config.ButtonMapping{})
	}
	into.ButtonMappings[slot] = config.ButtonMapping{FuncKey: r.Data[1], KeyCode: r.Data[2]}
	return nil
}

func decodeLed(r Response, into *config.MouseConfig) error {
	if len(r.Data) < 7 {
		return errShort(r.Opcode)
	}
	mode := ""
	for m, code := range ledModeCode {
		if code == r.Data[1] {
			mode = m
			break
		}
	}
	into.Led = &config.LedState{
		Enabled:    r.Data[0] != 0,
		Mode:       mode,
		Brightness: int(r.Data[2]),
		Speed:      int(r.Data[3]),
		Color:      transform.FormatColor(transform.RGB{R: r.Data[4], G: r.Data[5], B: r.Data[6]}),
	}
	return nil
}

func decodeFirmware(r Response, into *config.MouseConfig) error {
	if len(r.Data) < 2 {
		return errShort(r.Opcode)
	}
	into.FirmwareIDs = []string{fmt.Sprintf("%d.%d", r.Data[0], r.Data[1])}
	return nil
}
