package vendora

import (
	"bytes"
	"context"
	"fmt"

	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/hid"
	"github.com/Nuitfanee/clicksync/protocol"
	"github.com/Nuitfanee/clicksync/transform"
)

const readWaitMS = 20

type proto struct {
	caps  *config.Capabilities
	table *protocol.Table
}

// Protocol returns the family binding.
func Protocol() *proto {
	return &proto{caps: Capabilities(), table: Table()}
}

func (p *proto) Tag() config.VendorTag              { return config.VendorA }
func (p *proto) Capabilities() *config.Capabilities { return p.caps }
func (p *proto) KeepAlive(data []byte) bool         { return false }

func (p *proto) DefaultConfig() *config.MouseConfig {
	return &config.MouseConfig{
		Vendor:          config.VendorA,
		PollingHz:       config.Ptr(1000),
		PerformanceMode: config.Ptr("std"),
		LodHeight:       config.Ptr("low"),
		DebounceLevel:   config.Ptr("mid"),
		DebounceMS:      config.Ptr(5),
		Hyperclick:      config.Ptr(false),
		BurstDelayMS:    config.Ptr(0),
		SleepSeconds:    config.Ptr(180),
		DpiSlotCount:    config.Ptr(4),
		CurrentDpiIndex: config.Ptr(1),
		DpiSlots: []config.DpiSlot{
			{X: 400, Y: 400}, {X: 800, Y: 800}, {X: 1600, Y: 1600},
			{X: 3200, Y: 3200}, {X: 6400, Y: 6400},
		},
		ButtonMappings: defaultButtons(),
		Led:            &config.LedState{Enabled: true, Mode: "static", Brightness: 100, Speed: 10, Color: "#ff0000"},
	}
}

func defaultButtons() []config.ButtonMapping {
	labels := []string{"left", "right", "middle", "back", "forward"}
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

// readRegister issues the read form of an opcode and parses the echoed
// reply, draining stale frames.
func readRegister(ctx context.Context, tr *protocol.Transport, opcode byte, arg []byte, decode func([]byte) error) error {
	req := buildFrame(opcode|readBit, arg)
	return tr.SendAndRecvDrained(ctx, cmdReportID, req, cmdReportID, readWaitMS, func(raw []byte) error {
		data, err := parseResponse(raw, opcode|readBit)
		if err != nil {
			return err
		}
		return decode(data)
	})
}

// ReadConfig walks the full register set. Button mappings use a strict read
// inside the secure bracket.
func (p *proto) ReadConfig(ctx context.Context, tr *protocol.Transport, into *config.MouseConfig) error {
	simple := []struct {
		opcode byte
		decode func([]byte) error
	}{
		{opPolling, func(d []byte) error { return decodePolling(d, into) }},
		{opLod, func(d []byte) error { return decodeLod(d, into) }},
		{opPerfMode, func(d []byte) error { return decodePerfMode(d, into) }},
		{opDebounce, func(d []byte) error { return decodeDebounce(d, into) }},
		{opHyperclick, func(d []byte) error { return decodeFlag(d, &into.Hyperclick) }},
		{opBurst, func(d []byte) error { return decodeBurst(d, into) }},
		{opSleep, func(d []byte) error { return decodeSleep(d, into) }},
		{opSlotCount, func(d []byte) error { return decodeSlotCount(d, into) }},
		{opSlotIndex, func(d []byte) error { return decodeSlotIndex(d, into) }},
		{opLed, func(d []byte) error { return decodeLed(d, into) }},
	}
	for _, rd := range simple {
		if err := readRegister(ctx, tr, rd.opcode, nil, rd.decode); err != nil {
			return err
		}
	}
	for slot := 0; slot < p.caps.DpiSlotMax; slot++ {
		slot := slot
		if err := readRegister(ctx, tr, opDpi, []byte{byte(slot)}, func(d []byte) error {
			return decodeDpiSlot(d, slot, into)
		}); err != nil {
			return err
		}
	}
	if err := p.readButtons(ctx, tr, into); err != nil {
		return err
	}
	if err := readRegister(ctx, tr, opFwMain, nil, func(d []byte) error { return decodeFirmware(d, into, 0) }); err != nil {
		return err
	}
	if err := readRegister(ctx, tr, opFwWireless, nil, func(d []byte) error { return decodeFirmware(d, into, 1) }); err != nil {
		return err
	}
	return readRegister(ctx, tr, opName, nil, func(d []byte) error {
		into.DeviceName = string(bytes.TrimRight(d, "\x00"))
		return nil
	})
}

// readButtons brackets the button-map reads in the secure gate; the lock is
// best effort once a read inside the bracket failed.
func (p *proto) readButtons(ctx context.Context, tr *protocol.Transport, into *config.MouseConfig) error {
	g := gate()
	if err := tr.Unlock(ctx, g); err != nil {
		return err
	}
	var readErr error
	for slot := 0; slot < p.caps.ButtonCount; slot++ {
		slot := slot
		readErr = readRegister(ctx, tr, opButtonMap, []byte{byte(slot)}, func(d []byte) error {
			return decodeButton(d, slot, into)
		})
		if readErr != nil {
			break
		}
	}
	if lockErr := tr.Lock(ctx, g); lockErr != nil && readErr == nil {
		readErr = lockErr
	}
	return readErr
}

func (p *proto) ReadBattery(ctx context.Context, tr *protocol.Transport) (config.Battery, error) {
	var bat config.Battery
	err := readRegister(ctx, tr, opBattery, nil, func(d []byte) error {
		if len(d) < 1 {
			return errShort(opBattery)
		}
		bat = config.Battery{Percent: int(d[0]), Charging: false}
		return nil
	})
	return bat, err
}

// HandleInput: the family pushes nothing the engine interprets.
func (p *proto) HandleInput(r hid.InputReport, into *config.MouseConfig) (bool, bool) {
	return false, false
}

func errShort(op byte) error {
	return fmt.Errorf("register 0x%02x reply too short", op)
}

func decodePolling(d []byte, into *config.MouseConfig) error {
	if len(d) < 1 {
		return errShort(opPolling)
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
		return errShort(opLod)
	}
	for lod, code := range lodCode {
		if code == d[0] {
			into.LodHeight = config.Ptr(lod)
			return nil
		}
	}
	return fmt.Errorf("unknown lod code 0x%02x", d[0])
}

func decodePerfMode(d []byte, into *config.MouseConfig) error {
	if len(d) < 1 {
		return errShort(opPerfMode)
	}
	for mode, code := range perfModeCode {
		if code == d[0] {
			into.PerformanceMode = config.Ptr(mode)
			return nil
		}
	}
	return fmt.Errorf("unknown performance mode code 0x%02x", d[0])
}

func decodeDebounce(d []byte, into *config.MouseConfig) error {
	if len(d) < 1 {
		return errShort(opDebounce)
	}
	ms := int(d[0])
	into.DebounceMS = config.Ptr(ms)
	if level, ok := transform.MSToDebounceLevel(ms); ok {
		into.DebounceLevel = config.Ptr(level)
	}
	return nil
}

func decodeFlag(d []byte, dst **bool) error {
	if len(d) < 1 {
		return fmt.Errorf("flag reply too short")
	}
	*dst = config.Ptr(d[0] != 0)
	return nil
}

func decodeBurst(d []byte, into *config.MouseConfig) error {
	if len(d) < 1 {
		return errShort(opBurst)
	}
	into.BurstDelayMS = config.Ptr(int(d[0]) * 10)
	return nil
}

func decodeSleep(d []byte, into *config.MouseConfig) error {
	if len(d) < 1 {
		return errShort(opSleep)
	}
	into.SleepSeconds = config.Ptr(int(d[0]) * 60)
	return nil
}

func decodeSlotCount(d []byte, into *config.MouseConfig) error {
	if len(d) < 1 {
		return errShort(opSlotCount)
	}
	into.DpiSlotCount = config.Ptr(int(d[0]))
	return nil
}

func decodeSlotIndex(d []byte, into *config.MouseConfig) error {
	if len(d) < 1 {
		return errShort(opSlotIndex)
	}
	into.CurrentDpiIndex = config.Ptr(int(d[0]))
	return nil
}

func decodeDpiSlot(d []byte, slot int, into *config.MouseConfig) error {
	if len(d) < 2 {
		return errShort(opDpi)
	}
	_, dpi := transform.UnpackDpiIndexed(d[0], d[1])
	for len(into.DpiSlots) <= slot {
		into.DpiSlots = append(into.DpiSlots, config.DpiSlot{})
	}
	into.DpiSlots[slot] = config.DpiSlot{X: dpi, Y: dpi}
	return nil
}

func decodeButton(d []byte, slot int, into *config.MouseConfig) error {
	if len(d) < 3 {
		return errShort(opButtonMap)
	}
	if int(d[0]) != slot {
		return fmt.Errorf("button reply for slot %d while reading slot %d", d[0], slot)
	}
	for len(into.ButtonMappings) <= slot {
		into.ButtonMappings = append(into.ButtonMappings, config.ButtonMapping{})
	}
	into.ButtonMappings[slot] = config.ButtonMapping{FuncKey: d[1], KeyCode: d[2]}
	return nil
}

func decodeLed(d []byte, into *config.MouseConfig) error {
	if len(d) < 7 {
		return errShort(opLed)
	}
	mode := ""
	for m, code := range ledModeCode {
		if code == d[1] {
			mode = m
			break
		}
	}
	brightness := 0
	for pct, code := range brightnessCode {
		if code == d[2] {
			brightness = pct
			break
		}
	}
	into.Led = &config.LedState{
		Enabled:    d[0] != 0,
		Mode:       mode,
		Brightness: brightness,
		Speed:      transform.LedSpeedSemantic(d[3]),
		Color:      transform.FormatColor(transform.RGB{R: d[4], G: d[5], B: d[6]}),
	}
	return nil
}

func decodeFirmware(d []byte, into *config.MouseConfig, idx int) error {
	if len(d) < 2 {
		return fmt.Errorf("firmware reply too short")
	}
	for len(into.FirmwareIDs) <= idx {
		into.FirmwareIDs = append(into.FirmwareIDs, "")
	}
	into.FirmwareIDs[idx] = fmt.Sprintf("%d.%d", d[0], d[1])
	return nil
}
