package vendord

import (
	"context"
	"fmt"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/hid"
	"github.com/Nuitfanee/clicksync/protocol"
)

type proto struct {
	caps  *config.Capabilities
	table *protocol.Table
}

// Protocol returns the family binding.
func Protocol() *proto {
	return &proto{caps: Capabilities(), table: Table()}
}

func (p *proto) Tag() config.VendorTag              { return config.VendorD }
func (p *proto) Capabilities() *config.Capabilities { return p.caps }
func (p *proto) KeepAlive(data []byte) bool         { return IsKeepAlive(data) }

func Capabilities() *config.Capabilities {
	return &config.Capabilities{
		Vendor:       config.VendorD,
		PollingRates: []int{125, 250, 500, 1000},
		DpiMin:       100, DpiMax: 25600, DpiSlotMax: 5,
		SplitAxisDpi: true,
		ButtonCount:  5,
		Keys: []string{
			config.KeyPollingHz, config.KeyLodHeight, config.KeyBurstDelayMS,
			config.KeyDpiSlotCount, config.KeyCurrentDpiIndex,
			config.KeyDpiSlots, config.KeyDpiSlotsX, config.KeyDpiSlotsY, config.KeyDpiSlot,
			config.KeyButtonMappings, config.KeyButtonMapping,
			config.KeyDpiProfile,
		},
	}
}

// Table returns the family SPEC table. Every configurable field lives in
// the on-board profile image, so a single virtual entry plans the whole
// rewrite stream.
func Table() *protocol.Table {
	return &protocol.Table{
		Vendor:  config.VendorD,
		Entries: entries(),
		Pack: func(ws protocol.WriteSpec) protocol.Command {
			// Unused: the profile entry plans its own commands.
			return protocol.Command{}
		},
	}
}

func entries() []protocol.Entry {
	return []protocol.Entry{
		{
			Key: config.KeyDpiProfile, Kind: protocol.Virtual, Priority: 50,
			Triggers: []string{
				config.KeyPollingHz, config.KeyLodHeight, config.KeyBurstDelayMS,
				config.KeyDpiSlots, config.KeyDpiSlotsX, config.KeyDpiSlotsY, config.KeyDpiSlot,
				config.KeyDpiSlotCount, config.KeyCurrentDpiIndex,
				config.KeyButtonMappings, config.KeyButtonMapping,
			},
			Validate: func(c *protocol.Ctx) error {
				if c.Next.PollingHz != nil {
					if _, ok := pollingFlagCode[*c.Next.PollingHz]; !ok {
						return cfgerror.BadParam(config.KeyPollingHz, *c.Next.PollingHz, "unsupported polling rate")
					}
				}
				if c.Next.LodHeight != nil {
					if _, ok := lodFlag[*c.Next.LodHeight]; !ok {
						return cfgerror.BadParam(config.KeyLodHeight, *c.Next.LodHeight, "must be low, mid or high")
					}
				}
				if c.Next.BurstDelayMS != nil {
					v := *c.Next.BurstDelayMS
					if v < 0 || v > 2550 || v%10 != 0 {
						return cfgerror.BadParam(config.KeyBurstDelayMS, v, "must be 0..2550 in steps of 10")
					}
				}
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
			},
			Plan: func(c *protocol.Ctx) ([]protocol.Command, error) {
				return buildStream(c.Next), nil
			},
		},
	}
}

func (p *proto) DefaultConfig() *config.MouseConfig {
	return &config.MouseConfig{
		Vendor:          config.VendorD,
		PollingHz:       config.Ptr(1000),
		LodHeight:       config.Ptr("mid"),
		BurstDelayMS:    config.Ptr(0),
		DpiSlotCount:    config.Ptr(5),
		CurrentDpiIndex: config.Ptr(0),
		DpiSlots: []config.DpiSlot{
			{X: 400, Y: 400}, {X: 800, Y: 800}, {X: 1600, Y: 1600},
			{X: 3200, Y: 3200}, {X: 6400, Y: 6400},
		},
		ButtonMappings: make([]config.ButtonMapping, buttonSlots),
	}
}

func (p *proto) Plan(prev *config.MouseConfig, patch config.Patch) (*config.MouseConfig, []protocol.Command, error) {
	_, next, cmds, err := protocol.Plan(p.table, p.caps, prev, patch)
	return next, cmds, err
}

func (p *proto) OnOpen(ctx context.Context, tr *protocol.Transport) error { return nil }

// call performs one feature round trip, capturing the matched reply.
func call(ctx context.Context, tr *protocol.Transport, reportID byte, req []byte, feature, function byte, chunkIndex int) ([]byte, error) {
	var reply []byte
	base := ackMatcher(feature, function, chunkIndex)
	m := &protocol.AckMatcher{
		ReportID: base.ReportID,
		Match: func(data []byte) bool {
			if !base.Match(data) {
				return false
			}
			reply = append([]byte(nil), data...)
			return true
		},
	}
	if err := tr.SendAndWait(ctx, reportID, req, m, 0); err != nil {
		return nil, err
	}
	return reply, nil
}

// ReadConfig pulls the on-board profile image page by page and decodes it.
func (p *proto) ReadConfig(ctx context.Context, tr *protocol.Transport, into *config.MouseConfig) error {
	img := make([]byte, 0, profileSize)
	for page := 0; page < chunkCount; page++ {
		reply, err := call(ctx, tr, shortReportID,
			shortFrame(featProfile, funcReadPage, byte(page)), featProfile, funcReadPage, -1)
		if err != nil {
			return err
		}
		if len(reply) < 3+chunkSize {
			return cfgerror.IoReadFail("profile page reply too short")
		}
		img = append(img, reply[3:3+chunkSize]...)
	}
	parseImage(img, into)
	return nil
}

func (p *proto) ReadBattery(ctx context.Context, tr *protocol.Transport) (config.Battery, error) {
	reply, err := call(ctx, tr, shortReportID,
		shortFrame(featBattery, funcBatteryStatus), featBattery, funcBatteryStatus, -1)
	if err != nil {
		return config.Battery{}, err
	}
	if len(reply) < 5 {
		return config.Battery{}, cfgerror.IoReadFail("battery reply too short")
	}
	return config.Battery{Percent: int(reply[3]), Charging: reply[4]&0x01 != 0}, nil
}

// HandleInput interprets unsolicited battery events.
func (p *proto) HandleInput(r hid.InputReport, into *config.MouseConfig) (bool, bool) {
	d := r.Data
	if len(d) >= 5 && d[0] == deviceIndex && d[1] == featBattery && d[2] == funcBatteryStatus {
		into.Battery = &config.Battery{Percent: int(d[3]), Charging: d[4]&0x01 != 0}
		return false, true
	}
	return false, false
}
