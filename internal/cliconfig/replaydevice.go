package cliconfig

import (
	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/hid"
	"github.com/Nuitfanee/clicksync/internal/hidtest"
)

// newReplayDevice builds a scripted device that acknowledges whatever the
// engine sends, so a full apply can run without hardware. Families with
// plain register writes need no replies; the streaming family echoes an ack
// for every feature call, counting chunks as real firmware does.
func newReplayDevice(tag config.VendorTag) *hidtest.Device {
	var vendor, product uint16
	var cols []hid.Collection
	switch tag {
	case config.VendorA:
		vendor, product = 0x093A, 0xEB02
		cols = []hid.Collection{{UsagePage: 0xFF01}}
	case config.VendorB:
		vendor = 0x24AE
		cols = []hid.Collection{{UsagePage: 0xFF00, Usage: 14}}
	case config.VendorC:
		vendor = 0x1915
		cols = []hid.Collection{{UsagePage: 0xFF0A}}
	case config.VendorD:
		vendor = 0x046D
		cols = []hid.Collection{{UsagePage: 0xFF00, Usage: 0x02}}
	case config.VendorE:
		vendor = 0x373B
		cols = []hid.Collection{{UsagePage: 0xFF02, Usage: 0x0002}}
	}
	dev := hidtest.New(vendor, product)
	dev.Cols = cols

	if tag == config.VendorD {
		chunk := 0
		dev.OnSend = func(s hidtest.Sent) {
			if len(s.Data) < 3 || s.Data[0] != 0x01 {
				return
			}
			feature, function := s.Data[1], s.Data[2]
			idx := byte(0)
			switch function {
			case 0x0F:
				if feature == 0x0D {
					chunk = 0
				}
			case 0x7F:
				idx = byte(chunk)
				chunk++
			}
			dev.PushInput(0x11, []byte{0x01, feature, function, idx})
		}
	}
	return dev
}
