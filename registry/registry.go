// Package registry identifies connected devices and produces the matching
// protocol family facade.
package registry

import (
	"log/slog"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/driver/vendora"
	"github.com/Nuitfanee/clicksync/driver/vendorb"
	"github.com/Nuitfanee/clicksync/driver/vendorc"
	"github.com/Nuitfanee/clicksync/driver/vendord"
	"github.com/Nuitfanee/clicksync/driver/vendore"
	"github.com/Nuitfanee/clicksync/hid"
	ilog "github.com/Nuitfanee/clicksync/internal/log"
	"github.com/Nuitfanee/clicksync/mouseapi"
	"github.com/Nuitfanee/clicksync/protocol"
)

// ReportFilter narrows which HID collections of a matched device carry the
// vendor protocol.
type ReportFilter struct {
	VendorID  uint16
	ProductID uint16 // 0 = any
	UsagePage uint16 // 0 = any
	Usage     uint16 // 0 = any
}

// Registration is one vendor family entry.
type Registration struct {
	Tag           config.VendorTag
	Match         func(hid.Device) bool
	ReportFilters []ReportFilter
	Factory       func() mouseapi.Protocol
}

// hasCollection reports whether any collection matches one of the usage
// signatures.
func hasCollection(d hid.Device, pages map[uint16][]uint16) bool {
	for _, c := range d.Collections() {
		usages, ok := pages[c.UsagePage]
		if !ok {
			continue
		}
		if len(usages) == 0 {
			return true
		}
		for _, u := range usages {
			if c.Usage == u {
				return true
			}
		}
	}
	return false
}

// Registrations is the static family table.
var Registrations = []Registration{
	{
		Tag: config.VendorA,
		Match: func(d hid.Device) bool {
			return d.VendorID() == 0x093A && d.ProductID() == 0xEB02 &&
				hasCollection(d, map[uint16][]uint16{0xFF01: nil, 0xFF00: nil})
		},
		ReportFilters: []ReportFilter{{VendorID: 0x093A, ProductID: 0xEB02, UsagePage: 0xFF01}, {VendorID: 0x093A, ProductID: 0xEB02, UsagePage: 0xFF00}},
		Factory:       func() mouseapi.Protocol { return vendora.Protocol() },
	},
	{
		Tag: config.VendorB,
		Match: func(d hid.Device) bool {
			return d.VendorID() == 0x24AE &&
				hasCollection(d, map[uint16][]uint16{0xFF00: {14, 15}})
		},
		ReportFilters: []ReportFilter{{VendorID: 0x24AE, UsagePage: 0xFF00, Usage: 14}, {VendorID: 0x24AE, UsagePage: 0xFF00, Usage: 15}},
		Factory:       func() mouseapi.Protocol { return vendorb.Protocol() },
	},
	{
		Tag: config.VendorC,
		Match: func(d hid.Device) bool {
			return d.VendorID() == 0x1915 &&
				hasCollection(d, map[uint16][]uint16{0xFF0A: nil, 0xFF00: nil})
		},
		ReportFilters: []ReportFilter{{VendorID: 0x1915, UsagePage: 0xFF0A}, {VendorID: 0x1915, UsagePage: 0xFF00}},
		Factory:       func() mouseapi.Protocol { return vendorc.Protocol() },
	},
	{
		Tag: config.VendorD,
		Match: func(d hid.Device) bool {
			return d.VendorID() == 0x046D &&
				hasCollection(d, map[uint16][]uint16{0xFF00: {0x01, 0x02}})
		},
		ReportFilters: []ReportFilter{{VendorID: 0x046D, UsagePage: 0xFF00, Usage: 0x01}, {VendorID: 0x046D, UsagePage: 0xFF00, Usage: 0x02}},
		Factory:       func() mouseapi.Protocol { return vendord.Protocol() },
	},
	{
		Tag: config.VendorE,
		Match: func(d hid.Device) bool {
			return (d.VendorID() == 0x373B || d.VendorID() == 0x3710) &&
				hasCollection(d, map[uint16][]uint16{0xFF02: {0x0002}})
		},
		ReportFilters: []ReportFilter{{VendorID: 0x373B, UsagePage: 0xFF02, Usage: 0x0002}, {VendorID: 0x3710, UsagePage: 0xFF02, Usage: 0x0002}},
		Factory:       func() mouseapi.Protocol { return vendore.Protocol() },
	},
}

// Identify returns the registration matching the device, or nil.
func Identify(d hid.Device) *Registration {
	for i := range Registrations {
		if Registrations[i].Match(d) {
			return &Registrations[i]
		}
	}
	return nil
}

// ByTag returns the registration for a family tag, or nil.
func ByTag(tag config.VendorTag) *Registration {
	for i := range Registrations {
		if Registrations[i].Tag == tag {
			return &Registrations[i]
		}
	}
	return nil
}

// New identifies the device and builds its facade with default timings.
func New(d hid.Device, logger *slog.Logger, raw ilog.RawLogger) (*mouseapi.Api, error) {
	reg := Identify(d)
	if reg == nil {
		return nil, cfgerror.FeatureUnsupported("device",
			d.ProductName())
	}
	return mouseapi.New(d, reg.Factory(), protocol.DefaultTimings(), logger, raw), nil
}
