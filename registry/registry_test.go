package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/hid"
	"github.com/Nuitfanee/clicksync/internal/hidtest"
	"github.com/Nuitfanee/clicksync/registry"
)

func device(vendor, product uint16, page, usage uint16) *hidtest.Device {
	d := hidtest.New(vendor, product)
	d.Cols = []hid.Collection{{UsagePage: page, Usage: usage}}
	return d
}

func TestIdentify(t *testing.T) {
	type testCase struct {
		name    string
		dev     *hidtest.Device
		want    config.VendorTag
		wantNil bool
	}

	cases := []testCase{
		{name: "family A", dev: device(0x093A, 0xEB02, 0xFF01, 0), want: config.VendorA},
		{name: "family A alt page", dev: device(0x093A, 0xEB02, 0xFF00, 0), want: config.VendorA},
		{name: "family A wrong product", dev: device(0x093A, 0x0001, 0xFF01, 0), wantNil: true},
		{name: "family B", dev: device(0x24AE, 0x0001, 0xFF00, 14), want: config.VendorB},
		{name: "family B wrong usage", dev: device(0x24AE, 0x0001, 0xFF00, 3), wantNil: true},
		{name: "family C", dev: device(0x1915, 0x0001, 0xFF0A, 0), want: config.VendorC},
		{name: "family D", dev: device(0x046D, 0xC547, 0xFF00, 0x02), want: config.VendorD},
		{name: "family E", dev: device(0x373B, 0x0001, 0xFF02, 0x0002), want: config.VendorE},
		{name: "family E alt vendor", dev: device(0x3710, 0x0001, 0xFF02, 0x0002), want: config.VendorE},
		{name: "unknown vendor", dev: device(0xBEEF, 0x0001, 0xFF00, 1), wantNil: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := registry.Identify(tc.dev)
			if tc.wantNil {
				assert.Nil(t, reg)
				return
			}
			if assert.NotNil(t, reg) {
				assert.Equal(t, tc.want, reg.Tag)
			}
		})
	}
}

func TestNewBuildsMatchingApi(t *testing.T) {
	api, err := registry.New(device(0x1915, 0x0001, 0xFF0A, 0), nil, nil)
	assert.NoError(t, err)
	defer api.Dispose()
	assert.Equal(t, config.VendorC, api.Tag())
	assert.Equal(t, config.VendorC, api.Capabilities().Vendor)

	_, err = registry.New(device(0xBEEF, 0x0001, 0, 0), nil, nil)
	assert.Error(t, err)
}

func TestByTag(t *testing.T) {
	for _, tag := range []config.VendorTag{config.VendorA, config.VendorB, config.VendorC, config.VendorD, config.VendorE} {
		reg := registry.ByTag(tag)
		if assert.NotNil(t, reg, string(tag)) {
			assert.Equal(t, tag, reg.Tag)
		}
	}
	assert.Nil(t, registry.ByTag("Z"))
}
