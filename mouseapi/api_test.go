package mouseapi_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/driver/vendorc"
	"github.com/Nuitfanee/clicksync/hid"
	"github.com/Nuitfanee/clicksync/internal/hidtest"
	"github.com/Nuitfanee/clicksync/mouseapi"
	"github.com/Nuitfanee/clicksync/protocol"
)

func newApi(t *testing.T) (*mouseapi.Api, *hidtest.Device) {
	t.Helper()
	dev := hidtest.New(0x1915, 0x0001)
	timings := protocol.DefaultTimings()
	timings.AckTimeoutMS = 50
	api := mouseapi.New(dev, vendorc.Protocol(), timings, nil, nil)
	t.Cleanup(api.Dispose)
	return api, dev
}

func TestApplyCommitsOnSuccess(t *testing.T) {
	api, dev := newApi(t)
	ctx := context.Background()
	assert.NoError(t, api.Open(ctx))
	dev.Reset() // drop the open handshake traffic

	assert.NoError(t, api.Apply(ctx, config.Patch{"pollingHz": 4000}))
	assert.Equal(t, 4000, *api.CachedConfig().PollingHz)
	assert.NotEmpty(t, dev.SentReports())
}

func TestApplyRequiresOpen(t *testing.T) {
	api, _ := newApi(t)
	err := api.Apply(context.Background(), config.Patch{"pollingHz": 1000})
	assert.Error(t, err)
	assert.Equal(t, cfgerror.KindNotOpen, cfgerror.KindOf(err))
}

func TestApplyValidationLeavesCacheAndWire(t *testing.T) {
	api, dev := newApi(t)
	ctx := context.Background()
	assert.NoError(t, api.Open(ctx))
	dev.Reset()

	before := api.CachedConfig()
	err := api.Apply(ctx, config.Patch{"sleepSeconds": 90})
	assert.Error(t, err)
	assert.Equal(t, cfgerror.KindBadParam, cfgerror.KindOf(err))
	// Validation failures abort before any transport activity.
	assert.Empty(t, dev.SentReports())
	assert.Equal(t, *before.SleepSeconds, *api.CachedConfig().SleepSeconds)
}

func TestOpenHandshakeSendsSecureUnlock(t *testing.T) {
	api, dev := newApi(t)
	assert.NoError(t, api.Open(context.Background()))
	sent := dev.SentReports()
	assert.NotEmpty(t, sent)
	// The family handshake leads with the unlock frame on the secure report.
	assert.Equal(t, byte(0x09), sent[0].ReportID)
}

func TestOpenReopensAlreadyOpenDevice(t *testing.T) {
	api, dev := newApi(t)
	assert.NoError(t, dev.Open())
	assert.True(t, dev.Opened())
	start := time.Now()
	assert.NoError(t, api.Open(context.Background()))
	assert.True(t, dev.Opened())
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestOnConfigReplayAndNotify(t *testing.T) {
	api, dev := newApi(t)
	ctx := context.Background()
	assert.NoError(t, api.Open(ctx))
	dev.Reset()

	var got []*config.MouseConfig
	unsub := api.OnConfig(func(c *config.MouseConfig) { got = append(got, c) }, true)
	defer unsub()

	// Replay fires immediately with the cache.
	assert.Len(t, got, 1)

	assert.NoError(t, api.Apply(ctx, config.Patch{"pollingHz": 2000}))
	assert.Len(t, got, 2)
	assert.Equal(t, 2000, *got[1].PollingHz)
}

func TestSubscriberPanicIsSwallowed(t *testing.T) {
	api, _ := newApi(t)
	ctx := context.Background()
	assert.NoError(t, api.Open(ctx))

	calls := 0
	api.OnConfig(func(*config.MouseConfig) { panic("bad subscriber") }, false)
	api.OnConfig(func(*config.MouseConfig) { calls++ }, false)

	assert.NoError(t, api.Apply(ctx, config.Patch{"pollingHz": 2000}))
	assert.Equal(t, 1, calls)
}

func TestUnsubscribeDuringNotify(t *testing.T) {
	api, _ := newApi(t)
	ctx := context.Background()
	assert.NoError(t, api.Open(ctx))

	var unsub func()
	unsub = api.OnConfig(func(*config.MouseConfig) { unsub() }, false)
	other := 0
	api.OnConfig(func(*config.MouseConfig) { other++ }, false)

	assert.NoError(t, api.Apply(ctx, config.Patch{"pollingHz": 2000}))
	assert.Equal(t, 1, other)
}

func TestBatteryPushUpdatesCacheAndSubscribers(t *testing.T) {
	api, dev := newApi(t)
	ctx := context.Background()
	assert.NoError(t, api.Open(ctx))

	var got []config.Battery
	api.OnBattery(func(b config.Battery) { got = append(got, b) })

	dev.PushInput(0x08, []byte{0x03, 55, 0x00})
	assert.Len(t, got, 1)
	assert.Equal(t, 55, got[0].Percent)
	assert.Equal(t, 55, api.CachedConfig().Battery.Percent)
}

func TestRawReportSeesEverything(t *testing.T) {
	api, dev := newApi(t)
	ctx := context.Background()
	assert.NoError(t, api.Open(ctx))

	var raws []hid.InputReport
	api.OnRawReport(func(r hid.InputReport) { raws = append(raws, r) })

	dev.PushInput(0x08, []byte{0x03, 55, 0x00}) // interpreted as battery
	dev.PushInput(0x42, []byte{0xDE, 0xAD})     // no interpretation
	assert.Len(t, raws, 2)
	assert.Equal(t, byte(0x42), raws[1].ReportID)
}

func TestWaitForNextConfig(t *testing.T) {
	api, _ := newApi(t)
	ctx := context.Background()
	assert.NoError(t, api.Open(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		c, err := api.WaitForNextConfig(2 * time.Second)
		assert.NoError(t, err)
		assert.Equal(t, 2000, *c.PollingHz)
	}()
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, api.Apply(ctx, config.Patch{"pollingHz": 2000}))
	<-done

	_, err := api.WaitForNextBattery(50 * time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, cfgerror.KindIoTimeout, cfgerror.KindOf(err))
}

func TestSetDpiSugar(t *testing.T) {
	api, dev := newApi(t)
	ctx := context.Background()
	assert.NoError(t, api.Open(ctx))
	dev.Reset()

	assert.NoError(t, api.SetDpi(ctx, 1, 800, true))
	cfg := api.CachedConfig()
	assert.Equal(t, uint16(800), cfg.DpiSlots[0].X)
	assert.Equal(t, 0, *cfg.CurrentDpiIndex)
}
