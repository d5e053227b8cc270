// Package mouseapi exposes the outward-facing device API: one Api per
// identified mouse, owning the cached configuration snapshot, the operation
// queue, and the input-report demultiplexer.
package mouseapi

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/hid"
	ilog "github.com/Nuitfanee/clicksync/internal/log"
	"github.com/Nuitfanee/clicksync/protocol"
	"github.com/Nuitfanee/clicksync/transform"
)

// reopenGapMS is the pause between close and reopen when a device reports
// itself already open.
const reopenGapMS = 80

// Protocol is the per-family binding the registry factory supplies. All
// vendor knowledge lives behind it; Api is vendor-independent.
type Protocol interface {
	Tag() config.VendorTag
	Capabilities() *config.Capabilities
	DefaultConfig() *config.MouseConfig

	// Plan maps (prev, patch) onto (next, commands).
	Plan(prev *config.MouseConfig, patch config.Patch) (*config.MouseConfig, []protocol.Command, error)

	// ReadConfig rebuilds the snapshot from the device, merging into `into`.
	ReadConfig(ctx context.Context, tr *protocol.Transport, into *config.MouseConfig) error

	// ReadBattery polls the battery state.
	ReadBattery(ctx context.Context, tr *protocol.Transport) (config.Battery, error)

	// HandleInput interprets one pushed input report against the snapshot.
	HandleInput(r hid.InputReport, into *config.MouseConfig) (configChanged, batteryChanged bool)

	// OnOpen runs the family's open handshake (idempotent).
	OnOpen(ctx context.Context, tr *protocol.Transport) error

	// KeepAlive reports heartbeat frames that must never match acks or be
	// interpreted by the demux.
	KeepAlive(data []byte) bool
}

// Api is the public per-device facade the UI drives.
type Api struct {
	dev   hid.Device
	proto Protocol
	tr    *protocol.Transport
	opq   *protocol.Queue
	log   *slog.Logger

	mu          sync.Mutex
	cache       *config.MouseConfig
	opened      bool
	unsubscribe func()

	subs subscriptions
}

// New builds the facade for an identified device. logger and raw may be nil.
func New(dev hid.Device, proto Protocol, timings protocol.Timings, logger *slog.Logger, raw ilog.RawLogger) *Api {
	if logger == nil {
		logger = slog.Default()
	}
	tr := protocol.NewTransport(dev, timings, logger, raw)
	tr.KeepAlive = proto.KeepAlive
	return &Api{
		dev:   dev,
		proto: proto,
		tr:    tr,
		opq:   protocol.NewQueue("op", logger),
		log:   logger,
		cache: proto.DefaultConfig(),
	}
}

// Tag returns the family tag.
func (a *Api) Tag() config.VendorTag { return a.proto.Tag() }

// Capabilities returns the read-only capability record.
func (a *Api) Capabilities() *config.Capabilities { return a.proto.Capabilities() }

// Transport exposes the transport for diagnostics and tests.
func (a *Api) Transport() *protocol.Transport { return a.tr }

// CachedConfig returns a snapshot copy of the current configuration.
func (a *Api) CachedConfig() *config.MouseConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cache.Clone()
}

// Open opens the device, installing the input dispatcher and running the
// family's open handshake. An already-open device is closed and reopened
// after a short gap.
func (a *Api) Open(ctx context.Context) error {
	return a.opq.Do(ctx, func(ctx context.Context) error {
		if a.dev == nil {
			return cfgerror.NoDevice()
		}
		if a.dev.Opened() {
			_ = a.dev.Close()
			timer := time.NewTimer(reopenGapMS * time.Millisecond)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
		if err := a.dev.Open(); err != nil {
			return cfgerror.OpenFail(err.Error())
		}
		a.mu.Lock()
		if a.unsubscribe == nil {
			a.unsubscribe = a.dev.Subscribe(a.handleInput)
		}
		a.opened = true
		a.mu.Unlock()
		if err := a.proto.OnOpen(ctx, a.tr); err != nil {
			return err
		}
		return nil
	})
}

// Close releases the device. Subscriptions stay registered for a reopen.
func (a *Api) Close(ctx context.Context) error {
	return a.opq.Do(ctx, func(ctx context.Context) error {
		a.mu.Lock()
		if a.unsubscribe != nil {
			a.unsubscribe()
			a.unsubscribe = nil
		}
		a.opened = false
		a.mu.Unlock()
		return a.dev.Close()
	})
}

// Dispose closes the device and tears down the queues. The Api must not be
// used afterwards.
func (a *Api) Dispose() {
	_ = a.Close(context.Background())
	a.opq.Close()
	a.tr.Close()
}

func (a *Api) requireOpen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev == nil {
		return cfgerror.NoDevice()
	}
	if !a.opened {
		return cfgerror.NotOpen()
	}
	return nil
}

// RequestConfig rebuilds the snapshot from the device and notifies
// subscribers.
func (a *Api) RequestConfig(ctx context.Context) (*config.MouseConfig, error) {
	var out *config.MouseConfig
	err := a.opq.Do(ctx, func(ctx context.Context) error {
		if err := a.requireOpen(); err != nil {
			return err
		}
		next := a.CachedConfig()
		if err := a.proto.ReadConfig(ctx, a.tr, next); err != nil {
			return err
		}
		a.commitConfig(next)
		out = next.Clone()
		return nil
	})
	return out, err
}

// RequestBattery polls the battery and notifies subscribers.
func (a *Api) RequestBattery(ctx context.Context) (config.Battery, error) {
	var out config.Battery
	err := a.opq.Do(ctx, func(ctx context.Context) error {
		if err := a.requireOpen(); err != nil {
			return err
		}
		bat, err := a.proto.ReadBattery(ctx, a.tr)
		if err != nil {
			return err
		}
		a.mu.Lock()
		b := bat
		a.cache.Battery = &b
		a.mu.Unlock()
		a.subs.notifyBattery(a.log, bat)
		out = bat
		return nil
	})
	return out, err
}

// Apply plans and executes a semantic patch. Validation failures abort
// before any transport activity; transport failures leave the cache at the
// previous state.
func (a *Api) Apply(ctx context.Context, patch config.Patch) error {
	return a.opq.Do(ctx, func(ctx context.Context) error {
		if err := a.requireOpen(); err != nil {
			return err
		}
		prev := a.CachedConfig()
		next, cmds, err := a.proto.Plan(prev, patch)
		if err != nil {
			return err
		}
		if err := a.tr.RunSequence(ctx, cmds); err != nil {
			a.lockAfterFailure(cmds)
			return err
		}
		a.commitConfig(next)
		return nil
	})
}

// lockAfterFailure best-effort re-locks a secure gate whose body failed.
func (a *Api) lockAfterFailure(cmds []protocol.Command) {
	if len(cmds) == 0 || !cmds[len(cmds)-1].IsGate() {
		return
	}
	lock := cmds[len(cmds)-1]
	lctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.tr.Send(lctx, lock.ReportID, lock.Payload); err != nil {
		a.log.Warn("secure re-lock after failed apply did not go through", "error", err)
	}
}

// SetFeature applies a single semantic key.
func (a *Api) SetFeature(ctx context.Context, key string, value any) error {
	return a.Apply(ctx, config.Patch{key: value})
}

// SetBatchFeatures applies several keys in one planned sequence.
func (a *Api) SetBatchFeatures(ctx context.Context, patch config.Patch) error {
	return a.Apply(ctx, patch)
}

// SetDpi writes one DPI slot, optionally selecting it. slot is the 1-based
// slot number.
func (a *Api) SetDpi(ctx context.Context, slot, value int, selectSlot bool) error {
	return a.Apply(ctx, config.Patch{
		config.KeyDpiSlot: config.DpiSlotArg{Slot: slot, Dpi: value, Select: selectSlot},
	})
}

// SetDpiSlotCount changes the number of active DPI slots.
func (a *Api) SetDpiSlotCount(ctx context.Context, n int) error {
	return a.Apply(ctx, config.Patch{config.KeyDpiSlotCount: n})
}

// SetActiveDpiSlot selects the active DPI slot.
func (a *Api) SetActiveDpiSlot(ctx context.Context, index int) error {
	return a.Apply(ctx, config.Patch{config.KeyCurrentDpiIndex: index})
}

// SetButtonMapping assigns a semantic action label to one physical button.
func (a *Api) SetButtonMapping(ctx context.Context, slot int, label string) error {
	act, err := transform.FuncFromLabel(label)
	if err != nil {
		return err
	}
	return a.Apply(ctx, config.Patch{
		config.KeyButtonMapping: config.ButtonMappingArg{Slot: slot, FuncKey: act.FuncKey, KeyCode: act.KeyCode},
	})
}

// commitConfig swaps the cache and notifies config subscribers.
func (a *Api) commitConfig(next *config.MouseConfig) {
	a.mu.Lock()
	a.cache = next.Clone()
	snapshot := a.cache.Clone()
	a.mu.Unlock()
	a.subs.notifyConfig(a.log, snapshot)
}

// handleInput is the input-report demultiplexer.
func (a *Api) handleInput(r hid.InputReport) {
	// Raw subscribers see everything, interpreted or not.
	a.subs.notifyRaw(a.log, r)

	if a.proto.KeepAlive(r.Data) {
		return
	}

	a.mu.Lock()
	next := a.cache.Clone()
	a.mu.Unlock()
	configChanged, batteryChanged := a.proto.HandleInput(r, next)
	if !configChanged && !batteryChanged {
		return
	}
	a.mu.Lock()
	a.cache = next.Clone()
	a.mu.Unlock()
	if configChanged {
		a.subs.notifyConfig(a.log, next.Clone())
	}
	if batteryChanged && next.Battery != nil {
		a.subs.notifyBattery(a.log, *next.Battery)
	}
}

// OnConfig subscribes to snapshot changes. With replay the callback fires
// immediately with the current cache.
func (a *Api) OnConfig(cb func(*config.MouseConfig), replay bool) (unsubscribe func()) {
	unsub := a.subs.onConfig(cb)
	if replay {
		safeCall(a.log, func() { cb(a.CachedConfig()) })
	}
	return unsub
}

// OnBattery subscribes to battery changes.
func (a *Api) OnBattery(cb func(config.Battery)) (unsubscribe func()) {
	return a.subs.onBattery(cb)
}

// OnRawReport subscribes to every input report, pre-interpretation.
func (a *Api) OnRawReport(cb func(hid.InputReport)) (unsubscribe func()) {
	return a.subs.onRaw(cb)
}

// WaitForNextConfig blocks until the next cache mutation or the timeout.
func (a *Api) WaitForNextConfig(timeout time.Duration) (*config.MouseConfig, error) {
	ch := make(chan *config.MouseConfig, 1)
	unsub := a.subs.onConfig(func(c *config.MouseConfig) {
		select {
		case ch <- c:
		default:
		}
	})
	defer unsub()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c := <-ch:
		return c, nil
	case <-timer.C:
		return nil, cfgerror.IoTimeout(int(timeout / time.Millisecond))
	}
}

// WaitForNextBattery blocks until the next battery update or the timeout.
func (a *Api) WaitForNextBattery(timeout time.Duration) (config.Battery, error) {
	ch := make(chan config.Battery, 1)
	unsub := a.subs.onBattery(func(b config.Battery) {
		select {
		case ch <- b:
		default:
		}
	})
	defer unsub()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case b := <-ch:
		return b, nil
	case <-timer.C:
		return config.Battery{}, cfgerror.IoTimeout(int(timeout / time.Millisecond))
	}
}
