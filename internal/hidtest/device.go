// Package hidtest provides a scripted in-memory hid.Device for tests and
// the replay harness.
package hidtest

import (
	"sync"

	"github.com/Nuitfanee/clicksync/hid"
)

// Sent records one write observed by the device.
type Sent struct {
	ReportID byte
	Data     []byte
	Feature  bool
}

// Device is a scriptable hid.Device. OnSend, when set, runs for every write
// and may push input reports or queue feature replies; QueueFeature feeds
// ReceiveFeatureReport in FIFO order per report id.
type Device struct {
	Vendor  uint16
	Product uint16
	Name    string
	Cols    []hid.Collection

	// OnSend observes every write. Runs under the device mutex's shadow,
	// after the write is recorded.
	OnSend func(s Sent)

	// FailOutputReports makes SendReport fail so feature sends are used.
	FailOutputReports bool

	mu        sync.Mutex
	opened    bool
	sent      []Sent
	features  map[byte][][]byte
	listeners map[int]func(hid.InputReport)
	nextSub   int
}

func New(vendor, product uint16) *Device {
	return &Device{Vendor: vendor, Product: product, Name: "test mouse"}
}

func (d *Device) VendorID() uint16              { return d.Vendor }
func (d *Device) ProductID() uint16             { return d.Product }
func (d *Device) ProductName() string           { return d.Name }
func (d *Device) Collections() []hid.Collection { return d.Cols }

func (d *Device) Opened() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = true
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = false
	return nil
}

func (d *Device) record(s Sent) {
	d.mu.Lock()
	d.sent = append(d.sent, s)
	cb := d.OnSend
	d.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

func (d *Device) SendReport(id byte, data []byte) error {
	if d.FailOutputReports {
		return errOutputUnsupported
	}
	d.record(Sent{ReportID: id, Data: append([]byte(nil), data...)})
	return nil
}

func (d *Device) SendFeatureReport(id byte, data []byte) error {
	d.record(Sent{ReportID: id, Data: append([]byte(nil), data...), Feature: true})
	return nil
}

// QueueFeature schedules the next ReceiveFeatureReport reply for a report id.
func (d *Device) QueueFeature(id byte, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.features == nil {
		d.features = make(map[byte][][]byte)
	}
	d.features[id] = append(d.features[id], append([]byte(nil), data...))
}

func (d *Device) ReceiveFeatureReport(id byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q := d.features[id]
	if len(q) == 0 {
		return nil, errNoFeatureQueued
	}
	head := q[0]
	d.features[id] = q[1:]
	return head, nil
}

func (d *Device) Subscribe(cb func(hid.InputReport)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listeners == nil {
		d.listeners = make(map[int]func(hid.InputReport))
	}
	id := d.nextSub
	d.nextSub++
	d.listeners[id] = cb
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.listeners, id)
	}
}

// PushInput delivers an input report to every listener.
func (d *Device) PushInput(id byte, data []byte) {
	d.mu.Lock()
	cbs := make([]func(hid.InputReport), 0, len(d.listeners))
	for _, cb := range d.listeners {
		cbs = append(cbs, cb)
	}
	d.mu.Unlock()
	for _, cb := range cbs {
		cb(hid.InputReport{ReportID: id, Data: append([]byte(nil), data...)})
	}
}

// SentReports returns a copy of everything written so far.
func (d *Device) SentReports() []Sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Sent(nil), d.sent...)
}

// Reset clears the write log.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = nil
}

type hidtestError string

func (e hidtestError) Error() string { return string(e) }

const (
	errOutputUnsupported hidtestError = "output reports unsupported"
	errNoFeatureQueued   hidtestError = "no feature report queued"
)
