package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/hid"
	ilog "github.com/Nuitfanee/clicksync/internal/log"
)

// Timings bundles every transport timeout and retry knob.
type Timings struct {
	SendTimeoutMS  int
	AckTimeoutMS   int
	DrainTimeoutMS int
	DrainReads     int
	AckRetryCount  int
	GateWaitMS     int
}

// DefaultTimings returns the stock timing set.
func DefaultTimings() Timings {
	return Timings{
		SendTimeoutMS:  1200,
		AckTimeoutMS:   350,
		DrainTimeoutMS: 140,
		DrainReads:     2,
		AckRetryCount:  1,
		GateWaitMS:     50,
	}
}

// Transport owns one logical serial port to a device. Every primitive runs
// through a single send queue so no two device I/Os are in flight at once
// and a planned sequence cannot be interleaved with ad-hoc reads.
type Transport struct {
	dev hid.Device
	q   *Queue
	t   Timings
	log *slog.Logger
	raw ilog.RawLogger

	// KeepAlive, when set, drops matching input reports before ack
	// matching (some families re-emit a heartbeat on the ack report id).
	KeepAlive func(data []byte) bool

	lengths map[byte]int // probed report lengths per report id
}

// NewTransport builds a transport over dev. logger may be nil; raw may be
// nil to disable wire tracing.
func NewTransport(dev hid.Device, t Timings, logger *slog.Logger, raw ilog.RawLogger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if raw == nil {
		raw = ilog.NewRaw(nil)
	}
	return &Transport{
		dev:     dev,
		q:       NewQueue("send", logger),
		t:       t,
		log:     logger,
		raw:     raw,
		lengths: make(map[byte]int),
	}
}

// Timings returns the active timing set.
func (tr *Transport) Timings() Timings { return tr.t }

// Close drains and stops the send queue. The device itself is closed by the
// facade that owns it.
func (tr *Transport) Close() { tr.q.Close() }

// Send pads the payload to the report's expected length and writes it,
// trying output then feature reports across the length candidate set.
func (tr *Transport) Send(ctx context.Context, reportID byte, data []byte) error {
	return tr.q.Do(ctx, func(ctx context.Context) error {
		return tr.sendLocked(ctx, reportID, data)
	})
}

// sendLocked runs on the queue goroutine.
func (tr *Transport) sendLocked(ctx context.Context, reportID byte, data []byte) error {
	native := tr.lengths[reportID]
	if native == 0 {
		native = hid.ReportLength(tr.dev, reportID)
	}
	var lastErr error
	for _, n := range hid.LengthCandidates(native) {
		if n < len(data) {
			continue
		}
		padded := hid.PadTo(data, n)
		err := tr.withTimeout(tr.t.SendTimeoutMS, func() error {
			return tr.dev.SendReport(reportID, padded)
		})
		if err == nil {
			tr.lengths[reportID] = n
			tr.raw.Log(false, append([]byte{reportID}, padded...))
			return nil
		}
		if cfgerror.KindOf(err) == cfgerror.KindIoTimeout {
			return err
		}
		ferr := tr.withTimeout(tr.t.SendTimeoutMS, func() error {
			return tr.dev.SendFeatureReport(reportID, padded)
		})
		if ferr == nil {
			tr.lengths[reportID] = n
			tr.raw.Log(false, append([]byte{reportID}, padded...))
			return nil
		}
		if cfgerror.KindOf(ferr) == cfgerror.KindIoTimeout {
			return ferr
		}
		lastErr = ferr
	}
	detail := "all report length candidates exhausted"
	if lastErr != nil {
		detail += ": " + lastErr.Error()
	}
	return cfgerror.IoWriteFail(detail)
}

// SendAndRecvFeature sends, sleeps waitMS, then reads the named feature
// report.
func (tr *Transport) SendAndRecvFeature(ctx context.Context, reportID byte, data []byte, featureID byte, waitMS int) ([]byte, error) {
	var out []byte
	err := tr.q.Do(ctx, func(ctx context.Context) error {
		if err := tr.sendLocked(ctx, reportID, data); err != nil {
			return err
		}
		if err := sleep(ctx, waitMS); err != nil {
			return err
		}
		resp, err := tr.recvFeatureLocked(tr.t.SendTimeoutMS, featureID)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	return out, err
}

func (tr *Transport) recvFeatureLocked(timeoutMS int, featureID byte) ([]byte, error) {
	var resp []byte
	err := tr.withTimeout(timeoutMS, func() error {
		b, err := tr.dev.ReceiveFeatureReport(featureID)
		if err != nil {
			return cfgerror.IoReadFail(err.Error())
		}
		resp = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, cfgerror.IoReadFail("empty feature report")
	}
	tr.raw.Log(true, append([]byte{featureID}, resp...))
	return resp, nil
}

// RecvFeatureDrained reads the named feature report and hands it to parse.
// When parse reports a command mismatch the device is assumed to have
// re-emitted a stale frame: up to DrainReads further short-timeout reads are
// attempted, returning the first frame parse accepts. The original mismatch
// surfaces when the drain comes up empty.
func (tr *Transport) RecvFeatureDrained(ctx context.Context, featureID byte, parse func([]byte) error) error {
	return tr.q.Do(ctx, func(ctx context.Context) error {
		return tr.recvDrainedLocked(ctx, featureID, parse)
	})
}

func (tr *Transport) recvDrainedLocked(ctx context.Context, featureID byte, parse func([]byte) error) error {
	resp, err := tr.recvFeatureLocked(tr.t.SendTimeoutMS, featureID)
	if err != nil {
		return err
	}
	firstErr := parse(resp)
	if firstErr == nil {
		return nil
	}
	if cfgerror.KindOf(firstErr) != cfgerror.KindIoCmdMismatch {
		return firstErr
	}
	for i := 0; i < tr.t.DrainReads; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := tr.recvFeatureLocked(tr.t.DrainTimeoutMS, featureID)
		if err != nil {
			continue
		}
		if perr := parse(resp); perr == nil {
			tr.log.Debug("stale frame drained", "reads", i+1, "feature", featureID)
			return nil
		}
	}
	return firstErr
}

// SendAndRecvDrained is the combined write-then-drained-read round trip used
// by register read sequences.
func (tr *Transport) SendAndRecvDrained(ctx context.Context, reportID byte, data []byte, featureID byte, waitMS int, parse func([]byte) error) error {
	return tr.q.Do(ctx, func(ctx context.Context) error {
		if err := tr.sendLocked(ctx, reportID, data); err != nil {
			return err
		}
		if err := sleep(ctx, waitMS); err != nil {
			return err
		}
		return tr.recvDrainedLocked(ctx, featureID, parse)
	})
}

// SendAndWait subscribes for input reports, sends, then races the ack
// matcher against the ack window. Keep-alive frames never match.
func (tr *Transport) SendAndWait(ctx context.Context, reportID byte, data []byte, ack *AckMatcher, waitMS int) error {
	return tr.q.Do(ctx, func(ctx context.Context) error {
		return tr.sendAndWaitLocked(ctx, reportID, data, ack, waitMS)
	})
}

func (tr *Transport) sendAndWaitLocked(ctx context.Context, reportID byte, data []byte, ack *AckMatcher, waitMS int) error {
	matched := make(chan struct{}, 1)
	unsubscribe := tr.dev.Subscribe(func(r hid.InputReport) {
		if r.ReportID != ack.ReportID {
			return
		}
		if tr.KeepAlive != nil && tr.KeepAlive(r.Data) {
			return
		}
		if ack.Match(r.Data) {
			select {
			case matched <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := tr.sendLocked(ctx, reportID, data); err != nil {
		return err
	}

	timer := time.NewTimer(time.Duration(tr.t.AckTimeoutMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-matched:
	case <-timer.C:
		return cfgerror.IoAckTimeout(tr.t.AckTimeoutMS)
	case <-ctx.Done():
		return ctx.Err()
	}
	return sleep(ctx, waitMS)
}

// RunSequence executes planned commands in order. An ack timeout on a
// profile-stream member retries the whole contiguous stream group; on other
// commands it retries only when the command opted in.
func (tr *Transport) RunSequence(ctx context.Context, cmds []Command) error {
	for i := 0; i < len(cmds); {
		if cmds[i].ProfileStream {
			end := i
			for end < len(cmds) && cmds[end].ProfileStream {
				end++
			}
			if err := tr.runStreamGroup(ctx, cmds[i:end]); err != nil {
				return err
			}
			i = end
			continue
		}
		if err := tr.runOne(ctx, cmds[i]); err != nil {
			return err
		}
		i++
	}
	return nil
}

func (tr *Transport) runOne(ctx context.Context, c Command) error {
	err := tr.dispatch(ctx, c)
	if err == nil || cfgerror.KindOf(err) != cfgerror.KindIoAckTimeout || !c.RetryOnAckTimeout {
		return err
	}
	for attempt := 0; attempt < tr.t.AckRetryCount; attempt++ {
		tr.log.Debug("retrying command after ack timeout", "cmd", c.String(), "attempt", attempt+1)
		err = tr.dispatch(ctx, c)
		if err == nil || cfgerror.KindOf(err) != cfgerror.KindIoAckTimeout {
			return err
		}
	}
	return err
}

// runStreamGroup sends one atomic streaming group. The device's internal
// chunk counter advances on every accepted chunk, so a lost ack anywhere
// restarts the whole group, never a single chunk.
func (tr *Transport) runStreamGroup(ctx context.Context, group []Command) error {
	var err error
	for attempt := 0; attempt <= tr.t.AckRetryCount; attempt++ {
		if attempt > 0 {
			tr.log.Debug("retrying profile stream", "attempt", attempt, "commands", len(group))
		}
		err = nil
		for _, c := range group {
			if err = tr.dispatch(ctx, c); err != nil {
				break
			}
		}
		if err == nil || cfgerror.KindOf(err) != cfgerror.KindIoAckTimeout {
			return err
		}
	}
	return err
}

func (tr *Transport) dispatch(ctx context.Context, c Command) error {
	return tr.q.Do(ctx, func(ctx context.Context) error {
		if c.Ack != nil {
			return tr.sendAndWaitLocked(ctx, c.ReportID, c.Payload, c.Ack, int(c.WaitMS))
		}
		if err := tr.sendLocked(ctx, c.ReportID, c.Payload); err != nil {
			return err
		}
		return sleep(ctx, int(c.WaitMS))
	})
}

// Unlock sends the gate's unlock payload.
func (tr *Transport) Unlock(ctx context.Context, g *Gate) error {
	if err := tr.Send(ctx, g.ReportID, g.Unlock); err != nil {
		return err
	}
	return sleep(ctx, int(g.WaitMS))
}

// Lock sends the gate's lock payload. Best effort in epilogue positions:
// callers log, not fail, when the body already failed.
func (tr *Transport) Lock(ctx context.Context, g *Gate) error {
	if err := tr.Send(ctx, g.ReportID, g.Lock); err != nil {
		return err
	}
	return sleep(ctx, int(g.WaitMS))
}

// withTimeout runs fn with a wall-clock budget. HID stacks are not
// context-aware, so a stuck call is abandoned and surfaces IoTimeout; the
// goroutine finishes in the background.
func (tr *Transport) withTimeout(ms int, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return cfgerror.IoTimeout(ms)
	}
}

func sleep(ctx context.Context, ms int) error {
	if ms <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
