package protocol_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Nuitfanee/clicksync/cfgerror"
	"github.com/Nuitfanee/clicksync/hid"
	"github.com/Nuitfanee/clicksync/internal/hidtest"
	"github.com/Nuitfanee/clicksync/protocol"
)

func testTimings() protocol.Timings {
	t := protocol.DefaultTimings()
	t.SendTimeoutMS = 500
	t.AckTimeoutMS = 60
	t.DrainTimeoutMS = 40
	return t
}

func newTransport(dev *hidtest.Device) *protocol.Transport {
	return protocol.NewTransport(dev, testTimings(), nil, nil)
}

func TestSendPadsToDescriptorLength(t *testing.T) {
	dev := hidtest.New(0x1915, 0x0001)
	dev.Cols = []hid.Collection{{
		UsagePage:     0xFF0A,
		OutputReports: []hid.ReportInfo{{ID: 0x08, ByteLen: 64}},
	}}
	tr := newTransport(dev)
	defer tr.Close()

	assert.NoError(t, tr.Send(context.Background(), 0x08, []byte{0x05, 0x01}))
	sent := dev.SentReports()
	assert.Len(t, sent, 1)
	assert.Len(t, sent[0].Data, 64)
	assert.Equal(t, byte(0x05), sent[0].Data[0])
	assert.False(t, sent[0].Feature)
}

func TestSendFallsBackToFeatureReports(t *testing.T) {
	dev := hidtest.New(0x1915, 0x0001)
	dev.FailOutputReports = true
	dev.Cols = []hid.Collection{{
		FeatureReports: []hid.ReportInfo{{ID: 0x08, ByteLen: 32}},
	}}
	tr := newTransport(dev)
	defer tr.Close()

	assert.NoError(t, tr.Send(context.Background(), 0x08, []byte{0x01}))
	sent := dev.SentReports()
	assert.Len(t, sent, 1)
	assert.True(t, sent[0].Feature)
	assert.Len(t, sent[0].Data, 32)
}

func TestStaleFrameDrain(t *testing.T) {
	dev := hidtest.New(0x1915, 0x0001)
	tr := newTransport(dev)
	defer tr.Close()

	// A stale frame for another opcode, then the matching one.
	dev.QueueFeature(0x08, []byte{0x99, 0x00})
	dev.QueueFeature(0x08, []byte{0x05, 0x03})

	var got []byte
	err := tr.RecvFeatureDrained(context.Background(), 0x08, func(raw []byte) error {
		if raw[0] != 0x05 {
			return cfgerror.IoCmdMismatch(0x05, raw[0])
		}
		got = append([]byte(nil), raw...)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x03}, got)
}

func TestStaleFrameDrainExhausted(t *testing.T) {
	dev := hidtest.New(0x1915, 0x0001)
	tr := newTransport(dev)
	defer tr.Close()

	for i := 0; i < 3; i++ {
		dev.QueueFeature(0x08, []byte{0x99, 0x00})
	}
	err := tr.RecvFeatureDrained(context.Background(), 0x08, func(raw []byte) error {
		if raw[0] != 0x05 {
			return cfgerror.IoCmdMismatch(0x05, raw[0])
		}
		return nil
	})
	assert.Error(t, err)
	// The original mismatch surfaces, not a read failure from the drain.
	assert.Equal(t, cfgerror.KindIoCmdMismatch, cfgerror.KindOf(err))
}

func TestSendAndWaitMatchesAck(t *testing.T) {
	dev := hidtest.New(0x046D, 0x0001)
	dev.OnSend = func(s hidtest.Sent) {
		dev.PushInput(0x11, []byte{0x01, 0x0D, 0x7F, 0x00})
	}
	tr := newTransport(dev)
	defer tr.Close()

	ack := &protocol.AckMatcher{ReportID: 0x11, Match: func(d []byte) bool { return len(d) >= 3 && d[2] == 0x7F }}
	assert.NoError(t, tr.SendAndWait(context.Background(), 0x10, []byte{0x01, 0x0D, 0x7F}, ack, 0))
}

func TestSendAndWaitIgnoresKeepAlive(t *testing.T) {
	dev := hidtest.New(0x046D, 0x0001)
	dev.OnSend = func(s hidtest.Sent) {
		// Only the heartbeat arrives; the ack never does.
		dev.PushInput(0x11, []byte{0x01, 0x0D, 0x2F, 0x00})
	}
	tr := newTransport(dev)
	defer tr.Close()
	tr.KeepAlive = func(d []byte) bool {
		return len(d) >= 3 && d[0] == 0x01 && d[1] == 0x0D && d[2] == 0x2F
	}

	// The matcher would happily match the heartbeat; the filter must win.
	ack := &protocol.AckMatcher{ReportID: 0x11, Match: func(d []byte) bool { return true }}
	start := time.Now()
	err := tr.SendAndWait(context.Background(), 0x10, []byte{0x01, 0x0D, 0x7F}, ack, 0)
	assert.Error(t, err)
	assert.Equal(t, cfgerror.KindIoAckTimeout, cfgerror.KindOf(err))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

// streamCmds builds a synthetic Start+Header+16 chunk+Commit group in the
// shape the profile stream planner emits.
func streamCmds(acked func(i int) *protocol.AckMatcher) []protocol.Command {
	cmds := make([]protocol.Command, 0, 19)
	for i := 0; i < 19; i++ {
		cmds = append(cmds, protocol.Command{
			ReportID:      0x11,
			Payload:       []byte{0x01, 0x0D, byte(i)},
			Opcode:        byte(i),
			Ack:           acked(i),
			ProfileStream: true,
		})
	}
	return cmds
}

func TestRunSequenceRetriesWholeStream(t *testing.T) {
	dev := hidtest.New(0x046D, 0x0001)
	tr := newTransport(dev)
	defer tr.Close()

	attempt := 1
	sends := 0
	dev.OnSend = func(s hidtest.Sent) {
		sends++
		step := s.Data[2]
		if attempt == 1 && step == 6 {
			// Swallow the 5th chunk's ack on the first pass (steps 0 and 1
			// are the start and header).
			attempt = 2
			return
		}
		dev.PushInput(0x11, []byte{0x01, 0x0D, step, 0xAA})
	}

	cmds := streamCmds(func(i int) *protocol.AckMatcher {
		return &protocol.AckMatcher{ReportID: 0x11, Match: func(d []byte) bool {
			return len(d) >= 4 && d[2] == byte(i) && d[3] == 0xAA
		}}
	})
	assert.NoError(t, tr.RunSequence(context.Background(), cmds))

	// First pass aborts at the lost ack (7 sends), then the whole group is
	// replayed from its first command — never just the failed chunk.
	assert.Equal(t, 7+19, sends)
}

func TestRunSequenceStreamRetryExhausted(t *testing.T) {
	dev := hidtest.New(0x046D, 0x0001)
	tr := newTransport(dev)
	defer tr.Close()

	dev.OnSend = func(s hidtest.Sent) {
		step := s.Data[2]
		if step == 6 {
			return // never ack the 5th chunk
		}
		dev.PushInput(0x11, []byte{0x01, 0x0D, step, 0xAA})
	}
	cmds := streamCmds(func(i int) *protocol.AckMatcher {
		return &protocol.AckMatcher{ReportID: 0x11, Match: func(d []byte) bool {
			return len(d) >= 4 && d[2] == byte(i) && d[3] == 0xAA
		}}
	})
	err := tr.RunSequence(context.Background(), cmds)
	assert.Error(t, err)
	assert.Equal(t, cfgerror.KindIoAckTimeout, cfgerror.KindOf(err))
	// Initial pass plus AckRetryCount retries, each stopping at the lost ack.
	assert.Equal(t, 7*2, len(dev.SentReports()))
}

func TestRunSequenceSingleCommandRetryOptIn(t *testing.T) {
	dev := hidtest.New(0x046D, 0x0001)
	tr := newTransport(dev)
	defer tr.Close()

	calls := 0
	dev.OnSend = func(s hidtest.Sent) {
		calls++
		if calls >= 2 {
			dev.PushInput(0x11, []byte{0x01, 0x0D, 0x42})
		}
	}
	ack := &protocol.AckMatcher{ReportID: 0x11, Match: func(d []byte) bool { return len(d) >= 3 && d[2] == 0x42 }}

	cmd := protocol.Command{ReportID: 0x10, Payload: []byte{0x01, 0x0D, 0x42}, Ack: ack, RetryOnAckTimeout: true}
	assert.NoError(t, tr.RunSequence(context.Background(), []protocol.Command{cmd}))
	assert.Equal(t, 2, calls)

	// Without the opt-in the first timeout is final.
	dev.Reset()
	calls = 0
	dev.OnSend = func(s hidtest.Sent) { calls++ }
	cmd.RetryOnAckTimeout = false
	err := tr.RunSequence(context.Background(), []protocol.Command{cmd})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRunSequenceHonorsWaits(t *testing.T) {
	dev := hidtest.New(0x1915, 0x0001)
	tr := newTransport(dev)
	defer tr.Close()

	cmds := []protocol.Command{
		{ReportID: 0x08, Payload: []byte{0x01}, WaitMS: 30},
		{ReportID: 0x08, Payload: []byte{0x02}},
	}
	start := time.Now()
	assert.NoError(t, tr.RunSequence(context.Background(), cmds))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Len(t, dev.SentReports(), 2)
}
