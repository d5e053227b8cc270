package vendord

import (
	"strconv"

	"github.com/qmuntal/stateless"
	"github.com/sigurn/crc16"

	"github.com/Nuitfanee/clicksync/config"
	"github.com/Nuitfanee/clicksync/protocol"
	"github.com/Nuitfanee/clicksync/transform"
)

const (
	profileSize = 256
	chunkSize   = 16
	chunkCount  = profileSize / chunkSize

	// crcSpan is how much of the image the checksum covers.
	crcSpan = 253

	// currentProfile is the on-board profile the engine edits.
	currentProfile byte = 1
)

// Image layout offsets.
const (
	offPollingWireless = 0
	offPollingWired    = 1
	offDefaultSlot     = 2
	offDpiRecords      = 4
	dpiRecordStride    = 5

	offBurstDelay = 2*chunkSize + 5

	offButtonsA = 3 * chunkSize
	offButtonsB = 7 * chunkSize
	buttonSlots = 5
	buttonStride = 4

	offCrc = 15*chunkSize + 13
)

// DPI record flag bits: bit 0 enables the slot, bits 1-2 carry the
// lift-off level.
const (
	flagEnabled byte = 0x01
)

var lodFlag = map[string]byte{"low": 1, "mid": 2, "high": 3}

// pollingFlagCode maps polling Hz onto the profile's rate code.
var pollingFlagCode = map[int]byte{125: 0x00, 250: 0x01, 500: 0x02, 1000: 0x03}

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// buildImage renders the full 256-byte profile image from the next state.
func buildImage(next *config.MouseConfig) []byte {
	img := make([]byte, profileSize)

	hz := 1000
	if next.PollingHz != nil {
		hz = *next.PollingHz
	}
	img[offPollingWireless] = pollingFlagCode[hz]
	img[offPollingWired] = pollingFlagCode[hz]

	if next.CurrentDpiIndex != nil {
		img[offDefaultSlot] = byte(*next.CurrentDpiIndex)
	}

	count := len(next.DpiSlots)
	if next.DpiSlotCount != nil {
		count = *next.DpiSlotCount
	}
	lod := "mid"
	if next.LodHeight != nil {
		lod = *next.LodHeight
	}
	for i := 0; i < 5 && i < len(next.DpiSlots); i++ {
		off := offDpiRecords + i*dpiRecordStride
		s := next.DpiSlots[i]
		img[off] = byte(s.X)
		img[off+1] = byte(s.X >> 8)
		img[off+2] = byte(s.Y)
		img[off+3] = byte(s.Y >> 8)
		flags := lodFlag[lod] << 1
		if i < count {
			flags |= flagEnabled
		}
		img[off+4] = flags
	}

	if next.BurstDelayMS != nil {
		img[offBurstDelay] = byte(*next.BurstDelayMS / 10)
	}

	// Two mirror copies of the button table.
	for _, base := range []int{offButtonsA, offButtonsB} {
		for i := 0; i < buttonSlots; i++ {
			off := base + i*buttonStride
			var fk byte
			if i < len(next.ButtonMappings) {
				fk = next.ButtonMappings[i].FuncKey
			}
			img[off] = 0x80
			img[off+1] = 0x01
			img[off+2] = 0x00
			img[off+3] = fk
		}
	}

	sum := crc16.Checksum(img[:crcSpan], crcTable)
	img[offCrc] = byte(sum >> 8)
	img[offCrc+1] = byte(sum)
	return img
}

// parseImage decodes a read-back profile image into the snapshot.
func parseImage(img []byte, into *config.MouseConfig) {
	if len(img) < profileSize {
		return
	}
	for hz, code := range pollingFlagCode {
		if code == img[offPollingWireless] {
			into.PollingHz = config.Ptr(hz)
			break
		}
	}
	into.CurrentDpiIndex = config.Ptr(int(img[offDefaultSlot]))

	slots := make([]config.DpiSlot, 0, 5)
	count := 0
	for i := 0; i < 5; i++ {
		off := offDpiRecords + i*dpiRecordStride
		slots = append(slots, config.DpiSlot{
			X: transform.U16LE(img[off : off+2]),
			Y: transform.U16LE(img[off+2 : off+4]),
		})
		flags := img[off+4]
		if flags&flagEnabled != 0 {
			count++
		}
		if i == 0 {
			for name, code := range lodFlag {
				if code == flags>>1&0x03 {
					into.LodHeight = config.Ptr(name)
					break
				}
			}
		}
	}
	into.DpiSlots = slots
	into.DpiSlotCount = config.Ptr(count)
	into.BurstDelayMS = config.Ptr(int(img[offBurstDelay]) * 10)

	mappings := make([]config.ButtonMapping, buttonSlots)
	for i := 0; i < buttonSlots; i++ {
		mappings[i] = config.ButtonMapping{FuncKey: img[offButtonsA+i*buttonStride+3]}
	}
	into.ButtonMappings = mappings
}

// Stream machine states and triggers. The machine tracks where an in-flight
// profile rewrite stands; acks that are not the legal next transition are
// refused at match time.
const (
	stIdle      = "idle"
	stStarted   = "started"
	stHeader    = "header_acked"
	stCommitted = "committed"

	trStart  = "start"
	trHeader = "header"
	trChunk  = "chunk"
	trCommit = "commit"
)

func chunkState(i int) string {
	return "chunk_" + strconv.Itoa(i)
}

// newStreamMachine builds the linear stream progress machine. The start
// trigger is permitted from every state so a whole-stream retry rewinds it.
func newStreamMachine() *stateless.StateMachine {
	m := stateless.NewStateMachine(stIdle)
	states := []string{stIdle, stStarted, stHeader, stCommitted}
	for i := 0; i < chunkCount; i++ {
		states = append(states, chunkState(i))
	}
	for _, s := range states {
		if s == stStarted {
			m.Configure(s).PermitReentry(trStart)
			continue
		}
		m.Configure(s).Permit(trStart, stStarted)
	}
	m.Configure(stStarted).Permit(trHeader, stHeader)
	m.Configure(stHeader).Permit(trChunk, chunkState(0))
	for i := 0; i < chunkCount-1; i++ {
		m.Configure(chunkState(i)).Permit(trChunk, chunkState(i+1))
	}
	m.Configure(chunkState(chunkCount - 1)).Permit(trCommit, stCommitted)
	return m
}

// buildStream plans the full rewrite: Start, Header, sixteen chunks, Commit,
// every step ack-matched and tagged as one atomic stream group. The stream
// machine gates every match: an ack only counts when it is the legal next
// transition, so a duplicate or out-of-order echo never satisfies a
// matcher and the group falls into the whole-stream retry instead of
// advancing on a frame the device's chunk counter disagrees with.
func buildStream(next *config.MouseConfig) []protocol.Command {
	img := buildImage(next)
	machine := newStreamMachine()

	step := func(reportID byte, payload []byte, function byte, chunkIndex int, trigger string) protocol.Command {
		base := ackMatcher(featProfile, function, chunkIndex)
		// A chunk ack only counts from the state right before that chunk.
		from := stHeader
		if chunkIndex > 0 {
			from = chunkState(chunkIndex - 1)
		}
		return protocol.Command{
			ReportID: reportID,
			Payload:  payload,
			Opcode:   function,
			Ack: &protocol.AckMatcher{
				ReportID: base.ReportID,
				Match: func(data []byte) bool {
					if !base.Match(data) {
						return false
					}
					if chunkIndex >= 0 && machine.MustState() != from {
						return false
					}
					return machine.Fire(trigger) == nil
				},
			},
			ProfileStream: true,
		}
	}

	cmds := make([]protocol.Command, 0, chunkCount+4)
	cmds = append(cmds, step(shortReportID, shortFrame(featProfile, funcStart), funcStart, -1, trStart))

	header := make([]byte, chunkSize)
	header[1] = currentProfile
	cmds = append(cmds, step(longReportID, longFrame(featProfile, funcHeader, header), funcHeader, -1, trHeader))

	for i := 0; i < chunkCount; i++ {
		chunk := img[i*chunkSize : (i+1)*chunkSize]
		cmds = append(cmds, step(longReportID, longFrame(featProfile, funcChunk, chunk), funcChunk, i, trChunk))
	}

	cmds = append(cmds, step(shortReportID, shortFrame(featProfile, funcCommit), funcCommit, -1, trCommit))
	return cmds
}
