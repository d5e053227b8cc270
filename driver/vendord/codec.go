// Package vendord implements the 0x046D protocol family: short/long framed
// feature calls and an on-board profile image rewritten through an
// ack-matched streaming sequence.
package vendord

import (
	"github.com/Nuitfanee/clicksync/protocol"
)

const (
	shortReportID byte = 0x10
	longReportID  byte = 0x11

	shortLen = 7
	longLen  = 19

	deviceIndex byte = 0x01
)

// Feature indexes.
const (
	featProfile byte = 0x0D
	featBattery byte = 0x06
)

// Profile feature functions.
const (
	funcStart    byte = 0x0F
	funcHeader   byte = 0x6F
	funcChunk    byte = 0x7F
	funcCommit   byte = 0x8F
	funcReadPage byte = 0x5F
)

// Battery feature functions.
const funcBatteryStatus byte = 0x0F

// keepAlivePrefix is the heartbeat the receiver emits on the ack report;
// it must never match an ack.
var keepAlivePrefix = []byte{0x01, 0x0D, 0x2F}

// shortFrame packs a 7-byte feature call.
func shortFrame(feature, function byte, params ...byte) []byte {
	f := make([]byte, shortLen)
	f[0] = deviceIndex
	f[1] = feature
	f[2] = function
	copy(f[3:], params)
	return f
}

// longFrame packs a 19-byte feature call.
func longFrame(feature, function byte, params []byte) []byte {
	f := make([]byte, longLen)
	f[0] = deviceIndex
	f[1] = feature
	f[2] = function
	copy(f[3:], params)
	return f
}

// IsKeepAlive reports the receiver heartbeat.
func IsKeepAlive(data []byte) bool {
	if len(data) < len(keepAlivePrefix) {
		return false
	}
	for i, b := range keepAlivePrefix {
		if data[i] != b {
			return false
		}
	}
	return true
}

// ackMatcher matches the echo of one feature call. A negative chunkIndex
// skips the index check.
func ackMatcher(feature, function byte, chunkIndex int) *protocol.AckMatcher {
	return &protocol.AckMatcher{
		ReportID: longReportID,
		Match: func(data []byte) bool {
			if len(data) < 4 || data[0] != deviceIndex || data[1] != feature || data[2] != function {
				return false
			}
			if chunkIndex >= 0 && int(data[3]) != chunkIndex {
				return false
			}
			return true
		},
	}
}
